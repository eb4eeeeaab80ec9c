// Package types provides shared type definitions for the application.
package types

// VolumeUpdate is the payload for volume-changed events.
// Seq increases monotonically within a capture session; consumers may
// observe gaps when they fall behind, but never reordering.
type VolumeUpdate struct {
	Value float64 `json:"value"` // normalized loudness in [0,1]
	Seq   uint64  `json:"seq"`
}

// StateUpdate is the payload for state-changed events.
type StateUpdate struct {
	State string `json:"state"` // "idle", "recording" or "processing"
}

// Transcript is the payload for transcription-completed events.
type Transcript struct {
	ID         string  `json:"id"`         // request identifier
	Text       string  `json:"text"`       // transcribed text
	Language   string  `json:"language"`   // hinted or detected language code
	LangName   string  `json:"langName"`   // human-readable language name
	DurationMS int64   `json:"durationMs"` // audio duration in milliseconds
	Elapsed    float64 `json:"elapsed"`    // wall-clock transcription seconds
}

// Progress is the payload for transcription-progress events.
type Progress struct {
	ID   string `json:"id"`
	Text string `json:"text"` // partial transcript so far
}

// Failure is the payload for transcription-failed and capture-failed events.
type Failure struct {
	Stage  string `json:"stage"` // "capture", "processing", "model" or "transcription"
	Reason string `json:"reason"`
}
