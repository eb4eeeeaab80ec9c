// Package app coordinates capture, processing and transcription behind the
// application state machine.
package app

// Event names for the UI/tray collaborator.
const (
	EventStateChanged           = "state-changed"
	EventVolumeChanged          = "volume-changed"
	EventTranscriptionProgress  = "transcription-progress"
	EventTranscriptionCompleted = "transcription-completed"
	EventTranscriptionFailed    = "transcription-failed"
	EventCaptureFailed          = "capture-failed"
)

// EmitFunc delivers an event to the external collaborator. Implementations
// must not block; the controller calls it from its coordinating goroutines.
type EmitFunc func(name string, data any)

// Failure stages reported in failure payloads.
const (
	StageCapture       = "capture"
	StageProcessing    = "processing"
	StageModel         = "model"
	StageTranscription = "transcription"
)
