// Package stt wraps speech-to-text inference engines and runs transcription
// off the coordinating thread.
package stt

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrNoSpeech is the failure reported when the engine ran but produced no
// usable text.
var ErrNoSpeech = errors.New("no speech detected")

// ErrBusy is returned when a request is submitted while another is in
// flight. The engine is not assumed to be reentrant, so the worker never
// runs two requests at once.
var ErrBusy = errors.New("transcription already in progress")

// Engine loads transcription models by name.
type Engine interface {
	// Name returns the engine identifier.
	Name() string

	// LoadModel loads the named model. Loading may be expensive; the
	// worker caches the result until the name changes.
	LoadModel(name string) (Model, error)
}

// Model is a loaded inference model. Implementations are not required to be
// reentrant; callers must serialize Transcribe calls.
type Model interface {
	// Transcribe converts mono 16 kHz float32 samples to text. language is
	// a code such as "en", or empty for auto-detection. progress, when
	// non-nil, receives the accumulated partial transcript zero or more
	// times before Transcribe returns.
	Transcribe(ctx context.Context, samples []float32, language string, progress func(text string)) (string, error)

	// Close releases the model's resources.
	Close() error
}

// ModelLoadError reports that a requested model is unavailable or corrupt.
type ModelLoadError struct {
	Engine string
	Model  string
	Err    error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("%s: load model %q: %v", e.Engine, e.Model, e.Err)
}

func (e *ModelLoadError) Unwrap() error { return e.Err }

var (
	// regexTimestamp matches VTT/SRT timestamps like [00:00:00.000 --> 00:00:04.000]
	regexTimestamp = regexp.MustCompile(`\[\d{2}:\d{2}:\d{2}\.\d{3}\s-->\s\d{2}:\d{2}:\d{2}\.\d{3}\]`)
	// regexArtifacts matches non-speech markers like [BLANK_AUDIO] or (wind noise)
	regexArtifacts = regexp.MustCompile(`\[[A-Z_ ]+\]|\([a-z ]+\)`)
)

// cleanText strips timestamps and non-speech artifacts the engines emit.
func cleanText(text string) string {
	text = regexTimestamp.ReplaceAllString(text, "")
	text = regexArtifacts.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}
