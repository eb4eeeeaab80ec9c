package stt

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	whisper "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

// WhisperCPP is the local inference engine backed by whisper.cpp.
type WhisperCPP struct {
	modelDir string
}

// NewWhisperCPP creates the local engine. Models are resolved under
// modelDir as ggml-<name>.bin unless the name is already a path to a model
// file.
func NewWhisperCPP(modelDir string) *WhisperCPP {
	return &WhisperCPP{modelDir: modelDir}
}

func (e *WhisperCPP) Name() string { return "whisper-cpp" }

// LoadModel loads a ggml model into memory. This is the expensive step; the
// worker caches the returned Model across requests.
func (e *WhisperCPP) LoadModel(name string) (Model, error) {
	path := e.modelPath(name)
	if _, err := os.Stat(path); err != nil {
		return nil, &ModelLoadError{Engine: e.Name(), Model: name, Err: err}
	}

	m, err := whisper.New(path)
	if err != nil {
		return nil, &ModelLoadError{Engine: e.Name(), Model: name, Err: err}
	}

	slog.Info("whisper model loaded", "model", name, "path", path)
	return &whisperModel{model: m, name: name}, nil
}

func (e *WhisperCPP) modelPath(name string) string {
	if strings.HasSuffix(name, ".bin") {
		return name
	}
	return filepath.Join(e.modelDir, fmt.Sprintf("ggml-%s.bin", name))
}

type whisperModel struct {
	model whisper.Model
	name  string
}

// Transcribe runs whisper.cpp over the samples. Cancellation is cooperative:
// the encoder-begin callback aborts further processing once ctx is done.
func (m *whisperModel) Transcribe(ctx context.Context, samples []float32, language string, progress func(text string)) (string, error) {
	wctx, err := m.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("create whisper context: %w", err)
	}

	if language == "" {
		language = "auto"
	}
	if err := wctx.SetLanguage(language); err != nil {
		return "", fmt.Errorf("set language %q: %w", language, err)
	}

	var parts []string
	onSegment := func(seg whisper.Segment) {
		parts = append(parts, seg.Text)
		if progress != nil {
			progress(cleanText(strings.Join(parts, " ")))
		}
	}
	onEncoderBegin := func() bool {
		return ctx.Err() == nil
	}

	if err := wctx.Process(samples, onEncoderBegin, onSegment, nil); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("whisper process: %w", err)
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	return cleanText(strings.Join(parts, " ")), nil
}

func (m *whisperModel) Close() error {
	return m.model.Close()
}
