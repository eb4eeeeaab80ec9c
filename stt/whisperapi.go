package stt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const defaultAPIModel = "whisper-1"

// WhisperAPI is the remote inference engine backed by the OpenAI audio
// transcriptions endpoint.
type WhisperAPI struct {
	apiKey string
	client openai.Client
}

// NewWhisperAPI creates the remote engine.
func NewWhisperAPI(apiKey string) *WhisperAPI {
	return &WhisperAPI{
		apiKey: apiKey,
		client: openai.NewClient(option.WithAPIKey(apiKey)),
	}
}

func (e *WhisperAPI) Name() string { return "whisper-api" }

// LoadModel validates the credentials; the model itself lives server-side,
// so there is nothing to download or cache beyond the handle.
func (e *WhisperAPI) LoadModel(name string) (Model, error) {
	if e.apiKey == "" {
		return nil, &ModelLoadError{Engine: e.Name(), Model: name, Err: errors.New("api key required")}
	}
	if name == "" {
		name = defaultAPIModel
	}
	return &apiModel{client: e.client, name: name}, nil
}

type apiModel struct {
	client openai.Client
	name   string
}

// Transcribe uploads the audio as a 16-bit WAV and returns the transcript.
// No incremental progress is available from the API.
func (m *apiModel) Transcribe(ctx context.Context, samples []float32, language string, _ func(text string)) (string, error) {
	path, err := writeTempWAV(samples, TargetRate)
	if err != nil {
		return "", fmt.Errorf("encode audio: %w", err)
	}
	defer os.Remove(path)

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open audio file: %w", err)
	}
	defer f.Close()

	params := openai.AudioTranscriptionNewParams{
		File:  f,
		Model: openai.AudioModel(m.name),
	}
	// The API rejects "auto"; omitting the field means auto-detect.
	if language != "" && language != "auto" {
		params.Language = openai.String(language)
	}

	resp, err := m.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("transcription request: %w", err)
	}

	slog.Debug("api transcription done", "model", m.name, "chars", len(resp.Text))
	return cleanText(resp.Text), nil
}

func (m *apiModel) Close() error { return nil }
