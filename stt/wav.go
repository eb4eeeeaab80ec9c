package stt

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/google/uuid"
)

// TargetRate is the sample rate engines expect, re-exported for callers
// that only import stt.
const TargetRate = 16000

// writeTempWAV encodes float32 samples as a mono 16-bit PCM WAV file in the
// temp directory and returns its path. The caller removes the file.
func writeTempWAV(samples []float32, rate int) (string, error) {
	path := filepath.Join(os.TempDir(), fmt.Sprintf("syllablaze_%s.wav", uuid.New().String()))

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create temp wav: %w", err)
	}

	enc := wav.NewEncoder(f, rate, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: rate},
		SourceBitDepth: 16,
		Data:           make([]int, len(samples)),
	}
	for i, s := range samples {
		buf.Data[i] = int(max(-1, min(1, s)) * 32767)
	}

	if err := enc.Write(buf); err != nil {
		enc.Close()
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("write wav data: %w", err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("finalize wav: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close wav: %w", err)
	}

	return path, nil
}
