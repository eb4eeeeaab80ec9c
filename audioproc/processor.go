// Package audioproc converts raw capture sessions into the normalized,
// fixed-rate signal the transcription engine consumes.
package audioproc

import (
	"errors"
	"log/slog"
	"math"
	"time"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/Zebastjan/Syllablaze-sub000/audiocapture"
)

// TargetRate is the output sample rate in Hz.
const TargetRate = audiocapture.TargetRate

// ErrEmptySession is returned when a session holds no audio.
var ErrEmptySession = errors.New("capture session is empty")

// NormalizedAudio is a mono float32 signal in [-1,1] at TargetRate.
// Immutable after creation; owned by whichever consumer it is handed to.
type NormalizedAudio struct {
	Samples    []float32
	SampleRate int
}

// Duration returns the signal length as wall-clock time.
func (a NormalizedAudio) Duration() time.Duration {
	if a.SampleRate == 0 {
		return 0
	}
	return time.Duration(float64(len(a.Samples)) / float64(a.SampleRate) * float64(time.Second))
}

// Process concatenates a sealed session's frames, resamples to TargetRate
// when needed and normalizes to floating point. It is pure and safe to run
// off the capture thread.
func Process(session *audiocapture.Session) (NormalizedAudio, error) {
	if session == nil || session.Samples() == 0 {
		return NormalizedAudio{}, ErrEmptySession
	}

	// Pre-sized single pass; frames stay untouched.
	signal := make([]float64, 0, session.Samples())
	for _, frame := range session.Frames() {
		for _, s := range frame {
			signal = append(signal, float64(s)/fullScale)
		}
	}

	rate := session.SampleRate
	if rate == 0 {
		slog.Warn("session has no recorded sample rate, assuming target rate",
			"session", session.ID)
		rate = TargetRate
	}

	if rate != TargetRate {
		signal = resample(signal, rate, TargetRate)
	}

	out := make([]float32, len(signal))
	for i, s := range signal {
		// The resampler can overshoot full scale near sharp edges.
		out[i] = float32(max(-1, min(1, s)))
	}

	return NormalizedAudio{Samples: out, SampleRate: TargetRate}, nil
}

const fullScale = 32768.0

// resample converts a signal between rates with an FFT-based band-limited
// resampler: transform, truncate or zero-pad the spectrum to the new length,
// transform back. Output length is round(len(in) * to / from).
func resample(in []float64, from, to int) []float64 {
	n := len(in)
	outLen := int(math.Round(float64(n) * float64(to) / float64(from)))
	if outLen <= 0 {
		return nil
	}

	fwd := fourier.NewFFT(n)
	coeff := fwd.Coefficients(nil, in)

	inv := fourier.NewFFT(outLen)
	outCoeff := make([]complex128, outLen/2+1)
	for i := range min(len(coeff), len(outCoeff)) {
		outCoeff[i] = coeff[i]
	}

	out := inv.Sequence(nil, outCoeff)
	// gonum's inverse is unnormalized; dividing by the input length also
	// folds in the outLen/n amplitude correction for the length change.
	scale := 1 / float64(n)
	for i := range out {
		out[i] *= scale
	}
	return out
}
