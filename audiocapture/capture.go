// Package audiocapture provides microphone capture using PortAudio.
package audiocapture

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// TargetRate is the sample rate the transcription engine expects.
const TargetRate = 16000

// ErrAlreadyRecording is returned when trying to start capture while a
// session is active.
var ErrAlreadyRecording = errors.New("already recording")

// ErrNotRecording is returned when trying to stop capture while no session
// is active.
var ErrNotRecording = errors.New("not recording")

// ErrBufferOverrun indicates the frame queue overflowed beyond recovery and
// the session was aborted.
var ErrBufferOverrun = errors.New("capture buffer overrun")

// Sample-rate modes accepted by Start.
const (
	// ModeTarget opens the stream at TargetRate.
	ModeTarget = "target"
	// ModeNative opens the stream at the device's default rate.
	ModeNative = "native"
)

// DeviceError reports a failure to open or configure the input device.
type DeviceError struct {
	Device string
	Err    error
}

func (e *DeviceError) Error() string {
	dev := e.Device
	if dev == "" {
		dev = "default"
	}
	return fmt.Sprintf("open input device %q: %v", dev, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// CaptureError reports a mid-stream failure after recording began. The
// session's partial buffer is discarded when this is surfaced.
type CaptureError struct {
	Reason string
	Err    error
}

func (e *CaptureError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("capture failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("capture failed: %s", e.Reason)
}

func (e *CaptureError) Unwrap() error { return e.Err }

// VolumeSample is a single loudness reading. Delivery is best-effort: order
// is preserved for delivered samples but slow consumers miss updates.
type VolumeSample struct {
	Value float64 // in [0,1]
	Seq   uint64
}

// Session is one contiguous recording interval. Frames are appended only by
// the capture side; Stop seals the session and hands ownership to the caller.
type Session struct {
	ID         string
	Device     string
	SampleRate int // rate the stream was opened at
	Channels   int

	frames  [][]int16
	samples int
	active  bool
}

// NewSession creates an active session recording at the given rate.
func NewSession(device string, sampleRate int) *Session {
	return &Session{
		ID:         uuid.New().String(),
		Device:     device,
		SampleRate: sampleRate,
		Channels:   1,
		active:     true,
	}
}

// Append adds a raw chunk. Only the capture side calls this, and never after
// the session is sealed.
func (s *Session) Append(chunk []int16) {
	s.frames = append(s.frames, chunk)
	s.samples += len(chunk)
}

// Active reports whether the session is still receiving frames.
func (s *Session) Active() bool { return s.active }

// Frames returns the buffered raw chunks in capture order.
func (s *Session) Frames() [][]int16 { return s.frames }

// Samples returns the total number of buffered samples.
func (s *Session) Samples() int { return s.samples }

// Duration returns the recorded duration based on the stream rate.
func (s *Session) Duration() time.Duration {
	if s.SampleRate == 0 {
		return 0
	}
	return time.Duration(float64(s.samples) / float64(s.SampleRate) * float64(time.Second))
}

// Capturer is the capture engine seam the application coordinates against.
type Capturer interface {
	Start(device, mode string) error
	Stop() (*Session, error)
	OnVolume(func(VolumeSample))
	OnError(func(error))
}

// stream is the platform stream owned by an active session.
type stream interface {
	Start() error
	Stop() error
	Close() error
}

// openFunc opens an input stream. rate 0 means the device's native rate; the
// actual rate used is returned. The callback runs on the audio subsystem's
// real-time thread.
type openFunc func(device string, rate float64, framesPerBuffer int, cb func([]int16)) (stream, float64, error)

const (
	framesPerBuffer = 1024
	frameQueueSize  = 256
	volumeQueueSize = 16

	// maxDroppedChunks is how many frame-queue overruns are tolerated
	// before the session is aborted as corrupt.
	maxDroppedChunks = 8
)

// Recorder captures microphone audio into a Session while emitting live
// volume readings. At most one session is active at a time.
type Recorder struct {
	open openFunc

	mu      sync.Mutex
	stream  stream
	session *Session
	frames  chan []int16
	volumes chan VolumeSample
	accDone chan struct{}
	volDone chan struct{}

	seq     atomic.Uint64
	dropped atomic.Uint64
	aborted atomic.Bool

	handlerMu sync.RWMutex
	onVolume  func(VolumeSample)
	onError   func(error)
}

// New creates a Recorder backed by PortAudio. The caller is responsible for
// portaudio.Initialize/Terminate around the process lifetime.
func New() *Recorder {
	return &Recorder{open: openPortAudio}
}

// newWithOpener is the test seam.
func newWithOpener(open openFunc) *Recorder {
	return &Recorder{open: open}
}

// OnVolume registers the volume callback. It is invoked from a forwarder
// goroutine, never from the real-time thread.
func (r *Recorder) OnVolume(cb func(VolumeSample)) {
	r.handlerMu.Lock()
	r.onVolume = cb
	r.handlerMu.Unlock()
}

// OnError registers the callback for unrecoverable mid-capture errors.
func (r *Recorder) OnError(cb func(error)) {
	r.handlerMu.Lock()
	r.onError = cb
	r.handlerMu.Unlock()
}

// Start opens the input stream and begins a new capture session.
// It returns a *DeviceError, with no session created, if the device cannot
// be opened.
func (r *Recorder) Start(device, mode string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session != nil {
		return ErrAlreadyRecording
	}

	var rate float64
	if mode != ModeNative {
		rate = TargetRate
	}

	frames := make(chan []int16, frameQueueSize)
	volumes := make(chan VolumeSample, volumeQueueSize)
	r.seq.Store(0)
	r.dropped.Store(0)
	r.aborted.Store(false)

	stm, actualRate, err := r.open(device, rate, framesPerBuffer, func(in []int16) {
		r.handleChunk(in, frames, volumes)
	})
	if err != nil {
		return &DeviceError{Device: device, Err: err}
	}

	session := NewSession(device, int(actualRate))

	accDone := make(chan struct{})
	go func() {
		defer close(accDone)
		for chunk := range frames {
			session.Append(chunk)
		}
	}()

	volDone := make(chan struct{})
	go func() {
		defer close(volDone)
		for v := range volumes {
			r.handlerMu.RLock()
			cb := r.onVolume
			r.handlerMu.RUnlock()
			if cb != nil {
				cb(v)
			}
		}
	}()

	if err := stm.Start(); err != nil {
		close(frames)
		<-accDone
		close(volumes)
		<-volDone
		stm.Close()
		return &DeviceError{Device: device, Err: err}
	}

	r.stream = stm
	r.session = session
	r.frames = frames
	r.volumes = volumes
	r.accDone = accDone
	r.volDone = volDone
	return nil
}

// handleChunk runs on the real-time callback thread. It must stay bounded
// and allocation-light: one copy, one level computation, two non-blocking
// sends.
func (r *Recorder) handleChunk(in []int16, frames chan []int16, volumes chan VolumeSample) {
	if r.aborted.Load() {
		return
	}

	chunk := make([]int16, len(in))
	copy(chunk, in)

	select {
	case frames <- chunk:
	default:
		if r.dropped.Add(1) >= maxDroppedChunks && !r.aborted.Swap(true) {
			go r.reportError(&CaptureError{Reason: "frame queue overrun", Err: ErrBufferOverrun})
		}
		return
	}

	sample := VolumeSample{Value: Level(chunk), Seq: r.seq.Add(1)}
	select {
	case volumes <- sample:
	default:
		// Consumer is behind; volume updates are lossy on purpose.
	}
}

func (r *Recorder) reportError(err error) {
	r.handlerMu.RLock()
	cb := r.onError
	r.handlerMu.RUnlock()
	if cb != nil {
		cb(err)
	}
}

// Stop seals and returns the active session. The returned session is no
// longer mutated by the capture side; ownership moves to the caller. If the
// session was aborted mid-stream the partial buffer is discarded and a
// *CaptureError is returned instead.
func (r *Recorder) Stop() (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session == nil {
		return nil, ErrNotRecording
	}

	if err := r.stream.Stop(); err != nil {
		slog.Error("stop stream", "error", err)
	}
	if err := r.stream.Close(); err != nil {
		slog.Error("close stream", "error", err)
	}
	r.stream = nil

	close(r.frames)
	<-r.accDone
	close(r.volumes)
	<-r.volDone
	r.frames = nil
	r.volumes = nil

	session := r.session
	r.session = nil
	session.active = false

	if r.aborted.Load() {
		return nil, &CaptureError{Reason: "frame queue overrun", Err: ErrBufferOverrun}
	}
	if n := r.dropped.Load(); n > 0 {
		slog.Warn("dropped capture chunks", "count", n, "session", session.ID)
	}
	slog.Info("capture stopped", "session", session.ID,
		"samples", session.samples, "duration", session.Duration())
	return session, nil
}
