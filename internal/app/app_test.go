package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Zebastjan/Syllablaze-sub000/audiocapture"
	"github.com/Zebastjan/Syllablaze-sub000/config"
	"github.com/Zebastjan/Syllablaze-sub000/internal/types"
	"github.com/Zebastjan/Syllablaze-sub000/stt"
)

type fakeCapturer struct {
	mu       sync.Mutex
	startErr error
	stopErr  error
	session  *audiocapture.Session
	starts   int
	stops    int
	onVolume func(audiocapture.VolumeSample)
	onError  func(error)
}

func (f *fakeCapturer) Start(device, mode string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.starts++
	return nil
}

func (f *fakeCapturer) Stop() (*audiocapture.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	if f.stopErr != nil {
		return nil, f.stopErr
	}
	return f.session, nil
}

func (f *fakeCapturer) OnVolume(cb func(audiocapture.VolumeSample)) {
	f.mu.Lock()
	f.onVolume = cb
	f.mu.Unlock()
}

func (f *fakeCapturer) OnError(cb func(error)) {
	f.mu.Lock()
	f.onError = cb
	f.mu.Unlock()
}

func (f *fakeCapturer) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts
}

func (f *fakeCapturer) emitVolume(v audiocapture.VolumeSample) {
	f.mu.Lock()
	cb := f.onVolume
	f.mu.Unlock()
	cb(v)
}

func (f *fakeCapturer) emitError(err error) {
	f.mu.Lock()
	cb := f.onError
	f.mu.Unlock()
	cb(err)
}

type recordedEvent struct {
	name string
	data any
}

type eventRecorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *eventRecorder) emit(name string, data any) {
	r.mu.Lock()
	r.events = append(r.events, recordedEvent{name, data})
	r.mu.Unlock()
}

func (r *eventRecorder) count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.name == name {
			n++
		}
	}
	return n
}

func (r *eventRecorder) last(name string) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].name == name {
			return r.events[i].data, true
		}
	}
	return nil, false
}

type appModel struct {
	text  string
	block chan struct{}
}

func (m *appModel) Transcribe(ctx context.Context, samples []float32, language string, progress func(string)) (string, error) {
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return m.text, nil
}

func (m *appModel) Close() error { return nil }

type appEngine struct {
	model   *appModel
	loadErr error
}

func (e *appEngine) Name() string { return "stub" }

func (e *appEngine) LoadModel(name string) (stt.Model, error) {
	if e.loadErr != nil {
		return nil, e.loadErr
	}
	return e.model, nil
}

func silentSession(seconds int) *audiocapture.Session {
	s := audiocapture.NewSession("", audiocapture.TargetRate)
	s.Append(make([]int16, seconds*audiocapture.TargetRate))
	return s
}

func newTestController(t *testing.T, capture *fakeCapturer, engine stt.Engine) (*Controller, *eventRecorder, *stt.Worker) {
	t.Helper()
	cfg := &config.Config{SampleRateMode: config.RateModeTarget, Model: "base"}
	worker := stt.NewWorker(engine)
	rec := &eventRecorder{}
	c := NewController(cfg, capture, worker, rec.emit)
	t.Cleanup(func() { c.Shutdown() })
	return c, rec, worker
}

func waitForState(t *testing.T, c *Controller, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for state %v, still %v", want, c.State())
}

func TestControllerHappyPath(t *testing.T) {
	capture := &fakeCapturer{session: silentSession(1)}
	engine := &appEngine{model: &appModel{text: "The quick brown fox jumps over the lazy dog."}}
	c, rec, _ := newTestController(t, capture, engine)

	c.StartRecording()
	if got := c.State(); got != StateRecording {
		t.Fatalf("State() = %v, want recording", got)
	}

	c.StopRecording()
	waitForState(t, c, StateIdle)

	if got := rec.count(EventTranscriptionCompleted); got != 1 {
		t.Fatalf("completed events = %d, want 1", got)
	}
	if got := rec.count(EventTranscriptionFailed); got != 0 {
		t.Errorf("failed events = %d, want 0", got)
	}

	data, _ := rec.last(EventTranscriptionCompleted)
	tr, ok := data.(types.Transcript)
	if !ok {
		t.Fatalf("completed payload = %T, want types.Transcript", data)
	}
	if tr.Text != "The quick brown fox jumps over the lazy dog." {
		t.Errorf("Transcript.Text = %q", tr.Text)
	}
	if tr.Language != "en" || tr.LangName != "English" {
		t.Errorf("detected language = %q/%q, want en/English", tr.Language, tr.LangName)
	}
	if tr.DurationMS != 1000 {
		t.Errorf("Transcript.DurationMS = %d, want 1000", tr.DurationMS)
	}
}

func TestControllerStateEvents(t *testing.T) {
	capture := &fakeCapturer{session: silentSession(1)}
	engine := &appEngine{model: &appModel{text: "hello"}}
	c, rec, _ := newTestController(t, capture, engine)

	c.StartRecording()
	c.StopRecording()
	waitForState(t, c, StateIdle)

	rec.mu.Lock()
	var states []string
	for _, e := range rec.events {
		if e.name == EventStateChanged {
			states = append(states, e.data.(types.StateUpdate).State)
		}
	}
	rec.mu.Unlock()

	want := []string{"recording", "processing", "idle"}
	if len(states) != len(want) {
		t.Fatalf("state events = %v, want %v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Errorf("state event %d = %q, want %q", i, states[i], want[i])
		}
	}
}

func TestControllerStartWhileRecording(t *testing.T) {
	capture := &fakeCapturer{session: silentSession(1)}
	engine := &appEngine{model: &appModel{text: "hello"}}
	c, _, _ := newTestController(t, capture, engine)

	c.StartRecording()
	c.StartRecording()
	c.StartRecording()

	if got := capture.startCount(); got != 1 {
		t.Errorf("capture started %d times, want 1", got)
	}
	if got := c.State(); got != StateRecording {
		t.Errorf("State() = %v, want recording", got)
	}
}

func TestControllerDeviceError(t *testing.T) {
	capture := &fakeCapturer{
		startErr: &audiocapture.DeviceError{Device: "bogus", Err: errors.New("no such device")},
	}
	engine := &appEngine{model: &appModel{text: "hello"}}
	c, rec, _ := newTestController(t, capture, engine)

	c.StartRecording()

	// No session was created, so the state never leaves Idle.
	if got := c.State(); got != StateIdle {
		t.Errorf("State() = %v, want idle", got)
	}
	if got := rec.count(EventStateChanged); got != 0 {
		t.Errorf("state events = %d, want 0", got)
	}

	data, ok := rec.last(EventCaptureFailed)
	if !ok {
		t.Fatal("no capture-failed event")
	}
	if f := data.(types.Failure); f.Stage != StageCapture {
		t.Errorf("failure stage = %q, want %q", f.Stage, StageCapture)
	}
}

func TestControllerStopError(t *testing.T) {
	capture := &fakeCapturer{
		stopErr: &audiocapture.CaptureError{Reason: "frame queue overrun"},
	}
	engine := &appEngine{model: &appModel{text: "hello"}}
	c, rec, _ := newTestController(t, capture, engine)

	c.StartRecording()
	c.StopRecording()
	waitForState(t, c, StateIdle)

	if got := rec.count(EventCaptureFailed); got != 1 {
		t.Errorf("capture-failed events = %d, want 1", got)
	}
	if got := rec.count(EventTranscriptionCompleted) + rec.count(EventTranscriptionFailed); got != 0 {
		t.Errorf("transcription terminal events = %d, want 0", got)
	}
}

func TestControllerMidCaptureAbort(t *testing.T) {
	capture := &fakeCapturer{session: silentSession(1)}
	engine := &appEngine{model: &appModel{text: "hello"}}
	c, rec, _ := newTestController(t, capture, engine)

	c.StartRecording()
	capture.emitError(&audiocapture.CaptureError{Reason: "frame queue overrun"})
	waitForState(t, c, StateIdle)

	if got := rec.count(EventCaptureFailed); got != 1 {
		t.Errorf("capture-failed events = %d, want 1", got)
	}
}

func TestControllerEmptySession(t *testing.T) {
	capture := &fakeCapturer{session: audiocapture.NewSession("", audiocapture.TargetRate)}
	engine := &appEngine{model: &appModel{text: "hello"}}
	c, rec, _ := newTestController(t, capture, engine)

	c.StartRecording()
	c.StopRecording()
	waitForState(t, c, StateIdle)

	data, ok := rec.last(EventTranscriptionFailed)
	if !ok {
		t.Fatal("no transcription-failed event")
	}
	if f := data.(types.Failure); f.Stage != StageProcessing {
		t.Errorf("failure stage = %q, want %q", f.Stage, StageProcessing)
	}
}

func TestControllerSilenceYieldsNoSpeech(t *testing.T) {
	// Three seconds of silence: the engine produces no text and the user
	// gets a no-speech failure, after which the app is Idle and reusable.
	capture := &fakeCapturer{session: silentSession(3)}
	engine := &appEngine{model: &appModel{text: ""}}
	c, rec, _ := newTestController(t, capture, engine)

	c.StartRecording()
	capture.emitVolume(audiocapture.VolumeSample{Value: 0, Seq: 1})
	c.StopRecording()
	waitForState(t, c, StateIdle)

	data, ok := rec.last(EventTranscriptionFailed)
	if !ok {
		t.Fatal("no transcription-failed event")
	}
	f := data.(types.Failure)
	if f.Stage != StageTranscription {
		t.Errorf("failure stage = %q, want %q", f.Stage, StageTranscription)
	}
	if !strings.Contains(f.Reason, "no speech detected") {
		t.Errorf("failure reason = %q, want mention of no speech", f.Reason)
	}
	if vol, ok := rec.last(EventVolumeChanged); !ok {
		t.Error("no volume event forwarded")
	} else if v := vol.(types.VolumeUpdate); v.Value != 0 {
		t.Errorf("volume for silence = %v, want 0", v.Value)
	}

	// A fresh recording still works after the failure.
	c.StartRecording()
	if got := c.State(); got != StateRecording {
		t.Errorf("State() after retry = %v, want recording", got)
	}
	c.StopRecording()
	waitForState(t, c, StateIdle)
}

func TestControllerModelLoadFailure(t *testing.T) {
	capture := &fakeCapturer{session: silentSession(1)}
	engine := &appEngine{loadErr: errors.New("model file missing")}
	c, rec, _ := newTestController(t, capture, engine)

	c.StartRecording()
	c.StopRecording()
	waitForState(t, c, StateIdle)

	data, ok := rec.last(EventTranscriptionFailed)
	if !ok {
		t.Fatal("no transcription-failed event")
	}
	if f := data.(types.Failure); f.Stage != StageModel {
		t.Errorf("failure stage = %q, want %q", f.Stage, StageModel)
	}
}

func TestControllerCancel(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	capture := &fakeCapturer{session: silentSession(1)}
	engine := &appEngine{model: &appModel{text: "hello", block: block}}
	c, rec, worker := newTestController(t, capture, engine)

	c.StartRecording()
	c.StopRecording()
	waitForState(t, c, StateProcessing)

	// Cancelling is only meaningful once the request reached the worker.
	deadline := time.Now().Add(2 * time.Second)
	for !worker.Busy() {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for the worker to pick up the request")
		}
		time.Sleep(5 * time.Millisecond)
	}

	c.CancelTranscription()
	waitForState(t, c, StateIdle)

	data, ok := rec.last(EventTranscriptionFailed)
	if !ok {
		t.Fatal("no transcription-failed event")
	}
	if f := data.(types.Failure); f.Reason != "cancelled" {
		t.Errorf("failure reason = %q, want %q", f.Reason, "cancelled")
	}
}

func TestControllerToggle(t *testing.T) {
	capture := &fakeCapturer{session: silentSession(1)}
	engine := &appEngine{model: &appModel{text: "hello"}}
	c, _, _ := newTestController(t, capture, engine)

	c.ToggleRecording()
	if got := c.State(); got != StateRecording {
		t.Fatalf("State() after first toggle = %v, want recording", got)
	}

	c.ToggleRecording()
	waitForState(t, c, StateIdle)
	if got := capture.startCount(); got != 1 {
		t.Errorf("capture started %d times, want 1", got)
	}
}
