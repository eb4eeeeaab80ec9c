package app

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/Zebastjan/Syllablaze-sub000/audiocapture"
	"github.com/Zebastjan/Syllablaze-sub000/audioproc"
	"github.com/Zebastjan/Syllablaze-sub000/config"
	"github.com/Zebastjan/Syllablaze-sub000/internal/types"
	"github.com/Zebastjan/Syllablaze-sub000/langdetect"
	"github.com/Zebastjan/Syllablaze-sub000/stt"
)

// Controller drives the capture–resample–transcribe pipeline. It owns the
// state machine; collaborators interact only through its command methods and
// the emitted events.
type Controller struct {
	cfg     *config.Config
	capture audiocapture.Capturer
	worker  *stt.Worker
	emit    EmitFunc

	machine *Machine

	mu         sync.Mutex
	outcome    *outcome
	durationMS int64 // duration of the audio currently being transcribed
}

// outcome is the pending terminal event for the in-flight transcription,
// emitted exactly once when the machine returns to Idle.
type outcome struct {
	transcript *types.Transcript
	failure    *types.Failure
}

// NewController wires the pipeline together. emit must be non-nil.
func NewController(cfg *config.Config, capture audiocapture.Capturer, worker *stt.Worker, emit EmitFunc) *Controller {
	c := &Controller{
		cfg:     cfg,
		capture: capture,
		worker:  worker,
		emit:    emit,
	}
	c.machine = NewMachine(c.apply, func(from, to State) {
		c.emit(EventStateChanged, types.StateUpdate{State: to.String()})
	})

	capture.OnVolume(func(v audiocapture.VolumeSample) {
		c.emit(EventVolumeChanged, types.VolumeUpdate{Value: v.Value, Seq: v.Seq})
	})
	capture.OnError(c.handleCaptureError)

	worker.OnProgress(func(id, text string) {
		c.emit(EventTranscriptionProgress, types.Progress{ID: id, Text: text})
	})
	worker.OnResult(c.handleResult)
	worker.OnError(c.handleWorkerError)

	return c
}

// State returns the current application state.
func (c *Controller) State() State { return c.machine.State() }

// StartRecording begins a capture session. A no-op unless Idle.
func (c *Controller) StartRecording() { c.machine.Dispatch(CmdStart) }

// StopRecording seals the session and hands it to transcription. A no-op
// unless Recording.
func (c *Controller) StopRecording() { c.machine.Dispatch(CmdStop) }

// ToggleRecording starts or stops depending on the current state.
func (c *Controller) ToggleRecording() {
	if c.machine.State() == StateRecording {
		c.StopRecording()
	} else {
		c.StartRecording()
	}
}

// CancelTranscription cancels the in-flight transcription, if any. The
// request still terminates with exactly one failure event.
func (c *Controller) CancelTranscription() { c.worker.Cancel() }

// Shutdown discards any active recording and closes the worker with its
// bounded wait.
func (c *Controller) Shutdown() {
	if c.machine.State() == StateRecording {
		if _, err := c.capture.Stop(); err != nil && !errors.Is(err, audiocapture.ErrNotRecording) {
			slog.Error("stop capture at shutdown", "error", err)
		}
	}
	if err := c.worker.Close(); err != nil {
		slog.Error("close worker", "error", err)
	}
}

// apply is the machine's transition function: it performs each command's
// side effects and decides the resulting state.
func (c *Controller) apply(from State, cmd Command) (State, bool) {
	switch cmd {
	case CmdStart:
		if from != StateIdle {
			return from, false
		}
		if err := c.capture.Start(c.cfg.InputDevice, c.cfg.SampleRateMode); err != nil {
			// No session was created; stay Idle.
			slog.Error("start capture", "error", err)
			c.emit(EventCaptureFailed, types.Failure{Stage: StageCapture, Reason: err.Error()})
			return from, false
		}
		slog.Info("recording started", "device", c.cfg.InputDevice)
		return StateRecording, true

	case CmdStop:
		if from != StateRecording {
			return from, false
		}
		session, err := c.capture.Stop()
		if err != nil {
			// Mid-stream failure: the partial buffer is already gone.
			slog.Error("stop capture", "error", err)
			c.emit(EventCaptureFailed, types.Failure{Stage: StageCapture, Reason: err.Error()})
			return StateIdle, true
		}
		go c.transcribe(session)
		return StateProcessing, true

	case CmdComplete:
		if from != StateProcessing {
			return from, false
		}
		c.flushOutcome()
		return StateIdle, true

	case CmdFatal:
		if from == StateRecording {
			if _, err := c.capture.Stop(); err != nil && !errors.Is(err, audiocapture.ErrNotRecording) {
				slog.Error("discard capture session", "error", err)
			}
		}
		c.flushOutcome()
		return StateIdle, from != StateIdle
	}
	return from, false
}

// transcribe normalizes the sealed session and submits it to the worker.
// Runs off the coordinating thread; processing is CPU-bound.
func (c *Controller) transcribe(session *audiocapture.Session) {
	audio, err := audioproc.Process(session)
	if err != nil {
		c.finishWithFailure(StageProcessing, err)
		return
	}

	c.mu.Lock()
	c.durationMS = audio.Duration().Milliseconds()
	c.mu.Unlock()

	req := stt.Request{
		ID:       uuid.New().String(),
		Samples:  audio.Samples,
		Language: c.cfg.Language,
		Model:    c.cfg.Model,
	}
	if err := c.worker.Submit(req); err != nil {
		c.finishWithFailure(StageTranscription, err)
	}
}

func (c *Controller) handleResult(res stt.Result) {
	code := c.cfg.Language
	name := ""
	if code == "" || code == "auto" {
		code, name = langdetect.Detect(res.Text)
	}

	c.mu.Lock()
	duration := c.durationMS
	c.outcome = &outcome{transcript: &types.Transcript{
		ID:         res.ID,
		Text:       res.Text,
		Language:   code,
		LangName:   name,
		DurationMS: duration,
		Elapsed:    res.Elapsed.Seconds(),
	}}
	c.mu.Unlock()

	slog.Info("transcription completed", "id", res.ID,
		"chars", len(res.Text), "elapsed", res.Elapsed)
	c.machine.Dispatch(CmdComplete)
}

func (c *Controller) handleWorkerError(id string, err error) {
	stage := StageTranscription
	var mle *stt.ModelLoadError
	if errors.As(err, &mle) {
		stage = StageModel
	}

	reason := err.Error()
	if errors.Is(err, context.Canceled) {
		reason = "cancelled"
	}

	slog.Error("transcription failed", "id", id, "stage", stage, "error", err)
	c.setFailure(stage, reason)
	c.machine.Dispatch(CmdComplete)
}

// handleCaptureError receives unrecoverable mid-capture errors from the
// capture engine.
func (c *Controller) handleCaptureError(err error) {
	slog.Error("capture aborted", "error", err)
	c.setFailure(StageCapture, err.Error())
	c.machine.Dispatch(CmdFatal)
}

func (c *Controller) finishWithFailure(stage string, err error) {
	slog.Error("pipeline failure", "stage", stage, "error", err)
	c.setFailure(stage, err.Error())
	c.machine.Dispatch(CmdComplete)
}

func (c *Controller) setFailure(stage, reason string) {
	c.mu.Lock()
	c.outcome = &outcome{failure: &types.Failure{Stage: stage, Reason: reason}}
	c.mu.Unlock()
}

// flushOutcome emits the stored terminal event, if any, exactly once.
func (c *Controller) flushOutcome() {
	c.mu.Lock()
	out := c.outcome
	c.outcome = nil
	c.durationMS = 0
	c.mu.Unlock()

	if out == nil {
		return
	}
	switch {
	case out.transcript != nil:
		c.emit(EventTranscriptionCompleted, *out.transcript)
	case out.failure != nil:
		if out.failure.Stage == StageCapture {
			c.emit(EventCaptureFailed, *out.failure)
		} else {
			c.emit(EventTranscriptionFailed, *out.failure)
		}
	}
}
