package stt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultShutdownWait bounds how long Close waits for an in-flight task.
const DefaultShutdownWait = 5 * time.Second

// Request is one transcription attempt.
type Request struct {
	ID       string
	Samples  []float32 // mono, 16 kHz, [-1,1]
	Language string    // hint, empty = auto-detect
	Model    string    // model name for the engine
}

// Result is a successful transcription.
type Result struct {
	ID      string
	Text    string
	Elapsed time.Duration
}

// Worker runs transcription requests against an Engine, one at a time. It
// owns the loaded model: the model is loaded lazily, cached by name, and
// reloaded only when the requested name changes or InvalidateModel is
// called. Exactly one of OnResult or OnError fires per submitted request;
// OnProgress may fire zero or more times first.
type Worker struct {
	engine       Engine
	shutdownWait time.Duration

	mu   sync.Mutex
	task *task

	modelMu   sync.Mutex
	model     Model
	modelName string

	handlerMu  sync.RWMutex
	onProgress func(id, text string)
	onResult   func(Result)
	onError    func(id string, err error)
}

type task struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}
}

// NewWorker creates a Worker for the given engine.
func NewWorker(engine Engine) *Worker {
	return &Worker{engine: engine, shutdownWait: DefaultShutdownWait}
}

// OnProgress registers the partial-transcript callback.
func (w *Worker) OnProgress(cb func(id, text string)) {
	w.handlerMu.Lock()
	w.onProgress = cb
	w.handlerMu.Unlock()
}

// OnResult registers the success callback.
func (w *Worker) OnResult(cb func(Result)) {
	w.handlerMu.Lock()
	w.onResult = cb
	w.handlerMu.Unlock()
}

// OnError registers the failure callback.
func (w *Worker) OnError(cb func(id string, err error)) {
	w.handlerMu.Lock()
	w.onError = cb
	w.handlerMu.Unlock()
}

// Busy reports whether a request is in flight.
func (w *Worker) Busy() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.task != nil
}

// Submit starts a transcription task. It returns ErrBusy while a previous
// request is still running; the caller must wait for its terminal event or
// call Cancel first.
func (w *Worker) Submit(req Request) error {
	w.mu.Lock()
	if w.task != nil {
		w.mu.Unlock()
		return ErrBusy
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &task{id: req.ID, cancel: cancel, done: make(chan struct{})}
	w.task = t
	w.mu.Unlock()

	go w.run(ctx, t, req)
	return nil
}

func (w *Worker) run(ctx context.Context, t *task, req Request) {
	defer close(t.done)
	// Task-scoped cleanup: drop the slot and the context so repeated short
	// recordings do not leak handles. The cached model is never released
	// here.
	defer func() {
		w.mu.Lock()
		if w.task == t {
			w.task = nil
		}
		w.mu.Unlock()
		t.cancel()
	}()

	started := time.Now()

	model, err := w.ensureModel(req.Model)
	if err != nil {
		w.fail(t.id, err)
		return
	}

	text, err := model.Transcribe(ctx, req.Samples, req.Language, func(partial string) {
		w.progress(t.id, partial)
	})

	switch {
	case ctx.Err() != nil:
		// Cancelled or superseded: the result, if any, is discarded.
		w.fail(t.id, context.Canceled)
	case err != nil:
		w.fail(t.id, fmt.Errorf("transcription failed: %w", err))
	case text == "":
		w.fail(t.id, ErrNoSpeech)
	default:
		w.succeed(Result{ID: t.id, Text: text, Elapsed: time.Since(started)})
	}
}

// ensureModel returns the cached model, loading or reloading as needed.
func (w *Worker) ensureModel(name string) (Model, error) {
	w.modelMu.Lock()
	defer w.modelMu.Unlock()

	if w.model != nil && w.modelName == name {
		return w.model, nil
	}

	if w.model != nil {
		slog.Info("model changed, releasing cached model", "old", w.modelName, "new", name)
		if err := w.model.Close(); err != nil {
			slog.Warn("close cached model", "error", err)
		}
		w.model = nil
		w.modelName = ""
	}

	model, err := w.engine.LoadModel(name)
	if err != nil {
		var mle *ModelLoadError
		if errors.As(err, &mle) {
			return nil, err
		}
		return nil, &ModelLoadError{Engine: w.engine.Name(), Model: name, Err: err}
	}

	w.model = model
	w.modelName = name
	return model, nil
}

// InvalidateModel drops the cached model so the next request reloads it.
func (w *Worker) InvalidateModel() {
	w.modelMu.Lock()
	defer w.modelMu.Unlock()

	if w.model == nil {
		return
	}
	if err := w.model.Close(); err != nil {
		slog.Warn("close cached model", "error", err)
	}
	w.model = nil
	w.modelName = ""
}

// Cancel requests cooperative cancellation of the in-flight task, if any.
// The task still emits its single terminal event (context.Canceled).
func (w *Worker) Cancel() {
	w.mu.Lock()
	t := w.task
	w.mu.Unlock()

	if t != nil {
		t.cancel()
	}
}

// Close cancels any in-flight task and waits up to the shutdown bound for it
// to unwind. A task that does not unwind in time is abandoned and logged;
// shutdown proceeds regardless.
func (w *Worker) Close() error {
	w.mu.Lock()
	t := w.task
	w.mu.Unlock()

	if t != nil {
		t.cancel()
		select {
		case <-t.done:
		case <-time.After(w.shutdownWait):
			slog.Error("transcription task did not unwind before shutdown",
				"id", t.id, "waited", w.shutdownWait)
			return fmt.Errorf("task %s leaked at shutdown", t.id)
		}
	}

	w.InvalidateModel()
	return nil
}

func (w *Worker) progress(id, text string) {
	w.handlerMu.RLock()
	cb := w.onProgress
	w.handlerMu.RUnlock()
	if cb != nil {
		cb(id, text)
	}
}

func (w *Worker) succeed(res Result) {
	w.handlerMu.RLock()
	cb := w.onResult
	w.handlerMu.RUnlock()
	if cb != nil {
		cb(res)
	}
}

func (w *Worker) fail(id string, err error) {
	w.handlerMu.RLock()
	cb := w.onError
	w.handlerMu.RUnlock()
	if cb != nil {
		cb(id, err)
	}
}
