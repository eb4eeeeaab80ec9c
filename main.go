// Syllablaze core: capture microphone audio, transcribe it with Whisper,
// and publish the transcript to external collaborators.
package main

import (
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gordonklaus/portaudio"
	"github.com/lmittmann/tint"

	"github.com/Zebastjan/Syllablaze-sub000/audiocapture"
	"github.com/Zebastjan/Syllablaze-sub000/config"
	"github.com/Zebastjan/Syllablaze-sub000/instancelock"
	"github.com/Zebastjan/Syllablaze-sub000/internal/app"
	"github.com/Zebastjan/Syllablaze-sub000/stt"
)

var (
	version = "dev"
	commit  = "none"
)

const lockFileName = "syllablaze.pid"

func main() {
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      slog.LevelInfo,
		TimeFormat: time.Kitchen,
	})))
	slog.Info("starting syllablaze", "version", version, "commit", commit)

	os.Exit(run())
}

func run() int {
	lock, ok := acquireLock()
	if !ok {
		return 1
	}
	defer lock.Release()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		cfg = &config.Config{}
	}

	if err := portaudio.Initialize(); err != nil {
		slog.Error("initialize portaudio", "error", err)
		return 1
	}
	defer func() {
		if err := portaudio.Terminate(); err != nil {
			slog.Error("terminate portaudio", "error", err)
		}
	}()

	worker := stt.NewWorker(newEngine(cfg))
	controller := app.NewController(cfg, audiocapture.New(), worker, emitToLog)
	defer controller.Shutdown()

	// The UI/tray collaborator is external; headless operation is driven by
	// signals: SIGUSR1 toggles recording, SIGUSR2 cancels transcription.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGUSR1, syscall.SIGUSR2, syscall.SIGINT, syscall.SIGTERM)

	for sig := range sigs {
		switch sig {
		case syscall.SIGUSR1:
			controller.ToggleRecording()
		case syscall.SIGUSR2:
			controller.CancelTranscription()
		default:
			slog.Info("shutting down", "signal", sig)
			return 0
		}
	}
	return 0
}

// acquireLock enforces the single-instance guard. Any unexpected error is
// treated as "assume already running" so two instances never both capture.
func acquireLock() (*instancelock.Manager, bool) {
	dir, err := config.Dir()
	if err != nil {
		slog.Error("resolve lock directory", "error", err)
		return nil, false
	}

	lock := instancelock.New(filepath.Join(dir, lockFileName))
	status, err := lock.TryAcquire()
	switch status {
	case instancelock.StatusAcquired:
		return lock, true
	case instancelock.StatusAlreadyRunning:
		slog.Error("another instance is already running")
	default:
		slog.Error("instance lock failed, assuming already running", "error", err)
	}
	return nil, false
}

func newEngine(cfg *config.Config) stt.Engine {
	switch cfg.Engine {
	case config.EngineWhisperAPI:
		slog.Info("using remote transcription engine", "model", cfg.Model)
		return stt.NewWhisperAPI(cfg.APIKey)
	default:
		slog.Info("using local transcription engine", "model", cfg.Model, "dir", cfg.ModelDir)
		return stt.NewWhisperCPP(cfg.ModelDir)
	}
}

// emitToLog is the event sink stand-in for the external UI collaborator.
// Volume updates are suppressed below debug to keep the log readable.
func emitToLog(name string, data any) {
	if name == app.EventVolumeChanged {
		slog.Debug("event", "name", name, "data", data)
		return
	}
	slog.Info("event", "name", name, "data", data)
}
