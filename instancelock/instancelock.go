// Package instancelock provides cross-process mutual exclusion so that only
// one application instance runs at a time.
package instancelock

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/shirou/gopsutil/v4/process"
	"golang.org/x/sys/unix"
)

// Status is the outcome of an acquisition attempt.
type Status int

const (
	// StatusAcquired means this process now owns the lock.
	StatusAcquired Status = iota
	// StatusAlreadyRunning means another live instance holds the lock.
	StatusAlreadyRunning
	// StatusError means acquisition failed for an unexpected reason.
	// Callers must treat this as "assume already running": never allow
	// two writers.
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusAcquired:
		return "acquired"
	case StatusAlreadyRunning:
		return "already-running"
	default:
		return "error"
	}
}

// Manager owns the lock file for the process lifetime. It is created by the
// process root and passed by reference to whatever needs to release it; there
// is no package-level lock state.
type Manager struct {
	path string

	mu       sync.Mutex
	file     *os.File
	acquired bool
}

// New creates a Manager for the lock file at path. The file is not touched
// until TryAcquire.
func New(path string) *Manager {
	return &Manager{path: path}
}

// Path returns the lock file location.
func (m *Manager) Path() string { return m.path }

// TryAcquire attempts to become the single running instance.
//
// A stale lock file, one whose advisory lock is no longer held because its
// owner died, is reclaimed. A lock held by a live process yields
// StatusAlreadyRunning. Unexpected I/O errors yield StatusError with the
// underlying error.
func (m *Manager) TryAcquire() (Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.acquired {
		return StatusAcquired, nil
	}

	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		slog.Warn("lock directory unavailable, falling back to process scan", "error", err)
		return m.scanProcessTable()
	}

	if _, err := os.Stat(m.path); err == nil {
		status, err := m.reclaimStale()
		if status != StatusAcquired || err != nil {
			return status, err
		}
		// Stale file removed; fall through and create fresh.
	} else if !os.IsNotExist(err) {
		return StatusError, fmt.Errorf("stat lock file: %w", err)
	}

	f, err := os.OpenFile(m.path, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0644)
	if err != nil {
		return StatusError, fmt.Errorf("create lock file: %w", err)
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			// Lost the race to another starting instance.
			return StatusAlreadyRunning, nil
		}
		return StatusError, fmt.Errorf("lock file: %w", err)
	}

	if _, err := fmt.Fprintf(f, "%d", os.Getpid()); err != nil {
		unix.Flock(int(f.Fd()), unix.LOCK_UN)
		f.Close()
		return StatusError, fmt.Errorf("write pid: %w", err)
	}

	// The handle stays open for the process lifetime; the advisory lock
	// dies with the process even on SIGKILL.
	m.file = f
	m.acquired = true
	slog.Info("instance lock acquired", "path", m.path, "pid", os.Getpid())
	return StatusAcquired, nil
}

// reclaimStale probes an existing lock file. It returns StatusAcquired after
// deleting a stale file, StatusAlreadyRunning when the owner is alive.
func (m *Manager) reclaimStale() (Status, error) {
	f, err := os.OpenFile(m.path, os.O_RDWR, 0644)
	if err != nil {
		if os.IsNotExist(err) {
			return StatusAcquired, nil // Removed between stat and open.
		}
		return StatusError, fmt.Errorf("open lock file: %w", err)
	}
	defer f.Close()

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		if errors.Is(err, unix.EWOULDBLOCK) {
			return StatusAlreadyRunning, nil
		}
		return StatusError, fmt.Errorf("probe lock: %w", err)
	}

	// The flock succeeded, so the prior owner is dead. Cross-check with a
	// liveness probe on the recorded PID and warn if they disagree.
	if pid, ok := readPID(f); ok {
		alive, err := process.PidExists(int32(pid))
		if err == nil && alive {
			slog.Warn("lock file unlocked but recorded pid is alive",
				"pid", pid, "path", m.path)
		}
	}

	unix.Flock(int(f.Fd()), unix.LOCK_UN)
	if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
		return StatusError, fmt.Errorf("remove stale lock: %w", err)
	}
	slog.Info("reclaimed stale instance lock", "path", m.path)
	return StatusAcquired, nil
}

// scanProcessTable is the degraded mode used when the lock directory cannot
// be created: look for another live process with our executable name.
func (m *Manager) scanProcessTable() (Status, error) {
	exe, err := os.Executable()
	if err != nil {
		return StatusError, fmt.Errorf("resolve executable: %w", err)
	}
	self := filepath.Base(exe)

	procs, err := process.Processes()
	if err != nil {
		return StatusError, fmt.Errorf("list processes: %w", err)
	}

	for _, p := range procs {
		if int(p.Pid) == os.Getpid() {
			continue
		}
		name, err := p.Name()
		if err != nil {
			continue
		}
		if name == self {
			return StatusAlreadyRunning, nil
		}
	}

	// No lock file exists in this mode; exclusion is best-effort only.
	m.acquired = true
	return StatusAcquired, nil
}

// Release unlocks, closes and deletes the lock file. It is idempotent and
// safe to call from multiple shutdown paths.
func (m *Manager) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.acquired {
		return
	}
	m.acquired = false

	if m.file != nil {
		unix.Flock(int(m.file.Fd()), unix.LOCK_UN)
		m.file.Close()
		m.file = nil
		if err := os.Remove(m.path); err != nil && !os.IsNotExist(err) {
			slog.Warn("remove lock file", "error", err)
		}
	}
	slog.Info("instance lock released", "path", m.path)
}

func readPID(f *os.File) (int, bool) {
	buf := make([]byte, 32)
	n, err := f.ReadAt(buf, 0)
	if n == 0 && err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(buf[:n])))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}
