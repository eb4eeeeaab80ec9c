package app

import (
	"log/slog"
	"slices"
	"sync"
)

// State is the application lifecycle state. Exactly one exists per process;
// transitions through Machine are the only permitted mutation path.
type State int

const (
	StateIdle State = iota
	StateRecording
	StateProcessing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateProcessing:
		return "processing"
	default:
		return "unknown"
	}
}

// Command requests a state transition.
type Command int

const (
	// CmdStart begins a recording (Idle → Recording).
	CmdStart Command = iota
	// CmdStop ends a recording and starts processing (Recording → Processing).
	CmdStop
	// CmdComplete reports the transcription's terminal event (Processing → Idle).
	CmdComplete
	// CmdFatal aborts from any state back to Idle.
	CmdFatal
)

func (c Command) String() string {
	switch c {
	case CmdStart:
		return "start"
	case CmdStop:
		return "stop"
	case CmdComplete:
		return "complete"
	default:
		return "fatal"
	}
}

// applyFunc executes a command against the current state, performing the
// transition's side effects, and returns the resulting state. ok is false
// when the command is rejected as a no-op.
type applyFunc func(from State, cmd Command) (to State, ok bool)

// Machine serializes state transitions. A transition's side effects may
// themselves dispatch commands; those re-entrant dispatches are queued and
// coalesced (duplicates collapse to one) instead of running interleaved,
// which breaks feedback loops between collaborator updates and state
// changes.
type Machine struct {
	mu       sync.Mutex
	state    State
	inFlight bool
	queue    []Command

	apply    applyFunc
	onChange func(from, to State)
}

// NewMachine creates a Machine starting in Idle. onChange fires after every
// accepted transition, outside the internal lock.
func NewMachine(apply applyFunc, onChange func(from, to State)) *Machine {
	return &Machine{apply: apply, onChange: onChange}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Dispatch runs a command. While a transition is in progress, further
// commands, from side effects or other goroutines, are queued and coalesced
// and drained by the goroutine already inside the machine.
func (m *Machine) Dispatch(cmd Command) {
	m.mu.Lock()
	if m.inFlight {
		if !slices.Contains(m.queue, cmd) {
			m.queue = append(m.queue, cmd)
		}
		m.mu.Unlock()
		return
	}
	m.inFlight = true

	for {
		from := m.state
		m.mu.Unlock()

		to, ok := m.apply(from, cmd)

		m.mu.Lock()
		if ok && to != from {
			m.state = to
			m.mu.Unlock()
			slog.Debug("state transition", "from", from, "to", to, "command", cmd)
			if m.onChange != nil {
				m.onChange(from, to)
			}
			m.mu.Lock()
		} else if !ok {
			slog.Debug("command rejected", "state", from, "command", cmd)
		}

		if len(m.queue) == 0 {
			m.inFlight = false
			m.mu.Unlock()
			return
		}
		cmd = m.queue[0]
		m.queue = m.queue[1:]
	}
}
