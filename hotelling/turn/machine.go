// Package turn walks a session through the phases of each turn.
//
// The machine holds no agent data. Every guard is a predicate over the
// session store, evaluated each time Advance is called.
package turn

import (
	"fmt"
	"sync"

	"hotelling/models"
)

// State is the part of the session store the machine reads and resets.
type State interface {
	ActiveFirmReplied() bool
	AllCustomersReplied() bool
	BothFirmsGotResults() bool
	AppendHistorySnapshot(turn int) error
	ResetForNewTurn()
}

// Option configures a Machine.
type Option func(*Machine)

// OnTurnEnd registers fn to run after a turn is written to history.
// fn runs inside the caller's critical section and must not block.
func OnTurnEnd(fn func(completed int)) Option {
	return func(m *Machine) { m.onTurnEnd = fn }
}

// OnTerminate registers fn to run once when the session stops at a turn boundary.
func OnTerminate(fn func(lastTurn int)) Option {
	return func(m *Machine) { m.onTerminate = fn }
}

type Machine struct {
	mu              sync.RWMutex
	st              State
	turn            int
	phase           models.Phase
	continueSession bool
	ended           bool

	onTurnEnd   func(int)
	onTerminate func(int)
}

func New(st State, opts ...Option) *Machine {
	m := &Machine{
		st:              st,
		phase:           models.PhaseBeginningTurn,
		continueSession: true,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Advance performs at most one transition and reports whether it moved.
// Calling it when no guard holds is a no-op.
func (m *Machine) Advance() (bool, error) {
	m.mu.Lock()
	if m.ended {
		m.mu.Unlock()
		return false, nil
	}

	switch m.phase {
	case models.PhaseBeginningTurn:
		if !m.st.ActiveFirmReplied() {
			m.mu.Unlock()
			return false, nil
		}
		m.phase = models.PhaseActiveFirmPlayed
		m.mu.Unlock()
		return true, nil

	case models.PhaseActiveFirmPlayed:
		if !m.st.AllCustomersReplied() {
			m.mu.Unlock()
			return false, nil
		}
		m.phase = models.PhaseActiveFirmPlayedAllCustomersReplied
		m.mu.Unlock()
		return true, nil

	case models.PhaseActiveFirmPlayedAllCustomersReplied:
		if !m.st.BothFirmsGotResults() {
			m.mu.Unlock()
			return false, nil
		}
		completed, terminated, err := m.endTurnLocked()
		m.mu.Unlock()
		if err != nil {
			return false, err
		}
		if m.onTurnEnd != nil {
			m.onTurnEnd(completed)
		}
		if terminated && m.onTerminate != nil {
			m.onTerminate(completed)
		}
		return true, nil
	}

	m.mu.Unlock()
	return false, nil
}

// endTurnLocked runs the TurnEnded step. The phase only rests in
// TurnEnded when the session is not continuing.
func (m *Machine) endTurnLocked() (completed int, terminated bool, err error) {
	completed = m.turn
	if err := m.st.AppendHistorySnapshot(completed); err != nil {
		return 0, false, fmt.Errorf("end turn %d: %w", completed, err)
	}
	m.turn++
	if !m.continueSession {
		m.phase = models.PhaseTurnEnded
		m.ended = true
		return completed, true, nil
	}
	m.st.ResetForNewTurn()
	m.phase = models.PhaseBeginningTurn
	return completed, false, nil
}

// StopAfterTurn clears continueSession; the current turn still completes.
func (m *Machine) StopAfterTurn() {
	m.mu.Lock()
	m.continueSession = false
	m.mu.Unlock()
}

func (m *Machine) Turn() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.turn
}

func (m *Machine) Phase() models.Phase {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.phase
}

func (m *Machine) Continuing() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.continueSession
}

// Ended reports whether the session stopped at a turn boundary.
func (m *Machine) Ended() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ended
}

// Restore sets the counters loaded from a snapshot.
func (m *Machine) Restore(turn int, phase models.Phase, continueSession bool) error {
	switch phase {
	case models.PhaseBeginningTurn, models.PhaseActiveFirmPlayed,
		models.PhaseActiveFirmPlayedAllCustomersReplied, models.PhaseTurnEnded:
	default:
		return fmt.Errorf("unknown phase %q", phase)
	}
	if turn < 0 {
		return fmt.Errorf("negative turn %d", turn)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turn = turn
	m.phase = phase
	m.continueSession = continueSession
	m.ended = phase == models.PhaseTurnEnded
	return nil
}
