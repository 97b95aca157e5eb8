package turn

import (
	"testing"

	"hotelling/models"
)

type fakeState struct {
	activeReplied bool
	customersDone bool
	firmsDone     bool
	history       []int
	resets        int
}

func (f *fakeState) ActiveFirmReplied() bool   { return f.activeReplied }
func (f *fakeState) AllCustomersReplied() bool { return f.customersDone }
func (f *fakeState) BothFirmsGotResults() bool { return f.firmsDone }
func (f *fakeState) AppendHistorySnapshot(turn int) error {
	f.history = append(f.history, turn)
	return nil
}
func (f *fakeState) ResetForNewTurn() {
	f.resets++
	f.activeReplied, f.customersDone, f.firmsDone = false, false, false
}

func TestAdvanceIsNoopWithoutGuard(t *testing.T) {
	st := &fakeState{}
	m := New(st)

	for i := 0; i < 3; i++ {
		moved, err := m.Advance()
		if err != nil || moved {
			t.Fatalf("Advance() = %v, %v; want false, nil", moved, err)
		}
	}
	if m.Phase() != models.PhaseBeginningTurn || m.Turn() != 0 {
		t.Fatalf("state changed: %s/%d", m.Phase(), m.Turn())
	}
}

func TestFullCycle(t *testing.T) {
	st := &fakeState{}
	var ended []int
	m := New(st, OnTurnEnd(func(turn int) { ended = append(ended, turn) }))

	st.activeReplied = true
	// 条件が揃っていても1回の呼び出しで進むのは1段階だけ
	st.customersDone = true
	if moved, _ := m.Advance(); !moved || m.Phase() != models.PhaseActiveFirmPlayed {
		t.Fatalf("phase = %s", m.Phase())
	}
	if moved, _ := m.Advance(); !moved || m.Phase() != models.PhaseActiveFirmPlayedAllCustomersReplied {
		t.Fatalf("phase = %s", m.Phase())
	}
	if moved, _ := m.Advance(); moved {
		t.Fatalf("advanced without firm results")
	}
	st.firmsDone = true
	if moved, _ := m.Advance(); !moved {
		t.Fatalf("turn did not end")
	}

	if m.Turn() != 1 || m.Phase() != models.PhaseBeginningTurn {
		t.Fatalf("after cycle: turn=%d phase=%s", m.Turn(), m.Phase())
	}
	if len(st.history) != m.Turn() || st.history[0] != 0 {
		t.Fatalf("history = %v", st.history)
	}
	if st.resets != 1 || len(ended) != 1 || ended[0] != 0 {
		t.Fatalf("resets=%d ended=%v", st.resets, ended)
	}
}

func TestTurnMonotonic(t *testing.T) {
	st := &fakeState{}
	m := New(st)
	prev := m.Turn()
	for cycle := 0; cycle < 5; cycle++ {
		st.activeReplied, st.customersDone, st.firmsDone = true, true, true
		for {
			moved, err := m.Advance()
			if err != nil {
				t.Fatalf("Advance() error = %v", err)
			}
			if m.Turn() < prev {
				t.Fatalf("turn decreased %d -> %d", prev, m.Turn())
			}
			prev = m.Turn()
			if !moved {
				break
			}
		}
		if m.Turn() != cycle+1 {
			t.Fatalf("turn = %d, want %d", m.Turn(), cycle+1)
		}
		if len(st.history) != m.Turn() {
			t.Fatalf("len(history) = %d, turn = %d", len(st.history), m.Turn())
		}
	}
}

func TestStopAfterTurn(t *testing.T) {
	st := &fakeState{activeReplied: true, customersDone: true, firmsDone: true}
	terminated := -1
	m := New(st, OnTerminate(func(turn int) { terminated = turn }))

	m.StopAfterTurn()
	for i := 0; i < 5; i++ {
		_, _ = m.Advance()
	}

	if !m.Ended() || m.Phase() != models.PhaseTurnEnded {
		t.Fatalf("ended=%v phase=%s", m.Ended(), m.Phase())
	}
	if terminated != 0 || m.Turn() != 1 || st.resets != 0 {
		t.Fatalf("terminated=%d turn=%d resets=%d", terminated, m.Turn(), st.resets)
	}
	if len(st.history) != 1 {
		t.Fatalf("history = %v", st.history)
	}
}

func TestRestore(t *testing.T) {
	m := New(&fakeState{})
	if err := m.Restore(7, models.PhaseActiveFirmPlayed, true); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if m.Turn() != 7 || m.Phase() != models.PhaseActiveFirmPlayed || m.Ended() {
		t.Fatalf("restored %d/%s/%v", m.Turn(), m.Phase(), m.Ended())
	}
	if err := m.Restore(1, "sleeping", true); err == nil {
		t.Fatalf("unknown phase accepted")
	}
}
