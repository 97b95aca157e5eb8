// Package store holds the per-slot agent state and turn history of one session.
// It contains no protocol logic: callers validate before writing.
package store

import (
	"sort"
	"sync"

	"hotelling/hotelling/apperr"
	"hotelling/models"
)

// Params are the starting values of a fresh session.
type Params struct {
	InitialPositions [2]int
	InitialPrices    [2]int
}

// Store is the single source of truth for agent and history state.
// The RWMutex only keeps readers race-free; protocol serialization is the router's job.
type Store struct {
	mu            sync.RWMutex
	roles         []models.RoleAssignment
	bySlot        map[int]models.RoleAssignment
	firmSlots     []int
	customerSlots []int
	firms         map[int]models.FirmState
	customers     map[int]models.CustomerState
	history       []models.Snapshot
}

// New builds a store for the given role assignments.
func New(roles []models.RoleAssignment, p Params) (*Store, error) {
	s, err := newEmpty(roles)
	if err != nil {
		return nil, err
	}
	for i, slot := range s.firmSlots {
		status := models.FirmPassive
		if i == 0 {
			status = models.FirmActive
		}
		s.firms[slot] = models.FirmState{
			Position: p.InitialPositions[i],
			Price:    p.InitialPrices[i],
			Status:   status,
		}
	}
	for i, slot := range s.customerSlots {
		s.customers[slot] = models.CustomerState{
			Position:   i + 1,
			ChosenFirm: models.NoFirm,
			Replied:    s.bySlot[slot].IsBot,
		}
	}
	return s, nil
}

// Restore rebuilds a store from persisted state.
func Restore(roles []models.RoleAssignment, history []models.Snapshot, current models.CurrentState) (*Store, error) {
	s, err := newEmpty(roles)
	if err != nil {
		return nil, err
	}
	for _, slot := range s.firmSlots {
		st, ok := current.Firms[slot]
		if !ok {
			return nil, apperr.New(apperr.CodeUnknownSlot, "snapshot lacks firm slot %d", slot)
		}
		s.firms[slot] = st
	}
	for _, slot := range s.customerSlots {
		st, ok := current.Customers[slot]
		if !ok {
			return nil, apperr.New(apperr.CodeUnknownSlot, "snapshot lacks customer slot %d", slot)
		}
		s.customers[slot] = st
	}
	s.history = make([]models.Snapshot, len(history))
	for i, h := range history {
		s.history[i] = copySnapshot(h)
	}
	return s, nil
}

func newEmpty(roles []models.RoleAssignment) (*Store, error) {
	s := &Store{
		bySlot:    make(map[int]models.RoleAssignment, len(roles)),
		firms:     make(map[int]models.FirmState),
		customers: make(map[int]models.CustomerState),
	}
	for _, r := range roles {
		if !r.Role.Valid() {
			return nil, apperr.New(apperr.CodeInvalidArgument, "slot %d has unknown role %q", r.SlotID, r.Role)
		}
		if _, dup := s.bySlot[r.SlotID]; dup {
			return nil, apperr.New(apperr.CodeInvalidArgument, "slot %d assigned twice", r.SlotID)
		}
		s.bySlot[r.SlotID] = r
	}
	s.roles = append([]models.RoleAssignment(nil), roles...)
	sort.Slice(s.roles, func(i, j int) bool { return s.roles[i].SlotID < s.roles[j].SlotID })
	for _, r := range s.roles {
		if r.Role == models.RoleFirm {
			s.firmSlots = append(s.firmSlots, r.SlotID)
		} else {
			s.customerSlots = append(s.customerSlots, r.SlotID)
		}
	}
	if len(s.firmSlots) != 2 {
		return nil, apperr.New(apperr.CodeInvalidArgument, "exactly two firm slots required, got %d", len(s.firmSlots))
	}
	if len(s.customerSlots) == 0 {
		return nil, apperr.New(apperr.CodeInvalidArgument, "at least one customer slot required")
	}
	return s, nil
}

// Roles returns the role assignments ordered by slot id.
func (s *Store) Roles() []models.RoleAssignment {
	return append([]models.RoleAssignment(nil), s.roles...)
}

func (s *Store) Role(slot int) (models.RoleAssignment, error) {
	r, ok := s.bySlot[slot]
	if !ok {
		return models.RoleAssignment{}, unknownSlot(slot)
	}
	return r, nil
}

func (s *Store) FirmSlots() []int     { return append([]int(nil), s.firmSlots...) }
func (s *Store) CustomerSlots() []int { return append([]int(nil), s.customerSlots...) }

// FirmIndex returns 0 or 1 for a firm slot.
func (s *Store) FirmIndex(slot int) (int, bool) {
	for i, f := range s.firmSlots {
		if f == slot {
			return i, true
		}
	}
	return 0, false
}

// Opponent returns the other firm's slot.
func (s *Store) Opponent(slot int) (int, bool) {
	i, ok := s.FirmIndex(slot)
	if !ok {
		return 0, false
	}
	return s.firmSlots[1-i], true
}

func (s *Store) Firm(slot int) (models.FirmState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.firms[slot]
	if !ok {
		return models.FirmState{}, unknownSlot(slot)
	}
	return st, nil
}

func (s *Store) PutFirm(slot int, st models.FirmState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.firms[slot]; !ok {
		return unknownSlot(slot)
	}
	s.firms[slot] = st
	return nil
}

func (s *Store) Customer(slot int) (models.CustomerState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.customers[slot]
	if !ok {
		return models.CustomerState{}, unknownSlot(slot)
	}
	return st, nil
}

func (s *Store) PutCustomer(slot int, st models.CustomerState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.customers[slot]; !ok {
		return unknownSlot(slot)
	}
	s.customers[slot] = st
	return nil
}

// ActiveFirm returns the slot currently holding active status.
func (s *Store) ActiveFirm() (int, models.FirmState) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, slot := range s.firmSlots {
		if st := s.firms[slot]; st.Status == models.FirmActive {
			return slot, st
		}
	}
	// 復元データが壊れている場合でも先頭の企業を返す
	return s.firmSlots[0], s.firms[s.firmSlots[0]]
}

// ActiveFirmReplied reports whether the active firm has committed this turn.
func (s *Store) ActiveFirmReplied() bool {
	_, st := s.ActiveFirm()
	return st.Replied
}

// AllCustomersReplied is the guard input for the second phase transition.
func (s *Store) AllCustomersReplied() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, slot := range s.customerSlots {
		if !s.customers[slot].Replied {
			return false
		}
	}
	return true
}

// BothFirmsGotResults is the guard input for the turn-end transition.
func (s *Store) BothFirmsGotResults() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, slot := range s.firmSlots {
		if !s.firms[slot].GotResults {
			return false
		}
	}
	return true
}

// AppendHistorySnapshot copies the current state into history.
// The history length must equal turn before the append.
func (s *Store) AppendHistorySnapshot(turn int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.history) != turn {
		return apperr.New(apperr.CodeInvalidArgument, "history has %d entries, cannot append turn %d", len(s.history), turn)
	}
	s.history = append(s.history, models.Snapshot{
		Turn:      turn,
		Firms:     copyFirms(s.firms),
		Customers: copyCustomers(s.customers),
	})
	return nil
}

// ResetForNewTurn clears the per-turn flags and swaps active and passive firms.
// Bot customers start every turn flagged as replied.
func (s *Store) ResetForNewTurn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for slot, st := range s.firms {
		st.Replied = false
		st.GotResults = false
		if st.Status == models.FirmActive {
			st.Status = models.FirmPassive
		} else {
			st.Status = models.FirmActive
		}
		s.firms[slot] = st
	}
	for slot, st := range s.customers {
		st.Replied = s.bySlot[slot].IsBot
		st.Decided = false
		s.customers[slot] = st
	}
}

// History returns a deep copy of all completed turns.
func (s *Store) History() []models.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Snapshot, len(s.history))
	for i, h := range s.history {
		out[i] = copySnapshot(h)
	}
	return out
}

func (s *Store) HistoryLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.history)
}

// HistoryAt returns a copy of the snapshot for the given turn.
func (s *Store) HistoryAt(turn int) (models.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if turn < 0 || turn >= len(s.history) {
		return models.Snapshot{}, false
	}
	return copySnapshot(s.history[turn]), true
}

// Current returns a copy of the current state maps.
func (s *Store) Current() models.CurrentState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return models.CurrentState{
		Firms:     copyFirms(s.firms),
		Customers: copyCustomers(s.customers),
	}
}

func unknownSlot(slot int) error {
	return apperr.New(apperr.CodeUnknownSlot, "slot %d is not part of this session", slot)
}

func copyFirms(in map[int]models.FirmState) map[int]models.FirmState {
	out := make(map[int]models.FirmState, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copyCustomers(in map[int]models.CustomerState) map[int]models.CustomerState {
	out := make(map[int]models.CustomerState, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copySnapshot(h models.Snapshot) models.Snapshot {
	return models.Snapshot{
		Turn:      h.Turn,
		Firms:     copyFirms(h.Firms),
		Customers: copyCustomers(h.Customers),
	}
}
