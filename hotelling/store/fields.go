package store

import (
	"hotelling/hotelling/apperr"
	"hotelling/models"
)

// Field names an integer attribute of an agent record.
type Field string

const (
	FieldPosition          Field = "position"
	FieldPrice             Field = "price"
	FieldProfit            Field = "profit"
	FieldCumulativeProfit  Field = "cumulative_profit"
	FieldClients           Field = "n_clients"
	FieldExplorationRadius Field = "exploration_radius"
	FieldChosenFirm        Field = "firm_choice"
	FieldUtility           Field = "utility"
	FieldCumulativeUtility Field = "cumulative_utility"
)

func firmField(st *models.FirmState, f Field) (*int, bool) {
	switch f {
	case FieldPosition:
		return &st.Position, true
	case FieldPrice:
		return &st.Price, true
	case FieldProfit:
		return &st.Profit, true
	case FieldCumulativeProfit:
		return &st.CumulativeProfit, true
	case FieldClients:
		return &st.Clients, true
	}
	return nil, false
}

func customerField(st *models.CustomerState, f Field) (*int, bool) {
	switch f {
	case FieldPosition:
		return &st.Position, true
	case FieldExplorationRadius:
		return &st.ExplorationRadius, true
	case FieldChosenFirm:
		return &st.ChosenFirm, true
	case FieldUtility:
		return &st.Utility, true
	case FieldCumulativeUtility:
		return &st.CumulativeUtility, true
	}
	return nil, false
}

// Read returns one named field of the slot's record.
func (s *Store) Read(f Field, slot int) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.firms[slot]; ok {
		p, ok := firmField(&st, f)
		if !ok {
			return 0, badField(f, slot)
		}
		return *p, nil
	}
	if st, ok := s.customers[slot]; ok {
		p, ok := customerField(&st, f)
		if !ok {
			return 0, badField(f, slot)
		}
		return *p, nil
	}
	return 0, unknownSlot(slot)
}

// Write overwrites one named field of the slot's record.
func (s *Store) Write(f Field, slot int, v int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.firms[slot]; ok {
		p, ok := firmField(&st, f)
		if !ok {
			return badField(f, slot)
		}
		*p = v
		s.firms[slot] = st
		return nil
	}
	if st, ok := s.customers[slot]; ok {
		p, ok := customerField(&st, f)
		if !ok {
			return badField(f, slot)
		}
		*p = v
		s.customers[slot] = st
		return nil
	}
	return unknownSlot(slot)
}

// Export returns deep copies of everything a snapshot needs from the store.
func (s *Store) Export() ([]models.RoleAssignment, []models.Snapshot, models.CurrentState) {
	return s.Roles(), s.History(), s.Current()
}

func badField(f Field, slot int) error {
	return apperr.New(apperr.CodeInvalidArgument, "field %q does not apply to slot %d", f, slot)
}
