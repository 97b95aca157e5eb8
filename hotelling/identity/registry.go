// Package identity maps opaque client identifiers to session slots.
package identity

import (
	"sort"
	"sync"

	"hotelling/hotelling/apperr"
	"hotelling/models"
)

// Registry is safe for concurrent use. One mutex covers every operation;
// registration happens once per participant so contention is low.
type Registry struct {
	mu       sync.Mutex
	roles    []models.RoleAssignment
	byClient map[string]int
	bySlot   map[int]string
	reserved map[string]int
	slotRes  map[int]string
}

func New(roles []models.RoleAssignment) *Registry {
	sorted := append([]models.RoleAssignment(nil), roles...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].SlotID < sorted[j].SlotID })
	return &Registry{
		roles:    sorted,
		byClient: make(map[string]int),
		bySlot:   make(map[int]string),
		reserved: make(map[string]int),
		slotRes:  make(map[int]string),
	}
}

// Reserve pins clientID to slot before the client first connects.
func (r *Registry) Reserve(clientID string, slot int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ra, ok := r.roleLocked(slot)
	if !ok {
		return apperr.New(apperr.CodeUnknownSlot, "cannot reserve unknown slot %d", slot)
	}
	if ra.IsBot {
		return apperr.New(apperr.CodeInvalidArgument, "slot %d is played by a bot", slot)
	}
	if other, ok := r.slotRes[slot]; ok && other != clientID {
		return apperr.New(apperr.CodeDuplicateClient, "slot %d already reserved for %q", slot, other)
	}
	if prev, ok := r.reserved[clientID]; ok && prev != slot {
		delete(r.slotRes, prev)
	}
	r.reserved[clientID] = slot
	r.slotRes[slot] = clientID
	return nil
}

// Resolve returns the slot for clientID, claiming one on first contact.
// An empty role means any role. Repeated calls return the same slot.
func (r *Registry) Resolve(clientID string, role models.Role) (int, error) {
	if clientID == "" {
		return 0, apperr.New(apperr.CodeInvalidArgument, "empty client id")
	}
	if role != "" && !role.Valid() {
		return 0, apperr.New(apperr.CodeInvalidArgument, "unknown role %q", role)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if slot, ok := r.byClient[clientID]; ok {
		return slot, nil
	}

	if slot, ok := r.reserved[clientID]; ok {
		if holder, taken := r.bySlot[slot]; taken {
			return 0, apperr.New(apperr.CodeDuplicateClient, "slot %d reserved for %q is held by %q", slot, clientID, holder)
		}
		r.claimLocked(clientID, slot)
		return slot, nil
	}

	for _, ra := range r.roles {
		if ra.IsBot || (role != "" && ra.Role != role) {
			continue
		}
		if _, taken := r.bySlot[ra.SlotID]; taken {
			continue
		}
		if _, held := r.slotRes[ra.SlotID]; held {
			continue
		}
		r.claimLocked(clientID, ra.SlotID)
		return ra.SlotID, nil
	}

	if role == "" {
		return 0, apperr.New(apperr.CodeCapacityExceeded, "no free slot for %q", clientID)
	}
	return 0, apperr.New(apperr.CodeCapacityExceeded, "no free %s slot for %q", role, clientID)
}

func (r *Registry) claimLocked(clientID string, slot int) {
	r.byClient[clientID] = slot
	r.bySlot[slot] = clientID
}

func (r *Registry) roleLocked(slot int) (models.RoleAssignment, bool) {
	for _, ra := range r.roles {
		if ra.SlotID == slot {
			return ra, true
		}
	}
	return models.RoleAssignment{}, false
}

// SlotFor returns the slot mapped to clientID.
func (r *Registry) SlotFor(clientID string) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	slot, ok := r.byClient[clientID]
	return slot, ok
}

// ClientFor returns the client mapped to slot.
func (r *Registry) ClientFor(slot int) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.bySlot[slot]
	return c, ok
}

// Connected reports whether slot is played by a bot or a mapped client.
func (r *Registry) Connected(slot int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ra, ok := r.roleLocked(slot); ok && ra.IsBot {
		return true
	}
	_, ok := r.bySlot[slot]
	return ok
}

// Mappings returns a copy of the client to slot table.
func (r *Registry) Mappings() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int, len(r.byClient))
	for k, v := range r.byClient {
		out[k] = v
	}
	return out
}

// Restore replaces all mappings. It rejects tables that are not a
// bijection onto human slots.
func (r *Registry) Restore(mappings map[string]int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	byClient := make(map[string]int, len(mappings))
	bySlot := make(map[int]string, len(mappings))
	for client, slot := range mappings {
		ra, ok := r.roleLocked(slot)
		if !ok {
			return apperr.New(apperr.CodeUnknownSlot, "mapping %q -> %d points to unknown slot", client, slot)
		}
		if ra.IsBot {
			return apperr.New(apperr.CodeInvalidArgument, "mapping %q -> %d points to a bot slot", client, slot)
		}
		if other, dup := bySlot[slot]; dup {
			return apperr.New(apperr.CodeDuplicateClient, "slot %d mapped to both %q and %q", slot, other, client)
		}
		byClient[client] = slot
		bySlot[slot] = client
	}
	r.byClient = byClient
	r.bySlot = bySlot
	return nil
}
