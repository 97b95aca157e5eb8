package backup

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"

	"hotelling/models"
)

func sampleSnapshot(turn int) models.SessionSnapshot {
	firms := map[int]models.FirmState{
		0: {Position: 3, Price: 5, CumulativeProfit: 10, Status: models.FirmPassive, LastRequest: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)},
		1: {Position: 15, Price: 4, Status: models.FirmActive},
	}
	customers := map[int]models.CustomerState{
		2: {Position: 1, ExplorationRadius: 2, ChosenFirm: 0, Utility: 13, CumulativeUtility: 30, Replied: true, Decided: true},
	}
	return models.SessionSnapshot{
		History: []models.Snapshot{
			{Turn: 0, Firms: firms, Customers: customers},
		},
		CurrentState:     models.CurrentState{Firms: firms, Customers: customers},
		IdentityMappings: map[string]int{"alice": 0, "carol": 2},
		RoleAssignments: []models.RoleAssignment{
			{SlotID: 0, Role: models.RoleFirm},
			{SlotID: 1, Role: models.RoleFirm, IsBot: true},
			{SlotID: 2, Role: models.RoleCustomer},
		},
		TurnCounter:  turn,
		Phase:        models.PhaseActiveFirmPlayed,
		ContinueFlag: true,
	}
}

func TestEncodeDecodeExact(t *testing.T) {
	snap := sampleSnapshot(1)
	b, err := Encode(snap)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	got, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if !reflect.DeepEqual(got, snap) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, snap)
	}

	var fields map[string]interface{}
	_ = json.Unmarshal(b, &fields)
	for _, k := range []string{"history", "currentState", "identityMappings", "roleAssignments", "turnCounter", "phase", "continueFlag"} {
		if _, ok := fields[k]; !ok {
			t.Fatalf("blob lacks %q", k)
		}
	}
	if len(fields) != 7 {
		t.Fatalf("blob has %d fields, want 7", len(fields))
	}
}

func TestMemoryRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	if _, err := repo.Latest(ctx, "s1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Latest() on empty error = %v", err)
	}
	first, _ := repo.Save(ctx, "s1", sampleSnapshot(1))
	_, _ = repo.Save(ctx, "s2", sampleSnapshot(7))
	_, _ = repo.Save(ctx, "s1", sampleSnapshot(2))

	latest, err := repo.Latest(ctx, "s1")
	if err != nil || latest.TurnCounter != 2 {
		t.Fatalf("Latest() = turn %d, %v", latest.TurnCounter, err)
	}
	loaded, err := repo.Load(ctx, first.ID)
	if err != nil || loaded.TurnCounter != 1 {
		t.Fatalf("Load() = turn %d, %v", loaded.TurnCounter, err)
	}
	list, _ := repo.List(ctx, 2)
	if len(list) != 2 || list[0].ID != 3 || list[1].SessionID != "s2" {
		t.Fatalf("List() = %+v", list)
	}
	if _, err := repo.Load(ctx, 99); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load(99) error = %v", err)
	}
}
