package identity

import (
	"fmt"
	"sync"
	"testing"

	"hotelling/hotelling/apperr"
	"hotelling/models"
)

func roles() []models.RoleAssignment {
	return []models.RoleAssignment{
		{SlotID: 0, Role: models.RoleFirm},
		{SlotID: 1, Role: models.RoleFirm},
		{SlotID: 2, Role: models.RoleCustomer},
		{SlotID: 3, Role: models.RoleCustomer, IsBot: true},
	}
}

func TestResolveByRole(t *testing.T) {
	r := New(roles())

	tests := []struct {
		client string
		role   models.Role
		want   int
		code   apperr.Code
	}{
		{"alice", models.RoleCustomer, 2, ""},
		{"bob", models.RoleCustomer, 0, apperr.CodeCapacityExceeded},
		{"bob", models.RoleFirm, 0, ""},
		{"carol", "", 1, ""},
		{"dave", "", 0, apperr.CodeCapacityExceeded},
		{"alice", models.RoleCustomer, 2, ""},
		{"", "", 0, apperr.CodeInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%s", tt.client, tt.role), func(t *testing.T) {
			got, err := r.Resolve(tt.client, tt.role)
			if tt.code != "" {
				if !apperr.IsCode(err, tt.code) {
					t.Fatalf("Resolve() error = %v, want %s", err, tt.code)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Fatalf("Resolve() = %d, %v; want %d", got, err, tt.want)
			}
		})
	}

	if r.Connected(3) != true {
		t.Fatalf("bot slot should count as connected")
	}
}

func TestResolveConcurrentSameClient(t *testing.T) {
	r := New(roles())

	const n = 32
	var wg sync.WaitGroup
	slots := make([]int, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			slots[i], errs[i] = r.Resolve("same-client", "")
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("call %d error = %v", i, errs[i])
		}
		if slots[i] != slots[0] {
			t.Fatalf("call %d got slot %d, first got %d", i, slots[i], slots[0])
		}
	}
	if len(r.Mappings()) != 1 {
		t.Fatalf("Mappings() = %v", r.Mappings())
	}
}

func TestResolveConcurrentDistinctClients(t *testing.T) {
	r := New(roles())

	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := map[int]string{}
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			client := fmt.Sprintf("c%d", i)
			slot, err := r.Resolve(client, "")
			if err != nil {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if other, dup := seen[slot]; dup {
				t.Errorf("slot %d given to %s and %s", slot, other, client)
			}
			seen[slot] = client
		}(i)
	}
	wg.Wait()

	if len(seen) != 3 {
		t.Fatalf("claimed %d slots, want 3 human slots", len(seen))
	}
}

func TestReservation(t *testing.T) {
	r := New(roles())
	if err := r.Reserve("alice", 1); err != nil {
		t.Fatalf("Reserve() error = %v", err)
	}
	if err := r.Reserve("mallory", 1); !apperr.IsCode(err, apperr.CodeDuplicateClient) {
		t.Fatalf("second reservation error = %v", err)
	}
	if err := r.Reserve("bot-owner", 3); !apperr.IsCode(err, apperr.CodeInvalidArgument) {
		t.Fatalf("bot reservation error = %v", err)
	}

	// 予約済みのスロットは他のクライアントに割り当てない
	if slot, _ := r.Resolve("bob", models.RoleFirm); slot != 0 {
		t.Fatalf("bob got slot %d, want 0", slot)
	}
	if _, err := r.Resolve("carol", models.RoleFirm); !apperr.IsCode(err, apperr.CodeCapacityExceeded) {
		t.Fatalf("carol error = %v", err)
	}
	if slot, err := r.Resolve("alice", ""); err != nil || slot != 1 {
		t.Fatalf("alice = %d, %v", slot, err)
	}
	if c, _ := r.ClientFor(1); c != "alice" {
		t.Fatalf("ClientFor(1) = %q", c)
	}
}

func TestRestore(t *testing.T) {
	r := New(roles())
	if err := r.Restore(map[string]int{"a": 0, "b": 2}); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if slot, ok := r.SlotFor("b"); !ok || slot != 2 {
		t.Fatalf("SlotFor(b) = %d, %v", slot, ok)
	}
	if err := r.Restore(map[string]int{"a": 3}); err == nil {
		t.Fatalf("mapping onto bot slot accepted")
	}
	if err := r.Restore(map[string]int{"a": 0, "b": 0}); !apperr.IsCode(err, apperr.CodeDuplicateClient) {
		t.Fatalf("duplicate slot error = %v", err)
	}
	// 失敗したRestoreは既存の対応を壊さない
	if slot, _ := r.SlotFor("a"); slot != 0 {
		t.Fatalf("mappings changed after failed restore")
	}
}
