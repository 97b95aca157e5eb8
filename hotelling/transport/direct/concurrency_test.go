package direct

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"hotelling/hotelling/identity"
	"hotelling/hotelling/router"
	"hotelling/hotelling/store"
	"hotelling/hotelling/transport"
	"hotelling/hotelling/turn"
	"hotelling/models"
)

const nCustomers = 40

func crowdRouter(t *testing.T) *router.Router {
	t.Helper()
	roles := []models.RoleAssignment{
		{SlotID: 0, Role: models.RoleFirm},
		{SlotID: 1, Role: models.RoleFirm},
	}
	for i := 0; i < nCustomers; i++ {
		roles = append(roles, models.RoleAssignment{SlotID: 2 + i, Role: models.RoleCustomer})
	}
	st, err := store.New(roles, store.Params{
		InitialPositions: [2]int{10, 50},
		InitialPrices:    [2]int{5, 5},
	})
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	return router.New(st, turn.New(st), identity.New(roles), router.Params{
		NPositions:         64,
		NPrices:            11,
		ExplorationCost:    1,
		UtilityConsumption: 20,
	}, zaptest.NewLogger(t))
}

// inParallel runs one GET per path at once and returns the bodies in order.
func inParallel(t *testing.T, a *Adapter, paths []string) []string {
	t.Helper()
	client := &http.Client{Timeout: 10 * time.Second}
	bodies := make([]string, len(paths))
	var wg sync.WaitGroup
	for i, p := range paths {
		wg.Add(1)
		go func(i int, p string) {
			defer wg.Done()
			resp, err := client.Get("http://" + a.Addr() + p)
			if err != nil {
				t.Errorf("GET %s error = %v", p, err)
				return
			}
			defer resp.Body.Close()
			b, _ := io.ReadAll(resp.Body)
			bodies[i] = string(b)
		}(i, p)
	}
	wg.Wait()
	return bodies
}

func TestConcurrentCustomersThroughWorkers(t *testing.T) {
	r := crowdRouter(t)
	a := startAdapterWith(t, context.Background(), Config{
		Addr:         "127.0.0.1:0",
		Workers:      4,
		MaxInFlight:  64,
		ReplyTimeout: 5 * time.Second,
		Listen:       transport.Backoff{Attempts: 1},
	})

	ctx, cancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup
	for i := 0; i < a.Workers(); i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			for {
				req, err := a.Receive(ctx)
				if err != nil {
					return
				}
				rep := r.Handle(req.Body)
				_ = a.Send(ctx, transport.Reply{RequestID: req.ID, Slot: rep.Slot, Body: rep.Body})
			}
		}()
	}
	defer func() {
		cancel()
		workers.Wait()
	}()

	firms := inParallel(t, a, []string{"/ask_init/f0/firm", "/ask_init/f1/firm"})
	for i, body := range firms {
		if !strings.HasPrefix(body, "reply/reply_init/") {
			t.Fatalf("firm %d init = %q", i, body)
		}
	}

	inits := make([]string, nCustomers)
	for i := range inits {
		inits[i] = fmt.Sprintf("/ask_init/c%d/customer", i)
	}
	slots := make(map[int]bool)
	for _, body := range inParallel(t, a, inits) {
		parts := strings.Split(body, "/")
		if len(parts) < 5 || parts[1] != "reply_init" || parts[4] != "customer" {
			t.Fatalf("customer init = %q", body)
		}
		slot, err := strconv.Atoi(parts[2])
		if err != nil {
			t.Fatalf("customer init slot in %q", body)
		}
		slots[slot] = true
	}
	if len(slots) != nCustomers {
		t.Fatalf("customers got %d distinct slots, want %d", len(slots), nCustomers)
	}

	if got := inParallel(t, a, []string{"/ask_firm_choice_recording/0/0/10/5"}); got[0] != "reply/reply_firm_choice_recording/0" {
		t.Fatalf("firm choice = %q", got[0])
	}

	choices := make([]string, 0, nCustomers)
	for slot := range slots {
		choices = append(choices, fmt.Sprintf("/ask_customer_choice_recording/%d/0/1/0", slot))
	}
	for i, body := range inParallel(t, a, choices) {
		if body != "reply/reply_customer_choice_recording/0" {
			t.Fatalf("%s = %q", choices[i], body)
		}
	}

	if st := r.Status(); st.Phase != models.PhaseActiveFirmPlayedAllCustomersReplied {
		t.Fatalf("phase = %s, want %s", st.Phase, models.PhaseActiveFirmPlayedAllCustomersReplied)
	}
	want := fmt.Sprintf("reply/reply_firm_n_clients/0/%d/%d", nCustomers, nCustomers*5)
	if got := inParallel(t, a, []string{"/ask_firm_n_clients/0/0"}); got[0] != want {
		t.Fatalf("n_clients = %q, want %q", got[0], want)
	}
}
