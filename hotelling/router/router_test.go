package router

import (
	"reflect"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"hotelling/hotelling/apperr"
	"hotelling/hotelling/identity"
	"hotelling/hotelling/store"
	"hotelling/hotelling/turn"
	"hotelling/models"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func humanRoles() []models.RoleAssignment {
	return []models.RoleAssignment{
		{SlotID: 0, Role: models.RoleFirm},
		{SlotID: 1, Role: models.RoleFirm},
		{SlotID: 2, Role: models.RoleCustomer},
		{SlotID: 3, Role: models.RoleCustomer},
	}
}

func newTestRouter(t *testing.T, roles []models.RoleAssignment) *Router {
	t.Helper()
	st, err := store.New(roles, store.Params{
		InitialPositions: [2]int{5, 15},
		InitialPrices:    [2]int{5, 5},
	})
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	m := turn.New(st)
	ids := identity.New(roles)
	return New(st, m, ids, Params{
		NPositions:         21,
		NPrices:            11,
		ExplorationCost:    1,
		UtilityConsumption: 20,
	}, zaptest.NewLogger(t), WithClock(func() time.Time { return fixedNow }))
}

func mustReply(t *testing.T, r *Router, req, want string) {
	t.Helper()
	got := r.Handle(req)
	if got.Err != nil {
		t.Fatalf("Handle(%q) error = %v", req, got.Err)
	}
	if want != "" && got.Body != want {
		t.Fatalf("Handle(%q) = %q, want %q", req, got.Body, want)
	}
}

func connectAll(t *testing.T, r *Router, clients ...string) {
	t.Helper()
	for _, c := range clients {
		mustReply(t, r, "ask_init/"+c, "")
	}
}

func TestFullTurnScenario(t *testing.T) {
	r := newTestRouter(t, humanRoles())

	mustReply(t, r, "ask_init/a", "reply/reply_init/0/0/firm/5/active/5/15/5/0/0")
	mustReply(t, r, "ask_init/b", "reply/reply_init/1/0/firm/15/passive/5/5/5/0/0")
	mustReply(t, r, "ask_init/c", "reply/reply_init/2/0/customer/1/1/20/0")
	mustReply(t, r, "ask_init/d", "reply/reply_init/3/0/customer/2/1/20/0")

	mustReply(t, r, "ask_firm_choice_recording/0/0/3/5", "reply/reply_firm_choice_recording/0")
	if got := r.machine.Phase(); got != models.PhaseActiveFirmPlayed {
		t.Fatalf("phase = %s, want %s", got, models.PhaseActiveFirmPlayed)
	}

	mustReply(t, r, "ask_customer_firm_choices/2/0", "reply/reply_customer_firm_choices/0/3/15/5/5")
	mustReply(t, r, "ask_customer_choice_recording/2/0/1/0", "reply/reply_customer_choice_recording/0")
	mustReply(t, r, "ask_customer_choice_recording/3/0/2/-1", "reply/reply_customer_choice_recording/0")
	if got := r.machine.Phase(); got != models.PhaseActiveFirmPlayedAllCustomersReplied {
		t.Fatalf("phase = %s", got)
	}

	mustReply(t, r, "ask_firm_n_clients/0/0", "reply/reply_firm_n_clients/0/1/5")
	// 同じターン内の再要求は同じ結果を返す
	mustReply(t, r, "ask_firm_n_clients/0/0", "reply/reply_firm_n_clients/0/1/5")
	mustReply(t, r, "ask_firm_n_clients/1/0", "reply/reply_firm_n_clients/0/0/0")

	if r.machine.Turn() != 1 || r.machine.Phase() != models.PhaseBeginningTurn {
		t.Fatalf("turn=%d phase=%s", r.machine.Turn(), r.machine.Phase())
	}
	h, ok := r.store.HistoryAt(0)
	if !ok {
		t.Fatalf("history[0] missing")
	}
	if f := h.Firms[0]; f.Price != 5 || f.Position != 3 || f.CumulativeProfit != 5 {
		t.Fatalf("history[0] firm 0 = %+v", f)
	}
	if c := h.Customers[2]; c.Utility != 14 || c.ChosenFirm != 0 {
		t.Fatalf("history[0] customer 2 = %+v", c)
	}
	if c := h.Customers[3]; c.Utility != -2 || c.ChosenFirm != models.NoFirm {
		t.Fatalf("history[0] customer 3 = %+v", c)
	}

	// 次のターンは企業1が先手
	mustReply(t, r, "ask_init/b", "reply/reply_init/1/1/firm/15/active/5/3/5/0/5")
	mustReply(t, r, "ask_firm_opponent_choice/1/1", "reply/reply_firm_opponent_choice/1/3/5")
}

func TestStaleTurnLeavesStoreUnchanged(t *testing.T) {
	r := newTestRouter(t, humanRoles())
	connectAll(t, r, "a", "b", "c", "d")
	mustReply(t, r, "ask_firm_choice_recording/0/0/3/5", "")

	before := r.Snapshot()
	got := r.Handle("ask_customer_choice_recording/2/5/1/0")
	if !apperr.IsCode(got.Err, apperr.CodeStaleTurn) {
		t.Fatalf("error = %v, want StaleTurn", got.Err)
	}
	if !strings.HasPrefix(got.Body, "Command not understood: StaleTurn") {
		t.Fatalf("Body = %q", got.Body)
	}
	if got.Slot != 2 {
		t.Fatalf("reply slot = %d, want 2", got.Slot)
	}
	if after := r.Snapshot(); !reflect.DeepEqual(before, after) {
		t.Fatalf("store changed on stale request")
	}
}

func TestAdminInitBeforeFirmsConnect(t *testing.T) {
	r := newTestRouter(t, humanRoles())

	got := r.Handle("ask_admin_init")
	if !apperr.IsCode(got.Err, apperr.CodeAgentsNotConnected) {
		t.Fatalf("error = %v, want AgentsNotConnected", got.Err)
	}

	connectAll(t, r, "a", "b")
	mustReply(t, r, "ask_admin_init", "reply/reply_admin_init/0/0/5/5/0/15/5/0")
}

func TestRejectedRequestsDoNotMutate(t *testing.T) {
	r := newTestRouter(t, humanRoles())
	connectAll(t, r, "a", "b", "c")

	tests := []struct {
		name string
		req  string
		code apperr.Code
	}{
		{"unknown command", "ask_everything/0/0", apperr.CodeUnknownCommand},
		{"code injection", "__import__('os')", apperr.CodeUnknownCommand},
		{"wrong arity", "ask_firm_choice_recording/0/0/3", apperr.CodeInvalidArgument},
		{"string where int expected", "ask_firm_choice_recording/0/0/left/5", apperr.CodeInvalidArgument},
		{"passive firm", "ask_firm_choice_recording/1/0/3/5", apperr.CodeUnauthorizedSlot},
		{"customer uses firm command", "ask_firm_choice_recording/2/0/3/5", apperr.CodeUnauthorizedSlot},
		{"unregistered slot", "ask_customer_choice_recording/3/0/1/0", apperr.CodeUnauthorizedSlot},
		{"unknown slot", "ask_firm_n_clients/9/0", apperr.CodeUnknownSlot},
		{"position out of range", "ask_firm_choice_recording/0/0/21/5", apperr.CodeInvalidArgument},
		{"customer before active firm", "ask_customer_choice_recording/2/0/1/0", apperr.CodeNotReady},
		{"count before customers", "ask_firm_n_clients/0/0", apperr.CodeNotReady},
		{"bad firm index", "ask_customer_choice_recording/2/0/1/2", apperr.CodeInvalidArgument},
		{"stale turn", "ask_firm_choice_recording/0/3/3/5", apperr.CodeStaleTurn},
		{"role mismatch on init", "ask_init/e/boss", apperr.CodeInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := r.Snapshot()
			got := r.Handle(tt.req)
			if !apperr.IsCode(got.Err, tt.code) {
				t.Fatalf("Handle(%q) error = %v, want %s", tt.req, got.Err, tt.code)
			}
			if !strings.HasPrefix(got.Body, "Command not understood: ") {
				t.Fatalf("Body = %q", got.Body)
			}
			if after := r.Snapshot(); !reflect.DeepEqual(before, after) {
				t.Fatalf("store changed on rejected request %q", tt.req)
			}
		})
	}
}

func TestOpponentChoiceWaitsForActiveFirm(t *testing.T) {
	r := newTestRouter(t, humanRoles())
	connectAll(t, r, "a", "b", "c", "d")

	// 受動側は能動側が手を打つまで待つ
	got := r.Handle("ask_firm_opponent_choice/1/0")
	if !apperr.IsCode(got.Err, apperr.CodeNotReady) {
		t.Fatalf("passive firm error = %v, want NotReady", got.Err)
	}
	mustReply(t, r, "ask_firm_opponent_choice/0/0", "reply/reply_firm_opponent_choice/0/15/5")

	mustReply(t, r, "ask_firm_choice_recording/0/0/3/5", "reply/reply_firm_choice_recording/0")
	mustReply(t, r, "ask_firm_opponent_choice/1/0", "reply/reply_firm_opponent_choice/0/3/5")
}

func TestFirmChoiceResendIsIdempotent(t *testing.T) {
	r := newTestRouter(t, humanRoles())
	connectAll(t, r, "a", "b", "c", "d")

	mustReply(t, r, "ask_firm_choice_recording/0/0/3/5", "reply/reply_firm_choice_recording/0")
	mustReply(t, r, "ask_firm_choice_recording/0/0/3/5", "reply/reply_firm_choice_recording/0")
	if got := r.Handle("ask_firm_choice_recording/0/0/4/5"); !apperr.IsCode(got.Err, apperr.CodeUnauthorizedSlot) {
		t.Fatalf("changed resend error = %v", got.Err)
	}
}

func TestBotsPlayThroughSettle(t *testing.T) {
	roles := []models.RoleAssignment{
		{SlotID: 0, Role: models.RoleFirm},
		{SlotID: 1, Role: models.RoleFirm, IsBot: true},
		{SlotID: 2, Role: models.RoleCustomer},
		{SlotID: 3, Role: models.RoleCustomer, IsBot: true},
	}
	r := newTestRouter(t, roles)
	r.bots = DefaultBots{Radius: 2}
	connectAll(t, r, "a", "c")

	mustReply(t, r, "ask_admin_init", "")
	mustReply(t, r, "ask_firm_choice_recording/0/0/3/4", "")

	// ボット顧客(位置2)は半径2で企業0(位置3, 価格4)を選ぶ
	bot, _ := r.store.Customer(3)
	if !bot.Decided || bot.ChosenFirm != 0 {
		t.Fatalf("bot customer = %+v", bot)
	}

	mustReply(t, r, "ask_customer_choice_recording/2/0/0/-1", "")
	mustReply(t, r, "ask_firm_n_clients/0/0", "reply/reply_firm_n_clients/0/1/4")

	// ボット企業は自動で結果を受け取り、ターンが終わる
	if r.machine.Turn() != 1 {
		t.Fatalf("turn = %d, want 1", r.machine.Turn())
	}

	// 次のターンの先手はボット企業。Settleで手番が進む
	if err := r.Settle(); err != nil {
		t.Fatalf("Settle() error = %v", err)
	}
	if r.machine.Phase() != models.PhaseActiveFirmPlayed {
		t.Fatalf("phase = %s, want bot firm to have played", r.machine.Phase())
	}
	f1, _ := r.store.Firm(1)
	if f1.Position != 15 || f1.Price != 5 {
		t.Fatalf("bot firm = %+v", f1)
	}
}

func TestStopAfterTurnEndsSession(t *testing.T) {
	r := newTestRouter(t, humanRoles())
	connectAll(t, r, "a", "b", "c", "d")

	r.StopAfterTurn()
	mustReply(t, r, "ask_firm_choice_recording/0/0/3/5", "")
	mustReply(t, r, "ask_customer_choice_recording/2/0/1/0", "")
	mustReply(t, r, "ask_customer_choice_recording/3/0/1/1", "")
	mustReply(t, r, "ask_firm_n_clients/0/0", "")
	mustReply(t, r, "ask_firm_n_clients/1/0", "")

	if !r.machine.Ended() {
		t.Fatalf("session did not end")
	}
	if got := r.Handle("ask_firm_choice_recording/1/1/3/5"); !apperr.IsCode(got.Err, apperr.CodeSessionEnded) {
		t.Fatalf("error = %v, want SessionEnded", got.Err)
	}
}

func TestLastRequestTracked(t *testing.T) {
	r := newTestRouter(t, humanRoles())
	connectAll(t, r, "a")

	st, _ := r.store.Firm(0)
	if !st.LastRequest.Equal(fixedNow) {
		t.Fatalf("LastRequest = %v", st.LastRequest)
	}
	status := r.Status()
	if status.Clients["a"] != 0 || status.Turn != 0 {
		t.Fatalf("Status() = %+v", status)
	}
}

func TestDefaultBotsCustomerChoice(t *testing.T) {
	b := DefaultBots{Radius: 3}
	tests := []struct {
		name      string
		position  int
		positions [2]int
		prices    [2]int
		want      int
	}{
		{"none in view", 10, [2]int{1, 20}, [2]int{5, 5}, models.NoFirm},
		{"only second in view", 10, [2]int{1, 12}, [2]int{1, 9}, 1},
		{"cheaper wins", 10, [2]int{8, 12}, [2]int{6, 4}, 1},
		{"tie goes to first", 10, [2]int{8, 12}, [2]int{4, 4}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			radius, got := b.CustomerChoice(CustomerView{
				Own:       models.CustomerState{Position: tt.position},
				Positions: tt.positions,
				Prices:    tt.prices,
			})
			if radius != 3 || got != tt.want {
				t.Fatalf("CustomerChoice() = %d, %d; want 3, %d", radius, got, tt.want)
			}
		})
	}
}
