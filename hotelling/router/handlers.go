package router

import (
	"hotelling/hotelling/apperr"
	"hotelling/hotelling/protocol"
	"hotelling/models"
)

func (r *Router) handleInit(req protocol.Request) (Reply, error) {
	client := req.Args[0].Raw
	var role models.Role
	if len(req.Args) == 2 {
		role = models.Role(req.Args[1].Raw)
	}

	slot, err := r.ids.Resolve(client, role)
	if err != nil {
		return Reply{}, err
	}
	ra, err := r.store.Role(slot)
	if err != nil {
		return Reply{}, err
	}
	r.touch(slot)
	if r.onConnect != nil {
		r.onConnect(client, slot, ra.Role)
	}

	t := r.machine.Turn()
	if ra.Role == models.RoleFirm {
		own, _ := r.store.Firm(slot)
		oppSlot, _ := r.store.Opponent(slot)
		opp, _ := r.store.Firm(oppSlot)
		return Reply{Slot: slot, Client: client, Body: protocol.FormatReply(req.Command,
			slot, t, string(models.RoleFirm),
			own.Position, string(own.Status), own.Price,
			opp.Position, opp.Price,
			own.CumulativeProfit, opp.CumulativeProfit,
		)}, nil
	}

	c, _ := r.store.Customer(slot)
	return Reply{Slot: slot, Client: client, Body: protocol.FormatReply(req.Command,
		slot, t, string(models.RoleCustomer),
		c.Position, r.params.ExplorationCost, r.params.UtilityConsumption, c.CumulativeUtility,
	)}, nil
}

func (r *Router) handleFirmChoice(req protocol.Request) (Reply, error) {
	v, err := ints(req)
	if err != nil {
		return Reply{}, err
	}
	slot, t, position, price := v[0], v[1], v[2], v[3]

	if err := r.authorize(slot, models.RoleFirm); err != nil {
		return Reply{}, err
	}
	if err := r.checkTurn(t); err != nil {
		return Reply{}, err
	}
	if position < 0 || position >= r.params.NPositions {
		return Reply{}, apperr.New(apperr.CodeInvalidArgument, "position %d outside [0, %d)", position, r.params.NPositions)
	}
	if price < 0 || price > r.params.NPrices {
		return Reply{}, apperr.New(apperr.CodeInvalidArgument, "price %d outside [0, %d]", price, r.params.NPrices)
	}

	st, _ := r.store.Firm(slot)
	if st.Status != models.FirmActive {
		return Reply{}, apperr.New(apperr.CodeUnauthorizedSlot, "firm %d is passive this turn", slot)
	}
	if st.Replied {
		// 応答が失われた場合の再送は同じ値なら受け付ける
		if st.Position == position && st.Price == price {
			r.touch(slot)
			return Reply{Slot: slot, Body: protocol.FormatReply(req.Command, t)}, nil
		}
		return Reply{}, apperr.New(apperr.CodeUnauthorizedSlot, "firm %d already committed this turn", slot)
	}
	if ph := r.machine.Phase(); ph != models.PhaseBeginningTurn {
		return Reply{}, apperr.New(apperr.CodeNotReady, "firm choice not accepted in phase %s", ph)
	}

	r.applyFirmChoice(slot, position, price)
	r.touch(slot)
	if err := r.settle(); err != nil {
		return Reply{}, err
	}
	return Reply{Slot: slot, Body: protocol.FormatReply(req.Command, t)}, nil
}

func (r *Router) handleCustomerChoice(req protocol.Request) (Reply, error) {
	v, err := ints(req)
	if err != nil {
		return Reply{}, err
	}
	slot, t, radius, firmIndex := v[0], v[1], v[2], v[3]

	if err := r.authorize(slot, models.RoleCustomer); err != nil {
		return Reply{}, err
	}
	if err := r.checkTurn(t); err != nil {
		return Reply{}, err
	}
	if radius < 0 || radius >= r.params.NPositions {
		return Reply{}, apperr.New(apperr.CodeInvalidArgument, "exploration radius %d outside [0, %d)", radius, r.params.NPositions)
	}
	if firmIndex < -1 || firmIndex > 1 {
		return Reply{}, apperr.New(apperr.CodeInvalidArgument, "firm index %d not in {-1, 0, 1}", firmIndex)
	}

	st, _ := r.store.Customer(slot)
	if st.Decided {
		if st.ExplorationRadius == radius && st.ChosenFirm == r.firmSlotOf(firmIndex) {
			r.touch(slot)
			return Reply{Slot: slot, Body: protocol.FormatReply(req.Command, t)}, nil
		}
		return Reply{}, apperr.New(apperr.CodeUnauthorizedSlot, "customer %d already chose this turn", slot)
	}
	if ph := r.machine.Phase(); ph != models.PhaseActiveFirmPlayed {
		return Reply{}, apperr.New(apperr.CodeNotReady, "customer choice not accepted in phase %s", ph)
	}

	r.applyCustomerChoice(slot, radius, firmIndex)
	r.touch(slot)
	if err := r.settle(); err != nil {
		return Reply{}, err
	}
	return Reply{Slot: slot, Body: protocol.FormatReply(req.Command, t)}, nil
}

func (r *Router) handleFirmClientCount(req protocol.Request) (Reply, error) {
	v, err := ints(req)
	if err != nil {
		return Reply{}, err
	}
	slot, t := v[0], v[1]

	if err := r.authorize(slot, models.RoleFirm); err != nil {
		return Reply{}, err
	}
	if err := r.checkTurn(t); err != nil {
		return Reply{}, err
	}

	st, _ := r.store.Firm(slot)
	if st.GotResults {
		r.touch(slot)
		return Reply{Slot: slot, Body: protocol.FormatReply(req.Command, t, st.Clients, st.Profit)}, nil
	}
	if ph := r.machine.Phase(); ph != models.PhaseActiveFirmPlayedAllCustomersReplied {
		return Reply{}, apperr.New(apperr.CodeNotReady, "client count not available in phase %s", ph)
	}

	n, profit := r.applyClientCount(slot)
	r.touch(slot)
	if err := r.settle(); err != nil {
		return Reply{}, err
	}
	return Reply{Slot: slot, Body: protocol.FormatReply(req.Command, t, n, profit)}, nil
}

func (r *Router) handleAdminInit(req protocol.Request) (Reply, error) {
	firms := r.store.FirmSlots()
	for _, slot := range firms {
		if !r.ids.Connected(slot) {
			return Reply{}, apperr.New(apperr.CodeAgentsNotConnected, "firm slot %d has not connected yet", slot)
		}
	}

	f0, _ := r.store.Firm(firms[0])
	f1, _ := r.store.Firm(firms[1])
	return Reply{Slot: NoSlot, Body: protocol.FormatReply(req.Command,
		r.machine.Turn(), f0.Status == models.FirmPassive,
		f0.Position, f0.Price, f0.CumulativeProfit,
		f1.Position, f1.Price, f1.CumulativeProfit,
	)}, nil
}

func (r *Router) handleFirmOpponentChoice(req protocol.Request) (Reply, error) {
	v, err := ints(req)
	if err != nil {
		return Reply{}, err
	}
	slot, t := v[0], v[1]
	if err := r.authorize(slot, models.RoleFirm); err != nil {
		return Reply{}, err
	}
	if err := r.checkTurn(t); err != nil {
		return Reply{}, err
	}

	own, _ := r.store.Firm(slot)
	if own.Status == models.FirmPassive && r.machine.Phase() == models.PhaseBeginningTurn {
		return Reply{}, apperr.New(apperr.CodeNotReady, "active firm has not played yet")
	}

	opp, _ := r.store.Opponent(slot)
	st, _ := r.store.Firm(opp)
	r.touch(slot)
	return Reply{Slot: slot, Body: protocol.FormatReply(req.Command, t, st.Position, st.Price)}, nil
}

func (r *Router) handleCustomerFirmChoices(req protocol.Request) (Reply, error) {
	v, err := ints(req)
	if err != nil {
		return Reply{}, err
	}
	slot, t := v[0], v[1]
	if err := r.authorize(slot, models.RoleCustomer); err != nil {
		return Reply{}, err
	}
	if err := r.checkTurn(t); err != nil {
		return Reply{}, err
	}
	if r.machine.Phase() == models.PhaseBeginningTurn {
		return Reply{}, apperr.New(apperr.CodeNotReady, "active firm has not played yet")
	}

	firms := r.store.FirmSlots()
	f0, _ := r.store.Firm(firms[0])
	f1, _ := r.store.Firm(firms[1])
	r.touch(slot)
	return Reply{Slot: slot, Body: protocol.FormatReply(req.Command, t,
		f0.Position, f1.Position, f0.Price, f1.Price)}, nil
}

// authorize checks that slot exists, has role and belongs to a connected human client.
func (r *Router) authorize(slot int, role models.Role) error {
	ra, err := r.store.Role(slot)
	if err != nil {
		return err
	}
	if ra.Role != role {
		return apperr.New(apperr.CodeUnauthorizedSlot, "slot %d is a %s, command requires %s", slot, ra.Role, role)
	}
	if ra.IsBot {
		return apperr.New(apperr.CodeUnauthorizedSlot, "slot %d is played by a bot", slot)
	}
	if _, ok := r.ids.ClientFor(slot); !ok {
		return apperr.New(apperr.CodeUnauthorizedSlot, "slot %d has no registered client, send init first", slot)
	}
	return nil
}

func (r *Router) checkTurn(t int) error {
	if r.machine.Ended() {
		return apperr.New(apperr.CodeSessionEnded, "session ended after turn %d", r.machine.Turn()-1)
	}
	if server := r.machine.Turn(); t != server {
		return apperr.New(apperr.CodeStaleTurn, "client turn %d, server turn %d", t, server)
	}
	return nil
}

func (r *Router) touch(slot int) {
	now := r.now()
	if st, err := r.store.Firm(slot); err == nil {
		st.LastRequest = now
		_ = r.store.PutFirm(slot, st)
		return
	}
	if st, err := r.store.Customer(slot); err == nil {
		st.LastRequest = now
		_ = r.store.PutCustomer(slot, st)
	}
}

func ints(req protocol.Request) ([]int, error) {
	out := make([]int, len(req.Args))
	for i, a := range req.Args {
		if !a.IsInt {
			return nil, apperr.New(apperr.CodeInvalidArgument, "argument %d (%q) must be an integer", i, a.Raw)
		}
		out[i] = a.Int
	}
	return out, nil
}
