package router

import "hotelling/models"

// The apply functions write validated choices. Bots and handlers share them.

func (r *Router) applyFirmChoice(slot, position, price int) {
	st, _ := r.store.Firm(slot)
	st.Position, st.Price, st.Replied = position, price, true
	_ = r.store.PutFirm(slot, st)

	// 後手の企業は前ターンの値を引き継ぐ
	opp, _ := r.store.Opponent(slot)
	if prev, ok := r.store.HistoryAt(r.machine.Turn() - 1); ok {
		o, _ := r.store.Firm(opp)
		o.Position, o.Price = prev.Firms[opp].Position, prev.Firms[opp].Price
		_ = r.store.PutFirm(opp, o)
	}
}

func (r *Router) applyCustomerChoice(slot, radius, firmIndex int) {
	st, _ := r.store.Customer(slot)
	st.ExplorationRadius = radius
	st.ChosenFirm = r.firmSlotOf(firmIndex)

	st.Utility = -r.params.ExplorationCost * radius
	if st.ChosenFirm != models.NoFirm {
		f, _ := r.store.Firm(st.ChosenFirm)
		st.Utility += r.params.UtilityConsumption - f.Price
	}
	st.CumulativeUtility += st.Utility
	st.Replied, st.Decided = true, true
	_ = r.store.PutCustomer(slot, st)
}

func (r *Router) applyClientCount(slot int) (n, profit int) {
	for _, c := range r.store.CustomerSlots() {
		if st, _ := r.store.Customer(c); st.ChosenFirm == slot {
			n++
		}
	}
	st, _ := r.store.Firm(slot)
	profit = n * st.Price
	st.Clients, st.Profit = n, profit
	st.CumulativeProfit += profit
	st.GotResults = true
	_ = r.store.PutFirm(slot, st)
	return n, profit
}

// firmSlotOf maps a wire firm index to the firm's slot id.
func (r *Router) firmSlotOf(index int) int {
	if index < 0 {
		return models.NoFirm
	}
	return r.store.FirmSlots()[index]
}
