package router

import (
	"go.uber.org/zap"

	"hotelling/models"
)

// FirmView is what a bot firm sees when it must commit.
type FirmView struct {
	Slot       int
	Turn       int
	Own        models.FirmState
	Opponent   models.FirmState
	NPositions int
	NPrices    int
}

// CustomerView is what a bot customer sees once the active firm played.
type CustomerView struct {
	Slot      int
	Turn      int
	Own       models.CustomerState
	Positions [2]int
	Prices    [2]int
}

// BotPolicy decides for bot slots. Decisions go through the same apply
// path as client commands, inside the router's critical section.
type BotPolicy interface {
	FirmChoice(v FirmView) (position, price int)
	CustomerChoice(v CustomerView) (radius, firmIndex int)
}

// DefaultBots keeps firms on their previous choice and sends customers to
// the cheapest firm within Radius of their position.
type DefaultBots struct {
	Radius int
}

func (DefaultBots) FirmChoice(v FirmView) (int, int) {
	return v.Own.Position, v.Own.Price
}

func (b DefaultBots) CustomerChoice(v CustomerView) (int, int) {
	lo, hi := v.Own.Position-b.Radius, v.Own.Position+b.Radius
	choice := models.NoFirm
	for i := 0; i < 2; i++ {
		if v.Positions[i] < lo || v.Positions[i] > hi {
			continue
		}
		// 同じ価格なら番号の小さい企業
		if choice == models.NoFirm || v.Prices[i] < v.Prices[choice] {
			choice = i
		}
	}
	return b.Radius, choice
}

// playBots makes every pending bot move for the current phase.
func (r *Router) playBots() bool {
	acted := false
	t := r.machine.Turn()

	switch r.machine.Phase() {
	case models.PhaseBeginningTurn:
		slot, st := r.store.ActiveFirm()
		if r.isBot(slot) && !st.Replied {
			opp, _ := r.store.Opponent(slot)
			oppState, _ := r.store.Firm(opp)
			pos, price := r.bots.FirmChoice(FirmView{
				Slot: slot, Turn: t, Own: st, Opponent: oppState,
				NPositions: r.params.NPositions, NPrices: r.params.NPrices,
			})
			pos, price = clamp(pos, 0, r.params.NPositions-1), clamp(price, 0, r.params.NPrices)
			r.applyFirmChoice(slot, pos, price)
			r.logger.Debug("bot firm played", zap.Int("slot", slot), zap.Int("position", pos), zap.Int("price", price))
			acted = true
		}

	case models.PhaseActiveFirmPlayed:
		firms := r.store.FirmSlots()
		f0, _ := r.store.Firm(firms[0])
		f1, _ := r.store.Firm(firms[1])
		for _, slot := range r.store.CustomerSlots() {
			st, _ := r.store.Customer(slot)
			if !r.isBot(slot) || st.Decided {
				continue
			}
			radius, idx := r.bots.CustomerChoice(CustomerView{
				Slot: slot, Turn: t, Own: st,
				Positions: [2]int{f0.Position, f1.Position},
				Prices:    [2]int{f0.Price, f1.Price},
			})
			if idx < -1 || idx > 1 {
				idx = -1
			}
			r.applyCustomerChoice(slot, clamp(radius, 0, r.params.NPositions-1), idx)
			acted = true
		}

	case models.PhaseActiveFirmPlayedAllCustomersReplied:
		for _, slot := range r.store.FirmSlots() {
			st, _ := r.store.Firm(slot)
			if r.isBot(slot) && !st.GotResults {
				r.applyClientCount(slot)
				acted = true
			}
		}
	}
	return acted
}

func (r *Router) isBot(slot int) bool {
	ra, err := r.store.Role(slot)
	return err == nil && ra.IsBot
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
