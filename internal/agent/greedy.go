// Package agent holds built-in player strategies and the client side of the
// websocket seat protocol.
package agent

import (
	"context"
	"log"

	"github.com/example/power-grid/internal/board"
	"github.com/example/power-grid/internal/game"
	"github.com/example/power-grid/internal/market"
	"github.com/example/power-grid/internal/rules"
)

// Greedy is a simple bot: it buys the biggest plant it can afford, fills
// each plant for one firing, builds the cheapest reachable cities up to
// what it can power and reports its full capacity.
type Greedy struct {
	// Reserve is held back from optional auctions for fuel and building.
	Reserve   int
	MaxPlants int
	// Log receives game over summaries when set.
	Log *log.Logger
}

// NewGreedy returns a bot with the default reserve.
func NewGreedy() *Greedy {
	return &Greedy{Reserve: 15, MaxPlants: 3}
}

func (g *Greedy) ChooseAuction(_ context.Context, req game.AuctionChoiceRequest) (game.AuctionChoice, error) {
	me, _ := req.State.Me()
	budget := me.Elektro
	if req.CanPass {
		budget -= g.Reserve
	}
	var best *market.PowerPlant
	for _, p := range req.State.Plants.Current {
		if p.MinBid > budget {
			continue
		}
		if req.CanPass && !g.upgrade(me, p) {
			continue
		}
		if best == nil || p.Cities > best.Cities || (p.Cities == best.Cities && p.MinBid < best.MinBid) {
			pick := p
			best = &pick
		}
	}
	if best == nil {
		return game.AuctionChoice{Choice: game.ChoicePass}, nil
	}
	return game.AuctionChoice{Choice: game.ChoiceAuction, PlantNumber: best.MinBid}, nil
}

func (g *Greedy) Bid(_ context.Context, req game.BidRequest) (game.BidResponse, error) {
	if req.Opening {
		return game.BidResponse{Bid: req.Plant.MinBid}, nil
	}
	me, _ := req.State.Me()
	if !g.upgrade(me, req.Plant) {
		return game.BidResponse{}, nil
	}
	limit := req.Plant.MinBid + 2*req.Plant.Cities
	if room := me.Elektro - g.Reserve/2; room < limit {
		limit = room
	}
	next := req.CurrentBid + 1
	if next > limit {
		return game.BidResponse{}, nil
	}
	return game.BidResponse{Bid: next}, nil
}

// upgrade reports whether p would improve the bot's hand.
func (g *Greedy) upgrade(me game.Player, p market.PowerPlant) bool {
	if len(me.Plants) < g.maxPlants() {
		return true
	}
	for _, op := range me.Plants {
		if p.Cities > op.Cities {
			return true
		}
	}
	return false
}

func (g *Greedy) maxPlants() int {
	if g.MaxPlants <= 0 {
		return 3
	}
	return g.MaxPlants
}

func (g *Greedy) Discard(_ context.Context, req game.DiscardRequest) (game.DiscardResponse, error) {
	me, _ := req.State.Me()
	var worst *game.OwnedPlant
	for _, op := range me.Plants {
		if op.MinBid == req.NewPlant {
			continue
		}
		if worst == nil || op.Cities < worst.Cities || (op.Cities == worst.Cities && op.MinBid < worst.MinBid) {
			worst = op
		}
	}
	if worst == nil {
		return game.DiscardResponse{}, nil
	}
	return game.DiscardResponse{DiscardNumber: worst.MinBid}, nil
}

func (g *Greedy) BuyResources(_ context.Context, req game.ResourceRequest) (game.ResourceResponse, error) {
	me, _ := req.State.Me()
	want := map[rules.Resource]int{}
	for _, op := range me.Plants {
		need := op.Units - op.StoredTotal()
		if op.Ecological() || need <= 0 {
			continue
		}
		res, ok := cheapest(req.State.Resources, op.Resources)
		if !ok {
			continue
		}
		want[res] += need
	}
	return game.ResourceResponse{Purchases: want}, nil
}

// cheapest picks the lowest priced resource that is on the market.
func cheapest(view map[rules.Resource]market.ResourceView, options []rules.Resource) (rules.Resource, bool) {
	var best rules.Resource
	bestPrice := 0
	for _, res := range options {
		v := view[res]
		if v.Quantity == 0 {
			continue
		}
		if bestPrice == 0 || v.UnitPrice < bestPrice {
			best, bestPrice = res, v.UnitPrice
		}
	}
	return best, bestPrice > 0
}

func (g *Greedy) Build(_ context.Context, req game.BuildRequest) (game.BuildResponse, error) {
	me, _ := req.State.Me()
	m, err := board.FromSnapshot(req.State.Map)
	if err != nil {
		return game.BuildResponse{}, err
	}
	capacity := 0
	for _, op := range me.Plants {
		capacity += op.Cities
	}
	target := capacity + 1 - len(me.Locations)
	if target > me.Houses {
		target = me.Houses
	}
	budget := me.Elektro
	var picks []string
	for len(picks) < target {
		best, bestCost := "", 0
		for _, tag := range m.Tags() {
			if m.Owns(me.ID, tag) || !m.IsAvailable(tag, m.Step()) {
				continue
			}
			conn, err := m.ConnectionCost(me.ID, tag)
			if err != nil {
				continue
			}
			total := conn + req.State.BuildingCost
			if total > budget {
				continue
			}
			if best == "" || total < bestCost {
				best, bestCost = tag, total
			}
		}
		if best == "" {
			break
		}
		m.Claim(me.ID, best)
		budget -= bestCost
		picks = append(picks, best)
	}
	return game.BuildResponse{Locations: picks}, nil
}

func (g *Greedy) Power(_ context.Context, req game.PowerRequest) (game.PowerResponse, error) {
	me, _ := req.State.Me()
	plan := me.PlanPower(len(me.Locations))
	return game.PowerResponse{CitiesPowered: plan.Cities, ResourcesConsumed: plan.Consumed}, nil
}

func (g *Greedy) Notify(_ context.Context, n game.Notification) error {
	if g.Log != nil && n.Event == game.EventGameOver && n.Result != nil {
		g.Log.Printf("game %s over after %d rounds, winners %v", n.Result.GameID, n.Result.Rounds, n.Result.Winners)
	}
	return nil
}
