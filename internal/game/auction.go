package game

import (
	"context"
	"fmt"

	"github.com/example/power-grid/internal/market"
)

type auctionState int

const (
	awaitingInitialBid auctionState = iota
	bidding
	resolved
)

// Auction is the bidding state for one plant. It only tracks bids; the
// orchestrator asks the players and applies the outcome.
type Auction struct {
	Plant         market.PowerPlant
	Starter       PlayerID
	CurrentBid    int
	HighestBidder PlayerID

	state    auctionState
	pool     []PlayerID
	eligible map[PlayerID]bool
}

// NewAuction starts an auction for plant. pool is every player allowed to
// bid, in turn order; the starter is added if missing.
func NewAuction(plant market.PowerPlant, starter PlayerID, pool []PlayerID) *Auction {
	a := &Auction{
		Plant:    plant,
		Starter:  starter,
		eligible: map[PlayerID]bool{},
	}
	for _, id := range pool {
		if !a.eligible[id] {
			a.pool = append(a.pool, id)
			a.eligible[id] = true
		}
	}
	if !a.eligible[starter] {
		a.pool = append(a.pool, starter)
		a.eligible[starter] = true
	}
	return a
}

// Open places the starter's first bid. A bid outside [minBid, elektro] is
// replaced by exactly minBid: the starter cannot knock themself out.
func (a *Auction) Open(bid, elektro int) int {
	if a.state != awaitingInitialBid {
		return a.CurrentBid
	}
	if bid < a.Plant.MinBid || bid > elektro {
		bid = a.Plant.MinBid
	}
	a.CurrentBid = bid
	a.HighestBidder = a.Starter
	a.state = bidding
	if a.Remaining() <= 1 {
		a.state = resolved
	}
	return bid
}

// Offer applies a response from player. A bid that does not beat the
// current bid or exceeds elektro counts as a pass and removes the player
// from this auction. It reports whether the bid was accepted.
func (a *Auction) Offer(player PlayerID, bid, elektro int) bool {
	if a.state != bidding || !a.eligible[player] || player == a.HighestBidder {
		return false
	}
	if bid <= a.CurrentBid || bid > elektro {
		a.Pass(player)
		return false
	}
	a.CurrentBid = bid
	a.HighestBidder = player
	return true
}

// Pass removes player from the auction.
func (a *Auction) Pass(player PlayerID) {
	if a.state != bidding || player == a.HighestBidder {
		return
	}
	delete(a.eligible, player)
	if a.Remaining() <= 1 {
		a.state = resolved
	}
}

// Remaining counts players still in the auction.
func (a *Auction) Remaining() int { return len(a.eligible) }

// Resolved reports whether a single bidder is left.
func (a *Auction) Resolved() bool { return a.state == resolved }

// Eligible reports whether player is still in the auction.
func (a *Auction) Eligible(player PlayerID) bool { return a.eligible[player] }

// nextBidders lists the players to ask in the coming pass, in turn order.
func (a *Auction) nextBidders() []PlayerID {
	var out []PlayerID
	for _, id := range a.pool {
		if a.eligible[id] && id != a.HighestBidder {
			out = append(out, id)
		}
	}
	return out
}

// runAuction drives an auction for plant started by starter and applies the
// result. It returns the winner.
func (g *Game) runAuction(ctx context.Context, starter *Player, plant market.PowerPlant, passed map[PlayerID]bool) PlayerID {
	var pool []PlayerID
	for _, p := range g.orderedPlayers() {
		if !p.HasBoughtPlant && !passed[p.ID] {
			pool = append(pool, p.ID)
		}
	}
	a := NewAuction(plant, starter.ID, pool)

	openReq := BidRequest{
		State:      g.snapshot(starter.ID),
		Plant:      plant,
		CurrentBid: plant.MinBid,
		Opening:    true,
	}
	opening, err := ask(ctx, g.timeouts.Bid, func(c context.Context) (BidResponse, error) {
		return g.seats[starter.ID].Bid(c, openReq)
	})
	if err != nil {
		g.fallback(starter.ID, "opening bid", err)
	}
	bid := a.Open(opening.Bid, starter.Elektro)
	g.record(starter.ID, "auctionOpened", "plant #%d at %d", plant.MinBid, bid)

	for !a.Resolved() {
		raised := false
		for _, id := range a.nextBidders() {
			if a.Resolved() {
				break
			}
			p := g.players[id]
			if p.Elektro < a.CurrentBid+1 {
				a.Pass(id)
				g.record(id, "pass", "cannot afford %d for #%d", a.CurrentBid+1, plant.MinBid)
				continue
			}
			req := BidRequest{
				State:         g.snapshot(id),
				Plant:         plant,
				CurrentBid:    a.CurrentBid,
				HighestBidder: a.HighestBidder,
			}
			resp, err := ask(ctx, g.timeouts.Bid, func(c context.Context) (BidResponse, error) {
				return g.seats[id].Bid(c, req)
			})
			if err != nil {
				g.fallback(id, "bid", err)
			}
			if a.Offer(id, resp.Bid, p.Elektro) {
				raised = true
				g.record(id, "bid", "%d for #%d", resp.Bid, plant.MinBid)
			} else {
				g.record(id, "pass", "#%d at %d", plant.MinBid, a.CurrentBid)
			}
		}
		if !raised {
			break
		}
	}

	g.settle(ctx, a)
	return a.HighestBidder
}

// settle pays for the plant, hands it over and refills the market.
func (g *Game) settle(ctx context.Context, a *Auction) {
	winner := g.players[a.HighestBidder]
	g.mu.Lock()
	plant, stepCard, err := g.plants.RemovePurchased(a.Plant.MinBid)
	if err != nil {
		g.mu.Unlock()
		// the plant was validated against the current row before the auction
		g.log.Printf("settle #%d: %v", a.Plant.MinBid, err)
		return
	}
	winner.Elektro -= a.CurrentBid
	winner.Plants = append(winner.Plants, newOwnedPlant(plant))
	winner.HasBoughtPlant = true
	g.mu.Unlock()
	g.record(winner.ID, EventSale, "bought #%d for %d", plant.MinBid, a.CurrentBid)

	if len(winner.Plants) > g.rules.MaxPlants {
		g.discard(ctx, winner, plant.MinBid)
	}
	sale := &Sale{Winner: winner.ID, Plant: plant.MinBid, Price: a.CurrentBid}
	g.notifyAll(ctx, EventSale, func(n *Notification) { n.Sale = sale })
	if stepCard {
		g.advanceStep(ctx, 3, "step card drawn")
	}
}

// discard asks player to give up one plant other than the one just bought.
// Anything else discards the lowest numbered of the others.
func (g *Game) discard(ctx context.Context, player *Player, newPlant int) {
	req := DiscardRequest{State: g.snapshot(player.ID), NewPlant: newPlant}
	resp, err := ask(ctx, g.timeouts.Discard, func(c context.Context) (DiscardResponse, error) {
		return g.seats[player.ID].Discard(c, req)
	})
	if err != nil {
		g.fallback(player.ID, "discard", err)
	}
	choice := resp.DiscardNumber
	if _, owned := player.Plant(choice); !owned || choice == newPlant {
		choice = lowestOther(player, newPlant)
		if err == nil {
			g.record(player.ID, "malformed", "discard #%d is not allowed, using #%d", resp.DiscardNumber, choice)
		}
	}
	g.mu.Lock()
	dropped, lost := player.dropPlant(choice)
	if dropped != nil {
		g.plants.Discard(dropped.PowerPlant)
	}
	g.mu.Unlock()
	if dropped == nil {
		return
	}
	g.record(player.ID, EventDiscarded, "#%d (%d units lost)", dropped.MinBid, lost)
}

func lowestOther(p *Player, exclude int) int {
	best := 0
	for _, op := range p.Plants {
		if op.MinBid == exclude {
			continue
		}
		if best == 0 || op.MinBid < best {
			best = op.MinBid
		}
	}
	return best
}

func (a *Auction) String() string {
	return fmt.Sprintf("auction #%d: %d by %s (%d left)", a.Plant.MinBid, a.CurrentBid, a.HighestBidder, a.Remaining())
}
