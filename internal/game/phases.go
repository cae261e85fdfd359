package game

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/example/power-grid/internal/market"
	"github.com/example/power-grid/internal/rules"
)

// setup draws a random turn order and tells every seat where it sits.
func (g *Game) setup(ctx context.Context) {
	g.mu.Lock()
	g.rng.Shuffle(len(g.order), func(i, j int) { g.order[i], g.order[j] = g.order[j], g.order[i] })
	for i, id := range g.order {
		g.players[id].Position = i + 1
	}
	g.mu.Unlock()
	g.record("", EventSetup, "%d players, order %s", len(g.order), joinIDs(g.order))
	g.notifyAll(ctx, EventSetup, nil)
}

// determineOrder checks for the start of step 2 and re-sorts the players by
// locations owned, then by their biggest plant. The sort is stable so full
// ties keep last round's order.
func (g *Game) determineOrder(ctx context.Context) {
	if g.step == 1 {
		threshold := g.rules.StepStartCities[len(g.order)]
		for _, p := range g.orderedPlayers() {
			if len(p.Locations) >= threshold {
				g.startStepTwo(ctx, p.ID)
				break
			}
		}
	}

	g.mu.Lock()
	sort.SliceStable(g.order, func(i, j int) bool {
		a, b := g.players[g.order[i]], g.players[g.order[j]]
		if len(a.Locations) != len(b.Locations) {
			return len(a.Locations) > len(b.Locations)
		}
		return a.HighestPlant() > b.HighestPlant()
	})
	for i, id := range g.order {
		g.players[id].Position = i + 1
	}
	g.mu.Unlock()
	g.record("", EventOrder, "%s", joinIDs(g.order))
	g.notifyAll(ctx, EventOrder, nil)
}

func (g *Game) startStepTwo(ctx context.Context, trigger PlayerID) {
	g.mu.Lock()
	g.plants.DropLowest()
	stepCard := g.plants.Refill()
	g.mu.Unlock()
	g.advanceStep(ctx, 2, string(trigger)+" reached the step 2 city count")
	if stepCard {
		g.advanceStep(ctx, 3, "step card drawn")
	}
}

// auctionPhase gives every player who has not bought a plant the chance to
// start an auction, in ascending position. Passing ends a player's part in
// this phase, including bidding on later auctions.
func (g *Game) auctionPhase(ctx context.Context) {
	g.mu.Lock()
	for _, p := range g.players {
		p.HasBoughtPlant = false
	}
	g.mu.Unlock()

	passed := map[PlayerID]bool{}
	for _, p := range g.orderedPlayers() {
		if p.HasBoughtPlant || passed[p.ID] {
			continue
		}
		g.offerAuction(ctx, p, passed)
	}
}

// offerAuction asks p to start an auction. In round 1 a player must buy, so
// they are offered again until they do. Later a player who loses the auction
// they started gets one more offer.
func (g *Game) offerAuction(ctx context.Context, p *Player, passed map[PlayerID]bool) {
	mustBuy := g.round == 1
	offers := 0
	for !p.HasBoughtPlant {
		if !mustBuy && offers == 2 {
			return
		}
		offers++
		plant, ok := g.askChoice(ctx, p, !mustBuy)
		if !ok {
			passed[p.ID] = true
			return
		}
		g.runAuction(ctx, p, plant, passed)
	}
}

// askChoice returns the plant p wants to auction, or false for a pass. When
// passing is not allowed, a missing or unusable answer becomes the cheapest
// plant p can afford.
func (g *Game) askChoice(ctx context.Context, p *Player, canPass bool) (market.PowerPlant, bool) {
	req := AuctionChoiceRequest{State: g.snapshot(p.ID), CanPass: canPass}
	resp, err := ask(ctx, g.timeouts.Choice, func(c context.Context) (AuctionChoice, error) {
		return g.seats[p.ID].ChooseAuction(c, req)
	})
	if err != nil {
		g.fallback(p.ID, "auction choice", err)
		resp = AuctionChoice{Choice: ChoicePass}
	}
	if resp.Choice == ChoiceAuction {
		if plant, ok := g.plants.InCurrent(resp.PlantNumber); ok && plant.MinBid <= p.Elektro {
			return plant, true
		}
		g.record(p.ID, "malformed", "plant #%d cannot be auctioned", resp.PlantNumber)
	}
	if canPass {
		g.record(p.ID, "pass", "no auction this round")
		return market.PowerPlant{}, false
	}
	for _, plant := range g.plants.Current() {
		if plant.MinBid <= p.Elektro {
			g.record(p.ID, "forced", "must buy in round %d, auctioning #%d", g.round, plant.MinBid)
			return plant, true
		}
	}
	g.record(p.ID, "pass", "cannot afford any plant")
	return market.PowerPlant{}, false
}

// resourcePhase lets players buy fuel in reverse order. Requests are
// trimmed unit by unit to supply, elektro and storage room.
func (g *Game) resourcePhase(ctx context.Context) {
	for _, p := range g.reversedPlayers() {
		req := ResourceRequest{State: g.snapshot(p.ID)}
		resp, err := ask(ctx, g.timeouts.Resources, func(c context.Context) (ResourceResponse, error) {
			return g.seats[p.ID].BuyResources(c, req)
		})
		if err != nil {
			g.fallback(p.ID, "resources", err)
			continue
		}
		g.mu.Lock()
		bought, spent := g.buyResources(p, resp.Purchases)
		g.mu.Unlock()
		if spent > 0 {
			g.record(p.ID, "bought", "%s for %d", formatAmounts(bought), spent)
		}
	}
}

// buyResources applies a purchase list to p and returns what was bought.
func (g *Game) buyResources(p *Player, want map[rules.Resource]int) (map[rules.Resource]int, int) {
	bought := map[rules.Resource]int{}
	spent := 0
	for _, res := range rules.Resources {
		for n := want[res]; n > 0; n-- {
			price, ok := g.resources.UnitPrice(res)
			if !ok || price > p.Elektro || p.Room(res) == 0 {
				break
			}
			if _, err := g.resources.Purchase(res, 1); err != nil {
				break
			}
			p.Elektro -= price
			p.store(res, 1)
			bought[res]++
			spent += price
		}
	}
	return bought, spent
}

// buildPhase lets players build in reverse order. Each requested location
// is priced after the previous one is built, so a chain of new cities pays
// connection costs from the growing network.
func (g *Game) buildPhase(ctx context.Context) {
	for _, p := range g.reversedPlayers() {
		req := BuildRequest{State: g.snapshot(p.ID)}
		resp, err := ask(ctx, g.timeouts.Build, func(c context.Context) (BuildResponse, error) {
			return g.seats[p.ID].Build(c, req)
		})
		if err != nil {
			g.fallback(p.ID, "build", err)
			continue
		}
		g.mu.Lock()
		built, spent := g.build(p, resp.Locations)
		g.mu.Unlock()
		if len(built) > 0 {
			g.record(p.ID, "built", "%s for %d", strings.Join(built, ","), spent)
		}
	}
}

func (g *Game) build(p *Player, tags []string) ([]string, int) {
	var built []string
	spent := 0
	seen := map[string]bool{}
	for _, tag := range tags {
		if seen[tag] || p.Houses == 0 {
			continue
		}
		seen[tag] = true
		if g.board.Owns(p.ID, tag) || !g.board.IsAvailable(tag, g.step) {
			continue
		}
		conn, err := g.board.ConnectionCost(p.ID, tag)
		if err != nil {
			continue
		}
		cost := conn + g.rules.Building(g.step)
		if cost > p.Elektro {
			continue
		}
		if err := g.board.Claim(p.ID, tag); err != nil {
			continue
		}
		p.Elektro -= cost
		p.Houses--
		p.Locations = append(p.Locations, tag)
		built = append(built, tag)
		spent += cost
	}
	return built, spent
}

// bureaucracy collects power reports from every seat at once, pays income,
// burns fuel, restocks the markets and reports whether the game is over.
// A seat that fails gets the default report; only cancellation of ctx stops
// the round, before anyone is paid.
func (g *Game) bureaucracy(ctx context.Context) (bool, error) {
	players := g.orderedPlayers()
	capacity := make(map[PlayerID]int, len(players))
	reqs := make([]PowerRequest, len(players))
	for i, p := range players {
		capacity[p.ID] = p.Capacity()
		reqs[i] = PowerRequest{State: g.snapshot(p.ID)}
	}

	resps := make([]PowerResponse, len(players))
	errs := make([]error, len(players))
	eg, ectx := errgroup.WithContext(ctx)
	for i, p := range players {
		strategy := g.seats[p.ID]
		eg.Go(func() error {
			resps[i], errs[i] = ask(ectx, g.timeouts.Power, func(c context.Context) (PowerResponse, error) {
				return strategy.Power(c, reqs[i])
			})
			return ctx.Err()
		})
	}
	if err := eg.Wait(); err != nil {
		return false, fmt.Errorf("power reports: %w", err)
	}

	g.mu.Lock()
	for i, p := range players {
		if errs[i] != nil {
			g.fallback(p.ID, "power", errs[i])
		}
		cities := g.power(p, resps[i])
		income := g.rules.Cashback(cities)
		p.LastPowered = cities
		p.Elektro += income
		g.record(p.ID, EventPowered, "%d cities for %d", cities, income)
	}
	added := g.resources.Replenish(g.step, len(players))
	stepCard := g.plants.Advance(g.step)
	g.mu.Unlock()
	g.record("", "replenished", "%s", formatAmounts(added))
	if stepCard {
		g.advanceStep(ctx, 3, "step card drawn")
	}
	g.notifyAll(ctx, EventPowered, nil)

	if !g.gameEndReached() {
		return false, nil
	}
	g.mu.Lock()
	g.result = g.standings(capacity)
	g.mu.Unlock()
	return true, nil
}

// power settles one report and returns the number of cities paid for.
func (g *Game) power(p *Player, resp PowerResponse) int {
	reported := resp.CitiesPowered
	if reported < 0 {
		reported = 0
	}
	if g.policy == PowerTrust {
		if limit := g.rules.MaxCashbackCities(); reported > limit {
			reported = limit
		}
		for res, n := range resp.ResourcesConsumed {
			if n > 0 && res.Valid() {
				p.removeStock(res, n)
			}
		}
		return reported
	}
	plan := p.planPower(reported, resp.ResourcesConsumed)
	p.fire(plan)
	return plan.Cities
}

// gameEndReached reports whether any player owns enough locations.
func (g *Game) gameEndReached() bool {
	threshold := g.rules.GameEndCities[len(g.order)]
	for _, p := range g.players {
		if len(p.Locations) >= threshold {
			return true
		}
	}
	return false
}

func joinIDs(ids []PlayerID) string {
	s := make([]string, len(ids))
	for i, id := range ids {
		s[i] = string(id)
	}
	return strings.Join(s, ",")
}

func formatAmounts(m map[rules.Resource]int) string {
	var parts []string
	for _, res := range rules.Resources {
		if n := m[res]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, res))
		}
	}
	if len(parts) == 0 {
		return "nothing"
	}
	return strings.Join(parts, " ")
}
