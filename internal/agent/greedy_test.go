package agent

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/example/power-grid/internal/board"
	"github.com/example/power-grid/internal/game"
	"github.com/example/power-grid/internal/market"
	"github.com/example/power-grid/internal/rules"
	"github.com/example/power-grid/internal/transport"
)

func plant(n, cities, units int, res ...rules.Resource) market.PowerPlant {
	return market.PowerPlant{MinBid: n, Cities: cities, Units: units, Resources: res, Hybrid: len(res) > 1}
}

func owned(p market.PowerPlant, stored map[rules.Resource]int) *game.OwnedPlant {
	if stored == nil {
		stored = map[rules.Resource]int{}
	}
	return &game.OwnedPlant{PowerPlant: p, Stored: stored}
}

func state(me game.Player) game.Snapshot {
	return game.Snapshot{You: me.ID, Players: []game.Player{me}}
}

func TestChooseAuctionPicksBiggestAffordable(t *testing.T) {
	me := game.Player{ID: "p1", Elektro: 40}
	s := state(me)
	s.Plants.Current = []market.PowerPlant{
		plant(3, 1, 2, rules.Oil),
		plant(10, 2, 2, rules.Coal),
		plant(13, 1, 0),
		plant(30, 6, 3, rules.Garbage),
	}
	got, err := NewGreedy().ChooseAuction(context.Background(), game.AuctionChoiceRequest{State: s, CanPass: true})
	if err != nil {
		t.Fatal(err)
	}
	// 30 is over budget once the reserve is held back
	if got.Choice != game.ChoiceAuction || got.PlantNumber != 10 {
		t.Fatalf("choice = %+v, want auction on 10", got)
	}
}

func TestChooseAuctionPassesWithoutUpgrade(t *testing.T) {
	me := game.Player{ID: "p1", Elektro: 100, Plants: []*game.OwnedPlant{
		owned(plant(20, 5, 3, rules.Coal), nil),
		owned(plant(21, 4, 2, rules.Garbage), nil),
		owned(plant(22, 2, 0), nil),
	}}
	s := state(me)
	s.Plants.Current = []market.PowerPlant{plant(4, 1, 2, rules.Coal), plant(5, 1, 2, rules.Coal, rules.Oil)}

	got, _ := NewGreedy().ChooseAuction(context.Background(), game.AuctionChoiceRequest{State: s, CanPass: true})
	if got.Choice != game.ChoicePass {
		t.Fatalf("choice = %+v, want pass", got)
	}
	// a forced round must still pick something
	got, _ = NewGreedy().ChooseAuction(context.Background(), game.AuctionChoiceRequest{State: s, CanPass: false})
	if got.Choice != game.ChoiceAuction {
		t.Fatalf("forced choice = %+v", got)
	}
}

func TestBidLimits(t *testing.T) {
	g := NewGreedy()
	me := game.Player{ID: "p1", Elektro: 50}
	p := plant(10, 2, 2, rules.Coal)
	tests := []struct {
		name    string
		current int
		opening bool
		want    int
	}{
		{"opening bids minimum", 0, true, 10},
		{"raise by one", 11, false, 12},
		{"at value cap", 13, false, 14},
		{"over value cap", 14, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := g.Bid(context.Background(), game.BidRequest{State: state(me), Plant: p, CurrentBid: tt.current, Opening: tt.opening})
			if err != nil {
				t.Fatal(err)
			}
			if got.Bid != tt.want {
				t.Fatalf("bid = %d, want %d", got.Bid, tt.want)
			}
		})
	}
}

func TestBidRespectsCash(t *testing.T) {
	me := game.Player{ID: "p1", Elektro: 15}
	got, _ := NewGreedy().Bid(context.Background(), game.BidRequest{State: state(me), Plant: plant(10, 3, 2, rules.Coal), CurrentBid: 10})
	if got.Bid != 0 {
		t.Fatalf("bid = %d, want pass", got.Bid)
	}
}

func TestDiscardSmallest(t *testing.T) {
	me := game.Player{ID: "p1", Plants: []*game.OwnedPlant{
		owned(plant(15, 3, 2, rules.Coal), nil),
		owned(plant(8, 2, 3, rules.Coal), nil),
		owned(plant(6, 1, 1, rules.Garbage), nil),
		owned(plant(40, 6, 2, rules.Oil), nil),
	}}
	got, err := NewGreedy().Discard(context.Background(), game.DiscardRequest{State: state(me), NewPlant: 40})
	if err != nil {
		t.Fatal(err)
	}
	if got.DiscardNumber != 6 {
		t.Fatalf("discard = %d, want 6", got.DiscardNumber)
	}
}

func TestBuyResourcesFillsOneFiring(t *testing.T) {
	me := game.Player{ID: "p1", Plants: []*game.OwnedPlant{
		owned(plant(4, 1, 2, rules.Coal), map[rules.Resource]int{rules.Coal: 1}),
		owned(plant(5, 1, 2, rules.Coal, rules.Oil), nil),
		owned(plant(13, 1, 0), nil),
	}}
	s := state(me)
	s.Resources = map[rules.Resource]market.ResourceView{
		rules.Coal: {Quantity: 20, UnitPrice: 3},
		rules.Oil:  {Quantity: 10, UnitPrice: 2},
	}
	got, err := NewGreedy().BuyResources(context.Background(), game.ResourceRequest{State: s})
	if err != nil {
		t.Fatal(err)
	}
	if got.Purchases[rules.Coal] != 1 || got.Purchases[rules.Oil] != 2 {
		t.Fatalf("purchases = %v, want 1 coal and 2 oil", got.Purchases)
	}
}

func TestBuildCheapestConnected(t *testing.T) {
	m := board.New("line")
	for _, tag := range []string{"A", "B", "C", "D"} {
		if err := m.AddLocation(tag, tag, ""); err != nil {
			t.Fatal(err)
		}
	}
	m.AddEdge("A", "B", 5)
	m.AddEdge("B", "C", 7)
	m.AddEdge("C", "D", 3)
	m.Claim("p1", "B")
	m.Claim("p2", "A")

	me := game.Player{ID: "p1", Elektro: 100, Houses: 20, Locations: []string{"B"}, Plants: []*game.OwnedPlant{
		owned(plant(10, 2, 2, rules.Coal), nil),
	}}
	s := state(me)
	s.Map = m.Snapshot()
	s.BuildingCost = 10

	got, err := NewGreedy().Build(context.Background(), game.BuildRequest{State: s})
	if err != nil {
		t.Fatal(err)
	}
	// capacity 2 plus one spare: two more cities, A is taken at step 1
	if len(got.Locations) != 2 || got.Locations[0] != "C" || got.Locations[1] != "D" {
		t.Fatalf("build = %v, want [C D]", got.Locations)
	}
}

func TestBuildStopsAtBudget(t *testing.T) {
	m := board.New("pair")
	m.AddLocation("A", "A", "")
	m.AddLocation("B", "B", "")
	m.AddEdge("A", "B", 30)

	me := game.Player{ID: "p1", Elektro: 25, Houses: 22, Plants: []*game.OwnedPlant{owned(plant(10, 2, 2, rules.Coal), nil)}}
	s := state(me)
	s.Map = m.Snapshot()
	s.BuildingCost = 10

	got, _ := NewGreedy().Build(context.Background(), game.BuildRequest{State: s})
	if len(got.Locations) != 1 || got.Locations[0] != "A" {
		t.Fatalf("build = %v, want [A]", got.Locations)
	}
}

func TestPowerReportsPlan(t *testing.T) {
	me := game.Player{ID: "p1", Locations: []string{"A", "B", "C"}, Plants: []*game.OwnedPlant{
		owned(plant(10, 2, 2, rules.Coal), map[rules.Resource]int{rules.Coal: 2}),
		owned(plant(13, 1, 0), nil),
		owned(plant(7, 2, 3, rules.Oil), map[rules.Resource]int{rules.Oil: 1}),
	}}
	got, err := NewGreedy().Power(context.Background(), game.PowerRequest{State: state(me)})
	if err != nil {
		t.Fatal(err)
	}
	if got.CitiesPowered != 3 || got.ResourcesConsumed[rules.Coal] != 2 || got.ResourcesConsumed[rules.Oil] != 0 {
		t.Fatalf("power = %+v", got)
	}
}

func TestBotsPlayFullGame(t *testing.T) {
	if testing.Short() {
		t.Skip("full game")
	}
	// one bot answers over an in-memory connection, like a remote agent
	server, client := transport.Pipe()
	defer server.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	served := make(chan error, 1)
	go func() { served <- transport.Serve(ctx, client, NewGreedy()) }()

	seats := []game.Seat{
		{ID: "ada", Strategy: NewGreedy()},
		{ID: "bob", Strategy: transport.NewRemote(server)},
		{ID: "cy", Strategy: NewGreedy()},
	}
	g, err := game.New(game.Options{
		Seed:      42,
		MaxRounds: 60,
		Logger:    log.New(io.Discard, "", 0),
	}, seats)
	if err != nil {
		t.Fatal(err)
	}
	res, err := g.Run(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Standings) != 3 || len(res.Winners) == 0 {
		t.Fatalf("result = %+v", res)
	}
	if g.Phase() != game.PhaseOver {
		t.Fatalf("phase = %s", g.Phase())
	}
	for _, p := range g.View().Players {
		if p.Elektro < 0 {
			t.Errorf("%s has negative elektro %d", p.ID, p.Elektro)
		}
		if len(p.Plants) > 3 {
			t.Errorf("%s holds %d plants", p.ID, len(p.Plants))
		}
	}
	if res.Rounds > 1 && len(g.View().Players[0].Locations) == 0 {
		t.Error("bots never built")
	}
	select {
	case err := <-served:
		if err != nil {
			t.Fatalf("remote agent: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("remote agent did not see game over")
	}
}
