package game

import (
	"context"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/example/power-grid/internal/board"
	"github.com/example/power-grid/internal/market"
	"github.com/example/power-grid/internal/rules"
)

// scripted is a Strategy driven by per-call functions. Nil functions give
// the conservative answer.
type scripted struct {
	choice    func(AuctionChoiceRequest) (AuctionChoice, error)
	bid       func(context.Context, BidRequest) (BidResponse, error)
	discard   func(DiscardRequest) (DiscardResponse, error)
	resources func(ResourceRequest) (ResourceResponse, error)
	build     func(BuildRequest) (BuildResponse, error)
	power     func(PowerRequest) (PowerResponse, error)

	mu    sync.Mutex
	notes []Notification
}

func (s *scripted) ChooseAuction(_ context.Context, req AuctionChoiceRequest) (AuctionChoice, error) {
	if s.choice == nil {
		return AuctionChoice{Choice: ChoicePass}, nil
	}
	return s.choice(req)
}

func (s *scripted) Bid(ctx context.Context, req BidRequest) (BidResponse, error) {
	if s.bid == nil {
		return BidResponse{}, nil
	}
	return s.bid(ctx, req)
}

func (s *scripted) Discard(_ context.Context, req DiscardRequest) (DiscardResponse, error) {
	if s.discard == nil {
		return DiscardResponse{}, nil
	}
	return s.discard(req)
}

func (s *scripted) BuyResources(_ context.Context, req ResourceRequest) (ResourceResponse, error) {
	if s.resources == nil {
		return ResourceResponse{}, nil
	}
	return s.resources(req)
}

func (s *scripted) Build(_ context.Context, req BuildRequest) (BuildResponse, error) {
	if s.build == nil {
		return BuildResponse{}, nil
	}
	return s.build(req)
}

func (s *scripted) Power(_ context.Context, req PowerRequest) (PowerResponse, error) {
	if s.power == nil {
		return PowerResponse{}, nil
	}
	return s.power(req)
}

func (s *scripted) Notify(_ context.Context, n Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notes = append(s.notes, n)
	return nil
}

func (s *scripted) events() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.notes))
	for i, n := range s.notes {
		out[i] = n.Event
	}
	return out
}

func quietOptions() Options {
	short := 50 * time.Millisecond
	return Options{
		Seed:   7,
		Logger: log.New(io.Discard, "", 0),
		Timeouts: Timeouts{
			Choice: short, Bid: short, Discard: short,
			Resources: short, Build: short, Power: short, Notify: short,
		},
	}
}

func newTestGame(t *testing.T, opts Options, strategies map[PlayerID]Strategy, ids ...PlayerID) *Game {
	t.Helper()
	seats := make([]Seat, 0, len(ids))
	for _, id := range ids {
		s := strategies[id]
		if s == nil {
			s = &scripted{}
		}
		seats = append(seats, Seat{ID: id, Name: string(id), Strategy: s})
	}
	g, err := New(opts, seats)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return g
}

// lineMap is A-B(5) B-C(7) A-C(20) C-D(3), E isolated.
func lineMap(t *testing.T) *board.Map {
	t.Helper()
	m := board.New("line")
	for _, tag := range []string{"A", "B", "C", "D", "E"} {
		if err := m.AddLocation(tag, tag, ""); err != nil {
			t.Fatal(err)
		}
	}
	for _, e := range []struct {
		a, b string
		cost int
	}{{"A", "B", 5}, {"B", "C", 7}, {"A", "C", 20}, {"C", "D", 3}} {
		if err := m.AddEdge(e.a, e.b, e.cost); err != nil {
			t.Fatal(err)
		}
	}
	return m
}

func ownPlant(p *Player, n int, cities int, units int, res ...rules.Resource) *OwnedPlant {
	op := newOwnedPlant(market.PowerPlant{
		MinBid:    n,
		Cities:    cities,
		Resources: res,
		Units:     units,
		Hybrid:    len(res) > 1,
	})
	p.Plants = append(p.Plants, op)
	return op
}
