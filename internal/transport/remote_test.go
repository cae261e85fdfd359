package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/example/power-grid/internal/game"
	"github.com/example/power-grid/internal/market"
	"github.com/example/power-grid/internal/rules"
)

// echo answers every call with a fixed, recognisable move.
type echo struct {
	notes chan game.Notification
	fail  bool
}

func (e *echo) ChooseAuction(_ context.Context, req game.AuctionChoiceRequest) (game.AuctionChoice, error) {
	if e.fail {
		return game.AuctionChoice{}, errors.New("no idea")
	}
	return game.AuctionChoice{Choice: game.ChoiceAuction, PlantNumber: req.State.Plants.Current[0].MinBid}, nil
}

func (e *echo) Bid(_ context.Context, req game.BidRequest) (game.BidResponse, error) {
	return game.BidResponse{Bid: req.CurrentBid + 1}, nil
}

func (e *echo) Discard(_ context.Context, req game.DiscardRequest) (game.DiscardResponse, error) {
	return game.DiscardResponse{DiscardNumber: req.NewPlant - 1}, nil
}

func (e *echo) BuyResources(context.Context, game.ResourceRequest) (game.ResourceResponse, error) {
	return game.ResourceResponse{Purchases: map[rules.Resource]int{rules.Coal: 2}}, nil
}

func (e *echo) Build(context.Context, game.BuildRequest) (game.BuildResponse, error) {
	return game.BuildResponse{Locations: []string{"a", "b"}}, nil
}

func (e *echo) Power(context.Context, game.PowerRequest) (game.PowerResponse, error) {
	return game.PowerResponse{CitiesPowered: 3, ResourcesConsumed: map[rules.Resource]int{rules.Oil: 1}}, nil
}

func (e *echo) Notify(_ context.Context, n game.Notification) error {
	if e.notes != nil {
		e.notes <- n
	}
	return nil
}

func testState() game.Snapshot {
	return game.Snapshot{
		GameID: "g1",
		Round:  2,
		You:    "p1",
		Plants: market.PlantMarketView{Current: []market.PowerPlant{{MinBid: 13, Cities: 1}}},
	}
}

func serveEcho(t *testing.T, s game.Strategy) (*Remote, chan error) {
	t.Helper()
	server, client := Pipe()
	t.Cleanup(func() { server.Close() })
	done := make(chan error, 1)
	go func() { done <- Serve(context.Background(), client, s) }()
	return NewRemote(server), done
}

func TestRemoteRoundTrip(t *testing.T) {
	r, _ := serveEcho(t, &echo{})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	choice, err := r.ChooseAuction(ctx, game.AuctionChoiceRequest{State: testState(), CanPass: true})
	if err != nil {
		t.Fatal(err)
	}
	if choice.Choice != game.ChoiceAuction || choice.PlantNumber != 13 {
		t.Fatalf("choice = %+v", choice)
	}
	bid, err := r.Bid(ctx, game.BidRequest{State: testState(), CurrentBid: 20})
	if err != nil || bid.Bid != 21 {
		t.Fatalf("bid = %+v, %v", bid, err)
	}
	disc, err := r.Discard(ctx, game.DiscardRequest{State: testState(), NewPlant: 30})
	if err != nil || disc.DiscardNumber != 29 {
		t.Fatalf("discard = %+v, %v", disc, err)
	}
	res, err := r.BuyResources(ctx, game.ResourceRequest{State: testState()})
	if err != nil || res.Purchases[rules.Coal] != 2 {
		t.Fatalf("resources = %+v, %v", res, err)
	}
	build, err := r.Build(ctx, game.BuildRequest{State: testState()})
	if err != nil || strings.Join(build.Locations, ",") != "a,b" {
		t.Fatalf("build = %+v, %v", build, err)
	}
	pow, err := r.Power(ctx, game.PowerRequest{State: testState()})
	if err != nil || pow.CitiesPowered != 3 || pow.ResourcesConsumed[rules.Oil] != 1 {
		t.Fatalf("power = %+v, %v", pow, err)
	}
}

func TestRemoteStrategyError(t *testing.T) {
	r, _ := serveEcho(t, &echo{fail: true})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := r.ChooseAuction(ctx, game.AuctionChoiceRequest{State: testState()})
	if !errors.Is(err, ErrMalformed) || !strings.Contains(err.Error(), "no idea") {
		t.Fatalf("err = %v", err)
	}
	// the connection survives an agent error
	if _, err := r.Bid(ctx, game.BidRequest{State: testState(), CurrentBid: 1}); err != nil {
		t.Fatal(err)
	}
}

func TestServeStopsOnGameOver(t *testing.T) {
	notes := make(chan game.Notification, 4)
	r, done := serveEcho(t, &echo{notes: notes})
	ctx := context.Background()

	if err := r.Notify(ctx, game.Notification{Event: game.EventSetup, State: testState()}); err != nil {
		t.Fatal(err)
	}
	if err := r.Notify(ctx, game.Notification{Event: game.EventGameOver, State: testState()}); err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after game over")
	}
	if got := (<-notes).Event; got != game.EventSetup {
		t.Fatalf("first event = %s", got)
	}
	if got := (<-notes).Event; got != game.EventGameOver {
		t.Fatalf("second event = %s", got)
	}
}

func TestRemoteSkipsStaleReplies(t *testing.T) {
	server, client := Pipe()
	defer server.Close()
	r := NewRemote(server)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	go func() {
		in, err := client.Receive(ctx)
		if err != nil {
			return
		}
		stale, _ := NewEnvelope(TypeReply, in.Seq-1, game.BidResponse{Bid: 99})
		client.Send(ctx, stale)
		fresh, _ := NewEnvelope(TypeReply, in.Seq, game.BidResponse{Bid: 7})
		client.Send(ctx, fresh)
	}()
	// burn a sequence number so the stale reply has a plausible seq
	r.seq = 4
	got, err := r.Bid(ctx, game.BidRequest{State: testState()})
	if err != nil {
		t.Fatal(err)
	}
	if got.Bid != 7 {
		t.Fatalf("bid = %d, want reply matching the request sequence", got.Bid)
	}
}

func TestRemoteTimeout(t *testing.T) {
	server, client := Pipe()
	defer server.Close()
	defer client.Close()
	r := NewRemote(server)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := r.Power(ctx, game.PowerRequest{State: testState()})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

func TestServeUnknownType(t *testing.T) {
	server, client := Pipe()
	defer server.Close()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	go Serve(ctx, client, &echo{})

	bad, _ := NewEnvelope("dance", 3, map[string]int{"x": 1})
	if err := server.Send(ctx, bad); err != nil {
		t.Fatal(err)
	}
	in, err := server.Receive(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if in.Type != TypeError || in.Seq != 3 {
		t.Fatalf("reply = %s #%d, want error #3", in.Type, in.Seq)
	}
}

func TestDecodeEmptyPayload(t *testing.T) {
	e := Envelope{Type: TypeBid, Seq: 1}
	var resp game.BidResponse
	if err := e.Decode(&resp); !errors.Is(err, ErrMalformed) {
		t.Fatalf("err = %v", err)
	}
}

func TestPipeClose(t *testing.T) {
	a, b := Pipe()
	a.Close()
	if _, err := b.Receive(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("Receive after close = %v", err)
	}
	if err := b.Send(context.Background(), Envelope{Type: TypeNotify}); !errors.Is(err, ErrClosed) {
		t.Fatalf("Send after close = %v", err)
	}
}

func TestWebsocketRoundTrip(t *testing.T) {
	upgrader := websocket.Upgrader{}
	served := make(chan error, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			served <- err
			return
		}
		conn := NewWSConn(ws, nil, "agent")
		defer conn.Close()
		served <- Serve(r.Context(), conn, &echo{})
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	conn := NewWSConn(ws, NewLimiter(100, 10), "server")
	defer conn.Close()
	r := NewRemote(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	got, err := r.Bid(ctx, game.BidRequest{State: testState(), CurrentBid: 40})
	if err != nil {
		t.Fatal(err)
	}
	if got.Bid != 41 {
		t.Fatalf("bid = %d", got.Bid)
	}
	if err := r.Notify(ctx, game.Notification{Event: game.EventGameOver, State: testState()}); err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-served:
		if err != nil {
			t.Fatalf("Serve = %v", err)
		}
	case <-ctx.Done():
		t.Fatal("agent side did not finish")
	}
}

func TestNewLimiterDisabled(t *testing.T) {
	if NewLimiter(0, 1) != nil {
		t.Fatal("zero rate should disable limiting")
	}
}
