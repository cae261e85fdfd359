package server

import (
	"context"
	"sync"

	"github.com/example/power-grid/internal/game"
	"github.com/example/power-grid/internal/transport"
)

// link is the strategy of a remote seat. It forwards to whichever
// connection the seat currently has; while none is attached every call
// fails with transport.ErrClosed and the game uses its default move.
type link struct {
	mu     sync.Mutex
	remote *transport.Remote
	conn   transport.Conn
}

func (l *link) set(r *transport.Remote, conn transport.Conn) {
	l.mu.Lock()
	old := l.conn
	l.remote, l.conn = r, conn
	l.mu.Unlock()
	if old != nil && old != conn {
		old.Close()
	}
}

// clear detaches conn if it is still the current one.
func (l *link) clear(conn transport.Conn) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn != conn {
		return false
	}
	l.remote, l.conn = nil, nil
	return true
}

func (l *link) close() {
	l.mu.Lock()
	conn := l.conn
	l.remote, l.conn = nil, nil
	l.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

func (l *link) current() (*transport.Remote, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.remote == nil {
		return nil, transport.ErrClosed
	}
	return l.remote, nil
}

func (l *link) ChooseAuction(ctx context.Context, req game.AuctionChoiceRequest) (game.AuctionChoice, error) {
	r, err := l.current()
	if err != nil {
		return game.AuctionChoice{}, err
	}
	return r.ChooseAuction(ctx, req)
}

func (l *link) Bid(ctx context.Context, req game.BidRequest) (game.BidResponse, error) {
	r, err := l.current()
	if err != nil {
		return game.BidResponse{}, err
	}
	return r.Bid(ctx, req)
}

func (l *link) Discard(ctx context.Context, req game.DiscardRequest) (game.DiscardResponse, error) {
	r, err := l.current()
	if err != nil {
		return game.DiscardResponse{}, err
	}
	return r.Discard(ctx, req)
}

func (l *link) BuyResources(ctx context.Context, req game.ResourceRequest) (game.ResourceResponse, error) {
	r, err := l.current()
	if err != nil {
		return game.ResourceResponse{}, err
	}
	return r.BuyResources(ctx, req)
}

func (l *link) Build(ctx context.Context, req game.BuildRequest) (game.BuildResponse, error) {
	r, err := l.current()
	if err != nil {
		return game.BuildResponse{}, err
	}
	return r.Build(ctx, req)
}

func (l *link) Power(ctx context.Context, req game.PowerRequest) (game.PowerResponse, error) {
	r, err := l.current()
	if err != nil {
		return game.PowerResponse{}, err
	}
	return r.Power(ctx, req)
}

func (l *link) Notify(ctx context.Context, n game.Notification) error {
	r, err := l.current()
	if err != nil {
		return err
	}
	return r.Notify(ctx, n)
}
