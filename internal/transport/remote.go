package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/example/power-grid/internal/game"
)

// Remote is a game.Strategy whose decisions come from an agent on the other
// end of a Conn. Calls are serialised; replies to calls that already timed
// out are discarded by sequence number.
type Remote struct {
	conn Conn
	mu   sync.Mutex
	seq  uint64
}

// NewRemote wraps conn.
func NewRemote(conn Conn) *Remote {
	return &Remote{conn: conn}
}

func (r *Remote) call(ctx context.Context, typ string, req, resp interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	seq := r.seq
	out, err := NewEnvelope(typ, seq, req)
	if err != nil {
		return err
	}
	if err := r.conn.Send(ctx, out); err != nil {
		return err
	}
	for {
		in, err := r.conn.Receive(ctx)
		if err != nil {
			return err
		}
		if in.Seq != seq {
			continue
		}
		switch in.Type {
		case TypeReply:
			return in.Decode(resp)
		case TypeError:
			var msg struct {
				Error string `json:"error"`
			}
			in.Decode(&msg)
			return fmt.Errorf("%w: agent error: %s", ErrMalformed, msg.Error)
		default:
			return fmt.Errorf("%w: expected reply to %s, got %s", ErrMalformed, typ, in.Type)
		}
	}
}

func (r *Remote) ChooseAuction(ctx context.Context, req game.AuctionChoiceRequest) (game.AuctionChoice, error) {
	var resp game.AuctionChoice
	err := r.call(ctx, TypeChooseAuction, req, &resp)
	return resp, err
}

func (r *Remote) Bid(ctx context.Context, req game.BidRequest) (game.BidResponse, error) {
	var resp game.BidResponse
	err := r.call(ctx, TypeBid, req, &resp)
	return resp, err
}

func (r *Remote) Discard(ctx context.Context, req game.DiscardRequest) (game.DiscardResponse, error) {
	var resp game.DiscardResponse
	err := r.call(ctx, TypeDiscard, req, &resp)
	return resp, err
}

func (r *Remote) BuyResources(ctx context.Context, req game.ResourceRequest) (game.ResourceResponse, error) {
	var resp game.ResourceResponse
	err := r.call(ctx, TypeBuyResources, req, &resp)
	return resp, err
}

func (r *Remote) Build(ctx context.Context, req game.BuildRequest) (game.BuildResponse, error) {
	var resp game.BuildResponse
	err := r.call(ctx, TypeBuild, req, &resp)
	return resp, err
}

func (r *Remote) Power(ctx context.Context, req game.PowerRequest) (game.PowerResponse, error) {
	var resp game.PowerResponse
	err := r.call(ctx, TypePower, req, &resp)
	return resp, err
}

// Notify is fire and forget: no reply is expected.
func (r *Remote) Notify(ctx context.Context, n game.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	out, err := NewEnvelope(TypeNotify, r.seq, n)
	if err != nil {
		return err
	}
	return r.conn.Send(ctx, out)
}

// Serve answers requests arriving on conn with strategy until the game
// ends, the connection closes or ctx is cancelled. Requests are answered in
// order; a request that fails to decode gets an error frame.
func Serve(ctx context.Context, conn Conn, strategy game.Strategy) error {
	for {
		in, err := conn.Receive(ctx)
		if err != nil {
			return err
		}
		if in.Type == TypeNotify {
			var n game.Notification
			if err := in.Decode(&n); err != nil {
				continue
			}
			strategy.Notify(ctx, n)
			if n.Event == game.EventGameOver {
				return nil
			}
			continue
		}
		if in.Type == TypeWelcome {
			continue
		}
		resp, err := dispatch(ctx, in, strategy)
		var out Envelope
		if err != nil {
			out, _ = NewEnvelope(TypeError, in.Seq, map[string]string{"error": err.Error()})
		} else {
			out, err = NewEnvelope(TypeReply, in.Seq, resp)
			if err != nil {
				out, _ = NewEnvelope(TypeError, in.Seq, map[string]string{"error": err.Error()})
			}
		}
		if err := conn.Send(ctx, out); err != nil {
			return err
		}
	}
}

func dispatch(ctx context.Context, in Envelope, s game.Strategy) (interface{}, error) {
	switch in.Type {
	case TypeChooseAuction:
		var req game.AuctionChoiceRequest
		if err := in.Decode(&req); err != nil {
			return nil, err
		}
		return s.ChooseAuction(ctx, req)
	case TypeBid:
		var req game.BidRequest
		if err := in.Decode(&req); err != nil {
			return nil, err
		}
		return s.Bid(ctx, req)
	case TypeDiscard:
		var req game.DiscardRequest
		if err := in.Decode(&req); err != nil {
			return nil, err
		}
		return s.Discard(ctx, req)
	case TypeBuyResources:
		var req game.ResourceRequest
		if err := in.Decode(&req); err != nil {
			return nil, err
		}
		return s.BuyResources(ctx, req)
	case TypeBuild:
		var req game.BuildRequest
		if err := in.Decode(&req); err != nil {
			return nil, err
		}
		return s.Build(ctx, req)
	case TypePower:
		var req game.PowerRequest
		if err := in.Decode(&req); err != nil {
			return nil, err
		}
		return s.Power(ctx, req)
	}
	return nil, fmt.Errorf("%w: unknown message type %q", ErrMalformed, in.Type)
}
