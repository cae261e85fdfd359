package agent

import (
	"context"
	"fmt"
	"net/url"

	"github.com/gorilla/websocket"

	"github.com/example/power-grid/internal/game"
	"github.com/example/power-grid/internal/transport"
)

// Dial opens a seat connection to the server's /ws endpoint.
func Dial(ctx context.Context, serverURL, token string) (*transport.WSConn, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("bad server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/ws"
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u.Redacted(), err)
	}
	return transport.NewWSConn(ws, nil, "server"), nil
}

// Play dials the server and answers for strategy until the game ends.
func Play(ctx context.Context, serverURL, token string, strategy game.Strategy) error {
	conn, err := Dial(ctx, serverURL, token)
	if err != nil {
		return err
	}
	defer conn.Close()
	return transport.Serve(ctx, conn, strategy)
}
