// Package server hosts games: it creates rooms, hands out seat tokens,
// binds websocket connections to seats and runs one orchestrator per room.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/example/power-grid/internal/agent"
	"github.com/example/power-grid/internal/auth"
	"github.com/example/power-grid/internal/config"
	"github.com/example/power-grid/internal/game"
	"github.com/example/power-grid/internal/transport"
)

var (
	ErrRoomNotFound = errors.New("game not found")
	ErrSeatTaken    = errors.New("seat already connected")
)

// Seat is one player slot of a room.
type Seat struct {
	ID        game.PlayerID `json:"id"`
	Name      string        `json:"name"`
	Bot       bool          `json:"bot"`
	Connected bool          `json:"connected"`
	link      *link
}

// Room holds one game and its seats. The game is created once every remote
// seat has connected.
type Room struct {
	ID       string       `json:"id"`
	Name     string       `json:"name"`
	Created  time.Time    `json:"created"`
	Started  bool         `json:"started"`
	Finished bool         `json:"finished"`
	Seats    []*Seat      `json:"seats"`
	Result   *game.Result `json:"result,omitempty"`
	Error    string       `json:"error,omitempty"`
	game     *game.Game
	mu       sync.Mutex
}

func (room *Room) seat(id game.PlayerID) *Seat {
	for _, s := range room.Seats {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// summary is the list view of a room. Callers hold room.mu.
func (room *Room) summary() RoomSummary {
	s := RoomSummary{
		ID:       room.ID,
		Name:     room.Name,
		Created:  room.Created,
		Started:  room.Started,
		Finished: room.Finished,
		Seats:    len(room.Seats),
	}
	for _, seat := range room.Seats {
		if seat.Bot || seat.Connected {
			s.Filled++
		}
	}
	if room.game != nil {
		v := room.game.View()
		s.Round = v.Round
		s.Phase = v.Phase.String()
	}
	return s
}

// RoomSummary is one row of GET /api/games.
type RoomSummary struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Created  time.Time `json:"created"`
	Started  bool      `json:"started"`
	Finished bool      `json:"finished"`
	Seats    int       `json:"seats"`
	Filled   int       `json:"filled"`
	Round    int       `json:"round,omitempty"`
	Phase    string    `json:"phase,omitempty"`
}

// GameServer is the registry of rooms.
type GameServer struct {
	cfg      *config.Config
	issuer   *auth.Issuer
	rooms    map[string]*Room
	roomsMu  sync.RWMutex
	upgrader websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewGameServer(cfg *config.Config, issuer *auth.Issuer) *GameServer {
	ctx, cancel := context.WithCancel(context.Background())
	gs := &GameServer{
		cfg:    cfg,
		issuer: issuer,
		rooms:  make(map[string]*Room),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		ctx:    ctx,
		cancel: cancel,
	}
	return gs
}

// SeatToken is returned once, when a room is created.
type SeatToken struct {
	Seat  game.PlayerID `json:"seat"`
	Name  string        `json:"name"`
	Token string        `json:"token"`
}

// CreateRoom registers a room with players remote seats and bots built-in
// seats. Names label the remote seats in order. A room without remote seats
// starts at once.
func (gs *GameServer) CreateRoom(name string, players, bots int, names []string) (*Room, []SeatToken, error) {
	if players < 0 || bots < 0 {
		return nil, nil, fmt.Errorf("seat counts must not be negative")
	}
	if err := gs.cfg.Rules().ValidatePlayers(players + bots); err != nil {
		return nil, nil, err
	}
	id := uuid.NewString()
	if name == "" {
		name = "Game " + id[:4]
	}
	room := &Room{ID: id, Name: name, Created: time.Now()}
	var tokens []SeatToken
	for i := 0; i < players; i++ {
		seatName := fmt.Sprintf("Player %d", i+1)
		if i < len(names) && names[i] != "" {
			seatName = names[i]
		}
		s := &Seat{ID: game.PlayerID(fmt.Sprintf("p%d", i+1)), Name: seatName, link: &link{}}
		tok, err := gs.issuer.IssueSeat(id, string(s.ID), s.Name)
		if err != nil {
			return nil, nil, err
		}
		room.Seats = append(room.Seats, s)
		tokens = append(tokens, SeatToken{Seat: s.ID, Name: s.Name, Token: tok})
	}
	for i := 0; i < bots; i++ {
		room.Seats = append(room.Seats, &Seat{
			ID:   game.PlayerID(fmt.Sprintf("bot%d", i+1)),
			Name: fmt.Sprintf("Bot %d", i+1),
			Bot:  true,
		})
	}
	gs.roomsMu.Lock()
	gs.rooms[room.ID] = room
	gs.roomsMu.Unlock()
	log.Printf("created game %s with %d remote and %d bot seats", room.ID, players, bots)

	if players == 0 {
		if err := gs.startGame(room); err != nil {
			return nil, nil, err
		}
	}
	return room, tokens, nil
}

func (gs *GameServer) getRoom(id string) (*Room, error) {
	gs.roomsMu.RLock()
	defer gs.roomsMu.RUnlock()
	room, ok := gs.rooms[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, id)
	}
	return room, nil
}

// Rooms lists every room, oldest first.
func (gs *GameServer) Rooms() []RoomSummary {
	gs.roomsMu.RLock()
	rooms := make([]*Room, 0, len(gs.rooms))
	for _, room := range gs.rooms {
		rooms = append(rooms, room)
	}
	gs.roomsMu.RUnlock()

	resp := make([]RoomSummary, 0, len(rooms))
	for _, room := range rooms {
		room.mu.Lock()
		resp = append(resp, room.summary())
		room.mu.Unlock()
	}
	// sort for stable output
	sort.Slice(resp, func(i, j int) bool {
		if resp[i].Created.Equal(resp[j].Created) {
			return resp[i].ID < resp[j].ID
		}
		return resp[i].Created.Before(resp[j].Created)
	})
	return resp
}

// openSeat finds the seat a token names. Callers hold room.mu.
func (room *Room) openSeat(claims *auth.Claims) (*Seat, error) {
	seat := room.seat(game.PlayerID(claims.Seat))
	switch {
	case seat == nil || seat.Bot:
		return nil, fmt.Errorf("%w: no remote seat %s", ErrRoomNotFound, claims.Seat)
	case room.Finished:
		return nil, fmt.Errorf("%w: game is over", ErrSeatTaken)
	case seat.Connected:
		return nil, fmt.Errorf("%w: %s", ErrSeatTaken, seat.ID)
	}
	return seat, nil
}

// checkSeat reports whether a token could attach right now.
func (gs *GameServer) checkSeat(claims *auth.Claims) error {
	room, err := gs.getRoom(claims.GameID)
	if err != nil {
		return err
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	_, err = room.openSeat(claims)
	return err
}

// attach binds a websocket to a seat and starts the game once every remote
// seat is connected. A seat whose previous connection dropped may attach
// again; the running game picks the new connection up on its next call.
func (gs *GameServer) attach(claims *auth.Claims, ws *websocket.Conn) (*transport.WSConn, error) {
	room, err := gs.getRoom(claims.GameID)
	if err != nil {
		return nil, err
	}
	room.mu.Lock()
	seat, err := room.openSeat(claims)
	if err != nil {
		room.mu.Unlock()
		return nil, err
	}
	conn := transport.NewWSConn(ws, transport.NewLimiter(gs.cfg.RateLimit, gs.cfg.RateBurst), fmt.Sprintf("%s/%s", shortID(room.ID), seat.ID))
	seat.link.set(transport.NewRemote(conn), conn)
	seat.Connected = true
	ready := !room.Started
	for _, s := range room.Seats {
		if !s.Bot && !s.Connected {
			ready = false
		}
	}
	room.mu.Unlock()
	log.Printf("seat %s of game %s connected", seat.ID, shortID(room.ID))

	welcome, _ := transport.NewEnvelope(transport.TypeWelcome, 0, map[string]string{
		"gameId": room.ID,
		"seat":   string(seat.ID),
		"name":   seat.Name,
	})
	ctx, cancel := context.WithTimeout(gs.ctx, 5*time.Second)
	conn.Send(ctx, welcome)
	cancel()

	go gs.watch(room, seat, conn)
	if ready {
		if err := gs.startGame(room); err != nil {
			return conn, err
		}
	}
	return conn, nil
}

// watch frees the seat when its connection goes away.
func (gs *GameServer) watch(room *Room, seat *Seat, conn *transport.WSConn) {
	<-conn.Done()
	room.mu.Lock()
	if seat.link.clear(conn) {
		seat.Connected = false
	}
	finished := room.Finished
	room.mu.Unlock()
	if !finished {
		log.Printf("seat %s of game %s disconnected", seat.ID, shortID(room.ID))
	}
}

func (gs *GameServer) startGame(room *Room) error {
	room.mu.Lock()
	defer room.mu.Unlock()
	if room.Started {
		return nil
	}
	opts, err := gs.cfg.GameOptions()
	if err != nil {
		return err
	}
	opts.ID = room.ID
	opts.Logger = log.New(log.Writer(), fmt.Sprintf("[game %s] ", shortID(room.ID)), log.LstdFlags)
	seats := make([]game.Seat, 0, len(room.Seats))
	for _, s := range room.Seats {
		var strategy game.Strategy = s.link
		if s.Bot {
			strategy = agent.NewGreedy()
		}
		seats = append(seats, game.Seat{ID: s.ID, Name: s.Name, Strategy: strategy})
	}
	g, err := game.New(opts, seats)
	if err != nil {
		room.Error = err.Error()
		return err
	}
	room.game = g
	room.Started = true
	gs.wg.Add(1)
	go gs.runGame(room, g)
	return nil
}

func (gs *GameServer) runGame(room *Room, g *game.Game) {
	defer gs.wg.Done()
	log.Printf("game %s started", shortID(room.ID))
	res, err := g.Run(gs.ctx)
	room.mu.Lock()
	room.Finished = true
	room.Result = res
	if err != nil {
		room.Error = err.Error()
	}
	links := make([]*link, 0, len(room.Seats))
	for _, s := range room.Seats {
		if s.link != nil {
			links = append(links, s.link)
			s.Connected = false
		}
	}
	room.mu.Unlock()
	for _, l := range links {
		l.close()
	}
	if err != nil {
		log.Printf("game %s stopped: %v", shortID(room.ID), err)
		return
	}
	log.Printf("game %s finished after %d rounds, winners %v", shortID(room.ID), res.Rounds, res.Winners)
}

// Shutdown stops every running game and waits for the orchestrators to
// return or ctx to expire.
func (gs *GameServer) Shutdown(ctx context.Context) error {
	gs.cancel()
	done := make(chan struct{})
	go func() {
		gs.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func defaultStr(s, d string) string {
	if s == "" {
		return d
	}
	return s
}
