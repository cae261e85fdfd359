// Package game runs one game: it owns the state, sequences the five phases
// of every round and asks each seat's Strategy for decisions.
//
// The goroutine calling Run is the only writer of the game state. Other
// goroutines read it through View and Journal.
package game

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/power-grid/internal/board"
	"github.com/example/power-grid/internal/market"
	"github.com/example/power-grid/internal/rules"
)

// Phase is the closed set of orchestrator states.
type Phase int

const (
	PhaseSetup Phase = iota
	PhaseOrder
	PhaseAuction
	PhaseResources
	PhaseBuild
	PhaseBureaucracy
	PhaseOver
)

var phaseNames = map[Phase]string{
	PhaseSetup:       "setup",
	PhaseOrder:       "order",
	PhaseAuction:     "auction",
	PhaseResources:   "resources",
	PhaseBuild:       "build",
	PhaseBureaucracy: "bureaucracy",
	PhaseOver:        "over",
}

func (p Phase) String() string {
	if s, ok := phaseNames[p]; ok {
		return s
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *Phase) UnmarshalText(b []byte) error {
	for k, v := range phaseNames {
		if v == string(b) {
			*p = k
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", b)
}

// PowerPolicy decides how much of a player's bureaucracy report is believed.
type PowerPolicy string

const (
	// PowerVerify recomputes capacity from stored fuel and pays for the
	// smaller of the reported and computed counts.
	PowerVerify PowerPolicy = "verify"
	// PowerTrust pays for the reported count and deducts the reported fuel.
	PowerTrust PowerPolicy = "trust"
)

// Timeouts bounds each kind of strategy call.
type Timeouts struct {
	Choice    time.Duration
	Bid       time.Duration
	Discard   time.Duration
	Resources time.Duration
	Build     time.Duration
	Power     time.Duration
	Notify    time.Duration
}

// DefaultTimeouts are the per-phase limits used when none are configured.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Choice:    30 * time.Second,
		Bid:       15 * time.Second,
		Discard:   30 * time.Second,
		Resources: 30 * time.Second,
		Build:     30 * time.Second,
		Power:     30 * time.Second,
		Notify:    5 * time.Second,
	}
}

func (t Timeouts) withDefaults() Timeouts {
	d := DefaultTimeouts()
	fill := func(v *time.Duration, def time.Duration) {
		if *v <= 0 {
			*v = def
		}
	}
	fill(&t.Choice, d.Choice)
	fill(&t.Bid, d.Bid)
	fill(&t.Discard, d.Discard)
	fill(&t.Resources, d.Resources)
	fill(&t.Build, d.Build)
	fill(&t.Power, d.Power)
	fill(&t.Notify, d.Notify)
	return t
}

// Options configures a game. Zero values fall back to the base game.
type Options struct {
	ID          string
	Rules       *rules.Rules
	Map         *board.Map
	Seed        int64
	Timeouts    Timeouts
	PowerPolicy PowerPolicy
	// MaxRounds ends a stalled game; zero means no limit.
	MaxRounds int
	Logger    *log.Logger
}

// Seat binds a player to the strategy deciding for it.
type Seat struct {
	ID       PlayerID
	Name     string
	Strategy Strategy
}

// Game is the state of one game plus the orchestrator that drives it.
type Game struct {
	ID string

	mu        sync.RWMutex
	rules     *rules.Rules
	board     *board.Map
	resources *market.ResourceMarket
	plants    *market.PlantMarket
	players   map[PlayerID]*Player
	order     []PlayerID
	seats     map[PlayerID]Strategy
	phase     Phase
	round     int
	step      int
	result    *Result

	rng       *rand.Rand
	timeouts  Timeouts
	policy    PowerPolicy
	maxRounds int
	journal   *Journal
	log       *log.Logger
}

// New validates the configuration and sets up markets and players. Only
// static configuration errors are returned.
func New(opts Options, seats []Seat) (*Game, error) {
	r := opts.Rules
	if r == nil {
		r = rules.Default()
	}
	if err := r.ValidatePlayers(len(seats)); err != nil {
		return nil, err
	}
	m := opts.Map
	if m == nil {
		m = board.USA()
	}
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	plants, err := market.NewPlantMarket(r, len(seats), rng)
	if err != nil {
		return nil, err
	}
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	policy := opts.PowerPolicy
	switch policy {
	case "":
		policy = PowerVerify
	case PowerVerify, PowerTrust:
	default:
		return nil, fmt.Errorf("unknown power policy %q", policy)
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.Writer(), fmt.Sprintf("[game %s] ", shortID(id)), log.LstdFlags)
	}

	g := &Game{
		ID:        id,
		rules:     r,
		board:     m,
		resources: market.NewResourceMarket(r),
		plants:    plants,
		players:   make(map[PlayerID]*Player, len(seats)),
		seats:     make(map[PlayerID]Strategy, len(seats)),
		phase:     PhaseSetup,
		round:     1,
		step:      1,
		rng:       rng,
		timeouts:  opts.Timeouts.withDefaults(),
		policy:    policy,
		maxRounds: opts.MaxRounds,
		journal:   &Journal{},
		log:       logger,
	}
	for _, s := range seats {
		if s.Strategy == nil {
			return nil, fmt.Errorf("seat %q has no strategy", s.ID)
		}
		pid := s.ID
		if pid == "" {
			pid = PlayerID(uuid.NewString()[:8])
		}
		if _, dup := g.players[pid]; dup {
			return nil, fmt.Errorf("duplicate player id %q", pid)
		}
		name := s.Name
		if name == "" {
			name = "Player " + string(pid)
		}
		g.players[pid] = &Player{
			ID:      pid,
			Name:    name,
			Elektro: r.StartingElektro,
			Houses:  r.StartingHouses,
		}
		g.seats[pid] = s.Strategy
		g.order = append(g.order, pid)
	}
	return g, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// Journal exposes the audit log.
func (g *Game) Journal() *Journal { return g.journal }

// Phase returns the current phase.
func (g *Game) Phase() Phase {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.phase
}

// Result is set once the game is over.
func (g *Game) Result() *Result {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.result
}

// View is a snapshot for observers outside the game.
func (g *Game) View() Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.snapshot("")
}

// snapshot copies the state for viewer. Callers hold g.mu or are the
// orchestrator goroutine.
func (g *Game) snapshot(viewer PlayerID) Snapshot {
	s := Snapshot{
		GameID:       g.ID,
		Round:        g.round,
		Step:         g.step,
		Phase:        g.phase,
		You:          viewer,
		Order:        append([]PlayerID(nil), g.order...),
		Map:          g.board.Snapshot(),
		Resources:    g.resources.Snapshot(),
		Plants:       g.plants.Snapshot(),
		BuildingCost: g.rules.Building(g.step),
		GameEndAt:    g.rules.GameEndCities[len(g.order)],
	}
	for _, id := range g.order {
		s.Players = append(s.Players, g.players[id].Clone())
	}
	return s
}

// record writes to both the journal and the game log.
func (g *Game) record(player PlayerID, event, format string, args ...interface{}) {
	detail := fmt.Sprintf(format, args...)
	g.journal.append(JournalEntry{Round: g.round, Phase: g.phase, Player: player, Event: event, Detail: detail})
	if player != "" {
		g.log.Printf("round %d %s: %s %s: %s", g.round, g.phase, player, event, detail)
		return
	}
	g.log.Printf("round %d %s: %s: %s", g.round, g.phase, event, detail)
}

// ask runs one strategy call under a deadline. The call runs on its own
// goroutine so a strategy that ignores ctx cannot stall the game.
func ask[T any](ctx context.Context, d time.Duration, call func(context.Context) (T, error)) (T, error) {
	cctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := call(cctx)
		ch <- result{v, err}
	}()
	select {
	case r := <-ch:
		return r.v, r.err
	case <-cctx.Done():
		var zero T
		return zero, cctx.Err()
	}
}

// fallback logs why a response was replaced by the default.
func (g *Game) fallback(player PlayerID, what string, err error) {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		g.record(player, "timeout", "%s: no answer in time, using default", what)
	default:
		g.record(player, "malformed", "%s: %v, using default", what, err)
	}
}

// notifyAll sends a notification to every seat, each with its own view.
// Notification failures are logged and otherwise ignored.
func (g *Game) notifyAll(ctx context.Context, event string, decorate func(*Notification)) {
	for _, id := range g.order {
		n := Notification{Event: event, State: g.snapshot(id)}
		if decorate != nil {
			decorate(&n)
		}
		strategy := g.seats[id]
		if _, err := ask(ctx, g.timeouts.Notify, func(c context.Context) (struct{}, error) {
			return struct{}{}, strategy.Notify(c, n)
		}); err != nil {
			g.log.Printf("notify %s of %s: %v", id, event, err)
		}
	}
}

// orderedPlayers returns players by position, ascending.
func (g *Game) orderedPlayers() []*Player {
	out := make([]*Player, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.players[id])
	}
	return out
}

// reversedPlayers returns players by position, descending.
func (g *Game) reversedPlayers() []*Player {
	ps := g.orderedPlayers()
	for i, j := 0, len(ps)-1; i < j; i, j = i+1, j-1 {
		ps[i], ps[j] = ps[j], ps[i]
	}
	return ps
}

// advanceStep raises the game step. It never lowers it and stops at 3.
func (g *Game) advanceStep(ctx context.Context, to int, why string) {
	if to > 3 {
		to = 3
	}
	if to <= g.step {
		return
	}
	g.mu.Lock()
	g.step = to
	g.board.SetStep(to)
	g.mu.Unlock()
	g.record("", EventStep, "step %d (%s)", to, why)
	g.notifyAll(ctx, EventStep, nil)
}
