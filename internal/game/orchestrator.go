package game

import (
	"context"
	"fmt"
	"sort"
)

// Standing is one player's final tally.
type Standing struct {
	Player    PlayerID `json:"player"`
	Name      string   `json:"name"`
	Capacity  int      `json:"capacity"`
	Elektro   int      `json:"elektro"`
	Locations int      `json:"locations"`
}

// Result is the outcome of a finished game. Winners holds more than one id
// only when capacity and elektro are both tied.
type Result struct {
	GameID    string     `json:"gameId"`
	Rounds    int        `json:"rounds"`
	Winners   []PlayerID `json:"winners"`
	Standings []Standing `json:"standings"`
	Reason    string     `json:"reason"`
}

// Run plays the game to the end. It returns early only when ctx is
// cancelled, which is checked between phases and while power reports are
// collected.
func (g *Game) Run(ctx context.Context) (*Result, error) {
	for {
		if err := ctx.Err(); err != nil {
			g.record("", "aborted", "%v", err)
			return nil, err
		}
		switch g.phase {
		case PhaseSetup:
			g.setup(ctx)
			g.enter(PhaseOrder)
		case PhaseOrder:
			g.determineOrder(ctx)
			g.enter(PhaseAuction)
		case PhaseAuction:
			g.auctionPhase(ctx)
			g.enter(PhaseResources)
		case PhaseResources:
			g.resourcePhase(ctx)
			g.enter(PhaseBuild)
		case PhaseBuild:
			g.buildPhase(ctx)
			g.enter(PhaseBureaucracy)
		case PhaseBureaucracy:
			over, err := g.bureaucracy(ctx)
			if err != nil {
				g.record("", "aborted", "%v", err)
				return nil, err
			}
			if over {
				g.enter(PhaseOver)
				continue
			}
			if g.maxRounds > 0 && g.round >= g.maxRounds {
				g.mu.Lock()
				g.result = g.standings(g.capacities())
				g.result.Reason = fmt.Sprintf("round limit %d reached", g.maxRounds)
				g.mu.Unlock()
				g.enter(PhaseOver)
				continue
			}
			g.mu.Lock()
			g.round++
			g.mu.Unlock()
			g.enter(PhaseOrder)
		case PhaseOver:
			res := g.Result()
			g.record("", EventGameOver, "winners %s (%s)", joinIDs(res.Winners), res.Reason)
			g.notifyAll(ctx, EventGameOver, func(n *Notification) { n.Result = res })
			return res, nil
		default:
			return nil, fmt.Errorf("game %s: unknown phase %v", g.ID, g.phase)
		}
	}
}

func (g *Game) enter(p Phase) {
	g.mu.Lock()
	g.phase = p
	g.mu.Unlock()
	g.record("", "phase", "entering %s", p)
}

func (g *Game) capacities() map[PlayerID]int {
	out := make(map[PlayerID]int, len(g.players))
	for id, p := range g.players {
		out[id] = p.Capacity()
	}
	return out
}

// standings ranks players by capacity, then elektro. Callers hold g.mu.
func (g *Game) standings(capacity map[PlayerID]int) *Result {
	res := &Result{GameID: g.ID, Rounds: g.round, Reason: "city target reached"}
	for _, p := range g.orderedPlayers() {
		res.Standings = append(res.Standings, Standing{
			Player:    p.ID,
			Name:      p.Name,
			Capacity:  capacity[p.ID],
			Elektro:   p.Elektro,
			Locations: len(p.Locations),
		})
	}
	sort.SliceStable(res.Standings, func(i, j int) bool {
		a, b := res.Standings[i], res.Standings[j]
		if a.Capacity != b.Capacity {
			return a.Capacity > b.Capacity
		}
		return a.Elektro > b.Elektro
	})
	if len(res.Standings) == 0 {
		return res
	}
	top := res.Standings[0]
	for _, s := range res.Standings {
		if s.Capacity == top.Capacity && s.Elektro == top.Elektro {
			res.Winners = append(res.Winners, s.Player)
		}
	}
	return res
}
