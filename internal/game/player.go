package game

import (
	"sort"

	"github.com/example/power-grid/internal/board"
	"github.com/example/power-grid/internal/market"
	"github.com/example/power-grid/internal/rules"
)

// PlayerID is shared with the board so ownership needs no conversion.
type PlayerID = board.PlayerID

// OwnedPlant is a plant in a player's hand together with the fuel stored on it.
type OwnedPlant struct {
	market.PowerPlant
	Stored map[rules.Resource]int `json:"stored"`
}

func newOwnedPlant(p market.PowerPlant) *OwnedPlant {
	return &OwnedPlant{PowerPlant: p, Stored: map[rules.Resource]int{}}
}

// StoredTotal is the number of units on the plant across resource types.
func (o *OwnedPlant) StoredTotal() int {
	n := 0
	for _, v := range o.Stored {
		n += v
	}
	return n
}

// Room is how many more units the plant can hold. Hybrid plants share one
// pool between their two resources.
func (o *OwnedPlant) Room() int { return o.StorageCapacity() - o.StoredTotal() }

// CanRun reports whether one firing is covered by stored fuel.
func (o *OwnedPlant) CanRun() bool {
	return o.Ecological() || o.StoredTotal() >= o.Units
}

// burn works out which units a firing takes, without touching storage.
// Hybrids burn the resources named in prefer first, then in plant order.
func (o *OwnedPlant) burn(prefer map[rules.Resource]int) map[rules.Resource]int {
	order := append([]rules.Resource(nil), o.Resources...)
	sort.SliceStable(order, func(i, j int) bool {
		return prefer[order[i]] > 0 && prefer[order[j]] <= 0
	})
	out := map[rules.Resource]int{}
	need := o.Units
	for _, res := range order {
		if need == 0 {
			break
		}
		take := o.Stored[res]
		if take > need {
			take = need
		}
		if take > 0 {
			out[res] = take
			need -= take
		}
	}
	return out
}

func (o *OwnedPlant) clone() *OwnedPlant {
	c := &OwnedPlant{PowerPlant: o.PowerPlant, Stored: make(map[rules.Resource]int, len(o.Stored))}
	c.Resources = append([]rules.Resource(nil), o.Resources...)
	for k, v := range o.Stored {
		c.Stored[k] = v
	}
	return c
}

// Player is the public and private state of one seat.
type Player struct {
	ID             PlayerID      `json:"id"`
	Name           string        `json:"name"`
	Elektro        int           `json:"elektro"`
	Houses         int           `json:"houses"`
	Locations      []string      `json:"locations"`
	Plants         []*OwnedPlant `json:"plants"`
	Position       int           `json:"position"`
	HasBoughtPlant bool          `json:"hasBoughtPowerPlant"`
	LastPowered    int           `json:"lastPowered"`
}

// Clone returns a deep copy safe to hand to a strategy.
func (p *Player) Clone() Player {
	c := *p
	c.Locations = append([]string(nil), p.Locations...)
	c.Plants = make([]*OwnedPlant, len(p.Plants))
	for i, op := range p.Plants {
		c.Plants[i] = op.clone()
	}
	return c
}

// Stock sums stored fuel per resource over all plants.
func (p *Player) Stock() map[rules.Resource]int {
	out := map[rules.Resource]int{}
	for _, op := range p.Plants {
		for res, n := range op.Stored {
			if n > 0 {
				out[res] += n
			}
		}
	}
	return out
}

// Plant returns the owned plant numbered minBid.
func (p *Player) Plant(minBid int) (*OwnedPlant, bool) {
	for _, op := range p.Plants {
		if op.MinBid == minBid {
			return op, true
		}
	}
	return nil, false
}

// HighestPlant is the largest plant number owned, or 0.
func (p *Player) HighestPlant() int {
	best := 0
	for _, op := range p.Plants {
		if op.MinBid > best {
			best = op.MinBid
		}
	}
	return best
}

// storageOrder lists plants able to hold res, single-fuel plants first so
// hybrid room stays free for the other fuel.
func (p *Player) storageOrder(res rules.Resource) []*OwnedPlant {
	var single, hybrid []*OwnedPlant
	for _, op := range p.Plants {
		if !op.Uses(res) {
			continue
		}
		if op.Hybrid {
			hybrid = append(hybrid, op)
		} else {
			single = append(single, op)
		}
	}
	return append(single, hybrid...)
}

// Room is how many units of res the player can still store.
func (p *Player) Room(res rules.Resource) int {
	n := 0
	for _, op := range p.storageOrder(res) {
		n += op.Room()
	}
	return n
}

// store places up to n units of res on plants and returns how many fit.
func (p *Player) store(res rules.Resource, n int) int {
	stored := 0
	for _, op := range p.storageOrder(res) {
		if n == 0 {
			break
		}
		take := op.Room()
		if take > n {
			take = n
		}
		if take <= 0 {
			continue
		}
		op.Stored[res] += take
		n -= take
		stored += take
	}
	return stored
}

// removeStock takes up to n units of res off the player's plants and
// returns how many were removed.
func (p *Player) removeStock(res rules.Resource, n int) int {
	removed := 0
	for _, op := range p.storageOrder(res) {
		if n == 0 {
			break
		}
		take := op.Stored[res]
		if take > n {
			take = n
		}
		op.Stored[res] -= take
		if op.Stored[res] == 0 {
			delete(op.Stored, res)
		}
		n -= take
		removed += take
	}
	return removed
}

// dropPlant removes a plant from the hand and moves its fuel onto the
// remaining plants. Units that do not fit are lost; the count is returned.
func (p *Player) dropPlant(minBid int) (dropped *OwnedPlant, lost int) {
	idx := -1
	for i, op := range p.Plants {
		if op.MinBid == minBid {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, 0
	}
	dropped = p.Plants[idx]
	p.Plants = append(p.Plants[:idx:idx], p.Plants[idx+1:]...)
	for _, res := range rules.Resources {
		n := dropped.Stored[res]
		if n == 0 {
			continue
		}
		lost += n - p.store(res, n)
	}
	return dropped, lost
}

// Firing is one plant run during bureaucracy.
type Firing struct {
	Plant  int                    `json:"plant"`
	Cities int                    `json:"cities"`
	Burn   map[rules.Resource]int `json:"burn"`
}

// PowerPlan is a choice of plants to fire.
type PowerPlan struct {
	Cities   int                    `json:"cities"`
	Firings  []Firing               `json:"firings"`
	Consumed map[rules.Resource]int `json:"consumed"`
}

// PlanPower picks the plants to fire for up to limit cities, never more
// than the player's own locations. Of the plant sets reaching the most
// cities it takes the one burning the fewest units, then the closest fit.
// Only plants with enough stored fuel are considered, and each plant burns
// only its own storage.
func (p *Player) PlanPower(limit int) PowerPlan {
	return p.planPower(limit, nil)
}

// planScore ranks candidate plans; lower is better after cities.
type planScore struct {
	cities int
	units  int
	miss   int
	over   int
	fired  int
}

func (a planScore) beats(b planScore) bool {
	switch {
	case a.cities != b.cities:
		return a.cities > b.cities
	case a.units != b.units:
		return a.units < b.units
	case a.miss != b.miss:
		return a.miss < b.miss
	case a.over != b.over:
		return a.over < b.over
	}
	return a.fired < b.fired
}

// planPower is PlanPower with a reported consumption. The report only
// breaks ties between equally cheap plans and picks fuel on hybrids.
func (p *Player) planPower(limit int, reported map[rules.Resource]int) PowerPlan {
	if limit > len(p.Locations) {
		limit = len(p.Locations)
	}
	plan := PowerPlan{Consumed: map[rules.Resource]int{}}
	if limit <= 0 {
		return plan
	}
	var runnable []*OwnedPlant
	for _, op := range p.Plants {
		if op.CanRun() {
			runnable = append(runnable, op)
		}
	}
	burns := make([]map[rules.Resource]int, len(runnable))
	for i, op := range runnable {
		burns[i] = op.burn(reported)
	}

	// a hand holds a few plants, so every subset is tried
	best, bestMask := planScore{}, 0
	for mask := 1; mask < 1<<len(runnable); mask++ {
		var sc planScore
		used := map[rules.Resource]int{}
		for i, op := range runnable {
			if mask&(1<<i) == 0 {
				continue
			}
			sc.cities += op.Cities
			sc.fired++
			for res, n := range burns[i] {
				used[res] += n
				sc.units += n
			}
		}
		if sc.cities > limit {
			sc.over = sc.cities - limit
			sc.cities = limit
		}
		for _, res := range rules.Resources {
			d := used[res] - reported[res]
			if d < 0 {
				d = -d
			}
			sc.miss += d
		}
		if bestMask == 0 || sc.beats(best) {
			best, bestMask = sc, mask
		}
	}

	for i, op := range runnable {
		if bestMask&(1<<i) == 0 {
			continue
		}
		f := Firing{Plant: op.MinBid, Cities: op.Cities, Burn: burns[i]}
		for res, n := range f.Burn {
			plan.Consumed[res] += n
		}
		plan.Firings = append(plan.Firings, f)
	}
	plan.Cities = best.cities
	return plan
}

// Capacity is the number of cities the player could power right now.
func (p *Player) Capacity() int {
	return p.PlanPower(len(p.Locations)).Cities
}

// fire burns the fuel of a plan. Firings for plants the player no longer
// holds are ignored.
func (p *Player) fire(plan PowerPlan) {
	for _, f := range plan.Firings {
		op, ok := p.Plant(f.Plant)
		if !ok {
			continue
		}
		for res, n := range f.Burn {
			if op.Stored[res] < n {
				n = op.Stored[res]
			}
			op.Stored[res] -= n
			if op.Stored[res] == 0 {
				delete(op.Stored, res)
			}
		}
	}
}
