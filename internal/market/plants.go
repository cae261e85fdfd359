package market

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/example/power-grid/internal/rules"
)

// VisibleSlots is the size of each visible market row.
const VisibleSlots = 4

// PowerPlant is an immutable plant card. MinBid doubles as its number.
type PowerPlant struct {
	MinBid    int              `json:"minBid"`
	Cities    int              `json:"cityCapacity"`
	Resources []rules.Resource `json:"resourceTypes"`
	Units     int              `json:"resourceUnitsRequired"`
	Hybrid    bool             `json:"isHybrid"`
}

// PlantFromSpec converts a rule table entry.
func PlantFromSpec(s rules.PlantSpec) PowerPlant {
	return PowerPlant{
		MinBid:    s.MinBid,
		Cities:    s.Cities,
		Resources: append([]rules.Resource(nil), s.Resources...),
		Units:     s.Units,
		Hybrid:    len(s.Resources) > 1,
	}
}

// Ecological plants need no fuel.
func (p PowerPlant) Ecological() bool { return len(p.Resources) == 0 }

// Uses reports whether the plant burns res.
func (p PowerPlant) Uses(res rules.Resource) bool {
	for _, r := range p.Resources {
		if r == res {
			return true
		}
	}
	return false
}

// StorageCapacity is how many units the plant can hold: twice one firing.
func (p PowerPlant) StorageCapacity() int { return 2 * p.Units }

func (p PowerPlant) String() string {
	if p.Ecological() {
		return fmt.Sprintf("#%d (%d cities, ecological)", p.MinBid, p.Cities)
	}
	return fmt.Sprintf("#%d (%d cities, %d %v)", p.MinBid, p.Cities, p.Units, p.Resources)
}

// Entry is a card of the face-down deck: a PowerPlant or the StepAdvance card.
type Entry interface {
	isEntry()
}

// StepAdvance is the step card. Drawing it advances the game step.
type StepAdvance struct{}

func (PowerPlant) isEntry()  {}
func (StepAdvance) isEntry() {}

// PlantMarket keeps the buyable current row, the visible future row, the deck
// and the plants that have left the game.
type PlantMarket struct {
	current   []PowerPlant
	future    []PowerPlant
	deck      []Entry
	discarded []PowerPlant
}

// NewPlantMarket sets up the market for playerCount players. The eight
// lowest plants form the visible rows; the configured number of plug and
// socket plants are removed at random from the rest; the remaining deck is
// ordered by number with the step card placed in the middle.
func NewPlantMarket(r *rules.Rules, playerCount int, rng *rand.Rand) (*PlantMarket, error) {
	if err := r.ValidatePlayers(playerCount); err != nil {
		return nil, err
	}
	pool := make([]PowerPlant, 0, len(r.Plants))
	for _, s := range r.Plants {
		pool = append(pool, PlantFromSpec(s))
	}
	sortPlants(pool)
	if len(pool) < 2*VisibleSlots {
		return nil, fmt.Errorf("need at least %d plants, have %d", 2*VisibleSlots, len(pool))
	}

	m := &PlantMarket{}
	m.current = append(m.current, pool[:VisibleSlots]...)
	m.future = append(m.future, pool[VisibleSlots:2*VisibleSlots]...)

	rest := append([]PowerPlant(nil), pool[2*VisibleSlots:]...)
	rng.Shuffle(len(rest), func(i, j int) { rest[i], rest[j] = rest[j], rest[i] })
	remove := r.RemoveCards[playerCount]
	kept := rest[:0]
	for _, p := range rest {
		switch {
		case p.MinBid <= r.PlugMaxBid && remove.Plug > 0:
			remove.Plug--
			m.discarded = append(m.discarded, p)
		case p.MinBid > r.PlugMaxBid && remove.Socket > 0:
			remove.Socket--
			m.discarded = append(m.discarded, p)
		default:
			kept = append(kept, p)
		}
	}
	sortPlants(kept)

	mid := len(kept) / 2
	for i, p := range kept {
		if i == mid {
			m.deck = append(m.deck, StepAdvance{})
		}
		m.deck = append(m.deck, p)
	}
	if len(kept) == 0 {
		m.deck = append(m.deck, StepAdvance{})
	}
	return m, nil
}

// Current returns a copy of the buyable row, ascending.
func (m *PlantMarket) Current() []PowerPlant { return append([]PowerPlant(nil), m.current...) }

// Future returns a copy of the visible future row, ascending.
func (m *PlantMarket) Future() []PowerPlant { return append([]PowerPlant(nil), m.future...) }

// DeckSize counts the face-down cards, step card included.
func (m *PlantMarket) DeckSize() int { return len(m.deck) }

// Discarded returns the plants that left the game.
func (m *PlantMarket) Discarded() []PowerPlant { return append([]PowerPlant(nil), m.discarded...) }

// InCurrent looks a plant up in the buyable row.
func (m *PlantMarket) InCurrent(minBid int) (PowerPlant, bool) {
	for _, p := range m.current {
		if p.MinBid == minBid {
			return p, true
		}
	}
	return PowerPlant{}, false
}

// Refill moves plants up from the future row and draws from the deck until
// both rows are full or the deck runs out. It reports whether the step card
// was drawn; when it is, the lowest plant of the current row leaves the game.
func (m *PlantMarket) Refill() (stepAdvanced bool) {
	m.rebalance()
	for len(m.current)+len(m.future) < 2*VisibleSlots && len(m.deck) > 0 {
		card := m.deck[0]
		m.deck = m.deck[1:]
		switch c := card.(type) {
		case PowerPlant:
			m.future = append(m.future, c)
		case StepAdvance:
			stepAdvanced = true
			m.DropLowest()
		}
		m.rebalance()
	}
	return stepAdvanced
}

// rebalance sorts both rows together and splits them so the current row
// always holds the lowest plants.
func (m *PlantMarket) rebalance() {
	all := make([]PowerPlant, 0, len(m.current)+len(m.future))
	all = append(all, m.current...)
	all = append(all, m.future...)
	sortPlants(all)
	n := VisibleSlots
	if len(all) < n {
		n = len(all)
	}
	m.current = append(m.current[:0:0], all[:n]...)
	m.future = append(m.future[:0:0], all[n:]...)
}

// DropLowest removes the lowest plant of the current row from the game. The
// caller refills afterwards.
func (m *PlantMarket) DropLowest() (PowerPlant, bool) {
	if len(m.current) == 0 {
		return PowerPlant{}, false
	}
	p := m.current[0]
	m.current = m.current[1:]
	m.discarded = append(m.discarded, p)
	return p, true
}

// RemovePurchased takes a plant out of whichever visible row holds it and
// refills the market.
func (m *PlantMarket) RemovePurchased(minBid int) (plant PowerPlant, stepAdvanced bool, err error) {
	if i := indexOf(m.current, minBid); i >= 0 {
		plant = m.current[i]
		m.current = append(m.current[:i:i], m.current[i+1:]...)
	} else if i := indexOf(m.future, minBid); i >= 0 {
		plant = m.future[i]
		m.future = append(m.future[:i:i], m.future[i+1:]...)
	} else {
		return PowerPlant{}, false, fmt.Errorf("%w: #%d", ErrNotFound, minBid)
	}
	return plant, m.Refill(), nil
}

// Discard puts a plant a player gave up out of the game.
func (m *PlantMarket) Discard(p PowerPlant) {
	m.discarded = append(m.discarded, p)
}

// Advance is the end-of-round market move. In steps 1 and 2 the highest
// future plant goes under the deck; in step 3 the lowest current plant
// leaves the game. The market is then refilled.
func (m *PlantMarket) Advance(step int) (stepAdvanced bool) {
	if step < 3 {
		if n := len(m.future); n > 0 {
			m.deck = append(m.deck, m.future[n-1])
			m.future = m.future[:n-1]
		}
	} else {
		m.DropLowest()
	}
	return m.Refill()
}

// PlantMarketView is the public state of the plant market.
type PlantMarketView struct {
	Current   []PowerPlant `json:"current"`
	Future    []PowerPlant `json:"future"`
	DeckSize  int          `json:"deckSize"`
	Discarded int          `json:"discarded"`
}

// Snapshot copies the visible state.
func (m *PlantMarket) Snapshot() PlantMarketView {
	return PlantMarketView{
		Current:   clonePlants(m.current),
		Future:    clonePlants(m.future),
		DeckSize:  len(m.deck),
		Discarded: len(m.discarded),
	}
}

func clonePlants(ps []PowerPlant) []PowerPlant {
	out := make([]PowerPlant, len(ps))
	for i, p := range ps {
		p.Resources = append([]rules.Resource(nil), p.Resources...)
		out[i] = p
	}
	return out
}

func indexOf(ps []PowerPlant, minBid int) int {
	for i, p := range ps {
		if p.MinBid == minBid {
			return i
		}
	}
	return -1
}

func sortPlants(ps []PowerPlant) {
	sort.Slice(ps, func(i, j int) bool { return ps[i].MinBid < ps[j].MinBid })
}
