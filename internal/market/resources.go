// Package market holds the two markets of the game: the resource market with
// its quantity-dependent prices, and the power plant market.
package market

import (
	"errors"
	"fmt"

	"github.com/example/power-grid/internal/rules"
)

var (
	// ErrNotFound is returned when a plant is in neither visible market.
	ErrNotFound = errors.New("power plant not found")
	// ErrInsufficientSupply is returned when more units are requested than
	// the market holds.
	ErrInsufficientSupply = errors.New("insufficient supply")
	// ErrUnknownResource is returned for a resource type outside the game.
	ErrUnknownResource = errors.New("unknown resource")
)

// ResourceMarket is the shared fuel supply. Prices fall as quantity rises.
type ResourceMarket struct {
	prices   map[rules.Resource]rules.PriceTable
	ceiling  map[rules.Resource]int
	quantity map[rules.Resource]int
	refills  map[int]map[int]map[rules.Resource]int
}

// NewResourceMarket stocks a market with the initial quantities of r.
func NewResourceMarket(r *rules.Rules) *ResourceMarket {
	m := &ResourceMarket{
		prices:   make(map[rules.Resource]rules.PriceTable),
		ceiling:  make(map[rules.Resource]int),
		quantity: make(map[rules.Resource]int),
		refills:  r.Replenishment,
	}
	for _, res := range rules.Resources {
		m.prices[res] = r.Prices[res]
		m.ceiling[res] = r.ResourceMax[res]
		m.quantity[res] = r.InitialResources[res]
	}
	return m
}

// Available is the number of units of res on the market.
func (m *ResourceMarket) Available(res rules.Resource) int { return m.quantity[res] }

// Ceiling is the most units of res the market can hold.
func (m *ResourceMarket) Ceiling(res rules.Resource) int { return m.ceiling[res] }

// SetAvailable overrides the quantity of res, clamped to [0, ceiling].
func (m *ResourceMarket) SetAvailable(res rules.Resource, n int) {
	if n < 0 {
		n = 0
	}
	if n > m.ceiling[res] {
		n = m.ceiling[res]
	}
	m.quantity[res] = n
}

// UnitPrice is the price of the next unit of res. It reports false when the
// market is empty.
func (m *ResourceMarket) UnitPrice(res rules.Resource) (int, bool) {
	table, ok := m.prices[res]
	if !ok {
		return 0, false
	}
	return table.Lookup(m.quantity[res])
}

// Quote prices amount units of res without buying them.
func (m *ResourceMarket) Quote(res rules.Resource, amount int) (int, error) {
	if !res.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrUnknownResource, res)
	}
	if amount < 0 {
		return 0, fmt.Errorf("negative amount %d", amount)
	}
	if amount > m.quantity[res] {
		return 0, fmt.Errorf("%w: %d %s requested, %d available", ErrInsufficientSupply, amount, res, m.quantity[res])
	}
	total := 0
	q := m.quantity[res]
	for i := 0; i < amount; i++ {
		p, _ := m.prices[res].Lookup(q)
		total += p
		q--
	}
	return total, nil
}

// Purchase buys amount units of res one at a time, each at the price for the
// quantity left before it is taken, and returns the total.
func (m *ResourceMarket) Purchase(res rules.Resource, amount int) (int, error) {
	total, err := m.Quote(res, amount)
	if err != nil {
		return 0, err
	}
	m.quantity[res] -= amount
	return total, nil
}

// PurchaseUpTo buys as many of amount units as the market holds.
func (m *ResourceMarket) PurchaseUpTo(res rules.Resource, amount int) (bought, cost int) {
	if !res.Valid() || amount <= 0 {
		return 0, 0
	}
	if amount > m.quantity[res] {
		amount = m.quantity[res]
	}
	cost, _ = m.Purchase(res, amount)
	return amount, cost
}

// Replenish restocks the market from the table for step and playerCount.
// Units above the ceiling are discarded. It returns what was actually added.
func (m *ResourceMarket) Replenish(step, playerCount int) map[rules.Resource]int {
	added := make(map[rules.Resource]int)
	table := m.refills[step][playerCount]
	for _, res := range rules.Resources {
		n := table[res]
		room := m.ceiling[res] - m.quantity[res]
		if n > room {
			n = room
		}
		if n <= 0 {
			continue
		}
		m.quantity[res] += n
		added[res] = n
	}
	return added
}

// ResourceView is the public state of one resource on the market.
type ResourceView struct {
	Quantity  int `json:"quantity"`
	Ceiling   int `json:"ceiling"`
	UnitPrice int `json:"unitPrice,omitempty"`
}

// Snapshot copies the market state. UnitPrice is zero for empty resources.
func (m *ResourceMarket) Snapshot() map[rules.Resource]ResourceView {
	out := make(map[rules.Resource]ResourceView, len(rules.Resources))
	for _, res := range rules.Resources {
		price, _ := m.UnitPrice(res)
		out[res] = ResourceView{Quantity: m.quantity[res], Ceiling: m.ceiling[res], UnitPrice: price}
	}
	return out
}
