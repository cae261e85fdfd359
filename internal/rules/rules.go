// Package rules holds the static tables of the game: income, replenishment,
// prices, plant deck and the player-count dependent thresholds.
package rules

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRules []byte

// ErrInvalidPlayerCount is returned when a game is configured for a player
// count the tables have no entry for.
var ErrInvalidPlayerCount = errors.New("invalid player count")

// Resource is a fuel type traded on the resource market.
type Resource string

const (
	Coal    Resource = "coal"
	Oil     Resource = "oil"
	Garbage Resource = "garbage"
	Uranium Resource = "uranium"
)

// Resources lists every resource type in market order.
var Resources = []Resource{Coal, Oil, Garbage, Uranium}

// Valid reports whether r is one of the four known resource types.
func (r Resource) Valid() bool {
	switch r {
	case Coal, Oil, Garbage, Uranium:
		return true
	}
	return false
}

// PriceBracket maps an inclusive range of remaining quantity to a unit price.
type PriceBracket struct {
	Min   int `yaml:"min" json:"min"`
	Max   int `yaml:"max" json:"max"`
	Price int `yaml:"price" json:"price"`
}

// PriceTable is either an exact quantity->price map (uranium) or a list of
// ranged brackets (everything else).
type PriceTable struct {
	Exact  map[int]int    `yaml:"exact,omitempty" json:"exact,omitempty"`
	Ranges []PriceBracket `yaml:"ranges,omitempty" json:"ranges,omitempty"`
}

// Lookup returns the unit price when quantity units remain on the market.
func (t PriceTable) Lookup(quantity int) (int, bool) {
	if quantity <= 0 {
		return 0, false
	}
	if t.Exact != nil {
		p, ok := t.Exact[quantity]
		return p, ok
	}
	for _, b := range t.Ranges {
		if quantity >= b.Min && quantity <= b.Max {
			return b.Price, true
		}
	}
	return 0, false
}

// RemoveCards is the number of plug and socket plants taken out at setup.
type RemoveCards struct {
	Plug   int `yaml:"plug"`
	Socket int `yaml:"socket"`
}

// PlantSpec describes one power plant card.
type PlantSpec struct {
	MinBid    int        `yaml:"min_bid"`
	Cities    int        `yaml:"cities"`
	Resources []Resource `yaml:"resources"`
	Units     int        `yaml:"units"`
}

// Rules is the root of rules.yaml.
type Rules struct {
	StartingElektro  int                              `yaml:"starting_elektro"`
	StartingHouses   int                              `yaml:"starting_houses"`
	MaxPlants        int                              `yaml:"max_plants"`
	PlugMaxBid       int                              `yaml:"plug_max_bid"`
	CityCashback     []int                            `yaml:"city_cashback"`
	Replenishment    map[int]map[int]map[Resource]int `yaml:"resource_replenishment"`
	StepStartCities  map[int]int                      `yaml:"step_start_cities"`
	GameEndCities    map[int]int                      `yaml:"game_end_cities"`
	ResourceMax      map[Resource]int                 `yaml:"resource_max"`
	InitialResources map[Resource]int                 `yaml:"initial_resources"`
	BuildingCost     map[int]int                      `yaml:"building_cost"`
	RemoveCards      map[int]RemoveCards              `yaml:"remove_cards"`
	Prices           map[Resource]PriceTable          `yaml:"prices"`
	Plants           []PlantSpec                      `yaml:"plants"`
}

// Default returns the embedded base game tables. It panics only if the
// embedded file is broken, which the package tests guard against.
func Default() *Rules {
	r, err := Parse(defaultRules)
	if err != nil {
		panic(fmt.Sprintf("rules: embedded rules.yaml: %v", err))
	}
	return r
}

// Load reads rule tables from a YAML file on disk.
func Load(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes and validates rule tables.
func Parse(data []byte) (*Rules, error) {
	var r Rules
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse rules: %w", err)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// Validate checks the static tables for internal consistency.
func (r *Rules) Validate() error {
	if len(r.CityCashback) == 0 {
		return fmt.Errorf("rules: empty city cashback table")
	}
	if r.MaxPlants <= 0 {
		return fmt.Errorf("rules: max_plants must be positive")
	}
	seen := map[int]bool{}
	for _, p := range r.Plants {
		if seen[p.MinBid] {
			return fmt.Errorf("rules: duplicate plant %d", p.MinBid)
		}
		seen[p.MinBid] = true
		if len(p.Resources) > 2 {
			return fmt.Errorf("rules: plant %d has %d resource types", p.MinBid, len(p.Resources))
		}
		for _, res := range p.Resources {
			if !res.Valid() {
				return fmt.Errorf("rules: plant %d uses unknown resource %q", p.MinBid, res)
			}
		}
	}
	for _, res := range Resources {
		ceiling, ok := r.ResourceMax[res]
		if !ok {
			return fmt.Errorf("rules: no ceiling for %s", res)
		}
		table, ok := r.Prices[res]
		if !ok {
			return fmt.Errorf("rules: no price table for %s", res)
		}
		for q := 1; q <= ceiling; q++ {
			if _, ok := table.Lookup(q); !ok {
				return fmt.Errorf("rules: %s has no price for quantity %d", res, q)
			}
		}
		if r.InitialResources[res] > ceiling {
			return fmt.Errorf("rules: initial %s exceeds ceiling", res)
		}
	}
	return nil
}

// ValidatePlayers rejects player counts the tables do not cover.
func (r *Rules) ValidatePlayers(n int) error {
	if n < 2 || n > 6 {
		return fmt.Errorf("%w: %d (want 2-6)", ErrInvalidPlayerCount, n)
	}
	if _, ok := r.RemoveCards[n]; !ok {
		return fmt.Errorf("%w: no remove_cards entry for %d", ErrInvalidPlayerCount, n)
	}
	if _, ok := r.GameEndCities[n]; !ok {
		return fmt.Errorf("%w: no game_end_cities entry for %d", ErrInvalidPlayerCount, n)
	}
	if _, ok := r.StepStartCities[n]; !ok {
		return fmt.Errorf("%w: no step_start_cities entry for %d", ErrInvalidPlayerCount, n)
	}
	for step := 1; step <= 3; step++ {
		if _, ok := r.Replenishment[step][n]; !ok {
			return fmt.Errorf("%w: no step %d replenishment for %d", ErrInvalidPlayerCount, step, n)
		}
	}
	return nil
}

// Cashback is the income for powering cities, capped at the table maximum.
func (r *Rules) Cashback(cities int) int {
	if cities < 0 {
		cities = 0
	}
	if cities >= len(r.CityCashback) {
		cities = len(r.CityCashback) - 1
	}
	return r.CityCashback[cities]
}

// MaxCashbackCities is the largest powered-city count that still earns more.
func (r *Rules) MaxCashbackCities() int { return len(r.CityCashback) - 1 }

// Building returns the house cost for a step; steps past the table use the
// last entry.
func (r *Rules) Building(step int) int {
	if c, ok := r.BuildingCost[step]; ok {
		return c
	}
	steps := make([]int, 0, len(r.BuildingCost))
	for s := range r.BuildingCost {
		steps = append(steps, s)
	}
	sort.Ints(steps)
	if len(steps) == 0 {
		return 0
	}
	if step < steps[0] {
		return r.BuildingCost[steps[0]]
	}
	return r.BuildingCost[steps[len(steps)-1]]
}
