// Package board models the map: locations, weighted connections between them
// and the owner slots players fill when they build.
//
// A Map is not safe for concurrent use. The game orchestrator is its only
// writer; readers outside the orchestrator go through snapshots.
package board

import (
	"container/heap"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned for an unknown location tag.
	ErrNotFound = errors.New("location not found")
	// ErrOccupancyExceeded is returned when every owner slot of a location is
	// taken for the current step.
	ErrOccupancyExceeded = errors.New("location occupancy exceeded")
	// ErrUnreachable is returned when no path joins a location to a network.
	ErrUnreachable = errors.New("location unreachable")
)

// PlayerID identifies an owner of a location.
type PlayerID string

// Location is a node of the map.
type Location struct {
	Tag    string
	Name   string
	Region string
	owners []PlayerID
	edges  map[string]int
}

// Owners returns a copy of the location's owner slots in claim order.
func (l *Location) Owners() []PlayerID {
	return append([]PlayerID(nil), l.owners...)
}

// Map is a weighted undirected graph of locations.
type Map struct {
	Name      string
	step      int
	locations map[string]*Location
	order     []string
}

// New returns an empty map at step 1.
func New(name string) *Map {
	return &Map{
		Name:      name,
		step:      1,
		locations: make(map[string]*Location),
	}
}

// AddLocation registers a location. Adding an existing tag is an error.
func (m *Map) AddLocation(tag, name, region string) error {
	if tag == "" {
		return fmt.Errorf("empty location tag")
	}
	if _, ok := m.locations[tag]; ok {
		return fmt.Errorf("duplicate location %q", tag)
	}
	m.locations[tag] = &Location{Tag: tag, Name: name, Region: region, edges: map[string]int{}}
	m.order = append(m.order, tag)
	return nil
}

// AddEdge connects two locations. A second edge between the same pair keeps
// the cheaper cost.
func (m *Map) AddEdge(a, b string, cost int) error {
	la, ok := m.locations[a]
	if !ok {
		return fmt.Errorf("edge %s-%s: %w: %s", a, b, ErrNotFound, a)
	}
	lb, ok := m.locations[b]
	if !ok {
		return fmt.Errorf("edge %s-%s: %w: %s", a, b, ErrNotFound, b)
	}
	if cost < 0 {
		return fmt.Errorf("edge %s-%s: negative cost %d", a, b, cost)
	}
	if a == b {
		return nil
	}
	if old, ok := la.edges[b]; ok && old <= cost {
		return nil
	}
	la.edges[b] = cost
	lb.edges[a] = cost
	return nil
}

// Step returns the current game step.
func (m *Map) Step() int { return m.step }

// SetStep moves the map to a new step. Steps never go backwards.
func (m *Map) SetStep(step int) {
	if step > m.step {
		m.step = step
	}
}

// MaxOccupancy is the number of owner slots open at a step.
func MaxOccupancy(step int) int {
	switch {
	case step <= 1:
		return 1
	case step == 2:
		return 2
	default:
		return 3
	}
}

// Location returns a location by tag.
func (m *Map) Location(tag string) (*Location, error) {
	l, ok := m.locations[tag]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, tag)
	}
	return l, nil
}

// Tags lists every location tag in the order they were added.
func (m *Map) Tags() []string {
	return append([]string(nil), m.order...)
}

// Len is the number of locations.
func (m *Map) Len() int { return len(m.locations) }

// CurrentOwners returns the owners of a location.
func (m *Map) CurrentOwners(tag string) ([]PlayerID, error) {
	l, err := m.Location(tag)
	if err != nil {
		return nil, err
	}
	return l.Owners(), nil
}

// Claim adds player to a location's owners. Claiming a location the player
// already owns is a no-op.
func (m *Map) Claim(player PlayerID, tag string) error {
	l, err := m.Location(tag)
	if err != nil {
		return err
	}
	for _, o := range l.owners {
		if o == player {
			return nil
		}
	}
	if len(l.owners) >= MaxOccupancy(m.step) {
		return fmt.Errorf("%w: %s has %d owners at step %d", ErrOccupancyExceeded, tag, len(l.owners), m.step)
	}
	l.owners = append(l.owners, player)
	return nil
}

// Owns reports whether player owns tag.
func (m *Map) Owns(player PlayerID, tag string) bool {
	l, ok := m.locations[tag]
	if !ok {
		return false
	}
	for _, o := range l.owners {
		if o == player {
			return true
		}
	}
	return false
}

// IsAvailable reports whether tag exists and has a free slot at step.
func (m *Map) IsAvailable(tag string, step int) bool {
	l, ok := m.locations[tag]
	if !ok {
		return false
	}
	return len(l.owners) < MaxOccupancy(step)
}

// OwnedBy lists the tags a player owns, in map order.
func (m *Map) OwnedBy(player PlayerID) []string {
	var tags []string
	for _, tag := range m.order {
		if m.Owns(player, tag) {
			tags = append(tags, tag)
		}
	}
	return tags
}

// ConnectionCost is the cheapest path cost from target to any location the
// player already owns. A player with no locations builds their first one for
// free.
func (m *Map) ConnectionCost(player PlayerID, target string) (int, error) {
	if _, err := m.Location(target); err != nil {
		return 0, err
	}
	owned := map[string]bool{}
	for _, tag := range m.OwnedBy(player) {
		owned[tag] = true
	}
	if len(owned) == 0 {
		return 0, nil
	}
	dist, ok := m.nearest(target, func(tag string) bool { return owned[tag] })
	if !ok {
		return 0, fmt.Errorf("%w: %s from network of %s", ErrUnreachable, target, player)
	}
	return dist, nil
}

// nearest runs Dijkstra from source and stops at the first location accepted
// by goal.
func (m *Map) nearest(source string, goal func(string) bool) (int, bool) {
	dist := map[string]int{source: 0}
	done := map[string]bool{}
	pq := &frontier{{tag: source, cost: 0}}
	for pq.Len() > 0 {
		cur := heap.Pop(pq).(node)
		if done[cur.tag] {
			continue
		}
		done[cur.tag] = true
		if goal(cur.tag) {
			return cur.cost, true
		}
		for next, w := range m.locations[cur.tag].edges {
			if done[next] {
				continue
			}
			nd := cur.cost + w
			if old, seen := dist[next]; !seen || nd < old {
				dist[next] = nd
				heap.Push(pq, node{tag: next, cost: nd})
			}
		}
	}
	return 0, false
}

type node struct {
	tag  string
	cost int
}

type frontier []node

func (f frontier) Len() int { return len(f) }
func (f frontier) Less(i, j int) bool {
	if f[i].cost == f[j].cost {
		return f[i].tag < f[j].tag
	}
	return f[i].cost < f[j].cost
}
func (f frontier) Swap(i, j int)       { f[i], f[j] = f[j], f[i] }
func (f *frontier) Push(x interface{}) { *f = append(*f, x.(node)) }
func (f *frontier) Pop() interface{} {
	old := *f
	n := old[len(old)-1]
	*f = old[:len(old)-1]
	return n
}

// LocationView is the serializable state of one location.
type LocationView struct {
	Tag         string         `json:"tag"`
	Name        string         `json:"name"`
	Region      string         `json:"region,omitempty"`
	Owners      []PlayerID     `json:"owners"`
	Connections map[string]int `json:"connections"`
}

// Snapshot is a deep copy of the map for players and observers.
type Snapshot struct {
	Name      string         `json:"name"`
	Step      int            `json:"step"`
	Locations []LocationView `json:"locations"`
}

// Snapshot copies the current map state.
func (m *Map) Snapshot() Snapshot {
	s := Snapshot{Name: m.Name, Step: m.step, Locations: make([]LocationView, 0, len(m.order))}
	for _, tag := range m.order {
		l := m.locations[tag]
		conns := make(map[string]int, len(l.edges))
		for k, v := range l.edges {
			conns[k] = v
		}
		s.Locations = append(s.Locations, LocationView{
			Tag:         l.Tag,
			Name:        l.Name,
			Region:      l.Region,
			Owners:      l.Owners(),
			Connections: conns,
		})
	}
	return s
}

// FromSnapshot rebuilds a map from a snapshot, owners and step included.
// Agents use it to price builds against the state they were sent.
func FromSnapshot(s Snapshot) (*Map, error) {
	m := New(s.Name)
	for _, l := range s.Locations {
		if err := m.AddLocation(l.Tag, l.Name, l.Region); err != nil {
			return nil, err
		}
	}
	for _, l := range s.Locations {
		for other, cost := range l.Connections {
			if err := m.AddEdge(l.Tag, other, cost); err != nil {
				return nil, err
			}
		}
		m.locations[l.Tag].owners = append([]PlayerID(nil), l.Owners...)
	}
	m.SetStep(s.Step)
	return m, nil
}

// Status maps every tag to its owners.
func (m *Map) Status() map[string][]PlayerID {
	status := make(map[string][]PlayerID, len(m.locations))
	for tag, l := range m.locations {
		status[tag] = l.Owners()
	}
	return status
}
