package board

import (
	"errors"
	"strings"
	"testing"
)

func lineMap(t *testing.T) *Map {
	t.Helper()
	m := New("line")
	for _, tag := range []string{"A", "B", "C", "D", "E"} {
		if err := m.AddLocation(tag, "City "+tag, ""); err != nil {
			t.Fatalf("AddLocation(%s): %v", tag, err)
		}
	}
	edges := []struct {
		a, b string
		cost int
	}{
		{"A", "B", 5},
		{"B", "C", 7},
		{"A", "C", 20},
		{"C", "D", 3},
	}
	for _, e := range edges {
		if err := m.AddEdge(e.a, e.b, e.cost); err != nil {
			t.Fatalf("AddEdge(%s,%s): %v", e.a, e.b, err)
		}
	}
	return m
}

func TestMaxOccupancyNonDecreasing(t *testing.T) {
	prev := 0
	for step := 1; step <= 3; step++ {
		got := MaxOccupancy(step)
		if got < prev {
			t.Errorf("MaxOccupancy(%d)=%d is lower than step %d", step, got, step-1)
		}
		if got != step {
			t.Errorf("MaxOccupancy(%d)=%d, want %d", step, got, step)
		}
		prev = got
	}
	if MaxOccupancy(7) != 3 {
		t.Errorf("Expected occupancy to stay at 3 past step 3")
	}
}

func TestClaimRespectsOccupancy(t *testing.T) {
	m := lineMap(t)
	if err := m.Claim("p1", "A"); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if err := m.Claim("p1", "A"); err != nil {
		t.Fatalf("re-claim should be a no-op, got %v", err)
	}
	if err := m.Claim("p2", "A"); !errors.Is(err, ErrOccupancyExceeded) {
		t.Fatalf("Expected ErrOccupancyExceeded at step 1, got %v", err)
	}

	m.SetStep(2)
	if err := m.Claim("p2", "A"); err != nil {
		t.Fatalf("step 2 claim: %v", err)
	}
	if err := m.Claim("p3", "A"); !errors.Is(err, ErrOccupancyExceeded) {
		t.Fatalf("Expected ErrOccupancyExceeded at step 2, got %v", err)
	}

	m.SetStep(3)
	if err := m.Claim("p3", "A"); err != nil {
		t.Fatalf("step 3 claim: %v", err)
	}
	owners, err := m.CurrentOwners("A")
	if err != nil {
		t.Fatal(err)
	}
	if len(owners) != 3 || owners[0] != "p1" || owners[2] != "p3" {
		t.Errorf("unexpected owners %v", owners)
	}
	if m.IsAvailable("A", 3) {
		t.Errorf("A should be full at step 3")
	}
}

func TestSetStepNeverDecreases(t *testing.T) {
	m := lineMap(t)
	m.SetStep(3)
	m.SetStep(2)
	if m.Step() != 3 {
		t.Errorf("Expected step 3, got %d", m.Step())
	}
}

func TestUnknownTag(t *testing.T) {
	m := lineMap(t)
	if _, err := m.CurrentOwners("ZZZ"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if err := m.Claim("p1", "ZZZ"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound on claim, got %v", err)
	}
	if m.IsAvailable("ZZZ", 1) {
		t.Errorf("unknown tag reported available")
	}
	if err := m.AddEdge("A", "ZZZ", 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound on edge, got %v", err)
	}
}

func TestConnectionCost(t *testing.T) {
	m := lineMap(t)

	cost, err := m.ConnectionCost("p1", "C")
	if err != nil || cost != 0 {
		t.Fatalf("first build should be free, got %d, %v", cost, err)
	}

	if err := m.Claim("p1", "A"); err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		target string
		want   int
	}{
		{"A", 0},
		{"B", 5},
		{"C", 12}, // A-B-C beats the direct 20
		{"D", 15},
	}
	for _, tt := range tests {
		got, err := m.ConnectionCost("p1", tt.target)
		if err != nil {
			t.Errorf("%s: %v", tt.target, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%s: expected %d, got %d", tt.target, tt.want, got)
		}
	}

	if err := m.Claim("p1", "D"); err != nil {
		t.Fatal(err)
	}
	if got, _ := m.ConnectionCost("p1", "C"); got != 3 {
		t.Errorf("Expected nearest owned city to win, got %d", got)
	}

	if _, err := m.ConnectionCost("p1", "E"); !errors.Is(err, ErrUnreachable) {
		t.Errorf("Expected ErrUnreachable for isolated city, got %v", err)
	}
}

func TestParallelEdgeKeepsCheapest(t *testing.T) {
	m := lineMap(t)
	if err := m.AddEdge("A", "C", 4); err != nil {
		t.Fatal(err)
	}
	m.Claim("p1", "A")
	if got, _ := m.ConnectionCost("p1", "C"); got != 4 {
		t.Errorf("Expected 4 after cheaper edge, got %d", got)
	}
}

func TestUSAMap(t *testing.T) {
	m := USA()
	if m.Len() != 42 {
		t.Fatalf("Expected 42 cities, got %d", m.Len())
	}
	if err := m.Claim("p1", "SEA"); err != nil {
		t.Fatal(err)
	}
	cost, err := m.ConnectionCost("p1", "POR")
	if err != nil || cost != 3 {
		t.Errorf("SEA-POR expected 3, got %d, %v", cost, err)
	}
	// zero-cost edge
	m2 := USA()
	m2.Claim("p1", "CHE")
	if cost, _ := m2.ConnectionCost("p1", "DEN"); cost != 0 {
		t.Errorf("CHE-DEN expected 0, got %d", cost)
	}
	for _, tag := range m.Tags() {
		if _, err := m.ConnectionCost("p1", tag); err != nil {
			t.Errorf("%s unreachable from SEA: %v", tag, err)
		}
	}
}

func TestLoadRejectsBadEdge(t *testing.T) {
	src := `
name: broken
cities:
  - {tag: A, name: "A"}
edges:
  - {a: A, b: B, cost: 1}
`
	if _, err := Load(strings.NewReader(src)); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown edge endpoint, got %v", err)
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	m := lineMap(t)
	m.Claim("p1", "A")
	snap := m.Snapshot()
	snap.Locations[0].Owners[0] = "mallory"
	owners, _ := m.CurrentOwners("A")
	if owners[0] != "p1" {
		t.Errorf("snapshot mutation leaked into map: %v", owners)
	}
	if len(m.OwnedBy("p1")) != 1 {
		t.Errorf("Expected p1 to own one location")
	}
}

func TestFromSnapshot(t *testing.T) {
	m := lineMap(t)
	m.SetStep(2)
	m.Claim("p1", "A")
	m.Claim("p2", "A")

	dup, err := FromSnapshot(m.Snapshot())
	if err != nil {
		t.Fatal(err)
	}
	if dup.Step() != 2 {
		t.Errorf("Expected step 2, got %d", dup.Step())
	}
	owners, _ := dup.CurrentOwners("A")
	if len(owners) != 2 {
		t.Errorf("Expected two owners, got %v", owners)
	}
	if cost, _ := dup.ConnectionCost("p1", "D"); cost != 15 {
		t.Errorf("Expected 15 to D, got %d", cost)
	}
	dup.Claim("p1", "B")
	if m.Owns("p1", "B") {
		t.Errorf("claim on the dup leaked into the original")
	}
}
