package market

import (
	"errors"
	"testing"

	"github.com/example/power-grid/internal/rules"
)

func TestUnitPriceFallsWithQuantity(t *testing.T) {
	m := NewResourceMarket(rules.Default())
	tests := []struct {
		res      rules.Resource
		quantity int
		want     int
		ok       bool
	}{
		{rules.Coal, 24, 1, true},
		{rules.Coal, 22, 1, true},
		{rules.Coal, 21, 2, true},
		{rules.Coal, 3, 8, true},
		{rules.Coal, 0, 0, false},
		{rules.Uranium, 12, 1, true},
		{rules.Uranium, 4, 10, true},
		{rules.Uranium, 1, 16, true},
	}
	for _, tt := range tests {
		m.SetAvailable(tt.res, tt.quantity)
		got, ok := m.UnitPrice(tt.res)
		if ok != tt.ok || got != tt.want {
			t.Errorf("%s@%d: expected (%d,%v), got (%d,%v)", tt.res, tt.quantity, tt.want, tt.ok, got, ok)
		}
	}
}

func TestPurchaseShortSupply(t *testing.T) {
	m := NewResourceMarket(rules.Default())
	m.SetAvailable(rules.Coal, 2)

	if _, err := m.Purchase(rules.Coal, 3); !errors.Is(err, ErrInsufficientSupply) {
		t.Fatalf("Expected ErrInsufficientSupply, got %v", err)
	}
	if m.Available(rules.Coal) != 2 {
		t.Fatalf("failed purchase changed supply to %d", m.Available(rules.Coal))
	}

	bought, cost := m.PurchaseUpTo(rules.Coal, 3)
	if bought != 2 || cost != 16 {
		t.Errorf("Expected 2 coal for 16, got %d for %d", bought, cost)
	}
	if m.Available(rules.Coal) != 0 {
		t.Errorf("Expected coal to run out, %d left", m.Available(rules.Coal))
	}
}

func TestPurchaseCrossesBracket(t *testing.T) {
	m := NewResourceMarket(rules.Default())
	m.SetAvailable(rules.Oil, 4)
	cost, err := m.Purchase(rules.Oil, 2)
	if err != nil {
		t.Fatal(err)
	}
	// 4 left costs 7, then 3 left costs 8
	if cost != 15 {
		t.Errorf("Expected 15, got %d", cost)
	}
}

func TestZeroPurchaseLeavesMarketUnchanged(t *testing.T) {
	m := NewResourceMarket(rules.Default())
	before := m.Snapshot()
	for _, res := range rules.Resources {
		cost, err := m.Purchase(res, 0)
		if err != nil || cost != 0 {
			t.Fatalf("%s: expected free no-op, got %d, %v", res, cost, err)
		}
		if bought, cost := m.PurchaseUpTo(res, 0); bought != 0 || cost != 0 {
			t.Fatalf("%s: expected nothing bought, got %d for %d", res, bought, cost)
		}
	}
	after := m.Snapshot()
	for _, res := range rules.Resources {
		if before[res] != after[res] {
			t.Errorf("%s changed: %+v -> %+v", res, before[res], after[res])
		}
	}
}

func TestUnknownResource(t *testing.T) {
	m := NewResourceMarket(rules.Default())
	if _, err := m.Purchase("plutonium", 1); !errors.Is(err, ErrUnknownResource) {
		t.Errorf("Expected ErrUnknownResource, got %v", err)
	}
}

func TestReplenishCapsAtCeiling(t *testing.T) {
	r := rules.Default()
	m := NewResourceMarket(r)
	m.SetAvailable(rules.Coal, 23)
	m.SetAvailable(rules.Uranium, 0)

	added := m.Replenish(1, 2)
	if m.Available(rules.Coal) != 24 {
		t.Errorf("Expected coal capped at 24, got %d", m.Available(rules.Coal))
	}
	if added[rules.Coal] != 1 {
		t.Errorf("Expected 1 coal actually added, got %d", added[rules.Coal])
	}
	want := r.Replenishment[1][2][rules.Uranium]
	if m.Available(rules.Uranium) != want {
		t.Errorf("Expected %d uranium, got %d", want, m.Available(rules.Uranium))
	}
}
