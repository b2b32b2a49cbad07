package match

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/greenchain/greenchain/buyer"
	"github.com/greenchain/greenchain/inventory"
)

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func testEngine() *Engine {
	e := NewEngine()
	e.Now = func() time.Time { return testNow }
	return e
}

func testLot(category string, quantity int64, daysToExpiry int) *inventory.Lot {
	return &inventory.Lot{
		ID:          "lot-1",
		SKU:         "SKU-001",
		Category:    category,
		Quantity:    decimal.NewFromInt(quantity),
		Unit:        "kg",
		UnitPrice:   decimal.NewFromFloat(2.50),
		WarehouseID: "WH-1",
		ExpiryDate:  testNow.AddDate(0, 0, daysToExpiry),
		Status:      inventory.StatusAvailable,
	}
}

func testBuyer(name, category string, maxDeliveryDays int) *buyer.Buyer {
	var cats []string
	if category != "" {
		cats = []string{category}
	}
	return &buyer.Buyer{
		ID:              "buyer-" + name,
		Name:            name,
		Categories:      cats,
		MaxDeliveryDays: maxDeliveryDays,
		MinQuantity:     decimal.NewFromInt(1),
		Active:          true,
	}
}

func TestScore_CategoryGate(t *testing.T) {
	lot := testLot("dairy", 100, 4)
	buyers := []*buyer.Buyer{
		testBuyer("dairy shop", "dairy", 2),
		testBuyer("bakery shop", "bakery", 2),
		testBuyer("wildcard trader", "", 2),
	}

	candidates := testEngine().Score(lot, buyers)
	if len(candidates) != 2 {
		t.Fatalf("got %d candidates, want 2", len(candidates))
	}

	// Explicit category match outranks the wildcard.
	if candidates[0].Buyer.Name != "dairy shop" {
		t.Errorf("top candidate = %q, want dairy shop", candidates[0].Buyer.Name)
	}
	if candidates[1].Buyer.Name != "wildcard trader" {
		t.Errorf("second candidate = %q, want wildcard trader", candidates[1].Buyer.Name)
	}
}

func TestScore_DeliveryGate(t *testing.T) {
	lot := testLot("dairy", 100, 3)
	buyers := []*buyer.Buyer{
		testBuyer("fast", "dairy", 2),
		testBuyer("slow", "dairy", 7),
	}

	candidates := testEngine().Score(lot, buyers)
	if len(candidates) != 1 {
		t.Fatalf("got %d candidates, want 1", len(candidates))
	}
	if candidates[0].Buyer.Name != "fast" {
		t.Errorf("candidate = %q, want fast", candidates[0].Buyer.Name)
	}
}

func TestScore_ExpiredLotNotMatchable(t *testing.T) {
	lot := testLot("dairy", 100, -1)
	buyers := []*buyer.Buyer{testBuyer("anyone", "dairy", 1)}

	if candidates := testEngine().Score(lot, buyers); candidates != nil {
		t.Errorf("expired lot produced %d candidates, want none", len(candidates))
	}
}

func TestScore_InactiveBuyersExcluded(t *testing.T) {
	lot := testLot("dairy", 100, 5)
	inactive := testBuyer("dormant", "dairy", 2)
	inactive.Active = false

	if candidates := testEngine().Score(lot, []*buyer.Buyer{inactive}); len(candidates) != 0 {
		t.Errorf("inactive buyer should be excluded")
	}
}

func TestScore_MinimumQuantityGate(t *testing.T) {
	lot := testLot("dairy", 10, 5)
	fussy := testBuyer("bulk only", "dairy", 2)
	fussy.MinQuantity = decimal.NewFromInt(500)

	if candidates := testEngine().Score(lot, []*buyer.Buyer{fussy}); len(candidates) != 0 {
		t.Error("buyer with min quantity above the lot should be excluded")
	}
}

func TestScore_DiscountFollowsUrgencyBand(t *testing.T) {
	buyers := []*buyer.Buyer{testBuyer("shop", "dairy", 1)}

	tests := []struct {
		days int
		want int
	}{
		{1, 40},
		{4, 25},
		{8, 15},
		{20, 5},
	}

	for _, tt := range tests {
		lot := testLot("dairy", 100, tt.days)
		candidates := testEngine().Score(lot, buyers)
		if len(candidates) != 1 {
			t.Fatalf("days=%d: got %d candidates, want 1", tt.days, len(candidates))
		}
		if candidates[0].DiscountPct != tt.want {
			t.Errorf("days=%d: discount = %d, want %d", tt.days, candidates[0].DiscountPct, tt.want)
		}
	}
}

func TestShortlist_Bounded(t *testing.T) {
	lot := testLot("dairy", 100, 5)

	var buyers []*buyer.Buyer
	for i := 0; i < 10; i++ {
		buyers = append(buyers, testBuyer(fmt.Sprintf("buyer-%02d", i), "dairy", 2))
	}

	e := testEngine()
	e.ShortlistSize = 3

	shortlist := e.Shortlist(lot, buyers)
	if len(shortlist) != 3 {
		t.Fatalf("shortlist size = %d, want 3", len(shortlist))
	}

	// Equal scores fall back to name ordering, keeping runs deterministic.
	for i := 1; i < len(shortlist); i++ {
		if shortlist[i-1].Buyer.Name > shortlist[i].Buyer.Name {
			t.Errorf("shortlist not name-ordered on ties: %q before %q",
				shortlist[i-1].Buyer.Name, shortlist[i].Buyer.Name)
		}
	}
}
