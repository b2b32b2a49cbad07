package voice

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/greenchain/greenchain/inventory"
	"github.com/greenchain/greenchain/storage"
)

// evalMockStore implements storage.Store methods needed for evaluation.
type evalMockStore struct {
	storage.Store
	lots map[string]*inventory.Lot
}

func (m *evalMockStore) GetLot(ctx context.Context, lotID string) (*inventory.Lot, error) {
	lot, ok := m.lots[lotID]
	if !ok {
		return nil, fmt.Errorf("lot %s: %w", lotID, storage.ErrNotFound)
	}
	return lot, nil
}

func testEvaluator(lots map[string]*inventory.Lot) *Evaluator {
	e := NewEvaluator(&evalMockStore{lots: lots})
	return e
}

func TestEvaluator_DefaultWindow(t *testing.T) {
	e := testEvaluator(nil)

	tests := []struct {
		name         string
		deliveryDays int
		wantApproved bool
	}{
		{"same day", 0, true},
		{"at the window edge", 3, true},
		{"one day past the window", 4, false},
		{"way past the window", 10, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision, err := e.Evaluate(context.Background(), &OrderRequest{
				BuyerID:          "buyer-1",
				QuantityNeeded:   decimal.NewFromInt(50),
				DeliveryTimeDays: tt.deliveryDays,
			})
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}

			if decision.Approved != tt.wantApproved {
				t.Errorf("Approved = %v, want %v (reason: %s)",
					decision.Approved, tt.wantApproved, decision.Reason)
			}
			if decision.WindowDays != DefaultShelfLifeWindowDays {
				t.Errorf("WindowDays = %d, want %d", decision.WindowDays, DefaultShelfLifeWindowDays)
			}
			if tt.wantApproved && decision.PaymentTerms != DefaultPaymentTerms {
				t.Errorf("PaymentTerms = %q, want %q", decision.PaymentTerms, DefaultPaymentTerms)
			}
		})
	}
}

func TestEvaluator_LotWindow(t *testing.T) {
	lot := &inventory.Lot{
		ID:         "lot-1",
		SKU:        "SKU-1",
		Category:   "dairy",
		Quantity:   decimal.NewFromInt(100),
		ExpiryDate: time.Now().AddDate(0, 0, 6),
		Status:     inventory.StatusAvailable,
	}
	e := testEvaluator(map[string]*inventory.Lot{"lot-1": lot})

	// Delivery in 5 days fits the lot's remaining shelf life.
	decision, err := e.Evaluate(context.Background(), &OrderRequest{
		BuyerID:          "buyer-1",
		LotID:            "lot-1",
		QuantityNeeded:   decimal.NewFromInt(50),
		DeliveryTimeDays: 5,
	})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !decision.Approved {
		t.Fatalf("Approved = false, want true (reason: %s)", decision.Reason)
	}
	if decision.DiscountPct != 25 {
		t.Errorf("DiscountPct = %d, want 25 for a lot expiring in 5 days", decision.DiscountPct)
	}

	// Delivery past the expiry date is rejected even though it would fit
	// the default window logic of another lot.
	decision, err = e.Evaluate(context.Background(), &OrderRequest{
		BuyerID:          "buyer-1",
		LotID:            "lot-1",
		QuantityNeeded:   decimal.NewFromInt(50),
		DeliveryTimeDays: 7,
	})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if decision.Approved {
		t.Error("Approved = true, want false for delivery past expiry")
	}
}

func TestEvaluator_ExpiredLot(t *testing.T) {
	lot := &inventory.Lot{
		ID:         "lot-1",
		SKU:        "SKU-1",
		Category:   "dairy",
		Quantity:   decimal.NewFromInt(100),
		ExpiryDate: time.Now().AddDate(0, 0, -1),
		Status:     inventory.StatusExpired,
	}
	e := testEvaluator(map[string]*inventory.Lot{"lot-1": lot})

	decision, err := e.Evaluate(context.Background(), &OrderRequest{
		BuyerID:          "buyer-1",
		LotID:            "lot-1",
		QuantityNeeded:   decimal.NewFromInt(10),
		DeliveryTimeDays: 1,
	})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if decision.Approved {
		t.Error("Approved = true, want false for an expired lot")
	}
	if decision.WindowDays != 0 {
		t.Errorf("WindowDays = %d, want 0", decision.WindowDays)
	}
}

func TestEvaluator_UnclearableLot(t *testing.T) {
	// Same-day delivery must not slip through on lots that already left the
	// pipeline or sit past their expiry date.
	lots := map[string]*inventory.Lot{
		"cleared": {
			ID:         "cleared",
			SKU:        "SKU-1",
			Quantity:   decimal.NewFromInt(100),
			ExpiryDate: time.Now().AddDate(0, 0, 4),
			Status:     inventory.StatusCleared,
		},
		"expired": {
			ID:         "expired",
			SKU:        "SKU-2",
			Quantity:   decimal.NewFromInt(100),
			ExpiryDate: time.Now().AddDate(0, 0, -2),
			Status:     inventory.StatusExpired,
		},
		"past-date": {
			ID:         "past-date",
			SKU:        "SKU-3",
			Quantity:   decimal.NewFromInt(100),
			ExpiryDate: time.Now().AddDate(0, 0, -2),
			Status:     inventory.StatusAvailable,
		},
	}
	e := testEvaluator(lots)

	for _, lotID := range []string{"cleared", "expired", "past-date"} {
		t.Run(lotID, func(t *testing.T) {
			decision, err := e.Evaluate(context.Background(), &OrderRequest{
				BuyerID:          "buyer-1",
				LotID:            lotID,
				QuantityNeeded:   decimal.NewFromInt(10),
				DeliveryTimeDays: 0,
			})
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			if decision.Approved {
				t.Errorf("Approved = true, want false for lot %s (reason: %s)", lotID, decision.Reason)
			}
			if decision.DiscountPct != 0 {
				t.Errorf("DiscountPct = %d, want 0 on a rejected order", decision.DiscountPct)
			}
		})
	}
}

func TestEvaluator_InvalidRequests(t *testing.T) {
	e := testEvaluator(nil)

	tests := []struct {
		name string
		req  *OrderRequest
	}{
		{"missing buyer", &OrderRequest{DeliveryTimeDays: 1}},
		{"negative delivery", &OrderRequest{BuyerID: "b", DeliveryTimeDays: -1}},
		{"negative quantity", &OrderRequest{
			BuyerID:        "b",
			QuantityNeeded: decimal.NewFromInt(-5),
		}},
		{"unknown lot", &OrderRequest{BuyerID: "b", LotID: "nope", DeliveryTimeDays: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := e.Evaluate(context.Background(), tt.req); err == nil {
				t.Error("Evaluate() error = nil, want error")
			}
		})
	}
}

func TestOpeningQuestion(t *testing.T) {
	got := OpeningQuestion("buyer-42")
	want := "Buyer buyer-42, how many units do you need?"
	if got != want {
		t.Errorf("OpeningQuestion() = %q, want %q", got, want)
	}
}
