package inventory

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from Status
		to   Status
		want bool
	}{
		{StatusAvailable, StatusMatching, true},
		{StatusAvailable, StatusOffered, false},
		{StatusMatching, StatusOffered, true},
		{StatusMatching, StatusAvailable, true},
		{StatusOffered, StatusCleared, true},
		{StatusOffered, StatusAvailable, true},
		{StatusAvailable, StatusExpired, true},
		{StatusMatching, StatusExpired, true},
		{StatusOffered, StatusExpired, true},
		{StatusCleared, StatusAvailable, false},
		{StatusExpired, StatusMatching, false},
		{StatusAvailable, StatusAvailable, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
			t.Errorf("%q -> %q = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestStatus_Scan(t *testing.T) {
	var s Status
	if err := s.Scan("offered"); err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if s != StatusOffered {
		t.Errorf("Scan() = %q, want %q", s, StatusOffered)
	}

	if err := s.Scan("melted"); err == nil {
		t.Error("Scan should reject unknown statuses")
	}
}

func TestLot_Validate(t *testing.T) {
	valid := Lot{
		SKU:         "SKU-001",
		Category:    "dairy",
		Quantity:    decimal.NewFromInt(120),
		Unit:        "kg",
		UnitPrice:   decimal.NewFromFloat(2.50),
		WarehouseID: "WH-1",
		ExpiryDate:  refTime.AddDate(0, 0, 4),
	}

	if err := valid.Validate(); err != nil {
		t.Fatalf("valid lot rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(l *Lot)
	}{
		{"missing sku", func(l *Lot) { l.SKU = "" }},
		{"missing category", func(l *Lot) { l.Category = "" }},
		{"zero quantity", func(l *Lot) { l.Quantity = decimal.Zero }},
		{"negative quantity", func(l *Lot) { l.Quantity = decimal.NewFromInt(-1) }},
		{"negative price", func(l *Lot) { l.UnitPrice = decimal.NewFromInt(-1) }},
		{"missing warehouse", func(l *Lot) { l.WarehouseID = "" }},
		{"missing expiry", func(l *Lot) { l.ExpiryDate = time.Time{} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lot := valid
			tt.mutate(&lot)
			if err := lot.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLot_TotalValue(t *testing.T) {
	lot := Lot{
		Quantity:  decimal.NewFromInt(40),
		UnitPrice: decimal.NewFromFloat(1.25),
	}
	if got := lot.TotalValue(); !got.Equal(decimal.NewFromInt(50)) {
		t.Errorf("TotalValue() = %s, want 50", got)
	}
}
