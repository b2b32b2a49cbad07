// Package inventory defines the warehouse lot entity, its lifecycle state
// machine, and the expiry urgency model used to prioritize clearance.
package inventory

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Lot represents a batch of stock sitting in a warehouse with a fixed
// expiry date. Lots are the unit of clearance: offers are made per lot.
type Lot struct {
	ID          string          `json:"id"`
	SKU         string          `json:"sku"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Quantity    decimal.Decimal `json:"quantity"`
	Unit        string          `json:"unit"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	BatchCode   string          `json:"batch_code"`
	WarehouseID string          `json:"warehouse_id"`
	ExpiryDate  time.Time       `json:"expiry_date"`
	ReceivedAt  time.Time       `json:"received_at"`
	Status      Status          `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Validate checks the lot's required fields.
func (l *Lot) Validate() error {
	if l.SKU == "" {
		return fmt.Errorf("sku is required")
	}
	if l.Category == "" {
		return fmt.Errorf("category is required")
	}
	if l.Quantity.IsNegative() || l.Quantity.IsZero() {
		return fmt.Errorf("quantity must be positive, got %s", l.Quantity)
	}
	if l.UnitPrice.IsNegative() {
		return fmt.Errorf("unit_price cannot be negative, got %s", l.UnitPrice)
	}
	if l.WarehouseID == "" {
		return fmt.Errorf("warehouse_id is required")
	}
	if l.ExpiryDate.IsZero() {
		return fmt.Errorf("expiry_date is required")
	}
	return nil
}

// ShelfLifeDays returns the whole days remaining until the lot expires,
// measured from now. Negative when the lot is already past its expiry date.
func (l *Lot) ShelfLifeDays(now time.Time) int {
	return DaysToExpiry(l.ExpiryDate, now)
}

// Urgency returns the lot's urgency assessment as of now.
func (l *Lot) Urgency(now time.Time) Urgency {
	return AssessUrgency(l.ExpiryDate, now)
}

// TotalValue returns quantity * unit price.
func (l *Lot) TotalValue() decimal.Decimal {
	return l.Quantity.Mul(l.UnitPrice)
}
