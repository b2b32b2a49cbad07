// Package buyer defines the buyer entity: a registered purchaser of
// near-expiry stock, with the preferences the match engine scores against.
package buyer

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Buyer represents a registered purchaser. Categories restricts which lot
// categories the buyer is interested in; an empty list means any category.
type Buyer struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	Contact         string           `json:"contact"`
	Categories      []string         `json:"categories"`
	MaxDeliveryDays int              `json:"max_delivery_days"`
	MinQuantity     decimal.Decimal  `json:"min_quantity"`
	MaxQuantity     *decimal.Decimal `json:"max_quantity,omitempty"`
	Active          bool             `json:"active"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// Validate checks the buyer's required fields.
func (b *Buyer) Validate() error {
	if strings.TrimSpace(b.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if b.MaxDeliveryDays < 1 {
		return fmt.Errorf("max_delivery_days must be at least 1, got %d", b.MaxDeliveryDays)
	}
	if b.MinQuantity.IsNegative() {
		return fmt.Errorf("min_quantity cannot be negative, got %s", b.MinQuantity)
	}
	if b.MaxQuantity != nil && b.MaxQuantity.LessThan(b.MinQuantity) {
		return fmt.Errorf("max_quantity %s is below min_quantity %s", b.MaxQuantity, b.MinQuantity)
	}
	for _, c := range b.Categories {
		if strings.TrimSpace(c) == "" {
			return fmt.Errorf("categories cannot contain empty entries")
		}
	}
	return nil
}

// WantsCategory returns true if the buyer accepts lots of the given
// category. Buyers without category restrictions accept everything.
func (b *Buyer) WantsCategory(category string) bool {
	if len(b.Categories) == 0 {
		return true
	}
	return slices.ContainsFunc(b.Categories, func(c string) bool {
		return strings.EqualFold(c, category)
	})
}

// QuantityFit returns how well a lot of the given quantity fits the buyer's
// purchase window, in [0,1]. 1 means the whole lot fits between min and max;
// 0 means the lot is below the buyer's minimum.
func (b *Buyer) QuantityFit(lotQuantity decimal.Decimal) float64 {
	if lotQuantity.LessThan(b.MinQuantity) {
		return 0
	}
	if b.MaxQuantity == nil || lotQuantity.LessThanOrEqual(*b.MaxQuantity) {
		return 1
	}
	// Lot exceeds the buyer's ceiling; they can take a partial share.
	ratio, _ := b.MaxQuantity.Div(lotQuantity).Float64()
	return ratio
}
