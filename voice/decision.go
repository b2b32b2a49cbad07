// Package voice implements the negotiation assistant buyers talk to. A
// session opens with a fixed question, the conversation runs through the
// Anthropic Messages API, and order approval is decided by a deterministic
// evaluator exposed to the model as a tool. The evaluator, not the model,
// has the final word on whether an order is accepted.
package voice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/greenchain/greenchain/inventory"
	"github.com/greenchain/greenchain/storage"
)

// DefaultShelfLifeWindowDays is the delivery window assumed when the order
// is not anchored to a specific lot.
const DefaultShelfLifeWindowDays = 3

// DefaultPaymentTerms is quoted on every approved order.
const DefaultPaymentTerms = "Net 7 days"

// ErrBuyerRequired is returned when an order request names no buyer.
var ErrBuyerRequired = errors.New("buyer_id is required")

// OrderRequest is what the buyer asks for during a session.
type OrderRequest struct {
	BuyerID          string          `json:"buyer_id"`
	LotID            string          `json:"lot_id,omitempty"`
	QuantityNeeded   decimal.Decimal `json:"quantity_needed"`
	DeliveryTimeDays int             `json:"delivery_time_days"`
}

// Decision is the evaluator's verdict on an order request.
type Decision struct {
	Approved     bool   `json:"approved"`
	Reason       string `json:"reason"`
	WindowDays   int    `json:"window_days"`
	DiscountPct  int    `json:"discount_pct,omitempty"`
	PaymentTerms string `json:"payment_terms,omitempty"`
}

// Evaluator applies the order acceptance rule. It is pure business logic;
// the store is only consulted to resolve a lot's remaining shelf life.
type Evaluator struct {
	store storage.Store
	now   func() time.Time
}

// NewEvaluator creates an evaluator backed by the given store.
func NewEvaluator(store storage.Store) *Evaluator {
	return &Evaluator{store: store, now: time.Now}
}

// Evaluate decides an order request. Delivery slower than the shelf-life
// window is rejected; everything else is approved with the urgency-band
// discount and standard payment terms.
func (e *Evaluator) Evaluate(ctx context.Context, req *OrderRequest) (*Decision, error) {
	if req.BuyerID == "" {
		return nil, ErrBuyerRequired
	}
	if req.DeliveryTimeDays < 0 {
		return nil, fmt.Errorf("delivery_time_days cannot be negative, got %d", req.DeliveryTimeDays)
	}
	if req.QuantityNeeded.IsNegative() {
		return nil, fmt.Errorf("quantity_needed cannot be negative, got %s", req.QuantityNeeded)
	}

	window := DefaultShelfLifeWindowDays
	discount := 0

	if req.LotID != "" {
		lot, err := e.store.GetLot(ctx, req.LotID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve lot: %w", err)
		}
		if lot.Status.IsTerminal() {
			return &Decision{
				Approved: false,
				Reason:   fmt.Sprintf("lot %s is %s and no longer available for clearance", lot.ID, lot.Status),
			}, nil
		}
		urgency := lot.Urgency(e.now())
		if urgency.DaysToExpiry < 0 {
			return &Decision{
				Approved: false,
				Reason:   fmt.Sprintf("lot %s has passed its expiry date", lot.ID),
			}, nil
		}
		window = urgency.DaysToExpiry
		discount = urgency.DiscountPct
	}

	if req.DeliveryTimeDays > window {
		return &Decision{
			Approved:   false,
			WindowDays: window,
			Reason: fmt.Sprintf(
				"delivery in %d days exceeds the %d-day shelf-life window",
				req.DeliveryTimeDays, window),
		}, nil
	}

	if discount == 0 {
		// No lot context; quote the discount a lot at the window's edge
		// would carry.
		now := e.now()
		discount = inventory.AssessUrgency(now.AddDate(0, 0, window), now).DiscountPct
	}

	return &Decision{
		Approved:     true,
		WindowDays:   window,
		DiscountPct:  discount,
		PaymentTerms: DefaultPaymentTerms,
		Reason: fmt.Sprintf(
			"order approved: delivery in %d days fits the %d-day window",
			req.DeliveryTimeDays, window),
	}, nil
}

// OpeningQuestion is the first thing the assistant says in a new session.
func OpeningQuestion(buyerID string) string {
	return fmt.Sprintf("Buyer %s, how many units do you need?", buyerID)
}
