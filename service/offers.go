package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/greenchain/greenchain/inventory"
	"github.com/greenchain/greenchain/notifier"
	"github.com/greenchain/greenchain/offerstate"
	"github.com/greenchain/greenchain/storage"
)

// ListOffers returns offers matching the filters.
func (s *Service) ListOffers(ctx context.Context, params OfferListParams) (*OfferList, error) {
	storeParams := &storage.ListOffersParams{
		LotID:    params.LotID,
		BuyerID:  params.BuyerID,
		Limit:    ValidateLimit(params.Limit),
		Offset:   ValidateOffset(params.Offset),
		OrderBy:  ValidateOrderBy(params.OrderBy, AllowedOfferOrderBy),
		OrderDir: ValidateOrderDir(params.OrderDir),
	}

	if params.State != "" {
		state := offerstate.State(params.State)
		if !state.IsValid() {
			return nil, fmt.Errorf("%w: unknown state %q", ErrInvalidInput, params.State)
		}
		storeParams.State = state
	}

	offers, total, err := s.store.ListOffers(ctx, storeParams)
	if err != nil {
		return nil, fmt.Errorf("failed to list offers: %w", err)
	}

	return &OfferList{
		Offers:     offers,
		TotalCount: total,
		HasMore:    storeParams.Offset+len(offers) < total,
	}, nil
}

// GetOffer returns one offer.
func (s *Service) GetOffer(ctx context.Context, offerID string) (*storage.Offer, error) {
	offer, err := s.store.GetOffer(ctx, offerID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get offer: %w", err)
	}
	return offer, nil
}

// AcceptOffer accepts an open offer: the offer moves to accepted, the lot
// is cleared, and every other open offer on the lot is declined. Accepting
// an offer that is no longer open returns ErrConflict.
func (s *Service) AcceptOffer(ctx context.Context, offerID, reason string) (*storage.Offer, error) {
	offer, err := s.GetOffer(ctx, offerID)
	if err != nil {
		return nil, err
	}

	err = s.store.UpdateOfferState(ctx, offerID, &storage.UpdateOfferStateParams{
		State:          offerstate.StateAccepted,
		RequiredState:  offerstate.StateOffered,
		DecisionReason: decisionReason(reason),
		MarkDecided:    true,
	})
	if err != nil {
		if errors.Is(err, storage.ErrStateTransitionFailed) {
			return nil, fmt.Errorf("%w: offer is not open", ErrConflict)
		}
		return nil, fmt.Errorf("failed to accept offer: %w", err)
	}

	// The winning buyer takes the lot; close out the losers.
	s.declineSiblings(ctx, offer.LotID, offerID)

	err = s.store.UpdateLotStatus(ctx, offer.LotID, &storage.UpdateLotStatusParams{
		Status:         inventory.StatusCleared,
		RequiredStatus: inventory.StatusOffered,
	})
	if err != nil && !errors.Is(err, storage.ErrStateTransitionFailed) {
		return nil, fmt.Errorf("failed to clear lot: %w", err)
	}

	s.notifyDecision(ctx, offerID, offer.LotID, string(offerstate.StateAccepted))

	return s.GetOffer(ctx, offerID)
}

// DeclineOffer declines an open offer. When it was the lot's last open
// offer, the lot goes back to available for the next matching round.
func (s *Service) DeclineOffer(ctx context.Context, offerID, reason string) (*storage.Offer, error) {
	offer, err := s.GetOffer(ctx, offerID)
	if err != nil {
		return nil, err
	}

	err = s.store.UpdateOfferState(ctx, offerID, &storage.UpdateOfferStateParams{
		State:          offerstate.StateDeclined,
		RequiredState:  offerstate.StateOffered,
		DecisionReason: decisionReason(reason),
		MarkDecided:    true,
	})
	if err != nil {
		if errors.Is(err, storage.ErrStateTransitionFailed) {
			return nil, fmt.Errorf("%w: offer is not open", ErrConflict)
		}
		return nil, fmt.Errorf("failed to decline offer: %w", err)
	}

	open, err := s.store.CountOpenOffers(ctx, offer.LotID)
	if err != nil {
		return nil, fmt.Errorf("failed to count open offers: %w", err)
	}
	if open == 0 {
		err = s.store.UpdateLotStatus(ctx, offer.LotID, &storage.UpdateLotStatusParams{
			Status:         inventory.StatusAvailable,
			RequiredStatus: inventory.StatusOffered,
		})
		if err != nil && !errors.Is(err, storage.ErrStateTransitionFailed) {
			return nil, fmt.Errorf("failed to release lot: %w", err)
		}
	}

	s.notifyDecision(ctx, offerID, offer.LotID, string(offerstate.StateDeclined))

	return s.GetOffer(ctx, offerID)
}

// declineSiblings declines the other open offers on a lot after one of
// them is accepted. Individual failures are ignored; the cleanup sweep
// expires whatever is left.
func (s *Service) declineSiblings(ctx context.Context, lotID, acceptedOfferID string) {
	siblings, _, err := s.store.ListOffers(ctx, &storage.ListOffersParams{
		LotID: lotID,
		State: offerstate.StateOffered,
		Limit: MaxPageLimit,
	})
	if err != nil {
		return
	}

	reason := "lot cleared by another buyer"
	for _, sibling := range siblings {
		if sibling.ID == acceptedOfferID {
			continue
		}
		_ = s.store.UpdateOfferState(ctx, sibling.ID, &storage.UpdateOfferStateParams{
			State:          offerstate.StateDeclined,
			RequiredState:  offerstate.StateOffered,
			DecisionReason: &reason,
			MarkDecided:    true,
		})
	}
}

func (s *Service) notifyDecision(ctx context.Context, offerID, lotID, decision string) {
	payload, err := json.Marshal(map[string]string{
		"offer_id": offerID,
		"lot_id":   lotID,
		"decision": decision,
	})
	if err != nil {
		return
	}
	s.notify(ctx, notifier.EventOfferDecided, string(payload))
}

func decisionReason(reason string) *string {
	if reason == "" {
		return nil
	}
	return &reason
}
