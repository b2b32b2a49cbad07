package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/greenchain/greenchain/inventory"
	"github.com/greenchain/greenchain/notifier"
	"github.com/greenchain/greenchain/offerstate"
	"github.com/greenchain/greenchain/storage"
	"github.com/greenchain/greenchain/worker"
)

// DefaultOfferTTL is how long offers created through the API stay open.
const DefaultOfferTTL = 48 * time.Hour

// ImportCSV parses an inventory upload, stores the accepted lots, records
// the import report, and announces the new lots to the match workers.
// Row-level problems reject rows, not the upload.
func (s *Service) ImportCSV(ctx context.Context, filename string, r io.Reader) (*ImportResult, error) {
	lots, report, err := s.parser.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, err)
	}

	if len(lots) > 0 {
		if err := s.store.CreateLots(ctx, lots); err != nil {
			return nil, fmt.Errorf("failed to store lots: %w", err)
		}
	}

	importID, err := s.store.RecordImport(ctx, &storage.Import{
		Filename:     filename,
		RowsTotal:    report.RowsTotal,
		RowsAccepted: report.RowsAccepted,
		RowsRejected: report.RowsRejected,
		Errors:       report.Errors,
		InstanceID:   s.instanceID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record import: %w", err)
	}

	lotIDs := make([]string, len(lots))
	for i, lot := range lots {
		lotIDs[i] = lot.ID
	}

	if len(lotIDs) > 0 {
		payload, err := json.Marshal(map[string]any{
			"import_id": importID,
			"lot_count": len(lotIDs),
		})
		if err == nil {
			s.notify(ctx, notifier.EventLotImported, string(payload))
		}
	}

	return &ImportResult{
		ImportID: importID,
		Report:   report,
		LotIDs:   lotIDs,
	}, nil
}

// ListLots returns lots matching the filters. A band filter is translated
// into the expiry-date window that band covers today.
func (s *Service) ListLots(ctx context.Context, params LotListParams) (*LotList, error) {
	storeParams := &storage.ListLotsParams{
		Category:    params.Category,
		WarehouseID: params.WarehouseID,
		Limit:       ValidateLimit(params.Limit),
		Offset:      ValidateOffset(params.Offset),
		OrderBy:     ValidateOrderBy(params.OrderBy, AllowedLotOrderBy),
		OrderDir:    ValidateOrderDir(params.OrderDir),
	}

	if params.Status != "" {
		status := inventory.Status(params.Status)
		if !status.IsValid() {
			return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, params.Status)
		}
		storeParams.Status = status
	}

	if params.Band != "" {
		band := inventory.Band(params.Band)
		if !inventory.IsValidBand(band) {
			return nil, fmt.Errorf("%w: unknown band %q", ErrInvalidInput, params.Band)
		}
		storeParams.ExpiringAfter, storeParams.ExpiringBefore = bandBounds(band)
	}

	lots, total, err := s.store.ListLots(ctx, storeParams)
	if err != nil {
		return nil, fmt.Errorf("failed to list lots: %w", err)
	}

	now := time.Now()
	views := make([]*LotView, len(lots))
	for i, lot := range lots {
		views[i] = &LotView{Lot: lot, Urgency: lot.Urgency(now)}
	}

	return &LotList{
		Lots:       views,
		TotalCount: total,
		HasMore:    storeParams.Offset+len(views) < total,
	}, nil
}

// GetLot returns one lot with its current urgency.
func (s *Service) GetLot(ctx context.Context, lotID string) (*LotView, error) {
	lot, err := s.store.GetLot(ctx, lotID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get lot: %w", err)
	}

	return &LotView{Lot: lot, Urgency: lot.Urgency(time.Now())}, nil
}

// MatchLot runs one matching round for a lot synchronously and returns the
// shortlist with the offers it produced. The lot is claimed with the same
// atomic transition the background matcher uses, so a concurrent worker
// and an API call cannot double-offer the same lot.
func (s *Service) MatchLot(ctx context.Context, lotID string) (*MatchResult, error) {
	err := s.store.UpdateLotStatus(ctx, lotID, &storage.UpdateLotStatusParams{
		Status:         inventory.StatusMatching,
		RequiredStatus: inventory.StatusAvailable,
	})
	if err != nil {
		if errors.Is(err, storage.ErrStateTransitionFailed) {
			return nil, fmt.Errorf("%w: lot is not available for matching", ErrConflict)
		}
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to claim lot: %w", err)
	}

	lot, err := s.store.GetLot(ctx, lotID)
	if err != nil {
		s.releaseLot(ctx, lotID)
		return nil, fmt.Errorf("failed to get lot: %w", err)
	}

	buyers, err := s.store.GetActiveBuyers(ctx)
	if err != nil {
		s.releaseLot(ctx, lotID)
		return nil, fmt.Errorf("failed to get buyers: %w", err)
	}

	shortlist := s.engine.Shortlist(lot, buyers)
	if len(shortlist) == 0 {
		s.releaseLot(ctx, lotID)
		return &MatchResult{LotID: lotID, Shortlist: shortlist}, nil
	}

	expiresAt := time.Now().Add(DefaultOfferTTL)
	offers := make([]*storage.Offer, len(shortlist))
	for i, candidate := range shortlist {
		quantity := lot.Quantity
		if candidate.Buyer.MaxQuantity != nil && quantity.GreaterThan(*candidate.Buyer.MaxQuantity) {
			quantity = *candidate.Buyer.MaxQuantity
		}
		offers[i] = &storage.Offer{
			LotID:             lotID,
			BuyerID:           candidate.Buyer.ID,
			State:             offerstate.StatePending,
			Score:             candidate.Score,
			DiscountPct:       candidate.DiscountPct,
			OfferedQuantity:   quantity,
			PaymentTerms:      worker.DefaultPaymentTerms,
			CreatedByInstance: s.instanceID,
			ExpiresAt:         expiresAt,
		}
	}

	if err := s.store.CreateOffers(ctx, offers); err != nil {
		s.releaseLot(ctx, lotID)
		return nil, fmt.Errorf("failed to create offers: %w", err)
	}

	for _, offer := range offers {
		err := s.store.UpdateOfferState(ctx, offer.ID, &storage.UpdateOfferStateParams{
			State:         offerstate.StateOffered,
			RequiredState: offerstate.StatePending,
			MarkOffered:   true,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to present offer %s: %w", offer.ID, err)
		}
	}

	err = s.store.UpdateLotStatus(ctx, lotID, &storage.UpdateLotStatusParams{
		Status:         inventory.StatusOffered,
		RequiredStatus: inventory.StatusMatching,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to mark lot offered: %w", err)
	}

	for _, offer := range offers {
		payload, err := json.Marshal(map[string]string{
			"offer_id": offer.ID,
			"lot_id":   lotID,
			"buyer_id": offer.BuyerID,
		})
		if err == nil {
			s.notify(ctx, notifier.EventOfferCreated, string(payload))
		}
	}

	return &MatchResult{
		LotID:     lotID,
		Shortlist: shortlist,
		Offers:    offers,
	}, nil
}

func (s *Service) releaseLot(ctx context.Context, lotID string) {
	_ = s.store.UpdateLotStatus(ctx, lotID, &storage.UpdateLotStatusParams{
		Status:         inventory.StatusAvailable,
		RequiredStatus: inventory.StatusMatching,
	})
}

// ListImports returns import reports, newest first.
func (s *Service) ListImports(ctx context.Context, limit, offset int) (*ImportList, error) {
	limit = ValidateLimit(limit)
	offset = ValidateOffset(offset)

	imports, total, err := s.store.ListImports(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list imports: %w", err)
	}

	return &ImportList{
		Imports:    imports,
		TotalCount: total,
		HasMore:    offset+len(imports) < total,
	}, nil
}

// GetImport returns one import report.
func (s *Service) GetImport(ctx context.Context, importID string) (*storage.Import, error) {
	imp, err := s.store.GetImport(ctx, importID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get import: %w", err)
	}
	return imp, nil
}

// bandBounds converts a band into list query expiry bounds.
func bandBounds(band inventory.Band) (after, before *time.Time) {
	return inventory.BandWindow(band, time.Now())
}
