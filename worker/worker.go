// Package worker provides the background matcher that turns available lots
// into offers.
//
// The matcher is event-driven: it reacts to lot_imported notifications for
// immediate matching and polls as a fallback so lots are never stranded if a
// notification is missed. Lots are claimed with an atomic status transition,
// so multiple instances can run the matcher concurrently without producing
// duplicate offers.
//
// The matcher is embedded in the Client and starts automatically with
// Client.Start().
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"github.com/greenchain/greenchain/inventory"
	"github.com/greenchain/greenchain/match"
	"github.com/greenchain/greenchain/notifier"
	"github.com/greenchain/greenchain/offerstate"
	"github.com/greenchain/greenchain/storage"
)

// DefaultPaymentTerms is the standard terms quoted on clearance offers.
const DefaultPaymentTerms = "Net 7 days"

// Config holds configuration for the match worker.
type Config struct {
	// InstanceID is the unique identifier for this worker instance.
	InstanceID string

	// MaxConcurrentLots limits how many lots can be matched simultaneously.
	// Default: 10
	MaxConcurrentLots int

	// BatchSize is how many lots to pick up per poll.
	// Default: 20
	BatchSize int

	// PollInterval is how often to poll for unmatched lots.
	// Default: 5s
	PollInterval time.Duration

	// MatchHorizonDays bounds which lots the matcher picks up: only lots
	// expiring within this many days are matched. Default: 10
	MatchHorizonDays int

	// OfferTTL is how long created offers stay open before expiring.
	// Default: 48h
	OfferTTL time.Duration

	// PaymentTerms is quoted on every offer. Default: DefaultPaymentTerms.
	PaymentTerms string

	// OnError is called when an error occurs during processing.
	OnError func(err error)

	// OnLotMatched is called after a lot's shortlist becomes offers.
	OnLotMatched func(lotID string, offerCount int)
}

// DefaultConfig returns the default worker configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxConcurrentLots: 10,
		BatchSize:         20,
		PollInterval:      5 * time.Second,
		MatchHorizonDays:  10,
		OfferTTL:          48 * time.Hour,
		PaymentTerms:      DefaultPaymentTerms,
	}
}

// Worker matches lots to buyers and creates offers.
type Worker struct {
	store    storage.Store
	engine   *match.Engine
	notifier *notifier.Notifier
	config   *Config

	// Semaphore for concurrency control
	lotSem chan struct{}

	// State
	started atomic.Bool
	done    chan struct{}
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a new match worker.
func New(
	store storage.Store,
	engine *match.Engine,
	notif *notifier.Notifier,
	config *Config,
) *Worker {
	// Start with defaults and merge user config
	cfg := DefaultConfig()
	if config != nil {
		if config.InstanceID != "" {
			cfg.InstanceID = config.InstanceID
		}
		if config.MaxConcurrentLots > 0 {
			cfg.MaxConcurrentLots = config.MaxConcurrentLots
		}
		if config.BatchSize > 0 {
			cfg.BatchSize = config.BatchSize
		}
		if config.PollInterval > 0 {
			cfg.PollInterval = config.PollInterval
		}
		if config.MatchHorizonDays > 0 {
			cfg.MatchHorizonDays = config.MatchHorizonDays
		}
		if config.OfferTTL > 0 {
			cfg.OfferTTL = config.OfferTTL
		}
		if config.PaymentTerms != "" {
			cfg.PaymentTerms = config.PaymentTerms
		}
		if config.OnError != nil {
			cfg.OnError = config.OnError
		}
		if config.OnLotMatched != nil {
			cfg.OnLotMatched = config.OnLotMatched
		}
	}

	if engine == nil {
		engine = match.NewEngine()
	}

	return &Worker{
		store:    store,
		engine:   engine,
		notifier: notif,
		config:   cfg,
		lotSem:   make(chan struct{}, cfg.MaxConcurrentLots),
		done:     make(chan struct{}),
	}
}

// Start begins matching lots.
func (w *Worker) Start(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return fmt.Errorf("worker already started")
	}

	ctx, w.cancel = context.WithCancel(ctx)

	// Subscribe to events if notifier is available
	if w.notifier != nil && w.notifier.IsRunning() {
		w.subscribeToEvents(ctx)
	}

	w.wg.Add(1)
	go w.pollingLoop(ctx)

	return nil
}

// Stop stops the worker gracefully.
func (w *Worker) Stop(ctx context.Context) error {
	if !w.started.Load() {
		return nil
	}

	w.cancel()

	// Wait for goroutines with timeout
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	close(w.done)
	w.started.Store(false)
	return nil
}

// subscribeToEvents sets up event subscriptions.
func (w *Worker) subscribeToEvents(ctx context.Context) {
	// A fresh import means new lots to match; poll right away instead of
	// waiting for the next tick.
	w.notifier.Subscribe(notifier.EventLotImported, func(event *notifier.Event) {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.pollLots(ctx)
		}()
	})
}

// pollingLoop polls for unmatched lots.
func (w *Worker) pollingLoop(ctx context.Context) {
	defer w.wg.Done()

	// Pick up anything left over from before this instance started.
	w.pollLots(ctx)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.pollLots(ctx)
		}
	}
}

// pollLots finds lots needing a match and processes them.
func (w *Worker) pollLots(ctx context.Context) {
	cutoff := time.Now().AddDate(0, 0, w.config.MatchHorizonDays)

	lots, err := w.store.GetLotsNeedingMatch(ctx, cutoff, w.config.BatchSize)
	if err != nil {
		w.logError(fmt.Errorf("failed to get lots needing match: %w", err))
		return
	}

	for _, lot := range lots {
		// Try to acquire semaphore without blocking
		select {
		case w.lotSem <- struct{}{}:
			w.wg.Add(1)
			go func(lotID string) {
				defer w.wg.Done()
				defer func() { <-w.lotSem }()

				if err := w.claimAndMatchLot(ctx, lotID); err != nil {
					w.logError(fmt.Errorf("failed to match lot %s: %w", lotID, err))
				}
			}(lot.ID)
		default:
			// All slots are full, the next poll picks up the rest
			return
		}
	}
}

// claimAndMatchLot claims a lot and runs matching on it.
func (w *Worker) claimAndMatchLot(ctx context.Context, lotID string) error {
	// Atomically transition available -> matching. Only one instance wins.
	err := w.store.UpdateLotStatus(ctx, lotID, &storage.UpdateLotStatusParams{
		Status:         inventory.StatusMatching,
		RequiredStatus: inventory.StatusAvailable,
	})
	if err != nil {
		if errors.Is(err, storage.ErrStateTransitionFailed) {
			// Another instance claimed it, skip silently
			return nil
		}
		return fmt.Errorf("failed to claim lot: %w", err)
	}

	return w.matchLot(ctx, lotID)
}

// matchLot scores buyers for a claimed lot and creates offers for the
// shortlist.
func (w *Worker) matchLot(ctx context.Context, lotID string) error {
	lot, err := w.store.GetLot(ctx, lotID)
	if err != nil {
		return fmt.Errorf("failed to get lot: %w", err)
	}

	buyers, err := w.store.GetActiveBuyers(ctx)
	if err != nil {
		w.releaseLot(ctx, lotID)
		return fmt.Errorf("failed to get buyers: %w", err)
	}

	shortlist := w.engine.Shortlist(lot, buyers)
	if len(shortlist) == 0 {
		// No feasible buyers right now; release the lot so a later round
		// can retry once new buyers register.
		w.releaseLot(ctx, lotID)
		return nil
	}

	expiresAt := time.Now().Add(w.config.OfferTTL)

	offers := make([]*storage.Offer, len(shortlist))
	for i, candidate := range shortlist {
		offers[i] = &storage.Offer{
			LotID:             lotID,
			BuyerID:           candidate.Buyer.ID,
			State:             offerstate.StatePending,
			Score:             candidate.Score,
			DiscountPct:       candidate.DiscountPct,
			OfferedQuantity:   offerQuantity(lot.Quantity, candidate.Buyer.MaxQuantity),
			PaymentTerms:      w.config.PaymentTerms,
			CreatedByInstance: w.config.InstanceID,
			ExpiresAt:         expiresAt,
		}
	}

	if err := w.store.CreateOffers(ctx, offers); err != nil {
		w.releaseLot(ctx, lotID)
		return fmt.Errorf("failed to create offers: %w", err)
	}

	// Offers exist; present them and move the lot along.
	for _, offer := range offers {
		err := w.store.UpdateOfferState(ctx, offer.ID, &storage.UpdateOfferStateParams{
			State:         offerstate.StateOffered,
			RequiredState: offerstate.StatePending,
			MarkOffered:   true,
		})
		if err != nil {
			w.logError(fmt.Errorf("failed to present offer %s: %w", offer.ID, err))
		}
	}

	err = w.store.UpdateLotStatus(ctx, lotID, &storage.UpdateLotStatusParams{
		Status:         inventory.StatusOffered,
		RequiredStatus: inventory.StatusMatching,
	})
	if err != nil {
		return fmt.Errorf("failed to mark lot offered: %w", err)
	}

	w.notifyOffers(ctx, lotID, offers)

	if w.config.OnLotMatched != nil {
		w.config.OnLotMatched(lotID, len(offers))
	}

	return nil
}

// releaseLot puts a claimed lot back in the available pool.
func (w *Worker) releaseLot(ctx context.Context, lotID string) {
	err := w.store.UpdateLotStatus(ctx, lotID, &storage.UpdateLotStatusParams{
		Status:         inventory.StatusAvailable,
		RequiredStatus: inventory.StatusMatching,
	})
	if err != nil && !errors.Is(err, storage.ErrStateTransitionFailed) {
		w.logError(fmt.Errorf("failed to release lot %s: %w", lotID, err))
	}
}

// notifyOffers broadcasts offer_created events, one per offer.
func (w *Worker) notifyOffers(ctx context.Context, lotID string, offers []*storage.Offer) {
	if w.notifier == nil || !w.notifier.IsRunning() {
		return
	}

	for _, offer := range offers {
		payload, err := json.Marshal(map[string]string{
			"offer_id": offer.ID,
			"lot_id":   lotID,
			"buyer_id": offer.BuyerID,
		})
		if err != nil {
			continue
		}
		if err := w.notifier.Notify(ctx, notifier.EventOfferCreated, string(payload)); err != nil {
			w.logError(fmt.Errorf("failed to notify offer %s: %w", offer.ID, err))
		}
	}
}

// offerQuantity caps the offered quantity at the buyer's ceiling.
func offerQuantity(lotQuantity decimal.Decimal, maxQuantity *decimal.Decimal) decimal.Decimal {
	if maxQuantity != nil && lotQuantity.GreaterThan(*maxQuantity) {
		return *maxQuantity
	}
	return lotQuantity
}

// logError logs an error using the configured handler or default logger.
func (w *Worker) logError(err error) {
	if w.config.OnError != nil {
		w.config.OnError(err)
	} else {
		log.Printf("greenchain/worker: %v", err)
	}
}

// IsRunning returns true if the worker is running.
func (w *Worker) IsRunning() bool {
	return w.started.Load()
}
