package maintenance

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/greenchain/greenchain/storage"
)

// Default cleanup configuration values
const (
	DefaultCleanupInterval = 1 * time.Minute
	DefaultOfferTTL        = 48 * time.Hour

	// DefaultStuckMatchTimeout is how long a lot may sit in the matching
	// status before the sweep assumes the claiming instance died and
	// returns the lot to the available pool.
	DefaultStuckMatchTimeout = 15 * time.Minute
)

// CleanupConfig holds configuration for the cleanup service.
type CleanupConfig struct {
	// Interval is how often to run cleanup operations.
	// Default: 1 minute
	Interval time.Duration

	// StuckMatchTimeout is how long a lot may stay claimed in matching
	// before the sweep releases it back to available.
	// Default: 15 minutes
	StuckMatchTimeout time.Duration

	// OnLotExpiry is called when lots past their expiry date are swept.
	// The count is the number of lots moved to the expired status.
	OnLotExpiry func(count int)

	// OnOfferExpiry is called when stale offers are swept.
	// The count is the number of offers that were expired.
	OnOfferExpiry func(count int)

	// OnLotRelease is called when lots are returned to the available pool,
	// either because all their offers lapsed or because a matching claim
	// went stale. The count is the number of lots released.
	OnLotRelease func(count int)

	// OnStaleInstanceCleanup is called when stale instances are cleaned up.
	// The count is the number of instances that were cleaned up.
	OnStaleInstanceCleanup func(count int)

	// OnError is called when a cleanup operation fails.
	OnError func(err error)
}

// DefaultCleanupConfig returns the default cleanup configuration.
func DefaultCleanupConfig() *CleanupConfig {
	return &CleanupConfig{
		Interval:          DefaultCleanupInterval,
		StuckMatchTimeout: DefaultStuckMatchTimeout,
	}
}

// CleanupResult holds the results of a cleanup operation.
type CleanupResult struct {
	// LotsExpired is the number of lots moved to the expired status.
	LotsExpired int

	// OffersExpired is the number of stale offers that were expired.
	OffersExpired int

	// LotsReleased is the number of offered lots returned to available
	// after their last open offer lapsed.
	LotsReleased int

	// StuckLotsReleased is the number of lots reclaimed from stale
	// matching claims.
	StuckLotsReleased int

	// StaleInstancesCleaned is the number of stale instances cleaned up.
	StaleInstancesCleaned int

	// ExpiredLeadersCleaned is the number of expired leader entries cleaned.
	ExpiredLeadersCleaned int

	// Errors contains any errors that occurred during cleanup.
	Errors []error
}

// Cleanup performs the periodic sweeps: expiring lots past their date,
// expiring offers past their deadline, returning lots with no open offers
// or stale matching claims to the available pool, and removing stale
// instances. This should only be run by the leader instance.
type Cleanup struct {
	store  storage.Store
	config *CleanupConfig

	started atomic.Bool
	done    chan struct{}
	cancel  context.CancelFunc
}

// NewCleanup creates a new cleanup service.
func NewCleanup(store storage.Store, config *CleanupConfig) *Cleanup {
	if config == nil {
		config = DefaultCleanupConfig()
	}
	if config.StuckMatchTimeout == 0 {
		config.StuckMatchTimeout = DefaultStuckMatchTimeout
	}

	return &Cleanup{
		store:  store,
		config: config,
		done:   make(chan struct{}),
	}
}

// Start begins the cleanup loop.
// It returns immediately and runs cleanup operations in a goroutine.
// This should only be called when this instance is the leader.
func (c *Cleanup) Start(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	ctx, c.cancel = context.WithCancel(ctx)
	go c.run(ctx)

	return nil
}

// Stop stops the cleanup loop.
func (c *Cleanup) Stop(ctx context.Context) error {
	if !c.started.Load() {
		return ErrNotStarted
	}

	c.cancel()
	<-c.done

	c.started.Store(false)
	return nil
}

// run is the main cleanup loop.
func (c *Cleanup) run(ctx context.Context) {
	defer close(c.done)

	// Run cleanup immediately on start
	c.runCleanup(ctx)

	ticker := time.NewTicker(c.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.runCleanup(ctx)
		}
	}
}

// runCleanup performs all cleanup operations.
func (c *Cleanup) runCleanup(ctx context.Context) {
	result := c.RunOnce(ctx)

	if c.config.OnLotExpiry != nil && result.LotsExpired > 0 {
		c.config.OnLotExpiry(result.LotsExpired)
	}

	if c.config.OnOfferExpiry != nil && result.OffersExpired > 0 {
		c.config.OnOfferExpiry(result.OffersExpired)
	}

	if released := result.LotsReleased + result.StuckLotsReleased; c.config.OnLotRelease != nil && released > 0 {
		c.config.OnLotRelease(released)
	}

	if c.config.OnStaleInstanceCleanup != nil && result.StaleInstancesCleaned > 0 {
		c.config.OnStaleInstanceCleanup(result.StaleInstancesCleaned)
	}

	if c.config.OnError != nil {
		for _, err := range result.Errors {
			c.config.OnError(err)
		}
	}
}

// RunOnce performs cleanup operations once and returns the result.
// This can be called manually for testing or one-off cleanup.
func (c *Cleanup) RunOnce(ctx context.Context) *CleanupResult {
	result := &CleanupResult{}
	now := time.Now()

	// Sweep lots past their expiry date
	lotCount, err := c.store.ExpireLots(ctx, now)
	if err != nil {
		result.Errors = append(result.Errors, err)
	} else {
		result.LotsExpired = lotCount
	}

	// Sweep offers past their deadline
	offerCount, err := c.store.ExpireStaleOffers(ctx, now)
	if err != nil {
		result.Errors = append(result.Errors, err)
	} else {
		result.OffersExpired = offerCount
	}

	// Return offered lots whose last open offer just lapsed so they can be
	// rematched while they still have shelf life.
	releasedCount, err := c.store.ReleaseLotsWithoutOpenOffers(ctx)
	if err != nil {
		result.Errors = append(result.Errors, err)
	} else {
		result.LotsReleased = releasedCount
	}

	// Reclaim lots whose matching claim outlived its instance
	stuckCount, err := c.store.ReleaseStuckLots(ctx, now.Add(-c.config.StuckMatchTimeout))
	if err != nil {
		result.Errors = append(result.Errors, err)
	} else {
		result.StuckLotsReleased = stuckCount
	}

	// Clean up stale instances
	staleCount, err := c.cleanupStaleInstances(ctx)
	if err != nil {
		result.Errors = append(result.Errors, err)
	} else {
		result.StaleInstancesCleaned = staleCount
	}

	// Clean up expired leader entries
	leaderCount, err := c.store.LeaderDeleteExpired(ctx)
	if err != nil {
		result.Errors = append(result.Errors, err)
	} else {
		result.ExpiredLeadersCleaned = leaderCount
	}

	return result
}

// cleanupStaleInstances finds and removes instances that haven't heartbeated.
func (c *Cleanup) cleanupStaleInstances(ctx context.Context) (int, error) {
	horizon := time.Now().Add(-DefaultInstanceTTL)

	staleIDs, err := c.store.GetStaleInstances(ctx, horizon)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, id := range staleIDs {
		if err := c.store.DeregisterInstance(ctx, id); err != nil {
			// Continue with other instances even if one fails
			continue
		}
		count++
	}

	return count, nil
}

// IsRunning returns true if the cleanup service is running.
func (c *Cleanup) IsRunning() bool {
	return c.started.Load()
}
