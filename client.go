package greenchain

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/greenchain/greenchain/api"
	"github.com/greenchain/greenchain/leadership"
	"github.com/greenchain/greenchain/maintenance"
	"github.com/greenchain/greenchain/match"
	"github.com/greenchain/greenchain/notifier"
	"github.com/greenchain/greenchain/service"
	"github.com/greenchain/greenchain/storage"
	"github.com/greenchain/greenchain/voice"
	"github.com/greenchain/greenchain/worker"
)

// Version is the current Green-Chain backend version
const Version = "1.0.0"

// ClientConfig holds configuration for the Client.
type ClientConfig struct {
	// AnthropicClient powers the voice assistant (optional). Without it the
	// voice endpoints fall back to the deterministic evaluator.
	AnthropicClient *anthropic.Client

	// InstanceID is a unique identifier for this backend instance (optional)
	// If not provided, a UUID will be generated
	InstanceID string

	// Hostname is the hostname for this instance (optional)
	// If not provided, os.Hostname() is used
	Hostname string

	// Metadata is additional metadata to store with this instance
	Metadata map[string]any

	// HeartbeatInterval is how often to send heartbeats (optional)
	// Default: 30 seconds
	HeartbeatInterval time.Duration

	// CleanupInterval is how often to run maintenance sweeps when leader
	// (optional). Default: 1 minute
	CleanupInterval time.Duration

	// LeaderTTL is how long a leader's lease is valid (optional)
	// Default: 30 seconds
	LeaderTTL time.Duration

	// MatchPollInterval is how often the match worker polls for lots
	// (optional). Default: 5 seconds
	MatchPollInterval time.Duration

	// MatchHorizonDays bounds which lots the background matcher picks up
	// (optional). Default: 10
	MatchHorizonDays int

	// OfferTTL is how long offers stay open (optional). Default: 48 hours
	OfferTTL time.Duration

	// ShortlistSize bounds how many buyers get offers per lot (optional).
	// Default: 5
	ShortlistSize int

	// VoiceModel overrides the model used by the voice assistant (optional)
	VoiceModel string

	// APILogger is used by the HTTP layer (optional)
	APILogger api.Logger

	// OnError is called when background operations fail
	OnError func(err error)

	// OnBecameLeader is called when this instance becomes the leader
	OnBecameLeader func()

	// OnLostLeadership is called when this instance loses leadership
	OnLostLeadership func()
}

// DefaultClientConfig returns the default client configuration.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		HeartbeatInterval: maintenance.DefaultHeartbeatInterval,
		CleanupInterval:   maintenance.DefaultCleanupInterval,
		LeaderTTL:         leadership.DefaultLeaderTTL,
		OfferTTL:          maintenance.DefaultOfferTTL,
	}
}

// Client is one backend instance: it owns the store, the HTTP handler, and
// the background services (heartbeat, leader election, match worker,
// maintenance sweeps). Multiple clients may run against one database.
type Client struct {
	pool       *pgxpool.Pool
	store      storage.Store
	config     *ClientConfig
	instanceID string

	engine *match.Engine
	svc    *service.Service
	agent  *voice.Agent

	// Background services
	heartbeat *maintenance.Heartbeat
	cleanup   *maintenance.Cleanup
	elector   *leadership.Elector
	notif     *notifier.Notifier
	matcher   *worker.Worker

	// State
	started  atomic.Bool
	isLeader atomic.Bool

	// Cancellation
	cancel context.CancelFunc
}

// NewClient creates a backend client on the given connection pool.
func NewClient(pool *pgxpool.Pool, config *ClientConfig) (*Client, error) {
	if pool == nil {
		return nil, fmt.Errorf("%w: pool is required", ErrInvalidConfig)
	}

	// Apply defaults
	if config == nil {
		config = DefaultClientConfig()
	} else {
		// Apply defaults for zero values
		if config.HeartbeatInterval == 0 {
			config.HeartbeatInterval = maintenance.DefaultHeartbeatInterval
		}
		if config.CleanupInterval == 0 {
			config.CleanupInterval = maintenance.DefaultCleanupInterval
		}
		if config.LeaderTTL == 0 {
			config.LeaderTTL = leadership.DefaultLeaderTTL
		}
		if config.OfferTTL == 0 {
			config.OfferTTL = maintenance.DefaultOfferTTL
		}
	}

	// Generate instance ID if not provided
	instanceID := config.InstanceID
	if instanceID == "" {
		instanceID = uuid.New().String()
	}

	// Get hostname if not provided
	if config.Hostname == "" {
		h, err := os.Hostname()
		if err != nil {
			config.Hostname = "unknown"
		} else {
			config.Hostname = h
		}
	}

	store := storage.NewPostgresStore(pool)

	notif := notifier.NewNotifier(
		func(ctx context.Context) (notifier.Listener, error) {
			return notifier.NewPgxListener(pool), nil
		},
		notifier.NewPgxSender(pool),
		nil,
	)

	engine := match.NewEngine()
	if config.ShortlistSize > 0 {
		engine.ShortlistSize = config.ShortlistSize
	}

	svc := service.New(store, &service.Config{
		Engine:     engine,
		Notifier:   notif,
		InstanceID: instanceID,
	})

	agent := voice.NewAgent(config.AnthropicClient, store, &voice.AgentConfig{
		Model: config.VoiceModel,
	})

	return &Client{
		pool:       pool,
		store:      store,
		config:     config,
		instanceID: instanceID,
		engine:     engine,
		svc:        svc,
		agent:      agent,
		notif:      notif,
	}, nil
}

// Start registers the instance and begins background operations: heartbeat,
// leader election, the event listener, and the match worker.
func (c *Client) Start(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return ErrClientAlreadyStarted
	}

	// Create cancellable context
	ctx, c.cancel = context.WithCancel(ctx)

	// Register instance
	if err := c.registerInstance(ctx); err != nil {
		c.started.Store(false)
		return fmt.Errorf("failed to register instance: %w", err)
	}

	// Start heartbeat service
	c.heartbeat = maintenance.NewHeartbeat(c.store, c.instanceID, &maintenance.HeartbeatConfig{
		Interval: c.config.HeartbeatInterval,
		OnError:  c.config.OnError,
	})
	if err := c.heartbeat.Start(ctx); err != nil {
		c.started.Store(false)
		return fmt.Errorf("failed to start heartbeat: %w", err)
	}

	// Start leader election
	c.elector = leadership.NewElector(c.store, c.instanceID, &leadership.Config{
		LeaderTTL: c.config.LeaderTTL,
	}, leadership.Callbacks{
		OnBecameLeader:   c.onBecameLeader,
		OnLostLeadership: c.onLostLeadership,
	})
	if err := c.elector.Start(ctx); err != nil {
		_ = c.heartbeat.Stop(ctx) // best-effort cleanup
		c.started.Store(false)
		return fmt.Errorf("failed to start leader election: %w", err)
	}

	// Start the LISTEN/NOTIFY bus
	if err := c.notif.Start(ctx); err != nil {
		_ = c.elector.Stop(ctx)   // best-effort cleanup
		_ = c.heartbeat.Stop(ctx) // best-effort cleanup
		c.started.Store(false)
		return fmt.Errorf("failed to start notifier: %w", err)
	}

	// Start the match worker on the same engine the API path uses, so both
	// honor the configured shortlist size.
	c.matcher = worker.New(c.store, c.engine, c.notif, &worker.Config{
		InstanceID:       c.instanceID,
		PollInterval:     c.config.MatchPollInterval,
		MatchHorizonDays: c.config.MatchHorizonDays,
		OfferTTL:         c.config.OfferTTL,
		OnError:          c.config.OnError,
	})
	if err := c.matcher.Start(ctx); err != nil {
		_ = c.notif.Stop(ctx)     // best-effort cleanup
		_ = c.elector.Stop(ctx)   // best-effort cleanup
		_ = c.heartbeat.Stop(ctx) // best-effort cleanup
		c.started.Store(false)
		return fmt.Errorf("failed to start match worker: %w", err)
	}

	return nil
}

// Stop gracefully shuts down the client.
// It stops all background services and deregisters the instance.
func (c *Client) Stop(ctx context.Context) error {
	if !c.started.Load() {
		return ErrClientNotStarted
	}

	// Cancel background context
	if c.cancel != nil {
		c.cancel()
	}

	// Stop services in reverse order (best-effort, continue on errors)
	if c.matcher != nil && c.matcher.IsRunning() {
		_ = c.matcher.Stop(ctx)
	}

	if c.cleanup != nil && c.cleanup.IsRunning() {
		_ = c.cleanup.Stop(ctx)
	}

	if c.notif != nil && c.notif.IsRunning() {
		_ = c.notif.Stop(ctx)
	}

	if c.elector != nil {
		_ = c.elector.Stop(ctx)
	}

	if c.heartbeat != nil {
		_ = c.heartbeat.Stop(ctx)
	}

	// Deregister instance (best effort)
	_ = c.store.DeregisterInstance(ctx, c.instanceID)

	c.started.Store(false)
	return nil
}

// Handler returns the backend HTTP handler.
func (c *Client) Handler() http.Handler {
	return api.NewRouter(c.svc, c.agent, &api.Config{
		Logger: c.config.APILogger,
	})
}

// InstanceID returns the unique identifier for this client instance.
func (c *Client) InstanceID() string {
	return c.instanceID
}

// IsLeader returns true if this instance is currently the leader.
func (c *Client) IsLeader() bool {
	return c.isLeader.Load()
}

// IsRunning returns true if the client is running.
func (c *Client) IsRunning() bool {
	return c.started.Load()
}

// Store returns the storage interface for direct access.
func (c *Client) Store() storage.Store {
	return c.store
}

// Service returns the API operations layer.
func (c *Client) Service() *service.Service {
	return c.svc
}

// VoiceAgent returns the voice assistant.
func (c *Client) VoiceAgent() *voice.Agent {
	return c.agent
}

// registerInstance registers this instance with the database.
func (c *Client) registerInstance(ctx context.Context) error {
	params := &storage.RegisterInstanceParams{
		ID:       c.instanceID,
		Hostname: c.config.Hostname,
		PID:      os.Getpid(),
		Version:  Version,
		Metadata: c.config.Metadata,
	}

	return c.store.RegisterInstance(ctx, params)
}

// onBecameLeader is called when this instance becomes the leader.
func (c *Client) onBecameLeader(ctx context.Context) {
	c.isLeader.Store(true)

	// The leader runs the maintenance sweeps: lot expiry, offer expiry,
	// stale instance removal.
	c.cleanup = maintenance.NewCleanup(c.store, &maintenance.CleanupConfig{
		Interval: c.config.CleanupInterval,
		OnError:  c.config.OnError,
	})
	if err := c.cleanup.Start(ctx); err != nil {
		if c.config.OnError != nil {
			c.config.OnError(fmt.Errorf("failed to start cleanup service: %w", err))
		}
	}

	if c.config.OnBecameLeader != nil {
		c.config.OnBecameLeader()
	}
}

// onLostLeadership is called when this instance loses leadership.
func (c *Client) onLostLeadership(ctx context.Context) {
	c.isLeader.Store(false)

	if c.cleanup != nil && c.cleanup.IsRunning() {
		_ = c.cleanup.Stop(ctx)
	}

	if c.config.OnLostLeadership != nil {
		c.config.OnLostLeadership()
	}
}
