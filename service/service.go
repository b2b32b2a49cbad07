// Package service implements the operations behind the HTTP API: CSV
// imports, lot and buyer queries, synchronous matching, offer decisions,
// and dashboard aggregation. Handlers stay thin; everything with business
// meaning lives here.
package service

import (
	"context"

	"github.com/greenchain/greenchain/ingest"
	"github.com/greenchain/greenchain/match"
	"github.com/greenchain/greenchain/notifier"
	"github.com/greenchain/greenchain/storage"
)

// Service provides the API operations.
type Service struct {
	store      storage.Store
	engine     *match.Engine
	parser     *ingest.Parser
	notifier   *notifier.Notifier
	instanceID string
}

// Config holds service construction options.
type Config struct {
	// Engine scores buyers for lots. Defaults to match.NewEngine().
	Engine *match.Engine

	// Notifier broadcasts events after writes. Optional.
	Notifier *notifier.Notifier

	// InstanceID is stamped on imports and offers created through the API.
	InstanceID string
}

// New creates a Service with the given store.
func New(store storage.Store, config *Config) *Service {
	if config == nil {
		config = &Config{}
	}

	engine := config.Engine
	if engine == nil {
		engine = match.NewEngine()
	}

	return &Service{
		store:      store,
		engine:     engine,
		parser:     ingest.NewParser(),
		notifier:   config.Notifier,
		instanceID: config.InstanceID,
	}
}

// Store returns the underlying store.
// This is useful for advanced operations not covered by the service.
func (s *Service) Store() storage.Store {
	return s.store
}

// notify broadcasts an event if a running notifier is attached. Failures
// are swallowed; notifications are a hint, the polling loops catch up.
func (s *Service) notify(ctx context.Context, event notifier.EventType, payload string) {
	if s.notifier == nil || !s.notifier.IsRunning() {
		return
	}
	_ = s.notifier.Notify(ctx, event, payload)
}
