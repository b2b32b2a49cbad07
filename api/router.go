// Package api exposes the backend HTTP interface: inventory uploads, lot
// and buyer queries, offer decisions, the voice assistant, and the
// dashboard. Handlers translate HTTP to service calls and back; they hold
// no business logic.
package api

import (
	"net/http"

	"github.com/greenchain/greenchain/service"
	"github.com/greenchain/greenchain/voice"
)

// Config holds API router configuration.
type Config struct {
	// PageSize for pagination.
	PageSize int

	// MaxUploadBytes caps CSV upload size. Default: 10 MiB.
	MaxUploadBytes int64

	// Logger for structured logging.
	Logger Logger
}

// Logger interface for structured logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// router holds the API router state.
type router struct {
	svc    *service.Service
	agent  *voice.Agent
	config *Config
}

// NewRouter creates the backend HTTP handler.
func NewRouter(svc *service.Service, agent *voice.Agent, cfg *Config) http.Handler {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 25
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 10 << 20
	}

	r := &router{
		svc:    svc,
		agent:  agent,
		config: cfg,
	}

	mux := http.NewServeMux()

	// Health
	mux.HandleFunc("GET /health", r.handleHealth)

	// Inventory
	mux.HandleFunc("POST /api/inventory/import", r.handleImportCSV)
	mux.HandleFunc("GET /api/inventory", r.handleListLots)
	mux.HandleFunc("GET /api/inventory/{id}", r.handleGetLot)

	// Imports
	mux.HandleFunc("GET /api/imports", r.handleListImports)
	mux.HandleFunc("GET /api/imports/{id}", r.handleGetImport)

	// Buyers
	mux.HandleFunc("POST /api/buyers", r.handleCreateBuyer)
	mux.HandleFunc("GET /api/buyers", r.handleListBuyers)
	mux.HandleFunc("GET /api/buyers/{id}", r.handleGetBuyer)

	// Matching
	mux.HandleFunc("POST /api/lots/{id}/match", r.handleMatchLot)

	// Offers
	mux.HandleFunc("GET /api/offers", r.handleListOffers)
	mux.HandleFunc("GET /api/offers/{id}", r.handleGetOffer)
	mux.HandleFunc("POST /api/offers/{id}/accept", r.handleAcceptOffer)
	mux.HandleFunc("POST /api/offers/{id}/decline", r.handleDeclineOffer)

	// Voice assistant
	mux.HandleFunc("POST /api/voice/sessions", r.handleCreateVoiceSession)
	mux.HandleFunc("POST /api/voice/sessions/{id}/reply", r.handleVoiceReply)
	mux.HandleFunc("POST /api/voice/evaluate", r.handleVoiceEvaluate)

	// Dashboard
	mux.HandleFunc("GET /api/dashboard", r.handleDashboard)

	return withMiddleware(mux, cfg)
}

// withMiddleware wraps the handler with common middleware.
func withMiddleware(handler http.Handler, cfg *Config) http.Handler {
	// Add JSON content type
	handler = jsonMiddleware(handler)
	// Add error recovery
	handler = recoveryMiddleware(handler, cfg.Logger)
	return handler
}

// jsonMiddleware sets JSON content type for all responses.
func jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// recoveryMiddleware recovers from panics and returns 500.
func recoveryMiddleware(next http.Handler, logger Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				if logger != nil {
					logger.Error("panic recovered", "error", err, "path", r.URL.Path)
				}
				http.Error(w, `{"error":{"code":"internal_error","message":"internal server error"}}`, http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
