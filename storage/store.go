// Package storage defines the persistence interface for the clearance
// pipeline and its PostgreSQL implementation on pgx.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/greenchain/greenchain/buyer"
	"github.com/greenchain/greenchain/ingest"
	"github.com/greenchain/greenchain/inventory"
	"github.com/greenchain/greenchain/offerstate"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrStateTransitionFailed is returned when a conditional update found
	// the record in a different state than required. Callers use it to
	// detect that another instance already claimed or decided the record.
	ErrStateTransitionFailed = errors.New("record not in required state")
)

// Store defines the storage interface for the clearance pipeline.
type Store interface {
	// Lot operations
	CreateLots(ctx context.Context, lots []*inventory.Lot) error
	GetLot(ctx context.Context, lotID string) (*inventory.Lot, error)
	ListLots(ctx context.Context, params *ListLotsParams) ([]*inventory.Lot, int, error)
	// UpdateLotStatus transitions a lot's status. When RequiredStatus is
	// set the update applies only if the lot currently holds that status;
	// otherwise ErrStateTransitionFailed is returned.
	UpdateLotStatus(ctx context.Context, lotID string, params *UpdateLotStatusParams) error
	// GetLotsNeedingMatch returns available lots expiring on or before the
	// cutoff that have no open offers.
	GetLotsNeedingMatch(ctx context.Context, expiringBefore time.Time, limit int) ([]*inventory.Lot, error)
	// ExpireLots moves every non-terminal lot whose expiry date has passed
	// into the expired status and returns how many were expired.
	ExpireLots(ctx context.Context, asOf time.Time) (int, error)
	// ReleaseLotsWithoutOpenOffers returns offered lots whose offers have
	// all been decided or expired to the available pool, so the matchers
	// can pick them up again.
	ReleaseLotsWithoutOpenOffers(ctx context.Context) (int, error)
	// ReleaseStuckLots returns lots claimed for matching before the cutoff
	// to the available pool. Covers instances that crashed mid-match.
	ReleaseStuckLots(ctx context.Context, claimedBefore time.Time) (int, error)

	// Buyer operations
	CreateBuyer(ctx context.Context, b *buyer.Buyer) (string, error)
	GetBuyer(ctx context.Context, buyerID string) (*buyer.Buyer, error)
	ListBuyers(ctx context.Context, params *ListBuyersParams) ([]*buyer.Buyer, int, error)
	GetActiveBuyers(ctx context.Context) ([]*buyer.Buyer, error)

	// Offer operations
	CreateOffers(ctx context.Context, offers []*Offer) error
	GetOffer(ctx context.Context, offerID string) (*Offer, error)
	ListOffers(ctx context.Context, params *ListOffersParams) ([]*Offer, int, error)
	// UpdateOfferState transitions an offer's state. RequiredState works
	// like UpdateLotStatusParams.RequiredStatus.
	UpdateOfferState(ctx context.Context, offerID string, params *UpdateOfferStateParams) error
	CountOpenOffers(ctx context.Context, lotID string) (int, error)
	// ExpireStaleOffers expires open offers whose deadline has passed.
	ExpireStaleOffers(ctx context.Context, asOf time.Time) (int, error)

	// Import operations
	RecordImport(ctx context.Context, imp *Import) (string, error)
	GetImport(ctx context.Context, importID string) (*Import, error)
	ListImports(ctx context.Context, limit, offset int) ([]*Import, int, error)

	// Voice session operations
	CreateVoiceSession(ctx context.Context, buyerID string, lotID *string, metadata map[string]any) (string, error)
	GetVoiceSession(ctx context.Context, sessionID string) (*VoiceSession, error)
	SaveVoiceMessage(ctx context.Context, msg *VoiceMessage) error
	GetVoiceMessages(ctx context.Context, sessionID string) ([]*VoiceMessage, error)

	// Instance operations
	RegisterInstance(ctx context.Context, params *RegisterInstanceParams) error
	UpdateInstanceHeartbeat(ctx context.Context, instanceID string) error
	DeregisterInstance(ctx context.Context, instanceID string) error
	GetStaleInstances(ctx context.Context, olderThan time.Time) ([]string, error)
	CountActiveInstances(ctx context.Context, since time.Time) (int, error)

	// Leadership operations
	LeaderAttemptElect(ctx context.Context, params *LeaderElectParams) (bool, error)
	LeaderAttemptReelect(ctx context.Context, params *LeaderElectParams) (bool, error)
	LeaderResign(ctx context.Context, leaderID string) error
	LeaderGetCurrent(ctx context.Context) (*Leader, error)
	LeaderDeleteExpired(ctx context.Context) (int, error)

	// Dashboard aggregates
	CountLotsByStatus(ctx context.Context) (map[string]int, error)
	CountOffersByState(ctx context.Context) (map[string]int, error)
	GetImportStats(ctx context.Context, since time.Time) (*ImportStats, error)
}

// ListLotsParams filters and paginates lot listings.
type ListLotsParams struct {
	Status      inventory.Status
	Category    string
	WarehouseID string
	// ExpiringBefore / ExpiringAfter bound the expiry date. The service
	// layer uses them to translate urgency bands into date windows.
	ExpiringBefore *time.Time
	ExpiringAfter  *time.Time
	Limit          int
	Offset         int
	OrderBy        string
	OrderDir       string
}

// UpdateLotStatusParams describes a lot status transition.
type UpdateLotStatusParams struct {
	Status inventory.Status
	// RequiredStatus, when non-empty, makes the transition conditional.
	RequiredStatus inventory.Status
}

// ListBuyersParams filters and paginates buyer listings.
type ListBuyersParams struct {
	Category   string
	ActiveOnly bool
	Limit      int
	Offset     int
	OrderBy    string
	OrderDir   string
}

// Offer is one buyer shortlisted for one lot.
type Offer struct {
	ID                string           `json:"id"`
	LotID             string           `json:"lot_id"`
	BuyerID           string           `json:"buyer_id"`
	State             offerstate.State `json:"state"`
	Score             float64          `json:"score"`
	DiscountPct       int              `json:"discount_pct"`
	OfferedQuantity   decimal.Decimal  `json:"offered_quantity"`
	PaymentTerms      string           `json:"payment_terms"`
	DecisionReason    *string          `json:"decision_reason,omitempty"`
	CreatedByInstance string           `json:"created_by_instance,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
	OfferedAt         *time.Time       `json:"offered_at,omitempty"`
	DecidedAt         *time.Time       `json:"decided_at,omitempty"`
	ExpiresAt         time.Time        `json:"expires_at"`
}

// ListOffersParams filters and paginates offer listings.
type ListOffersParams struct {
	LotID    string
	BuyerID  string
	State    offerstate.State
	Limit    int
	Offset   int
	OrderBy  string
	OrderDir string
}

// UpdateOfferStateParams describes an offer state transition.
type UpdateOfferStateParams struct {
	State          offerstate.State
	RequiredState  offerstate.State
	DecisionReason *string
	// MarkOffered stamps offered_at on the transition.
	MarkOffered bool
	// MarkDecided stamps decided_at on the transition.
	MarkDecided bool
}

// Import records one CSV upload and its row-level outcome.
type Import struct {
	ID           string            `json:"id"`
	Filename     string            `json:"filename"`
	RowsTotal    int               `json:"rows_total"`
	RowsAccepted int               `json:"rows_accepted"`
	RowsRejected int               `json:"rows_rejected"`
	Errors       []ingest.RowError `json:"errors,omitempty"`
	InstanceID   string            `json:"instance_id,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
}

// ImportStats aggregates upload activity for the dashboard.
type ImportStats struct {
	Uploads      int `json:"uploads"`
	RowsAccepted int `json:"rows_accepted"`
	RowsRejected int `json:"rows_rejected"`
}

// VoiceSession is one voice-agent conversation with a buyer, optionally
// anchored to a specific lot.
type VoiceSession struct {
	ID        string         `json:"id"`
	BuyerID   string         `json:"buyer_id"`
	LotID     *string        `json:"lot_id,omitempty"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// VoiceMessage is a single turn in a voice session.
type VoiceMessage struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// RegisterInstanceParams describes a backend instance joining the cluster.
type RegisterInstanceParams struct {
	ID       string
	Hostname string
	PID      int
	Version  string
	Metadata map[string]any
}

// LeaderElectParams describes a leadership election or renewal attempt.
type LeaderElectParams struct {
	LeaderID string
	TTL      time.Duration
}

// Leader is the current holder of the cluster leadership lease.
type Leader struct {
	Name      string    `json:"name"`
	LeaderID  string    `json:"leader_id"`
	ElectedAt time.Time `json:"elected_at"`
	ExpiresAt time.Time `json:"expires_at"`
}
