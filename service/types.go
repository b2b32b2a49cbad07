package service

import (
	"time"

	"github.com/greenchain/greenchain/buyer"
	"github.com/greenchain/greenchain/ingest"
	"github.com/greenchain/greenchain/inventory"
	"github.com/greenchain/greenchain/match"
	"github.com/greenchain/greenchain/storage"
)

// Validation constants for query parameters
const (
	// MaxPageLimit is the maximum allowed page size to prevent resource exhaustion
	MaxPageLimit = 1000
	// MinPageLimit is the minimum allowed page size
	MinPageLimit = 1
)

// AllowedLotOrderBy is the whitelist of valid OrderBy values for lots
var AllowedLotOrderBy = map[string]bool{
	"":            true, // empty means default ordering
	"expiry_date": true,
	"created_at":  true,
	"quantity":    true,
}

// AllowedOfferOrderBy is the whitelist of valid OrderBy values for offers
var AllowedOfferOrderBy = map[string]bool{
	"":           true, // empty means default ordering
	"created_at": true,
	"score":      true,
	"expires_at": true,
}

// AllowedBuyerOrderBy is the whitelist of valid OrderBy values for buyers
var AllowedBuyerOrderBy = map[string]bool{
	"":           true, // empty means default ordering
	"name":       true,
	"created_at": true,
}

// AllowedOrderDir is the whitelist of valid OrderDir values
var AllowedOrderDir = map[string]bool{
	"":     true, // empty means default direction
	"asc":  true,
	"desc": true,
}

// ValidateOrderBy validates an OrderBy value against the allowed whitelist.
// Returns the validated value or an empty string if invalid.
func ValidateOrderBy(value string, allowed map[string]bool) string {
	if allowed[value] {
		return value
	}
	return ""
}

// ValidateOrderDir validates an OrderDir value.
// Returns the validated value or an empty string if invalid.
func ValidateOrderDir(value string) string {
	if AllowedOrderDir[value] {
		return value
	}
	return ""
}

// ValidateLimit ensures limit is within acceptable bounds.
func ValidateLimit(limit int) int {
	if limit < MinPageLimit {
		return MinPageLimit
	}
	if limit > MaxPageLimit {
		return MaxPageLimit
	}
	return limit
}

// ValidateOffset ensures offset is non-negative.
func ValidateOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}

// LotListParams contains parameters for listing lots.
type LotListParams struct {
	Status      string
	Category    string
	Band        string
	WarehouseID string
	Limit       int
	Offset      int
	OrderBy     string // "expiry_date", "created_at", "quantity"
	OrderDir    string // "asc", "desc"
}

// LotView is a lot together with its current urgency assessment.
type LotView struct {
	*inventory.Lot
	Urgency inventory.Urgency `json:"urgency"`
}

// LotList contains a paginated list of lots.
type LotList struct {
	Lots       []*LotView `json:"lots"`
	TotalCount int        `json:"total_count"`
	HasMore    bool       `json:"has_more"`
}

// BuyerListParams contains parameters for listing buyers.
type BuyerListParams struct {
	Category   string
	ActiveOnly bool
	Limit      int
	Offset     int
	OrderBy    string // "name", "created_at"
	OrderDir   string // "asc", "desc"
}

// BuyerList contains a paginated list of buyers.
type BuyerList struct {
	Buyers     []*buyer.Buyer `json:"buyers"`
	TotalCount int            `json:"total_count"`
	HasMore    bool           `json:"has_more"`
}

// OfferListParams contains parameters for listing offers.
type OfferListParams struct {
	LotID    string
	BuyerID  string
	State    string
	Limit    int
	Offset   int
	OrderBy  string // "created_at", "score", "expires_at"
	OrderDir string // "asc", "desc"
}

// OfferList contains a paginated list of offers.
type OfferList struct {
	Offers     []*storage.Offer `json:"offers"`
	TotalCount int              `json:"total_count"`
	HasMore    bool             `json:"has_more"`
}

// ImportList contains a paginated list of import reports.
type ImportList struct {
	Imports    []*storage.Import `json:"imports"`
	TotalCount int               `json:"total_count"`
	HasMore    bool              `json:"has_more"`
}

// ImportResult is the outcome of one CSV upload.
type ImportResult struct {
	ImportID string         `json:"import_id"`
	Report   *ingest.Report `json:"report"`
	LotIDs   []string       `json:"lot_ids"`
}

// MatchResult is the outcome of a synchronous match round for one lot.
type MatchResult struct {
	LotID     string            `json:"lot_id"`
	Shortlist []match.Candidate `json:"shortlist"`
	Offers    []*storage.Offer  `json:"offers"`
}

// DashboardStats contains aggregated statistics for the dashboard.
type DashboardStats struct {
	// Lot counts
	LotsByStatus map[string]int `json:"lots_by_status"`
	LotsByBand   map[string]int `json:"lots_by_band"`

	// Offer counts
	OffersByState  map[string]int `json:"offers_by_state"`
	AcceptanceRate float64        `json:"acceptance_rate"`

	// Import activity over the trailing 24 hours
	Uploads24h      int `json:"uploads_24h"`
	RowsAccepted24h int `json:"rows_accepted_24h"`
	RowsRejected24h int `json:"rows_rejected_24h"`

	// Cluster
	ActiveInstances  int    `json:"active_instances"`
	LeaderInstanceID string `json:"leader_instance_id,omitempty"`

	GeneratedAt time.Time `json:"generated_at"`
}
