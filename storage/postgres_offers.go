package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/greenchain/greenchain/offerstate"
)

const offerColumns = `id, lot_id, buyer_id, state, score, discount_pct,
       offered_quantity, payment_terms, decision_reason, created_by_instance,
       created_at, offered_at, decided_at, expires_at`

// CreateOffers inserts a batch of offers. IDs are assigned for offers that
// don't have one.
func (s *PostgresStore) CreateOffers(ctx context.Context, offers []*Offer) error {
	if len(offers) == 0 {
		return nil
	}

	batch := &pgx.Batch{}

	query := `
		INSERT INTO greenchain_offers (id, lot_id, buyer_id, state, score, discount_pct,
		                               offered_quantity, payment_terms, created_by_instance,
		                               created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), $10)
	`

	for _, offer := range offers {
		if offer.ID == "" {
			offer.ID = uuid.New().String()
		}
		if offer.State == "" {
			offer.State = offerstate.StatePending
		}

		batch.Queue(query,
			offer.ID,
			offer.LotID,
			offer.BuyerID,
			offer.State,
			offer.Score,
			offer.DiscountPct,
			offer.OfferedQuantity,
			offer.PaymentTerms,
			offer.CreatedByInstance,
			offer.ExpiresAt,
		)
	}

	results := s.getQuerier(ctx).SendBatch(ctx, batch)
	defer results.Close()

	for range offers {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to insert offer: %w", err)
		}
	}

	return nil
}

// GetOffer retrieves an offer by ID
func (s *PostgresStore) GetOffer(ctx context.Context, offerID string) (*Offer, error) {
	query := `SELECT ` + offerColumns + ` FROM greenchain_offers WHERE id = $1`

	offer, err := scanOffer(s.getQuerier(ctx).QueryRow(ctx, query, offerID))
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("offer %s: %w", offerID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get offer: %w", err)
	}

	return offer, nil
}

// ListOffers retrieves offers matching the filter, plus the total match count.
func (s *PostgresStore) ListOffers(ctx context.Context, params *ListOffersParams) ([]*Offer, int, error) {
	var conds []string
	var args []any

	addCond := func(cond string, value any) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if params.LotID != "" {
		addCond("lot_id = $%d", params.LotID)
	}
	if params.BuyerID != "" {
		addCond("buyer_id = $%d", params.BuyerID)
	}
	if params.State != "" {
		addCond("state = $%d", params.State)
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM greenchain_offers` + where
	if err := s.getQuerier(ctx).QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count offers: %w", err)
	}

	orderBy := params.OrderBy
	if orderBy == "" {
		orderBy = "created_at"
	}
	orderDir := params.OrderDir
	if orderDir == "" {
		orderDir = "DESC"
	}

	query := fmt.Sprintf(`SELECT %s FROM greenchain_offers%s ORDER BY %s %s LIMIT $%d OFFSET $%d`,
		offerColumns, where, orderBy, orderDir, len(args)+1, len(args)+2)
	args = append(args, params.Limit, params.Offset)

	rows, err := s.getQuerier(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query offers: %w", err)
	}
	defer rows.Close()

	offers, err := scanOffers(rows)
	if err != nil {
		return nil, 0, err
	}

	return offers, total, nil
}

// UpdateOfferState transitions an offer's state, optionally requiring a
// current state for the update to apply.
func (s *PostgresStore) UpdateOfferState(ctx context.Context, offerID string, params *UpdateOfferStateParams) error {
	sets := []string{"state = $2"}
	args := []any{offerID, params.State}

	if params.DecisionReason != nil {
		args = append(args, *params.DecisionReason)
		sets = append(sets, fmt.Sprintf("decision_reason = $%d", len(args)))
	}
	if params.MarkOffered {
		sets = append(sets, "offered_at = NOW()")
	}
	if params.MarkDecided {
		sets = append(sets, "decided_at = NOW()")
	}

	query := fmt.Sprintf(`UPDATE greenchain_offers SET %s WHERE id = $1`, strings.Join(sets, ", "))
	if params.RequiredState != "" {
		args = append(args, params.RequiredState)
		query += fmt.Sprintf(" AND state = $%d", len(args))
	}

	tag, err := s.getQuerier(ctx).Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update offer state: %w", err)
	}

	if tag.RowsAffected() == 0 {
		if params.RequiredState != "" {
			return fmt.Errorf("offer %s: %w", offerID, ErrStateTransitionFailed)
		}
		return fmt.Errorf("offer %s: %w", offerID, ErrNotFound)
	}

	return nil
}

// CountOpenOffers counts pending and offered offers for a lot.
func (s *PostgresStore) CountOpenOffers(ctx context.Context, lotID string) (int, error) {
	query := `SELECT COUNT(*) FROM greenchain_offers WHERE lot_id = $1 AND state IN ($2, $3)`

	var count int
	err := s.getQuerier(ctx).QueryRow(ctx, query, lotID,
		offerstate.StatePending, offerstate.StateOffered).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count open offers: %w", err)
	}

	return count, nil
}

// ExpireStaleOffers expires open offers whose deadline has passed and
// returns how many were expired.
func (s *PostgresStore) ExpireStaleOffers(ctx context.Context, asOf time.Time) (int, error) {
	query := `
		UPDATE greenchain_offers
		SET state = $1, decided_at = NOW()
		WHERE expires_at < $2 AND state IN ($3, $4)
	`

	tag, err := s.getQuerier(ctx).Exec(ctx, query,
		offerstate.StateExpired,
		asOf,
		offerstate.StatePending,
		offerstate.StateOffered,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to expire offers: %w", err)
	}

	return int(tag.RowsAffected()), nil
}

// CountOffersByState returns offer counts grouped by state.
func (s *PostgresStore) CountOffersByState(ctx context.Context) (map[string]int, error) {
	query := `SELECT state, COUNT(*) FROM greenchain_offers GROUP BY state`

	rows, err := s.getQuerier(ctx).Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to count offers: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var state string
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return nil, fmt.Errorf("failed to scan offer count: %w", err)
		}
		counts[state] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating offer counts: %w", err)
	}

	return counts, nil
}

func scanOffer(row pgx.Row) (*Offer, error) {
	var offer Offer
	err := row.Scan(
		&offer.ID,
		&offer.LotID,
		&offer.BuyerID,
		&offer.State,
		&offer.Score,
		&offer.DiscountPct,
		&offer.OfferedQuantity,
		&offer.PaymentTerms,
		&offer.DecisionReason,
		&offer.CreatedByInstance,
		&offer.CreatedAt,
		&offer.OfferedAt,
		&offer.DecidedAt,
		&offer.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}
	return &offer, nil
}

func scanOffers(rows pgx.Rows) ([]*Offer, error) {
	var offers []*Offer
	for rows.Next() {
		offer, err := scanOffer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan offer: %w", err)
		}
		offers = append(offers, offer)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating offers: %w", err)
	}

	return offers, nil
}
