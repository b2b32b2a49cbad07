package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/greenchain/greenchain/inventory"
	"github.com/greenchain/greenchain/offerstate"
)

// txContextKey is the context key for storing pgx.Tx
type txContextKey struct{}

// WithTx returns a new context with the given transaction
func WithTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, txContextKey{}, tx)
}

// TxFromContext retrieves the transaction from context, or nil if not present
func TxFromContext(ctx context.Context) pgx.Tx {
	if tx, ok := ctx.Value(txContextKey{}).(pgx.Tx); ok {
		return tx
	}
	return nil
}

// querier is a common interface for pgxpool.Pool and pgx.Tx
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// PostgresStore implements Store using PostgreSQL with pgx
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// getQuerier returns the transaction from context if present, otherwise the pool
func (s *PostgresStore) getQuerier(ctx context.Context) querier {
	if tx := TxFromContext(ctx); tx != nil {
		return tx
	}
	return s.pool
}

const lotColumns = `id, sku, description, category, quantity, unit, unit_price,
       batch_code, warehouse_id, expiry_date, received_at, status,
       created_at, updated_at`

// CreateLots inserts a batch of lots. IDs are assigned for lots that don't
// have one.
func (s *PostgresStore) CreateLots(ctx context.Context, lots []*inventory.Lot) error {
	if len(lots) == 0 {
		return nil
	}

	batch := &pgx.Batch{}

	query := `
		INSERT INTO greenchain_lots (id, sku, description, category, quantity, unit,
		                             unit_price, batch_code, warehouse_id, expiry_date,
		                             received_at, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())
	`

	for _, lot := range lots {
		if lot.ID == "" {
			lot.ID = uuid.New().String()
		}

		batch.Queue(query,
			lot.ID,
			lot.SKU,
			lot.Description,
			lot.Category,
			lot.Quantity,
			lot.Unit,
			lot.UnitPrice,
			lot.BatchCode,
			lot.WarehouseID,
			lot.ExpiryDate,
			lot.ReceivedAt,
			lot.Status,
		)
	}

	results := s.getQuerier(ctx).SendBatch(ctx, batch)
	defer results.Close()

	for range lots {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to insert lot: %w", err)
		}
	}

	return nil
}

// GetLot retrieves a lot by ID
func (s *PostgresStore) GetLot(ctx context.Context, lotID string) (*inventory.Lot, error) {
	query := `SELECT ` + lotColumns + ` FROM greenchain_lots WHERE id = $1`

	lot, err := scanLot(s.getQuerier(ctx).QueryRow(ctx, query, lotID))
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("lot %s: %w", lotID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get lot: %w", err)
	}

	return lot, nil
}

// ListLots retrieves lots matching the filter, plus the total match count.
func (s *PostgresStore) ListLots(ctx context.Context, params *ListLotsParams) ([]*inventory.Lot, int, error) {
	var conds []string
	var args []any

	addCond := func(cond string, value any) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if params.Status != "" {
		addCond("status = $%d", params.Status)
	}
	if params.Category != "" {
		addCond("category = $%d", strings.ToLower(params.Category))
	}
	if params.WarehouseID != "" {
		addCond("warehouse_id = $%d", params.WarehouseID)
	}
	if params.ExpiringBefore != nil {
		addCond("expiry_date <= $%d", *params.ExpiringBefore)
	}
	if params.ExpiringAfter != nil {
		addCond("expiry_date > $%d", *params.ExpiringAfter)
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM greenchain_lots` + where
	if err := s.getQuerier(ctx).QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count lots: %w", err)
	}

	orderBy := params.OrderBy
	if orderBy == "" {
		orderBy = "expiry_date"
	}
	orderDir := params.OrderDir
	if orderDir == "" {
		orderDir = "ASC"
	}

	query := fmt.Sprintf(`SELECT %s FROM greenchain_lots%s ORDER BY %s %s LIMIT $%d OFFSET $%d`,
		lotColumns, where, orderBy, orderDir, len(args)+1, len(args)+2)
	args = append(args, params.Limit, params.Offset)

	rows, err := s.getQuerier(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query lots: %w", err)
	}
	defer rows.Close()

	lots, err := scanLots(rows)
	if err != nil {
		return nil, 0, err
	}

	return lots, total, nil
}

// UpdateLotStatus transitions a lot's status, optionally requiring a current
// status for the update to apply.
func (s *PostgresStore) UpdateLotStatus(ctx context.Context, lotID string, params *UpdateLotStatusParams) error {
	var tag pgconn.CommandTag
	var err error

	if params.RequiredStatus != "" {
		query := `
			UPDATE greenchain_lots
			SET status = $2, updated_at = NOW()
			WHERE id = $1 AND status = $3
		`
		tag, err = s.getQuerier(ctx).Exec(ctx, query, lotID, params.Status, params.RequiredStatus)
	} else {
		query := `
			UPDATE greenchain_lots
			SET status = $2, updated_at = NOW()
			WHERE id = $1
		`
		tag, err = s.getQuerier(ctx).Exec(ctx, query, lotID, params.Status)
	}

	if err != nil {
		return fmt.Errorf("failed to update lot status: %w", err)
	}

	if tag.RowsAffected() == 0 {
		if params.RequiredStatus != "" {
			return fmt.Errorf("lot %s: %w", lotID, ErrStateTransitionFailed)
		}
		return fmt.Errorf("lot %s: %w", lotID, ErrNotFound)
	}

	return nil
}

// GetLotsNeedingMatch returns available lots expiring on or before the cutoff
// that have no open offers, most urgent first.
func (s *PostgresStore) GetLotsNeedingMatch(ctx context.Context, expiringBefore time.Time, limit int) ([]*inventory.Lot, error) {
	query := `
		SELECT ` + lotColumns + `
		FROM greenchain_lots l
		WHERE l.status = $1
		  AND l.expiry_date <= $2
		  AND NOT EXISTS (
		      SELECT 1 FROM greenchain_offers o
		      WHERE o.lot_id = l.id AND o.state IN ($3, $4)
		  )
		ORDER BY l.expiry_date ASC
		LIMIT $5
	`

	rows, err := s.getQuerier(ctx).Query(ctx, query,
		inventory.StatusAvailable,
		expiringBefore,
		offerstate.StatePending,
		offerstate.StateOffered,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query lots needing match: %w", err)
	}
	defer rows.Close()

	return scanLots(rows)
}

// ExpireLots moves non-terminal lots past their expiry date into the expired
// status and returns how many were expired.
func (s *PostgresStore) ExpireLots(ctx context.Context, asOf time.Time) (int, error) {
	query := `
		UPDATE greenchain_lots
		SET status = $1, updated_at = NOW()
		WHERE expiry_date < $2 AND status NOT IN ($3, $4)
	`

	tag, err := s.getQuerier(ctx).Exec(ctx, query,
		inventory.StatusExpired,
		asOf,
		inventory.StatusCleared,
		inventory.StatusExpired,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to expire lots: %w", err)
	}

	return int(tag.RowsAffected()), nil
}

// ReleaseLotsWithoutOpenOffers moves offered lots with no open offers left
// back to available and returns how many were released.
func (s *PostgresStore) ReleaseLotsWithoutOpenOffers(ctx context.Context) (int, error) {
	query := `
		UPDATE greenchain_lots l
		SET status = $1, updated_at = NOW()
		WHERE l.status = $2
		  AND NOT EXISTS (
		      SELECT 1 FROM greenchain_offers o
		      WHERE o.lot_id = l.id AND o.state IN ($3, $4)
		  )
	`

	tag, err := s.getQuerier(ctx).Exec(ctx, query,
		inventory.StatusAvailable,
		inventory.StatusOffered,
		offerstate.StatePending,
		offerstate.StateOffered,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to release lots without open offers: %w", err)
	}

	return int(tag.RowsAffected()), nil
}

// ReleaseStuckLots moves lots claimed for matching before the cutoff back to
// available and returns how many were released. The updated_at stamp set by
// the claim transition marks when the claim happened.
func (s *PostgresStore) ReleaseStuckLots(ctx context.Context, claimedBefore time.Time) (int, error) {
	query := `
		UPDATE greenchain_lots
		SET status = $1, updated_at = NOW()
		WHERE status = $2 AND updated_at < $3
	`

	tag, err := s.getQuerier(ctx).Exec(ctx, query,
		inventory.StatusAvailable,
		inventory.StatusMatching,
		claimedBefore,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to release stuck lots: %w", err)
	}

	return int(tag.RowsAffected()), nil
}

// CountLotsByStatus returns lot counts grouped by status.
func (s *PostgresStore) CountLotsByStatus(ctx context.Context) (map[string]int, error) {
	query := `SELECT status, COUNT(*) FROM greenchain_lots GROUP BY status`

	rows, err := s.getQuerier(ctx).Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to count lots: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan lot count: %w", err)
		}
		counts[status] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating lot counts: %w", err)
	}

	return counts, nil
}

func scanLot(row pgx.Row) (*inventory.Lot, error) {
	var lot inventory.Lot
	err := row.Scan(
		&lot.ID,
		&lot.SKU,
		&lot.Description,
		&lot.Category,
		&lot.Quantity,
		&lot.Unit,
		&lot.UnitPrice,
		&lot.BatchCode,
		&lot.WarehouseID,
		&lot.ExpiryDate,
		&lot.ReceivedAt,
		&lot.Status,
		&lot.CreatedAt,
		&lot.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &lot, nil
}

func scanLots(rows pgx.Rows) ([]*inventory.Lot, error) {
	var lots []*inventory.Lot
	for rows.Next() {
		lot, err := scanLot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan lot: %w", err)
		}
		lots = append(lots, lot)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating lots: %w", err)
	}

	return lots, nil
}
