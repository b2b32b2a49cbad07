package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/greenchain/greenchain/buyer"
)

const buyerColumns = `id, name, contact, categories, max_delivery_days,
       min_quantity, max_quantity, active, created_at, updated_at`

// CreateBuyer inserts a buyer and returns its ID.
func (s *PostgresStore) CreateBuyer(ctx context.Context, b *buyer.Buyer) (string, error) {
	if err := b.Validate(); err != nil {
		return "", err
	}

	buyerID := b.ID
	if buyerID == "" {
		buyerID = uuid.New().String()
	}

	categories := make([]string, len(b.Categories))
	for i, c := range b.Categories {
		categories[i] = strings.ToLower(strings.TrimSpace(c))
	}

	query := `
		INSERT INTO greenchain_buyers (id, name, contact, categories, max_delivery_days,
		                               min_quantity, max_quantity, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
	`

	_, err := s.getQuerier(ctx).Exec(ctx, query,
		buyerID,
		b.Name,
		b.Contact,
		categories,
		b.MaxDeliveryDays,
		b.MinQuantity,
		b.MaxQuantity,
		b.Active,
	)
	if err != nil {
		return "", fmt.Errorf("failed to create buyer: %w", err)
	}

	return buyerID, nil
}

// GetBuyer retrieves a buyer by ID
func (s *PostgresStore) GetBuyer(ctx context.Context, buyerID string) (*buyer.Buyer, error) {
	query := `SELECT ` + buyerColumns + ` FROM greenchain_buyers WHERE id = $1`

	b, err := scanBuyer(s.getQuerier(ctx).QueryRow(ctx, query, buyerID))
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("buyer %s: %w", buyerID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get buyer: %w", err)
	}

	return b, nil
}

// ListBuyers retrieves buyers matching the filter, plus the total match count.
func (s *PostgresStore) ListBuyers(ctx context.Context, params *ListBuyersParams) ([]*buyer.Buyer, int, error) {
	var conds []string
	var args []any

	if params.ActiveOnly {
		conds = append(conds, "active")
	}
	if params.Category != "" {
		// An empty categories array means the buyer takes anything.
		args = append(args, strings.ToLower(params.Category))
		conds = append(conds, fmt.Sprintf("(categories = '{}' OR $%d = ANY(categories))", len(args)))
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM greenchain_buyers` + where
	if err := s.getQuerier(ctx).QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count buyers: %w", err)
	}

	orderBy := params.OrderBy
	if orderBy == "" {
		orderBy = "name"
	}
	orderDir := params.OrderDir
	if orderDir == "" {
		orderDir = "ASC"
	}

	query := fmt.Sprintf(`SELECT %s FROM greenchain_buyers%s ORDER BY %s %s LIMIT $%d OFFSET $%d`,
		buyerColumns, where, orderBy, orderDir, len(args)+1, len(args)+2)
	args = append(args, params.Limit, params.Offset)

	rows, err := s.getQuerier(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query buyers: %w", err)
	}
	defer rows.Close()

	buyers, err := scanBuyers(rows)
	if err != nil {
		return nil, 0, err
	}

	return buyers, total, nil
}

// GetActiveBuyers returns every active buyer, for match runs.
func (s *PostgresStore) GetActiveBuyers(ctx context.Context) ([]*buyer.Buyer, error) {
	query := `SELECT ` + buyerColumns + ` FROM greenchain_buyers WHERE active ORDER BY name`

	rows, err := s.getQuerier(ctx).Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query active buyers: %w", err)
	}
	defer rows.Close()

	return scanBuyers(rows)
}

func scanBuyer(row pgx.Row) (*buyer.Buyer, error) {
	var b buyer.Buyer
	err := row.Scan(
		&b.ID,
		&b.Name,
		&b.Contact,
		&b.Categories,
		&b.MaxDeliveryDays,
		&b.MinQuantity,
		&b.MaxQuantity,
		&b.Active,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func scanBuyers(rows pgx.Rows) ([]*buyer.Buyer, error) {
	var buyers []*buyer.Buyer
	for rows.Next() {
		b, err := scanBuyer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan buyer: %w", err)
		}
		buyers = append(buyers, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating buyers: %w", err)
	}

	return buyers, nil
}
