package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/greenchain/greenchain/buyer"
	"github.com/greenchain/greenchain/storage"
)

// CreateBuyer registers a buyer and returns its ID.
func (s *Service) CreateBuyer(ctx context.Context, b *buyer.Buyer) (string, error) {
	if err := b.Validate(); err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidInput, err)
	}

	id, err := s.store.CreateBuyer(ctx, b)
	if err != nil {
		return "", fmt.Errorf("failed to create buyer: %w", err)
	}
	return id, nil
}

// ListBuyers returns buyers matching the filters.
func (s *Service) ListBuyers(ctx context.Context, params BuyerListParams) (*BuyerList, error) {
	storeParams := &storage.ListBuyersParams{
		Category:   params.Category,
		ActiveOnly: params.ActiveOnly,
		Limit:      ValidateLimit(params.Limit),
		Offset:     ValidateOffset(params.Offset),
		OrderBy:    ValidateOrderBy(params.OrderBy, AllowedBuyerOrderBy),
		OrderDir:   ValidateOrderDir(params.OrderDir),
	}

	buyers, total, err := s.store.ListBuyers(ctx, storeParams)
	if err != nil {
		return nil, fmt.Errorf("failed to list buyers: %w", err)
	}

	return &BuyerList{
		Buyers:     buyers,
		TotalCount: total,
		HasMore:    storeParams.Offset+len(buyers) < total,
	}, nil
}

// GetBuyer returns one buyer.
func (s *Service) GetBuyer(ctx context.Context, buyerID string) (*buyer.Buyer, error) {
	b, err := s.store.GetBuyer(ctx, buyerID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get buyer: %w", err)
	}
	return b, nil
}
