package service

import (
	"context"
	"fmt"
	"time"

	"github.com/greenchain/greenchain/inventory"
	"github.com/greenchain/greenchain/offerstate"
	"github.com/greenchain/greenchain/storage"
)

// GetDashboardStats aggregates the numbers the operations dashboard shows.
func (s *Service) GetDashboardStats(ctx context.Context) (*DashboardStats, error) {
	now := time.Now()
	stats := &DashboardStats{GeneratedAt: now}

	lotsByStatus, err := s.store.CountLotsByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count lots: %w", err)
	}
	stats.LotsByStatus = lotsByStatus

	lotsByBand, err := s.countLotsByBand(ctx, now)
	if err != nil {
		return nil, err
	}
	stats.LotsByBand = lotsByBand

	offersByState, err := s.store.CountOffersByState(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count offers: %w", err)
	}
	stats.OffersByState = offersByState
	stats.AcceptanceRate = acceptanceRate(offersByState)

	importStats, err := s.store.GetImportStats(ctx, now.Add(-24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("failed to get import stats: %w", err)
	}
	stats.Uploads24h = importStats.Uploads
	stats.RowsAccepted24h = importStats.RowsAccepted
	stats.RowsRejected24h = importStats.RowsRejected

	active, err := s.store.CountActiveInstances(ctx, now.Add(-2*time.Minute))
	if err != nil {
		return nil, fmt.Errorf("failed to count instances: %w", err)
	}
	stats.ActiveInstances = active

	leader, err := s.store.LeaderGetCurrent(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get leader: %w", err)
	}
	if leader != nil {
		stats.LeaderInstanceID = leader.LeaderID
	}

	return stats, nil
}

// countLotsByBand buckets non-terminal lots into urgency bands via the
// expiry-date windows the bands cover today.
func (s *Service) countLotsByBand(ctx context.Context, now time.Time) (map[string]int, error) {
	bands := []inventory.Band{
		inventory.BandCritical,
		inventory.BandHigh,
		inventory.BandElevated,
		inventory.BandLow,
	}

	counts := make(map[string]int, len(bands))
	for _, band := range bands {
		after, before := inventory.BandWindow(band, now)
		_, total, err := s.store.ListLots(ctx, &storage.ListLotsParams{
			Status:         inventory.StatusAvailable,
			ExpiringAfter:  after,
			ExpiringBefore: before,
			Limit:          1,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to count %s lots: %w", band, err)
		}
		counts[string(band)] = total
	}

	return counts, nil
}

// acceptanceRate is accepted / decided offers.
func acceptanceRate(offersByState map[string]int) float64 {
	accepted := offersByState[string(offerstate.StateAccepted)]
	declined := offersByState[string(offerstate.StateDeclined)]
	expired := offersByState[string(offerstate.StateExpired)]

	decided := accepted + declined + expired
	if decided == 0 {
		return 0
	}
	return float64(accepted) / float64(decided)
}
