// Package match scores buyers against lots and produces ranked shortlists.
//
// Scoring model:
//   - category affinity: 0.4 for an explicit category match, 0.2 for a
//     buyer with no category restriction. Buyers whose categories exclude
//     the lot are not candidates at all.
//   - delivery feasibility: a hard gate. A buyer whose delivery window is
//     longer than the lot's remaining shelf life cannot receive usable
//     stock and is excluded.
//   - quantity fit: up to 0.3 for how much of the lot fits the buyer's
//     purchase window.
//   - urgency: up to 0.3 from the lot's urgency score. The same value for
//     every buyer of a given lot, so it never reorders candidates, but it
//     keeps shortlist scores comparable across lots on the dashboard.
package match

import (
	"sort"
	"time"

	"github.com/greenchain/greenchain/buyer"
	"github.com/greenchain/greenchain/inventory"
)

// Scoring weights.
const (
	weightCategoryMatch    = 0.4
	weightCategoryWildcard = 0.2
	weightQuantityFit      = 0.3
	weightUrgency          = 0.3
)

// DefaultShortlistSize is how many candidates an offer round targets.
const DefaultShortlistSize = 5

// Candidate is one buyer scored for a lot.
type Candidate struct {
	Buyer       *buyer.Buyer `json:"buyer"`
	Score       float64      `json:"score"`
	QuantityFit float64      `json:"quantity_fit"`
	DiscountPct int          `json:"discount_pct"`
}

// Engine ranks buyers for lots.
type Engine struct {
	// ShortlistSize bounds how many candidates Shortlist returns.
	// Defaults to DefaultShortlistSize.
	ShortlistSize int

	// Now is the reference time for shelf-life checks. Defaults to time.Now.
	Now func() time.Time
}

// NewEngine creates an engine with default settings.
func NewEngine() *Engine {
	return &Engine{
		ShortlistSize: DefaultShortlistSize,
		Now:           time.Now,
	}
}

// Score evaluates every buyer against the lot and returns all candidates,
// sorted by score descending with buyer name as the tiebreaker. Inactive
// and infeasible buyers are excluded.
func (e *Engine) Score(lot *inventory.Lot, buyers []*buyer.Buyer) []Candidate {
	now := time.Now()
	if e.Now != nil {
		now = e.Now()
	}

	shelfLife := lot.ShelfLifeDays(now)
	if shelfLife < 0 {
		return nil // expired lots are not matchable
	}
	urgency := lot.Urgency(now)

	var candidates []Candidate
	for _, b := range buyers {
		if !b.Active {
			continue
		}

		// Delivery gate: stock must survive the buyer's delivery window.
		if b.MaxDeliveryDays > shelfLife {
			continue
		}

		var categoryScore float64
		switch {
		case len(b.Categories) == 0:
			categoryScore = weightCategoryWildcard
		case b.WantsCategory(lot.Category):
			categoryScore = weightCategoryMatch
		default:
			continue
		}

		fit := b.QuantityFit(lot.Quantity)
		if fit == 0 {
			continue // lot is below the buyer's minimum order
		}

		candidates = append(candidates, Candidate{
			Buyer:       b,
			Score:       categoryScore + weightQuantityFit*fit + weightUrgency*urgency.Score,
			QuantityFit: fit,
			DiscountPct: urgency.DiscountPct,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].Buyer.Name < candidates[j].Buyer.Name
	})

	return candidates
}

// Shortlist returns the top candidates for the lot, at most ShortlistSize.
func (e *Engine) Shortlist(lot *inventory.Lot, buyers []*buyer.Buyer) []Candidate {
	candidates := e.Score(lot, buyers)

	size := e.ShortlistSize
	if size <= 0 {
		size = DefaultShortlistSize
	}
	if len(candidates) > size {
		candidates = candidates[:size]
	}
	return candidates
}
