package inventory

import (
	"time"
)

// Band classifies how urgently a lot needs to be cleared.
type Band string

const (
	// BandCritical means the lot expires within 2 days.
	BandCritical Band = "critical"

	// BandHigh means the lot expires within 5 days.
	BandHigh Band = "high"

	// BandElevated means the lot expires within 10 days.
	BandElevated Band = "elevated"

	// BandLow means the lot has more than 10 days of shelf life left.
	BandLow Band = "low"
)

// Band thresholds in days of remaining shelf life.
const (
	criticalThresholdDays = 2
	highThresholdDays     = 5
	elevatedThresholdDays = 10

	// scoreHorizonDays is the window over which the urgency score decays
	// from 1 to 0. Anything further out scores 0.
	scoreHorizonDays = 30
)

// Recommended clearance discount per band, in percent off the unit price.
var bandDiscounts = map[Band]int{
	BandCritical: 40,
	BandHigh:     25,
	BandElevated: 15,
	BandLow:      5,
}

// Urgency is the assessment of a lot's expiry pressure at a point in time.
type Urgency struct {
	DaysToExpiry int     `json:"days_to_expiry"`
	Score        float64 `json:"score"`
	Band         Band    `json:"band"`
	DiscountPct  int     `json:"discount_pct"`
}

// DaysToExpiry returns whole days from now until expiry, rounding partial
// days down. A lot expiring later today returns 0; an expired lot returns
// a negative count.
func DaysToExpiry(expiry, now time.Time) int {
	d := expiry.Sub(now)
	days := int(d.Hours() / 24)
	if d < 0 && d.Truncate(24*time.Hour) != d {
		days--
	}
	return days
}

// AssessUrgency computes the urgency of a lot expiring at the given date.
func AssessUrgency(expiry, now time.Time) Urgency {
	days := DaysToExpiry(expiry, now)
	band := BandFor(days)

	return Urgency{
		DaysToExpiry: days,
		Score:        urgencyScore(days),
		Band:         band,
		DiscountPct:  bandDiscounts[band],
	}
}

// BandFor returns the urgency band for the given remaining shelf life.
func BandFor(daysToExpiry int) Band {
	switch {
	case daysToExpiry <= criticalThresholdDays:
		return BandCritical
	case daysToExpiry <= highThresholdDays:
		return BandHigh
	case daysToExpiry <= elevatedThresholdDays:
		return BandElevated
	default:
		return BandLow
	}
}

// BandWindow translates a band into the expiry-date window it covers
// relative to now, for filtering lots by band in queries. A nil bound is
// unbounded.
func BandWindow(b Band, now time.Time) (after, before *time.Time) {
	at := func(days int) *time.Time {
		t := now.AddDate(0, 0, days)
		return &t
	}

	switch b {
	case BandCritical:
		return nil, at(criticalThresholdDays)
	case BandHigh:
		return at(criticalThresholdDays), at(highThresholdDays)
	case BandElevated:
		return at(highThresholdDays), at(elevatedThresholdDays)
	case BandLow:
		return at(elevatedThresholdDays), nil
	default:
		return nil, nil
	}
}

// BandAtLeast returns true if band b is at least as urgent as min.
func BandAtLeast(b, min Band) bool {
	return bandRank(b) >= bandRank(min)
}

func bandRank(b Band) int {
	switch b {
	case BandCritical:
		return 3
	case BandHigh:
		return 2
	case BandElevated:
		return 1
	default:
		return 0
	}
}

// IsValidBand returns true if the band is a known value.
func IsValidBand(b Band) bool {
	switch b {
	case BandCritical, BandHigh, BandElevated, BandLow:
		return true
	default:
		return false
	}
}

// urgencyScore maps remaining shelf life to [0,1]: 1 at or past expiry,
// decaying linearly to 0 at the score horizon.
func urgencyScore(daysToExpiry int) float64 {
	if daysToExpiry <= 0 {
		return 1
	}
	if daysToExpiry >= scoreHorizonDays {
		return 0
	}
	return 1 - float64(daysToExpiry)/float64(scoreHorizonDays)
}
