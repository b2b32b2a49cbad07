package inventory

import (
	"database/sql/driver"
	"fmt"
)

// Status represents the lifecycle state of a lot.
//
// State machine:
//
//	available -> matching   (match worker claims the lot)
//	matching  -> offered    (offers created for shortlisted buyers)
//	matching  -> available  (no eligible buyers found)
//	offered   -> cleared    (a buyer accepted an offer)
//	offered   -> available  (all offers declined or expired)
//	available | matching | offered -> expired (expiry date passed)
//
// Terminal states (cleared, expired) cannot transition further.
type Status string

const (
	// StatusAvailable indicates the lot is in stock and eligible for matching.
	StatusAvailable Status = "available"

	// StatusMatching indicates a worker has claimed the lot and is running
	// the match engine against the buyer base.
	StatusMatching Status = "matching"

	// StatusOffered indicates open offers exist for the lot.
	StatusOffered Status = "offered"

	// StatusCleared indicates a buyer accepted an offer; the lot left the
	// clearance pipeline successfully.
	StatusCleared Status = "cleared"

	// StatusExpired indicates the lot passed its expiry date before it
	// could be cleared.
	StatusExpired Status = "expired"
)

// AllStatuses returns all possible lot statuses.
func AllStatuses() []Status {
	return []Status{
		StatusAvailable,
		StatusMatching,
		StatusOffered,
		StatusCleared,
		StatusExpired,
	}
}

// IsValid returns true if the status is a known value.
func (s Status) IsValid() bool {
	switch s {
	case StatusAvailable, StatusMatching, StatusOffered, StatusCleared, StatusExpired:
		return true
	default:
		return false
	}
}

// IsTerminal returns true if the status is final.
func (s Status) IsTerminal() bool {
	return s == StatusCleared || s == StatusExpired
}

// CanTransitionTo returns true if a transition from this status to the
// target status is valid.
func (s Status) CanTransitionTo(target Status) bool {
	if s.IsTerminal() {
		return false
	}
	if s == target {
		return false
	}

	// Every non-terminal status can expire.
	if target == StatusExpired {
		return true
	}

	switch s {
	case StatusAvailable:
		return target == StatusMatching
	case StatusMatching:
		return target == StatusOffered || target == StatusAvailable
	case StatusOffered:
		return target == StatusCleared || target == StatusAvailable
	}

	return false
}

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// Value implements driver.Valuer for database serialization.
func (s Status) Value() (driver.Value, error) {
	return string(s), nil
}

// Scan implements sql.Scanner for database deserialization.
func (s *Status) Scan(src any) error {
	switch v := src.(type) {
	case string:
		status := Status(v)
		if !status.IsValid() {
			return fmt.Errorf("inventory: invalid status %q", v)
		}
		*s = status
		return nil
	case []byte:
		status := Status(v)
		if !status.IsValid() {
			return fmt.Errorf("inventory: invalid status %q", v)
		}
		*s = status
		return nil
	default:
		return fmt.Errorf("inventory: cannot scan type %T into Status", src)
	}
}
