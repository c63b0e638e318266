package domain

import (
	"fmt"
	"time"
)

// ParseStatus accepts exactly the four enum spellings. No case folding.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusApproved, StatusDeclined, StatusDeleted:
		return st, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
}

func (s Status) Valid() bool {
	_, err := ParseStatus(string(s))
	return err == nil
}

func (s Status) Terminal() bool { return s == StatusDeleted }

// ApplyTransition moves r to requested. Any member status is reachable from
// any non-terminal status; DELETED admits nothing. Requesting the current
// status is accepted and reported as unchanged. Only Status and UpdatedAt are
// touched.
func ApplyTransition(r Review, requested Status, now time.Time) (Review, bool, error) {
	if !requested.Valid() {
		return r, false, fmt.Errorf("%w: %q", ErrInvalidStatus, string(requested))
	}
	switch r.Status {
	case StatusDeleted:
		return r, false, fmt.Errorf("%w: review %s", ErrTerminalState, r.ID)
	case StatusPending, StatusApproved, StatusDeclined:
	default:
		// stored value outside the enum; treat as corrupt rather than guess
		return r, false, fmt.Errorf("%w: stored status %q on review %s", ErrInvalidStatus, string(r.Status), r.ID)
	}
	if r.Status == requested {
		return r, false, nil
	}
	r.Status = requested
	r.UpdatedAt = now
	return r, true, nil
}

// ApprovedSetChanged reports whether moving from -> to alters which reviews
// count toward rating summaries.
func ApprovedSetChanged(from, to Status) bool {
	return from != to && (from == StatusApproved || to == StatusApproved)
}
