package listing

import (
	"fmt"
	"time"
)

// ExpiredEventError rejects listing and order activity on an event whose
// start time has passed.
type ExpiredEventError struct {
	EventID  string
	StartsAt time.Time
}

func (e *ExpiredEventError) Error() string {
	return fmt.Sprintf("event %s expired at %s", e.EventID, e.StartsAt.Format(time.RFC3339))
}

// ImmutableSoldListingError rejects deletion of a sold listing by an
// unprivileged caller.
type ImmutableSoldListingError struct {
	ListingID string
}

func (e *ImmutableSoldListingError) Error() string {
	return fmt.Sprintf("listing %s is sold and cannot be removed", e.ListingID)
}
