package order

import (
	"fmt"
	"strings"
)

// RaceLostError reports that another order sold one of these listings
// between checkout and confirmation. The losing order fails and the buyer
// is refunded out of band.
type RaceLostError struct {
	OrderID    string
	ListingIDs []string
}

func (e *RaceLostError) Error() string {
	return fmt.Sprintf("order %s lost the sale race for listing(s) %s",
		e.OrderID, strings.Join(e.ListingIDs, ", "))
}

// ClaimedError reports that another buyer currently holds the checkout
// claim on a listing. Retry after the claim expires.
type ClaimedError struct {
	ListingID string
}

func (e *ClaimedError) Error() string {
	return fmt.Sprintf("listing %s is being purchased by another buyer", e.ListingID)
}
