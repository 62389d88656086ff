// Package bundle resolves the atomic sale group of a listing: either the
// listing alone, or every listing sharing its bundle id.
package bundle

import (
	"context"
	"fmt"
	"strings"

	"ms-marketplace/internal/models"
)

// UnavailableError reports that a bundle cannot be ordered because some of
// its members are already sold.
type UnavailableError struct {
	BundleID string
	SoldIDs  []string
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("bundle %s is unavailable: listing(s) %s already sold",
		e.BundleID, strings.Join(e.SoldIDs, ", "))
}

// Store is the subset of the listing store the resolver reads from.
type Store interface {
	GetListingByID(ctx context.Context, id string) (*models.Listing, error)
	GetListingsByBundle(ctx context.Context, bundleID string) ([]models.Listing, error)
}

// Resolver expands a requested listing into its full sale group.
type Resolver struct {
	Store Store
}

// GroupForOrder returns the listings that must be sold together with the
// requested one. The requested listing is always first. For an unbundled
// listing the group is the listing alone.
func (r *Resolver) GroupForOrder(ctx context.Context, listingID string) ([]models.Listing, error) {
	l, err := r.Store.GetListingByID(ctx, listingID)
	if err != nil {
		return nil, &models.NotFoundError{Resource: "listing", ID: listingID}
	}
	if l.BundleID == "" {
		return []models.Listing{*l}, nil
	}

	members, err := r.Store.GetListingsByBundle(ctx, l.BundleID)
	if err != nil {
		return nil, fmt.Errorf("failed to load bundle %s: %w", l.BundleID, err)
	}

	group := make([]models.Listing, 0, len(members))
	group = append(group, *l)
	for _, m := range members {
		if m.ID != l.ID {
			group = append(group, m)
		}
	}
	return group, nil
}

// ValidateAvailable rejects a group containing any sold member.
func ValidateAvailable(group []models.Listing) error {
	var sold []string
	for _, m := range group {
		if m.Sold {
			sold = append(sold, m.ID)
		}
	}
	if len(sold) == 0 {
		return nil
	}
	bundleID := group[0].BundleID
	return &UnavailableError{BundleID: bundleID, SoldIDs: sold}
}

// Quantity sums the seats across a group.
func Quantity(group []models.Listing) int {
	total := 0
	for _, m := range group {
		total += m.Quantity
	}
	return total
}

// IDs returns the group's listing ids in group order.
func IDs(group []models.Listing) []string {
	ids := make([]string, len(group))
	for i, m := range group {
		ids[i] = m.ID
	}
	return ids
}
