// Package aggregates recomputes the derived fields on sections and events
// whenever a listing beneath them changes.
package aggregates

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"ms-marketplace/internal/models"
)

// Maintainer recomputes a section's price range and an event's ticket
// counts. It must run on the same transaction as the listing mutation that
// triggered it: a reader must never observe one without the other.
type Maintainer struct{}

// OnListingChanged refreshes both aggregates for the section and event a
// mutated listing belongs to.
func (m Maintainer) OnListingChanged(ctx context.Context, idb bun.IDB, eventID, sectionID string) error {
	if err := m.refreshSectionRange(ctx, idb, sectionID); err != nil {
		return err
	}
	return m.refreshEventCounts(ctx, idb, eventID)
}

// refreshSectionRange sets lower/upper to the min/max asking price across
// the section's unsold listings. Zero-priced placeholder listings count
// toward quantities but not toward the range. An empty section keeps (0,0)
// rather than null so price arithmetic stays total.
func (m Maintainer) refreshSectionRange(ctx context.Context, idb bun.IDB, sectionID string) error {
	var lower, upper decimal.Decimal
	err := idb.NewSelect().
		Model((*models.Listing)(nil)).
		ColumnExpr("COALESCE(MIN(asking_price), 0), COALESCE(MAX(asking_price), 0)").
		Where("section_id = ?", sectionID).
		Where("sold = ?", false).
		Where("asking_price > 0").
		Scan(ctx, &lower, &upper)
	if err != nil {
		return err
	}

	_, err = idb.NewUpdate().
		Model((*models.Section)(nil)).
		Set("lower_price = ?", lower).
		Set("upper_price = ?", upper).
		Where("id = ?", sectionID).
		Exec(ctx)
	return err
}

// refreshEventCounts sums quantities across all of the event's listings
// (total) and across the sold ones (sold).
func (m Maintainer) refreshEventCounts(ctx context.Context, idb bun.IDB, eventID string) error {
	var total int
	if err := idb.NewSelect().
		Model((*models.Listing)(nil)).
		ColumnExpr("COALESCE(SUM(quantity), 0)").
		Where("event_id = ?", eventID).
		Scan(ctx, &total); err != nil {
		return err
	}

	var sold int
	if err := idb.NewSelect().
		Model((*models.Listing)(nil)).
		ColumnExpr("COALESCE(SUM(quantity), 0)").
		Where("event_id = ?", eventID).
		Where("sold = ?", true).
		Scan(ctx, &sold); err != nil {
		return err
	}

	_, err := idb.NewUpdate().
		Model((*models.Event)(nil)).
		Set("total_tickets = ?", total).
		Set("sold_tickets = ?", sold).
		Where("id = ?", eventID).
		Exec(ctx)
	return err
}
