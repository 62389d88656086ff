package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"ms-marketplace/internal/aggregates"
	"ms-marketplace/internal/models"
)

// DB is the bun-backed listing store. Every mutation runs in one
// transaction together with the aggregate recompute, so a reader never sees
// a listing change without its section/event update.
type DB struct {
	Bun        *bun.DB
	Aggregates aggregates.Maintainer
}

// ---------------- LOOKUPS ----------------

func (d *DB) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	var event models.Event
	err := d.Bun.NewSelect().
		Model(&event).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (d *DB) GetSection(ctx context.Context, id string) (*models.Section, error) {
	var section models.Section
	err := d.Bun.NewSelect().
		Model(&section).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &section, nil
}

func (d *DB) GetListingByID(ctx context.Context, id string) (*models.Listing, error) {
	var l models.Listing
	err := d.Bun.NewSelect().
		Model(&l).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// GetListingsByBundle returns every listing sharing a bundle id, regardless
// of section.
func (d *DB) GetListingsByBundle(ctx context.Context, bundleID string) ([]models.Listing, error) {
	var listings []models.Listing
	err := d.Bun.NewSelect().
		Model(&listings).
		Where("bundle_id = ?", bundleID).
		Order("created_at").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return listings, nil
}

// EventFilter narrows ListByEvent for the marketplace browse page.
type EventFilter struct {
	SectionID string
	MinPrice  decimal.Decimal
	MaxPrice  decimal.Decimal
	Quantity  int
}

// ListByEvent returns the event's unsold listings, newest first.
func (d *DB) ListByEvent(ctx context.Context, eventID string, f EventFilter) ([]models.Listing, error) {
	var listings []models.Listing
	q := d.Bun.NewSelect().
		Model(&listings).
		Where("event_id = ?", eventID).
		Where("sold = ?", false)
	if f.SectionID != "" {
		q = q.Where("section_id = ?", f.SectionID)
	}
	if f.MinPrice.IsPositive() {
		q = q.Where("asking_price >= ?", f.MinPrice)
	}
	if f.MaxPrice.IsPositive() {
		q = q.Where("asking_price <= ?", f.MaxPrice)
	}
	if f.Quantity > 0 {
		q = q.Where("quantity = ?", f.Quantity)
	}

	if err := q.Order("created_at DESC").Scan(ctx); err != nil {
		return nil, err
	}
	return listings, nil
}

func (d *DB) ListBySeller(ctx context.Context, sellerID string) ([]models.Listing, error) {
	var listings []models.Listing
	err := d.Bun.NewSelect().
		Model(&listings).
		Where("seller_id = ?", sellerID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return listings, nil
}

// ListExpiredUploads returns upload-later listings whose upload deadline has
// passed, for the admin chase-up view.
func (d *DB) ListExpiredUploads(ctx context.Context, now time.Time) ([]models.Listing, error) {
	var listings []models.Listing
	err := d.Bun.NewSelect().
		Model(&listings).
		Where("upload_choice = ?", models.UploadLater).
		Where("upload_by <= ?", now).
		Order("upload_by").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return listings, nil
}

// ---------------- MUTATIONS ----------------

// InsertListing writes the listing and refreshes its aggregates in one
// transaction.
func (d *DB) InsertListing(ctx context.Context, l *models.Listing) error {
	return d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(l).Exec(ctx); err != nil {
			return err
		}
		return d.Aggregates.OnListingChanged(ctx, tx, l.EventID, l.SectionID)
	})
}

// UpdateListing rewrites the mutable columns and refreshes aggregates.
func (d *DB) UpdateListing(ctx context.Context, l *models.Listing) error {
	return d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewUpdate().
			Model(l).
			Column("quantity", "row", "seats", "face_value", "asking_price",
				"price_for_normal", "price_for_reseller", "ticket_type",
				"upload_choice", "document_ref", "upload_by", "sell_together",
				"checked").
			Where("id = ?", l.ID).
			Exec(ctx)
		if err != nil {
			return err
		}
		return d.Aggregates.OnListingChanged(ctx, tx, l.EventID, l.SectionID)
	})
}

// DeleteListing removes the row and recomputes the section/event aggregates
// downward. Deleting the last listing of a section resets its range to
// (0,0).
func (d *DB) DeleteListing(ctx context.Context, l *models.Listing) error {
	return d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewDelete().
			Model((*models.Listing)(nil)).
			Where("id = ?", l.ID).
			Exec(ctx)
		if err != nil {
			return err
		}
		return d.Aggregates.OnListingChanged(ctx, tx, l.EventID, l.SectionID)
	})
}

// SplitListing applies a partial-sale split: the shrunk remainder is
// updated and the carved-off listing inserted in the same transaction, so
// either both rows reflect the split or neither does.
func (d *DB) SplitListing(ctx context.Context, remainder, carved *models.Listing) error {
	return d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Model(remainder).
			Column("quantity", "seats").
			Where("id = ?", remainder.ID).
			Where("sold = ?", false).
			Exec(ctx)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return sql.ErrNoRows
		}
		if _, err := tx.NewInsert().Model(carved).Exec(ctx); err != nil {
			return err
		}
		return d.Aggregates.OnListingChanged(ctx, tx, carved.EventID, carved.SectionID)
	})
}
