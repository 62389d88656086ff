package db

import (
	"context"
	"database/sql"

	"github.com/uptrace/bun"

	"ms-marketplace/internal/aggregates"
	"ms-marketplace/internal/models"
	"ms-marketplace/internal/order"
)

// DB is the bun-backed order store. ConfirmOrder carries the whole
// sold-flag transition so the race between two paid checkouts is decided
// by a single conditional update.
type DB struct {
	Bun        *bun.DB
	Aggregates aggregates.Maintainer
}

func (d *DB) CreateOrder(ctx context.Context, o *models.Order) error {
	_, err := d.Bun.NewInsert().Model(o).Exec(ctx)
	return err
}

func (d *DB) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	var o models.Order
	err := d.Bun.NewSelect().
		Model(&o).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (d *DB) ListOrdersByBuyer(ctx context.Context, buyerEmail string) ([]models.Order, error) {
	var orders []models.Order
	err := d.Bun.NewSelect().
		Model(&orders).
		Where("buyer_email = ?", buyerEmail).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// AttachSession stores the gateway session on a freshly created order.
func (d *DB) AttachSession(ctx context.Context, orderID, sessionID, checkoutURL string) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("session_id = ?", sessionID).
		Set("checkout_url = ?", checkoutURL).
		Where("id = ?", orderID).
		Exec(ctx)
	return err
}

// DeleteOrder removes an order that never reached the gateway.
func (d *DB) DeleteOrder(ctx context.Context, orderID string) error {
	_, err := d.Bun.NewDelete().
		Model((*models.Order)(nil)).
		Where("id = ?", orderID).
		Exec(ctx)
	return err
}

// SetStatus moves a pending order to a terminal status. Terminal orders are
// never rewritten.
func (d *DB) SetStatus(ctx context.Context, orderID, status string) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("status = ?", status).
		Where("id = ?", orderID).
		Where("status = ?", models.OrderPending).
		Exec(ctx)
	return err
}

// ConfirmOrder finalizes a paid order: every listing in the order flips to
// sold in one conditional update, the touched aggregates are recomputed and
// the order completes, all in one transaction. If any listing was already
// sold the whole transaction rolls back with RaceLostError and the order is
// left pending for the caller to fail.
func (d *DB) ConfirmOrder(ctx context.Context, o *models.Order) error {
	return d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Model((*models.Listing)(nil)).
			Set("sold = ?", true).
			Set("ordered = ?", true).
			Set("buyer_email = ?", o.BuyerEmail).
			Where("id IN (?)", bun.In(o.ListingIDs)).
			Where("sold = ?", false).
			Exec(ctx)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected != int64(len(o.ListingIDs)) {
			return &order.RaceLostError{OrderID: o.ID, ListingIDs: o.ListingIDs}
		}

		var scopes []struct {
			EventID   string `bun:"event_id"`
			SectionID string `bun:"section_id"`
		}
		err = tx.NewSelect().
			Model((*models.Listing)(nil)).
			Column("event_id", "section_id").
			Where("id IN (?)", bun.In(o.ListingIDs)).
			Group("event_id", "section_id").
			Scan(ctx, &scopes)
		if err != nil {
			return err
		}
		for _, sc := range scopes {
			if err := d.Aggregates.OnListingChanged(ctx, tx, sc.EventID, sc.SectionID); err != nil {
				return err
			}
		}

		_, err = tx.NewUpdate().
			Model((*models.Order)(nil)).
			Set("status = ?", models.OrderCompleted).
			Where("id = ?", o.ID).
			Where("status = ?", models.OrderPending).
			Exec(ctx)
		return err
	})
}

// SetFulfillmentRecorded marks that the sold listings' document state has
// been checked off for this order.
func (d *DB) SetFulfillmentRecorded(ctx context.Context, orderID string) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("fulfillment_recorded = ?", true).
		Where("id = ?", orderID).
		Exec(ctx)
	return err
}

// MarkPaidToSeller flags the order once its payout is settled.
func (d *DB) MarkPaidToSeller(ctx context.Context, orderID string) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("paid_to_seller = ?", true).
		Where("id = ?", orderID).
		Exec(ctx)
	return err
}

// ListUnsettled returns completed orders whose seller has not been paid,
// oldest first.
func (d *DB) ListUnsettled(ctx context.Context) ([]models.Order, error) {
	var orders []models.Order
	err := d.Bun.NewSelect().
		Model(&orders).
		Where("status = ?", models.OrderCompleted).
		Where("paid_to_seller = ?", false).
		Order("created_at").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return orders, nil
}
