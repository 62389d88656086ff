package db

import (
	"context"

	"github.com/uptrace/bun"

	"ms-marketplace/internal/models"
)

// DB is the bun-backed sale store. The unique order_id column backs the
// one-sale-per-order guarantee.
type DB struct {
	Bun *bun.DB
}

func (d *DB) GetSaleByOrderID(ctx context.Context, orderID string) (*models.Sale, error) {
	var sale models.Sale
	err := d.Bun.NewSelect().
		Model(&sale).
		Where("order_id = ?", orderID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &sale, nil
}

func (d *DB) InsertSale(ctx context.Context, sale *models.Sale) error {
	_, err := d.Bun.NewInsert().Model(sale).Exec(ctx)
	return err
}

func (d *DB) ListSalesBySeller(ctx context.Context, sellerID string) ([]models.Sale, error) {
	var sales []models.Sale
	err := d.Bun.NewSelect().
		Model(&sales).
		Where("seller_id = ?", sellerID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return sales, nil
}
