// Package settlement tracks what the marketplace owes sellers for
// completed orders and when it was paid out.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-marketplace/internal/logger"
	"ms-marketplace/internal/models"
	"ms-marketplace/internal/monitoring"
	"ms-marketplace/internal/notification"
)

// ErrUnauthorized is returned when a non-privileged actor tries to record
// or inspect payouts.
var ErrUnauthorized = errors.New("payout settlement requires a privileged actor")

// SaleStore is the persistence behind the ledger.
type SaleStore interface {
	GetSaleByOrderID(ctx context.Context, orderID string) (*models.Sale, error)
	InsertSale(ctx context.Context, sale *models.Sale) error
	ListSalesBySeller(ctx context.Context, sellerID string) ([]models.Sale, error)
}

// OrderStore is the order side of settlement: the snapshot the payout
// amount comes from and the paid-to-seller flag.
type OrderStore interface {
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	MarkPaidToSeller(ctx context.Context, orderID string) error
	ListUnsettled(ctx context.Context) ([]models.Order, error)
}

// Ledger owns the sale records. One sale per completed order, amount fixed
// at the seller's gross asking-price proceeds from the order snapshot.
type Ledger struct {
	Store  SaleStore
	Orders OrderStore
	Notify notification.Sender
	Log    *logger.Logger
}

// RecordPayout settles a completed order: it creates the sale with the
// payout date stamped, flags the order as paid to the seller and tells the
// seller. Privileged actors only. Calling it again for the same order
// returns the existing sale unchanged.
func (l *Ledger) RecordPayout(ctx context.Context, orderID string, actor models.Buyer) (*models.Sale, error) {
	if !actor.IsPrivileged {
		return nil, ErrUnauthorized
	}

	if existing, err := l.Store.GetSaleByOrderID(ctx, orderID); err == nil {
		l.Log.Info("SETTLEMENT", fmt.Sprintf("sale %d already recorded for order %s", existing.ID, orderID))
		return existing, nil
	}

	o, err := l.Orders.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, &models.NotFoundError{Resource: "order", ID: orderID}
	}
	if o.Status != models.OrderCompleted {
		return nil, &models.ValidationError{Field: "order_id", Reason: "only completed orders can be paid out"}
	}

	now := time.Now().UTC()
	sale := &models.Sale{
		OrderID:     o.ID,
		SellerID:    o.SellerID,
		SellerEmail: o.SellerEmail,
		Amount:      o.SellerProceeds,
		PayoutDate:  now,
		CreatedAt:   now,
	}
	if err := l.Store.InsertSale(ctx, sale); err != nil {
		// A concurrent call can win the insert between the lookup and here;
		// the unique order_id column makes the re-read authoritative.
		if existing, gerr := l.Store.GetSaleByOrderID(ctx, orderID); gerr == nil {
			l.Log.Info("SETTLEMENT", fmt.Sprintf("sale %d recorded concurrently for order %s", existing.ID, orderID))
			return existing, nil
		}
		return nil, fmt.Errorf("failed to record sale for order %s: %w", orderID, err)
	}

	if err := l.Orders.MarkPaidToSeller(ctx, orderID); err != nil {
		l.Log.Error("SETTLEMENT", fmt.Sprintf("flag order %s paid to seller: %v", orderID, err))
	}

	if l.Notify != nil {
		body := fmt.Sprintf("Your payout of %s for order %s has been sent.\n",
			sale.Amount.StringFixed(2), orderID)
		if err := l.Notify.Send(o.SellerEmail, "Payout sent", body, nil); err != nil {
			l.Log.Warn("EMAIL", fmt.Sprintf("payout notice for order %s: %v", orderID, err))
		}
	}

	monitoring.PayoutsRecorded.Inc()
	l.Log.Info("SETTLEMENT", fmt.Sprintf("payout recorded for order %s by %s: %s to %s",
		orderID, actor.Email, sale.Amount.StringFixed(2), o.SellerEmail))
	return sale, nil
}

// UnpaidOrders lists completed orders whose payout has not been recorded
// yet, for the admin view.
func (l *Ledger) UnpaidOrders(ctx context.Context, actor models.Buyer) ([]models.Order, error) {
	if !actor.IsPrivileged {
		return nil, ErrUnauthorized
	}
	return l.Orders.ListUnsettled(ctx)
}

// SellerSales lists a seller's own sales.
func (l *Ledger) SellerSales(ctx context.Context, sellerID string) ([]models.Sale, error) {
	return l.Store.ListSalesBySeller(ctx, sellerID)
}
