package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"ms-marketplace/internal/bundle"
	"ms-marketplace/internal/listing"
	"ms-marketplace/internal/logger"
	"ms-marketplace/internal/models"
	"ms-marketplace/internal/monitoring"
	"ms-marketplace/internal/notification"
	"ms-marketplace/internal/payment"
)

// DBLayer is the order store.
type DBLayer interface {
	CreateOrder(ctx context.Context, o *models.Order) error
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	ListOrdersByBuyer(ctx context.Context, buyerEmail string) ([]models.Order, error)
	AttachSession(ctx context.Context, orderID, sessionID, checkoutURL string) error
	DeleteOrder(ctx context.Context, orderID string) error
	SetStatus(ctx context.Context, orderID, status string) error
	ConfirmOrder(ctx context.Context, o *models.Order) error
}

// Catalog reads the event and section a snapshot is built from.
type Catalog interface {
	GetEvent(ctx context.Context, id string) (*models.Event, error)
	GetSection(ctx context.Context, id string) (*models.Section, error)
}

// Resolver expands a listing into its atomic sale group.
type Resolver interface {
	GroupForOrder(ctx context.Context, listingID string) ([]models.Listing, error)
}

// Splitter carves a partial quantity off an unbundled listing.
type Splitter interface {
	SplitForPartialSale(ctx context.Context, id string, requestedQty int) (*models.Listing, error)
}

// ClaimLock fences concurrent checkouts of the same listings.
type ClaimLock interface {
	ClaimListings(ctx context.Context, listingIDs []string, orderID string) (bool, error)
	ReleaseListings(ctx context.Context, listingIDs []string, orderID string) error
}

// Publisher streams order lifecycle events.
type Publisher interface {
	PublishOrderCompleted(o models.Order) error
	PublishOrderFailed(o models.Order) error
}

// Service drives the order state machine: snapshot, claim, checkout,
// confirm. An order is pending from initiation until the gateway verdict,
// then exactly one of completed or failed, forever.
type Service struct {
	DB       DBLayer
	Catalog  Catalog
	Bundles  Resolver
	Splitter Splitter
	Locks    ClaimLock
	Gateway  payment.Gateway
	Notify   notification.Sender
	Kafka    Publisher
	Log      *logger.Logger
	Currency string

	// AdminEmail receives the payout-needed notice after a sale.
	AdminEmail string
}

// Initiate builds an order for a listing (or its whole bundle), claims the
// listings, opens a gateway checkout session and returns the pending order
// carrying the checkout URL. requestedQty of 0 means the listing's full
// quantity; a smaller quantity splits the listing first.
func (s *Service) Initiate(ctx context.Context, buyer models.Buyer, listingID string, requestedQty int) (*models.Order, error) {
	group, err := s.Bundles.GroupForOrder(ctx, listingID)
	if err != nil {
		return nil, err
	}
	target := group[0]

	if target.SellerID == buyer.ID {
		return nil, &models.ValidationError{Field: "listing_id", Reason: "sellers cannot buy their own listing"}
	}
	if err := bundle.ValidateAvailable(group); err != nil {
		return nil, err
	}

	event, err := s.Catalog.GetEvent(ctx, target.EventID)
	if err != nil {
		return nil, &models.NotFoundError{Resource: "event", ID: target.EventID}
	}
	if event.Expired(time.Now()) {
		return nil, &listing.ExpiredEventError{EventID: event.ID, StartsAt: event.StartsAt}
	}
	section, err := s.Catalog.GetSection(ctx, target.SectionID)
	if err != nil {
		return nil, &models.NotFoundError{Resource: "section", ID: target.SectionID}
	}

	group, err = s.applyQuantity(ctx, group, requestedQty)
	if err != nil {
		return nil, err
	}
	target = group[0]

	orderID := uuid.NewString()
	ids := bundle.IDs(group)
	ok, err := s.Locks.ClaimListings(ctx, ids, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to claim listings for order %s: %w", orderID, err)
	}
	if !ok {
		return nil, &ClaimedError{ListingID: target.ID}
	}

	o := snapshot(orderID, buyer, group, event, section)

	if err := s.DB.CreateOrder(ctx, o); err != nil {
		s.releaseQuiet(ctx, ids, orderID)
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	sess, err := s.Gateway.CreateCheckout(ctx, payment.CheckoutRequest{
		OrderID:     orderID,
		BuyerEmail:  buyer.Email,
		Description: fmt.Sprintf("%d x %s (%s)", o.Quantity, event.Name, section.Name),
		Amount:      o.TotalAmount,
		Currency:    s.Currency,
		Quantity:    o.Quantity,
	})
	if err != nil {
		// The order never reached the gateway, so it leaves no trace.
		if derr := s.DB.DeleteOrder(ctx, orderID); derr != nil {
			s.Log.Error("ORDER", fmt.Sprintf("cleanup of order %s after gateway failure: %v", orderID, derr))
		}
		s.releaseQuiet(ctx, ids, orderID)
		return nil, err
	}

	if err := s.DB.AttachSession(ctx, orderID, sess.ID, sess.URL); err != nil {
		// Without the session id the return leg can never verify payment,
		// so the order must not linger in pending.
		if derr := s.DB.DeleteOrder(ctx, orderID); derr != nil {
			s.Log.Error("ORDER", fmt.Sprintf("cleanup of order %s after session attach failure: %v", orderID, derr))
		}
		s.releaseQuiet(ctx, ids, orderID)
		return nil, fmt.Errorf("failed to attach session to order %s: %w", orderID, err)
	}
	o.SessionID = sess.ID
	o.CheckoutURL = sess.URL

	monitoring.OrdersInitiated.Inc()
	s.Log.Info("ORDER", fmt.Sprintf("order %s initiated: %d seat(s) of %s for %s, total %s %s",
		orderID, o.Quantity, event.Name, buyer.Email, o.TotalAmount.StringFixed(2), s.Currency))
	return o, nil
}

// ConfirmReturn handles the buyer's redirect back from the gateway. The
// session id from the redirect must match the one stored on the order; the
// gateway is then asked for the real payment status. Terminal orders are
// returned as they are, so replaying the return URL is harmless.
func (s *Service) ConfirmReturn(ctx context.Context, orderID, sessionID string) (*models.Order, error) {
	o, err := s.DB.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, &models.NotFoundError{Resource: "order", ID: orderID}
	}
	if o.Terminal() {
		return o, nil
	}
	if sessionID == "" || sessionID != o.SessionID {
		return nil, &models.ValidationError{Field: "session_id", Reason: "does not match the order's checkout session"}
	}

	status, err := s.Gateway.SessionStatus(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if status != payment.SessionPaid {
		// The gateway says the session is not paid, whatever the redirect
		// claimed. The order fails and the claims are freed.
		s.fail(ctx, o, string(status))
		return o, nil
	}
	return s.complete(ctx, o)
}

// Cancel fails a pending order and frees its claims, for the buyer's
// explicit cancel return leg.
func (s *Service) Cancel(ctx context.Context, orderID string) (*models.Order, error) {
	o, err := s.DB.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, &models.NotFoundError{Resource: "order", ID: orderID}
	}
	if o.Terminal() {
		return o, nil
	}
	s.fail(ctx, o, "cancelled")
	return o, nil
}

func (s *Service) complete(ctx context.Context, o *models.Order) (*models.Order, error) {
	if err := s.DB.ConfirmOrder(ctx, o); err != nil {
		var raceErr *RaceLostError
		if errors.As(err, &raceErr) {
			s.Log.Error("ORDER", fmt.Sprintf("order %s PAID but lost the sale race: failing it, buyer %s needs reconciliation", o.ID, o.BuyerEmail))
			s.fail(ctx, o, "race_lost")
			return nil, raceErr
		}
		return nil, fmt.Errorf("failed to confirm order %s: %w", o.ID, err)
	}
	o.Status = models.OrderCompleted
	s.releaseQuiet(ctx, o.ListingIDs, o.ID)

	if s.Kafka != nil {
		if err := s.Kafka.PublishOrderCompleted(*o); err != nil {
			s.Log.Warn("KAFKA", fmt.Sprintf("publish order completed %s: %v", o.ID, err))
		}
	}
	s.sendConfirmation(o)

	monitoring.OrdersCompleted.Inc()
	s.Log.Info("ORDER", fmt.Sprintf("order %s completed, %d seat(s) sold", o.ID, o.Quantity))
	return o, nil
}

func (s *Service) fail(ctx context.Context, o *models.Order, reason string) {
	if err := s.DB.SetStatus(ctx, o.ID, models.OrderFailed); err != nil {
		s.Log.Error("ORDER", fmt.Sprintf("failing order %s: %v", o.ID, err))
		return
	}
	o.Status = models.OrderFailed
	s.releaseQuiet(ctx, o.ListingIDs, o.ID)

	if s.Kafka != nil {
		if err := s.Kafka.PublishOrderFailed(*o); err != nil {
			s.Log.Warn("KAFKA", fmt.Sprintf("publish order failed %s: %v", o.ID, err))
		}
	}
	monitoring.OrdersFailed.WithLabelValues(reason).Inc()
	s.Log.Info("ORDER", fmt.Sprintf("order %s failed (%s)", o.ID, reason))
}

// applyQuantity narrows the group to the requested quantity, splitting a
// lone listing when the buyer wants fewer seats than listed. Bundles are
// all or nothing.
func (s *Service) applyQuantity(ctx context.Context, group []models.Listing, requestedQty int) ([]models.Listing, error) {
	total := bundle.Quantity(group)
	if requestedQty == 0 || requestedQty == total {
		return group, nil
	}
	if requestedQty > total {
		return nil, &models.ValidationError{Field: "quantity", Reason: fmt.Sprintf("only %d seat(s) available", total)}
	}
	if len(group) > 1 {
		return nil, &models.ValidationError{Field: "quantity", Reason: "bundles are sold whole"}
	}

	carved, err := s.Splitter.SplitForPartialSale(ctx, group[0].ID, requestedQty)
	if err != nil {
		return nil, err
	}
	monitoring.ListingsSplit.Inc()
	return []models.Listing{*carved}, nil
}

func snapshot(orderID string, buyer models.Buyer, group []models.Listing, event *models.Event, section *models.Section) *models.Order {
	target := group[0]
	class := buyer.Class()

	quantity := 0
	seats := make([]string, 0)
	total := decimal.Zero
	proceeds := decimal.Zero
	fulfilled := false
	for _, m := range group {
		qty := decimal.NewFromInt(int64(m.Quantity))
		quantity += m.Quantity
		seats = append(seats, m.Seats...)
		total = total.Add(m.UnitPriceFor(class).Mul(qty))
		proceeds = proceeds.Add(m.AskingPrice.Mul(qty))
		if m.UploadChoice == models.UploadNow && m.DocumentRef != "" {
			fulfilled = true
		}
	}

	return &models.Order{
		ID:            orderID,
		EventID:       event.ID,
		EventName:     event.Name,
		EventStartsAt: event.StartsAt,
		SectionName:   section.Name,
		Row:           target.Row,
		Seats:         seats,
		Quantity:      quantity,

		FaceValue:      target.FaceValue,
		AskingPrice:    target.AskingPrice,
		UnitPrice:      target.UnitPriceFor(class),
		TotalAmount:    total,
		SellerProceeds: proceeds,

		ListingIDs:  bundle.IDs(group),
		SellerID:    target.SellerID,
		SellerEmail: target.SellerEmail,
		BuyerEmail:  buyer.Email,
		BuyerClass:  string(class),

		FulfillmentRecorded: fulfilled,

		Status:    models.OrderPending,
		CreatedAt: time.Now().UTC(),
	}
}

func (s *Service) sendConfirmation(o *models.Order) {
	if s.Notify == nil {
		return
	}

	var attachments []notification.Attachment
	qr, err := notification.OrderQR(o.ID)
	if err != nil {
		s.Log.Warn("EMAIL", fmt.Sprintf("QR for order %s: %v", o.ID, err))
	} else {
		attachments = append(attachments, qr)
	}

	buyerBody := fmt.Sprintf("Your order is confirmed.\n\nEvent: %s\nSection: %s\nSeats: %d\nTotal: %s\nOrder: %s\n",
		o.EventName, o.SectionName, o.Quantity, o.TotalAmount.StringFixed(2), o.ID)
	if err := s.Notify.Send(o.BuyerEmail, "Order confirmed: "+o.EventName, buyerBody, attachments); err != nil {
		s.Log.Warn("EMAIL", fmt.Sprintf("buyer confirmation for order %s: %v", o.ID, err))
	}

	sellerBody := fmt.Sprintf("Your tickets sold.\n\nEvent: %s\nSeats: %d\nYour proceeds: %s\nOrder: %s\n",
		o.EventName, o.Quantity, o.SellerProceeds.StringFixed(2), o.ID)
	if !o.FulfillmentRecorded {
		sellerBody += "\nPlease upload the tickets before the event so the buyer receives them in time.\n"
	}
	if err := s.Notify.Send(o.SellerEmail, "Tickets sold: "+o.EventName, sellerBody, nil); err != nil {
		s.Log.Warn("EMAIL", fmt.Sprintf("seller notice for order %s: %v", o.ID, err))
	}

	if s.AdminEmail != "" {
		adminBody := fmt.Sprintf("Order %s completed. Payout of %s due to %s.\n",
			o.ID, o.SellerProceeds.StringFixed(2), o.SellerEmail)
		if err := s.Notify.Send(s.AdminEmail, "Payout needed: order "+o.ID, adminBody, nil); err != nil {
			s.Log.Warn("EMAIL", fmt.Sprintf("admin notice for order %s: %v", o.ID, err))
		}
	}
}

func (s *Service) releaseQuiet(ctx context.Context, ids []string, orderID string) {
	if err := s.Locks.ReleaseListings(ctx, ids, orderID); err != nil {
		s.Log.Warn("REDIS", fmt.Sprintf("release claims for order %s: %v", orderID, err))
	}
}
