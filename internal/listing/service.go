package listing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ms-marketplace/internal/logger"
	"ms-marketplace/internal/models"
	"ms-marketplace/internal/notification"
	"ms-marketplace/internal/pricing"
)

// DBLayer is the store the service writes through. Implementations must run
// each mutation and its aggregate recompute in a single transaction.
type DBLayer interface {
	GetEvent(ctx context.Context, id string) (*models.Event, error)
	GetSection(ctx context.Context, id string) (*models.Section, error)
	GetListingByID(ctx context.Context, id string) (*models.Listing, error)
	InsertListing(ctx context.Context, l *models.Listing) error
	UpdateListing(ctx context.Context, l *models.Listing) error
	DeleteListing(ctx context.Context, l *models.Listing) error
	SplitListing(ctx context.Context, remainder, carved *models.Listing) error
}

// Publisher streams listing lifecycle events. Publish failures are logged,
// never surfaced.
type Publisher interface {
	PublishListingCreated(l models.Listing) error
	PublishListingDeleted(l models.Listing) error
}

// Service owns the listing lifecycle: create, update, delete and the
// partial-sale split. It is the single writer of listings and of the
// section/event aggregates derived from them.
type Service struct {
	DB         DBLayer
	Log        *logger.Logger
	Notify     notification.Sender
	Kafka      Publisher
	AdminEmail string
}

func NewService(db DBLayer, log *logger.Logger) *Service {
	return &Service{DB: db, Log: log, Notify: notification.Noop{}}
}

// Create validates and persists a new listing, deriving its buyer prices
// from the owning event's rates.
func (s *Service) Create(ctx context.Context, l *models.Listing) (*models.Listing, error) {
	event, err := s.DB.GetEvent(ctx, l.EventID)
	if err != nil {
		return nil, &models.NotFoundError{Resource: "event", ID: l.EventID}
	}
	if event.Expired(time.Now()) {
		return nil, &ExpiredEventError{EventID: event.ID, StartsAt: event.StartsAt}
	}

	section, err := s.DB.GetSection(ctx, l.SectionID)
	if err != nil {
		return nil, &models.NotFoundError{Resource: "section", ID: l.SectionID}
	}
	if section.EventID != event.ID {
		return nil, &models.ValidationError{Field: "section_id", Reason: "does not belong to the event"}
	}

	if err := validate(l, event); err != nil {
		return nil, err
	}

	l.ID = uuid.NewString()
	l.PriceForNormal, l.PriceForReseller = pricing.BuyerPrices(l.AskingPrice, event.NormalRate, event.ResellerRate)
	l.Checked, l.Ordered, l.Sold = false, false, false
	l.BuyerEmail = ""
	l.CreatedAt = time.Now().UTC()

	if err := s.DB.InsertListing(ctx, l); err != nil {
		return nil, fmt.Errorf("failed to create listing: %w", err)
	}
	s.Log.Info("LISTING", fmt.Sprintf("created %s: %d seat(s) in section %s of event %s", l.ID, l.Quantity, section.Name, event.Name))

	if s.Kafka != nil {
		if err := s.Kafka.PublishListingCreated(*l); err != nil {
			s.Log.Warn("KAFKA", fmt.Sprintf("publish listing created %s: %v", l.ID, err))
		}
	}
	s.sendCreateNotices(l, event, section)

	return l, nil
}

// Update applies a patch. Only the owning seller (or a privileged actor)
// sees the listing at all. Sold listings are immutable except for the
// checked flag and the fulfillment document, and report not-found to
// everything else.
func (s *Service) Update(ctx context.Context, id string, patch models.ListingPatch, actor models.Buyer) (*models.Listing, error) {
	l, err := s.DB.GetListingByID(ctx, id)
	if err != nil {
		return nil, &models.NotFoundError{Resource: "listing", ID: id}
	}
	if l.SellerID != actor.ID && !actor.IsPrivileged {
		return nil, &models.NotFoundError{Resource: "listing", ID: id}
	}
	if l.Sold && !patch.TouchesOnlyFulfillment() {
		return nil, &models.NotFoundError{Resource: "listing", ID: id}
	}

	event, err := s.DB.GetEvent(ctx, l.EventID)
	if err != nil {
		return nil, &models.NotFoundError{Resource: "event", ID: l.EventID}
	}

	applyPatch(l, patch)
	if !l.Sold {
		if event.Expired(time.Now()) {
			return nil, &ExpiredEventError{EventID: event.ID, StartsAt: event.StartsAt}
		}
		if err := validate(l, event); err != nil {
			return nil, err
		}
		// The event's rates may have moved since the last write, so the
		// buyer prices are always rederived.
		l.PriceForNormal, l.PriceForReseller = pricing.BuyerPrices(l.AskingPrice, event.NormalRate, event.ResellerRate)
	}

	if err := s.DB.UpdateListing(ctx, l); err != nil {
		return nil, fmt.Errorf("failed to update listing %s: %w", id, err)
	}
	s.Log.Info("LISTING", "updated "+id)
	return l, nil
}

// Delete removes an unsold listing. Only the owning seller may withdraw
// it; sold listings may only be removed by a privileged actor, and that
// override is logged loudly.
func (s *Service) Delete(ctx context.Context, id string, actor models.Buyer) error {
	l, err := s.DB.GetListingByID(ctx, id)
	if err != nil {
		return &models.NotFoundError{Resource: "listing", ID: id}
	}
	if l.SellerID != actor.ID && !actor.IsPrivileged {
		return &models.NotFoundError{Resource: "listing", ID: id}
	}
	if l.Sold {
		if !actor.IsPrivileged {
			return &ImmutableSoldListingError{ListingID: id}
		}
		s.Log.Warn("LISTING", fmt.Sprintf("privileged actor %s is deleting SOLD listing %s (buyer %s)", actor.Email, id, l.BuyerEmail))
	}

	if err := s.DB.DeleteListing(ctx, l); err != nil {
		return fmt.Errorf("failed to delete listing %s: %w", id, err)
	}
	s.Log.Info("LISTING", "deleted "+id)

	if s.Kafka != nil {
		if err := s.Kafka.PublishListingDeleted(*l); err != nil {
			s.Log.Warn("KAFKA", fmt.Sprintf("publish listing deleted %s: %v", id, err))
		}
	}
	return nil
}

// SplitForPartialSale carves the first requestedQty seats (by stored order)
// off a listing into a new listing that becomes the order target. The
// remainder keeps the original id and stays active. Only legal when the
// listing is unbundled, not sell-together, and requestedQty < quantity.
func (s *Service) SplitForPartialSale(ctx context.Context, id string, requestedQty int) (*models.Listing, error) {
	l, err := s.DB.GetListingByID(ctx, id)
	if err != nil {
		return nil, &models.NotFoundError{Resource: "listing", ID: id}
	}
	if l.Sold {
		return nil, &models.NotFoundError{Resource: "listing", ID: id}
	}
	if l.SellTogether {
		return nil, &models.ValidationError{Field: "sell_together", Reason: "listing must be sold as a whole"}
	}
	if l.BundleID != "" {
		return nil, &models.ValidationError{Field: "bundle_id", Reason: "bundled listings cannot be split"}
	}
	if requestedQty < 1 || requestedQty >= l.Quantity {
		return nil, &models.ValidationError{Field: "quantity", Reason: fmt.Sprintf("split quantity must be between 1 and %d", l.Quantity-1)}
	}

	carved := *l
	carved.ID = uuid.NewString()
	carved.Quantity = requestedQty
	carved.Seats = append([]string(nil), l.Seats[:requestedQty]...)
	carved.CreatedAt = time.Now().UTC()

	remainder := *l
	remainder.Quantity = l.Quantity - requestedQty
	remainder.Seats = append([]string(nil), l.Seats[requestedQty:]...)

	if err := s.DB.SplitListing(ctx, &remainder, &carved); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// The listing was sold between the read and the split.
			return nil, &models.NotFoundError{Resource: "listing", ID: id}
		}
		return nil, fmt.Errorf("failed to split listing %s: %w", id, err)
	}

	s.Log.Info("LISTING", fmt.Sprintf("split %s: carved %d seat(s) into %s, %d remain", id, requestedQty, carved.ID, remainder.Quantity))
	return &carved, nil
}

// validate enforces the listing invariants shared by create and update.
func validate(l *models.Listing, event *models.Event) error {
	if l.Quantity < 1 {
		return &models.ValidationError{Field: "quantity", Reason: "must be at least 1"}
	}
	if len(l.Seats) != l.Quantity {
		return &models.ValidationError{Field: "seats", Reason: fmt.Sprintf("expected %d seat(s), got %d", l.Quantity, len(l.Seats))}
	}
	if l.AskingPrice.IsNegative() {
		return &models.ValidationError{Field: "asking_price", Reason: "must not be negative"}
	}
	if l.FaceValue.IsNegative() {
		return &models.ValidationError{Field: "face_value", Reason: "must not be negative"}
	}
	switch l.UploadChoice {
	case models.UploadNow:
		if l.DocumentRef == "" {
			return &models.ValidationError{Field: "document_ref", Reason: "required when uploading now"}
		}
	case models.UploadLater:
		if l.UploadBy.IsZero() {
			return &models.ValidationError{Field: "upload_by", Reason: "required when uploading later"}
		}
		if !l.UploadBy.Before(event.StartsAt) {
			return &models.ValidationError{Field: "upload_by", Reason: "must be before the event date"}
		}
	default:
		return &models.ValidationError{Field: "upload_choice", Reason: "must be 'now' or 'later'"}
	}
	return nil
}

func applyPatch(l *models.Listing, p models.ListingPatch) {
	if p.Quantity != nil {
		l.Quantity = *p.Quantity
	}
	if p.Row != nil {
		l.Row = *p.Row
	}
	if p.Seats != nil {
		l.Seats = *p.Seats
	}
	if p.FaceValue != nil {
		l.FaceValue = *p.FaceValue
	}
	if p.AskingPrice != nil {
		l.AskingPrice = *p.AskingPrice
	}
	if p.TicketType != nil {
		l.TicketType = *p.TicketType
	}
	if p.UploadChoice != nil {
		l.UploadChoice = *p.UploadChoice
	}
	if p.DocumentRef != nil {
		l.DocumentRef = *p.DocumentRef
	}
	if p.UploadBy != nil {
		l.UploadBy = *p.UploadBy
	}
	if p.SellTogether != nil {
		l.SellTogether = *p.SellTogether
	}
	if p.Checked != nil {
		l.Checked = *p.Checked
	}
}

func (s *Service) sendCreateNotices(l *models.Listing, event *models.Event, section *models.Section) {
	if s.Notify == nil {
		return
	}
	body := fmt.Sprintf("Your tickets have been listed.\n\nEvent: %s\nSection: %s\nSeats: %d\nListing: %s\n",
		event.Name, section.Name, l.Quantity, l.ID)
	if err := s.Notify.Send(l.SellerEmail, "Listing created for "+event.Name, body, nil); err != nil {
		s.Log.Warn("EMAIL", fmt.Sprintf("seller notice for listing %s: %v", l.ID, err))
	}
	if s.AdminEmail != "" {
		adminBody := fmt.Sprintf("Seller %s listed %d seat(s) in %s for %s at %s.\n",
			l.SellerEmail, l.Quantity, section.Name, event.Name, l.AskingPrice.StringFixed(2))
		if err := s.Notify.Send(s.AdminEmail, "New listing: "+event.Name, adminBody, nil); err != nil {
			s.Log.Warn("EMAIL", fmt.Sprintf("admin notice for listing %s: %v", l.ID, err))
		}
	}
}
