package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

const (
	TicketTypeETicket        = "e-ticket"
	TicketTypePaper          = "paper"
	TicketTypeMobileTransfer = "mobile-transfer"
)

const (
	UploadNow   = "now"
	UploadLater = "later"
)

// Listing is a seller's offer of Quantity seats in one section at one asking
// price. len(Seats) == Quantity always holds after a successful write.
// PriceForNormal and PriceForReseller are derived from AskingPrice and the
// owning event's rates. Listings sharing a non-empty BundleID are sold
// together atomically; a listing with SellTogether=false may be split for a
// partial sale.
type Listing struct {
	bun.BaseModel `bun:"table:listings"`

	ID          string   `bun:"id,pk" json:"id"`
	EventID     string   `bun:"event_id" json:"event_id"`
	SectionID   string   `bun:"section_id" json:"section_id"`
	SellerID    string   `bun:"seller_id" json:"seller_id"`
	SellerEmail string   `bun:"seller_email" json:"seller_email"`
	BuyerEmail  string   `bun:"buyer_email,nullzero" json:"buyer_email,omitempty"`
	Quantity    int      `bun:"quantity" json:"quantity"`
	Row         string   `bun:"row" json:"row"`
	Seats       []string `bun:"seats" json:"seats"`

	FaceValue        decimal.Decimal `bun:"face_value,type:numeric" json:"face_value"`
	AskingPrice      decimal.Decimal `bun:"asking_price,type:numeric" json:"asking_price"`
	PriceForNormal   decimal.Decimal `bun:"price_for_normal,type:numeric" json:"price_for_normal"`
	PriceForReseller decimal.Decimal `bun:"price_for_reseller,type:numeric" json:"price_for_reseller"`

	TicketType   string    `bun:"ticket_type" json:"ticket_type"`
	UploadChoice string    `bun:"upload_choice" json:"upload_choice"`
	DocumentRef  string    `bun:"document_ref,nullzero" json:"document_ref,omitempty"`
	UploadBy     time.Time `bun:"upload_by,nullzero" json:"upload_by,omitempty"`

	BundleID     string `bun:"bundle_id,nullzero" json:"bundle_id,omitempty"`
	SellTogether bool   `bun:"sell_together" json:"sell_together"`

	Checked   bool      `bun:"checked" json:"checked"`
	Ordered   bool      `bun:"ordered" json:"ordered"`
	Sold      bool      `bun:"sold" json:"sold"`
	CreatedAt time.Time `bun:"created_at" json:"created_at"`
}

// UnitPriceFor returns the buyer-facing per-ticket price for a buyer class.
func (l *Listing) UnitPriceFor(class BuyerClass) decimal.Decimal {
	if class == BuyerClassReseller {
		return l.PriceForReseller
	}
	return l.PriceForNormal
}

// ListingPatch carries the fields a listing update may change. Nil pointers
// leave the stored value untouched. Sold listings accept only Checked and
// DocumentRef.
type ListingPatch struct {
	Quantity     *int             `json:"quantity,omitempty"`
	Row          *string          `json:"row,omitempty"`
	Seats        *[]string        `json:"seats,omitempty"`
	FaceValue    *decimal.Decimal `json:"face_value,omitempty"`
	AskingPrice  *decimal.Decimal `json:"asking_price,omitempty"`
	TicketType   *string          `json:"ticket_type,omitempty"`
	UploadChoice *string          `json:"upload_choice,omitempty"`
	DocumentRef  *string          `json:"document_ref,omitempty"`
	UploadBy     *time.Time       `json:"upload_by,omitempty"`
	SellTogether *bool            `json:"sell_together,omitempty"`
	Checked      *bool            `json:"checked,omitempty"`
}

// TouchesOnlyFulfillment reports whether the patch is restricted to the
// fields that stay mutable after a listing is sold.
func (p ListingPatch) TouchesOnlyFulfillment() bool {
	return p.Quantity == nil && p.Row == nil && p.Seats == nil &&
		p.FaceValue == nil && p.AskingPrice == nil && p.TicketType == nil &&
		p.UploadChoice == nil && p.UploadBy == nil && p.SellTogether == nil
}
