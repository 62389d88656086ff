package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

const (
	OrderPending   = "pending"
	OrderCompleted = "completed"
	OrderFailed    = "failed"
)

// Order is an immutable snapshot of a purchase attempt. Every descriptive
// field is copied from the listing (or bundle) at initiation time and never
// re-read afterwards: TotalAmount stays authoritative even if the listing is
// re-priced while the buyer sits on the gateway's checkout page. Status only
// moves pending -> completed|failed and is terminal once non-pending.
type Order struct {
	bun.BaseModel `bun:"table:orders"`

	ID            string    `bun:"id,pk" json:"id"`
	EventID       string    `bun:"event_id" json:"event_id"`
	EventName     string    `bun:"event_name" json:"event_name"`
	EventStartsAt time.Time `bun:"event_starts_at" json:"event_starts_at"`
	SectionName   string    `bun:"section_name" json:"section_name"`
	Row           string    `bun:"row" json:"row"`
	Seats         []string  `bun:"seats" json:"seats"`
	Quantity      int       `bun:"quantity" json:"quantity"`

	FaceValue   decimal.Decimal `bun:"face_value,type:numeric" json:"face_value"`
	AskingPrice decimal.Decimal `bun:"asking_price,type:numeric" json:"asking_price"`
	UnitPrice   decimal.Decimal `bun:"unit_price,type:numeric" json:"unit_price"`
	TotalAmount decimal.Decimal `bun:"total_amount,type:numeric" json:"total_amount"`

	// SellerProceeds is the gross asking-price total owed to the seller,
	// summed across the order's listings at initiation.
	SellerProceeds decimal.Decimal `bun:"seller_proceeds,type:numeric" json:"seller_proceeds"`

	ListingIDs  []string `bun:"listing_ids" json:"listing_ids"`
	SellerID    string   `bun:"seller_id" json:"seller_id"`
	SellerEmail string   `bun:"seller_email" json:"seller_email"`
	BuyerEmail  string   `bun:"buyer_email" json:"buyer_email"`
	BuyerClass  string   `bun:"buyer_class" json:"buyer_class"`

	SessionID   string `bun:"session_id,nullzero" json:"session_id,omitempty"`
	CheckoutURL string `bun:"checkout_url,nullzero" json:"checkout_url,omitempty"`

	Status              string    `bun:"status" json:"status"`
	FulfillmentRecorded bool      `bun:"fulfillment_recorded" json:"fulfillment_recorded"`
	PaidToSeller        bool      `bun:"paid_to_seller" json:"paid_to_seller"`
	CreatedAt           time.Time `bun:"created_at" json:"created_at"`
}

// Terminal reports whether the order has reached completed or failed.
func (o *Order) Terminal() bool {
	return o.Status != OrderPending
}
