package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// Sale is the payout obligation for a completed order, one-to-one with the
// order. Amount is the seller's gross asking-price proceeds, not the
// markup-inclusive amount the buyer paid.
type Sale struct {
	bun.BaseModel `bun:"table:sales"`

	ID          int64           `bun:"id,pk,autoincrement" json:"id"`
	OrderID     string          `bun:"order_id,unique" json:"order_id"`
	SellerID    string          `bun:"seller_id" json:"seller_id"`
	SellerEmail string          `bun:"seller_email" json:"seller_email"`
	Amount      decimal.Decimal `bun:"amount,type:numeric" json:"amount"`
	PayoutDate  time.Time       `bun:"payout_date,nullzero" json:"payout_date,omitempty"`
	CreatedAt   time.Time       `bun:"created_at" json:"created_at"`
}
