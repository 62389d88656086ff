package models

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// Event is a resellable event. NormalRate and ResellerRate are the service
// charges (percentages) applied on top of a seller's asking price for the
// two buyer classes. TotalTickets and SoldTickets are derived from the
// listings beneath the event and must only be written by the aggregate
// maintainer.
type Event struct {
	bun.BaseModel `bun:"table:events"`

	ID           string          `bun:"id,pk" json:"id"`
	Name         string          `bun:"name" json:"name"`
	Venue        string          `bun:"venue" json:"venue"`
	StartsAt     time.Time       `bun:"starts_at" json:"starts_at"`
	NormalRate   decimal.Decimal `bun:"normal_rate,type:numeric" json:"normal_rate"`
	ResellerRate decimal.Decimal `bun:"reseller_rate,type:numeric" json:"reseller_rate"`
	TotalTickets int             `bun:"total_tickets" json:"total_tickets"`
	SoldTickets  int             `bun:"sold_tickets" json:"sold_tickets"`
	CreatedAt    time.Time       `bun:"created_at" json:"created_at"`
}

// Expired reports whether the event has already started. Expired events
// accept no new listings and no new orders.
func (e *Event) Expired(now time.Time) bool {
	return !e.StartsAt.After(now)
}

// Section is a priced tier within an event. LowerPrice and UpperPrice span
// the asking prices of the section's active (unsold, non-zero-priced)
// listings and are both zero when no such listing exists.
type Section struct {
	bun.BaseModel `bun:"table:sections"`

	ID         string          `bun:"id,pk" json:"id"`
	EventID    string          `bun:"event_id" json:"event_id"`
	Name       string          `bun:"name" json:"name"`
	LowerPrice decimal.Decimal `bun:"lower_price,type:numeric" json:"lower_price"`
	UpperPrice decimal.Decimal `bun:"upper_price,type:numeric" json:"upper_price"`
	CreatedAt  time.Time       `bun:"created_at" json:"created_at"`
}
