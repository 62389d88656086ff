// Package payment wraps the card-payment provider behind a small gateway
// interface so order flow and tests never touch provider types directly.
package payment

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// SessionStatus is the provider-side state of a checkout session.
type SessionStatus string

const (
	SessionOpen     SessionStatus = "open"
	SessionPaid     SessionStatus = "paid"
	SessionExpired  SessionStatus = "expired"
	SessionUnpaid   SessionStatus = "unpaid"
	SessionCanceled SessionStatus = "canceled"
)

// CheckoutRequest describes the single line item a buyer pays for.
type CheckoutRequest struct {
	OrderID     string
	BuyerEmail  string
	Description string
	Amount      decimal.Decimal
	Currency    string
	Quantity    int
}

// CheckoutSession is the provider session the buyer is redirected to.
type CheckoutSession struct {
	ID  string
	URL string
}

// Gateway creates checkout sessions and reports their settlement status.
type Gateway interface {
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	SessionStatus(ctx context.Context, sessionID string) (SessionStatus, error)
}

// GatewayError wraps a provider failure with the operation that produced
// it. Handlers map it to 502.
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("payment gateway %s failed: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }
