package payment

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/client"

	"ms-marketplace/internal/logger"
	"ms-marketplace/internal/pricing"
)

// StripeGateway implements Gateway on Stripe hosted checkout.
type StripeGateway struct {
	client    *client.API
	log       *logger.Logger
	returnURL string
}

// NewStripeGateway builds a gateway with its own HTTP client so a slow
// provider cannot hold order requests past the timeout.
func NewStripeGateway(secretKey, returnURL string, timeout time.Duration, log *logger.Logger) (*StripeGateway, error) {
	if secretKey == "" {
		return nil, fmt.Errorf("stripe secret key is not configured")
	}

	backends := stripe.NewBackends(&http.Client{Timeout: timeout})
	sc := client.New(secretKey, backends)

	log.Info("STRIPE", "stripe client initialized")
	return &StripeGateway{client: sc, log: log, returnURL: returnURL}, nil
}

// CreateCheckout opens a hosted checkout session for the order's total.
// The order id travels in the session metadata and in the success URL so
// the return leg can find the order without provider webhooks.
func (g *StripeGateway) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	successURL := fmt.Sprintf("%s/%s/return?status=success&session_id={CHECKOUT_SESSION_ID}", g.returnURL, req.OrderID)
	cancelURL := fmt.Sprintf("%s/%s/return?status=cancel", g.returnURL, req.OrderID)

	params := &stripe.CheckoutSessionParams{
		Params:             stripe.Params{Context: ctx},
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		CustomerEmail:      stripe.String(req.BuyerEmail),
		SuccessURL:         stripe.String(successURL),
		CancelURL:          stripe.String(cancelURL),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Quantity: stripe.Int64(1),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(req.Currency),
					UnitAmount: stripe.Int64(pricing.MinorUnits(req.Amount)),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.Description),
					},
				},
			},
		},
	}
	params.AddMetadata("order_id", req.OrderID)

	sess, err := g.client.CheckoutSessions.New(params)
	if err != nil {
		g.log.Error("STRIPE", fmt.Sprintf("checkout session for order %s: %v", req.OrderID, err))
		return nil, &GatewayError{Op: "create checkout", Err: err}
	}

	g.log.Info("STRIPE", fmt.Sprintf("checkout session %s opened for order %s (%s %s)",
		sess.ID, req.OrderID, req.Amount.StringFixed(2), req.Currency))
	return &CheckoutSession{ID: sess.ID, URL: sess.URL}, nil
}

// SessionStatus fetches the session's payment status. The session id comes
// from the buyer's return redirect, so it is never trusted on its own: the
// caller matches it against the id stored on the order.
func (g *StripeGateway) SessionStatus(ctx context.Context, sessionID string) (SessionStatus, error) {
	params := &stripe.CheckoutSessionParams{Params: stripe.Params{Context: ctx}}
	sess, err := g.client.CheckoutSessions.Get(sessionID, params)
	if err != nil {
		g.log.Error("STRIPE", fmt.Sprintf("fetch session %s: %v", sessionID, err))
		return "", &GatewayError{Op: "fetch session", Err: err}
	}

	switch sess.PaymentStatus {
	case stripe.CheckoutSessionPaymentStatusPaid:
		return SessionPaid, nil
	case stripe.CheckoutSessionPaymentStatusUnpaid:
		if sess.Status == stripe.CheckoutSessionStatusExpired {
			return SessionExpired, nil
		}
		return SessionUnpaid, nil
	case stripe.CheckoutSessionPaymentStatusNoPaymentRequired:
		return SessionPaid, nil
	default:
		return SessionStatus(sess.PaymentStatus), nil
	}
}
