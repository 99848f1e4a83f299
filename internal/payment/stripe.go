package payment

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// ErrRejected marks failures where the provider answered with an error payload,
// as opposed to the request never completing
var ErrRejected = errors.New("payment provider rejected request")

// CurrencyUSD is the only currency the marketplace charges in
const CurrencyUSD = "usd"

// SessionIDPlaceholder is substituted by Stripe in the success URL
const SessionIDPlaceholder = "{CHECKOUT_SESSION_ID}"

// CheckoutRequest describes a one-item hosted checkout
type CheckoutRequest struct {
	AmountMinor int64
	Currency    string
	ProductName string
	Description string
	SuccessURL  string
	CancelURL   string
}

// CheckoutSession is the provider's answer to a CheckoutRequest
type CheckoutSession struct {
	ID  string
	URL string
}

// ToMinorUnits converts a price in dollars to cents, rounding to the nearest cent
func ToMinorUnits(price decimal.Decimal) int64 {
	return price.Shift(2).Round(0).IntPart()
}

// StripeProvider creates Stripe Checkout sessions
type StripeProvider struct {
	api *client.API
}

// NewStripeProvider creates a provider using the given secret key
func NewStripeProvider(secretKey string) *StripeProvider {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &StripeProvider{api: api}
}

// CreateCheckoutSession creates a hosted payment page for a single item
func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:         stripe.String(req.SuccessURL),
		CancelURL:          stripe.String(req.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(req.Currency),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name:        stripe.String(req.ProductName),
						Description: descriptionParam(req.Description),
					},
					UnitAmount: stripe.Int64(req.AmountMinor),
				},
				Quantity: stripe.Int64(1),
			},
		},
	}
	params.Context = ctx

	s, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) {
			return nil, fmt.Errorf("%w: %s", ErrRejected, stripeErr.Msg)
		}
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}

	return &CheckoutSession{ID: s.ID, URL: s.URL}, nil
}

// Stripe rejects empty product descriptions
func descriptionParam(d string) *string {
	if d == "" {
		return nil
	}
	return stripe.String(d)
}
