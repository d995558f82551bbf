// Package payment talks to Stripe: it creates PaymentIntents for checkout
// and confirms them before an order is stored.
package payment

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	"shopnest-backend/internal/apperr"
	"shopnest-backend/internal/config"
)

// intents is the slice of the Stripe API used here.
type intents interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type Gateway struct {
	intents        intents
	currency       string
	publishableKey string
}

func NewStripe(cfg config.PaymentConfig) *Gateway {
	sc := &client.API{}
	sc.Init(cfg.StripeSecretKey, nil)
	return &Gateway{
		intents:        sc.PaymentIntents,
		currency:       strings.ToLower(cfg.Currency),
		publishableKey: cfg.StripePublishableKey,
	}
}

// PublishableKey is handed to the storefront for Stripe.js.
func (g *Gateway) PublishableKey() string { return g.publishableKey }

// MinorUnits converts an amount in major units to the integer Stripe
// expects, rounding half away from zero.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// CreateIntent starts a payment of amount and returns its client secret.
func (g *Gateway) CreateIntent(ctx context.Context, amount decimal.Decimal) (string, error) {
	if !amount.IsPositive() {
		return "", apperr.Validation("Amount must be greater than zero")
	}
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(MinorUnits(amount)),
		Currency: stripe.String(g.currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	params.AddMetadata("company", "ShopNest")
	pi, err := g.intents.New(params)
	if err != nil {
		return "", apperr.Upstream("Payment could not be started", err)
	}
	return pi.ClientSecret, nil
}

// VerifyPayment succeeds only for a PaymentIntent Stripe reports as
// succeeded.
func (g *Gateway) VerifyPayment(ctx context.Context, paymentID string) error {
	if paymentID == "" {
		return apperr.Validation("Payment reference is required")
	}
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := g.intents.Get(paymentID, params)
	if err != nil {
		if se, ok := err.(*stripe.Error); ok && se.HTTPStatusCode == 404 {
			return apperr.Validation("Unknown payment reference")
		}
		return apperr.Upstream("Payment could not be verified", err)
	}
	if pi.Status != stripe.PaymentIntentStatusSucceeded {
		return apperr.Validation(fmt.Sprintf("Payment has not succeeded (status %s)", pi.Status))
	}
	return nil
}
