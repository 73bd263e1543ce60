// Package billing talks to the billing provider. Calls are made exactly once:
// cancellation is irreversible, so network retries are disabled.
package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"

	"github.com/aidar/tenant-purge/internal/config"
)

// ErrNotConfigured is returned when no provider API key is set
var ErrNotConfigured = errors.New("stripe api key is required")

// Unconfigured stands in for the provider when no API key is set. Every call
// fails, so subscriptions end up as residual tasks instead of being skipped.
type Unconfigured struct{}

func (Unconfigured) IsActive(context.Context, string) (bool, error) {
	return false, ErrNotConfigured
}

func (Unconfigured) CancelNow(context.Context, string) error {
	return ErrNotConfigured
}

// StripeClient re-verifies and cancels subscriptions at Stripe
type StripeClient struct {
	api    *client.API
	logger *slog.Logger
}

// NewStripeClient creates a new StripeClient. An empty APIURL means the
// public Stripe endpoint.
func NewStripeClient(cfg config.BillingConfig, logger *slog.Logger) (*StripeClient, error) {
	if cfg.APIKey == "" {
		return nil, ErrNotConfigured
	}

	backendCfg := &stripe.BackendConfig{
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &leveledLogger{logger: logger},
	}
	if cfg.APIURL != "" {
		backendCfg.URL = stripe.String(cfg.APIURL)
	}

	api := &client.API{}
	api.Init(cfg.APIKey, &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, backendCfg),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, backendCfg),
	})

	return &StripeClient{api: api, logger: logger}, nil
}

// IsActive reports whether the subscription still bills. A subscription
// Stripe no longer knows about is treated as inactive.
func (c *StripeClient) IsActive(ctx context.Context, providerID string) (bool, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx

	sub, err := c.api.Subscriptions.Get(providerID, params)
	if err != nil {
		if isMissing(err) {
			c.logger.Warn("Subscription unknown to billing provider", "subscription", providerID)
			return false, nil
		}
		return false, fmt.Errorf("failed to fetch subscription %s: %w", providerID, err)
	}

	switch sub.Status {
	case stripe.SubscriptionStatusCanceled, stripe.SubscriptionStatusIncompleteExpired:
		return false, nil
	default:
		return true, nil
	}
}

// CancelNow cancels the subscription immediately, without waiting for the
// end of the billing period and without proration credit
func (c *StripeClient) CancelNow(ctx context.Context, providerID string) error {
	params := &stripe.SubscriptionCancelParams{
		InvoiceNow: stripe.Bool(false),
		Prorate:    stripe.Bool(false),
	}
	params.Context = ctx

	sub, err := c.api.Subscriptions.Cancel(providerID, params)
	if err != nil {
		return fmt.Errorf("failed to cancel subscription %s: %w", providerID, err)
	}
	if sub.Status != stripe.SubscriptionStatusCanceled {
		return fmt.Errorf("subscription %s is %s after cancellation", providerID, sub.Status)
	}

	c.logger.Info("Subscription cancelled", "subscription", providerID)
	return nil
}

func isMissing(err error) bool {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return false
	}
	return stripeErr.HTTPStatusCode == http.StatusNotFound || stripeErr.Code == stripe.ErrorCodeResourceMissing
}

// leveledLogger routes stripe-go logging into slog
type leveledLogger struct {
	logger *slog.Logger
}

func (l *leveledLogger) Debugf(format string, v ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, v...), "component", "stripe")
}

func (l *leveledLogger) Infof(format string, v ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, v...), "component", "stripe")
}

func (l *leveledLogger) Warnf(format string, v ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, v...), "component", "stripe")
}

func (l *leveledLogger) Errorf(format string, v ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, v...), "component", "stripe")
}
