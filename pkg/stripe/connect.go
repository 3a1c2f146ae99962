package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"
)

var errAccountIDRequired = errors.New("stripe connect account id is required")

// PayoutsEnabled reports whether the connected account can currently
// receive payouts. This is always a live lookup, never cached.
func (c *Client) PayoutsEnabled(ctx context.Context, accountID string) (bool, error) {
	if c == nil || c.api == nil {
		return false, errors.New("stripe client not initialized")
	}
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return false, errAccountIDRequired
	}

	account, err := c.api.V1Accounts.GetByID(ctx, accountID, &stripe.AccountRetrieveParams{})
	if err != nil {
		return false, fmt.Errorf("retrieving connect account %s: %w", accountID, err)
	}

	return account.PayoutsEnabled, nil
}

// CreatePayout submits a payout on the connected account's Stripe balance.
// The idempotency key makes retried submissions safe on the processor side.
func (c *Client) CreatePayout(ctx context.Context, accountID string, amountMinor int64, currency string, idempotencyKey string) (string, error) {
	if c == nil || c.api == nil {
		return "", errors.New("stripe client not initialized")
	}
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return "", errAccountIDRequired
	}
	if amountMinor <= 0 {
		return "", fmt.Errorf("payout amount must be positive, got %d", amountMinor)
	}

	params := &stripe.PayoutCreateParams{
		Amount:   stripe.Int64(amountMinor),
		Currency: stripe.String(strings.ToLower(currency)),
	}
	params.SetStripeAccount(accountID)
	if key := strings.TrimSpace(idempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}

	payout, err := c.api.V1Payouts.Create(ctx, params)
	if err != nil {
		return "", fmt.Errorf("creating payout on account %s: %w", accountID, err)
	}

	return payout.ID, nil
}
