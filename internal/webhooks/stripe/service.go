package stripewebhook

import (
	"context"
	"encoding/json"

	"github.com/stripe/stripe-go/v84"

	"github.com/expertrait/expertrait-backend/pkg/enums"
	pkgerrors "github.com/expertrait/expertrait-backend/pkg/errors"
)

type payoutApplier interface {
	ApplyProcessorStatus(ctx context.Context, processorPayoutID string, status enums.PayoutStatus, failureReason *string) error
}

// Service maps Stripe payout webhooks onto payout request transitions.
type Service struct {
	payouts payoutApplier
}

func NewService(payouts payoutApplier) (*Service, error) {
	if payouts == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payouts service required")
	}
	return &Service{payouts: payouts}, nil
}

// HandleEvent applies a verified Stripe event. Unknown event types are
// acknowledged without action.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	switch event.Type {
	case stripe.EventTypePayoutPaid:
		payout, err := decodePayout(event)
		if err != nil {
			return err
		}
		return s.payouts.ApplyProcessorStatus(ctx, payout.ID, enums.PayoutStatusPaid, nil)

	case stripe.EventTypePayoutFailed, stripe.EventTypePayoutCanceled:
		payout, err := decodePayout(event)
		if err != nil {
			return err
		}
		var reason *string
		if payout.FailureMessage != "" {
			message := payout.FailureMessage
			reason = &message
		}
		return s.payouts.ApplyProcessorStatus(ctx, payout.ID, enums.PayoutStatusFailed, reason)

	default:
		return nil
	}
}

func decodePayout(event *stripe.Event) (*stripe.Payout, error) {
	var payout stripe.Payout
	if err := json.Unmarshal(event.Data.Raw, &payout); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode payout event")
	}
	if payout.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payout id missing")
	}
	return &payout, nil
}
