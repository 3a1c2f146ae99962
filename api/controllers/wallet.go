package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/expertrait/expertrait-backend/api/responses"
	"github.com/expertrait/expertrait-backend/api/validators"
	"github.com/expertrait/expertrait-backend/internal/payouts"
	"github.com/expertrait/expertrait-backend/internal/wallet"
	"github.com/expertrait/expertrait-backend/pkg/db/models"
	"github.com/expertrait/expertrait-backend/pkg/enums"
	pkgerrors "github.com/expertrait/expertrait-backend/pkg/errors"
	"github.com/expertrait/expertrait-backend/pkg/logger"
	"github.com/expertrait/expertrait-backend/pkg/pagination"
)

type ledgerEntryResponse struct {
	ID               uuid.UUID  `json:"id"`
	Kind             string     `json:"kind"`
	Amount           string     `json:"amount"`
	Currency         string     `json:"currency"`
	RelatedBookingID *uuid.UUID `json:"related_booking_id,omitempty"`
	RelatedPayoutID  *uuid.UUID `json:"related_payout_id,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

type payoutResponse struct {
	ID                uuid.UUID `json:"id"`
	Amount            string    `json:"amount"`
	Currency          string    `json:"currency"`
	Status            string    `json:"status"`
	ProcessorPayoutID *string   `json:"processor_payout_id,omitempty"`
	FailureReason     *string   `json:"failure_reason,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

func toLedgerEntryResponse(entry models.WalletLedgerEntry) ledgerEntryResponse {
	return ledgerEntryResponse{
		ID:               entry.ID,
		Kind:             string(entry.Kind),
		Amount:           entry.Amount.StringFixed(2),
		Currency:         string(entry.Currency),
		RelatedBookingID: entry.RelatedBookingID,
		RelatedPayoutID:  entry.RelatedPayoutID,
		CreatedAt:        entry.CreatedAt,
	}
}

func toPayoutResponse(request models.PayoutRequest) payoutResponse {
	return payoutResponse{
		ID:                request.ID,
		Amount:            request.Amount.StringFixed(2),
		Currency:          string(request.Currency),
		Status:            string(request.Status),
		ProcessorPayoutID: request.ProcessorPayoutID,
		FailureReason:     request.FailureReason,
		CreatedAt:         request.CreatedAt,
	}
}

// WalletBalance returns the handler's current available balance.
func WalletBalance(svc wallet.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "wallet service unavailable"))
			return
		}

		handlerID, err := handlerIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		balance, err := svc.Balance(r.Context(), handlerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{
			"balance":  balance.StringFixed(2),
			"currency": string(enums.CurrencyUSD),
		})
	}
}

// WalletEntries returns the handler's cursor-paginated ledger.
func WalletEntries(svc wallet.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "wallet service unavailable"))
			return
		}

		handlerID, err := handlerIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.ListEntries(r.Context(), handlerID, pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := make([]ledgerEntryResponse, 0, len(page.Entries))
		for _, entry := range page.Entries {
			items = append(items, toLedgerEntryResponse(entry))
		}
		responses.WriteSuccess(w, map[string]any{
			"items":  items,
			"cursor": page.NextCursor,
		})
	}
}

// RequestPayout drains the handler's available balance to their
// connected account.
func RequestPayout(svc payouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payouts service unavailable"))
			return
		}

		handlerID, err := handlerIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		request, err := svc.RequestPayout(r.Context(), handlerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toPayoutResponse(*request))
	}
}

// ListPayouts returns the handler's payout history.
func ListPayouts(svc payouts.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payouts service unavailable"))
			return
		}

		handlerID, err := handlerIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.List(r.Context(), handlerID, pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := make([]payoutResponse, 0, len(page.Requests))
		for _, request := range page.Requests {
			items = append(items, toPayoutResponse(request))
		}
		responses.WriteSuccess(w, map[string]any{
			"items":  items,
			"cursor": page.NextCursor,
		})
	}
}
