package webhooks

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"
)

const testSigningSecret = "whsec_test_secret"

type stubWebhookService struct {
	events []*stripe.Event
	err    error
}

func (s *stubWebhookService) HandleEvent(ctx context.Context, event *stripe.Event) error {
	s.events = append(s.events, event)
	return s.err
}

type stubGuard struct {
	processed bool
	marked    []string
	deleted   []string
}

func (s *stubGuard) CheckAndMark(ctx context.Context, eventID string) (bool, error) {
	s.marked = append(s.marked, eventID)
	return s.processed, nil
}

func (s *stubGuard) Delete(ctx context.Context, eventID string) error {
	s.deleted = append(s.deleted, eventID)
	return nil
}

type stubClient struct{}

func (stubClient) SigningSecret() string { return testSigningSecret }

func eventPayload(eventID, eventType, payoutID string) string {
	return fmt.Sprintf(`{"id":%q,"object":"event","api_version":%q,"type":%q,"data":{"object":{"id":%q}}}`,
		eventID, stripe.APIVersion, eventType, payoutID)
}

func signedRequest(t *testing.T, payload string) *http.Request {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    testSigningSecret,
		Timestamp: time.Now(),
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", strings.NewReader(string(signed.Payload)))
	req.Header.Set("Stripe-Signature", signed.Header)
	return req
}

func TestStripeWebhookVerifiesAndDispatches(t *testing.T) {
	svc := &stubWebhookService{}
	guard := &stubGuard{}
	handler := StripeWebhook(svc, stubClient{}, guard, nil)

	payload := eventPayload("evt_1", "payout.paid", "po_1")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, signedRequest(t, payload))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
	if len(svc.events) != 1 || svc.events[0].ID != "evt_1" {
		t.Fatalf("expected event dispatched, got %+v", svc.events)
	}
	if len(guard.marked) != 1 || guard.marked[0] != "evt_1" {
		t.Fatalf("expected idempotency mark for evt_1, got %v", guard.marked)
	}
}

func TestStripeWebhookRejectsBadSignature(t *testing.T) {
	svc := &stubWebhookService{}
	handler := StripeWebhook(svc, stubClient{}, &stubGuard{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", strings.NewReader(`{"id":"evt_2"}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=bogus")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code == http.StatusOK {
		t.Fatal("expected signature verification failure")
	}
	if len(svc.events) != 0 {
		t.Fatalf("expected no events dispatched, got %d", len(svc.events))
	}
}

func TestStripeWebhookSkipsAlreadyProcessedEvents(t *testing.T) {
	svc := &stubWebhookService{}
	guard := &stubGuard{processed: true}
	handler := StripeWebhook(svc, stubClient{}, guard, nil)

	payload := eventPayload("evt_3", "payout.paid", "po_3")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, signedRequest(t, payload))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if len(svc.events) != 0 {
		t.Fatalf("expected duplicate event skipped, got %d dispatches", len(svc.events))
	}
}

func TestStripeWebhookReleasesGuardOnFailure(t *testing.T) {
	svc := &stubWebhookService{err: context.DeadlineExceeded}
	guard := &stubGuard{}
	handler := StripeWebhook(svc, stubClient{}, guard, nil)

	payload := eventPayload("evt_4", "payout.failed", "po_4")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, signedRequest(t, payload))

	if resp.Code == http.StatusOK {
		t.Fatal("expected handler error to propagate")
	}
	if len(guard.deleted) != 1 || guard.deleted[0] != "evt_4" {
		t.Fatalf("expected guard release for evt_4, got %v", guard.deleted)
	}
}
