package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripewebhook "github.com/stripe/stripe-go/v81/webhook"

	"github.com/telhawk-systems/payproof/common/httputil"
	"github.com/telhawk-systems/payproof/common/logging"
	"github.com/telhawk-systems/payproof/internal/handlers"
	"github.com/telhawk-systems/payproof/internal/models"
	"github.com/telhawk-systems/payproof/internal/proof"
	"github.com/telhawk-systems/payproof/internal/store"
	"github.com/telhawk-systems/payproof/internal/webhook"
)

const secret = "whsec_handler_test"

type mockGenerator struct {
	outcome *models.ProofOutcome
	err     error
	calls   int
}

func (m *mockGenerator) Generate(ctx context.Context, event *models.Event) (*models.ProofOutcome, error) {
	m.calls++
	return m.outcome, m.err
}

type mockRecords struct {
	records map[string]*models.ProofRecord
	listErr error
}

func (m *mockRecords) Load(ctx context.Context, name string) (*models.ProofRecord, error) {
	if r, ok := m.records[name]; ok {
		return r, nil
	}
	return nil, fmt.Errorf("%w: %s", store.ErrNotFound, name)
}

func (m *mockRecords) List(ctx context.Context) ([]string, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	names := []string{}
	for name := range m.records {
		names = append(names, name)
	}
	return names, nil
}

func setupHandler(gen *mockGenerator, records *mockRecords) *handlers.ProofHandler {
	if records == nil {
		records = &mockRecords{}
	}
	gateway := webhook.NewGateway(webhook.NewVerifier(secret, 0), gen, webhook.WithLogger(logging.Discard()))
	return handlers.NewProofHandler(gateway, gen, records, logging.Discard())
}

func signedRequest(t *testing.T, body string) *http.Request {
	t.Helper()
	signed := stripewebhook.GenerateTestSignedPayload(&stripewebhook.UnsignedPayload{
		Payload:   []byte(body),
		Secret:    secret,
		Timestamp: time.Now(),
	})
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(handlers.HeaderSignature, signed.Header)
	return req
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) httputil.ErrorBody {
	t.Helper()
	var body httputil.ErrorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestRoot(t *testing.T) {
	h := setupHandler(&mockGenerator{}, nil)
	w := httptest.NewRecorder()

	h.Root(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"Server is running","endpoints":{"webhook":"/webhook","generateProof":"/generate-proof","proofs":"/proofs"}}`, w.Body.String())
}

func TestWebhook_Verified(t *testing.T) {
	gen := &mockGenerator{outcome: models.Skipped("Event type payment_intent.created not handled for proof generation")}
	h := setupHandler(gen, nil)
	w := httptest.NewRecorder()

	h.Webhook(w, signedRequest(t, `{"id":"evt_1","type":"payment_intent.created","data":{"object":{"id":"pi_1"}}}`))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"received":true,"eventType":"payment_intent.created","proof":{"verified":false,"message":"Event type payment_intent.created not handled for proof generation"}}`, w.Body.String())
	assert.Equal(t, 1, gen.calls)
}

func TestWebhook_BadSignature(t *testing.T) {
	gen := &mockGenerator{outcome: models.Skipped("x")}
	h := setupHandler(gen, nil)
	w := httptest.NewRecorder()

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{"type":"payment_intent.succeeded"}`))
	req.Header.Set(handlers.HeaderSignature, "t=1,v1=deadbeef")
	h.Webhook(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeError(t, w)
	assert.Equal(t, "Webhook Error", body.Error)
	assert.NotEmpty(t, body.Details)
	assert.NotContains(t, w.Body.String(), secret)
	assert.Zero(t, gen.calls)
}

func TestWebhook_DispatchFailure(t *testing.T) {
	gen := &mockGenerator{err: fmt.Errorf("%w: no proof", proof.ErrGeneration)}
	h := setupHandler(gen, nil)
	w := httptest.NewRecorder()

	h.Webhook(w, signedRequest(t, `{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1"}}}`))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Webhook Error", decodeError(t, w).Error)
}

func TestWebhook_BodyTooLarge(t *testing.T) {
	gen := &mockGenerator{}
	h := setupHandler(gen, nil)
	w := httptest.NewRecorder()

	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(make([]byte, handlers.MaxBodyBytes+1)))
	h.Webhook(w, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Zero(t, gen.calls)
}

func TestGenerateProof(t *testing.T) {
	ts := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	verified := &models.ProofOutcome{
		Verified:  true,
		Payment:   &models.PaymentSnapshot{ID: "pi_123", Amount: 500, Currency: "usd", Status: "succeeded"},
		Timestamp: &ts,
		Proof:     json.RawMessage(`{"signatures":["0x1"]}`),
	}

	tests := []struct {
		name       string
		body       string
		gen        *mockGenerator
		wantStatus int
		wantBody   string
		wantError  string
	}{
		{
			name:       "verified",
			body:       `{"type":"payment_intent.succeeded","data":{"object":{"id":"pi_123"}}}`,
			gen:        &mockGenerator{outcome: verified},
			wantStatus: http.StatusOK,
			wantBody:   `{"verified":true,"payment":{"id":"pi_123","amount":500,"currency":"usd","status":"succeeded"},"timestamp":"2026-10-16T12:00:00Z","proof":{"signatures":["0x1"]}}`,
		},
		{
			name:       "skipped",
			body:       `{"type":"charge.refunded","data":{"object":{}}}`,
			gen:        &mockGenerator{outcome: models.Skipped("Event type charge.refunded not handled for proof generation")},
			wantStatus: http.StatusOK,
			wantBody:   `{"verified":false,"message":"Event type charge.refunded not handled for proof generation"}`,
		},
		{
			name:       "malformed json",
			body:       `{"type":`,
			gen:        &mockGenerator{},
			wantStatus: http.StatusBadRequest,
			wantError:  "Invalid event",
		},
		{
			name:       "generation failure",
			body:       `{"type":"payment_intent.succeeded","data":{"object":{"id":"pi_123"}}}`,
			gen:        &mockGenerator{err: fmt.Errorf("%w: empty proof", proof.ErrGeneration)},
			wantStatus: http.StatusBadRequest,
			wantError:  "Failed to generate proof",
		},
		{
			name:       "invalid event",
			body:       `{"type":"payment_intent.succeeded","data":{}}`,
			gen:        &mockGenerator{err: fmt.Errorf("%w: missing object", proof.ErrInvalidEvent)},
			wantStatus: http.StatusBadRequest,
			wantError:  "Failed to generate proof",
		},
		{
			name:       "engine timeout",
			body:       `{"type":"payment_intent.succeeded","data":{"object":{"id":"pi_123"}}}`,
			gen:        &mockGenerator{err: fmt.Errorf("%w: %w", proof.ErrAttestation, context.DeadlineExceeded)},
			wantStatus: http.StatusInternalServerError,
			wantError:  "Failed to generate proof",
		},
		{
			name:       "storage failure",
			body:       `{"type":"payment_intent.succeeded","data":{"object":{"id":"pi_123"}}}`,
			gen:        &mockGenerator{err: fmt.Errorf("save proof: %w", store.ErrStorage)},
			wantStatus: http.StatusInternalServerError,
			wantError:  "Failed to generate proof",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := setupHandler(tt.gen, nil)
			w := httptest.NewRecorder()

			h.GenerateProof(w, httptest.NewRequest(http.MethodPost, "/generate-proof", strings.NewReader(tt.body)))

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantBody != "" {
				assert.JSONEq(t, tt.wantBody, w.Body.String())
			}
			if tt.wantError != "" {
				body := decodeError(t, w)
				assert.Equal(t, tt.wantError, body.Error)
				assert.NotEmpty(t, body.Details)
			}
		})
	}
}

func TestListProofs(t *testing.T) {
	records := &mockRecords{records: map[string]*models.ProofRecord{"proof_pi_1_x_1.json": {}}}
	h := setupHandler(&mockGenerator{}, records)
	w := httptest.NewRecorder()

	h.ListProofs(w, httptest.NewRequest(http.MethodGet, "/proofs", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"proofs":["proof_pi_1_x_1.json"]}`, w.Body.String())
}

func TestListProofs_Empty(t *testing.T) {
	h := setupHandler(&mockGenerator{}, &mockRecords{})
	w := httptest.NewRecorder()

	h.ListProofs(w, httptest.NewRequest(http.MethodGet, "/proofs", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"proofs":[]}`, w.Body.String())
}

func TestListProofs_Error(t *testing.T) {
	h := setupHandler(&mockGenerator{}, &mockRecords{listErr: errors.New("io error")})
	w := httptest.NewRecorder()

	h.ListProofs(w, httptest.NewRequest(http.MethodGet, "/proofs", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "io error")
}

func TestGetProof(t *testing.T) {
	ts := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	record := &models.ProofRecord{
		Verified:  true,
		Payment:   models.PaymentSnapshot{ID: "pi_1", Amount: 100, Currency: "eur", Status: "succeeded"},
		Timestamp: ts,
		Proof:     json.RawMessage(`{"a":1}`),
	}
	h := setupHandler(&mockGenerator{}, &mockRecords{records: map[string]*models.ProofRecord{"proof_pi_1.json": record}})

	t.Run("found", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/proofs/proof_pi_1.json", nil)
		req.SetPathValue("name", "proof_pi_1.json")

		h.GetProof(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"verified":true,"payment":{"id":"pi_1","amount":100,"currency":"eur","status":"succeeded"},"timestamp":"2026-10-16T12:00:00Z","proof":{"a":1}}`, w.Body.String())
	})

	t.Run("missing", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/proofs/nope.json", nil)
		req.SetPathValue("name", "nope.json")

		h.GetProof(w, req)

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "Proof not found", decodeError(t, w).Error)
	})
}

func TestHealth(t *testing.T) {
	h := setupHandler(&mockGenerator{}, nil)
	w := httptest.NewRecorder()

	h.Health(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, w.Body.String())
}

type fixedStats proof.Stats

func (s fixedStats) Stats() proof.Stats { return proof.Stats(s) }

func TestHealth_WithStats(t *testing.T) {
	gateway := webhook.NewGateway(webhook.NewVerifier(secret, 0), &mockGenerator{}, webhook.WithLogger(logging.Discard()))
	h := handlers.NewProofHandler(gateway, &mockGenerator{}, nil, logging.Discard(),
		handlers.WithStats(fixedStats{Generated: 3, Skipped: 2, Failed: 1}))
	w := httptest.NewRecorder()

	h.Health(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"healthy","proofs":{"generated":3,"skipped":2,"failed":1}}`, w.Body.String())
}
