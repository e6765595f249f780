// Package handlers exposes the proof service over HTTP.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/telhawk-systems/payproof/common/httputil"
	"github.com/telhawk-systems/payproof/common/logging"
	"github.com/telhawk-systems/payproof/internal/models"
	"github.com/telhawk-systems/payproof/internal/proof"
	"github.com/telhawk-systems/payproof/internal/store"
	"github.com/telhawk-systems/payproof/internal/transport"
	"github.com/telhawk-systems/payproof/internal/webhook"
)

// MaxBodyBytes caps request bodies on the public endpoints.
const MaxBodyBytes = 1 << 20

// HeaderSignature carries the processor's webhook signature.
const HeaderSignature = "Stripe-Signature"

// RecordReader reads stored proof records.
type RecordReader interface {
	Load(ctx context.Context, name string) (*models.ProofRecord, error)
	List(ctx context.Context) ([]string, error)
}

// StatsSource reports proof generation counters.
type StatsSource interface {
	Stats() proof.Stats
}

// ProofHandler serves webhook intake, proof generation and proof retrieval.
type ProofHandler struct {
	gateway   *webhook.Gateway
	generator webhook.Generator
	records   RecordReader
	stats     StatsSource
	generate  bool
	logger    *logging.Logger
}

// Option configures a ProofHandler.
type Option func(*ProofHandler)

// WithStats reports the source's counters on /healthz. Processes that only
// forward to a remote proof service leave it unset.
func WithStats(src StatsSource) Option {
	return func(h *ProofHandler) {
		h.stats = src
	}
}

// WithGenerateEndpoint toggles POST /generate-proof. The endpoint accepts
// unsigned events and spends the processor credential, so deployments that
// dispatch in-process or over NATS may turn it off.
func WithGenerateEndpoint(enabled bool) Option {
	return func(h *ProofHandler) {
		h.generate = enabled
	}
}

// NewProofHandler constructs a handler. generator is the local orchestrator
// serving /generate-proof; the gateway may dispatch elsewhere.
func NewProofHandler(gateway *webhook.Gateway, generator webhook.Generator, records RecordReader, logger *logging.Logger, opts ...Option) *ProofHandler {
	if logger == nil {
		logger = logging.Default()
	}
	h := &ProofHandler{
		gateway:   gateway,
		generator: generator,
		records:   records,
		generate:  true,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RootResponse describes the service.
type RootResponse struct {
	Status    string            `json:"status"`
	Endpoints map[string]string `json:"endpoints"`
}

// ServesGenerate reports whether POST /generate-proof should be routed.
func (h *ProofHandler) ServesGenerate() bool {
	return h.generate
}

// Root handles GET /.
func (h *ProofHandler) Root(w http.ResponseWriter, r *http.Request) {
	endpoints := map[string]string{
		"webhook": "/webhook",
		"proofs":  "/proofs",
	}
	if h.generate {
		endpoints["generateProof"] = "/generate-proof"
	}
	httputil.WriteJSON(w, http.StatusOK, RootResponse{
		Status:    "Server is running",
		Endpoints: endpoints,
	})
}

// Webhook handles POST /webhook. The body is read verbatim for signature checks.
func (h *ProofHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httputil.WriteErrorDetails(w, status, "Webhook Error", err.Error())
		return
	}

	receipt, err := h.gateway.Handle(r.Context(), body, r.Header.Get(HeaderSignature))
	if err != nil {
		httputil.WriteErrorDetails(w, transport.StatusFor(err), "Webhook Error", err.Error())
		return
	}

	httputil.WriteJSON(w, http.StatusOK, receipt)
}

// GenerateProof handles POST /generate-proof.
func (h *ProofHandler) GenerateProof(w http.ResponseWriter, r *http.Request) {
	var event models.Event
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes)).Decode(&event); err != nil {
		httputil.WriteErrorDetails(w, http.StatusBadRequest, "Invalid event", err.Error())
		return
	}

	outcome, err := h.generator.Generate(r.Context(), &event)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "Error generating proof",
			logging.EventID(event.ID),
			logging.Error(err),
		)
		httputil.WriteErrorDetails(w, transport.StatusFor(err), "Failed to generate proof", err.Error())
		return
	}

	httputil.WriteJSON(w, http.StatusOK, outcome)
}

// ListResponse lists stored record names.
type ListResponse struct {
	Proofs []string `json:"proofs"`
}

// ListProofs handles GET /proofs.
func (h *ProofHandler) ListProofs(w http.ResponseWriter, r *http.Request) {
	names, err := h.records.List(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "Failed to list proofs", logging.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "Failed to list proofs")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ListResponse{Proofs: names})
}

// GetProof handles GET /proofs/{name}.
func (h *ProofHandler) GetProof(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	record, err := h.records.Load(r.Context(), name)
	switch {
	case errors.Is(err, store.ErrNotFound):
		httputil.WriteErrorDetails(w, http.StatusNotFound, "Proof not found", name)
		return
	case err != nil:
		h.logger.ErrorContext(r.Context(), "Failed to load proof", logging.ProofName(name), logging.Error(err))
		httputil.WriteError(w, http.StatusInternalServerError, "Failed to load proof")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, record)
}

// HealthResponse is the /healthz body.
type HealthResponse struct {
	Status string       `json:"status"`
	Proofs *proof.Stats `json:"proofs,omitempty"`
}

// Health handles GET /healthz.
func (h *ProofHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "healthy"}
	if h.stats != nil {
		stats := h.stats.Stats()
		resp.Proofs = &stats
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}
