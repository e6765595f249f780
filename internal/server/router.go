package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/telhawk-systems/payproof/common/middleware"
	"github.com/telhawk-systems/payproof/internal/handlers"
)

// NewRouter constructs a ServeMux with the proof service routes registered.
func NewRouter(h *handlers.ProofHandler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", h.Root)

	// Processor webhooks and proof generation
	mux.HandleFunc("POST /webhook", h.Webhook)
	if h.ServesGenerate() {
		mux.HandleFunc("POST /generate-proof", h.GenerateProof)
	}

	// Stored proofs
	mux.HandleFunc("GET /proofs", h.ListProofs)
	mux.HandleFunc("GET /proofs/{name}", h.GetProof)

	// Health endpoints
	mux.HandleFunc("GET /healthz", h.Health)

	// Prometheus metrics
	mux.Handle("GET /metrics", promhttp.Handler())

	return middleware.RequestID(mux)
}
