// Package transport carries proof generation requests from the webhook gateway
// to a proof orchestrator that may live in another process.
package transport

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/telhawk-systems/payproof/internal/proof"
	"github.com/telhawk-systems/payproof/internal/store"
	"github.com/telhawk-systems/payproof/internal/webhook"
)

// ErrTransport means the remote generator could not be reached or answered garbage.
var ErrTransport = errors.New("proof transport failed")

// RemoteError is a failure reported by the remote generator.
type RemoteError struct {
	Status  int
	Message string
	Details string
}

func (e *RemoteError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("remote generator status %d: %s: %s", e.Status, e.Message, e.Details)
	}
	return fmt.Sprintf("remote generator status %d: %s", e.Status, e.Message)
}

// StatusFor maps an error from the proof path to an HTTP status code.
// Both the HTTP handlers and the NATS responder answer with it.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, webhook.ErrAuthentication):
		return http.StatusBadRequest
	case errors.Is(err, webhook.ErrDispatch):
		return http.StatusInternalServerError
	case errors.Is(err, proof.ErrInvalidEvent), errors.Is(err, proof.ErrGeneration):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
