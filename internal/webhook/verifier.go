package webhook

import (
	"errors"
	"fmt"
	"time"

	stripewebhook "github.com/stripe/stripe-go/v81/webhook"

	"github.com/telhawk-systems/payproof/internal/models"
)

// ErrAuthentication is returned for any delivery whose signature cannot be verified.
var ErrAuthentication = errors.New("webhook signature verification failed")

// DefaultTolerance is the maximum accepted age of a signed delivery.
const DefaultTolerance = stripewebhook.DefaultTolerance

// Verifier authenticates processor deliveries against the shared signing secret.
type Verifier struct {
	secret    string
	tolerance time.Duration
}

// NewVerifier binds the signing secret. A non-positive tolerance selects DefaultTolerance.
func NewVerifier(secret string, tolerance time.Duration) *Verifier {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Verifier{secret: secret, tolerance: tolerance}
}

// Verify checks the signature header over the exact payload bytes and decodes
// the event. The body is never re-serialized before the check.
func (v *Verifier) Verify(payload []byte, signatureHeader string) (*models.Event, error) {
	if v == nil || v.secret == "" {
		return nil, fmt.Errorf("%w: signing secret not configured", ErrAuthentication)
	}
	if signatureHeader == "" {
		return nil, fmt.Errorf("%w: missing signature header", ErrAuthentication)
	}

	event, err := stripewebhook.ConstructEventWithOptions(payload, signatureHeader, v.secret, stripewebhook.ConstructEventOptions{
		Tolerance:                v.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthentication, err)
	}

	out := &models.Event{
		ID:   event.ID,
		Type: string(event.Type),
	}
	if event.Data != nil {
		out.Data.Object = event.Data.Raw
	}
	return out, nil
}
