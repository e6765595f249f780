// Package proof turns verified payment events into stored proof records.
package proof

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/stripe/stripe-go/v81"

	"github.com/telhawk-systems/payproof/common/logging"
	"github.com/telhawk-systems/payproof/internal/attestation"
	"github.com/telhawk-systems/payproof/internal/dedup"
	"github.com/telhawk-systems/payproof/internal/metrics"
	"github.com/telhawk-systems/payproof/internal/models"
)

var (
	// ErrInvalidEvent means the event is handled but its payload is unusable.
	ErrInvalidEvent = errors.New("invalid event")

	// ErrGeneration means the engine answered without a usable proof.
	ErrGeneration = errors.New("failed to generate proof")

	// ErrAttestation means the engine could not be reached or failed.
	ErrAttestation = errors.New("attestation engine failed")
)

// DefaultAPIBaseURL is the processor API the proofs are taken against.
const DefaultAPIBaseURL = "https://api.stripe.com"

// DefaultHandledEvents is the allow-list of event types that produce proofs.
var DefaultHandledEvents = []string{string(stripe.EventTypePaymentIntentSucceeded)}

// Fetcher obtains a proof blob from the attestation engine.
type Fetcher interface {
	FetchProof(ctx context.Context, req *attestation.Request) (json.RawMessage, error)
}

// RecordStore persists proof records.
type RecordStore interface {
	Save(ctx context.Context, record *models.ProofRecord) (string, error)
}

// Config holds processor API settings.
type Config struct {
	APIBaseURL string
	// APIKey authorizes the engine's call to the processor API. It is passed
	// to the engine as a secret header only.
	APIKey        string
	HandledEvents []string
}

// Orchestrator decides whether an event yields a proof, obtains it and stores it.
type Orchestrator struct {
	fetcher    Fetcher
	store      RecordStore
	claimer    dedup.Claimer
	apiBaseURL string
	apiKey     string
	handled    map[string]bool
	selector   attestation.Selector
	now        func() time.Time
	logger     *logging.Logger

	generated atomic.Uint64
	skipped   atomic.Uint64
	failed    atomic.Uint64
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithClaimer enables first-writer-wins deduplication of deliveries.
func WithClaimer(c dedup.Claimer) Option {
	return func(o *Orchestrator) { o.claimer = c }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithClock overrides the record timestamp source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New builds an Orchestrator around an attestation fetcher and a record store.
func New(fetcher Fetcher, store RecordStore, cfg Config, opts ...Option) *Orchestrator {
	baseURL := strings.TrimRight(cfg.APIBaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultAPIBaseURL
	}
	events := cfg.HandledEvents
	if len(events) == 0 {
		events = DefaultHandledEvents
	}
	handled := make(map[string]bool, len(events))
	for _, e := range events {
		handled[e] = true
	}

	o := &Orchestrator{
		fetcher:    fetcher,
		store:      store,
		claimer:    dedup.NoOpClaimer{},
		apiBaseURL: baseURL,
		apiKey:     cfg.APIKey,
		handled:    handled,
		selector:   attestation.PaymentIntentSelector(),
		now:        time.Now,
		logger:     logging.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Generate produces and stores a proof for a handled event. Unhandled event
// types yield a non-verified outcome and no side effects.
func (o *Orchestrator) Generate(ctx context.Context, event *models.Event) (*models.ProofOutcome, error) {
	if event == nil {
		return nil, fmt.Errorf("%w: empty event", ErrInvalidEvent)
	}

	if !o.handled[event.Type] {
		o.skipped.Add(1)
		metrics.ProofsTotal.WithLabelValues("skipped").Inc()
		o.logger.InfoContext(ctx, "Event type not handled for proof generation",
			logging.EventType(event.Type),
			logging.EventID(event.ID),
		)
		return models.Skipped(fmt.Sprintf("Event type %s not handled for proof generation", event.Type)), nil
	}

	payment, err := event.Payment()
	if err != nil {
		o.failed.Add(1)
		metrics.ProofsTotal.WithLabelValues("invalid").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}

	o.logger.InfoContext(ctx, "Payment verified",
		logging.EventID(event.ID),
		logging.PaymentID(payment.ID),
		slog.Int64("amount", payment.Amount),
		slog.String("currency", payment.Currency),
	)

	claimKey := event.ID
	if claimKey == "" {
		claimKey = "payment:" + payment.ID
	}
	claimed, err := o.claimer.Claim(ctx, claimKey)
	if err != nil {
		o.failed.Add(1)
		metrics.ProofsTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("claim delivery: %w", err)
	}
	if !claimed {
		o.skipped.Add(1)
		metrics.ProofsTotal.WithLabelValues("duplicate").Inc()
		o.logger.InfoContext(ctx, "Duplicate delivery, proof already claimed",
			logging.EventID(event.ID),
			logging.PaymentID(payment.ID),
		)
		return models.Skipped(fmt.Sprintf("Proof for payment %s already claimed by an earlier delivery", payment.ID)), nil
	}

	record, err := o.produce(ctx, payment)
	if err != nil {
		o.failed.Add(1)
		metrics.ProofsTotal.WithLabelValues("failed").Inc()
		if relErr := o.claimer.Release(context.WithoutCancel(ctx), claimKey); relErr != nil {
			o.logger.WarnContext(ctx, "Failed to release delivery claim", logging.Error(relErr))
		}
		o.logger.ErrorContext(ctx, "Error generating proof",
			logging.PaymentID(payment.ID),
			logging.Error(err),
		)
		return nil, err
	}

	o.generated.Add(1)
	metrics.ProofsTotal.WithLabelValues("generated").Inc()
	return record.Outcome(), nil
}

func (o *Orchestrator) produce(ctx context.Context, payment models.PaymentSnapshot) (*models.ProofRecord, error) {
	o.logger.InfoContext(ctx, "Generating proof", logging.PaymentID(payment.ID))

	blob, err := o.fetcher.FetchProof(ctx, o.request(payment))
	switch {
	case errors.Is(err, attestation.ErrNoProof):
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	case err != nil:
		return nil, fmt.Errorf("%w: %w", ErrAttestation, err)
	case len(blob) == 0:
		return nil, fmt.Errorf("%w: empty proof", ErrGeneration)
	}

	record := &models.ProofRecord{
		Verified:  true,
		Payment:   payment,
		Timestamp: o.now().UTC(),
		Proof:     blob,
	}

	// The proof exists at this point; a caller hanging up must not lose it.
	name, err := o.store.Save(context.WithoutCancel(ctx), record)
	if err != nil {
		return nil, fmt.Errorf("save proof: %w", err)
	}

	o.logger.InfoContext(ctx, "Proof saved",
		logging.PaymentID(payment.ID),
		logging.ProofName(name),
	)
	return record, nil
}

// request targets the processor's read API for the payment and captures only
// the snapshot fields.
func (o *Orchestrator) request(payment models.PaymentSnapshot) *attestation.Request {
	return &attestation.Request{
		URL:      fmt.Sprintf("%s/v1/payment_intents/%s", o.apiBaseURL, url.PathEscape(payment.ID)),
		Method:   http.MethodGet,
		Selector: o.selector,
		SecretHeaders: map[string]string{
			"Authorization": "Bearer " + o.apiKey,
		},
	}
}

// Stats is a snapshot of orchestrator counters.
type Stats struct {
	Generated uint64 `json:"generated"`
	Skipped   uint64 `json:"skipped"`
	Failed    uint64 `json:"failed"`
}

// Stats returns counters since start.
func (o *Orchestrator) Stats() Stats {
	return Stats{
		Generated: o.generated.Load(),
		Skipped:   o.skipped.Load(),
		Failed:    o.failed.Load(),
	}
}
