// Package webhook is the public intake for processor deliveries. It verifies
// signatures and hands authenticated events to a proof generator.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/telhawk-systems/payproof/common/logging"
	"github.com/telhawk-systems/payproof/internal/metrics"
	"github.com/telhawk-systems/payproof/internal/models"
)

// ErrDispatch wraps failures of the downstream proof generator.
var ErrDispatch = errors.New("proof dispatch failed")

// Generator is the proof generation capability the gateway dispatches to.
// It may run in-process or behind a transport.
type Generator interface {
	Generate(ctx context.Context, event *models.Event) (*models.ProofOutcome, error)
}

// Receipt acknowledges a verified delivery.
type Receipt struct {
	Received  bool                 `json:"received"`
	EventType string               `json:"eventType"`
	Proof     *models.ProofOutcome `json:"proof"`
}

// Gateway verifies deliveries and dispatches them for proof generation.
type Gateway struct {
	verifier  *Verifier
	generator Generator
	transport string
	logger    *logging.Logger
}

// Option customizes a Gateway.
type Option func(*Gateway)

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

// WithTransportName labels dispatch metrics and logs.
func WithTransportName(name string) Option {
	return func(g *Gateway) { g.transport = name }
}

// NewGateway creates a gateway.
func NewGateway(verifier *Verifier, generator Generator, opts ...Option) *Gateway {
	g := &Gateway{
		verifier:  verifier,
		generator: generator,
		transport: "local",
		logger:    logging.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Handle authenticates a raw delivery and, only if authentic, dispatches it.
func (g *Gateway) Handle(ctx context.Context, body []byte, signatureHeader string) (*Receipt, error) {
	event, err := g.verifier.Verify(body, signatureHeader)
	if err != nil {
		metrics.WebhooksTotal.WithLabelValues("rejected").Inc()
		g.logger.WarnContext(ctx, "Webhook signature verification failed", logging.Error(err))
		return nil, err
	}

	g.logger.InfoContext(ctx, "Webhook received",
		logging.EventID(event.ID),
		logging.EventType(event.Type),
	)

	start := time.Now()
	outcome, err := g.generator.Generate(ctx, event)
	metrics.DispatchDuration.WithLabelValues(g.transport).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.WebhooksTotal.WithLabelValues("failed").Inc()
		g.logger.ErrorContext(ctx, "Proof dispatch failed",
			logging.EventID(event.ID),
			logging.Transport(g.transport),
			logging.Error(err),
		)
		return nil, fmt.Errorf("%w: %w", ErrDispatch, err)
	}

	metrics.WebhooksTotal.WithLabelValues("dispatched").Inc()
	return &Receipt{
		Received:  true,
		EventType: event.Type,
		Proof:     outcome,
	}, nil
}
