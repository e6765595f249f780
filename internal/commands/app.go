package commands

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/telhawk-systems/payproof/common/logging"
	natsclient "github.com/telhawk-systems/payproof/common/messaging/nats"
	"github.com/telhawk-systems/payproof/internal/attestation"
	"github.com/telhawk-systems/payproof/internal/config"
	"github.com/telhawk-systems/payproof/internal/dedup"
	"github.com/telhawk-systems/payproof/internal/handlers"
	"github.com/telhawk-systems/payproof/internal/proof"
	"github.com/telhawk-systems/payproof/internal/server"
	"github.com/telhawk-systems/payproof/internal/store"
	"github.com/telhawk-systems/payproof/internal/transport"
	"github.com/telhawk-systems/payproof/internal/webhook"
)

// app is the wired service.
type app struct {
	handler http.Handler
	store   *store.FileStore
	closers []func() error
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// newApp wires storage, the orchestrator, the chosen gateway transport and
// the HTTP routes. On error everything already opened is closed.
func newApp(cfg *config.Config, logger *logging.Logger) (_ *app, err error) {
	a := &app{store: store.NewFileStore(cfg.Storage.Dir)}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	var orchestrator *proof.Orchestrator
	if cfg.RunsOrchestrator() {
		var claimer dedup.Claimer = dedup.NoOpClaimer{}
		if cfg.Dedup.Enabled {
			claimer, err = dedup.NewRedisClaimer(cfg.Dedup.RedisURL, cfg.Dedup.TTL)
			if err != nil {
				return nil, fmt.Errorf("init dedup claims: %w", err)
			}
			logger.Info("Delivery deduplication enabled", "ttl", cfg.Dedup.TTL.String())
		}
		a.closers = append(a.closers, claimer.Close)

		client := attestation.New(attestation.Config{
			URL:       cfg.Attestation.URL,
			AppID:     cfg.Attestation.AppID,
			AppSecret: cfg.Attestation.AppSecret,
			Timeout:   cfg.Attestation.Timeout,
			TokenTTL:  cfg.Attestation.TokenTTL,
		})
		orchestrator = proof.New(client, a.store, proof.Config{
			APIBaseURL:    cfg.Stripe.APIBaseURL,
			APIKey:        cfg.Stripe.SecretKey,
			HandledEvents: cfg.Stripe.HandledEvents,
		}, proof.WithClaimer(claimer), proof.WithLogger(logger))
	}

	var generator webhook.Generator
	switch cfg.Gateway.Transport {
	case config.TransportLocal:
		generator = orchestrator
	case config.TransportHTTP:
		generator = transport.NewHTTPClient(cfg.ProofURL(), cfg.Gateway.Timeout)
		logger.Info("Gateway dispatching over HTTP", "proof_url", cfg.ProofURL())
	case config.TransportNATS:
		natsCfg := natsclient.DefaultConfig()
		natsCfg.URL = cfg.NATS.URL
		nc, err := natsclient.NewClient(natsCfg)
		if err != nil {
			return nil, fmt.Errorf("connect nats: %w", err)
		}
		a.closers = append(a.closers, nc.Drain)

		responder := transport.NewNATSResponder(nc, nc, orchestrator, cfg.NATS.Subject, cfg.NATS.QueueGroup, logger)
		if err := responder.Start(); err != nil {
			return nil, err
		}
		a.closers = append(a.closers, responder.Stop)

		generator = transport.NewNATSClient(nc, cfg.NATS.Subject, cfg.Gateway.Timeout)
		logger.Info("Gateway dispatching over NATS", "nats_url", cfg.NATS.URL, "subject", cfg.NATS.Subject)
	default:
		return nil, fmt.Errorf("unknown gateway transport %q", cfg.Gateway.Transport)
	}

	gateway := webhook.NewGateway(
		webhook.NewVerifier(cfg.Stripe.WebhookSecret, cfg.Stripe.SignatureTolerance),
		generator,
		webhook.WithLogger(logger),
		webhook.WithTransportName(cfg.Gateway.Transport),
	)

	// /generate-proof is served locally when this process generates proofs.
	var local webhook.Generator = generator
	if orchestrator != nil {
		local = orchestrator
	}

	opts := []handlers.Option{handlers.WithGenerateEndpoint(cfg.Gateway.ExposeGenerate)}
	if orchestrator != nil {
		opts = append(opts, handlers.WithStats(orchestrator))
	}

	a.handler = server.NewRouter(handlers.NewProofHandler(gateway, local, a.store, logger, opts...))
	return a, nil
}
