package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Gateway transports between the webhook gateway and the proof orchestrator.
const (
	TransportLocal = "local"
	TransportHTTP  = "http"
	TransportNATS  = "nats"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Stripe      StripeConfig      `mapstructure:"stripe"`
	Attestation AttestationConfig `mapstructure:"attestation"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Gateway     GatewayConfig     `mapstructure:"gateway"`
	NATS        NATSConfig        `mapstructure:"nats"`
	Dedup       DedupConfig       `mapstructure:"dedup"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type StripeConfig struct {
	SecretKey          string        `mapstructure:"secret_key"`
	WebhookSecret      string        `mapstructure:"webhook_secret"`
	APIBaseURL         string        `mapstructure:"api_base_url"`
	HandledEvents      []string      `mapstructure:"handled_events"`
	SignatureTolerance time.Duration `mapstructure:"signature_tolerance"`
}

type AttestationConfig struct {
	URL       string        `mapstructure:"url"`
	AppID     string        `mapstructure:"app_id"`
	AppSecret string        `mapstructure:"app_secret"`
	Timeout   time.Duration `mapstructure:"timeout"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

type StorageConfig struct {
	Dir string `mapstructure:"dir"`
}

type GatewayConfig struct {
	Transport string `mapstructure:"transport"`
	// ProofURL is the base URL of the /generate-proof endpoint for the http
	// transport. Empty means this process on localhost.
	ProofURL string        `mapstructure:"proof_url"`
	Timeout  time.Duration `mapstructure:"timeout"`
	// ExposeGenerate serves POST /generate-proof. The http transport's
	// loopback to this process needs it.
	ExposeGenerate bool `mapstructure:"expose_generate"`
}

type NATSConfig struct {
	URL        string `mapstructure:"url"`
	Subject    string `mapstructure:"subject"`
	QueueGroup string `mapstructure:"queue_group"`
}

type DedupConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	RedisURL string        `mapstructure:"redis_url"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// envBindings are the only environment variables read.
var envBindings = map[string]string{
	"stripe.secret_key":      "STRIPE_SECRET_KEY",
	"stripe.webhook_secret":  "STRIPE_WEBHOOK_SECRET",
	"attestation.app_id":     "RECLAIM_APP_ID",
	"attestation.app_secret": "RECLAIM_APP_SECRET",
	"server.port":            "PORT",
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "90s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("stripe.api_base_url", "https://api.stripe.com")
	v.SetDefault("stripe.handled_events", []string{"payment_intent.succeeded"})
	v.SetDefault("stripe.signature_tolerance", "5m")
	v.SetDefault("attestation.url", "http://localhost:8001")
	v.SetDefault("attestation.timeout", "30s")
	v.SetDefault("attestation.token_ttl", "1m")
	v.SetDefault("storage.dir", "proofs")
	v.SetDefault("gateway.transport", TransportLocal)
	v.SetDefault("gateway.proof_url", "")
	v.SetDefault("gateway.timeout", "60s")
	v.SetDefault("gateway.expose_generate", true)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.subject", "payproof.proofs.generate")
	v.SetDefault("nats.queue_group", "proof-workers")
	v.SetDefault("dedup.enabled", false)
	v.SetDefault("dedup.redis_url", "redis://localhost:6379/0")
	v.SetDefault("dedup.ttl", "24h")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Read config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/payproof")
	}

	// Environment variables override, by exact name only
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	// Read config
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found; use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate checks what serve needs before accepting traffic. Messages name
// the setting, never its value.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Stripe.WebhookSecret == "" {
		errs = append(errs, errors.New("STRIPE_WEBHOOK_SECRET is required"))
	}

	switch c.Gateway.Transport {
	case TransportLocal, TransportHTTP, TransportNATS:
	default:
		errs = append(errs, fmt.Errorf("gateway.transport %q must be one of local, http, nats", c.Gateway.Transport))
	}

	if c.Gateway.Transport == TransportHTTP && c.Gateway.ProofURL == "" && !c.Gateway.ExposeGenerate {
		errs = append(errs, errors.New("gateway.expose_generate must be true for the http transport without gateway.proof_url"))
	}

	// The orchestrator runs in every process except a pure http gateway
	// pointing elsewhere.
	if c.RunsOrchestrator() {
		if c.Stripe.SecretKey == "" {
			errs = append(errs, errors.New("STRIPE_SECRET_KEY is required"))
		}
		if c.Attestation.URL == "" {
			errs = append(errs, errors.New("attestation.url is required"))
		}
		if c.Attestation.AppID == "" {
			errs = append(errs, errors.New("RECLAIM_APP_ID is required"))
		}
		if c.Attestation.AppSecret == "" {
			errs = append(errs, errors.New("RECLAIM_APP_SECRET is required"))
		}
	}
	if c.Dedup.Enabled && c.Dedup.RedisURL == "" {
		errs = append(errs, errors.New("dedup.redis_url is required when dedup is enabled"))
	}
	return errors.Join(errs...)
}

// RunsOrchestrator reports whether this process generates proofs itself.
func (c *Config) RunsOrchestrator() bool {
	return c.Gateway.Transport != TransportHTTP || c.Gateway.ProofURL == ""
}

// ProofURL is the base URL the http transport posts to.
func (c *Config) ProofURL() string {
	if c.Gateway.ProofURL != "" {
		return c.Gateway.ProofURL
	}
	return fmt.Sprintf("http://localhost:%d", c.Server.Port)
}
