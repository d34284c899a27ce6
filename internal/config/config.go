package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Store     StoreConfig     `mapstructure:"store"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Billing   BillingConfig   `mapstructure:"billing"`
	Stripe    StripeConfig    `mapstructure:"stripe"`
	Auth0     Auth0Config     `mapstructure:"auth0"`
	Consumers ConsumerConfig  `mapstructure:"consumers"`
	Guardrail GuardrailConfig `mapstructure:"guardrail"`
	Pricing   PricingConfig   `mapstructure:"pricing"`
	Proxy     ProxyConfig     `mapstructure:"proxy"`

	Providers []ProviderConfig `mapstructure:"providers"`
	Models    []ModelConfig    `mapstructure:"models"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Env  string `mapstructure:"env"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Enabled  bool   `mapstructure:"enabled"`
}

type StoreConfig struct {
	DSN string `mapstructure:"dsn"`
}

type RateLimitConfig struct {
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
	Burst             int `mapstructure:"burst"`
}

type BillingConfig struct {
	LagoBaseURL string `mapstructure:"lago_base_url"`
	LagoAPIKey  string `mapstructure:"lago_api_key"`
	// Requests are rejected with 402 once the wallet balance drops to or
	// below this many dollars.
	MinBalanceUSD float64 `mapstructure:"min_balance_usd"`
	// Welcome credits granted to newly provisioned customers.
	WelcomeCreditsUSD float64 `mapstructure:"welcome_credits_usd"`
	PlanCode          string  `mapstructure:"plan_code"`
	PaymentProvider   string  `mapstructure:"payment_provider_code"`
}

type StripeConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

type Auth0Config struct {
	Domain       string `mapstructure:"domain"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
}

type ConsumerConfig struct {
	BaseURL       string `mapstructure:"base_url"`
	AccountName   string `mapstructure:"account_name"`
	BucketName    string `mapstructure:"bucket_name"`
	APIKey        string `mapstructure:"api_key"`
	WebhookSecret string `mapstructure:"webhook_secret"`
}

type GuardrailConfig struct {
	GuardrailID     string `mapstructure:"guardrail_id"`
	Version         string `mapstructure:"version"`
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

type PricingConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
}

type ProxyConfig struct {
	// Maximum chunks scanned for a completion ID before giving up.
	ScanChunkLimit int `mapstructure:"scan_chunk_limit"`
	// Per-read deadline on the downstream byte stream.
	StreamReadTimeout time.Duration `mapstructure:"stream_read_timeout"`
}

// ProviderConfig describes one downstream inference backend.
type ProviderConfig struct {
	Key               string            `mapstructure:"key"`
	Name              string            `mapstructure:"name"`
	BaseURL           string            `mapstructure:"base_url"`
	APIKey            string            `mapstructure:"api_key"`
	RequiresMaxTokens bool              `mapstructure:"requires_max_tokens"`
	ModelRewrites     map[string]string `mapstructure:"model_rewrites"`
	Compute           ComputeConfig     `mapstructure:"compute"`
}

type ComputeConfig struct {
	Location string `mapstructure:"location"`
	Provider string `mapstructure:"provider"`
	Sponsor  string `mapstructure:"sponsor"`
}

// ModelConfig maps one exposed model name to its provider candidates.
type ModelConfig struct {
	Name      string   `mapstructure:"name"`
	Strategy  string   `mapstructure:"strategy"`
	Providers []string `mapstructure:"providers"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()

	if file := os.Getenv("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.env", "development")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("store.dsn", "file:gateway.db?cache=shared&mode=rwc&_journal_mode=WAL&_busy_timeout=5000")
	v.SetDefault("rate_limit.requests_per_minute", 20)
	v.SetDefault("rate_limit.burst", 20)
	v.SetDefault("billing.min_balance_usd", 0.10)
	v.SetDefault("billing.welcome_credits_usd", 10.0)
	v.SetDefault("billing.plan_code", "pay_as_you_go")
	v.SetDefault("billing.payment_provider_code", "stripe_test")
	v.SetDefault("stripe.base_url", "https://api.stripe.com")
	v.SetDefault("guardrail.version", "DRAFT")
	v.SetDefault("guardrail.region", "eu-central-2")
	v.SetDefault("proxy.scan_chunk_limit", 5)
	v.SetDefault("proxy.stream_read_timeout", 90*time.Second)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	// Resolve ENV: indirection for provider credentials so keys never live
	// in the config file.
	for i, p := range cfg.Providers {
		cfg.Providers[i].APIKey = resolveEnvRef(v, p.APIKey)
	}
	cfg.Billing.LagoAPIKey = resolveEnvRef(v, cfg.Billing.LagoAPIKey)
	cfg.Stripe.APIKey = resolveEnvRef(v, cfg.Stripe.APIKey)
	cfg.Auth0.ClientSecret = resolveEnvRef(v, cfg.Auth0.ClientSecret)
	cfg.Consumers.APIKey = resolveEnvRef(v, cfg.Consumers.APIKey)
	cfg.Guardrail.SecretAccessKey = resolveEnvRef(v, cfg.Guardrail.SecretAccessKey)
	cfg.Pricing.APIKey = resolveEnvRef(v, cfg.Pricing.APIKey)

	return &cfg, nil
}

func resolveEnvRef(v *viper.Viper, val string) string {
	if !strings.HasPrefix(val, "ENV:") {
		return val
	}
	envVar := strings.TrimPrefix(val, "ENV:")
	if resolved := os.Getenv(envVar); resolved != "" {
		return resolved
	}
	return v.GetString(envVar)
}
