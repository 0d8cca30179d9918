// Package config holds the daemon configuration: defaults, environment
// overrides and an optional TOML file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/naoina/toml"

	"github.com/chainsentry/chainsentry/params"
	"github.com/chainsentry/chainsentry/types"
)

// Provider tags select a rate-limit bucket and an endpoint adapter in the
// request gateway.
const (
	ProviderEtherscan = "etherscan"
	ProviderGemini    = "gemini"
)

// RateLimit caps completed requests per rolling window.
type RateLimit struct {
	Second int
	Minute int
	Day    int
}

// Config is the full daemon configuration.
type Config struct {
	DataDir string
	APIPort int

	EtherscanBase string
	EtherscanKey  string
	GeminiBase    string
	GeminiKey     string

	TelegramToken string

	InitialScanMaxTx   int
	RequestTimeout     time.Duration
	ScanInterval       time.Duration
	WorkerPollInterval time.Duration
	MaxAttempts        int

	RateLimits   map[string]RateLimit
	RPCEndpoints map[string]string

	// Minimum severity for user notifications.
	NotifyThreshold string
}

// Defaults returns the configuration with every knob at its default.
func Defaults() *Config {
	return &Config{
		DataDir:            "chainsentry-data",
		APIPort:            8080,
		EtherscanBase:      "https://api.etherscan.io/v2/api",
		GeminiBase:         "https://generativelanguage.googleapis.com/v1beta/models/gemini-2.0-flash:generateContent",
		InitialScanMaxTx:   1000,
		RequestTimeout:     120 * time.Second,
		ScanInterval:       24 * time.Hour,
		WorkerPollInterval: 5 * time.Second,
		MaxAttempts:        3,
		RateLimits: map[string]RateLimit{
			ProviderEtherscan: {Second: 4, Minute: 240, Day: 100000},
			ProviderGemini:    {Second: 1, Minute: 50, Day: 1000},
		},
		RPCEndpoints:    cloneEndpoints(params.DefaultRPCEndpoints),
		NotifyThreshold: "high",
	}
}

func cloneEndpoints(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Load builds the configuration from defaults, an optional TOML file and the
// environment, in that order of precedence (environment wins).
func Load(path string) (*Config, error) {
	cfg := Defaults()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()
		if err := toml.NewDecoder(f).Decode(cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
	}
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.DataDir, "DATA_DIR")
	setInt(&c.APIPort, "API_PORT")
	setString(&c.EtherscanKey, "ETHERSCAN_API_KEY")
	setString(&c.GeminiKey, "GEMINI_API_KEY")
	setString(&c.TelegramToken, "TELEGRAM_BOT_TOKEN")
	setInt(&c.InitialScanMaxTx, "INITIAL_SCAN_MAX_TX")
	setSeconds(&c.RequestTimeout, "REQUEST_TIMEOUT_SECONDS")
	setHours(&c.ScanInterval, "SCAN_INTERVAL_HOURS")
	setString(&c.NotifyThreshold, "NOTIFY_THRESHOLD")

	for provider := range c.RateLimits {
		prefix := strings.ToUpper(provider)
		rl := c.RateLimits[provider]
		setInt(&rl.Second, prefix+"_RATE_LIMIT_SECOND")
		setInt(&rl.Minute, prefix+"_RATE_LIMIT_MINUTE")
		setInt(&rl.Day, prefix+"_RATE_LIMIT_DAY")
		c.RateLimits[provider] = rl
	}
	for _, chain := range params.SupportedChains() {
		if v := os.Getenv("RPC_URL_" + strings.ToUpper(chain)); v != "" {
			c.RPCEndpoints[chain] = v
		}
	}
}

func (c *Config) validate() error {
	if c.InitialScanMaxTx <= 0 {
		return fmt.Errorf("INITIAL_SCAN_MAX_TX must be positive, got %d", c.InitialScanMaxTx)
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("MAX_ATTEMPTS must be positive, got %d", c.MaxAttempts)
	}
	for provider, rl := range c.RateLimits {
		if rl.Second <= 0 || rl.Minute <= 0 || rl.Day <= 0 {
			return fmt.Errorf("rate limits for %s must be positive", provider)
		}
	}
	if !types.Severity(c.NotifyThreshold).Valid() {
		return fmt.Errorf("NOTIFY_THRESHOLD %q is not a known severity", c.NotifyThreshold)
	}
	return nil
}

// Limit returns the rate limit bucket for a provider, with a conservative
// fallback for unknown tags.
func (c *Config) Limit(provider string) RateLimit {
	if rl, ok := c.RateLimits[provider]; ok {
		return rl
	}
	return RateLimit{Second: 1, Minute: 30, Day: 1000}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setSeconds(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = time.Duration(n) * time.Second
		}
	}
}

func setHours(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = time.Duration(n) * time.Hour
		}
	}
}
