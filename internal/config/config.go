package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"

	"github.com/leafsii/blinks-backend/internal/lending"
)

type Config struct {
	Env       string `mapstructure:"BLK_ENV"`
	HTTPAddr  string `mapstructure:"BLK_HTTP_ADDR"`
	PublicURL string `mapstructure:"BLK_PUBLIC_ORIGIN"`
	LogLevel  string `mapstructure:"BLK_LOG_LEVEL"`

	Solana      SolanaConfig      `mapstructure:",squash"`
	Lending     LendingConfig     `mapstructure:",squash"`
	Registrar   RegistrarConfig   `mapstructure:",squash"`
	Marketplace MarketplaceConfig `mapstructure:",squash"`
	Actions     ActionsConfig     `mapstructure:",squash"`
	Cache       CacheConfig       `mapstructure:",squash"`
	Security    SecurityConfig    `mapstructure:",squash"`
}

type SolanaConfig struct {
	RPCURL       string `mapstructure:"BLK_SOLANA_RPC_URL"`
	Network      string `mapstructure:"BLK_NETWORK"`
	HeliusAPIKey string `mapstructure:"BLK_HELIUS_API_KEY"`
	Commitment   string `mapstructure:"BLK_SOLANA_COMMITMENT"`
}

type LendingConfig struct {
	ProgramID      string `mapstructure:"BLK_KLEND_PROGRAM_ID"`
	Market         string `mapstructure:"BLK_KLEND_MARKET"`
	Reserve        string `mapstructure:"BLK_KLEND_RESERVE"`
	FarmsProgramID string `mapstructure:"BLK_FARMS_PROGRAM_ID"`
	ComputeUnits   uint32 `mapstructure:"BLK_COMPUTE_UNITS"`
}

type RegistrarConfig struct {
	BaseURL string `mapstructure:"BLK_REGISTRAR_BASE_URL"`
	TLD     string `mapstructure:"BLK_REGISTRAR_TLD"`
}

type MarketplaceConfig struct {
	APIURL       string `mapstructure:"BLK_TENSOR_API_URL"`
	APIKey       string `mapstructure:"BLK_TENSOR_API_KEY"`
	ListingsPath string `mapstructure:"BLK_LISTINGS_PATH"`
}

type ActionsConfig struct {
	IconURL string `mapstructure:"BLK_ACTION_ICON_URL"`
}

type CacheConfig struct {
	RedisAddr     string        `mapstructure:"BLK_REDIS_ADDR"`
	CollectionTTL time.Duration `mapstructure:"BLK_COLLECTION_CACHE_TTL"`
}

type SecurityConfig struct {
	RateLimitRPM       int           `mapstructure:"BLK_RATE_LIMIT_RPM"`
	CORSAllowedOrigins []string      `mapstructure:"BLK_CORS_ALLOWED_ORIGINS"`
	RequestTimeout     time.Duration `mapstructure:"BLK_REQUEST_TIMEOUT"`
	ProbeInterval      time.Duration `mapstructure:"BLK_PROBE_INTERVAL"`
}

func loadDotEnvFiles() {
	candidates := []string{
		".env",
		filepath.Join("..", ".env"),
		filepath.Join("..", "..", ".env"),
	}

	seen := make(map[string]struct{})
	for _, path := range candidates {
		abs := path
		if resolved, err := filepath.Abs(path); err == nil {
			abs = resolved
		}
		if _, ok := seen[abs]; ok {
			continue
		}
		seen[abs] = struct{}{}

		if _, err := os.Stat(path); err == nil {
			_ = gotenv.Load(path) // ignore errors; env vars already set take precedence
		}
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("BLK_ENV", "dev")
	v.SetDefault("BLK_HTTP_ADDR", ":8080")
	v.SetDefault("BLK_PUBLIC_ORIGIN", "")
	v.SetDefault("BLK_LOG_LEVEL", "")
	v.SetDefault("BLK_NETWORK", "mainnet")
	v.SetDefault("BLK_SOLANA_RPC_URL", "")
	v.SetDefault("BLK_HELIUS_API_KEY", "")
	v.SetDefault("BLK_SOLANA_COMMITMENT", string(rpc.CommitmentFinalized))
	v.SetDefault("BLK_KLEND_PROGRAM_ID", "KLend2g3cP87fffoy8q1mQqGKjrxjC8boSyAYavgmjD")
	v.SetDefault("BLK_KLEND_MARKET", "7u3HeHxYDLhnCoErrtycNokbQYbWGzLs6JSDqGAv5PfF")
	v.SetDefault("BLK_KLEND_RESERVE", "D6q6wuQSrifJKZYpR1M8R4YawnLDtDsMmWM1NbBmgJ59")
	v.SetDefault("BLK_FARMS_PROGRAM_ID", "FarmsPZpWu9i7Kky8tPN37rs2TpmMrAZrC7S7vJa91Hr")
	v.SetDefault("BLK_COMPUTE_UNITS", 300_000)
	v.SetDefault("BLK_REGISTRAR_BASE_URL", "https://alldomains.id")
	v.SetDefault("BLK_REGISTRAR_TLD", ".bonk")
	v.SetDefault("BLK_TENSOR_API_URL", "https://api.tensor.so/graphql")
	v.SetDefault("BLK_TENSOR_API_KEY", "")
	v.SetDefault("BLK_LISTINGS_PATH", filepath.Join("data", "bonk_domains.json"))
	v.SetDefault("BLK_ACTION_ICON_URL", "")
	v.SetDefault("BLK_REDIS_ADDR", "")
	v.SetDefault("BLK_COLLECTION_CACHE_TTL", "0s")
	v.SetDefault("BLK_RATE_LIMIT_RPM", 120)
	v.SetDefault("BLK_CORS_ALLOWED_ORIGINS", "http://localhost:3000,http://localhost:5173")
	v.SetDefault("BLK_REQUEST_TIMEOUT", "30s")
	v.SetDefault("BLK_PROBE_INTERVAL", "30s")
}

func Load() (*Config, error) {
	loadDotEnvFiles()

	v := viper.New()
	v.SetConfigType("env")
	v.AutomaticEnv()
	setDefaults(v)

	// Handle array parsing for comma-separated values
	if origins := v.GetString("BLK_CORS_ALLOWED_ORIGINS"); origins != "" {
		v.Set("BLK_CORS_ALLOWED_ORIGINS", splitList(origins))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.applyNetworkDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func (c *Config) validate() error {
	switch c.Solana.Network {
	case "mainnet", "devnet", "localnet":
	default:
		return fmt.Errorf("invalid BLK_NETWORK %q (must be mainnet, devnet, or localnet)", c.Solana.Network)
	}
	if _, err := url.ParseRequestURI(c.Solana.RPCURL); err != nil {
		return fmt.Errorf("invalid BLK_SOLANA_RPC_URL: %w", err)
	}
	switch rpc.CommitmentType(c.Solana.Commitment) {
	case rpc.CommitmentFinalized, rpc.CommitmentConfirmed, rpc.CommitmentProcessed:
	default:
		return fmt.Errorf("invalid BLK_SOLANA_COMMITMENT %q", c.Solana.Commitment)
	}
	if _, err := c.Lending.Parse(); err != nil {
		return err
	}
	if _, err := url.ParseRequestURI(c.Registrar.BaseURL); err != nil {
		return fmt.Errorf("invalid BLK_REGISTRAR_BASE_URL: %w", err)
	}
	if c.PublicURL != "" {
		u, err := url.Parse(c.PublicURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("BLK_PUBLIC_ORIGIN must be an absolute http(s) URL")
		}
	}
	if strings.TrimPrefix(c.Registrar.TLD, ".") == "" {
		return fmt.Errorf("BLK_REGISTRAR_TLD is required")
	}
	if _, err := url.ParseRequestURI(c.Marketplace.APIURL); err != nil {
		return fmt.Errorf("invalid BLK_TENSOR_API_URL: %w", err)
	}
	if c.Marketplace.ListingsPath == "" {
		return fmt.Errorf("BLK_LISTINGS_PATH is required")
	}
	if c.Cache.CollectionTTL < 0 {
		return fmt.Errorf("BLK_COLLECTION_CACHE_TTL must not be negative")
	}
	if c.Security.RateLimitRPM < 0 {
		return fmt.Errorf("BLK_RATE_LIMIT_RPM must not be negative")
	}
	if c.Security.RequestTimeout <= 0 {
		return fmt.Errorf("BLK_REQUEST_TIMEOUT must be positive")
	}
	if c.Security.ProbeInterval < 0 {
		return fmt.Errorf("BLK_PROBE_INTERVAL must not be negative")
	}
	if c.IsProd() && c.Marketplace.APIKey == "" {
		return fmt.Errorf("BLK_TENSOR_API_KEY is required in prod")
	}
	return nil
}

// Parse converts the configured base58 addresses into the lending adapter config.
func (l LendingConfig) Parse() (lending.Config, error) {
	var out lending.Config
	fields := []struct {
		env  string
		raw  string
		dest *solana.PublicKey
	}{
		{"BLK_KLEND_PROGRAM_ID", l.ProgramID, &out.ProgramID},
		{"BLK_KLEND_MARKET", l.Market, &out.Market},
		{"BLK_KLEND_RESERVE", l.Reserve, &out.Reserve},
		{"BLK_FARMS_PROGRAM_ID", l.FarmsProgramID, &out.FarmsProgramID},
	}
	for _, f := range fields {
		if f.raw == "" {
			return out, fmt.Errorf("%s is required", f.env)
		}
		pk, err := solana.PublicKeyFromBase58(f.raw)
		if err != nil {
			return out, fmt.Errorf("invalid %s: %w", f.env, err)
		}
		*f.dest = pk
	}
	out.ComputeUnits = l.ComputeUnits
	return out, nil
}

func (c *Config) IsProd() bool {
	return c.Env == "prod"
}

// CacheEnabled reports whether collection metadata is cached between requests.
func (c *Config) CacheEnabled() bool {
	return c.Cache.CollectionTTL > 0
}

// applyNetworkDefaults normalizes the network name and fills in the RPC
// endpoint. A Helius key selects the Helius endpoint for the network.
func (c *Config) applyNetworkDefaults() {
	net := strings.ToLower(strings.TrimSpace(c.Solana.Network))
	endpoint := strings.TrimSpace(c.Solana.RPCURL)
	key := strings.TrimSpace(c.Solana.HeliusAPIKey)

	switch net {
	case "", "mainnet-beta":
		net = "mainnet"
	}

	if key != "" && net != "localnet" {
		endpoint = fmt.Sprintf("https://%s.helius-rpc.com/?api-key=%s", net, url.QueryEscape(key))
	}

	if endpoint == "" {
		switch net {
		case "mainnet":
			endpoint = rpc.MainNetBeta_RPC
		case "devnet":
			endpoint = rpc.DevNet_RPC
		case "localnet":
			endpoint = rpc.LocalNet_RPC
		}
	}

	if !strings.HasPrefix(c.Registrar.TLD, ".") && c.Registrar.TLD != "" {
		c.Registrar.TLD = "." + c.Registrar.TLD
	}

	c.Solana.Network = net
	c.Solana.RPCURL = endpoint
}
