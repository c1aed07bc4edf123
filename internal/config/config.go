// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Store backends for the remote document store.
const (
	StoreSupabase = "supabase"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	// Chain
	StarknetRPCURL   string        `env:"STARKNET_RPC_URL,required"`
	ChainID          string        `env:"STARKNET_CHAIN_ID,default=0x534e5f5345504f4c4941"`
	TipContract      string        `env:"TIP_CONTRACT_ADDRESS,required"`
	TokenAddress     string        `env:"TOKEN_ADDRESS,default=0x04718f5a0fc34cc1af16a1cdee98ffb20c31f5cd61d6ab07201858f4287c938d"`
	TokenDecimals    int32         `env:"TOKEN_DECIMALS,default=18"`
	RequireAllowance bool          `env:"REQUIRE_ALLOWANCE,default=true"`
	RPCTimeout       time.Duration `env:"RPC_TIMEOUT,default=30s"`
	RPCRateLimit     float64       `env:"RPC_RATE_LIMIT,default=20"`

	// Wallet connectors
	SignerURL    string `env:"SIGNER_URL"`
	SignerAPIKey string `env:"SIGNER_API_KEY"`

	// Remote store
	StoreBackend string `env:"STORE_BACKEND,default=supabase"`
	SupabaseURL  string `env:"SUPABASE_URL"`
	SupabaseKey  string `env:"SUPABASE_KEY"`
	DatabaseURL  string `env:"DATABASE_URL"`

	// Local snapshot cache
	RedisURL      string `env:"REDIS_URL"`
	EncryptionKey string `env:"ENCRYPTION_KEY"`

	// Scheduling
	ReconcileInterval time.Duration `env:"RECONCILE_INTERVAL,default=10s"`
	BalanceInterval   time.Duration `env:"BALANCE_INTERVAL,default=30s"`
	TotalsInterval    time.Duration `env:"TOTALS_INTERVAL,default=30s"`

	// Reconciliation policy
	ReceiptErrorPolicy string        `env:"RECEIPT_ERROR_POLICY,default=retry"`
	MaxReceiptErrors   int           `env:"MAX_RECEIPT_ERRORS,default=5"`
	DedupeWindow       time.Duration `env:"DEDUPE_WINDOW,default=30s"`

	// Front-ends
	HTTPAddr      string `env:"HTTP_ADDR,default=:8080"`
	CORSOrigins   string `env:"CORS_ORIGINS,default=*"`
	TelegramToken string `env:"TELEGRAM_TOKEN"`
	SeedFile      string `env:"SEED_CREATORS_FILE"`

	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=json"`
}

// LoadConfig reads .env (when present) and decodes the environment.
func LoadConfig(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		// a missing .env is fine, the process env still applies
		_ = godotenv.Load(f)
	}

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.StoreBackend {
	case StoreSupabase:
		if c.SupabaseURL == "" || c.SupabaseKey == "" {
			return errors.New("SUPABASE_URL and SUPABASE_KEY are required for the supabase store")
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres store")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}

	switch c.ReceiptErrorPolicy {
	case "retry", "fail-after":
	default:
		return fmt.Errorf("unknown RECEIPT_ERROR_POLICY %q", c.ReceiptErrorPolicy)
	}
	if c.ReceiptErrorPolicy == "fail-after" && c.MaxReceiptErrors <= 0 {
		return errors.New("MAX_RECEIPT_ERRORS must be positive with the fail-after policy")
	}
	if c.TokenDecimals < 0 || c.TokenDecimals > 77 {
		return fmt.Errorf("TOKEN_DECIMALS out of range: %d", c.TokenDecimals)
	}
	if c.EncryptionKey != "" && len(c.EncryptionKey) < 32 {
		return errors.New("ENCRYPTION_KEY must be at least 32 bytes long")
	}
	return nil
}

// AllowedOrigins splits CORS_ORIGINS on commas.
func (c *Config) AllowedOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
