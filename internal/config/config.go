package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type Config struct {
	Port       int    `default:"8080"`
	CORSOrigin string `envconfig:"CORS_ORIGIN" default:"http://localhost:3000"`
	LogLevel   string `split_words:"true" default:"info"`
	LogFormat  string `split_words:"true" default:"text"`

	DatabaseURL string `split_words:"true" required:"true"`

	// Settlement network
	ChainRPCURL    string        `envconfig:"CHAIN_RPC_URL" required:"true"`
	ChainNetwork   string        `split_words:"true" default:"sepolia"`
	SignerKey      string        `split_words:"true" required:"true"`
	Confirmations  uint64        `default:"1"`
	ConfirmTimeout time.Duration `split_words:"true" default:"3m"`

	// Background loops
	ReconcileInterval time.Duration `split_words:"true" default:"5m"`
	ReconcileWindow   time.Duration `split_words:"true" default:"72h"`
	AnchorInterval    time.Duration `split_words:"true" default:"1h"`

	// Blob storage (optional; upload endpoint is disabled when unset)
	MinioEndpoint  string `split_words:"true"`
	MinioAccessKey string `split_words:"true"`
	MinioSecretKey string `split_words:"true"`
	MinioBucket    string `split_words:"true" default:"milestone-files"`
	MinioUseSSL    bool   `split_words:"true" default:"false"`
}

// Load parses configuration from the environment. The caller is expected to
// have loaded .env first (godotenv in main).
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// InitDB opens the Postgres connection.
func InitDB(cfg *Config) (*gorm.DB, error) {
	return gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
}
