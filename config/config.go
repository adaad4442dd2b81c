// Package config loads runtime configuration from the environment.
//
// A local .env file is honored when present so dev setups don't need to
// export anything; real deployments set the variables directly.
package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix namespaces every variable (BARSTOCK_PORT, BARSTOCK_DB_PATH, ...).
const EnvPrefix = "barstock"

type Config struct {
	Port     int    `envconfig:"PORT" default:"8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	DBPath string `envconfig:"DB_PATH" default:"./data/barstock.db"`

	// VarianceThreshold is the absolute unit variance above which a
	// session close demands a reason.
	VarianceThreshold string `envconfig:"VARIANCE_THRESHOLD" default:"5"`

	// PatternSessions is how many closed sessions feed variance pattern
	// analysis.
	PatternSessions int `envconfig:"PATTERN_SESSIONS" default:"10"`

	// SessionMaxAge is how long a count session may stay open before the
	// day-end scheduler expires it.
	SessionMaxAge time.Duration `envconfig:"SESSION_MAX_AGE" default:"24h"`

	// SchedulerInterval is how often the expiry scheduler scans for
	// stale sessions. Zero disables the scheduler.
	SchedulerInterval time.Duration `envconfig:"SCHEDULER_INTERVAL" default:"15m"`

	// CORSOrigins is the comma-separated allowlist for browser clients.
	CORSOrigins []string `envconfig:"CORS_ORIGINS" default:"*"`

	// SeedDemo loads the taproom demo scenario on startup when the
	// database is empty.
	SeedDemo bool `envconfig:"SEED_DEMO" default:"false"`
}

// Load reads config from a .env file (if present) and the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}
