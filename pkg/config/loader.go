package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var dotenvOnce sync.Once

// Load populates the configuration struct from environment variables based
// on its `env` field tags. On first use it also loads a .env file from the
// working directory if one exists; a missing file is not an error.
//
// Example:
//
//	type Config struct {
//	    ConnString string `env:"PG_CONN_URL,required"`
//	    MaxConns   int32  `env:"PG_MAX_OPEN_CONNS" envDefault:"10"`
//	}
//
//	var cfg Config
//	if err := config.Load(&cfg); err != nil { /* ... */ }
func Load[T any](v *T) error {
	if v == nil {
		return ErrNilPointer
	}

	dotenvOnce.Do(func() {
		// The .env file is a local-development convenience only.
		_ = godotenv.Load()
	})

	if err := env.Parse(v); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}
	return nil
}

// MustLoad works like Load but panics on failure. Use it for configuration
// the process cannot start without.
func MustLoad[T any](v *T) {
	if err := Load(v); err != nil {
		panic(fmt.Sprintf("failed to load required configuration: %v", err))
	}
}
