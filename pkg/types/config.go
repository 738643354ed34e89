package types

import (
	"errors"
	"time"
)

// Config holds backend selection and parameters for Store.Attach.
type Config struct {
	Backend     string        `json:"backend" yaml:"backend"`
	DataDir     string        `json:"data_dir" yaml:"data_dir"`
	OpenTimeout time.Duration `json:"open_timeout" yaml:"open_timeout"`
}

// Supported backend names.
const (
	BackendSQLite = "sqlite"
)

// DefaultOpenTimeout bounds how long Attach waits for the store to open.
const DefaultOpenTimeout = 30 * time.Second

// Config validation errors.
var (
	ErrBackendEmpty       = errors.New("backend must not be empty")
	ErrBackendUnknown     = errors.New("unknown backend")
	ErrOpenTimeoutInvalid = errors.New("open timeout must not be negative")
)

// knownBackends lists the backends that Validate accepts.
var knownBackends = map[string]bool{
	BackendSQLite: true,
}

// Validate checks that the Config is well-formed. It returns a sentinel error
// from this package on failure.
func (c Config) Validate() error {
	if c.Backend == "" {
		return ErrBackendEmpty
	}
	if !knownBackends[c.Backend] {
		return ErrBackendUnknown
	}
	if c.OpenTimeout < 0 {
		return ErrOpenTimeoutInvalid
	}
	return nil
}

// GetOpenTimeout returns the configured timeout or DefaultOpenTimeout.
func (c Config) GetOpenTimeout() time.Duration {
	if c.OpenTimeout == 0 {
		return DefaultOpenTimeout
	}
	return c.OpenTimeout
}
