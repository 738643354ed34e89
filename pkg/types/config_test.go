package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr error
	}{
		{"missing backend", Config{DataDir: "/tmp/sectional"}, ErrBackendEmpty},
		{"backend other than sqlite", Config{Backend: "postgres"}, ErrBackendUnknown},
		{"negative open timeout", Config{Backend: BackendSQLite, OpenTimeout: -time.Second}, ErrOpenTimeoutInvalid},
		{"sqlite with data dir", Config{Backend: BackendSQLite, DataDir: "/tmp/sectional"}, nil},
		{"sqlite in working dir", Config{Backend: BackendSQLite}, nil},
		{"explicit open timeout", Config{Backend: BackendSQLite, OpenTimeout: time.Second}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestConfigGetOpenTimeout(t *testing.T) {
	assert.Equal(t, DefaultOpenTimeout, Config{}.GetOpenTimeout())
	assert.Equal(t, 5*time.Second, Config{OpenTimeout: 5 * time.Second}.GetOpenTimeout())
}
