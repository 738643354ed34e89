package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/mesh-intelligence/sectional/pkg/types"
)

const (
	configFileName = "config"
	configFileType = "yaml"
	configFileExt  = "config.yaml"

	cfgKeyBackend     = "backend"
	cfgKeyDataDir     = "data_dir"
	cfgKeyOpenTimeout = "open_timeout"
	cfgKeySeedFile    = "seed_file"
	cfgKeyListen      = "listen"

	defaultListen = "127.0.0.1:8080"
)

// defaultConfigYAML is written to config.yaml on first run.
const defaultConfigYAML = `# sectional configuration

# Storage backend
backend: sqlite

# Data directory (optional; overridable by --data-dir)
# data_dir:

# How long to wait for the store to open
open_timeout: 30s

# YAML seed used by init instead of the demo sections (optional)
# seed_file:

# Address for the serve command
listen: 127.0.0.1:8080
`

// settings are the values read from config.yaml.
type settings struct {
	configDir   string
	backend     string
	dataDir     string
	openTimeout time.Duration
	seedFile    string
	listen      string
}

// loadConfig reads config.yaml from configDir using Viper. It creates the
// directory and a default config.yaml on first run.
func loadConfig(configDir string) (settings, error) {
	if err := ensureConfigDir(configDir); err != nil {
		return settings{}, fmt.Errorf("ensure config dir: %w", err)
	}
	if err := ensureDefaultConfigFile(configDir); err != nil {
		return settings{}, fmt.Errorf("ensure default config: %w", err)
	}

	v := viper.New()
	v.SetDefault(cfgKeyBackend, types.BackendSQLite)
	v.SetDefault(cfgKeyOpenTimeout, types.DefaultOpenTimeout)
	v.SetDefault(cfgKeyListen, defaultListen)
	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return settings{}, fmt.Errorf("read config: %w", err)
		}
	}

	s := settings{
		configDir:   configDir,
		backend:     v.GetString(cfgKeyBackend),
		dataDir:     v.GetString(cfgKeyDataDir),
		openTimeout: v.GetDuration(cfgKeyOpenTimeout),
		seedFile:    v.GetString(cfgKeySeedFile),
		listen:      v.GetString(cfgKeyListen),
	}
	if s.seedFile != "" && !filepath.IsAbs(s.seedFile) {
		s.seedFile = filepath.Join(configDir, s.seedFile)
	}
	return s, nil
}

func ensureConfigDir(configDir string) error {
	return os.MkdirAll(configDir, 0o755)
}

// ensureDefaultConfigFile creates config.yaml unless it already exists.
func ensureDefaultConfigFile(configDir string) error {
	path := filepath.Join(configDir, configFileExt)

	_, err := os.Stat(path)
	if err == nil {
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("stat config file: %w", err)
	}
	return os.WriteFile(path, []byte(defaultConfigYAML), 0o644)
}
