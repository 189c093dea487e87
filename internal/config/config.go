// Package config reads the process configuration from a .env file and the
// environment. User preferences live in the settings file instead.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Environment variables
const (
	EnvSettingsFile = "NTS_SETTINGS_FILE"
	EnvDebug        = "NTS_DEBUG"
	EnvReadOnly     = "NTS_READ_ONLY"
	EnvHAURL        = "HA_URL"
	EnvHAToken      = "HA_TOKEN"
	EnvHAEntity     = "HA_ENTITY"
	EnvAPIPort      = "NTS_API_PORT"
)

// Config holds the process configuration
type Config struct {
	// SettingsFile overrides the default settings file location
	SettingsFile string
	Debug        bool
	// ReadOnly logs the changes instead of making them
	ReadOnly bool

	HAURL    string
	HAToken  string
	HAEntity string

	// APIPort enables the local status API when non zero
	APIPort int

	// EnvFileLoaded is false when no .env file was found
	EnvFileLoaded bool
}

// LookupFunc reads a variable, like os.LookupEnv
type LookupFunc func(key string) (string, bool)

// Load reads the given .env files, ".env" when none is given, then the
// environment. Variables already set in the environment win. A missing
// .env file is not an error.
func Load(files ...string) (*Config, error) {
	loaded := true
	if err := godotenv.Load(files...); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file: %w", err)
		}
		loaded = false
	}

	cfg, err := FromLookup(os.LookupEnv)
	if err != nil {
		return nil, err
	}
	cfg.EnvFileLoaded = loaded
	return cfg, nil
}

// FromLookup builds the configuration from a variable lookup
func FromLookup(lookup LookupFunc) (*Config, error) {
	get := func(key string) string {
		value, _ := lookup(key)
		return value
	}

	debug, err := parseBool(EnvDebug, get(EnvDebug))
	if err != nil {
		return nil, err
	}
	readOnly, err := parseBool(EnvReadOnly, get(EnvReadOnly))
	if err != nil {
		return nil, err
	}

	apiPort := 0
	if value := get(EnvAPIPort); value != "" {
		apiPort, err = strconv.Atoi(value)
		if err != nil || apiPort < 0 || apiPort > 65535 {
			return nil, fmt.Errorf("invalid %s: %q is not a port", EnvAPIPort, value)
		}
	}

	cfg := &Config{
		SettingsFile: get(EnvSettingsFile),
		Debug:        debug,
		ReadOnly:     readOnly,
		HAURL:        get(EnvHAURL),
		HAToken:      get(EnvHAToken),
		HAEntity:     get(EnvHAEntity),
		APIPort:      apiPort,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseBool(key, value string) (bool, error) {
	if value == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %q is not a boolean", key, value)
	}
	return b, nil
}

// Validate checks that the Home Assistant settings are complete or absent
func (c *Config) Validate() error {
	set := 0
	for _, v := range []string{c.HAURL, c.HAToken, c.HAEntity} {
		if v != "" {
			set++
		}
	}
	if set != 0 && set != 3 {
		return fmt.Errorf("%s, %s and %s must be set together", EnvHAURL, EnvHAToken, EnvHAEntity)
	}
	return nil
}

// HomeAssistantEnabled reports whether the state is mirrored to Home Assistant
func (c *Config) HomeAssistantEnabled() bool {
	return c.HAURL != "" && c.HAToken != "" && c.HAEntity != ""
}
