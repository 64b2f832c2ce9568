// Package config builds the deploy configuration from dw.json-style files,
// command-line overrides and environment tunables.
package config

import (
	"encoding/json"
	"fmt"
	"impexdeploy/internal/apperrors"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// PlaceholderCredential is substituted for a missing client ID or secret.
// The account manager rejects it, which surfaces as an authentication failure.
const PlaceholderCredential = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"

const masked = "******"

// WellKnownFiles are probed relative to the working directory, in order.
// When several exist, the last one wins.
var WellKnownFiles = []string{
	"dw.json",
	filepath.Join("cartridges", "dw.json"),
}

// Config is the validated input of one deploy run. It is built once and
// treated as read-only afterwards.
type Config struct {
	Hostname     string
	Username     string
	Password     string
	ClientID     string
	ClientSecret string
	SourcePath   string
}

// Values holds the raw, possibly partial, settings from one source.
// Field tags follow the dw.json key names.
type Values struct {
	Hostname       string `json:"hostname" yaml:"hostname" toml:"hostname"`
	Username       string `json:"username" yaml:"username" toml:"username"`
	Password       string `json:"password" yaml:"password" toml:"password"`
	ClientID       string `json:"clientId" yaml:"clientId" toml:"clientId"`
	ClientPassword string `json:"clientPassword" yaml:"clientPassword" toml:"clientPassword"`
	FolderToImport string `json:"folderToImport" yaml:"folderToImport" toml:"folderToImport"`
}

// FindFile returns the effective well-known config file under dir.
func FindFile(dir string) (string, bool) {
	found := ""
	for _, name := range WellKnownFiles {
		path := filepath.Join(dir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			found = path
		}
	}
	return found, found != ""
}

// LoadFile parses a config file. The format follows the extension:
// .json (default), .yaml/.yml or .toml.
func LoadFile(path string) (Values, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Values{}, &apperrors.Error{
			Sentinel: apperrors.ErrConfig,
			Message:  fmt.Sprintf("read config file %s: %v", path, err),
			Op:       "config.load",
			Cause:    err,
		}
	}

	var v Values
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &v)
	case ".toml":
		err = toml.Unmarshal(data, &v)
	default:
		err = json.Unmarshal(data, &v)
	}
	if err != nil {
		return Values{}, &apperrors.Error{
			Sentinel: apperrors.ErrConfig,
			Message:  fmt.Sprintf("parse config file %s: %v", path, err),
			Op:       "config.load",
			Cause:    err,
		}
	}
	return v, nil
}

// Merge combines file values with flag overrides. Non-empty overrides win.
// Missing client credentials fall back to PlaceholderCredential.
func Merge(file, overrides Values) Config {
	pick := func(base, override string) string {
		if override != "" {
			return override
		}
		return base
	}

	cfg := Config{
		Hostname:     pick(file.Hostname, overrides.Hostname),
		Username:     pick(file.Username, overrides.Username),
		Password:     pick(file.Password, overrides.Password),
		ClientID:     pick(file.ClientID, overrides.ClientID),
		ClientSecret: pick(file.ClientPassword, overrides.ClientPassword),
		SourcePath:   pick(file.FolderToImport, overrides.FolderToImport),
	}
	if cfg.ClientID == "" {
		cfg.ClientID = PlaceholderCredential
	}
	if cfg.ClientSecret == "" {
		cfg.ClientSecret = PlaceholderCredential
	}
	return cfg
}

// Validate checks that every field required for a run is present.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Hostname) == "" {
		return apperrors.Config("hostname", "hostname is required")
	}
	if strings.Contains(c.Hostname, "/") {
		return apperrors.Config("hostname", fmt.Sprintf("hostname must not contain a scheme or path, got %q", c.Hostname))
	}
	if c.Username == "" {
		return apperrors.Config("username", "username is required")
	}
	if c.Password == "" {
		return apperrors.Config("password", "password is required")
	}
	if c.SourcePath == "" {
		return apperrors.Config("folderToImport", "folder to import is required")
	}
	return nil
}

// UsesPlaceholder reports whether either client credential is the placeholder.
func (c Config) UsesPlaceholder() bool {
	return c.ClientID == PlaceholderCredential || c.ClientSecret == PlaceholderCredential
}

// Masked returns a copy safe for printing.
func (c Config) Masked() Config {
	m := c
	if m.Password != "" {
		m.Password = masked
	}
	if m.ClientSecret != "" && m.ClientSecret != PlaceholderCredential {
		m.ClientSecret = masked
	}
	return m
}

// MarshalJSON renders the config with dw.json key names.
func (c Config) MarshalJSON() ([]byte, error) {
	return json.Marshal(Values{
		Hostname:       c.Hostname,
		Username:       c.Username,
		Password:       c.Password,
		ClientID:       c.ClientID,
		ClientPassword: c.ClientSecret,
		FolderToImport: c.SourcePath,
	})
}
