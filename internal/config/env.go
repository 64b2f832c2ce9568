package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Lookup resolves an environment variable. os.LookupEnv satisfies it.
type Lookup func(key string) (string, bool)

// Env reads typed values through a Lookup, falling back to defaults on
// missing, empty or unparsable values.
type Env struct {
	lookup Lookup
}

// NewEnv creates an Env backed by lookup. A nil lookup uses os.LookupEnv.
func NewEnv(lookup Lookup) Env {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return Env{lookup: lookup}
}

// MapLookup adapts a map to a Lookup, mostly for tests.
func MapLookup(m map[string]string) Lookup {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func (e Env) raw(key string) string {
	lookup := e.lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	v, _ := lookup(key)
	return strings.TrimSpace(v)
}

// String returns the variable value or a default.
func (e Env) String(key, defaultValue string) string {
	if value := e.raw(key); value != "" {
		return value
	}
	return defaultValue
}

// Int returns an integer variable or a default.
func (e Env) Int(key string, defaultValue int) int {
	if value := e.raw(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// Duration returns a duration variable or a default.
func (e Env) Duration(key string, defaultValue time.Duration) time.Duration {
	if value := e.raw(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Bool returns a boolean variable or a default.
func (e Env) Bool(key string, defaultValue bool) bool {
	if value := e.raw(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// Secret reads a secret from the file named by the variable.
// Works with Docker secrets (/run/secrets/) and CI secret files.
func (e Env) Secret(key string) string {
	return GetSecretFile(e.raw(key))
}

// GetSecretFile reads a secret from a file path. Missing files yield "".
func GetSecretFile(path string) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
