// Package config loads server settings from .env files and UIRT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Config holds server settings. Command-line flags override these values.
type Config struct {
	Addr        string `env:"UIRT_ADDR,default=:8443"`
	MetricsAddr string `env:"UIRT_METRICS_ADDR,default=:9090"`
	DSN         string `env:"UIRT_DSN,default=postgres://localhost:5432/uiruntime"`
	MaxConns    int32  `env:"UIRT_MAX_CONNS,default=10"`

	JWTKey    string        `env:"UIRT_JWT_KEY"`
	SealKey   string        `env:"UIRT_SEAL_KEY"`
	AccessTTL time.Duration `env:"UIRT_ACCESS_TTL,default=1h"`

	SubmitTimeout      time.Duration `env:"UIRT_SUBMIT_TIMEOUT,default=10s"`
	SubmitAllowHosts   string        `env:"UIRT_SUBMIT_ALLOW_HOSTS"` // comma separated; empty allows any public host
	SubmitAllowPrivate bool          `env:"UIRT_SUBMIT_ALLOW_PRIVATE,default=false"`
	MaxDepth           int           `env:"UIRT_MAX_DEPTH,default=0"`

	LoginWindow   time.Duration `env:"UIRT_LOGIN_WINDOW,default=15m"`
	LoginMaxFails int           `env:"UIRT_LOGIN_MAX_FAILS,default=5"`
	LoginBlock    time.Duration `env:"UIRT_LOGIN_BLOCK,default=15m"`

	TLSCert string `env:"UIRT_TLS_CERT"`
	TLSKey  string `env:"UIRT_TLS_KEY"`
}

// Load reads the given .env files, when present, then decodes the environment.
// Variables already set in the environment win over .env values.
func Load(envFiles ...string) (Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	var c Config
	if err := envdecode.Decode(&c); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("decode env: %w", err)
	}
	return c, nil
}

// Validate checks settings the server cannot start without.
func (c Config) Validate() error {
	if c.JWTKey == "" {
		return errors.New("missing jwt signing key (UIRT_JWT_KEY or --jwt-key)")
	}
	if c.SealKey == "" {
		return errors.New("missing instance seal key (UIRT_SEAL_KEY or --seal-key)")
	}
	if c.DSN == "" {
		return errors.New("missing database DSN")
	}
	if (c.TLSCert == "") != (c.TLSKey == "") {
		return errors.New("tls cert and key must be set together")
	}
	if c.MaxConns < 0 || c.MaxDepth < 0 || c.LoginMaxFails < 0 {
		return errors.New("negative limits are not allowed")
	}
	return nil
}

// AllowHosts splits SubmitAllowHosts.
func (c Config) AllowHosts() []string {
	return strings.FieldsFunc(c.SubmitAllowHosts, func(r rune) bool { return r == ',' || r == ' ' })
}

// TLS reports whether the gRPC listener serves TLS.
func (c Config) TLS() bool { return c.TLSCert != "" }
