package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("UIRT_JWT_KEY", "k")

	c, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, ":8443", c.Addr)
	assert.Equal(t, ":9090", c.MetricsAddr)
	assert.Equal(t, int32(10), c.MaxConns)
	assert.Equal(t, time.Hour, c.AccessTTL)
	assert.Equal(t, 10*time.Second, c.SubmitTimeout)
	assert.Equal(t, 5, c.LoginMaxFails)
	assert.False(t, c.SubmitAllowPrivate)
	assert.Equal(t, "k", c.JWTKey)
	assert.False(t, c.TLS())
}

func TestLoad_EnvFileDoesNotOverrideEnv(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(file, []byte("UIRT_ADDR=:7000\nUIRT_SEAL_KEY=from-file\nUIRT_MAX_DEPTH=4\n"), 0o600))

	t.Setenv("UIRT_ADDR", ":7777")
	// godotenv sets variables for the process; register them for cleanup
	t.Setenv("UIRT_SEAL_KEY", "")
	require.NoError(t, os.Unsetenv("UIRT_SEAL_KEY"))
	t.Setenv("UIRT_MAX_DEPTH", "")
	require.NoError(t, os.Unsetenv("UIRT_MAX_DEPTH"))

	c, err := Load(file)
	require.NoError(t, err)
	assert.Equal(t, ":7777", c.Addr)
	assert.Equal(t, "from-file", c.SealKey)
	assert.Equal(t, 4, c.MaxDepth)
}

func TestLoad_SubmitAllowHosts(t *testing.T) {
	t.Setenv("UIRT_SUBMIT_ALLOW_HOSTS", "hooks.example.com, api.example.com,,")
	t.Setenv("UIRT_SUBMIT_ALLOW_PRIVATE", "true")

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"hooks.example.com", "api.example.com"}, c.AllowHosts())
	assert.True(t, c.SubmitAllowPrivate)

	assert.Empty(t, Config{}.AllowHosts())
}

func TestLoad_BadValue(t *testing.T) {
	t.Setenv("UIRT_ACCESS_TTL", "soon")

	_, err := Load()
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	ok := Config{JWTKey: "j", SealKey: "s", DSN: "postgres://x"}
	require.NoError(t, ok.Validate())

	tests := []struct {
		name string
		mod  func(*Config)
	}{
		{"no jwt key", func(c *Config) { c.JWTKey = "" }},
		{"no seal key", func(c *Config) { c.SealKey = "" }},
		{"no dsn", func(c *Config) { c.DSN = "" }},
		{"half tls", func(c *Config) { c.TLSCert = "cert.pem" }},
		{"negative depth", func(c *Config) { c.MaxDepth = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := ok
			tt.mod(&c)
			assert.Error(t, c.Validate())
		})
	}
}
