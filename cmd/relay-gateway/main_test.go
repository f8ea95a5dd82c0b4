package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/relay-gateway/internal/config"
)

func TestRenderConfig_LoadsBack(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gateway.yaml")

	content := renderConfig(configOptions{
		HTTPAddr:    "localhost:9090",
		GRPCAddr:    "localhost:50051",
		DBPath:      filepath.Join(dir, "relay.db"),
		JWTSecret:   "0123456789abcdef0123456789abcdef-jwt",
		SecretKey:   "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f",
		PresenceTTL: "90s",
		LogLevel:    "debug",
		LogFormat:   "json",
		Metrics:     true,
	})
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "localhost:9090", cfg.Server.HTTPAddr)
	assert.Equal(t, "localhost:50051", cfg.Server.GRPCAddr)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 90*time.Second, cfg.Presence.TTL)
	assert.Equal(t, 3*time.Second, cfg.Push.Timeout)
	assert.True(t, cfg.Metrics.Enabled)
	assert.False(t, cfg.Tailscale.Enabled)

	key, err := cfg.SecretKeyBytes()
	require.NoError(t, err)
	assert.Len(t, key, 32)
}

func TestRenderConfig_Tailscale(t *testing.T) {
	content := renderConfig(configOptions{
		HTTPAddr:          "localhost:8080",
		DBPath:            "/tmp/relay.db",
		JWTSecret:         "x",
		TailscaleEnabled:  true,
		TailscaleHostname: "relay",
		TailscaleFunnel:   true,
		LogLevel:          "info",
		LogFormat:         "text",
	})
	assert.Contains(t, content, "tailscale:\n  enabled: true\n  hostname: \"relay\"")
	assert.Contains(t, content, "funnel: true")
	assert.NotContains(t, content, "secret_key")
}

func TestSetupLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := setupLogger(config.LoggingConfig{Level: "warn", Format: "json"}, &buf)

	logger.Info("dropped")
	logger.Warn("kept", "tenant_id", "t1")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "kept", rec["msg"])
	assert.Equal(t, "t1", rec["tenant_id"])
}

func TestColorHandler_AttrsAndGroups(t *testing.T) {
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = false })

	var buf bytes.Buffer
	logger := setupLogger(config.LoggingConfig{Level: "debug", Format: "text"}, &buf)

	logger.With("component", "gateway").WithGroup("poll").Info("claimed", "count", 3)

	line := buf.String()
	assert.Contains(t, line, "INF claimed")
	assert.Contains(t, line, " component=gateway")
	assert.Contains(t, line, " poll.count=3")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, "DEBUG", parseLevel("DEBUG").String())
	assert.Equal(t, "INFO", parseLevel("bogus").String())
	assert.Equal(t, "ERROR", parseLevel("error").String())
}
