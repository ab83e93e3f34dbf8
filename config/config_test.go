package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/coyaSONG/coya-mcp-client/config"
	"github.com/coyaSONG/coya-mcp-client/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	file := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(file, []byte(content), 0644))
	return file
}

func Test_Load_Empty(t *testing.T) {
	t.Parallel()

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, config.DefaultModel, cfg.Settings.DefaultModel)
	assert.Empty(t, cfg.Providers)
}

func Test_Load(t *testing.T) {
	t.Setenv("TEST_OPENROUTER_KEY", "sk-from-env")

	file := writeConfig(t, `
settings:
  api_key: ${TEST_OPENROUTER_KEY}
  theme: dark
backend:
  base_url: https://openrouter.ai/api/v1
  referer: https://example.com/app
  title: Coya MCP Client
orchestrator:
  max_rounds: 4
  round_timeout_secs: 30
providers:
  - id: weather
    spec:
      kind: local-process
      server_path: /opt/providers/weather.py
  - id: search
    spec:
      kind: remote-endpoint
      url: wss://tools.example.com/mcp
`)

	cfg, err := config.Load(file)
	require.NoError(t, err)
	assert.Equal(t, "sk-from-env", cfg.Settings.APIKey)
	assert.Equal(t, config.DefaultModel, cfg.Settings.DefaultModel)
	assert.Equal(t, "dark", cfg.Settings.Theme)
	assert.Equal(t, 4, cfg.Orchestrator.MaxRounds)
	assert.Equal(t, 30*time.Second, cfg.Orchestrator.RoundTimeout())

	require.Len(t, cfg.Providers, 2)
	assert.Equal(t, registry.KindLocalProcess, cfg.Providers[0].Spec.Kind)
	assert.Equal(t, "/opt/providers/weather.py", cfg.Providers[0].Spec.ServerPath)
	assert.Equal(t, registry.KindRemoteEndpoint, cfg.Providers[1].Spec.Kind)
}

func Test_Load_InvalidProvider(t *testing.T) {
	t.Parallel()

	file := writeConfig(t, `
providers:
  - id: broken
    spec:
      kind: carrier-pigeon
`)
	_, err := config.Load(file)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid")
}

func Test_Load_MissingProviderID(t *testing.T) {
	t.Parallel()

	file := writeConfig(t, `
providers:
  - spec:
      kind: local-process
      server_path: /opt/providers/weather.py
`)
	_, err := config.Load(file)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func Test_Load_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := config.Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}
