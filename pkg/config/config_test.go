package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.yml")
	err := os.WriteFile(configPath, []byte(content), 0o644)
	require.NoError(t, err)
	return configPath
}

func TestLoad(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		configContent := `
server:
  listen: ":9090"
  timeout: 45s

feeds:
  groups:
    - category: TECHNOLOGY
      urls:
        - https://example.com/tech.xml
        - https://example.com/tech2.xml
    - category: CYBERSECURITY
      urls:
        - https://example.com/sec.xml
  entries_per_feed: 5

enrichment:
  endpoint: https://api.example.com/v1
  api_key: test-key
  model: gpt-4o-mini
  temperature: 0.7
`
		cfg, err := Load(writeConfig(t, configContent))
		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, ":9090", cfg.Server.Listen)
		assert.Equal(t, 45*time.Second, cfg.Server.Timeout)

		require.Len(t, cfg.Feeds.Groups, 2)
		assert.Equal(t, "TECHNOLOGY", cfg.Feeds.Groups[0].Category)
		assert.Equal(t, []string{"https://example.com/tech.xml", "https://example.com/tech2.xml"}, cfg.Feeds.Groups[0].URLs)
		assert.Equal(t, "CYBERSECURITY", cfg.Feeds.Groups[1].Category)
		assert.Equal(t, 5, cfg.Feeds.EntriesPerFeed)

		assert.Equal(t, "https://api.example.com/v1", cfg.Enrichment.Endpoint)
		assert.Equal(t, "gpt-4o-mini", cfg.Enrichment.Model)
		assert.InDelta(t, 0.7, cfg.Enrichment.Temperature, 0.001)
	})

	t.Run("defaults", func(t *testing.T) {
		configContent := `
feeds:
  groups:
    - category: TECHNOLOGY
      urls:
        - https://example.com/feed.xml

enrichment:
  endpoint: https://api.example.com/v1
  model: llama3
`
		cfg, err := Load(writeConfig(t, configContent))
		require.NoError(t, err)
		require.NotNil(t, cfg)

		// check server defaults
		assert.Equal(t, ":8080", cfg.Server.Listen)
		assert.Equal(t, 30*time.Second, cfg.Server.Timeout)

		// check database defaults
		assert.Equal(t, "file:knownav.db?cache=shared&mode=rwc&_txlock=immediate", cfg.Database.DSN)
		assert.Equal(t, 10, cfg.Database.MaxOpenConns)

		// check feeds defaults
		assert.Equal(t, 3, cfg.Feeds.EntriesPerFeed)
		assert.Equal(t, 30*time.Second, cfg.Feeds.Timeout)
		assert.Equal(t, 5, cfg.Feeds.MaxWorkers)
		assert.Equal(t, "Knownav/1.0", cfg.Feeds.UserAgent)

		// check enrichment defaults
		assert.InDelta(t, 0.3, cfg.Enrichment.Temperature, 0.001)
		assert.Equal(t, 500, cfg.Enrichment.MaxTokens)
		assert.Equal(t, 1024, cfg.Enrichment.MaxInputChars)
		assert.Equal(t, 2*time.Second, cfg.Enrichment.Pause)
		assert.Equal(t, 3, cfg.Enrichment.Retries)

		// check extraction defaults
		assert.False(t, cfg.Extraction.Enabled)
		assert.Equal(t, 100, cfg.Extraction.MinTextLength)

		// check classification defaults
		assert.Equal(t, "Tech", cfg.Classify.DefaultBucket)
		assert.Empty(t, cfg.Classify.Buckets)
	})

	t.Run("environment variable expansion", func(t *testing.T) {
		t.Setenv("TEST_KNOWNAV_KEY", "secret-from-env")
		configContent := `
feeds:
  groups:
    - category: TECHNOLOGY
      urls:
        - https://example.com/feed.xml

enrichment:
  endpoint: https://api.example.com/v1
  api_key: ${TEST_KNOWNAV_KEY}
  model: llama3
`
		cfg, err := Load(writeConfig(t, configContent))
		require.NoError(t, err)
		assert.Equal(t, "secret-from-env", cfg.Enrichment.APIKey)
	})

	t.Run("file not found", func(t *testing.T) {
		cfg, err := Load("/non/existent/file.yml")
		require.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "read config file")
	})

	t.Run("invalid yaml", func(t *testing.T) {
		configContent := `
invalid yaml content
  with bad indentation
    and no structure
`
		cfg, err := Load(writeConfig(t, configContent))
		require.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "parse config")
	})
}

func TestLoad_Validation(t *testing.T) {
	base := `
feeds:
  groups:
    - category: TECHNOLOGY
      urls:
        - https://example.com/feed.xml

enrichment:
  endpoint: https://api.example.com/v1
  model: llama3
`

	tests := []struct {
		name    string
		content string
		errMsg  string
	}{
		{
			name: "missing feed groups",
			content: `
enrichment:
  endpoint: https://api.example.com/v1
  model: llama3
`,
			errMsg: "feeds.groups is required",
		},
		{
			name: "group without category",
			content: `
feeds:
  groups:
    - urls:
        - https://example.com/feed.xml
enrichment:
  endpoint: https://api.example.com/v1
  model: llama3
`,
			errMsg: "missing category",
		},
		{
			name: "group without urls",
			content: `
feeds:
  groups:
    - category: TECHNOLOGY
enrichment:
  endpoint: https://api.example.com/v1
  model: llama3
`,
			errMsg: "has no urls",
		},
		{
			name: "missing enrichment endpoint",
			content: `
feeds:
  groups:
    - category: TECHNOLOGY
      urls:
        - https://example.com/feed.xml
enrichment:
  model: llama3
`,
			errMsg: "enrichment.endpoint is required",
		},
		{
			name: "missing enrichment model",
			content: `
feeds:
  groups:
    - category: TECHNOLOGY
      urls:
        - https://example.com/feed.xml
enrichment:
  endpoint: https://api.example.com/v1
`,
			errMsg: "enrichment.model is required",
		},
		{
			name:    "temperature out of range",
			content: base + "  temperature: 3.5\n",
			errMsg:  "temperature must be between 0 and 2",
		},
		{
			name: "bucket without name",
			content: base + `
classify:
  buckets:
    - keywords: [ai, ml]
`,
			errMsg: "missing name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestConfig_Getters(t *testing.T) {
	configContent := `
server:
  listen: ":3000"
  timeout: 15s

feeds:
  groups:
    - category: TECHNOLOGY
      urls:
        - https://example.com/feed.xml

enrichment:
  endpoint: https://api.example.com/v1
  model: llama3

extraction:
  enabled: true
  min_text_length: 250
`
	cfg, err := Load(writeConfig(t, configContent))
	require.NoError(t, err)

	listen, timeout := cfg.GetServerConfig()
	assert.Equal(t, ":3000", listen)
	assert.Equal(t, 15*time.Second, timeout)

	enrichment := cfg.GetEnrichmentConfig()
	assert.Equal(t, "llama3", enrichment.Model)

	extraction := cfg.GetExtractionConfig()
	assert.True(t, extraction.Enabled)
	assert.Equal(t, 250, extraction.MinTextLength)
}
