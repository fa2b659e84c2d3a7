package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
catalog:
  sources:
    - type: file
      settings:
        path: modules.yaml
`

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, ":8090", cfg.Server.Addr)
	assert.Equal(t, "/metrics", cfg.Server.MetricsPath)
	assert.Equal(t, 5*time.Second, cfg.Playback.BufferThreshold)
	assert.Equal(t, 100*time.Millisecond, cfg.Playback.UpdateInterval)
	assert.True(t, cfg.Playback.AudioMode.StaysActiveInBackground)
	assert.True(t, cfg.Playback.AudioMode.PlaysInSilentMode)
	assert.True(t, cfg.Playback.AudioMode.DuckOthers)
	assert.True(t, cfg.Player.PrefetchNext)
	assert.Equal(t, 300.0, cfg.Player.SeekBarWidth)
	assert.Equal(t, 100.0, cfg.MiniPlayer.DismissThreshold)
	assert.Equal(t, 200.0, cfg.MiniPlayer.FadeDistance)
	assert.Equal(t, 2.0, cfg.MiniPlayer.DirectionRatio)
	assert.Equal(t, 8, cfg.Media.CacheEntries)
	assert.Equal(t, "us-east-1", cfg.Media.S3.Region)
	assert.Equal(t, "trackbox-settings.db", cfg.Settings.Path)
	assert.Equal(t, "premium", cfg.Billing.EntitlementID)
	assert.Equal(t, 3, cfg.Billing.MaxRetries)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, []string{"file"}, cfg.SourceTypes())
}

func TestParse_ExplicitValues(t *testing.T) {
	cfg, err := Parse([]byte(`
server:
  addr: "127.0.0.1:9000"
playback:
  buffer_threshold: 3s
  update_interval: 250ms
  audio_mode:
    duck_others: false
catalog:
  sources:
    - type: supabase
      display_name: Cloud
      settings:
        url: https://example.supabase.co
    - type: file
      settings:
        path: fallback.yaml
`))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, 3*time.Second, cfg.Playback.BufferThreshold)
	assert.Equal(t, 250*time.Millisecond, cfg.Playback.UpdateInterval)
	assert.False(t, cfg.Playback.AudioMode.DuckOthers)
	assert.Equal(t, []string{"supabase", "file"}, cfg.SourceTypes())
	assert.Equal(t, "Cloud", cfg.Catalog.Sources[0].DisplayName)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid config",
			yaml:    minimalYAML,
			wantErr: false,
		},
		{
			name:    "no catalog sources",
			yaml:    "server:\n  addr: \":1\"\n",
			wantErr: true,
			errMsg:  "Sources",
		},
		{
			name: "unknown source type",
			yaml: `
catalog:
  sources:
    - type: ftp
`,
			wantErr: true,
			errMsg:  "Type",
		},
		{
			name: "billing enabled without key",
			yaml: minimalYAML + `
billing:
  enabled: true
  app_user_id: user-1
`,
			wantErr: true,
			errMsg:  "APIKey",
		},
		{
			name: "interval above threshold",
			yaml: minimalYAML + `
playback:
  buffer_threshold: 1s
  update_interval: 2s
`,
			wantErr: true,
			errMsg:  "update_interval",
		},
		{
			name: "bad log level",
			yaml: minimalYAML + `
logging:
  level: verbose
`,
			wantErr: true,
			errMsg:  "Level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("TRACKBOX_CONTROL_TOKEN", "env-token")
	t.Setenv("SUPABASE_API_KEY", "env-anon-key")
	t.Setenv("REVENUECAT_API_KEY", "env-rc-key")
	t.Setenv("AWS_S3_ENDPOINT", "http://localhost:9000")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  control_token: file-token
billing:
  enabled: true
  app_user_id: user-1
catalog:
  sources:
    - type: supabase
      settings:
        url: https://example.supabase.co
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "env-token", cfg.Server.ControlToken)
	assert.Equal(t, "env-anon-key", cfg.Catalog.Sources[0].Settings["api_key"])
	assert.Equal(t, "env-rc-key", cfg.Billing.APIKey)
	assert.Equal(t, "http://localhost:9000", cfg.Media.S3.Endpoint)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestConfig_Filters(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML + `
filters:
  premium_filter:
    enabled: true
    settings:
      entitlement_id: pro
  media_ref_filter:
    enabled: false
`))
	require.NoError(t, err)

	assert.True(t, cfg.IsFilterEnabled("premium_filter"))
	assert.False(t, cfg.IsFilterEnabled("media_ref_filter"))
	assert.False(t, cfg.IsFilterEnabled("unknown"))
	assert.Equal(t, "pro", cfg.FilterSettings("premium_filter")["entitlement_id"])
	assert.Nil(t, cfg.FilterSettings("unknown"))
}
