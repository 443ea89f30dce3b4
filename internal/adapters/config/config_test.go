package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutConfigFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "http://127.0.0.1:9223", cfg.DevtoolsURL)
	assert.Empty(t, cfg.PageURLPattern)
	assert.False(t, cfg.Verbose)

	assert.Equal(t, 10*time.Second, cfg.ProbeTimeout)
	assert.Equal(t, 2, cfg.ProbeRetries)
	assert.Equal(t, 10, cfg.NoiseThreshold)

	assert.Equal(t, 60*time.Second, cfg.ResponseTimeout)
	assert.Equal(t, time.Second, cfg.PollInterval)
	assert.Equal(t, 5*time.Second, cfg.StartTimeout)
	assert.Equal(t, 4, cfg.MaxConcurrent)
	assert.False(t, cfg.Multiplex)

	assert.Equal(t, 5*time.Minute, cfg.SweepInterval)
	assert.Equal(t, 24*time.Hour, cfg.AnchorMaxAge)
	assert.Equal(t, 1000, cfg.MaxContexts)

	assert.Empty(t, cfg.Mattermost.URL)
	assert.Equal(t, 2*time.Second, cfg.Mattermost.PollInterval)
}

func TestLoadReadsConfigFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	dir := filepath.Join(home, ".deskbridge")
	require.NoError(t, os.MkdirAll(dir, 0o700))

	contents := `verbose = true

[surface]
devtools_url = "http://127.0.0.1:9333"
page_url_pattern = "chat.example.com"

[bridge]
response_timeout = "90s"
poll_interval = "500ms"
multiplex = true

[mattermost]
url = "https://mm.example.com"
team_id = "team-1"
mention_patterns = ["@relay", "@bridge"]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(contents), 0o600))

	cfg, err := Load(viper.New())
	require.NoError(t, err)

	assert.True(t, cfg.Verbose)
	assert.Equal(t, "http://127.0.0.1:9333", cfg.DevtoolsURL)
	assert.Equal(t, "chat.example.com", cfg.PageURLPattern)
	assert.Equal(t, 90*time.Second, cfg.ResponseTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.PollInterval)
	assert.True(t, cfg.Multiplex)
	assert.Equal(t, "https://mm.example.com", cfg.Mattermost.URL)
	assert.Equal(t, []string{"@relay", "@bridge"}, cfg.Mattermost.MentionPatterns)

	// Untouched keys keep their defaults.
	assert.Equal(t, 2, cfg.ProbeRetries)
}

func TestLoadRejectsBrokenValues(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	dir := filepath.Join(home, ".deskbridge")
	require.NoError(t, os.MkdirAll(dir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"),
		[]byte("[surface]\ndevtools_url = \"\"\n"), 0o600))

	_, err := Load(viper.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "devtools_url")
}
