package am

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/teranos/briefing/internal/util"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "am.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), DefaultFilePermissions))
	return path
}

func defaultConfig(t *testing.T) *Config {
	t.Helper()
	v := viper.New()
	SetDefaults(v)
	cfg, err := LoadWithViper(v)
	require.NoError(t, err)
	return cfg
}

func TestDefaultsAreValid(t *testing.T) {
	cfg := defaultConfig(t)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "briefing.db", cfg.GetDatabasePath())
	assert.Equal(t, DefaultServerPort, cfg.GetServerPort())
	assert.Equal(t, MailTransportLog, cfg.Mail.Transport)
	assert.Equal(t, "UTC", cfg.Delivery.DefaultTimezone)
	assert.Equal(t, 30*time.Second, cfg.TickerInterval())
	assert.Equal(t, 30*time.Second, cfg.QueryTimeout())
}

func TestLoadFromFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
[mail]
transport = "smtp"
host = "smtp.example.com"
port = 2525
from = "Reports <reports@example.com>"
max_per_minute = 5

[delivery]
default_timezone = "Europe/Amsterdam"
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "smtp.example.com", cfg.Mail.Host)
	assert.Equal(t, 2525, cfg.Mail.Port)
	assert.Equal(t, 5, cfg.Mail.MaxPerMinute)
	assert.Equal(t, "Europe/Amsterdam", cfg.Delivery.DefaultTimezone)
	// untouched sections keep defaults
	assert.Equal(t, 4, cfg.Refresh.MaxConcurrency)
}

func TestLoadFromFileMissing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestMergeConfigFilesPrecedence(t *testing.T) {
	user := writeConfig(t, `
[pulse]
workers = 3
ticker_interval_seconds = 10
`)
	project := writeConfig(t, `
[pulse]
workers = 8
`)

	v := viper.New()
	SetDefaults(v)
	mergeConfigFiles(v, []string{"/does/not/exist.toml", user, project})

	cfg, err := LoadWithViper(v)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Pulse.Workers, "project wins over user")
	assert.Equal(t, 10, cfg.Pulse.TickerIntervalSeconds, "user value kept where project is silent")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"zero port", func(c *Config) { c.Server.Port = util.Ptr(0) }, "server.port cannot be 0"},
		{"negative port", func(c *Config) { c.Server.Port = util.Ptr(-1) }, "server.port must be positive"},
		{"no workers", func(c *Config) { c.Pulse.Workers = 0 }, "pulse.workers"},
		{"negative ticker", func(c *Config) { c.Pulse.TickerIntervalSeconds = -1 }, "ticker_interval_seconds"},
		{"bad driver", func(c *Config) { c.Warehouse.Driver = "oracle" }, "warehouse.driver"},
		{"zero max rows", func(c *Config) { c.Warehouse.MaxRows = 0 }, "warehouse.max_rows"},
		{"smtp without host", func(c *Config) { c.Mail.Transport = MailTransportSMTP }, "mail.host"},
		{"unknown transport", func(c *Config) { c.Mail.Transport = "pigeon" }, "mail.transport"},
		{"bad from", func(c *Config) { c.Mail.From = "not an address" }, "mail.from"},
		{"zero refresh concurrency", func(c *Config) { c.Refresh.MaxConcurrency = 0 }, "refresh.max_concurrency"},
		{"bad timezone", func(c *Config) { c.Delivery.DefaultTimezone = "Mars/Olympus" }, "default_timezone"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestUnknownKeys(t *testing.T) {
	path := writeConfig(t, `
[mail]
host = "smtp.example.com"
max_per_minutes = 5

[refersh]
max_concurrency = 2
`)

	keys, err := UnknownKeys(path)
	require.NoError(t, err)
	assert.Contains(t, keys, "mail.max_per_minutes")
	assert.Contains(t, keys, "refersh.max_concurrency")
	assert.NotContains(t, keys, "mail.host")
}

func TestMarshalFormats(t *testing.T) {
	cfg := defaultConfig(t)
	cfg.Mail.Password = "hunter2"
	red := cfg.Redacted()
	assert.Equal(t, "hunter2", cfg.Mail.Password, "Redacted must not modify the original")

	data, err := Marshal(red, "json")
	require.NoError(t, err)
	var asJSON map[string]any
	require.NoError(t, json.Unmarshal(data, &asJSON))
	assert.Equal(t, "********", asJSON["mail"].(map[string]any)["password"])

	data, err = Marshal(red, "yaml")
	require.NoError(t, err)
	var asYAML map[string]any
	require.NoError(t, yaml.Unmarshal(data, &asYAML))
	assert.Contains(t, asYAML, "warehouse")

	data, err = Marshal(red, "toml")
	require.NoError(t, err)
	assert.Contains(t, string(data), "[delivery]")

	_, err = Marshal(red, "xml")
	assert.Error(t, err)
}

func TestConfigWatcherReloads(t *testing.T) {
	path := writeConfig(t, "[mail]\nmax_per_minute = 10\n")

	cw, err := NewConfigWatcher(path)
	require.NoError(t, err)
	cw.debouncePeriod = 10 * time.Millisecond
	cw.Start()
	defer cw.Stop()

	var mu sync.Mutex
	var got []int
	cw.OnReload(func(c *Config) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, c.Mail.MaxPerMinute)
		return nil
	})

	require.NoError(t, os.WriteFile(path, []byte("[mail]\nmax_per_minute = 42\n"), DefaultFilePermissions))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) > 0 && got[len(got)-1] == 42
	}, 2*time.Second, 10*time.Millisecond)
}

func TestConfigWatcherSkipsInvalidReload(t *testing.T) {
	path := writeConfig(t, "")

	cw, err := NewConfigWatcher(path)
	require.NoError(t, err)
	defer cw.Stop()

	called := false
	cw.OnReload(func(*Config) error { called = true; return nil })

	require.NoError(t, os.WriteFile(path, []byte("[refresh]\nmax_concurrency = 0\n"), DefaultFilePermissions))
	assert.Error(t, cw.reload())
	assert.False(t, called)
}
