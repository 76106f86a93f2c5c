package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/semchat/errors"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func noEnv(l *Loader) *Loader {
	l.lookupEnv = func(string) (string, bool) { return "", false }
	return l
}

func TestLoader_Defaults(t *testing.T) {
	cfg, err := noEnv(NewLoader()).Load()
	require.NoError(t, err)

	assert.Equal(t, StoreNATS, cfg.Store.Driver)
	assert.Equal(t, RealtimeStore, cfg.Realtime.Driver)
	assert.Equal(t, []string{"nats://localhost:4222"}, cfg.NATS.URLs)
	assert.Equal(t, "semchat_messages", cfg.NATS.Bucket)
	assert.Equal(t, 5*time.Second, cfg.NATS.Timeout)
	assert.Equal(t, -1, cfg.NATS.MaxReconnects)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 5, cfg.Store.BreakerFailures)
	assert.Equal(t, 30*time.Second, cfg.Store.BreakerTimeout)
	assert.Equal(t, 5.0, cfg.HTTP.WriteRate)
	assert.Equal(t, 10, cfg.HTTP.WriteBurst)
	assert.Empty(t, cfg.Identity)
}

func TestLoader_LoadYAML(t *testing.T) {
	path := writeConfig(t, "semchat.yaml", `
identity: quiet_teal_otter
store:
  driver: memory
  breaker_timeout: 1m
realtime:
  driver: redis
redis:
  addr: cache:6379
  db: 2
http:
  write_rate: 0.5
`)

	cfg, err := noEnv(NewLoader()).LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "quiet_teal_otter", cfg.Identity)
	assert.Equal(t, StoreMemory, cfg.Store.Driver)
	assert.Equal(t, time.Minute, cfg.Store.BreakerTimeout)
	assert.Equal(t, 5, cfg.Store.BreakerFailures)
	assert.Equal(t, RealtimeRedis, cfg.Realtime.Driver)
	assert.Equal(t, "cache:6379", cfg.Redis.Addr)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.Equal(t, "semchat.events", cfg.Redis.Channel)
	assert.Equal(t, 0.5, cfg.HTTP.WriteRate)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
}

func TestLoader_MixedLayers(t *testing.T) {
	base := writeConfig(t, "base.json", `{"http": {"addr": ":9000"}}`)
	over := writeConfig(t, "override.yml", "http:\n  addr: \":9100\"\n")

	loader := noEnv(NewLoader())
	loader.AddLayer(base)
	loader.AddLayer(over)
	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, ":9100", cfg.HTTP.Addr)
}

func TestLoader_LoadJSON(t *testing.T) {
	path := writeConfig(t, "semchat.json", `{
		"identity": "quiet_teal_otter",
		"store": {"driver": "mongo"},
		"mongo": {"uri": "mongodb://db:27017"},
		"nats": {"reconnect_wait": "500ms"},
		"shutdown_timeout": "3s"
	}`)

	cfg, err := noEnv(NewLoader()).LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "quiet_teal_otter", cfg.Identity)
	assert.Equal(t, StoreMongo, cfg.Store.Driver)
	assert.Equal(t, "mongodb://db:27017", cfg.Mongo.URI)
	// untouched siblings keep their defaults
	assert.Equal(t, "semchat", cfg.Mongo.Database)
	assert.Equal(t, "messages", cfg.Mongo.Collection)
	assert.Equal(t, 500*time.Millisecond, cfg.NATS.ReconnectWait)
	assert.Equal(t, 5*time.Second, cfg.NATS.Timeout)
	assert.Equal(t, 3*time.Second, cfg.ShutdownTimeout)
}

func TestLoader_LayersMergeInOrder(t *testing.T) {
	base := writeConfig(t, "base.json", `{"http": {"addr": ":9000"}, "redis": {"channel": "a"}}`)
	over := writeConfig(t, "override.json", `{"redis": {"channel": "b"}}`)

	loader := noEnv(NewLoader())
	loader.AddLayer(base)
	loader.AddLayer(over)
	cfg, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.HTTP.Addr)
	assert.Equal(t, "b", cfg.Redis.Channel)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
}

func TestLoader_EnvOverrides(t *testing.T) {
	env := map[string]string{
		"SEMCHAT_IDENTITY":        "env_user",
		"SEMCHAT_STORE_DRIVER":    "memory",
		"SEMCHAT_REALTIME_DRIVER": "redis",
		"SEMCHAT_NATS_URLS":       "nats://a:4222, nats://b:4222,",
		"SEMCHAT_REDIS_ADDR":      "cache:6379",
		"SEMCHAT_REDIS_DB":        "2",
		"SEMCHAT_HTTP_ADDR":       ":7000",
	}
	loader := NewLoader()
	loader.lookupEnv = func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, "env_user", cfg.Identity)
	assert.Equal(t, StoreMemory, cfg.Store.Driver)
	assert.Equal(t, RealtimeRedis, cfg.Realtime.Driver)
	assert.Equal(t, []string{"nats://a:4222", "nats://b:4222"}, cfg.NATS.URLs)
	assert.Equal(t, "cache:6379", cfg.Redis.Addr)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.Equal(t, ":7000", cfg.HTTP.Addr)
}

func TestLoader_EnvPrefix(t *testing.T) {
	t.Setenv("CHATTEST_HTTP_ADDR", ":6060")

	loader := NewLoader()
	loader.SetEnvPrefix("CHATTEST")
	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, ":6060", cfg.HTTP.Addr)
}

func TestLoader_BadEnv(t *testing.T) {
	loader := NewLoader()
	loader.lookupEnv = func(k string) (string, bool) {
		if k == "SEMCHAT_REDIS_DB" {
			return "two", true
		}
		return "", false
	}

	_, err := loader.Load()
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestLoader_FileErrors(t *testing.T) {
	deep := strings.Repeat(`{"a":`, maxJSONDepth+1) + "1" + strings.Repeat("}", maxJSONDepth+1)

	tests := []struct {
		name string
		path func(t *testing.T) string
	}{
		{"missing file", func(t *testing.T) string { return filepath.Join(t.TempDir(), "nope.json") }},
		{"unsupported extension", func(t *testing.T) string { return writeConfig(t, "semchat.toml", "{}") }},
		{"malformed yaml", func(t *testing.T) string { return writeConfig(t, "bad.yaml", "store: [driver") }},
		{"too deep yaml", func(t *testing.T) string { return writeConfig(t, "deep.yml", deep) }},
		{"malformed", func(t *testing.T) string { return writeConfig(t, "bad.json", `{"store":`) }},
		{"too deep", func(t *testing.T) string { return writeConfig(t, "deep.json", deep) }},
		{"bad duration", func(t *testing.T) string { return writeConfig(t, "dur.json", `{"shutdown_timeout": "soon"}`) }},
		{"directory", func(t *testing.T) string {
			dir := filepath.Join(t.TempDir(), "dir.json")
			require.NoError(t, os.Mkdir(dir, 0o700))
			return dir
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := noEnv(NewLoader()).LoadFile(tt.path(t))
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"memory store", func(c *Config) { c.Store.Driver = "Memory " }, ""},
		{"unknown store", func(c *Config) { c.Store.Driver = "sqlite" }, "unknown store.driver"},
		{"nats without urls", func(c *Config) { c.NATS.URLs = nil }, "nats.urls"},
		{"bad bucket", func(c *Config) { c.NATS.Bucket = "has.dots" }, "nats.bucket"},
		{"mongo without uri", func(c *Config) {
			c.Store.Driver = StoreMongo
			c.Mongo.URI = ""
		}, "mongo.uri"},
		{"redis without channel", func(c *Config) {
			c.Realtime.Driver = RealtimeRedis
			c.Redis.Channel = ""
		}, "redis.addr"},
		{"unknown realtime", func(c *Config) { c.Realtime.Driver = "kafka" }, "unknown realtime.driver"},
		{"empty http addr", func(c *Config) { c.HTTP.Addr = "" }, "http.addr"},
		{"negative shutdown", func(c *Config) { c.ShutdownTimeout = -time.Second }, "shutdown_timeout"},
		{"negative breaker", func(c *Config) { c.Store.BreakerFailures = -1 }, "store.breaker_failures"},
		{"negative write rate", func(c *Config) { c.HTTP.WriteRate = -2 }, "http.write_rate"},
		{"breaker disabled", func(c *Config) { c.Store.BreakerFailures = 0 }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.ErrorIs(t, err, errors.ErrInvalidConfig)
			assert.True(t, errors.IsInvalid(err))
		})
	}
}

func TestConfig_StringMasksSecrets(t *testing.T) {
	cfg := Default()
	cfg.NATS.Password = "hunter2"
	cfg.Redis.Password = "swordfish"

	out := cfg.String()
	assert.NotContains(t, out, "hunter2")
	assert.NotContains(t, out, "swordfish")
	assert.Contains(t, out, "****")
	assert.Equal(t, "hunter2", cfg.NATS.Password)
}

func TestConfig_Clone(t *testing.T) {
	cfg := Default()
	clone := cfg.Clone()
	clone.NATS.URLs[0] = "nats://other:4222"
	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URLs[0])
}
