package config

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/c360/semchat/errors"
)

// Store drivers
const (
	StoreNATS   = "nats"   // JetStream KV bucket
	StoreMongo  = "mongo"  // MongoDB collection with change streams
	StoreMemory = "memory" // process-local, for demos and tests
)

// Realtime drivers
const (
	RealtimeStore = "store" // the store's own change feed
	RealtimeRedis = "redis" // Redis pub/sub alongside the store
)

// Config is the complete semchat configuration
type Config struct {
	Identity        string         `json:"identity,omitempty"` // empty generates one per process
	Store           StoreConfig    `json:"store"`
	Realtime        RealtimeConfig `json:"realtime"`
	NATS            NATSConfig     `json:"nats"`
	Mongo           MongoConfig    `json:"mongo"`
	Redis           RedisConfig    `json:"redis"`
	HTTP            HTTPConfig     `json:"http"`
	ShutdownTimeout time.Duration  `json:"shutdown_timeout"`
}

// StoreConfig selects the document store
type StoreConfig struct {
	Driver string `json:"driver"`
	// BreakerFailures consecutive failures open the store circuit; zero disables it
	BreakerFailures int           `json:"breaker_failures,omitempty"`
	BreakerTimeout  time.Duration `json:"breaker_timeout,omitempty"`
}

// RealtimeConfig selects the event source
type RealtimeConfig struct {
	Driver string `json:"driver"`
}

// NATSConfig defines NATS connection settings
type NATSConfig struct {
	URLs          []string      `json:"urls,omitempty"`
	Bucket        string        `json:"bucket"`
	Timeout       time.Duration `json:"timeout,omitempty"`
	MaxReconnects int           `json:"max_reconnects,omitempty"`
	ReconnectWait time.Duration `json:"reconnect_wait,omitempty"`
	Username      string        `json:"username,omitempty"`
	Password      string        `json:"password,omitempty"`
	Token         string        `json:"token,omitempty"`
}

// MongoConfig defines the MongoDB collection
type MongoConfig struct {
	URI        string `json:"uri"`
	Database   string `json:"database"`
	Collection string `json:"collection"`
}

// RedisConfig defines the Redis pub/sub channel
type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password,omitempty"`
	DB       int    `json:"db,omitempty"`
	Channel  string `json:"channel"`
}

// HTTPConfig defines the gateway listener
type HTTPConfig struct {
	Addr string `json:"addr"`
	// WriteRate is sends plus deletes per second; zero disables the limit
	WriteRate  float64 `json:"write_rate,omitempty"`
	WriteBurst int     `json:"write_burst,omitempty"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Store:    StoreConfig{Driver: StoreNATS, BreakerFailures: 5, BreakerTimeout: 30 * time.Second},
		Realtime: RealtimeConfig{Driver: RealtimeStore},
		NATS: NATSConfig{
			URLs:          []string{"nats://localhost:4222"},
			Bucket:        "semchat_messages",
			Timeout:       5 * time.Second,
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
		},
		Mongo: MongoConfig{
			URI:        "mongodb://localhost:27017",
			Database:   "semchat",
			Collection: "messages",
		},
		Redis: RedisConfig{
			Addr:    "localhost:6379",
			Channel: "semchat.events",
		},
		HTTP:            HTTPConfig{Addr: ":8080", WriteRate: 5, WriteBurst: 10},
		ShutdownTimeout: 10 * time.Second,
	}
}

// bucketName matches names JetStream accepts for KV buckets
var bucketName = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Validate checks driver choices and the settings each driver needs
func (c *Config) Validate() error {
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	c.Realtime.Driver = strings.ToLower(strings.TrimSpace(c.Realtime.Driver))

	switch c.Store.Driver {
	case StoreNATS:
		if len(c.NATS.URLs) == 0 {
			return invalid("nats.urls is required for the nats store")
		}
		if !bucketName.MatchString(c.NATS.Bucket) {
			return invalid(fmt.Sprintf("nats.bucket %q is not a valid KV bucket name", c.NATS.Bucket))
		}
	case StoreMongo:
		if c.Mongo.URI == "" || c.Mongo.Database == "" || c.Mongo.Collection == "" {
			return invalid("mongo.uri, mongo.database and mongo.collection are required for the mongo store")
		}
	case StoreMemory:
	default:
		return invalid(fmt.Sprintf("unknown store.driver %q", c.Store.Driver))
	}

	switch c.Realtime.Driver {
	case RealtimeStore:
	case RealtimeRedis:
		if c.Redis.Addr == "" || c.Redis.Channel == "" {
			return invalid("redis.addr and redis.channel are required for redis realtime")
		}
	default:
		return invalid(fmt.Sprintf("unknown realtime.driver %q", c.Realtime.Driver))
	}

	if c.HTTP.Addr == "" {
		return invalid("http.addr is required")
	}
	if c.Store.BreakerFailures < 0 || c.Store.BreakerTimeout < 0 {
		return invalid("store.breaker_failures and store.breaker_timeout cannot be negative")
	}
	if c.HTTP.WriteRate < 0 || c.HTTP.WriteBurst < 0 {
		return invalid("http.write_rate and http.write_burst cannot be negative")
	}
	if c.ShutdownTimeout < 0 {
		return invalid("shutdown_timeout cannot be negative")
	}
	return nil
}

func invalid(msg string) error {
	return errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrInvalidConfig, msg), "Config", "Validate", "validation")
}

// Clone returns a deep copy
func (c *Config) Clone() *Config {
	clone := *c
	clone.NATS.URLs = append([]string(nil), c.NATS.URLs...)
	return &clone
}

// String returns the configuration as indented JSON with secrets masked
func (c *Config) String() string {
	masked := c.Clone()
	for _, s := range []*string{&masked.NATS.Password, &masked.NATS.Token, &masked.Redis.Password} {
		if *s != "" {
			*s = "****"
		}
	}
	data, _ := json.MarshalIndent(masked, "", "  ")
	return string(data)
}
