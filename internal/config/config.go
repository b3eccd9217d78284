package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

var (
	ErrInvalidPort        = errors.New("server port must be within [1, 65535]")
	ErrInvalidProbability = errors.New("default cluster head probability must be within [0, 100]")
	ErrInvalidRateLimit   = errors.New("rate limit must not be negative")
)

// ServerConfig holds all configuration settings for the simulation service
type ServerConfig struct {
	// Server settings
	Port           int           `json:"port"`
	Host           string        `json:"host"`
	MaxPayloadSize int64         `json:"max_payload_size"`
	RequestTimeout time.Duration `json:"request_timeout"`

	// Formation settings
	ElectionSeed         uint64 `json:"election_seed"`
	DefaultCHProbability int    `json:"default_ch_probability"` // Used when an election request omits it

	// Storage settings
	StoragePath string `json:"storage_path"` // Empty keeps state in memory only

	// Event publishing
	NATSURL           string `json:"nats_url"` // Empty disables NATS
	NATSSubjectPrefix string `json:"nats_subject_prefix"`
	MQTTBroker        string `json:"mqtt_broker"` // Empty disables MQTT
	MQTTClientID      string `json:"mqtt_client_id"`
	MQTTTopicPrefix   string `json:"mqtt_topic_prefix"`

	// API protection
	RateLimit     float64 `json:"rate_limit"` // Requests per second, 0 disables limiting
	RateBurst     int     `json:"rate_burst"`
	ViewCacheSize int     `json:"view_cache_size"`

	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
}

// DefaultConfig returns a ServerConfig with default values
func DefaultConfig() *ServerConfig {
	return &ServerConfig{
		Port:                 8080,
		Host:                 "0.0.0.0",
		MaxPayloadSize:       1024 * 1024, // 1MB
		RequestTimeout:       10 * time.Second,
		ElectionSeed:         9433,
		DefaultCHProbability: 50,
		StoragePath:          "",
		NATSSubjectPrefix:    "wsn",
		MQTTClientID:         "wsn-formation",
		MQTTTopicPrefix:      "wsn",
		RateLimit:            0,
		RateBurst:            20,
		ViewCacheSize:        256,
		ShutdownTimeout:      30 * time.Second,
	}
}

// LoadConfig loads configuration from environment variables.
// Malformed values keep their defaults.
func LoadConfig() *ServerConfig {
	config := DefaultConfig()

	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Port = p
		}
	}

	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Host = host
	}

	if maxSize := os.Getenv("MAX_PAYLOAD_SIZE"); maxSize != "" {
		if size, err := strconv.ParseInt(maxSize, 10, 64); err == nil {
			config.MaxPayloadSize = size
		}
	}

	if timeout := os.Getenv("REQUEST_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.RequestTimeout = d
		}
	}

	if seed := os.Getenv("ELECTION_SEED"); seed != "" {
		if s, err := strconv.ParseUint(seed, 10, 64); err == nil {
			config.ElectionSeed = s
		}
	}

	if p := os.Getenv("DEFAULT_CH_PROBABILITY"); p != "" {
		if v, err := strconv.Atoi(p); err == nil {
			config.DefaultCHProbability = v
		}
	}

	if storagePath := os.Getenv("STORAGE_PATH"); storagePath != "" {
		config.StoragePath = storagePath
	}

	if url := os.Getenv("NATS_URL"); url != "" {
		config.NATSURL = url
	}

	if prefix := os.Getenv("NATS_SUBJECT_PREFIX"); prefix != "" {
		config.NATSSubjectPrefix = prefix
	}

	if broker := os.Getenv("MQTT_BROKER"); broker != "" {
		config.MQTTBroker = broker
	}

	if clientID := os.Getenv("MQTT_CLIENT_ID"); clientID != "" {
		config.MQTTClientID = clientID
	}

	if prefix := os.Getenv("MQTT_TOPIC_PREFIX"); prefix != "" {
		config.MQTTTopicPrefix = prefix
	}

	if limit := os.Getenv("RATE_LIMIT"); limit != "" {
		if v, err := strconv.ParseFloat(limit, 64); err == nil {
			config.RateLimit = v
		}
	}

	if burst := os.Getenv("RATE_BURST"); burst != "" {
		if v, err := strconv.Atoi(burst); err == nil {
			config.RateBurst = v
		}
	}

	if size := os.Getenv("VIEW_CACHE_SIZE"); size != "" {
		if v, err := strconv.Atoi(size); err == nil {
			config.ViewCacheSize = v
		}
	}

	if timeout := os.Getenv("SHUTDOWN_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.ShutdownTimeout = d
		}
	}

	return config
}

// Validate checks if the configuration is valid. Sizes and timeouts that
// are out of range are reset to their defaults.
func (c *ServerConfig) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, c.Port)
	}
	if c.DefaultCHProbability < 0 || c.DefaultCHProbability > 100 {
		return fmt.Errorf("%w: %d", ErrInvalidProbability, c.DefaultCHProbability)
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidRateLimit, c.RateLimit)
	}

	defaults := DefaultConfig()
	if c.MaxPayloadSize <= 0 {
		c.MaxPayloadSize = defaults.MaxPayloadSize
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaults.RequestTimeout
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = defaults.ShutdownTimeout
	}
	// A limiter with a zero burst rejects every request
	if c.RateLimit > 0 && c.RateBurst < 1 {
		c.RateBurst = 1
	}
	if c.ViewCacheSize < 1 {
		c.ViewCacheSize = defaults.ViewCacheSize
	}

	return nil
}

// Addr returns the host:port the server listens on
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
