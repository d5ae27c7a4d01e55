// Package config loads the social service's configuration from an
// optional YAML file (defaults) overlaid with environment variables,
// matching the teacher's config-layer split.
package config

import (
	"os"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/anthill-platform/anthill-social/internal/logging"
)

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host string `yaml:"host" env:"SOCIAL_SERVER_HOST"`
	Port int    `yaml:"port" env:"SOCIAL_SERVER_PORT"`
}

// DatabaseConfig controls the Postgres connection pool.
type DatabaseConfig struct {
	DSN             string `yaml:"dsn" env:"SOCIAL_DATABASE_DSN"`
	MaxOpenConns    int    `yaml:"max_open_conns" env:"SOCIAL_DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns    int    `yaml:"max_idle_conns" env:"SOCIAL_DATABASE_MAX_IDLE_CONNS"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_seconds" env:"SOCIAL_DATABASE_CONN_MAX_LIFETIME"`
}

// CacheConfig controls TTLs for the friends/search caches (§4.4, §4.5).
// LoginKeyTTLSeconds is not read anywhere: the login client caches keys
// for a fixed 300s.
type CacheConfig struct {
	FriendsTTLSeconds int `yaml:"friends_ttl_seconds" env:"SOCIAL_CACHE_FRIENDS_TTL"`
	NamesTTLSeconds   int `yaml:"names_ttl_seconds" env:"SOCIAL_CACHE_NAMES_TTL"`
	LoginKeyTTLSeconds int `yaml:"login_key_ttl_seconds" env:"SOCIAL_CACHE_LOGIN_KEY_TTL"`
}

// RequestConfig controls the request ledger (§4.1).
type RequestConfig struct {
	ExpiryDays      int `yaml:"expiry_days" env:"SOCIAL_REQUEST_EXPIRY_DAYS"`
	CleanupInterval int `yaml:"cleanup_interval_seconds" env:"SOCIAL_REQUEST_CLEANUP_INTERVAL"`
}

// RPCConfig controls the sibling-service clients (§6.2).
type RPCConfig struct {
	MessageBaseURL string `yaml:"message_base_url" env:"SOCIAL_RPC_MESSAGE_URL"`
	ProfileBaseURL string `yaml:"profile_base_url" env:"SOCIAL_RPC_PROFILE_URL"`
	LoginBaseURL   string `yaml:"login_base_url" env:"SOCIAL_RPC_LOGIN_URL"`
	TimeoutSeconds int    `yaml:"timeout_seconds" env:"SOCIAL_RPC_TIMEOUT_SECONDS"`
}

// SocialProviderConfig holds per-credential API keys for the external
// social aggregator's provider registry (§4.4, §9).
type SocialProviderConfig struct {
	Google   ProviderCredential `yaml:"google"`
	Facebook ProviderCredential `yaml:"facebook"`
	Steam    ProviderCredential `yaml:"steam"`
	VK       ProviderCredential `yaml:"vk"`
	MailRu   ProviderCredential `yaml:"mailru"`
}

// ProviderCredential is a generic app-id/secret pair; providers that
// need more (e.g. Steam's web API key) reuse Secret for it.
type ProviderCredential struct {
	AppID  string `yaml:"app_id"`
	Secret string `yaml:"secret"`
}

// Config is the top-level configuration structure.
type Config struct {
	Server   ServerConfig         `yaml:"server"`
	Database DatabaseConfig       `yaml:"database"`
	Logging  logging.Config       `yaml:"logging"`
	Cache    CacheConfig          `yaml:"cache"`
	Request  RequestConfig        `yaml:"request"`
	RPC      RPCConfig            `yaml:"rpc"`
	Social   SocialProviderConfig `yaml:"social"`
}

// Default returns a configuration populated with sane defaults.
func Default() *Config {
	return &Config{
		Server:   ServerConfig{Host: "0.0.0.0", Port: 8080},
		Database: DatabaseConfig{MaxOpenConns: 25, MaxIdleConns: 5, ConnMaxLifetime: 300},
		Logging:  logging.Config{Level: "info", Format: "text", Output: "stdout"},
		Cache:    CacheConfig{FriendsTTLSeconds: 300, NamesTTLSeconds: 20, LoginKeyTTLSeconds: 300},
		Request:  RequestConfig{ExpiryDays: 7, CleanupInterval: 3600},
		RPC:      RPCConfig{TimeoutSeconds: 5},
	}
}

// Load reads an optional YAML file at path (if non-empty and present),
// loads a local .env file if present, then overlays environment
// variables via envdecode.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if data, err := os.ReadFile(path); err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, err
			}
		} else if !os.IsNotExist(err) {
			return nil, err
		}
	}

	_ = godotenv.Load()

	if err := envdecode.Decode(cfg); err != nil && err != envdecode.ErrNoTargetFieldsAreSet {
		return nil, err
	}

	return cfg, nil
}

// RequestExpiry returns the configured request TTL as a duration.
func (c *Config) RequestExpiry() time.Duration {
	if c.Request.ExpiryDays <= 0 {
		return 7 * 24 * time.Hour
	}
	return time.Duration(c.Request.ExpiryDays) * 24 * time.Hour
}

// RPCTimeout returns the configured per-RPC timeout.
func (c *Config) RPCTimeout() time.Duration {
	if c.RPC.TimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.RPC.TimeoutSeconds) * time.Second
}
