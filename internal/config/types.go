package config

import (
	"os"
	"time"
)

// Config is the root configuration structure for the daemon.
type Config struct {
	LogLevel   string       `yaml:"log_level" mapstructure:"log_level"`
	LogFile    string       `yaml:"log_file" mapstructure:"log_file"`
	RootFolder string       `yaml:"root_folder" mapstructure:"root_folder"`
	Provider   string       `yaml:"provider" mapstructure:"provider"`
	Server     ServerConfig `yaml:"server" mapstructure:"server"`
	Local      LocalConfig  `yaml:"local" mapstructure:"local"`
	Remote     RemoteConfig `yaml:"remote" mapstructure:"remote"`
	Tuning     TuningConfig `yaml:"tuning" mapstructure:"tuning"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            int    `yaml:"port" mapstructure:"port"`
	Bind            string `yaml:"bind" mapstructure:"bind"`
	ShutdownTimeout int    `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"` // seconds
}

// LocalConfig holds configuration for the local (Ollama) provider.
type LocalConfig struct {
	Host       string `yaml:"host" mapstructure:"host"`
	EmbedModel string `yaml:"embed_model" mapstructure:"embed_model"`
	LLMModel   string `yaml:"llm_model" mapstructure:"llm_model"`
}

// RemoteConfig holds configuration for the remote (OpenAI) provider.
type RemoteConfig struct {
	EmbedModel string  `yaml:"embed_model" mapstructure:"embed_model"`
	LLMModel   string  `yaml:"llm_model" mapstructure:"llm_model"`
	RateLimit  int     `yaml:"rate_limit" mapstructure:"rate_limit"` // requests per minute
	APIKey     *string `yaml:"api_key,omitempty" mapstructure:"api_key"`
	APIKeyEnv  string  `yaml:"api_key_env" mapstructure:"api_key_env"`
}

// ResolveAPIKey returns the API key from config or falls back to environment variable.
func (c *RemoteConfig) ResolveAPIKey() string {
	if c.APIKey != nil && *c.APIKey != "" {
		return *c.APIKey
	}
	return os.Getenv(c.APIKeyEnv)
}

// TuningConfig holds timing and clustering knobs. Durations are in milliseconds.
type TuningConfig struct {
	WatchDebounceMs      int     `yaml:"watch_debounce_ms" mapstructure:"watch_debounce_ms"`
	ReclusterDebounceMs  int     `yaml:"recluster_debounce_ms" mapstructure:"recluster_debounce_ms"`
	ReclusterCooldownMs  int     `yaml:"recluster_cooldown_ms" mapstructure:"recluster_cooldown_ms"`
	SyncSettleMs         int     `yaml:"sync_settle_ms" mapstructure:"sync_settle_ms"`
	RecentPathTTLMs      int     `yaml:"recent_path_ttl_ms" mapstructure:"recent_path_ttl_ms"`
	NoiseThreshold       float64 `yaml:"noise_threshold" mapstructure:"noise_threshold"`
	ClusterThreshold     float64 `yaml:"cluster_threshold" mapstructure:"cluster_threshold"`
	SmallCollectionMax   int     `yaml:"small_collection_max" mapstructure:"small_collection_max"`
	MaxExtractChars      int     `yaml:"max_extract_chars" mapstructure:"max_extract_chars"`
	EventBusBufferSize   int     `yaml:"event_bus_buffer_size" mapstructure:"event_bus_buffer_size"`
}

// WatchDebounce returns the watcher debounce window as a duration.
func (t *TuningConfig) WatchDebounce() time.Duration {
	return time.Duration(t.WatchDebounceMs) * time.Millisecond
}

// ReclusterDebounce returns the recluster scheduler debounce as a duration.
func (t *TuningConfig) ReclusterDebounce() time.Duration {
	return time.Duration(t.ReclusterDebounceMs) * time.Millisecond
}

// ReclusterCooldown returns the minimum spacing between recluster runs.
func (t *TuningConfig) ReclusterCooldown() time.Duration {
	return time.Duration(t.ReclusterCooldownMs) * time.Millisecond
}

// SyncSettle returns how long the watcher stays shielded after a sync.
func (t *TuningConfig) SyncSettle() time.Duration {
	return time.Duration(t.SyncSettleMs) * time.Millisecond
}

// RecentPathTTL returns how long daemon-moved paths are remembered.
func (t *TuningConfig) RecentPathTTL() time.Duration {
	return time.Duration(t.RecentPathTTLMs) * time.Millisecond
}
