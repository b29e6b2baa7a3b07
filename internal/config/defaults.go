package config

import "github.com/spf13/viper"

// Default configuration values.
const (
	DefaultLogLevel   = "info"
	DefaultLogFile    = "~/.config/sefs/sefs.log"
	DefaultRootFolder = "~/sefs_root"
	DefaultProvider   = "local"

	DefaultServerPort            = 8484
	DefaultServerBind            = "127.0.0.1"
	DefaultServerShutdownTimeout = 30 // seconds

	DefaultLocalHost       = "http://localhost:11434"
	DefaultLocalEmbedModel = "nomic-embed-text"
	DefaultLocalLLMModel   = "llama3"

	DefaultRemoteEmbedModel = "text-embedding-3-small"
	DefaultRemoteLLMModel   = "gpt-4o-mini"
	DefaultRemoteRateLimit  = 60 // requests per minute
	DefaultRemoteAPIKeyEnv  = "OPENAI_API_KEY"

	DefaultWatchDebounceMs     = 1500
	DefaultReclusterDebounceMs = 2000
	DefaultReclusterCooldownMs = 5000
	DefaultSyncSettleMs        = 2500
	DefaultRecentPathTTLMs     = 5000
	DefaultNoiseThreshold      = 0.40
	DefaultClusterThreshold    = 0.52
	DefaultSmallCollectionMax  = 25
	DefaultMaxExtractChars     = 20000
	DefaultEventBusBufferSize  = 64
)

// NewDefaultConfig returns a Config populated with all default values.
func NewDefaultConfig() Config {
	return Config{
		LogLevel:   DefaultLogLevel,
		LogFile:    DefaultLogFile,
		RootFolder: DefaultRootFolder,
		Provider:   DefaultProvider,
		Server: ServerConfig{
			Port:            DefaultServerPort,
			Bind:            DefaultServerBind,
			ShutdownTimeout: DefaultServerShutdownTimeout,
		},
		Local: LocalConfig{
			Host:       DefaultLocalHost,
			EmbedModel: DefaultLocalEmbedModel,
			LLMModel:   DefaultLocalLLMModel,
		},
		Remote: RemoteConfig{
			EmbedModel: DefaultRemoteEmbedModel,
			LLMModel:   DefaultRemoteLLMModel,
			RateLimit:  DefaultRemoteRateLimit,
			APIKeyEnv:  DefaultRemoteAPIKeyEnv,
		},
		Tuning: TuningConfig{
			WatchDebounceMs:     DefaultWatchDebounceMs,
			ReclusterDebounceMs: DefaultReclusterDebounceMs,
			ReclusterCooldownMs: DefaultReclusterCooldownMs,
			SyncSettleMs:        DefaultSyncSettleMs,
			RecentPathTTLMs:     DefaultRecentPathTTLMs,
			NoiseThreshold:      DefaultNoiseThreshold,
			ClusterThreshold:    DefaultClusterThreshold,
			SmallCollectionMax:  DefaultSmallCollectionMax,
			MaxExtractChars:     DefaultMaxExtractChars,
			EventBusBufferSize:  DefaultEventBusBufferSize,
		},
	}
}

// setViperDefaults registers all default configuration values with a viper instance.
func setViperDefaults(v *viper.Viper) {
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("log_file", DefaultLogFile)
	v.SetDefault("root_folder", DefaultRootFolder)
	v.SetDefault("provider", DefaultProvider)

	// Server defaults
	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("server.bind", DefaultServerBind)
	v.SetDefault("server.shutdown_timeout", DefaultServerShutdownTimeout)

	// Local provider defaults
	v.SetDefault("local.host", DefaultLocalHost)
	v.SetDefault("local.embed_model", DefaultLocalEmbedModel)
	v.SetDefault("local.llm_model", DefaultLocalLLMModel)

	// Remote provider defaults
	v.SetDefault("remote.embed_model", DefaultRemoteEmbedModel)
	v.SetDefault("remote.llm_model", DefaultRemoteLLMModel)
	v.SetDefault("remote.rate_limit", DefaultRemoteRateLimit)
	v.SetDefault("remote.api_key_env", DefaultRemoteAPIKeyEnv)

	// Tuning defaults
	v.SetDefault("tuning.watch_debounce_ms", DefaultWatchDebounceMs)
	v.SetDefault("tuning.recluster_debounce_ms", DefaultReclusterDebounceMs)
	v.SetDefault("tuning.recluster_cooldown_ms", DefaultReclusterCooldownMs)
	v.SetDefault("tuning.sync_settle_ms", DefaultSyncSettleMs)
	v.SetDefault("tuning.recent_path_ttl_ms", DefaultRecentPathTTLMs)
	v.SetDefault("tuning.noise_threshold", DefaultNoiseThreshold)
	v.SetDefault("tuning.cluster_threshold", DefaultClusterThreshold)
	v.SetDefault("tuning.small_collection_max", DefaultSmallCollectionMax)
	v.SetDefault("tuning.max_extract_chars", DefaultMaxExtractChars)
	v.SetDefault("tuning.event_bus_buffer_size", DefaultEventBusBufferSize)
}
