package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/temcen/rfpmatch/internal/apperr"
)

type Config struct {
	Server     ServerConfig         `mapstructure:"server"`
	Database   DatabaseConfig       `mapstructure:"database"`
	Redis      RedisConfig          `mapstructure:"redis"`
	Neo4j      Neo4jConfig          `mapstructure:"neo4j"`
	Kafka      KafkaConfig          `mapstructure:"kafka"`
	Logging    LoggingConfig        `mapstructure:"logging"`
	Engine     RecommendationConfig `mapstructure:"recommendation"`
	Timeouts   TimeoutConfig        `mapstructure:"timeouts"`
	Monitoring MonitoringConfig     `mapstructure:"monitoring"`
	Security   SecurityConfig       `mapstructure:"security"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	URL            string        `mapstructure:"url"`
	MaxConnections int           `mapstructure:"max_connections"`
	MaxIdleTime    time.Duration `mapstructure:"max_idle_time"`
	MaxLifetime    time.Duration `mapstructure:"max_lifetime"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type RedisConfig struct {
	URL        string        `mapstructure:"url"`
	MaxRetries int           `mapstructure:"max_retries"`
	PoolSize   int           `mapstructure:"pool_size"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type Neo4jConfig struct {
	URL      string `mapstructure:"url"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

// KafkaConfig configures the optional audit event publisher. An empty broker
// list disables publishing.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topics  struct {
		Recommendations string `mapstructure:"recommendations"`
	} `mapstructure:"topics"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type RecommendationConfig struct {
	Weights       WeightsConfig       `mapstructure:"weights"`
	Content       ContentConfig       `mapstructure:"content"`
	LLM           LLMConfig           `mapstructure:"llm"`
	Collaborative CollaborativeConfig `mapstructure:"collaborative"`
	Caching       CachingConfig       `mapstructure:"caching"`
	MaxCandidates int                 `mapstructure:"max_candidates"`
}

// WeightsConfig holds the raw aggregation weights. Pointers distinguish a
// missing key from an explicit zero; validation lives in services.LoadWeights.
type WeightsConfig struct {
	Collaborative  *float64 `mapstructure:"collaborative"`
	Content        *float64 `mapstructure:"content"`
	KnowledgeGraph *float64 `mapstructure:"knowledge_graph"`
	LLM            *float64 `mapstructure:"llm"`
}

type ContentConfig struct {
	Mode           string `mapstructure:"mode"` // lexical or embedding
	EmbeddingModel string `mapstructure:"embedding_model"`
	EmbeddingHost  string `mapstructure:"embedding_host"`
	EmbeddingToken string `mapstructure:"embedding_token"`
}

type LLMConfig struct {
	Model            string  `mapstructure:"model"`
	Temperature      float64 `mapstructure:"temperature"`
	APIKey           string  `mapstructure:"api_key"`
	BaseURL          string  `mapstructure:"base_url"`
	MaxParseAttempts int     `mapstructure:"max_parse_attempts"`
}

type CollaborativeConfig struct {
	CoPurchaseWeight     float64 `mapstructure:"copurchase_weight"`
	CoPurchaseSaturation float64 `mapstructure:"copurchase_saturation"`
}

type CachingConfig struct {
	ResultTTL    time.Duration `mapstructure:"result_ttl"`
	EmbeddingTTL time.Duration `mapstructure:"embedding_ttl"`
}

// TimeoutConfig bounds each outbound call and the whole request.
type TimeoutConfig struct {
	Request    time.Duration `mapstructure:"request"`
	Relational time.Duration `mapstructure:"relational"`
	Graph      time.Duration `mapstructure:"graph"`
	Embedding  time.Duration `mapstructure:"embedding"`
	LLM        time.Duration `mapstructure:"llm"`
	Cache      time.Duration `mapstructure:"cache"`
}

type MonitoringConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	MetricsPath string `mapstructure:"metrics_path"`
}

type SecurityConfig struct {
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

// Load reads config/app.yaml (optional), applies defaults and environment
// overrides and unmarshals everything into a Config once.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("app")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	return load(v)
}

// LoadFile is Load for an explicit file path.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	// Environment variable overrides
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	bindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		// Config file is optional, continue with env vars and defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// A non-numeric weight or a malformed duration ends up here.
		return nil, &apperr.Error{
			Kind:      apperr.ErrConfiguration,
			Component: "config",
			Message:   "failed to decode config",
			Err:       err,
		}
	}

	return &cfg, nil
}

// bindEnv registers keys that have no default so AutomaticEnv can see them
// during Unmarshal.
func bindEnv(v *viper.Viper) {
	for _, key := range []string{
		"recommendation.weights.collaborative",
		"recommendation.weights.content",
		"recommendation.weights.knowledge_graph",
		"recommendation.weights.llm",
		"recommendation.llm.api_key",
		"recommendation.llm.base_url",
		"recommendation.content.embedding_token",
		"database.url",
		"neo4j.url",
		"neo4j.username",
		"neo4j.password",
		"redis.url",
	} {
		_ = v.BindEnv(key)
	}
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "development")

	// Database defaults
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.max_idle_time", "15m")
	v.SetDefault("database.max_lifetime", "1h")
	v.SetDefault("database.connect_timeout", "10s")

	// Redis defaults
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.timeout", "2s")

	v.SetDefault("neo4j.database", "neo4j")

	v.SetDefault("kafka.topics.recommendations", "rfp-recommendations")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	// Weights intentionally have no defaults: a missing weight must stop startup.

	v.SetDefault("recommendation.content.mode", "lexical")
	v.SetDefault("recommendation.content.embedding_model", "text-embedding-3-small")
	v.SetDefault("recommendation.llm.model", "gpt-4o-mini")
	v.SetDefault("recommendation.llm.temperature", 0.1)
	v.SetDefault("recommendation.llm.max_parse_attempts", 2)
	v.SetDefault("recommendation.collaborative.copurchase_weight", 0.25)
	v.SetDefault("recommendation.collaborative.copurchase_saturation", 10.0)
	v.SetDefault("recommendation.caching.result_ttl", "15m")
	v.SetDefault("recommendation.caching.embedding_ttl", "24h")
	v.SetDefault("recommendation.max_candidates", 500)

	// Timeout defaults
	v.SetDefault("timeouts.request", "20s")
	v.SetDefault("timeouts.relational", "3s")
	v.SetDefault("timeouts.graph", "3s")
	v.SetDefault("timeouts.embedding", "5s")
	v.SetDefault("timeouts.llm", "15s")
	v.SetDefault("timeouts.cache", "500ms")

	// Monitoring defaults
	v.SetDefault("monitoring.enabled", true)
	v.SetDefault("monitoring.metrics_path", "/metrics")

	// Security defaults
	v.SetDefault("security.cors.allowed_origins", []string{"*"})
	v.SetDefault("security.cors.allowed_methods", []string{"GET", "POST", "OPTIONS"})
	v.SetDefault("security.cors.allowed_headers", []string{"*"})
}
