// Package config holds the value-typed configuration structs for the
// retrieval/memory proxy core. Config is loaded once at startup and passed
// explicitly to constructors; nothing here is a process-wide global.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// UpstreamConfig describes the OpenAI-compatible chat-completions backend
// the gateway forwards requests to.
type UpstreamConfig struct {
	BaseURL string            `yaml:"openai_base_url"`
	APIKey  string            `yaml:"chat_api_key,omitempty"`
	Timeout int               `yaml:"timeout_seconds,omitempty"` // default 120
	OAuth2  UpstreamOAuth2     `yaml:"oauth2,omitempty"`
}

// UpstreamOAuth2 configures an OAuth2 client-credentials grant as an
// alternative to a static APIKey for upstreams that sit behind a corporate
// token gateway. When TokenURL is empty the static APIKey is used as-is.
type UpstreamOAuth2 struct {
	TokenURL     string   `yaml:"token_url,omitempty"`
	ClientID     string   `yaml:"client_id,omitempty"`
	ClientSecret string   `yaml:"client_secret,omitempty"`
	Scopes       []string `yaml:"scopes,omitempty"`
}

// AuthConfig gates the gateway's own inbound HTTP surface (spec's upstream
// auth is separate: see UpstreamOAuth2/UpstreamConfig.APIKey). Mode "none"
// (the default) leaves every route open, matching spec.md's assumption of a
// trusted deployment; "api_key" and "oidc" are opt-in for exposed
// deployments.
type AuthConfig struct {
	Mode         string `yaml:"mode,omitempty"` // ""|"none"|"api_key"|"oidc"
	APIKey       string `yaml:"api_key,omitempty"`
	OIDCIssuer   string `yaml:"oidc_issuer,omitempty"`
	OIDCAudience string `yaml:"oidc_audience,omitempty"`
}

// EmbeddingConfig describes the embedding backend used to vectorize chunks
// and memory entries.
type EmbeddingConfig struct {
	BaseURL   string `yaml:"base_url"`
	Path      string `yaml:"path"`
	Model     string `yaml:"embedding_model"`
	APIKey    string `yaml:"embedding_api_key,omitempty"`
	APIHeader string `yaml:"api_header,omitempty"` // default "Authorization"
	Dimension int    `yaml:"dimension"`
	Timeout   int    `yaml:"timeout_seconds,omitempty"`
}

// VectorStoreConfig describes the vector backend. Driver selects which
// Store implementation internal/vectorstore wires up; "qdrant" (the
// default) and "postgres" (pgvector-backed, DSN is a libpq connection
// string) are supported.
type VectorStoreConfig struct {
	Driver           string `yaml:"driver,omitempty"` // qdrant|postgres
	DSN              string `yaml:"dsn"`
	DocsCollection   string `yaml:"docs_collection"`
	MemoryCollection string `yaml:"memory_collection"`
	Metric           string `yaml:"metric,omitempty"` // cosine|l2|ip
}

// RetrievalConfig carries the tunables named in spec §6.
type RetrievalConfig struct {
	DefaultTopK    int     `yaml:"default_top_k"`
	ScoreThreshold float64 `yaml:"score_threshold"`
	MMRLambda      float64 `yaml:"mmr_lambda"`
	TagBoost       float64 `yaml:"tag_boost"`
	EnableGlobal   bool    `yaml:"enable_global_scope"`
}

// MemoryConfig tunes the reconciler and eviction.
type MemoryConfig struct {
	EnableSummarization bool   `yaml:"enable_summarization"`
	MaxEntries          int    `yaml:"max_entries"`
	ShortSummaryTokens  int    `yaml:"short_summary_tokens"`
	LongSummaryTokens   int    `yaml:"long_summary_tokens"`
	Model               string `yaml:"reconciler_model"`
}

// LongConversationConfig tunes the Long-Conversation Engine.
type LongConversationConfig struct {
	Enabled              bool    `yaml:"enabled"`
	TargetContextTokens  int     `yaml:"target_context_tokens"`
	CompressThreshold    float64 `yaml:"compress_threshold"`
	RawRecentTokens      int     `yaml:"raw_recent_tokens"`
	DedupJaccardThresh   float64 `yaml:"dedup_jaccard_threshold"`
}

// IndexerConfig tunes the watched-folder ingestion pipeline.
type IndexerConfig struct {
	DocsFolder   string `yaml:"docs_folder"`
	ChunkSize    int    `yaml:"chunk_size"`
	ChunkOverlap int    `yaml:"chunk_overlap"`
	WatchEnabled bool   `yaml:"watch_enabled"`
}

// RedisConfig configures the optional retrieval-result cache. Off by
// default; the core never requires Redis to be installed.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
	TTLSecs  int    `yaml:"ttl_seconds,omitempty"`
}

// KafkaConfig configures optional publishing of memory-mutation audit
// events. Off by default; the core never requires a broker to be running.
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers,omitempty"`
	Topic   string   `yaml:"topic,omitempty"`
}

// ObsConfig configures OpenTelemetry export.
type ObsConfig struct {
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`
	Environment    string `yaml:"environment"`
	OTLP           string `yaml:"otlp_endpoint,omitempty"`
	LogLevel       string `yaml:"log_level,omitempty"`
}

// Config is the root configuration struct, loaded from a single YAML file.
type Config struct {
	HTTPAddr       string                  `yaml:"http_addr"`
	Upstream       UpstreamConfig          `yaml:"upstream"`
	Embedding      EmbeddingConfig         `yaml:"embedding"`
	VectorStore    VectorStoreConfig       `yaml:"vector_store"`
	Retrieval      RetrievalConfig         `yaml:"retrieval"`
	Memory         MemoryConfig            `yaml:"memory"`
	LongConvo      LongConversationConfig  `yaml:"long_conversation"`
	Indexer        IndexerConfig           `yaml:"indexer"`
	MemoryRoot     string                  `yaml:"memory_root"`
	Redis          RedisConfig             `yaml:"redis"`
	Observability  ObsConfig               `yaml:"observability"`
	Auth           AuthConfig              `yaml:"auth"`
	Kafka          KafkaConfig             `yaml:"kafka"`
}

// Default returns a Config populated with the defaults named throughout
// spec.md (§4, §6).
func Default() Config {
	return Config{
		HTTPAddr: ":8085",
		Upstream: UpstreamConfig{
			BaseURL: "http://localhost:11434/v1",
			Timeout: 120,
		},
		Embedding: EmbeddingConfig{
			Path:      "/embeddings",
			APIHeader: "Authorization",
			Dimension: 768,
			Timeout:   30,
		},
		VectorStore: VectorStoreConfig{
			Driver:           "qdrant",
			DSN:              "http://localhost:6334",
			DocsCollection:   "docs",
			MemoryCollection: "memory",
			Metric:           "cosine",
		},
		Retrieval: RetrievalConfig{
			DefaultTopK:    5,
			ScoreThreshold: 0,
			MMRLambda:      0.7,
			TagBoost:       0.1,
			EnableGlobal:   true,
		},
		Memory: MemoryConfig{
			EnableSummarization: true,
			MaxEntries:          500,
			ShortSummaryTokens:  256,
			LongSummaryTokens:   512,
			Model:               "gpt-4o-mini",
		},
		LongConvo: LongConversationConfig{
			Enabled:             false,
			TargetContextTokens: 150_000,
			CompressThreshold:   0.8,
			RawRecentTokens:     40_000,
			DedupJaccardThresh:  0.7,
		},
		Indexer: IndexerConfig{
			ChunkSize:    512,
			ChunkOverlap: 50,
			WatchEnabled: true,
		},
		MemoryRoot: "./data/memory",
		Redis: RedisConfig{
			Enabled: false,
			Addr:    "localhost:6379",
			TTLSecs: 300,
		},
		Observability: ObsConfig{
			ServiceName:    "retromem-gateway",
			ServiceVersion: "dev",
			Environment:    "development",
			LogLevel:       "info",
		},
	}
}

// Load reads a YAML config file into Default(), then applies environment
// variable overrides for the handful of secrets the host is expected to
// inject (§6: OPENAI_API_KEY, OPENAI_BASE_URL, embedding endpoint).
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Upstream.APIKey = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		cfg.Upstream.BaseURL = v
	}
	if v := os.Getenv("EMBEDDING_BASE_URL"); v != "" {
		cfg.Embedding.BaseURL = v
	}
	if v := os.Getenv("EMBEDDING_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	}
}
