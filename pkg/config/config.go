// Package config provides typed, layered configuration for every GrantRadar
// agent process: built-in defaults, merged with an optional YAML file,
// merged with environment-variable expansion. No package reaches for a
// global config singleton — each constructor takes its section of Config
// explicitly (curation.New, matcher.New, embedding.New, ...).
package config

import "time"

// Config is the umbrella object returned by Load and passed to every agent
// constructor.
type Config struct {
	Database       DatabaseConfig       `yaml:"database"`
	Bus            BusConfig            `yaml:"bus"`
	LLM            LLMConfig            `yaml:"llm"`
	Embedding      EmbeddingConfig      `yaml:"embedding"`
	Discovery      DiscoveryConfig      `yaml:"discovery"`
	Curation       CurationConfig       `yaml:"curation"`
	Matching       MatchingConfig       `yaml:"matching"`
	Alerting       AlertingConfig       `yaml:"alerting"`
	Orchestrator   OrchestratorConfig   `yaml:"orchestrator"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// DatabaseConfig configures the Postgres connection pool backing the entity
// store (C2).
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`

	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// BusConfig configures the Redis-backed event bus (C1).
type BusConfig struct {
	Addr        string        `yaml:"addr"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db"`
	PoolSize    int           `yaml:"pool_size"`
	BlockPeriod time.Duration `yaml:"block_period"` // stream read block, ≤5s per spec
	MaxLen      int64         `yaml:"max_len"`       // trim target for published streams
}

// LLMConfig configures the primary + fallback LLM providers (C3, C8 §4.6.3).
type LLMConfig struct {
	PrimaryProvider  string        `yaml:"primary_provider"`  // "anthropic"
	FallbackProvider string        `yaml:"fallback_provider"` // "openai"
	AnthropicAPIKey  string        `yaml:"anthropic_api_key"`
	AnthropicModel   string        `yaml:"anthropic_model"`
	OpenAIAPIKey     string        `yaml:"openai_api_key"`
	OpenAIModel      string        `yaml:"openai_model"`
	RequestTimeout   time.Duration `yaml:"request_timeout"` // 60s for LLM-heavy prompts
	MaxContextChars  int           `yaml:"max_context_chars"`
}

// EmbeddingConfig configures the embedding provider (C3).
type EmbeddingConfig struct {
	Provider       string        `yaml:"provider"`
	APIKey         string        `yaml:"api_key"`
	Model          string        `yaml:"model"`
	Dimensions     int           `yaml:"dimensions"` // 1536
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// DiscoveryConfig configures discovery agent rate limiting and HTTP timeouts.
type DiscoveryConfig struct {
	HTTPTimeout       time.Duration `yaml:"http_timeout"` // 30s default
	MaxRetries        int           `yaml:"max_retries"`
	SeenSetTTL        time.Duration `yaml:"seen_set_ttl"`        // 30 days
	GrantsGovInterval time.Duration `yaml:"grants_gov_interval"` // ≥1s between detail fetches
}

// CurationConfig configures the Curation/Validator agent (C5).
type CurationConfig struct {
	BatchSize              int           `yaml:"batch_size"`   // N=10
	BlockPeriod            time.Duration `yaml:"block_period"` // ~5s
	QualityThreshold       float64       `yaml:"quality_threshold"`         // 70
	RecentValidatedSize    int           `yaml:"recent_validated_size"`     // 1000
	DuplicateLevenshtein   int           `yaml:"duplicate_levenshtein"`     // ≤2
	EmbeddingInputMaxChars int           `yaml:"embedding_input_max_chars"` // ~8000
}

// MatchingConfig configures the Matcher agent's thresholds (C6).
type MatchingConfig struct {
	BlockPeriod         time.Duration `yaml:"block_period"`
	VectorThreshold     float64       `yaml:"vector_threshold"`      // 0.6
	TopCandidates       int           `yaml:"top_candidates"`        // 50
	LLMRerankLimit      int           `yaml:"llm_rerank_limit"`      // 20
	LLMBatchSize        int           `yaml:"llm_batch_size"`        // 5
	FinalMatchThreshold float64       `yaml:"final_match_threshold"` // 70
}

// AlertingConfig configures the Alerter agent (C7).
type AlertingConfig struct {
	BlockPeriod         time.Duration   `yaml:"block_period"`
	EmailMaxAttempts    int             `yaml:"email_max_attempts"` // 3
	SlackMaxAttempts    int             `yaml:"slack_max_attempts"` // 3
	RetryDelays         []time.Duration `yaml:"retry_delays"`       // [1s,2s,4s]
	DigestMaxItems      int             `yaml:"digest_max_items"`   // 10
	MediumDigestBacklog int             `yaml:"medium_digest_backlog"` // 3
}

// OrchestratorConfig configures the pipeline tracker, health checker, and
// metrics collector (C8).
type OrchestratorConfig struct {
	HealthProbeInterval time.Duration `yaml:"health_probe_interval"` // 30s
	LatencyRingSize     int           `yaml:"latency_ring_size"`     // 1000
	OnCallUnhealthyFor  time.Duration `yaml:"oncall_unhealthy_for"`  // 300s
	ScaleUpQueueDepth   int           `yaml:"scale_up_queue_depth"`  // >100
	ScaleDownQueueDepth int           `yaml:"scale_down_queue_depth"` // <20
	MinWorkers          int           `yaml:"min_workers"` // 2
	HTTPAddr            string        `yaml:"http_addr"`
}

// CircuitBreakerConfig configures every gobreaker-backed client.
type CircuitBreakerConfig struct {
	FailureThreshold  uint32        `yaml:"failure_threshold"`   // 3
	RecoveryTimeout   time.Duration `yaml:"recovery_timeout"`    // 60s
	LatencyWindowSize int           `yaml:"latency_window_size"` // 10
	LatencyThreshold  time.Duration `yaml:"latency_threshold"`   // 10s
}
