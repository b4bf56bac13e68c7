package config

import "time"

// Default returns the built-in configuration used when a field is not
// overridden by a YAML file or an environment variable. Every agent starts
// from this before Load applies overrides.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			User:            "grantradar",
			Database:        "grantradar",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    10,
			ConnMaxLifetime: time.Hour,
			ConnMaxIdleTime: 15 * time.Minute,
		},
		Bus: BusConfig{
			Addr:        "localhost:6379",
			DB:          0,
			PoolSize:    10,
			BlockPeriod: 5 * time.Second,
			MaxLen:      100_000,
		},
		LLM: LLMConfig{
			PrimaryProvider:  "anthropic",
			FallbackProvider: "openai",
			AnthropicModel:   "claude-sonnet-4-5",
			OpenAIModel:      "gpt-4o",
			RequestTimeout:   60 * time.Second,
			MaxContextChars:  32_000, // MAX_LLM_CONTEXT_TOKENS, characters not tokens
		},
		Embedding: EmbeddingConfig{
			Provider:       "openai",
			Model:          "text-embedding-3-large",
			Dimensions:     1536,
			RequestTimeout: 30 * time.Second,
		},
		Discovery: DiscoveryConfig{
			HTTPTimeout:       30 * time.Second,
			MaxRetries:        5,
			SeenSetTTL:        30 * 24 * time.Hour,
			GrantsGovInterval: 1 * time.Second,
		},
		Curation: CurationConfig{
			BatchSize:              10,
			BlockPeriod:            5 * time.Second,
			QualityThreshold:       70,
			RecentValidatedSize:    1000,
			DuplicateLevenshtein:   2,
			EmbeddingInputMaxChars: 8000,
		},
		Matching: MatchingConfig{
			BlockPeriod:         5 * time.Second,
			VectorThreshold:     0.6,
			TopCandidates:       50,
			LLMRerankLimit:      20,
			LLMBatchSize:        5,
			FinalMatchThreshold: 70,
		},
		Alerting: AlertingConfig{
			BlockPeriod:         5 * time.Second,
			EmailMaxAttempts:    3,
			SlackMaxAttempts:    3,
			RetryDelays:         []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second},
			DigestMaxItems:      10,
			MediumDigestBacklog: 3,
		},
		Orchestrator: OrchestratorConfig{
			HealthProbeInterval: 30 * time.Second,
			LatencyRingSize:     1000,
			OnCallUnhealthyFor:  300 * time.Second,
			ScaleUpQueueDepth:   100,
			ScaleDownQueueDepth: 20,
			MinWorkers:          2,
			HTTPAddr:            ":8090",
		},
		CircuitBreaker: CircuitBreakerConfig{
			FailureThreshold:  3,
			RecoveryTimeout:   60 * time.Second,
			LatencyWindowSize: 10,
			LatencyThreshold:  10 * time.Second,
		},
	}
}
