package config

import "fmt"

// validate performs fail-fast validation across every configuration section.
func validate(cfg *Config) error {
	v := &validator{cfg: cfg}

	checks := []func() error{
		v.validateDatabase,
		v.validateBus,
		v.validateLLM,
		v.validateEmbedding,
		v.validateCuration,
		v.validateMatching,
		v.validateAlerting,
		v.validateOrchestrator,
		v.validateCircuitBreaker,
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

type validator struct {
	cfg *Config
}

func (v *validator) validateDatabase() error {
	d := v.cfg.Database
	if d.Host == "" {
		return NewValidationError("database", "host", ErrMissingRequiredField)
	}
	if d.MaxIdleConns > d.MaxOpenConns {
		return NewValidationError("database", "max_idle_conns", fmt.Errorf("%w: exceeds max_open_conns", ErrInvalidValue))
	}
	if d.MaxOpenConns < 1 {
		return NewValidationError("database", "max_open_conns", fmt.Errorf("%w: must be at least 1", ErrInvalidValue))
	}
	return nil
}

func (v *validator) validateBus() error {
	b := v.cfg.Bus
	if b.Addr == "" {
		return NewValidationError("bus", "addr", ErrMissingRequiredField)
	}
	if b.BlockPeriod <= 0 {
		return NewValidationError("bus", "block_period", ErrInvalidValue)
	}
	return nil
}

func (v *validator) validateLLM() error {
	l := v.cfg.LLM
	if l.PrimaryProvider == "" || l.FallbackProvider == "" {
		return NewValidationError("llm", "primary_provider/fallback_provider", ErrMissingRequiredField)
	}
	if l.MaxContextChars <= 0 {
		return NewValidationError("llm", "max_context_chars", ErrInvalidValue)
	}
	return nil
}

func (v *validator) validateEmbedding() error {
	e := v.cfg.Embedding
	if e.Dimensions != 1536 {
		return NewValidationError("embedding", "dimensions", fmt.Errorf("%w: must be 1536", ErrInvalidValue))
	}
	return nil
}

func (v *validator) validateCuration() error {
	c := v.cfg.Curation
	if c.QualityThreshold < 0 || c.QualityThreshold > 100 {
		return NewValidationError("curation", "quality_threshold", ErrInvalidValue)
	}
	if c.BatchSize < 1 {
		return NewValidationError("curation", "batch_size", ErrInvalidValue)
	}
	return nil
}

func (v *validator) validateMatching() error {
	m := v.cfg.Matching
	if m.VectorThreshold < 0 || m.VectorThreshold > 1 {
		return NewValidationError("matching", "vector_threshold", ErrInvalidValue)
	}
	if m.LLMBatchSize < 1 || m.LLMBatchSize > m.LLMRerankLimit {
		return NewValidationError("matching", "llm_batch_size", ErrInvalidValue)
	}
	return nil
}

func (v *validator) validateAlerting() error {
	a := v.cfg.Alerting
	if a.EmailMaxAttempts < 1 || a.SlackMaxAttempts < 1 {
		return NewValidationError("alerting", "max_attempts", ErrInvalidValue)
	}
	if len(a.RetryDelays) == 0 {
		return NewValidationError("alerting", "retry_delays", ErrMissingRequiredField)
	}
	return nil
}

func (v *validator) validateOrchestrator() error {
	o := v.cfg.Orchestrator
	if o.ScaleDownQueueDepth >= o.ScaleUpQueueDepth {
		return NewValidationError("orchestrator", "scale_down_queue_depth", fmt.Errorf("%w: must be below scale_up_queue_depth", ErrInvalidValue))
	}
	if o.MinWorkers < 1 {
		return NewValidationError("orchestrator", "min_workers", ErrInvalidValue)
	}
	return nil
}

func (v *validator) validateCircuitBreaker() error {
	c := v.cfg.CircuitBreaker
	if c.FailureThreshold < 1 {
		return NewValidationError("circuit_breaker", "failure_threshold", ErrInvalidValue)
	}
	if c.RecoveryTimeout <= 0 {
		return NewValidationError("circuit_breaker", "recovery_timeout", ErrInvalidValue)
	}
	return nil
}
