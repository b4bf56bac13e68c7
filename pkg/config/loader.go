package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Load is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Start from Default()
//  2. If configPath exists, read it, expand ${ENV} references, parse YAML,
//     and merge it over the defaults (file overrides default, zero values
//     in the file never clobber a default — see mergo.WithOverride below)
//  3. Validate the merged configuration
func Load(_ context.Context, configPath string) (*Config, error) {
	log := slog.With("component", "config", "path", configPath)

	cfg := Default()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			if os.IsNotExist(err) {
				log.Info("no config file found, using built-in defaults")
			} else {
				return nil, NewLoadError(configPath, err)
			}
		} else {
			expanded := ExpandEnv(data)
			var fileCfg Config
			if err := yaml.Unmarshal(expanded, &fileCfg); err != nil {
				return nil, NewLoadError(configPath, fmt.Errorf("%w: %v", ErrInvalidYAML, err))
			}
			if err := mergo.Merge(cfg, fileCfg, mergo.WithOverride); err != nil {
				return nil, NewLoadError(configPath, err)
			}
		}
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	log.Info("configuration loaded")
	return cfg, nil
}
