// internal/llmclient/factory.go
package llmclient

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/taskpilot/api/schemas"
	"github.com/xkilldash9x/taskpilot/internal/config"
)

// NewClient is a factory function that creates an LLMClient for one model entry.
func NewClient(cfg config.LLMModelConfig, logger *zap.Logger) (schemas.LLMClient, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		return NewGeminiClient(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown or unsupported LLM provider configured: '%s'. Supported: [%s]", cfg.Provider, config.ProviderGemini)
	}
}

// NewRouterFromConfig builds a tier router from the oracle LLM configuration.
// Model entries named "fast" and "powerful" take precedence; otherwise the
// default model names select entries from the Models map.
func NewRouterFromConfig(cfg config.OracleLLMConfig, logger *zap.Logger) (*LLMRouter, error) {
	fastCfg, ok := resolveModel(cfg, "fast", cfg.DefaultFastModel)
	if !ok {
		return nil, fmt.Errorf("no model configuration found for the fast tier (model %q)", cfg.DefaultFastModel)
	}
	powerfulCfg, ok := resolveModel(cfg, "powerful", cfg.DefaultPowerfulModel)
	if !ok {
		return nil, fmt.Errorf("no model configuration found for the powerful tier (model %q)", cfg.DefaultPowerfulModel)
	}

	fastClient, err := NewClient(fastCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("creating fast tier client: %w", err)
	}
	powerfulClient, err := NewClient(powerfulCfg, logger)
	if err != nil {
		fastClient.Close()
		return nil, fmt.Errorf("creating powerful tier client: %w", err)
	}

	return NewLLMRouter(logger, fastClient, powerfulClient)
}

func resolveModel(cfg config.OracleLLMConfig, tierKey, defaultModel string) (config.LLMModelConfig, bool) {
	if mc, ok := cfg.Models[tierKey]; ok {
		if mc.Model == "" {
			mc.Model = defaultModel
		}
		if mc.Provider == "" {
			mc.Provider = config.ProviderGemini
		}
		return mc, true
	}
	for _, mc := range cfg.Models {
		if mc.Model == defaultModel {
			if mc.Provider == "" {
				mc.Provider = config.ProviderGemini
			}
			return mc, true
		}
	}
	return config.LLMModelConfig{}, false
}
