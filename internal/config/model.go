package config

import (
	"os"

	"github.com/nao-labs/nao-agent/pkg/models"
)

// Default conversational models per provider, used when the environment
// supplies only an API key.
const (
	DefaultAnthropicModel = "claude-sonnet-4-5"
	DefaultOpenAIModel    = "gpt-4o"
)

// Default extractor models. Memory reconciliation runs on a cheap model
// regardless of what the conversation uses.
const (
	DefaultAnthropicExtractorModel = "claude-3-5-haiku-latest"
	DefaultOpenAIExtractorModel    = "gpt-4o-mini"
)

// ResolveModel picks the model for a run. Priority: the explicit
// request, then the project configuration, then the environment.
// When nothing resolves it returns ErrNoModelConfig; runs never start
// on a silently guessed model.
func (c *Config) ResolveModel(requested *models.ModelSelection) (models.ModelSelection, error) {
	if requested != nil && requested.Valid() {
		return *requested, nil
	}

	if c != nil && c.LLM.Provider != "" && c.LLM.Model != "" {
		return models.ModelSelection{
			Provider: models.Provider(c.LLM.Provider),
			Model:    c.LLM.Model,
		}, nil
	}

	if sel, ok := envModelSelection(); ok {
		return sel, nil
	}
	return models.ModelSelection{}, ErrNoModelConfig
}

// ExtractorModel picks the cheap model for background memory
// extraction, staying on the same provider as the conversational model.
func (c *Config) ExtractorModel(conversational models.ModelSelection) models.ModelSelection {
	if c != nil && c.LLM.ExtractorModel != "" {
		return models.ModelSelection{
			Provider: conversational.Provider,
			Model:    c.LLM.ExtractorModel,
		}
	}
	switch conversational.Provider {
	case models.ProviderOpenAI:
		return models.ModelSelection{Provider: models.ProviderOpenAI, Model: DefaultOpenAIExtractorModel}
	default:
		return models.ModelSelection{Provider: models.ProviderAnthropic, Model: DefaultAnthropicExtractorModel}
	}
}

// envModelSelection derives a fallback selection from the environment:
// an explicit NAO_DEFAULT_PROVIDER/NAO_DEFAULT_MODEL pair, or the
// presence of a provider API key.
func envModelSelection() (models.ModelSelection, bool) {
	provider := os.Getenv("NAO_DEFAULT_PROVIDER")
	model := os.Getenv("NAO_DEFAULT_MODEL")
	if provider != "" {
		sel := models.ModelSelection{Provider: models.Provider(provider), Model: model}
		if sel.Model == "" {
			switch sel.Provider {
			case models.ProviderAnthropic:
				sel.Model = DefaultAnthropicModel
			case models.ProviderOpenAI:
				sel.Model = DefaultOpenAIModel
			}
		}
		if sel.Valid() {
			return sel, true
		}
	}

	if os.Getenv("ANTHROPIC_API_KEY") != "" {
		return models.ModelSelection{Provider: models.ProviderAnthropic, Model: DefaultAnthropicModel}, true
	}
	if os.Getenv("OPENAI_API_KEY") != "" {
		return models.ModelSelection{Provider: models.ProviderOpenAI, Model: DefaultOpenAIModel}, true
	}
	return models.ModelSelection{}, false
}
