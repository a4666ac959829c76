package models

// Provider identifies an LLM backend.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
)

// ModelSelection names the provider and model a run should use.
type ModelSelection struct {
	Provider Provider `json:"provider" yaml:"provider"`
	Model    string   `json:"model" yaml:"model"`
}

// Valid reports whether both fields are populated.
func (s ModelSelection) Valid() bool {
	return s.Provider != "" && s.Model != ""
}

// SupportsPromptCaching reports whether the provider honors explicit
// cache breakpoints. Cache segmentation is skipped for the rest.
func (s ModelSelection) SupportsPromptCaching() bool {
	return s.Provider == ProviderAnthropic
}
