package models

// ModelConfig identifies one chat model at one provider endpoint.
type ModelConfig struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`    // Model identifier
	BaseUrl  string `json:"base_url"` // API endpoint, empty for the provider default
	ApiKey   string `json:"api_key"`
}

// SupportedModelProviders supported model providers
var SupportedModelProviders = map[string]struct{}{
	"openai":    {},
	"deepseek":  {},
	"anthropic": {},
	"google":    {},
	"ollama":    {},
	"qwen":      {},
	"custom":    {},
}
