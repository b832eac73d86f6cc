package openai

// Config contains the completion provider configuration. The provider
// speaks the OpenAI wire protocol; BaseURL selects the actual vendor.
type Config struct {
	APIKey     string `env:"COMPLETION_API_KEY"`
	BaseURL    string `env:"COMPLETION_BASE_URL"    envDefault:"https://api.novita.ai/openai/v1"`
	Timeout    int    `env:"COMPLETION_TIMEOUT"     envDefault:"300"`
	MaxRetries int    `env:"COMPLETION_MAX_RETRIES" envDefault:"0"`
}
