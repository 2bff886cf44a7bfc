package config

import "os"

// APIKeySource represents where an API key comes from.
type APIKeySource string

const (
	KeySourceEnv    APIKeySource = "env"
	KeySourceConfig APIKeySource = "config"
	KeySourceNone   APIKeySource = "none"
)

// KeyStatus represents the status of an API key.
type KeyStatus struct {
	Name   string       `json:"name"`
	Source APIKeySource `json:"source"`
	IsSet  bool         `json:"is_set"`
	Masked string       `json:"masked,omitempty"` // e.g., "sk-...abc"
}

// CheckAPIKeys reports the credentials the status command shows. Only the
// OpenAI-compatible fallback takes a key; Ollama and the market data feeds
// are keyless.
func CheckAPIKeys(cfg *Config) []KeyStatus {
	return []KeyStatus{
		checkKey("OpenAI-compatible API Key", cfg.LLM.OpenAIKey, EnvName("llm.openai_key"), "OPENAI_API_KEY"),
	}
}

func checkKey(name, value string, envVars ...string) KeyStatus {
	status := KeyStatus{Name: name, IsSet: value != "", Source: KeySourceNone}
	if value == "" {
		return status
	}
	status.Source = KeySourceConfig
	for _, e := range envVars {
		if os.Getenv(e) != "" {
			status.Source = KeySourceEnv
			break
		}
	}
	status.Masked = maskKey(value)
	return status
}

// maskKey masks an API key for display, showing only first 3 and last 3 chars.
func maskKey(key string) string {
	if len(key) <= 8 {
		return "***"
	}
	return key[:3] + "..." + key[len(key)-3:]
}
