package llm

import (
	"fmt"
	"strings"

	"github.com/lotuscatalog/curator/pkg/config"
)

type Config struct {
	Provider string
	Model    string
	APIKey   string
	APIURL   string
}

func LoadConfig() Config {
	return Config{
		Provider: config.GetEnv("LLM_PROVIDER", "openai"),
		Model:    config.GetEnv("LLM_MODEL", ""),
		APIKey:   config.GetEnv("LLM_API_KEY", ""),
		APIURL:   config.GetEnv("LLM_API_URL", ""),
	}
}

// LoadEmbeddingConfig loads embedding-specific configuration from EMBEDDING_*
// env vars, falling back to their LLM_* counterparts when unset.
func LoadEmbeddingConfig() Config {
	return Config{
		Provider: config.GetEnv("EMBEDDING_PROVIDER", config.GetEnv("LLM_PROVIDER", "openai")),
		Model:    config.GetEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		APIKey:   config.GetEnv("EMBEDDING_API_KEY", config.GetEnv("LLM_API_KEY", "")),
		APIURL:   config.GetEnv("EMBEDDING_API_URL", config.GetEnv("LLM_API_URL", "")),
	}
}

// LoadCLIPConfig loads image-embedding service configuration.
func LoadCLIPConfig() Config {
	return Config{
		Model:  config.GetEnv("CLIP_MODEL", ""),
		APIKey: config.GetEnv("CLIP_API_KEY", ""),
		APIURL: config.GetEnv("CLIP_API_URL", ""),
	}
}

// LoadVisionConfig loads vision-model configuration, falling back to the
// main LLM settings when unset.
func LoadVisionConfig() Config {
	return Config{
		Model:  config.GetEnv("VISION_MODEL", config.GetEnv("LLM_MODEL", "")),
		APIKey: config.GetEnv("VISION_API_KEY", config.GetEnv("LLM_API_KEY", "")),
		APIURL: config.GetEnv("VISION_API_URL", config.GetEnv("LLM_API_URL", "")),
	}
}

func NewProvider(cfg Config) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "openai", "":
		return NewOpenAIProvider(cfg), nil
	case "anthropic":
		return NewAnthropicProvider(cfg), nil
	case "ollama":
		return NewOllamaProvider(cfg), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
}
