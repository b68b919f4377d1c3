package config

import (
	"strings"

	"github.com/lotuscatalog/curator/pkg/config"
)

// Config stores environment configuration for Curator.
//
// Model endpoints (LLM, embeddings, CLIP, vision) are loaded separately via
// the llm package's Load*Config helpers; this struct carries everything else.
type Config struct {
	Port                string
	DatabaseURL         string
	EmbeddingDimensions int
	KafkaBrokers        []string
	AuditKafkaTopic     string
	AdminAPIKey         string
	MaxTurns            int
	CLIPAPIURL          string
}

// LoadConfig loads the Curator configuration from environment variables.
func LoadConfig() Config {
	return Config{
		Port:                config.GetEnv("PORT", "18020"),
		DatabaseURL:         config.RequireEnv("DATABASE_URL"),
		EmbeddingDimensions: config.GetEnvInt("EMBEDDING_DIMENSIONS", 0),
		KafkaBrokers:        parseBrokerList(config.GetEnv("KAFKA_BROKERS", "")),
		AuditKafkaTopic:     config.GetEnv("AUDIT_KAFKA_TOPIC", "curator.admin_actions"),
		AdminAPIKey:         config.GetEnv("CURATOR_API_KEY", ""),
		MaxTurns:            config.GetEnvInt("CURATOR_MAX_TURNS", 0),
		CLIPAPIURL:          config.GetEnv("CLIP_API_URL", ""),
	}
}

func parseBrokerList(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	var brokers []string
	for _, broker := range strings.Split(s, ",") {
		broker = strings.TrimSpace(broker)
		if broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}
