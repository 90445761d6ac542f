// Package config loads runtime configuration from the environment with an
// optional .env overlay.
package config

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// The agent shipped with the product; overridable per deployment.
const defaultAgentID = "BoXuSDsm0Qq78Gp3aMFA"

// Config is the resolved runtime configuration.
type Config struct {
	APIURL   string
	VoiceURL string
	AgentID  string
	DataDir  string
	LogLevel string
}

// Load reads configuration, preferring real environment variables over a
// .env file in the working directory. A missing .env is not an error.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		APIURL:   getEnv("OWL_API_URL", "http://localhost:8000/api/"),
		VoiceURL: getEnv("OWL_VOICE_URL", "wss://api.elevenlabs.io/v1/convai/conversation"),
		AgentID:  getEnv("OWL_AGENT_ID", defaultAgentID),
		DataDir:  getEnv("OWL_DATA_DIR", defaultDataDir()),
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func defaultDataDir() string {
	if base, err := os.UserConfigDir(); err == nil {
		return filepath.Join(base, "owl")
	}
	return ".owl"
}
