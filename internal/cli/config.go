package cli

import (
	"os"
	"strings"
	"time"
)

// Config holds CLI configuration
type Config struct {
	Target  string
	Secret  string
	Output  string
	Timeout time.Duration

	AuditBrokers []string
	AuditTopic   string
}

// DefaultConfig returns a Config with defaults taken from the environment
func DefaultConfig() *Config {
	cfg := &Config{
		Target:     getEnvOrDefault("PLAYERSYNC_RPC_ADDR", "localhost:9090"),
		Secret:     os.Getenv("PLAYERSYNC_SECRET_KEY"),
		Output:     "text",
		Timeout:    10 * time.Second,
		AuditTopic: getEnvOrDefault("PLAYERSYNC_AUDIT_TOPIC", "playersync.audit"),
	}
	if brokers := os.Getenv("PLAYERSYNC_AUDIT_BROKERS"); brokers != "" {
		cfg.AuditBrokers = strings.Split(brokers, ",")
	}
	return cfg
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
