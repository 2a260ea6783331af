package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadFileWithEnvOverrides(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	content := `
port: "9090"
databaseDriver: "sqlite"
databaseURL: "file:chat.db"
agentWebhookURL: "http://agent.local/hook"
agentTimeout: 90s
historyWindow: 10
corsOrigins: ["https://app.example.com"]
`
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", cfgPath)
	t.Setenv("HISTORY_WINDOW", "30")
	t.Setenv("AGENT_WEBHOOK_URL", "http://override/hook")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ServerPort != "9090" {
		t.Fatalf("port = %q, want 9090", cfg.ServerPort)
	}
	if cfg.AgentTimeout != 90*time.Second {
		t.Fatalf("agentTimeout = %s, want 90s", cfg.AgentTimeout)
	}
	if cfg.HistoryWindow != 30 {
		t.Fatalf("historyWindow = %d, want 30", cfg.HistoryWindow)
	}
	if cfg.AgentWebhookURL != "http://override/hook" {
		t.Fatalf("agentWebhookURL = %q", cfg.AgentWebhookURL)
	}
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "https://app.example.com" {
		t.Fatalf("corsOrigins = %v", cfg.CORSOrigins)
	}
	if cfg.JWTExpiration != 7*24*time.Hour {
		t.Fatalf("jwtExpiration default = %s", cfg.JWTExpiration)
	}
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("DATABASE_URL", "")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "DATABASE_URL") {
		t.Fatalf("expected DATABASE_URL error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		c := Defaults()
		c.DatabaseURL = "postgres://localhost/chat"
		return c
	}

	if err := base().Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}

	cases := map[string]func(*Config){
		"driver":        func(c *Config) { c.DatabaseDriver = "mysql" },
		"backend":       func(c *Config) { c.BlobBackend = "ftp" },
		"minio":         func(c *Config) { c.BlobBackend = "minio"; c.MinioEndpoint = "" },
		"write timeout": func(c *Config) { c.ServerWriteTimeout = time.Minute },
		"window":        func(c *Config) { c.HistoryWindow = 0 },
	}
	for name, mutate := range cases {
		c := base()
		mutate(c)
		if err := c.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}
