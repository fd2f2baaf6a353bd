package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, payload string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mantlepilot.json")
	if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `{}`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Address != ":8080" {
		t.Fatalf("unexpected server address: %s", cfg.Server.Address)
	}
	if cfg.LLM.Provider != "openai" {
		t.Fatalf("unexpected llm provider: %s", cfg.LLM.Provider)
	}
	if cfg.RequestStore.Driver != "memory" || cfg.RequestStore.Retries != 3 {
		t.Fatalf("unexpected request store defaults: %+v", cfg.RequestStore)
	}
	if cfg.RequestQueue.Driver != "memory" || cfg.RequestQueue.Worker != 4 {
		t.Fatalf("unexpected queue defaults: %+v", cfg.RequestQueue)
	}
	if cfg.Knowledge.MaxResults != 3 {
		t.Fatalf("unexpected knowledge defaults: %+v", cfg.Knowledge)
	}
}

func TestLoadResolvesRelativePaths(t *testing.T) {
	path := writeConfig(t, `{
		"web3": {"chain_config": "chain.yaml"},
		"knowledge": {"source": "knowledge.json"}
	}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	baseDir := filepath.Dir(path)
	if cfg.Web3.ChainConfig != filepath.Join(baseDir, "chain.yaml") {
		t.Fatalf("chain config not resolved: %s", cfg.Web3.ChainConfig)
	}
	if cfg.Knowledge.Source != filepath.Join(baseDir, "knowledge.json") {
		t.Fatalf("knowledge source not resolved: %s", cfg.Knowledge.Source)
	}
}

func TestLoadParsesFullConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, `{
		"server": {"address": ":9090", "metrics_address": ":9100"},
		"llm": {"provider": "openai", "openai": {"model": "gpt-4o-mini", "timeout_seconds": 20}},
		"request_queue": {"driver": "redis", "redis": {"address": "localhost:6379", "queue": "mp"}},
		"auth": {"mode": "token", "tokens": [{"name": "frontend", "token": "secret", "permissions": ["chat:invoke"]}]},
		"alerting": {"slack_webhook_url": "https://hooks.example.com/x", "slack_channel": "#alerts"}
	}`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.MetricsAddress != ":9100" {
		t.Fatalf("unexpected metrics address: %s", cfg.Server.MetricsAddress)
	}
	if cfg.LLM.OpenAI.Timeout().Seconds() != 20 {
		t.Fatalf("unexpected llm timeout: %v", cfg.LLM.OpenAI.Timeout())
	}
	if cfg.RequestQueue.Driver != "redis" || cfg.RequestQueue.Redis.Queue != "mp" {
		t.Fatalf("unexpected queue config: %+v", cfg.RequestQueue)
	}
	if cfg.Auth.Mode != "token" || len(cfg.Auth.Tokens) != 1 {
		t.Fatalf("unexpected auth config: %+v", cfg.Auth)
	}
	if cfg.Alerting.SlackChannel != "#alerts" {
		t.Fatalf("unexpected alerting config: %+v", cfg.Alerting)
	}
}

func TestLoadRejectsMissingOrBrokenFile(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatal("empty path must error")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("missing file must error")
	}
	if _, err := Load(writeConfig(t, `{broken`)); err == nil {
		t.Fatal("invalid json must error")
	}
}
