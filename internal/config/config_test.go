package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Port)
	}
	if cfg.WorkerCount != 2 {
		t.Errorf("expected default worker count 2, got %d", cfg.WorkerCount)
	}
	if cfg.SlotHorizonDays != 14 {
		t.Errorf("expected default slot horizon 14, got %d", cfg.SlotHorizonDays)
	}
	if cfg.LLMProvider != "openai" {
		t.Errorf("expected default LLM provider openai, got %s", cfg.LLMProvider)
	}
	if cfg.LLMTimeout != 30*time.Second {
		t.Errorf("expected default LLM timeout 30s, got %s", cfg.LLMTimeout)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("USE_MEMORY_QUEUE", "true")
	t.Setenv("WORKER_COUNT", "8")
	t.Setenv("LLM_PROVIDER", " Bedrock ")
	t.Setenv("SEND_RETRY_BACKOFF", "2s")

	cfg := Load()

	if cfg.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Port)
	}
	if !cfg.UseMemoryQueue {
		t.Error("expected memory queue enabled")
	}
	if cfg.WorkerCount != 8 {
		t.Errorf("expected worker count 8, got %d", cfg.WorkerCount)
	}
	if cfg.LLMProvider != "bedrock" {
		t.Errorf("expected normalized provider bedrock, got %s", cfg.LLMProvider)
	}
	if cfg.SendRetryBackoff != 2*time.Second {
		t.Errorf("expected 2s backoff, got %s", cfg.SendRetryBackoff)
	}
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("WORKER_COUNT", "not-a-number")
	t.Setenv("LLM_TIMEOUT", "soon")

	cfg := Load()

	if cfg.WorkerCount != 2 {
		t.Errorf("expected fallback worker count 2, got %d", cfg.WorkerCount)
	}
	if cfg.LLMTimeout != 30*time.Second {
		t.Errorf("expected fallback timeout 30s, got %s", cfg.LLMTimeout)
	}
}
