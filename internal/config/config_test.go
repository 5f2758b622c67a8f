package config

import (
	"strings"
	"testing"
)

// memBackend is an in-memory ConfigBackend for tests.
type memBackend struct {
	data map[string]any
}

func (b *memBackend) GetString(key string) (string, bool, error) {
	v, ok := b.data[key]
	if !ok {
		return "", false, nil
	}
	return v.(string), true, nil
}

func (b *memBackend) GetInt(key string) (int, bool, error) {
	v, ok := b.data[key]
	if !ok {
		return 0, false, nil
	}
	return v.(int), true, nil
}

func (b *memBackend) SetString(key, val string) error  { b.data[key] = val; return nil }
func (b *memBackend) SetInt(key string, val int) error { b.data[key] = val; return nil }
func (b *memBackend) Delete(key string) error          { delete(b.data, key); return nil }

// mockKeychain is a test double for the secret store.
type mockKeychain struct {
	value string
	err   error
}

func (m mockKeychain) Get(service, account string) (string, error) {
	return m.value, m.err
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, s := range specs {
		if s.env != "" {
			t.Setenv(s.env, "")
		}
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := loadWith(&memBackend{data: map[string]any{}}, mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 4000 {
		t.Errorf("Server.Port = %d, want 4000", cfg.Server.Port)
	}
	if cfg.LLM.BaseURL != "https://api.openai.com/v1" {
		t.Errorf("LLM.BaseURL = %q", cfg.LLM.BaseURL)
	}
	if cfg.LLM.Model != "gpt-4o-mini" {
		t.Errorf("LLM.Model = %q", cfg.LLM.Model)
	}
	if cfg.LLM.EmbedModel != "text-embedding-3-small" {
		t.Errorf("LLM.EmbedModel = %q", cfg.LLM.EmbedModel)
	}
	if cfg.Storage.DocsDir != "./docs" {
		t.Errorf("Storage.DocsDir = %q", cfg.Storage.DocsDir)
	}
	if cfg.Retrieval.TopK != 3 {
		t.Errorf("Retrieval.TopK = %d, want 3", cfg.Retrieval.TopK)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
}

func TestMissingAPIKeyIsNotAnError(t *testing.T) {
	clearEnv(t)

	cfg, err := loadWith(&memBackend{data: map[string]any{}}, mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LLM.APIKey != "" {
		t.Errorf("APIKey = %q, want empty", cfg.LLM.APIKey)
	}
}

func TestBackendOverridesDefaults(t *testing.T) {
	clearEnv(t)

	b := &memBackend{data: map[string]any{
		"server.port":     5000,
		"llm.model":       "gpt-4.1",
		"retrieval.top_k": 5,
	}}
	cfg, err := loadWith(b, mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d, want 5000", cfg.Server.Port)
	}
	if cfg.LLM.Model != "gpt-4.1" {
		t.Errorf("LLM.Model = %q", cfg.LLM.Model)
	}
	if cfg.Retrieval.TopK != 5 {
		t.Errorf("Retrieval.TopK = %d, want 5", cfg.Retrieval.TopK)
	}
}

func TestEnvOverridesBackend(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPSDESK_LLM_MODEL", "env-model")
	t.Setenv("OPSDESK_SERVER_PORT", "6000")
	t.Setenv("OPSDESK_LLM_API_KEY", "env-key")

	b := &memBackend{data: map[string]any{"llm.model": "file-model"}}
	cfg, err := loadWith(b, mockKeychain{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.LLM.Model != "env-model" {
		t.Errorf("LLM.Model = %q, want env-model", cfg.LLM.Model)
	}
	if cfg.Server.Port != 6000 {
		t.Errorf("Server.Port = %d, want 6000", cfg.Server.Port)
	}
	if cfg.LLM.APIKey != "env-key" {
		t.Errorf("LLM.APIKey = %q, want env-key", cfg.LLM.APIKey)
	}
}

func TestKeychainFallback(t *testing.T) {
	clearEnv(t)

	cfg, err := loadWith(&memBackend{data: map[string]any{}}, mockKeychain{value: "kc-secret"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LLM.APIKey != "kc-secret" {
		t.Errorf("LLM.APIKey = %q, want kc-secret", cfg.LLM.APIKey)
	}
}

func TestEnvWinsOverKeychain(t *testing.T) {
	clearEnv(t)
	t.Setenv("OPSDESK_LLM_API_KEY", "env-key")

	cfg, err := loadWith(&memBackend{data: map[string]any{}}, mockKeychain{value: "kc-secret"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.LLM.APIKey != "env-key" {
		t.Errorf("LLM.APIKey = %q, want env-key", cfg.LLM.APIKey)
	}
}

func TestShowAllHidesSecrets(t *testing.T) {
	cfg := defaults()
	cfg.LLM.APIKey = "secret-value"
	cfg.Server.Token = "token-value"

	for _, info := range ShowAll(cfg) {
		if info.Key == "llm.api_key" || info.Key == "server.token" {
			t.Errorf("secret key %s exposed by ShowAll", info.Key)
		}
		if strings.Contains(info.Value, "secret-value") || strings.Contains(info.Value, "token-value") {
			t.Errorf("secret value leaked through %s", info.Key)
		}
	}
}

func TestValidKeys(t *testing.T) {
	keys := ValidKeys()
	want := map[string]bool{"server.port": true, "llm.model": true, "log.level": true}
	for _, k := range keys {
		delete(want, k)
		if k == "llm.api_key" || k == "server.token" {
			t.Errorf("secret %s listed as settable", k)
		}
	}
	if len(want) != 0 {
		t.Errorf("missing keys: %v", want)
	}
}
