package notify

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadRegistryEnabledFilter(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notifiers.yaml")
	raw := `
notifiers:
  - id: chat1
    type: discord
    enabled: false
    discord:
      webhook_url: https://discord.example/hook1
  - id: chat2
    type: discord
    enabled: true
    discord:
      webhook_url: https://discord.example/hook2
      username: newsbot
`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	reg, err := LoadRegistry(path)
	if err != nil {
		t.Fatalf("LoadRegistry: %v", err)
	}
	enabled := reg.Enabled()
	if len(enabled) != 1 || enabled[0].ID != "chat2" {
		t.Fatalf("expected only chat2 enabled, got %#v", enabled)
	}
	if enabled[0].Discord.TimeoutSeconds != discordDefaultTimeoutSecs {
		t.Fatalf("expected discord timeout default, got %d", enabled[0].Discord.TimeoutSeconds)
	}
}

func TestValidateNotifierConfigRejectsMissingBlocks(t *testing.T) {
	cases := []NotifierConfig{
		{ID: "d", Type: TypeDiscord},
		{ID: "h", Type: TypeHTTP},
		{ID: "q", Type: TypeSQS},
		{ID: "s", Type: TypeSNS},
		{ID: "p", Type: TypePubSub},
		{ID: "", Type: TypeHTTP},
		{ID: "x"},
	}
	for _, cfg := range cases {
		if err := validateNotifierConfig(cfg); err == nil {
			t.Errorf("expected validation error for %+v", cfg)
		}
	}
}

func TestSanitizeNotifierConfigDefaultsHTTPMethod(t *testing.T) {
	cfg := sanitizeNotifierConfig(NotifierConfig{
		ID:   " hook ",
		Type: " HTTP ",
		HTTP: &HTTPNotifierConfig{URL: " https://example.com ", Headers: map[string]string{" X ": " 1 ", "empty": " "}},
	})
	if cfg.ID != "hook" || cfg.Type != "http" {
		t.Fatalf("unexpected sanitized identity: %q %q", cfg.ID, cfg.Type)
	}
	if cfg.HTTP.Method != "POST" || cfg.HTTP.TimeoutSeconds != httpDefaultTimeoutSeconds {
		t.Fatalf("unexpected http defaults: %+v", cfg.HTTP)
	}
	if len(cfg.HTTP.Headers) != 1 || cfg.HTTP.Headers["X"] != "1" {
		t.Fatalf("unexpected sanitized headers: %+v", cfg.HTTP.Headers)
	}
	if !cfg.EnabledValue() {
		t.Fatal("enabled must default to true")
	}
}
