package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())
	for _, k := range []string{"PORT", "TIMEZONE", "CONFIG_FILE", "WHATSAPP_API_ENABLED", "NOTIFY_TIMEOUT", "DEFAULT_DELIVERY_FEE", "AMQP_URL", "CORS_ORIGINS"} {
		t.Setenv(k, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8081" {
		t.Errorf("Port = %q, want 8081", cfg.Port)
	}
	if cfg.Timezone.String() != "Africa/Cairo" {
		t.Errorf("Timezone = %q, want Africa/Cairo", cfg.Timezone)
	}
	if cfg.WhatsApp.APIEnabled {
		t.Error("WhatsApp API should be disabled by default")
	}
	if cfg.NotifyTimeout != 10*time.Second {
		t.Errorf("NotifyTimeout = %v, want 10s", cfg.NotifyTimeout)
	}
	if !cfg.DefaultDeliveryFee.IsZero() {
		t.Errorf("DefaultDeliveryFee = %s, want 0", cfg.DefaultDeliveryFee)
	}
	if cfg.AMQPURL != "" {
		t.Errorf("AMQPURL = %q, want empty", cfg.AMQPURL)
	}
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "http://localhost:3000" {
		t.Errorf("CORSOrigins = %v", cfg.CORSOrigins)
	}
}

func TestLoad_FileUnderEnvironment(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	path := filepath.Join(dir, "whataybo.yaml")
	content := "port: \"9000\"\nDEFAULT_DELIVERY_FEE: 15\nWHATSAPP_API_ENABLED: true\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "")
	t.Setenv("DEFAULT_DELIVERY_FEE", "20")
	t.Setenv("WHATSAPP_API_ENABLED", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "9000" {
		t.Errorf("Port = %q, want 9000 from file", cfg.Port)
	}
	if cfg.DefaultDeliveryFee.String() != "20" {
		t.Errorf("DefaultDeliveryFee = %s, want env value 20", cfg.DefaultDeliveryFee)
	}
	if !cfg.WhatsApp.APIEnabled {
		t.Error("WhatsApp API should be enabled from file")
	}
}

func TestLoad_InvalidTimezone(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("TIMEZONE", "Mars/Olympus")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown timezone")
	}
}

func TestLoad_InvalidDeliveryFee(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("TIMEZONE", "")
	for _, v := range []string{"ten", "-5"} {
		t.Setenv("DEFAULT_DELIVERY_FEE", v)
		if _, err := Load(); err == nil {
			t.Errorf("DEFAULT_DELIVERY_FEE=%q: expected error", v)
		}
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" a.com, ,b.com ")
	if len(got) != 2 || got[0] != "a.com" || got[1] != "b.com" {
		t.Errorf("splitList = %v", got)
	}
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Fatalf("restore cwd: %v", err)
		}
	})
}
