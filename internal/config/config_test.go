package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const validConfig = `
server:
  name: muxic
  host: 127.0.0.1
  port: 8080
auth:
  jwt_secret: 0123456789abcdef0123456789abcdef
email:
  smtp:
    host: smtp.example.com
    port: 587
    from: noreply@example.com
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Auth.AccessTokenTTL != 15*time.Minute {
		t.Fatalf("AccessTokenTTL = %v, want 15m", cfg.Auth.AccessTokenTTL)
	}
	if cfg.Auth.RefreshTokenTTL != 30*24*time.Hour {
		t.Fatalf("RefreshTokenTTL = %v, want 720h", cfg.Auth.RefreshTokenTTL)
	}
	if cfg.Auth.OTPTTL != 10*time.Minute {
		t.Fatalf("OTPTTL = %v, want 10m", cfg.Auth.OTPTTL)
	}
	if cfg.Auth.ResetTokenTTL != time.Hour {
		t.Fatalf("ResetTokenTTL = %v, want 1h", cfg.Auth.ResetTokenTTL)
	}
	if cfg.Server.ClientURL == "" {
		t.Fatal("ClientURL default is empty")
	}
	if cfg.Addr() != "127.0.0.1:8080" {
		t.Fatalf("Addr() = %q, want %q", cfg.Addr(), "127.0.0.1:8080")
	}
}

func TestLoadRejectsShortSecret(t *testing.T) {
	short := strings.Replace(validConfig, "0123456789abcdef0123456789abcdef", "tooshort", 1)
	if _, err := Load(writeConfig(t, short)); err == nil {
		t.Fatal("Load() accepted a short jwt secret")
	}
}

func TestLoadRejectsMissingSMTPHost(t *testing.T) {
	broken := strings.Replace(validConfig, "host: smtp.example.com", "host: \"\"", 1)
	if _, err := Load(writeConfig(t, broken)); err == nil {
		t.Fatal("Load() accepted a missing smtp host")
	}
}

func TestEnvOverridesWin(t *testing.T) {
	t.Setenv("MUXIC_JWT_SECRET", "ffffffffffffffffffffffffffffffff")

	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Auth.JWTSecret != "ffffffffffffffffffffffffffffffff" {
		t.Fatalf("JWTSecret = %q, want the env value", cfg.Auth.JWTSecret)
	}
}

func TestIsProduction(t *testing.T) {
	prod := validConfig + "\n"
	cfg, err := Load(writeConfig(t, strings.Replace(prod, "name: muxic", "name: muxic\n  env: production", 1)))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.IsProduction() {
		t.Fatal("IsProduction() = false with env: production")
	}
}
