package config

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
)

func validEnv() map[string]string {
	return map[string]string{
		"JWT_SECRET":          strings.Repeat("s", 32),
		"TOTP_ENCRYPTION_KEY": strings.Repeat("ab", 32),
	}
}

func TestLoadWith_Defaults(t *testing.T) {
	cfg, err := LoadWith(context.Background(), envconfig.MapLookuper(validEnv()))
	if err != nil {
		t.Fatalf("LoadWith returned error: %v", err)
	}
	if cfg.Port != "8080" || cfg.Store != StoreMongo {
		t.Errorf("unexpected defaults: port=%s store=%s", cfg.Port, cfg.Store)
	}
	if cfg.Crypto.RSAKeyBits != 4096 || cfg.Crypto.BcryptCost != 12 {
		t.Errorf("unexpected crypto defaults: %+v", cfg.Crypto)
	}
	if cfg.TOTP.Skew != 2 || cfg.TOTP.Period != 30*time.Second {
		t.Errorf("unexpected totp defaults: %+v", cfg.TOTP)
	}
	if cfg.APIKeyMaxTTL != 30*24*time.Hour {
		t.Errorf("unexpected api key max ttl: %s", cfg.APIKeyMaxTTL)
	}
	key, err := cfg.TOTPKey()
	if err != nil || len(key) != 32 {
		t.Errorf("expected 32-byte totp key, got %d, %v", len(key), err)
	}
}

func TestLoadWith_ReportsEveryProblem(t *testing.T) {
	env := map[string]string{
		"JWT_SECRET":          "short",
		"TOTP_ENCRYPTION_KEY": "zz",
		"RSA_KEY_BITS":        "1024",
		"STORE":               "postgres",
	}
	_, err := LoadWith(context.Background(), envconfig.MapLookuper(env))
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"JWT_SECRET", "TOTP_ENCRYPTION_KEY", "RSA_KEY_BITS", "STORE"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %s in error, got %v", want, err)
		}
	}
}

func TestValidate_RotationTimeoutBelowLease(t *testing.T) {
	env := validEnv()
	env["ROTATION_TIMEOUT"] = "10m"
	if _, err := LoadWith(context.Background(), envconfig.MapLookuper(env)); err == nil {
		t.Fatal("expected error for rotation timeout above lease ttl")
	}
}

func TestValidate_TOTPPeriodWholeSeconds(t *testing.T) {
	for _, period := range []string{"500ms", "1500ms", "0s", "-30s"} {
		env := validEnv()
		env["TOTP_PERIOD"] = period
		_, err := LoadWith(context.Background(), envconfig.MapLookuper(env))
		if err == nil || !strings.Contains(err.Error(), "TOTP_PERIOD") {
			t.Errorf("period %s: expected TOTP_PERIOD error, got %v", period, err)
		}
	}

	env := validEnv()
	env["TOTP_PERIOD"] = "60s"
	env["TOTP_SKEW"] = "0"
	cfg, err := LoadWith(context.Background(), envconfig.MapLookuper(env))
	if err != nil {
		t.Fatalf("LoadWith returned error: %v", err)
	}
	if cfg.TOTP.Period != time.Minute || cfg.TOTP.Skew != 0 {
		t.Errorf("unexpected totp config: %+v", cfg.TOTP)
	}
}
