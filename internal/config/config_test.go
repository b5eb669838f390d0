package config

import (
	"strings"
	"testing"
	"time"
)

// setRequiredEnv は必須環境変数をテスト用に設定する。
func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/rentman?sslmode=disable")
	t.Setenv("AUTH_JWT_SECRET", "jwt-secret")
	t.Setenv("CRON_SECRET", "cron-secret")
	t.Setenv("BASE_URL", "http://localhost:8080")
}

func TestLoad_RequiredFieldMissing(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DATABASE_URL", "")

	_, err := Load()
	if err == nil {
		t.Fatal("Load() should fail when DATABASE_URL is missing")
	}
	if !strings.Contains(err.Error(), "DATABASE_URL") {
		t.Errorf("error = %v, should mention DATABASE_URL", err)
	}
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v, want nil", err)
	}

	if cfg.SessionMaxAge != 86400 {
		t.Errorf("SessionMaxAge = %d, want 86400", cfg.SessionMaxAge)
	}
	if cfg.MailBatchSize != 20 {
		t.Errorf("MailBatchSize = %d, want 20", cfg.MailBatchSize)
	}
	if cfg.MailMaxAttempts != 5 {
		t.Errorf("MailMaxAttempts = %d, want 5", cfg.MailMaxAttempts)
	}
	if cfg.MailDrainInterval != time.Minute {
		t.Errorf("MailDrainInterval = %v, want 1m", cfg.MailDrainInterval)
	}
	if cfg.InvoiceDueDays != 7 {
		t.Errorf("InvoiceDueDays = %d, want 7", cfg.InvoiceDueDays)
	}
	if cfg.RateLimitGeneral != 120 {
		t.Errorf("RateLimitGeneral = %d, want 120", cfg.RateLimitGeneral)
	}
	if cfg.RateLimitPayment != 10 {
		t.Errorf("RateLimitPayment = %d, want 10", cfg.RateLimitPayment)
	}
	if cfg.ServerPort != "8080" {
		t.Errorf("ServerPort = %q, want %q", cfg.ServerPort, "8080")
	}
	if cfg.SMTPPort != 587 {
		t.Errorf("SMTPPort = %d, want 587", cfg.SMTPPort)
	}
	if cfg.PesapalCallbackURL != "http://localhost:8080/api/payments/ipn" {
		t.Errorf("PesapalCallbackURL = %q", cfg.PesapalCallbackURL)
	}
}

func TestLoad_CookieSecureFollowsBaseURLScheme(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.CookieSecure {
		t.Error("CookieSecure should be false for http BASE_URL")
	}

	t.Setenv("BASE_URL", "https://app.example.com")
	cfg, err = Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.CookieSecure {
		t.Error("CookieSecure should be true for https BASE_URL")
	}
}

func TestLoad_OverridesFromEnv(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("MAIL_BATCH_SIZE", "50")
	t.Setenv("MAIL_DRAIN_INTERVAL", "30s")
	t.Setenv("INVOICE_DUE_DAYS", "14")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MailBatchSize != 50 {
		t.Errorf("MailBatchSize = %d, want 50", cfg.MailBatchSize)
	}
	if cfg.MailDrainInterval != 30*time.Second {
		t.Errorf("MailDrainInterval = %v, want 30s", cfg.MailDrainInterval)
	}
	if cfg.InvoiceDueDays != 14 {
		t.Errorf("InvoiceDueDays = %d, want 14", cfg.InvoiceDueDays)
	}
}

func TestLoad_InvalidIntFallsBackToDefault(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("MAIL_BATCH_SIZE", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MailBatchSize != 20 {
		t.Errorf("MailBatchSize = %d, want default 20", cfg.MailBatchSize)
	}
}

func TestPesapalConfigured(t *testing.T) {
	cfg := &Config{}
	if cfg.PesapalConfigured() {
		t.Error("PesapalConfigured() = true, want false when credentials are empty")
	}

	cfg.PesapalConsumerKey = "key"
	if cfg.PesapalConfigured() {
		t.Error("PesapalConfigured() = true, want false when secret is missing")
	}

	cfg.PesapalConsumerSecret = "secret"
	if !cfg.PesapalConfigured() {
		t.Error("PesapalConfigured() = false, want true when both credentials are set")
	}
}
