// Package config はアプリケーション設定の読み込みを提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Auth
	AuthJWTSecret string
	SessionMaxAge int

	// Cron
	CronSecret string

	// Pesapal
	PesapalConsumerKey    string
	PesapalConsumerSecret string
	PesapalBaseURL        string
	PesapalCallbackURL    string

	// SMTP
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPass     string
	MailFrom     string
	MailFromName string

	// Mail queue
	MailBatchSize     int
	MailMaxAttempts   int
	MailDrainInterval time.Duration
	MailSendTimeout   time.Duration

	// Billing
	BillingInterval time.Duration
	InvoiceDueDays  int

	// Rate Limit
	RateLimitGeneral int
	RateLimitPayment int

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// defaultPesapalBaseURL はPesapal v3 APIのサンドボックスホスト。
// 本番ではPESAPAL_BASE_URLに https://pay.pesapal.com/v3 を指定する。
const defaultPesapalBaseURL = "https://cybqa.pesapal.com/pesapalv3"

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envが存在する場合は先に読み込む（既存の環境変数は上書きしない）。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	// .envはローカル開発用。存在しない場合は無視する。
	_ = godotenv.Load()

	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.AuthJWTSecret = os.Getenv("AUTH_JWT_SECRET")
	if cfg.AuthJWTSecret == "" {
		missing = append(missing, "AUTH_JWT_SECRET")
	}

	cfg.CronSecret = os.Getenv("CRON_SECRET")
	if cfg.CronSecret == "" {
		missing = append(missing, "CRON_SECRET")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Pesapal認証情報は任意。未設定の場合、決済系エンドポイントは503を返す。
	cfg.PesapalConsumerKey = os.Getenv("PESAPAL_CONSUMER_KEY")
	cfg.PesapalConsumerSecret = os.Getenv("PESAPAL_CONSUMER_SECRET")
	cfg.PesapalBaseURL = getEnvString("PESAPAL_BASE_URL", defaultPesapalBaseURL)
	cfg.PesapalCallbackURL = getEnvString("PESAPAL_CALLBACK_URL", cfg.BaseURL+"/api/payments/ipn")

	// SMTPは任意。未設定の場合、メール送信は失敗としてキューに記録される。
	cfg.SMTPHost = os.Getenv("SMTP_HOST")
	cfg.SMTPPort = getEnvInt("SMTP_PORT", 587)
	cfg.SMTPUser = os.Getenv("SMTP_USER")
	cfg.SMTPPass = os.Getenv("SMTP_PASS")
	cfg.MailFrom = getEnvString("MAIL_FROM", "noreply@localhost")
	cfg.MailFromName = getEnvString("MAIL_FROM_NAME", "Rentman")

	// Optional fields with defaults
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 86400)
	cfg.MailBatchSize = getEnvInt("MAIL_BATCH_SIZE", 20)
	cfg.MailMaxAttempts = getEnvInt("MAIL_MAX_ATTEMPTS", 5)
	cfg.MailDrainInterval = getEnvDuration("MAIL_DRAIN_INTERVAL", 1*time.Minute)
	cfg.MailSendTimeout = getEnvDuration("MAIL_SEND_TIMEOUT", 30*time.Second)
	cfg.BillingInterval = getEnvDuration("BILLING_INTERVAL", 24*time.Hour)
	cfg.InvoiceDueDays = getEnvInt("INVOICE_DUE_DAYS", 7)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitPayment = getEnvInt("RATE_LIMIT_PAYMENT", 10)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

// PesapalConfigured はPesapal認証情報が設定されているかを返す。
func (c *Config) PesapalConfigured() bool {
	return c.PesapalConsumerKey != "" && c.PesapalConsumerSecret != ""
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
