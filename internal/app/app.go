// Package app はアプリケーションの起動と依存関係のワイヤリングを提供する。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/rentman/internal/auth"
	billingsvc "github.com/hitoshi/rentman/internal/billing"
	"github.com/hitoshi/rentman/internal/config"
	"github.com/hitoshi/rentman/internal/dashboard"
	"github.com/hitoshi/rentman/internal/database"
	"github.com/hitoshi/rentman/internal/handler"
	"github.com/hitoshi/rentman/internal/logger"
	"github.com/hitoshi/rentman/internal/mail"
	"github.com/hitoshi/rentman/internal/metrics"
	"github.com/hitoshi/rentman/internal/middleware"
	"github.com/hitoshi/rentman/internal/payment"
	"github.com/hitoshi/rentman/internal/pesapal"
	"github.com/hitoshi/rentman/internal/property"
	"github.com/hitoshi/rentman/internal/repository"
	"github.com/hitoshi/rentman/internal/security"
	"github.com/hitoshi/rentman/internal/tenancy"
	billingjob "github.com/hitoshi/rentman/internal/worker/billing"
	"github.com/hitoshi/rentman/internal/worker/cleanup"
	"github.com/hitoshi/rentman/internal/worker/mailer"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	propertyRepo := repository.NewPostgresPropertyRepo(db)
	unitRepo := repository.NewPostgresUnitRepo(db)
	tenancyRepo := repository.NewPostgresTenancyRepo(db)
	invoiceRepo := repository.NewPostgresInvoiceRepo(db)
	paymentRepo := repository.NewPostgresPaymentRepo(db)
	emailRepo := repository.NewPostgresEmailQueueRepo(db)
	ipnRepo := repository.NewPostgresIPNRepo(db)
	statsRepo := repository.NewPostgresStatsRepo(db)

	// 3. セキュリティ・メトリクスの初期化
	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewMailSanitizer()

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 4. ドメインサービスの初期化
	verifier := auth.NewHSTokenVerifier(cfg.AuthJWTSecret)
	authService := auth.NewService(
		verifier, userRepo, sessionRepo,
		auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge},
	)

	mailQueue := mail.NewQueueService(emailRepo, sanitizer)

	gateway := pesapal.NewClient(pesapal.Config{
		ConsumerKey:    cfg.PesapalConsumerKey,
		ConsumerSecret: cfg.PesapalConsumerSecret,
		BaseURL:        cfg.PesapalBaseURL,
	}, ssrfGuard.NewSafeClient(30*time.Second))

	paymentService := payment.NewService(
		gateway, ssrfGuard, paymentRepo, invoiceRepo, ipnRepo, userRepo, mailQueue,
		payment.ServiceConfig{
			Configured:          cfg.PesapalConfigured(),
			CallbackURL:         cfg.PesapalCallbackURL,
			PaymentRedirectBase: cfg.BaseURL + "/payments/complete",
		},
	)

	propertyService := property.NewService(propertyRepo, unitRepo)
	tenancyService := tenancy.NewService(tenancyRepo, unitRepo, propertyRepo, mailQueue)
	billingService := billingsvc.NewService(
		invoiceRepo, tenancyRepo, mailQueue,
		billingsvc.ServiceConfig{InvoiceDueDays: cfg.InvoiceDueDays},
	)
	dashboardService := dashboard.NewService(statsRepo)

	// 5. cronエンドポイント用ドレイナーの初期化
	sender := mail.NewSMTPSender(mail.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUser,
		Password: cfg.SMTPPass,
		From:     cfg.MailFrom,
		FromName: cfg.MailFromName,
	})
	drainer := mailer.NewDrainer(emailRepo, sender, collector, slog.Default(), mailer.DrainerConfig{
		BatchSize:   cfg.MailBatchSize,
		MaxAttempts: cfg.MailMaxAttempts,
		SendTimeout: cfg.MailSendTimeout,
	})

	// 6. ルーターの構築
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	// configのレート値はreq/min単位のためreq/secに変換する
	rateLimiterCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
	rateLimiterCfg.GeneralBurst = cfg.RateLimitGeneral
	rateLimiterCfg.PaymentRate = rate.Limit(float64(cfg.RateLimitPayment) / 60.0)
	rateLimiterCfg.PaymentBurst = cfg.RateLimitPayment
	rateLimiter := middleware.NewRateLimiter(rateLimiterCfg)
	defer rateLimiter.Stop()

	csrfCfg := middleware.CSRFConfig{
		CookieSecure: cfg.CookieSecure,
		CookieDomain: cfg.CookieDomain,
	}

	router := handler.NewRouter(&handler.RouterDeps{
		HealthChecker:     db,
		SessionFinder:     sessionRepo,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		CSRFConfig:        csrfCfg,
		Logger:            slog.Default(),
		StatusCollector:   collector,

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		EmailDrainer: drainer,
		CronSecret:   cfg.CronSecret,

		IPNRegistrar:     paymentService,
		PaymentService:   paymentService,
		PaymentCollector: collector,

		PropertyService:  propertyService,
		TenancyService:   tenancyService,
		InvoiceService:   billingService,
		DashboardService: dashboardService,
	})

	// /metricsはAPIルーターの外に置き、ミドルウェアチェーンを通さない
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(registry))
	mux.Handle("/", router)

	// 7. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// メールキューのドレイン、請求ジョブ、クリーンアップジョブを定期実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	// 2. リポジトリの初期化
	tenancyRepo := repository.NewPostgresTenancyRepo(db)
	invoiceRepo := repository.NewPostgresInvoiceRepo(db)
	emailRepo := repository.NewPostgresEmailQueueRepo(db)

	// 3. メトリクスとセキュリティの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)
	sanitizer := security.NewMailSanitizer()

	// 4. メールドレイナーの初期化
	sender := mail.NewSMTPSender(mail.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUser,
		Password: cfg.SMTPPass,
		From:     cfg.MailFrom,
		FromName: cfg.MailFromName,
	})
	drainer := mailer.NewDrainer(emailRepo, sender, collector, slog.Default(), mailer.DrainerConfig{
		BatchSize:   cfg.MailBatchSize,
		MaxAttempts: cfg.MailMaxAttempts,
		SendTimeout: cfg.MailSendTimeout,
	})
	scheduler := mailer.NewScheduler(drainer, slog.Default())

	// 5. 請求ジョブの初期化
	mailQueue := mail.NewQueueService(emailRepo, sanitizer)
	billingService := billingsvc.NewService(
		invoiceRepo, tenancyRepo, mailQueue,
		billingsvc.ServiceConfig{InvoiceDueDays: cfg.InvoiceDueDays},
	)
	billJob := billingjob.NewJob(billingService, collector, slog.Default())

	// 6. クリーンアップジョブの初期化
	cleanupJob := cleanup.NewCleanupJob(db, emailRepo, slog.Default())

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("drain_interval", cfg.MailDrainInterval),
		slog.Duration("billing_interval", cfg.BillingInterval),
	)

	// 請求ジョブをバックグラウンドで定期実行
	go billJob.Start(ctx, cfg.BillingInterval)

	// クリーンアップジョブを日次でバックグラウンド実行
	go func() {
		// 起動直後に1回実行
		if err := cleanupJob.Run(ctx); err != nil {
			slog.Error("cleanup job failed", slog.String("error", err.Error()))
		}

		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := cleanupJob.Run(ctx); err != nil {
					slog.Error("cleanup job failed", slog.String("error", err.Error()))
				}
			}
		}
	}()

	// メール送信スケジューラをメインgoroutineで実行（ブロッキング）
	scheduler.Start(ctx, cfg.MailDrainInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
