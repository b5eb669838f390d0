package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/rentman/internal/middleware"
)

// HealthChecker はヘルスチェックに必要なインターフェース。
// *sql.DBが実装する。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	HealthChecker     HealthChecker
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRFConfig        middleware.CSRFConfig
	Logger            *slog.Logger
	StatusCollector   middleware.StatusRecorder

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// cron
	EmailDrainer EmailDrainer
	CronSecret   string

	// セットアップ・決済
	IPNRegistrar     IPNRegistrar
	PaymentService   PaymentServiceInterface
	PaymentCollector PaymentMetricsRecorder

	// 物件・契約・請求
	PropertyService  PropertyServiceInterface
	TenancyService   TenancyServiceInterface
	InvoiceService   InvoiceServiceInterface
	DashboardService DashboardServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → Logging → CORS →（認証グループのみ）Session → CSRF → RateLimit
//
// 認証ルート（/api/auth/*）、cronルート、IPNコールバックはセッションミドルウェアの外に配置する。
// cronは共有シークレット、IPNはサービス層のゲートウェイ再照会で保護される。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	if deps.Logger != nil {
		r.Use(middleware.NewLoggingMiddleware(deps.Logger, deps.StatusCollector))
	}
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	cronHandler := NewCronHandler(deps.EmailDrainer, deps.CronSecret)
	setupHandler := NewSetupHandler(deps.IPNRegistrar)
	paymentHandler := NewPaymentHandler(deps.PaymentService, deps.PaymentCollector)
	propertyHandler := NewPropertyHandler(deps.PropertyService)
	tenancyHandler := NewTenancyHandler(deps.TenancyService)
	invoiceHandler := NewInvoiceHandler(deps.InvoiceService)
	dashboardHandler := NewDashboardHandler(deps.DashboardService)

	// --- 認証不要のルート ---

	// ヘルスチェック
	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		if deps.HealthChecker != nil {
			if err := deps.HealthChecker.PingContext(req.Context()); err != nil {
				http.Error(w, "unhealthy", http.StatusServiceUnavailable)
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	// CSRFトークン取得
	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

	// セッションブリッジ
	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/set-session", authHandler.SetSession)
		r.Post("/logout", authHandler.Logout)
		r.Get("/me", authHandler.Me)
	})

	// cron（共有シークレットで保護）
	r.Get("/api/cron/process-emails", cronHandler.ProcessEmails)

	// ゲートウェイからのIPN通知（GET/POST両対応）
	r.Get("/api/payments/ipn", paymentHandler.HandleIPN)
	r.Post("/api/payments/ipn", paymentHandler.HandleIPN)

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → CSRF → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// セットアップ
		r.Get("/api/setup/register-pesapal-ipn", setupHandler.RegisterPesapalIPN)

		// 物件管理
		r.Route("/api/properties", func(r chi.Router) {
			r.Post("/", propertyHandler.CreateProperty)
			r.Get("/", propertyHandler.ListProperties)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", propertyHandler.GetProperty)
				r.Patch("/", propertyHandler.UpdateProperty)
				r.Delete("/", propertyHandler.DeleteProperty)

				// 区画
				r.Post("/units", propertyHandler.AddUnit)
				r.Get("/units", propertyHandler.ListUnits)
			})
		})
		r.Delete("/api/units/{id}", propertyHandler.DeleteUnit)

		// 契約管理
		r.Route("/api/tenancies", func(r chi.Router) {
			r.Post("/", tenancyHandler.CreateTenancy)
			r.Get("/", tenancyHandler.ListTenancies)

			r.Route("/{id}", func(r chi.Router) {
				r.Post("/end", tenancyHandler.EndTenancy)
				r.Get("/invoices", invoiceHandler.ListTenancyInvoices)
			})
		})

		// ダッシュボード
		r.Get("/api/dashboard/stats", dashboardHandler.GetStats)

		// 請求書
		r.Route("/api/invoices", func(r chi.Router) {
			r.Get("/", invoiceHandler.ListInvoices)
			r.Get("/{id}", invoiceHandler.GetInvoice)
		})

		// 決済（決済専用レート制限を追加）
		r.With(deps.RateLimiter.PaymentMiddleware()).Post("/api/payments", paymentHandler.InitiatePayment)
		r.Get("/api/payments/{id}", paymentHandler.GetPayment)
	})

	return r
}
