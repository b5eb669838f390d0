// Package payment は決済ゲートウェイとの連携を提供する。
// IPN URL登録、決済開始、IPN通知の処理を含む。
package payment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/rentman/internal/model"
	"github.com/hitoshi/rentman/internal/pesapal"
	"github.com/hitoshi/rentman/internal/repository"
	"github.com/hitoshi/rentman/internal/security"
)

// Gateway は決済ゲートウェイのインターフェース。
// pesapal.Clientが実装する。テスト時にモックに差し替え可能。
type Gateway interface {
	RegisterIPN(ctx context.Context, ipnURL string) (*pesapal.IPNRegistrationResult, error)
	SubmitOrder(ctx context.Context, order *pesapal.OrderRequest) (*pesapal.OrderResult, error)
	GetTransactionStatus(ctx context.Context, orderTrackingID string) (*pesapal.TransactionStatus, error)
}

// Enqueuer はメールキュー投入のインターフェース。
type Enqueuer interface {
	Enqueue(ctx context.Context, recipient, subject, htmlBody string) (*model.EmailMessage, error)
}

// ServiceConfig は決済サービスの設定。
type ServiceConfig struct {
	// Configured はゲートウェイ認証情報が設定済みかどうか。
	// falseの場合、ゲートウェイを要する操作はGATEWAY_UNAVAILABLEを返す。
	Configured bool

	// CallbackURL はゲートウェイに登録するIPN通知先URL。
	CallbackURL string

	// PaymentRedirectBase は決済完了後にユーザーを戻すURL。
	PaymentRedirectBase string
}

// Service は決済のサービス層。
// ゲートウェイ操作と決済レコードの整合性を統括する。
type Service struct {
	gateway     Gateway
	ssrfGuard   security.SSRFGuardService
	paymentRepo repository.PaymentRepository
	invoiceRepo repository.InvoiceRepository
	ipnRepo     repository.IPNRegistrationRepository
	userRepo    repository.UserRepository
	mailer      Enqueuer
	config      ServiceConfig
}

// NewService はServiceを生成する。
func NewService(
	gateway Gateway,
	ssrfGuard security.SSRFGuardService,
	paymentRepo repository.PaymentRepository,
	invoiceRepo repository.InvoiceRepository,
	ipnRepo repository.IPNRegistrationRepository,
	userRepo repository.UserRepository,
	mailer Enqueuer,
	config ServiceConfig,
) *Service {
	return &Service{
		gateway:     gateway,
		ssrfGuard:   ssrfGuard,
		paymentRepo: paymentRepo,
		invoiceRepo: invoiceRepo,
		ipnRepo:     ipnRepo,
		userRepo:    userRepo,
		mailer:      mailer,
		config:      config,
	}
}

// Configured はゲートウェイ認証情報が設定済みかを返す。
func (s *Service) Configured() bool {
	return s.config.Configured
}

// RegisterIPN はIPNコールバックURLをゲートウェイに登録し、登録情報を永続化する。
// フロー: 設定チェック → URL検証 → ゲートウェイ登録 → DB保存
// 同一URLの再登録はゲートウェイ側で同じipn_idを返すため冪等。
func (s *Service) RegisterIPN(ctx context.Context) (*model.IPNRegistration, error) {
	if !s.config.Configured {
		return nil, model.NewGatewayUnavailableError()
	}

	if err := s.ssrfGuard.ValidateURL(s.config.CallbackURL); err != nil {
		return nil, model.NewInvalidCallbackURLError(err.Error())
	}

	result, err := s.gateway.RegisterIPN(ctx, s.config.CallbackURL)
	if err != nil {
		return nil, fmt.Errorf("failed to register IPN with gateway: %w", err)
	}

	reg := &model.IPNRegistration{
		ID:               uuid.New().String(),
		URL:              result.URL,
		IPNID:            result.IPNID,
		NotificationType: result.NotificationType,
		CreatedAt:        time.Now(),
	}

	if err := s.ipnRepo.Create(ctx, reg); err != nil {
		return nil, fmt.Errorf("IPN登録情報の保存に失敗しました: %w", err)
	}

	slog.Info("IPN URL registered",
		slog.String("ipn_id", reg.IPNID),
		slog.String("url", reg.URL),
	)

	return reg, nil
}

// InitiatePayment は請求書に対する決済を開始し、決済ページのリダイレクトURLを返す。
// フロー: 設定チェック → 請求書検証 → IPN登録確認 → 決済レコード作成 →
//
//	注文送信 → 追跡ID記録
func (s *Service) InitiatePayment(ctx context.Context, payerUserID, invoiceID string) (*model.Payment, string, error) {
	if !s.config.Configured {
		return nil, "", model.NewGatewayUnavailableError()
	}

	invoice, err := s.invoiceRepo.FindByID(ctx, invoiceID)
	if err != nil {
		return nil, "", fmt.Errorf("請求書の取得に失敗しました: %w", err)
	}
	if invoice == nil {
		return nil, "", model.NewInvoiceNotFoundError(invoiceID)
	}
	if invoice.Status == model.InvoiceStatusPaid {
		return nil, "", model.NewInvoiceAlreadyPaidError(invoiceID)
	}

	// 注文送信にはIPN登録のnotification_idが必須
	reg, err := s.ipnRepo.Latest(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("IPN登録情報の取得に失敗しました: %w", err)
	}
	if reg == nil {
		return nil, "", model.NewGatewayUnavailableError()
	}

	payer, err := s.userRepo.FindByID(ctx, payerUserID)
	if err != nil {
		return nil, "", fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}

	now := time.Now()
	payment := &model.Payment{
		ID:                uuid.New().String(),
		InvoiceID:         invoice.ID,
		PayerUserID:       payerUserID,
		Amount:            invoice.Amount,
		Currency:          invoice.Currency,
		MerchantReference: newMerchantReference(),
		Status:            model.PaymentStatusPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := s.paymentRepo.Create(ctx, payment); err != nil {
		return nil, "", fmt.Errorf("決済レコードの作成に失敗しました: %w", err)
	}

	order := &pesapal.OrderRequest{
		ID:       payment.MerchantReference,
		Currency: payment.Currency,
		// ゲートウェイAPIは小数表現の金額を要求するため、
		// 最小通貨単位からの変換はこの境界でのみ行う
		Amount:         float64(payment.Amount) / 100,
		Description:    fmt.Sprintf("Rent invoice %s", invoice.Period),
		CallbackURL:    s.config.PaymentRedirectBase,
		NotificationID: reg.IPNID,
		BillingAddress: pesapal.BillingAddress{},
	}
	if payer != nil {
		order.BillingAddress.EmailAddress = payer.Email
		order.BillingAddress.FirstName = payer.Name
	}

	result, err := s.gateway.SubmitOrder(ctx, order)
	if err != nil {
		return nil, "", fmt.Errorf("failed to submit order: %w", err)
	}

	if err := s.paymentRepo.SetOrderTrackingID(ctx, payment.ID, result.OrderTrackingID); err != nil {
		return nil, "", fmt.Errorf("追跡IDの記録に失敗しました: %w", err)
	}
	payment.OrderTrackingID = result.OrderTrackingID

	slog.Info("payment initiated",
		slog.String("payment_id", payment.ID),
		slog.String("invoice_id", invoice.ID),
		slog.String("order_tracking_id", result.OrderTrackingID),
	)

	return payment, result.RedirectURL, nil
}

// HandleNotification はIPN通知を処理する。
// 通知内容は認証されていないため信用せず、必ずゲートウェイに
// 取引ステータスを照会して真の結果を反映する。
// 同一通知の再送に対して冪等。
func (s *Service) HandleNotification(ctx context.Context, orderTrackingID string) (*model.Payment, error) {
	if orderTrackingID == "" {
		return nil, fmt.Errorf("order tracking id is required")
	}

	payment, err := s.paymentRepo.FindByOrderTrackingID(ctx, orderTrackingID)
	if err != nil {
		return nil, fmt.Errorf("決済レコードの検索に失敗しました: %w", err)
	}
	if payment == nil {
		return nil, &model.APIError{
			Code:     model.ErrCodePaymentNotFound,
			Message:  fmt.Sprintf("追跡IDに対応する決済が見つかりません: %s", orderTrackingID),
			Category: "payment",
			Action:   "追跡IDを確認してください。",
		}
	}

	// 完了済みの決済への再通知は何もしない
	if payment.Status == model.PaymentStatusCompleted {
		return payment, nil
	}

	status, err := s.gateway.GetTransactionStatus(ctx, orderTrackingID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transaction status: %w", err)
	}

	newStatus := mapStatusCode(status.StatusCode)
	if newStatus == model.PaymentStatusPending {
		// INVALID(0)はゲートウェイ側で未確定。レコードは変更しない。
		slog.Warn("transaction status not final",
			slog.String("payment_id", payment.ID),
			slog.Int("status_code", status.StatusCode),
		)
		return payment, nil
	}

	if err := s.paymentRepo.UpdateResult(ctx, payment.ID, newStatus, status.PaymentMethod, status.ConfirmationCode); err != nil {
		return nil, fmt.Errorf("決済結果の反映に失敗しました: %w", err)
	}
	payment.Status = newStatus
	payment.Method = status.PaymentMethod
	payment.ConfirmationCode = status.ConfirmationCode

	if newStatus == model.PaymentStatusCompleted {
		if err := s.invoiceRepo.MarkPaid(ctx, payment.InvoiceID, time.Now()); err != nil {
			return nil, fmt.Errorf("請求書の支払い済み更新に失敗しました: %w", err)
		}
		s.enqueueReceipt(ctx, payment)
	}

	slog.Info("payment notification processed",
		slog.String("payment_id", payment.ID),
		slog.String("status", string(newStatus)),
		slog.String("confirmation_code", status.ConfirmationCode),
	)

	return payment, nil
}

// GetPayment は決済を取得する。pending状態の場合はゲートウェイに
// 最新ステータスを照会して反映した結果を返す。
func (s *Service) GetPayment(ctx context.Context, paymentID string) (*model.Payment, error) {
	payment, err := s.paymentRepo.FindByID(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("決済の取得に失敗しました: %w", err)
	}
	if payment == nil {
		return nil, &model.APIError{
			Code:     model.ErrCodePaymentNotFound,
			Message:  fmt.Sprintf("指定された決済が見つかりません: %s", paymentID),
			Category: "payment",
			Action:   "決済IDを確認してください。",
		}
	}

	if payment.Status == model.PaymentStatusPending && payment.OrderTrackingID != "" && s.config.Configured {
		refreshed, err := s.HandleNotification(ctx, payment.OrderTrackingID)
		if err != nil {
			// 照会失敗時は保存済みの状態をそのまま返す
			slog.Warn("failed to refresh payment status",
				slog.String("payment_id", payment.ID),
				slog.String("error", err.Error()),
			)
			return payment, nil
		}
		return refreshed, nil
	}

	return payment, nil
}

// enqueueReceipt は決済完了時の領収メールをキューに投入する。
// 失敗しても決済処理は成功扱いとし、ログのみ残す。
func (s *Service) enqueueReceipt(ctx context.Context, payment *model.Payment) {
	if payment.PayerUserID == "" {
		return
	}
	payer, err := s.userRepo.FindByID(ctx, payment.PayerUserID)
	if err != nil || payer == nil {
		slog.Warn("receipt skipped: payer not found",
			slog.String("payment_id", payment.ID),
		)
		return
	}

	subject := "お支払い完了のお知らせ"
	body := fmt.Sprintf(
		"<p>お支払いが完了しました。</p><p>金額: %s %d.%02d</p><p>確認コード: %s</p>",
		payment.Currency, payment.Amount/100, payment.Amount%100,
		payment.ConfirmationCode,
	)
	if _, err := s.mailer.Enqueue(ctx, payer.Email, subject, body); err != nil {
		slog.Error("failed to enqueue payment receipt",
			slog.String("payment_id", payment.ID),
			slog.String("error", err.Error()),
		)
	}
}

// mapStatusCode はゲートウェイのステータスコードを決済状態に変換する。
func mapStatusCode(code int) model.PaymentStatus {
	switch code {
	case pesapal.StatusCodeCompleted:
		return model.PaymentStatusCompleted
	case pesapal.StatusCodeFailed:
		return model.PaymentStatusFailed
	case pesapal.StatusCodeReversed:
		return model.PaymentStatusReversed
	default:
		return model.PaymentStatusPending
	}
}

// newMerchantReference はこちら側で発番する注文参照IDを生成する。
func newMerchantReference() string {
	return fmt.Sprintf("RENT-%s", uuid.New().String())
}

// compile-time interface check
var _ Gateway = (*pesapal.Client)(nil)
