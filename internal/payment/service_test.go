package payment

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/rentman/internal/model"
	"github.com/hitoshi/rentman/internal/pesapal"
	"github.com/hitoshi/rentman/internal/repository"
)

// --- モック定義 ---

type mockGateway struct {
	registerIPNFn          func(ctx context.Context, ipnURL string) (*pesapal.IPNRegistrationResult, error)
	submitOrderFn          func(ctx context.Context, order *pesapal.OrderRequest) (*pesapal.OrderResult, error)
	getTransactionStatusFn func(ctx context.Context, orderTrackingID string) (*pesapal.TransactionStatus, error)
}

func (m *mockGateway) RegisterIPN(ctx context.Context, ipnURL string) (*pesapal.IPNRegistrationResult, error) {
	return m.registerIPNFn(ctx, ipnURL)
}

func (m *mockGateway) SubmitOrder(ctx context.Context, order *pesapal.OrderRequest) (*pesapal.OrderResult, error) {
	return m.submitOrderFn(ctx, order)
}

func (m *mockGateway) GetTransactionStatus(ctx context.Context, orderTrackingID string) (*pesapal.TransactionStatus, error) {
	return m.getTransactionStatusFn(ctx, orderTrackingID)
}

type mockSSRFGuard struct {
	validateURLFn func(rawURL string) error
}

func (m *mockSSRFGuard) NewSafeClient(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

func (m *mockSSRFGuard) ValidateURL(rawURL string) error {
	if m.validateURLFn != nil {
		return m.validateURLFn(rawURL)
	}
	return nil
}

type mockPaymentRepo struct {
	createFn                func(ctx context.Context, payment *model.Payment) error
	findByIDFn              func(ctx context.Context, id string) (*model.Payment, error)
	findByOrderTrackingIDFn func(ctx context.Context, orderTrackingID string) (*model.Payment, error)
	setOrderTrackingIDFn    func(ctx context.Context, id, orderTrackingID string) error
	updateResultFn          func(ctx context.Context, id string, status model.PaymentStatus, method, confirmationCode string) error
}

func (m *mockPaymentRepo) Create(ctx context.Context, payment *model.Payment) error {
	if m.createFn != nil {
		return m.createFn(ctx, payment)
	}
	return nil
}

func (m *mockPaymentRepo) FindByID(ctx context.Context, id string) (*model.Payment, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockPaymentRepo) FindByOrderTrackingID(ctx context.Context, orderTrackingID string) (*model.Payment, error) {
	if m.findByOrderTrackingIDFn != nil {
		return m.findByOrderTrackingIDFn(ctx, orderTrackingID)
	}
	return nil, nil
}

func (m *mockPaymentRepo) SetOrderTrackingID(ctx context.Context, id, orderTrackingID string) error {
	if m.setOrderTrackingIDFn != nil {
		return m.setOrderTrackingIDFn(ctx, id, orderTrackingID)
	}
	return nil
}

func (m *mockPaymentRepo) UpdateResult(ctx context.Context, id string, status model.PaymentStatus, method, confirmationCode string) error {
	if m.updateResultFn != nil {
		return m.updateResultFn(ctx, id, status, method, confirmationCode)
	}
	return nil
}

type mockInvoiceFinder struct {
	findByIDFn func(ctx context.Context, id string) (*model.Invoice, error)
	markPaidFn func(ctx context.Context, id string, paidAt time.Time) error
}

func (m *mockInvoiceFinder) CreateIfAbsent(ctx context.Context, invoice *model.Invoice) (bool, error) {
	return false, nil
}

func (m *mockInvoiceFinder) FindByID(ctx context.Context, id string) (*model.Invoice, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockInvoiceFinder) ListByTenancyID(ctx context.Context, tenancyID string) ([]*model.Invoice, error) {
	return nil, nil
}

func (m *mockInvoiceFinder) ListByOwnerID(ctx context.Context, ownerID string) ([]repository.InvoiceWithTenancyInfo, error) {
	return nil, nil
}

func (m *mockInvoiceFinder) MarkPaid(ctx context.Context, id string, paidAt time.Time) error {
	if m.markPaidFn != nil {
		return m.markPaidFn(ctx, id, paidAt)
	}
	return nil
}

func (m *mockInvoiceFinder) MarkOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	return 0, nil
}

type mockIPNRepo struct {
	createFn func(ctx context.Context, reg *model.IPNRegistration) error
	latestFn func(ctx context.Context) (*model.IPNRegistration, error)
}

func (m *mockIPNRepo) Create(ctx context.Context, reg *model.IPNRegistration) error {
	if m.createFn != nil {
		return m.createFn(ctx, reg)
	}
	return nil
}

func (m *mockIPNRepo) Latest(ctx context.Context) (*model.IPNRegistration, error) {
	if m.latestFn != nil {
		return m.latestFn(ctx)
	}
	return nil, nil
}

type mockUserFinder struct {
	findByIDFn func(ctx context.Context, id string) (*model.User, error)
}

func (m *mockUserFinder) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockUserFinder) Upsert(ctx context.Context, user *model.User) (*model.User, error) {
	return user, nil
}

func (m *mockUserFinder) DeleteByID(ctx context.Context, id string) error { return nil }

type mockEnqueuer struct {
	enqueued []string
}

func (m *mockEnqueuer) Enqueue(ctx context.Context, recipient, subject, htmlBody string) (*model.EmailMessage, error) {
	m.enqueued = append(m.enqueued, recipient)
	return &model.EmailMessage{}, nil
}

func configuredService(gateway *mockGateway, paymentRepo *mockPaymentRepo, invoiceRepo *mockInvoiceFinder, ipnRepo *mockIPNRepo, userRepo *mockUserFinder, mailer *mockEnqueuer) *Service {
	return NewService(gateway, &mockSSRFGuard{}, paymentRepo, invoiceRepo, ipnRepo, userRepo, mailer, ServiceConfig{
		Configured:          true,
		CallbackURL:         "https://app.example.com/api/payments/ipn",
		PaymentRedirectBase: "https://app.example.com/payments/complete",
	})
}

// --- テスト ---

func TestRegisterIPN_Unconfigured(t *testing.T) {
	svc := NewService(&mockGateway{}, &mockSSRFGuard{}, &mockPaymentRepo{}, &mockInvoiceFinder{}, &mockIPNRepo{}, &mockUserFinder{}, &mockEnqueuer{}, ServiceConfig{
		Configured: false,
	})

	_, err := svc.RegisterIPN(context.Background())
	if err == nil {
		t.Fatal("RegisterIPN() should fail when gateway is not configured")
	}

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error should be *model.APIError, got %T", err)
	}
	if apiErr.Code != model.ErrCodeGatewayUnavailable {
		t.Errorf("code = %q, want %q", apiErr.Code, model.ErrCodeGatewayUnavailable)
	}
}

func TestRegisterIPN_InvalidCallbackURL(t *testing.T) {
	guard := &mockSSRFGuard{
		validateURLFn: func(rawURL string) error {
			return errors.New("private IP address is not allowed")
		},
	}
	svc := NewService(&mockGateway{}, guard, &mockPaymentRepo{}, &mockInvoiceFinder{}, &mockIPNRepo{}, &mockUserFinder{}, &mockEnqueuer{}, ServiceConfig{
		Configured:  true,
		CallbackURL: "http://10.0.0.1/ipn",
	})

	_, err := svc.RegisterIPN(context.Background())
	if err == nil {
		t.Fatal("RegisterIPN() should fail for unsafe callback URL")
	}

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error should be *model.APIError, got %T", err)
	}
	if apiErr.Code != model.ErrCodeInvalidCallbackURL {
		t.Errorf("code = %q, want %q", apiErr.Code, model.ErrCodeInvalidCallbackURL)
	}
}

func TestRegisterIPN_PersistsRegistration(t *testing.T) {
	gateway := &mockGateway{
		registerIPNFn: func(ctx context.Context, ipnURL string) (*pesapal.IPNRegistrationResult, error) {
			return &pesapal.IPNRegistrationResult{
				URL:              ipnURL,
				IPNID:            "ipn-uuid-1",
				NotificationType: "GET",
			}, nil
		},
	}
	var saved *model.IPNRegistration
	ipnRepo := &mockIPNRepo{
		createFn: func(ctx context.Context, reg *model.IPNRegistration) error {
			saved = reg
			return nil
		},
	}
	svc := configuredService(gateway, &mockPaymentRepo{}, &mockInvoiceFinder{}, ipnRepo, &mockUserFinder{}, &mockEnqueuer{})

	reg, err := svc.RegisterIPN(context.Background())
	if err != nil {
		t.Fatalf("RegisterIPN() error = %v", err)
	}
	if reg.IPNID != "ipn-uuid-1" {
		t.Errorf("IPNID = %q, want %q", reg.IPNID, "ipn-uuid-1")
	}
	if saved == nil || saved.IPNID != "ipn-uuid-1" {
		t.Error("registration should be persisted")
	}
}

func TestInitiatePayment_AmountConvertedToDecimalAtGatewayBoundary(t *testing.T) {
	invoiceRepo := &mockInvoiceFinder{
		findByIDFn: func(ctx context.Context, id string) (*model.Invoice, error) {
			return &model.Invoice{
				ID:       id,
				Period:   "2026-08",
				Amount:   5000050, // 最小通貨単位 = 50,000.50
				Currency: "KES",
				Status:   model.InvoiceStatusIssued,
			}, nil
		},
	}
	ipnRepo := &mockIPNRepo{
		latestFn: func(ctx context.Context) (*model.IPNRegistration, error) {
			return &model.IPNRegistration{IPNID: "ipn-uuid-1"}, nil
		},
	}
	var submitted *pesapal.OrderRequest
	gateway := &mockGateway{
		submitOrderFn: func(ctx context.Context, order *pesapal.OrderRequest) (*pesapal.OrderResult, error) {
			submitted = order
			return &pesapal.OrderResult{
				OrderTrackingID: "track-1",
				RedirectURL:     "https://pay.pesapal.com/iframe/xyz",
			}, nil
		},
	}
	userRepo := &mockUserFinder{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id, Email: "tenant@example.com"}, nil
		},
	}
	svc := configuredService(gateway, &mockPaymentRepo{}, invoiceRepo, ipnRepo, userRepo, &mockEnqueuer{})

	payment, redirectURL, err := svc.InitiatePayment(context.Background(), "user-1", "inv-1")
	if err != nil {
		t.Fatalf("InitiatePayment() error = %v", err)
	}

	// 内部はint64の最小通貨単位のまま
	if payment.Amount != 5000050 {
		t.Errorf("payment.Amount = %d, want 5000050", payment.Amount)
	}
	// ゲートウェイ境界でのみ小数に変換
	if submitted.Amount != 50000.50 {
		t.Errorf("order.Amount = %v, want 50000.50", submitted.Amount)
	}
	if submitted.NotificationID != "ipn-uuid-1" {
		t.Errorf("NotificationID = %q, want %q", submitted.NotificationID, "ipn-uuid-1")
	}
	if submitted.BillingAddress.EmailAddress != "tenant@example.com" {
		t.Errorf("billing email = %q", submitted.BillingAddress.EmailAddress)
	}
	if !strings.HasPrefix(payment.MerchantReference, "RENT-") {
		t.Errorf("MerchantReference = %q, want RENT- prefix", payment.MerchantReference)
	}
	if payment.OrderTrackingID != "track-1" {
		t.Errorf("OrderTrackingID = %q, want %q", payment.OrderTrackingID, "track-1")
	}
	if redirectURL != "https://pay.pesapal.com/iframe/xyz" {
		t.Errorf("redirectURL = %q", redirectURL)
	}
}

func TestInitiatePayment_InvoiceAlreadyPaid(t *testing.T) {
	invoiceRepo := &mockInvoiceFinder{
		findByIDFn: func(ctx context.Context, id string) (*model.Invoice, error) {
			return &model.Invoice{ID: id, Status: model.InvoiceStatusPaid}, nil
		},
	}
	svc := configuredService(&mockGateway{}, &mockPaymentRepo{}, invoiceRepo, &mockIPNRepo{}, &mockUserFinder{}, &mockEnqueuer{})

	_, _, err := svc.InitiatePayment(context.Background(), "user-1", "inv-paid")
	if err == nil {
		t.Fatal("InitiatePayment() should fail for paid invoice")
	}

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error should be *model.APIError, got %T", err)
	}
	if apiErr.Code != model.ErrCodeInvoiceAlreadyPaid {
		t.Errorf("code = %q, want %q", apiErr.Code, model.ErrCodeInvoiceAlreadyPaid)
	}
}

func TestInitiatePayment_NoIPNRegistration(t *testing.T) {
	invoiceRepo := &mockInvoiceFinder{
		findByIDFn: func(ctx context.Context, id string) (*model.Invoice, error) {
			return &model.Invoice{ID: id, Status: model.InvoiceStatusIssued}, nil
		},
	}
	svc := configuredService(&mockGateway{}, &mockPaymentRepo{}, invoiceRepo, &mockIPNRepo{}, &mockUserFinder{}, &mockEnqueuer{})

	_, _, err := svc.InitiatePayment(context.Background(), "user-1", "inv-1")
	if err == nil {
		t.Fatal("InitiatePayment() should fail when no IPN registration exists")
	}

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error should be *model.APIError, got %T", err)
	}
	if apiErr.Code != model.ErrCodeGatewayUnavailable {
		t.Errorf("code = %q, want %q", apiErr.Code, model.ErrCodeGatewayUnavailable)
	}
}

func TestHandleNotification_Completed_MarksInvoicePaidAndSendsReceipt(t *testing.T) {
	paymentRepo := &mockPaymentRepo{
		findByOrderTrackingIDFn: func(ctx context.Context, orderTrackingID string) (*model.Payment, error) {
			return &model.Payment{
				ID:              "pay-1",
				InvoiceID:       "inv-1",
				PayerUserID:     "user-1",
				Amount:          5000000,
				Currency:        "KES",
				OrderTrackingID: orderTrackingID,
				Status:          model.PaymentStatusPending,
			}, nil
		},
	}
	gateway := &mockGateway{
		getTransactionStatusFn: func(ctx context.Context, orderTrackingID string) (*pesapal.TransactionStatus, error) {
			return &pesapal.TransactionStatus{
				StatusCode:       pesapal.StatusCodeCompleted,
				PaymentMethod:    "MPESA",
				ConfirmationCode: "ABC123",
			}, nil
		},
	}
	var paidInvoiceID string
	invoiceRepo := &mockInvoiceFinder{
		markPaidFn: func(ctx context.Context, id string, paidAt time.Time) error {
			paidInvoiceID = id
			return nil
		},
	}
	userRepo := &mockUserFinder{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id, Email: "tenant@example.com"}, nil
		},
	}
	mailer := &mockEnqueuer{}
	svc := configuredService(gateway, paymentRepo, invoiceRepo, &mockIPNRepo{}, userRepo, mailer)

	payment, err := svc.HandleNotification(context.Background(), "track-1")
	if err != nil {
		t.Fatalf("HandleNotification() error = %v", err)
	}

	if payment.Status != model.PaymentStatusCompleted {
		t.Errorf("Status = %q, want %q", payment.Status, model.PaymentStatusCompleted)
	}
	if payment.ConfirmationCode != "ABC123" {
		t.Errorf("ConfirmationCode = %q, want %q", payment.ConfirmationCode, "ABC123")
	}
	if paidInvoiceID != "inv-1" {
		t.Errorf("paid invoice = %q, want %q", paidInvoiceID, "inv-1")
	}
	if len(mailer.enqueued) != 1 || mailer.enqueued[0] != "tenant@example.com" {
		t.Errorf("receipt recipients = %v, want [tenant@example.com]", mailer.enqueued)
	}
}

func TestHandleNotification_AlreadyCompleted_Idempotent(t *testing.T) {
	paymentRepo := &mockPaymentRepo{
		findByOrderTrackingIDFn: func(ctx context.Context, orderTrackingID string) (*model.Payment, error) {
			return &model.Payment{ID: "pay-1", Status: model.PaymentStatusCompleted}, nil
		},
	}
	gateway := &mockGateway{
		getTransactionStatusFn: func(ctx context.Context, orderTrackingID string) (*pesapal.TransactionStatus, error) {
			t.Error("gateway should not be queried for completed payment")
			return nil, nil
		},
	}
	mailer := &mockEnqueuer{}
	svc := configuredService(gateway, paymentRepo, &mockInvoiceFinder{}, &mockIPNRepo{}, &mockUserFinder{}, mailer)

	payment, err := svc.HandleNotification(context.Background(), "track-1")
	if err != nil {
		t.Fatalf("HandleNotification() error = %v", err)
	}
	if payment.Status != model.PaymentStatusCompleted {
		t.Errorf("Status = %q, want completed", payment.Status)
	}
	if len(mailer.enqueued) != 0 {
		t.Errorf("receipt should not be re-sent, got %v", mailer.enqueued)
	}
}

func TestHandleNotification_InvalidStatus_LeavesPaymentUnchanged(t *testing.T) {
	paymentRepo := &mockPaymentRepo{
		findByOrderTrackingIDFn: func(ctx context.Context, orderTrackingID string) (*model.Payment, error) {
			return &model.Payment{ID: "pay-1", Status: model.PaymentStatusPending}, nil
		},
		updateResultFn: func(ctx context.Context, id string, status model.PaymentStatus, method, confirmationCode string) error {
			t.Error("payment should not be updated for INVALID status")
			return nil
		},
	}
	gateway := &mockGateway{
		getTransactionStatusFn: func(ctx context.Context, orderTrackingID string) (*pesapal.TransactionStatus, error) {
			return &pesapal.TransactionStatus{StatusCode: pesapal.StatusCodeInvalid}, nil
		},
	}
	svc := configuredService(gateway, paymentRepo, &mockInvoiceFinder{}, &mockIPNRepo{}, &mockUserFinder{}, &mockEnqueuer{})

	payment, err := svc.HandleNotification(context.Background(), "track-1")
	if err != nil {
		t.Fatalf("HandleNotification() error = %v", err)
	}
	if payment.Status != model.PaymentStatusPending {
		t.Errorf("Status = %q, want pending", payment.Status)
	}
}

func TestHandleNotification_Failed_DoesNotMarkInvoicePaid(t *testing.T) {
	paymentRepo := &mockPaymentRepo{
		findByOrderTrackingIDFn: func(ctx context.Context, orderTrackingID string) (*model.Payment, error) {
			return &model.Payment{ID: "pay-1", InvoiceID: "inv-1", Status: model.PaymentStatusPending}, nil
		},
	}
	gateway := &mockGateway{
		getTransactionStatusFn: func(ctx context.Context, orderTrackingID string) (*pesapal.TransactionStatus, error) {
			return &pesapal.TransactionStatus{StatusCode: pesapal.StatusCodeFailed}, nil
		},
	}
	invoiceRepo := &mockInvoiceFinder{
		markPaidFn: func(ctx context.Context, id string, paidAt time.Time) error {
			t.Error("invoice should not be marked paid for failed payment")
			return nil
		},
	}
	svc := configuredService(gateway, paymentRepo, invoiceRepo, &mockIPNRepo{}, &mockUserFinder{}, &mockEnqueuer{})

	payment, err := svc.HandleNotification(context.Background(), "track-1")
	if err != nil {
		t.Fatalf("HandleNotification() error = %v", err)
	}
	if payment.Status != model.PaymentStatusFailed {
		t.Errorf("Status = %q, want failed", payment.Status)
	}
}

func TestHandleNotification_UnknownTrackingID(t *testing.T) {
	svc := configuredService(&mockGateway{}, &mockPaymentRepo{}, &mockInvoiceFinder{}, &mockIPNRepo{}, &mockUserFinder{}, &mockEnqueuer{})

	_, err := svc.HandleNotification(context.Background(), "unknown")
	if err == nil {
		t.Fatal("HandleNotification() should fail for unknown tracking ID")
	}

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error should be *model.APIError, got %T", err)
	}
	if apiErr.Code != model.ErrCodePaymentNotFound {
		t.Errorf("code = %q, want %q", apiErr.Code, model.ErrCodePaymentNotFound)
	}
}

func TestGetPayment_PendingRefreshesFromGateway(t *testing.T) {
	pending := &model.Payment{
		ID:              "pay-1",
		InvoiceID:       "inv-1",
		OrderTrackingID: "track-1",
		Status:          model.PaymentStatusPending,
	}
	paymentRepo := &mockPaymentRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Payment, error) {
			return pending, nil
		},
		findByOrderTrackingIDFn: func(ctx context.Context, orderTrackingID string) (*model.Payment, error) {
			return pending, nil
		},
	}
	gateway := &mockGateway{
		getTransactionStatusFn: func(ctx context.Context, orderTrackingID string) (*pesapal.TransactionStatus, error) {
			return &pesapal.TransactionStatus{StatusCode: pesapal.StatusCodeCompleted, ConfirmationCode: "XYZ"}, nil
		},
	}
	userRepo := &mockUserFinder{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id, Email: "a@example.com"}, nil
		},
	}
	svc := configuredService(gateway, paymentRepo, &mockInvoiceFinder{}, &mockIPNRepo{}, userRepo, &mockEnqueuer{})

	payment, err := svc.GetPayment(context.Background(), "pay-1")
	if err != nil {
		t.Fatalf("GetPayment() error = %v", err)
	}
	if payment.Status != model.PaymentStatusCompleted {
		t.Errorf("Status = %q, want completed after refresh", payment.Status)
	}
}

func TestGetPayment_RefreshFailure_ReturnsStoredState(t *testing.T) {
	pending := &model.Payment{
		ID:              "pay-1",
		OrderTrackingID: "track-1",
		Status:          model.PaymentStatusPending,
	}
	paymentRepo := &mockPaymentRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Payment, error) {
			return pending, nil
		},
		findByOrderTrackingIDFn: func(ctx context.Context, orderTrackingID string) (*model.Payment, error) {
			return pending, nil
		},
	}
	gateway := &mockGateway{
		getTransactionStatusFn: func(ctx context.Context, orderTrackingID string) (*pesapal.TransactionStatus, error) {
			return nil, errors.New("gateway timeout")
		},
	}
	svc := configuredService(gateway, paymentRepo, &mockInvoiceFinder{}, &mockIPNRepo{}, &mockUserFinder{}, &mockEnqueuer{})

	payment, err := svc.GetPayment(context.Background(), "pay-1")
	if err != nil {
		t.Fatalf("GetPayment() error = %v, refresh failure should not propagate", err)
	}
	if payment.Status != model.PaymentStatusPending {
		t.Errorf("Status = %q, want stored pending state", payment.Status)
	}
}

func TestMapStatusCode(t *testing.T) {
	tests := []struct {
		code int
		want model.PaymentStatus
	}{
		{pesapal.StatusCodeCompleted, model.PaymentStatusCompleted},
		{pesapal.StatusCodeFailed, model.PaymentStatusFailed},
		{pesapal.StatusCodeReversed, model.PaymentStatusReversed},
		{pesapal.StatusCodeInvalid, model.PaymentStatusPending},
		{99, model.PaymentStatusPending},
	}

	for _, tt := range tests {
		if got := mapStatusCode(tt.code); got != tt.want {
			t.Errorf("mapStatusCode(%d) = %q, want %q", tt.code, got, tt.want)
		}
	}
}
