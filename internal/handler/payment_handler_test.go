package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/rentman/internal/middleware"
	"github.com/hitoshi/rentman/internal/model"
)

type mockPaymentService struct {
	initiatePaymentFn    func(ctx context.Context, payerUserID, invoiceID string) (*model.Payment, string, error)
	handleNotificationFn func(ctx context.Context, orderTrackingID string) (*model.Payment, error)
	getPaymentFn         func(ctx context.Context, paymentID string) (*model.Payment, error)
}

func (m *mockPaymentService) InitiatePayment(ctx context.Context, payerUserID, invoiceID string) (*model.Payment, string, error) {
	return m.initiatePaymentFn(ctx, payerUserID, invoiceID)
}

func (m *mockPaymentService) HandleNotification(ctx context.Context, orderTrackingID string) (*model.Payment, error) {
	return m.handleNotificationFn(ctx, orderTrackingID)
}

func (m *mockPaymentService) GetPayment(ctx context.Context, paymentID string) (*model.Payment, error) {
	return m.getPaymentFn(ctx, paymentID)
}

type recordingPaymentCollector struct {
	statuses []string
}

func (c *recordingPaymentCollector) RecordPaymentNotification(status string) {
	c.statuses = append(c.statuses, status)
}

func authenticatedRequest(method, target string, body string) *http.Request {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	ctx := middleware.ContextWithUserID(req.Context(), "user-1")
	return req.WithContext(ctx)
}

func TestInitiatePayment_Success_Returns201(t *testing.T) {
	svc := &mockPaymentService{
		initiatePaymentFn: func(ctx context.Context, payerUserID, invoiceID string) (*model.Payment, string, error) {
			if payerUserID != "user-1" {
				t.Errorf("payerUserID = %q, want %q", payerUserID, "user-1")
			}
			if invoiceID != "inv-1" {
				t.Errorf("invoiceID = %q, want %q", invoiceID, "inv-1")
			}
			return &model.Payment{
				ID:                "pay-1",
				InvoiceID:         "inv-1",
				MerchantReference: "RENT-abc",
				Amount:            500000,
				Currency:          "KES",
				Status:            model.PaymentStatusPending,
			}, "https://pay.pesapal.com/iframe/xyz", nil
		},
	}
	h := NewPaymentHandler(svc, nil)

	req := authenticatedRequest(http.MethodPost, "/api/payments", `{"invoice_id":"inv-1"}`)
	w := httptest.NewRecorder()

	h.InitiatePayment(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusCreated)
	}

	var got initiatePaymentResponse
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if got.PaymentID != "pay-1" {
		t.Errorf("payment_id = %q, want %q", got.PaymentID, "pay-1")
	}
	if got.RedirectURL != "https://pay.pesapal.com/iframe/xyz" {
		t.Errorf("redirect_url = %q", got.RedirectURL)
	}
}

func TestInitiatePayment_MissingInvoiceID_Returns400(t *testing.T) {
	h := NewPaymentHandler(&mockPaymentService{}, nil)

	req := authenticatedRequest(http.MethodPost, "/api/payments", `{}`)
	w := httptest.NewRecorder()

	h.InitiatePayment(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestInitiatePayment_Unauthenticated_Returns401(t *testing.T) {
	h := NewPaymentHandler(&mockPaymentService{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/payments", strings.NewReader(`{"invoice_id":"inv-1"}`))
	w := httptest.NewRecorder()

	h.InitiatePayment(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestInitiatePayment_AlreadyPaid_Returns409(t *testing.T) {
	svc := &mockPaymentService{
		initiatePaymentFn: func(ctx context.Context, payerUserID, invoiceID string) (*model.Payment, string, error) {
			return nil, "", model.NewInvoiceAlreadyPaidError(invoiceID)
		},
	}
	h := NewPaymentHandler(svc, nil)

	req := authenticatedRequest(http.MethodPost, "/api/payments", `{"invoice_id":"inv-paid"}`)
	w := httptest.NewRecorder()

	h.InitiatePayment(w, req)

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", w.Code, http.StatusConflict)
	}
}

func TestHandleIPN_Success_AcksWith200Status(t *testing.T) {
	svc := &mockPaymentService{
		handleNotificationFn: func(ctx context.Context, orderTrackingID string) (*model.Payment, error) {
			if orderTrackingID != "track-1" {
				t.Errorf("orderTrackingID = %q, want %q", orderTrackingID, "track-1")
			}
			return &model.Payment{ID: "pay-1", Status: model.PaymentStatusCompleted}, nil
		},
	}
	collector := &recordingPaymentCollector{}
	h := NewPaymentHandler(svc, collector)

	req := httptest.NewRequest(http.MethodGet,
		"/api/payments/ipn?OrderTrackingId=track-1&OrderMerchantReference=RENT-abc&OrderNotificationType=IPNCHANGE", nil)
	w := httptest.NewRecorder()

	h.HandleIPN(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var ack ipnAckResponse
	if err := json.NewDecoder(w.Body).Decode(&ack); err != nil {
		t.Fatalf("failed to decode ack: %v", err)
	}
	if ack.Status != http.StatusOK {
		t.Errorf("ack status = %d, want %d", ack.Status, http.StatusOK)
	}
	if ack.OrderTrackingID != "track-1" {
		t.Errorf("orderTrackingId = %q, want %q", ack.OrderTrackingID, "track-1")
	}
	if ack.OrderMerchantRef != "RENT-abc" {
		t.Errorf("orderMerchantReference = %q, want %q", ack.OrderMerchantRef, "RENT-abc")
	}
	if len(collector.statuses) != 1 || collector.statuses[0] != string(model.PaymentStatusCompleted) {
		t.Errorf("recorded statuses = %v", collector.statuses)
	}
}

func TestHandleIPN_ProcessingError_AcksWithHTTP200AndBodyStatus500(t *testing.T) {
	svc := &mockPaymentService{
		handleNotificationFn: func(ctx context.Context, orderTrackingID string) (*model.Payment, error) {
			return nil, &model.APIError{Code: model.ErrCodePaymentNotFound, Message: "not found"}
		},
	}
	collector := &recordingPaymentCollector{}
	h := NewPaymentHandler(svc, collector)

	req := httptest.NewRequest(http.MethodGet, "/api/payments/ipn?OrderTrackingId=unknown", nil)
	w := httptest.NewRecorder()

	h.HandleIPN(w, req)

	// ゲートウェイの再送を促すため、HTTPステータスは常に200でボディのstatusに500を入れる
	if w.Code != http.StatusOK {
		t.Fatalf("HTTP status = %d, want %d", w.Code, http.StatusOK)
	}

	var ack ipnAckResponse
	if err := json.NewDecoder(w.Body).Decode(&ack); err != nil {
		t.Fatalf("failed to decode ack: %v", err)
	}
	if ack.Status != http.StatusInternalServerError {
		t.Errorf("ack status = %d, want %d", ack.Status, http.StatusInternalServerError)
	}
	if len(collector.statuses) != 1 || collector.statuses[0] != "error" {
		t.Errorf("recorded statuses = %v", collector.statuses)
	}
}

func TestHandleIPN_DefaultNotificationType(t *testing.T) {
	svc := &mockPaymentService{
		handleNotificationFn: func(ctx context.Context, orderTrackingID string) (*model.Payment, error) {
			return &model.Payment{ID: "pay-1", Status: model.PaymentStatusPending}, nil
		},
	}
	h := NewPaymentHandler(svc, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/payments/ipn?OrderTrackingId=track-1", nil)
	w := httptest.NewRecorder()

	h.HandleIPN(w, req)

	var ack ipnAckResponse
	if err := json.NewDecoder(w.Body).Decode(&ack); err != nil {
		t.Fatalf("failed to decode ack: %v", err)
	}
	if ack.OrderNotificationType != "IPNCHANGE" {
		t.Errorf("orderNotificationType = %q, want %q", ack.OrderNotificationType, "IPNCHANGE")
	}
}
