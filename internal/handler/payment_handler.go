package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/rentman/internal/model"
)

// PaymentServiceInterface は決済ハンドラーが必要とするサービスインターフェース。
type PaymentServiceInterface interface {
	InitiatePayment(ctx context.Context, payerUserID, invoiceID string) (*model.Payment, string, error)
	HandleNotification(ctx context.Context, orderTrackingID string) (*model.Payment, error)
	GetPayment(ctx context.Context, paymentID string) (*model.Payment, error)
}

// PaymentMetricsRecorder はIPN通知の処理結果メトリクスのインターフェース。
type PaymentMetricsRecorder interface {
	RecordPaymentNotification(status string)
}

// PaymentHandler は決済のHTTPハンドラー。
type PaymentHandler struct {
	service   PaymentServiceInterface
	collector PaymentMetricsRecorder
}

// NewPaymentHandler はPaymentHandlerを生成する。collectorはnil可。
func NewPaymentHandler(service PaymentServiceInterface, collector PaymentMetricsRecorder) *PaymentHandler {
	return &PaymentHandler{
		service:   service,
		collector: collector,
	}
}

// initiatePaymentRequest は決済開始リクエストのボディ。
type initiatePaymentRequest struct {
	InvoiceID string `json:"invoice_id"`
}

// initiatePaymentResponse は決済開始のレスポンス。
// RedirectURLはゲートウェイがホストする決済ページのURL。
type initiatePaymentResponse struct {
	PaymentID         string `json:"payment_id"`
	MerchantReference string `json:"merchant_reference"`
	RedirectURL       string `json:"redirect_url"`
}

// paymentResponse は決済情報のAPIレスポンス。
type paymentResponse struct {
	ID               string    `json:"id"`
	InvoiceID        string    `json:"invoice_id"`
	Amount           int64     `json:"amount"` // 最小通貨単位
	Currency         string    `json:"currency"`
	Status           string    `json:"status"`
	Method           string    `json:"method,omitempty"`
	ConfirmationCode string    `json:"confirmation_code,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// ipnAckResponse はゲートウェイに返すIPN受領応答。
// フィールド名はPesapalのIPN仕様に従う。
type ipnAckResponse struct {
	OrderNotificationType string `json:"orderNotificationType"`
	OrderTrackingID       string `json:"orderTrackingId"`
	OrderMerchantRef      string `json:"orderMerchantReference"`
	Status                int    `json:"status"`
}

// InitiatePayment は請求書に対する決済を開始する。
// POST /api/payments
func (h *PaymentHandler) InitiatePayment(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req initiatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w)
		return
	}

	if req.InvoiceID == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "invoice_idが指定されていません。",
			Category: "validation",
			Action:   "invoice_idを指定してください。",
		})
		return
	}

	payment, redirectURL, err := h.service.InitiatePayment(r.Context(), userID, req.InvoiceID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(initiatePaymentResponse{
		PaymentID:         payment.ID,
		MerchantReference: payment.MerchantReference,
		RedirectURL:       redirectURL,
	})
}

// HandleIPN はゲートウェイからのIPN通知を受け取る。
// GET /api/payments/ipn および POST /api/payments/ipn
//
// 通知パラメータ（OrderTrackingId等）はクエリ文字列で渡される。
// 通知内容は信用せず、サービス層がゲートウェイに取引ステータスを再照会する。
// ゲートウェイは応答のstatusフィールドで受領を判定し、500の場合は再送する。
func (h *PaymentHandler) HandleIPN(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	trackingID := query.Get("OrderTrackingId")
	merchantRef := query.Get("OrderMerchantReference")
	notificationType := query.Get("OrderNotificationType")
	if notificationType == "" {
		notificationType = "IPNCHANGE"
	}

	ack := ipnAckResponse{
		OrderNotificationType: notificationType,
		OrderTrackingID:       trackingID,
		OrderMerchantRef:      merchantRef,
		Status:                http.StatusOK,
	}

	payment, err := h.service.HandleNotification(r.Context(), trackingID)
	if err != nil {
		slog.Error("IPN notification processing failed",
			slog.String("order_tracking_id", trackingID),
			slog.String("error", err.Error()),
		)
		if h.collector != nil {
			h.collector.RecordPaymentNotification("error")
		}
		ack.Status = http.StatusInternalServerError
	} else if h.collector != nil {
		h.collector.RecordPaymentNotification(string(payment.Status))
	}

	// IPN応答は常にHTTP 200で返し、処理結果はボディのstatusで伝える
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ack)
}

// GetPayment は決済の現在の状態を返す。
// GET /api/payments/{id}
//
// pending状態の決済はゲートウェイに最新ステータスを照会してから返す。
func (h *PaymentHandler) GetPayment(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUserID(w, r); !ok {
		return
	}

	payment, err := h.service.GetPayment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(paymentResponse{
		ID:               payment.ID,
		InvoiceID:        payment.InvoiceID,
		Amount:           payment.Amount,
		Currency:         payment.Currency,
		Status:           string(payment.Status),
		Method:           payment.Method,
		ConfirmationCode: payment.ConfirmationCode,
		CreatedAt:        payment.CreatedAt,
	})
}
