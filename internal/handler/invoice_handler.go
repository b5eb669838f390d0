package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/rentman/internal/model"
	"github.com/hitoshi/rentman/internal/repository"
)

// InvoiceServiceInterface は請求書ハンドラーが必要とするサービスインターフェース。
type InvoiceServiceInterface interface {
	GetInvoice(ctx context.Context, invoiceID string) (*model.Invoice, error)
	ListInvoicesByOwner(ctx context.Context, ownerID string) ([]repository.InvoiceWithTenancyInfo, error)
	ListInvoicesByTenancy(ctx context.Context, tenancyID string) ([]*model.Invoice, error)
}

// InvoiceHandler は請求書のHTTPハンドラー。
type InvoiceHandler struct {
	service InvoiceServiceInterface
}

// NewInvoiceHandler はInvoiceHandlerを生成する。
func NewInvoiceHandler(service InvoiceServiceInterface) *InvoiceHandler {
	return &InvoiceHandler{service: service}
}

// invoiceResponse は請求書情報のAPIレスポンス。
type invoiceResponse struct {
	ID           string     `json:"id"`
	TenancyID    string     `json:"tenancy_id"`
	Period       string     `json:"period"`
	Amount       int64      `json:"amount"` // 最小通貨単位
	Currency     string     `json:"currency"`
	Status       string     `json:"status"`
	DueDate      time.Time  `json:"due_date"`
	PaidAt       *time.Time `json:"paid_at,omitempty"`
	TenantName   string     `json:"tenant_name,omitempty"`
	UnitLabel    string     `json:"unit_label,omitempty"`
	PropertyName string     `json:"property_name,omitempty"`
}

// ListInvoices は所有者の物件に属する請求書一覧を返す。
// GET /api/invoices
func (h *InvoiceHandler) ListInvoices(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	invoices, err := h.service.ListInvoicesByOwner(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	results := make([]invoiceResponse, len(invoices))
	for i, inv := range invoices {
		resp := toInvoiceResponse(&inv.Invoice)
		resp.TenantName = inv.TenantName
		resp.UnitLabel = inv.UnitLabel
		resp.PropertyName = inv.PropertyName
		results[i] = resp
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(results)
}

// GetInvoice は請求書詳細を返す。
// GET /api/invoices/{id}
func (h *InvoiceHandler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUserID(w, r); !ok {
		return
	}

	invoice, err := h.service.GetInvoice(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toInvoiceResponse(invoice))
}

// ListTenancyInvoices は契約の請求書一覧を返す。
// GET /api/tenancies/{id}/invoices
func (h *InvoiceHandler) ListTenancyInvoices(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUserID(w, r); !ok {
		return
	}

	invoices, err := h.service.ListInvoicesByTenancy(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	results := make([]invoiceResponse, len(invoices))
	for i, inv := range invoices {
		results[i] = toInvoiceResponse(inv)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(results)
}

// toInvoiceResponse はドメインのInvoiceをレスポンス型に変換する。
func toInvoiceResponse(inv *model.Invoice) invoiceResponse {
	return invoiceResponse{
		ID:        inv.ID,
		TenancyID: inv.TenancyID,
		Period:    inv.Period,
		Amount:    inv.Amount,
		Currency:  inv.Currency,
		Status:    string(inv.Status),
		DueDate:   inv.DueDate,
		PaidAt:    inv.PaidAt,
	}
}
