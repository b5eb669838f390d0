package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hitoshi/rentman/internal/repository"
)

// DashboardServiceInterface はダッシュボードハンドラーが必要とするサービスインターフェース。
type DashboardServiceInterface interface {
	GetStats(ctx context.Context, ownerID string) (*repository.OwnerStats, error)
}

// DashboardHandler はダッシュボードのHTTPハンドラー。
type DashboardHandler struct {
	service DashboardServiceInterface
}

// NewDashboardHandler はDashboardHandlerを生成する。
func NewDashboardHandler(service DashboardServiceInterface) *DashboardHandler {
	return &DashboardHandler{service: service}
}

// dashboardStatsResponse はダッシュボード集計のAPIレスポンス。金額は最小通貨単位。
type dashboardStatsResponse struct {
	Properties          int64 `json:"properties"`
	Units               int64 `json:"units"`
	ActiveTenancies     int64 `json:"active_tenancies"`
	OutstandingInvoices int64 `json:"outstanding_invoices"`
	OutstandingAmount   int64 `json:"outstanding_amount"`
	OverdueInvoices     int64 `json:"overdue_invoices"`
	OverdueAmount       int64 `json:"overdue_amount"`
	CollectedInvoices   int64 `json:"collected_invoices"`
	CollectedAmount     int64 `json:"collected_amount"`
}

// GetStats は所有者のポートフォリオ集計値を返す。
// GET /api/dashboard/stats
func (h *DashboardHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	stats, err := h.service.GetStats(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(dashboardStatsResponse{
		Properties:          stats.Properties,
		Units:               stats.Units,
		ActiveTenancies:     stats.ActiveTenancies,
		OutstandingInvoices: stats.OutstandingInvoices,
		OutstandingAmount:   stats.OutstandingAmount,
		OverdueInvoices:     stats.OverdueInvoices,
		OverdueAmount:       stats.OverdueAmount,
		CollectedInvoices:   stats.CollectedInvoices,
		CollectedAmount:     stats.CollectedAmount,
	})
}
