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

// TenancyServiceInterface は契約ハンドラーが必要とするサービスインターフェース。
type TenancyServiceInterface interface {
	CreateTenancy(ctx context.Context, ownerID, unitID, tenantName, tenantEmail string, monthlyRent int64, startDate time.Time) (*model.Tenancy, error)
	EndTenancy(ctx context.Context, ownerID, tenancyID string, endDate time.Time) error
	ListTenancies(ctx context.Context, ownerID string) ([]repository.TenancyWithUnitInfo, error)
}

// TenancyHandler は賃貸借契約管理のHTTPハンドラー。
type TenancyHandler struct {
	service TenancyServiceInterface
}

// NewTenancyHandler はTenancyHandlerを生成する。
func NewTenancyHandler(service TenancyServiceInterface) *TenancyHandler {
	return &TenancyHandler{service: service}
}

// createTenancyRequest は契約作成リクエストのボディ。
type createTenancyRequest struct {
	UnitID      string `json:"unit_id"`
	TenantName  string `json:"tenant_name"`
	TenantEmail string `json:"tenant_email"`
	MonthlyRent int64  `json:"monthly_rent"` // 最小通貨単位。0の場合は区画の家賃を使用
	StartDate   string `json:"start_date"`   // YYYY-MM-DD。空の場合は当日
}

// endTenancyRequest は契約終了リクエストのボディ。
type endTenancyRequest struct {
	EndDate string `json:"end_date"` // YYYY-MM-DD。空の場合は当日
}

// tenancyResponse は契約情報のAPIレスポンス。
type tenancyResponse struct {
	ID           string     `json:"id"`
	UnitID       string     `json:"unit_id"`
	UnitLabel    string     `json:"unit_label,omitempty"`
	PropertyName string     `json:"property_name,omitempty"`
	TenantName   string     `json:"tenant_name"`
	TenantEmail  string     `json:"tenant_email"`
	MonthlyRent  int64      `json:"monthly_rent"`
	Currency     string     `json:"currency"`
	Status       string     `json:"status"`
	StartDate    time.Time  `json:"start_date"`
	EndDate      *time.Time `json:"end_date,omitempty"`
}

// CreateTenancy は区画に対する賃貸借契約を作成する。
// POST /api/tenancies
func (h *TenancyHandler) CreateTenancy(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req createTenancyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w)
		return
	}

	if req.UnitID == "" || req.TenantName == "" || req.TenantEmail == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "unit_id、tenant_name、tenant_emailは必須です。",
			Category: "validation",
			Action:   "必須フィールドを指定してください。",
		})
		return
	}

	startDate := time.Now()
	if req.StartDate != "" {
		parsed, err := time.Parse("2006-01-02", req.StartDate)
		if err != nil {
			writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
				Code:     "INVALID_REQUEST",
				Message:  "start_dateの形式が不正です。",
				Category: "validation",
				Action:   "YYYY-MM-DD形式で指定してください。",
			})
			return
		}
		startDate = parsed
	}

	tenancy, err := h.service.CreateTenancy(r.Context(), userID, req.UnitID, req.TenantName, req.TenantEmail, req.MonthlyRent, startDate)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toTenancyResponse(tenancy))
}

// ListTenancies は所有者の契約一覧を区画・物件情報付きで返す。
// GET /api/tenancies
func (h *TenancyHandler) ListTenancies(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	tenancies, err := h.service.ListTenancies(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	results := make([]tenancyResponse, len(tenancies))
	for i, t := range tenancies {
		resp := toTenancyResponse(&t.Tenancy)
		resp.UnitLabel = t.UnitLabel
		resp.PropertyName = t.PropertyName
		results[i] = resp
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(results)
}

// EndTenancy は契約を終了する。
// POST /api/tenancies/{id}/end
func (h *TenancyHandler) EndTenancy(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req endTenancyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w)
		return
	}

	endDate := time.Now()
	if req.EndDate != "" {
		parsed, err := time.Parse("2006-01-02", req.EndDate)
		if err != nil {
			writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
				Code:     "INVALID_REQUEST",
				Message:  "end_dateの形式が不正です。",
				Category: "validation",
				Action:   "YYYY-MM-DD形式で指定してください。",
			})
			return
		}
		endDate = parsed
	}

	if err := h.service.EndTenancy(r.Context(), userID, chi.URLParam(r, "id"), endDate); err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"success": true})
}

// toTenancyResponse はドメインのTenancyをレスポンス型に変換する。
func toTenancyResponse(t *model.Tenancy) tenancyResponse {
	return tenancyResponse{
		ID:          t.ID,
		UnitID:      t.UnitID,
		TenantName:  t.TenantName,
		TenantEmail: t.TenantEmail,
		MonthlyRent: t.MonthlyRent,
		Currency:    t.Currency,
		Status:      string(t.Status),
		StartDate:   t.StartDate,
		EndDate:     t.EndDate,
	}
}
