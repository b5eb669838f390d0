package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/rentman/internal/middleware"
	"github.com/hitoshi/rentman/internal/model"
)

// PropertyServiceInterface は物件ハンドラーが必要とするサービスインターフェース。
type PropertyServiceInterface interface {
	CreateProperty(ctx context.Context, ownerID, name, address string) (*model.Property, error)
	GetProperty(ctx context.Context, ownerID, propertyID string) (*model.Property, error)
	ListProperties(ctx context.Context, ownerID string) ([]*model.Property, error)
	UpdateProperty(ctx context.Context, ownerID, propertyID, name, address string) (*model.Property, error)
	DeleteProperty(ctx context.Context, ownerID, propertyID string) error
	AddUnit(ctx context.Context, ownerID, propertyID, label string, monthlyRent int64, currency string) (*model.Unit, error)
	ListUnits(ctx context.Context, ownerID, propertyID string) ([]*model.Unit, error)
	DeleteUnit(ctx context.Context, ownerID, unitID string) error
}

// PropertyHandler は物件・区画管理のHTTPハンドラー。
type PropertyHandler struct {
	service PropertyServiceInterface
}

// NewPropertyHandler はPropertyHandlerを生成する。
func NewPropertyHandler(service PropertyServiceInterface) *PropertyHandler {
	return &PropertyHandler{service: service}
}

// propertyRequest は物件作成・更新リクエストのボディ。
type propertyRequest struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// propertyResponse は物件情報のAPIレスポンス。
type propertyResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	CreatedAt time.Time `json:"created_at"`
}

// unitRequest は区画追加リクエストのボディ。
type unitRequest struct {
	Label       string `json:"label"`
	MonthlyRent int64  `json:"monthly_rent"` // 最小通貨単位
	Currency    string `json:"currency"`
}

// unitResponse は区画情報のAPIレスポンス。
type unitResponse struct {
	ID          string `json:"id"`
	PropertyID  string `json:"property_id"`
	Label       string `json:"label"`
	MonthlyRent int64  `json:"monthly_rent"`
	Currency    string `json:"currency"`
}

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// CreateProperty は物件を作成する。
// POST /api/properties
func (h *PropertyHandler) CreateProperty(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req propertyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w)
		return
	}

	if req.Name == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "物件名が指定されていません。",
			Category: "validation",
			Action:   "nameを指定してください。",
		})
		return
	}

	property, err := h.service.CreateProperty(r.Context(), userID, req.Name, req.Address)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toPropertyResponse(property))
}

// ListProperties は所有者の物件一覧を返す。
// GET /api/properties
func (h *PropertyHandler) ListProperties(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	properties, err := h.service.ListProperties(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	results := make([]propertyResponse, len(properties))
	for i, p := range properties {
		results[i] = toPropertyResponse(p)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(results)
}

// GetProperty は物件詳細を返す。
// GET /api/properties/{id}
func (h *PropertyHandler) GetProperty(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	property, err := h.service.GetProperty(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toPropertyResponse(property))
}

// UpdateProperty は物件情報を更新する。
// PATCH /api/properties/{id}
func (h *PropertyHandler) UpdateProperty(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req propertyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w)
		return
	}

	property, err := h.service.UpdateProperty(r.Context(), userID, chi.URLParam(r, "id"), req.Name, req.Address)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toPropertyResponse(property))
}

// DeleteProperty は物件を削除する。
// DELETE /api/properties/{id}
func (h *PropertyHandler) DeleteProperty(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteProperty(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// AddUnit は物件に区画を追加する。
// POST /api/properties/{id}/units
func (h *PropertyHandler) AddUnit(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req unitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w)
		return
	}

	unit, err := h.service.AddUnit(r.Context(), userID, chi.URLParam(r, "id"), req.Label, req.MonthlyRent, req.Currency)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toUnitResponse(unit))
}

// ListUnits は物件内の区画一覧を返す。
// GET /api/properties/{id}/units
func (h *PropertyHandler) ListUnits(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	units, err := h.service.ListUnits(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	results := make([]unitResponse, len(units))
	for i, u := range units {
		results[i] = toUnitResponse(u)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(results)
}

// DeleteUnit は区画を削除する。
// DELETE /api/units/{id}
func (h *PropertyHandler) DeleteUnit(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteUnit(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// toPropertyResponse はドメインのPropertyをレスポンス型に変換する。
func toPropertyResponse(p *model.Property) propertyResponse {
	return propertyResponse{
		ID:        p.ID,
		Name:      p.Name,
		Address:   p.Address,
		CreatedAt: p.CreatedAt,
	}
}

// toUnitResponse はドメインのUnitをレスポンス型に変換する。
func toUnitResponse(u *model.Unit) unitResponse {
	return unitResponse{
		ID:          u.ID,
		PropertyID:  u.PropertyID,
		Label:       u.Label,
		MonthlyRent: u.MonthlyRent,
		Currency:    u.Currency,
	}
}

// requireUserID はコンテキストから認証済みユーザーIDを取得する。
// 取得できない場合は401を書き込み、falseを返す。
func requireUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, &model.APIError{
			Code:     "UNAUTHORIZED",
			Message:  "認証が必要です。",
			Category: "auth",
			Action:   "ログインしてください。",
		})
		return "", false
	}
	return userID, true
}

// writeInvalidRequest はJSON解析失敗時の400レスポンスを書き込む。
func writeInvalidRequest(w http.ResponseWriter) {
	writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
		Code:     "INVALID_REQUEST",
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	})
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// handleServiceError はサービス層のエラーをHTTPレスポンスに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		statusCode := mapAPIErrorToHTTPStatus(apiErr)
		writeAPIErrorResponse(w, statusCode, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// mapAPIErrorToHTTPStatus はAPIエラーコードをHTTPステータスコードに変換する。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeMissingToken:
		return http.StatusBadRequest
	case model.ErrCodeInvalidToken, "UNAUTHORIZED":
		return http.StatusUnauthorized
	case model.ErrCodeNotOwner:
		return http.StatusForbidden
	case model.ErrCodePropertyNotFound, model.ErrCodeUnitNotFound,
		model.ErrCodeTenancyNotFound, model.ErrCodeInvoiceNotFound,
		model.ErrCodePaymentNotFound:
		return http.StatusNotFound
	case model.ErrCodeUnitOccupied, model.ErrCodeTenancyEnded, model.ErrCodeInvoiceAlreadyPaid:
		return http.StatusConflict
	case model.ErrCodeInvalidCallbackURL:
		return http.StatusBadRequest
	case model.ErrCodeGatewayUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
