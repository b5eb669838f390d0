package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hitoshi/rentman/internal/model"
)

// IPNRegistrar はセットアップハンドラーが必要とするサービスインターフェース。
// payment.Serviceの部分集合として定義する。
type IPNRegistrar interface {
	RegisterIPN(ctx context.Context) (*model.IPNRegistration, error)
}

// SetupHandler は初期セットアップ用エンドポイントのハンドラー。
type SetupHandler struct {
	registrar IPNRegistrar
}

// NewSetupHandler はSetupHandlerを生成する。
func NewSetupHandler(registrar IPNRegistrar) *SetupHandler {
	return &SetupHandler{registrar: registrar}
}

// ipnRegistrationResponse はIPN登録のレスポンス。
type ipnRegistrationResponse struct {
	IPNID            string `json:"ipn_id"`
	URL              string `json:"url"`
	NotificationType string `json:"notification_type"`
}

// RegisterPesapalIPN はIPNコールバックURLを決済ゲートウェイに登録する。
// GET /api/setup/register-pesapal-ipn
//
// ゲートウェイ認証情報が未設定の場合は503を返す。
// デプロイ後に1回実行すればよいが、再実行しても同じipn_idが返るため安全。
func (h *SetupHandler) RegisterPesapalIPN(w http.ResponseWriter, r *http.Request) {
	reg, err := h.registrar.RegisterIPN(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ipnRegistrationResponse{
		IPNID:            reg.IPNID,
		URL:              reg.URL,
		NotificationType: reg.NotificationType,
	})
}
