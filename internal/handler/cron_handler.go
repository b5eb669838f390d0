package handler

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/rentman/internal/model"
	"github.com/hitoshi/rentman/internal/worker/mailer"
)

// EmailDrainer はcronハンドラーが必要とするドレイン処理のインターフェース。
type EmailDrainer interface {
	DrainOnce(ctx context.Context) (mailer.DrainResult, error)
}

// CronHandler は外部スケジューラから叩かれるcronエンドポイントのハンドラー。
// セッション認証の代わりにBearerトークン（共有シークレット）で保護する。
type CronHandler struct {
	drainer EmailDrainer
	secret  string
}

// NewCronHandler はCronHandlerを生成する。
func NewCronHandler(drainer EmailDrainer, secret string) *CronHandler {
	return &CronHandler{
		drainer: drainer,
		secret:  secret,
	}
}

// processEmailsResponse はメール処理エンドポイントのレスポンス。
type processEmailsResponse struct {
	Processed int `json:"processed"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
}

// ProcessEmails はメールキューを1回ドレインする。
// GET /api/cron/process-emails
//
// Authorization: Bearer <CRON_SECRET> が一致しない場合は401を返す。
// ワーカーモードを併用している場合でも、クレームは排他的なため多重送信は起きない。
func (h *CronHandler) ProcessEmails(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(r) {
		writeAPIErrorResponse(w, http.StatusUnauthorized, &model.APIError{
			Code:     "UNAUTHORIZED",
			Message:  "cronシークレットが一致しません。",
			Category: "auth",
			Action:   "Authorizationヘッダーを確認してください。",
		})
		return
	}

	result, err := h.drainer.DrainOnce(r.Context())
	if err != nil {
		slog.Error("cron email drain failed", slog.String("error", err.Error()))
		writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
			Code:     "INTERNAL_ERROR",
			Message:  "メールキューの処理に失敗しました。",
			Category: "system",
			Action:   "しばらく待ってから再度お試しください。",
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(processEmailsResponse{
		Processed: result.Processed,
		Sent:      result.Sent,
		Failed:    result.Failed,
	})
}

// authorize はBearerトークンを定数時間比較で検証する。
func (h *CronHandler) authorize(r *http.Request) bool {
	if h.secret == "" {
		return false
	}

	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok || token == "" {
		return false
	}

	return subtle.ConstantTimeCompare([]byte(token), []byte(h.secret)) == 1
}
