// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hitoshi/rentman/internal/model"
)

const (
	sessionCookieName = "session_id"
	refreshCookieName = "refresh_token"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	BridgeSession(ctx context.Context, accessToken string) (*model.Session, *model.User, error)
	Logout(ctx context.Context, sessionID string) error
	LogoutAll(ctx context.Context, sessionID string) error
	GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AuthHandler はセッションブリッジ関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service: service,
		config:  config,
	}
}

// setSessionRequest はセッションブリッジリクエストのボディ。
type setSessionRequest struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// setSessionResponse はセッションブリッジ成功時のレスポンス。
type setSessionResponse struct {
	Success bool         `json:"success"`
	User    userResponse `json:"user"`
}

// userResponse はユーザー情報のAPIレスポンス。
type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// SetSession はアクセストークンを検証し、HTTP Only Cookieのセッションを発行する。
// POST /api/auth/set-session
//
// アクセストークンが欠けている場合は400、検証に失敗した場合は401を返す。
// refresh_tokenが渡された場合はそのままHTTP Only Cookieとして保持する
// （中身は解釈せず、フロントエンドのトークン更新フローに引き渡すだけ）。
func (h *AuthHandler) SetSession(w http.ResponseWriter, r *http.Request) {
	var req setSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return
	}

	if req.AccessToken == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     model.ErrCodeMissingToken,
			Message:  "アクセストークンが指定されていません。",
			Category: "auth",
			Action:   "access_tokenを指定してください。",
		})
		return
	}

	session, user, err := h.service.BridgeSession(r.Context(), req.AccessToken)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	// セッションCookieを設定（HTTP Only）
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    session.ID,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   h.config.SessionMaxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	// リフレッシュトークンはそのまま保持（任意）
	if req.RefreshToken != "" {
		http.SetCookie(w, &http.Cookie{
			Name:     refreshCookieName,
			Value:    req.RefreshToken,
			Path:     "/",
			Domain:   h.config.CookieDomain,
			MaxAge:   h.config.SessionMaxAge,
			HttpOnly: true,
			Secure:   h.config.CookieSecure,
			SameSite: http.SameSiteLaxMode,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(setSessionResponse{
		Success: true,
		User: userResponse{
			ID:    user.ID,
			Email: user.Email,
		},
	})
}

// logoutRequest はログアウトリクエストのボディ（任意）。
// everywhereが真の場合、同一ユーザーの全セッションを破棄する。
type logoutRequest struct {
	Everywhere bool `json:"everywhere"`
}

// Logout はセッションを破棄し、Cookieをクリアする。
// POST /api/auth/logout
//
// ボディで `{"everywhere": true}` が指定された場合は全デバイスのセッションを
// 破棄する。ボディなし・解析不能の場合は現在のセッションのみ破棄する。
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req logoutRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	cookie, err := r.Cookie(sessionCookieName)
	if err == nil && cookie.Value != "" {
		logout := h.service.Logout
		if req.Everywhere {
			logout = h.service.LogoutAll
		}
		if logoutErr := logout(r.Context(), cookie.Value); logoutErr != nil {
			slog.Error("failed to logout", slog.String("error", logoutErr.Error()))
			// ログアウト失敗してもCookieはクリアする
		}
	}

	clearCookie(w, h.config, sessionCookieName)
	clearCookie(w, h.config, refreshCookieName)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"success": true})
}

// Me は現在のログインユーザー情報を返す。
// GET /api/auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		writeAPIErrorResponse(w, http.StatusUnauthorized, &model.APIError{
			Code:     "UNAUTHORIZED",
			Message:  "認証されていません。",
			Category: "auth",
			Action:   "ログインしてください。",
		})
		return
	}

	user, err := h.service.GetCurrentUser(r.Context(), cookie.Value)
	if err != nil {
		slog.Warn("failed to get current user", slog.String("error", err.Error()))
		writeAPIErrorResponse(w, http.StatusUnauthorized, &model.APIError{
			Code:     "UNAUTHORIZED",
			Message:  "セッションが無効です。",
			Category: "auth",
			Action:   "再度ログインしてください。",
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(userResponse{
		ID:    user.ID,
		Email: user.Email,
	})
}

// clearCookie は指定Cookieを失効させる。
func clearCookie(w http.ResponseWriter, config AuthHandlerConfig, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
