// Package auth はアクセストークン検証とセッションブリッジを提供する。
//
// フロントエンドは認証プロバイダーから直接アクセストークンを取得し、
// このサービスに渡す。サービスはトークンを検証してローカルユーザーを
// 冪等に作成し、HTTP Only CookieベースのDBセッションに引き換える。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/rentman/internal/model"
	"github.com/hitoshi/rentman/internal/repository"
)

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
}

// Service はセッションブリッジに関するビジネスロジックを提供する。
type Service struct {
	verifier    TokenVerifier
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	config      ServiceConfig
}

// NewService はServiceを生成する。
func NewService(
	verifier TokenVerifier,
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	config ServiceConfig,
) *Service {
	return &Service{
		verifier:    verifier,
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		config:      config,
	}
}

// BridgeSession はアクセストークンを検証し、セッションを発行する。
// プロバイダーのユーザーIDをキーにローカルユーザーを冪等にUPSERTするため、
// 初回ログインではユーザーが自動作成され、以降はemailのみ追従更新される。
func (s *Service) BridgeSession(ctx context.Context, accessToken string) (*model.Session, *model.User, error) {
	// 1. アクセストークンの検証
	claims, err := s.verifier.Verify(accessToken)
	if err != nil {
		slog.Warn("access token verification failed", slog.String("error", err.Error()))
		return nil, nil, model.NewInvalidTokenError(err.Error())
	}

	// 2. ローカルユーザーのUPSERT
	now := time.Now()
	user, err := s.userRepo.Upsert(ctx, &model.User{
		ID:             uuid.New().String(),
		ProviderUserID: claims.ProviderUserID,
		Email:          claims.Email,
		Role:           model.RoleTenant,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to upsert user: %w", err)
	}

	slog.Info("session bridged",
		slog.String("user_id", user.ID),
		slog.String("provider_user_id", claims.ProviderUserID),
	)

	// 3. セッションを発行
	session, err := s.createSession(ctx, user.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create session: %w", err)
	}

	return session, user, nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("user logged out", slog.String("session_id", sessionID))
	return nil
}

// LogoutAll はセッションの所有ユーザーの全セッションを破棄する。
// 全デバイスからのログアウトで使用する。
func (s *Service) LogoutAll(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return fmt.Errorf("session not found or expired")
	}

	if err := s.sessionRepo.DeleteByUserID(ctx, session.UserID); err != nil {
		return fmt.Errorf("failed to delete user sessions: %w", err)
	}

	slog.Info("user logged out everywhere", slog.String("user_id", session.UserID))
	return nil
}

// GetCurrentUser はセッションから現在のユーザーを取得する。
func (s *Service) GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session ID is required")
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, fmt.Errorf("session not found or expired")
	}

	user, err := s.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("user not found")
	}

	return user, nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, userID string) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	session := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: time.Now().Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: time.Now(),
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
