package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// TokenClaims は検証済みアクセストークンから取り出したユーザー情報を表す。
type TokenClaims struct {
	ProviderUserID string
	Email          string
}

// TokenVerifier はアクセストークンの検証インターフェース。
// テスト時にモックに差し替え可能。
type TokenVerifier interface {
	// Verify はアクセストークンを検証し、ユーザー情報を返す。
	// 署名不正・期限切れ・クレーム不足の場合はエラーを返す。
	Verify(accessToken string) (*TokenClaims, error)
}

// accessTokenClaims は認証プロバイダーが発行するJWTのクレーム。
// subはプロバイダー側のユーザーID、emailはログインメールアドレス。
type accessTokenClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// HSTokenVerifier はHS256共有シークレットによるJWT検証を行う。
// 認証プロバイダーのJWTシークレット（AUTH_JWT_SECRET）で署名検証する。
type HSTokenVerifier struct {
	secret []byte
}

// NewHSTokenVerifier はHSTokenVerifierを生成する。
func NewHSTokenVerifier(secret string) *HSTokenVerifier {
	return &HSTokenVerifier{secret: []byte(secret)}
}

// Verify はアクセストークンを検証し、ユーザー情報を返す。
// アルゴリズムはHS256のみ許可する（alg none / RS256すり替え対策）。
func (v *HSTokenVerifier) Verify(accessToken string) (*TokenClaims, error) {
	claims := &accessTokenClaims{}

	token, err := jwt.ParseWithClaims(accessToken, claims,
		func(t *jwt.Token) (interface{}, error) {
			return v.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("token verification failed: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("token is not valid")
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("token has no sub claim")
	}
	if claims.Email == "" {
		return nil, fmt.Errorf("token has no email claim")
	}

	return &TokenClaims{
		ProviderUserID: claims.Subject,
		Email:          claims.Email,
	}, nil
}

// compile-time interface check
var _ TokenVerifier = (*HSTokenVerifier)(nil)
