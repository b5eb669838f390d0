// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// ProviderUserIDは外部認証プロバイダーが発行したユーザーID（JWTのsubクレーム）。
type User struct {
	ID             string
	ProviderUserID string
	Email          string
	Name           string
	Role           Role
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Role はユーザーの役割を表す。
type Role string

const (
	// RoleLandlord は物件を所有・管理するユーザー。
	RoleLandlord Role = "landlord"
	// RoleTenant は入居者ユーザー。
	RoleTenant Role = "tenant"
)

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
