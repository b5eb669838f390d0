// Package model はドメインモデルを定義する。
package model

import "time"

// Property は賃貸物件を表す。
type Property struct {
	ID        string
	OwnerID   string
	Name      string
	Address   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Unit は物件内の貸出区画（部屋・戸）を表す。
// MonthlyRentは最小通貨単位の整数で保持する。
type Unit struct {
	ID          string
	PropertyID  string
	Label       string
	MonthlyRent int64
	Currency    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TenancyStatus は賃貸借契約の状態を表す。
type TenancyStatus string

const (
	// TenancyStatusActive は契約中の状態。
	TenancyStatusActive TenancyStatus = "active"
	// TenancyStatusEnded は終了した契約の状態。
	TenancyStatusEnded TenancyStatus = "ended"
)

// Tenancy は区画と入居者を結ぶ賃貸借契約を表す。
// 入居者がまだユーザー登録していない場合もあるため、連絡先はメールアドレスで保持する。
type Tenancy struct {
	ID          string
	UnitID      string
	TenantName  string
	TenantEmail string
	MonthlyRent int64
	Currency    string
	Status      TenancyStatus
	StartDate   time.Time
	EndDate     *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
