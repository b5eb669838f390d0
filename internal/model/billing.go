// Package model はドメインモデルを定義する。
package model

import "time"

// InvoiceStatus は請求書の状態を表す。
type InvoiceStatus string

const (
	// InvoiceStatusIssued は発行済み・未払いの状態。
	InvoiceStatusIssued InvoiceStatus = "issued"
	// InvoiceStatusPaid は支払い完了の状態。
	InvoiceStatusPaid InvoiceStatus = "paid"
	// InvoiceStatusOverdue は支払い期限超過の状態。
	InvoiceStatusOverdue InvoiceStatus = "overdue"
)

// Invoice は月次の家賃請求書を表す。
// Periodは"YYYY-MM"形式。同一契約・同一期間の請求書は一意。
type Invoice struct {
	ID        string
	TenancyID string
	Period    string
	Amount    int64
	Currency  string
	Status    InvoiceStatus
	DueDate   time.Time
	PaidAt    *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PaymentStatus は決済の状態を表す。
type PaymentStatus string

const (
	// PaymentStatusPending はゲートウェイでの決済完了待ちの状態。
	PaymentStatusPending PaymentStatus = "pending"
	// PaymentStatusCompleted は決済完了の状態。
	PaymentStatusCompleted PaymentStatus = "completed"
	// PaymentStatusFailed は決済失敗の状態。
	PaymentStatusFailed PaymentStatus = "failed"
	// PaymentStatusReversed は決済取り消しの状態。
	PaymentStatusReversed PaymentStatus = "reversed"
)

// Payment は請求書に対するゲートウェイ決済を表す。
// MerchantReferenceは注文送信時に発番するこちら側の参照ID、
// OrderTrackingIDはゲートウェイが採番する追跡IDで、IPN通知のキーとなる。
type Payment struct {
	ID                string
	InvoiceID         string
	PayerUserID       string
	Amount            int64
	Currency          string
	MerchantReference string
	OrderTrackingID   string
	Status            PaymentStatus
	Method            string
	ConfirmationCode  string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
