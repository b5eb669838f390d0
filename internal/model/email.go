// Package model はドメインモデルを定義する。
package model

import "time"

// EmailStatus はキュー内メールの状態を表す。
type EmailStatus string

const (
	// EmailStatusQueued は送信待ちの状態。
	EmailStatusQueued EmailStatus = "queued"
	// EmailStatusSent は送信完了の状態。
	EmailStatusSent EmailStatus = "sent"
	// EmailStatusFailed は最大試行回数超過または恒久エラーによる失敗状態。
	EmailStatusFailed EmailStatus = "failed"
)

// EmailMessage はメールキューの1行を表す。
// NextAttemptAtはリトライのバックオフ制御に使用する。
type EmailMessage struct {
	ID            string
	Recipient     string
	Subject       string
	HTMLBody      string
	TextBody      string
	Status        EmailStatus
	Attempts      int
	LastError     string
	NextAttemptAt time.Time
	SentAt        *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IPNRegistration は決済ゲートウェイに登録したIPNコールバックURLを表す。
// IPNIDはゲートウェイが採番した登録IDで、注文送信時に必要となる。
type IPNRegistration struct {
	ID               string
	URL              string
	IPNID            string
	NotificationType string
	CreatedAt        time.Time
}
