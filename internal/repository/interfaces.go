// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/hitoshi/rentman/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// Upsert はprovider_user_idをキーにユーザーを冪等に作成・更新する。
	// 既存行がある場合はemailとupdated_atのみ更新する。
	Upsert(ctx context.Context, user *model.User) (*model.User, error)

	// DeleteByID は指定IDのユーザーを削除する。関連セッションはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	// 全デバイスからのログアウトで使用する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// PropertyRepository は物件データの永続化インターフェース。
type PropertyRepository interface {
	// Create は物件を作成する。
	Create(ctx context.Context, property *model.Property) error
	// FindByID は指定IDの物件を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Property, error)
	// ListByOwnerID は所有者の物件一覧を作成日時順で返す。
	ListByOwnerID(ctx context.Context, ownerID string) ([]*model.Property, error)
	// Update は物件情報を更新する。
	Update(ctx context.Context, property *model.Property) error
	// DeleteByID は指定IDの物件を削除する。区画・契約はCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// UnitRepository は区画データの永続化インターフェース。
type UnitRepository interface {
	// Create は区画を作成する。
	Create(ctx context.Context, unit *model.Unit) error
	// FindByID は指定IDの区画を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Unit, error)
	// ListByPropertyID は物件内の区画一覧をラベル順で返す。
	ListByPropertyID(ctx context.Context, propertyID string) ([]*model.Unit, error)
	// Update は区画情報を更新する。
	Update(ctx context.Context, unit *model.Unit) error
	// DeleteByID は指定IDの区画を削除する。
	DeleteByID(ctx context.Context, id string) error
}

// TenancyRepository は賃貸借契約データの永続化インターフェース。
type TenancyRepository interface {
	// Create は契約を作成する。
	Create(ctx context.Context, tenancy *model.Tenancy) error

	// FindByID は指定IDの契約を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Tenancy, error)

	// FindActiveByUnitID は指定区画の有効な契約を取得する。見つからない場合はnilを返す。
	FindActiveByUnitID(ctx context.Context, unitID string) (*model.Tenancy, error)

	// ListActive は全有効契約を返す。請求書生成ジョブで使用する。
	ListActive(ctx context.Context) ([]*model.Tenancy, error)

	// ListByOwnerID は所有者の物件に属する契約一覧を区画・物件情報付きで返す。
	ListByOwnerID(ctx context.Context, ownerID string) ([]TenancyWithUnitInfo, error)

	// End は契約を終了状態にする。
	End(ctx context.Context, id string, endDate time.Time) error
}

// InvoiceRepository は請求書データの永続化インターフェース。
type InvoiceRepository interface {
	// CreateIfAbsent は請求書を作成する。同一契約・同一期間の請求書が
	// 既に存在する場合は何もせずfalseを返す（冪等）。
	CreateIfAbsent(ctx context.Context, invoice *model.Invoice) (bool, error)

	// FindByID は指定IDの請求書を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Invoice, error)

	// ListByTenancyID は契約の請求書一覧を期間降順で返す。
	ListByTenancyID(ctx context.Context, tenancyID string) ([]*model.Invoice, error)

	// ListByOwnerID は所有者の物件に属する請求書一覧を契約情報付きで返す。
	ListByOwnerID(ctx context.Context, ownerID string) ([]InvoiceWithTenancyInfo, error)

	// MarkPaid は請求書を支払い済みにする。既に支払い済みの場合は何もしない（冪等）。
	MarkPaid(ctx context.Context, id string, paidAt time.Time) error

	// MarkOverdue は期限超過した発行済み請求書をまとめてoverdueにし、件数を返す。
	MarkOverdue(ctx context.Context, asOf time.Time) (int64, error)
}

// PaymentRepository は決済データの永続化インターフェース。
type PaymentRepository interface {
	// Create は決済レコードを作成する。
	Create(ctx context.Context, payment *model.Payment) error

	// FindByID は指定IDの決済を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Payment, error)

	// FindByOrderTrackingID はゲートウェイの追跡IDで決済を検索する。
	// IPN通知の照合に使用する。見つからない場合はnilを返す。
	FindByOrderTrackingID(ctx context.Context, orderTrackingID string) (*model.Payment, error)

	// SetOrderTrackingID は注文送信後にゲートウェイの追跡IDを記録する。
	SetOrderTrackingID(ctx context.Context, id, orderTrackingID string) error

	// UpdateResult はゲートウェイから取得した決済結果を反映する。
	UpdateResult(ctx context.Context, id string, status model.PaymentStatus, method, confirmationCode string) error
}

// EmailQueueRepository はメールキューの永続化インターフェース。
type EmailQueueRepository interface {
	// Enqueue はメールをキューに追加する。
	Enqueue(ctx context.Context, msg *model.EmailMessage) error

	// ClaimBatch は送信対象のメールを最大limit件、排他的に取得する。
	// status = 'queued' かつ next_attempt_at <= now のものを古い順に、
	// FOR UPDATE SKIP LOCKEDで他インスタンスと競合せずクレームし、
	// 同一文でattemptsをインクリメントする。
	ClaimBatch(ctx context.Context, limit int) ([]*model.EmailMessage, error)

	// MarkSent はメールを送信済みにする。
	MarkSent(ctx context.Context, id string, sentAt time.Time) error

	// MarkRetry は一時的エラーを記録し、次回試行時刻を設定する。
	MarkRetry(ctx context.Context, id, errMsg string, nextAttemptAt time.Time) error

	// MarkFailed はメールを失敗状態にする。
	MarkFailed(ctx context.Context, id, errMsg string) error

	// DeleteFinishedBefore は指定日時より前に終了（sent/failed）した行を削除し、件数を返す。
	DeleteFinishedBefore(ctx context.Context, before time.Time) (int64, error)
}

// IPNRegistrationRepository はIPN登録情報の永続化インターフェース。
type IPNRegistrationRepository interface {
	// Create はIPN登録を記録する。同一ipn_idの再登録は上書きする。
	Create(ctx context.Context, reg *model.IPNRegistration) error

	// Latest は最新のIPN登録を取得する。未登録の場合はnilを返す。
	Latest(ctx context.Context) (*model.IPNRegistration, error)
}

// StatsRepository はダッシュボード集計用の読み取りインターフェース。
type StatsRepository interface {
	// OwnerStats は所有者のポートフォリオ全体の集計値を1クエリで取得する。
	OwnerStats(ctx context.Context, ownerID string) (*OwnerStats, error)
}

// OwnerStats は所有者のダッシュボード集計値。金額はすべて最小通貨単位。
type OwnerStats struct {
	Properties          int64 // 物件数
	Units               int64 // 区画数
	ActiveTenancies     int64 // 有効契約数
	OutstandingInvoices int64 // 未回収請求書数（issued + overdue）
	OutstandingAmount   int64 // 未回収金額
	OverdueInvoices     int64 // 期限超過請求書数
	OverdueAmount       int64 // 期限超過金額
	CollectedInvoices   int64 // 回収済み請求書数
	CollectedAmount     int64 // 回収済み金額
}

// TenancyWithUnitInfo は契約と区画・物件情報を結合した構造体。
type TenancyWithUnitInfo struct {
	model.Tenancy
	UnitLabel    string
	PropertyID   string
	PropertyName string
}

// InvoiceWithTenancyInfo は請求書と契約・区画情報を結合した構造体。
type InvoiceWithTenancyInfo struct {
	model.Invoice
	TenantName   string
	TenantEmail  string
	UnitLabel    string
	PropertyName string
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
