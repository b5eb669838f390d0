package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/rentman/internal/model"
)

// PostgresPaymentRepo はPostgreSQLを使用した決済リポジトリ。
type PostgresPaymentRepo struct {
	db *sql.DB
}

// NewPostgresPaymentRepo はPostgresPaymentRepoを生成する。
func NewPostgresPaymentRepo(db *sql.DB) *PostgresPaymentRepo {
	return &PostgresPaymentRepo{db: db}
}

// Create は決済レコードを作成する。
func (r *PostgresPaymentRepo) Create(ctx context.Context, payment *model.Payment) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO payments (id, invoice_id, payer_user_id, amount, currency,
		                       merchant_reference, order_tracking_id, status,
		                       method, confirmation_code, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		payment.ID, payment.InvoiceID, nullString(payment.PayerUserID),
		payment.Amount, payment.Currency, payment.MerchantReference,
		nullString(payment.OrderTrackingID), payment.Status,
		payment.Method, payment.ConfirmationCode,
		payment.CreatedAt, payment.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("決済レコードの作成に失敗しました: %w", err)
	}
	return nil
}

// FindByID は指定IDの決済を取得する。見つからない場合はnilを返す。
func (r *PostgresPaymentRepo) FindByID(ctx context.Context, id string) (*model.Payment, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		`SELECT id, invoice_id, payer_user_id, amount, currency,
		        merchant_reference, order_tracking_id, status,
		        method, confirmation_code, created_at, updated_at
		 FROM payments WHERE id = $1`,
		id,
	))
}

// FindByOrderTrackingID はゲートウェイの追跡IDで決済を検索する。
// IPN通知の照合に使用する。見つからない場合はnilを返す。
func (r *PostgresPaymentRepo) FindByOrderTrackingID(ctx context.Context, orderTrackingID string) (*model.Payment, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		`SELECT id, invoice_id, payer_user_id, amount, currency,
		        merchant_reference, order_tracking_id, status,
		        method, confirmation_code, created_at, updated_at
		 FROM payments WHERE order_tracking_id = $1`,
		orderTrackingID,
	))
}

// SetOrderTrackingID は注文送信後にゲートウェイの追跡IDを記録する。
func (r *PostgresPaymentRepo) SetOrderTrackingID(ctx context.Context, id, orderTrackingID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE payments SET order_tracking_id = $2, updated_at = now() WHERE id = $1`,
		id, orderTrackingID,
	)
	if err != nil {
		return fmt.Errorf("追跡IDの記録に失敗しました: %w", err)
	}
	return nil
}

// UpdateResult はゲートウェイから取得した決済結果を反映する。
func (r *PostgresPaymentRepo) UpdateResult(ctx context.Context, id string, status model.PaymentStatus, method, confirmationCode string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE payments SET status = $2, method = $3, confirmation_code = $4, updated_at = now()
		 WHERE id = $1`,
		id, status, method, confirmationCode,
	)
	if err != nil {
		return fmt.Errorf("決済結果の反映に失敗しました: %w", err)
	}
	return nil
}

// scanOne は単一行のスキャンを行う。sql.ErrNoRowsの場合はnilを返す。
func (r *PostgresPaymentRepo) scanOne(row *sql.Row) (*model.Payment, error) {
	payment := &model.Payment{}
	var payerUserID, orderTrackingID sql.NullString

	err := row.Scan(
		&payment.ID, &payment.InvoiceID, &payerUserID,
		&payment.Amount, &payment.Currency, &payment.MerchantReference,
		&orderTrackingID, &payment.Status,
		&payment.Method, &payment.ConfirmationCode,
		&payment.CreatedAt, &payment.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("決済の取得に失敗しました: %w", err)
	}

	payment.PayerUserID = nullStringValue(payerUserID)
	payment.OrderTrackingID = nullStringValue(orderTrackingID)
	return payment, nil
}
