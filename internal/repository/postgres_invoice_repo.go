package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/rentman/internal/model"
)

// PostgresInvoiceRepo はPostgreSQLを使用した請求書リポジトリ。
type PostgresInvoiceRepo struct {
	db *sql.DB
}

// NewPostgresInvoiceRepo はPostgresInvoiceRepoを生成する。
func NewPostgresInvoiceRepo(db *sql.DB) *PostgresInvoiceRepo {
	return &PostgresInvoiceRepo{db: db}
}

// CreateIfAbsent は請求書を作成する。同一契約・同一期間の請求書が
// 既に存在する場合は何もせずfalseを返す（冪等）。
func (r *PostgresInvoiceRepo) CreateIfAbsent(ctx context.Context, invoice *model.Invoice) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO invoices (id, tenancy_id, period, amount, currency, status,
		                       due_date, paid_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (tenancy_id, period) DO NOTHING`,
		invoice.ID, invoice.TenancyID, invoice.Period, invoice.Amount, invoice.Currency,
		invoice.Status, invoice.DueDate, nullTime(invoice.PaidAt),
		invoice.CreatedAt, invoice.UpdatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("請求書の作成に失敗しました: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("請求書作成件数の取得に失敗しました: %w", err)
	}

	return affected > 0, nil
}

// FindByID は指定IDの請求書を取得する。見つからない場合はnilを返す。
func (r *PostgresInvoiceRepo) FindByID(ctx context.Context, id string) (*model.Invoice, error) {
	invoice := &model.Invoice{}
	var paidAt sql.NullTime

	err := r.db.QueryRowContext(ctx,
		`SELECT id, tenancy_id, period, amount, currency, status,
		        due_date, paid_at, created_at, updated_at
		 FROM invoices WHERE id = $1`,
		id,
	).Scan(
		&invoice.ID, &invoice.TenancyID, &invoice.Period, &invoice.Amount,
		&invoice.Currency, &invoice.Status, &invoice.DueDate, &paidAt,
		&invoice.CreatedAt, &invoice.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("請求書の取得に失敗しました: %w", err)
	}

	invoice.PaidAt = nullTimeValue(paidAt)
	return invoice, nil
}

// ListByTenancyID は契約の請求書一覧を期間降順で返す。
func (r *PostgresInvoiceRepo) ListByTenancyID(ctx context.Context, tenancyID string) ([]*model.Invoice, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, tenancy_id, period, amount, currency, status,
		        due_date, paid_at, created_at, updated_at
		 FROM invoices WHERE tenancy_id = $1
		 ORDER BY period DESC`,
		tenancyID,
	)
	if err != nil {
		return nil, fmt.Errorf("請求書一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var invoices []*model.Invoice
	for rows.Next() {
		invoice := &model.Invoice{}
		var paidAt sql.NullTime
		if err := rows.Scan(
			&invoice.ID, &invoice.TenancyID, &invoice.Period, &invoice.Amount,
			&invoice.Currency, &invoice.Status, &invoice.DueDate, &paidAt,
			&invoice.CreatedAt, &invoice.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("請求書一覧の読み取りに失敗しました: %w", err)
		}
		invoice.PaidAt = nullTimeValue(paidAt)
		invoices = append(invoices, invoice)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("請求書一覧の走査に失敗しました: %w", err)
	}

	return invoices, nil
}

// ListByOwnerID は所有者の物件に属する請求書一覧を契約情報付きで返す。
func (r *PostgresInvoiceRepo) ListByOwnerID(ctx context.Context, ownerID string) ([]InvoiceWithTenancyInfo, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT i.id, i.tenancy_id, i.period, i.amount, i.currency, i.status,
		        i.due_date, i.paid_at, i.created_at, i.updated_at,
		        t.tenant_name, t.tenant_email, u.label, p.name
		 FROM invoices i
		 INNER JOIN tenancies t ON i.tenancy_id = t.id
		 INNER JOIN units u ON t.unit_id = u.id
		 INNER JOIN properties p ON u.property_id = p.id
		 WHERE p.owner_id = $1
		 ORDER BY i.period DESC, i.created_at DESC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("所有者の請求書一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var result []InvoiceWithTenancyInfo
	for rows.Next() {
		var info InvoiceWithTenancyInfo
		var paidAt sql.NullTime
		if err := rows.Scan(
			&info.ID, &info.TenancyID, &info.Period, &info.Amount,
			&info.Currency, &info.Status, &info.DueDate, &paidAt,
			&info.CreatedAt, &info.UpdatedAt,
			&info.TenantName, &info.TenantEmail, &info.UnitLabel, &info.PropertyName,
		); err != nil {
			return nil, fmt.Errorf("所有者の請求書一覧の読み取りに失敗しました: %w", err)
		}
		info.PaidAt = nullTimeValue(paidAt)
		result = append(result, info)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("所有者の請求書一覧の走査に失敗しました: %w", err)
	}

	return result, nil
}

// MarkPaid は請求書を支払い済みにする。既に支払い済みの場合は何もしない（冪等）。
func (r *PostgresInvoiceRepo) MarkPaid(ctx context.Context, id string, paidAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE invoices SET status = 'paid', paid_at = $2, updated_at = now()
		 WHERE id = $1 AND status <> 'paid'`,
		id, paidAt,
	)
	if err != nil {
		return fmt.Errorf("請求書の支払い済み更新に失敗しました: %w", err)
	}
	return nil
}

// MarkOverdue は期限超過した発行済み請求書をまとめてoverdueにし、件数を返す。
func (r *PostgresInvoiceRepo) MarkOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE invoices SET status = 'overdue', updated_at = now()
		 WHERE status = 'issued' AND due_date < $1`,
		asOf,
	)
	if err != nil {
		return 0, fmt.Errorf("期限超過請求書の更新に失敗しました: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("期限超過件数の取得に失敗しました: %w", err)
	}

	return affected, nil
}
