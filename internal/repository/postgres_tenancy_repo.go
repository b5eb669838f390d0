package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/rentman/internal/model"
)

// PostgresTenancyRepo はPostgreSQLを使用した賃貸借契約リポジトリ。
type PostgresTenancyRepo struct {
	db *sql.DB
}

// NewPostgresTenancyRepo はPostgresTenancyRepoを生成する。
func NewPostgresTenancyRepo(db *sql.DB) *PostgresTenancyRepo {
	return &PostgresTenancyRepo{db: db}
}

// Create は契約を作成する。
func (r *PostgresTenancyRepo) Create(ctx context.Context, tenancy *model.Tenancy) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tenancies (id, unit_id, tenant_name, tenant_email, monthly_rent,
		                        currency, status, start_date, end_date, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		tenancy.ID, tenancy.UnitID, tenancy.TenantName, tenancy.TenantEmail,
		tenancy.MonthlyRent, tenancy.Currency, tenancy.Status,
		tenancy.StartDate, nullTime(tenancy.EndDate),
		tenancy.CreatedAt, tenancy.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("契約の作成に失敗しました: %w", err)
	}
	return nil
}

// FindByID は指定IDの契約を取得する。見つからない場合はnilを返す。
func (r *PostgresTenancyRepo) FindByID(ctx context.Context, id string) (*model.Tenancy, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		`SELECT id, unit_id, tenant_name, tenant_email, monthly_rent,
		        currency, status, start_date, end_date, created_at, updated_at
		 FROM tenancies WHERE id = $1`,
		id,
	))
}

// FindActiveByUnitID は指定区画の有効な契約を取得する。見つからない場合はnilを返す。
func (r *PostgresTenancyRepo) FindActiveByUnitID(ctx context.Context, unitID string) (*model.Tenancy, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		`SELECT id, unit_id, tenant_name, tenant_email, monthly_rent,
		        currency, status, start_date, end_date, created_at, updated_at
		 FROM tenancies WHERE unit_id = $1 AND status = 'active'`,
		unitID,
	))
}

// ListActive は全有効契約を返す。請求書生成ジョブで使用する。
func (r *PostgresTenancyRepo) ListActive(ctx context.Context) ([]*model.Tenancy, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, unit_id, tenant_name, tenant_email, monthly_rent,
		        currency, status, start_date, end_date, created_at, updated_at
		 FROM tenancies WHERE status = 'active'
		 ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("有効契約一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var tenancies []*model.Tenancy
	for rows.Next() {
		tenancy := &model.Tenancy{}
		var endDate sql.NullTime
		if err := rows.Scan(
			&tenancy.ID, &tenancy.UnitID, &tenancy.TenantName, &tenancy.TenantEmail,
			&tenancy.MonthlyRent, &tenancy.Currency, &tenancy.Status,
			&tenancy.StartDate, &endDate, &tenancy.CreatedAt, &tenancy.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("有効契約一覧の読み取りに失敗しました: %w", err)
		}
		tenancy.EndDate = nullTimeValue(endDate)
		tenancies = append(tenancies, tenancy)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("有効契約一覧の走査に失敗しました: %w", err)
	}

	return tenancies, nil
}

// ListByOwnerID は所有者の物件に属する契約一覧を区画・物件情報付きで返す。
func (r *PostgresTenancyRepo) ListByOwnerID(ctx context.Context, ownerID string) ([]TenancyWithUnitInfo, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT t.id, t.unit_id, t.tenant_name, t.tenant_email, t.monthly_rent,
		        t.currency, t.status, t.start_date, t.end_date, t.created_at, t.updated_at,
		        u.label, p.id, p.name
		 FROM tenancies t
		 INNER JOIN units u ON t.unit_id = u.id
		 INNER JOIN properties p ON u.property_id = p.id
		 WHERE p.owner_id = $1
		 ORDER BY t.created_at DESC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("契約一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var result []TenancyWithUnitInfo
	for rows.Next() {
		var info TenancyWithUnitInfo
		var endDate sql.NullTime
		if err := rows.Scan(
			&info.ID, &info.UnitID, &info.TenantName, &info.TenantEmail,
			&info.MonthlyRent, &info.Currency, &info.Status,
			&info.StartDate, &endDate, &info.CreatedAt, &info.UpdatedAt,
			&info.UnitLabel, &info.PropertyID, &info.PropertyName,
		); err != nil {
			return nil, fmt.Errorf("契約一覧の読み取りに失敗しました: %w", err)
		}
		info.EndDate = nullTimeValue(endDate)
		result = append(result, info)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("契約一覧の走査に失敗しました: %w", err)
	}

	return result, nil
}

// End は契約を終了状態にする。
func (r *PostgresTenancyRepo) End(ctx context.Context, id string, endDate time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE tenancies SET status = 'ended', end_date = $2, updated_at = now()
		 WHERE id = $1`,
		id, endDate,
	)
	if err != nil {
		return fmt.Errorf("契約の終了に失敗しました: %w", err)
	}
	return nil
}

// scanOne は単一行のスキャンを行う。sql.ErrNoRowsの場合はnilを返す。
func (r *PostgresTenancyRepo) scanOne(row *sql.Row) (*model.Tenancy, error) {
	tenancy := &model.Tenancy{}
	var endDate sql.NullTime

	err := row.Scan(
		&tenancy.ID, &tenancy.UnitID, &tenancy.TenantName, &tenancy.TenantEmail,
		&tenancy.MonthlyRent, &tenancy.Currency, &tenancy.Status,
		&tenancy.StartDate, &endDate, &tenancy.CreatedAt, &tenancy.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("契約の取得に失敗しました: %w", err)
	}

	tenancy.EndDate = nullTimeValue(endDate)
	return tenancy, nil
}
