package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/rentman/internal/model"
)

// PostgresUnitRepo はPostgreSQLを使用した区画リポジトリ。
type PostgresUnitRepo struct {
	db *sql.DB
}

// NewPostgresUnitRepo はPostgresUnitRepoを生成する。
func NewPostgresUnitRepo(db *sql.DB) *PostgresUnitRepo {
	return &PostgresUnitRepo{db: db}
}

// Create は区画を作成する。
func (r *PostgresUnitRepo) Create(ctx context.Context, unit *model.Unit) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO units (id, property_id, label, monthly_rent, currency, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		unit.ID, unit.PropertyID, unit.Label, unit.MonthlyRent, unit.Currency,
		unit.CreatedAt, unit.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("区画の作成に失敗しました: %w", err)
	}
	return nil
}

// FindByID は指定IDの区画を取得する。見つからない場合はnilを返す。
func (r *PostgresUnitRepo) FindByID(ctx context.Context, id string) (*model.Unit, error) {
	unit := &model.Unit{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, property_id, label, monthly_rent, currency, created_at, updated_at
		 FROM units WHERE id = $1`,
		id,
	).Scan(
		&unit.ID, &unit.PropertyID, &unit.Label, &unit.MonthlyRent, &unit.Currency,
		&unit.CreatedAt, &unit.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("区画の取得に失敗しました: %w", err)
	}

	return unit, nil
}

// ListByPropertyID は物件内の区画一覧をラベル順で返す。
func (r *PostgresUnitRepo) ListByPropertyID(ctx context.Context, propertyID string) ([]*model.Unit, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, property_id, label, monthly_rent, currency, created_at, updated_at
		 FROM units WHERE property_id = $1
		 ORDER BY label ASC`,
		propertyID,
	)
	if err != nil {
		return nil, fmt.Errorf("区画一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var units []*model.Unit
	for rows.Next() {
		unit := &model.Unit{}
		if err := rows.Scan(
			&unit.ID, &unit.PropertyID, &unit.Label, &unit.MonthlyRent, &unit.Currency,
			&unit.CreatedAt, &unit.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("区画一覧の読み取りに失敗しました: %w", err)
		}
		units = append(units, unit)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("区画一覧の走査に失敗しました: %w", err)
	}

	return units, nil
}

// Update は区画情報を更新する。
func (r *PostgresUnitRepo) Update(ctx context.Context, unit *model.Unit) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE units SET label = $2, monthly_rent = $3, currency = $4, updated_at = $5
		 WHERE id = $1`,
		unit.ID, unit.Label, unit.MonthlyRent, unit.Currency, unit.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("区画の更新に失敗しました: %w", err)
	}
	return nil
}

// DeleteByID は指定IDの区画を削除する。
func (r *PostgresUnitRepo) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM units WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("区画の削除に失敗しました: %w", err)
	}
	return nil
}
