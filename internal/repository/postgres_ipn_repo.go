package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/rentman/internal/model"
)

// PostgresIPNRepo はPostgreSQLを使用したIPN登録リポジトリ。
type PostgresIPNRepo struct {
	db *sql.DB
}

// NewPostgresIPNRepo はPostgresIPNRepoを生成する。
func NewPostgresIPNRepo(db *sql.DB) *PostgresIPNRepo {
	return &PostgresIPNRepo{db: db}
}

// Create はIPN登録を記録する。同一ipn_idの再登録は上書きする。
func (r *PostgresIPNRepo) Create(ctx context.Context, reg *model.IPNRegistration) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO ipn_registrations (id, url, ipn_id, notification_type, created_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (ipn_id)
		 DO UPDATE SET url = EXCLUDED.url, notification_type = EXCLUDED.notification_type`,
		reg.ID, reg.URL, reg.IPNID, reg.NotificationType, reg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("IPN登録の記録に失敗しました: %w", err)
	}
	return nil
}

// Latest は最新のIPN登録を取得する。未登録の場合はnilを返す。
func (r *PostgresIPNRepo) Latest(ctx context.Context) (*model.IPNRegistration, error) {
	reg := &model.IPNRegistration{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, url, ipn_id, notification_type, created_at
		 FROM ipn_registrations
		 ORDER BY created_at DESC
		 LIMIT 1`,
	).Scan(&reg.ID, &reg.URL, &reg.IPNID, &reg.NotificationType, &reg.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("IPN登録の取得に失敗しました: %w", err)
	}

	return reg, nil
}
