package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/rentman/internal/model"
)

// PostgresPropertyRepo はPostgreSQLを使用した物件リポジトリ。
type PostgresPropertyRepo struct {
	db *sql.DB
}

// NewPostgresPropertyRepo はPostgresPropertyRepoを生成する。
func NewPostgresPropertyRepo(db *sql.DB) *PostgresPropertyRepo {
	return &PostgresPropertyRepo{db: db}
}

// Create は物件を作成する。
func (r *PostgresPropertyRepo) Create(ctx context.Context, property *model.Property) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO properties (id, owner_id, name, address, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		property.ID, property.OwnerID, property.Name, property.Address,
		property.CreatedAt, property.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("物件の作成に失敗しました: %w", err)
	}
	return nil
}

// FindByID は指定IDの物件を取得する。見つからない場合はnilを返す。
func (r *PostgresPropertyRepo) FindByID(ctx context.Context, id string) (*model.Property, error) {
	property := &model.Property{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, owner_id, name, address, created_at, updated_at
		 FROM properties WHERE id = $1`,
		id,
	).Scan(
		&property.ID, &property.OwnerID, &property.Name, &property.Address,
		&property.CreatedAt, &property.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("物件の取得に失敗しました: %w", err)
	}

	return property, nil
}

// ListByOwnerID は所有者の物件一覧を作成日時順で返す。
func (r *PostgresPropertyRepo) ListByOwnerID(ctx context.Context, ownerID string) ([]*model.Property, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, owner_id, name, address, created_at, updated_at
		 FROM properties WHERE owner_id = $1
		 ORDER BY created_at ASC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("物件一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var properties []*model.Property
	for rows.Next() {
		property := &model.Property{}
		if err := rows.Scan(
			&property.ID, &property.OwnerID, &property.Name, &property.Address,
			&property.CreatedAt, &property.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("物件一覧の読み取りに失敗しました: %w", err)
		}
		properties = append(properties, property)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("物件一覧の走査に失敗しました: %w", err)
	}

	return properties, nil
}

// Update は物件情報を更新する。
func (r *PostgresPropertyRepo) Update(ctx context.Context, property *model.Property) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE properties SET name = $2, address = $3, updated_at = $4 WHERE id = $1`,
		property.ID, property.Name, property.Address, property.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("物件の更新に失敗しました: %w", err)
	}
	return nil
}

// DeleteByID は指定IDの物件を削除する。区画・契約はCASCADE削除される。
func (r *PostgresPropertyRepo) DeleteByID(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM properties WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("物件の削除に失敗しました: %w", err)
	}
	return nil
}
