package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStatsRepo はPostgreSQLを使用したダッシュボード集計リポジトリ。
type PostgresStatsRepo struct {
	db *sql.DB
}

// NewPostgresStatsRepo はPostgresStatsRepoを生成する。
func NewPostgresStatsRepo(db *sql.DB) *PostgresStatsRepo {
	return &PostgresStatsRepo{db: db}
}

// OwnerStats は所有者のポートフォリオ全体の集計値を1クエリで取得する。
// 請求書の集計はCTEで所有者の請求書に絞り込んでから状態別に畳み込む。
func (r *PostgresStatsRepo) OwnerStats(ctx context.Context, ownerID string) (*OwnerStats, error) {
	stats := &OwnerStats{}
	err := r.db.QueryRowContext(ctx,
		`WITH owner_invoices AS (
		     SELECT i.amount, i.status
		     FROM invoices i
		     INNER JOIN tenancies t ON i.tenancy_id = t.id
		     INNER JOIN units u ON t.unit_id = u.id
		     INNER JOIN properties p ON u.property_id = p.id
		     WHERE p.owner_id = $1
		 )
		 SELECT
		     (SELECT count(*) FROM properties WHERE owner_id = $1),
		     (SELECT count(*) FROM units u
		      INNER JOIN properties p ON u.property_id = p.id
		      WHERE p.owner_id = $1),
		     (SELECT count(*) FROM tenancies t
		      INNER JOIN units u ON t.unit_id = u.id
		      INNER JOIN properties p ON u.property_id = p.id
		      WHERE p.owner_id = $1 AND t.status = 'active'),
		     (SELECT count(*) FROM owner_invoices WHERE status IN ('issued', 'overdue')),
		     (SELECT COALESCE(sum(amount), 0) FROM owner_invoices WHERE status IN ('issued', 'overdue')),
		     (SELECT count(*) FROM owner_invoices WHERE status = 'overdue'),
		     (SELECT COALESCE(sum(amount), 0) FROM owner_invoices WHERE status = 'overdue'),
		     (SELECT count(*) FROM owner_invoices WHERE status = 'paid'),
		     (SELECT COALESCE(sum(amount), 0) FROM owner_invoices WHERE status = 'paid')`,
		ownerID,
	).Scan(
		&stats.Properties, &stats.Units, &stats.ActiveTenancies,
		&stats.OutstandingInvoices, &stats.OutstandingAmount,
		&stats.OverdueInvoices, &stats.OverdueAmount,
		&stats.CollectedInvoices, &stats.CollectedAmount,
	)
	if err != nil {
		return nil, fmt.Errorf("ダッシュボード集計の取得に失敗しました: %w", err)
	}

	return stats, nil
}
