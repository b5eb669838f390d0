package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/rentman/internal/model"
)

// PostgresEmailQueueRepo はPostgreSQLを使用したメールキューリポジトリ。
type PostgresEmailQueueRepo struct {
	db *sql.DB
}

// NewPostgresEmailQueueRepo はPostgresEmailQueueRepoを生成する。
func NewPostgresEmailQueueRepo(db *sql.DB) *PostgresEmailQueueRepo {
	return &PostgresEmailQueueRepo{db: db}
}

// Enqueue はメールをキューに追加する。
func (r *PostgresEmailQueueRepo) Enqueue(ctx context.Context, msg *model.EmailMessage) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO email_queue (id, recipient, subject, html_body, text_body,
		                          status, attempts, last_error, next_attempt_at,
		                          sent_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		msg.ID, msg.Recipient, msg.Subject, msg.HTMLBody, msg.TextBody,
		msg.Status, msg.Attempts, msg.LastError, msg.NextAttemptAt,
		nullTime(msg.SentAt), msg.CreatedAt, msg.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("メールのキュー追加に失敗しました: %w", err)
	}
	return nil
}

// ClaimBatch は送信対象のメールを最大limit件、排他的に取得する。
// FOR UPDATE SKIP LOCKEDで他インスタンスと競合せずクレームし、
// 同一文でattemptsをインクリメントする。
func (r *PostgresEmailQueueRepo) ClaimBatch(ctx context.Context, limit int) ([]*model.EmailMessage, error) {
	rows, err := r.db.QueryContext(ctx,
		`UPDATE email_queue SET attempts = attempts + 1, updated_at = now()
		 WHERE id IN (
		     SELECT id FROM email_queue
		     WHERE status = 'queued' AND next_attempt_at <= now()
		     ORDER BY created_at ASC
		     LIMIT $1
		     FOR UPDATE SKIP LOCKED
		 )
		 RETURNING id, recipient, subject, html_body, text_body,
		           status, attempts, last_error, next_attempt_at,
		           sent_at, created_at, updated_at`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("送信対象メールのクレームに失敗しました: %w", err)
	}
	defer rows.Close()

	var messages []*model.EmailMessage
	for rows.Next() {
		msg := &model.EmailMessage{}
		var sentAt sql.NullTime
		if err := rows.Scan(
			&msg.ID, &msg.Recipient, &msg.Subject, &msg.HTMLBody, &msg.TextBody,
			&msg.Status, &msg.Attempts, &msg.LastError, &msg.NextAttemptAt,
			&sentAt, &msg.CreatedAt, &msg.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("送信対象メールの読み取りに失敗しました: %w", err)
		}
		msg.SentAt = nullTimeValue(sentAt)
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("送信対象メールの走査に失敗しました: %w", err)
	}

	return messages, nil
}

// MarkSent はメールを送信済みにする。
func (r *PostgresEmailQueueRepo) MarkSent(ctx context.Context, id string, sentAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE email_queue SET status = 'sent', sent_at = $2, last_error = '', updated_at = now()
		 WHERE id = $1`,
		id, sentAt,
	)
	if err != nil {
		return fmt.Errorf("メールの送信済み更新に失敗しました: %w", err)
	}
	return nil
}

// MarkRetry は一時的エラーを記録し、次回試行時刻を設定する。
func (r *PostgresEmailQueueRepo) MarkRetry(ctx context.Context, id, errMsg string, nextAttemptAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE email_queue SET last_error = $2, next_attempt_at = $3, updated_at = now()
		 WHERE id = $1`,
		id, errMsg, nextAttemptAt,
	)
	if err != nil {
		return fmt.Errorf("メールのリトライ記録に失敗しました: %w", err)
	}
	return nil
}

// MarkFailed はメールを失敗状態にする。
func (r *PostgresEmailQueueRepo) MarkFailed(ctx context.Context, id, errMsg string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE email_queue SET status = 'failed', last_error = $2, updated_at = now()
		 WHERE id = $1`,
		id, errMsg,
	)
	if err != nil {
		return fmt.Errorf("メールの失敗更新に失敗しました: %w", err)
	}
	return nil
}

// DeleteFinishedBefore は指定日時より前に終了（sent/failed）した行を削除し、件数を返す。
func (r *PostgresEmailQueueRepo) DeleteFinishedBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM email_queue
		 WHERE status IN ('sent', 'failed') AND updated_at < $1`,
		before,
	)
	if err != nil {
		return 0, fmt.Errorf("終了済みメールの削除に失敗しました: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除件数の取得に失敗しました: %w", err)
	}

	return affected, nil
}
