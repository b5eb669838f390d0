// Package cleanup は期限切れデータの自動削除ジョブを提供する。
// 期限切れセッションと、保持期間を超過した送信済み・失敗メールを
// 日次バッチで削除する。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/rentman/internal/repository"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// CleanupJob は期限切れセッションと終了済みメールの自動削除ジョブ。
// 日次実行のバッチジョブとして設計されており、冪等な削除処理を保証する。
type CleanupJob struct {
	db                 Executor
	emailRepo          repository.EmailQueueRepository
	logger             *slog.Logger
	EmailRetentionDays int // 送信済み・失敗メールの保持日数（デフォルト: 30）
}

// NewCleanupJob は新しいCleanupJobを生成する。
// デフォルトのメール保持日数は30日。
func NewCleanupJob(db Executor, emailRepo repository.EmailQueueRepository, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		db:                 db,
		emailRepo:          emailRepo,
		logger:             logger,
		EmailRetentionDays: 30,
	}
}

// Run は期限切れセッションと保持期間超過メールを削除する。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	// 期限切れセッションの削除
	result, err := j.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < now()`)
	if err != nil {
		j.logger.Error("セッションクリーンアップの実行に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("セッションクリーンアップの実行に失敗: %w", err)
	}

	sessionCount, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("削除件数の取得に失敗: %w", err)
	}

	// 保持期間を超過した送信済み・失敗メールの削除
	before := time.Now().AddDate(0, 0, -j.EmailRetentionDays)
	emailCount, err := j.emailRepo.DeleteFinishedBefore(ctx, before)
	if err != nil {
		j.logger.Error("メールクリーンアップの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.EmailRetentionDays),
		)
		return fmt.Errorf("メールクリーンアップの実行に失敗: %w", err)
	}

	j.logger.Info("クリーンアップジョブが完了しました",
		slog.Int64("deleted_sessions", sessionCount),
		slog.Int64("deleted_emails", emailCount),
		slog.Int("email_retention_days", j.EmailRetentionDays),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return nil
}
