// Package billing は請求書の生成と期限管理の日次バッチジョブを提供する。
package billing

import (
	"context"
	"log/slog"
	"time"
)

// InvoiceGenerator は請求書生成サービスのインターフェース。
// billing.Serviceの部分集合として定義する。
type InvoiceGenerator interface {
	// GenerateInvoices は指定月の請求書を全有効契約に対して生成する。
	GenerateInvoices(ctx context.Context, month time.Time) (int, error)
	// MarkOverdue は支払い期限を超過した発行済み請求書をoverdueにする。
	MarkOverdue(ctx context.Context) (int64, error)
}

// MetricsRecorder はジョブが記録するメトリクスのインターフェース。
type MetricsRecorder interface {
	RecordInvoicesGenerated(count int)
}

// Job は請求書の生成と期限超過マークを行う日次バッチジョブ。
// 生成は契約・期間単位で冪等なため、多重実行しても請求書は重複しない。
type Job struct {
	generator InvoiceGenerator
	collector MetricsRecorder
	logger    *slog.Logger
}

// NewJob は新しいJobを生成する。collectorはnil可。
func NewJob(generator InvoiceGenerator, collector MetricsRecorder, logger *slog.Logger) *Job {
	return &Job{
		generator: generator,
		collector: collector,
		logger:    logger,
	}
}

// Run は当月分の請求書を生成し、期限超過請求書をoverdueにする。
func (j *Job) Run(ctx context.Context) error {
	start := time.Now()

	created, err := j.generator.GenerateInvoices(ctx, time.Now())
	if err != nil {
		j.logger.Error("請求書生成ジョブの実行に失敗しました",
			slog.String("error", err.Error()),
		)
		return err
	}
	if j.collector != nil && created > 0 {
		j.collector.RecordInvoicesGenerated(created)
	}

	overdue, err := j.generator.MarkOverdue(ctx)
	if err != nil {
		j.logger.Error("期限超過マークの実行に失敗しました",
			slog.String("error", err.Error()),
		)
		return err
	}

	j.logger.Info("請求ジョブが完了しました",
		slog.Int("invoices_created", created),
		slog.Int64("marked_overdue", overdue),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return nil
}

// Start は指定間隔のティッカーでジョブを定期実行する。
// コンテキストがキャンセルされるまで実行を継続する。
func (j *Job) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("請求ジョブスケジューラを開始しました",
		slog.Duration("interval", interval),
	)

	// 起動直後に1回実行
	if err := j.Run(ctx); err != nil {
		j.logger.Error("請求ジョブの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("請求ジョブスケジューラを停止しました")
			return
		case <-ticker.C:
			if err := j.Run(ctx); err != nil {
				j.logger.Error("請求ジョブの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
