// Package mailer はメールキューのバックグラウンド送信処理を提供する。
// スケジューラ、ドレイナー、リトライ/バックオフ戦略を含む。
package mailer

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/rentman/internal/mail"
	"github.com/hitoshi/rentman/internal/model"
	"github.com/hitoshi/rentman/internal/repository"
)

// MetricsRecorder はドレイナーが記録するメトリクスのインターフェース。
// metrics.MetricsCollectorの部分集合として定義する。
type MetricsRecorder interface {
	RecordEmailSent()
	RecordEmailFailure(reason string)
	RecordDrainLatency(duration time.Duration)
}

// DrainResult はドレイン1回の処理結果。
type DrainResult struct {
	Processed int // クレームした件数
	Sent      int // 送信成功した件数
	Failed    int // 恒久失敗またはリトライ予約した件数
}

// DrainerConfig はドレイナーの設定。
type DrainerConfig struct {
	BatchSize   int           // 1回のドレインでクレームする最大件数
	MaxAttempts int           // 恒久失敗にするまでの最大試行回数
	SendTimeout time.Duration // 1通あたりの送信タイムアウト
}

// Drainer はメールキューのドレイン処理を行う。
// FOR UPDATE SKIP LOCKEDによるクレームで複数インスタンスの同時実行に耐える。
type Drainer struct {
	queueRepo repository.EmailQueueRepository
	sender    mail.Sender
	collector MetricsRecorder
	logger    *slog.Logger
	config    DrainerConfig
}

// NewDrainer はDrainerを生成する。
// collectorはnil可（メトリクス収集なしで動作する）。
func NewDrainer(
	queueRepo repository.EmailQueueRepository,
	sender mail.Sender,
	collector MetricsRecorder,
	logger *slog.Logger,
	config DrainerConfig,
) *Drainer {
	if config.BatchSize <= 0 {
		config.BatchSize = 20
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 5
	}
	if config.SendTimeout <= 0 {
		config.SendTimeout = 30 * time.Second
	}
	return &Drainer{
		queueRepo: queueRepo,
		sender:    sender,
		collector: collector,
		logger:    logger,
		config:    config,
	}
}

// DrainOnce はキューからメールをクレームし、逐次送信する。
// 送信成功はsent、恒久エラーまたは最大試行回数超過はfailed、
// 一時的エラーはバックオフ付きでキューに戻す（failedに計上）。
func (d *Drainer) DrainOnce(ctx context.Context) (DrainResult, error) {
	start := time.Now()
	var result DrainResult

	msgs, err := d.queueRepo.ClaimBatch(ctx, d.config.BatchSize)
	if err != nil {
		return result, err
	}

	result.Processed = len(msgs)
	if len(msgs) == 0 {
		return result, nil
	}

	d.logger.Info("メールキューのドレインを開始します",
		slog.Int("claimed", len(msgs)),
	)

	for _, msg := range msgs {
		if err := d.sendOne(ctx, msg); err == nil {
			result.Sent++
		} else {
			result.Failed++
		}
	}

	duration := time.Since(start)
	if d.collector != nil {
		d.collector.RecordDrainLatency(duration)
	}

	d.logger.Info("メールキューのドレインが完了しました",
		slog.Int("processed", result.Processed),
		slog.Int("sent", result.Sent),
		slog.Int("failed", result.Failed),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return result, nil
}

// sendOne はメールを1通送信し、結果をキューに反映する。
// 戻り値のエラーは送信失敗を示す（キュー反映の失敗はログのみ）。
func (d *Drainer) sendOne(ctx context.Context, msg *model.EmailMessage) error {
	sendCtx, cancel := context.WithTimeout(ctx, d.config.SendTimeout)
	defer cancel()

	sendErr := d.sender.Send(sendCtx, msg)
	if sendErr == nil {
		if err := d.queueRepo.MarkSent(ctx, msg.ID, time.Now()); err != nil {
			d.logger.Error("送信済みステータスの記録に失敗しました",
				slog.String("email_id", msg.ID),
				slog.String("error", err.Error()),
			)
		}
		if d.collector != nil {
			d.collector.RecordEmailSent()
		}
		return nil
	}

	// ClaimBatchがattemptsをインクリメント済みのため、msg.Attemptsは今回の試行を含む
	switch {
	case ClassifySendError(sendErr) == SendResultFail:
		d.markFailed(ctx, msg, sendErr, "permanent")
	case msg.Attempts >= d.config.MaxAttempts:
		d.markFailed(ctx, msg, sendErr, "max_attempts")
	default:
		nextAttempt := time.Now().Add(CalculateBackoff(msg.Attempts))
		if err := d.queueRepo.MarkRetry(ctx, msg.ID, sendErr.Error(), nextAttempt); err != nil {
			d.logger.Error("リトライ予約の記録に失敗しました",
				slog.String("email_id", msg.ID),
				slog.String("error", err.Error()),
			)
		}
		d.logger.Warn("メール送信に失敗しました。リトライします",
			slog.String("email_id", msg.ID),
			slog.Int("attempts", msg.Attempts),
			slog.Time("next_attempt_at", nextAttempt),
			slog.String("error", sendErr.Error()),
		)
		if d.collector != nil {
			d.collector.RecordEmailFailure("transient")
		}
	}

	return sendErr
}

// markFailed はメールを恒久失敗として記録する。
func (d *Drainer) markFailed(ctx context.Context, msg *model.EmailMessage, sendErr error, reason string) {
	if err := d.queueRepo.MarkFailed(ctx, msg.ID, sendErr.Error()); err != nil {
		d.logger.Error("失敗ステータスの記録に失敗しました",
			slog.String("email_id", msg.ID),
			slog.String("error", err.Error()),
		)
	}
	d.logger.Error("メール送信が恒久的に失敗しました",
		slog.String("email_id", msg.ID),
		slog.String("recipient", msg.Recipient),
		slog.Int("attempts", msg.Attempts),
		slog.String("reason", reason),
		slog.String("error", sendErr.Error()),
	)
	if d.collector != nil {
		d.collector.RecordEmailFailure(reason)
	}
}
