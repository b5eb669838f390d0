package mailer

import (
	"context"
	"log/slog"
	"time"
)

// QueueDrainer はドレイン処理の実行インターフェース。
type QueueDrainer interface {
	// DrainOnce はキューからメールをクレームし送信する。
	DrainOnce(ctx context.Context) (DrainResult, error)
}

// Scheduler はメールキューのドレインを定期実行する。
type Scheduler struct {
	drainer QueueDrainer
	logger  *slog.Logger
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
func NewScheduler(drainer QueueDrainer, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		drainer: drainer,
		logger:  logger,
	}
}

// Start は指定間隔のティッカーでスケジューラを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("メール送信スケジューラを開始しました",
		slog.Duration("interval", interval),
	)

	// 起動直後に1回実行
	if _, err := s.drainer.DrainOnce(ctx); err != nil {
		s.logger.Error("ドレインの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("メール送信スケジューラを停止しました")
			return
		case <-ticker.C:
			if _, err := s.drainer.DrainOnce(ctx); err != nil {
				s.logger.Error("ドレインの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}
