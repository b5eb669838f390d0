// Package dashboard は所有者ダッシュボードの集計値を提供する。
package dashboard

import (
	"context"
	"fmt"

	"github.com/hitoshi/rentman/internal/repository"
)

// Service はダッシュボードのサービス層。
type Service struct {
	statsRepo repository.StatsRepository
}

// NewService はServiceを生成する。
func NewService(statsRepo repository.StatsRepository) *Service {
	return &Service{statsRepo: statsRepo}
}

// GetStats は所有者のポートフォリオ集計値を返す。
// 物件を持たない所有者にはすべてゼロの集計値が返る。
func (s *Service) GetStats(ctx context.Context, ownerID string) (*repository.OwnerStats, error) {
	stats, err := s.statsRepo.OwnerStats(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("ダッシュボード集計の取得に失敗しました: %w", err)
	}
	return stats, nil
}
