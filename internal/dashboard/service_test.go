package dashboard

import (
	"context"
	"errors"
	"testing"

	"github.com/hitoshi/rentman/internal/repository"
)

// --- モック定義 ---

type mockStatsRepo struct {
	ownerStatsFn func(ctx context.Context, ownerID string) (*repository.OwnerStats, error)
}

func (m *mockStatsRepo) OwnerStats(ctx context.Context, ownerID string) (*repository.OwnerStats, error) {
	if m.ownerStatsFn != nil {
		return m.ownerStatsFn(ctx, ownerID)
	}
	return &repository.OwnerStats{}, nil
}

// --- テスト ---

func TestGetStats_ReturnsOwnerStats(t *testing.T) {
	var queriedOwner string
	repo := &mockStatsRepo{
		ownerStatsFn: func(ctx context.Context, ownerID string) (*repository.OwnerStats, error) {
			queriedOwner = ownerID
			return &repository.OwnerStats{
				Properties:          2,
				Units:               10,
				ActiveTenancies:     8,
				OutstandingInvoices: 3,
				OutstandingAmount:   15000000,
				OverdueInvoices:     1,
				OverdueAmount:       5000000,
				CollectedInvoices:   20,
				CollectedAmount:     100000000,
			}, nil
		},
	}
	svc := NewService(repo)

	stats, err := svc.GetStats(context.Background(), "owner-1")
	if err != nil {
		t.Fatalf("GetStats() error = %v, want nil", err)
	}
	if queriedOwner != "owner-1" {
		t.Errorf("queried owner = %q, want %q", queriedOwner, "owner-1")
	}
	if stats.Properties != 2 {
		t.Errorf("Properties = %d, want 2", stats.Properties)
	}
	if stats.OutstandingAmount != 15000000 {
		t.Errorf("OutstandingAmount = %d, want 15000000", stats.OutstandingAmount)
	}
	if stats.OverdueInvoices != 1 {
		t.Errorf("OverdueInvoices = %d, want 1", stats.OverdueInvoices)
	}
	if stats.CollectedAmount != 100000000 {
		t.Errorf("CollectedAmount = %d, want 100000000", stats.CollectedAmount)
	}
}

func TestGetStats_RepoError(t *testing.T) {
	repo := &mockStatsRepo{
		ownerStatsFn: func(ctx context.Context, ownerID string) (*repository.OwnerStats, error) {
			return nil, errors.New("db error")
		},
	}
	svc := NewService(repo)

	if _, err := svc.GetStats(context.Background(), "owner-1"); err == nil {
		t.Error("GetStats() should fail when repository fails")
	}
}
