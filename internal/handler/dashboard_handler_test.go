package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/rentman/internal/repository"
)

// --- モック定義 ---

type mockDashboardService struct {
	getStatsFn func(ctx context.Context, ownerID string) (*repository.OwnerStats, error)
}

func (m *mockDashboardService) GetStats(ctx context.Context, ownerID string) (*repository.OwnerStats, error) {
	if m.getStatsFn != nil {
		return m.getStatsFn(ctx, ownerID)
	}
	return &repository.OwnerStats{}, nil
}

// --- テスト ---

func TestGetDashboardStats_Success(t *testing.T) {
	svc := &mockDashboardService{
		getStatsFn: func(ctx context.Context, ownerID string) (*repository.OwnerStats, error) {
			if ownerID != "user-1" {
				t.Errorf("ownerID = %q, want %q", ownerID, "user-1")
			}
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
	h := NewDashboardHandler(svc)

	req := authenticatedRequest(http.MethodGet, "/api/dashboard/stats", "")
	w := httptest.NewRecorder()
	h.GetStats(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var body dashboardStatsResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Properties != 2 {
		t.Errorf("properties = %d, want 2", body.Properties)
	}
	if body.ActiveTenancies != 8 {
		t.Errorf("active_tenancies = %d, want 8", body.ActiveTenancies)
	}
	if body.OutstandingAmount != 15000000 {
		t.Errorf("outstanding_amount = %d, want 15000000", body.OutstandingAmount)
	}
	if body.OverdueInvoices != 1 {
		t.Errorf("overdue_invoices = %d, want 1", body.OverdueInvoices)
	}
	if body.CollectedAmount != 100000000 {
		t.Errorf("collected_amount = %d, want 100000000", body.CollectedAmount)
	}
}

func TestGetDashboardStats_EmptyPortfolio_ReturnsZeros(t *testing.T) {
	h := NewDashboardHandler(&mockDashboardService{})

	req := authenticatedRequest(http.MethodGet, "/api/dashboard/stats", "")
	w := httptest.NewRecorder()
	h.GetStats(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var body dashboardStatsResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Properties != 0 || body.OutstandingAmount != 0 {
		t.Errorf("empty portfolio should return zeros, got %+v", body)
	}
}

func TestGetDashboardStats_Unauthenticated_Returns401(t *testing.T) {
	h := NewDashboardHandler(&mockDashboardService{})

	req := httptest.NewRequest(http.MethodGet, "/api/dashboard/stats", nil)
	w := httptest.NewRecorder()
	h.GetStats(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestGetDashboardStats_ServiceError_Returns500(t *testing.T) {
	svc := &mockDashboardService{
		getStatsFn: func(ctx context.Context, ownerID string) (*repository.OwnerStats, error) {
			return nil, errors.New("db error")
		},
	}
	h := NewDashboardHandler(svc)

	req := authenticatedRequest(http.MethodGet, "/api/dashboard/stats", "")
	w := httptest.NewRecorder()
	h.GetStats(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}
