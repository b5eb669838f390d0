// Package billing は月次の家賃請求書の生成と管理を提供する。
package billing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/rentman/internal/model"
	"github.com/hitoshi/rentman/internal/repository"
)

// Enqueuer はメールキュー投入のインターフェース。
// mail.QueueServiceの部分集合として定義する。
type Enqueuer interface {
	Enqueue(ctx context.Context, recipient, subject, htmlBody string) (*model.EmailMessage, error)
}

// ServiceConfig は請求サービスの設定。
type ServiceConfig struct {
	InvoiceDueDays int // 請求書発行から支払い期限までの日数
}

// Service は請求書のサービス層。
// 有効契約に対する月次請求書の冪等な生成と、期限超過の管理を行う。
type Service struct {
	invoiceRepo repository.InvoiceRepository
	tenancyRepo repository.TenancyRepository
	mailer      Enqueuer
	config      ServiceConfig
}

// NewService はServiceを生成する。
func NewService(
	invoiceRepo repository.InvoiceRepository,
	tenancyRepo repository.TenancyRepository,
	mailer Enqueuer,
	config ServiceConfig,
) *Service {
	if config.InvoiceDueDays <= 0 {
		config.InvoiceDueDays = 7
	}
	return &Service{
		invoiceRepo: invoiceRepo,
		tenancyRepo: tenancyRepo,
		mailer:      mailer,
		config:      config,
	}
}

// GenerateInvoices は指定月の請求書を全有効契約に対して生成し、作成件数を返す。
// 同一契約・同一期間の請求書は作成されない（冪等）。
// 契約開始月より前の期間に対しては生成しない。
func (s *Service) GenerateInvoices(ctx context.Context, month time.Time) (int, error) {
	period := month.Format("2006-01")
	periodStart := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, time.UTC)

	tenancies, err := s.tenancyRepo.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("有効契約一覧の取得に失敗しました: %w", err)
	}

	var created int
	for _, tenancy := range tenancies {
		// 契約開始月より前の期間はスキップ
		if tenancy.StartDate.After(periodStart.AddDate(0, 1, 0).Add(-time.Second)) {
			continue
		}

		now := time.Now()
		invoice := &model.Invoice{
			ID:        uuid.New().String(),
			TenancyID: tenancy.ID,
			Period:    period,
			Amount:    tenancy.MonthlyRent,
			Currency:  tenancy.Currency,
			Status:    model.InvoiceStatusIssued,
			DueDate:   periodStart.AddDate(0, 0, s.config.InvoiceDueDays),
			CreatedAt: now,
			UpdatedAt: now,
		}

		inserted, err := s.invoiceRepo.CreateIfAbsent(ctx, invoice)
		if err != nil {
			return created, fmt.Errorf("請求書の生成に失敗しました: %w", err)
		}
		if !inserted {
			continue
		}
		created++

		// 入居者への請求書メール（失敗しても生成は成功扱い）
		subject := fmt.Sprintf("家賃請求書 %s", period)
		body := fmt.Sprintf(
			"<p>%s 様</p><p>%s分の家賃請求書を発行しました。</p><p>金額: %s %d.%02d</p><p>支払い期限: %s</p>",
			tenancy.TenantName, period,
			invoice.Currency, invoice.Amount/100, invoice.Amount%100,
			invoice.DueDate.Format("2006-01-02"),
		)
		if _, err := s.mailer.Enqueue(ctx, tenancy.TenantEmail, subject, body); err != nil {
			slog.Error("failed to enqueue invoice notification",
				slog.String("invoice_id", invoice.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	return created, nil
}

// MarkOverdue は支払い期限を超過した発行済み請求書をoverdueにし、件数を返す。
func (s *Service) MarkOverdue(ctx context.Context) (int64, error) {
	count, err := s.invoiceRepo.MarkOverdue(ctx, time.Now())
	if err != nil {
		return 0, fmt.Errorf("期限超過請求書の更新に失敗しました: %w", err)
	}
	return count, nil
}

// GetInvoice は請求書を取得する。見つからない場合はAPIErrorを返す。
func (s *Service) GetInvoice(ctx context.Context, invoiceID string) (*model.Invoice, error) {
	invoice, err := s.invoiceRepo.FindByID(ctx, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("請求書の取得に失敗しました: %w", err)
	}
	if invoice == nil {
		return nil, model.NewInvoiceNotFoundError(invoiceID)
	}
	return invoice, nil
}

// ListInvoicesByOwner は所有者の物件に属する請求書一覧を契約情報付きで返す。
func (s *Service) ListInvoicesByOwner(ctx context.Context, ownerID string) ([]repository.InvoiceWithTenancyInfo, error) {
	invoices, err := s.invoiceRepo.ListByOwnerID(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("請求書一覧の取得に失敗しました: %w", err)
	}
	return invoices, nil
}

// ListInvoicesByTenancy は契約の請求書一覧を返す。
func (s *Service) ListInvoicesByTenancy(ctx context.Context, tenancyID string) ([]*model.Invoice, error) {
	invoices, err := s.invoiceRepo.ListByTenancyID(ctx, tenancyID)
	if err != nil {
		return nil, fmt.Errorf("請求書一覧の取得に失敗しました: %w", err)
	}
	return invoices, nil
}
