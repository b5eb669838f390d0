// Package tenancy は賃貸借契約管理のドメインロジックを提供する。
package tenancy

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

// Service は賃貸借契約のサービス層。
// 契約作成 → 入居者への通知メール投入のフローを統括する。
type Service struct {
	tenancyRepo  repository.TenancyRepository
	unitRepo     repository.UnitRepository
	propertyRepo repository.PropertyRepository
	mailer       Enqueuer
}

// NewService はServiceを生成する。
func NewService(
	tenancyRepo repository.TenancyRepository,
	unitRepo repository.UnitRepository,
	propertyRepo repository.PropertyRepository,
	mailer Enqueuer,
) *Service {
	return &Service{
		tenancyRepo:  tenancyRepo,
		unitRepo:     unitRepo,
		propertyRepo: propertyRepo,
		mailer:       mailer,
	}
}

// CreateTenancy は区画に対する賃貸借契約を作成する。
// フロー: 区画・所有権の検証 → 既存有効契約の重複チェック → 契約作成 → 入居者へ通知メール
// monthlyRentが0の場合は区画の家賃を使用する。
func (s *Service) CreateTenancy(ctx context.Context, ownerID, unitID, tenantName, tenantEmail string, monthlyRent int64, startDate time.Time) (*model.Tenancy, error) {
	if tenantName == "" || tenantEmail == "" {
		return nil, fmt.Errorf("tenant name and email are required")
	}

	// 1. 区画と所有権の検証
	unit, property, err := s.requireOwnedUnit(ctx, ownerID, unitID)
	if err != nil {
		return nil, err
	}

	// 2. 同一区画の有効契約の重複チェック
	existing, err := s.tenancyRepo.FindActiveByUnitID(ctx, unitID)
	if err != nil {
		return nil, fmt.Errorf("有効契約の確認に失敗しました: %w", err)
	}
	if existing != nil {
		return nil, model.NewUnitOccupiedError(unitID)
	}

	// 3. 契約の作成
	if monthlyRent <= 0 {
		monthlyRent = unit.MonthlyRent
	}

	now := time.Now()
	tenancy := &model.Tenancy{
		ID:          uuid.New().String(),
		UnitID:      unitID,
		TenantName:  tenantName,
		TenantEmail: tenantEmail,
		MonthlyRent: monthlyRent,
		Currency:    unit.Currency,
		Status:      model.TenancyStatusActive,
		StartDate:   startDate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.tenancyRepo.Create(ctx, tenancy); err != nil {
		return nil, fmt.Errorf("契約の保存に失敗しました: %w", err)
	}

	// 4. 入居者への通知メール（失敗しても契約作成は成功扱い）
	subject := fmt.Sprintf("賃貸借契約のお知らせ: %s %s", property.Name, unit.Label)
	body := fmt.Sprintf(
		"<p>%s 様</p><p>%s（%s）の賃貸借契約が作成されました。</p><p>月額家賃: %s</p>",
		tenantName, property.Name, unit.Label, formatAmount(monthlyRent, unit.Currency),
	)
	if _, err := s.mailer.Enqueue(ctx, tenantEmail, subject, body); err != nil {
		slog.Error("failed to enqueue tenancy notification",
			slog.String("tenancy_id", tenancy.ID),
			slog.String("error", err.Error()),
		)
	}

	return tenancy, nil
}

// EndTenancy は契約を終了する。
func (s *Service) EndTenancy(ctx context.Context, ownerID, tenancyID string, endDate time.Time) error {
	tenancy, err := s.tenancyRepo.FindByID(ctx, tenancyID)
	if err != nil {
		return fmt.Errorf("契約の取得に失敗しました: %w", err)
	}
	if tenancy == nil {
		return model.NewTenancyNotFoundError(tenancyID)
	}

	if _, _, err := s.requireOwnedUnit(ctx, ownerID, tenancy.UnitID); err != nil {
		return err
	}

	if tenancy.Status == model.TenancyStatusEnded {
		return &model.APIError{
			Code:     model.ErrCodeTenancyEnded,
			Message:  fmt.Sprintf("この契約はすでに終了しています: %s", tenancyID),
			Category: "validation",
			Action:   "契約の状態を確認してください。",
		}
	}

	if err := s.tenancyRepo.End(ctx, tenancyID, endDate); err != nil {
		return fmt.Errorf("契約の終了に失敗しました: %w", err)
	}

	return nil
}

// ListTenancies は所有者の契約一覧を区画・物件情報付きで返す。
func (s *Service) ListTenancies(ctx context.Context, ownerID string) ([]repository.TenancyWithUnitInfo, error) {
	tenancies, err := s.tenancyRepo.ListByOwnerID(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("契約一覧の取得に失敗しました: %w", err)
	}
	return tenancies, nil
}

// requireOwnedUnit は区画の存在と、その物件の所有権を検証する。
func (s *Service) requireOwnedUnit(ctx context.Context, ownerID, unitID string) (*model.Unit, *model.Property, error) {
	unit, err := s.unitRepo.FindByID(ctx, unitID)
	if err != nil {
		return nil, nil, fmt.Errorf("区画の取得に失敗しました: %w", err)
	}
	if unit == nil {
		return nil, nil, &model.APIError{
			Code:     model.ErrCodeUnitNotFound,
			Message:  fmt.Sprintf("指定された区画が見つかりません: %s", unitID),
			Category: "validation",
			Action:   "区画IDを確認してください。",
		}
	}

	property, err := s.propertyRepo.FindByID(ctx, unit.PropertyID)
	if err != nil {
		return nil, nil, fmt.Errorf("物件の取得に失敗しました: %w", err)
	}
	if property == nil {
		return nil, nil, model.NewPropertyNotFoundError(unit.PropertyID)
	}
	if property.OwnerID != ownerID {
		return nil, nil, model.NewNotOwnerError()
	}

	return unit, property, nil
}

// formatAmount は最小通貨単位の金額を表示用文字列に変換する。
func formatAmount(amount int64, currency string) string {
	return fmt.Sprintf("%s %d.%02d", currency, amount/100, amount%100)
}
