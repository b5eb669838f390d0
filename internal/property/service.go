// Package property は物件・区画管理のドメインロジックを提供する。
package property

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/rentman/internal/model"
	"github.com/hitoshi/rentman/internal/repository"
)

// defaultCurrency は金額に通貨指定がない場合の既定通貨。
const defaultCurrency = "KES"

// Service は物件・区画管理のサービス層。
// すべての操作は所有者スコープで行い、他ユーザーの物件は見えない。
type Service struct {
	propertyRepo repository.PropertyRepository
	unitRepo     repository.UnitRepository
}

// NewService はServiceを生成する。
func NewService(propertyRepo repository.PropertyRepository, unitRepo repository.UnitRepository) *Service {
	return &Service{
		propertyRepo: propertyRepo,
		unitRepo:     unitRepo,
	}
}

// CreateProperty は物件を作成する。
func (s *Service) CreateProperty(ctx context.Context, ownerID, name, address string) (*model.Property, error) {
	if name == "" {
		return nil, fmt.Errorf("property name is required")
	}

	now := time.Now()
	property := &model.Property{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		Name:      name,
		Address:   address,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.propertyRepo.Create(ctx, property); err != nil {
		return nil, fmt.Errorf("物件の保存に失敗しました: %w", err)
	}

	return property, nil
}

// GetProperty は所有者の物件を取得する。
// 他ユーザーの物件を指定した場合は所有権エラーを返す。
func (s *Service) GetProperty(ctx context.Context, ownerID, propertyID string) (*model.Property, error) {
	return s.requireOwned(ctx, ownerID, propertyID)
}

// ListProperties は所有者の物件一覧を返す。
func (s *Service) ListProperties(ctx context.Context, ownerID string) ([]*model.Property, error) {
	properties, err := s.propertyRepo.ListByOwnerID(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("物件一覧の取得に失敗しました: %w", err)
	}
	return properties, nil
}

// UpdateProperty は物件情報を更新する。
func (s *Service) UpdateProperty(ctx context.Context, ownerID, propertyID, name, address string) (*model.Property, error) {
	property, err := s.requireOwned(ctx, ownerID, propertyID)
	if err != nil {
		return nil, err
	}

	if name != "" {
		property.Name = name
	}
	if address != "" {
		property.Address = address
	}
	property.UpdatedAt = time.Now()

	if err := s.propertyRepo.Update(ctx, property); err != nil {
		return nil, fmt.Errorf("物件の更新に失敗しました: %w", err)
	}

	return property, nil
}

// DeleteProperty は物件を削除する。区画・契約はCASCADE削除される。
func (s *Service) DeleteProperty(ctx context.Context, ownerID, propertyID string) error {
	if _, err := s.requireOwned(ctx, ownerID, propertyID); err != nil {
		return err
	}

	if err := s.propertyRepo.DeleteByID(ctx, propertyID); err != nil {
		return fmt.Errorf("物件の削除に失敗しました: %w", err)
	}

	return nil
}

// AddUnit は物件に区画を追加する。
func (s *Service) AddUnit(ctx context.Context, ownerID, propertyID, label string, monthlyRent int64, currency string) (*model.Unit, error) {
	if label == "" {
		return nil, fmt.Errorf("unit label is required")
	}
	if monthlyRent <= 0 {
		return nil, fmt.Errorf("monthly rent must be positive")
	}
	if currency == "" {
		currency = defaultCurrency
	}

	if _, err := s.requireOwned(ctx, ownerID, propertyID); err != nil {
		return nil, err
	}

	now := time.Now()
	unit := &model.Unit{
		ID:          uuid.New().String(),
		PropertyID:  propertyID,
		Label:       label,
		MonthlyRent: monthlyRent,
		Currency:    currency,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.unitRepo.Create(ctx, unit); err != nil {
		return nil, fmt.Errorf("区画の保存に失敗しました: %w", err)
	}

	return unit, nil
}

// ListUnits は物件内の区画一覧を返す。
func (s *Service) ListUnits(ctx context.Context, ownerID, propertyID string) ([]*model.Unit, error) {
	if _, err := s.requireOwned(ctx, ownerID, propertyID); err != nil {
		return nil, err
	}

	units, err := s.unitRepo.ListByPropertyID(ctx, propertyID)
	if err != nil {
		return nil, fmt.Errorf("区画一覧の取得に失敗しました: %w", err)
	}

	return units, nil
}

// DeleteUnit は区画を削除する。
func (s *Service) DeleteUnit(ctx context.Context, ownerID, unitID string) error {
	unit, err := s.unitRepo.FindByID(ctx, unitID)
	if err != nil {
		return fmt.Errorf("区画の取得に失敗しました: %w", err)
	}
	if unit == nil {
		return &model.APIError{
			Code:     model.ErrCodeUnitNotFound,
			Message:  fmt.Sprintf("指定された区画が見つかりません: %s", unitID),
			Category: "validation",
			Action:   "区画IDを確認してください。",
		}
	}

	if _, err := s.requireOwned(ctx, ownerID, unit.PropertyID); err != nil {
		return err
	}

	if err := s.unitRepo.DeleteByID(ctx, unitID); err != nil {
		return fmt.Errorf("区画の削除に失敗しました: %w", err)
	}

	return nil
}

// requireOwned は物件の存在と所有権を検証する。
func (s *Service) requireOwned(ctx context.Context, ownerID, propertyID string) (*model.Property, error) {
	property, err := s.propertyRepo.FindByID(ctx, propertyID)
	if err != nil {
		return nil, fmt.Errorf("物件の取得に失敗しました: %w", err)
	}
	if property == nil {
		return nil, model.NewPropertyNotFoundError(propertyID)
	}
	if property.OwnerID != ownerID {
		return nil, model.NewNotOwnerError()
	}
	return property, nil
}
