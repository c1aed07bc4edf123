package db

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/rovshanmuradov/tipstark/internal/domain"
	"github.com/rovshanmuradov/tipstark/internal/store"
)

var _ store.RemoteStore = (*Store)(nil)

func (s *Store) CreateTip(ctx context.Context, tip *domain.Tip) error {
	if tip == nil || tip.ID == "" {
		return store.ErrInvalidInput
	}
	err := s.db.WithContext(ctx).Create(tipFromDomain(tip)).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return store.ErrDuplicateKey
	}
	if err != nil {
		return fmt.Errorf("create tip: %w", err)
	}
	return nil
}

func (s *Store) UpdateTipStatus(ctx context.Context, id string, status domain.TipStatus) error {
	if !status.Valid() {
		return store.ErrInvalidInput
	}
	res := s.db.WithContext(ctx).Model(&Tip{}).
		Where("id = ? AND status = ?", id, string(domain.TipPending)).
		Update("status", string(status))
	if res.Error != nil {
		return fmt.Errorf("update tip status: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&Tip{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return fmt.Errorf("update tip status: %w", err)
	}
	if count == 0 {
		return store.ErrNotFound
	}
	return store.ErrStatusConflict
}

func (s *Store) ListTips(ctx context.Context, q store.TipQuery) ([]*domain.Tip, error) {
	tx := s.db.WithContext(ctx).Model(&Tip{})
	if q.Sender != "" {
		tx = tx.Where("sender = ?", domain.NormalizeAddress(q.Sender))
	}

	var rows []Tip
	if err := tx.Order("timestamp DESC").Limit(q.EffectiveLimit()).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list tips: %w", err)
	}
	tips := make([]*domain.Tip, 0, len(rows))
	for i := range rows {
		tips = append(tips, rows[i].toDomain())
	}
	return tips, nil
}

func (s *Store) GetProfile(ctx context.Context, address string) (*domain.Creator, error) {
	var p Profile
	err := s.db.WithContext(ctx).Where("address = ?", domain.NormalizeAddress(address)).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return p.toDomain(), nil
}

func (s *Store) UpsertProfile(ctx context.Context, c *domain.Creator) error {
	if c == nil || c.Address == "" {
		return store.ErrInvalidInput
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "address"}},
		UpdateAll: true,
	}).Create(profileFromDomain(c)).Error
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

func (s *Store) ListProfiles(ctx context.Context) ([]*domain.Creator, error) {
	var rows []Profile
	if err := s.db.WithContext(ctx).Order("address").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	creators := make([]*domain.Creator, 0, len(rows))
	for i := range rows {
		creators = append(creators, rows[i].toDomain())
	}
	return creators, nil
}

func (s *Store) IncrementTipCount(ctx context.Context, address string) error {
	res := s.db.WithContext(ctx).Model(&Profile{}).
		Where("address = ?", domain.NormalizeAddress(address)).
		UpdateColumn("tip_count", gorm.Expr("tip_count + 1"))
	if res.Error != nil {
		return fmt.Errorf("increment tip count: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}
