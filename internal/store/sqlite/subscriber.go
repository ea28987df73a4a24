package sqlite

import (
	"context"
	"errors"

	"copyflow/internal/store"
	"copyflow/internal/store/model"

	"gorm.io/gorm"
)

type subscriberRepository struct {
	db *gorm.DB
}

func (r *subscriberRepository) Create(ctx context.Context, sub *model.SubscriberModel) error {
	if sub == nil {
		return errors.New("subscriber cannot be nil")
	}
	if sub.CreatedAtUnix == 0 {
		sub.CreatedAtUnix = model.NowMS()
	}
	return r.db.WithContext(ctx).Create(sub).Error
}

func (r *subscriberRepository) List(ctx context.Context, strategyID string, enabledOnly bool, limit int) ([]model.SubscriberModel, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	tx := r.db.WithContext(ctx).Model(&model.SubscriberModel{})
	if strategyID != "" {
		tx = tx.Where("strategy_id = ?", strategyID)
	}
	if enabledOnly {
		tx = tx.Where("enabled = ?", 1)
	}
	var subs []model.SubscriberModel
	if err := tx.Order("id ASC").Limit(limit).Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *subscriberRepository) Update(ctx context.Context, id int64, patch store.SubscriberPatch) (*model.SubscriberModel, error) {
	updates := map[string]interface{}{}
	if patch.RiskMultiplier != nil {
		updates["risk_multiplier"] = *patch.RiskMultiplier
	}
	if patch.MaxLeverage != nil {
		updates["max_leverage"] = *patch.MaxLeverage
	}
	if patch.MaxNotionalUSD != nil {
		updates["max_notional_usd"] = *patch.MaxNotionalUSD
	}
	if patch.Enabled != nil {
		enabled := 0
		if *patch.Enabled {
			enabled = 1
		}
		updates["enabled"] = enabled
	}
	if patch.Notes != nil {
		updates["notes"] = *patch.Notes
	}
	if len(updates) > 0 {
		res := r.db.WithContext(ctx).Model(&model.SubscriberModel{}).Where("id = ?", id).Updates(updates)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			return nil, store.ErrNotFound
		}
	}
	var sub model.SubscriberModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}
