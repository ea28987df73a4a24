package sqlite

import (
	"context"
	"errors"

	"copyflow/internal/store/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type tradeRepository struct {
	db *gorm.DB
}

// Insert ignores redeliveries: a trade whose (order_id, idempotency_key)
// pair already exists leaves the table untouched.
func (r *tradeRepository) Insert(ctx context.Context, trade *model.TradeModel) (bool, error) {
	if trade == nil {
		return false, errors.New("trade cannot be nil")
	}
	if trade.TS == 0 {
		trade.TS = model.NowMS()
	}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "order_id"}, {Name: "idempotency_key"}},
		DoNothing: true,
	}).Create(trade)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *tradeRepository) ListRecent(ctx context.Context, strategyID string, limit int) ([]model.TradeModel, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	var trades []model.TradeModel
	if err := r.db.WithContext(ctx).
		Where("strategy_id = ?", strategyID).
		Order("ts DESC, id DESC").
		Limit(limit).
		Find(&trades).Error; err != nil {
		return nil, err
	}
	return trades, nil
}
