package sqlite

import (
	"context"

	"copyflow/internal/store"
	"copyflow/internal/store/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// executionRepository implements store.ExecutionRepository on SQLite.
type executionRepository struct {
	db *gorm.DB
}

const (
	defaultPageSize = 100
	maxPageSize     = 1000
)

// Upsert writes the ledger row as a single insert-or-update-by-key
// statement. The unique (strategy_id, subscriber_id, signal_trade_id) index
// arbitrates concurrent submissions: one insert wins, every other submission
// takes the update path. Only status, error, notional_usd and copied_qty are
// touched on update, and only when the incoming value is set; ts and row
// identity stay as inserted.
func (r *executionRepository) Upsert(ctx context.Context, exec *model.ExecutionModel) (*model.ExecutionModel, error) {
	if exec.TS == 0 {
		exec.TS = model.NowMS()
	}
	if exec.Status == "" {
		exec.Status = "pending"
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "strategy_id"}, {Name: "subscriber_id"}, {Name: "signal_trade_id"},
		},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"status":       gorm.Expr("CASE WHEN excluded.status <> '' THEN excluded.status ELSE status END"),
			"error":        gorm.Expr("CASE WHEN excluded.error <> '' THEN excluded.error ELSE error END"),
			"notional_usd": gorm.Expr("CASE WHEN excluded.notional_usd <> 0 THEN excluded.notional_usd ELSE notional_usd END"),
			"copied_qty":   gorm.Expr("CASE WHEN excluded.copied_qty <> 0 THEN excluded.copied_qty ELSE copied_qty END"),
		}),
	}).Create(exec).Error
	if err != nil {
		return nil, err
	}

	var row model.ExecutionModel
	err = r.db.WithContext(ctx).
		Where("strategy_id = ? AND subscriber_id = ? AND signal_trade_id = ?",
			exec.StrategyID, exec.SubscriberID, exec.SignalTradeID).
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *executionRepository) List(ctx context.Context, q store.ExecutionQuery) (store.ExecutionPage, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	filtered := func() *gorm.DB {
		tx := r.db.WithContext(ctx).Model(&model.ExecutionModel{})
		if q.StrategyID != "" {
			tx = tx.Where("strategy_id = ?", q.StrategyID)
		}
		if q.StartMS != nil {
			tx = tx.Where("ts >= ?", *q.StartMS)
		}
		if q.EndMS != nil {
			tx = tx.Where("ts <= ?", *q.EndMS)
		}
		return tx
	}

	if q.Cursor != nil {
		return r.listKeyset(filtered, q, limit)
	}

	var total int64
	if err := filtered().Count(&total).Error; err != nil {
		return store.ExecutionPage{}, err
	}
	order := "ts DESC, id DESC"
	if q.Ascending {
		order = "ts ASC, id ASC"
	}
	var items []model.ExecutionModel
	if err := filtered().Order(order).Offset(q.Offset).Limit(limit).Find(&items).Error; err != nil {
		return store.ExecutionPage{}, err
	}
	return store.ExecutionPage{
		Items:   items,
		Total:   &total,
		HasNext: int64(q.Offset+len(items)) < total,
	}, nil
}

// listKeyset pages past the cursor row using the (ts, id) ordering. It reads
// one row beyond the page to detect a next page, and walks the preceding
// page in reverse to produce a deterministic prev cursor.
func (r *executionRepository) listKeyset(filtered func() *gorm.DB, q store.ExecutionQuery, limit int) (store.ExecutionPage, error) {
	cur := *q.Cursor

	tx := filtered()
	if q.Ascending {
		tx = tx.Where("ts > ? OR (ts = ? AND id > ?)", cur.TS, cur.TS, cur.ID).
			Order("ts ASC, id ASC")
	} else {
		tx = tx.Where("ts < ? OR (ts = ? AND id < ?)", cur.TS, cur.TS, cur.ID).
			Order("ts DESC, id DESC")
	}
	var rows []model.ExecutionModel
	if err := tx.Limit(limit + 1).Find(&rows).Error; err != nil {
		return store.ExecutionPage{}, err
	}

	page := store.ExecutionPage{HasNext: len(rows) > limit}
	if page.HasNext {
		rows = rows[:limit]
	}
	page.Items = rows
	if len(rows) == 0 {
		return page, nil
	}
	if page.HasNext {
		last := rows[len(rows)-1]
		page.Next = &store.Cursor{TS: last.TS, ID: last.ID}
	}

	// rows preceding the first item, in reverse order; the last of them is
	// the boundary the previous page starts after.
	first := rows[0]
	prevTx := filtered()
	if q.Ascending {
		prevTx = prevTx.Where("ts < ? OR (ts = ? AND id < ?)", first.TS, first.TS, first.ID).
			Order("ts DESC, id DESC")
	} else {
		prevTx = prevTx.Where("ts > ? OR (ts = ? AND id > ?)", first.TS, first.TS, first.ID).
			Order("ts ASC, id ASC")
	}
	var preceding []model.ExecutionModel
	if err := prevTx.Limit(limit).Find(&preceding).Error; err != nil {
		return store.ExecutionPage{}, err
	}
	if len(preceding) > 0 {
		pred := preceding[len(preceding)-1]
		page.Prev = &store.Cursor{TS: pred.TS, ID: pred.ID}
	}
	return page, nil
}
