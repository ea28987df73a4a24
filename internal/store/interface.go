// Package store defines the persistence contracts for the copy-trade ledger.
package store

import (
	"context"
	"errors"

	"copyflow/internal/store/model"
)

// ErrNotFound is returned when a row targeted by id does not exist.
var ErrNotFound = errors.New("not found")

// Cursor is a keyset position: the (ts, id) pair of the last row the caller
// has seen. Transport layers encode it opaquely.
type Cursor struct {
	TS int64
	ID int64
}

// ExecutionQuery filters and paginates the ledger. When Cursor is set the
// query uses keyset pagination ordered by (ts, id); otherwise offset
// pagination with a total count.
type ExecutionQuery struct {
	StrategyID string
	StartMS    *int64
	EndMS      *int64
	Limit      int
	Offset     int
	Cursor     *Cursor
	Ascending  bool
}

type ExecutionPage struct {
	Items   []model.ExecutionModel
	Total   *int64 // offset mode only
	HasNext bool
	Next    *Cursor
	Prev    *Cursor
}

// SubscriberPatch applies only the fields that are non-nil.
type SubscriberPatch struct {
	RiskMultiplier *float64
	MaxLeverage    *float64
	MaxNotionalUSD *float64
	Enabled        *bool
	Notes          *string
}

type ExecutionRepository interface {
	// Upsert inserts the row, or, when the (strategy, subscriber, trade)
	// key already exists, updates status/error/notional_usd/copied_qty on
	// the existing row in a single atomic statement. Returns the row as
	// persisted.
	Upsert(ctx context.Context, exec *model.ExecutionModel) (*model.ExecutionModel, error)
	List(ctx context.Context, q ExecutionQuery) (ExecutionPage, error)
}

type SubscriberRepository interface {
	Create(ctx context.Context, sub *model.SubscriberModel) error
	// List returns subscribers, optionally restricted to one strategy and to
	// enabled rows only.
	List(ctx context.Context, strategyID string, enabledOnly bool, limit int) ([]model.SubscriberModel, error)
	Update(ctx context.Context, id int64, patch SubscriberPatch) (*model.SubscriberModel, error)
}

type TradeRepository interface {
	// Insert stores a trade unless its (order_id, idempotency_key) pair was
	// already ingested; reports whether a row was written.
	Insert(ctx context.Context, trade *model.TradeModel) (bool, error)
	// ListRecent returns the newest trades for a strategy, newest first.
	ListRecent(ctx context.Context, strategyID string, limit int) ([]model.TradeModel, error)
}

type Store interface {
	Executions() ExecutionRepository
	Subscribers() SubscriberRepository
	Trades() TradeRepository
	Close() error
}
