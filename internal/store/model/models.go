package model

import (
	"time"

	"gorm.io/datatypes"
)

// SubscriberModel is one copy-trade follower of a strategy.
type SubscriberModel struct {
	ID             int64   `gorm:"column:id;primaryKey;autoIncrement"`
	StrategyID     string  `gorm:"column:strategy_id;index"`
	RiskMultiplier float64 `gorm:"column:risk_multiplier"`
	MaxLeverage    float64 `gorm:"column:max_leverage"`
	MaxNotionalUSD float64 `gorm:"column:max_notional_usd"`
	Enabled        int     `gorm:"column:enabled"` // 1 true, 0 false
	Notes          string  `gorm:"column:notes"`
	CreatedAtUnix  int64   `gorm:"column:created_at"`
}

func (SubscriberModel) TableName() string { return "copy_subscribers" }

// TradeModel is an ingested source trade. The (order_id, idempotency_key)
// pair dedupes redelivered bot reports.
type TradeModel struct {
	ID             int64          `gorm:"column:id;primaryKey;autoIncrement"`
	StrategyID     string         `gorm:"column:strategy_id;index"`
	OrderID        string         `gorm:"column:order_id;uniqueIndex:idx_trades_dedupe,priority:1"`
	IdempotencyKey string         `gorm:"column:idempotency_key;uniqueIndex:idx_trades_dedupe,priority:2"`
	TS             int64          `gorm:"column:ts;index"` // unix ms
	Symbol         string         `gorm:"column:symbol;index"`
	Side           string         `gorm:"column:side"`
	Qty            float64        `gorm:"column:qty"`
	Price          float64        `gorm:"column:price"`
	Meta           datatypes.JSON `gorm:"column:meta;type:TEXT"`
}

func (TradeModel) TableName() string { return "trades" }

// ExecutionModel is the ledger row: one subscriber's copy of one source
// trade. idx_copy_exec_key guarantees a triple exists at most once no
// matter how often it is submitted.
type ExecutionModel struct {
	ID            int64   `gorm:"column:id;primaryKey;autoIncrement"`
	StrategyID    string  `gorm:"column:strategy_id;index;uniqueIndex:idx_copy_exec_key,priority:1"`
	SubscriberID  int64   `gorm:"column:subscriber_id;uniqueIndex:idx_copy_exec_key,priority:2"`
	SignalTradeID int64   `gorm:"column:signal_trade_id;uniqueIndex:idx_copy_exec_key,priority:3"`
	Side          string  `gorm:"column:side"`
	Qty           float64 `gorm:"column:qty"`
	Price         float64 `gorm:"column:price"`
	NotionalUSD   float64 `gorm:"column:notional_usd"`
	CopiedQty     float64 `gorm:"column:copied_qty"`
	Status        string  `gorm:"column:status"`
	Error         string  `gorm:"column:error"`
	LatencyMS     int64   `gorm:"column:latency_ms"`
	TS            int64   `gorm:"column:ts;index"` // unix ms, set on insert, never updated
}

func (ExecutionModel) TableName() string { return "copy_executions" }

func NowMS() int64 { return time.Now().UnixMilli() }
