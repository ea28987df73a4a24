// Package domain defines the records exchanged between the dispatcher, the
// ledger API and the store. Payloads crossing a process boundary are decoded
// into these types and validated before use.
package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

func ParseSide(s string) (Side, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy", "long":
		return SideBuy, true
	case "sell", "short":
		return SideSell, true
	default:
		return "", false
	}
}

type ExecStatus string

const (
	ExecStatusPending ExecStatus = "pending"
	ExecStatusSuccess ExecStatus = "success"
	ExecStatusError   ExecStatus = "error"
)

func (s ExecStatus) Valid() bool {
	switch s {
	case ExecStatusPending, ExecStatusSuccess, ExecStatusError:
		return true
	default:
		return false
	}
}

var (
	ErrInvalidTrade      = errors.New("invalid source trade")
	ErrInvalidSubscriber = errors.New("invalid subscriber")
	ErrInvalidExecution  = errors.New("invalid execution")
)

// SourceTrade is one trade produced by a strategy bot. Immutable once
// ingested; the dispatcher only reads it.
type SourceTrade struct {
	TradeID    int64     `json:"tradeId"`
	StrategyID string    `json:"strategyId"`
	Symbol     string    `json:"symbol"`
	Side       Side      `json:"side"`
	Qty        float64   `json:"qty"`
	Price      float64   `json:"price"`
	Timestamp  time.Time `json:"ts"`
}

// Validate rejects trades the dispatcher must never size or submit.
func (t SourceTrade) Validate() error {
	switch {
	case t.TradeID <= 0:
		return fmt.Errorf("%w: missing trade id", ErrInvalidTrade)
	case strings.TrimSpace(t.StrategyID) == "":
		return fmt.Errorf("%w: missing strategy id", ErrInvalidTrade)
	case strings.TrimSpace(t.Symbol) == "":
		return fmt.Errorf("%w: missing symbol", ErrInvalidTrade)
	case t.Side != SideBuy && t.Side != SideSell:
		return fmt.Errorf("%w: bad side %q", ErrInvalidTrade, t.Side)
	case t.Qty <= 0:
		return fmt.Errorf("%w: qty must be > 0", ErrInvalidTrade)
	case t.Price <= 0:
		return fmt.Errorf("%w: price must be > 0", ErrInvalidTrade)
	}
	return nil
}

// Subscriber follows one strategy and receives scaled copies of its trades.
type Subscriber struct {
	ID             int64   `json:"id"`
	StrategyID     string  `json:"strategyId"`
	RiskMultiplier float64 `json:"riskMultiplier"`
	MaxLeverage    float64 `json:"maxLeverage"`
	MaxNotionalUSD float64 `json:"maxNotionalUsd"` // 0 = no cap
	Enabled        bool    `json:"enabled"`
	Notes          string  `json:"notes,omitempty"`
}

func (s Subscriber) Validate() error {
	switch {
	case strings.TrimSpace(s.StrategyID) == "":
		return fmt.Errorf("%w: missing strategy id", ErrInvalidSubscriber)
	case s.RiskMultiplier < 0:
		return fmt.Errorf("%w: risk multiplier must be >= 0", ErrInvalidSubscriber)
	case s.MaxNotionalUSD < 0:
		return fmt.Errorf("%w: max notional must be >= 0", ErrInvalidSubscriber)
	}
	return nil
}

// Execution is one subscriber's copy of one source trade, a ledger row.
// The triple (StrategyID, SubscriberID, SignalTradeID) is unique in storage.
type Execution struct {
	ID            int64      `json:"id"`
	StrategyID    string     `json:"strategyId"`
	SubscriberID  int64      `json:"subscriberId"`
	SignalTradeID int64      `json:"signalTradeId"`
	Side          Side       `json:"side"`
	RequestedQty  float64    `json:"qty"`
	Price         float64    `json:"price"`
	NotionalUSD   float64    `json:"notionalUsd"`
	CopiedQty     float64    `json:"copiedQty"`
	Status        ExecStatus `json:"status"`
	Error         string     `json:"error,omitempty"`
	LatencyMS     int64      `json:"latencyMs,omitempty"`
	CreatedAt     time.Time  `json:"ts"`
}

func (e Execution) Validate() error {
	switch {
	case strings.TrimSpace(e.StrategyID) == "":
		return fmt.Errorf("%w: missing strategy id", ErrInvalidExecution)
	case e.SubscriberID <= 0:
		return fmt.Errorf("%w: missing subscriber id", ErrInvalidExecution)
	case e.SignalTradeID <= 0:
		return fmt.Errorf("%w: missing signal trade id", ErrInvalidExecution)
	case e.Status != "" && !e.Status.Valid():
		return fmt.Errorf("%w: bad status %q", ErrInvalidExecution, e.Status)
	}
	return nil
}

// IdempotencyKey is the stable key for one logical (strategy, subscriber,
// trade) submission. Retries of the same submission reuse it verbatim.
func (e Execution) IdempotencyKey() string {
	return fmt.Sprintf("%s:%d:%d", e.StrategyID, e.SubscriberID, e.SignalTradeID)
}
