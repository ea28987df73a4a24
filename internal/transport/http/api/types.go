package apihttp

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"copyflow/internal/domain"
	"copyflow/internal/store"
	"copyflow/internal/store/model"
)

// subscribeRequest creates one follower of a strategy.
type subscribeRequest struct {
	StrategyID     string  `json:"strategyId"`
	RiskMultiplier float64 `json:"riskMultiplier"`
	MaxLeverage    float64 `json:"maxLeverage"`
	MaxNotionalUSD float64 `json:"maxNotionalUsd"`
	Enabled        *bool   `json:"enabled"`
	Notes          string  `json:"notes"`
}

// subscriberPatchRequest carries only the fields present in the payload.
type subscriberPatchRequest struct {
	RiskMultiplier *float64 `json:"riskMultiplier"`
	MaxLeverage    *float64 `json:"maxLeverage"`
	MaxNotionalUSD *float64 `json:"maxNotionalUsd"`
	Enabled        *bool    `json:"enabled"`
	Notes          *string  `json:"notes"`
}

// tradeIngestRequest is one bot-reported fill. The (orderId, idempotencyKey)
// pair dedupes redeliveries.
type tradeIngestRequest struct {
	StrategyID     string                 `json:"strategyId"`
	OrderID        string                 `json:"orderId"`
	IdempotencyKey string                 `json:"idempotencyKey"`
	Symbol         string                 `json:"symbol"`
	Side           string                 `json:"side"`
	Qty            float64                `json:"qty"`
	Price          float64                `json:"price"`
	TS             int64                  `json:"ts"` // unix ms, 0 = now
	Meta           map[string]interface{} `json:"meta"`
}

func toSubscriber(m model.SubscriberModel) domain.Subscriber {
	return domain.Subscriber{
		ID:             m.ID,
		StrategyID:     m.StrategyID,
		RiskMultiplier: m.RiskMultiplier,
		MaxLeverage:    m.MaxLeverage,
		MaxNotionalUSD: m.MaxNotionalUSD,
		Enabled:        m.Enabled == 1,
		Notes:          m.Notes,
	}
}

func toSourceTrade(m model.TradeModel) domain.SourceTrade {
	return domain.SourceTrade{
		TradeID:    m.ID,
		StrategyID: m.StrategyID,
		Symbol:     m.Symbol,
		Side:       domain.Side(m.Side),
		Qty:        m.Qty,
		Price:      m.Price,
		Timestamp:  time.UnixMilli(m.TS).UTC(),
	}
}

func toExecution(m model.ExecutionModel) domain.Execution {
	return domain.Execution{
		ID:            m.ID,
		StrategyID:    m.StrategyID,
		SubscriberID:  m.SubscriberID,
		SignalTradeID: m.SignalTradeID,
		Side:          domain.Side(m.Side),
		RequestedQty:  m.Qty,
		Price:         m.Price,
		NotionalUSD:   m.NotionalUSD,
		CopiedQty:     m.CopiedQty,
		Status:        domain.ExecStatus(m.Status),
		Error:         m.Error,
		LatencyMS:     m.LatencyMS,
		CreatedAt:     time.UnixMilli(m.TS).UTC(),
	}
}

// encodeCursor packs a keyset position into an opaque token.
func encodeCursor(c store.Cursor) string {
	raw := fmt.Sprintf("%d::%d", c.TS, c.ID)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

func decodeCursor(token string) (*store.Cursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(token))
	if err != nil {
		return nil, fmt.Errorf("bad cursor encoding: %w", err)
	}
	parts := strings.Split(string(raw), "::")
	if len(parts) != 2 {
		return nil, fmt.Errorf("bad cursor format")
	}
	ts, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bad cursor ts: %w", err)
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bad cursor id: %w", err)
	}
	return &store.Cursor{TS: ts, ID: id}, nil
}

// parseTimeParam accepts ISO-8601 datetimes and epoch seconds or
// milliseconds, and normalizes to unix milliseconds. Empty input means
// no bound.
func parseTimeParam(val string) (*int64, error) {
	val = strings.TrimSpace(val)
	if val == "" {
		return nil, nil
	}
	if n, err := strconv.ParseInt(val, 10, 64); err == nil {
		// Values past 1e12 are already milliseconds; plain seconds stay
		// below that until the year 33658.
		if n < 1_000_000_000_000 {
			n *= 1000
		}
		return &n, nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, val); err == nil {
			ms := t.UnixMilli()
			return &ms, nil
		}
	}
	return nil, fmt.Errorf("unrecognized datetime %q", val)
}
