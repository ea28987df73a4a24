package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseSide(t *testing.T) {
	cases := map[string]struct {
		side Side
		ok   bool
	}{
		"buy":   {SideBuy, true},
		" BUY ": {SideBuy, true},
		"long":  {SideBuy, true},
		"sell":  {SideSell, true},
		"short": {SideSell, true},
		"hold":  {"", false},
		"":      {"", false},
	}
	for in, want := range cases {
		side, ok := ParseSide(in)
		assert.Equal(t, want.ok, ok, "input %q", in)
		assert.Equal(t, want.side, side, "input %q", in)
	}
}

func TestSourceTradeValidate(t *testing.T) {
	valid := SourceTrade{
		TradeID: 1, StrategyID: "alpha", Symbol: "BTC-PERP",
		Side: SideBuy, Qty: 0.5, Price: 60000, Timestamp: time.Now(),
	}
	assert.NoError(t, valid.Validate())

	for name, mutate := range map[string]func(*SourceTrade){
		"missing trade id": func(tr *SourceTrade) { tr.TradeID = 0 },
		"missing strategy": func(tr *SourceTrade) { tr.StrategyID = " " },
		"missing symbol":   func(tr *SourceTrade) { tr.Symbol = "" },
		"bad side":         func(tr *SourceTrade) { tr.Side = "hold" },
		"zero qty":         func(tr *SourceTrade) { tr.Qty = 0 },
		"negative price":   func(tr *SourceTrade) { tr.Price = -1 },
	} {
		tr := valid
		mutate(&tr)
		assert.ErrorIs(t, tr.Validate(), ErrInvalidTrade, name)
	}
}

func TestExecutionValidateAndKey(t *testing.T) {
	exec := Execution{StrategyID: "alpha", SubscriberID: 7, SignalTradeID: 42}
	assert.NoError(t, exec.Validate())
	assert.Equal(t, "alpha:7:42", exec.IdempotencyKey())

	exec.Status = "done"
	assert.ErrorIs(t, exec.Validate(), ErrInvalidExecution)

	exec.Status = ExecStatusSuccess
	assert.NoError(t, exec.Validate())

	exec.SubscriberID = 0
	assert.ErrorIs(t, exec.Validate(), ErrInvalidExecution)
}

func TestSubscriberValidate(t *testing.T) {
	assert.NoError(t, Subscriber{StrategyID: "alpha", RiskMultiplier: 0.5}.Validate())
	assert.ErrorIs(t, Subscriber{RiskMultiplier: 1}.Validate(), ErrInvalidSubscriber)
	assert.ErrorIs(t, Subscriber{StrategyID: "alpha", RiskMultiplier: -1}.Validate(), ErrInvalidSubscriber)
	assert.ErrorIs(t, Subscriber{StrategyID: "alpha", MaxNotionalUSD: -1}.Validate(), ErrInvalidSubscriber)
}
