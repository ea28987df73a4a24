package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"copyflow/internal/domain"
	"copyflow/internal/metrics"
	"copyflow/internal/rules"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func latencySampleCount(t *testing.T) uint64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, metrics.DispatchLatency.Write(&m))
	return m.GetHistogram().GetSampleCount()
}

type mockClient struct {
	mock.Mock
}

func (m *mockClient) Subscribers(ctx context.Context, strategyID string) ([]domain.Subscriber, error) {
	args := m.Called(ctx, strategyID)
	subs, _ := args.Get(0).([]domain.Subscriber)
	return subs, args.Error(1)
}

func (m *mockClient) RecentTrades(ctx context.Context, strategyID string, limit int) ([]domain.SourceTrade, error) {
	args := m.Called(ctx, strategyID, limit)
	trades, _ := args.Get(0).([]domain.SourceTrade)
	return trades, args.Error(1)
}

func (m *mockClient) PostExecution(ctx context.Context, exec domain.Execution, idemSuffix string) (time.Duration, error) {
	args := m.Called(ctx, exec, idemSuffix)
	return args.Get(0).(time.Duration), args.Error(1)
}

type staticResolver struct {
	rule rules.Rule
}

func (r staticResolver) Resolve(strategyID, symbol string) rules.Rule { return r.rule }

func testTrade(id int64) domain.SourceTrade {
	return domain.SourceTrade{
		TradeID:    id,
		StrategyID: "alpha",
		Symbol:     "BTC-PERP",
		Side:       domain.SideBuy,
		Qty:        0.5,
		Price:      60000,
		Timestamp:  time.Now(),
	}
}

func testSubscriber() domain.Subscriber {
	return domain.Subscriber{
		ID:             7,
		StrategyID:     "alpha",
		RiskMultiplier: 0.5,
		Enabled:        true,
	}
}

func newTestDispatcher(t *testing.T, client Client, opts Options) *Dispatcher {
	t.Helper()
	if opts.Strategies == nil {
		opts.Strategies = []string{"alpha"}
	}
	d, err := NewDispatcher(client, staticResolver{rule: rules.Rule{StepSize: 0.0001, Precision: 4}}, opts)
	require.NoError(t, err)
	return d
}

func TestDispatchesEachPairOnce(t *testing.T) {
	client := &mockClient{}
	client.On("Subscribers", mock.Anything, "alpha").
		Return([]domain.Subscriber{testSubscriber()}, nil).Twice()
	client.On("RecentTrades", mock.Anything, "alpha", 10).
		Return([]domain.SourceTrade{testTrade(42)}, nil).Twice()
	client.On("PostExecution", mock.Anything, mock.Anything, "").
		Return(10*time.Millisecond, nil).Once()

	d := newTestDispatcher(t, client, Options{})
	d.runCycle(context.Background())
	d.runCycle(context.Background())

	client.AssertExpectations(t)
}

func TestSubmissionCarriesSizedExecution(t *testing.T) {
	client := &mockClient{}
	client.On("Subscribers", mock.Anything, "alpha").
		Return([]domain.Subscriber{testSubscriber()}, nil)
	client.On("RecentTrades", mock.Anything, "alpha", 10).
		Return([]domain.SourceTrade{testTrade(42)}, nil)
	client.On("PostExecution", mock.Anything, mock.MatchedBy(func(e domain.Execution) bool {
		return e.StrategyID == "alpha" &&
			e.SubscriberID == 7 &&
			e.SignalTradeID == 42 &&
			e.Status == domain.ExecStatusSuccess &&
			e.CopiedQty == 0.25 &&
			e.RequestedQty == 0.5
	}), "").Return(time.Millisecond, nil).Once()

	d := newTestDispatcher(t, client, Options{})
	d.runCycle(context.Background())

	client.AssertExpectations(t)
}

func TestBelowMinimumNotionalIsSkippedWithoutLedgerWrite(t *testing.T) {
	client := &mockClient{}
	client.On("Subscribers", mock.Anything, "alpha").
		Return([]domain.Subscriber{testSubscriber()}, nil)
	client.On("RecentTrades", mock.Anything, "alpha", 10).
		Return([]domain.SourceTrade{testTrade(42)}, nil)

	d, err := NewDispatcher(client,
		staticResolver{rule: rules.Rule{StepSize: 0.0001, Precision: 4, MinNotional: 1e9}},
		Options{Strategies: []string{"alpha"}})
	require.NoError(t, err)

	d.runCycle(context.Background())

	client.AssertNotCalled(t, "PostExecution", mock.Anything, mock.Anything, mock.Anything)
	assert.False(t, d.seenFor("alpha", 7).Has(42), "skips are recomputed every cycle")
}

func TestSkippedPairDispatchesAfterMultiplierRaise(t *testing.T) {
	tiny := testSubscriber()
	tiny.RiskMultiplier = 1e-6
	raised := testSubscriber()
	raised.RiskMultiplier = 1

	client := &mockClient{}
	client.On("Subscribers", mock.Anything, "alpha").
		Return([]domain.Subscriber{tiny}, nil).Once()
	client.On("Subscribers", mock.Anything, "alpha").
		Return([]domain.Subscriber{raised}, nil).Once()
	client.On("RecentTrades", mock.Anything, "alpha", 10).
		Return([]domain.SourceTrade{testTrade(42)}, nil).Twice()
	client.On("PostExecution", mock.Anything, mock.MatchedBy(func(e domain.Execution) bool {
		return e.SignalTradeID == 42 && e.CopiedQty == 0.5
	}), "").Return(time.Millisecond, nil).Once()

	d, err := NewDispatcher(client,
		staticResolver{rule: rules.Rule{StepSize: 0.0001, Precision: 4, MinNotional: 1.0}},
		Options{Strategies: []string{"alpha"}})
	require.NoError(t, err)

	// First cycle skips the pair below minimum; the raised multiplier makes
	// the same trade dispatchable on the next cycle.
	d.runCycle(context.Background())
	d.runCycle(context.Background())

	client.AssertExpectations(t)
}

func TestFailureWritesErrorRecordAndRetriesNextCycle(t *testing.T) {
	client := &mockClient{}
	client.On("Subscribers", mock.Anything, "alpha").
		Return([]domain.Subscriber{testSubscriber()}, nil).Twice()
	client.On("RecentTrades", mock.Anything, "alpha", 10).
		Return([]domain.SourceTrade{testTrade(42)}, nil).Twice()
	client.On("PostExecution", mock.Anything, mock.MatchedBy(func(e domain.Execution) bool {
		return e.Status == domain.ExecStatusSuccess
	}), "").Return(time.Duration(0), errors.New("ledger down")).Twice()
	client.On("PostExecution", mock.Anything, mock.MatchedBy(func(e domain.Execution) bool {
		return e.Status == domain.ExecStatusError && e.Error != ""
	}), ":error").Return(time.Duration(0), nil).Twice()

	d := newTestDispatcher(t, client, Options{})
	d.runCycle(context.Background())
	// The failed pair is not marked seen and is retried.
	d.runCycle(context.Background())

	client.AssertExpectations(t)
	assert.False(t, d.seenFor("alpha", 7).Has(42))
}

func TestLatencyObservedOnlyForSuccessfulSubmits(t *testing.T) {
	client := &mockClient{}
	client.On("Subscribers", mock.Anything, "alpha").
		Return([]domain.Subscriber{testSubscriber()}, nil)
	client.On("RecentTrades", mock.Anything, "alpha", 10).
		Return([]domain.SourceTrade{testTrade(42)}, nil)
	client.On("PostExecution", mock.Anything, mock.Anything, "").
		Return(time.Duration(0), errors.New("ledger down")).Once()
	client.On("PostExecution", mock.Anything, mock.Anything, ":error").
		Return(time.Duration(0), nil).Once()
	client.On("PostExecution", mock.Anything, mock.Anything, "").
		Return(10*time.Millisecond, nil).Once()

	d := newTestDispatcher(t, client, Options{})

	before := latencySampleCount(t)
	d.runCycle(context.Background())
	assert.Equal(t, before, latencySampleCount(t), "failed submit must not enter the histogram")

	d.runCycle(context.Background())
	assert.Equal(t, before+1, latencySampleCount(t))
	client.AssertExpectations(t)
}

func TestDisabledCycleDoesNothing(t *testing.T) {
	client := &mockClient{}
	d := newTestDispatcher(t, client, Options{Disabled: true})
	d.runCycle(context.Background())
	client.AssertNotCalled(t, "Subscribers", mock.Anything, mock.Anything)
}

func TestStrategyErrorDoesNotStarveOthers(t *testing.T) {
	client := &mockClient{}
	client.On("Subscribers", mock.Anything, "alpha").
		Return(nil, errors.New("boom")).Once()
	client.On("Subscribers", mock.Anything, "beta").
		Return([]domain.Subscriber{{ID: 1, StrategyID: "beta", RiskMultiplier: 1, Enabled: true}}, nil).Once()
	client.On("RecentTrades", mock.Anything, "beta", 10).
		Return([]domain.SourceTrade{{
			TradeID: 5, StrategyID: "beta", Symbol: "ETH-PERP",
			Side: domain.SideSell, Qty: 1, Price: 3000, Timestamp: time.Now(),
		}}, nil).Once()
	client.On("PostExecution", mock.Anything, mock.Anything, "").
		Return(time.Millisecond, nil).Once()

	d := newTestDispatcher(t, client, Options{Strategies: []string{"alpha", "beta"}})
	d.runCycle(context.Background())

	client.AssertExpectations(t)
}

func TestCircuitOpenBlocksSubmissions(t *testing.T) {
	client := &mockClient{}
	sub := testSubscriber()
	trades := []domain.SourceTrade{testTrade(1), testTrade(2), testTrade(3)}
	client.On("Subscribers", mock.Anything, "alpha").Return([]domain.Subscriber{sub}, nil)
	client.On("RecentTrades", mock.Anything, "alpha", 10).Return(trades, nil)
	client.On("PostExecution", mock.Anything, mock.Anything, "").
		Return(time.Duration(0), errors.New("ledger down")).Twice()
	client.On("PostExecution", mock.Anything, mock.Anything, ":error").
		Return(time.Duration(0), nil).Twice()

	d := newTestDispatcher(t, client, Options{
		BreakerThreshold: 2,
		BreakerCooldown:  time.Hour,
	})
	d.runCycle(context.Background())

	// Two failures trip the breaker; the third pair never reaches the ledger.
	client.AssertExpectations(t)
}

func TestRunStopsOnCancel(t *testing.T) {
	client := &mockClient{}
	d := newTestDispatcher(t, client, Options{Disabled: true, PollInterval: time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("dispatcher did not stop on cancel")
	}
}

func TestSeenSetEvictsOldestAtCapacity(t *testing.T) {
	s := newSeenSet(3)
	for id := int64(1); id <= 4; id++ {
		s.Add(id)
	}
	assert.Equal(t, 3, s.Len())
	assert.False(t, s.Has(1))
	assert.True(t, s.Has(2))
	assert.True(t, s.Has(4))

	s.Add(2) // no duplicate growth
	assert.Equal(t, 3, s.Len())
}
