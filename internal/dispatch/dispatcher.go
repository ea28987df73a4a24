// Package dispatch runs the copy-trade loop: poll source trades and
// subscribers per strategy, size each copy through the risk transform and
// submit it to the execution ledger exactly once per
// (strategy, subscriber, trade) pair.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"copyflow/internal/domain"
	"copyflow/internal/logger"
	"copyflow/internal/metrics"
	"copyflow/internal/pkg/circuit"
	"copyflow/internal/risk"
	"copyflow/internal/rules"
)

// Client is the ledger API surface the dispatcher needs.
type Client interface {
	Subscribers(ctx context.Context, strategyID string) ([]domain.Subscriber, error)
	RecentTrades(ctx context.Context, strategyID string, limit int) ([]domain.SourceTrade, error)
	PostExecution(ctx context.Context, exec domain.Execution, idemSuffix string) (time.Duration, error)
}

// Resolver yields the quantization rule for a symbol.
type Resolver interface {
	Resolve(strategyID, symbol string) rules.Rule
}

type Options struct {
	Strategies       []string
	PollInterval     time.Duration
	TradeWindow      int
	SeenCacheSize    int
	Disabled         bool
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

// Dispatcher owns all dispatch state: the ledger client, the rule resolver,
// the per-pair seen caches and the submission circuit breaker.
type Dispatcher struct {
	client   Client
	resolver Resolver
	opts     Options
	breaker  *circuit.Breaker
	seen     map[string]*seenSet
}

func NewDispatcher(client Client, resolver Resolver, opts Options) (*Dispatcher, error) {
	if client == nil {
		return nil, fmt.Errorf("dispatcher requires a ledger client")
	}
	if resolver == nil {
		return nil, fmt.Errorf("dispatcher requires a rule resolver")
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 10 * time.Second
	}
	if opts.TradeWindow <= 0 {
		opts.TradeWindow = 10
	}
	if opts.SeenCacheSize <= 0 {
		opts.SeenCacheSize = 512
	}
	if opts.BreakerThreshold <= 0 {
		opts.BreakerThreshold = 8
	}
	if opts.BreakerCooldown <= 0 {
		opts.BreakerCooldown = 30 * time.Second
	}
	breaker := circuit.NewBreaker("ledger", opts.BreakerThreshold, opts.BreakerCooldown)
	breaker.OnStateChange(func(name string, from, to circuit.State) {
		open := 0.0
		if to == circuit.StateOpen {
			open = 1.0
		}
		metrics.CircuitOpen.WithLabelValues(name).Set(open)
		logger.Warnf("[dispatch] circuit %s: %s -> %s", name, from, to)
	})
	return &Dispatcher{
		client:   client,
		resolver: resolver,
		opts:     opts,
		breaker:  breaker,
		seen:     make(map[string]*seenSet),
	}, nil
}

// Run sweeps at a fixed interval until ctx is canceled. A cancellation lets
// the in-flight pair finish and stops before the next sweep.
func (d *Dispatcher) Run(ctx context.Context) error {
	metrics.Up.Set(1)
	defer metrics.Up.Set(0)
	if d.opts.Disabled {
		metrics.Disabled.Set(1)
		logger.Warnf("[dispatch] disabled by configuration, cycles are no-ops")
	} else {
		metrics.Disabled.Set(0)
	}
	logger.Infof("[dispatch] loop starting strategies=%v interval=%s window=%d",
		d.opts.Strategies, d.opts.PollInterval, d.opts.TradeWindow)

	ticker := time.NewTicker(d.opts.PollInterval)
	defer ticker.Stop()

	d.runCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			logger.Infof("[dispatch] loop stopping")
			return nil
		case <-ticker.C:
			d.runCycle(ctx)
		}
	}
}

func (d *Dispatcher) runCycle(ctx context.Context) {
	if d.opts.Disabled {
		return
	}
	for _, strategyID := range d.opts.Strategies {
		if ctx.Err() != nil {
			return
		}
		d.dispatchStrategy(ctx, strategyID)
	}
}

// dispatchStrategy handles one strategy per cycle. Errors are contained
// here so one broken strategy never starves the others.
func (d *Dispatcher) dispatchStrategy(ctx context.Context, strategyID string) {
	defer func() {
		if r := recover(); r != nil {
			metrics.DispatchErrors.WithLabelValues(strategyID, "panic").Inc()
			logger.Errorf("[dispatch] strategy %s panicked: %v", strategyID, r)
		}
	}()

	subs, err := d.client.Subscribers(ctx, strategyID)
	if err != nil {
		metrics.DispatchErrors.WithLabelValues(strategyID, "fetch_subscribers").Inc()
		logger.Errorf("[dispatch] fetch subscribers failed strategy=%s err=%v", strategyID, err)
		return
	}
	if len(subs) == 0 {
		return
	}
	trades, err := d.client.RecentTrades(ctx, strategyID, d.opts.TradeWindow)
	if err != nil {
		metrics.DispatchErrors.WithLabelValues(strategyID, "fetch_trades").Inc()
		logger.Errorf("[dispatch] fetch trades failed strategy=%s err=%v", strategyID, err)
		return
	}
	if len(trades) == 0 {
		return
	}

	// Trades arrive newest first and are dispatched in that order so the
	// freshest signal is copied promptly.
	for _, trade := range trades {
		if ctx.Err() != nil {
			return
		}
		if err := trade.Validate(); err != nil {
			metrics.DispatchErrors.WithLabelValues(strategyID, "invalid_trade").Inc()
			logger.Warnf("[dispatch] skipping invalid trade strategy=%s trade=%d err=%v", strategyID, trade.TradeID, err)
			continue
		}
		rule := d.resolver.Resolve(strategyID, trade.Symbol)
		for i := range subs {
			if ctx.Err() != nil {
				return
			}
			d.dispatchPair(ctx, trade, subs[i], rule)
		}
	}
}

// dispatchPair sizes and submits one (trade, subscriber) copy. Only a
// successful submission marks the pair as seen; skips are recomputed every
// cycle, and failed pairs are retried on the next cycle and collapse onto the
// same ledger row via the idempotency key.
func (d *Dispatcher) dispatchPair(ctx context.Context, trade domain.SourceTrade, sub domain.Subscriber, rule rules.Rule) {
	defer func() {
		if r := recover(); r != nil {
			metrics.DispatchErrors.WithLabelValues(trade.StrategyID, "panic").Inc()
			logger.Errorf("[dispatch] pair panicked strategy=%s subscriber=%d trade=%d: %v",
				trade.StrategyID, sub.ID, trade.TradeID, r)
		}
	}()
	if !sub.Enabled || sub.StrategyID != trade.StrategyID {
		return
	}
	cache := d.seenFor(trade.StrategyID, sub.ID)
	if cache.Has(trade.TradeID) {
		return
	}

	qty, notional, ok := risk.CopyQuantity(trade.Qty, trade.Price, sub, rule)
	if !ok {
		// Skips are not recorded as seen: they cost nothing to recompute and
		// a raised multiplier or relaxed rule can make the pair dispatchable
		// while the trade is still inside the poll window.
		metrics.Dispatch.WithLabelValues(trade.StrategyID, "skipped").Inc()
		logger.Debugf("[dispatch] skip strategy=%s subscriber=%d trade=%d symbol=%s (below minimum)",
			trade.StrategyID, sub.ID, trade.TradeID, trade.Symbol)
		return
	}

	if !d.breaker.Allow() {
		metrics.DispatchErrors.WithLabelValues(trade.StrategyID, "circuit_open").Inc()
		return
	}

	exec := domain.Execution{
		StrategyID:    trade.StrategyID,
		SubscriberID:  sub.ID,
		SignalTradeID: trade.TradeID,
		Side:          trade.Side,
		RequestedQty:  trade.Qty,
		Price:         trade.Price,
		NotionalUSD:   notional,
		CopiedQty:     qty,
		Status:        domain.ExecStatusSuccess,
	}
	latency, err := d.client.PostExecution(ctx, exec, "")
	if err != nil {
		d.breaker.RecordFailure()
		metrics.Dispatch.WithLabelValues(trade.StrategyID, "error").Inc()
		metrics.DispatchErrors.WithLabelValues(trade.StrategyID, "submit").Inc()
		logger.Errorf("[dispatch] submit failed strategy=%s subscriber=%d trade=%d err=%v",
			trade.StrategyID, sub.ID, trade.TradeID, err)
		d.reportFailure(ctx, exec, latency, err)
		return
	}
	d.breaker.RecordSuccess()
	cache.Add(trade.TradeID)
	metrics.DispatchLatency.Observe(latency.Seconds())
	metrics.Dispatch.WithLabelValues(trade.StrategyID, "success").Inc()
	logger.Infof("[dispatch] copied strategy=%s subscriber=%d trade=%d symbol=%s qty=%.8f notional=%.2f",
		trade.StrategyID, sub.ID, trade.TradeID, trade.Symbol, qty, notional)
}

// reportFailure writes a best-effort error row so operators can see the pair
// failed. Its own failure is only logged.
func (d *Dispatcher) reportFailure(ctx context.Context, exec domain.Execution, latency time.Duration, cause error) {
	exec.Status = domain.ExecStatusError
	exec.Error = cause.Error()
	exec.LatencyMS = latency.Milliseconds()
	if _, err := d.client.PostExecution(ctx, exec, ":error"); err != nil {
		logger.Warnf("[dispatch] error record failed strategy=%s subscriber=%d trade=%d err=%v",
			exec.StrategyID, exec.SubscriberID, exec.SignalTradeID, err)
	}
}

func (d *Dispatcher) seenFor(strategyID string, subscriberID int64) *seenSet {
	key := fmt.Sprintf("%s:%d", strategyID, subscriberID)
	cache, ok := d.seen[key]
	if !ok {
		cache = newSeenSet(d.opts.SeenCacheSize)
		d.seen[key] = cache
	}
	return cache
}
