// Package rules resolves per-symbol quantization rules (step size, decimal
// precision, minimum notional). The table is static configuration; a symbol
// with no entry is a handled state that falls back to a safe default rule.
package rules

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"copyflow/internal/logger"
	"copyflow/internal/metrics"
	"copyflow/internal/pkg/ratelimit"

	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Rule describes how a copy quantity must be quantized for one symbol.
type Rule struct {
	StepSize    float64 `toml:"step_size" yaml:"step_size"`
	Precision   int     `toml:"precision" yaml:"precision"`
	MinNotional float64 `toml:"min_notional" yaml:"min_notional"`
}

// DefaultRule is returned for unknown symbols: floor to 8 decimals, no
// minimum notional. Safe in the sense that it can only shrink a quantity.
var DefaultRule = Rule{StepSize: 1e-8, Precision: 8, MinNotional: 0}

const missingRuleWindow = 5 * time.Minute

// Resolver looks up symbol rules and reports missing entries at most once per
// (strategy, symbol) per window so a busy feed cannot flood metrics.
type Resolver struct {
	mu      sync.RWMutex
	table   map[string]Rule
	missing *ratelimit.Window
}

func NewResolver(table map[string]Rule) *Resolver {
	r := &Resolver{
		table:   make(map[string]Rule, len(table)),
		missing: ratelimit.NewWindow(missingRuleWindow),
	}
	r.replace(table)
	return r
}

// Load reads the rules file and keeps watching it, swapping the table in
// place whenever the file changes.
func Load(path string) (*Resolver, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading symbol rules failed (%s): %w", path, err)
	}
	table, err := decodeTable(v)
	if err != nil {
		return nil, err
	}
	r := NewResolver(table)
	v.OnConfigChange(func(evt fsnotify.Event) {
		next, err := decodeTable(v)
		if err != nil {
			logger.Errorf("symbol rules reload failed (%s): %v", evt.Name, err)
			return
		}
		r.replace(next)
		logger.Infof("symbol rules reloaded: %d symbols", len(next))
	})
	v.WatchConfig()
	return r, nil
}

type rulesFile struct {
	Symbols map[string]Rule `toml:"symbols"`
}

func decodeTable(v *viper.Viper) (map[string]Rule, error) {
	var file rulesFile
	if err := v.Unmarshal(&file, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "toml"
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("parsing symbol rules failed: %w", err)
	}
	return file.Symbols, nil
}

// Resolve returns the rule for symbol, falling back to DefaultRule when the
// symbol is unknown. Never fails; the only side effect is the debounced
// missing-rule signal.
func (r *Resolver) Resolve(strategyID, symbol string) Rule {
	key := strings.ToUpper(strings.TrimSpace(symbol))
	r.mu.RLock()
	rule, ok := r.table[key]
	r.mu.RUnlock()
	if ok {
		return rule
	}
	if r.missing.Allow(strategyID + ":" + key) {
		metrics.MissingSymbolRules.WithLabelValues(strategyID, key).Inc()
		logger.Warnf("no quantization rule for symbol %s (strategy=%s), using default", key, strategyID)
	}
	return DefaultRule
}

// Symbols returns the configured symbols, for startup logging.
func (r *Resolver) Symbols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.table))
	for sym := range r.table {
		out = append(out, sym)
	}
	return out
}

func (r *Resolver) replace(table map[string]Rule) {
	next := make(map[string]Rule, len(table))
	for sym, rule := range table {
		if rule.StepSize <= 0 {
			rule.StepSize = DefaultRule.StepSize
		}
		if rule.Precision < 0 || rule.Precision > 8 {
			rule.Precision = DefaultRule.Precision
		}
		if rule.MinNotional < 0 {
			rule.MinNotional = 0
		}
		next[strings.ToUpper(strings.TrimSpace(sym))] = rule
	}
	r.mu.Lock()
	r.table = next
	r.mu.Unlock()
}
