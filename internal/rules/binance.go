package rules

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	symbolpkg "copyflow/internal/pkg/symbol"

	"github.com/adshao/go-binance/v2/futures"
	"gopkg.in/yaml.v3"
)

// ImportFromBinance fetches LOT_SIZE / NOTIONAL filters for the given
// internal symbols from Binance USDT-M futures exchange info and writes them
// as the rules file at path. Symbols the exchange does not list are skipped.
func ImportFromBinance(ctx context.Context, path string, symbols []string) error {
	client := futures.NewClient("", "")
	return importFromExchangeInfo(ctx, client.NewExchangeInfoService(), path, symbols)
}

type exchangeInfoService interface {
	Do(ctx context.Context, opts ...futures.RequestOption) (*futures.ExchangeInfo, error)
}

func importFromExchangeInfo(ctx context.Context, svc exchangeInfoService, path string, symbols []string) error {
	want := make(map[string]string, len(symbols)) // exchange ticker -> internal
	for _, s := range symbols {
		ticker := symbolpkg.Binance.ToExchange(s)
		if ticker == "" {
			return fmt.Errorf("cannot map symbol %q to a binance ticker", s)
		}
		want[ticker] = symbolpkg.Parse(s).Internal()
	}

	info, err := svc.Do(ctx)
	if err != nil {
		return fmt.Errorf("fetching binance exchange info failed: %w", err)
	}

	out := rulesFile{Symbols: make(map[string]Rule, len(want))}
	for _, s := range info.Symbols {
		internal, ok := want[s.Symbol]
		if !ok {
			continue
		}
		rule := DefaultRule
		rule.Precision = s.QuantityPrecision
		if f := s.LotSizeFilter(); f != nil {
			if step, err := strconv.ParseFloat(f.StepSize, 64); err == nil && step > 0 {
				rule.StepSize = step
			}
		}
		if f := s.MinNotionalFilter(); f != nil {
			if mn, err := strconv.ParseFloat(f.Notional, 64); err == nil && mn > 0 {
				rule.MinNotional = mn
			}
		}
		out.Symbols[internal] = rule
	}
	if len(out.Symbols) == 0 {
		return fmt.Errorf("none of the %d requested symbols are listed on binance futures", len(symbols))
	}

	buf, err := yaml.Marshal(struct {
		Symbols map[string]Rule `yaml:"symbols"`
	}{Symbols: out.Symbols})
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, buf, 0o644)
}
