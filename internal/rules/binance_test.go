package rules

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExchangeInfo struct {
	info *futures.ExchangeInfo
	err  error
}

func (f fakeExchangeInfo) Do(ctx context.Context, opts ...futures.RequestOption) (*futures.ExchangeInfo, error) {
	return f.info, f.err
}

func btcFuturesSymbol() futures.Symbol {
	return futures.Symbol{
		Symbol:            "BTCUSDT",
		QuantityPrecision: 3,
		Filters: []map[string]interface{}{
			{"filterType": "LOT_SIZE", "stepSize": "0.001", "minQty": "0.001", "maxQty": "1000"},
			{"filterType": "MIN_NOTIONAL", "notional": "100"},
		},
	}
}

func TestImportWritesLoadableRulesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "symbols.yaml")
	svc := fakeExchangeInfo{info: &futures.ExchangeInfo{
		Symbols: []futures.Symbol{btcFuturesSymbol()},
	}}

	require.NoError(t, importFromExchangeInfo(context.Background(), svc, path, []string{"BTC-PERP"}))

	r, err := Load(path)
	require.NoError(t, err)
	rule := r.Resolve("s", "BTC-PERP")
	assert.Equal(t, 0.001, rule.StepSize)
	assert.Equal(t, 3, rule.Precision)
	assert.Equal(t, 100.0, rule.MinNotional)
}

func TestImportSkipsUnlistedSymbols(t *testing.T) {
	path := filepath.Join(t.TempDir(), "symbols.yaml")
	svc := fakeExchangeInfo{info: &futures.ExchangeInfo{
		Symbols: []futures.Symbol{btcFuturesSymbol()},
	}}

	err := importFromExchangeInfo(context.Background(), svc, path, []string{"XYZ-PERP"})
	assert.ErrorContains(t, err, "none of the 1 requested symbols")
}

func TestImportRejectsUnmappableSymbol(t *testing.T) {
	err := importFromExchangeInfo(context.Background(), fakeExchangeInfo{}, "unused", []string{"BTCUSDT"})
	assert.ErrorContains(t, err, "cannot map symbol")
}

func TestImportPropagatesFetchError(t *testing.T) {
	svc := fakeExchangeInfo{err: errors.New("binance down")}
	err := importFromExchangeInfo(context.Background(), svc, "unused", []string{"BTC-PERP"})
	assert.ErrorContains(t, err, "binance down")
}
