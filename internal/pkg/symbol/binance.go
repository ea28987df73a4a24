package symbol

import "strings"

// BinanceConverter maps internal perp notation onto Binance USDT-margined
// futures tickers: "BTC-PERP" <-> "BTCUSDT".
type BinanceConverter struct{}

func (BinanceConverter) ToExchange(internal string) string {
	sym := Parse(internal)
	if sym.Base == "" {
		return ""
	}
	if sym.Instrument == "PERP" {
		return sym.Base + "USDT"
	}
	return sym.Base + sym.Instrument
}

func (BinanceConverter) FromExchange(raw string) string {
	raw = strings.ToUpper(strings.TrimSpace(raw))
	if base, ok := strings.CutSuffix(raw, "USDT"); ok && base != "" {
		return base + "-PERP"
	}
	return ""
}

var Binance = BinanceConverter{}
