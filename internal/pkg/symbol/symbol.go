// Package symbol converts between the internal instrument notation
// ("BTC-PERP") and exchange-native tickers.
package symbol

import "strings"

type Symbol struct {
	Base       string
	Instrument string // "PERP" or a quote currency for spot pairs
}

// Parse splits "BTC-PERP" / "ETH-USDT" into its parts. Unknown shapes return
// the zero value.
func Parse(s string) Symbol {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return Symbol{}
	}
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Symbol{}
	}
	return Symbol{Base: parts[0], Instrument: parts[1]}
}

func (s Symbol) Internal() string {
	if s.Base == "" || s.Instrument == "" {
		return ""
	}
	return s.Base + "-" + s.Instrument
}

func IsValid(s string) bool {
	return Parse(s).Internal() != ""
}
