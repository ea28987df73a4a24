package config

import (
	"fmt"
	"net/url"
	"strings"
)

func validate(c *Config) error {
	if err := c.Dispatch.validate(); err != nil {
		return err
	}
	if err := c.Rules.validate(); err != nil {
		return err
	}
	return nil
}

func (d *DispatchConfig) validate() error {
	for _, s := range d.Strategies {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("dispatch.strategies contains an empty entry")
		}
	}
	if _, err := url.Parse(d.APIBaseURL); err != nil {
		return fmt.Errorf("dispatch.api_base_url is not a valid URL: %w", err)
	}
	if d.MaxAttempts > 5 {
		return fmt.Errorf("dispatch.max_attempts must be <= 5 (got %d)", d.MaxAttempts)
	}
	if d.BackoffCapMS < d.BackoffBaseMS {
		return fmt.Errorf("dispatch.backoff_cap_ms must be >= backoff_base_ms")
	}
	return nil
}

func (r *RulesConfig) validate() error {
	if r.ImportFromBinance && len(r.ImportSymbols) == 0 {
		return fmt.Errorf("rules.import_from_binance requires rules.import_symbols")
	}
	return nil
}
