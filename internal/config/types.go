package config

// Config is the top-level configuration for the copyflow process.
type Config struct {
	App      AppConfig      `toml:"app"`
	Database DatabaseConfig `toml:"database"`
	Dispatch DispatchConfig `toml:"dispatch"`
	Rules    RulesConfig    `toml:"rules"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	LogPath  string `toml:"log_path"`
	HTTPAddr string `toml:"http_addr"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

// DispatchConfig controls the copy-trade dispatch loop and its ledger client.
type DispatchConfig struct {
	// Disabled keeps the loop running but makes every cycle a no-op,
	// an operator kill switch rather than a process stop.
	Disabled   bool     `toml:"disabled"`
	Strategies []string `toml:"strategies"`

	PollIntervalSeconds int `toml:"poll_interval_seconds"`
	TradeWindow         int `toml:"trade_window"`
	SeenCacheSize       int `toml:"seen_cache_size"`

	APIBaseURL     string `toml:"api_base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	MaxAttempts    int    `toml:"max_attempts"`
	BackoffBaseMS  int    `toml:"backoff_base_ms"`
	BackoffCapMS   int    `toml:"backoff_cap_ms"`

	BreakerThreshold       int `toml:"breaker_threshold"`
	BreakerCooldownSeconds int `toml:"breaker_cooldown_seconds"`
}

// RulesConfig locates the per-symbol quantization table.
type RulesConfig struct {
	Path string `toml:"path"`
	// ImportFromBinance refreshes the rules file from Binance futures
	// exchange info at startup before loading it.
	ImportFromBinance bool     `toml:"import_from_binance"`
	ImportSymbols     []string `toml:"import_symbols"`
}
