package config

const (
	defaultAppEnv           = "dev"
	defaultAppLogLevel      = "info"
	defaultAppHTTPAddr      = ":8000"
	defaultDatabasePath     = "data/copyflow.db"
	defaultPollInterval     = 10
	defaultTradeWindow      = 10
	defaultSeenCacheSize    = 512
	defaultAPIBaseURL       = "http://localhost:8000"
	defaultHTTPTimeout      = 5
	defaultMaxAttempts      = 5
	defaultBackoffBaseMS    = 200
	defaultBackoffCapMS     = 5000
	defaultBreakerThreshold = 8
	defaultBreakerCooldown  = 30
	defaultRulesPath        = "configs/symbols.yaml"
)

func (c *Config) applyDefaults() {
	c.App.applyDefaults()
	c.Database.applyDefaults()
	c.Dispatch.applyDefaults()
	c.Rules.applyDefaults()
}

func (a *AppConfig) applyDefaults() {
	if a.Env == "" {
		a.Env = defaultAppEnv
	}
	if a.LogLevel == "" {
		a.LogLevel = defaultAppLogLevel
	}
	if a.HTTPAddr == "" {
		a.HTTPAddr = defaultAppHTTPAddr
	}
}

func (d *DatabaseConfig) applyDefaults() {
	if d.Path == "" {
		d.Path = defaultDatabasePath
	}
}

func (d *DispatchConfig) applyDefaults() {
	if d.PollIntervalSeconds <= 0 {
		d.PollIntervalSeconds = defaultPollInterval
	}
	if d.TradeWindow <= 0 {
		d.TradeWindow = defaultTradeWindow
	}
	if d.SeenCacheSize <= 0 {
		d.SeenCacheSize = defaultSeenCacheSize
	}
	if d.APIBaseURL == "" {
		d.APIBaseURL = defaultAPIBaseURL
	}
	if d.TimeoutSeconds <= 0 {
		d.TimeoutSeconds = defaultHTTPTimeout
	}
	if d.MaxAttempts <= 0 {
		d.MaxAttempts = defaultMaxAttempts
	}
	if d.BackoffBaseMS <= 0 {
		d.BackoffBaseMS = defaultBackoffBaseMS
	}
	if d.BackoffCapMS <= 0 {
		d.BackoffCapMS = defaultBackoffCapMS
	}
	if d.BreakerThreshold <= 0 {
		d.BreakerThreshold = defaultBreakerThreshold
	}
	if d.BreakerCooldownSeconds <= 0 {
		d.BreakerCooldownSeconds = defaultBreakerCooldown
	}
}

func (r *RulesConfig) applyDefaults() {
	if r.Path == "" {
		r.Path = defaultRulesPath
	}
}
