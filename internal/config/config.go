// Package config holds runtime configuration, loaded from the environment
// over built-in defaults.
package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// RedisConfig selects the Redis instance the fleet shares.
type RedisConfig struct {
	Addr     string `json:"addr" envconfig:"REDIS_ADDR"`
	Password string `json:"password" envconfig:"REDIS_PASSWORD"`
	DB       int    `json:"db" envconfig:"REDIS_DB"`
}

// RouterConfig configures conversation stickiness.
type RouterConfig struct {
	TTL time.Duration `json:"ttl" envconfig:"CONVERSATION_TTL"`
}

// SchedulerConfig configures the tick loop and the signal watcher.
type SchedulerConfig struct {
	TickEnabled     bool          `json:"tickEnabled" envconfig:"TICK_ENABLED"`
	TickInterval    time.Duration `json:"tickInterval" envconfig:"TICK_INTERVAL"`
	InitialDelay    time.Duration `json:"initialDelay" envconfig:"TICK_INITIAL_DELAY"`
	WatcherEnabled  bool          `json:"watcherEnabled" envconfig:"WATCHER_ENABLED"`
	WatcherInterval time.Duration `json:"watcherInterval" envconfig:"WATCHER_INTERVAL"`
}

// ProcsConfig configures how agent worker processes are launched.
type ProcsConfig struct {
	AgentCommand string   `json:"agentCommand" envconfig:"AGENT_COMMAND"`
	AgentArgs    []string `json:"agentArgs" envconfig:"AGENT_ARGS"`
	LogDir       string   `json:"logDir" envconfig:"LOG_DIR"`
	RunDir       string   `json:"runDir" envconfig:"RUN_DIR"`
}

// ModelConfig configures the intent classifier model.
type ModelConfig struct {
	Name        string  `json:"name" envconfig:"MODEL"`
	BaseURL     string  `json:"baseUrl" envconfig:"MODEL_BASE_URL"`
	APIKey      string  `json:"apiKey" envconfig:"MODEL_API_KEY"`
	Temperature float64 `json:"temperature" envconfig:"MODEL_TEMPERATURE"`
	MaxTokens   int     `json:"maxTokens" envconfig:"MODEL_MAX_TOKENS"`
}

// GatewayConfig configures where the gateway and scheduler read the roster.
type GatewayConfig struct {
	RosterURL   string `json:"rosterUrl" envconfig:"ROSTER_URL"`
	TeamPath    string `json:"teamPath" envconfig:"TEAM_PATH"`
	SignalsPath string `json:"signalsPath" envconfig:"SIGNALS_PATH"`
}

// BridgeConfig configures synchronous ask calls.
type BridgeConfig struct {
	Deadline time.Duration `json:"deadline" envconfig:"BRIDGE_DEADLINE"`
	Settle   time.Duration `json:"settle" envconfig:"BRIDGE_SETTLE"`
}

// Config is the full fleet configuration.
type Config struct {
	Redis     RedisConfig     `json:"redis"`
	Router    RouterConfig    `json:"router"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Procs     ProcsConfig     `json:"procs"`
	Model     ModelConfig     `json:"model"`
	Gateway   GatewayConfig   `json:"gateway"`
	Bridge    BridgeConfig    `json:"bridge"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Router: RouterConfig{
			TTL: 24 * time.Hour,
		},
		Scheduler: SchedulerConfig{
			TickInterval:    24 * time.Hour,
			InitialDelay:    time.Minute,
			WatcherEnabled:  true,
			WatcherInterval: 30 * time.Minute,
		},
		Procs: ProcsConfig{
			LogDir: "logs",
			RunDir: "run",
		},
		Model: ModelConfig{
			Name:        "anthropic/claude-3.5-sonnet",
			BaseURL:     "https://openrouter.ai/api/v1",
			Temperature: 0.2,
			MaxTokens:   200,
		},
		Gateway: GatewayConfig{
			TeamPath:    "team.json",
			SignalsPath: "signals.md",
		},
		Bridge: BridgeConfig{
			Deadline: 55 * time.Second,
			Settle:   300 * time.Millisecond,
		},
	}
}

// Load builds the configuration: defaults first, environment on top. Every
// variable carries the FLEET_ prefix.
func Load() (*Config, error) {
	cfg := Default()
	for _, section := range []any{
		&cfg.Redis, &cfg.Router, &cfg.Scheduler, &cfg.Procs,
		&cfg.Model, &cfg.Gateway, &cfg.Bridge,
	} {
		if err := envconfig.Process("FLEET", section); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
