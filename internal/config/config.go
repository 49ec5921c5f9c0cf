package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/efreitasn/marketsim/internal/domain"
	"github.com/efreitasn/marketsim/internal/market"
	"github.com/efreitasn/marketsim/internal/sim"
)

// Config holds all runtime configuration for a simulation sweep.
type Config struct {
	LogLevel  string         `yaml:"log_level"`
	Seed      uint64         `yaml:"seed"`
	Runs      int            `yaml:"runs"`
	Workers   int            `yaml:"workers"`
	FinalTime int64          `yaml:"final_time"`
	Debug     bool           `yaml:"debug"`
	Markets   []MarketConfig `yaml:"markets"`
	Agents    []AgentConfig  `yaml:"agents"`
}

// MarketConfig describes one market.
type MarketConfig struct {
	Name          string  `yaml:"name"`
	Kind          string  `yaml:"kind"`
	ClearInterval int64   `yaml:"clear_interval"`
	Pricing       float64 `yaml:"pricing"`
}

// AgentConfig describes a group of zero-intelligence agents in a market.
type AgentConfig struct {
	Market      string  `yaml:"market"`
	Count       int     `yaml:"count"`
	Latency     int64   `yaml:"latency"`
	Fundamental string  `yaml:"fundamental"`
	ArrivalRate float64 `yaml:"arrival_rate"`
	ShadeMin    int     `yaml:"shade_min"`
	ShadeMax    int     `yaml:"shade_max"`
	MaxPosition int     `yaml:"max_position"`
}

// Default returns a configuration for one CDA market with ten agents.
func Default() *Config {
	return &Config{
		LogLevel:  "info",
		Seed:      1,
		Runs:      1,
		Workers:   1,
		FinalTime: 1000,
		Markets: []MarketConfig{
			{Name: "cda", Kind: "cda"},
		},
		Agents: []AgentConfig{
			{Market: "cda", Count: 10, Fundamental: "100", ArrivalRate: 0.1, ShadeMax: 4, MaxPosition: 10},
		},
	}
}

// Load reads the YAML file at path over the defaults, expanding ${VAR}
// references, then applies environment overrides and validates the
// result. An empty path falls back to CONFIG_FILE, and to the defaults
// alone when that is unset too.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}

	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := Parse([]byte(os.ExpandEnv(string(raw))), cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML into cfg. Keys absent from data keep their current
// values; lists present in data replace the current ones.
func Parse(data []byte, cfg *Config) error {
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	cfg.LogLevel = getStr("LOG_LEVEL", cfg.LogLevel)

	seed, err := getUint("SIM_SEED", cfg.Seed)
	if err != nil {
		return fmt.Errorf("invalid SIM_SEED: %w", err)
	}
	cfg.Seed = seed

	runs, err := getInt("SIM_RUNS", cfg.Runs)
	if err != nil {
		return fmt.Errorf("invalid SIM_RUNS: %w", err)
	}
	cfg.Runs = runs

	workers, err := getInt("SIM_WORKERS", cfg.Workers)
	if err != nil {
		return fmt.Errorf("invalid SIM_WORKERS: %w", err)
	}
	cfg.Workers = workers

	finalTime, err := getInt("SIM_FINAL_TIME", int(cfg.FinalTime))
	if err != nil {
		return fmt.Errorf("invalid SIM_FINAL_TIME: %w", err)
	}
	cfg.FinalTime = int64(finalTime)
	return nil
}

// Validate reports the first invalid value as a *domain.ValidationError.
func (c *Config) Validate() error {
	if !isValidLogLevel(c.LogLevel) {
		return invalid("invalid LOG_LEVEL: %q, must be one of: debug, info, warn, error", c.LogLevel)
	}
	if c.Runs <= 0 {
		return invalid("runs must be > 0, got %d", c.Runs)
	}
	if c.Workers <= 0 {
		return invalid("workers must be > 0, got %d", c.Workers)
	}
	if c.FinalTime <= 0 {
		return invalid("final_time must be > 0, got %d", c.FinalTime)
	}
	if len(c.Markets) == 0 {
		return invalid("at least one market is required")
	}
	_, err := c.Spec()
	return err
}

// Spec converts the configuration into a simulation spec.
func (c *Config) Spec() (sim.Spec, error) {
	spec := sim.Spec{FinalTime: domain.TimeStamp(c.FinalTime), Debug: c.Debug}

	index := make(map[string]int, len(c.Markets))
	for _, mc := range c.Markets {
		if mc.Name == "" {
			return sim.Spec{}, invalid("market name is required")
		}
		if _, dup := index[mc.Name]; dup {
			return sim.Spec{}, invalid("duplicate market %q", mc.Name)
		}
		kind, err := market.ParseKind(mc.Kind)
		if err != nil {
			return sim.Spec{}, err
		}
		if kind == market.Call && mc.ClearInterval <= 0 {
			return sim.Spec{}, invalid("market %q: clear_interval must be > 0", mc.Name)
		}
		if mc.Pricing < 0 || mc.Pricing > 1 {
			return sim.Spec{}, invalid("market %q: pricing must be within [0, 1], got %v", mc.Name, mc.Pricing)
		}
		index[mc.Name] = len(spec.Markets)
		spec.Markets = append(spec.Markets, sim.MarketSpec{
			Kind:          kind,
			ClearInterval: domain.TimeStamp(mc.ClearInterval),
			Pricing:       mc.Pricing,
		})
	}

	for _, ac := range c.Agents {
		m, ok := index[ac.Market]
		if !ok {
			return sim.Spec{}, invalid("agents reference unknown market %q", ac.Market)
		}
		if ac.Count < 0 {
			return sim.Spec{}, invalid("market %q: agent count must be >= 0, got %d", ac.Market, ac.Count)
		}
		if ac.Latency < 0 {
			return sim.Spec{}, invalid("market %q: latency must be >= 0, got %d", ac.Market, ac.Latency)
		}
		fundamental, err := domain.ParsePrice(ac.Fundamental)
		if err != nil {
			return sim.Spec{}, invalid("market %q: %v", ac.Market, err)
		}
		if ac.ArrivalRate <= 0 || ac.ArrivalRate > 1 {
			return sim.Spec{}, invalid("market %q: arrival_rate must be within (0, 1], got %v", ac.Market, ac.ArrivalRate)
		}
		if ac.ShadeMin < 0 || ac.ShadeMax < ac.ShadeMin {
			return sim.Spec{}, invalid("market %q: shading range [%d, %d] is invalid", ac.Market, ac.ShadeMin, ac.ShadeMax)
		}
		if ac.MaxPosition <= 0 {
			return sim.Spec{}, invalid("market %q: max_position must be > 0, got %d", ac.Market, ac.MaxPosition)
		}
		spec.Agents = append(spec.Agents, sim.AgentSpec{
			Market:      m,
			Count:       ac.Count,
			Latency:     domain.TimeStamp(ac.Latency),
			Fundamental: fundamental,
			ArrivalRate: ac.ArrivalRate,
			ShadeMin:    ac.ShadeMin,
			ShadeMax:    ac.ShadeMax,
			MaxPosition: ac.MaxPosition,
		})
	}
	return spec, nil
}

func invalid(format string, args ...any) error {
	return &domain.ValidationError{Message: fmt.Sprintf(format, args...)}
}

func getStr(key, defaultVal string) string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	return v
}

func getInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.Atoi(v)
}

func getUint(key string, defaultVal uint64) (uint64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.ParseUint(v, 10, 64)
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}
