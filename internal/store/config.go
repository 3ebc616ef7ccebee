package store

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"pairbridge/internal/types"
)

// Config is the full on-disk configuration: timezone, channel endpoints,
// the grouped schedule rules and the account-wide risk policy.
type Config struct {
	Timezone  string `yaml:"timezone"`
	StateFile string `yaml:"state_file"`

	Channels struct {
		Channel1 ChannelConfig `yaml:"channel1"`
		Channel2 ChannelConfig `yaml:"channel2"`
	} `yaml:"channels"`

	Groups struct {
		Primary []types.ScheduleRule `yaml:"primary"`
		Special []types.ScheduleRule `yaml:"special"`
	} `yaml:"groups"`

	Risk RiskConfig `yaml:"risk"`

	History struct {
		Limit   int    `yaml:"limit"`
		CSVPath string `yaml:"csv_path"`
	} `yaml:"history"`

	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Listen  string `yaml:"listen"`
	} `yaml:"metrics"`
}

// ChannelConfig describes one execution endpoint.
type ChannelConfig struct {
	Name string `yaml:"name"`
	// URL of the channel's websocket command endpoint. When Mode is "sim"
	// the URL is ignored and an in-process simulated channel is used.
	URL  string `yaml:"url"`
	Mode string `yaml:"mode"`
	Path string `yaml:"path"`
}

// RiskConfig is the account-wide risk policy.
type RiskConfig struct {
	DrawdownEnabled bool    `yaml:"drawdown_enabled"`
	DrawdownStop    float64 `yaml:"drawdown_stop"`
	// Optional YYYY-MM-DD bounds; entry triggering is disabled outside the
	// range. Unparseable bounds are ignored.
	StartDate string `yaml:"start_date"`
	EndDate   string `yaml:"end_date"`
}

// Rules returns every rule across all groups, in group order, with Group
// filled in.
func (c *Config) Rules() []types.ScheduleRule {
	out := make([]types.ScheduleRule, 0, len(c.Groups.Primary)+len(c.Groups.Special))
	for _, r := range c.Groups.Primary {
		r.Group = "primary"
		out = append(out, r)
	}
	for _, r := range c.Groups.Special {
		r.Group = "special"
		out = append(out, r)
	}
	return out
}

// Location resolves the configured timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *Config) Validate() error {
	if c.Timezone != "" {
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			return fmt.Errorf("invalid timezone '%s': %w", c.Timezone, err)
		}
	}
	if c.Risk.DrawdownEnabled && c.Risk.DrawdownStop <= 0 {
		return fmt.Errorf("risk.drawdown_stop must be positive when drawdown is enabled, got %.2f", c.Risk.DrawdownStop)
	}
	for _, d := range []string{c.Risk.StartDate, c.Risk.EndDate} {
		if d == "" {
			continue
		}
		if _, err := time.Parse("2006-01-02", d); err != nil {
			// Ignored at runtime, but reject obvious typos at load time.
			return fmt.Errorf("risk date '%s' is not YYYY-MM-DD", d)
		}
	}
	for _, rule := range c.Rules() {
		if rule.Lot1 < 0 || rule.Lot2 < 0 {
			return fmt.Errorf("rule '%s': lot sizes must not be negative", rule.ID)
		}
		if rule.Enabled && rule.Lot1 == 0 && rule.Lot2 == 0 {
			return fmt.Errorf("rule '%s': enabled rule needs positive lot sizes", rule.ID)
		}
	}
	return nil
}

// LoadConfig reads, defaults, normalizes and validates the configuration.
// A missing file yields the defaults rather than an error, so startup never
// fails on first run.
func LoadConfig(path string) (*Config, error) {
	var c Config
	b, err := os.ReadFile(path)
	if err == nil {
		if uerr := yaml.Unmarshal(b, &c); uerr != nil {
			return nil, fmt.Errorf("parse config: %w", uerr)
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	applyDefaults(&c)
	normalizeRules(&c)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &c, nil
}

func applyDefaults(c *Config) {
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	if c.StateFile == "" {
		c.StateFile = "automation_state.json"
	}
	if c.Channels.Channel1.Name == "" {
		c.Channels.Channel1.Name = "A1"
	}
	if c.Channels.Channel2.Name == "" {
		c.Channels.Channel2.Name = "A2"
	}
	if c.History.Limit <= 0 {
		c.History.Limit = 250
	}
	if c.History.CSVPath == "" {
		c.History.CSVPath = "trade_history.csv"
	}
	if c.Metrics.Listen == "" {
		c.Metrics.Listen = ":9187"
	}
	if c.Risk.DrawdownStop == 0 {
		c.Risk.DrawdownStop = 5.0
	}
}

// normalizeRules fills per-rule defaults and makes every rule id unique
// across the whole registry. Colliding or empty ids are suffixed
// deterministically (-2, -3, ...) in load order.
func normalizeRules(c *Config) {
	seen := map[string]bool{}
	fix := func(rules []types.ScheduleRule, group string) {
		for i := range rules {
			r := &rules[i]
			if r.ID == "" {
				r.ID = fmt.Sprintf("%s-%d", group, i+1)
			}
			if seen[r.ID] {
				base := r.ID
				for n := 2; ; n++ {
					candidate := fmt.Sprintf("%s-%d", base, n)
					if !seen[candidate] {
						r.ID = candidate
						break
					}
				}
			}
			seen[r.ID] = true
			if r.Name == "" {
				r.Name = r.ID
			}
			if r.Direction == "" {
				r.Direction = types.DirectionBuySell
			}
			switch r.Exit.CloseCondition {
			case types.CloseOnSpread, types.CloseOnProfit, types.CloseOnSpreadAndProfit:
			default:
				r.Exit.CloseCondition = types.CloseOnSpread
			}
			if r.Exit.CloseLogicMode != types.CloseLogicNetPnl {
				r.Exit.CloseLogicMode = types.CloseLogicConditions
			}
		}
	}
	fix(c.Groups.Primary, "primary")
	fix(c.Groups.Special, "special")
}
