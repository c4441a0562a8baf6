package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the backend configuration. Read once at startup; mode
// configuration is immutable for the process lifetime.
type Config struct {
	NATS      NATSConfig      `yaml:"nats"`
	HTTP      HTTPConfig      `yaml:"http"`
	Storage   StorageConfig   `yaml:"storage"`
	Broadcast BroadcastConfig `yaml:"broadcast"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Game      GameConfig      `yaml:"game"`
}

// NATSConfig holds the broker session settings.
type NATSConfig struct {
	URL           string   `yaml:"url"`
	ClientID      string   `yaml:"client_id"`
	Username      string   `yaml:"username"`
	Password      string   `yaml:"password"`
	ReconnectWait Duration `yaml:"reconnect_wait"`
}

// HTTPConfig holds the dashboard server settings.
type HTTPConfig struct {
	Address string `yaml:"address"`
}

// StorageConfig holds the leaderboard persistence settings.
type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
}

// BroadcastConfig holds the periodic broadcast settings.
type BroadcastConfig struct {
	ConfigInterval      Duration `yaml:"config_interval"`
	LeaderboardInterval Duration `yaml:"leaderboard_interval"`
	OnConnect           bool     `yaml:"on_connect"`
	SettleDelay         Duration `yaml:"settle_delay"`
}

// DiscoveryConfig holds the best-effort UDP announce settings.
type DiscoveryConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Port     int      `yaml:"port"`
	Interval Duration `yaml:"interval"`
}

// MetricsConfig holds the Prometheus endpoint settings. An empty address
// disables the endpoint.
type MetricsConfig struct {
	Address string `yaml:"address"`
}

// GameConfig holds the per-mode route configuration.
type GameConfig struct {
	Modes map[string]ModeConfig `yaml:"modes"`
}

// ModeConfig is one game mode's route configuration.
type ModeConfig struct {
	RouteDistance         float64 `yaml:"route_distance"`
	TimeLimit             float64 `yaml:"time_limit"`
	CountdownSeconds      int     `yaml:"countdown_seconds"`
	ResultsDisplaySeconds int     `yaml:"results_display_seconds"`
	IdleTimeoutSeconds    int     `yaml:"idle_timeout_seconds"`
	MachineTopic          string  `yaml:"machine_topic"`
}

// Duration parses YAML values like "5s" or "250ms".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("duration must be a string like \"5s\": %w", err)
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// DefaultConfig returns the configuration used when no file is present:
// three disciplines on a local broker, broadcasting config every 5s and
// leaderboards every 6s.
func DefaultConfig() *Config {
	return &Config{
		NATS: NATSConfig{
			URL:           "nats://127.0.0.1:4222",
			ReconnectWait: Duration(2 * time.Second),
		},
		HTTP: HTTPConfig{
			Address: ":8080",
		},
		Storage: StorageConfig{
			DataDir: "data",
		},
		Broadcast: BroadcastConfig{
			ConfigInterval:      Duration(5 * time.Second),
			LeaderboardInterval: Duration(6 * time.Second),
			OnConnect:           true,
			SettleDelay:         Duration(2 * time.Second),
		},
		Discovery: DiscoveryConfig{
			Enabled:  false,
			Port:     18830,
			Interval: Duration(10 * time.Second),
		},
		Game: GameConfig{
			Modes: map[string]ModeConfig{
				"rowing": {
					RouteDistance:         2000,
					TimeLimit:             600,
					CountdownSeconds:      3,
					ResultsDisplaySeconds: 15,
					IdleTimeoutSeconds:    120,
				},
				"running": {
					RouteDistance:         5000,
					TimeLimit:             2400,
					CountdownSeconds:      3,
					ResultsDisplaySeconds: 15,
					IdleTimeoutSeconds:    120,
				},
				"cycling": {
					RouteDistance:         10000,
					TimeLimit:             2400,
					CountdownSeconds:      3,
					ResultsDisplaySeconds: 15,
					IdleTimeoutSeconds:    120,
				},
			},
		},
	}
}

// LoadConfig reads the YAML file, falling back to defaults when it is
// missing, and applies environment variable overrides on top.
func LoadConfig(filename string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(filename)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist):
		// No file: defaults plus env.
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("NATS_CLIENT_ID"); v != "" {
		cfg.NATS.ClientID = v
	}
	if v := os.Getenv("NATS_USERNAME"); v != "" {
		cfg.NATS.Username = v
	}
	if v := os.Getenv("NATS_PASSWORD"); v != "" {
		cfg.NATS.Password = v
	}
	if v := os.Getenv("HTTP_ADDRESS"); v != "" {
		cfg.HTTP.Address = v
	}
	if v := os.Getenv("METRICS_ADDRESS"); v != "" {
		cfg.Metrics.Address = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("CONFIG_BROADCAST_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Broadcast.ConfigInterval = Duration(d)
		}
	}
	if v := os.Getenv("LEADERBOARD_BROADCAST_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Broadcast.LeaderboardInterval = Duration(d)
		}
	}
	if v := os.Getenv("DISCOVERY_ENABLED"); v != "" {
		cfg.Discovery.Enabled = v == "true"
	}
}

// Validate rejects configurations the backend cannot run with.
func (c *Config) Validate() error {
	if c.NATS.URL == "" {
		return errors.New("nats.url must be set")
	}
	if len(c.Game.Modes) == 0 {
		return errors.New("game.modes must define at least one mode")
	}
	for name, mode := range c.Game.Modes {
		if mode.RouteDistance <= 0 {
			return fmt.Errorf("game mode %q: route_distance must be > 0", name)
		}
		if mode.TimeLimit <= 0 {
			return fmt.Errorf("game mode %q: time_limit must be > 0", name)
		}
		if mode.CountdownSeconds < 0 || mode.ResultsDisplaySeconds < 0 || mode.IdleTimeoutSeconds < 0 {
			return fmt.Errorf("game mode %q: durations must be >= 0", name)
		}
	}
	if c.Broadcast.ConfigInterval.Std() <= 0 {
		return errors.New("broadcast.config_interval must be > 0")
	}
	if c.Broadcast.LeaderboardInterval.Std() <= 0 {
		return errors.New("broadcast.leaderboard_interval must be > 0")
	}
	return nil
}

// ModeNames returns the configured mode names in a stable order.
func (c *Config) ModeNames() []string {
	names := make([]string, 0, len(c.Game.Modes))
	for name := range c.Game.Modes {
		names = append(names, name)
	}
	// map iteration order is random; keep file and broadcast ordering stable
	sort.Strings(names)
	return names
}
