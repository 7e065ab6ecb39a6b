package config

/*------------------------------------------------------------------
 *
 * Purpose:	Optional YAML config file supplying scan defaults
 *		(SPEC_FULL.md §4.9): worker count, probe timeouts/retries,
 *		search window, interface, targets. The CLI merges flag
 *		overrides onto whatever Load returns. A heartbeat interval
 *		is parsed too but not applied: the tunnel always uses its
 *		fixed tunnel.HeartbeatInterval.
 *
 *------------------------------------------------------------------*/

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML document, tagged the way the teacher's
// deviceid.go tags its device-id table entries.
type Config struct {
	Workers int `yaml:"workers"`

	DescribeTimeout time.Duration `yaml:"describe_timeout"`
	DescribeRetries int           `yaml:"describe_retries"`

	SearchTimeout time.Duration `yaml:"search_timeout"`

	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`

	Iface string `yaml:"iface"`

	Targets []string `yaml:"targets"`
}

// Default returns the spec.md §4.2/§5 default values.
func Default() Config {
	return Config{
		Workers:           100,
		DescribeTimeout:   2 * time.Second,
		DescribeRetries:   2,
		SearchTimeout:     5 * time.Second,
		HeartbeatInterval: 60 * time.Second,
	}
}

// Load reads and parses a YAML config file at path, overlaying it on
// Default() so an absent field keeps its default value.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if cfg.Workers <= 0 {
		return Config{}, fmt.Errorf("config: workers must be positive, got %d", cfg.Workers)
	}

	return cfg, nil
}
