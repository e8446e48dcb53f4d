package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// #region runtime

// Duration wraps time.Duration so runtime YAML can use "2s"/"750ms"
// notation.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string like \"5s\": %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Runtime holds daemon settings that are not part of the decision-relevant
// configuration (and therefore not part of the config hash): paths, timing,
// and the dispatch adapter endpoint.
type Runtime struct {
	ConfigDir     string     `yaml:"config_dir"`
	DataDir       string     `yaml:"data_dir"`
	InboxDir      string     `yaml:"inbox_dir"`
	HistoryDB     string     `yaml:"history_db"`
	MetricsAddr   string     `yaml:"metrics_addr"`
	CycleInterval Duration   `yaml:"cycle_interval"`
	Debounce      Duration   `yaml:"debounce"`
	LayerTimeout  Duration   `yaml:"layer_timeout"`
	Dispatch      DispatchRT `yaml:"dispatch"`
}

// DispatchRT selects and configures the dispatch adapter.
type DispatchRT struct {
	Mode    string   `yaml:"mode"` // "journal" (dry-run) or "http"
	URL     string   `yaml:"url,omitempty"`
	Timeout Duration `yaml:"timeout,omitempty"`
}

// DefaultRuntime returns a runnable local configuration.
func DefaultRuntime() Runtime {
	return Runtime{
		ConfigDir:     "config",
		DataDir:       "data",
		InboxDir:      "data/inbox",
		HistoryDB:     "data/history.db",
		MetricsAddr:   ":9155",
		CycleInterval: Duration(60 * time.Second),
		Debounce:      Duration(2 * time.Second),
		LayerTimeout:  Duration(10 * time.Second),
		Dispatch:      DispatchRT{Mode: "journal", Timeout: Duration(15 * time.Second)},
	}
}

// LoadRuntime reads a YAML runtime config, filling unset fields from
// DefaultRuntime. A missing file is not an error: defaults apply.
func LoadRuntime(path string) (Runtime, error) {
	rt := DefaultRuntime()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return rt, nil
		}
		return rt, fmt.Errorf("read runtime config: %w", err)
	}
	if err := yaml.Unmarshal(data, &rt); err != nil {
		return rt, fmt.Errorf("parse runtime config: %w", err)
	}
	if rt.CycleInterval <= 0 {
		rt.CycleInterval = DefaultRuntime().CycleInterval
	}
	if rt.Debounce <= 0 {
		rt.Debounce = DefaultRuntime().Debounce
	}
	if rt.LayerTimeout <= 0 {
		rt.LayerTimeout = DefaultRuntime().LayerTimeout
	}
	switch rt.Dispatch.Mode {
	case "", "journal":
		rt.Dispatch.Mode = "journal"
	case "http":
		if rt.Dispatch.URL == "" {
			return rt, fmt.Errorf("dispatch mode http requires url")
		}
	default:
		return rt, fmt.Errorf("unknown dispatch mode %q", rt.Dispatch.Mode)
	}
	if rt.Dispatch.Timeout <= 0 {
		rt.Dispatch.Timeout = DefaultRuntime().Dispatch.Timeout
	}
	return rt, nil
}

// #endregion runtime
