package loader

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config governs the Loader's tunables. It is normally loaded from YAML;
// zero-value fields are filled in by normalize.
type Config struct {
	// MaxTypeDepth bounds type-layout recursion (type-tag computation is
	// not depth-checked). Zero means "use the default of 128".
	MaxTypeDepth int `yaml:"max_type_depth"`
	// MetricsEnabled turns on the Prometheus counters in metrics.go.
	MetricsEnabled bool `yaml:"metrics_enabled"`
	// LogLevel is a logrus level name ("debug", "info", "warn", "error").
	LogLevel string `yaml:"log_level"`
	// NativeRegistryStrict governs whether an unresolved native function
	// is a hard publish-time error. This is always true -- check_natives
	// has no lenient mode. The field only reports that fixed behavior:
	// nothing in the Loader or the CLI reads it, and no value changes how
	// natives are checked.
	NativeRegistryStrict bool `yaml:"native_registry_strict"`
}

// DefaultConfig returns the Loader's baseline defaults.
func DefaultConfig() Config {
	return Config{
		MaxTypeDepth:         maxTypeDepth,
		MetricsEnabled:       false,
		LogLevel:             "info",
		NativeRegistryStrict: true,
	}
}

// LoadConfig reads and parses a YAML config file, falling back to
// DefaultConfig for any field left unset in the file.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	var fromFile Config
	if err := yaml.Unmarshal(b, &fromFile); err != nil {
		return cfg, err
	}
	cfg.normalize(fromFile)
	return cfg, nil
}

// normalize overlays non-zero fields of fromFile onto cfg.
func (cfg *Config) normalize(fromFile Config) {
	if fromFile.MaxTypeDepth != 0 {
		cfg.MaxTypeDepth = fromFile.MaxTypeDepth
	}
	cfg.MetricsEnabled = fromFile.MetricsEnabled
	if fromFile.LogLevel != "" {
		cfg.LogLevel = fromFile.LogLevel
	}
	// NativeRegistryStrict is not overridable from YAML: it documents an
	// invariant, not a tunable.
	cfg.NativeRegistryStrict = true
}
