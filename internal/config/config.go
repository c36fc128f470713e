// Package config loads qmddserver settings via viper: environment
// variables prefixed QMDD_, an optional config file, and defaults for the
// Context options spec §6's init names (tolerance, table capacities,
// normalization strategy) plus the HTTP server's own port/debug flags.
package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config wraps a *viper.Viper so callers keep the teacher's
// *config.Config-threaded-through-app-wiring convention
// (kegliz-qplay's internal/app.ServerOptions.C).
type Config struct {
	*viper.Viper
}

// Options lets callers point Load at a specific file/path; both fields
// are optional.
type Options struct {
	FileName string // e.g. "qmdd" (without extension)
	Path     string // directory to search, defaults to "."
}

// Load builds a Config with defaults set, then overlays an optional
// config file and QMDD_-prefixed environment variables.
func Load(opts Options) (*Config, error) {
	v := viper.New()

	v.SetDefault("debug", false)
	v.SetDefault("port", 8080)
	v.SetDefault("localonly", true)
	v.SetDefault("node_capacity", uint64(1<<20))
	v.SetDefault("weight_capacity", uint64(1<<20))
	v.SetDefault("cache_capacity", uint64(1<<20))
	v.SetDefault("tolerance", 1e-9)
	v.SetDefault("norm_strategy", "largest")

	v.SetEnvPrefix("qmdd")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if opts.FileName != "" {
		v.SetConfigName(opts.FileName)
		path := opts.Path
		if path == "" {
			path = "."
		}
		v.AddConfigPath(path)
		if err := v.ReadInConfig(); err != nil {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
				return nil, err
			}
		}
	}

	return &Config{Viper: v}, nil
}

// NormStrategy returns the configured normalization strategy name
// ("low" or "largest"); callers map this to qmdd.NormLow/NormLargest
// since config has no business importing the qmdd façade package.
func (c *Config) NormStrategy() string {
	return strings.ToLower(c.GetString("norm_strategy"))
}
