package config

import (
	"strings"

	"github.com/spf13/viper"

	"github.com/turtacn/lsoma/pkg/errors"
)

// envPrefix prefixes every environment override.
const envPrefix = "LSOMA"

// newViper returns a Viper with YAML files, LSOMA_ env binding, "." → "_"
// key mapping (pipeline.min_population resolves to
// LSOMA_PIPELINE_MIN_POPULATION) and every default registered.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// Load reads the YAML file at path, merges LSOMA_* overrides, applies
// defaults and validates.  An empty path behaves like LoadFromEnv.
func Load(path string) (*Config, error) {
	if path == "" {
		return LoadFromEnv()
	}
	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to read config file").
			WithDetailf("path=%s", path)
	}
	return unmarshalAndFinalize(v)
}

// LoadFromEnv builds a Config from LSOMA_* variables and defaults only.
func LoadFromEnv() (*Config, error) {
	return unmarshalAndFinalize(newViper())
}

func unmarshalAndFinalize(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to unmarshal configuration")
	}
	ApplyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
