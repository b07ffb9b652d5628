// Package config defines the run configuration of lsoma.  No I/O lives
// here, only plain data types and validation; loading is in loader.go.
package config

import (
	"github.com/turtacn/lsoma/internal/application/expansion"
	"github.com/turtacn/lsoma/internal/application/pipeline"
	"github.com/turtacn/lsoma/internal/domain/demography"
	"github.com/turtacn/lsoma/internal/domain/scoring"
	"github.com/turtacn/lsoma/internal/domain/spatial"
	"github.com/turtacn/lsoma/internal/infrastructure/cache/redis"
	"github.com/turtacn/lsoma/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/lsoma/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/lsoma/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/lsoma/internal/infrastructure/storage/minio"
	"github.com/turtacn/lsoma/pkg/errors"
)

// PipelineConfig holds every constant of target building, ingestion,
// scoring and clustering.
type PipelineConfig struct {
	// Period selects the census period; empty means the latest present.
	Period          string                 `mapstructure:"period"`
	MinPopulation   float64                `mapstructure:"min_population"`
	Weights         demography.WeightTable `mapstructure:"weights"`
	Scoring         scoring.Config         `mapstructure:"scoring"`
	Clustering      spatial.Params         `mapstructure:"clustering"`
	BedsPerFacility float64                `mapstructure:"beds_per_facility"`
}

// Evaluator returns the evaluator constants.
func (p PipelineConfig) Evaluator() pipeline.Config {
	return pipeline.Config{Clustering: p.Clustering, BedsPerFacility: p.BedsPerFacility}
}

// InputsConfig locates the input tables.  Each entry is a local path or an
// s3://bucket/key URI.
type InputsConfig struct {
	Population string `mapstructure:"population"`
	Attributes string `mapstructure:"attributes"`
	Target     string `mapstructure:"target"`
	Matrix     string `mapstructure:"matrix"`
	// Sheet names the XLSX sheet; empty reads the first.
	Sheet string `mapstructure:"sheet"`
}

// OutputsConfig names the produced tables.  Relative names are joined to Dir.
type OutputsConfig struct {
	Dir        string `mapstructure:"dir"`
	Target     string `mapstructure:"target"`
	Matrix     string `mapstructure:"matrix"`
	Ranking    string `mapstructure:"ranking"`
	Clusters   string `mapstructure:"clusters"`
	Points     string `mapstructure:"points"`
	Log        string `mapstructure:"log"`
	Comparison string `mapstructure:"comparison"`
}

// CacheConfig groups cache backends.
type CacheConfig struct {
	Redis redis.Config `mapstructure:"redis"`
}

// StorageConfig groups object stores.
type StorageConfig struct {
	MinIO minio.Config `mapstructure:"minio"`
}

// MessagingConfig groups event sinks.
type MessagingConfig struct {
	Kafka kafka.Config `mapstructure:"kafka"`
}

// MonitoringConfig groups metric exporters.
type MonitoringConfig struct {
	Prometheus prometheus.Config `mapstructure:"prometheus"`
}

// Config is the root configuration.
type Config struct {
	Log        logging.LogConfig `mapstructure:"log"`
	Pipeline   PipelineConfig    `mapstructure:"pipeline"`
	Optimizer  expansion.Config  `mapstructure:"optimizer"`
	Inputs     InputsConfig      `mapstructure:"inputs"`
	Outputs    OutputsConfig     `mapstructure:"outputs"`
	Cache      CacheConfig       `mapstructure:"cache"`
	Storage    StorageConfig     `mapstructure:"storage"`
	Messaging  MessagingConfig   `mapstructure:"messaging"`
	Monitoring MonitoringConfig  `mapstructure:"monitoring"`
}

// Validate checks every section.  Optional backends are validated only
// when enabled.
func (c *Config) Validate() error {
	if err := c.Log.Validate(); err != nil {
		return err
	}
	if c.Pipeline.MinPopulation < 0 {
		return errors.New(errors.ErrCodeConfigInvalid, "min_population must not be negative")
	}
	if err := c.Pipeline.Weights.Validate(); err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigInvalid, "invalid target weights")
	}
	if err := c.Pipeline.Scoring.Validate(); err != nil {
		return err
	}
	if err := c.Pipeline.Evaluator().Validate(); err != nil {
		return err
	}
	if err := c.Optimizer.Validate(); err != nil {
		return err
	}
	if c.Outputs.Dir == "" {
		return errors.New(errors.ErrCodeConfigInvalid, "outputs.dir is required")
	}
	if c.Cache.Redis.Enabled {
		if err := c.Cache.Redis.Validate(); err != nil {
			return err
		}
	}
	if c.Storage.MinIO.Enabled {
		if err := c.Storage.MinIO.Validate(); err != nil {
			return err
		}
	}
	if c.Messaging.Kafka.Enabled {
		if err := c.Messaging.Kafka.Validate(); err != nil {
			return err
		}
	}
	return c.Monitoring.Prometheus.Validate()
}
