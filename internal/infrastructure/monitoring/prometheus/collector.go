// Package prometheus collects batch run metrics and exports them at the end
// of a run, to a node-exporter textfile or to a Pushgateway.
package prometheus

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/turtacn/lsoma/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/lsoma/pkg/errors"
)

// Config holds collector and export settings.
type Config struct {
	Enabled              bool              `mapstructure:"enabled"`
	Namespace            string            `mapstructure:"namespace"`
	Subsystem            string            `mapstructure:"subsystem"`
	TextfilePath         string            `mapstructure:"textfile_path"`
	PushgatewayURL       string            `mapstructure:"pushgateway_url"`
	Job                  string            `mapstructure:"job"`
	EnableGoMetrics      bool              `mapstructure:"enable_go_metrics"`
	EnableProcessMetrics bool              `mapstructure:"enable_process_metrics"`
	ConstLabels          map[string]string `mapstructure:"const_labels"`
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Namespace == "" {
		c.Namespace = "lsoma"
	}
	if c.Job == "" {
		c.Job = "lsoma"
	}
}

// Validate requires a namespace and, when enabled, at least one export.
func (c Config) Validate() error {
	if c.Namespace == "" {
		return errors.New(errors.ErrCodeConfigInvalid, "metrics namespace is required")
	}
	if c.Enabled && c.TextfilePath == "" && c.PushgatewayURL == "" {
		return errors.New(errors.ErrCodeConfigInvalid, "metrics enabled without textfile_path or pushgateway_url")
	}
	return nil
}

// Collector owns a private registry.  Registration is idempotent per
// metric name.
type Collector struct {
	registry   *prometheus.Registry
	config     Config
	logger     logging.Logger
	mu         sync.Mutex
	registered map[string]prometheus.Collector
}

// NewCollector builds a collector over a fresh registry.
func NewCollector(cfg Config, log logging.Logger) (*Collector, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logging.NewNopLogger()
	}
	reg := prometheus.NewRegistry()
	if cfg.EnableProcessMetrics {
		reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{Namespace: cfg.Namespace}))
	}
	if cfg.EnableGoMetrics {
		reg.MustRegister(collectors.NewGoCollector())
	}
	return &Collector{
		registry:   reg,
		config:     cfg,
		logger:     log.Named("metrics"),
		registered: make(map[string]prometheus.Collector),
	}, nil
}

// Registry exposes the underlying registry as a gatherer.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Config returns the effective configuration.
func (c *Collector) Config() Config { return c.config }

func (c *Collector) register(name string, col prometheus.Collector) (prometheus.Collector, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fq := prometheus.BuildFQName(c.config.Namespace, c.config.Subsystem, name)
	if existing, ok := c.registered[fq]; ok {
		return existing, nil
	}
	if err := c.registry.Register(col); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to register metric").WithDetailf("name=%s", fq)
	}
	c.registered[fq] = col
	return col, nil
}

// Counter registers, or returns the already registered, counter vector.
func (c *Collector) Counter(name, help string, labels ...string) (*prometheus.CounterVec, error) {
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   c.config.Namespace,
		Subsystem:   c.config.Subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: c.config.ConstLabels,
	}, labels)
	got, err := c.register(name, vec)
	if err != nil {
		return nil, err
	}
	v, ok := got.(*prometheus.CounterVec)
	if !ok {
		return nil, errors.New(errors.ErrCodeInternal, "metric type mismatch").WithDetailf("name=%s type=counter", name)
	}
	return v, nil
}

// Gauge registers a gauge vector.
func (c *Collector) Gauge(name, help string, labels ...string) (*prometheus.GaugeVec, error) {
	vec := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace:   c.config.Namespace,
		Subsystem:   c.config.Subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: c.config.ConstLabels,
	}, labels)
	got, err := c.register(name, vec)
	if err != nil {
		return nil, err
	}
	v, ok := got.(*prometheus.GaugeVec)
	if !ok {
		return nil, errors.New(errors.ErrCodeInternal, "metric type mismatch").WithDetailf("name=%s type=gauge", name)
	}
	return v, nil
}

// Histogram registers a histogram vector; nil buckets use the client defaults.
func (c *Collector) Histogram(name, help string, buckets []float64, labels ...string) (*prometheus.HistogramVec, error) {
	if buckets == nil {
		buckets = prometheus.DefBuckets
	}
	vec := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   c.config.Namespace,
		Subsystem:   c.config.Subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: c.config.ConstLabels,
		Buckets:     buckets,
	}, labels)
	got, err := c.register(name, vec)
	if err != nil {
		return nil, err
	}
	v, ok := got.(*prometheus.HistogramVec)
	if !ok {
		return nil, errors.New(errors.ErrCodeInternal, "metric type mismatch").WithDetailf("name=%s type=histogram", name)
	}
	return v, nil
}

// Flush exports the registry: the textfile is rewritten atomically and the
// Pushgateway group is replaced, grouped by run ID when one is given.
func (c *Collector) Flush(ctx context.Context, runID string) error {
	if c.config.TextfilePath != "" {
		if err := os.MkdirAll(filepath.Dir(c.config.TextfilePath), 0o755); err != nil {
			return errors.Wrap(err, errors.ErrCodeIOWrite, "failed to create metrics directory")
		}
		if err := prometheus.WriteToTextfile(c.config.TextfilePath, c.registry); err != nil {
			return errors.Wrap(err, errors.ErrCodeIOWrite, "failed to write metrics textfile").
				WithDetailf("path=%s", c.config.TextfilePath)
		}
		c.logger.Debug("metrics written", logging.String("path", c.config.TextfilePath))
	}
	if c.config.PushgatewayURL != "" {
		p := push.New(c.config.PushgatewayURL, c.config.Job).Gatherer(c.registry)
		if runID != "" {
			p = p.Grouping("run_id", runID)
		}
		if err := p.PushContext(ctx); err != nil {
			return errors.Wrap(err, errors.ErrCodeExternalService, "failed to push metrics").
				WithDetailf("url=%s", c.config.PushgatewayURL)
		}
		c.logger.Debug("metrics pushed", logging.String("url", c.config.PushgatewayURL))
	}
	return nil
}
