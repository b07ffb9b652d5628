package config

import (
	"time"

	"github.com/spf13/viper"

	"github.com/turtacn/lsoma/internal/application/expansion"
	"github.com/turtacn/lsoma/internal/application/pipeline"
	"github.com/turtacn/lsoma/internal/domain/census"
	"github.com/turtacn/lsoma/internal/domain/demography"
	"github.com/turtacn/lsoma/internal/domain/params"
	"github.com/turtacn/lsoma/internal/domain/scoring"
	"github.com/turtacn/lsoma/internal/infrastructure/monitoring/logging"
)

const (
	DefaultLogLevel  = logging.LevelInfo
	DefaultLogFormat = logging.FormatJSON

	DefaultOutputDir = "out"

	DefaultRedisAddr     = "localhost:6379"
	DefaultRedisPrefix   = "lsoma:"
	DefaultRedisTTL      = 24 * time.Hour
	DefaultMinIOEndpoint = "localhost:9000"
	DefaultKafkaBroker   = "localhost:9092"
	DefaultTopicPrefix   = "lsoma"
	DefaultNamespace     = "lsoma"
)

// Default output file names.
const (
	DefaultTargetFile     = "target_vector_Q.csv"
	DefaultMatrixFile     = "matriz_P.csv"
	DefaultRankingFile    = "ranking_score_final.csv"
	DefaultClustersFile   = "expansion_clusters_final.csv"
	DefaultPointsFile     = "ranking_puntos_con_cluster.csv"
	DefaultLogFile        = "expansion_log.csv"
	DefaultComparisonFile = "expansion_comparativa.csv"
)

// Default returns a configuration with every field at its default.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills every zero-value field in cfg.  Explicit values win.
// Backend sections are filled by their own ApplyDefaults so that an enabled
// backend validates against the values it will connect with.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}

	p := &cfg.Pipeline
	if p.MinPopulation == 0 {
		p.MinPopulation = census.DefaultMinPopulation
	}
	if len(p.Weights.Bands) == 0 {
		p.Weights.Bands = demography.DefaultWeights().Bands
	}
	if p.Weights.FemaleMultiplier == 0 {
		p.Weights.FemaleMultiplier = demography.DefaultWeights().FemaleMultiplier
	}
	if p.Scoring == (scoring.Config{}) {
		p.Scoring = scoring.DefaultConfig()
	}
	ev := pipeline.DefaultConfig()
	if p.Clustering.RadiusKm == 0 {
		p.Clustering.RadiusKm = ev.Clustering.RadiusKm
	}
	if p.Clustering.MinNeighbors == 0 {
		p.Clustering.MinNeighbors = ev.Clustering.MinNeighbors
	}
	if p.BedsPerFacility == 0 {
		p.BedsPerFacility = ev.BedsPerFacility
	}

	o := &cfg.Optimizer
	opt := expansion.DefaultConfig()
	if o.Prime == (params.State{}) {
		o.Prime = opt.Prime
	}
	if o.Limits == (params.Limits{}) {
		o.Limits = opt.Limits
	}
	if o.TargetSites == 0 {
		o.TargetSites = opt.TargetSites
	}
	if o.MaxIterations == 0 {
		o.MaxIterations = opt.MaxIterations
	}
	if o.Workers == 0 {
		o.Workers = opt.Workers
	}

	out := &cfg.Outputs
	if out.Dir == "" {
		out.Dir = DefaultOutputDir
	}
	fill := func(s *string, v string) {
		if *s == "" {
			*s = v
		}
	}
	fill(&out.Target, DefaultTargetFile)
	fill(&out.Matrix, DefaultMatrixFile)
	fill(&out.Ranking, DefaultRankingFile)
	fill(&out.Clusters, DefaultClustersFile)
	fill(&out.Points, DefaultPointsFile)
	fill(&out.Log, DefaultLogFile)
	fill(&out.Comparison, DefaultComparisonFile)

	if cfg.Cache.Redis.Addr == "" && cfg.Cache.Redis.Mode == "" {
		cfg.Cache.Redis.Addr = DefaultRedisAddr
	}
	cfg.Cache.Redis.ApplyDefaults()
	if cfg.Storage.MinIO.Endpoint == "" {
		cfg.Storage.MinIO.Endpoint = DefaultMinIOEndpoint
	}
	cfg.Storage.MinIO.ApplyDefaults()
	if len(cfg.Messaging.Kafka.Brokers) == 0 {
		cfg.Messaging.Kafka.Brokers = []string{DefaultKafkaBroker}
	}
	cfg.Messaging.Kafka.ApplyDefaults()
	cfg.Monitoring.Prometheus.ApplyDefaults()
}

// setDefaults registers every scalar key with v so that env-only loading
// sees them; AutomaticEnv only resolves keys viper already knows.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.output_paths", []string{"stderr"})

	v.SetDefault("pipeline.period", "")
	v.SetDefault("pipeline.min_population", d.Pipeline.MinPopulation)
	bands := make([]map[string]interface{}, 0, len(d.Pipeline.Weights.Bands))
	for _, b := range d.Pipeline.Weights.Bands {
		bands = append(bands, map[string]interface{}{"min_age": b.MinAge, "weight": b.Weight})
	}
	v.SetDefault("pipeline.weights.bands", bands)
	v.SetDefault("pipeline.weights.female_multiplier", d.Pipeline.Weights.FemaleMultiplier)
	econ := d.Pipeline.Scoring.Economic
	v.SetDefault("pipeline.scoring.economic.income_floor", econ.IncomeFloor)
	v.SetDefault("pipeline.scoring.economic.income_ceiling", econ.IncomeCeiling)
	v.SetDefault("pipeline.scoring.economic.reference_income", econ.ReferenceIncome)
	pr := d.Pipeline.Scoring.Pressure
	v.SetDefault("pipeline.scoring.pressure.caregiver_min_age", pr.CaregiverMinAge)
	v.SetDefault("pipeline.scoring.pressure.caregiver_max_age", pr.CaregiverMaxAge)
	v.SetDefault("pipeline.scoring.pressure.dependent_min_age", pr.DependentMinAge)
	v.SetDefault("pipeline.scoring.pressure.epsilon", pr.Epsilon)
	v.SetDefault("pipeline.scoring.pressure.clip_low", pr.ClipLow)
	v.SetDefault("pipeline.scoring.pressure.clip_high", pr.ClipHigh)
	v.SetDefault("pipeline.clustering.radius_km", d.Pipeline.Clustering.RadiusKm)
	v.SetDefault("pipeline.clustering.min_neighbors", d.Pipeline.Clustering.MinNeighbors)
	v.SetDefault("pipeline.beds_per_facility", d.Pipeline.BedsPerFacility)

	prime := d.Optimizer.Prime
	v.SetDefault("optimizer.prime.percentile", prime.Percentile)
	v.SetDefault("optimizer.prime.share", prime.Share)
	v.SetDefault("optimizer.prime.income_penalty", prime.IncomePenalty)
	v.SetDefault("optimizer.prime.min_beds", prime.MinBeds)
	for _, dim := range params.Dimensions() {
		lim := d.Optimizer.Limits.For(dim)
		key := "optimizer.limits." + dim.String()
		v.SetDefault(key+".step", lim.Step)
		v.SetDefault(key+".boundary", lim.Boundary)
		v.SetDefault(key+".tier", lim.Tier)
	}
	v.SetDefault("optimizer.target_sites", d.Optimizer.TargetSites)
	v.SetDefault("optimizer.max_iterations", d.Optimizer.MaxIterations)
	v.SetDefault("optimizer.workers", d.Optimizer.Workers)

	for _, k := range []string{"population", "attributes", "target", "matrix", "sheet"} {
		v.SetDefault("inputs."+k, "")
	}
	v.SetDefault("outputs.dir", d.Outputs.Dir)
	v.SetDefault("outputs.target", d.Outputs.Target)
	v.SetDefault("outputs.matrix", d.Outputs.Matrix)
	v.SetDefault("outputs.ranking", d.Outputs.Ranking)
	v.SetDefault("outputs.clusters", d.Outputs.Clusters)
	v.SetDefault("outputs.points", d.Outputs.Points)
	v.SetDefault("outputs.log", d.Outputs.Log)
	v.SetDefault("outputs.comparison", d.Outputs.Comparison)

	r := d.Cache.Redis
	v.SetDefault("cache.redis.enabled", false)
	v.SetDefault("cache.redis.mode", r.Mode)
	v.SetDefault("cache.redis.addr", r.Addr)
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.key_prefix", r.KeyPrefix)
	v.SetDefault("cache.redis.ttl", r.TTL)

	m := d.Storage.MinIO
	v.SetDefault("storage.minio.enabled", false)
	v.SetDefault("storage.minio.endpoint", m.Endpoint)
	v.SetDefault("storage.minio.access_key_id", "")
	v.SetDefault("storage.minio.secret_access_key", "")
	v.SetDefault("storage.minio.use_ssl", false)
	v.SetDefault("storage.minio.region", m.Region)
	v.SetDefault("storage.minio.create_buckets", false)

	k := d.Messaging.Kafka
	v.SetDefault("messaging.kafka.enabled", false)
	v.SetDefault("messaging.kafka.brokers", k.Brokers)
	v.SetDefault("messaging.kafka.topic_prefix", k.TopicPrefix)
	v.SetDefault("messaging.kafka.create_topics", false)

	pm := d.Monitoring.Prometheus
	v.SetDefault("monitoring.prometheus.enabled", false)
	v.SetDefault("monitoring.prometheus.namespace", pm.Namespace)
	v.SetDefault("monitoring.prometheus.job", pm.Job)
	v.SetDefault("monitoring.prometheus.textfile_path", "")
	v.SetDefault("monitoring.prometheus.pushgateway_url", "")
}
