package cli

import (
	"context"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/turtacn/lsoma/internal/application/expansion"
	"github.com/turtacn/lsoma/internal/application/pipeline"
	"github.com/turtacn/lsoma/internal/infrastructure/cache/redis"
	"github.com/turtacn/lsoma/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/lsoma/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/lsoma/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/lsoma/internal/infrastructure/tabular"
)

type expandOptions struct {
	state         stateFlags
	targetSites   int
	maxIterations int
	workers       int
	noLock        bool
	invalidate    bool
}

func newExpandCmd() *cobra.Command {
	opts := &expandOptions{}
	cmd := &cobra.Command{
		Use:   "expand",
		Short: "Relax the selection constraints until the target number of sites is reached",
		Long: "expand starts from the prime Parameter State and relaxes, one step per\n" +
			"iteration, the constraint with the best risk-adjusted gain in sites.  It\n" +
			"writes the iteration log, the final clusters and points, and the prime\n" +
			"against expanded comparison.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			return runExpand(cmd, cc, opts)
		},
	}
	opts.state.register(cmd)
	fl := cmd.Flags()
	fl.IntVar(&opts.targetSites, "target-sites", 0, "sites to reach (overrides optimizer.target_sites)")
	fl.IntVar(&opts.maxIterations, "max-iterations", 0, "iteration ceiling (overrides optimizer.max_iterations)")
	fl.IntVar(&opts.workers, "workers", 0, "parallel evaluations per iteration (overrides optimizer.workers)")
	fl.BoolVar(&opts.noLock, "no-lock", false, "skip the run lock when the redis cache is enabled")
	fl.BoolVar(&opts.invalidate, "invalidate-cache", false, "drop summaries cached for this dataset before the run")
	return cmd
}

func (o *expandOptions) config(cmd *cobra.Command, base expansion.Config) (expansion.Config, error) {
	cfg := base
	fl := cmd.Flags()
	if fl.Changed("target-sites") {
		cfg.TargetSites = o.targetSites
	}
	if fl.Changed("max-iterations") {
		cfg.MaxIterations = o.maxIterations
	}
	if fl.Changed("workers") {
		cfg.Workers = o.workers
	}
	prime, err := o.state.apply(cmd, cfg.Prime)
	if err != nil {
		return cfg, err
	}
	cfg.Prime = prime
	return cfg, cfg.Validate()
}

func runExpand(cmd *cobra.Command, cc *CLIContext, opts *expandOptions) error {
	ctx := cmd.Context()
	cfg := cc.Config
	log := cc.Logger

	runCfg, err := opts.config(cmd, cfg.Optimizer)
	if err != nil {
		return err
	}
	table, err := prepareTable(ctx, cc)
	if err != nil {
		return err
	}

	var (
		evalOpts  []pipeline.Option
		optOpts   = []expansion.Option{expansion.WithLogger(log)}
		collector *prometheus.Collector
		client    *redis.Client
		cache     *redis.SummaryCache
	)
	if cfg.Monitoring.Prometheus.Enabled {
		if collector, err = prometheus.NewCollector(cfg.Monitoring.Prometheus, log); err != nil {
			return err
		}
		metrics, err := prometheus.NewEngineMetrics(collector)
		if err != nil {
			return err
		}
		evalOpts = append(evalOpts, pipeline.WithObserver(metrics))
		optOpts = append(optOpts, expansion.WithRecorder(metrics))
	}
	if cfg.Cache.Redis.Enabled {
		if client, err = redis.NewClient(ctx, cfg.Cache.Redis, log); err != nil {
			return err
		}
		defer client.Close()
		cache = redis.NewSummaryCache(client)
		evalOpts = append(evalOpts, pipeline.WithCache(cache))
	}

	eval, err := newEvaluator(cc, table, evalOpts...)
	if err != nil {
		return err
	}
	if opts.invalidate {
		if cache == nil {
			log.Warn("--invalidate-cache ignored, redis cache is disabled")
		} else if _, err := cache.Invalidate(ctx, eval.Fingerprint()); err != nil {
			return err
		}
	}

	if client != nil && !opts.noLock {
		lock := redis.NewRunLock(client, "expand:"+eval.Fingerprint()+":"+strconv.Itoa(runCfg.TargetSites), redis.DefaultLockTTL)
		if err := lock.Acquire(ctx); err != nil {
			return err
		}
		defer func() {
			if err := lock.Release(context.Background()); err != nil {
				log.Warn("releasing run lock failed", logging.Err(err))
			}
		}()
	}

	if cfg.Messaging.Kafka.Enabled {
		kc := cfg.Messaging.Kafka
		if kc.CreateTopics {
			tm, err := kafka.DialTopicManager(ctx, kc.Brokers, log)
			if err != nil {
				return err
			}
			err = tm.EnsureTopics(kc.TopicPrefix, kc.Partitions, kc.Replication)
			_ = tm.Close()
			if err != nil {
				return err
			}
		}
		producer, err := kafka.NewProducer(kc, log)
		if err != nil {
			return err
		}
		defer producer.Close()
		optOpts = append(optOpts, expansion.WithPublisher(kafka.NewPublisher(producer)))
	}

	opt, err := expansion.NewOptimizer(eval, runCfg, optOpts...)
	if err != nil {
		return err
	}
	res, err := opt.Run(ctx)
	if err != nil {
		return err
	}

	outs, err := writeExpansion(ctx, cc, res)
	if err != nil {
		return err
	}
	if collector != nil {
		if err := collector.Flush(ctx, res.RunID); err != nil {
			log.Warn("exporting metrics failed", logging.Err(err))
		}
	}
	return PrintResult(cmd, expandResult(res, outs))
}

type expansionOutputs struct {
	log, clusters, points, comparison string
}

func writeExpansion(ctx context.Context, cc *CLIContext, res *expansion.Result) (expansionOutputs, error) {
	var (
		outs expansionOutputs
		err  error
	)
	names := cc.Config.Outputs
	if outs.log, err = writeOutput(ctx, cc, names.Log, func(w io.Writer) error {
		return tabular.WriteLog(w, res.Log)
	}); err != nil {
		return outs, err
	}
	if outs.clusters, err = writeOutput(ctx, cc, names.Clusters, func(w io.Writer) error {
		return tabular.WriteClusters(w, res.Final.Clusters)
	}); err != nil {
		return outs, err
	}
	if outs.points, err = writeOutput(ctx, cc, names.Points, func(w io.Writer) error {
		return tabular.WritePoints(w, res.Final.Points())
	}); err != nil {
		return outs, err
	}
	if outs.comparison, err = writeOutput(ctx, cc, names.Comparison, func(w io.Writer) error {
		return tabular.WriteComparison(w, expansion.Compare(res))
	}); err != nil {
		return outs, err
	}
	return outs, nil
}

func expandResult(res *expansion.Result, outs expansionOutputs) result {
	r := result{
		{"run_id", res.RunID},
		{"outcome", string(res.Outcome)},
		{"best_effort", res.Outcome.BestEffort()},
		{"target", res.Target},
		{"iterations", res.Iterations()},
		{"prime_params", res.Prime.State.String()},
		{"final_params", res.Final.State.String()},
		{"prime_sites", res.Prime.Summary.Sites},
		{"final_sites", res.Final.Summary.Sites},
		{"deficit", res.Deficit()},
	}
	for _, m := range expansion.Compare(res) {
		r = append(r, field{"delta_" + m.Name, m.Delta()})
	}
	return append(r,
		field{"log_output", outs.log},
		field{"clusters_output", outs.clusters},
		field{"points_output", outs.points},
		field{"comparison_output", outs.comparison},
	)
}
