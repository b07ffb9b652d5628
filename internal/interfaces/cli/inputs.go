package cli

import (
	"context"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/turtacn/lsoma/internal/application/pipeline"
	"github.com/turtacn/lsoma/internal/domain/census"
	"github.com/turtacn/lsoma/internal/domain/demography"
	"github.com/turtacn/lsoma/internal/domain/params"
	"github.com/turtacn/lsoma/internal/domain/scoring"
	"github.com/turtacn/lsoma/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/lsoma/internal/infrastructure/tabular"
	"github.com/turtacn/lsoma/pkg/errors"
)

// readTable opens uri through the store and parses it by extension.
func readTable(ctx context.Context, cc *CLIContext, uri string) (*tabular.Table, error) {
	r, err := cc.Store.Open(ctx, uri)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	t, err := tabular.Read(r, tabular.FormatOf(uri), cc.Config.Inputs.Sheet)
	if err != nil {
		return nil, errors.Wrap(err, errors.GetCode(err), "reading table").WithDetailf("uri=%s", uri)
	}
	return t, nil
}

// outputURI joins name to the output directory unless name is already
// absolute or a URI.
func outputURI(dir, name string) string {
	if strings.Contains(name, "://") || filepath.IsAbs(name) {
		return name
	}
	if strings.Contains(dir, "://") {
		return strings.TrimSuffix(dir, "/") + "/" + name
	}
	return filepath.Join(dir, name)
}

// writeOutput creates the named output and hands it to write.
func writeOutput(ctx context.Context, cc *CLIContext, name string, write func(io.Writer) error) (string, error) {
	uri := outputURI(cc.Config.Outputs.Dir, name)
	w, err := cc.Store.Create(ctx, uri)
	if err != nil {
		return "", err
	}
	if err := write(w); err != nil {
		_ = w.Close()
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", errors.Wrap(err, errors.ErrCodeIOWrite, "closing output").WithDetailf("uri=%s", uri)
	}
	cc.Logger.Info("output written", logging.String("uri", uri))
	return uri, nil
}

// loadTarget reads inputs.target when set, else builds Q from the weights.
func loadTarget(ctx context.Context, cc *CLIContext) (*demography.TargetVector, error) {
	if uri := cc.Config.Inputs.Target; uri != "" {
		t, err := readTable(ctx, cc, uri)
		if err != nil {
			return nil, err
		}
		return tabular.ReadTarget(t)
	}
	return demography.BuildTargetVector(cc.Config.Pipeline.Weights)
}

// loadMatrix reads a prebuilt matrix from inputs.matrix, else builds one
// from inputs.population.  Attributes are attached when inputs.attributes
// is set.
func loadMatrix(ctx context.Context, cc *CLIContext) (*census.Matrix, error) {
	cfg := cc.Config
	log := cc.Logger
	var m *census.Matrix
	switch {
	case cfg.Inputs.Matrix != "":
		t, err := readTable(ctx, cc, cfg.Inputs.Matrix)
		if err != nil {
			return nil, err
		}
		rows, err := tabular.ReadMatrix(t)
		if err != nil {
			return nil, err
		}
		if m, err = census.FromRows(rows, cfg.Pipeline.MinPopulation, log); err != nil {
			return nil, err
		}
	case cfg.Inputs.Population != "":
		t, err := readTable(ctx, cc, cfg.Inputs.Population)
		if err != nil {
			return nil, err
		}
		raw, rep, err := tabular.ReadPopulation(t, cfg.Pipeline.Period)
		if err != nil {
			return nil, err
		}
		log.Info("population read",
			logging.String("period", rep.Period),
			logging.Int("rows", rep.Rows),
			logging.Int("kept", rep.Kept),
			logging.Int("aggregate_rows", rep.AggregateRows),
			logging.Int("other_periods", rep.OtherPeriods))
		if m, err = census.NewBuilder(cfg.Pipeline.MinPopulation, log).Build(raw); err != nil {
			return nil, err
		}
	default:
		return nil, errors.New(errors.ErrCodeConfigInvalid, "inputs.population or inputs.matrix is required")
	}

	if uri := cfg.Inputs.Attributes; uri != "" {
		t, err := readTable(ctx, cc, uri)
		if err != nil {
			return nil, err
		}
		attrs, err := tabular.ReadAttributes(t)
		if err != nil {
			return nil, err
		}
		rep := m.Attach(attrs, log)
		log.Info("attributes attached",
			logging.Int("matched", rep.Matched),
			logging.Int("missing_location", rep.MissingLocation),
			logging.Int("missing_income", rep.MissingIncome),
			logging.Int("unknown_units", rep.UnknownUnits))
	}
	return m, nil
}

// prepareTable loads Q and P and scores every unit.
func prepareTable(ctx context.Context, cc *CLIContext) (*scoring.Table, error) {
	q, err := loadTarget(ctx, cc)
	if err != nil {
		return nil, err
	}
	m, err := loadMatrix(ctx, cc)
	if err != nil {
		return nil, err
	}
	s, err := scoring.NewScorer(cc.Config.Pipeline.Scoring, q, cc.Logger)
	if err != nil {
		return nil, err
	}
	return s.Prepare(m)
}

func newEvaluator(cc *CLIContext, table *scoring.Table, opts ...pipeline.Option) (*pipeline.Evaluator, error) {
	opts = append([]pipeline.Option{pipeline.WithLogger(cc.Logger)}, opts...)
	return pipeline.NewEvaluator(table, cc.Config.Pipeline.Evaluator(), opts...)
}

// stateFlags overrides the prime Parameter State from the command line.
type stateFlags struct {
	percentile, share, incomePenalty, minBeds float64
}

func (f *stateFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.Float64Var(&f.percentile, "percentile", 0, "admission percentile (overrides optimizer.prime.percentile)")
	fl.Float64Var(&f.share, "share", 0, "market share (overrides optimizer.prime.share)")
	fl.Float64Var(&f.incomePenalty, "income-penalty", 0, "solvency penalty (overrides optimizer.prime.income_penalty)")
	fl.Float64Var(&f.minBeds, "min-beds", 0, "minimum viable beds (overrides optimizer.prime.min_beds)")
}

func (f *stateFlags) apply(cmd *cobra.Command, s params.State) (params.State, error) {
	fl := cmd.Flags()
	if fl.Changed("percentile") {
		s.Percentile = f.percentile
	}
	if fl.Changed("share") {
		s.Share = f.share
	}
	if fl.Changed("income-penalty") {
		s.IncomePenalty = f.incomePenalty
	}
	if fl.Changed("min-beds") {
		s.MinBeds = f.minBeds
	}
	return s, s.Validate()
}
