package cli

import (
	"io"
	"math"

	"github.com/spf13/cobra"

	"github.com/turtacn/lsoma/internal/application/pipeline"
	"github.com/turtacn/lsoma/internal/domain/demography"
	"github.com/turtacn/lsoma/internal/domain/scoring"
	"github.com/turtacn/lsoma/internal/domain/viability"
	"github.com/turtacn/lsoma/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/lsoma/internal/infrastructure/tabular"
)

func newTargetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "target",
		Short: "Build the target vector Q from the weight schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			q, err := demography.BuildTargetVector(cc.Config.Pipeline.Weights)
			if err != nil {
				return err
			}
			uri, err := writeOutput(cmd.Context(), cc, cc.Config.Outputs.Target, func(w io.Writer) error {
				return tabular.WriteTarget(w, q)
			})
			if err != nil {
				return err
			}
			probs := q.Probs()
			top, topKey := 0.0, ""
			for i, key := range demography.BucketKeys() {
				if probs[i] > top {
					top, topKey = probs[i], key
				}
			}
			return PrintResult(cmd, result{
				{"output", uri},
				{"buckets", q.Len()},
				{"mass", q.Sum()},
				{"heaviest_bucket", topKey},
				{"heaviest_probability", top},
			})
		},
	}
}

func newMatrixCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "matrix",
		Short: "Build, audit and write the population matrix P",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			m, err := loadMatrix(cmd.Context(), cc)
			if err != nil {
				return err
			}
			audit := m.Audit()
			if !audit.ColumnsAligned || !audit.RowsWithinTol {
				cc.Logger.Warn("matrix audit failed",
					logging.Bool("columns_aligned", audit.ColumnsAligned),
					logging.Float64("max_row_deviation", audit.MaxRowDeviation))
			}
			uri, err := writeOutput(cmd.Context(), cc, cc.Config.Outputs.Matrix, func(w io.Writer) error {
				return tabular.WriteMatrix(w, m)
			})
			if err != nil {
				return err
			}
			return PrintResult(cmd, result{
				{"output", uri},
				{"retained", audit.Retained},
				{"excluded", audit.Excluded},
				{"columns", audit.Columns},
				{"columns_aligned", audit.ColumnsAligned},
				{"max_row_deviation", audit.MaxRowDeviation},
				{"rows_within_tolerance", audit.RowsWithinTol},
				{"mean_population", audit.MeanPopulation},
				{"total_population", audit.TotalPopulation},
			})
		},
	}
}

func newScoreCmd() *cobra.Command {
	var sf stateFlags
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score and rank every unit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			state, err := sf.apply(cmd, cc.Config.Optimizer.Prime)
			if err != nil {
				return err
			}
			table, err := prepareTable(cmd.Context(), cc)
			if err != nil {
				return err
			}
			scores := table.Score(state.IncomePenalty)
			scoring.Rank(scores)
			cut := pipeline.AdmissionCut(scores, state.Percentile)
			admitted := pipeline.Admit(scores, cut)

			uri, err := writeOutput(cmd.Context(), cc, cc.Config.Outputs.Ranking, func(w io.Writer) error {
				return tabular.WriteRanking(w, scores)
			})
			if err != nil {
				return err
			}
			res := result{
				{"output", uri},
				{"units", len(scores)},
				{"params", state.String()},
				{"cut", cut},
				{"admitted", len(admitted)},
			}
			if len(scores) > 0 {
				res = append(res, field{"top_unit", scores[0].UnitID}, field{"top_score", scores[0].Composite})
			}
			return PrintResult(cmd, res)
		},
	}
	sf.register(cmd)
	return cmd
}

func newClusterCmd() *cobra.Command {
	var sf stateFlags
	cmd := &cobra.Command{
		Use:   "cluster",
		Short: "Cluster the admitted units of one Parameter State and classify viability",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			state, err := sf.apply(cmd, cc.Config.Optimizer.Prime)
			if err != nil {
				return err
			}
			table, err := prepareTable(ctx, cc)
			if err != nil {
				return err
			}
			eval, err := newEvaluator(cc, table)
			if err != nil {
				return err
			}
			ev, err := eval.Evaluate(ctx, state)
			if err != nil {
				return err
			}
			clusters, err := writeOutput(ctx, cc, cc.Config.Outputs.Clusters, func(w io.Writer) error {
				return tabular.WriteClusters(w, ev.Clusters)
			})
			if err != nil {
				return err
			}
			points, err := writeOutput(ctx, cc, cc.Config.Outputs.Points, func(w io.Writer) error {
				return tabular.WritePoints(w, ev.Points())
			})
			if err != nil {
				return err
			}
			// Beds of the sub-critical cluster closest to the threshold.
			var nearest float64
			for _, cl := range viability.SubCritical(ev.Clusters) {
				nearest = math.Max(nearest, cl.Beds)
				cc.Logger.Debug("sub-critical cluster",
					logging.Int("cluster", cl.ID), logging.Int("units", cl.Count()), logging.Float64("beds", cl.Beds))
			}
			return PrintResult(cmd, result{
				{"clusters_output", clusters},
				{"points_output", points},
				{"params", state.String()},
				{"admitted", len(ev.Admitted)},
				{"clusters", len(ev.Clusters)},
				{"noise", ev.Partition.NoiseCount()},
				{"viable_clusters", ev.Summary.ViableClusters},
				{"total_beds", ev.Summary.TotalBeds},
				{"sites", ev.Summary.Sites},
				{"sub_critical_clusters", ev.Summary.SubCritical},
				{"sub_critical_beds", ev.Summary.SubCriticalBeds},
				{"nearest_sub_critical_beds", nearest},
			})
		},
	}
	sf.register(cmd)
	return cmd
}
