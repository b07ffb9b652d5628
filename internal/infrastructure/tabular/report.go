package tabular

import (
	"io"
	"strconv"

	"github.com/turtacn/lsoma/internal/application/expansion"
	"github.com/turtacn/lsoma/internal/application/pipeline"
	"github.com/turtacn/lsoma/internal/domain/scoring"
	"github.com/turtacn/lsoma/internal/domain/viability"
)

// Output headers.
var (
	RankingHeader    = []string{ColUnit, ColResonance, ColIncome, ColEconomic, ColBurnout, ColScore}
	ClusterHeader    = []string{ColClusterID, ColUnitCount, ColMeanIncome, ColTargetPop, ColBeds, ColViable, ColLatitude, ColLongitude, ColMeanScore}
	PointHeader      = []string{ColUnit, ColClusterID, ColViable, ColLatitude, ColLongitude, ColScore}
	LogHeader        = []string{ColIteration, ColParams, ColSites, ColViableCount, ColTotalBeds, ColChanged}
	ComparisonHeader = []string{ColMetric, ColPrime, ColExpanded, ColDelta}
)

// WriteRanking writes scores in the order given.
func WriteRanking(w io.Writer, scores []scoring.UnitScore) error {
	return writeAll(w, RankingHeader, len(scores), func(i int) []string {
		s := scores[i]
		return []string{s.UnitID,
			FormatFixed(s.Resonance, 6), FormatFixed(s.Income, 2),
			FormatFixed(s.Economic, 6), FormatFixed(s.Burnout, 6), FormatFixed(s.Composite, 6)}
	})
}

// WriteClusters writes one row per cluster in the order given.
func WriteClusters(w io.Writer, clusters []viability.Cluster) error {
	return writeAll(w, ClusterHeader, len(clusters), func(i int) []string {
		c := clusters[i]
		return []string{strconv.Itoa(c.ID), strconv.Itoa(c.Count()),
			FormatFixed(c.MeanIncome, 2), FormatFixed(c.TargetPopulation, 2),
			FormatFixed(c.Beds, 2), formatBool(c.Viable),
			FormatFixed(c.Centroid.Lat(), 6), FormatFixed(c.Centroid.Lon(), 6),
			FormatFixed(c.MeanScore, 6)}
	})
}

// WritePoints writes admitted units tagged with their cluster.  Noise rows
// carry cluster_id -1.
func WritePoints(w io.Writer, points []pipeline.Point) error {
	return writeAll(w, PointHeader, len(points), func(i int) []string {
		p := points[i]
		return []string{p.UnitID, strconv.Itoa(p.ClusterID), formatBool(p.Viable),
			FormatFixed(p.Lat, 6), FormatFixed(p.Lon, 6), FormatFixed(p.Score, 6)}
	})
}

// WriteLog writes the iteration log.
func WriteLog(w io.Writer, log []expansion.Record) error {
	return writeAll(w, LogHeader, len(log), func(i int) []string {
		r := log[i]
		return []string{strconv.Itoa(r.Iteration), r.Params, strconv.Itoa(r.Sites),
			strconv.Itoa(r.ViableClusters), FormatFixed(r.TotalBeds, 2), r.Changed}
	})
}

// WriteComparison writes the prime against expanded metrics.
func WriteComparison(w io.Writer, metrics []expansion.Metric) error {
	return writeAll(w, ComparisonHeader, len(metrics), func(i int) []string {
		m := metrics[i]
		return []string{m.Name, FormatFixed(m.Prime, 2), FormatFixed(m.Expanded, 2), FormatFixed(m.Delta(), 2)}
	})
}

func writeAll(w io.Writer, header []string, n int, row func(int) []string) error {
	cw := NewWriter(w)
	if err := cw.Write(header...); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		if err := cw.Write(row(i)...); err != nil {
			return err
		}
	}
	return cw.Flush()
}

func formatBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
