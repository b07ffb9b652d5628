package expansion

import (
	"gonum.org/v1/gonum/stat"

	"github.com/turtacn/lsoma/internal/application/pipeline"
	"github.com/turtacn/lsoma/internal/domain/viability"
)

// Comparison metric names.
const (
	MetricSites          = "residencias"
	MetricViableClusters = "clusters_viables"
	MetricTotalBeds      = "camas_totales"
	MetricMeanIncome     = "renta_media_cluster"
	MetricMeanScore      = "score_medio_cluster"
	MetricMeanBeds       = "camas_medias_residencia"
)

// Metric is one row of the PRIME vs EXPANDED comparison.
type Metric struct {
	Name     string  `json:"metric"`
	Prime    float64 `json:"prime"`
	Expanded float64 `json:"expanded"`
}

// Delta is Expanded − Prime.
func (m Metric) Delta() float64 { return m.Expanded - m.Prime }

// Compare contrasts the prime and final evaluations of a run.  Cluster
// means are taken over viable clusters only.
func Compare(res *Result) []Metric {
	p, f := viableStats(res.Prime), viableStats(res.Final)
	return []Metric{
		{MetricSites, float64(res.Prime.Summary.Sites), float64(res.Final.Summary.Sites)},
		{MetricViableClusters, float64(res.Prime.Summary.ViableClusters), float64(res.Final.Summary.ViableClusters)},
		{MetricTotalBeds, res.Prime.Summary.TotalBeds, res.Final.Summary.TotalBeds},
		{MetricMeanIncome, p.income, f.income},
		{MetricMeanScore, p.score, f.score},
		{MetricMeanBeds, p.beds, f.beds},
	}
}

type clusterStats struct {
	income, score, beds float64
}

func viableStats(ev *pipeline.Evaluation) clusterStats {
	var incomes, scores, beds []float64
	for _, cl := range viability.Viable(ev.Clusters) {
		incomes = append(incomes, cl.MeanIncome)
		scores = append(scores, cl.MeanScore)
		beds = append(beds, cl.Beds)
	}
	if len(incomes) == 0 {
		return clusterStats{}
	}
	return clusterStats{
		income: stat.Mean(incomes, nil),
		score:  stat.Mean(scores, nil),
		beds:   stat.Mean(beds, nil),
	}
}
