// Package spatial groups admitted units into demand clusters with
// density-based clustering over great-circle distance.
package spatial

import (
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"github.com/turtacn/lsoma/pkg/errors"
)

// Noise is the label of points that belong to no cluster.
const Noise = -1

// MeanEarthRadiusKm is the radius the neighborhood distance is measured on.
const MeanEarthRadiusKm = 6371.0

// Default clustering constants.
const (
	DefaultRadiusKm     = 1.5
	DefaultMinNeighbors = 3
)

// Point is one located unit to be clustered.
type Point struct {
	ID       string
	Location orb.Point
}

// Params are the DBSCAN constants.  They are fixed for a whole pipeline run.
type Params struct {
	// RadiusKm is the neighborhood radius.
	RadiusKm float64 `mapstructure:"radius_km" json:"radius_km"`
	// MinNeighbors counts the point itself, so 3 means "itself plus two".
	MinNeighbors int `mapstructure:"min_neighbors" json:"min_neighbors"`
}

// DefaultParams returns the default constants.
func DefaultParams() Params {
	return Params{RadiusKm: DefaultRadiusKm, MinNeighbors: DefaultMinNeighbors}
}

// Validate checks that both constants are positive.
func (p Params) Validate() error {
	if !(p.RadiusKm > 0) {
		return errors.New(errors.ErrCodeClusteringParams, "radius must be positive").
			WithDetailf("radius_km=%g", p.RadiusKm)
	}
	if p.MinNeighbors < 1 {
		return errors.New(errors.ErrCodeClusteringParams, "min neighbors must be at least 1").
			WithDetailf("min_neighbors=%d", p.MinNeighbors)
	}
	return nil
}

// DistanceKm returns the haversine distance between a and b in kilometres.
func DistanceKm(a, b orb.Point) float64 {
	return geo.DistanceHaversine(a, b) / orb.EarthRadius * MeanEarthRadiusKm
}

// Result is a partition of the input points.
type Result struct {
	// Labels[i] is the cluster of points[i], or Noise.
	Labels []int
	// Clusters lists member indices per cluster.  Clusters are ordered by
	// their smallest member ID and members are sorted by ID, so label k is
	// stable for identical inputs.
	Clusters [][]int
}

// NoiseCount returns the number of noise points.
func (r Result) NoiseCount() int {
	n := 0
	for _, l := range r.Labels {
		if l == Noise {
			n++
		}
	}
	return n
}

// Clusterer partitions located points.
type Clusterer interface {
	Cluster(points []Point) (Result, error)
}

// DBSCAN is the density-based Clusterer.
type DBSCAN struct {
	params Params
}

// NewDBSCAN validates params and returns a DBSCAN clusterer.
func NewDBSCAN(params Params) (*DBSCAN, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &DBSCAN{params: params}, nil
}

// Params returns the clusterer's constants.
func (d *DBSCAN) Params() Params { return d.params }

// Cluster runs DBSCAN.  Points are visited in ID order so border points
// reachable from two clusters always join the same one.
func (d *DBSCAN) Cluster(points []Point) (Result, error) {
	n := len(points)
	res := Result{Labels: make([]int, n)}
	if n == 0 {
		return res, nil
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return points[order[a]].ID < points[order[b]].ID })

	idx := newGridIndex(points, d.params.RadiusKm)
	neighbors := make([][]int, n)
	for i := range points {
		neighbors[i] = idx.within(i)
	}

	const unvisited = -2
	for i := range res.Labels {
		res.Labels[i] = unvisited
	}

	label := 0
	for _, i := range order {
		if res.Labels[i] != unvisited {
			continue
		}
		if len(neighbors[i]) < d.params.MinNeighbors {
			res.Labels[i] = Noise
			continue
		}
		res.Labels[i] = label
		queue := append([]int(nil), neighbors[i]...)
		for len(queue) > 0 {
			q := queue[0]
			queue = queue[1:]
			if res.Labels[q] == Noise {
				res.Labels[q] = label
				continue
			}
			if res.Labels[q] != unvisited {
				continue
			}
			res.Labels[q] = label
			if len(neighbors[q]) >= d.params.MinNeighbors {
				queue = append(queue, neighbors[q]...)
			}
		}
		label++
	}

	res.relabel(points, label)
	return res, nil
}

// relabel orders clusters by smallest member ID.
func (r *Result) relabel(points []Point, count int) {
	groups := make([][]int, count)
	for i, l := range r.Labels {
		if l >= 0 {
			groups[l] = append(groups[l], i)
		}
	}
	for _, g := range groups {
		sort.Slice(g, func(a, b int) bool { return points[g[a]].ID < points[g[b]].ID })
	}
	sort.SliceStable(groups, func(a, b int) bool {
		return points[groups[a][0]].ID < points[groups[b][0]].ID
	})
	for k, g := range groups {
		for _, i := range g {
			r.Labels[i] = k
		}
	}
	r.Clusters = groups
}

// gridIndex buckets points into cells at least one radius wide so a
// neighborhood query only scans the 3×3 surrounding cells.
type gridIndex struct {
	points   []Point
	radiusKm float64
	latStep  float64
	lonStep  float64
	cells    map[[2]int][]int
}

const kmPerDegree = math.Pi * MeanEarthRadiusKm / 180

const lonMargin = 1.01

func newGridIndex(points []Point, radiusKm float64) *gridIndex {
	mp := make(orb.MultiPoint, len(points))
	for i, p := range points {
		mp[i] = p.Location
	}
	bound := mp.Bound()
	maxLat := math.Max(math.Abs(bound.Min.Lat()), math.Abs(bound.Max.Lat()))
	cos := math.Cos(math.Min(maxLat, 89) * math.Pi / 180)

	// A great circle between two points on a parallel is shorter than the
	// parallel arc, so cells get a margin past the arc width.
	g := &gridIndex{
		points:   points,
		radiusKm: radiusKm,
		latStep:  radiusKm / kmPerDegree,
		lonStep:  radiusKm / (kmPerDegree * cos) * lonMargin,
		cells:    make(map[[2]int][]int),
	}
	for i, p := range points {
		c := g.cell(p.Location)
		g.cells[c] = append(g.cells[c], i)
	}
	return g
}

func (g *gridIndex) cell(p orb.Point) [2]int {
	return [2]int{int(math.Floor(p.Lat() / g.latStep)), int(math.Floor(p.Lon() / g.lonStep))}
}

// within returns the indices within radius of point i, i included, in
// ascending index order.
func (g *gridIndex) within(i int) []int {
	c := g.cell(g.points[i].Location)
	var out []int
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			for _, j := range g.cells[[2]int{c[0] + dy, c[1] + dx}] {
				if j == i || DistanceKm(g.points[i].Location, g.points[j].Location) <= g.radiusKm {
					out = append(out, j)
				}
			}
		}
	}
	sort.Ints(out)
	return out
}
