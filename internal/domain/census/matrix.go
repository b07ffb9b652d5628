package census

import (
	"math"
	"sort"

	"github.com/paulmach/orb"
	"gonum.org/v1/gonum/floats"

	"github.com/turtacn/lsoma/internal/domain/demography"
	"github.com/turtacn/lsoma/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/lsoma/pkg/errors"
)

// DefaultMinPopulation is the anti-noise threshold below which a unit is
// excluded from the matrix.
const DefaultMinPopulation = 400

// Exclusion records a unit dropped by the builder.
type Exclusion struct {
	UnitID string
	Total  float64
	Reason string
}

// Matrix is the population matrix: retained units sorted by ID.
type Matrix struct {
	units    []*Unit
	index    map[string]int
	excluded []Exclusion
}

// Units returns the retained units in ID order.  The slice must not be
// modified.
func (m *Matrix) Units() []*Unit { return m.units }

// Len returns the number of retained units.
func (m *Matrix) Len() int { return len(m.units) }

// Unit looks a unit up by ID.
func (m *Matrix) Unit(id string) (*Unit, bool) {
	i, ok := m.index[id]
	if !ok {
		return nil, false
	}
	return m.units[i], true
}

// Excluded returns the units dropped while building.
func (m *Matrix) Excluded() []Exclusion { return m.excluded }

// Builder builds a Matrix from raw counts.
type Builder struct {
	minPopulation float64
	logger        logging.Logger
}

// NewBuilder returns a Builder with the given minimum-population threshold.
func NewBuilder(minPopulation float64, log logging.Logger) *Builder {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Builder{minPopulation: minPopulation, logger: log.Named("census")}
}

// Build pivots raw counts into per-unit vectors, drops units below the
// minimum-population threshold and row-normalizes the rest.
func (b *Builder) Build(rows []RawCount) (*Matrix, error) {
	if len(rows) == 0 {
		return nil, errors.New(errors.ErrCodeEmptyCandidateSet, "population source has no rows")
	}
	counts := make(map[string][]float64)
	for _, r := range rows {
		sex, ok := demography.ParseSex(r.Sex)
		if !ok {
			return nil, errors.New(errors.ErrCodeSchemaMismatch, "sex label not in bucket catalog").
				WithDetailf("unit=%s sex=%q", r.UnitID, r.Sex)
		}
		idx, ok := demography.IndexFor(sex, r.AgeRange)
		if !ok {
			return nil, errors.New(errors.ErrCodeSchemaMismatch, "age range not in bucket catalog").
				WithDetailf("unit=%s range=%q", r.UnitID, r.AgeRange)
		}
		if r.Count < 0 || math.IsNaN(r.Count) {
			return nil, errors.New(errors.ErrCodeCensusRowInvalid, "negative population count").
				WithDetailf("unit=%s bucket=%s_%s count=%g", r.UnitID, sex, r.AgeRange, r.Count)
		}
		v, ok := counts[r.UnitID]
		if !ok {
			v = make([]float64, demography.NumBuckets)
			counts[r.UnitID] = v
		}
		v[idx] += r.Count
	}

	ids := make([]string, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	m := &Matrix{index: make(map[string]int, len(ids))}
	for _, id := range ids {
		v := counts[id]
		total := floats.Sum(v)
		if total <= 0 || total < b.minPopulation {
			reason := "below minimum population"
			if total <= 0 {
				reason = "zero population"
			}
			m.excluded = append(m.excluded, Exclusion{UnitID: id, Total: total, Reason: reason})
			b.logger.Debug("unit excluded from population matrix",
				logging.String("unit", id), logging.Float64("total", total), logging.String("reason", reason))
			continue
		}
		floats.Scale(1/total, v)
		m.add(&Unit{ID: id, Total: total, P: v})
	}

	b.logger.Info("population matrix built",
		logging.Int("retained", len(m.units)),
		logging.Int("excluded", len(m.excluded)),
		logging.Float64("min_population", b.minPopulation))

	if len(m.units) == 0 {
		return nil, errors.New(errors.ErrCodeEmptyCandidateSet, "no unit passed the population threshold").
			WithDetailf("units=%d min_population=%g", len(ids), b.minPopulation)
	}
	return m, nil
}

func (m *Matrix) add(u *Unit) {
	m.index[u.ID] = len(m.units)
	m.units = append(m.units, u)
}

// MatrixRow is one row of the population matrix artifact keyed by bucket.
type MatrixRow struct {
	UnitID string
	Total  float64
	Probs  map[string]float64
}

// FromRows rebuilds a Matrix from a previously written artifact.  Unknown
// bucket keys are fatal; catalog buckets absent from the artifact read as 0
// and rows must still sum to 1.
func FromRows(rows []MatrixRow, minPopulation float64, log logging.Logger) (*Matrix, error) {
	if log == nil {
		log = logging.NewNopLogger()
	}
	sorted := make([]MatrixRow, len(rows))
	copy(sorted, rows)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].UnitID < sorted[j].UnitID })

	m := &Matrix{index: make(map[string]int, len(rows))}
	overlap := false
	for _, r := range sorted {
		if _, dup := m.index[r.UnitID]; dup {
			return nil, errors.New(errors.ErrCodeDuplicateUnit, "unit appears twice in population matrix").
				WithDetailf("unit=%s", r.UnitID)
		}
		p := make([]float64, demography.NumBuckets)
		for key, v := range r.Probs {
			i, ok := demography.IndexOf(key)
			if !ok {
				return nil, errors.New(errors.ErrCodeSchemaMismatch, "bucket not in catalog").
					WithDetailf("key=%q", key)
			}
			overlap = true
			p[i] = v
		}
		if r.Total < minPopulation || r.Total <= 0 {
			m.excluded = append(m.excluded, Exclusion{UnitID: r.UnitID, Total: r.Total, Reason: "below minimum population"})
			continue
		}
		if err := demography.CheckDistribution(p); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeMalformedVector, "population matrix row").
				WithDetailf("unit=%s", r.UnitID)
		}
		m.add(&Unit{ID: r.UnitID, Total: r.Total, P: p})
	}
	if len(rows) > 0 && !overlap {
		return nil, errors.New(errors.ErrCodeSchemaMismatch, "population matrix shares no bucket with the catalog")
	}
	if len(m.units) == 0 {
		return nil, errors.New(errors.ErrCodeEmptyCandidateSet, "population matrix has no retained unit")
	}
	log.Named("census").Info("population matrix loaded",
		logging.Int("retained", len(m.units)), logging.Int("excluded", len(m.excluded)))
	return m, nil
}

// AttachReport summarizes an Attach call.
type AttachReport struct {
	Matched         int
	MissingIncome   int
	MissingLocation int
	UnknownUnits    int
}

// Attach joins location and income attributes onto the retained units.
// Units without an attribute row keep income 0 and no location; attribute
// rows for units not in the matrix are counted and ignored.
func (m *Matrix) Attach(attrs []Attribute, log logging.Logger) AttachReport {
	if log == nil {
		log = logging.NewNopLogger()
	}
	log = log.Named("census")
	var rep AttachReport
	for _, a := range attrs {
		u, ok := m.Unit(a.UnitID)
		if !ok {
			rep.UnknownUnits++
			continue
		}
		rep.Matched++
		if a.Income != nil && !math.IsNaN(*a.Income) {
			u.Income, u.HasIncome = *a.Income, true
		}
		if a.Latitude != nil && a.Longitude != nil && validCoordinate(*a.Latitude, *a.Longitude) {
			u.Location = orb.Point{*a.Longitude, *a.Latitude}
			u.HasLocation = true
		}
	}
	for _, u := range m.units {
		if !u.HasIncome {
			rep.MissingIncome++
			log.Debug("unit has no income, imputing 0", logging.String("unit", u.ID))
		}
		if !u.HasLocation {
			rep.MissingLocation++
			log.Debug("unit has no coordinates, excluded from clustering", logging.String("unit", u.ID))
		}
	}
	if rep.MissingIncome > 0 || rep.MissingLocation > 0 {
		log.Warn("units with missing attributes",
			logging.Int("missing_income", rep.MissingIncome),
			logging.Int("missing_location", rep.MissingLocation))
	}
	return rep
}

func validCoordinate(lat, lon float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lon) {
		return false
	}
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}
