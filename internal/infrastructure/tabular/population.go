package tabular

import (
	"regexp"
	"strings"

	"github.com/turtacn/lsoma/internal/domain/census"
	"github.com/turtacn/lsoma/internal/domain/demography"
	"github.com/turtacn/lsoma/pkg/errors"
)

// PopulationReport describes what ReadPopulation kept and dropped.
type PopulationReport struct {
	Period         string
	Rows           int
	Kept           int
	AggregateRows  int
	OtherPeriods   int
	BlankUnitRows  int
	PeriodsPresent []string
}

var yearRe = regexp.MustCompile(`\d{4}`)

// ReadPopulation binds a census population table and returns one RawCount
// per (unit, sex, age) row.  Aggregate rows ("Total", "Ambos sexos",
// "Todas las edades") are dropped.  When the table carries a period column
// only rows of period are kept; an empty period selects the latest one.
func ReadPopulation(t *Table, period string) ([]census.RawCount, PopulationReport, error) {
	rep := PopulationReport{Rows: len(t.Rows)}
	b, err := PopulationSchema.Bind(t.Header)
	if err != nil {
		return nil, rep, err
	}

	if b.Has(ColPeriod) {
		rep.PeriodsPresent = periods(b, t.Rows)
		if period == "" && len(rep.PeriodsPresent) > 0 {
			period = latestPeriod(rep.PeriodsPresent)
		}
		rep.Period = period
	}

	out := make([]census.RawCount, 0, len(t.Rows))
	for _, row := range t.Rows {
		if rep.Period != "" && b.Text(row, ColPeriod) != rep.Period {
			rep.OtherPeriods++
			continue
		}
		unit, ok := unitID(b.Text(row, ColUnit))
		if !ok {
			rep.BlankUnitRows++
			continue
		}
		sexLabel, ageLabel := b.Text(row, ColSex), b.Text(row, ColAge)
		sex, ok := demography.ParseSex(sexLabel)
		if !ok {
			if aggregateLabel(sexLabel) {
				rep.AggregateRows++
				continue
			}
			return nil, rep, errors.New(errors.ErrCodeSchemaMismatch, "sex label not recognised").
				WithDetailf("unit=%s sex=%q", unit, sexLabel)
		}
		if aggregateLabel(ageLabel) {
			rep.AggregateRows++
			continue
		}
		age, err := demography.NormalizeAgeRange(ageLabel)
		if err != nil {
			return nil, rep, err
		}
		count, _, err := b.Number(row, ColTotal)
		if err != nil {
			return nil, rep, err
		}
		out = append(out, census.RawCount{UnitID: unit, Sex: string(sex), AgeRange: age, Count: count})
	}
	rep.Kept = len(out)
	if len(out) == 0 {
		return nil, rep, errors.New(errors.ErrCodeEmptyCandidateSet, "population source has no usable rows").
			WithDetailf("rows=%d period=%q", rep.Rows, rep.Period)
	}
	return out, rep, nil
}

// unitID extracts the section code.  INE exports label sections as
// "2807901001 Madrid sección 01001"; only the leading code is kept.
func unitID(raw string) (string, bool) {
	if raw == "" || aggregateLabel(raw) {
		return "", false
	}
	first := strings.Fields(raw)[0]
	if isDigits(first) {
		return first, true
	}
	return raw, true
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

func aggregateLabel(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "total" || s == "ambos sexos" || strings.HasPrefix(s, "todas las edades") ||
		strings.HasPrefix(s, "total ")
}

func periods(b *Binding, rows [][]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, row := range rows {
		p := b.Text(row, ColPeriod)
		if p != "" && !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}

// latestPeriod orders periods by the year they mention and breaks ties on
// the label.
func latestPeriod(ps []string) string {
	best := ps[0]
	for _, p := range ps[1:] {
		by, py := yearRe.FindString(best), yearRe.FindString(p)
		if py > by || (py == by && p > best) {
			best = p
		}
	}
	return best
}
