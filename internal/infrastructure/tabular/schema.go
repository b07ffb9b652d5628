// Package tabular reads and writes the flat files exchanged by the siting
// engine: ';'-separated CSV and, for inputs, .xlsx workbooks.  Column names
// are bound through explicit schemas at this boundary so the domain never
// sees raw headers.
package tabular

import (
	"strings"

	"github.com/turtacn/lsoma/pkg/errors"
)

// NumberFormat selects how a numeric cell is parsed.
type NumberFormat int

const (
	// Decimal accepts "1234.5" or "1234,5" without grouping.
	Decimal NumberFormat = iota
	// Spanish drops '.' grouping and reads ',' as the decimal mark.
	Spanish
)

// Column declares one schema column.  Aliases are matched case-insensitively
// after trimming; no other normalization is applied.
type Column struct {
	Name     string
	Aliases  []string
	Format   NumberFormat
	Optional bool
}

// Schema is an ordered set of columns.
type Schema struct {
	Name    string
	Columns []Column
}

// Header returns the canonical column names, in order.
func (s Schema) Header() []string {
	out := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		out[i] = c.Name
	}
	return out
}

// Binding maps schema columns to positions in a concrete header.
type Binding struct {
	schema Schema
	pos    map[string]int
	format map[string]NumberFormat
}

// Bind resolves every required column of s in header.
func (s Schema) Bind(header []string) (*Binding, error) {
	lookup := make(map[string]int, len(header))
	for i, h := range header {
		key := normalizeHeader(h)
		if _, dup := lookup[key]; !dup {
			lookup[key] = i
		}
	}
	b := &Binding{schema: s, pos: make(map[string]int), format: make(map[string]NumberFormat)}
	for _, c := range s.Columns {
		b.format[c.Name] = c.Format
		found := false
		for _, name := range append([]string{c.Name}, c.Aliases...) {
			if i, ok := lookup[normalizeHeader(name)]; ok {
				b.pos[c.Name] = i
				found = true
				break
			}
		}
		if !found && !c.Optional {
			return nil, errors.New(errors.ErrCodeColumnMissing, "required column missing").
				WithDetailf("table=%s column=%s header=%v", s.Name, c.Name, header)
		}
	}
	return b, nil
}

// Has reports whether column was found in the header.
func (b *Binding) Has(column string) bool {
	_, ok := b.pos[column]
	return ok
}

// Text returns the trimmed cell of column, or "" when absent.
func (b *Binding) Text(row []string, column string) string {
	i, ok := b.pos[column]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// Number parses the cell of column with its declared format.  ok is false
// for an empty or absent cell.
func (b *Binding) Number(row []string, column string) (v float64, ok bool, err error) {
	s := b.Text(row, column)
	if s == "" {
		return 0, false, nil
	}
	if b.format[column] == Spanish {
		v, err = ParseSpanish(s)
	} else {
		v, err = ParseDecimal(s)
	}
	if err != nil {
		return 0, false, errors.Wrap(err, errors.ErrCodeIORead, "unparseable number").
			WithDetailf("table=%s column=%s", b.schema.Name, column)
	}
	return v, true, nil
}

func normalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	h = strings.Trim(strings.TrimSpace(h), `"`)
	return strings.ToLower(h)
}

// Column names of the files the engine reads and writes.
const (
	ColUnit        = "seccion"
	ColSex         = "sexo"
	ColAge         = "edad"
	ColTotal       = "total"
	ColPeriod      = "periodo"
	ColLatitude    = "latitud"
	ColLongitude   = "longitud"
	ColIncome      = "renta_hogar"
	ColAgeRange    = "rango_edad"
	ColWeightMale  = "peso_hombres"
	ColWeightFem   = "peso_mujeres"
	ColProbMale    = "prob_hombres"
	ColProbFem     = "prob_mujeres"
	ColPopulation  = "poblacion_total"
	ColResonance   = "resonancia"
	ColEconomic    = "factor_economico"
	ColBurnout     = "factor_burnout"
	ColScore       = "score"
	ColClusterID   = "cluster_id"
	ColUnitCount   = "num_secciones"
	ColMeanIncome  = "renta_media"
	ColTargetPop   = "poblacion_target"
	ColBeds        = "camas"
	ColViable      = "viable"
	ColMeanScore   = "score_medio"
	ColIteration   = "iteracion"
	ColParams      = "params"
	ColSites       = "residencias"
	ColViableCount = "clusters_viables"
	ColTotalBeds   = "camas_totales"
	ColChanged     = "param_modificado"
	ColMetric      = "metrica"
	ColPrime       = "prime"
	ColExpanded    = "expandido"
	ColDelta       = "delta"
)

// PopulationSchema binds the census population source.  The INE export
// spells the unit column "Secciones".
var PopulationSchema = Schema{Name: "population", Columns: []Column{
	{Name: ColUnit, Aliases: []string{"secciones", "sección"}},
	{Name: ColSex},
	{Name: ColAge},
	{Name: ColTotal, Format: Spanish},
	{Name: ColPeriod, Optional: true},
}}

// AttributeSchema binds the unit attribute file.
var AttributeSchema = Schema{Name: "attributes", Columns: []Column{
	{Name: ColUnit, Aliases: []string{"secciones", "sección"}},
	{Name: ColLatitude, Aliases: []string{"lat"}, Optional: true},
	{Name: ColLongitude, Aliases: []string{"lon", "lng"}, Optional: true},
	{Name: ColIncome, Aliases: []string{"renta"}, Format: Spanish, Optional: true},
}}

// TargetSchema binds the target vector file.
var TargetSchema = Schema{Name: "target", Columns: []Column{
	{Name: ColAgeRange},
	{Name: ColWeightMale},
	{Name: ColWeightFem},
	{Name: ColProbMale},
	{Name: ColProbFem},
}}
