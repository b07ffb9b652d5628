package tabular

import (
	"io"

	"github.com/turtacn/lsoma/internal/domain/census"
	"github.com/turtacn/lsoma/internal/domain/demography"
)

var matrixSchema = Schema{Name: "matrix", Columns: []Column{
	{Name: ColUnit, Aliases: []string{"secciones"}},
	{Name: ColPopulation},
}}

// ReadMatrix reads a population matrix artifact.  Every column other than
// the unit and total columns is taken as a bucket key; census.FromRows
// rejects keys outside the catalog.
func ReadMatrix(t *Table) ([]census.MatrixRow, error) {
	b, err := matrixSchema.Bind(t.Header)
	if err != nil {
		return nil, err
	}
	unitCol, totalCol := b.pos[ColUnit], b.pos[ColPopulation]
	bucketCols := make(map[int]string)
	for i, h := range t.Header {
		if i == unitCol || i == totalCol {
			continue
		}
		bucketCols[i] = normalizeBucketKey(h)
	}

	out := make([]census.MatrixRow, 0, len(t.Rows))
	for _, row := range t.Rows {
		id, ok := unitID(b.Text(row, ColUnit))
		if !ok {
			continue
		}
		total, _, err := b.Number(row, ColPopulation)
		if err != nil {
			return nil, err
		}
		r := census.MatrixRow{UnitID: id, Total: total, Probs: make(map[string]float64, len(bucketCols))}
		for i, key := range bucketCols {
			if i >= len(row) || row[i] == "" {
				continue
			}
			v, err := ParseDecimal(row[i])
			if err != nil {
				return nil, err
			}
			r.Probs[key] = v
		}
		out = append(out, r)
	}
	return out, nil
}

// Header cells keep their case ("M_85-89"); only framing is stripped.
func normalizeBucketKey(h string) string {
	n := normalizeHeader(h)
	for _, k := range demography.BucketKeys() {
		if normalizeHeader(k) == n {
			return k
		}
	}
	return h
}

// WriteMatrix writes m with buckets in catalog order.
func WriteMatrix(w io.Writer, m *census.Matrix) error {
	cw := NewWriter(w)
	header := append([]string{ColUnit}, demography.BucketKeys()...)
	header = append(header, ColPopulation)
	if err := cw.Write(header...); err != nil {
		return err
	}
	rec := make([]string, len(header))
	for _, u := range m.Units() {
		rec[0] = u.ID
		for i, p := range u.P {
			rec[i+1] = FormatFloat(p)
		}
		rec[len(rec)-1] = FormatFloat(u.Total)
		if err := cw.Write(rec...); err != nil {
			return err
		}
	}
	return cw.Flush()
}
