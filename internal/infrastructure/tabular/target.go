package tabular

import (
	"io"

	"github.com/turtacn/lsoma/internal/domain/demography"
)

// ReadTarget rebuilds the target vector from its file.
func ReadTarget(t *Table) (*demography.TargetVector, error) {
	b, err := TargetSchema.Bind(t.Header)
	if err != nil {
		return nil, err
	}
	rows := make([]demography.TargetRow, 0, len(t.Rows))
	for _, row := range t.Rows {
		r := demography.TargetRow{AgeRange: b.Text(row, ColAgeRange)}
		for _, f := range []struct {
			col string
			dst *float64
		}{
			{ColWeightMale, &r.WeightMale},
			{ColWeightFem, &r.WeightFemale},
			{ColProbMale, &r.ProbMale},
			{ColProbFem, &r.ProbFemale},
		} {
			if *f.dst, _, err = b.Number(row, f.col); err != nil {
				return nil, err
			}
		}
		rows = append(rows, r)
	}
	return demography.TargetFromRows(rows)
}

// WriteTarget writes one row per age range in catalog order.
func WriteTarget(w io.Writer, q *demography.TargetVector) error {
	cw := NewWriter(w)
	if err := cw.Write(TargetSchema.Header()...); err != nil {
		return err
	}
	for _, r := range q.Rows() {
		err := cw.Write(r.AgeRange,
			FormatFloat(r.WeightMale), FormatFloat(r.WeightFemale),
			FormatFloat(r.ProbMale), FormatFloat(r.ProbFemale))
		if err != nil {
			return err
		}
	}
	return cw.Flush()
}
