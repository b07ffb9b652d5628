package tabular

import (
	"github.com/turtacn/lsoma/internal/domain/census"
	"github.com/turtacn/lsoma/pkg/errors"
)

// ReadAttributes binds a unit attribute table.  Empty cells become nil
// fields; a unit listed twice is an error.
func ReadAttributes(t *Table) ([]census.Attribute, error) {
	b, err := AttributeSchema.Bind(t.Header)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(t.Rows))
	out := make([]census.Attribute, 0, len(t.Rows))
	for _, row := range t.Rows {
		id, ok := unitID(b.Text(row, ColUnit))
		if !ok {
			continue
		}
		if seen[id] {
			return nil, errors.New(errors.ErrCodeDuplicateUnit, "unit appears twice in attribute table").
				WithDetailf("unit=%s", id)
		}
		seen[id] = true

		a := census.Attribute{UnitID: id}
		if a.Latitude, err = optional(b, row, ColLatitude); err != nil {
			return nil, err
		}
		if a.Longitude, err = optional(b, row, ColLongitude); err != nil {
			return nil, err
		}
		if a.Income, err = optional(b, row, ColIncome); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func optional(b *Binding, row []string, col string) (*float64, error) {
	v, ok, err := b.Number(row, col)
	if err != nil || !ok {
		return nil, err
	}
	return &v, nil
}
