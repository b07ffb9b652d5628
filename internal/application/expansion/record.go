package expansion

import (
	"github.com/turtacn/lsoma/internal/domain/params"
	"github.com/turtacn/lsoma/internal/domain/viability"
)

// Outcome is how an optimizer run ended.
type Outcome string

const (
	TargetReached     Outcome = "target_reached"
	BoundaryExhausted Outcome = "boundary_exhausted"
	IterationCeiling  Outcome = "iteration_ceiling"
)

// BestEffort reports whether the run stopped short of the target.
func (o Outcome) BestEffort() bool { return o != TargetReached }

// Record is one row of the iteration log.
type Record struct {
	Iteration      int          `json:"iteration"`
	State          params.State `json:"state"`
	Params         string       `json:"params"`
	Sites          int          `json:"sites"`
	ViableClusters int          `json:"viable_clusters"`
	TotalBeds      float64      `json:"total_beds"`
	Changed        string       `json:"changed"`
}

func newRecord(iteration int, state params.State, s viability.Summary, changed string) Record {
	return Record{
		Iteration:      iteration,
		State:          state,
		Params:         state.String(),
		Sites:          s.Sites,
		ViableClusters: s.ViableClusters,
		TotalBeds:      s.TotalBeds,
		Changed:        changed,
	}
}
