package update

import (
	"github.com/seiken-dev/jiten/internal/models"
)

// BuildSnapshot derives the aggregate snapshot from the store-reported
// dataset states, the live job (nil when idle), the job's store-side
// progress report, and the last recorded failure. Pure: callers decide
// whether the result may be published.
func BuildSnapshot(
	states map[models.Dataset]models.DatasetState,
	job *Job,
	jobState models.UpdateState,
	lastError *models.UpdateFailure,
) *models.Snapshot {
	snap := &models.Snapshot{
		Datasets:  states,
		LastError: lastError,
	}

	if job != nil {
		switch jobState.Phase {
		case models.StorePhaseUpdating:
			snap.Phase = models.UpdatePhase{
				Phase:    models.PhaseUpdating,
				Series:   job.Current,
				Progress: jobState.Progress,
			}
		default:
			// A step that has not reported progress yet is checking.
			snap.Phase = models.UpdatePhase{
				Phase:  models.PhaseChecking,
				Series: job.Current,
			}
		}
		return snap
	}

	snap.Phase = models.UpdatePhase{
		Phase:     models.PhaseIdle,
		LastCheck: snap.LatestCheck(),
	}
	return snap
}
