package models_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seiken-dev/jiten/internal/models"
)

func allReady(lastCheck time.Time) map[models.Dataset]models.DatasetState {
	states := make(map[models.Dataset]models.DatasetState)
	for _, ds := range models.AllDatasets() {
		states[ds] = models.DatasetState{
			State:       models.LoadStateReady,
			Version:     &models.VersionInfo{Major: 1, Lang: "en"},
			UpdateState: models.UpdateState{LastCheck: lastCheck},
		}
	}
	return states
}

func TestSnapshotInitialized(t *testing.T) {
	snap := &models.Snapshot{}
	assert.False(t, snap.Initialized(), "empty snapshot is not initialized")

	snap.Datasets = allReady(time.Time{})
	assert.True(t, snap.Initialized())

	snap.Datasets[models.DatasetWords] = models.DatasetState{State: models.LoadStateUninitialized}
	assert.False(t, snap.Initialized(), "one unresolved dataset withholds the snapshot")
}

func TestSnapshotLatestCheck(t *testing.T) {
	snap := &models.Snapshot{Datasets: allReady(time.Time{})}
	assert.True(t, snap.LatestCheck().IsZero())

	older := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	newer := older.Add(48 * time.Hour)

	states := allReady(older)
	states[models.DatasetNames] = models.DatasetState{
		State:       models.LoadStateReady,
		UpdateState: models.UpdateState{LastCheck: newer},
	}
	snap.Datasets = states

	assert.Equal(t, newer, snap.LatestCheck())
}

func TestUpdateFailureJSON(t *testing.T) {
	f := models.UpdateFailure{
		Err:        &models.DownloadError{URL: "u", StatusCode: 503},
		NextRetry:  time.Date(2026, 8, 27, 9, 0, 0, 0, time.UTC),
		RetryCount: 3,
	}

	data, err := json.Marshal(f)
	require.NoError(t, err)

	var wire map[string]any
	require.NoError(t, json.Unmarshal(data, &wire))
	assert.Equal(t, "download u: HTTP 503", wire["message"])
	assert.Equal(t, "server", wire["kind"])
	assert.Equal(t, float64(3), wire["retryCount"])
	assert.Contains(t, wire, "nextRetry")
}

func TestUpdateFailureJSONTerminal(t *testing.T) {
	f := models.UpdateFailure{Err: errors.New("bad record")}

	data, err := json.Marshal(f)
	require.NoError(t, err)

	var wire map[string]any
	require.NoError(t, json.Unmarshal(data, &wire))
	assert.Equal(t, "bad record", wire["message"])
	assert.Equal(t, "unknown", wire["kind"])
	assert.NotContains(t, wire, "retryCount")
}
