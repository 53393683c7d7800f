package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncStatus_StatusFileFields(t *testing.T) {
	data, err := json.Marshal(IdleStatus("abc12345"))
	require.NoError(t, err)

	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &fields))

	for _, key := range []string{"job_id", "is_running", "current_step", "progress", "message", "error", "twofa_number", "results", "updated_at"} {
		assert.Contains(t, fields, key)
	}
	assert.Nil(t, fields["error"])
	assert.Nil(t, fields["twofa_number"])
	assert.Equal(t, "idle", fields["current_step"])
}

func TestSyncStatus_UpdatedAtSurvivesStatusFile(t *testing.T) {
	updated := time.Date(2025, 9, 1, 14, 30, 5, 0, time.UTC)
	data, err := json.Marshal(SyncStatus{JobID: "abc12345", CurrentStep: SyncStepLogin, UpdatedAt: updated})
	require.NoError(t, err)

	var decoded SyncStatus
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, updated.Equal(decoded.UpdatedAt))
}

func TestSyncStep_IsTerminal(t *testing.T) {
	assert.True(t, SyncStepCompleted.IsTerminal())
	assert.True(t, SyncStepError.IsTerminal())
	assert.True(t, SyncStepStopped.IsTerminal())
	assert.False(t, SyncStepIngesting.IsTerminal())
}
