package jobs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJobType(t *testing.T) {
	for _, want := range JobTypes {
		got, err := ParseJobType(string(want))
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseJobType("parse_document")
	assert.Error(t, err)
}

func TestJobStatusDone(t *testing.T) {
	assert.True(t, JobStatusCompleted.Done())
	assert.True(t, JobStatusFailed.Done())
	assert.False(t, JobStatusPending.Done())
	assert.False(t, JobStatusRunning.Done())
	assert.False(t, JobStatusRetrying.Done())
}
