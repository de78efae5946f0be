package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDay(t *testing.T, raw string) time.Time {
	t.Helper()
	parsed, err := time.Parse("2006-01-02", raw)
	require.NoError(t, err)
	return parsed
}

func TestNextBatchRing(t *testing.T) {
	assert.Equal(t, "2", NextBatch("1"))
	assert.Equal(t, "3", NextBatch("2"))
	assert.Equal(t, "1", NextBatch("3"))
	assert.Equal(t, "1", NextBatch("garbage"), "corrupted values wrap back into the ring")
}

func TestCompletedSemestersAllDone(t *testing.T) {
	c := NewCompletedSemesters()
	assert.False(t, c.AllDone())

	c["1"], c["2"] = true, true
	assert.False(t, c.AllDone())

	c["3"] = true
	assert.True(t, c.AllDone())
}

func TestCompletedSemestersScanRoundTrip(t *testing.T) {
	original := CompletedSemesters{"1": true, "2": false, "3": true}
	value, err := original.Value()
	require.NoError(t, err)

	var scanned CompletedSemesters
	require.NoError(t, scanned.Scan(value))
	assert.Equal(t, original, scanned)
}

func TestCompletedSemestersScanNil(t *testing.T) {
	var scanned CompletedSemesters
	require.NoError(t, scanned.Scan(nil))
	assert.False(t, scanned.AllDone())
	assert.Len(t, scanned, 3)
}

func TestCanStartEnrollment(t *testing.T) {
	cycle := NewDefaultCycle()
	assert.True(t, cycle.CanStartEnrollment())

	cycle.CycleState = CycleStateBatchActive
	assert.False(t, cycle.CanStartEnrollment())

	cycle.CycleState = CycleStateTrimesterCompleted
	assert.True(t, cycle.CanStartEnrollment())
}

func TestEffectiveEndDate(t *testing.T) {
	event := EnrollmentEvent{StartDate: mustDay(t, "2025-06-01")}
	assert.Equal(t, event.StartDate, event.EffectiveEndDate(), "missing end date falls back to the start day")

	end := mustDay(t, "2025-06-10")
	event.EndDate = &end
	assert.Equal(t, end, event.EffectiveEndDate())
}
