package schedule

import (
	"testing"
	"time"

	"github.com/opensyte/workflow-core/adapters"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextRun(t *testing.T) {
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	cron := adapters.NewRobfigCronParser()

	t.Run("Should advance by frequency when no cron is set", func(t *testing.T) {
		cases := []struct {
			freq Frequency
			want time.Time
		}{
			{Hourly, now.Add(time.Hour)},
			{Daily, now.AddDate(0, 0, 1)},
			{Weekly, now.AddDate(0, 0, 7)},
			{Monthly, now.AddDate(0, 1, 0)},
			{Yearly, now.AddDate(1, 0, 0)},
		}
		for _, c := range cases {
			next, active, err := NextRun(cron, Record{Frequency: c.freq}, now)
			require.NoError(t, err)
			assert.True(t, active)
			assert.Equal(t, c.want, *next)
		}
	})

	t.Run("Should default to +5 minutes with neither cron nor frequency", func(t *testing.T) {
		next, active, err := NextRun(cron, Record{}, now)
		require.NoError(t, err)
		assert.True(t, active)
		assert.Equal(t, now.Add(5*time.Minute), *next)
	})

	t.Run("Should let cron win over frequency", func(t *testing.T) {
		rec := Record{Cron: "0 0 * * *", Frequency: Hourly}
		next, active, err := NextRun(cron, rec, now)
		require.NoError(t, err)
		assert.True(t, active)
		assert.Equal(t, time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC), *next)
	})

	t.Run("Should use startAt as the reference when it is in the future", func(t *testing.T) {
		start := now.Add(48 * time.Hour)
		rec := Record{Frequency: Hourly, StartAt: &start}
		next, active, err := NextRun(cron, rec, now)
		require.NoError(t, err)
		assert.True(t, active)
		assert.Equal(t, start.Add(time.Hour), *next)
	})

	t.Run("Should deactivate when the candidate exceeds endAt", func(t *testing.T) {
		end := now.Add(30 * time.Minute)
		rec := Record{Frequency: Daily, EndAt: &end}
		next, active, err := NextRun(cron, rec, now)
		require.NoError(t, err)
		assert.False(t, active)
		assert.Nil(t, next)
	})

	t.Run("Should reject a malformed cron expression", func(t *testing.T) {
		rec := Record{Cron: "not a cron"}
		_, _, err := NextRun(cron, rec, now)
		assert.Error(t, err)
	})

	t.Run("round-trips to the same next fire after a MarkRunSuccess-style replay", func(t *testing.T) {
		rec := Record{Frequency: Weekly}
		first, _, err := NextRun(cron, rec, now)
		require.NoError(t, err)
		rec.NextRunAt = first
		second, _, err := NextRun(cron, rec, *first)
		require.NoError(t, err)
		assert.Equal(t, first.AddDate(0, 0, 7), *second)
	})
}
