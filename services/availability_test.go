package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"widgethub/models"
	"widgethub/utils/testdb"
)

// 2024-06-15 is a Saturday, 2024-06-17 a Monday.
func at(day, hour, min, sec int) time.Time {
	return time.Date(2024, time.June, day, hour, min, sec, 0, time.UTC)
}

func row(day models.Weekday, start, end string, working bool) models.Schedule {
	return models.Schedule{Day: day, StartTime: start, EndTime: end, IsWorkingDay: working}
}

func TestEvaluateFallbackRule(t *testing.T) {
	tests := []struct {
		name   string
		now    time.Time
		online bool
	}{
		{"saturday late morning", at(15, 11, 0, 0), false},
		{"monday opening", at(17, 9, 0, 0), true},
		{"monday mid day", at(17, 13, 30, 0), true},
		{"monday closing is inclusive", at(17, 18, 0, 0), true},
		{"monday just after closing", at(17, 18, 0, 1), false},
		{"monday before opening", at(17, 8, 59, 59), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := evaluate(nil, tt.now)
			assert.Equal(t, tt.online, got.IsOnline)
			if tt.online {
				assert.Nil(t, got.NextAvailable)
			} else {
				require.NotNil(t, got.NextAvailable)
				assert.Equal(t, "09:00", *got.NextAvailable)
			}
		})
	}
}

func TestEvaluateScheduleRows(t *testing.T) {
	t.Run("working saturday row", func(t *testing.T) {
		got := evaluate([]models.Schedule{row(models.Saturday, "10:00", "16:00", true)}, at(15, 11, 0, 0))
		assert.True(t, got.IsOnline)
		assert.Nil(t, got.NextAvailable)
	})

	t.Run("before opening reports today's start", func(t *testing.T) {
		got := evaluate([]models.Schedule{row(models.Saturday, "10:00:00", "16:00", true)}, at(15, 9, 0, 0))
		assert.False(t, got.IsOnline)
		require.NotNil(t, got.NextAvailable)
		assert.Equal(t, "10:00", *got.NextAvailable)
	})

	t.Run("after closing reports today's start", func(t *testing.T) {
		rows := []models.Schedule{
			row(models.Saturday, "10:00", "16:00", true),
			row(models.Sunday, "12:00", "14:00", false),
			row(models.Monday, "08:30", "17:00", true),
		}
		got := evaluate(rows, at(15, 17, 0, 0))
		assert.False(t, got.IsOnline)
		require.NotNil(t, got.NextAvailable)
		assert.Equal(t, "10:00", *got.NextAvailable)
	})

	t.Run("monday evening reports monday's start", func(t *testing.T) {
		rows := []models.Schedule{
			row(models.Monday, "08:00", "18:00", true),
			row(models.Tuesday, "11:00", "15:00", true),
		}
		got := evaluate(rows, at(17, 20, 0, 0))
		assert.False(t, got.IsOnline)
		require.NotNil(t, got.NextAvailable)
		assert.Equal(t, "08:00", *got.NextAvailable)
	})

	t.Run("non working row reports its own start", func(t *testing.T) {
		rows := []models.Schedule{
			row(models.Saturday, "10:00", "16:00", false),
			row(models.Monday, "08:00", "15:00", true),
		}
		for _, now := range []time.Time{at(15, 9, 0, 0), at(15, 11, 0, 0), at(15, 17, 0, 0)} {
			got := evaluate(rows, now)
			assert.False(t, got.IsOnline, now)
			require.NotNil(t, got.NextAvailable)
			assert.Equal(t, "10:00", *got.NextAvailable)
		}
	})

	t.Run("no row for today", func(t *testing.T) {
		got := evaluate([]models.Schedule{row(models.Wednesday, "09:15", "18:00", true)}, at(15, 11, 0, 0))
		assert.False(t, got.IsOnline)
		require.NotNil(t, got.NextAvailable)
		assert.Equal(t, "09:15", *got.NextAvailable)
	})

	t.Run("no working day ahead", func(t *testing.T) {
		got := evaluate([]models.Schedule{row(models.Sunday, "09:00", "18:00", false)}, at(15, 11, 0, 0))
		assert.False(t, got.IsOnline)
		assert.Nil(t, got.NextAvailable)
	})

	t.Run("overnight row is never online", func(t *testing.T) {
		rows := []models.Schedule{row(models.Saturday, "22:00", "06:00", true)}
		for _, now := range []time.Time{at(15, 23, 0, 0), at(15, 3, 0, 0), at(15, 12, 0, 0)} {
			got := evaluate(rows, now)
			assert.False(t, got.IsOnline, now)
			require.NotNil(t, got.NextAvailable)
			assert.Equal(t, "22:00", *got.NextAvailable)
		}
	})
}

func TestComputeAvailabilityUsesProjectTimezone(t *testing.T) {
	db := testdb.New(t)
	project := testdb.Project(t, db, "Europe/Kiev")
	evaluator := NewAvailabilityEvaluator(db)
	ctx := context.Background()

	// 06:30 UTC on a summer Monday is 09:30 in Kyiv.
	got, err := evaluator.ComputeAvailability(ctx, project.ID, at(17, 6, 30, 0))
	require.NoError(t, err)
	assert.True(t, got.IsOnline)

	// 16:00 UTC is 19:00 local, after the fallback closing time.
	got, err = evaluator.ComputeAvailability(ctx, project.ID, at(17, 16, 0, 0))
	require.NoError(t, err)
	assert.False(t, got.IsOnline)
	require.NotNil(t, got.NextAvailable)
	assert.Equal(t, "09:00", *got.NextAvailable)

	require.NoError(t, db.Create(&models.Schedule{
		ProjectID: project.ID, Day: models.Monday, StartTime: "18:00", EndTime: "20:00", IsWorkingDay: true,
	}).Error)
	got, err = evaluator.ComputeAvailability(ctx, project.ID, at(17, 16, 0, 0))
	require.NoError(t, err)
	assert.True(t, got.IsOnline)
}

func TestComputeAvailabilityUnknownProject(t *testing.T) {
	db := testdb.New(t)
	_, err := NewAvailabilityEvaluator(db).ComputeAvailability(context.Background(), 999, time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNormalizeTimeOfDay(t *testing.T) {
	got, err := NormalizeTimeOfDay("9:05")
	require.NoError(t, err)
	assert.Equal(t, "09:05", got)

	got, err = NormalizeTimeOfDay("17:30:15")
	require.NoError(t, err)
	assert.Equal(t, "17:30:15", got)

	for _, bad := range []string{"", "24:00", "12", "12:60", "ab:cd", "1:2:3:4"} {
		_, err := NormalizeTimeOfDay(bad)
		assert.ErrorIs(t, err, ErrInvalidRequest, bad)
	}
}
