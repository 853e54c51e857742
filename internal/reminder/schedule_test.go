package reminder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSchedule(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw   string
		kind  Kind
		every time.Duration
		cron  string
	}{
		{raw: "*/5 * * * *", kind: KindCron, cron: "*/5 * * * *"},
		{raw: "0 30 9 * * MON-FRI", kind: KindCron, cron: "0 30 9 * * MON-FRI"},
		{raw: "@hourly", kind: KindCron, cron: "@hourly"},
		{raw: "@every 55m", kind: KindCron, cron: "@every 55m"},
		{raw: "cron: 0 9 * * *", kind: KindCron, cron: "0 9 * * *"},
		{raw: "55m", kind: KindInterval, every: 55 * time.Minute},
		{raw: "00:50", kind: KindInterval, every: 50 * time.Minute},
		{raw: "02:30", kind: KindInterval, every: 2*time.Hour + 30*time.Minute},
		{raw: "every: 10s", kind: KindInterval, every: 10 * time.Second},
		{raw: "interval:01:00", kind: KindInterval, every: time.Hour},
	}
	for _, tt := range tests {
		got, err := ParseSchedule(tt.raw)
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.kind, got.Kind, tt.raw)
		assert.Equal(t, tt.every, got.Every, tt.raw)
		assert.Equal(t, tt.cron, got.Cron, tt.raw)
	}
}

func TestParseScheduleRejects(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"", "soon", "0m", "-5m", "01:75", "00:00", "* * *", "cron:", "@fortnightly"} {
		_, err := ParseSchedule(raw)
		assert.Error(t, err, raw)
	}
}

func TestScheduleNext(t *testing.T) {
	t.Parallel()
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	iv, err := ParseSchedule("02:30")
	require.NoError(t, err)
	cs, err := iv.cronSchedule()
	require.NoError(t, err)
	assert.True(t, base.Add(2*time.Hour+30*time.Minute).Equal(cs.Next(base)))

	cr, err := ParseSchedule("0 12 * * *")
	require.NoError(t, err)
	cs, err = cr.cronSchedule()
	require.NoError(t, err)
	next := cs.Next(base)
	assert.True(t, time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC).Equal(next), "next=%v", next)
}

func TestScheduleNextInLocation(t *testing.T) {
	t.Parallel()
	loc := time.FixedZone("UTC+2", 2*60*60)
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC) // 11:00 local

	cr, err := ParseSchedule("0 12 * * *")
	require.NoError(t, err)
	next := cr.Next(base, loc)
	assert.True(t, time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC).Equal(next), "next=%v", next)

	assert.True(t, Schedule{Kind: KindCron, Cron: "nope"}.Next(base, nil).IsZero())
}
