package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWindowStartTruncation(t *testing.T) {
	ts := time.Date(2026, time.March, 14, 15, 9, 26, 535000000, time.UTC)

	assert.Equal(t, time.Date(2026, time.March, 14, 15, 0, 0, 0, time.UTC), HourStart(ts, nil))
	assert.Equal(t, time.Date(2026, time.March, 14, 0, 0, 0, 0, time.UTC), DayStart(ts, nil))
	assert.Equal(t, time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC), MonthStart(ts, nil))
}

func TestWindowBoundaryAtMidnight(t *testing.T) {
	before := time.Date(2026, time.March, 14, 23, 59, 59, 999000000, time.UTC)
	after := time.Date(2026, time.March, 15, 0, 0, 0, 1000000, time.UTC)

	assert.NotEqual(t, HourStart(before, nil), HourStart(after, nil))
	assert.NotEqual(t, DayStart(before, nil), DayStart(after, nil))
	assert.Equal(t, MonthStart(before, nil), MonthStart(after, nil))
}

func TestWindowStartRespectsLocation(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata unavailable")
	}

	// 03:30 UTC is still the previous day in New York.
	ts := time.Date(2026, time.March, 15, 3, 30, 0, 0, time.UTC)
	start := DayStart(ts, loc)
	assert.Equal(t, 14, start.Day())
	assert.Equal(t, loc, start.Location())
}

func TestRetentionHorizons(t *testing.T) {
	assert.Equal(t, 24*time.Hour, WindowHour.Retention())
	assert.Equal(t, 7*24*time.Hour, WindowDay.Retention())
	assert.Equal(t, 3*31*24*time.Hour, WindowMonth.Retention())
}

func TestFakeClock(t *testing.T) {
	base := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	fake := NewFakeClock(base)
	assert.Equal(t, base, fake.Now())

	fake.Advance(90 * time.Minute)
	assert.Equal(t, base.Add(90*time.Minute), fake.Now())
}
