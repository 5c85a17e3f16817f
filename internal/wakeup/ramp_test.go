package wakeup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextCycle(t *testing.T) {
	now := time.Date(2024, 3, 4, 6, 0, 0, 0, time.UTC)

	testCases := []struct {
		name    string
		left    time.Duration
		target  int
		current int
		want    time.Duration
		wantOK  bool
	}{
		{"first step of default run", 30 * time.Minute, 50, 1, 37 * time.Second, true},
		{"half rounds up", 3 * time.Second, 5, 3, 2 * time.Second, true},
		{"below one second is clamped", time.Second, 11, 1, time.Second, true},
		{"partial seconds are dropped", 1500 * time.Millisecond, 2, 1, time.Second, true},
		{"target reached", 10 * time.Minute, 50, 50, 0, false},
		{"beyond target", 10 * time.Minute, 50, 60, 0, false},
		{"end reached", 0, 50, 10, 0, false},
		{"end passed", -time.Minute, 50, 10, 0, false},
		{"less than a second left", 500 * time.Millisecond, 50, 10, 0, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := NextCycle(now.Add(tc.left), now, tc.target, tc.current)
			assert.Equal(t, tc.wantOK, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestFixedInterval(t *testing.T) {
	testCases := []struct {
		name     string
		duration time.Duration
		target   int
		want     time.Duration
		wantOK   bool
	}{
		{"default run", 30 * time.Minute, 50, 36734 * time.Millisecond, true},
		{"exact", 10 * time.Minute, 11, time.Minute, true},
		{"below one second", time.Minute, 100, 606 * time.Millisecond, true},
		{"clamped to one millisecond", time.Millisecond, 3, time.Millisecond, true},
		{"target of one", 30 * time.Minute, 1, 0, false},
		{"no duration", 0, 50, 0, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := FixedInterval(tc.duration, tc.target)
			assert.Equal(t, tc.wantOK, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

// The fixed ramp ends less than one step interval and one millisecond per
// step before the configured duration
func TestFixedInterval_TotalRun(t *testing.T) {
	for _, target := range []int{2, 11, 50, 99, 100} {
		for _, duration := range []time.Duration{time.Minute, 30 * time.Minute, 120 * time.Minute} {
			interval, ok := FixedInterval(duration, target)
			assert.True(t, ok)
			total := interval * time.Duration(target-1)
			assert.LessOrEqual(t, total, duration)
			assert.Less(t, duration-total, time.Duration(target-1)*time.Millisecond+time.Millisecond,
				"target %d over %s", target, duration)
		}
	}
}

// The adaptive ramp lands on the target exactly at the end time
func TestNextCycle_ReachesTargetAtEnd(t *testing.T) {
	start := time.Date(2024, 3, 4, 6, 0, 0, 0, time.UTC)
	end := start.Add(30 * time.Minute)

	now := start
	current := 1
	for current < 50 {
		delay, ok := NextCycle(end, now, 50, current)
		if !ok {
			t.Fatalf("ramp stopped at %d%%", current)
		}
		now = now.Add(delay)
		current++
	}
	assert.Equal(t, end, now)
}
