package wakeup

import (
	"math"
	"time"
)

// NextCycle returns the delay until the next brightness step so that the
// remaining steps from current to target are spread evenly over the time
// left until end. Both differences are taken in whole units; ok is false
// when either is not positive.
func NextCycle(end, now time.Time, target, current int) (time.Duration, bool) {
	dividend := int64(end.Sub(now) / time.Second)
	divisor := int64(target - current)
	if dividend <= 0 || divisor <= 0 {
		return 0, false
	}

	seconds := math.Round(float64(dividend) / float64(divisor))
	if seconds < 1 {
		seconds = 1
	}
	return time.Duration(seconds) * time.Second, true
}

// FixedInterval returns the constant step interval that reaches target from
// 1% after duration, truncated to whole milliseconds
func FixedInterval(duration time.Duration, target int) (time.Duration, bool) {
	steps := target - 1
	if duration <= 0 || steps <= 0 {
		return 0, false
	}

	interval := (duration / time.Duration(steps)).Truncate(time.Millisecond)
	if interval < time.Millisecond {
		interval = time.Millisecond
	}
	return interval, true
}
