package app

import "time"

// Clock supplies the current time. Production code uses SystemClock; tests
// substitute a manually advanced clock so schedules never sleep for real.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the host clock. Values carry a monotonic reading, so
// durations measured with Sub are immune to wall clock steps.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
