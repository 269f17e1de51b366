package beddit

import "time"

// Clock supplies wall-clock time and the fixed protocol pauses.
//
// Tests substitute a manual clock to drive keep-alive timing without
// waiting. I/O deadlines always use real time.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

// SystemClock is the real-time Clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) Sleep(d time.Duration) { time.Sleep(d) }
