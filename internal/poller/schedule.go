package poller

import (
	"context"
	"time"
)

// DefaultDelays is the delay table used when none is configured.
var DefaultDelays = []time.Duration{
	1200 * time.Millisecond,
	1500 * time.Millisecond,
	2000 * time.Millisecond,
	2500 * time.Millisecond,
	3000 * time.Millisecond,
}

// Schedule is a fixed ascending table of inter-attempt delays. Once the table
// is exhausted the last entry is used for every further attempt.
type Schedule []time.Duration

// NewSchedule copies delays into a [Schedule]. An empty table uses [DefaultDelays].
func NewSchedule(delays []time.Duration) Schedule {
	if len(delays) == 0 {
		delays = DefaultDelays
	}
	return append(Schedule(nil), delays...)
}

// Delay returns the wait after attempt n (0-indexed): table[min(n, len-1)].
func (s Schedule) Delay(n int) time.Duration {
	if len(s) == 0 {
		s = DefaultDelays
	}
	if n < 0 {
		n = 0
	}
	if n > len(s)-1 {
		n = len(s) - 1
	}
	return s[n]
}

// sleep waits for d or until ctx is done, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
