package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"
)

// DelaySchedule returns a schedule whose next activation is exactly d after
// the time it is asked about, keeping any sub-second part of that time.
func DelaySchedule(d time.Duration) cron.Schedule {
	return fixedDelay(d)
}

type fixedDelay time.Duration

func (d fixedDelay) Next(t time.Time) time.Time {
	return t.Add(time.Duration(d))
}
