package trigger

import (
	"time"

	"github.com/robfig/cron/v3"
)

// CronSchedule computes fire times from a standard five-field cron
// expression via robfig/cron/v3's parser, the way pewbot's scheduled
// plugins parse their own cron strings.
type CronSchedule struct {
	expr     string
	schedule cron.Schedule
}

// NewCron parses expr ("* * * * *" style) into a CronSchedule.
func NewCron(expr string) (*CronSchedule, error) {
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, err
	}
	return &CronSchedule{expr: expr, schedule: sched}, nil
}

func (c *CronSchedule) String() string { return c.expr }

// NextFireTime implements model.Schedule.
func (c *CronSchedule) NextFireTime(after time.Time) *time.Time {
	next := c.schedule.Next(after)
	if next.IsZero() {
		return nil
	}
	return &next
}
