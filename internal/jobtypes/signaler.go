package jobtypes

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/d10n/quartznet/internal/key"
	"github.com/d10n/quartznet/internal/model"
	"github.com/d10n/quartznet/internal/signaler"
)

// LogSignaler implements signaler.Signaler by logging every notification
// and forwarding scheduling-change hints to a channel the run loop selects
// on, waking it early instead of waiting out its poll interval.
type LogSignaler struct {
	log  zerolog.Logger
	wake chan time.Time
}

// NewLogSignaler builds a LogSignaler. Wake returns the channel a run loop
// should select on alongside its ticker.
func NewLogSignaler(log zerolog.Logger) *LogSignaler {
	return &LogSignaler{log: log, wake: make(chan time.Time, 1)}
}

// Wake returns the earliest-new-fire-time wakeup channel.
func (s *LogSignaler) Wake() <-chan time.Time { return s.wake }

func (s *LogSignaler) SignalSchedulingChange(earliestNewFireTime *time.Time) {
	if earliestNewFireTime == nil {
		return
	}
	select {
	case s.wake <- *earliestNewFireTime:
	default:
	}
}

func (s *LogSignaler) NotifySchedulerListenersError(msg string, err error) {
	s.log.Error().Err(err).Msg(msg)
}

func (s *LogSignaler) NotifySchedulerListenersJobDeleted(jobKey key.JobKey) {
	s.log.Info().Stringer("job", jobKey).Msg("job deleted")
}

func (s *LogSignaler) NotifySchedulerListenersFinalized(trigger model.Trigger) {
	s.log.Debug().Stringer("trigger", trigger.Key).Msg("trigger finalized")
}

func (s *LogSignaler) NotifyTriggerListenersMisfired(trigger model.Trigger) {
	s.log.Warn().Stringer("trigger", trigger.Key).Msg("trigger misfired")
}

var _ signaler.Signaler = (*LogSignaler)(nil)
