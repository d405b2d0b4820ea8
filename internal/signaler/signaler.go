// Package signaler defines the two consumed interfaces spec.md §6 names as
// supplied by the embedding scheduler: Signaler (listener/scheduling-change
// callbacks) and TypeLoader (job implementation resolution).
package signaler

import (
	"time"

	"github.com/d10n/quartznet/internal/key"
	"github.com/d10n/quartznet/internal/model"
)

// Signaler is the callback surface through which the core announces
// listener events and scheduling-change hints. Every method is called only
// after the transaction that triggered it has committed (spec.md §5).
type Signaler interface {
	SignalSchedulingChange(earliestNewFireTime *time.Time)
	NotifySchedulerListenersError(msg string, err error)
	NotifySchedulerListenersJobDeleted(jobKey key.JobKey)
	NotifySchedulerListenersFinalized(trigger model.Trigger)
	NotifyTriggerListenersMisfired(trigger model.Trigger)
}

// TypeLoader resolves a job's implementation type identifier to an opaque
// handle the embedding scheduler runtime understands. The core never
// inspects the returned value; it exists purely so StoreJob can validate
// that a type identifier is loadable before persisting.
type TypeLoader interface {
	Load(implType string) (any, error)
}

// NopSignaler discards every notification; useful for tests and for
// clients that don't care about listener events.
type NopSignaler struct{}

func (NopSignaler) SignalSchedulingChange(*time.Time)                {}
func (NopSignaler) NotifySchedulerListenersError(string, error)      {}
func (NopSignaler) NotifySchedulerListenersJobDeleted(key.JobKey)     {}
func (NopSignaler) NotifySchedulerListenersFinalized(model.Trigger)   {}
func (NopSignaler) NotifyTriggerListenersMisfired(model.Trigger)      {}
