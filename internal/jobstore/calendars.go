package jobstore

import (
	"context"

	"github.com/d10n/quartznet/internal/calendar"
	"github.com/d10n/quartznet/internal/model"
	"github.com/d10n/quartznet/internal/storeerr"
	"github.com/d10n/quartznet/internal/txrunner"
)

// StoreCalendar persists cal under name, optionally recomputing every
// referencing trigger's NextFireTime when updateTriggers is set.
func (s *Store) StoreCalendar(ctx context.Context, name string, cal model.Calendar, replaceExisting, updateTriggers bool) error {
	spec := calendar.ToSpec(cal)
	_, err := txrunner.ExecuteInLock(ctx, s.runner, txrunner.LockTrigger, func(c *txrunner.Ctx) (struct{}, error) {
		exists, err := s.runner.Delegate.CalendarExists(c, c.Tx, s.schedulerName(), name)
		if err != nil {
			return struct{}{}, err
		}
		if exists && !replaceExisting {
			return struct{}{}, storeerr.AlreadyExists("calendar " + name + " already exists")
		}
		if exists {
			if err := s.runner.Delegate.UpdateCalendar(c, c.Tx, s.schedulerName(), name, spec); err != nil {
				return struct{}{}, err
			}
		} else {
			if err := s.runner.Delegate.InsertCalendar(c, c.Tx, s.schedulerName(), name, spec); err != nil {
				return struct{}{}, err
			}
		}
		s.invalidateCalendarCache(name)

		if !updateTriggers {
			return struct{}{}, nil
		}
		triggers, err := s.runner.Delegate.SelectTriggersForCalendar(c, c.Tx, s.schedulerName(), name)
		if err != nil {
			return struct{}{}, err
		}
		for _, t := range triggers {
			t.ComputeFirstFireTime(cal, s.now())
			if err := s.runner.Delegate.UpdateTrigger(c, c.Tx, t); err != nil {
				return struct{}{}, err
			}
		}
		if len(triggers) > 0 {
			c.RequestSignal(nil)
		}
		return struct{}{}, nil
	})
	return err
}

// RemoveCalendar deletes the calendar named name, failing if any trigger
// still references it.
func (s *Store) RemoveCalendar(ctx context.Context, name string) (bool, error) {
	return txrunner.ExecuteInLock(ctx, s.runner, txrunner.LockTrigger, func(c *txrunner.Ctx) (bool, error) {
		referenced, err := s.runner.Delegate.CalendarIsReferenced(c, c.Tx, s.schedulerName(), name)
		if err != nil {
			return false, err
		}
		if referenced {
			return false, storeerr.New(storeerr.Configuration, "calendar "+name+" is still referenced by a trigger", nil)
		}
		if err := s.runner.Delegate.DeleteCalendar(c, c.Tx, s.schedulerName(), name); err != nil {
			return false, err
		}
		s.invalidateCalendarCache(name)
		return true, nil
	})
}

// RetrieveCalendar returns the calendar named name, or nil if it does not
// exist.
func (s *Store) RetrieveCalendar(ctx context.Context, name string) (model.Calendar, error) {
	return txrunner.ExecuteWithoutLock(ctx, s.runner, func(c *txrunner.Ctx) (model.Calendar, error) {
		cal, found, err := s.resolveCalendar(c, s.schedulerName(), name)
		if err != nil || !found {
			return nil, err
		}
		return cal, nil
	})
}

func (s *Store) GetCalendarNames(ctx context.Context) ([]string, error) {
	return txrunner.ExecuteWithoutLock(ctx, s.runner, func(c *txrunner.Ctx) ([]string, error) {
		return s.runner.Delegate.SelectCalendarNames(c, c.Tx, s.schedulerName())
	})
}

func (s *Store) GetNumberOfCalendars(ctx context.Context) (int, error) {
	return txrunner.ExecuteWithoutLock(ctx, s.runner, func(c *txrunner.Ctx) (int, error) {
		return s.runner.Delegate.SelectNumCalendars(c, c.Tx, s.schedulerName())
	})
}
