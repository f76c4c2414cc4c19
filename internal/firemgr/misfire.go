// Copyright 2024 Seakee.  All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package firemgr

import (
	"context"
	"time"

	"github.com/seakee/quartzmongo/internal/model"
	"github.com/seakee/quartzmongo/internal/notify"
	"github.com/seakee/quartzmongo/internal/statemachine"
)

// SweepResult is the outcome of one misfire recovery pass.
type SweepResult struct {
	HasMore             bool
	Count                int
	EarliestNewFireTime *time.Time
}

// SweepMisfires recomputes next_fire_time for every Waiting trigger past
// the misfire floor, up to maxMisfiresPerPass. When recovering is true
// (startup recovery's full sweep), a recomputed trigger's state is left
// untouched rather than forced back to Waiting.
func (m *Manager) SweepMisfires(ctx context.Context, traceID string, recovering bool) (SweepResult, error) {
	var result SweepResult
	err := m.withTriggerAccess(ctx, traceID, func(ctx context.Context) error {
		r, err := m.sweepOnce(ctx, traceID, recovering)
		result = r
		return err
	})
	return result, err
}

// SweepMisfiresLocked runs the same pass as SweepMisfires without
// acquiring TriggerAccess itself; the caller (internal/lifecycle's
// startup recovery, which folds the sweep into its own single critical
// section) must already hold the lock.
func (m *Manager) SweepMisfiresLocked(ctx context.Context, traceID string, recovering bool) (SweepResult, error) {
	return m.sweepOnce(ctx, traceID, recovering)
}

func (m *Manager) sweepOnce(ctx context.Context, traceID string, recovering bool) (SweepResult, error) {
	var result SweepResult

	err := func() error {
		now := time.Now().UTC()
		misfireFloor := now.Add(-m.misfireThreshold)

		count, err := m.triggers.CountMisfired(ctx, traceID, m.instanceName, misfireFloor)
		if err != nil {
			return err
		}
		if count == 0 {
			return nil
		}

		maxCount := int64(m.maxMisfiresPerPass)
		selected, err := m.triggers.ListMisfired(ctx, traceID, m.instanceName, misfireFloor, maxCount)
		if err != nil {
			return err
		}
		result.HasMore = count > int64(len(selected))
		result.Count = len(selected)

		for _, t := range selected {
			if err := ctx.Err(); err != nil {
				return err
			}
			if m.sink != nil {
				m.sink.NotifyTriggerMisfired(ctx, notify.TriggerView{Key: t.TriggerKey, JobKey: t.JobKey, State: t.State})
			}

			next, err := m.recomputeAfterMisfire(ctx, traceID, t, now)
			if err != nil {
				return err
			}

			hasNext := next != nil
			newState, err := statemachine.Transition(model.StateWaiting, statemachine.EventMisfire, statemachine.Options{
				HasNextFire: hasNext,
				Recovering:  recovering,
			})
			if err != nil {
				return err
			}

			// An exhausted trigger moves to Complete even while recovering.
			if _, err := m.triggers.UpdateFireTimes(ctx, traceID, t.TriggerKey, model.StateWaiting, newState, next, &now, recovering && hasNext); err != nil {
				return err
			}

			if !hasNext && m.sink != nil {
				m.sink.NotifySchedulerListenersFinalized(ctx, notify.TriggerView{Key: t.TriggerKey, JobKey: t.JobKey, State: model.StateComplete})
			}

			if hasNext && (result.EarliestNewFireTime == nil || next.Before(*result.EarliestNewFireTime)) {
				result.EarliestNewFireTime = next
			}
		}
		return nil
	}()
	return result, err
}

// recomputeAfterMisfire decodes the trigger's recurrence and calendar
// and asks the recurrence for its own misfire-adjusted next fire time.
func (m *Manager) recomputeAfterMisfire(ctx context.Context, traceID string, t model.Trigger, now time.Time) (*time.Time, error) {
	rec, err := m.decoder.DecodeTrigger(t)
	if err != nil {
		return nil, err
	}
	var cal *model.Calendar
	if t.CalendarName != "" {
		cal, _ = m.cals.Get(ctx, traceID, model.CalendarKey{InstanceName: m.instanceName, Name: t.CalendarName})
	}
	calView, err := m.decoder.DecodeCalendar(cal)
	if err != nil {
		return nil, err
	}
	next, ok := rec.UpdateAfterMisfire(now, calView)
	if !ok {
		return nil, nil
	}
	return next, nil
}
