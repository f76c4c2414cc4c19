// Copyright 2024 Seakee.  All rights reserved.
// Use of this source code is governed by a MIT style
// license that can be found in the LICENSE file.

package lifecycle

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const minSweepSleep = 50 * time.Millisecond

// runSweeper is the background cooperative sweep loop: sweep, sleep for
// whatever is left of misfireThreshold (clamped), sweep again, exiting
// promptly when Shutdown closes m.stop. A ticker+ctx.Done() select loop
// adapted to a self-rescheduling timer since the sleep duration is not
// fixed.
func (m *Manager) runSweeper(ctx context.Context) {
	defer close(m.done)

	for {
		started := time.Now()
		_, err := m.fire.SweepMisfires(ctx, "lifecycle-sweeper", false)

		var sleep time.Duration
		if err != nil {
			m.failureStreak++
			if m.log != nil && m.cfg.RetryableActionErrorLogThreshold > 0 && m.failureStreak%m.cfg.RetryableActionErrorLogThreshold == 0 {
				m.log.Warn(ctx, "lifecycle: misfire sweep failing repeatedly",
					zap.Int("consecutive_failures", m.failureStreak), zap.Error(err))
			}
			if m.sink != nil {
				m.sink.NotifySchedulerError(ctx, "misfire sweep failed", err)
			}
			sleep = m.cfg.DbRetryInterval
		} else {
			m.failureStreak = 0
			sleep = m.cfg.MisfireThreshold - time.Since(started)
			if sleep < minSweepSleep {
				sleep = minSweepSleep
			}
		}

		timer := time.NewTimer(sleep)
		select {
		case <-m.stop:
			timer.Stop()
			return
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}
