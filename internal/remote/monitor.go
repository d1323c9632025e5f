package remote

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/socialsync/internal/logging"
)

// Monitor tracks backend reachability by pinging on an interval.
type Monitor struct {
	pinger   Pinger
	interval time.Duration
	timeout  time.Duration
	log      logging.Logger
	online   atomic.Bool
}

func NewMonitor(p Pinger, interval, timeout time.Duration, log logging.Logger) *Monitor {
	if log == nil {
		log = logging.Nop()
	}
	return &Monitor{
		pinger:   p,
		interval: interval,
		timeout:  timeout,
		log:      log.With("module", "monitor"),
	}
}

// Online reports the result of the latest check.
func (m *Monitor) Online() bool { return m.online.Load() }

// Check pings once and records the result.
func (m *Monitor) Check(ctx context.Context) bool {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}
	err := m.pinger.Ping(ctx)
	now := err == nil
	if was := m.online.Swap(now); was != now {
		if now {
			m.log.Info(ctx, "backend reachable")
		} else {
			m.log.Warn(ctx, "backend unreachable", "err", err)
		}
	}
	return now
}

// Run checks until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	m.Check(ctx)
	t := time.NewTicker(m.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.Check(ctx)
		}
	}
}
