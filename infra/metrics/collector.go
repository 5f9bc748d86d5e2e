package metrics

import (
	"context"

	coremetrics "github.com/kilianp07/rbtsched/core/metrics"
	"github.com/kilianp07/rbtsched/core/model"
	"github.com/kilianp07/rbtsched/internal/eventbus"
)

// StartEventCollector subscribes to the audit bus and forwards every
// recorded event to sink when it supports audit events. It stops when ctx is
// cancelled or the bus is closed. The returned channel is closed on exit.
func StartEventCollector(ctx context.Context, bus *eventbus.TypedBus[model.ScheduleEvent], sink coremetrics.MetricsSink) <-chan struct{} {
	done := make(chan struct{})
	rec, ok := sink.(coremetrics.AuditRecorder)
	if bus == nil || !ok {
		close(done)
		return done
	}
	sub := bus.Subscribe()
	go func() {
		defer close(done)
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				_ = rec.RecordAuditEvent(coremetrics.AuditEvent{Type: ev.Type, Time: ev.CreatedAt})
			}
		}
	}()
	return done
}
