package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/rbtsched/core/factory"
	coremetrics "github.com/kilianp07/rbtsched/core/metrics"
	"github.com/kilianp07/rbtsched/core/model"
	"github.com/kilianp07/rbtsched/internal/eventbus"
)

func TestPromSinkRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)

	require.NoError(t, sink.RecordOptimization(coremetrics.OptimizationEvent{Outcome: coremetrics.OutcomeSuccess, Options: 4}))
	require.NoError(t, sink.RecordOptimization(coremetrics.OptimizationEvent{Outcome: coremetrics.OutcomeNoOptions, Partial: true}))
	require.NoError(t, sink.RecordOptimization(coremetrics.OptimizationEvent{Outcome: coremetrics.OutcomeRejected}))
	require.NoError(t, sink.RecordImpact(coremetrics.ImpactEvent{OperationalComplexity: 65, ProviderChanged: true}))
	require.NoError(t, sink.RecordImpact(coremetrics.ImpactEvent{Degraded: true}))
	require.NoError(t, sink.RecordAuditEvent(coremetrics.AuditEvent{Type: model.EventSessionCreated}))
	require.NoError(t, sink.RecordAuditEvent(coremetrics.AuditEvent{Type: model.EventSessionCreated}))

	assert.Equal(t, 1.0, testutil.ToFloat64(sink.searches.WithLabelValues("success", "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.searches.WithLabelValues("no_options", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.searches.WithLabelValues("rejected", "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(sink.degraded))
	assert.Equal(t, 2.0, testutil.ToFloat64(sink.auditTotal.WithLabelValues("session_created")))
	assert.Equal(t, 1, testutil.CollectAndCount(sink.impact))
	assert.Equal(t, 1, testutil.CollectAndCount(sink.options))
}

func TestPromSinkReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)
	second, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)

	require.NoError(t, first.RecordAuditEvent(coremetrics.AuditEvent{Type: model.EventTeamCreated}))
	assert.Equal(t, 1.0, testutil.ToFloat64(second.auditTotal.WithLabelValues("team_created")))
}

func TestRegisteredSinks(t *testing.T) {
	sink, err := coremetrics.NewMetricsSink([]factory.ModuleConfig{{Type: "nop"}})
	require.NoError(t, err)
	assert.IsType(t, coremetrics.NopSink{}, sink)

	_, err = coremetrics.NewMetricsSink([]factory.ModuleConfig{{Type: "statsd"}})
	assert.Error(t, err)
}

func TestEventCollectorForwardsAuditEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)
	bus := eventbus.NewTyped[model.ScheduleEvent]()
	ctx, cancel := context.WithCancel(context.Background())

	done := StartEventCollector(ctx, bus, sink)
	require.Eventually(t, func() bool { return bus.Subscribers() == 1 }, time.Second, 5*time.Millisecond)
	bus.Publish(model.ScheduleEvent{Type: model.EventRBTUnavailable, RBTID: "a"})
	bus.Publish(model.ScheduleEvent{Type: model.EventRBTUnavailable, RBTID: "b"})

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(sink.auditTotal.WithLabelValues("rbt_unavailable")) == 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
	assert.Equal(t, 0, bus.Subscribers())
}

func TestEventCollectorWithoutAuditSupport(t *testing.T) {
	done := StartEventCollector(context.Background(), eventbus.NewTyped[model.ScheduleEvent](), optOnly{})
	_, open := <-done
	assert.False(t, open)
}

type optOnly struct{}

func (optOnly) RecordOptimization(coremetrics.OptimizationEvent) error { return nil }
