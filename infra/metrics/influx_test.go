package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coremetrics "github.com/kilianp07/rbtsched/core/metrics"
	"github.com/kilianp07/rbtsched/core/model"
)

type capture struct {
	mu     sync.Mutex
	bodies []string
}

func (c *capture) server(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		c.mu.Lock()
		c.bodies = append(c.bodies, strings.TrimSpace(string(b)))
		c.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func (c *capture) all() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.bodies...)
}

func line(p *write.Point) string {
	return strings.TrimSpace(write.PointToLineProtocol(p, time.Nanosecond))
}

func TestInfluxSink_RecordOptimization(t *testing.T) {
	var c capture
	sink := NewInfluxSink(InfluxConfig{URL: c.server(t).URL + "/api/v2/write", Token: "token", Org: "org", Bucket: "bucket"})
	defer sink.Close()
	now := time.Now()

	err := sink.RecordOptimization(coremetrics.OptimizationEvent{
		SessionID: "s1", Outcome: coremetrics.OutcomeSuccess, Evaluated: 23, Options: 10,
		PreservationRate: 2.0 / 3, ConflictFreeRate: 0.65, Duration: 1500 * time.Microsecond, Time: now,
	})
	require.NoError(t, err)

	p := write.NewPointWithMeasurement("schedule_optimization").
		AddTag("outcome", "success").
		AddTag("partial", "false").
		AddTag("session_id", "s1").
		AddField("evaluated", 23).
		AddField("options", 10).
		AddField("preservation_rate", 0.667).
		AddField("conflict_free_rate", 0.65).
		AddField("duration_ms", 1.5).
		SetTime(now)
	assert.Equal(t, []string{line(p)}, c.all())
}

func TestInfluxSink_RecordImpactAndAudit(t *testing.T) {
	var c capture
	sink := NewInfluxSink(InfluxConfig{URL: c.server(t).URL, Token: "token", Org: "org", Bucket: "bucket"})
	defer sink.Close()
	now := time.Now()

	require.NoError(t, sink.RecordImpact(coremetrics.ImpactEvent{
		SessionID: "s1", AffectedSessions: 3, CascadingChanges: 1, NotificationCount: 4,
		ContinuityDisruption: 71.25, OperationalComplexity: 65, ProviderChanged: true, Time: now,
	}))
	require.NoError(t, sink.RecordAuditEvent(coremetrics.AuditEvent{Type: model.EventSessionRescheduled, Time: now}))

	impact := write.NewPointWithMeasurement("schedule_impact").
		AddTag("session_id", "s1").
		AddTag("provider_changed", "true").
		AddTag("degraded", "false").
		AddField("affected_sessions", 3).
		AddField("cascading_changes", 1).
		AddField("notifications", 4).
		AddField("continuity_disruption", 71.25).
		AddField("operational_complexity", 65.0).
		SetTime(now)
	audit := write.NewPointWithMeasurement("schedule_audit_event").
		AddTag("type", "session_rescheduled").
		AddField("count", 1).
		SetTime(now)
	assert.Equal(t, []string{line(impact), line(audit)}, c.all())
}

func TestNewInfluxSinkWithFallback(t *testing.T) {
	var called bool
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			mu.Lock()
			called = true
			mu.Unlock()
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}))
	defer srv.Close()

	sink := NewInfluxSinkWithFallback(InfluxConfig{URL: srv.URL + "/api/v2/write", Token: "tok", Org: "org", Bucket: "bucket"})
	_, isInflux := sink.(*InfluxSink)
	assert.False(t, isInflux, "expected NopSink on failing health check")
	mu.Lock()
	assert.True(t, called, "health endpoint not called")
	mu.Unlock()
}
