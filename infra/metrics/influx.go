package metrics

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/rbtsched/core/metrics"
	"github.com/kilianp07/rbtsched/infra/logger"
)

// InfluxConfig locates the InfluxDB bucket.
type InfluxConfig struct {
	URL    string `json:"url"`
	Token  string `json:"token"`
	Org    string `json:"org"`
	Bucket string `json:"bucket"`
}

// InfluxSink writes scheduling events to an InfluxDB instance using the
// official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given endpoint.
func NewInfluxSink(c InfluxConfig) *InfluxSink {
	base := strings.TrimSuffix(c.URL, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, c.Token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(c.Org, c.Bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback pings the InfluxDB instance and returns a NopSink
// when the health check fails.
func NewInfluxSinkWithFallback(c InfluxConfig) coremetrics.MetricsSink {
	sink := NewInfluxSink(c)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// Close releases the HTTP client.
func (s *InfluxSink) Close() { s.client.Close() }

func (s *InfluxSink) write(p *write.Point) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordOptimization writes one schedule_optimization point.
func (s *InfluxSink) RecordOptimization(ev coremetrics.OptimizationEvent) error {
	p := write.NewPointWithMeasurement("schedule_optimization").
		AddTag("outcome", ev.Outcome).
		AddTag("partial", strconv.FormatBool(ev.Partial)).
		AddTag("session_id", ev.SessionID).
		AddField("evaluated", ev.Evaluated).
		AddField("options", ev.Options).
		AddField("preservation_rate", round3(ev.PreservationRate)).
		AddField("conflict_free_rate", round3(ev.ConflictFreeRate)).
		AddField("duration_ms", round3(float64(ev.Duration)/float64(time.Millisecond))).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordImpact writes one schedule_impact point.
func (s *InfluxSink) RecordImpact(ev coremetrics.ImpactEvent) error {
	p := write.NewPointWithMeasurement("schedule_impact").
		AddTag("session_id", ev.SessionID).
		AddTag("provider_changed", strconv.FormatBool(ev.ProviderChanged)).
		AddTag("degraded", strconv.FormatBool(ev.Degraded)).
		AddField("affected_sessions", ev.AffectedSessions).
		AddField("cascading_changes", ev.CascadingChanges).
		AddField("notifications", ev.NotificationCount).
		AddField("continuity_disruption", round3(ev.ContinuityDisruption)).
		AddField("operational_complexity", round3(ev.OperationalComplexity)).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordAuditEvent writes one schedule_audit_event point.
func (s *InfluxSink) RecordAuditEvent(ev coremetrics.AuditEvent) error {
	p := write.NewPointWithMeasurement("schedule_audit_event").
		AddTag("type", string(ev.Type)).
		AddField("count", 1).
		SetTime(ev.Time)
	return s.write(p)
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
