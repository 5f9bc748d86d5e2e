// Package audit is the append-only record of every schedule-affecting
// decision. Events are validated, stamped and persisted once; there is no
// way to change or remove them afterwards.
package audit

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"

	auditstore "github.com/kilianp07/rbtsched/core/audit/store"
	"github.com/kilianp07/rbtsched/core/clock"
	"github.com/kilianp07/rbtsched/core/logger"
	"github.com/kilianp07/rbtsched/core/metrics"
	"github.com/kilianp07/rbtsched/core/model"
	"github.com/kilianp07/rbtsched/core/monitoring"
	"github.com/kilianp07/rbtsched/internal/eventbus"
)

// ErrImmutable is returned by every attempt to change recorded history.
var ErrImmutable = errors.New("audit: schedule events are immutable")

// Log records and queries schedule events.
type Log struct {
	store auditstore.Store
	bus   *eventbus.TypedBus[model.ScheduleEvent]
	clock clock.Clock
	log   logger.Logger
	sink  metrics.MetricsSink
	newID func() string
}

// Option configures a Log.
type Option func(*Log)

// WithBus publishes every recorded event on bus.
func WithBus(bus *eventbus.TypedBus[model.ScheduleEvent]) Option {
	return func(l *Log) { l.bus = bus }
}

func WithClock(c clock.Clock) Option {
	return func(l *Log) { l.clock = clock.OrSystem(c) }
}

func WithLogger(log logger.Logger) Option {
	return func(l *Log) { l.log = logger.OrNop(log) }
}

func WithMetrics(s metrics.MetricsSink) Option {
	return func(l *Log) { l.sink = metrics.OrNop(s) }
}

// WithIDGenerator replaces the UUID generator, mostly for tests.
func WithIDGenerator(f func() string) Option {
	return func(l *Log) {
		if f != nil {
			l.newID = f
		}
	}
}

// New returns a Log persisting to st.
func New(st auditstore.Store, opts ...Option) *Log {
	l := &Log{
		store: st,
		clock: clock.System{},
		log:   logger.Nop{},
		sink:  metrics.NopSink{},
		newID: uuid.NewString,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Record validates ev, assigns its ID and timestamp when unset, persists it
// and publishes it. The stored event is returned.
func (l *Log) Record(ctx context.Context, ev model.ScheduleEvent) (model.ScheduleEvent, error) {
	if err := ev.Validate(); err != nil {
		return model.ScheduleEvent{}, fmt.Errorf("record audit event: %w", err)
	}
	if ev.ID == "" {
		ev.ID = l.newID()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = l.clock.Now()
	}
	ev.OldValues = maps.Clone(ev.OldValues)
	ev.NewValues = maps.Clone(ev.NewValues)
	ev.Metadata = maps.Clone(ev.Metadata)

	if err := l.store.Append(ctx, ev); err != nil {
		monitoring.Capture(err, "audit", "append")
		return model.ScheduleEvent{}, fmt.Errorf("append audit event %s: %w", ev.Type, err)
	}
	l.log.Debugw("audit event recorded", map[string]any{
		"id":         ev.ID,
		"type":       string(ev.Type),
		"session_id": ev.SessionID,
		"rbt_id":     ev.RBTID,
		"client_id":  ev.ClientID,
	})
	if l.bus != nil {
		l.bus.Publish(ev)
	}
	if err := metrics.RecordAuditEvent(l.sink, metrics.AuditEvent{Type: ev.Type, Time: ev.CreatedAt}); err != nil {
		l.log.Warnf("record audit metrics: %v", err)
	}
	return ev, nil
}

// Update always fails with ErrImmutable.
func (l *Log) Update(_ context.Context, ev model.ScheduleEvent) error {
	l.log.Warnf("rejected update of audit event %s", ev.ID)
	return fmt.Errorf("update event %s: %w", ev.ID, ErrImmutable)
}

// Delete always fails with ErrImmutable.
func (l *Log) Delete(_ context.Context, id string) error {
	l.log.Warnf("rejected delete of audit event %s", id)
	return fmt.Errorf("delete event %s: %w", id, ErrImmutable)
}

// Query returns events matching q in chronological order.
func (l *Log) Query(ctx context.Context, q auditstore.Query) ([]model.ScheduleEvent, error) {
	out, err := l.store.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	return out, nil
}

func (l *Log) ByType(ctx context.Context, types ...model.EventType) ([]model.ScheduleEvent, error) {
	return l.Query(ctx, auditstore.Query{Types: types})
}

func (l *Log) BySession(ctx context.Context, sessionID string) ([]model.ScheduleEvent, error) {
	return l.Query(ctx, auditstore.Query{SessionID: sessionID})
}

func (l *Log) ByRBT(ctx context.Context, rbtID string) ([]model.ScheduleEvent, error) {
	return l.Query(ctx, auditstore.Query{RBTID: rbtID})
}

func (l *Log) ByClient(ctx context.Context, clientID string) ([]model.ScheduleEvent, error) {
	return l.Query(ctx, auditstore.Query{ClientID: clientID})
}

// ByDateRange returns events created in [start, end).
func (l *Log) ByDateRange(ctx context.Context, start, end time.Time) ([]model.ScheduleEvent, error) {
	return l.Query(ctx, auditstore.Query{Start: start, End: end})
}

// Trail is the ordered history of one entity.
type Trail struct {
	EntityType model.EntityType      `json:"entity_type"`
	EntityID   string                `json:"entity_id"`
	From       *time.Time            `json:"from,omitempty"`
	To         *time.Time            `json:"to,omitempty"`
	Events     []model.ScheduleEvent `json:"events"`
}

// Trail assembles the chronological history of an entity, optionally
// restricted to [from, to). Zero bounds are open.
func (l *Log) Trail(ctx context.Context, kind model.EntityType, id string, from, to time.Time) (Trail, error) {
	q := auditstore.Query{Start: from, End: to}
	switch kind {
	case model.EntitySession:
		q.SessionID = id
	case model.EntityRBT:
		q.RBTID = id
	case model.EntityClient:
		q.ClientID = id
	default:
		return Trail{}, fmt.Errorf("unknown entity type %q", kind)
	}
	if id == "" {
		return Trail{}, fmt.Errorf("entity id is required")
	}
	events, err := l.Query(ctx, q)
	if err != nil {
		return Trail{}, err
	}
	tr := Trail{EntityType: kind, EntityID: id, Events: events}
	if !from.IsZero() {
		tr.From = &from
	}
	if !to.IsZero() {
		tr.To = &to
	}
	if tr.Events == nil {
		tr.Events = []model.ScheduleEvent{}
	}
	return tr, nil
}
