package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync/atomic"

	corelogger "github.com/kilianp07/rbtsched/core/logger"
	"github.com/kilianp07/rbtsched/core/model"
	"github.com/kilianp07/rbtsched/internal/eventbus"
)

// Publisher sends a payload to a topic.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// Message is the document published for every recorded event.
type Message struct {
	Event model.ScheduleEvent `json:"event"`
	// Recipients are the parties to notify, as "client:<id>" or "rbt:<id>".
	Recipients []string `json:"recipients"`
}

// Topic returns <prefix>/events/<event type>.
func Topic(prefix string, ev model.ScheduleEvent) string {
	return fmt.Sprintf("%s/events/%s", prefix, ev.Type)
}

// Recipients lists who must hear about ev. A reschedule that changes the RBT
// also notifies the previous one.
func Recipients(ev model.ScheduleEvent) []string {
	set := map[string]bool{}
	if ev.ClientID != "" {
		set["client:"+ev.ClientID] = true
	}
	if ev.RBTID != "" {
		set["rbt:"+ev.RBTID] = true
	}
	if ev.Type == model.EventSessionRescheduled {
		if old, ok := ev.OldValues["rbt_id"].(string); ok && old != "" {
			set["rbt:"+old] = true
		}
	}
	out := make([]string, 0, len(set))
	for r := range set {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// Bridge forwards audit events from the in-process bus to a Publisher.
type Bridge struct {
	pub       Publisher
	prefix    string
	log       corelogger.Logger
	published atomic.Uint64
	failed    atomic.Uint64
}

// NewBridge creates a bridge publishing under prefix.
func NewBridge(pub Publisher, prefix string, log corelogger.Logger) *Bridge {
	return &Bridge{pub: pub, prefix: prefix, log: corelogger.OrNop(log)}
}

// Forward publishes one event.
func (b *Bridge) Forward(ev model.ScheduleEvent) error {
	payload, err := json.Marshal(Message{Event: ev, Recipients: Recipients(ev)})
	if err != nil {
		b.failed.Add(1)
		return fmt.Errorf("encode event %s: %w", ev.ID, err)
	}
	if err := b.pub.Publish(Topic(b.prefix, ev), payload); err != nil {
		b.failed.Add(1)
		return err
	}
	b.published.Add(1)
	return nil
}

// Run forwards bus events until ctx is cancelled or the bus closes. Publish
// failures are logged and skipped. The returned channel closes on exit.
func (b *Bridge) Run(ctx context.Context, bus *eventbus.TypedBus[model.ScheduleEvent]) <-chan struct{} {
	done := make(chan struct{})
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
				if err := b.Forward(ev); err != nil {
					b.log.Errorf("forward %s event %s: %v", ev.Type, ev.ID, err)
				}
			}
		}
	}()
	return done
}

// Stats returns the number of published and failed events.
func (b *Bridge) Stats() (published, failed uint64) {
	return b.published.Load(), b.failed.Load()
}
