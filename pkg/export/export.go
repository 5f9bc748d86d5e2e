// Package export writes audit events for offline review.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/kilianp07/rbtsched/core/model"
)

var csvHeader = []string{"id", "created_at", "type", "session_id", "rbt_id", "client_id", "reason", "created_by"}

// WriteJSON writes events to w as a JSON array.
func WriteJSON(w io.Writer, events []model.ScheduleEvent) error {
	if events == nil {
		events = []model.ScheduleEvent{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(events)
}

// WriteCSV writes one row per event. Snapshots and metadata are omitted.
func WriteCSV(w io.Writer, events []model.ScheduleEvent) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, ev := range events {
		rec := []string{
			ev.ID,
			ev.CreatedAt.UTC().Format(time.RFC3339),
			string(ev.Type),
			ev.SessionID,
			ev.RBTID,
			ev.ClientID,
			ev.Reason,
			ev.CreatedBy,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Write dispatches on format: json or csv.
func Write(w io.Writer, format string, events []model.ScheduleEvent) error {
	switch format {
	case "", "json":
		return WriteJSON(w, events)
	case "csv":
		return WriteCSV(w, events)
	}
	return fmt.Errorf("unsupported export format: %s", format)
}
