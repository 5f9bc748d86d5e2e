package export

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/rbtsched/core/model"
)

var events = []model.ScheduleEvent{{
	ID:        "ev-1",
	Type:      model.EventSessionCancelled,
	SessionID: "s1",
	RBTID:     "a",
	ClientID:  "c1",
	Reason:    "family emergency, out of town",
	CreatedBy: "parent",
	CreatedAt: time.Date(2025, 3, 28, 8, 0, 0, 0, time.UTC),
}}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, "csv", events))
	want := "id,created_at,type,session_id,rbt_id,client_id,reason,created_by\n" +
		"ev-1,2025-03-28T08:00:00Z,session_cancelled,s1,a,c1,\"family emergency, out of town\",parent\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, "json", nil))
	assert.JSONEq(t, "[]", buf.String())

	buf.Reset()
	require.NoError(t, Write(&buf, "", events))
	var got []model.ScheduleEvent
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, events, got)
}

func TestWriteUnknownFormat(t *testing.T) {
	assert.Error(t, Write(&bytes.Buffer{}, "xml", events))
}
