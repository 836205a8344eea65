package flowtrace

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndGetSession(t *testing.T) {
	e := NewEngine()
	s := e.CreateSession("JB123")

	assert.NotEmpty(t, s.ID)
	assert.Equal(t, "JB123", s.Realm)
	assert.Equal(t, SessionStateActive, s.State)

	got, ok := e.GetSession(s.ID)
	require.True(t, ok)
	assert.Equal(t, s, got)
}

func TestEmitRecordsEvents(t *testing.T) {
	e := NewEngine()
	s := e.CreateSession("JB123")

	e.Emit(s.ID, EventRequestParsed, "AuthnRequest decoded", map[string]interface{}{"request_id": "_req1"})
	e.Emit(s.ID, EventResponseSigned, "Response signed", nil)

	snap := s.Snapshot()
	require.Len(t, snap.Events, 2)
	assert.Equal(t, EventRequestParsed, snap.Events[0].Type)
	assert.Equal(t, EventResponseSigned, snap.Events[1].Type)
	assert.NotEmpty(t, snap.Events[0].ID)
	assert.False(t, snap.Events[0].Timestamp.IsZero())
}

func TestSnapshotSafeDuringEmit(t *testing.T) {
	e := NewEngine()
	s := e.CreateSession("JB123")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			e.Emit(s.ID, EventRequestParsed, "step", map[string]interface{}{"i": i})
		}
	}()

	// Poll the session the way the trace API does while events stream in;
	// the race detector flags any unlocked read of Events.
	for i := 0; i < 200; i++ {
		_, err := json.Marshal(s.Snapshot())
		require.NoError(t, err)
	}
	<-done

	snap := s.Snapshot()
	assert.Len(t, snap.Events, 200)
}

func TestEmitUnknownSessionIgnored(t *testing.T) {
	e := NewEngine()
	assert.NotPanics(t, func() {
		e.Emit("no-such-session", EventAuthFailed, "ignored", nil)
	})
}

func TestCompleteAndDelete(t *testing.T) {
	e := NewEngine()
	s := e.CreateSession("JB123")

	e.Complete(s.ID)
	assert.Equal(t, SessionStateComplete, s.Snapshot().State)

	e.DeleteSession(s.ID)
	_, ok := e.GetSession(s.ID)
	assert.False(t, ok)
}

func TestListSessions(t *testing.T) {
	e := NewEngine()
	e.CreateSession("a")
	e.CreateSession("b")
	assert.Len(t, e.ListSessions(), 2)
}
