package dust

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	tokensPayload  = `{"type":"generation_tokens","messageId":"a1","text":"Hel"}`
	tokensPayload2 = `{"type":"generation_tokens","messageId":"a1","text":"lo"}`
	donePayload    = `{"type":"agent_message_done","conversationId":"conv1","messageId":"a1","status":"success"}`
	failedPayload  = `{"type":"agent_message_done","conversationId":"conv1","messageId":"a1","status":"failed"}`
)

type recordingSink struct {
	mu     sync.Mutex
	events []StreamEvent
	err    error
}

func (s *recordingSink) HandleStreamEvent(_ context.Context, conversationID string, event StreamEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, event)

	return s.err
}

func TestReconciler_ReconnectsAfterDoneMarker(t *testing.T) {
	fake := newFakeDust(t)
	fake.conversation = finalConversation
	fake.segments = [][]string{
		{
			sseEvent(eventJSON("41", tokensPayload)),
			sseEvent(eventJSON("42", tokensPayload2)),
			sseEvent("done"),
		},
		{
			sseEvent(eventJSON("43", donePayload)),
		},
	}

	r := fake.client(t).NewReconciler(testConversation, "u1", StreamOptions{})

	rec, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateCompleted, r.State())
	assert.Equal(t, "Hello streamed", rec.AgentMessage)
	require.Len(t, rec.Events, 3)
	assert.Equal(t, EventTypeGenerationTokens, rec.Events[0].Type)
	assert.Equal(t, EventTypeGenerationTokens, rec.Events[1].Type)
	assert.Equal(t, EventTypeAgentMessageDone, rec.Events[2].Type)

	for _, e := range rec.Events {
		assert.NotEqual(t, "done", string(e.Data))
	}

	assert.Equal(t, []string{"", "42"}, fake.eventRequests())
	assert.Equal(t, "43", r.LastEventID())
}

func TestReconciler_ReconnectsWhenSegmentEndsWithoutMarker(t *testing.T) {
	fake := newFakeDust(t)
	fake.conversation = finalConversation
	fake.segments = [][]string{
		{sseEvent(eventJSON("7", tokensPayload))},
		{},
		{sseEvent(donePayloadEvent("8"))},
	}

	rec, err := fake.client(t).NewReconciler(testConversation, "u1", StreamOptions{}).Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, rec.Events, 2)
	assert.Equal(t, []string{"", "7", "7"}, fake.eventRequests())
}

func TestReconciler_EventsWithoutIDKeepLastEventID(t *testing.T) {
	fake := newFakeDust(t)
	fake.conversation = finalConversation
	fake.segments = [][]string{
		{
			sseEvent(eventJSON("5", tokensPayload)),
			sseEvent(`{"data":` + tokensPayload2 + `}`),
			sseEvent("done"),
		},
		{sseEvent(`{"data":` + donePayload + `}`)},
	}

	r := fake.client(t).NewReconciler(testConversation, "u1", StreamOptions{})

	_, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"", "5"}, fake.eventRequests())
	assert.Equal(t, "5", r.LastEventID())
}

func TestReconciler_FailedRun(t *testing.T) {
	fake := newFakeDust(t)
	fake.segments = [][]string{
		{
			sseEvent(eventJSON("1", tokensPayload)),
			sseEvent(eventJSON("2", failedPayload)),
			// Never read: the terminal event ends the loop.
			sseEvent(eventJSON("3", tokensPayload2)),
		},
	}

	r := fake.client(t).NewReconciler(testConversation, "u1", StreamOptions{})

	rec, err := r.Run(context.Background())
	require.Error(t, err)
	assert.Nil(t, rec)
	assert.Equal(t, StateCompleted, r.State())

	var runErr *RunFailedError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, "failed", runErr.Status)
	assert.Len(t, runErr.Events, 2)
	assert.Contains(t, err.Error(), "failed")
	assert.Contains(t, err.Error(), "conv1")
	assert.Contains(t, err.Error(), "a1")
}

func TestReconciler_FailedRunWithoutIdentifiers(t *testing.T) {
	fake := newFakeDust(t)
	fake.segments = [][]string{
		{sseEvent(`{"data":{"type":"agent_message_done","status":"cancelled"}}`)},
	}

	err := fake.client(t).NewReconciler(testConversation, "", StreamOptions{}).Stream(context.Background())
	require.Error(t, err)
	assert.Equal(t, "Dust agent run failed (status=cancelled) for conversationId=unknown, messageId=unknown", err.Error())
}

func TestReconciler_Timeout(t *testing.T) {
	fake := newFakeDust(t)
	fake.segments = [][]string{
		{sseEvent(eventJSON("1", tokensPayload))},
	}

	r := fake.client(t).NewReconciler(testConversation, "u1", StreamOptions{Timeout: 100 * time.Millisecond})

	start := time.Now()
	_, err := r.Run(context.Background())
	require.Error(t, err)

	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, StateTimedOut, r.State())
	assert.True(t, errors.Is(err, context.DeadlineExceeded), err.Error())
	assert.Len(t, r.Events(), 1)
}

func TestReconciler_CancelledContext(t *testing.T) {
	fake := newFakeDust(t)

	ctx, cancel := context.WithCancel(context.Background())
	r := fake.client(t).NewReconciler(testConversation, "u1", StreamOptions{})

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	err := r.Stream(ctx)
	require.Error(t, err)
	assert.Equal(t, StateTimedOut, r.State())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReconciler_StreamOpenFailure(t *testing.T) {
	fake := newFakeDust(t)
	fake.eventsStatus = http.StatusForbidden

	r := fake.client(t).NewReconciler(testConversation, "u1", StreamOptions{})

	err := r.Stream(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateFailed, r.State())
	assert.ErrorIs(t, err, ErrStreamOpen)
	assert.Contains(t, err.Error(), "403 Forbidden")
}

func TestReconciler_MalformedEventIsFatal(t *testing.T) {
	fake := newFakeDust(t)
	fake.segments = [][]string{
		{
			sseEvent(eventJSON("1", tokensPayload)),
			sseEvent(`{"eventId":"2","data":`),
			sseEvent(eventJSON("3", donePayload)),
		},
	}

	r := fake.client(t).NewReconciler(testConversation, "u1", StreamOptions{})

	err := r.Stream(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateFailed, r.State())
	assert.ErrorIs(t, err, ErrMalformedEvent)
	assert.Len(t, r.Events(), 1)
	assert.Len(t, fake.eventRequests(), 1)
}

func TestReconciler_ChunkedEvents(t *testing.T) {
	fake := newFakeDust(t)
	fake.conversation = finalConversation

	full := sseEvent(eventJSON("1", tokensPayload)) + sseEvent(eventJSON("2", donePayload))
	fake.segments = [][]string{{full[:10], full[10:37], full[37:90], full[90:]}}

	rec, err := fake.client(t).NewReconciler(testConversation, "u1", StreamOptions{}).Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, rec.Events, 2)
}

func TestReconciler_SinkReceivesEventsAndErrorsAreNotFatal(t *testing.T) {
	fake := newFakeDust(t)
	fake.conversation = finalConversation
	fake.segments = [][]string{
		{
			sseEvent(eventJSON("1", tokensPayload)),
			sseEvent(eventJSON("2", donePayload)),
		},
	}

	sink := &recordingSink{err: errors.New("bus down")}

	rec, err := fake.client(t).NewReconciler(testConversation, "u1", StreamOptions{Sink: sink}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, rec.Events, sink.events)
}

func TestReconciler_ReconnectDelay(t *testing.T) {
	fake := newFakeDust(t)
	fake.conversation = finalConversation
	fake.segments = [][]string{
		{sseEvent("done")},
		{sseEvent(eventJSON("1", donePayload))},
	}

	start := time.Now()

	_, err := fake.client(t).
		NewReconciler(testConversation, "u1", StreamOptions{ReconnectDelay: 30 * time.Millisecond}).
		Run(context.Background())
	require.NoError(t, err)

	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "reconnect_pending", StateReconnectPending.String())
	assert.Equal(t, "state(99)", State(99).String())
	assert.True(t, StateTimedOut.Terminal())
	assert.False(t, StateReading.Terminal())
}

func donePayloadEvent(eventID string) string {
	return eventJSON(eventID, donePayload)
}
