package dust

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

const (
	testWorkspace    = "ws1"
	testAPIKey       = "sk-test"
	testConversation = "conv1"
)

// fakeDust scripts the subset of the Dust API used by the client.
type fakeDust struct {
	t      *testing.T
	server *httptest.Server
	closed chan struct{}

	mu             sync.Mutex
	createResponse string
	conversation   string
	agents         string
	documentResp   string
	// segments are served in order, one per events request. Each segment is a
	// list of raw chunks flushed separately. Past the last segment the stream
	// stays open without data until the client goes away.
	segments       [][]string
	eventsStatus   int
	lastEventIDs   []string
	createBodies   []map[string]any
	documentPaths  []string
	documentBodies []map[string]any
	authHeaders    []string
}

func newFakeDust(t *testing.T) *fakeDust {
	t.Helper()

	f := &fakeDust{
		t:      t,
		closed: make(chan struct{}),
	}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))

	t.Cleanup(func() {
		close(f.closed)
		f.server.Close()
	})

	return f
}

func (f *fakeDust) client(t *testing.T) *Client {
	t.Helper()

	c, err := NewClient(
		Credentials{APIKey: testAPIKey, WorkspaceID: testWorkspace},
		WithBaseURL(f.server.URL),
	)
	require.NoError(t, err)

	return c
}

func (f *fakeDust) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.authHeaders = append(f.authHeaders, r.Header.Get("Authorization"))
	f.mu.Unlock()

	prefix := "/api/v1/w/" + testWorkspace + "/"
	path, ok := strings.CutPrefix(r.URL.EscapedPath(), prefix)
	if !ok {
		http.NotFound(w, r)

		return
	}

	switch {
	case r.Method == http.MethodPost && path == "assistant/conversations":
		f.mu.Lock()
		f.createBodies = append(f.createBodies, decodeBody(f.t, r.Body))
		resp := f.createResponse
		f.mu.Unlock()

		writeJSON(w, resp)
	case r.Method == http.MethodGet && path == "assistant/conversations/"+testConversation+"/events":
		f.serveEvents(w, r)
	case r.Method == http.MethodGet && path == "assistant/conversations/"+testConversation:
		f.mu.Lock()
		resp := f.conversation
		f.mu.Unlock()

		writeJSON(w, resp)
	case r.Method == http.MethodGet && path == "assistant/agent_configurations":
		f.mu.Lock()
		resp := f.agents
		f.mu.Unlock()

		if resp == "" {
			http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)

			return
		}

		writeJSON(w, resp)
	case r.Method == http.MethodPost && strings.HasPrefix(path, "spaces/"):
		f.mu.Lock()
		f.documentPaths = append(f.documentPaths, path)
		f.documentBodies = append(f.documentBodies, decodeBody(f.t, r.Body))
		resp := f.documentResp
		f.mu.Unlock()

		writeJSON(w, resp)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeDust) serveEvents(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	idx := len(f.lastEventIDs)
	f.lastEventIDs = append(f.lastEventIDs, r.Header.Get("Last-Event-ID"))
	status := f.eventsStatus
	var chunks []string
	more := idx < len(f.segments)
	if more {
		chunks = f.segments[idx]
	}
	f.mu.Unlock()

	if r.Header.Get("Accept") != "text/event-stream" {
		http.Error(w, "expected text/event-stream", http.StatusNotAcceptable)

		return
	}

	if status != 0 {
		w.WriteHeader(status)

		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	if flusher != nil {
		flusher.Flush()
	}

	if !more {
		select {
		case <-r.Context().Done():
		case <-f.closed:
		}

		return
	}

	for _, chunk := range chunks {
		_, _ = io.WriteString(w, chunk)
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func (f *fakeDust) eventRequests() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.lastEventIDs...)
}

func writeJSON(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, body)
}

func decodeBody(t *testing.T, body io.Reader) map[string]any {
	t.Helper()

	var out map[string]any
	if err := json.NewDecoder(body).Decode(&out); err != nil {
		t.Errorf("failed to decode request body: %v", err)
	}

	return out
}

// sseEvent renders one SSE event carrying data.
func sseEvent(data string) string {
	return "data: " + data + "\n\n"
}

func eventJSON(eventID, payload string) string {
	return `{"eventId":"` + eventID + `","data":` + payload + `}`
}

const streamingCreateResponse = `{
	"conversation": {
		"sId": "conv1",
		"owner": {"sId": "ws1"},
		"content": [
			[{"type": "user_message", "sId": "u1", "content": "Hi", "context": {"username": "DustN8N"}}]
		]
	}
}`

const finalConversation = `{
	"conversation": {
		"sId": "conv1",
		"owner": {"sId": "ws1"},
		"content": [
			[{"type": "user_message", "sId": "u0", "content": "Earlier"}],
			[{"type": "agent_message", "sId": "a0", "parentMessageId": "u0", "content": "Old answer"}],
			[{"type": "user_message", "sId": "u1", "content": "Hi"}],
			[{"type": "agent_message", "sId": "a1", "parentMessageId": "u1", "content": "Hello streamed"}]
		]
	}
}`
