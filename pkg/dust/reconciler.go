package dust

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dukex/operion-dust/pkg/otelhelper"
	"go.opentelemetry.io/otel/attribute"
)

// DefaultStreamTimeout bounds a whole streaming run when no timeout is given.
const DefaultStreamTimeout = 300 * time.Second

const readBufferSize = 4096

// State is a state of the event stream reconciler.
type State int

const (
	StateConnecting State = iota
	StateReading
	StateReconnectPending
	StateCompleted
	StateFailed
	StateTimedOut
)

var stateNames = map[State]string{
	StateConnecting:       "connecting",
	StateReading:          "reading",
	StateReconnectPending: "reconnect_pending",
	StateCompleted:        "completed",
	StateFailed:           "failed",
	StateTimedOut:         "timed_out",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}

	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further transition leaves s.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateTimedOut
}

// EventSink receives every event accumulated by a reconciler, in order.
type EventSink interface {
	HandleStreamEvent(ctx context.Context, conversationID string, event StreamEvent) error
}

// StreamOptions tunes a reconciler.
type StreamOptions struct {
	// Timeout bounds the whole stream loop. Zero means DefaultStreamTimeout.
	Timeout time.Duration
	// ReconnectDelay is waited before opening a new segment. Zero reconnects immediately.
	ReconnectDelay time.Duration
	// Sink, when set, is notified of each accumulated event. Sink errors are logged only.
	Sink EventSink
}

// Reconciliation is the outcome of a completed streaming run.
type Reconciliation struct {
	AgentMessage string
	Conversation *Conversation
	Events       []StreamEvent
}

// Reconciler follows the event feed of one conversation until the agent turn
// completes, then reads the final conversation. A Reconciler runs once.
type Reconciler struct {
	client         *Client
	conversationID string
	userMessageID  string
	opts           StreamOptions
	logger         *slog.Logger

	state       State
	lastEventID string
	events      []StreamEvent
	pending     *RunFailedError
	err         error
	body        io.ReadCloser
	framer      sseFramer
	readBuf     []byte
	segments    int
}

// NewReconciler creates a reconciler for conversationID. userMessageID selects
// which agent replies count as the answer; empty selects all of them.
func (c *Client) NewReconciler(conversationID, userMessageID string, opts StreamOptions) *Reconciler {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultStreamTimeout
	}

	return &Reconciler{
		client:         c,
		conversationID: conversationID,
		userMessageID:  userMessageID,
		opts:           opts,
		logger:         c.logger.With("conversation_id", conversationID),
		state:          StateConnecting,
		readBuf:        make([]byte, readBufferSize),
	}
}

// State returns the current state.
func (r *Reconciler) State() State {
	return r.state
}

// LastEventID returns the resumption identifier of the latest event carrying one.
func (r *Reconciler) LastEventID() string {
	return r.lastEventID
}

// Events returns the events accumulated so far.
func (r *Reconciler) Events() []StreamEvent {
	return r.events
}

// Run streams until completion and reads the final agent reply.
func (r *Reconciler) Run(ctx context.Context) (*Reconciliation, error) {
	if err := r.Stream(ctx); err != nil {
		return nil, err
	}

	conv, err := r.client.GetConversation(ctx, r.conversationID)
	if err != nil {
		return nil, err
	}

	return &Reconciliation{
		AgentMessage: conv.ReplyText(r.userMessageID),
		Conversation: conv,
		Events:       r.events,
	}, nil
}

// Stream runs the state machine until a terminal state. It returns nil only when
// a successful agent_message_done was observed; a failed one yields *RunFailedError.
func (r *Reconciler) Stream(ctx context.Context) (err error) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	ctx, span := otelhelper.StartSpan(ctx, r.client.tracer, "dust.stream_events",
		attribute.String(otelhelper.DustWorkspaceIDKey, r.client.workspaceID),
		attribute.String(otelhelper.DustConversationIDKey, r.conversationID),
	)
	defer func() {
		span.SetAttributes(
			attribute.Int(otelhelper.DustStreamSegmentsKey, r.segments),
			attribute.Int(otelhelper.DustStreamEventsKey, len(r.events)),
		)

		if err != nil {
			otelhelper.SetError(span, err)
		}

		span.End()
	}()

	defer r.closeBody()

	for !r.state.Terminal() {
		r.state = r.step(ctx)
	}

	switch r.state {
	case StateCompleted:
		if r.pending != nil {
			r.pending.Events = r.events

			return r.pending
		}

		r.logger.InfoContext(ctx, "Agent turn completed",
			"events", len(r.events),
			"segments", r.segments,
		)

		return nil
	default:
		r.logger.WarnContext(ctx, "Event stream ended without completion",
			"state", r.state.String(),
			"events", len(r.events),
			"error", r.err,
		)

		return r.err
	}
}

// step performs the transition out of the current state.
func (r *Reconciler) step(ctx context.Context) State {
	switch r.state {
	case StateConnecting:
		return r.connect(ctx)
	case StateReading:
		return r.read(ctx)
	case StateReconnectPending:
		return r.reconnect(ctx)
	default:
		return r.state
	}
}

func (r *Reconciler) eventsURL() string {
	return r.client.apiURL("assistant", "conversations", url.PathEscape(r.conversationID), "events")
}

// connect opens one stream segment, resuming after lastEventID when known.
func (r *Reconciler) connect(ctx context.Context) State {
	req, err := r.client.newRequest(ctx, http.MethodGet, r.eventsURL(), nil)
	if err != nil {
		return r.fail(ctx, err)
	}

	req.Header.Set("Accept", "text/event-stream")

	if r.lastEventID != "" {
		req.Header.Set("Last-Event-ID", r.lastEventID)
	}

	resp, err := r.client.httpClient.Do(req)
	if err != nil {
		return r.fail(ctx, fmt.Errorf("%w: %w", ErrStreamOpen, err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 || resp.Body == nil || resp.Body == http.NoBody {
		if resp.Body != nil {
			_ = resp.Body.Close()
		}

		return r.fail(ctx, fmt.Errorf("%w: %d %s", ErrStreamOpen, resp.StatusCode, http.StatusText(resp.StatusCode)))
	}

	r.segments++
	r.body = resp.Body
	r.framer.reset()

	r.logger.DebugContext(ctx, "Opened event stream segment",
		"segment", r.segments,
		"last_event_id", r.lastEventID,
	)

	return StateReading
}

// read consumes the current segment until it yields a transition.
func (r *Reconciler) read(ctx context.Context) State {
	for {
		n, err := r.body.Read(r.readBuf)
		if n > 0 {
			for _, data := range r.framer.push(r.readBuf[:n]) {
				if next, ok := r.handleData(ctx, data); ok {
					r.closeBody()

					return next
				}
			}
		}

		if errors.Is(err, io.EOF) {
			r.closeBody()

			if ctx.Err() != nil {
				return r.fail(ctx, ctx.Err())
			}

			r.logger.DebugContext(ctx, "Event stream segment ended without done marker")

			return StateReconnectPending
		}

		if err != nil {
			r.closeBody()

			return r.fail(ctx, fmt.Errorf("failed to read SSE stream: %w", err))
		}
	}
}

// handleData applies one event data string. ok is false when reading continues.
func (r *Reconciler) handleData(ctx context.Context, data string) (next State, ok bool) {
	if strings.TrimSpace(data) == segmentEndMarker {
		return StateReconnectPending, true
	}

	event, err := DecodeStreamEvent([]byte(data))
	if err != nil {
		r.err = err

		return StateFailed, true
	}

	r.events = append(r.events, event)

	if event.EventID != "" {
		r.lastEventID = event.EventID
	}

	if r.opts.Sink != nil {
		if err := r.opts.Sink.HandleStreamEvent(ctx, r.conversationID, event); err != nil {
			r.logger.WarnContext(ctx, "Failed to forward stream event", "type", event.Type, "error", err)
		}
	}

	done, isDone := event.Payload.(*AgentMessageDone)
	if !isDone {
		return 0, false
	}

	if done.Failed() {
		r.pending = &RunFailedError{
			Status:         *done.Status,
			ConversationID: done.ConversationID,
			MessageID:      done.MessageID,
			Raw:            []byte(data),
		}
	}

	return StateCompleted, true
}

// reconnect waits the configured delay before the next segment.
func (r *Reconciler) reconnect(ctx context.Context) State {
	if err := ctx.Err(); err != nil {
		return r.fail(ctx, err)
	}

	if r.opts.ReconnectDelay <= 0 {
		return StateConnecting
	}

	timer := time.NewTimer(r.opts.ReconnectDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return r.fail(ctx, ctx.Err())
	case <-timer.C:
		return StateConnecting
	}
}

// fail records err. An expired or cancelled context takes precedence: whatever
// the in-flight operation reported, the run is over because of the abort.
func (r *Reconciler) fail(ctx context.Context, err error) State {
	if ctxErr := ctx.Err(); ctxErr != nil {
		r.err = fmt.Errorf("event stream for conversation %s aborted after %s: %w",
			r.conversationID, r.opts.Timeout, ctxErr)

		return StateTimedOut
	}

	r.err = err

	return StateFailed
}

func (r *Reconciler) closeBody() {
	if r.body != nil {
		_ = r.body.Close()
		r.body = nil
	}
}
