package dust

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrStreamOpen indicates the events endpoint could not be opened.
	ErrStreamOpen = errors.New("failed to open SSE stream")

	// ErrMalformedEvent indicates an event stream payload that is not valid JSON.
	ErrMalformedEvent = errors.New("malformed stream event")

	// ErrInvalidRequest indicates a request that failed validation before any call was made.
	ErrInvalidRequest = errors.New("invalid request")
)

// HTTPError represents a non-2xx answer from the Dust API.
type HTTPError struct {
	Method     string
	URL        string
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.URL, e.StatusCode, e.Message)
}

// RunFailedError is returned when the terminal agent_message_done event carries a
// status other than "success".
type RunFailedError struct {
	Status         string
	ConversationID string
	MessageID      string
	Raw            json.RawMessage

	// Events observed on the stream up to and including the terminal event.
	Events []StreamEvent
}

func (e *RunFailedError) Error() string {
	return fmt.Sprintf(
		"Dust agent run failed (status=%s) for conversationId=%s, messageId=%s",
		e.Status,
		orUnknown(e.ConversationID),
		orUnknown(e.MessageID),
	)
}

// IsRunFailed reports whether err carries an agent run failure.
func IsRunFailed(err error) bool {
	var runErr *RunFailedError

	return errors.As(err, &runErr)
}

// StatusCode returns the HTTP status code carried by err, or 0 if there is none.
func StatusCode(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}

	return 0
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}

	return s
}
