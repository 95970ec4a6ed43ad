package dust

import (
	"bytes"
	"strings"
)

// segmentEndMarker is the data value the server sends before deliberately
// closing a stream segment. It does not mean the conversation is complete.
const segmentEndMarker = "done"

var eventSeparator = []byte("\n\n")

// sseFramer splits an SSE byte stream into event data strings. It buffers
// partial events across reads, so chunks may be cut anywhere, including inside
// a multi-byte UTF-8 sequence.
type sseFramer struct {
	buf []byte
}

// push appends chunk and returns the data of every event completed by it.
// Events without data lines are skipped.
func (f *sseFramer) push(chunk []byte) []string {
	f.buf = append(f.buf, chunk...)

	var out []string

	for {
		idx := bytes.Index(f.buf, eventSeparator)
		if idx < 0 {
			break
		}

		block := string(f.buf[:idx])
		f.buf = f.buf[idx+len(eventSeparator):]

		if data := eventData(block); data != "" {
			out = append(out, data)
		}
	}

	return out
}

// reset drops any partial event. Used when a new segment starts.
func (f *sseFramer) reset() {
	f.buf = f.buf[:0]
}

// eventData concatenates the data lines of one event block.
func eventData(block string) string {
	var data strings.Builder

	for _, line := range strings.Split(block, "\n") {
		if rest, ok := strings.CutPrefix(line, "data:"); ok {
			data.WriteString(strings.TrimSpace(rest))
		}
	}

	return data.String()
}
