package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrStreamingUnsupported is returned when the response writer cannot flush.
var ErrStreamingUnsupported = errors.New("streaming unsupported")

// SSEWriter writes Server-Sent Events frames and flushes after each frame.
// It is not safe for concurrent use.
type SSEWriter struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

// NewSSEWriter sets the event-stream headers, sends 200 OK and returns a
// writer for frames. Headers must be final before calling it.
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	rc := http.NewResponseController(w)

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-store, no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")

	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		if errors.Is(err, http.ErrNotSupported) {
			return nil, ErrStreamingUnsupported
		}
		return nil, err
	}

	return &SSEWriter{w: w, rc: rc}, nil
}

// Event writes one event frame. Empty id or name lines are omitted.
// Strings and byte slices are sent as-is, everything else as JSON.
func (s *SSEWriter) Event(id, name string, data any) error {
	payload, err := encodeSSEData(data)
	if err != nil {
		return err
	}

	var b strings.Builder
	if id != "" {
		fmt.Fprintf(&b, "id: %s\n", id)
	}
	if name != "" {
		fmt.Fprintf(&b, "event: %s\n", name)
	}
	for line := range strings.SplitSeq(payload, "\n") {
		fmt.Fprintf(&b, "data: %s\n", line)
	}
	b.WriteString("\n")

	return s.write(b.String())
}

// Comment writes a comment frame, used for keepalives.
func (s *SSEWriter) Comment(text string) error {
	return s.write(": " + text + "\n\n")
}

func (s *SSEWriter) write(frame string) error {
	if _, err := s.w.Write([]byte(frame)); err != nil {
		return err
	}
	return s.rc.Flush()
}

func encodeSSEData(data any) (string, error) {
	switch v := data.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		b, err := json.Marshal(data)
		if err != nil {
			return "", fmt.Errorf("encode event data: %w", err)
		}
		return string(b), nil
	}
}
