// Package sse streams Server-Sent Events, the fallback realtime transport for
// clients that cannot open a websocket.
//
//	stream := sse.New(w, r)
//	stream.Serve(ctx, changes, 25*time.Second)
package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Message is one event written to the stream.
type Message struct {
	Event string
	Data  any
}

// Stream is an open SSE response.
type Stream struct {
	w       http.ResponseWriter
	r       *http.Request
	flusher http.Flusher
}

// New sets the event-stream headers. It answers 500 and returns nil when the
// writer cannot flush.
func New(w http.ResponseWriter, r *http.Request) *Stream {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return nil
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &Stream{w: w, r: r, flusher: flusher}
}

// Send writes a named event with a JSON payload.
func (s *Stream) Send(event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("sse: marshal: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return fmt.Errorf("sse: write: %w", err)
	}
	s.flusher.Flush()
	return nil
}

// Comment writes a keepalive comment line.
func (s *Stream) Comment(msg string) error {
	if _, err := fmt.Fprintf(s.w, ": %s\n\n", msg); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// Serve writes every message from in until ctx ends, the client disconnects,
// or in is closed. A heartbeat comment is sent when idle.
func (s *Stream) Serve(ctx context.Context, in <-chan Message, heartbeat time.Duration) error {
	if heartbeat <= 0 {
		heartbeat = 25 * time.Second
	}
	ticker := time.NewTicker(heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.r.Context().Done():
			return nil
		case msg, ok := <-in:
			if !ok {
				return nil
			}
			if err := s.Send(msg.Event, msg.Data); err != nil {
				return err
			}
		case <-ticker.C:
			if err := s.Comment("ping"); err != nil {
				return err
			}
		}
	}
}
