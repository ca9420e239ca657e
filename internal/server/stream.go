// Package server exposes the change-event stream to tooling clients over
// WebSocket. The stream is a low-priority change listener: every committed
// mutation is serialized to JSON and broadcast to all connected clients.
// Slow clients drop messages rather than stall event delivery.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/conneroisu/templens/internal/logging"
	"github.com/conneroisu/templens/internal/types"
)

// StreamMessage is the wire form of one change event.
type StreamMessage struct {
	Type      string    `json:"type"`
	Project   string    `json:"project"`
	Document  string    `json:"document,omitempty"`
	Version   *int32    `json:"version,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// EventStream broadcasts change events to WebSocket subscribers.
type EventStream struct {
	logger logging.Logger

	clientsMutex sync.RWMutex
	clients      map[chan []byte]struct{}

	shutdownOnce sync.Once
	done         chan struct{}
}

// NewEventStream creates an event stream with no subscribers.
func NewEventStream(logger logging.Logger) *EventStream {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &EventStream{
		logger:  logger.WithComponent("server"),
		clients: make(map[chan []byte]struct{}),
		done:    make(chan struct{}),
	}
}

// Name implements notify.Listener.
func (s *EventStream) Name() string { return "event-stream" }

// OnChange implements notify.Listener. Runs on the foreground context, so it
// must never block: full client buffers drop the message.
func (s *EventStream) OnChange(ctx context.Context, event types.ChangeEvent) {
	msg := StreamMessage{
		Type:      string(event.Type),
		Project:   event.ProjectPath(),
		Document:  event.DocumentPath,
		Timestamp: event.Timestamp,
	}
	if event.New != nil && event.DocumentPath != "" {
		if doc, ok := event.New.Document(event.DocumentPath); ok {
			if tv, ok := doc.TryContent(); ok {
				version := tv.Version
				msg.Version = &version
			}
		}
	}

	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error(ctx, err, "marshaling stream message")
		return
	}
	s.broadcast(data)
}

func (s *EventStream) broadcast(data []byte) {
	s.clientsMutex.RLock()
	defer s.clientsMutex.RUnlock()
	for ch := range s.clients {
		select {
		case ch <- data:
		default:
			// Client buffer full, skip this message.
		}
	}
}

// ServeHTTP implements http.Handler by upgrading to WebSocket and pumping
// broadcast messages to the client until it disconnects.
func (s *EventStream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn(r.Context(), err, "websocket accept failed")
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	ch := make(chan []byte, 64)
	s.clientsMutex.Lock()
	s.clients[ch] = struct{}{}
	s.clientsMutex.Unlock()
	defer func() {
		s.clientsMutex.Lock()
		delete(s.clients, ch)
		s.clientsMutex.Unlock()
	}()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case data := <-ch:
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

// Shutdown disconnects all subscribers.
func (s *EventStream) Shutdown() {
	s.shutdownOnce.Do(func() { close(s.done) })
}

// ListenAndServe serves the event stream at /events until ctx is cancelled.
func (s *EventStream) ListenAndServe(ctx context.Context, host string, port int) error {
	mux := http.NewServeMux()
	mux.Handle("/events", s)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", host, port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info(ctx, "event stream listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
