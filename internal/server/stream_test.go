package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/templens/internal/types"
)

func projectSnapshot(t *testing.T, docText string, version int32) *types.Snapshot {
	t.Helper()
	state := types.NewProjectState(types.ProjectDescriptor{
		Path:            "/p/templens.yml",
		LanguageVersion: "latest",
		Extensions:      []string{".templ"},
	}).WithDocumentAdded(types.DocumentDescriptor{
		ProjectPath: "/p/templens.yml",
		Path:        "/p/index.templ",
		TargetPath:  "index.templ",
	}, types.StaticLoader(types.TextAndVersion{}))
	doc, ok := state.Document(types.NewDocumentKey("/p/index.templ"))
	require.True(t, ok)
	state = state.WithDocumentState(doc.Descriptor().Key(),
		doc.WithContent(types.TextAndVersion{Text: docText, Version: version}))
	return types.NewSnapshot(state)
}

func TestEventStream_BroadcastsToSubscriber(t *testing.T) {
	stream := NewEventStream(nil)
	t.Cleanup(stream.Shutdown)

	srv := httptest.NewServer(stream)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+srv.URL[len("http"):], nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	snap := projectSnapshot(t, "X", 3)
	// The subscriber registers inside ServeHTTP; publish until the handshake
	// has landed and a message comes through.
	received := make(chan []byte, 1)
	go func() {
		_, data, err := conn.Read(ctx)
		if err == nil {
			received <- data
		}
	}()

	var data []byte
	require.Eventually(t, func() bool {
		stream.OnChange(context.Background(), types.ChangeEvent{
			Type:         types.EventTypeDocumentChanged,
			New:          snap,
			DocumentPath: "/p/index.templ",
			Timestamp:    time.Now(),
		})
		select {
		case data = <-received:
			return true
		default:
			return false
		}
	}, 3*time.Second, 10*time.Millisecond, "no stream message received")

	var msg StreamMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, string(types.EventTypeDocumentChanged), msg.Type)
	assert.Equal(t, "/p/templens.yml", msg.Project)
	assert.Equal(t, "/p/index.templ", msg.Document)
	require.NotNil(t, msg.Version)
	assert.Equal(t, int32(3), *msg.Version)
}

func TestEventStream_ProjectEventOmitsVersion(t *testing.T) {
	stream := NewEventStream(nil)
	t.Cleanup(stream.Shutdown)

	ch := make(chan []byte, 1)
	stream.clientsMutex.Lock()
	stream.clients[ch] = struct{}{}
	stream.clientsMutex.Unlock()

	stream.OnChange(context.Background(), types.ChangeEvent{
		Type:      types.EventTypeProjectAdded,
		New:       projectSnapshot(t, "X", 0),
		Timestamp: time.Now(),
	})

	var msg StreamMessage
	require.NoError(t, json.Unmarshal(<-ch, &msg))
	assert.Equal(t, string(types.EventTypeProjectAdded), msg.Type)
	assert.Equal(t, "/p/templens.yml", msg.Project)
	assert.Nil(t, msg.Version)
	assert.Empty(t, msg.Document)
}

func TestEventStream_SlowClientDoesNotBlockDelivery(t *testing.T) {
	stream := NewEventStream(nil)
	t.Cleanup(stream.Shutdown)

	// A subscriber channel that is never drained.
	ch := make(chan []byte, 1)
	stream.clientsMutex.Lock()
	stream.clients[ch] = struct{}{}
	stream.clientsMutex.Unlock()

	snap := projectSnapshot(t, "X", 0)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			stream.OnChange(context.Background(), types.ChangeEvent{
				Type:      types.EventTypeProjectChanged,
				New:       snap,
				Timestamp: time.Now(),
			})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast blocked on a full client buffer")
	}
}

func TestEventStream_HealthEndpoint(t *testing.T) {
	stream := NewEventStream(nil)
	mux := http.NewServeMux()
	mux.Handle("/events", stream)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
