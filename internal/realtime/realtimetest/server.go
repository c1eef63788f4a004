// Package realtimetest provides an in-process realtime server for tests.
package realtimetest

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/glizzus/talkback/internal/realtime"
)

// ClientMessage is a decoded event received from the client under test.
type ClientMessage struct {
	Type    string          `json:"type"`
	EventID string          `json:"event_id"`
	Raw     json.RawMessage `json:"-"`
}

// ResponseTag returns the request tag carried by a response.create, or "".
func (m ClientMessage) ResponseTag() string {
	var create struct {
		Response struct {
			Metadata map[string]string `json:"metadata"`
		} `json:"response"`
	}
	if err := json.Unmarshal(m.Raw, &create); err != nil {
		return ""
	}
	return create.Response.Metadata[realtime.TurnMetadataKey]
}

// Conn is the server side of one client connection.
type Conn struct {
	t    testing.TB
	conn *websocket.Conn
}

// Read blocks for the next client event. ok is false once the client is gone.
func (c *Conn) Read() (msg ClientMessage, ok bool) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return ClientMessage{}, false
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		c.t.Errorf("client sent invalid json: %v", err)
		return ClientMessage{}, false
	}
	msg.Raw = data
	return msg, true
}

// Write sends v as a JSON text frame.
func (c *Conn) Write(v any) {
	if err := c.conn.WriteJSON(v); err != nil {
		c.t.Logf("realtimetest: write failed: %v", err)
	}
}

// WriteRaw sends data unchanged as a text frame.
func (c *Conn) WriteRaw(data []byte) {
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.t.Logf("realtimetest: write failed: %v", err)
	}
}

// Drop closes the connection without a close frame, as a crashed server or a
// broken network would.
func (c *Conn) Drop() {
	_ = c.conn.UnderlyingConn().Close()
}

// Close performs a normal closure.
func (c *Conn) Close() {
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = c.conn.Close()
}

// Server accepts realtime connections and hands each one to a handler.
type Server struct {
	URL string

	mu      sync.Mutex
	headers []http.Header
}

// NewServer starts a server that runs handle for every connection.
// The server is closed when the test ends.
func NewServer(t testing.TB, handle func(*Conn)) *Server {
	t.Helper()
	s := &Server{}
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.headers = append(s.headers, r.Header.Clone())
		s.mu.Unlock()

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("realtimetest: upgrade error: %v", err)
			return
		}
		defer conn.Close()
		handle(&Conn{t: t, conn: conn})
	}))
	t.Cleanup(server.Close)

	s.URL = "ws" + strings.TrimPrefix(server.URL, "http")
	return s
}

// Headers returns the handshake headers of every connection so far.
func (s *Server) Headers() []http.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]http.Header(nil), s.headers...)
}

// Event is a loosely typed server event.
type Event map[string]any

// ResponseCreated, AudioDelta, TranscriptDelta and ResponseDone build the
// events of a typical spoken response.
func ResponseCreated(responseID string) Event {
	return Event{"type": "response.created", "response": map[string]any{"id": responseID, "status": "in_progress"}}
}

// TaggedResponseCreated echoes the request tag the way the server echoes
// response metadata.
func TaggedResponseCreated(responseID, tag string) Event {
	return Event{"type": "response.created", "response": map[string]any{
		"id":       responseID,
		"status":   "in_progress",
		"metadata": map[string]string{realtime.TurnMetadataKey: tag},
	}}
}

func AudioDelta(responseID string, pcm []byte) Event {
	return Event{"type": "response.audio.delta", "response_id": responseID, "delta": base64.StdEncoding.EncodeToString(pcm)}
}

func TranscriptDelta(responseID, text string) Event {
	return Event{"type": "response.audio_transcript.delta", "response_id": responseID, "delta": text}
}

func ResponseDone(responseID string) Event {
	return Event{"type": "response.done", "response": map[string]any{"id": responseID, "status": "completed"}}
}

func ErrorEvent(code, message string) Event {
	return Event{"type": "error", "error": map[string]any{"type": "invalid_request_error", "code": code, "message": message}}
}

// SpeakResponse writes a complete response made of the given audio chunks and
// transcript pieces.
func (c *Conn) SpeakResponse(responseID string, audio [][]byte, transcript []string) {
	c.SpeakTaggedResponse(responseID, "", audio, transcript)
}

// SpeakTaggedResponse is SpeakResponse for a request tagged tag. An empty tag
// leaves the metadata out.
func (c *Conn) SpeakTaggedResponse(responseID, tag string, audio [][]byte, transcript []string) {
	if tag == "" {
		c.Write(ResponseCreated(responseID))
	} else {
		c.Write(TaggedResponseCreated(responseID, tag))
	}
	for i := 0; i < len(audio) || i < len(transcript); i++ {
		if i < len(audio) {
			c.Write(AudioDelta(responseID, audio[i]))
		}
		if i < len(transcript) {
			c.Write(TranscriptDelta(responseID, transcript[i]))
		}
	}
	c.Write(ResponseDone(responseID))
}
