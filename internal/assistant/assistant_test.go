package assistant_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/glizzus/talkback/internal/assistant"
	"github.com/glizzus/talkback/internal/audio"
	"github.com/glizzus/talkback/internal/config"
	"github.com/glizzus/talkback/internal/datalayer"
	"github.com/glizzus/talkback/internal/realtime"
	"github.com/glizzus/talkback/internal/realtime/realtimetest"
	"github.com/glizzus/talkback/internal/repository"
	"github.com/glizzus/talkback/internal/transcript"
)

type recorder struct {
	mu        sync.Mutex
	saved     []repository.Turn
	published []repository.Turn
	uploaded  map[string]int64
}

func newRecorder() *recorder {
	return &recorder{uploaded: map[string]int64{}}
}

func (r *recorder) Save(_ context.Context, turn repository.Turn) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved = append(r.saved, turn)
	return nil
}

func (r *recorder) PublishTurns(_ context.Context, turns ...repository.Turn) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.published = append(r.published, turns...)
	return nil
}

func (r *recorder) Put(_ context.Context, key string, data io.Reader, opts datalayer.PutOptions) error {
	n, err := io.Copy(io.Discard, data)
	if err != nil {
		return err
	}
	if n != opts.Size {
		return fmt.Errorf("size mismatch: %d != %d", n, opts.Size)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.uploaded[key] = n
	return nil
}

// speaker answers every response.create with a short spoken response and
// records the client events it received.
type speaker struct {
	mu       sync.Mutex
	received []realtimetest.ClientMessage
}

func (s *speaker) handle(c *realtimetest.Conn) {
	n := 0
	for {
		msg, ok := c.Read()
		if !ok {
			return
		}
		s.mu.Lock()
		s.received = append(s.received, msg)
		s.mu.Unlock()

		if msg.Type != realtime.EventResponseCreate {
			continue
		}
		n++
		id := fmt.Sprintf("resp_%d", n)
		// A stale tail the client must skip.
		c.Write(realtimetest.ResponseDone("resp_old"))
		c.SpeakTaggedResponse(id, msg.ResponseTag(), [][]byte{make([]byte, 480), make([]byte, 480)}, []string{"Answer ", id})
	}
}

func (s *speaker) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var types []string
	for _, msg := range s.received {
		types = append(types, msg.Type)
	}
	return types
}

func dial(t *testing.T, handle func(*realtimetest.Conn)) *realtime.Session {
	t.Helper()
	server := realtimetest.NewServer(t, handle)
	s, err := realtime.Dial(t.Context(), &config.RealtimeConfig{
		APIKey:         "sk-test",
		URL:            server.URL,
		Model:          "test-model",
		ConnectTimeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestConversation(t *testing.T) {
	sp := &speaker{}
	session := dial(t, sp.handle)

	rec := newRecorder()
	var out strings.Builder
	audioCfg := &config.AudioConfig{SampleRate: 24000, Channels: 1}

	a := assistant.New(session, assistant.Options{
		SessionID: "sess_test",
		Factory:   audio.WAVFactory(audioCfg, t.TempDir()),
		Format:    audio.FormatFromConfig(audioCfg),
		Printer:   transcript.NewPrinter(&out),
		Store:     rec,
		Publisher: rec,
		Storage:   rec,
	})

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Second)
	defer cancel()

	greeting, err := a.Greet(ctx)
	if err != nil {
		t.Fatalf("Greet failed: %v", err)
	}
	answer, err := a.Ask(ctx, "What time is it?")
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}

	want := []repository.Turn{
		{
			SessionID:    "sess_test",
			Index:        0,
			ResponseID:   "resp_1",
			Transcript:   "Answer resp_1",
			AudioBytes:   960,
			Duration:     20 * time.Millisecond,
			RecordingKey: "recordings/sess_test/resp_1.wav",
		},
		{
			SessionID:    "sess_test",
			Index:        1,
			ResponseID:   "resp_2",
			Prompt:       "What time is it?",
			Transcript:   "Answer resp_2",
			AudioBytes:   960,
			Duration:     20 * time.Millisecond,
			RecordingKey: "recordings/sess_test/resp_2.wav",
		},
	}
	ignoreCreated := cmpopts.IgnoreFields(repository.Turn{}, "CreatedAt")

	if diff := cmp.Diff(want, []repository.Turn{*greeting, *answer}, ignoreCreated); diff != "" {
		t.Errorf("turns mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, rec.saved, ignoreCreated); diff != "" {
		t.Errorf("saved turns mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, rec.published, ignoreCreated); diff != "" {
		t.Errorf("published turns mismatch (-want +got):\n%s", diff)
	}

	// 44 byte header plus 960 bytes of samples.
	wantUploads := map[string]int64{
		"recordings/sess_test/resp_1.wav": 1004,
		"recordings/sess_test/resp_2.wav": 1004,
	}
	if diff := cmp.Diff(wantUploads, rec.uploaded); diff != "" {
		t.Errorf("uploads mismatch (-want +got):\n%s", diff)
	}

	if got := out.String(); got != "[BOT]>  Answer resp_1\n[BOT]>  Answer resp_2\n" {
		t.Errorf("unexpected printed transcript %q", got)
	}

	wantTypes := []string{
		realtime.EventResponseCreate,
		realtime.EventConversationItemCreate,
		realtime.EventResponseCreate,
	}
	if diff := cmp.Diff(wantTypes, sp.types()); diff != "" {
		t.Errorf("client events mismatch (-want +got):\n%s", diff)
	}
}

func TestLiveTranscript(t *testing.T) {
	sp := &speaker{}
	session := dial(t, sp.handle)

	var live strings.Builder
	var printed strings.Builder
	a := assistant.New(session, assistant.Options{
		SessionID: "sess_live",
		Live:      &live,
		Printer:   transcript.NewPrinter(&printed),
	})

	if _, err := a.Greet(t.Context()); err != nil {
		t.Fatalf("Greet failed: %v", err)
	}
	if got := live.String(); got != "[BOT]>  Answer resp_1\n" {
		t.Errorf("unexpected live transcript %q", got)
	}
	if printed.Len() != 0 {
		t.Errorf("expected printer to be unused with live output, got %q", printed.String())
	}
}

func TestServerError(t *testing.T) {
	session := dial(t, func(c *realtimetest.Conn) {
		for {
			msg, ok := c.Read()
			if !ok {
				return
			}
			if msg.Type == realtime.EventResponseCreate {
				c.Write(realtimetest.ErrorEvent("rate_limited", "slow down"))
			}
		}
	})

	rec := newRecorder()
	a := assistant.New(session, assistant.Options{SessionID: "sess_err", Store: rec})

	_, err := a.Ask(t.Context(), "hello")
	var serverErr *realtime.ServerError
	if !errors.As(err, &serverErr) {
		t.Fatalf("expected ServerError, got %T: %v", err, err)
	}
	if serverErr.Code != "rate_limited" {
		t.Errorf("unexpected code %q", serverErr.Code)
	}
	if len(rec.saved) != 0 {
		t.Errorf("expected no saved turns, got %d", len(rec.saved))
	}
}

func TestRecordingKey(t *testing.T) {
	got := assistant.RecordingKey("sess_1", "resp_9", "/tmp/out/sess_1-000.opus")
	if got != "recordings/sess_1/resp_9.opus" {
		t.Errorf("unexpected key %q", got)
	}
}

func TestAbandonedResponseIsSkipped(t *testing.T) {
	var mu sync.Mutex
	var tags []string
	session := dial(t, func(c *realtimetest.Conn) {
		n := 0
		for {
			msg, ok := c.Read()
			if !ok {
				return
			}
			if msg.Type != realtime.EventResponseCreate {
				continue
			}
			n++
			mu.Lock()
			tags = append(tags, msg.ResponseTag())
			mu.Unlock()

			if n == 1 {
				// The request is reported as failed, yet answered anyway.
				c.Write(realtimetest.ErrorEvent("conversation_already_has_active_response", "busy"))
			}
			c.SpeakTaggedResponse(fmt.Sprintf("resp_%d", n), msg.ResponseTag(), nil, []string{fmt.Sprintf("answer %d", n)})
		}
	})

	a := assistant.New(session, assistant.Options{SessionID: "sess_retry"})

	_, err := a.Ask(t.Context(), "first")
	var serverErr *realtime.ServerError
	if !errors.As(err, &serverErr) {
		t.Fatalf("expected ServerError, got %T: %v", err, err)
	}

	turn, err := a.Ask(t.Context(), "second")
	if err != nil {
		t.Fatalf("Ask failed: %v", err)
	}
	if turn.ResponseID != "resp_2" || turn.Transcript != "answer 2" {
		t.Errorf("expected resp_2 %q, got %s %q", "answer 2", turn.ResponseID, turn.Transcript)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(tags) != 2 || tags[0] == "" || tags[0] == tags[1] {
		t.Errorf("expected two distinct request tags, got %q", tags)
	}
}
