package eventlog_test

import (
	"bytes"
	"encoding/base64"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/glizzus/talkback/internal/eventlog"
	"github.com/glizzus/talkback/internal/realtime"
)

func b64(p []byte) string {
	return base64.StdEncoding.EncodeToString(p)
}

func TestWriterWritesOneLinePerEvent(t *testing.T) {
	var buf bytes.Buffer
	w := eventlog.NewWriter(&buf)

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Observe([]byte("{\n  \"type\": \"response.audio.delta\",\n  \"delta\": \"AAA=\"\n}"))
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	if len(lines) != 20 {
		t.Fatalf("expected 20 lines, got %d", len(lines))
	}
	for _, line := range lines {
		if line != `{"type":"response.audio.delta","delta":"AAA="}` {
			t.Errorf("unexpected line %q", line)
		}
	}
}

func TestWriterRejectsInvalidJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := eventlog.NewWriter(&buf).Append([]byte("not json")); err == nil {
		t.Error("expected an error")
	}
	if buf.Len() != 0 {
		t.Errorf("expected nothing written, got %q", buf.String())
	}
}

func TestRead(t *testing.T) {
	audio := `{"type":"response.audio.delta","response_id":"r1","delta":"` + b64([]byte{1, 2}) + `"}`
	done := `{"type":"response.done","response":{"id":"r1"}}`

	tc := []struct {
		name  string
		input string
	}{
		{name: "jsonl", input: audio + "\n" + done + "\n"},
		{name: "json array", input: "  [\n" + audio + ",\n" + done + "\n]"},
	}

	for _, test := range tc {
		t.Run(test.name, func(t *testing.T) {
			events, err := eventlog.Read(strings.NewReader(test.input))
			if err != nil {
				t.Fatalf("Read failed: %v", err)
			}
			var types []string
			for _, ev := range events {
				types = append(types, ev.Type)
			}
			want := []string{realtime.EventAudioDelta, realtime.EventResponseDone}
			if diff := cmp.Diff(want, types); diff != "" {
				t.Errorf("event types mismatch (-want +got):\n%s", diff)
			}
			if events[1].ResponseKey() != "r1" {
				t.Errorf("expected r1, got %q", events[1].ResponseKey())
			}
		})
	}
}

func TestReadEmpty(t *testing.T) {
	events, err := eventlog.Read(strings.NewReader("  \n"))
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("expected no events, got %d", len(events))
	}
}

func TestPCM(t *testing.T) {
	events := []realtime.ServerEvent{
		{Type: realtime.EventResponseCreated},
		{Type: realtime.EventAudioDelta, Delta: b64([]byte{1, 2})},
		{Type: realtime.EventAudioTranscript, Delta: "hi"},
		{Type: realtime.EventAudioDelta, Delta: b64([]byte{3})},
	}

	pcm, err := eventlog.PCM(events)
	if err != nil {
		t.Fatalf("PCM failed: %v", err)
	}
	if diff := cmp.Diff([]byte{1, 2, 3}, pcm); diff != "" {
		t.Errorf("pcm mismatch (-want +got):\n%s", diff)
	}

	if _, err := eventlog.PCM([]realtime.ServerEvent{{Type: realtime.EventAudioDelta, Delta: "%%"}}); err == nil {
		t.Error("expected an error for invalid base64")
	}
}
