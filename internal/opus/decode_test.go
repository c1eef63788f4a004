package opus_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/glizzus/talkback/internal/opus"
)

func TestFrameRoundTrip(t *testing.T) {
	frames := [][]byte{{0xf8, 0xff, 0xfe}, {1}, bytes.Repeat([]byte{7}, 300)}

	var buf bytes.Buffer
	for _, f := range frames {
		if err := opus.WriteFrame(&buf, f); err != nil {
			t.Fatalf("WriteFrame failed: %v", err)
		}
	}

	reader := opus.NewFrameReader(&buf)
	var got [][]byte
	for {
		frame, err := reader.ReadFrame()
		if err != nil {
			break
		}
		got = append(got, frame)
	}
	if diff := cmp.Diff(frames, got); diff != "" {
		t.Errorf("frames mismatch (-want +got):\n%s", diff)
	}
}

func TestWriteFrameRejectsOversizedFrame(t *testing.T) {
	if err := opus.WriteFrame(&bytes.Buffer{}, make([]byte, 70000)); err == nil {
		t.Fatal("expected an error for a frame longer than 65535 bytes")
	}
}

func TestInspect(t *testing.T) {
	tc := []struct {
		name  string
		input func() []byte
		want  opus.Stats
	}{
		{
			name:  "empty",
			input: func() []byte { return nil },
			want:  opus.Stats{},
		},
		{
			name: "three frames",
			input: func() []byte {
				var buf bytes.Buffer
				_ = opus.WriteFrame(&buf, make([]byte, 10))
				_ = opus.WriteFrame(&buf, make([]byte, 40))
				_ = opus.WriteFrame(&buf, make([]byte, 20))
				return buf.Bytes()
			},
			want: opus.Stats{Frames: 3, PayloadBytes: 70, LargestFrame: 40, Duration: 60 * time.Millisecond},
		},
		{
			name: "truncated tail",
			input: func() []byte {
				var buf bytes.Buffer
				_ = opus.WriteFrame(&buf, make([]byte, 10))
				buf.Write([]byte{50, 0, 1, 2})
				return buf.Bytes()
			},
			want: opus.Stats{Frames: 1, PayloadBytes: 10, LargestFrame: 10, Duration: 20 * time.Millisecond, Truncated: true},
		},
	}

	for _, test := range tc {
		t.Run(test.name, func(t *testing.T) {
			got, err := opus.Inspect(bytes.NewReader(test.input()))
			if err != nil {
				t.Fatalf("Inspect failed: %v", err)
			}
			if diff := cmp.Diff(test.want, got); diff != "" {
				t.Errorf("stats mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
