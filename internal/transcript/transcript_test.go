package transcript_test

import (
	"strings"
	"testing"

	"github.com/glizzus/talkback/internal/transcript"
)

func TestAssembler(t *testing.T) {
	var live strings.Builder
	a := transcript.NewAssembler(&live)

	for _, delta := range []string{"Hel", "lo", ", there"} {
		if _, err := a.WriteString(delta); err != nil {
			t.Fatalf("WriteString failed: %v", err)
		}
	}

	if got := a.String(); got != "Hello, there" {
		t.Errorf("expected %q, got %q", "Hello, there", got)
	}
	if got := live.String(); got != "Hello, there" {
		t.Errorf("expected live echo %q, got %q", "Hello, there", got)
	}
}

func TestPrinter(t *testing.T) {
	tc := []struct {
		name     string
		text     string
		expected string
	}{
		{name: "plain", text: "Hi!", expected: "[BOT]>  Hi!\n"},
		{name: "trims whitespace", text: "  Hi!\n", expected: "[BOT]>  Hi!\n"},
		{name: "empty prints nothing", text: "   ", expected: ""},
	}

	for _, test := range tc {
		t.Run(test.name, func(t *testing.T) {
			var out strings.Builder
			if err := transcript.NewPrinter(&out).Print(test.text); err != nil {
				t.Fatalf("Print failed: %v", err)
			}
			if out.String() != test.expected {
				t.Errorf("expected %q, got %q", test.expected, out.String())
			}
		})
	}
}
