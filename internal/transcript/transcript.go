// Package transcript assembles the text that accompanies a spoken response.
package transcript

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// Assembler concatenates transcript deltas in arrival order. When Live is
// set, every delta is also echoed to it as it arrives.
type Assembler struct {
	Live io.Writer

	mu  sync.Mutex
	buf strings.Builder
}

// NewAssembler returns an Assembler echoing to live, which may be nil.
func NewAssembler(live io.Writer) *Assembler {
	return &Assembler{Live: live}
}

func (a *Assembler) WriteString(s string) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.buf.WriteString(s)
	if a.Live != nil {
		if _, err := io.WriteString(a.Live, s); err != nil {
			return 0, fmt.Errorf("failed to echo transcript: %w", err)
		}
	}
	return len(s), nil
}

// String returns everything written so far.
func (a *Assembler) String() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.buf.String()
}

const (
	BotPrefix  = "[BOT]>  "
	UserPrompt = "[YOU]>  "
)

// Printer writes finished transcripts as chat lines.
type Printer struct {
	w io.Writer
}

func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// Print writes a single bot line. Empty transcripts print nothing.
func (p *Printer) Print(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if _, err := fmt.Fprintf(p.w, "%s%s\n", BotPrefix, text); err != nil {
		return fmt.Errorf("failed to print transcript: %w", err)
	}
	return nil
}

// Prompt writes the user prompt without a trailing newline.
func (p *Printer) Prompt() error {
	_, err := io.WriteString(p.w, UserPrompt)
	return err
}
