package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/glizzus/talkback/internal/assistant"
	"github.com/glizzus/talkback/internal/realtime"
	"github.com/glizzus/talkback/internal/schedule"
	"github.com/glizzus/talkback/internal/transcript"
)

func goodbye() {
	fmt.Println("Goodbye!")
}

// readLines delivers stdin lines until EOF. It runs in its own goroutine so
// an interrupt does not wait for the user to press enter.
func readLines(r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		if err := scanner.Err(); err != nil {
			slog.Error("failed to read input", "error", err)
		}
	}()
	return lines
}

// isExit reports whether line asks to leave the conversation.
func isExit(line string) bool {
	return strings.EqualFold(strings.TrimSpace(line), "exit")
}

func chat(c *cli.Context) error {
	ctx := c.Context
	res := &resources{}
	defer res.Close()

	t, err := connect(c, res)
	if err != nil {
		return err
	}

	if _, err := t.Greet(ctx); err != nil {
		if interrupted(ctx, t) {
			fmt.Println()
			goodbye()
			return nil
		}
		return fmt.Errorf("failed to greet: %w", err)
	}

	prompt := transcript.NewPrinter(os.Stdout)
	lines := readLines(os.Stdin)
	for {
		if err := prompt.Prompt(); err != nil {
			return err
		}

		var line string
		select {
		case <-ctx.Done():
			fmt.Println()
			goodbye()
			return nil
		case l, ok := <-lines:
			if !ok {
				fmt.Println()
				goodbye()
				return nil
			}
			line = strings.TrimSpace(l)
		}

		if isExit(line) {
			goodbye()
			return nil
		}
		if line == "" {
			continue
		}

		if _, err := t.Ask(ctx, line); err != nil {
			if interrupted(ctx, t) {
				fmt.Println()
				goodbye()
				return nil
			}
			var serverErr *realtime.ServerError
			if errors.As(err, &serverErr) {
				fmt.Fprintf(os.Stderr, "error: %s\n", serverErr.Message)
				continue
			}
			return err
		}
	}
}

type canceler interface {
	Cancel(ctx context.Context) error
}

var _ canceler = (*assistant.Assistant)(nil)

// interrupted reports whether ctx was cancelled locally. If so, the response
// in flight is cancelled so the server stops generating it.
func interrupted(ctx context.Context, t canceler) bool {
	if ctx.Err() == nil {
		return false
	}
	cancelCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := t.Cancel(cancelCtx); err != nil {
		slog.Debug("failed to cancel response", "error", err)
	}
	return true
}

func say(c *cli.Context) error {
	ctx := c.Context
	res := &resources{}
	defer res.Close()

	t, err := connect(c, res)
	if err != nil {
		return err
	}

	text := strings.Join(c.Args().Slice(), " ")
	if strings.TrimSpace(text) == "" {
		_, err = t.Greet(ctx)
	} else {
		_, err = t.Ask(ctx, text)
	}
	if err != nil && interrupted(ctx, t) {
		return nil
	}
	return err
}

func scheduled(c *cli.Context) error {
	ctx := c.Context
	cron := c.String("cron")
	if err := schedule.ValidateCron(cron); err != nil {
		return cli.Exit(err.Error(), 1)
	}

	text := strings.Join(c.Args().Slice(), " ")
	if strings.TrimSpace(text) == "" {
		return cli.Exit("Please provide the text to ask on every run", 1)
	}

	next, err := schedule.NextRunTimes(cron, 3)
	if err != nil {
		return err
	}
	for _, t := range next {
		slog.Info("upcoming run", "runAt", t.Format(time.RFC3339))
	}

	// A fresh session per run keeps idle connections from timing out
	// between ticks.
	return schedule.Every(ctx, cron, func(ctx context.Context) error {
		res := &resources{}
		defer res.Close()

		t, err := connect(c, res)
		if err != nil {
			return err
		}
		_, err = t.Ask(ctx, text)
		return err
	})
}
