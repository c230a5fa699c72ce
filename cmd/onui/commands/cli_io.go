package commands

import (
	"bufio"
	"context"
	"fmt"
	stdio "io"
	"log/slog"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/lumiknit/onui/pkg/onui/engine"
)

// CliIO is onui's terminal I/O boundary: it owns raw line reading
// (readline with history in interactive mode, a plain bufio.Scanner in
// --pipe mode) and renders Output events using the fixed framing markers
// the protocol defines.
type CliIO struct {
	pipe   bool
	logger *slog.Logger

	decoder *engine.Decoder
	rl      *readline.Instance
	scanner *bufio.Scanner

	signals chan engine.Signal
	inputs  chan engine.Input
	output  chan engine.Output
	done    chan struct{}
}

// newCliIO constructs the terminal I/O layer. In interactive mode it uses
// chzyer/readline (line history, Ctrl-C trapped as readline.ErrInterrupt);
// in --pipe mode it falls back to a plain bufio.Scanner with no prompt
// glyph or editing.
func newCliIO(pipe bool, logger *slog.Logger) (*CliIO, error) {
	c := &CliIO{
		pipe:    pipe,
		logger:  logger,
		decoder: engine.NewDecoder(),
		signals: make(chan engine.Signal, 4),
		inputs:  make(chan engine.Input, 4),
		output:  make(chan engine.Output, 32),
		done:    make(chan struct{}),
	}

	if pipe {
		c.scanner = bufio.NewScanner(os.Stdin)
	} else {
		rl, err := readline.NewEx(&readline.Config{
			Prompt:          "> ",
			HistoryFile:     historyFilePath(),
			InterruptPrompt: "^C",
			EOFPrompt:       "/exit",
		})
		if err != nil {
			return nil, fmt.Errorf("starting readline: %w", err)
		}
		c.rl = rl
	}

	go c.renderOutput()
	return c, nil
}

// channels exposes the engine.IO view the agent loop consumes.
func (c *CliIO) channels() engine.IO {
	return engine.IO{Signals: c.signals, Inputs: c.inputs, Output: c.output}
}

// pumpInput reads lines until ctx is cancelled or the input stream ends,
// decoding each one and forwarding the resulting Signal/Input onto the
// agent's channels. Run it in its own goroutine: it blocks on terminal
// reads for the lifetime of the session.
func (c *CliIO) pumpInput(ctx context.Context) {
	defer close(c.signals)
	defer close(c.inputs)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := c.readLine()
		if err != nil {
			switch {
			case err == readline.ErrInterrupt:
				c.signals <- engine.Signal{Kind: engine.SignalCancel}
				continue
			case err == stdio.EOF:
				c.signals <- engine.Signal{Kind: engine.SignalExit}
				return
			default:
				c.logger.Error("reading input", "error", err)
				c.signals <- engine.Signal{Kind: engine.SignalExit}
				return
			}
		}

		result := c.decoder.Feed(line)
		switch {
		case result.Ignore:
			continue
		case result.Signal != nil:
			c.signals <- *result.Signal
		case result.Input != nil:
			c.inputs <- *result.Input
		}
	}
}

// readLine reads one raw line from the active input source.
func (c *CliIO) readLine() (string, error) {
	if c.pipe {
		if !c.scanner.Scan() {
			if err := c.scanner.Err(); err != nil {
				return "", err
			}
			return "", stdio.EOF
		}
		return c.scanner.Text(), nil
	}
	return c.rl.Readline()
}

// forwardExitSignal is invoked from root.go's SIGTERM/SIGHUP/SIGQUIT
// handler to push a terminating Signal::Exit without going through the
// line decoder.
func (c *CliIO) forwardExitSignal() {
	select {
	case c.signals <- engine.Signal{Kind: engine.SignalExit}:
	case <-c.done:
	}
}

// renderOutput consumes Output events and writes them to stdout using
// the protocol's fixed framing markers.
func (c *CliIO) renderOutput() {
	defer close(c.done)

	for out := range c.output {
		switch out.Kind {
		case engine.OutSystemMsg:
			for _, line := range strings.Split(out.Text, "\n") {
				fmt.Fprintf(os.Stdout, "* %s\n", line)
			}

		case engine.OutAssistantMsg:
			if out.Text == "" {
				fmt.Fprintln(os.Stdout)
				continue
			}
			fmt.Fprint(os.Stdout, out.Text)

		case engine.OutToolCode:
			fmt.Fprintf(os.Stdout, "\n---[LUA:%s]---\n%s\n---[END:%s]---\n", out.ID, out.Code, out.ID)
			fmt.Fprint(os.Stdout, "* Approve execution? (y/n) ")

		case engine.OutToolResult:
			fmt.Fprintf(os.Stdout, "\n-->[RESULT:%s]---\n%s\n-->[END RESULT:%s]---\n", out.ID, out.Result, out.ID)

		case engine.OutInputReady:
			// The prompt glyph itself is drawn by readline.Readline() on its
			// next call (interactive mode) or omitted entirely (--pipe).
		}
	}
}

// Close releases the terminal resources (readline's raw-mode terminal
// state, if any).
func (c *CliIO) Close() {
	if c.rl != nil {
		c.rl.Close()
	}
}

// historyFilePath returns $HOME/.onui/history, or "" (no persisted
// history) if the home directory can't be resolved.
func historyFilePath() string {
	u, err := user.Current()
	if err != nil || u.HomeDir == "" {
		return ""
	}
	return filepath.Join(u.HomeDir, ".onui", "history")
}
