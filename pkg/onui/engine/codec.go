package engine

import "strings"

// commandNames maps every recognized "/"-prefixed token (case-insensitive,
// synonyms included) to its canonical name. Canonical names listed in
// signalNames are turned into a Signal, not an Input, by decodeFinal.
var commandNames = map[string]string{
	"help":     "help",
	"status":   "status",
	"reset-vm": "reset-vm",
	"resetvm":  "reset-vm",
	"compact":  "compact",
	"approve":  "approve",
	"a":        "approve",
	"reject":   "reject",
	"r":        "reject",
	"always":   "always",
	"cancel":   "cancel",
	"c":        "cancel",
	"stop":     "cancel",
	"exit":     "exit",
	"quit":     "exit",
	"q":        "exit",
}

// signalNames are the subset of commandNames that decode to a Signal
// rather than an Input::Command.
var signalNames = map[string]SignalKind{
	"cancel": SignalCancel,
	"exit":   SignalExit,
}

// Decoder turns raw operator lines into Input/Signal events. It holds the
// multi-line continuation buffer for backslash-terminated lines.
type Decoder struct {
	pending strings.Builder
	joining bool
}

// NewDecoder returns a ready-to-use Decoder.
func NewDecoder() *Decoder { return &Decoder{} }

// DecodeResult is the outcome of feeding one raw line to the decoder.
type DecodeResult struct {
	// Ignore is true when the line produced no event (a blank line, or
	// because the line continues via a trailing backslash).
	Ignore bool
	Signal *Signal
	Input  *Input
}

// Feed decodes one raw line (without its trailing newline). It implements
// the backslash-continuation rule: a line ending in "\" is buffered and
// joined with the next line (the backslash replaced by "\n") until a line
// without a trailing backslash is fed.
func (d *Decoder) Feed(raw string) DecodeResult {
	raw = strings.TrimSuffix(raw, "\n")
	raw = strings.TrimSuffix(raw, "\r")

	if strings.HasSuffix(raw, "\\") {
		d.pending.WriteString(strings.TrimSuffix(raw, "\\"))
		d.pending.WriteString("\n")
		d.joining = true
		return DecodeResult{Ignore: true}
	}

	var final string
	if d.joining {
		d.pending.WriteString(raw)
		final = d.pending.String()
		d.pending.Reset()
		d.joining = false
	} else {
		final = raw
	}

	return decodeFinal(final)
}

// decodeFinal classifies a fully-joined line as a blank (ignored), a
// slash-prefixed command or signal, or plain text.
func decodeFinal(line string) DecodeResult {
	if strings.TrimSpace(line) == "" {
		return DecodeResult{Ignore: true}
	}

	if !strings.HasPrefix(strings.TrimSpace(line), "/") {
		return DecodeResult{Input: &Input{Kind: InputText, Text: line}}
	}

	trimmed := strings.TrimSpace(line)
	body := ""
	firstLine := trimmed
	if idx := strings.IndexByte(trimmed, '\n'); idx >= 0 {
		firstLine = trimmed[:idx]
		body = trimmed[idx+1:]
	}

	firstLine = strings.TrimPrefix(firstLine, "/")
	name, arg, _ := strings.Cut(firstLine, " ")
	arg = strings.TrimSpace(arg)
	lowerName := strings.ToLower(name)

	canonical, ok := commandNames[lowerName]
	if !ok {
		// Rule 5: unknown "/"-prefixed tokens are surfaced as a Command
		// with the Unknown sentinel so the agent can render the error,
		// rather than silently falling back to a Text prompt.
		return DecodeResult{Input: &Input{
			Kind:    InputCommand,
			Name:    lowerName,
			Arg:     arg,
			Body:    body,
			Unknown: true,
		}}
	}

	// Rule 3: every synonym of cancel/stop/c and exit/quit/q decodes to a
	// Signal, not just the canonical spelling — check against the
	// canonicalized name, not the raw token.
	if kind, isSignal := signalNames[canonical]; isSignal {
		return DecodeResult{Signal: &Signal{Kind: kind}}
	}

	return DecodeResult{Input: &Input{
		Kind: InputCommand,
		Name: canonical,
		Arg:  arg,
		Body: body,
	}}
}

// RenderCommand produces the canonical "/<name>" string for a recognized
// command, such that decode(render(Command{cmd,"",""})) == Command{cmd,"",""}.
func RenderCommand(name string) string {
	return "/" + name
}
