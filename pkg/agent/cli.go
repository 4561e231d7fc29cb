package agent

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/tayfa-dev/tayfa/pkg/config"
	"github.com/tayfa-dev/tayfa/pkg/models"
)

// CursorCLI invokes the alternate runtime directly: the configured CLI is
// spawned via the shell with the prompt on stdin, produces JSON on stdout
// (no streaming), and its outcome is reported as a single synthetic event.
type CursorCLI struct {
	command    string
	timeout    time.Duration
	drainGrace time.Duration
}

// NewCursorCLI creates the alternate-runtime invoker.
func NewCursorCLI(gw config.GatewayConfig, ag config.AgentConfig) *CursorCLI {
	return &CursorCLI{
		command:    gw.CursorCommand,
		timeout:    ag.Timeout,
		drainGrace: ag.DrainGrace,
	}
}

// cliFrame is the superset of JSON documents the CLI prints.
type cliFrame struct {
	Type       string  `json:"type,omitempty"`
	Result     string  `json:"result,omitempty"`
	Text       string  `json:"text,omitempty"`
	IsError    bool    `json:"is_error,omitempty"`
	SessionID  string  `json:"session_id,omitempty"`
	ChatID     string  `json:"chat_id,omitempty"`
	CostUSD    float64 `json:"cost_usd,omitempty"`
	NumTurns   int     `json:"num_turns,omitempty"`
	DurationMS float64 `json:"duration_ms,omitempty"`
}

type cliParsed struct {
	found       bool
	isError     bool
	text        string
	session     string
	costUSD     float64
	numTurns    int
	durationSec float64
}

// Invoke runs the CLI once. At the deadline the process gets SIGTERM and a
// drain grace to finish writing stdout; only then is it killed and the
// pipes force-closed. Whatever partial output exists is parsed for a
// session id.
func (c *CursorCLI) Invoke(ctx context.Context, inv Invocation, emit func(models.StreamEvent)) (Outcome, error) {
	start := time.Now()

	var cmdline strings.Builder
	cmdline.WriteString(c.command)
	cmdline.WriteString(" --print --output-format json")
	if inv.Model != "" && inv.Model != "cursor" {
		fmt.Fprintf(&cmdline, " --model %s", shellQuote(inv.Model))
	}
	if inv.SessionID != "" {
		fmt.Fprintf(&cmdline, " --resume %s", shellQuote(inv.SessionID))
	}

	runCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", cmdline.String())
	cmd.Cancel = func() error { return cmd.Process.Signal(syscall.SIGTERM) }
	cmd.WaitDelay = c.drainGrace
	cmd.Dir = inv.Workdir
	cmd.Stdin = strings.NewReader(inv.Prompt)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	waitErr := cmd.Run()

	elapsed := time.Since(start).Seconds()
	parsed := parseCLIOutput(stdout.Bytes())
	session := parsed.session
	if session == "" {
		session = inv.SessionID
	}
	expired := runCtx.Err() == context.DeadlineExceeded
	cancelled := !expired && ctx.Err() == context.Canceled

	switch {
	case expired:
		return Outcome{
			ErrorType:   models.ErrorTypeTimeout,
			Message:     fmt.Sprintf("agent timed out after %s", c.timeout),
			Result:      parsed.text,
			SessionID:   session,
			DurationSec: elapsed,
		}, nil

	case cancelled:
		return Outcome{
			ErrorType:   models.ErrorTypeUnknown,
			Message:     "invocation cancelled",
			Result:      parsed.text,
			SessionID:   session,
			DurationSec: elapsed,
		}, nil

	case waitErr != nil:
		message := strings.TrimSpace(stderr.String())
		if message == "" {
			message = waitErr.Error()
		}
		return Outcome{
			ErrorType:   ClassifyOutput(message),
			Message:     message,
			Result:      parsed.text,
			SessionID:   session,
			DurationSec: elapsed,
		}, nil
	}

	if parsed.durationSec == 0 {
		parsed.durationSec = elapsed
	}
	emit(models.StreamEvent{
		Type:        models.StreamEventResult,
		Result:      parsed.text,
		CostUSD:     parsed.costUSD,
		NumTurns:    parsed.numTurns,
		SessionID:   session,
		DurationSec: parsed.durationSec,
		IsError:     parsed.isError,
	})

	out := Outcome{
		Success:     !parsed.isError,
		Result:      parsed.text,
		SessionID:   session,
		CostUSD:     parsed.costUSD,
		NumTurns:    parsed.numTurns,
		DurationSec: parsed.durationSec,
	}
	if parsed.isError {
		out.ErrorType = ClassifyOutput(parsed.text)
		out.Message = parsed.text
	}
	return out, nil
}

// parseCLIOutput extracts the result document from the CLI's stdout. The
// output is usually one JSON document per line; a pretty-printed single
// document is accepted as a fallback.
func parseCLIOutput(data []byte) cliParsed {
	var parsed cliParsed

	apply := func(f cliFrame) {
		if f.SessionID != "" {
			parsed.session = f.SessionID
		}
		if f.ChatID != "" {
			parsed.session = f.ChatID
		}
		if f.Type == "result" || f.Result != "" {
			parsed.found = true
			parsed.isError = f.IsError
			parsed.text = f.Result
			if parsed.text == "" {
				parsed.text = f.Text
			}
			parsed.costUSD = f.CostUSD
			parsed.numTurns = f.NumTurns
			parsed.durationSec = f.DurationMS / 1000
		}
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] != '{' {
			continue
		}
		var f cliFrame
		if err := json.Unmarshal(line, &f); err != nil {
			continue
		}
		apply(f)
	}

	if !parsed.found {
		var f cliFrame
		if err := json.Unmarshal(bytes.TrimSpace(data), &f); err == nil {
			apply(f)
		}
	}
	return parsed
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
