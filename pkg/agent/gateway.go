package agent

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tayfa-dev/tayfa/pkg/config"
	"github.com/tayfa-dev/tayfa/pkg/models"
)

// runRequest is the POST /run body the gateway accepts.
type runRequest struct {
	Name           string   `json:"name"`
	Prompt         string   `json:"prompt"`
	Model          string   `json:"model"`
	Workdir        string   `json:"workdir"`
	Session        string   `json:"session,omitempty"`
	Tools          []string `json:"tools,omitempty"`
	PermissionMode string   `json:"permission_mode,omitempty"`
}

// GatewayClient invokes agents through the local LLM gateway. The gateway
// owns the subprocess and its graceful timeout; the HTTP deadline here is
// the agent timeout plus a margin so the gateway's own timeout fires first.
type GatewayClient struct {
	baseURL    string
	timeout    time.Duration
	extra      time.Duration
	httpClient *http.Client
}

// NewGatewayClient creates a client for the configured gateway. The HTTP
// client carries no global timeout; each request gets a context deadline.
func NewGatewayClient(gw config.GatewayConfig, ag config.AgentConfig) *GatewayClient {
	return &GatewayClient{
		baseURL:    strings.TrimRight(gw.URL, "/"),
		timeout:    ag.Timeout,
		extra:      ag.GatewayExtraTimeout,
		httpClient: &http.Client{},
	}
}

// Invoke runs one attempt through the gateway, forwarding parsed stream
// events to emit as frames arrive.
func (c *GatewayClient) Invoke(ctx context.Context, inv Invocation, emit func(models.StreamEvent)) (Outcome, error) {
	start := time.Now()

	body, err := json.Marshal(runRequest{
		Name:           inv.Agent,
		Prompt:         inv.Prompt,
		Model:          inv.Model,
		Workdir:        inv.Workdir,
		Session:        inv.SessionID,
		Tools:          inv.Tools,
		PermissionMode: inv.PermissionMode,
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("marshal run request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout+c.extra)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/run", bytes.NewReader(body))
	if err != nil {
		return Outcome{}, fmt.Errorf("build run request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Outcome{
			ErrorType:   ClassifyErr(err),
			Message:     err.Error(),
			SessionID:   inv.SessionID,
			DurationSec: time.Since(start).Seconds(),
		}, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.statusOutcome(resp, inv, start), nil
	}

	// Track flushed assistant text so a truncated stream still yields a
	// partial result.
	var partial strings.Builder
	parser := NewStreamParser(inv.Agent, func(ev models.StreamEvent) {
		if ev.Type == models.StreamEventAssistant && !ev.Thinking {
			partial.WriteString(ev.Text)
		}
		emit(ev)
	})

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		switch {
		case len(line) == 0 || line[0] == ':':
			// Separator or keepalive comment.
		case bytes.HasPrefix(line, []byte("data:")):
			parser.HandleFrame(bytes.TrimSpace(line[len("data:"):]))
		case line[0] == '{':
			parser.HandleFrame(line)
		}
	}
	readErr := scanner.Err()
	parser.Flush()
	elapsed := time.Since(start).Seconds()

	// Session recovery order: harvested from the stream, else the one we
	// resumed with. Timeouts must not lose the session.
	session := parser.SessionID()
	if session == "" {
		session = inv.SessionID
	}

	if readErr != nil {
		return Outcome{
			ErrorType:   ClassifyErr(readErr),
			Message:     readErr.Error(),
			Result:      partial.String(),
			SessionID:   session,
			DurationSec: elapsed,
		}, nil
	}

	if seen, isErr := parser.Final(); seen {
		out := parser.Outcome()
		if out.DurationSec == 0 {
			out.DurationSec = elapsed
		}
		if out.SessionID == "" {
			out.SessionID = session
		}
		if isErr {
			out.Success = false
			out.ErrorType = ClassifyOutput(out.Result)
			out.Message = out.Result
		}
		return out, nil
	}

	// The connection closed before a result frame arrived.
	return Outcome{
		ErrorType:   models.ErrorTypeNetwork,
		Message:     "stream ended without a result frame",
		Result:      partial.String(),
		SessionID:   session,
		DurationSec: elapsed,
	}, nil
}

// statusOutcome classifies a non-200 gateway response.
func (c *GatewayClient) statusOutcome(resp *http.Response, inv Invocation, start time.Time) Outcome {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	text := strings.TrimSpace(string(body))

	errorType := ClassifyStatus(resp.StatusCode)
	if errorType == models.ErrorTypeUnknown && text != "" {
		if fromBody := ClassifyOutput(text); fromBody != models.ErrorTypeUnknown {
			errorType = fromBody
		}
	}
	return Outcome{
		ErrorType:   errorType,
		Message:     fmt.Sprintf("gateway returned %d: %s", resp.StatusCode, text),
		SessionID:   inv.SessionID,
		DurationSec: time.Since(start).Seconds(),
	}
}
