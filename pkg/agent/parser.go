package agent

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/tayfa-dev/tayfa/pkg/models"
)

// gatewayFrame is the superset of every JSON frame the gateway relays. Only
// the fields for the frame's type are populated.
type gatewayFrame struct {
	Type      string          `json:"type"`
	Event     json.RawMessage `json:"event,omitempty"`
	SessionID string          `json:"session_id,omitempty"`

	Message      *frameMessage `json:"message,omitempty"`
	ContentBlock *frameBlock   `json:"content_block,omitempty"`
	Delta        *frameDelta   `json:"delta,omitempty"`

	// tool_use / tool_result (top-level form)
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`

	// result
	Result     string  `json:"result,omitempty"`
	CostUSD    float64 `json:"cost_usd,omitempty"`
	NumTurns   int     `json:"num_turns,omitempty"`
	DurationMS float64 `json:"duration_ms,omitempty"`
}

type frameMessage struct {
	ID      string       `json:"id,omitempty"`
	Content []frameBlock `json:"content,omitempty"`
}

type frameBlock struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	Thinking string          `json:"thinking,omitempty"`
	ID       string          `json:"id,omitempty"`
	Name     string          `json:"name,omitempty"`
	Input    json.RawMessage `json:"input,omitempty"`
}

type frameDelta struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	Thinking    string `json:"thinking,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
}

// toolAccum collects a tool_use block across its input_json_delta frames.
type toolAccum struct {
	id    string
	name  string
	input strings.Builder
}

// StreamParser folds the gateway's frame taxonomy into bus events. State is
// small: the current text node, an optional pending tool-use accumulator and
// the last seen message id. Deltas accumulate into the current node; a new
// message id or a content_block_stop flushes it.
type StreamParser struct {
	agent string
	emit  func(models.StreamEvent)

	messageID string
	text      strings.Builder
	thinking  bool
	tool      *toolAccum

	sessionID   string
	finalSeen   bool
	finalErr    bool
	result      string
	costUSD     float64
	numTurns    int
	durationSec float64
}

// NewStreamParser creates a parser that forwards parsed events to emit.
func NewStreamParser(agent string, emit func(models.StreamEvent)) *StreamParser {
	return &StreamParser{agent: agent, emit: emit}
}

// HandleFrame consumes one JSON frame. Unparsable frames are logged and
// dropped; they never surface as stream content.
func (p *StreamParser) HandleFrame(data []byte) {
	var f gatewayFrame
	if err := json.Unmarshal(data, &f); err != nil {
		slog.Debug("Dropping unparsable stream frame", "agent", p.agent, "error", err)
		return
	}
	p.handle(&f)
}

func (p *StreamParser) handle(f *gatewayFrame) {
	// Any frame may carry the session id (the init frame usually does).
	if f.SessionID != "" {
		p.sessionID = f.SessionID
	}

	switch f.Type {
	case "stream_event":
		// Wrapper around a raw model event; unwrap and reclassify.
		if len(f.Event) > 0 {
			p.HandleFrame(f.Event)
		}

	case "assistant":
		p.handleAssistant(f.Message)

	case "content_block_start":
		p.handleBlockStart(f.ContentBlock)

	case "content_block_delta":
		p.handleDelta(f.Delta)

	case "content_block_stop":
		p.flush()

	case "tool_use":
		p.flush()
		p.emit(models.StreamEvent{
			Type:      models.StreamEventToolUse,
			ToolUseID: f.ID,
			ToolName:  f.Name,
			ToolInput: string(f.Input),
		})

	case "tool_result":
		p.emit(models.StreamEvent{
			Type:      models.StreamEventToolResult,
			ToolUseID: f.ToolUseID,
			Content:   contentText(f.Content),
			IsError:   f.IsError,
		})

	case "message":
		// Full accumulated content; supersedes any partial node.
		p.resetNode()
		if text := contentText(f.Content); text != "" {
			p.emit(models.StreamEvent{Type: models.StreamEventAssistant, Text: text})
		}

	case "result":
		p.flush()
		p.finalSeen = true
		p.finalErr = f.IsError
		p.result = f.Result
		p.costUSD = f.CostUSD
		p.numTurns = f.NumTurns
		p.durationSec = f.DurationMS / 1000
		p.emit(models.StreamEvent{
			Type:        models.StreamEventResult,
			Result:      f.Result,
			CostUSD:     f.CostUSD,
			NumTurns:    f.NumTurns,
			SessionID:   p.sessionID,
			DurationSec: p.durationSec,
			IsError:     f.IsError,
		})

	case "system", "user", "message_start", "message_delta", "message_stop":
		// Internal bookkeeping frames; session id was already harvested.

	default:
		slog.Debug("Dropping unknown stream frame", "agent", p.agent, "frame_type", f.Type)
	}
}

// handleAssistant processes a complete assistant message. Blocks arrive
// fully accumulated here, so each one is emitted directly.
func (p *StreamParser) handleAssistant(msg *frameMessage) {
	if msg == nil {
		return
	}
	if msg.ID != "" && msg.ID != p.messageID {
		p.flush()
		p.messageID = msg.ID
	}
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			if block.Text != "" {
				p.emit(models.StreamEvent{
					Type:      models.StreamEventAssistant,
					MessageID: msg.ID,
					Text:      block.Text,
				})
			}
		case "thinking":
			if block.Thinking != "" {
				p.emit(models.StreamEvent{
					Type:      models.StreamEventAssistant,
					MessageID: msg.ID,
					Text:      block.Thinking,
					Thinking:  true,
				})
			}
		case "tool_use":
			p.emit(models.StreamEvent{
				Type:      models.StreamEventToolUse,
				ToolUseID: block.ID,
				ToolName:  block.Name,
				ToolInput: string(block.Input),
			})
		}
	}
}

func (p *StreamParser) handleBlockStart(block *frameBlock) {
	if block == nil {
		return
	}
	p.flush()
	switch block.Type {
	case "tool_use":
		p.tool = &toolAccum{id: block.ID, name: block.Name}
		if len(block.Input) > 0 && string(block.Input) != "{}" {
			p.tool.input.Write(block.Input)
		}
	case "thinking":
		p.thinking = true
	case "text":
		p.thinking = false
	}
}

func (p *StreamParser) handleDelta(delta *frameDelta) {
	if delta == nil {
		return
	}
	switch delta.Type {
	case "text_delta":
		p.text.WriteString(delta.Text)
	case "thinking_delta":
		p.text.WriteString(delta.Thinking)
		p.thinking = true
	case "input_json_delta":
		if p.tool != nil {
			p.tool.input.WriteString(delta.PartialJSON)
		}
	}
}

// flush emits whatever node is accumulating and resets it.
func (p *StreamParser) flush() {
	if p.tool != nil {
		p.emit(models.StreamEvent{
			Type:      models.StreamEventToolUse,
			ToolUseID: p.tool.id,
			ToolName:  p.tool.name,
			ToolInput: p.tool.input.String(),
		})
		p.tool = nil
	}
	if p.text.Len() > 0 {
		p.emit(models.StreamEvent{
			Type:      models.StreamEventAssistant,
			MessageID: p.messageID,
			Text:      p.text.String(),
			Thinking:  p.thinking,
		})
	}
	p.resetNode()
}

func (p *StreamParser) resetNode() {
	p.text.Reset()
	p.thinking = false
}

// Flush finishes the stream, emitting any partial node. Called at EOF and
// after a truncated (timed out) stream.
func (p *StreamParser) Flush() {
	p.flush()
}

// SessionID returns the session id harvested from any frame, or "".
func (p *StreamParser) SessionID() string { return p.sessionID }

// Final reports whether a result frame arrived and its contents.
func (p *StreamParser) Final() (seen bool, isError bool) {
	return p.finalSeen, p.finalErr
}

// Outcome assembles the parser's terminal state into an attempt outcome.
// Valid only after the stream ended.
func (p *StreamParser) Outcome() Outcome {
	return Outcome{
		Success:     p.finalSeen && !p.finalErr,
		Result:      p.result,
		SessionID:   p.sessionID,
		CostUSD:     p.costUSD,
		NumTurns:    p.numTurns,
		DurationSec: p.durationSec,
	}
}

// contentText renders a tool_result/message content value, which the wire
// carries either as a plain string or as a list of text blocks.
func contentText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var blocks []frameBlock
	if err := json.Unmarshal(raw, &blocks); err == nil {
		var b strings.Builder
		for _, block := range blocks {
			if block.Type == "text" {
				b.WriteString(block.Text)
			}
		}
		return b.String()
	}
	return string(raw)
}
