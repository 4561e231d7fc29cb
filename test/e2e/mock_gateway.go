package e2e

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// GatewayCall is one recorded POST /run request body.
type GatewayCall struct {
	Name    string `json:"name"`
	Prompt  string `json:"prompt"`
	Model   string `json:"model"`
	Workdir string `json:"workdir"`
	Session string `json:"session"`
}

// GatewayReply scripts one /run response. The zero value streams a single
// successful result frame.
type GatewayReply struct {
	// Status other than 0 or 200 sends an error reply with Body and no frames.
	Status int
	Body   string

	// Frames are raw JSON frames streamed as `data:` lines.
	Frames []string

	// Before runs after the request is recorded and before anything is
	// written. Tests use it to mutate the board the way an agent would.
	Before func(call GatewayCall)

	// HoldOpen keeps the connection open after the frames until the client
	// goes away. Used to provoke client-side timeouts.
	HoldOpen bool
}

// ScriptedGateway is an HTTP stand-in for the local agent gateway. Each
// /run request consumes the next scripted reply; the last reply repeats
// when requests outnumber the script.
type ScriptedGateway struct {
	mu      sync.Mutex
	replies []GatewayReply
	calls   []GatewayCall
	server  *httptest.Server
}

// NewScriptedGateway starts the mock gateway. It is shut down with the test.
func NewScriptedGateway(t *testing.T) *ScriptedGateway {
	t.Helper()
	g := &ScriptedGateway{}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /run", g.handleRun)
	g.server = httptest.NewServer(mux)
	t.Cleanup(g.server.Close)
	return g
}

// URL is the gateway base address for config.Gateway.URL.
func (g *ScriptedGateway) URL() string {
	return g.server.URL
}

// Script sets the reply sequence. Replaces any previous script.
func (g *ScriptedGateway) Script(replies ...GatewayReply) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.replies = replies
}

// Calls returns a snapshot of the recorded requests.
func (g *ScriptedGateway) Calls() []GatewayCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]GatewayCall, len(g.calls))
	copy(out, g.calls)
	return out
}

// CallCount returns how many /run requests arrived so far.
func (g *ScriptedGateway) CallCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

func (g *ScriptedGateway) handleRun(w http.ResponseWriter, r *http.Request) {
	var call GatewayCall
	if err := json.NewDecoder(r.Body).Decode(&call); err != nil {
		http.Error(w, "bad run request: "+err.Error(), http.StatusBadRequest)
		return
	}

	g.mu.Lock()
	i := len(g.calls)
	g.calls = append(g.calls, call)
	var reply GatewayReply
	switch {
	case i < len(g.replies):
		reply = g.replies[i]
	case len(g.replies) > 0:
		reply = g.replies[len(g.replies)-1]
	default:
		reply = GatewayReply{Frames: []string{ResultFrame("ok", "", false)}}
	}
	g.mu.Unlock()

	if reply.Before != nil {
		reply.Before(call)
	}

	if reply.Status != 0 && reply.Status != http.StatusOK {
		http.Error(w, reply.Body, reply.Status)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	fl := w.(http.Flusher)
	for _, frame := range reply.Frames {
		fmt.Fprintf(w, "data: %s\n\n", frame)
		fl.Flush()
	}
	if reply.HoldOpen {
		<-r.Context().Done()
	}
}

// SystemFrame is the init frame carrying the run's session id.
func SystemFrame(sessionID string) string {
	return fmt.Sprintf(`{"type":"system","subtype":"init","session_id":%q}`, sessionID)
}

// AssistantFrame is one complete assistant text message.
func AssistantFrame(messageID, text string) string {
	return fmt.Sprintf(`{"type":"assistant","message":{"id":%q,"content":[{"type":"text","text":%s}]}}`,
		messageID, mustJSON(text))
}

// ResultFrame is the terminal frame of a run.
func ResultFrame(result, sessionID string, isError bool) string {
	return fmt.Sprintf(`{"type":"result","result":%s,"session_id":%q,"is_error":%t,"num_turns":2,"cost_usd":0.0125,"duration_ms":340}`,
		mustJSON(result), sessionID, isError)
}

func mustJSON(s string) string {
	data, err := json.Marshal(s)
	if err != nil {
		panic(err)
	}
	return string(data)
}
