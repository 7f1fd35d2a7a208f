package acp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/m4xw311/nima/agent"
	"github.com/m4xw311/nima/errors"
	"github.com/m4xw311/nima/session"
	"github.com/m4xw311/nima/transcript"
)

// AgentFactory builds the agent for a new or loaded ACP session.
type AgentFactory func(sess *session.Session) (*agent.Agent, error)

// Run starts the Agent Client Protocol server over stdio using JSON-RPC.
// It implements:
// - initialize
// - session/new
// - session/load (replays the conversation)
// - session/prompt (emits session/update notifications while the agent works)
// Nothing but JSON-RPC messages is written to out; diagnostics go to trace.
// Messages are newline-delimited JSON objects.
func Run(ctx context.Context, newAgent AgentFactory, sessionsDir string, in *bufio.Reader, out *bufio.Writer, trace func(string)) error {
	if trace == nil {
		trace = func(string) {}
	}
	trace("Run: starting ACP server")
	server := &acpServer{
		ctx:          ctx,
		newAgent:     newAgent,
		sessionsDir:  sessionsDir,
		agents:       make(map[string]*agent.Agent),
		StdinReader:  in,
		StdoutWriter: out,
		writeLock:    &sync.Mutex{},
		trace:        trace,
	}

	for {
		payload, err := server.readFramedMessage()
		if err != nil {
			if err == io.EOF {
				trace("Run: EOF received, exiting")
				return nil
			}
			// If framing is broken, there isn't a safe way to continue.
			return errors.Wrapf(err, "ACP read error")
		}
		if len(strings.TrimSpace(string(payload))) == 0 {
			continue
		}

		var req jsonrpcRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			trace(fmt.Sprintf("Run: JSON parse error: %v", err))
			_ = server.writeResponseError(nil, -32700, "Parse error", nil)
			continue
		}

		trace(fmt.Sprintf("Run: dispatching method: %s with ID: %v", req.Method, req.ID))
		switch req.Method {
		case "initialize":
			server.handleInitialize(&req)
		case "session/new":
			server.handleSessionNew(&req)
		case "session/load":
			server.handleSessionLoad(&req)
		case "session/prompt":
			server.handleSessionPrompt(&req)
		default:
			_ = server.writeResponseError(req.ID, -32601, "Method not found", nil)
		}
	}
}

// ---- Minimal ACP handling types ----

type jsonrpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type jsonrpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonrpcError   `json:"error,omitempty"`
}

type jsonrpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// ---- acpServer ----

// acpServer holds one agent per ACP session.
type acpServer struct {
	ctx         context.Context
	newAgent    AgentFactory
	sessionsDir string

	agents     map[string]*agent.Agent
	agentsLock sync.Mutex

	StdinReader  *bufio.Reader
	StdoutWriter *bufio.Writer
	writeLock    *sync.Mutex
	trace        func(string)
}

// readFramedMessage reads a single newline-delimited JSON-RPC payload.
func (s *acpServer) readFramedMessage() ([]byte, error) {
	line, err := s.StdinReader.ReadBytes('\n')
	if err == io.EOF && len(line) > 0 {
		return line, nil
	}
	return line, err
}

// writeFramedJSON serializes obj and writes it followed by a newline.
func (s *acpServer) writeFramedJSON(obj any) error {
	data, err := json.Marshal(obj)
	if err != nil {
		return errors.Wrapf(err, "failed to serialize JSON-RPC message")
	}
	s.trace(fmt.Sprintf("writeFramedJSON: %s", string(data)))

	s.writeLock.Lock()
	defer s.writeLock.Unlock()
	if _, err := s.StdoutWriter.Write(append(data, '\n')); err != nil {
		return err
	}
	return s.StdoutWriter.Flush()
}

func (s *acpServer) writeResponseOK(id any, result any) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return s.writeResponseError(id, -32603, "Internal error", err.Error())
	}
	return s.writeFramedJSON(jsonrpcResponse{JSONRPC: "2.0", ID: id, Result: raw})
}

func (s *acpServer) writeResponseError(id any, code int, msg string, data any) error {
	s.trace(fmt.Sprintf("writeResponseError: code=%d, msg=%s, data=%+v", code, msg, data))
	return s.writeFramedJSON(jsonrpcResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &jsonrpcError{Code: code, Message: msg, Data: data},
	})
}

// writeNotification sends a JSON-RPC notification (request without an ID)
func (s *acpServer) writeNotification(method string, params any) error {
	return s.writeFramedJSON(map[string]any{
		"jsonrpc": "2.0",
		"method":  method,
		"params":  params,
	})
}

func (s *acpServer) sessionUpdate(sessionID string, update map[string]any) error {
	return s.writeNotification("session/update", map[string]any{
		"sessionId": sessionID,
		"update":    update,
	})
}

// ---- Handlers ----

// handleInitialize answers with protocol version 1 and text-only prompts.
func (s *acpServer) handleInitialize(req *jsonrpcRequest) {
	_ = s.writeResponseOK(req.ID, map[string]any{
		"protocolVersion": 1,
		"agentCapabilities": map[string]any{
			"loadSession": true,
			"promptCapabilities": map[string]bool{
				"audio":           false,
				"embeddedContext": false,
				"image":           false,
			},
		},
		"authMethods": []any{},
	})
}

func (s *acpServer) handleSessionNew(req *jsonrpcRequest) {
	sid := "sess_" + uuid.NewString()
	sess, err := session.New(s.sessionsDir, sid)
	if err != nil {
		_ = s.writeResponseError(req.ID, -32603, "Internal error", fmt.Sprintf("failed to create session: %v", errors.Plain(err)))
		return
	}
	if err := sess.Save(); err != nil {
		_ = s.writeResponseError(req.ID, -32603, "Internal error", fmt.Sprintf("failed to save session: %v", err))
		return
	}
	if err := s.register(sid, sess); err != nil {
		_ = s.writeResponseError(req.ID, -32603, "Internal error", errors.Plain(err))
		return
	}
	s.trace(fmt.Sprintf("handleSessionNew: created session ID: %s", sid))
	_ = s.writeResponseOK(req.ID, map[string]any{"sessionId": sid})
}

// handleSessionLoad loads a saved session and replays the conversation as
// user_message_chunk and agent_message_chunk updates before answering null.
func (s *acpServer) handleSessionLoad(req *jsonrpcRequest) {
	var p struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(req.Params, &p); err != nil {
		_ = s.writeResponseError(req.ID, -32602, "Invalid params", err.Error())
		return
	}

	sess, err := session.Load(s.sessionsDir, p.SessionID)
	if err != nil {
		_ = s.writeResponseError(req.ID, -32602, "Invalid params", fmt.Sprintf("session not found: %v", errors.Plain(err)))
		return
	}
	if err := s.register(p.SessionID, sess); err != nil {
		_ = s.writeResponseError(req.ID, -32603, "Internal error", errors.Plain(err))
		return
	}

	s.trace(fmt.Sprintf("handleSessionLoad: replaying %d messages", len(sess.Messages)))
	for _, msg := range sess.Messages {
		kind := "agent_message_chunk"
		if msg.Role == session.RoleUser {
			kind = "user_message_chunk"
		}
		_ = s.sessionUpdate(p.SessionID, map[string]any{
			"sessionUpdate": kind,
			"content":       map[string]any{"type": "text", "text": msg.Content},
		})
	}
	_ = s.writeResponseOK(req.ID, nil)
}

func (s *acpServer) register(sid string, sess *session.Session) error {
	a, err := s.newAgent(sess)
	if err != nil {
		return err
	}
	s.agentsLock.Lock()
	s.agents[sid] = a
	s.agentsLock.Unlock()
	return nil
}

// contentBlock is a prompt content block. Text and resource_link blocks are
// understood.
type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	// ResourceLink fields
	URI         string `json:"uri,omitempty"`
	Name        string `json:"name,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Size        *int64 `json:"size,omitempty"`
}

// handleSessionPrompt runs the agent on the prompt. Thoughts are streamed
// as agent_thought_chunk, each code block as a tool_call whose observation
// follows as its tool_result, and the final answer as agent_message_chunk.
// It answers with stopReason end_turn.
func (s *acpServer) handleSessionPrompt(req *jsonrpcRequest) {
	var p struct {
		SessionID string         `json:"sessionId"`
		Prompt    []contentBlock `json:"prompt"`
	}
	if err := json.Unmarshal(req.Params, &p); err != nil {
		_ = s.writeResponseError(req.ID, -32602, "Invalid params", err.Error())
		return
	}

	s.agentsLock.Lock()
	a, ok := s.agents[p.SessionID]
	s.agentsLock.Unlock()
	if !ok {
		_ = s.writeResponseError(req.ID, -32602, "Invalid params", "unknown sessionId")
		return
	}

	userText := extractUserText(p.Prompt)
	if userText == "" {
		_ = s.writeResponseError(req.ID, -32602, "Invalid params", "prompt has no text")
		return
	}

	calls := 0
	callbacks := agent.ProcessCallbacks{
		OnSection: func(sec transcript.Section) {
			switch sec.Kind {
			case transcript.KindThought:
				_ = s.sessionUpdate(p.SessionID, map[string]any{
					"sessionUpdate": "agent_thought_chunk",
					"content":       map[string]any{"type": "text", "text": sec.Text()},
				})
			case transcript.KindCode:
				calls++
				_ = s.sessionUpdate(p.SessionID, map[string]any{
					"sessionUpdate": "tool_call",
					"toolCall":      map[string]any{"id": callID(calls), "name": "code", "args": sec.Text()},
				})
			case transcript.KindObservation:
				_ = s.sessionUpdate(p.SessionID, map[string]any{
					"sessionUpdate": "tool_result",
					"toolResult":    map[string]any{"toolCallId": callID(calls), "result": sec.Text()},
				})
			case transcript.KindFinalAnswer:
				_ = s.sessionUpdate(p.SessionID, map[string]any{
					"sessionUpdate": "agent_message_chunk",
					"content":       map[string]any{"type": "text", "text": sec.Text()},
				})
			}
		},
		OnWarning: func(warning string) {
			s.trace(fmt.Sprintf("handleSessionPrompt: warning - %s", warning))
		},
	}

	if _, err := a.Run(s.ctx, userText, callbacks); err != nil {
		data := map[string]string{"error": errors.Plain(err)}
		if hint := errors.UserHint(err); hint != "" {
			data["hint"] = hint
		}
		_ = s.writeResponseError(req.ID, -32603, "Internal error", data)
		return
	}
	_ = s.writeResponseOK(req.ID, map[string]any{"stopReason": "end_turn"})
}

func callID(n int) string {
	return fmt.Sprintf("call_%d", n)
}

// readFileFromURI reads the file behind a file:// URI.
func readFileFromURI(uri string) (string, error) {
	parsedURL, err := url.Parse(uri)
	if err != nil {
		return "", errors.Wrapf(err, "invalid URI")
	}
	if parsedURL.Scheme != "file" {
		return "", errors.New("unsupported URI scheme: %s", parsedURL.Scheme)
	}
	content, err := os.ReadFile(parsedURL.Path)
	if err != nil {
		return "", errors.Wrapf(err, "failed to read file")
	}
	return string(content), nil
}

// extractUserText joins the text blocks and inlines linked files.
func extractUserText(blocks []contentBlock) string {
	var parts []string
	for _, b := range blocks {
		switch b.Type {
		case "text":
			if strings.TrimSpace(b.Text) != "" {
				parts = append(parts, b.Text)
			}
		case "resource_link":
			var info strings.Builder
			fmt.Fprintf(&info, "=== Resource: %s ===\n", b.Name)
			if b.Title != "" {
				fmt.Fprintf(&info, "Title: %s\n", b.Title)
			}
			if b.Description != "" {
				fmt.Fprintf(&info, "Description: %s\n", b.Description)
			}
			fmt.Fprintf(&info, "URI: %s\n", b.URI)
			if b.MimeType != "" {
				fmt.Fprintf(&info, "Type: %s\n", b.MimeType)
			}
			if b.Size != nil {
				fmt.Fprintf(&info, "Size: %d bytes\n", *b.Size)
			}

			if strings.HasPrefix(b.URI, "file://") {
				content, err := readFileFromURI(b.URI)
				if err != nil {
					fmt.Fprintf(&info, "\n[Error reading file: %s]\n", errors.Plain(err))
				} else {
					const maxContentSize = 50000
					if len(content) > maxContentSize {
						content = content[:maxContentSize] + "\n\n[... truncated to 50KB ...]"
					}
					fmt.Fprintf(&info, "\n--- File Contents ---\n%s\n--- End of File ---\n", content)
				}
			} else {
				info.WriteString("\n[External resource - content not available]\n")
			}
			info.WriteString("=== End Resource ===\n")
			parts = append(parts, info.String())
		}
	}
	return strings.Join(parts, "\n")
}
