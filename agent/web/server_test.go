package web

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/m4xw311/nima/agent"
	"github.com/m4xw311/nima/config"
	"github.com/m4xw311/nima/llm"
	"github.com/m4xw311/nima/session"
	"github.com/m4xw311/nima/tools"
	"github.com/m4xw311/nima/transcript"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, client llm.LLMClient) *httptest.Server {
	t.Helper()
	cfg := config.Default()
	registry := tools.NewPhysicsRegistry(cfg, tools.Deps{})
	factory := func(sess *session.Session) (*agent.Agent, error) {
		model := llm.NewModel(client, llm.GenerationConfig{}, llm.RetryPolicy{MaxRetries: 1})
		return agent.New(cfg, sess, model, "MockModel - test", registry, nil)
	}
	srv := httptest.NewServer(New(factory, "MockModel - test").Handler())
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	return conn
}

// readUntil collects messages up to and including the first one of a final type.
func readUntil(t *testing.T, conn *websocket.Conn, final ...string) []ServerMessage {
	t.Helper()
	var msgs []ServerMessage
	for {
		var m ServerMessage
		require.NoError(t, conn.ReadJSON(&m))
		msgs = append(msgs, m)
		for _, f := range final {
			if m.Type == f {
				return msgs
			}
		}
	}
}

func TestPromptStreamsSectionsThenResult(t *testing.T) {
	srv := newTestServer(t, &llm.MockLLMClient{})
	conn := dial(t, srv)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "prompt", Text: "what is a muon?"}))
	msgs := readUntil(t, conn, "result", "error")

	assert.Equal(t, "status", msgs[0].Type)
	assert.Equal(t, "Dr. NIMA is thinking...", msgs[0].Text)

	last := msgs[len(msgs)-1]
	require.Equal(t, "result", last.Type)
	assert.Equal(t, "You said: what is a muon?", last.Answer)
	require.NotEmpty(t, last.Sections)
	assert.Equal(t, transcript.KindFinalAnswer, last.Sections[len(last.Sections)-1].Kind)

	var streamed int
	for _, m := range msgs[1 : len(msgs)-1] {
		assert.Equal(t, "status", m.Type)
		if m.Section != nil {
			streamed++
		}
	}
	assert.Equal(t, len(last.Sections), streamed)
}

func TestConversationPersistsUntilClear(t *testing.T) {
	client := &recordingClient{}
	srv := newTestServer(t, client)
	conn := dial(t, srv)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "prompt", Text: "first question"}))
	readUntil(t, conn, "result")
	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "prompt", Text: "second question"}))
	readUntil(t, conn, "result")
	assert.Contains(t, client.last(), "first question")

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "clear"}))
	msgs := readUntil(t, conn, "status")
	assert.Equal(t, "Conversation cleared.", msgs[0].Text)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "prompt", Text: "third question"}))
	readUntil(t, conn, "result")
	assert.NotContains(t, client.last(), "first question")
}

func TestConnectionsDoNotShareSessions(t *testing.T) {
	client := &recordingClient{}
	srv := newTestServer(t, client)

	a := dial(t, srv)
	require.NoError(t, a.WriteJSON(ClientMessage{Type: "prompt", Text: "alpha"}))
	readUntil(t, a, "result")

	b := dial(t, srv)
	require.NoError(t, b.WriteJSON(ClientMessage{Type: "prompt", Text: "beta"}))
	readUntil(t, b, "result")
	assert.NotContains(t, client.last(), "alpha")
}

func TestBadMessages(t *testing.T) {
	srv := newTestServer(t, &llm.MockLLMClient{})
	conn := dial(t, srv)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("hello")))
	msgs := readUntil(t, conn, "error")
	assert.Contains(t, msgs[0].Text, "JSON")

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "dance"}))
	msgs = readUntil(t, conn, "error")
	assert.Equal(t, "unknown message type 'dance'", msgs[0].Text)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "prompt"}))
	msgs = readUntil(t, conn, "error")
	assert.Equal(t, "empty prompt", msgs[0].Text)
}

type safetyClient struct{}

func (safetyClient) Generate(ctx context.Context, prompt string, cfg llm.GenerationConfig) (*llm.Response, error) {
	return &llm.Response{PromptFeedback: &llm.PromptFeedback{BlockReason: "SAFETY"}}, nil
}

func TestRunErrorCarriesHint(t *testing.T) {
	srv := newTestServer(t, safetyClient{})
	conn := dial(t, srv)
	require.NoError(t, conn.WriteJSON(ClientMessage{Type: "prompt", Text: "something"}))
	msgs := readUntil(t, conn, "error", "result")
	last := msgs[len(msgs)-1]
	require.Equal(t, "error", last.Type)
	assert.Contains(t, last.Text, "SAFETY")
	assert.Contains(t, last.Hint, "rephrasing")
}

func TestIndexAndHealth(t *testing.T) {
	srv := newTestServer(t, &llm.MockLLMClient{})

	resp, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "<title>Dr. NIMA</title>")

	resp, err = http.Get(srv.URL + "/missing")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	var health map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	resp.Body.Close()
	assert.Equal(t, map[string]string{"status": "ok", "model": "MockModel - test"}, health)
}

// recordingClient answers like the mock client and keeps the last prompt.
type recordingClient struct {
	mu     sync.Mutex
	prompt string
	mock   llm.MockLLMClient
}

func (c *recordingClient) Generate(ctx context.Context, prompt string, cfg llm.GenerationConfig) (*llm.Response, error) {
	c.mu.Lock()
	c.prompt = prompt
	c.mu.Unlock()
	return c.mock.Generate(ctx, prompt, cfg)
}

func (c *recordingClient) last() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prompt
}
