// Package web serves Dr. NIMA as a browser chat. Each websocket connection
// gets its own agent and conversation.
package web

import (
	"context"
	_ "embed"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/m4xw311/nima/agent"
	"github.com/m4xw311/nima/errors"
	"github.com/m4xw311/nima/session"
	"github.com/m4xw311/nima/transcript"
)

//go:embed index.html
var indexHTML []byte

// ClientMessage is what the page sends: a prompt to answer or a request to
// clear the conversation.
type ClientMessage struct {
	Type string `json:"type"` // prompt or clear
	Text string `json:"text,omitempty"`
}

// ServerMessage is what the page receives.
type ServerMessage struct {
	Type     string               `json:"type"` // status, result or error
	Text     string               `json:"text,omitempty"`
	Section  *transcript.Section  `json:"section,omitempty"`
	Answer   string               `json:"answer,omitempty"`
	Sections []transcript.Section `json:"sections,omitempty"`
	Hint     string               `json:"hint,omitempty"`
}

// AgentFactory builds the agent for a new connection around its session.
type AgentFactory func(sess *session.Session) (*agent.Agent, error)

type Server struct {
	newAgent   AgentFactory
	modelLabel string
	upgrader   websocket.Upgrader
}

func New(newAgent AgentFactory, modelLabel string) *Server {
	return &Server{
		newAgent:   newAgent,
		modelLabel: modelLabel,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handler routes the chat page, the websocket and the health check.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", s.handleHealth)
	return mux
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.Handler()}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	log.Printf("Dr. NIMA web chat running on http://%s", displayAddr(addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.Wrapf(err, "web server on %s failed", addr)
	}
	return nil
}

func displayAddr(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return "localhost" + addr
	}
	return addr
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok", "model": s.modelLabel})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("Upgrade error:", err)
		return
	}
	defer conn.Close()

	id := uuid.NewString()
	a, err := s.newAgent(session.NewInMemory(id))
	if err != nil {
		log.Printf("Could not create agent for %s: %v", id, err)
		conn.WriteJSON(ServerMessage{Type: "error", Text: errors.Plain(err)})
		return
	}
	log.Printf("Chat %s connected", id)
	defer log.Printf("Chat %s closed", id)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("Chat %s read error: %v", id, err)
			}
			return
		}
		var msg ClientMessage
		if json.Unmarshal(data, &msg) != nil {
			err = conn.WriteJSON(ServerMessage{Type: "error", Text: "messages must be JSON objects with a type"})
		} else {
			err = s.handleMessage(r.Context(), conn, a, msg)
		}
		if err != nil {
			log.Printf("Chat %s write error: %v", id, err)
			return
		}
	}
}

func (s *Server) handleMessage(ctx context.Context, conn *websocket.Conn, a *agent.Agent, msg ClientMessage) error {
	switch msg.Type {
	case "clear":
		a.Session.Reset()
		return conn.WriteJSON(ServerMessage{Type: "status", Text: "Conversation cleared."})
	case "prompt":
	default:
		return conn.WriteJSON(ServerMessage{Type: "error", Text: "unknown message type '" + msg.Type + "'"})
	}
	if msg.Text == "" {
		return conn.WriteJSON(ServerMessage{Type: "error", Text: "empty prompt"})
	}

	if err := conn.WriteJSON(ServerMessage{Type: "status", Text: "Dr. NIMA is thinking..."}); err != nil {
		return err
	}
	var writeErr error
	callbacks := agent.ProcessCallbacks{
		OnSection: func(sec transcript.Section) {
			if writeErr == nil {
				writeErr = conn.WriteJSON(ServerMessage{Type: "status", Section: &sec})
			}
		},
		OnWarning: func(warning string) {
			log.Printf("Warning: %s", warning)
		},
	}
	res, err := a.Run(ctx, msg.Text, callbacks)
	if writeErr != nil {
		return writeErr
	}
	if err != nil {
		return conn.WriteJSON(ServerMessage{
			Type:     "error",
			Text:     errors.Plain(err),
			Hint:     errors.UserHint(err),
			Sections: res.Sections,
		})
	}
	return conn.WriteJSON(ServerMessage{Type: "result", Answer: res.Answer, Sections: res.Sections})
}
