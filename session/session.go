package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/m4xw311/nima/transcript"
)

// Role of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Label is the capitalised role name used when a conversation is flattened
// into a single prompt. Unknown roles have no label.
func (r Role) Label() (string, bool) {
	switch r {
	case RoleSystem:
		return "System", true
	case RoleUser:
		return "User", true
	case RoleAssistant:
		return "Assistant", true
	}
	return "", false
}

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Run records one task handed to the agent and how it ended.
type Run struct {
	ID         string               `json:"id"`
	Task       string               `json:"task"`
	Answer     string               `json:"answer,omitempty"`
	Error      string               `json:"error,omitempty"`
	Sections   []transcript.Section `json:"sections,omitempty"`
	StartedAt  time.Time            `json:"started_at"`
	FinishedAt time.Time            `json:"finished_at"`
}

type Session struct {
	Name     string    `json:"name"`
	Messages []Message `json:"messages"`
	Runs     []Run     `json:"runs"`
	path     string
}

// New creates a new session stored under dir.
func New(dir, name string) (*Session, error) {
	path, err := getSessionPath(dir, name)
	if err != nil {
		return nil, err
	}
	return &Session{
		Name:     name,
		Messages: []Message{},
		path:     path,
	}, nil
}

// NewInMemory creates a session that is never written to disk.
func NewInMemory(name string) *Session {
	return &Session{Name: name, Messages: []Message{}}
}

// Load loads an existing session from disk.
func Load(dir, name string) (*Session, error) {
	path, err := getSessionPath(dir, name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read session file %s: %w", path, err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("could not parse session file %s: %w", path, err)
	}
	s.path = path
	return &s, nil
}

// Save writes the current session state to disk. In-memory sessions are
// left alone.
func (s *Session) Save() error {
	if s.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize session: %w", err)
	}
	return os.WriteFile(s.path, data, 0644)
}

// AddMessage appends a message to the session history.
func (s *Session) AddMessage(msg Message) {
	s.Messages = append(s.Messages, msg)
}

// AddRun records a finished run.
func (s *Session) AddRun(r Run) {
	s.Runs = append(s.Runs, r)
}

// Reset drops the conversation history and recorded runs.
func (s *Session) Reset() {
	s.Messages = []Message{}
	s.Runs = nil
}

func getSessionPath(dir, name string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("could not create session directory: %w", err)
	}
	return filepath.Join(dir, fmt.Sprintf("%s.json", name)), nil
}
