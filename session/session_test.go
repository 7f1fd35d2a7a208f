package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/m4xw311/nima/transcript"
)

func TestSaveAndLoad(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "sessions")

	sess, err := New(dir, "physics")
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	sess.AddMessage(Message{Role: RoleUser, Content: "mass of the muon?"})
	sess.AddMessage(Message{Role: RoleAssistant, Content: "105.66 MeV"})
	sess.AddRun(Run{
		ID:        "r1",
		Task:      "mass of the muon?",
		Answer:    "105.66 MeV",
		Sections:  []transcript.Section{{Kind: transcript.KindFinalAnswer, Lines: []string{"105.66 MeV"}}},
		StartedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	})
	if err := sess.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "physics.json")); err != nil {
		t.Fatalf("session file not written: %v", err)
	}

	loaded, err := Load(dir, "physics")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(loaded.Messages) != 2 || loaded.Messages[1].Role != RoleAssistant {
		t.Fatalf("messages not restored: %+v", loaded.Messages)
	}
	if len(loaded.Runs) != 1 || loaded.Runs[0].Sections[0].Kind != transcript.KindFinalAnswer {
		t.Fatalf("runs not restored: %+v", loaded.Runs)
	}
}

func TestLoadMissing(t *testing.T) {
	if _, err := Load(t.TempDir(), "nope"); err == nil {
		t.Fatal("expected an error for a missing session")
	}
}

func TestInMemorySaveIsNoop(t *testing.T) {
	sess := NewInMemory("web")
	sess.AddMessage(Message{Role: RoleUser, Content: "hi"})
	if err := sess.Save(); err != nil {
		t.Fatalf("Save on in-memory session: %v", err)
	}
	sess.Reset()
	if len(sess.Messages) != 0 || sess.Runs != nil {
		t.Fatalf("Reset left state behind: %+v", sess)
	}
}

func TestRoleLabel(t *testing.T) {
	for role, want := range map[Role]string{RoleSystem: "System", RoleUser: "User", RoleAssistant: "Assistant"} {
		got, ok := role.Label()
		if !ok || got != want {
			t.Errorf("Label(%q) = %q, %v", role, got, ok)
		}
	}
	if _, ok := Role("tool").Label(); ok {
		t.Error("unknown roles must not have a label")
	}
}
