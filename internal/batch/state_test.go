package batch

import (
	"os"
	"path/filepath"
	"testing"
)

func TestState_NewAndSave(t *testing.T) {
	dir := t.TempDir()
	statePath := filepath.Join(dir, "state.json")

	s, err := LoadState(statePath)
	if err != nil {
		t.Fatalf("LoadState failed: %v", err)
	}
	if s.StartedAt.IsZero() {
		t.Error("expected a start time on a new state")
	}
	s.MarkProcessed("chat1.txt")
	s.MarkProcessed("chat2.txt")
	s.Analyzed = 2
	s.Degraded = 1

	if err := s.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	reloaded, err := LoadState(statePath)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if !reloaded.IsProcessed("chat1.txt") || !reloaded.IsProcessed("chat2.txt") {
		t.Errorf("expected both files processed, got %v", reloaded.FilesProcessed)
	}
	if reloaded.Analyzed != 2 || reloaded.Degraded != 1 {
		t.Errorf("unexpected counters: analyzed %d, degraded %d", reloaded.Analyzed, reloaded.Degraded)
	}
	if reloaded.Path() != statePath {
		t.Errorf("expected path %s, got %s", statePath, reloaded.Path())
	}
}

func TestState_IsProcessed(t *testing.T) {
	s := &State{}

	if s.IsProcessed("chat1.txt") {
		t.Error("chat1 should not be processed yet")
	}

	s.MarkProcessed("chat1.txt")

	if !s.IsProcessed("chat1.txt") {
		t.Error("chat1 should be processed")
	}
	if s.IsProcessed("chat2.txt") {
		t.Error("chat2 should not be processed")
	}
}

func TestState_AddError(t *testing.T) {
	s := &State{}
	s.AddError("something went wrong")
	s.AddError("another error")

	if len(s.Errors) != 2 {
		t.Fatalf("expected 2 errors, got %d", len(s.Errors))
	}
	if s.Errors[0] != "something went wrong" {
		t.Errorf("error[0] = %q", s.Errors[0])
	}
}

func TestState_CorruptFile(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(statePath, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadState(statePath); err == nil {
		t.Error("expected error for corrupt state file")
	}
}

func TestState_SaveCreatesDirectories(t *testing.T) {
	dir := t.TempDir()
	statePath := filepath.Join(dir, "nested", "dir", "state.json")

	s := &State{path: statePath}
	if err := s.Save(); err != nil {
		t.Fatalf("Save with nested dir failed: %v", err)
	}
	if _, err := os.Stat(statePath); err != nil {
		t.Fatalf("state file not created in nested dir: %v", err)
	}
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("cannot determine home dir")
	}

	got := expandHome("~/test/path")
	want := filepath.Join(home, "test/path")
	if got != want {
		t.Errorf("expandHome(~/test/path) = %q, want %q", got, want)
	}

	// Non-tilde paths should pass through.
	got = expandHome("/absolute/path")
	if got != "/absolute/path" {
		t.Errorf("expandHome(/absolute/path) = %q", got)
	}
}
