package sessions

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRegistryRoundTrip(t *testing.T) {
	reg := NewRegistry(filepath.Join(t.TempDir(), "sessions.json"))

	if _, ok := reg.Load("gif-T1-100"); ok {
		t.Fatal("expected absent token before first save")
	}

	if err := reg.Save("gif-T1-100", "sess-abc"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	token, ok := reg.Load("gif-T1-100")
	if !ok || token != "sess-abc" {
		t.Fatalf("Load() = %q, %v; want sess-abc, true", token, ok)
	}
}

func TestRegistrySaveOverwritesAndKeepsOthers(t *testing.T) {
	reg := NewRegistry(filepath.Join(t.TempDir(), "sessions.json"))

	if err := reg.Save("gif-T1-100", "first"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := reg.Save("gif-T1-200", "other"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := reg.Save("gif-T1-100", "second"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if token, _ := reg.Load("gif-T1-100"); token != "second" {
		t.Fatalf("expected newest token, got %q", token)
	}
	if token, _ := reg.Load("gif-T1-200"); token != "other" {
		t.Fatalf("expected unrelated entry to survive, got %q", token)
	}
}

func TestRegistryCorruptStoreIsAbsentNotFatal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("seed corrupt store: %v", err)
	}

	reg := NewRegistry(path)
	if _, ok := reg.Load("gif-T1-100"); ok {
		t.Fatal("corrupt store must read as absent")
	}

	// A save over a corrupt store starts fresh rather than failing.
	if err := reg.Save("gif-T1-100", "sess-abc"); err != nil {
		t.Fatalf("Save() over corrupt store error = %v", err)
	}
	if token, ok := reg.Load("gif-T1-100"); !ok || token != "sess-abc" {
		t.Fatalf("Load() after recovery = %q, %v", token, ok)
	}
}

func TestRegistryRejectsEmptyKeyOrToken(t *testing.T) {
	reg := NewRegistry(filepath.Join(t.TempDir(), "sessions.json"))
	if err := reg.Save("", "tok"); err == nil {
		t.Fatal("expected error for empty key")
	}
	if err := reg.Save("key", ""); err == nil {
		t.Fatal("expected error for empty token")
	}
}
