package project

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shipq/pgq/internal/config"
)

func writeConfig(t *testing.T, dir string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, config.ConfigFilename), []byte("[db]\n"), 0644); err != nil {
		t.Fatalf("failed to create %s: %v", config.ConfigFilename, err)
	}
}

func TestFindRoot(t *testing.T) {
	t.Run("finds root in start directory", func(t *testing.T) {
		tmpDir := t.TempDir()
		writeConfig(t, tmpDir)

		dir, found, err := FindRoot(tmpDir)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !found || dir != tmpDir {
			t.Errorf("got (%q, %v), want (%q, true)", dir, found, tmpDir)
		}
	})

	t.Run("finds root in ancestor", func(t *testing.T) {
		tmpDir := t.TempDir()
		writeConfig(t, tmpDir)
		sub := filepath.Join(tmpDir, "db", "queries")
		if err := os.MkdirAll(sub, 0755); err != nil {
			t.Fatalf("failed to create subdirectory: %v", err)
		}

		dir, found, err := FindRoot(sub)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !found || dir != tmpDir {
			t.Errorf("got (%q, %v), want (%q, true)", dir, found, tmpDir)
		}
	})

	t.Run("ignores a directory named pgq.ini", func(t *testing.T) {
		tmpDir := t.TempDir()
		if err := os.Mkdir(filepath.Join(tmpDir, config.ConfigFilename), 0755); err != nil {
			t.Fatalf("failed to create directory: %v", err)
		}

		_, found, err := FindRoot(tmpDir)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if found {
			t.Error("expected no root")
		}
	})
}

func TestResolve(t *testing.T) {
	t.Run("override is used without a config file", func(t *testing.T) {
		tmpDir := t.TempDir()

		dir, err := Resolve(tmpDir)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if dir != tmpDir {
			t.Errorf("got %q, want %q", dir, tmpDir)
		}
	})

	t.Run("override must exist", func(t *testing.T) {
		if _, err := Resolve(filepath.Join(t.TempDir(), "missing")); err == nil {
			t.Error("expected error for missing directory")
		}
	})

	t.Run("override must be a directory", func(t *testing.T) {
		tmpDir := t.TempDir()
		writeConfig(t, tmpDir)

		if _, err := Resolve(filepath.Join(tmpDir, config.ConfigFilename)); err == nil {
			t.Error("expected error for file path")
		}
	})

	t.Run("walks up from the working directory", func(t *testing.T) {
		tmpDir := t.TempDir()
		writeConfig(t, tmpDir)
		sub := filepath.Join(tmpDir, "nested")
		if err := os.Mkdir(sub, 0755); err != nil {
			t.Fatalf("failed to create subdirectory: %v", err)
		}
		t.Chdir(sub)

		dir, err := Resolve("")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want, _ := filepath.EvalSymlinks(tmpDir)
		got, _ := filepath.EvalSymlinks(dir)
		if got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	})
}
