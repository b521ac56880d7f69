package inifile

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	t.Run("empty file", func(t *testing.T) {
		f, err := Parse(strings.NewReader(""))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(f.Sections) != 0 {
			t.Errorf("expected empty sections, got %d", len(f.Sections))
		}
	})

	t.Run("multiple sections", func(t *testing.T) {
		ini := "[db]\nurl = x\n[compile]\nbind_limit = 100\n"
		f, err := Parse(strings.NewReader(ini))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := f.Get("db", "url"); got != "x" {
			t.Errorf("db.url: got %q, want %q", got, "x")
		}
		if got := f.Get("compile", "bind_limit"); got != "100" {
			t.Errorf("compile.bind_limit: got %q, want %q", got, "100")
		}
	})

	t.Run("ignores comments and empty lines", func(t *testing.T) {
		ini := "# comment\n; another\n[section]\n\n\nkey = value\n\n"
		f, err := Parse(strings.NewReader(ini))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := f.Get("section", "key"); got != "value" {
			t.Errorf("got %q, want %q", got, "value")
		}
	})

	t.Run("trims whitespace and quotes", func(t *testing.T) {
		ini := "[section]\n  key  =   value with spaces   \nquoted = \" padded \"\n"
		f, err := Parse(strings.NewReader(ini))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := f.Get("section", "key"); got != "value with spaces" {
			t.Errorf("got %q, want %q", got, "value with spaces")
		}
		if got := f.Get("section", "quoted"); got != " padded " {
			t.Errorf("got %q, want %q", got, " padded ")
		}
	})

	t.Run("handles values with equals signs", func(t *testing.T) {
		ini := "[section]\nurl = postgres://host?foo=bar&baz=qux\n"
		f, err := Parse(strings.NewReader(ini))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := f.Get("section", "url"); got != "postgres://host?foo=bar&baz=qux" {
			t.Errorf("got %q, want %q", got, "postgres://host?foo=bar&baz=qux")
		}
	})

	t.Run("last assignment wins", func(t *testing.T) {
		ini := "[db]\nurl = a\n[log]\nlevel = info\n[DB]\nURL = b\n"
		f, err := Parse(strings.NewReader(ini))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(f.Sections) != 2 {
			t.Errorf("expected repeated header to reuse the section, got %d sections", len(f.Sections))
		}
		if got := f.Get("db", "url"); got != "b" {
			t.Errorf("got %q, want %q", got, "b")
		}
	})

	t.Run("missing key and section", func(t *testing.T) {
		f, err := Parse(strings.NewReader("[section]\nkey = value\n"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := f.Get("section", "missing"); got != "" {
			t.Errorf("got %q, want empty string", got)
		}
		if got := f.Get("other", "key"); got != "" {
			t.Errorf("got %q, want empty string", got)
		}
		if s := f.Section("other"); s != nil {
			t.Errorf("expected nil, got %v", s)
		}
	})
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		ini  string
		want string
	}{
		{"key before section", "url = x\n", "line 1: key \"url\" outside of a section"},
		{"line without equals", "[db]\njust words\n", "line 2: expected key = value"},
		{"empty section name", "[db]\nurl = x\n[ ]\n", "line 3: empty section name"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.ini))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q should contain %q", err, tt.want)
			}
		})
	}
}

func TestCaseSensitivity(t *testing.T) {
	f, err := Parse(strings.NewReader("[DB]\nURL = Postgres://X\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := f.Get("db", "url"); got != "Postgres://X" {
		t.Errorf("got %q, want value case preserved", got)
	}
	if got := f.Get("Db", "Url"); got != "Postgres://X" {
		t.Errorf("lookup should be case-insensitive, got %q", got)
	}
}

func TestMap(t *testing.T) {
	f, err := Parse(strings.NewReader("[db]\nurl = x\n[log]\nformat = pretty\nlevel = debug\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := map[string]any{
		"db":  map[string]any{"url": "x"},
		"log": map[string]any{"format": "pretty", "level": "debug"},
	}
	if got := f.Map(); !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestFromMapAndWrite(t *testing.T) {
	f, err := FromMap(map[string]any{
		"log":     map[string]any{"level": "info", "format": "json"},
		"compile": map[string]any{"bind_limit": 65535},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "[compile]\nbind_limit = 65535\n\n[log]\nformat = json\nlevel = info\n"
	if buf.String() != want {
		t.Errorf("got:\n%s\nwant:\n%s", buf.String(), want)
	}

	if _, err := FromMap(map[string]any{"db": "flat"}); err == nil {
		t.Error("expected error for a non-map section")
	}
}

func TestRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pgq.ini")
	f, err := FromMap(map[string]any{
		"db": map[string]any{"url": "postgres://u@localhost/app?sslmode=disable"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.WriteFile(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(string(raw), "[db]\n") {
		t.Errorf("unexpected file contents %q", raw)
	}

	back, err := ParseFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(back.Map(), f.Map()) {
		t.Errorf("round trip changed the file: %v vs %v", back.Map(), f.Map())
	}
}
