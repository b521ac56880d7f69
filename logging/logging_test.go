package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/shipq/pgq/pgexec"
)

// stubPool answers every statement with no rows, after delay.
type stubPool struct {
	delay    time.Duration
	err      error
	released bool
}

func (p *stubPool) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	time.Sleep(p.delay)
	return 1, p.err
}

func (p *stubPool) Query(ctx context.Context, sql string, args ...any) (pgexec.Rows, error) {
	time.Sleep(p.delay)
	return nil, p.err
}

func (p *stubPool) Acquire(ctx context.Context) (pgexec.Pinned, error) {
	return stubPinned{p}, nil
}

type stubPinned struct {
	*stubPool
}

func (p stubPinned) Release() { p.released = true }

func entries(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("Failed to parse log output: %v", err)
		}
		out = append(out, entry)
	}
	return out
}

// TestDevLogger tests the development logger's pretty JSON output
func TestDevLogger(t *testing.T) {
	var buf bytes.Buffer
	devLogger := slog.New(NewPrettyJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	devLogger.Info("test message", "key", "value")
	output := buf.String()

	var result map[string]any
	if err := json.Unmarshal([]byte(output), &result); err != nil {
		t.Fatalf("Output is not valid JSON: %v\nOutput was: %s", err, output)
	}
	if !strings.Contains(output, "\n  ") {
		t.Errorf("Expected indented output, got %q", output)
	}
	if result["msg"] != "test message" {
		t.Errorf("Expected message 'test message', got '%v'", result["msg"])
	}
	if result["key"] != "value" {
		t.Errorf("Expected key 'value', got '%v'", result["key"])
	}
	if result["level"] != "INFO" {
		t.Errorf("Expected level 'INFO', got '%v'", result["level"])
	}
}

func TestNew(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, "json", "warn")
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("hidden")
	logger.Warn("shown")
	if strings.Contains(buf.String(), "hidden") {
		t.Error("Expected info to be filtered at warn level")
	}
	if !strings.Contains(buf.String(), "shown") {
		t.Error("Expected warn message in output")
	}

	if _, err := New(&buf, "xml", ""); err == nil {
		t.Error("Expected error for unknown format")
	}
	if _, err := New(&buf, "text", "loud"); err == nil {
		t.Error("Expected error for unknown level")
	}
}

func TestDecorate(t *testing.T) {
	tests := []struct {
		name       string
		sql        string
		ignoreList []string
		queryName  string
		shouldLog  bool
	}{
		{
			name:      "Named statement",
			sql:       `SELECT "users"."id" FROM "users"`,
			queryName: "list_users",
			shouldLog: true,
		},
		{
			name:       "Ignored statement",
			sql:        "BEGIN",
			ignoreList: []string{"BEGIN", "COMMIT"},
			shouldLog:  false,
		},
		{
			name:      "Unnamed statement",
			sql:       `DELETE FROM "users"`,
			shouldLog: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewJSONHandler(&buf, nil))
			pool := Decorate(tt.ignoreList, logger, &stubPool{})

			ctx := context.Background()
			if tt.queryName != "" {
				ctx = WithQueryName(ctx, tt.queryName)
			}
			if _, err := pool.Exec(ctx, tt.sql, 1); err != nil {
				t.Fatal(err)
			}

			output := buf.String()
			if !tt.shouldLog {
				if output != "" {
					t.Errorf("Expected no logging output, got %s", output)
				}
				return
			}

			logs := entries(t, &buf)
			if len(logs) != 2 {
				t.Fatalf("Expected 2 log entries, got %d", len(logs))
			}
			if logs[0]["msg"] != "statement_started" || logs[1]["msg"] != "statement_completed" {
				t.Errorf("Unexpected messages %v, %v", logs[0]["msg"], logs[1]["msg"])
			}
			if logs[0]["sql"] != tt.sql {
				t.Errorf("Expected sql %q, got %v", tt.sql, logs[0]["sql"])
			}
			if logs[0]["run_id"] != logs[1]["run_id"] {
				t.Error("Expected started and completed entries to share a run_id")
			}
			if tt.queryName != "" && logs[0]["query_name"] != tt.queryName {
				t.Errorf("Expected query_name %s, got %v", tt.queryName, logs[0]["query_name"])
			}
		})
	}
}

// TestRunIDUniqueness tests that each statement gets a unique ID
func TestRunIDUniqueness(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	pool := Decorate(nil, logger, &stubPool{})

	runIDs := make(map[string]bool)
	for i := 0; i < 100; i++ {
		buf.Reset()
		if _, err := pool.Query(context.Background(), "SELECT 1"); err != nil {
			t.Fatal(err)
		}
		runID, ok := entries(t, &buf)[0]["run_id"].(string)
		if !ok {
			t.Fatal("run_id not found in log output")
		}
		if runIDs[runID] {
			t.Errorf("Duplicate run ID found: %s", runID)
		}
		runIDs[runID] = true
	}
}

// TestDurationLogging tests that statement duration is properly logged
func TestDurationLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	pool := Decorate(nil, logger, &stubPool{delay: 100 * time.Millisecond})

	if _, err := pool.Exec(context.Background(), "SELECT pg_sleep(0.1)"); err != nil {
		t.Fatal(err)
	}

	logs := entries(t, &buf)
	duration, ok := logs[1]["duration_ms"].(float64)
	if !ok {
		t.Fatal("duration_ms not found in log output")
	}
	if duration < 100 {
		t.Errorf("Expected duration >= 100ms, got %v", duration)
	}
}

func TestFailedStatement(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	pool := Decorate(nil, logger, &stubPool{err: errors.New("relation does not exist")})

	if _, err := pool.Exec(context.Background(), `SELECT * FROM "nope"`); err == nil {
		t.Fatal("Expected error")
	}

	logs := entries(t, &buf)
	if logs[1]["msg"] != "statement_failed" || logs[1]["level"] != "ERROR" {
		t.Errorf("Expected statement_failed at ERROR, got %v at %v", logs[1]["msg"], logs[1]["level"])
	}
	if logs[1]["error"] != "relation does not exist" {
		t.Errorf("Unexpected error field %v", logs[1]["error"])
	}
}

// TestDecorateTransaction runs a transaction through the decorated pool so
// statements on the acquired connection are logged too.
func TestDecorateTransaction(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	stub := &stubPool{}
	db := pgexec.New(Decorate(nil, logger, stub))

	err := db.Transaction(context.Background(), func(ctx context.Context, tx *pgexec.DB) error {
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	var sqls []string
	for _, e := range entries(t, &buf) {
		if e["msg"] == "statement_started" {
			sqls = append(sqls, e["sql"].(string))
		}
	}
	if strings.Join(sqls, ";") != "BEGIN;COMMIT" {
		t.Errorf("Expected BEGIN;COMMIT, got %v", sqls)
	}
	if !stub.released {
		t.Error("Expected the connection to be released")
	}
}
