// Package logging configures slog and logs statements sent to PostgreSQL.
package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shipq/pgq/pgexec"
)

type contextKey string

const (
	QueryNameKey contextKey = "query_name"
)

// WithQueryName labels the statements run under ctx in the statement log.
func WithQueryName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, QueryNameKey, name)
}

// PrettyJSONHandler is a custom handler that pretty prints JSON in development
type PrettyJSONHandler struct {
	*slog.JSONHandler
	writer io.Writer
}

func (h *PrettyJSONHandler) Handle(ctx context.Context, r slog.Record) error {
	attrs := make(map[string]any)
	r.Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = a.Value.Any()
		return true
	})

	attrs["time"] = r.Time.Format(time.RFC3339)
	attrs["level"] = r.Level.String()
	attrs["msg"] = r.Message

	prettyJSON, err := json.MarshalIndent(attrs, "", "  ")
	if err != nil {
		return err
	}

	_, err = h.writer.Write(append(prettyJSON, '\n'))
	return err
}

// NewPrettyJSONHandler creates a pretty JSON handler writing to w.
func NewPrettyJSONHandler(w io.Writer, opts *slog.HandlerOptions) *PrettyJSONHandler {
	return &PrettyJSONHandler{
		JSONHandler: slog.NewJSONHandler(w, opts),
		writer:      w,
	}
}

var ProdLogger = slog.New(slog.NewJSONHandler(os.Stderr, nil))

var DevLogger = slog.New(NewPrettyJSONHandler(os.Stderr, nil))

// New builds a logger for format "json", "pretty" or "text" at the named
// level (debug, info, warn, error).
func New(w io.Writer, format, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if level != "" {
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			return nil, fmt.Errorf("log level %q: %w", level, err)
		}
	}
	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(format) {
	case "", "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "pretty":
		return slog.New(NewPrettyJSONHandler(w, opts)), nil
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	}
	return nil, fmt.Errorf("unknown log format %q", format)
}

// Decorate wraps a pool and logs every statement it runs, including those
// on connections acquired for transactions. Statements whose text is in
// ignoreList run without logging.
func Decorate(ignoreList []string, logger *slog.Logger, next pgexec.Pool) pgexec.Pool {
	return &loggedPool{loggedConn: loggedConn{ignore: ignoreList, logger: logger, next: next}, pool: next}
}

type loggedConn struct {
	ignore []string
	logger *slog.Logger
	next   pgexec.Conn
}

func (c *loggedConn) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	done := c.start(ctx, sql, args)
	n, err := c.next.Exec(ctx, sql, args...)
	done(err)
	return n, err
}

func (c *loggedConn) Query(ctx context.Context, sql string, args ...any) (pgexec.Rows, error) {
	done := c.start(ctx, sql, args)
	rows, err := c.next.Query(ctx, sql, args...)
	done(err)
	return rows, err
}

// start logs statement_started and returns the function logging its end.
func (c *loggedConn) start(ctx context.Context, sql string, args []any) func(error) {
	if slices.Contains(c.ignore, sql) {
		return func(error) {}
	}

	runID := uuid.NewString()
	startTime := time.Now()

	// nil when the caller did not name the query
	var name *string
	if n, ok := ctx.Value(QueryNameKey).(string); ok {
		name = &n
	}

	c.logger.Info("statement_started",
		"run_id", runID,
		"query_name", name,
		"sql", sql,
		"args", args,
	)

	return func(err error) {
		attrs := []any{
			"run_id", runID,
			"query_name", name,
			"duration_ms", float64(time.Since(startTime).Nanoseconds()) / 1e6,
		}
		if err != nil {
			c.logger.Error("statement_failed", append(attrs, "error", err.Error())...)
			return
		}
		c.logger.Info("statement_completed", attrs...)
	}
}

type loggedPool struct {
	loggedConn
	pool pgexec.Pool
}

func (p *loggedPool) Acquire(ctx context.Context) (pgexec.Pinned, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return &loggedPinned{
		loggedConn: loggedConn{ignore: p.ignore, logger: p.logger, next: conn},
		pinned:     conn,
	}, nil
}

type loggedPinned struct {
	loggedConn
	pinned pgexec.Pinned
}

func (p *loggedPinned) Release() {
	p.pinned.Release()
}
