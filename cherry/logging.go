package cherry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"gorm.io/gorm/logger"
)

const (
	loggerNameKey  = "logger"
	crashLogName   = "crash.log"
	logFileMode    = 0o644
	logFileDirMode = 0o755
)

func discordgoLoggerFunc(ctx context.Context, handler slog.Handler) func(
	msgL int,
	caller int,
	format string,
	args ...any,
) {
	log := slog.New(handler)
	return func(
		msgL int,
		_ int,
		format string,
		args ...any,
	) {
		level, ok := discordGoLogLevels[msgL]
		if !ok {
			level = slog.LevelInfo
		}
		log.LogAttrs(
			ctx,
			level,
			strings.ReplaceAll(fmt.Sprintf(format, args...), "\n", ""),
		)
	}
}

// OpenLogWriter returns stdout, or stdout teed into path when a log file
// is configured. The returned close func is always non-nil.
func OpenLogWriter(path string) (io.Writer, func() error, error) {
	if path == "" {
		return os.Stdout, func() error { return nil }, nil
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, logFileDirMode); err != nil {
			return os.Stdout, func() error { return nil }, err
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, logFileMode)
	if err != nil {
		return os.Stdout, func() error { return nil }, err
	}
	return io.MultiWriter(os.Stdout, f), f.Close, nil
}

// WriteCrashReport appends the panic value and stack trace to crash.log
// under dir, returning the path written.
func WriteCrashReport(dir string, recovered any) (string, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, logFileDirMode); err != nil {
		return "", err
	}
	path := filepath.Join(dir, crashLogName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, logFileMode)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = f.Close()
	}()
	_, err = fmt.Fprintf(
		f,
		"[%s] panic: %v\n%s\n",
		time.Now().UTC().Format(time.RFC3339),
		recovered,
		debug.Stack(),
	)
	return path, err
}

type gormStructuredLogger struct {
	logger        *slog.Logger
	handler       slog.Handler
	SlowThreshold time.Duration
}

func newGORMLogger(
	handler slog.Handler,
	slowThreshold time.Duration,
) *gormStructuredLogger {
	return &gormStructuredLogger{
		logger:        slog.New(handler).With(loggerNameKey, "gorm"),
		handler:       handler,
		SlowThreshold: slowThreshold,
	}
}

func (g gormStructuredLogger) LogMode(_ logger.LogLevel) logger.Interface {
	return g
}

func (g gormStructuredLogger) Info(ctx context.Context, s string, i ...any) {
	g.logger.InfoContext(ctx, fmt.Sprintf(s, i...))
}

func (g gormStructuredLogger) Warn(ctx context.Context, s string, i ...any) {
	g.logger.WarnContext(ctx, fmt.Sprintf(s, i...))
}

func (g gormStructuredLogger) Error(ctx context.Context, s string, i ...any) {
	g.logger.ErrorContext(ctx, fmt.Sprintf(s, i...))
}

func (g gormStructuredLogger) Trace(
	ctx context.Context,
	begin time.Time,
	fc func() (sql string, rowsAffected int64),
	err error,
) {
	elapsed := time.Since(begin)
	s, rowsAffected := fc()
	var rows any = rowsAffected
	if rowsAffected == -1 {
		rows = "-"
	}

	if g.SlowThreshold != 0 && elapsed > g.SlowThreshold {
		g.logger.WarnContext(
			ctx,
			"slow sql",
			"elapsed", elapsed,
			"threshold", g.SlowThreshold,
			"rows", rows,
			"sql", s,
			tint.Err(err),
		)
		return
	}
	g.logger.DebugContext(
		ctx,
		"sql completed",
		"elapsed", elapsed,
		"rows", rows,
		"sql", s,
		tint.Err(err),
	)
}
