// Package logs implements the node's leveled, subsystem-tagged logging
// backend. Subsystems (ChainState, the MMR engine, the connection
// manager, ...) each obtain a *Logger from a shared Backend; the backend
// fans every entry out to all registered writers whose level permits it.
package logs

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jrick/logrotate/rotator"
	"github.com/pkg/errors"
)

const writeChanBuffer = 100

type logEntry struct {
	level Level
	line  []byte
}

type logWriter interface {
	io.WriteCloser
	LogLevel() Level
}

type logWriterWrap struct {
	io.WriteCloser
	logLevel Level
}

func (lw logWriterWrap) LogLevel() Level { return lw.logLevel }

// Backend multiplexes log entries from every subsystem Logger to a set of
// registered writers, each gated by its own minimum level.
type Backend struct {
	isRunning uint32
	writers   []logWriter
	writeChan chan logEntry
	syncClose sync.Mutex
}

// NewBackend creates a new, unstarted logger backend.
func NewBackend() *Backend {
	return &Backend{writeChan: make(chan logEntry, writeChanBuffer)}
}

const (
	defaultThresholdKB = 100 * 1000
	defaultMaxRolls    = 8
)

// AddConsoleWriter registers w (typically os.Stdout) as a destination for
// entries at or above minLevel.
func (b *Backend) AddConsoleWriter(w io.Writer, minLevel Level) error {
	return b.AddWriter(nopCloser{w}, minLevel)
}

// AddWriter registers an arbitrary io.WriteCloser as a log destination.
func (b *Backend) AddWriter(w io.WriteCloser, minLevel Level) error {
	if b.IsRunning() {
		return errors.New("logger backend is already running")
	}
	b.writers = append(b.writers, logWriterWrap{WriteCloser: w, logLevel: minLevel})
	return nil
}

// AddLogFile registers a rotating log file as a destination, creating the
// parent directory if necessary.
func (b *Backend) AddLogFile(logFile string, minLevel Level) error {
	if b.IsRunning() {
		return errors.New("logger backend is already running")
	}
	if dir := filepath.Dir(logFile); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return errors.Errorf("failed to create log directory: %+v", err)
		}
	}
	r, err := rotator.New(logFile, defaultThresholdKB, false, defaultMaxRolls)
	if err != nil {
		return errors.Errorf("failed to create log rotator: %s", err)
	}
	b.writers = append(b.writers, logWriterWrap{WriteCloser: r, logLevel: minLevel})
	return nil
}

// Run starts the backend's dispatch goroutine. Safe to call exactly once.
func (b *Backend) Run() error {
	if !atomic.CompareAndSwapUint32(&b.isRunning, 0, 1) {
		return errors.New("logger backend is already running")
	}
	go func() {
		defer func() {
			if err := recover(); err != nil {
				fmt.Fprintf(os.Stderr, "fatal error in logs.Backend goroutine: %+v\n%s\n", err, debug.Stack())
			}
		}()
		b.runBlocking()
	}()
	return nil
}

func (b *Backend) runBlocking() {
	defer atomic.StoreUint32(&b.isRunning, 0)
	b.syncClose.Lock()
	defer b.syncClose.Unlock()

	for entry := range b.writeChan {
		for _, w := range b.writers {
			if entry.level >= w.LogLevel() {
				_, _ = w.Write(entry.line)
			}
		}
	}
}

// IsRunning reports whether Run has been called and Close has not.
func (b *Backend) IsRunning() bool {
	return atomic.LoadUint32(&b.isRunning) != 0
}

// Close drains pending entries and closes every registered writer.
func (b *Backend) Close() {
	close(b.writeChan)
	b.syncClose.Lock()
	defer b.syncClose.Unlock()
	for _, w := range b.writers {
		_ = w.Close()
	}
}

// Logger returns a new Logger tagged with subsystemTag, writing to b.
// The returned Logger defaults to LevelInfo.
func (b *Backend) Logger(subsystemTag string) *Logger {
	return &Logger{level: uint32(LevelInfo), tag: subsystemTag, writeChan: b.writeChan}
}

// NopLogger returns a Logger with no backend attached: every write selects
// its default no-op branch (sending on a nil channel never succeeds), so
// it is safe to use as a subsystem's logger before the real Backend has
// been wired in by the node's startup sequence.
func NopLogger(subsystemTag string) *Logger {
	return &Logger{level: uint32(LevelInfo), tag: subsystemTag}
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// Logger writes leveled, subsystem-tagged lines to its backend's channel.
type Logger struct {
	level     uint32
	tag       string
	writeChan chan logEntry
}

// SetLevel changes the minimum level this Logger will emit.
func (l *Logger) SetLevel(level Level) { atomic.StoreUint32(&l.level, uint32(level)) }

// Level returns the Logger's current minimum level.
func (l *Logger) Level() Level { return Level(atomic.LoadUint32(&l.level)) }

func (l *Logger) write(level Level, format string, args ...interface{}) {
	if level < l.Level() {
		return
	}
	ts := time.Now().Format("2006-01-02 15:04:05.000")
	line := fmt.Sprintf("%s [%s] %s %s\n", ts, level, l.tag, fmt.Sprintf(format, args...))
	select {
	case l.writeChan <- logEntry{level: level, line: []byte(line)}:
	default:
		// Backend is backed up; drop rather than block the caller, which may
		// be holding the ChainState or ConnectionManager lock.
	}
}

func (l *Logger) Tracef(format string, args ...interface{})    { l.write(LevelTrace, format, args...) }
func (l *Logger) Debugf(format string, args ...interface{})    { l.write(LevelDebug, format, args...) }
func (l *Logger) Infof(format string, args ...interface{})     { l.write(LevelInfo, format, args...) }
func (l *Logger) Warnf(format string, args ...interface{})     { l.write(LevelWarn, format, args...) }
func (l *Logger) Errorf(format string, args ...interface{})    { l.write(LevelError, format, args...) }
func (l *Logger) Criticalf(format string, args ...interface{}) { l.write(LevelCritical, format, args...) }
