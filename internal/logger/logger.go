package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rivo/tview"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a tagged handle on the process-wide zap logger. Handles can be
// created before InitLogger runs; they pick up the configured sinks lazily.
type Logger struct {
	tag    string
	fields []interface{}
}

var (
	mu      sync.RWMutex
	base    = zap.NewNop()
	logFile *os.File
)

// InitLogger wires the sinks. With a view the dev console goes to the tview
// debug console (nothing is printed to the terminal the UI owns); without one
// it goes to stderr. A non-empty logPath adds a JSON log file in that directory.
func InitLogger(dev bool, logPath string, view *tview.TextView) error {
	level := zapcore.InfoLevel
	if dev {
		level = zapcore.DebugLevel
	}

	var cores []zapcore.Core

	consoleCfg := zap.NewDevelopmentEncoderConfig()
	consoleCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
	if view != nil {
		if dev {
			consoleCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
			cores = append(cores, zapcore.NewCore(
				zapcore.NewConsoleEncoder(consoleCfg),
				zapcore.AddSync(tview.ANSIWriter(view)),
				level,
			))
		}
	} else {
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(consoleCfg),
			zapcore.Lock(os.Stderr),
			level,
		))
	}

	var file *os.File
	if logPath != "" {
		timestamp := time.Now().Format("20060102_150405")
		fileName := fmt.Sprintf("champs_log_%s.log", timestamp)

		f, err := os.OpenFile(filepath.Join(logPath, fileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		file = f
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
			zapcore.AddSync(f),
			zapcore.DebugLevel,
		))
	}

	mu.Lock()
	defer mu.Unlock()
	closeLocked()
	base = zap.New(zapcore.NewTee(cores...))
	logFile = file
	return nil
}

// NewLogger returns a logger that prefixes every entry with tag.
func NewLogger(tag string) *Logger {
	return &Logger{tag: tag}
}

// With returns a copy carrying extra key/value pairs.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	fields := make([]interface{}, 0, len(l.fields)+len(keysAndValues))
	fields = append(fields, l.fields...)
	fields = append(fields, keysAndValues...)
	return &Logger{tag: l.tag, fields: fields}
}

func (l *Logger) sugar() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	s := base.Named(l.tag).Sugar()
	if len(l.fields) > 0 {
		s = s.With(l.fields...)
	}
	return s
}

func (l *Logger) Debug(v ...interface{}) {
	l.sugar().Debug(v...)
}

func (l *Logger) Info(v ...interface{}) {
	l.sugar().Info(v...)
}

func (l *Logger) Warn(v ...interface{}) {
	l.sugar().Warn(v...)
}

func (l *Logger) Error(v ...interface{}) {
	l.sugar().Error(v...)
}

// Infow and Errorw log a message with structured key/value pairs.
func (l *Logger) Infow(msg string, keysAndValues ...interface{}) {
	l.sugar().Infow(msg, keysAndValues...)
}

func (l *Logger) Errorw(msg string, keysAndValues ...interface{}) {
	l.sugar().Errorw(msg, keysAndValues...)
}

func (l *Logger) Fatal(v ...interface{}) {
	l.sugar().Fatal(v...)
}

// Close flushes and releases the log file.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	closeLocked()
	base = zap.NewNop()
}

func closeLocked() {
	_ = base.Sync()
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
}
