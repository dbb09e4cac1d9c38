package logs

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"riskgate/config"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

const consoleTimestamp = "2006-01-02 15:04:05"

// FileHook copies every entry to a rotated file using its own formatter,
// so the console can stay coloured while the file is plain text or JSON lines.
type FileHook struct {
	mu        sync.Mutex
	formatter logrus.Formatter
	writer    io.WriteCloser
}

func (h *FileHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *FileHook) Fire(entry *logrus.Entry) error {
	line, err := h.formatter.Format(entry)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = h.writer.Write(line)
	return err
}

func (h *FileHook) close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.writer.Close()
}

// Fields is an alias so callers don't import logrus for structured lines.
type Fields = logrus.Fields

var (
	// log writes to stderr until Init replaces it, so packages are usable from tests and one-shot commands.
	log      = logrus.New()
	fileHook *FileHook
)

func consoleFormatter() logrus.Formatter {
	return &logrus.TextFormatter{
		ForceColors:            true,
		FullTimestamp:          true,
		TimestampFormat:        consoleTimestamp,
		DisableLevelTruncation: true,
		PadLevelText:           true,
	}
}

// fileFormatter maps logs.file_format onto a formatter. Empty means text.
func fileFormatter(format string) (logrus.Formatter, error) {
	switch strings.ToLower(format) {
	case "", "text":
		return &logrus.TextFormatter{
			DisableColors:   true,
			FullTimestamp:   true,
			TimestampFormat: consoleTimestamp,
		}, nil
	case "json":
		return &logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano}, nil
	default:
		return nil, fmt.Errorf("unknown log file format %q", format)
	}
}

// Init replaces the package logger with a console logger plus a rotated file at logFilePath.
// An unknown level falls back to info with a warning; an unknown file format is an error.
func Init(cfg *config.LogConfig, logFilePath string) error {
	formatter, err := fileFormatter(cfg.FileFormat)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(logFilePath), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	level, levelErr := logrus.ParseLevel(cfg.LogLevel)
	if levelErr != nil {
		level = logrus.InfoLevel
	}

	next := logrus.New()
	next.SetLevel(level)
	next.SetFormatter(consoleFormatter())
	next.SetOutput(os.Stdout)
	hook := &FileHook{
		formatter: formatter,
		writer: &lumberjack.Logger{
			Filename:   logFilePath,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		},
	}
	next.AddHook(hook)

	closeFileHook()
	log, fileHook = next, hook

	// Silence the global logrus instance so stray logrus.Info calls from dependencies stay quiet.
	logrus.SetOutput(io.Discard)
	logrus.StandardLogger().Hooks = make(logrus.LevelHooks)

	if levelErr != nil {
		Warnf("Unknown log level %q, using info.", cfg.LogLevel)
	}
	Infof("Logging system initialized: level %s, file %s.", level, logFilePath)
	return nil
}

func closeFileHook() {
	if fileHook == nil {
		return
	}
	if err := fileHook.close(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to close log file: %v\n", err)
	}
	fileHook = nil
}

// Close flushes and detaches the log file. Console logging keeps working.
func Close() {
	if fileHook == nil {
		return
	}
	Info("Logging system closed.")
	log.ReplaceHooks(make(logrus.LevelHooks))
	closeFileHook()
}

// SetOutput redirects console output, e.g. to io.Discard in tests.
func SetOutput(w io.Writer) { log.SetOutput(w) }

// WithFields starts a structured entry on the package logger.
func WithFields(fields Fields) *logrus.Entry { return log.WithFields(fields) }

func Debug(args ...interface{})                 { log.Debug(args...) }
func Debugf(format string, args ...interface{}) { log.Debugf(format, args...) }
func Info(args ...interface{})                  { log.Info(args...) }
func Infof(format string, args ...interface{})  { log.Infof(format, args...) }
func Warn(args ...interface{})                  { log.Warn(args...) }
func Warnf(format string, args ...interface{})  { log.Warnf(format, args...) }
func Error(args ...interface{})                 { log.Error(args...) }
func Errorf(format string, args ...interface{}) { log.Errorf(format, args...) }
func Fatal(args ...interface{})                 { log.Fatal(args...) }
func Fatalf(format string, args ...interface{}) { log.Fatalf(format, args...) }
