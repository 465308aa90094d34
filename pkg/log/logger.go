// Structured logging for the tinyg controller
//
// Every component takes a prefixed logger from GetLogger. Output is either
// human-readable text or one JSON object per line, selected through the
// [log] config section or the TINYG_LOG_* environment variables.
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/sjson"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR"}

// String returns the string representation of the log level
func (l LogLevel) String() string {
	if l < DEBUG || l > ERROR {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// ParseLevel parses a level name. Unrecognised names map to INFO.
func ParseLevel(s string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return DEBUG
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

// OutputFormat specifies the output format for log messages
type OutputFormat int

const (
	FormatText OutputFormat = iota
	FormatJSON
)

// ParseFormat maps "json" to FormatJSON and anything else to FormatText.
func ParseFormat(s string) OutputFormat {
	if strings.EqualFold(strings.TrimSpace(s), "json") {
		return FormatJSON
	}
	return FormatText
}

// Fields is a map of structured logging fields
type Fields map[string]interface{}

// sink is shared by a logger and every logger derived from it with
// WithPrefix, so reconfiguring the root reconfigures the components.
type sink struct {
	mu         sync.Mutex
	writer     io.Writer
	level      LogLevel
	timeFormat string
	colorize   bool
	format     OutputFormat
	caller     bool
}

// Logger writes leveled messages tagged with a component prefix.
type Logger struct {
	prefix string
	out    *sink
}

// Entry carries fields for a single log call.
type Entry struct {
	logger *Logger
	fields Fields
}

var (
	defaultMu     sync.Mutex
	defaultLogger *Logger

	ansiColors = map[LogLevel]string{
		DEBUG: "\x1b[36m",
		INFO:  "\x1b[32m",
		WARN:  "\x1b[33m",
		ERROR: "\x1b[31m",
	}
)

const ansiReset = "\x1b[0m"

// New creates a logger writing to stderr at INFO.
func New(prefix string) *Logger {
	return &Logger{
		prefix: prefix,
		out: &sink{
			writer:     os.Stderr,
			level:      INFO,
			timeFormat: "2006-01-02 15:04:05.000",
			colorize:   os.Getenv("NO_COLOR") == "",
		},
	}
}

// SetLevel sets the minimum log level
func (l *Logger) SetLevel(level LogLevel) {
	l.out.mu.Lock()
	l.out.level = level
	l.out.mu.Unlock()
}

// GetLevel returns the current log level
func (l *Logger) GetLevel() LogLevel {
	l.out.mu.Lock()
	defer l.out.mu.Unlock()
	return l.out.level
}

// Enabled reports whether messages at level would be written.
func (l *Logger) Enabled(level LogLevel) bool {
	return level >= l.GetLevel()
}

// SetWriter sets the output writer (e.g., for testing)
func (l *Logger) SetWriter(w io.Writer) {
	l.out.mu.Lock()
	l.out.writer = w
	l.out.mu.Unlock()
}

// SetTimeFormat sets the time layout used by the text format.
func (l *Logger) SetTimeFormat(format string) {
	l.out.mu.Lock()
	l.out.timeFormat = format
	l.out.mu.Unlock()
}

// SetColorize enables or disables colorized prefixes
func (l *Logger) SetColorize(enable bool) {
	l.out.mu.Lock()
	l.out.colorize = enable
	l.out.mu.Unlock()
}

// SetFormat sets the output format
func (l *Logger) SetFormat(format OutputFormat) {
	l.out.mu.Lock()
	l.out.format = format
	l.out.mu.Unlock()
}

// SetCaller enables or disables file:line in the output
func (l *Logger) SetCaller(enable bool) {
	l.out.mu.Lock()
	l.out.caller = enable
	l.out.mu.Unlock()
}

// Prefix returns the component name of the logger.
func (l *Logger) Prefix() string { return l.prefix }

// WithPrefix returns a logger for another component sharing this
// logger's output settings.
func (l *Logger) WithPrefix(prefix string) *Logger {
	return &Logger{prefix: prefix, out: l.out}
}

// WithField returns an Entry with the given field
func (l *Logger) WithField(key string, value interface{}) *Entry {
	return &Entry{logger: l, fields: Fields{key: value}}
}

// WithFields returns an Entry with the given fields
func (l *Logger) WithFields(fields Fields) *Entry {
	return &Entry{logger: l, fields: fields}
}

// WithError returns an Entry with the error field set
func (l *Logger) WithError(err error) *Entry {
	return l.WithField("error", errString(err))
}

func errString(err error) string {
	if err == nil {
		return "<nil>"
	}
	return err.Error()
}

func getCaller(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "unknown:0"
	}
	return fmt.Sprintf("%s:%d", filepath.Base(file), line)
}

func (l *Logger) formatText(level LogLevel, msg string, fields Fields, caller string) string {
	var sb strings.Builder
	sb.WriteString(time.Now().Format(l.out.timeFormat))
	fmt.Fprintf(&sb, " [%-5s] ", level.String())
	if l.out.colorize {
		sb.WriteString(ansiColors[level])
	}
	sb.WriteString(l.prefix)
	if l.out.colorize {
		sb.WriteString(ansiReset)
	}
	sb.WriteString(": ")
	sb.WriteString(msg)
	if caller != "" {
		sb.WriteString(" (")
		sb.WriteString(caller)
		sb.WriteString(")")
	}
	if len(fields) > 0 {
		sb.WriteString(" {")
		for i, k := range sortedKeys(fields) {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "%s=%v", k, fields[k])
		}
		sb.WriteString("}")
	}
	sb.WriteString("\n")
	return sb.String()
}

// formatJSON builds one object per line:
// {"timestamp":..,"level":..,"logger":..,"message":..,"caller":..,"fields":{..}}
func (l *Logger) formatJSON(level LogLevel, msg string, fields Fields, caller string) string {
	doc := "{}"
	set := func(path string, v interface{}) {
		if next, err := sjson.Set(doc, path, v); err == nil {
			doc = next
		}
	}
	set("timestamp", time.Now().Format(time.RFC3339Nano))
	set("level", level.String())
	set("logger", l.prefix)
	set("message", msg)
	if caller != "" {
		set("caller", caller)
	}
	for _, k := range sortedKeys(fields) {
		v := fields[k]
		if err, ok := v.(error); ok {
			v = errString(err)
		}
		set("fields."+escapePath(k), v)
	}
	return doc + "\n"
}

// escapePath protects sjson path metacharacters in a field name.
func escapePath(k string) string {
	r := strings.NewReplacer(".", `\.`, "*", `\*`, "?", `\?`, "|", `\|`, "#", `\#`)
	return r.Replace(k)
}

func sortedKeys(fields Fields) []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// write is shared by every entry point; callerSkip counts frames above it.
func (l *Logger) write(level LogLevel, msg string, fields Fields, callerSkip int) {
	l.out.mu.Lock()
	defer l.out.mu.Unlock()
	if level < l.out.level {
		return
	}
	caller := ""
	if l.out.caller {
		caller = getCaller(callerSkip + 1)
	}
	var line string
	if l.out.format == FormatJSON {
		line = l.formatJSON(level, msg, fields, caller)
	} else {
		line = l.formatText(level, msg, fields, caller)
	}
	io.WriteString(l.out.writer, line)
}

func sprintf(msg string, args []interface{}) string {
	if len(args) == 0 {
		return msg
	}
	return fmt.Sprintf(msg, args...)
}

// Debug logs a message at DEBUG level
func (l *Logger) Debug(msg string, args ...interface{}) {
	l.write(DEBUG, sprintf(msg, args), nil, 2)
}

// Info logs a message at INFO level
func (l *Logger) Info(msg string, args ...interface{}) {
	l.write(INFO, sprintf(msg, args), nil, 2)
}

// Warn logs a message at WARN level
func (l *Logger) Warn(msg string, args ...interface{}) {
	l.write(WARN, sprintf(msg, args), nil, 2)
}

// Error logs a message at ERROR level
func (l *Logger) Error(msg string, args ...interface{}) {
	l.write(ERROR, sprintf(msg, args), nil, 2)
}

// WithField adds a field to the entry
func (e *Entry) WithField(key string, value interface{}) *Entry {
	return e.WithFields(Fields{key: value})
}

// WithFields adds multiple fields to the entry
func (e *Entry) WithFields(fields Fields) *Entry {
	merged := make(Fields, len(e.fields)+len(fields))
	for k, v := range e.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &Entry{logger: e.logger, fields: merged}
}

// WithError adds an error field to the entry
func (e *Entry) WithError(err error) *Entry {
	return e.WithField("error", errString(err))
}

func (e *Entry) Debug(msg string) { e.logger.write(DEBUG, msg, e.fields, 2) }
func (e *Entry) Info(msg string)  { e.logger.write(INFO, msg, e.fields, 2) }
func (e *Entry) Warn(msg string)  { e.logger.write(WARN, msg, e.fields, 2) }
func (e *Entry) Error(msg string) { e.logger.write(ERROR, msg, e.fields, 2) }

func (e *Entry) Debugf(format string, args ...interface{}) {
	e.logger.write(DEBUG, fmt.Sprintf(format, args...), e.fields, 2)
}

func (e *Entry) Infof(format string, args ...interface{}) {
	e.logger.write(INFO, fmt.Sprintf(format, args...), e.fields, 2)
}

func (e *Entry) Warnf(format string, args ...interface{}) {
	e.logger.write(WARN, fmt.Sprintf(format, args...), e.fields, 2)
}

func (e *Entry) Errorf(format string, args ...interface{}) {
	e.logger.write(ERROR, fmt.Sprintf(format, args...), e.fields, 2)
}

// Default returns the root logger, creating it on first use.
func Default() *Logger {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultLogger == nil {
		defaultLogger = New("tinyg")
		ConfigureFromEnv(defaultLogger)
	}
	return defaultLogger
}

// SetDefaultLogger replaces the root logger. Loggers already handed out by
// GetLogger keep writing through the previous root.
func SetDefaultLogger(logger *Logger) {
	defaultMu.Lock()
	defaultLogger = logger
	defaultMu.Unlock()
}

// GetLogger returns a component logger sharing the root's settings.
func GetLogger(prefix string) *Logger {
	return Default().WithPrefix(prefix)
}

// Options configure the root logger from the [log] config section.
type Options struct {
	Level  string
	Format string
	File   string
}

// Configure applies opts to the root logger. A non-empty File is opened
// for append and returned so the caller can close it at shutdown.
// Environment variables still win over the file settings.
func Configure(opts Options) (io.Closer, error) {
	root := Default()
	if opts.Level != "" {
		root.SetLevel(ParseLevel(opts.Level))
	}
	if opts.Format != "" {
		root.SetFormat(ParseFormat(opts.Format))
	}
	var closer io.Closer
	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file %s: %w", opts.File, err)
		}
		root.SetWriter(f)
		root.SetColorize(false)
		closer = f
	}
	ConfigureFromEnv(root)
	return closer, nil
}

// ConfigureFromEnv applies environment-based configuration to the logger.
// Environment variables:
//   - TINYG_LOG_LEVEL: DEBUG, INFO, WARN, ERROR
//   - TINYG_LOG_FORMAT: text, json
//   - TINYG_LOG_CALLER: any non-empty value enables caller info
//   - NO_COLOR: any non-empty value disables colors
func ConfigureFromEnv(l *Logger) {
	if v := os.Getenv("TINYG_LOG_LEVEL"); v != "" {
		l.SetLevel(ParseLevel(v))
	}
	if v := os.Getenv("TINYG_LOG_FORMAT"); v != "" {
		l.SetFormat(ParseFormat(v))
	}
	if os.Getenv("TINYG_LOG_CALLER") != "" {
		l.SetCaller(true)
	}
	if os.Getenv("NO_COLOR") != "" {
		l.SetColorize(false)
	}
}
