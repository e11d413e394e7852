// Package logger provides leveled logging in text or JSON-lines format.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// Level represents a logging level.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "debug"
	case WarnLevel:
		return "warn"
	case ErrorLevel:
		return "error"
	default:
		return "info"
	}
}

// ParseLevel maps a level name to a Level; unknown names yield InfoLevel
// and false.
func ParseLevel(level string) (Level, bool) {
	switch strings.ToLower(level) {
	case "debug":
		return DebugLevel, true
	case "info":
		return InfoLevel, true
	case "warn":
		return WarnLevel, true
	case "error":
		return ErrorLevel, true
	default:
		return InfoLevel, false
	}
}

// Logger provides leveled logging.
type Logger struct {
	level  Level
	json   bool
	out    io.Writer
	mu     sync.Mutex
	logger *log.Logger
}

type jsonLine struct {
	Time   string `json:"time"`
	Level  string `json:"level"`
	Msg    string `json:"msg"`
	Caller string `json:"caller,omitempty"`
}

var defaultLogger *Logger

// Init initializes the default logger with the specified level and format
// ("json" or "text"), writing to stderr.
func Init(level string, format string) {
	InitWriter(level, format, os.Stderr)
}

// InitWriter is Init with an explicit destination.
func InitWriter(level string, format string, out io.Writer) {
	l, _ := ParseLevel(level)

	flags := log.LstdFlags | log.Lmicroseconds
	if strings.ToLower(format) == "text" {
		flags |= log.Lshortfile
	}

	defaultLogger = &Logger{
		level:  l,
		json:   strings.ToLower(format) == "json",
		out:    out,
		logger: log.New(out, "", flags),
	}
}

func (l *Logger) output(level Level, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if !l.json {
		_ = l.logger.Output(3, "["+strings.ToUpper(level.String())+"] "+msg)
		return
	}

	line := jsonLine{
		Time:  time.Now().UTC().Format(time.RFC3339Nano),
		Level: level.String(),
		Msg:   msg,
	}
	if _, file, lineNo, ok := runtime.Caller(2); ok {
		line.Caller = fmt.Sprintf("%s:%d", shortFile(file), lineNo)
	}
	b, err := jsoniter.ConfigFastest.Marshal(line)
	if err != nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = l.out.Write(append(b, '\n'))
}

func shortFile(path string) string {
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return path
}

func Debug(format string, args ...interface{}) {
	if defaultLogger != nil && defaultLogger.level <= DebugLevel {
		defaultLogger.output(DebugLevel, format, args...)
	}
}

func Info(format string, args ...interface{}) {
	if defaultLogger != nil && defaultLogger.level <= InfoLevel {
		defaultLogger.output(InfoLevel, format, args...)
	}
}

func Warn(format string, args ...interface{}) {
	if defaultLogger != nil && defaultLogger.level <= WarnLevel {
		defaultLogger.output(WarnLevel, format, args...)
	}
}

func Error(format string, args ...interface{}) {
	if defaultLogger != nil && defaultLogger.level <= ErrorLevel {
		defaultLogger.output(ErrorLevel, format, args...)
	}
}

func Fatal(format string, args ...interface{}) {
	if defaultLogger != nil {
		defaultLogger.output(ErrorLevel, "FATAL: "+format, args...)
	} else {
		fmt.Fprintf(os.Stderr, "[FATAL] "+format+"\n", args...)
	}
	os.Exit(1)
}
