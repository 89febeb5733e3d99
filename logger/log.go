package logger

import (
	"io"
	"log"
	"os"
	"strings"
	"sync"
)

type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

// ParseLevel maps a level name to a Level, defaulting to INFO.
func ParseLevel(level string) Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return DEBUG
	case "WARN":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

type Logger struct {
	level    Level
	mu       sync.Mutex
	debugLog *log.Logger
	infoLog  *log.Logger
	warnLog  *log.Logger
	errorLog *log.Logger
}

// New returns a logger writing to stderr.
func New(level string) *Logger {
	return NewWithWriter(level, os.Stderr)
}

func NewWithWriter(level string, w io.Writer) *Logger {
	flags := log.LstdFlags | log.Lmicroseconds
	return &Logger{
		level:    ParseLevel(level),
		debugLog: log.New(w, "[DEBUG] ", flags),
		infoLog:  log.New(w, "[INFO] ", flags),
		warnLog:  log.New(w, "[WARN] ", flags),
		errorLog: log.New(w, "[ERROR] ", flags),
	}
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return NewWithWriter("ERROR", io.Discard)
}

func (l *Logger) Debugf(format string, args ...interface{}) {
	l.printf(DEBUG, l.debugLog, format, args...)
}

func (l *Logger) Infof(format string, args ...interface{}) {
	l.printf(INFO, l.infoLog, format, args...)
}

func (l *Logger) Warnf(format string, args ...interface{}) {
	l.printf(WARN, l.warnLog, format, args...)
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	l.printf(ERROR, l.errorLog, format, args...)
}

func (l *Logger) printf(level Level, out *log.Logger, format string, args ...interface{}) {
	if l.level > level {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	out.Printf(format, args...)
}
