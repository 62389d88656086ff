package logger

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/fatih/color"
)

type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
	FATAL
)

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case FATAL:
		return "FATAL"
	default:
		return "INFO"
	}
}

type entry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Category  string `json:"category"`
	Message   string `json:"message"`
	File      string `json:"file,omitempty"`
	Line      int    `json:"line,omitempty"`
}

// Logger writes colored, category-tagged lines to the terminal and JSON
// lines to a dated log file.
type Logger struct {
	file *os.File
}

// New opens (or creates) logs/marketplace-<date>.log and returns a logger
// writing to it and to stdout.
func New() *Logger {
	if err := os.MkdirAll("logs", 0o755); err != nil {
		log.Fatal("failed to create logs directory:", err)
	}

	name := fmt.Sprintf("logs/marketplace-%s.log", time.Now().Format("2006-01-02"))
	file, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o666)
	if err != nil {
		log.Fatal("failed to open log file:", err)
	}

	l := &Logger{file: file}
	l.Info("LOGGER", "logging to "+name)
	return l
}

// NewDiscard returns a logger that writes to the terminal only. Used in
// tests and tooling where a log file is unwanted.
func NewDiscard() *Logger {
	return &Logger{}
}

func (l *Logger) log(level Level, category, message string) {
	_, file, line, ok := runtime.Caller(2)
	if ok {
		file = filepath.Base(file)
	}

	e := entry{
		Timestamp: time.Now().UTC().Format("2006-01-02T15:04:05.000Z"),
		Level:     level.String(),
		Category:  strings.ToUpper(category),
		Message:   message,
		File:      file,
		Line:      line,
	}

	fmt.Print(l.terminalLine(e))

	if l.file != nil {
		if raw, err := json.Marshal(e); err == nil {
			l.file.WriteString(string(raw) + "\n")
		}
	}
}

func (l *Logger) terminalLine(e entry) string {
	var c *color.Color
	switch e.Level {
	case "DEBUG":
		c = color.New(color.FgCyan)
	case "WARN":
		c = color.New(color.FgYellow)
	case "ERROR", "FATAL":
		c = color.New(color.FgRed)
	default:
		c = color.New(color.FgGreen)
	}

	ts := color.New(color.FgBlue).Sprint(e.Timestamp[11:19])
	lvl := c.Sprintf("%-5s", e.Level)
	cat := color.New(color.Bold).Sprintf("[%-10s]", e.Category)
	loc := color.New(color.FgMagenta).Sprintf("(%s:%d)", e.File, e.Line)
	return fmt.Sprintf("%s %s %s %s %s\n", ts, lvl, cat, e.Message, loc)
}

func (l *Logger) Debug(category, message string) { l.log(DEBUG, category, message) }
func (l *Logger) Info(category, message string)  { l.log(INFO, category, message) }
func (l *Logger) Warn(category, message string)  { l.log(WARN, category, message) }
func (l *Logger) Error(category, message string) { l.log(ERROR, category, message) }

func (l *Logger) Fatal(category, message string) {
	l.log(FATAL, category, message)
	os.Exit(1)
}

func (l *Logger) Close() {
	if l.file != nil {
		l.file.Close()
	}
}
