// Package logging routes the standard logger to stdout and, optionally,
// an append-only run log.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

var (
	mu      sync.Mutex
	logFile *os.File
)

// Init tees the standard logger to stdout and, when logPath is set, to
// that file. Calling Init again replaces the previous file.
func Init(logPath string) error {
	mu.Lock()
	defer mu.Unlock()

	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}

	writers := []io.Writer{os.Stdout}
	if logPath != "" {
		if dir := filepath.Dir(logPath); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return errors.Wrap(err, "create log dir")
			}
		}
		file, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return errors.Wrap(err, "open log file")
		}
		logFile = file
		writers = append(writers, logFile)
	}

	log.SetOutput(io.MultiWriter(writers...))
	return nil
}

// Close closes the run log and restores the standard logger to stderr.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	log.SetOutput(os.Stderr)
	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile = nil
	return err
}

// LogEvent logs a formatted message.
func LogEvent(format string, args ...interface{}) {
	log.Println(fmt.Sprintf(format, args...))
}

// Fields is a set of key=value pairs for a single log line.
type Fields map[string]interface{}

// LogFields logs event followed by fields as sorted key=value pairs.
// Floats are printed with four decimals.
func LogFields(event string, fields Fields) {
	log.Println(formatFields(event, fields))
}

func formatFields(event string, fields Fields) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys)+1)
	if event = strings.TrimSpace(event); event != "" {
		parts = append(parts, event)
	}
	for _, k := range keys {
		parts = append(parts, k+"="+formatValue(fields[k]))
	}
	return strings.Join(parts, " ")
}

func formatValue(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case float64:
		return fmt.Sprintf("%.4f", x)
	case float32:
		return fmt.Sprintf("%.4f", x)
	case string:
		if strings.TrimSpace(x) == "" {
			return `""`
		}
		if strings.ContainsAny(x, " \t") {
			return fmt.Sprintf("%q", x)
		}
		return x
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}
