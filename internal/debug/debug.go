package debug

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Build flag for debug mode - can be overridden at build time
// go build -ldflags "-X github.com/erlscope/erlscope/internal/debug.EnableDebug=true"
var EnableDebug = "false"

// MCPMode tracks whether we're serving MCP over stdio (set by main).
// Debug output is suppressed in that mode to keep the protocol stream clean.
var MCPMode = false

var (
	debugMutex  sync.Mutex
	debugOutput io.Writer
	debugFile   *os.File
)

// SetMCPMode enables MCP mode, suppressing debug output to stdio.
func SetMCPMode(enabled bool) {
	MCPMode = enabled
}

// SetOutput sets a custom writer for debug output. Pass nil to disable.
func SetOutput(w io.Writer) {
	debugMutex.Lock()
	defer debugMutex.Unlock()
	debugOutput = w
}

// InitLogFile redirects debug output to a timestamped file under the OS
// temp directory. Returns the log path. Call Close when done.
func InitLogFile() (string, error) {
	debugMutex.Lock()
	defer debugMutex.Unlock()

	logDir := filepath.Join(os.TempDir(), "erlscope-debug-logs")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create debug log directory: %w", err)
	}

	logPath := filepath.Join(logDir, fmt.Sprintf("debug-%s.log", time.Now().Format("2006-01-02T150405")))
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return "", fmt.Errorf("failed to create debug log file: %w", err)
	}

	debugFile = file
	debugOutput = file
	return logPath, nil
}

// Close flushes and closes the debug log file if one is open.
func Close() {
	debugMutex.Lock()
	defer debugMutex.Unlock()
	if debugFile != nil {
		debugFile.Close()
		debugFile = nil
		debugOutput = nil
	}
}

func writer() io.Writer {
	if debugOutput != nil {
		return debugOutput
	}
	if EnableDebug == "true" && !MCPMode {
		return os.Stderr
	}
	return nil
}

// Logf writes a general debug line.
func Logf(format string, args ...interface{}) {
	logPrefixed("", format, args...)
}

// LogQuery writes a query-database debug line.
func LogQuery(format string, args ...interface{}) {
	logPrefixed("[QUERY] ", format, args...)
}

// LogEngine writes an engine lifecycle debug line.
func LogEngine(format string, args ...interface{}) {
	logPrefixed("[ENGINE] ", format, args...)
}

// LogWatch writes a file-watcher debug line.
func LogWatch(format string, args ...interface{}) {
	logPrefixed("[WATCH] ", format, args...)
}

func logPrefixed(prefix, format string, args ...interface{}) {
	debugMutex.Lock()
	defer debugMutex.Unlock()
	w := writer()
	if w == nil {
		return
	}
	fmt.Fprintf(w, prefix+format, args...)
	fmt.Fprintln(w)
}
