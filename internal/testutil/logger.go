package testutil

import "sync"

// LogEntry is one captured log call.
type LogEntry struct {
	Level string
	Msg   string
	Args  []any
}

// CaptureLogger records log calls for assertions. Safe for concurrent use.
type CaptureLogger struct {
	mu      sync.Mutex
	entries []LogEntry
}

func NewCaptureLogger() *CaptureLogger {
	return &CaptureLogger{}
}

func (l *CaptureLogger) Debug(msg string, args ...any) { l.append("DEBUG", msg, args) }
func (l *CaptureLogger) Info(msg string, args ...any)  { l.append("INFO", msg, args) }
func (l *CaptureLogger) Warn(msg string, args ...any)  { l.append("WARN", msg, args) }
func (l *CaptureLogger) Error(msg string, args ...any) { l.append("ERROR", msg, args) }

func (l *CaptureLogger) append(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, LogEntry{Level: level, Msg: msg, Args: args})
}

// Entries returns a copy of everything logged so far.
func (l *CaptureLogger) Entries() []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]LogEntry(nil), l.entries...)
}

// Has reports whether a call with the given level and message was logged.
func (l *CaptureLogger) Has(level, msg string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.Level == level && e.Msg == msg {
			return true
		}
	}
	return false
}
