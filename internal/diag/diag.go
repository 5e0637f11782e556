// Package diag implements the structured diagnostics interface described in
// spec §6/§7: every user-visible failure carries a file path, 1-based line
// and column, a one-line message, and an optional suggestion. Entries
// accumulate in a Log the way storage.go's autosave path accumulates state
// behind a mutex, rather than writing straight to stderr, so an embedder can
// decide how to display them.
package diag

import (
	"fmt"
	"sync"

	"github.com/charmbracelet/lipgloss"
	colorful "github.com/lucasb-eyer/go-colorful"
)

// Level is the severity of a diagnostic entry.
type Level int

const (
	Info Level = iota
	Warning
	Error
)

func (l Level) String() string {
	switch l {
	case Warning:
		return "warning"
	case Error:
		return "error"
	default:
		return "info"
	}
}

// Entry is one structured log/diagnostic record.
type Entry struct {
	Level      Level  `json:"level"`
	Message    string `json:"message"`
	File       string `json:"file,omitempty"`
	Line       int    `json:"line,omitempty"`
	Col        int    `json:"col,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

func (e Entry) String() string {
	if e.File == "" {
		return fmt.Sprintf("%s: %s", e.Level, e.Message)
	}
	loc := fmt.Sprintf("%s:%d:%d", e.File, e.Line, e.Col)
	if e.Suggestion == "" {
		return fmt.Sprintf("%s: %s: %s", loc, e.Level, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s (suggestion: %s)", loc, e.Level, e.Message, e.Suggestion)
}

// Log accumulates diagnostics across a compile/render pass.
type Log struct {
	mu      sync.Mutex
	entries []Entry
}

func (l *Log) Add(e Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
}

func (l *Log) Errorf(file string, line, col int, format string, args ...any) {
	l.Add(Entry{Level: Error, Message: fmt.Sprintf(format, args...), File: file, Line: line, Col: col})
}

func (l *Log) Warnf(file string, line, col int, format string, args ...any) {
	l.Add(Entry{Level: Warning, Message: fmt.Sprintf(format, args...), File: file, Line: line, Col: col})
}

// Entries returns a snapshot of the accumulated diagnostics.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// HasErrors reports whether any Error-level entry was recorded.
func (l *Log) HasErrors() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.Level == Error {
			return true
		}
	}
	return false
}

var severityColor = map[Level]lipgloss.Color{}

func init() {
	// Fixed hex colors for info, warning and error, parsed and re-emitted
	// through go-colorful rather than written as ANSI codes.
	info, _ := colorful.Hex("#3fb6ff")
	warn, _ := colorful.Hex("#e8b339")
	fail, _ := colorful.Hex("#e0544a")
	severityColor[Info] = lipgloss.Color(info.Hex())
	severityColor[Warning] = lipgloss.Color(warn.Hex())
	severityColor[Error] = lipgloss.Color(fail.Hex())
}

// Pretty renders the log as a terminal-friendly, colorized multi-line string.
func (l *Log) Pretty() string {
	entries := l.Entries()
	out := ""
	for _, e := range entries {
		style := lipgloss.NewStyle().Foreground(severityColor[e.Level]).Bold(e.Level == Error)
		out += style.Render(e.String()) + "\n"
	}
	return out
}

// Std writes every entry accumulated so far, once, through logger's Printf
// (for example a *log.Logger from the standard `log` package); entries
// added after the call are not forwarded.
func (l *Log) Std(logger interface{ Printf(string, ...any) }) {
	for _, e := range l.Entries() {
		logger.Printf("%s", e.String())
	}
}
