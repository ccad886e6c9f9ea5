// Package status renders the transient progress indicator and the blocking
// user message of backup attempts.
package status

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/tis24dev/savesync/internal/logging"
	"golang.org/x/term"
)

// Sink receives progress updates. Implementations must not affect the caller.
type Sink interface {
	SetText(text string)
	SetIndeterminate(busy bool)
}

// Messenger shows a single message the user has to acknowledge.
type Messenger interface {
	ShowMessage(text string)
}

// LogSink forwards status text to the logger.
type LogSink struct {
	logger *logging.Logger
}

// NewLogSink returns a sink writing status lines through logger.
func NewLogSink(logger *logging.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) SetText(text string) {
	if s == nil || s.logger == nil || strings.TrimSpace(text) == "" {
		return
	}
	s.logger.Info("Status: %s", text)
}

func (s *LogSink) SetIndeterminate(busy bool) {
	if s == nil || s.logger == nil {
		return
	}
	s.logger.Debug("Progress indicator busy=%v", busy)
}

var spinnerFrames = []string{"|", "/", "-", "\\"}

// TerminalSink keeps a single status line on a terminal and falls back to
// plain lines when the output is not a TTY.
type TerminalSink struct {
	mu    sync.Mutex
	w     io.Writer
	tty   bool
	busy  bool
	frame int
	dirty bool
}

// NewTerminalSink writes to f, redrawing in place when f is a terminal.
func NewTerminalSink(f *os.File) *TerminalSink {
	return newTerminalSink(f, term.IsTerminal(int(f.Fd())))
}

func newTerminalSink(w io.Writer, tty bool) *TerminalSink {
	return &TerminalSink{w: w, tty: tty}
}

func (s *TerminalSink) SetText(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.tty {
		if strings.TrimSpace(text) != "" {
			fmt.Fprintln(s.w, text)
		}
		return
	}

	if text == "" {
		if s.dirty {
			fmt.Fprint(s.w, "\r\033[K")
			s.dirty = false
		}
		return
	}
	marker := " "
	if s.busy {
		marker = spinnerFrames[s.frame%len(spinnerFrames)]
		s.frame++
	}
	fmt.Fprintf(s.w, "\r\033[K%s %s", marker, text)
	s.dirty = true
}

func (s *TerminalSink) SetIndeterminate(busy bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy = busy
	if !busy && s.tty && s.dirty {
		fmt.Fprintln(s.w)
		s.dirty = false
	}
}

// Multi fans updates out to every sink.
type Multi []Sink

func (m Multi) SetText(text string) {
	for _, s := range m {
		s.SetText(text)
	}
}

func (m Multi) SetIndeterminate(busy bool) {
	for _, s := range m {
		s.SetIndeterminate(busy)
	}
}

// ConsoleMessenger prints highlighted messages and records them in the log.
type ConsoleMessenger struct {
	w      io.Writer
	logger *logging.Logger
	color  *color.Color
}

// NewConsoleMessenger writes messages to w (stderr when nil).
func NewConsoleMessenger(w io.Writer, logger *logging.Logger) *ConsoleMessenger {
	if w == nil {
		w = os.Stderr
	}
	return &ConsoleMessenger{
		w:      w,
		logger: logger,
		color:  color.New(color.FgYellow, color.Bold),
	}
}

func (m *ConsoleMessenger) ShowMessage(text string) {
	m.color.Fprintln(m.w, "! "+text)
	if m.logger != nil {
		m.logger.Warning("%s", text)
	}
}
