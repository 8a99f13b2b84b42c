package utils

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fatih/color"
)

var spinnerFrames = []rune(`⠋⠙⠹⠸⠼⠴⠦⠧⠇⠏`)

// Spinner draws a progress indicator on a single terminal line.
type Spinner struct {
	mu      sync.Mutex
	w       io.Writer
	delay   time.Duration
	message string
	// StopMsg is printed in place of the spinner once it stops.
	StopMsg string

	stop chan struct{}
	done chan struct{}
}

func NewSpinner(w io.Writer, msg string, delay time.Duration) *Spinner {
	return &Spinner{w: w, delay: delay, message: msg}
}

func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	fmt.Fprint(s.w, "\033[?25l")

	go func(stop, done chan struct{}) {
		defer close(done)
		t := time.NewTicker(s.delay)
		defer t.Stop()
		for i := 0; ; i++ {
			s.mu.Lock()
			fmt.Fprintf(s.w, "\r\033[K%s %s", s.message, color.GreenString(string(spinnerFrames[i%len(spinnerFrames)])))
			s.mu.Unlock()
			select {
			case <-stop:
				return
			case <-t.C:
			}
		}
	}(s.stop, s.done)
}

// SetMessage replaces the text drawn next to the spinner from the next frame on.
func (s *Spinner) SetMessage(msg string) {
	s.mu.Lock()
	s.message = msg
	s.mu.Unlock()
}

// Stop clears the spinner line and restores the cursor. Calling Stop on a
// spinner that is not running is a no-op.
func (s *Spinner) Stop() {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done

	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprint(s.w, "\r\033[K\033[?25h")
	if s.StopMsg != "" {
		fmt.Fprint(s.w, s.StopMsg)
	}
}
