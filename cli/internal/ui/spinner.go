package ui

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
)

// SimpleSpinner draws a single-line spinner until stopped. It is meant for
// short blocking steps outside the TUI, such as reaching the rendezvous.
type SimpleSpinner struct {
	out      io.Writer
	spinner  spinner.Spinner
	interval time.Duration

	mu       sync.Mutex
	message  string
	started  bool
	done     chan struct{}
	finished chan struct{}
	stopOnce sync.Once
}

func newSpinner(s spinner.Spinner, interval time.Duration, message string) *SimpleSpinner {
	return &SimpleSpinner{
		out:      os.Stderr,
		spinner:  s,
		interval: interval,
		message:  message,
		done:     make(chan struct{}),
		finished: make(chan struct{}),
	}
}

// NewConnectionSpinner creates a spinner for network operations (Globe style)
func NewConnectionSpinner(message string) *SimpleSpinner {
	return newSpinner(spinner.Globe, 180*time.Millisecond, message)
}

// NewWaitingSpinner creates a spinner for waiting on the server (Points style)
func NewWaitingSpinner(message string) *SimpleSpinner {
	return newSpinner(spinner.Points, 100*time.Millisecond, message)
}

func (s *SimpleSpinner) Start() {
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()

	go func() {
		defer close(s.finished)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		frames := s.spinner.Frames
		for i := 0; ; i++ {
			s.mu.Lock()
			msg := s.message
			s.mu.Unlock()
			fmt.Fprintf(s.out, "\r%s %s", SpinnerStyle.Render(frames[i%len(frames)]), msg)

			select {
			case <-s.done:
				return
			case <-ticker.C:
			}
		}
	}()
}

func (s *SimpleSpinner) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		s.mu.Lock()
		started := s.started
		s.mu.Unlock()
		if !started {
			return
		}
		<-s.finished
		fmt.Fprint(s.out, "\r\033[K") // Clear the line
	})
}

func (s *SimpleSpinner) Success(message string) {
	s.Stop()
	fmt.Fprintf(s.out, "%s %s\n", SuccessStyle.Render(IconSuccess), message)
}

func (s *SimpleSpinner) Error(message string) {
	s.Stop()
	fmt.Fprintf(s.out, "%s %s\n", ErrorStyle.Render(IconError), message)
}

func (s *SimpleSpinner) UpdateMessage(message string) {
	s.mu.Lock()
	s.message = message
	s.mu.Unlock()
}
