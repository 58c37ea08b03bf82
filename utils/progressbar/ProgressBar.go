// Package progressbar implements functionality of printing a progress
// bar to the terminal window
package progressbar

import (
	"fmt"
	"strings"
	"time"
)

// ProgressBar prints training progress to the terminal. Progress is
// measured as the number of Increment calls out of an expected
// maximum.
type ProgressBar struct {
	width           int
	maxProgress     int
	currentProgress int
	start           time.Time
	closed          bool
}

// New returns a new progress bar that is width characters wide and
// reaches 100% after max Increment() calls.
func New(width, max int) *ProgressBar {
	return &ProgressBar{
		width:       width,
		maxProgress: max,
		start:       time.Now(),
	}
}

// Increment increments the internal progress counter and redraws the
// bar. Each time an iteration is performed, Increment should be
// called.
func (p *ProgressBar) Increment() {
	if p.closed || p.currentProgress >= p.maxProgress {
		return
	}
	p.currentProgress++
	p.display()
}

// Close closes the progress bar so that it will no longer display to
// the screen.
func (p *ProgressBar) Close() {
	if p.closed {
		return
	}
	p.closed = true
	fmt.Println() // Jump to next line after printed pbar
}

// display redraws the progress bar in place.
func (p *ProgressBar) display() {
	progress := float64(p.currentProgress) / float64(p.maxProgress)
	filled := int(progress * float64(p.width))

	bar := strings.Repeat("=", filled) +
		strings.Repeat(" ", p.width-filled)
	elapsed := time.Since(p.start).Round(time.Second)

	fmt.Printf("\r[%s] %3.0f%% (%v/%v) %v", bar, progress*100,
		p.currentProgress, p.maxProgress, elapsed)
}
