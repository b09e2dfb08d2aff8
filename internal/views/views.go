// Package views renders the project list, tree, kanban, lock monitor and
// task detail screens for the terminal.
package views

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"

	"chorus/internal/tracker"
)

// RetryHint follows every inline load error. Nothing is retried automatically.
const RetryHint = "Run the command again to retry."

var (
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	titleStyle = lipgloss.NewStyle().Bold(true)
)

// View is a controller bound to one tracker and one output.
type View struct {
	tr   *tracker.Tracker
	out  io.Writer
	now  func() time.Time
	json bool
}

type Option func(*View)

// WithJSON switches tabular output to indented JSON.
func WithJSON(on bool) Option { return func(v *View) { v.json = on } }

// WithClock overrides the clock used for lock countdowns.
func WithClock(now func() time.Time) Option { return func(v *View) { v.now = now } }

func New(tr *tracker.Tracker, out io.Writer, opts ...Option) *View {
	v := &View{tr: tr, out: out, now: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func (v *View) Tracker() *tracker.Tracker { return v.tr }

func (v *View) printJSON(val any) error {
	enc := json.NewEncoder(v.out)
	enc.SetIndent("", "  ")
	return enc.Encode(val)
}

// failed writes the inline error for a view that could not load and
// returns the error for the caller's exit status.
func (v *View) failed(what string, err error) error {
	fmt.Fprintln(v.out, errorStyle.Render("Failed to load "+what))
	fmt.Fprintln(v.out, dimStyle.Render(RetryHint))
	return fmt.Errorf("load %s: %w", what, err)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
