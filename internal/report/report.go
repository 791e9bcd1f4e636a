// Package report provides the final run report.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
)

var (
	cyan   = color.New(color.FgCyan).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

// ErrorEntry is one recoverable failure seen during the run.
type ErrorEntry struct {
	Timestamp time.Time
	Where     string // surface/strategy the failure belongs to
	Message   string
}

// Stats holds everything collected during a run.
type Stats struct {
	StartTime     time.Time
	EndTime       time.Time
	SurfacesTried int
	Attempts      int
	Rejected      int
	Errors        []ErrorEntry

	// Set on success.
	OutputPath string
	Surface    string
	Strategy   string
	Channel    string
	Size       int64
}

// New creates a new Stats instance with StartTime set to now.
func New() *Stats {
	return &Stats{
		StartTime: time.Now(),
		Errors:    make([]ErrorEntry, 0),
	}
}

// AddError records a recoverable failure.
func (s *Stats) AddError(where, message string) {
	s.Errors = append(s.Errors, ErrorEntry{
		Timestamp: time.Now(),
		Where:     where,
		Message:   message,
	})
}

func (s *Stats) IncrementSurfaces() { s.SurfacesTried++ }

func (s *Stats) IncrementAttempts() { s.Attempts++ }

func (s *Stats) IncrementRejected() { s.Rejected++ }

// Succeed records the written artifact.
func (s *Stats) Succeed(path, surface, strategy, channel string, size int64) {
	s.OutputPath = path
	s.Surface = surface
	s.Strategy = strategy
	s.Channel = channel
	s.Size = size
}

// Succeeded reports whether an export was written.
func (s *Stats) Succeeded() bool { return s.OutputPath != "" }

// Finish marks the end of the run. Later calls keep the first end time.
func (s *Stats) Finish() {
	if s.EndTime.IsZero() {
		s.EndTime = time.Now()
	}
}

// Duration returns the total run duration.
func (s *Stats) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return time.Since(s.StartTime)
	}
	return s.EndTime.Sub(s.StartTime)
}

func formatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d bytes", bytes)
	}
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}

const (
	contentWidth = 56
	labelWidth   = 14
	maxErrors    = 5
)

// Print writes the boxed final report to w.
func (s *Stats) Print(w io.Writer) {
	s.Finish()

	fmt.Fprintln(w)
	rule(w, "=")
	title := "EXPORT REPORT"
	fmt.Fprintf(w, "%s%s\n", strings.Repeat(" ", (contentWidth-len(title))/2), bold(title))
	rule(w, "-")

	row(w, "Duration", formatDuration(s.Duration()))
	row(w, "Surfaces", fmt.Sprintf("%d tried", s.SurfacesTried))
	attempts := fmt.Sprintf("%d", s.Attempts)
	if s.Rejected > 0 {
		attempts += yellow(fmt.Sprintf(", %d payloads rejected", s.Rejected))
	}
	row(w, "Attempts", attempts)

	if s.Succeeded() {
		row(w, "Result", green("exported"))
		row(w, "Output", s.OutputPath)
		row(w, "Size", formatBytes(s.Size))
		row(w, "Found via", fmt.Sprintf("%s on %s", s.Strategy, s.Surface))
		row(w, "Delivered by", s.Channel)
	} else {
		row(w, "Result", red("no export"))
	}

	rule(w, "-")
	if len(s.Errors) == 0 {
		fmt.Fprintf(w, "  %s\n", green("No errors occurred"))
	} else {
		fmt.Fprintf(w, "  %s\n", red(fmt.Sprintf("Errors (%d):", len(s.Errors))))
		for i, e := range s.Errors {
			if i >= maxErrors {
				fmt.Fprintf(w, "    %s\n", red(fmt.Sprintf("... and %d more errors", len(s.Errors)-maxErrors)))
				break
			}
			line := "- " + e.Message
			if e.Where != "" {
				line += " (" + e.Where + ")"
			}
			fmt.Fprintf(w, "    %s\n", red(line))
		}
	}
	rule(w, "=")
	fmt.Fprintln(w)
}

func rule(w io.Writer, ch string) {
	fmt.Fprintln(w, cyan(strings.Repeat(ch, contentWidth)))
}

func row(w io.Writer, label, value string) {
	fmt.Fprintf(w, "  %-*s %s\n", labelWidth, label, value)
}

// Summary returns a brief one-line summary of the stats.
func (s *Stats) Summary() string {
	result := "no export"
	if s.Succeeded() {
		result = fmt.Sprintf("exported %s via %s/%s", formatBytes(s.Size), s.Strategy, s.Channel)
	}
	return fmt.Sprintf(
		"%s: %d surfaces, %d attempts, %d rejected, %d errors in %s",
		result,
		s.SurfacesTried,
		s.Attempts,
		s.Rejected,
		len(s.Errors),
		formatDuration(s.Duration()),
	)
}
