package report

import (
	"bytes"
	"fmt"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	m.Run()
}

func TestFormatBytes(t *testing.T) {
	cases := map[int64]string{
		0:               "0 bytes",
		512:             "512 bytes",
		2048:            "2.00 KB",
		5 * 1024 * 1024: "5.00 MB",
		3 << 30:         "3.00 GB",
	}
	for in, want := range cases {
		assert.Equal(t, want, formatBytes(in), "formatBytes(%d)", in)
	}
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "4s", formatDuration(4*time.Second))
	assert.Equal(t, "2m 5s", formatDuration(125*time.Second))
	assert.Equal(t, "1h 0m 1s", formatDuration(time.Hour+time.Second))
	assert.Equal(t, "1s", formatDuration(1400*time.Millisecond))
}

func TestPrintSuccess(t *testing.T) {
	s := New()
	s.IncrementSurfaces()
	s.IncrementAttempts()
	s.IncrementAttempts()
	s.IncrementRejected()
	s.AddError("price-list/semantic", "export control not found")
	s.Succeed("out/inventory.csv", "price-list", "free_text", "file_download", 2048)

	var buf bytes.Buffer
	s.Print(&buf)
	out := buf.String()

	assert.Contains(t, out, "EXPORT REPORT")
	assert.Contains(t, out, "exported")
	assert.Contains(t, out, "out/inventory.csv")
	assert.Contains(t, out, "2.00 KB")
	assert.Contains(t, out, "free_text on price-list")
	assert.Contains(t, out, "1 payloads rejected")
	assert.Contains(t, out, "- export control not found (price-list/semantic)")
}

func TestPrintFailureTruncatesErrors(t *testing.T) {
	s := New()
	for i := 0; i < maxErrors+3; i++ {
		s.AddError("", fmt.Sprintf("failure %d", i))
	}

	var buf bytes.Buffer
	s.Print(&buf)
	out := buf.String()

	assert.Contains(t, out, "no export")
	assert.Contains(t, out, "Errors (8):")
	assert.Contains(t, out, "- failure 4")
	assert.NotContains(t, out, "- failure 5")
	assert.Contains(t, out, "... and 3 more errors")
}

func TestFinishKeepsFirstEndTime(t *testing.T) {
	s := New()
	s.Finish()
	end := s.EndTime
	time.Sleep(5 * time.Millisecond)
	s.Finish()
	assert.Equal(t, end, s.EndTime)
	assert.Equal(t, end.Sub(s.StartTime), s.Duration())
}

func TestSummary(t *testing.T) {
	s := New()
	s.IncrementSurfaces()
	s.IncrementAttempts()
	s.Finish()
	assert.Contains(t, s.Summary(), "no export: 1 surfaces, 1 attempts, 0 rejected, 0 errors in")

	s.Succeed("out/inventory.csv", "items", "semantic", "popup_document", 100)
	assert.Contains(t, s.Summary(), "exported 100 bytes via semantic/popup_document")
}
