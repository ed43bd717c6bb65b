// Package docwriter renders a completed job's transcript into a document.
// The document writer itself is an out-of-scope external collaborator;
// this package provides only the minimal default adapter satisfying the
// interface the spec calls for, a plain Markdown render.
package docwriter

import (
	"fmt"
	"strings"
	"time"

	"github.com/forayproject/bout/internal/format"
	"github.com/forayproject/bout/internal/job"
)

// Writer renders a Job's merged transcript into a document body.
type Writer interface {
	Write(j job.Job) (string, error)
}

// Markdown is the default Writer: a title, then one timestamp-prefixed
// paragraph per segment, with an optional speaker prefix when present.
type Markdown struct{}

// Write renders j.Segments (falling back to j.TranscriptionText when no
// segments are present) as a Markdown document.
func (Markdown) Write(j job.Job) (string, error) {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", j.VideoName)

	if len(j.Segments) == 0 {
		b.WriteString(strings.TrimSpace(j.TranscriptionText))
		b.WriteByte('\n')
		return b.String(), nil
	}

	for _, seg := range j.Segments {
		ts := format.Duration(time.Duration(seg.Start * float64(time.Second)))
		if seg.Speaker != "" {
			fmt.Fprintf(&b, "**[%s] %s:** %s\n\n", ts, seg.Speaker, strings.TrimSpace(seg.Text))
		} else {
			fmt.Fprintf(&b, "**[%s]** %s\n\n", ts, strings.TrimSpace(seg.Text))
		}
	}

	return strings.TrimRight(b.String(), "\n") + "\n", nil
}
