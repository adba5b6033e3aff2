package output

import (
	"bytes"
	"fmt"
	"text/tabwriter"
)

// PlainFormatter writes one tab-aligned row per set member, without colors.
type PlainFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *PlainFormatter) Format(w *bytes.Buffer, r *Result) error {
	tw := tabwriter.NewWriter(w, 0, 0, 1, ' ', 0)

	if _, err := fmt.Fprintln(tw, "SET\tACTION\tSCORE\tSIZE\tDIMENSIONS\tPATH"); err != nil {
		return err
	}
	for _, set := range buildView(r).Sets {
		for _, m := range set.Members {
			action := string(m.Action)
			if set.Skipped {
				action = "skip"
			}
			_, err := fmt.Fprintf(tw, "%s\t%s\t%.3f\t%s\t%dx%d\t%s\n",
				shortID(set.ID), action, m.Score, m.SizeHuman, m.Width, m.Height, m.Path)
			if err != nil {
				return err
			}
		}
	}
	return tw.Flush()
}

// shortID truncates a set ID to its first UUID group.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	Register("plain", func() Formatter {
		return &PlainFormatter{}
	})
}

// Ensure PlainFormatter implements Formatter.
var _ Formatter = (*PlainFormatter)(nil)
