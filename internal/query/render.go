package query

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/willibrandon/faultscope/internal/match"
)

const ruleWidth = 80

// RenderText formats res for a terminal or a plain-text report.
func RenderText(res *Result) string {
	var b strings.Builder
	heavy := strings.Repeat("=", ruleWidth)

	b.WriteString(heavy + "\n")
	b.WriteString("Log query result\n")
	b.WriteString(heavy + "\n\n")

	q := res.Params
	b.WriteString("Query parameters:\n")
	fmt.Fprintf(&b, "  Remote path:  %s\n", orNA(q.RemotePath))
	fmt.Fprintf(&b, "  Keywords:     %s\n", strings.Join(q.Keywords, ", "))
	fmt.Fprintf(&b, "  Logic:        %s\n", q.Logic)
	fmt.Fprintf(&b, "  Fuzzy match:  %t\n", q.FuzzyMatch)
	if q.ContextLines > 0 {
		fmt.Fprintf(&b, "  Context:      %d lines\n", q.ContextLines)
	}
	if q.ExtractPattern != "" {
		fmt.Fprintf(&b, "  Extract:      %s\n", q.ExtractPattern)
	}
	b.WriteString("\n")

	s := res.Statistics
	fmt.Fprintf(&b, "Method: %s, %s files, %s, %s\n\n",
		s.MethodUsed,
		humanize.Comma(int64(s.FilesSearched)),
		humanize.IBytes(uint64(max(s.BytesConsidered, 0))),
		s.Duration.Round(time.Millisecond),
	)

	header := fmt.Sprintf("Matches (%s)", humanize.Comma(int64(s.TotalMatches)))
	if s.Truncated {
		header += fmt.Sprintf(", truncated to %d", q.MaxResults)
	}
	b.WriteString(header + ":\n")
	b.WriteString(strings.Repeat("-", ruleWidth) + "\n")

	for i, m := range res.Matches {
		fmt.Fprintf(&b, "\n[%d] %s:%d\n", i+1, m.FilePath, m.LineNumber)
		fmt.Fprintf(&b, "Content: %s\n", m.Content)
		if m.Context != nil {
			if len(m.Context.Before) > 0 {
				fmt.Fprintf(&b, "Context (%d before):\n", len(m.Context.Before))
				for _, line := range m.Context.Before {
					b.WriteString("  " + line + "\n")
				}
			}
			if len(m.Context.After) > 0 {
				fmt.Fprintf(&b, "Context (%d after):\n", len(m.Context.After))
				for _, line := range m.Context.After {
					b.WriteString("  " + line + "\n")
				}
			}
		}
		for _, x := range m.Extracted {
			if len(x.Groups) > 0 {
				fmt.Fprintf(&b, "Extracted: %s %q\n", x.FullMatch, x.Groups)
			} else {
				fmt.Fprintf(&b, "Extracted: %s\n", x.FullMatch)
			}
		}
	}

	b.WriteString("\n" + heavy)
	return b.String()
}

// RenderScanText formats a SetFunc scan report.
func RenderScanText(r *ScanReport) string {
	var b strings.Builder
	heavy := strings.Repeat("=", ruleWidth)

	b.WriteString(heavy + "\n")
	b.WriteString("SetFunc fault scan\n")
	b.WriteString(heavy + "\n\n")

	fmt.Fprintf(&b, "Base path:    %s\n", orNA(r.BasePath))
	if r.FilePath == "" {
		b.WriteString("No snapshot log found.\n")
		b.WriteString("\n" + heavy)
		return b.String()
	}
	fmt.Fprintf(&b, "Snapshot:     %s\n", r.SnapshotDir)
	fmt.Fprintf(&b, "Log file:     %s\n", r.FilePath)
	fmt.Fprintf(&b, "Lines:        %d matched, %d kept\n", r.TotalMatches, len(r.Matches))
	if r.Truncated {
		b.WriteString("Warning:      the search stopped at the result limit\n")
	}
	b.WriteString("\n")

	b.WriteString("Lines:\n")
	b.WriteString(strings.Repeat("-", ruleWidth) + "\n")
	for i, m := range r.Matches {
		fmt.Fprintf(&b, "[%d] line %d fault %s fu_st=0x%X\n", i+1, m.LineNumber, orNA(m.FaultID), m.Status)
		b.WriteString("    " + m.Content + "\n")
	}

	if len(r.Faults) > 0 {
		b.WriteString("\nFaults:\n")
		b.WriteString(strings.Repeat("-", ruleWidth) + "\n")
	}
	for _, f := range r.Faults {
		st := f.Statistics
		fmt.Fprintf(&b, "%s: %d occurrence(s), first %s, last %s, final status %s\n",
			f.FaultID, st.OccurrenceCount, deref(st.FirstOccurrence), deref(st.LastOccurrence), statusText(st.FinalStatus))
		if f.Guide != nil {
			if f.Guide.Name != "" {
				fmt.Fprintf(&b, "  %s", f.Guide.Name)
				if f.Guide.Severity != "" {
					fmt.Fprintf(&b, " (%s)", f.Guide.Severity)
				}
				b.WriteString("\n")
			}
			for _, line := range match.SplitLines(f.Guide.Guidance) {
				b.WriteString("  " + line + "\n")
			}
		}
	}

	b.WriteString("\n" + heavy)
	return b.String()
}

func deref(s *string) string {
	if s == nil {
		return "N/A"
	}
	return *s
}

func statusText(v *int64) string {
	if v == nil {
		return "N/A"
	}
	return fmt.Sprintf("0x%X", *v)
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
