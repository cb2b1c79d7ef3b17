package main

import (
	"encoding/json"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"
)

var (
	headerFormat   = color.New(color.Bold).SprintFunc()
	dimFormat      = color.New(color.FgHiBlack).SprintFunc()
	locationFormat = color.New(color.FgCyan).SprintFunc()
	keywordFormat  = color.New(color.FgHiYellow, color.Bold).SprintFunc()
	warningFormat  = color.New(color.FgHiYellow).SprintFunc()
	criticalFormat = color.New(color.FgHiRed).SprintFunc()
	healthyFormat  = color.New(color.FgGreen).SprintFunc()
)

func configureColor() {
	if noColor {
		color.NoColor = true
	}
}

// printJSON writes v as indented JSON to stdout.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type span struct{ start, end int }

// highlight wraps every occurrence of a keyword in line with the keyword
// color. Overlapping occurrences are merged.
func highlight(line string, keywords []string, fuzzy bool) string {
	if color.NoColor || len(keywords) == 0 {
		return line
	}

	haystack := line
	if fuzzy {
		haystack = strings.ToLower(line)
	}

	var spans []span
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		needle := kw
		if fuzzy {
			needle = strings.ToLower(kw)
		}
		for from := 0; ; {
			i := strings.Index(haystack[from:], needle)
			if i < 0 {
				break
			}
			start := from + i
			spans = append(spans, span{start, start + len(needle)})
			from = start + len(needle)
		}
	}
	if len(spans) == 0 {
		return line
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	merged := spans[:1]
	for _, s := range spans[1:] {
		last := &merged[len(merged)-1]
		if s.start <= last.end {
			last.end = max(last.end, s.end)
			continue
		}
		merged = append(merged, s)
	}

	var b strings.Builder
	prev := 0
	for _, s := range merged {
		b.WriteString(line[prev:s.start])
		b.WriteString(keywordFormat(line[s.start:s.end]))
		prev = s.end
	}
	b.WriteString(line[prev:])
	return b.String()
}

// statusFormat colors a fu_st value by severity.
func statusFormat(status int64, severe []int64) func(a ...any) string {
	for _, s := range severe {
		if s == status {
			return criticalFormat
		}
	}
	if status == 0 {
		return healthyFormat
	}
	return warningFormat
}

// colorizeQueryText decorates a rendered query result: match locations
// in cyan and keywords highlighted in content and context lines.
func colorizeQueryText(text string, keywords []string, fuzzy bool) string {
	if color.NoColor {
		return text
	}

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, "Content: "):
			lines[i] = "Content: " + highlight(strings.TrimPrefix(line, "Content: "), keywords, fuzzy)
		case strings.HasPrefix(line, "  ") && i > 0 && !strings.Contains(line, ":  "):
			lines[i] = dimFormat(line)
		case strings.HasPrefix(line, "[") && strings.Contains(line, "] "):
			lines[i] = locationFormat(line)
		case strings.HasPrefix(line, "Matches ("), strings.HasPrefix(line, "Log query result"):
			lines[i] = headerFormat(line)
		}
	}
	return strings.Join(lines, "\n")
}

// colorizeScanText decorates a rendered scan report.
func colorizeScanText(text string) string {
	if color.NoColor {
		return text
	}

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		switch {
		case line == "SetFunc fault scan", line == "Lines:", line == "Faults:":
			lines[i] = headerFormat(line)
		case strings.HasPrefix(line, "Warning:"), line == "No snapshot log found.":
			lines[i] = warningFormat(line)
		case strings.HasPrefix(line, "["):
			lines[i] = locationFormat(line)
		case strings.HasPrefix(line, "    "):
			lines[i] = dimFormat(line)
		case strings.HasPrefix(line, "0x") && strings.Contains(line, "occurrence(s)"):
			lines[i] = criticalFormat(line)
		}
	}
	return strings.Join(lines, "\n")
}
