package match

import "strings"

// Context holds the lines around a match.
type Context struct {
	Before []string `json:"before"`
	After  []string `json:"after"`
}

// Record is one matching line.
type Record struct {
	FilePath   string       `json:"file_path"`
	LineNumber int          `json:"line_number"`
	Content    string       `json:"line_content"`
	Syntax     string       `json:"syntax,omitempty"`
	Context    *Context     `json:"context,omitempty"`
	Extracted  []Extraction `json:"extracted_info,omitempty"`
}

// ContextAt returns up to n lines on each side of lines[idx]. The window is
// clipped to the slice bounds, so the first line has no Before and the last
// line has no After.
func ContextAt(lines []string, idx, n int) *Context {
	ctx := &Context{Before: []string{}, After: []string{}}
	if n <= 0 || idx < 0 || idx >= len(lines) {
		return ctx
	}

	start := max(idx-n, 0)
	end := min(idx+n+1, len(lines))

	ctx.Before = append(ctx.Before, lines[start:idx]...)
	ctx.After = append(ctx.After, lines[idx+1:end]...)
	return ctx
}

// SplitLines splits text into lines, accepting \n and \r\n terminators.
// A trailing terminator does not produce an empty final line.
func SplitLines(text string) []string {
	if text == "" {
		return nil
	}
	text = strings.TrimSuffix(text, "\n")
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}
