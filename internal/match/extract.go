package match

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalidPattern is returned for an extract pattern that cannot be used.
var ErrInvalidPattern = errors.New("invalid pattern")

// MaxPatternLength bounds the size of a user supplied extract pattern.
const MaxPatternLength = 1000

// PatternError describes a rejected pattern.
type PatternError struct {
	Pattern string
	Err     error
}

func (e *PatternError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid pattern %q: %v", truncate(e.Pattern, 80), e.Err)
	}
	return fmt.Sprintf("invalid pattern %q", truncate(e.Pattern, 80))
}

func (e *PatternError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrInvalidPattern.
func (e *PatternError) Is(target error) bool {
	return target == ErrInvalidPattern
}

// Extraction is one regex match found in a line.
type Extraction struct {
	FullMatch string   `json:"full_match"`
	Groups    []string `json:"groups"`
	Start     int      `json:"start"`
	End       int      `json:"end"`
}

// Extractor runs a compiled extract pattern over matched lines.
type Extractor struct {
	re *regexp.Regexp
}

// CompileExtractor compiles pattern case-insensitively in multi-line mode.
func CompileExtractor(pattern string) (*Extractor, error) {
	if strings.TrimSpace(pattern) == "" {
		return nil, &PatternError{Pattern: pattern, Err: errors.New("pattern is empty")}
	}
	if len(pattern) > MaxPatternLength {
		return nil, &PatternError{Pattern: pattern, Err: fmt.Errorf("pattern longer than %d characters", MaxPatternLength)}
	}

	re, err := regexp.Compile("(?im)" + pattern)
	if err != nil {
		return nil, &PatternError{Pattern: pattern, Err: err}
	}
	return &Extractor{re: re}, nil
}

// Pattern returns the compiled expression.
func (x *Extractor) Pattern() string {
	return x.re.String()
}

// Extract returns every non-overlapping match in line. Unmatched optional
// groups are reported as empty strings.
func (x *Extractor) Extract(line string) []Extraction {
	idx := x.re.FindAllStringSubmatchIndex(line, -1)
	if len(idx) == 0 {
		return nil
	}

	out := make([]Extraction, 0, len(idx))
	for _, loc := range idx {
		ex := Extraction{
			FullMatch: line[loc[0]:loc[1]],
			Groups:    []string{},
			Start:     loc[0],
			End:       loc[1],
		}
		for g := 2; g+1 < len(loc); g += 2 {
			if loc[g] < 0 {
				ex.Groups = append(ex.Groups, "")
				continue
			}
			ex.Groups = append(ex.Groups, line[loc[g]:loc[g+1]])
		}
		out = append(out, ex)
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
