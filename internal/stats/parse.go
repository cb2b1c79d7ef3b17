package stats

import (
	"regexp"
	"strconv"
	"strings"
)

// Sample holds the signals read from one log line.
type Sample struct {
	Timestamp string
	// Notify is the fu_st_n notification bit, nil when absent.
	Notify *int64
	// Status is the fu_st status register, nil when absent.
	Status *int64
}

var (
	notifyRe = regexp.MustCompile(`(?i)\bfu_st_n\s*[:=]+\s*(0x[0-9a-f]+|\d+)`)
	statusRe = regexp.MustCompile(`(?i)\bfu_st\s*[:=]+\s*(0x[0-9a-f]+|\d+)`)

	timestampRes = []*regexp.Regexp{
		regexp.MustCompile(`\[\d{8}_\d{6}\]`),
		regexp.MustCompile(`\d{4}-\d{2}-\d{2}[ T]\d{2}:\d{2}:\d{2}(?:[.,]\d+)?`),
		regexp.MustCompile(`\d{4}/\d{2}/\d{2} \d{2}:\d{2}:\d{2}(?:\.\d+)?`),
	}
)

// ParseLine reads the timestamp, fu_st_n and fu_st of a line.
func ParseLine(line string) Sample {
	return Sample{
		Timestamp: Timestamp(line),
		Notify:    field(notifyRe, line),
		Status:    field(statusRe, line),
	}
}

// Timestamp returns the first timestamp found in line, verbatim, or "".
// The bracketed [YYYYMMDD_hhmmss] form keeps its brackets.
func Timestamp(line string) string {
	for _, re := range timestampRes {
		if ts := re.FindString(line); ts != "" {
			return ts
		}
	}
	return ""
}

// ParseValue parses a register value written as 0x-prefixed hex or decimal.
func ParseValue(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	var (
		v   int64
		err error
	)
	if len(s) > 2 && strings.EqualFold(s[:2], "0x") {
		v, err = strconv.ParseInt(s[2:], 16, 64)
	} else {
		v, err = strconv.ParseInt(s, 10, 64)
	}
	if err != nil {
		return 0, false
	}
	return v, true
}

func field(re *regexp.Regexp, line string) *int64 {
	m := re.FindStringSubmatch(line)
	if m == nil {
		return nil
	}
	v, ok := ParseValue(m[1])
	if !ok {
		return nil
	}
	return &v
}
