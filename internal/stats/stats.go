// Package stats derives fault occurrence statistics from log lines.
//
// Log producers write one line per state change. A fault is raised with
// fu_st_n set and later cleared with fu_st_n back to 0, so the number of
// distinct occurrences is the number of clearing edges, not the number of
// lines that mention the fault.
package stats

import (
	"github.com/willibrandon/faultscope/internal/faultid"
	"github.com/willibrandon/faultscope/internal/match"
)

// Record is the occurrence summary for one fault id. Absent values encode
// as JSON null.
type Record struct {
	FaultID         string  `json:"fault_id"`
	FirstOccurrence *string `json:"first_occurrence"`
	LastOccurrence  *string `json:"last_occurrence"`
	OccurrenceCount int     `json:"occurrence_count"`
	FinalStatus     *int64  `json:"final_status"`
	MatchedLines    int     `json:"matched_lines"`
}

// Tracker computes Records using a fault matcher.
type Tracker struct {
	matcher *match.FaultMatcher
}

// NewTracker returns a tracker. A nil matcher uses the built-in syntaxes.
func NewTracker(m *match.FaultMatcher) *Tracker {
	if m == nil {
		m = match.NewFaultMatcher()
	}
	return &Tracker{matcher: m}
}

// Extract computes the statistics of rawID over lines, which must be in
// chronological order. An unparseable id fails with faultid.ErrInvalidFormat
// before any line is examined.
func (t *Tracker) Extract(lines []string, rawID string) (Record, error) {
	id, err := faultid.Normalize(rawID)
	if err != nil {
		return Record{}, err
	}

	var acc accumulator
	for _, line := range lines {
		if _, ok := t.matcher.Match(line, id); !ok {
			continue
		}
		acc = acc.step(ParseLine(line))
	}

	return acc.record(id), nil
}

// ExtractText is Extract over a block of text split on line terminators.
func (t *Tracker) ExtractText(text, rawID string) (Record, error) {
	return t.Extract(match.SplitLines(text), rawID)
}

var defaultTracker = NewTracker(nil)

// Extract computes statistics using the built-in fault-id syntaxes.
func Extract(lines []string, rawID string) (Record, error) {
	return defaultTracker.Extract(lines, rawID)
}

// ExtractText computes statistics over text using the built-in syntaxes.
func ExtractText(text, rawID string) (Record, error) {
	return defaultTracker.ExtractText(text, rawID)
}

// accumulator is the fold state over the matching lines.
type accumulator struct {
	matched  int
	edges    int
	anySet   bool
	prevSet  bool
	firstSet *string
	first    *string
	last     *string
	status   *int64
}

func (a accumulator) step(s Sample) accumulator {
	a.matched++

	if s.Timestamp != "" {
		ts := s.Timestamp
		if a.first == nil {
			a.first = &ts
		}
		a.last = &ts
	}

	if s.Notify != nil {
		set := *s.Notify != 0
		if set {
			if a.firstSet == nil && s.Timestamp != "" {
				ts := s.Timestamp
				a.firstSet = &ts
			}
			a.anySet = true
		} else if a.prevSet {
			a.edges++
		}
		a.prevSet = set
	}

	if s.Status != nil {
		v := *s.Status
		a.status = &v
	}

	return a
}

func (a accumulator) record(id faultid.ID) Record {
	count := a.edges
	if count == 0 && a.anySet {
		count = 1
	}

	first := a.firstSet
	if first == nil {
		first = a.first
	}

	return Record{
		FaultID:         id.Canonical,
		FirstOccurrence: first,
		LastOccurrence:  a.last,
		OccurrenceCount: count,
		FinalStatus:     a.status,
		MatchedLines:    a.matched,
	}
}
