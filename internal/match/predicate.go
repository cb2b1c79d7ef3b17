// Package match decides which log lines answer a query.
//
// The same predicate is used for lines read from a downloaded file and for
// lines returned by a remote grep pipeline, so both query methods accept
// exactly the same lines.
package match

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidLogic is returned for a logic operator other than AND or OR.
var ErrInvalidLogic = errors.New("invalid logic value")

// Logic combines multiple keywords.
type Logic string

const (
	// LogicOR matches lines containing at least one keyword.
	LogicOR Logic = "OR"
	// LogicAND matches lines containing every keyword, in any order.
	LogicAND Logic = "AND"
)

// ParseLogic parses a logic operator. The empty string defaults to OR.
func ParseLogic(s string) (Logic, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "OR":
		return LogicOR, nil
	case "AND":
		return LogicAND, nil
	default:
		return "", fmt.Errorf("%w: %q (must be AND or OR)", ErrInvalidLogic, s)
	}
}

// Predicate is a keyword filter over single lines.
type Predicate struct {
	keywords []string
	logic    Logic
	fuzzy    bool
}

// NewPredicate builds a predicate. Empty keywords are dropped; a predicate
// without keywords matches nothing.
func NewPredicate(keywords []string, logic Logic, fuzzy bool) (*Predicate, error) {
	if logic == "" {
		logic = LogicOR
	}
	if logic != LogicOR && logic != LogicAND {
		return nil, fmt.Errorf("%w: %q (must be AND or OR)", ErrInvalidLogic, string(logic))
	}

	kept := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if fuzzy {
			kw = strings.ToLower(kw)
		}
		kept = append(kept, kw)
	}

	return &Predicate{keywords: kept, logic: logic, fuzzy: fuzzy}, nil
}

// Keywords returns the keywords as compared, lower-cased when fuzzy.
func (p *Predicate) Keywords() []string {
	return p.keywords
}

// Logic returns the combining operator.
func (p *Predicate) Logic() Logic {
	return p.logic
}

// Fuzzy reports whether matching ignores case.
func (p *Predicate) Fuzzy() bool {
	return p.fuzzy
}

// Match reports whether line satisfies the predicate.
func (p *Predicate) Match(line string) bool {
	if len(p.keywords) == 0 {
		return false
	}
	if p.fuzzy {
		line = strings.ToLower(line)
	}

	if p.logic == LogicAND {
		for _, kw := range p.keywords {
			if !strings.Contains(line, kw) {
				return false
			}
		}
		return true
	}

	for _, kw := range p.keywords {
		if strings.Contains(line, kw) {
			return true
		}
	}
	return false
}
