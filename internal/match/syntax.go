package match

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/willibrandon/faultscope/internal/faultid"
)

// Syntax is one way a fault id is written into a log line.
type Syntax interface {
	// Name identifies the syntax in results and logs.
	Name() string
	// Tokens returns the candidate id tokens found in line, in order.
	Tokens(line string) []string
}

var (
	tupleRe    = regexp.MustCompile(`(?i)\(?([^()=]*\bfa_id\b[^()=]*)\)\s*=\s*\(([^()]*)\)`)
	keyValueRe = regexp.MustCompile(`(?i)\bfa_id\s*[:=]+\s*(0x[0-9a-f]+|\d+)`)
	labeledRe  = regexp.MustCompile(`(?i)\bfault[ _]?id\s*[:=]+\s*(0x[0-9a-f]+|\d+)`)
	faultsRe   = regexp.MustCompile(`(?i)\bfaults\s*[:=]\s*\(([^()]*)\)`)
	splitRe    = regexp.MustCompile(`[,\s]+`)
)

// tupleSyntax handles "(e_id, fa_id, fa_st)=( 3, 0x165, 1)".
type tupleSyntax struct{}

func (tupleSyntax) Name() string { return "tuple" }

func (tupleSyntax) Tokens(line string) []string {
	var tokens []string
	for _, m := range tupleRe.FindAllStringSubmatch(line, -1) {
		names := strings.Split(m[1], ",")
		values := fields(m[2])

		if len(names) == len(values) {
			for i, name := range names {
				if strings.EqualFold(strings.TrimSpace(name), "fa_id") {
					tokens = append(tokens, values[i])
				}
			}
			continue
		}
		// Truncated or reformatted header; any value may be the id.
		tokens = append(tokens, values...)
	}
	return tokens
}

type regexSyntax struct {
	name string
	re   *regexp.Regexp
	list bool
}

func (s regexSyntax) Name() string { return s.name }

func (s regexSyntax) Tokens(line string) []string {
	var tokens []string
	for _, m := range s.re.FindAllStringSubmatch(line, -1) {
		if len(m) < 2 {
			tokens = append(tokens, strings.TrimSpace(m[0]))
			continue
		}
		for _, g := range m[1:] {
			if g == "" {
				continue
			}
			if s.list {
				tokens = append(tokens, fields(g)...)
			} else {
				tokens = append(tokens, strings.TrimSpace(g))
			}
		}
	}
	return tokens
}

// BuiltinSyntaxes returns the built-in syntaxes in priority order.
func BuiltinSyntaxes() []Syntax {
	return []Syntax{
		tupleSyntax{},
		regexSyntax{name: "key_value", re: keyValueRe},
		regexSyntax{name: "labeled", re: labeledRe},
		regexSyntax{name: "fault_list", re: faultsRe, list: true},
	}
}

// SyntaxDef is an extra syntax loaded from a patterns file.
type SyntaxDef struct {
	Name        string `yaml:"name"`
	Regex       string `yaml:"regex"`
	List        bool   `yaml:"list"`
	Description string `yaml:"description"`
}

// SyntaxFile is the layout of a patterns file.
type SyntaxFile struct {
	Syntaxes []SyntaxDef `yaml:"syntaxes"`
}

// LoadSyntaxes reads extra fault-id syntaxes from a YAML file. Each regex is
// compiled case-insensitively; its capture groups hold the id tokens.
func LoadSyntaxes(path string) ([]Syntax, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading patterns file: %w", err)
	}

	var file SyntaxFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing patterns YAML: %w", err)
	}

	syntaxes := make([]Syntax, 0, len(file.Syntaxes))
	for _, def := range file.Syntaxes {
		if def.Name == "" {
			return nil, fmt.Errorf("pattern without a name in %s", path)
		}
		re, err := regexp.Compile("(?i)" + def.Regex)
		if err != nil {
			return nil, &PatternError{Pattern: def.Regex, Err: fmt.Errorf("compiling pattern %s: %w", def.Name, err)}
		}
		syntaxes = append(syntaxes, regexSyntax{name: def.Name, re: re, list: def.List})
	}

	return syntaxes, nil
}

// FaultMatcher finds fault ids in log lines using an ordered syntax list.
type FaultMatcher struct {
	syntaxes []Syntax
}

// NewFaultMatcher returns a matcher with the built-in syntaxes followed by
// extra. Extra syntaxes never replace a built-in one.
func NewFaultMatcher(extra ...Syntax) *FaultMatcher {
	syntaxes := BuiltinSyntaxes()
	syntaxes = append(syntaxes, extra...)
	return &FaultMatcher{syntaxes: syntaxes}
}

// Syntaxes returns the syntax names in priority order.
func (m *FaultMatcher) Syntaxes() []string {
	names := make([]string, len(m.syntaxes))
	for i, s := range m.syntaxes {
		names[i] = s.Name()
	}
	return names
}

// Match reports whether line mentions id and names the first syntax that
// found it. Both the canonical and no-zero spellings qualify.
func (m *FaultMatcher) Match(line string, id faultid.ID) (string, bool) {
	for _, s := range m.syntaxes {
		for _, tok := range s.Tokens(line) {
			if id.Matches(tok) {
				return s.Name(), true
			}
		}
	}
	return "", false
}

// Filter returns the lines of lines that mention id, in order.
func (m *FaultMatcher) Filter(lines []string, id faultid.ID) []string {
	var out []string
	for _, line := range lines {
		if _, ok := m.Match(line, id); ok {
			out = append(out, line)
		}
	}
	return out
}

// IDs returns the distinct fault ids written as 0x literals in line, in the
// order they were found.
func (m *FaultMatcher) IDs(line string) []faultid.ID {
	var ids []faultid.ID
	seen := make(map[string]bool)
	for _, s := range m.syntaxes {
		for _, tok := range s.Tokens(line) {
			if len(tok) < 3 || !strings.EqualFold(tok[:2], "0x") {
				continue
			}
			id, err := faultid.Normalize(tok)
			if err != nil || seen[id.Canonical] {
				continue
			}
			seen[id.Canonical] = true
			ids = append(ids, id)
		}
	}
	return ids
}

func fields(s string) []string {
	var out []string
	for _, f := range splitRe.Split(strings.TrimSpace(s), -1) {
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}
