package query

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/willibrandon/faultscope/internal/match"
)

// ErrInvalidRequest is returned for request fields outside their allowed range.
var ErrInvalidRequest = errors.New("invalid query request")

// Method selects where matching happens.
type Method string

const (
	// MethodAuto picks local or remote from the total size of the candidates.
	MethodAuto Method = "auto"
	// MethodLocal downloads the files and searches them in process.
	MethodLocal Method = "local"
	// MethodRemote runs a grep pipeline on the log host.
	MethodRemote Method = "remote"
)

// ParseMethod parses a method name. The empty string defaults to auto.
func ParseMethod(s string) (Method, error) {
	switch Method(strings.ToLower(strings.TrimSpace(s))) {
	case "", MethodAuto:
		return MethodAuto, nil
	case MethodLocal:
		return MethodLocal, nil
	case MethodRemote:
		return MethodRemote, nil
	default:
		return "", fmt.Errorf("%w: query method %q (must be auto, local or remote)", ErrInvalidRequest, s)
	}
}

// OutputFormat selects the result representations produced.
type OutputFormat string

const (
	FormatJSON OutputFormat = "json"
	FormatText OutputFormat = "text"
	FormatBoth OutputFormat = "both"
)

// ParseOutputFormat parses an output format. The empty string defaults to both.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatBoth:
		return FormatBoth, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatText:
		return FormatText, nil
	default:
		return "", fmt.Errorf("%w: output format %q (must be json, text or both)", ErrInvalidRequest, s)
	}
}

// WantsText reports whether the text rendering is produced.
func (f OutputFormat) WantsText() bool {
	return f == FormatText || f == FormatBoth
}

// Request describes one log query.
type Request struct {
	RemotePath     string       `json:"remote_path"`
	Keywords       []string     `json:"keywords"`
	Logic          match.Logic  `json:"logic"`
	FuzzyMatch     bool         `json:"fuzzy_match"`
	ContextLines   int          `json:"context_lines"`
	ExtractPattern string       `json:"extract_pattern,omitempty"`
	MaxResults     int          `json:"max_results"`
	Method         Method       `json:"query_method"`
	OutputFormat   OutputFormat `json:"output_format"`
}

// NewRequest returns a request with the default settings: OR logic,
// case-insensitive matching, 100 results, automatic method, both outputs.
func NewRequest(remotePath string, keywords ...string) Request {
	return Request{
		RemotePath:   remotePath,
		Keywords:     keywords,
		Logic:        match.LogicOR,
		FuzzyMatch:   true,
		MaxResults:   DefaultMaxResults,
		Method:       MethodAuto,
		OutputFormat: FormatBoth,
	}
}

// Statistics describes how a query ran.
type Statistics struct {
	// TotalMatches is the number of matches returned.
	TotalMatches    int    `json:"total_matches"`
	MethodUsed      Method `json:"method_used"`
	FilesSearched   int    `json:"files_searched"`
	BytesConsidered int64  `json:"bytes_considered"`
	// Truncated is set when more matches existed than MaxResults.
	Truncated  bool          `json:"truncated"`
	Duration   time.Duration `json:"-"`
	DurationMS int64         `json:"duration_ms"`
	QueriedAt  time.Time     `json:"queried_at"`
}

// Result is the answer to a query.
type Result struct {
	ID         string         `json:"id"`
	Params     Request        `json:"query_params"`
	Matches    []match.Record `json:"matches"`
	Statistics Statistics     `json:"statistics"`
	Text       string         `json:"text,omitempty"`
}

// plan is a validated request with its compiled matchers.
type plan struct {
	req       Request
	pred      *match.Predicate
	extractor *match.Extractor
	// unbounded collects every match; MaxResults is then not applied.
	unbounded bool
}

// limit is the number of matches a search collects before stopping, one
// more than MaxResults so truncation can be detected. Zero means no limit.
func (p *plan) limit() int {
	if p.unbounded {
		return 0
	}
	return p.req.MaxResults + 1
}

// prepare validates req against the limits and fills in defaults. It does
// no I/O.
func (e *Engine) prepare(req Request) (*plan, error) {
	keywords := make([]string, 0, len(req.Keywords))
	for _, kw := range req.Keywords {
		if kw != "" {
			keywords = append(keywords, kw)
		}
	}
	if len(keywords) == 0 {
		return nil, fmt.Errorf("%w: at least one keyword is required", ErrInvalidRequest)
	}
	req.Keywords = keywords

	logic, err := match.ParseLogic(string(req.Logic))
	if err != nil {
		return nil, err
	}
	req.Logic = logic

	if req.MaxResults == 0 {
		req.MaxResults = e.opts.DefaultMaxResults
	}
	if req.MaxResults < 1 || req.MaxResults > e.opts.MaxResultsLimit {
		return nil, fmt.Errorf("%w: max results %d out of range 1..%d", ErrInvalidRequest, req.MaxResults, e.opts.MaxResultsLimit)
	}

	if req.ContextLines < 0 || req.ContextLines > e.opts.MaxContextLines {
		return nil, fmt.Errorf("%w: context lines %d out of range 0..%d", ErrInvalidRequest, req.ContextLines, e.opts.MaxContextLines)
	}

	if req.Method, err = ParseMethod(string(req.Method)); err != nil {
		return nil, err
	}
	if req.OutputFormat, err = ParseOutputFormat(string(req.OutputFormat)); err != nil {
		return nil, err
	}

	pred, err := match.NewPredicate(req.Keywords, req.Logic, req.FuzzyMatch)
	if err != nil {
		return nil, err
	}

	p := &plan{req: req, pred: pred}
	if req.ExtractPattern != "" {
		if p.extractor, err = match.CompileExtractor(req.ExtractPattern); err != nil {
			return nil, err
		}
	}
	return p, nil
}
