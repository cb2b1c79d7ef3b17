// Package query searches remote log files for keywords and fault ids.
//
// An Engine enumerates the files under a remote path, then either downloads
// them and matches in process (local) or runs a grep pipeline on the log
// host and re-checks its output (remote). Both methods apply the same
// match.Predicate, so they return the same records for the same input.
package query

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/willibrandon/faultscope/internal/cleanup"
	"github.com/willibrandon/faultscope/internal/guide"
	"github.com/willibrandon/faultscope/internal/logger"
	"github.com/willibrandon/faultscope/internal/match"
	"github.com/willibrandon/faultscope/internal/sshconn"
	"github.com/willibrandon/faultscope/internal/stats"
	"github.com/willibrandon/faultscope/internal/storage/sqlite"
)

// Default limits.
const (
	DefaultMaxResults       = 100
	MaxResultsLimit         = 10000
	MaxContextLines         = 50
	FileSizeThreshold int64 = 10 << 20
	GrepTimeout             = 60 * time.Second
)

// DefaultExtensions are the file extensions searched inside a directory.
var DefaultExtensions = []string{".log", ".txt", ".gz", ".zst", ".lz4"}

// Options configures an Engine. Zero fields take their defaults.
type Options struct {
	FileSizeThreshold int64
	GrepTimeout       time.Duration
	MaxContextLines   int
	MaxResultsLimit   int
	DefaultMaxResults int
	Extensions        []string

	// CacheDir receives one directory per local query.
	CacheDir string

	// SnapshotDirPattern is the glob naming snapshot directories for ScanSetFunc.
	SnapshotDirPattern string
	// SeverityStatuses are the fu_st values selected by ScanSetFunc.
	SeverityStatuses []int64
}

// DefaultOptions returns the default engine options.
func DefaultOptions() Options {
	return Options{}.withDefaults()
}

func (o Options) withDefaults() Options {
	if o.FileSizeThreshold <= 0 {
		o.FileSizeThreshold = FileSizeThreshold
	}
	if o.GrepTimeout <= 0 {
		o.GrepTimeout = GrepTimeout
	}
	if o.MaxContextLines <= 0 {
		o.MaxContextLines = MaxContextLines
	}
	if o.MaxResultsLimit <= 0 {
		o.MaxResultsLimit = MaxResultsLimit
	}
	if o.DefaultMaxResults <= 0 {
		o.DefaultMaxResults = min(DefaultMaxResults, o.MaxResultsLimit)
	}
	if len(o.Extensions) == 0 {
		o.Extensions = DefaultExtensions
	}
	if o.CacheDir == "" {
		o.CacheDir = filepath.Join(os.TempDir(), "faultscope")
	}
	if o.SnapshotDirPattern == "" {
		o.SnapshotDirPattern = "snapshot-txtlog-*"
	}
	if len(o.SeverityStatuses) == 0 {
		o.SeverityStatuses = []int64{3, 4}
	}
	return o
}

// Remote runs commands on and copies files from the log host.
// *sshconn.Client implements it.
type Remote interface {
	Execute(ctx context.Context, cmd string, timeout time.Duration) (sshconn.Result, error)
	Download(ctx context.Context, remote, local string, timeout time.Duration) error
}

// History records executed queries.
type History interface {
	Add(ctx context.Context, run sqlite.QueryRun) error
}

// Option configures an Engine.
type Option func(*Engine)

// WithOptions sets the engine limits and paths.
func WithOptions(opts Options) Option {
	return func(e *Engine) {
		e.opts = opts.withDefaults()
	}
}

// WithRegistrar sets where local query directories are registered for cleanup.
func WithRegistrar(r cleanup.Registrar) Option {
	return func(e *Engine) {
		e.registrar = r
	}
}

// WithGuides sets the guide lookup used by ScanSetFunc.
func WithGuides(g guide.Lookup) Option {
	return func(e *Engine) {
		e.guides = g
	}
}

// WithFaultMatcher sets the matcher used to find fault ids in lines.
func WithFaultMatcher(m *match.FaultMatcher) Option {
	return func(e *Engine) {
		e.faults = m
	}
}

// WithHistory records every query in h.
func WithHistory(h History) Option {
	return func(e *Engine) {
		e.history = h
	}
}

// Engine runs queries against one remote host. It is not safe for
// concurrent use.
type Engine struct {
	remote    Remote
	opts      Options
	registrar cleanup.Registrar
	guides    guide.Lookup
	faults    *match.FaultMatcher
	tracker   *stats.Tracker
	history   History
	now       func() time.Time
}

// New returns an engine that reaches the log host through remote.
func New(remote Remote, options ...Option) *Engine {
	e := &Engine{
		remote: remote,
		opts:   DefaultOptions(),
		guides: guide.Empty{},
		now:    time.Now,
	}
	for _, o := range options {
		o(e)
	}
	if e.faults == nil {
		e.faults = match.NewFaultMatcher()
	}
	e.tracker = stats.NewTracker(e.faults)
	return e
}

// Options returns the effective options.
func (e *Engine) Options() Options {
	return e.opts
}

// Query runs req. The request is validated before any remote work; a path
// that does not exist yields an empty result rather than an error.
func (e *Engine) Query(ctx context.Context, req Request) (*Result, error) {
	p, err := e.prepare(req)
	if err != nil {
		return nil, err
	}
	return e.run(ctx, p)
}

func (e *Engine) run(ctx context.Context, p *plan) (*Result, error) {
	start := e.now()
	res := &Result{
		ID:      uuid.NewString(),
		Params:  p.req,
		Matches: []match.Record{},
	}
	res.Statistics.QueriedAt = start
	res.Statistics.MethodUsed = e.selectMethod(p.req.Method, 0)

	if strings.TrimSpace(p.req.RemotePath) == "" {
		e.finish(ctx, p, res, start)
		return res, nil
	}

	files, err := e.enumerate(ctx, p.req.RemotePath)
	if err != nil {
		return nil, err
	}

	var total int64
	for _, f := range files {
		total += f.Size
	}
	method := e.selectMethod(p.req.Method, total)
	res.Statistics.MethodUsed = method
	res.Statistics.FilesSearched = len(files)
	res.Statistics.BytesConsidered = total

	logger.Info("Running query",
		"id", res.ID,
		"path", p.req.RemotePath,
		"files", len(files),
		"bytes", total,
		"requested_method", p.req.Method,
		"method", method,
	)

	if len(files) > 0 {
		var matches []match.Record
		if method == MethodLocal {
			matches, err = e.searchLocal(ctx, p, files)
		} else {
			matches, err = e.searchRemote(ctx, p, files)
		}
		if err != nil {
			return nil, err
		}

		if !p.unbounded && len(matches) > p.req.MaxResults {
			matches = matches[:p.req.MaxResults]
			res.Statistics.Truncated = true
		}
		if p.extractor != nil {
			for i := range matches {
				matches[i].Extracted = p.extractor.Extract(matches[i].Content)
			}
		}
		res.Matches = matches
	}

	e.finish(ctx, p, res, start)
	return res, nil
}

// selectMethod honours an explicit method and otherwise picks local for
// corpora below the size threshold.
func (e *Engine) selectMethod(requested Method, total int64) Method {
	switch requested {
	case MethodLocal, MethodRemote:
		return requested
	}
	if total < e.opts.FileSizeThreshold {
		return MethodLocal
	}
	return MethodRemote
}

// finish fills in the closing statistics, renders text and records history.
func (e *Engine) finish(ctx context.Context, p *plan, res *Result, start time.Time) {
	res.Statistics.TotalMatches = len(res.Matches)
	res.Statistics.Duration = e.now().Sub(start)
	res.Statistics.DurationMS = res.Statistics.Duration.Milliseconds()

	if p.req.OutputFormat.WantsText() {
		res.Text = RenderText(res)
	}

	logger.Info("Query finished",
		"id", res.ID,
		"matches", res.Statistics.TotalMatches,
		"truncated", res.Statistics.Truncated,
		"duration", res.Statistics.Duration,
	)

	if e.history == nil {
		return
	}
	run := sqlite.QueryRun{
		ID:            res.ID,
		RemotePath:    p.req.RemotePath,
		Keywords:      p.req.Keywords,
		Logic:         string(p.req.Logic),
		MethodUsed:    string(res.Statistics.MethodUsed),
		FilesSearched: res.Statistics.FilesSearched,
		TotalMatches:  res.Statistics.TotalMatches,
		Truncated:     res.Statistics.Truncated,
		Duration:      res.Statistics.Duration,
		QueriedAt:     res.Statistics.QueriedAt,
	}
	if err := e.history.Add(ctx, run); err != nil {
		logger.Warn("Failed to record query history", "id", res.ID, "error", err)
	}
}
