package query

import (
	"context"
	"slices"
	"sort"
	"strings"

	"github.com/willibrandon/faultscope/internal/faultid"
	"github.com/willibrandon/faultscope/internal/guide"
	"github.com/willibrandon/faultscope/internal/logger"
	"github.com/willibrandon/faultscope/internal/match"
	"github.com/willibrandon/faultscope/internal/stats"
)

// FaultStatistics computes the occurrence statistics of rawID over the logs
// under remotePath. The id is validated before any remote work. Every
// matching line is read; the result limit does not apply.
func (e *Engine) FaultStatistics(ctx context.Context, remotePath, rawID string) (stats.Record, error) {
	id, err := faultid.Normalize(rawID)
	if err != nil {
		return stats.Record{}, err
	}

	req := NewRequest(remotePath, id.Variants()...)
	req.MaxResults = e.opts.MaxResultsLimit
	req.OutputFormat = FormatJSON

	p, err := e.prepare(req)
	if err != nil {
		return stats.Record{}, err
	}
	p.unbounded = true

	res, err := e.run(ctx, p)
	if err != nil {
		return stats.Record{}, err
	}

	lines := make([]string, len(res.Matches))
	for i, m := range res.Matches {
		lines[i] = m.Content
	}
	return e.tracker.Extract(lines, rawID)
}

// ScanMatch is a SetFunc line selected by ScanSetFunc.
type ScanMatch struct {
	match.Record
	FaultID string `json:"fault_id,omitempty"`
	Status  int64  `json:"fu_st"`
}

// FaultSummary is the per-fault part of a ScanReport.
type FaultSummary struct {
	FaultID    string       `json:"fault_id"`
	Statistics stats.Record `json:"statistics"`
	Guide      *guide.Entry `json:"guide,omitempty"`
}

// ScanReport is the result of ScanSetFunc.
type ScanReport struct {
	BasePath     string         `json:"base_path"`
	SnapshotDir  string         `json:"snapshot_dir,omitempty"`
	FilePath     string         `json:"file_path,omitempty"`
	TotalMatches int            `json:"total_matches_before_filter"`
	Matches      []ScanMatch    `json:"matches"`
	Faults       []FaultSummary `json:"faults"`
	Truncated    bool           `json:"truncated"`
}

// ScanSetFunc finds the snapshot log under basePath and reports the SetFunc
// lines whose fu_st is a severity status, with statistics and guidance for
// each fault id they name. A missing snapshot yields an empty report.
func (e *Engine) ScanSetFunc(ctx context.Context, basePath string) (*ScanReport, error) {
	report := &ScanReport{
		BasePath: basePath,
		Matches:  []ScanMatch{},
		Faults:   []FaultSummary{},
	}

	dir, file, err := e.locateSnapshotLog(ctx, basePath)
	if err != nil {
		return nil, err
	}
	if file == "" {
		logger.Info("No snapshot log found", "path", basePath, "pattern", e.opts.SnapshotDirPattern)
		return report, nil
	}
	report.SnapshotDir = dir
	report.FilePath = file

	req := NewRequest(file, "SetFunc", "fu_st")
	req.Logic = match.LogicAND
	req.FuzzyMatch = false
	req.MaxResults = e.opts.MaxResultsLimit
	req.Method = MethodRemote
	req.OutputFormat = FormatJSON

	res, err := e.Query(ctx, req)
	if err != nil {
		return nil, err
	}
	report.Truncated = res.Statistics.Truncated

	var selected []ScanMatch
	for _, m := range res.Matches {
		s := stats.ParseLine(m.Content)
		if s.Status == nil || !slices.Contains(e.opts.SeverityStatuses, *s.Status) {
			continue
		}
		sm := ScanMatch{Record: m, Status: *s.Status}
		if ids := e.faults.IDs(m.Content); len(ids) > 0 {
			sm.FaultID = ids[0].Canonical
		}
		selected = append(selected, sm)
	}
	report.TotalMatches = len(selected)
	report.Matches = selectPerFault(selected)

	logger.Info("SetFunc scan selected lines",
		"file", file,
		"matched", len(selected),
		"kept", len(report.Matches),
	)

	for _, id := range faultOrder(report.Matches) {
		rec, err := e.FaultStatistics(ctx, file, id)
		if err != nil {
			return nil, err
		}
		summary := FaultSummary{FaultID: id, Statistics: rec}
		if g, ok := e.guides.Lookup(id); ok {
			summary.Guide = &g
		}
		report.Faults = append(report.Faults, summary)
	}

	return report, nil
}

// locateSnapshotLog returns the first snapshot directory under base and the
// log inside it, preferring log.gz over log. Both are empty when either is
// missing.
func (e *Engine) locateSnapshotLog(ctx context.Context, base string) (string, string, error) {
	base = strings.TrimRight(base, "/")
	if base == "" {
		base = "/"
	}

	cmd := "find -L " + match.ShellQuote(base) + " -type d -name " + match.ShellQuote(e.opts.SnapshotDirPattern) +
		" 2>/dev/null | sort | head -n 1"
	res, err := e.remote.Execute(ctx, cmd, e.opts.GrepTimeout)
	if err != nil {
		return "", "", err
	}
	dirs := match.SplitLines(res.Stdout)
	if len(dirs) == 0 || strings.TrimSpace(dirs[0]) == "" {
		return "", "", nil
	}
	dir := strings.TrimSpace(dirs[0])

	gz := dir + "/log.gz"
	plain := dir + "/log"
	cmd = "if [ -f " + match.ShellQuote(gz) + " ]; then echo gz; elif [ -f " + match.ShellQuote(plain) + " ]; then echo log; fi"
	res, err = e.remote.Execute(ctx, cmd, e.opts.GrepTimeout)
	if err != nil {
		return "", "", err
	}

	switch strings.TrimSpace(res.Stdout) {
	case "gz":
		return dir, gz, nil
	case "log":
		return dir, plain, nil
	default:
		logger.Warn("Snapshot directory has no log file", "dir", dir)
		return dir, "", nil
	}
}

// selectPerFault keeps at most the first two and last two lines of each
// fault id. Lines without an id are all kept. The result is in line order.
func selectPerFault(matches []ScanMatch) []ScanMatch {
	groups := make(map[string][]int)
	var kept []int

	for i, m := range matches {
		if m.FaultID == "" {
			kept = append(kept, i)
			continue
		}
		groups[m.FaultID] = append(groups[m.FaultID], i)
	}

	for _, idx := range groups {
		switch n := len(idx); {
		case n <= 4:
			kept = append(kept, idx...)
		case n == 5:
			kept = append(kept, idx[0], idx[1], idx[4])
		default:
			kept = append(kept, idx[0], idx[1], idx[n-2], idx[n-1])
		}
	}

	sort.Ints(kept)
	out := make([]ScanMatch, len(kept))
	for i, k := range kept {
		out[i] = matches[k]
	}
	return out
}

// faultOrder returns the distinct fault ids of matches in order of first
// appearance.
func faultOrder(matches []ScanMatch) []string {
	var ids []string
	seen := make(map[string]bool)
	for _, m := range matches {
		if m.FaultID == "" || seen[m.FaultID] {
			continue
		}
		seen[m.FaultID] = true
		ids = append(ids, m.FaultID)
	}
	return ids
}
