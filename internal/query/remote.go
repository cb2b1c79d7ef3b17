package query

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/willibrandon/faultscope/internal/logger"
	"github.com/willibrandon/faultscope/internal/match"
)

// rangesPerRead bounds the number of line ranges in one awk program.
const rangesPerRead = 200

// searchRemote runs a filter pipeline per file and re-checks every returned
// line against the predicate. Like searchLocal it stops at the plan's limit.
func (e *Engine) searchRemote(ctx context.Context, p *plan, files []remoteFile) ([]match.Record, error) {
	limit := p.limit()
	var records []match.Record

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		remaining := 0
		if limit > 0 {
			remaining = limit - len(records)
		}
		filter := match.BuildRemoteFilter(f.Path, p.pred, remaining)
		res, err := e.remote.Execute(ctx, filter.Command, e.opts.GrepTimeout)
		if err != nil {
			return nil, err
		}

		switch {
		case res.ExitCode == 1:
			continue
		case res.ExitCode != 0:
			logger.Warn("Remote filter failed",
				"path", f.Path,
				"exit_code", res.ExitCode,
				"stderr", strings.TrimSpace(res.Stderr),
			)
			continue
		}

		var hits []match.Record
		for _, line := range match.SplitLines(res.Stdout) {
			n, content, ok := match.ParseGrepLine(line)
			if !ok || !p.pred.Match(content) {
				continue
			}
			hits = append(hits, match.Record{FilePath: f.Path, LineNumber: n, Content: content})
			if limit > 0 && len(records)+len(hits) >= limit {
				break
			}
		}
		logger.Debug("Remote filter returned", "path", f.Path, "matches", len(hits), "exact", filter.Exact)

		if p.req.ContextLines > 0 && len(hits) > 0 {
			if err := e.attachContext(ctx, f.Path, hits, p.req.ContextLines); err != nil {
				return nil, err
			}
		}

		records = append(records, hits...)
		if limit > 0 && len(records) >= limit {
			break
		}
	}

	return records, nil
}

// lineRange is an inclusive range of 1-based line numbers.
type lineRange struct {
	from, to int
}

// contextRanges returns the merged windows of c lines around each hit.
func contextRanges(lines []int, c int) []lineRange {
	ranges := make([]lineRange, 0, len(lines))
	for _, n := range lines {
		ranges = append(ranges, lineRange{from: max(n-c, 1), to: n + c})
	}
	sort.Slice(ranges, func(i, j int) bool { return ranges[i].from < ranges[j].from })

	merged := ranges[:0]
	for _, r := range ranges {
		if k := len(merged) - 1; k >= 0 && r.from <= merged[k].to+1 {
			merged[k].to = max(merged[k].to, r.to)
			continue
		}
		merged = append(merged, r)
	}
	return merged
}

// awkProgram prints NR":"$0 for lines inside ranges and stops reading after
// the last range.
func awkProgram(ranges []lineRange) string {
	conds := make([]string, len(ranges))
	for i, r := range ranges {
		if r.from == r.to {
			conds[i] = "NR==" + strconv.Itoa(r.from)
		} else {
			conds[i] = "NR>=" + strconv.Itoa(r.from) + "&&NR<=" + strconv.Itoa(r.to)
		}
	}
	last := ranges[len(ranges)-1].to
	return strings.Join(conds, "||") + `{print NR":"$0} NR>=` + strconv.Itoa(last) + `{exit}`
}

// contextCommands returns the awk reads covering ranges, rangesPerRead at a
// time.
func contextCommands(file string, ranges []lineRange) []string {
	var cmds []string
	for start := 0; start < len(ranges); start += rangesPerRead {
		chunk := ranges[start:min(start+rangesPerRead, len(ranges))]
		cmds = append(cmds, match.ReaderCommand(file)+" | awk "+match.ShellQuote(awkProgram(chunk)))
	}
	return cmds
}

// attachContext fetches the lines around hits and sets their Context. A read
// that exits non-zero leaves the affected records with empty context;
// transport errors are returned.
func (e *Engine) attachContext(ctx context.Context, file string, hits []match.Record, c int) error {
	nums := make([]int, len(hits))
	for i, h := range hits {
		nums[i] = h.LineNumber
	}

	text := make(map[int]string)
	for _, cmd := range contextCommands(file, contextRanges(nums, c)) {
		res, err := e.remote.Execute(ctx, cmd, e.opts.GrepTimeout)
		if err != nil {
			return err
		}
		if res.ExitCode != 0 {
			logger.Warn("Context read failed",
				"path", file,
				"exit_code", res.ExitCode,
				"stderr", strings.TrimSpace(res.Stderr),
			)
			continue
		}
		for _, line := range match.SplitLines(res.Stdout) {
			if n, content, ok := match.ParseGrepLine(line); ok {
				text[n] = content
			}
		}
	}

	for i := range hits {
		n := hits[i].LineNumber
		window := &match.Context{Before: []string{}, After: []string{}}
		for k := max(n-c, 1); k < n; k++ {
			if s, ok := text[k]; ok {
				window.Before = append(window.Before, s)
			}
		}
		for k := n + 1; k <= n+c; k++ {
			s, ok := text[k]
			if !ok {
				break
			}
			window.After = append(window.After, s)
		}
		hits[i].Context = window
	}
	return nil
}
