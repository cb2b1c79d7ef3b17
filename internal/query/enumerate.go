package query

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/willibrandon/faultscope/internal/logger"
	"github.com/willibrandon/faultscope/internal/match"
)

// remoteFile is one candidate file on the log host.
type remoteFile struct {
	Path string
	Size int64
}

// findCommand lists the candidate files under root with their sizes. A
// regular file is listed whatever its name; a directory is searched
// recursively for the given extensions and files named "log".
func findCommand(root string, extensions []string) string {
	q := match.ShellQuote(root)

	var names strings.Builder
	names.WriteString("-name log")
	for _, ext := range extensions {
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		names.WriteString(" -o -name ")
		names.WriteString(match.ShellQuote("*" + ext))
	}

	return "if [ -f " + q + " ]; then find -L " + q + " -maxdepth 0 -printf '%s\\t%p\\n'; " +
		"else find -L " + q + " -type f \\( " + names.String() + " \\) -printf '%s\\t%p\\n'; fi 2>/dev/null"
}

// parseFindOutput parses "<size>\t<path>" lines, sorted by path.
func parseFindOutput(out string) []remoteFile {
	var files []remoteFile
	for _, line := range match.SplitLines(out) {
		size, path, ok := strings.Cut(line, "\t")
		if !ok || path == "" {
			continue
		}
		n, err := strconv.ParseInt(size, 10, 64)
		if err != nil {
			continue
		}
		files = append(files, remoteFile{Path: path, Size: n})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files
}

// enumerate resolves root to the files to search. A missing or unreadable
// root yields no files. Connection errors are returned unchanged.
func (e *Engine) enumerate(ctx context.Context, root string) ([]remoteFile, error) {
	res, err := e.remote.Execute(ctx, findCommand(root, e.opts.Extensions), e.opts.GrepTimeout)
	if err != nil {
		return nil, err
	}

	files := parseFindOutput(res.Stdout)
	if len(files) == 0 {
		logger.Debug("No candidate files", "path", root, "exit_code", res.ExitCode)
	}
	return files, nil
}
