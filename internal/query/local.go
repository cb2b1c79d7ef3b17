package query

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/willibrandon/faultscope/internal/logger"
	"github.com/willibrandon/faultscope/internal/match"
)

// maxLineSize bounds a single log line read from a downloaded file.
const maxLineSize = 16 << 20

// searchLocal downloads files into a per-query directory and matches them in
// process. It stops collecting at the plan's limit so the caller can tell
// that the result was truncated.
func (e *Engine) searchLocal(ctx context.Context, p *plan, files []remoteFile) ([]match.Record, error) {
	dir := filepath.Join(e.opts.CacheDir, "query-"+uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating query directory: %w", err)
	}
	defer e.register(ctx, dir)

	limit := p.limit()
	var records []match.Record

	for i, f := range files {
		local := filepath.Join(dir, fmt.Sprintf("%03d_%s", i, path.Base(f.Path)))
		if err := e.remote.Download(ctx, f.Path, local, e.opts.GrepTimeout); err != nil {
			if errors.Is(err, os.ErrNotExist) || errors.Is(err, os.ErrPermission) {
				logger.Warn("Skipping unreadable file", "path", f.Path, "error", err)
				continue
			}
			return nil, err
		}

		lines, err := readLines(local)
		if err != nil {
			logger.Warn("Skipping undecodable file", "path", f.Path, "local", local, "error", err)
			continue
		}

		for idx, line := range lines {
			if !p.pred.Match(line) {
				continue
			}
			rec := match.Record{
				FilePath:   f.Path,
				LineNumber: idx + 1,
				Content:    line,
			}
			if p.req.ContextLines > 0 {
				rec.Context = match.ContextAt(lines, idx, p.req.ContextLines)
			}
			records = append(records, rec)
			if limit > 0 && len(records) >= limit {
				return records, nil
			}
		}
	}

	return records, nil
}

// register hands dir to the cleanup registrar. Failures are logged only.
func (e *Engine) register(ctx context.Context, dir string) {
	if e.registrar == nil {
		logger.Debug("No cleanup registrar, leaving query directory", "path", dir)
		return
	}
	if err := e.registrar.Register(ctx, dir, e.now()); err != nil {
		logger.Warn("Failed to register query directory for cleanup", "path", dir, "error", err)
	}
}

// openDecompressed opens name and wraps it in the decompressor matching its
// extension.
func openDecompressed(name string) (io.ReadCloser, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(name)) {
	case ".gz":
		zr, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("reading gzip header: %w", err)
		}
		return &stackedReader{Reader: zr, closers: []io.Closer{zr, f}}, nil
	case ".zst":
		zr, err := zstd.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("creating zstd reader: %w", err)
		}
		return &stackedReader{Reader: zr, closers: []io.Closer{zr.IOReadCloser(), f}}, nil
	case ".lz4":
		return &stackedReader{Reader: lz4.NewReader(f), closers: []io.Closer{f}}, nil
	default:
		return f, nil
	}
}

// stackedReader closes a decompressor and the file beneath it.
type stackedReader struct {
	io.Reader
	closers []io.Closer
}

func (r *stackedReader) Close() error {
	var errs []error
	for _, c := range r.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// readLines returns the decompressed lines of name with terminators removed.
func readLines(name string) ([]string, error) {
	rc, err := openDecompressed(name)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var lines []string
	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		lines = append(lines, strings.TrimSuffix(scanner.Text(), "\r"))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	return lines, nil
}
