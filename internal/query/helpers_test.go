package query

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"

	"github.com/willibrandon/faultscope/internal/match"
	"github.com/willibrandon/faultscope/internal/sshconn"
	"github.com/willibrandon/faultscope/internal/storage/sqlite"
)

// scriptedRemote serves an in-memory file tree. Filter and context commands
// get every line of the referenced file, numbered, so the engine's own
// predicate decides what matches.
type scriptedRemote struct {
	files       map[string]string
	sizes       map[string]int64
	snapshotDir string
	unreadable  map[string]bool
	execErr     error
	// failOn answers any command containing a key with its result or error.
	failOn map[string]failure

	commands  []string
	downloads []string
}

type failure struct {
	res sshconn.Result
	err error
}

func newScriptedRemote(files map[string]string) *scriptedRemote {
	return &scriptedRemote{files: files, sizes: map[string]int64{}}
}

func (r *scriptedRemote) Execute(_ context.Context, cmd string, _ time.Duration) (sshconn.Result, error) {
	r.commands = append(r.commands, cmd)
	if r.execErr != nil {
		return sshconn.Result{}, r.execErr
	}
	for substr, f := range r.failOn {
		if strings.Contains(cmd, substr) {
			return f.res, f.err
		}
	}

	switch {
	case strings.Contains(cmd, "-type d"):
		if r.snapshotDir == "" {
			return sshconn.Result{}, nil
		}
		return sshconn.Result{Stdout: r.snapshotDir + "\n"}, nil
	case strings.Contains(cmd, "then echo gz"):
		if _, ok := r.files[r.snapshotDir+"/log.gz"]; ok {
			return sshconn.Result{Stdout: "gz\n"}, nil
		}
		if _, ok := r.files[r.snapshotDir+"/log"]; ok {
			return sshconn.Result{Stdout: "log\n"}, nil
		}
		return sshconn.Result{}, nil
	case strings.Contains(cmd, "-printf"):
		return r.list(cmd), nil
	}

	for p, content := range r.files {
		if !strings.Contains(cmd, match.ShellQuote(p)) {
			continue
		}
		var b strings.Builder
		for i, line := range match.SplitLines(content) {
			fmt.Fprintf(&b, "%d:%s\n", i+1, line)
		}
		return sshconn.Result{Stdout: b.String()}, nil
	}
	return sshconn.Result{Stderr: "No such file or directory", ExitCode: 2}, nil
}

func (r *scriptedRemote) list(cmd string) sshconn.Result {
	_, rest, _ := strings.Cut(cmd, "[ -f '")
	root, _, _ := strings.Cut(rest, "' ]")

	var paths []string
	for p := range r.files {
		if p == root || strings.HasPrefix(p, strings.TrimRight(root, "/")+"/") {
			paths = append(paths, p)
		}
	}
	if len(paths) == 0 {
		return sshconn.Result{ExitCode: 1}
	}
	sort.Strings(paths)

	var b strings.Builder
	for _, p := range paths {
		size, ok := r.sizes[p]
		if !ok {
			size = int64(len(r.files[p]))
		}
		fmt.Fprintf(&b, "%d\t%s\n", size, p)
	}
	return sshconn.Result{Stdout: b.String()}
}

func (r *scriptedRemote) Download(_ context.Context, remote, local string, _ time.Duration) error {
	r.downloads = append(r.downloads, remote)
	content, ok := r.files[remote]
	if !ok || r.unreadable[remote] {
		return &sshconn.Error{Op: "download", Err: fmt.Errorf("opening %s: %w", remote, os.ErrNotExist)}
	}
	if strings.HasSuffix(remote, ".gz") {
		return os.WriteFile(local, gzipBytes(content), 0o644)
	}
	return os.WriteFile(local, []byte(content), 0o644)
}

func (r *scriptedRemote) grepCommands() []string {
	var out []string
	for _, c := range r.commands {
		if strings.Contains(c, "grep ") {
			out = append(out, c)
		}
	}
	return out
}

func gzipBytes(s string) []byte {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	zw.Write([]byte(s))
	zw.Close()
	return buf.Bytes()
}

// shellRemote runs commands with the local shell, standing in for the log
// host.
type shellRemote struct{}

func (shellRemote) Execute(ctx context.Context, cmd string, timeout time.Duration) (sshconn.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	c := exec.CommandContext(ctx, "sh", "-c", cmd)
	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	res := sshconn.Result{}
	err := c.Run()
	var exitErr *exec.ExitError
	switch {
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	case err != nil:
		return res, err
	}
	res.Stdout = stdout.String()
	res.Stderr = stderr.String()
	return res, nil
}

func (shellRemote) Download(_ context.Context, remote, local string, _ time.Duration) error {
	data, err := os.ReadFile(remote)
	if err != nil {
		return err
	}
	return os.WriteFile(local, data, 0o644)
}

// requireShellTools skips tests that need GNU find, grep, awk and zcat.
func requireShellTools(t *testing.T) {
	t.Helper()
	probe := "find . -maxdepth 0 -printf '' && echo x | grep -a -n -F -e x >/dev/null && " +
		"echo 1 | awk '{print NR}' >/dev/null && echo | gzip | zcat -f >/dev/null"
	if err := exec.Command("sh", "-c", probe).Run(); err != nil {
		t.Skipf("shell tools unavailable: %v", err)
	}
}

type recordingRegistrar struct {
	paths []string
	err   error
}

func (r *recordingRegistrar) Register(_ context.Context, path string, _ time.Time) error {
	r.paths = append(r.paths, path)
	return r.err
}

type recordingHistory struct {
	runs []sqlite.QueryRun
}

func (h *recordingHistory) Add(_ context.Context, run sqlite.QueryRun) error {
	h.runs = append(h.runs, run)
	return nil
}

func newTestEngine(t *testing.T, remote Remote, opts ...Option) *Engine {
	t.Helper()
	all := append([]Option{WithOptions(Options{CacheDir: t.TempDir()})}, opts...)
	return New(remote, all...)
}

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		p := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		data := []byte(content)
		if strings.HasSuffix(name, ".gz") {
			data = gzipBytes(content)
		}
		require.NoError(t, os.WriteFile(p, data, 0o644))
	}
	return root
}
