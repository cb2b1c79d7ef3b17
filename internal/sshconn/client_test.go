package sshconn

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh/knownhosts"
)

func TestClient_Execute(t *testing.T) {
	srv := newTestServer(t)
	c := New(srv.config())
	defer c.Close()

	ctx := context.Background()

	res, err := c.Execute(ctx, "echo hello; echo oops 1>&2", 0)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", res.Stdout)
	assert.Equal(t, "oops\n", res.Stderr)
	assert.Equal(t, 0, res.ExitCode)

	res, err = c.Execute(ctx, "exit 3", time.Second)
	require.NoError(t, err, "non-zero exit is not an error")
	assert.Equal(t, 3, res.ExitCode)
}

func TestClient_ExecuteReusesConnection(t *testing.T) {
	srv := newTestServer(t)
	c := New(srv.config())
	defer c.Close()

	ctx := context.Background()
	require.NoError(t, c.Open(ctx))
	first := c.conn

	require.NoError(t, c.Open(ctx))
	_, err := c.Execute(ctx, "true", 0)
	require.NoError(t, err)
	assert.Same(t, first, c.conn)
}

func TestClient_ExecuteTimeout(t *testing.T) {
	srv := newTestServer(t)
	c := New(srv.config())
	defer c.Close()

	ctx := context.Background()
	start := time.Now()
	_, err := c.Execute(ctx, "sleep 10", 200*time.Millisecond)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCommandTimeout), "got %v", err)
	assert.Less(t, time.Since(start), 5*time.Second)

	var sshErr *Error
	require.ErrorAs(t, err, &sshErr)
	assert.Equal(t, "execute", sshErr.Op)

	// The connection survives a timed out command.
	res, err := c.Execute(ctx, "echo still here", 0)
	require.NoError(t, err)
	assert.Equal(t, "still here\n", res.Stdout)
}

func TestClient_AuthenticationFailure(t *testing.T) {
	srv := newTestServer(t)
	cfg := srv.config()
	cfg.Password = "wrong"

	c := New(cfg)
	defer c.Close()

	err := c.Open(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAuthentication), "got %v", err)
	assert.False(t, errors.Is(err, ErrConnection))
}

func TestClient_ConnectionFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	c := New(Config{
		Host:                  "127.0.0.1",
		Port:                  port,
		User:                  testUser,
		Password:              testPassword,
		InsecureIgnoreHostKey: true,
		ConnectTimeout:        2 * time.Second,
	})
	defer c.Close()

	_, err = c.Execute(context.Background(), "true", 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConnection), "got %v", err)
}

func TestClient_KnownHosts(t *testing.T) {
	srv := newTestServer(t)
	dir := t.TempDir()

	good := filepath.Join(dir, "known_hosts")
	line := knownhosts.Line([]string{srv.addr()}, srv.hostKey.PublicKey())
	require.NoError(t, os.WriteFile(good, []byte(line+"\n"), 0o600))

	cfg := srv.config()
	cfg.InsecureIgnoreHostKey = false
	cfg.KnownHostsFile = good

	c := New(cfg)
	require.NoError(t, c.Open(context.Background()))
	require.NoError(t, c.Close())

	other := newTestServer(t)
	bad := filepath.Join(dir, "known_hosts_other")
	line = knownhosts.Line([]string{srv.addr()}, other.hostKey.PublicKey())
	require.NoError(t, os.WriteFile(bad, []byte(line+"\n"), 0o600))

	cfg.KnownHostsFile = bad
	c = New(cfg)
	defer c.Close()
	err := c.Open(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConnection), "got %v", err)
}

func TestClient_NoHostKeyPolicy(t *testing.T) {
	srv := newTestServer(t)
	cfg := srv.config()
	cfg.InsecureIgnoreHostKey = false

	c := New(cfg)
	defer c.Close()

	err := c.Open(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConnection))
}

func TestClient_Download(t *testing.T) {
	srv := newTestServer(t)
	c := New(srv.config())
	defer c.Close()

	dir := t.TempDir()
	remote := filepath.Join(dir, "remote.log")
	content := strings.Repeat("fa_id:0x165 fu_st_n:1\n", 1000)
	require.NoError(t, os.WriteFile(remote, []byte(content), 0o644))

	local := filepath.Join(dir, "local.log")
	require.NoError(t, c.Download(context.Background(), remote, local, 0))

	got, err := os.ReadFile(local)
	require.NoError(t, err)
	assert.Equal(t, content, string(got))

	// A second download reuses the SFTP client.
	sc := c.sftp
	require.NoError(t, c.Download(context.Background(), remote, local+".2", time.Second))
	assert.Same(t, sc, c.sftp)
}

func TestClient_DownloadMissing(t *testing.T) {
	srv := newTestServer(t)
	c := New(srv.config())
	defer c.Close()

	dir := t.TempDir()
	local := filepath.Join(dir, "local.log")
	err := c.Download(context.Background(), filepath.Join(dir, "nope.log"), local, 0)
	require.Error(t, err)

	_, statErr := os.Stat(local)
	assert.True(t, os.IsNotExist(statErr), "no partial file is left behind")
}

func TestClient_CloseIdempotent(t *testing.T) {
	srv := newTestServer(t)
	c := New(srv.config())

	require.NoError(t, c.Close(), "close before open")
	require.NoError(t, c.Open(context.Background()))
	_, err := c.Execute(context.Background(), "true", 0)
	require.NoError(t, err)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}

func TestConfig_Addr(t *testing.T) {
	assert.Equal(t, "logs.example.com:22", Config{Host: "logs.example.com"}.Addr())
	assert.Equal(t, "[::1]:2222", Config{Host: "::1", Port: 2222}.Addr())
}
