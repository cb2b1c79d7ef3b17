// Package sshconn manages the SSH session used to reach the log host.
//
// A Client owns one SSH connection and one SFTP subsystem client. Both are
// opened lazily on first use and released by Close. A Client is not safe for
// concurrent use.
package sshconn

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/willibrandon/faultscope/internal/logger"
)

// Config describes how to reach and authenticate to the log host.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	// PasswordCommand is run to obtain the password when Password is empty.
	PasswordCommand       string
	KeyFile               string
	KnownHostsFile        string
	InsecureIgnoreHostKey bool
	ConnectTimeout        time.Duration
	// CommandTimeout applies when Execute or Download is given no timeout.
	CommandTimeout time.Duration
}

// Addr returns host:port.
func (c Config) Addr() string {
	port := c.Port
	if port == 0 {
		port = 22
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(port))
}

// Result is the outcome of a remote command. A non-zero ExitCode is not an
// error.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Client is a persistent SSH session to one host.
type Client struct {
	cfg  Config
	conn *ssh.Client
	sftp *sftp.Client
}

// New returns a client for cfg. No connection is made until first use.
func New(cfg Config) *Client {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 30 * time.Second
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = 60 * time.Second
	}
	return &Client{cfg: cfg}
}

// Host returns the configured host name.
func (c *Client) Host() string {
	return c.cfg.Host
}

// Open connects and authenticates. It is a no-op when already connected.
func (c *Client) Open(ctx context.Context) error {
	if c.conn != nil {
		return nil
	}

	clientCfg, err := c.clientConfig(ctx)
	if err != nil {
		return &Error{Op: "open", Host: c.cfg.Host, Err: err}
	}

	addr := c.cfg.Addr()
	logger.Debug("Opening SSH connection", "addr", addr, "user", c.cfg.User)

	dialer := net.Dialer{Timeout: c.cfg.ConnectTimeout}
	raw, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		logger.Error("SSH dial failed", "addr", addr, "error", err)
		return &Error{Op: "open", Host: c.cfg.Host, Err: fmt.Errorf("%w: %v", ErrConnection, err)}
	}

	_ = raw.SetDeadline(time.Now().Add(c.cfg.ConnectTimeout))
	sconn, chans, reqs, err := ssh.NewClientConn(raw, addr, clientCfg)
	if err != nil {
		raw.Close()
		logger.Error("SSH handshake failed", "addr", addr, "error", err)
		return &Error{Op: "open", Host: c.cfg.Host, Err: classifyDialError(err)}
	}
	_ = raw.SetDeadline(time.Time{})

	c.conn = ssh.NewClient(sconn, chans, reqs)
	logger.Info("SSH connection established", "addr", addr, "server_version", string(sconn.ServerVersion()))
	return nil
}

func (c *Client) clientConfig(ctx context.Context) (*ssh.ClientConfig, error) {
	var auths []ssh.AuthMethod

	if c.cfg.KeyFile != "" {
		signer, err := loadKey(c.cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrAuthentication, err)
		}
		auths = append(auths, ssh.PublicKeys(signer))
	}

	password := c.cfg.Password
	if password == "" && (c.cfg.PasswordCommand != "" || c.cfg.KeyFile == "") {
		p, err := ResolvePassword(ctx, c.cfg.PasswordCommand, fmt.Sprintf("%s@%s's password: ", c.cfg.User, c.cfg.Host))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrAuthentication, err)
		}
		password = p
	}
	if password != "" {
		auths = append(auths,
			ssh.Password(password),
			ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = password
				}
				return answers, nil
			}),
		)
	}

	hostKeys, err := c.hostKeyCallback()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}

	return &ssh.ClientConfig{
		User:            c.cfg.User,
		Auth:            auths,
		HostKeyCallback: hostKeys,
		Timeout:         c.cfg.ConnectTimeout,
	}, nil
}

func (c *Client) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if c.cfg.InsecureIgnoreHostKey {
		logger.Warn("Host key verification disabled", "host", c.cfg.Host)
		return ssh.InsecureIgnoreHostKey(), nil
	}
	if c.cfg.KnownHostsFile == "" {
		return nil, errors.New("no known_hosts file configured and host key checking is enabled")
	}
	cb, err := knownhosts.New(c.cfg.KnownHostsFile)
	if err != nil {
		return nil, fmt.Errorf("loading known_hosts: %w", err)
	}
	return cb, nil
}

func loadKey(path string) (ssh.Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading key file: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(data)
	if err != nil {
		return nil, fmt.Errorf("parsing key file %s: %w", path, err)
	}
	return signer, nil
}

// Execute runs cmd on the remote host and waits for it to finish. When the
// command outlives timeout it is sent SIGKILL, its session is closed and
// ErrCommandTimeout is returned.
func (c *Client) Execute(ctx context.Context, cmd string, timeout time.Duration) (Result, error) {
	if err := c.Open(ctx); err != nil {
		return Result{}, err
	}
	if timeout <= 0 {
		timeout = c.cfg.CommandTimeout
	}

	session, err := c.conn.NewSession()
	if err != nil {
		return Result{}, &Error{Op: "execute", Host: c.cfg.Host, Err: fmt.Errorf("%w: opening session: %v", ErrConnection, err)}
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	logger.Debug("Executing remote command", "command", cmd, "timeout", timeout)
	if err := session.Start(cmd); err != nil {
		return Result{}, &Error{Op: "execute", Host: c.cfg.Host, Err: fmt.Errorf("%w: starting command: %v", ErrConnection, err)}
	}

	done := make(chan error, 1)
	go func() { done <- session.Wait() }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err = <-done:
	case <-timer.C:
		_ = session.Signal(ssh.SIGKILL)
		_ = session.Close()
		logger.Warn("Remote command timed out", "command", cmd, "timeout", timeout)
		return Result{}, &Error{Op: "execute", Host: c.cfg.Host, Err: fmt.Errorf("%w after %s", ErrCommandTimeout, timeout)}
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		_ = session.Close()
		return Result{}, &Error{Op: "execute", Host: c.cfg.Host, Err: ctx.Err()}
	}

	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr *ssh.ExitError
		var missing *ssh.ExitMissingError
		switch {
		case errors.As(err, &exitErr):
			res.ExitCode = exitErr.ExitStatus()
		case errors.As(err, &missing):
			res.ExitCode = -1
		default:
			return res, &Error{Op: "execute", Host: c.cfg.Host, Err: fmt.Errorf("%w: %v", ErrConnection, err)}
		}
	}

	return res, nil
}

// Download copies the remote file to local over SFTP. A partially written
// local file is removed on failure.
func (c *Client) Download(ctx context.Context, remote, local string, timeout time.Duration) error {
	if err := c.Open(ctx); err != nil {
		return err
	}
	if timeout <= 0 {
		timeout = c.cfg.CommandTimeout
	}

	if c.sftp == nil {
		sc, err := sftp.NewClient(c.conn)
		if err != nil {
			return &Error{Op: "download", Host: c.cfg.Host, Err: fmt.Errorf("%w: starting sftp: %v", ErrConnection, err)}
		}
		c.sftp = sc
	}

	src, err := c.sftp.Open(remote)
	if err != nil {
		return &Error{Op: "download", Host: c.cfg.Host, Err: fmt.Errorf("opening %s: %w", remote, err)}
	}
	defer src.Close()

	dst, err := os.Create(local)
	if err != nil {
		return &Error{Op: "download", Host: c.cfg.Host, Err: fmt.Errorf("creating %s: %w", local, err)}
	}

	done := make(chan error, 1)
	go func() {
		_, err := io.Copy(dst, src)
		done <- err
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var copyErr error
	select {
	case copyErr = <-done:
	case <-timer.C:
		src.Close()
		<-done
		dst.Close()
		os.Remove(local)
		logger.Warn("Download timed out", "remote", remote, "timeout", timeout)
		return &Error{Op: "download", Host: c.cfg.Host, Err: fmt.Errorf("%w after %s: %s", ErrCommandTimeout, timeout, remote)}
	case <-ctx.Done():
		src.Close()
		<-done
		dst.Close()
		os.Remove(local)
		return &Error{Op: "download", Host: c.cfg.Host, Err: ctx.Err()}
	}

	if err := dst.Close(); err != nil && copyErr == nil {
		copyErr = err
	}
	if copyErr != nil {
		os.Remove(local)
		return &Error{Op: "download", Host: c.cfg.Host, Err: fmt.Errorf("copying %s: %w", remote, copyErr)}
	}

	logger.Debug("Downloaded remote file", "remote", remote, "local", local)
	return nil
}

// Close releases the SFTP client and the SSH connection. It is safe to call
// more than once.
func (c *Client) Close() error {
	var errs []error
	if c.sftp != nil {
		if err := c.sftp.Close(); err != nil {
			errs = append(errs, err)
		}
		c.sftp = nil
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, err)
		}
		c.conn = nil
		logger.Debug("SSH connection closed", "host", c.cfg.Host)
	}
	return errors.Join(errs...)
}
