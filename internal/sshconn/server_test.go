package sshconn

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"net"
	"os/exec"
	"strconv"
	"testing"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

const (
	testUser     = "tester"
	testPassword = "s3cret"
)

// testServer is an in-process SSH server that runs exec requests with the
// local shell and serves the sftp subsystem from the local filesystem.
type testServer struct {
	t        *testing.T
	listener net.Listener
	hostKey  ssh.Signer
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generating host key: %v", err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatalf("creating signer: %v", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listening: %v", err)
	}

	s := &testServer{t: t, listener: ln, hostKey: signer}

	cfg := &ssh.ServerConfig{
		PasswordCallback: func(c ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if c.User() == testUser && string(pass) == testPassword {
				return nil, nil
			}
			return nil, errors.New("access denied")
		},
	}
	cfg.AddHostKey(signer)

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go s.serveConn(conn, cfg)
		}
	}()

	t.Cleanup(func() {
		ln.Close()
	})
	return s
}

func (s *testServer) port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

func (s *testServer) config() Config {
	return Config{
		Host:                  "127.0.0.1",
		Port:                  s.port(),
		User:                  testUser,
		Password:              testPassword,
		InsecureIgnoreHostKey: true,
		ConnectTimeout:        5 * time.Second,
		CommandTimeout:        5 * time.Second,
	}
}

func (s *testServer) serveConn(conn net.Conn, cfg *ssh.ServerConfig) {
	sconn, chans, reqs, err := ssh.NewServerConn(conn, cfg)
	if err != nil {
		conn.Close()
		return
	}
	defer sconn.Close()
	go ssh.DiscardRequests(reqs)

	for nc := range chans {
		if nc.ChannelType() != "session" {
			_ = nc.Reject(ssh.UnknownChannelType, "unsupported channel type")
			continue
		}
		ch, requests, err := nc.Accept()
		if err != nil {
			continue
		}
		go s.serveSession(ch, requests)
	}
}

func (s *testServer) serveSession(ch ssh.Channel, requests <-chan *ssh.Request) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for req := range requests {
		switch req.Type {
		case "exec":
			var payload struct{ Command string }
			if err := ssh.Unmarshal(req.Payload, &payload); err != nil {
				_ = req.Reply(false, nil)
				continue
			}
			_ = req.Reply(true, nil)
			go runExec(ctx, ch, payload.Command)
		case "subsystem":
			var payload struct{ Name string }
			if err := ssh.Unmarshal(req.Payload, &payload); err != nil || payload.Name != "sftp" {
				_ = req.Reply(false, nil)
				continue
			}
			_ = req.Reply(true, nil)
			go func() {
				server, err := sftp.NewServer(ch)
				if err != nil {
					ch.Close()
					return
				}
				_ = server.Serve()
				server.Close()
			}()
		case "signal":
			cancel()
		default:
			if req.WantReply {
				_ = req.Reply(false, nil)
			}
		}
	}
}

func runExec(ctx context.Context, ch ssh.Channel, command string) {
	defer ch.Close()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Stdout = ch
	cmd.Stderr = ch.Stderr()
	cmd.WaitDelay = 200 * time.Millisecond

	status := 0
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() >= 0 {
			status = exitErr.ExitCode()
		} else {
			status = 255
		}
	}

	_, _ = ch.SendRequest("exit-status", false, ssh.Marshal(&struct{ Status uint32 }{uint32(status)}))
}

func (s *testServer) addr() string {
	return net.JoinHostPort("127.0.0.1", strconv.Itoa(s.port()))
}
