package sshconn

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/term"
)

// PasswordEnv is the environment variable consulted for the SSH password.
const PasswordEnv = "FAULTSCOPE_SSH_PASSWORD"

const passwordCommandTimeout = 5 * time.Second

// ErrPasswordCommand means the configured password command did not produce
// a password.
var ErrPasswordCommand = errors.New("password command failed")

// ResolvePassword retrieves the SSH password using the following precedence:
// 1. Execute passwordCommand if configured
// 2. Use FAULTSCOPE_SSH_PASSWORD if set (even if empty)
// 3. Prompt on the terminal, when stdin is one
//
// With none of these available it returns an empty password, leaving key
// authentication to succeed or fail on its own.
func ResolvePassword(ctx context.Context, passwordCommand, prompt string) (string, error) {
	if passwordCommand != "" {
		password, err := runPasswordCommand(ctx, passwordCommand)
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrPasswordCommand, err)
		}
		return password, nil
	}

	if v, ok := os.LookupEnv(PasswordEnv); ok {
		return v, nil
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", nil
	}

	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(b), nil
}

// runPasswordCommand runs command through the shell and returns its trimmed
// stdout.
func runPasswordCommand(ctx context.Context, command string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, passwordCommandTimeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("command timed out after %s", passwordCommandTimeout)
		}
		return "", fmt.Errorf("%w (stderr: %s)", err, strings.TrimSpace(stderr.String()))
	}

	password := strings.TrimSpace(stdout.String())
	if password == "" {
		return "", errors.New("command returned empty password")
	}
	return password, nil
}
