// Package app turns engine errors into operator-facing messages.
package app

import (
	"errors"
	"fmt"
	"strings"

	"github.com/willibrandon/faultscope/internal/faultid"
	"github.com/willibrandon/faultscope/internal/match"
	"github.com/willibrandon/faultscope/internal/query"
	"github.com/willibrandon/faultscope/internal/sshconn"
)

// FormatError formats any error returned by the engine with actionable
// guidance. Unknown errors get a generic message.
func FormatError(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, sshconn.ErrPasswordCommand):
		return FormatPasswordCommandError(err)
	case errors.Is(err, sshconn.ErrAuthentication):
		return fmt.Sprintf(
			"Authentication failed: the log host rejected the credentials.\n\n"+
				"Troubleshooting steps:\n"+
				"  1. Verify ssh.user in config.yaml\n"+
				"  2. Check ssh.password_command or the FAULTSCOPE_SSH_PASSWORD environment variable\n"+
				"  3. If using ssh.key_file, make sure the public key is in ~/.ssh/authorized_keys on the host\n"+
				"\nOriginal error: %s", err)
	case errors.Is(err, sshconn.ErrCommandTimeout):
		return fmt.Sprintf(
			"Remote operation timed out.\n\n"+
				"Troubleshooting steps:\n"+
				"  1. Narrow the path or add keywords so less data is scanned\n"+
				"  2. Raise query.grep_timeout in config.yaml\n"+
				"  3. Use --method remote for large corpora instead of downloading them\n"+
				"\nOriginal error: %s", err)
	case errors.Is(err, sshconn.ErrConnection):
		return FormatConnectionError(err)
	case errors.Is(err, faultid.ErrInvalidFormat):
		return fmt.Sprintf(
			"Invalid fault id.\n\n"+
				"Fault ids are hex values such as 0x0165, 0x165 or 165.\n"+
				"\nOriginal error: %s", err)
	case errors.Is(err, match.ErrInvalidPattern):
		return fmt.Sprintf(
			"Invalid extraction pattern.\n\n"+
				"Patterns use Go regular expression syntax (RE2) and are matched case-insensitively.\n"+
				"Lookaheads and backreferences are not supported.\n"+
				"\nOriginal error: %s", err)
	case errors.Is(err, match.ErrInvalidLogic), errors.Is(err, query.ErrInvalidRequest):
		return fmt.Sprintf("Invalid query: %s", err)
	}

	return fmt.Sprintf(
		"Error:\n\n"+
			"%s\n\n"+
			"Check your configuration in config.yaml or environment variables.\n"+
			"Run with --debug flag for detailed logs.", err)
}

// FormatConnectionError formats a connection error with actionable guidance
func FormatConnectionError(err error) string {
	errMsg := err.Error()

	if strings.Contains(errMsg, "connection refused") {
		return fmt.Sprintf(
			"Connection refused: the log host is not accepting SSH connections.\n\n"+
				"Troubleshooting steps:\n"+
				"  1. Verify sshd is running: systemctl status sshd\n"+
				"  2. Check ssh.port matches the port sshd listens on\n"+
				"  3. Verify firewall settings allow the connection\n"+
				"\nOriginal error: %s", errMsg)
	}

	if strings.Contains(errMsg, "no such host") || strings.Contains(errMsg, "unknown host") {
		return fmt.Sprintf(
			"Host not found: Cannot resolve hostname.\n\n"+
				"Troubleshooting steps:\n"+
				"  1. Verify ssh.host in your configuration\n"+
				"  2. Try using IP address instead of hostname\n"+
				"  3. Check DNS resolution: ping <hostname>\n"+
				"\nOriginal error: %s", errMsg)
	}

	if strings.Contains(errMsg, "key mismatch") || strings.Contains(errMsg, "knownhosts") ||
		strings.Contains(errMsg, "host key") {
		return fmt.Sprintf(
			"Host key verification failed.\n\n"+
				"Troubleshooting steps:\n"+
				"  1. Add the host key: ssh-keyscan -p <port> <host> >> ~/.ssh/known_hosts\n"+
				"  2. If the host was reinstalled, remove the stale entry: ssh-keygen -R <host>\n"+
				"  3. Point ssh.known_hosts_file at the right file\n"+
				"\nOriginal error: %s", errMsg)
	}

	if strings.Contains(errMsg, "timeout") || strings.Contains(errMsg, "deadline exceeded") {
		return fmt.Sprintf(
			"Connection timeout: the log host did not respond in time.\n\n"+
				"Troubleshooting steps:\n"+
				"  1. Check network connectivity to the log host\n"+
				"  2. Raise ssh.connect_timeout in config.yaml\n"+
				"  3. Check for network firewall rules blocking the connection\n"+
				"\nOriginal error: %s", errMsg)
	}

	if strings.Contains(errMsg, "sftp") {
		return fmt.Sprintf(
			"SFTP is unavailable on the log host.\n\n"+
				"Troubleshooting steps:\n"+
				"  1. Enable the sftp subsystem in sshd_config\n"+
				"  2. Use --method remote, which needs only command execution\n"+
				"\nOriginal error: %s", errMsg)
	}

	return fmt.Sprintf(
		"SSH connection error:\n\n"+
			"%s\n\n"+
			"Check your configuration in config.yaml or environment variables.\n"+
			"Run with --debug flag for detailed logs.", errMsg)
}

// FormatPasswordCommandError formats a password command execution error
func FormatPasswordCommandError(err error) string {
	errMsg := err.Error()

	if strings.Contains(errMsg, "timed out") {
		return fmt.Sprintf(
			"Password command timed out after 5 seconds.\n\n"+
				"Troubleshooting steps:\n"+
				"  1. Test the command manually in your terminal\n"+
				"  2. Ensure the password manager is unlocked\n"+
				"  3. Check if the command requires user interaction\n"+
				"\nOriginal error: %s", errMsg)
	}

	if strings.Contains(errMsg, "not found") {
		return fmt.Sprintf(
			"Password command not found.\n\n"+
				"Troubleshooting steps:\n"+
				"  1. Verify the command is in your PATH\n"+
				"  2. Use absolute path to the executable\n"+
				"  3. Check if the password manager is installed\n"+
				"\nOriginal error: %s", errMsg)
	}

	return fmt.Sprintf(
		"Password command failed.\n\n"+
			"Troubleshooting steps:\n"+
			"  1. Test ssh.password_command manually\n"+
			"  2. Check the command output and errors\n"+
			"  3. Verify the password manager is configured correctly\n"+
			"\nOriginal error: %s", errMsg)
}
