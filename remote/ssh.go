package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/getpup/pupdeploy"
	"github.com/getpup/pupsourcing/es"
)

// DefaultCommandTimeout bounds every command unless configured otherwise.
const DefaultCommandTimeout = 10 * time.Minute

// SSHConfig configures an SSHRunner.
type SSHConfig struct {
	// User is the remote user name (required for remote hosts).
	User string

	// SSHPath is the ssh binary (default: "ssh").
	SSHPath string

	// Options are extra ssh arguments, e.g. "-o", "BatchMode=yes".
	Options []string

	// Shell runs local commands (default: "sh").
	Shell string

	// Timeout bounds each command (default: DefaultCommandTimeout).
	Timeout time.Duration

	// Logger is for observability (optional).
	Logger es.Logger

	// Observe, if set, is called after every command with its host and whether it succeeded.
	Observe func(host pupdeploy.Host, success bool)
}

// SSHRunner runs commands over ssh, or through the local shell for an empty host.
type SSHRunner struct {
	config SSHConfig
}

// Compile-time check that SSHRunner implements Runner.
var _ Runner = (*SSHRunner)(nil)

// NewSSHRunner creates an SSHRunner with the given configuration.
func NewSSHRunner(cfg SSHConfig) *SSHRunner {
	if cfg.SSHPath == "" {
		cfg.SSHPath = "ssh"
	}
	if cfg.Shell == "" {
		cfg.Shell = "sh"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultCommandTimeout
	}
	return &SSHRunner{config: cfg}
}

// Args returns the program and arguments that run cmd.
func (r *SSHRunner) Args(cmd Command) []string {
	if cmd.Host == "" {
		return []string{r.config.Shell, "-c", cmd.Script}
	}

	args := make([]string, 0, len(r.config.Options)+3)
	args = append(args, r.config.SSHPath)
	args = append(args, r.config.Options...)
	target := string(cmd.Host)
	if r.config.User != "" {
		target = r.config.User + "@" + target
	}
	return append(args, target, cmd.Script)
}

// Run executes cmd and waits for it to finish or time out.
func (r *SSHRunner) Run(ctx context.Context, cmd Command) (Result, error) {
	timeout := r.config.Timeout
	if cmd.Timeout > 0 {
		timeout = cmd.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := r.Args(cmd)
	redacted := Redact(cmd.Script)

	if r.config.Logger != nil {
		r.config.Logger.Debug(ctx, "running command", "host", hostLabel(cmd.Host), "command", redacted)
	}

	c := exec.CommandContext(ctx, args[0], args[1:]...)
	c.WaitDelay = time.Second
	var out bytes.Buffer
	c.Stdout = &out
	c.Stderr = &out
	if cmd.Stdin != "" {
		c.Stdin = strings.NewReader(cmd.Stdin)
	}

	runErr := c.Run()
	result := Result{Output: splitLines(out.Bytes())}

	var exitErr *exec.ExitError
	switch {
	case runErr == nil:
	case ctx.Err() != nil:
		result.ExitCode = -1
		runErr = fmt.Errorf("command did not finish within %s: %w", timeout, ctx.Err())
	case errors.As(runErr, &exitErr):
		result.ExitCode = exitErr.ExitCode()
		runErr = nil
	default:
		result.ExitCode = -1
	}

	if r.config.Observe != nil {
		r.config.Observe(cmd.Host, runErr == nil && result.ExitCode == 0)
	}

	if runErr == nil && (result.ExitCode == 0 || cmd.AllowFailure) {
		return result, nil
	}

	if r.config.Logger != nil {
		r.config.Logger.Error(ctx, "command failed", "host", hostLabel(cmd.Host), "command", redacted, "exit_code", result.ExitCode)
	}

	return result, &pupdeploy.RemoteCommandError{
		Host:     string(cmd.Host),
		Command:  redacted,
		ExitCode: result.ExitCode,
		Output:   result.Output,
		Err:      runErr,
	}
}

func hostLabel(h pupdeploy.Host) string {
	if h == "" {
		return "local"
	}
	return string(h)
}
