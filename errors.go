package pupdeploy

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConfiguration indicates a required option is missing or invalid.
	ErrConfiguration = errors.New("configuration error")

	// ErrMalformedPatchName indicates a patch file name does not encode a valid local date and time.
	ErrMalformedPatchName = errors.New("malformed patch name")

	// ErrPatchValidation indicates a patch script is structurally invalid.
	ErrPatchValidation = errors.New("patch validation failed")

	// ErrPatchNotFound indicates a tracked patch has no file in the patch directories.
	ErrPatchNotFound = errors.New("patch not found")

	// ErrCrashedPatch indicates the tracking table holds an update or rollback that never completed.
	// No migration may run until an operator resolves it by hand.
	ErrCrashedPatch = errors.New("crashed patch")

	// ErrRemoteCommand indicates a remote command exited with a non-zero status.
	ErrRemoteCommand = errors.New("remote command failed")

	// ErrNoPreviousRelease indicates a rollback was requested but only one release exists.
	ErrNoPreviousRelease = errors.New("no previous release")

	// ErrInvalidTransition indicates a run tried to move between two phases that are not connected.
	ErrInvalidTransition = errors.New("invalid phase transition")
)

// CrashedPatchError names every patch the tracking table shows in a crash state.
type CrashedPatchError struct {
	// CrashedUpdate lists patches whose applied_at is still NULL.
	CrashedUpdate []string

	// CrashedRollback lists patches whose reverted_at is set but whose row was never deleted.
	CrashedRollback []string
}

func (e *CrashedPatchError) Error() string {
	var parts []string
	if len(e.CrashedUpdate) > 0 {
		parts = append(parts, "update did not complete for "+strings.Join(e.CrashedUpdate, ", "))
	}
	if len(e.CrashedRollback) > 0 {
		parts = append(parts, "rollback did not complete for "+strings.Join(e.CrashedRollback, ", "))
	}
	return fmt.Sprintf("%s: %s", ErrCrashedPatch, strings.Join(parts, "; "))
}

// Is makes errors.Is(err, ErrCrashedPatch) match.
func (e *CrashedPatchError) Is(target error) bool {
	return target == ErrCrashedPatch
}

// RemoteCommandError describes a remote command that exited with a non-zero status.
type RemoteCommandError struct {
	// Host is the host the command ran on. Empty for local commands such as rsync.
	Host string

	// Command is the command line with secrets already redacted.
	Command string

	// ExitCode is the exit status of the command, or -1 if it did not start or was killed.
	ExitCode int

	// Output holds the combined output lines of the command.
	Output []string

	// Err is the underlying error, if any.
	Err error
}

func (e *RemoteCommandError) Error() string {
	where := e.Host
	if where == "" {
		where = "local"
	}
	msg := fmt.Sprintf("%s on %s: exit %d: %s", ErrRemoteCommand, where, e.ExitCode, e.Command)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is makes errors.Is(err, ErrRemoteCommand) match.
func (e *RemoteCommandError) Is(target error) bool {
	return target == ErrRemoteCommand
}

// Unwrap returns the underlying error.
func (e *RemoteCommandError) Unwrap() error {
	return e.Err
}
