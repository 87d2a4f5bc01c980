// Package loomerr defines the shared error-kind taxonomy that crosses every
// component boundary in this codebase: a stable kind, a message naming the
// offending input verbatim, and an optional cause chain.
package loomerr

import "fmt"

// Kind is a stable error classification, not a Go type — every component
// returns *Error with one of these kinds rather than a bespoke error type.
type Kind string

const (
	// Usage
	MissingIdentifier Kind = "MissingIdentifier"
	OptionConflict    Kind = "OptionConflict"
	InvalidIdentifier Kind = "InvalidIdentifier"

	// Resolution
	AutoDetectFailed Kind = "AutoDetectFailed"
	UnknownNumber    Kind = "UnknownNumber"

	// Tracker
	NotFound     Kind = "NotFound"
	AuthRequired Kind = "AuthRequired"
	RateLimited  Kind = "RateLimited"
	NetworkError Kind = "NetworkError"
	MissingScope Kind = "MissingScope"

	// VCS
	BranchExists    Kind = "BranchExists"
	BranchMissing   Kind = "BranchMissing"
	WorktreeMissing Kind = "WorktreeMissing"
	RebaseConflict  Kind = "RebaseConflict"
	NotFastForward  Kind = "NotFastForward"
	CommandFailed   Kind = "CommandFailed"

	// Config
	ConfigParseError      Kind = "ConfigParseError"
	ConfigValidationError Kind = "ConfigValidationError"

	// Lifecycle
	ValidationFailed        Kind = "ValidationFailed"
	FinishAborted           Kind = "FinishAborted"
	ClosedIssueWithoutForce Kind = "ClosedIssueWithoutForce"
	NoWorktreeFound         Kind = "NoWorktreeFound"

	// Cleanup (non-fatal)
	DatabaseDeleteFailed Kind = "DatabaseDeleteFailed"
	SymlinkRemovalFailed Kind = "SymlinkRemovalFailed"

	// Unknown error values thrown through unhandled paths.
	Unknown Kind = "Unknown"
)

// nonFatal is the set of kinds that are recorded and logged at warn level
// rather than halting the calling step.
var nonFatal = map[Kind]bool{
	MissingScope:         true,
	DatabaseDeleteFailed: true,
	SymlinkRemovalFailed: true,
}

// IsNonFatal reports whether errors of this kind should be logged at warn
// level and recorded without halting the calling step.
func (k Kind) IsNonFatal() bool {
	return nonFatal[k]
}

// Remediation returns a one-line, user-facing suggestion for a given kind,
// or "" when none applies.
func (k Kind) Remediation() string {
	switch k {
	case ClosedIssueWithoutForce:
		return "Use --force to override closed state"
	case NoWorktreeFound, WorktreeMissing:
		return "Use 'loom list' to see available worktrees"
	case RebaseConflict:
		return "Fix conflicts in the listed files and re-run finish"
	case BranchExists:
		return "Choose a different identifier or clean up the existing branch first"
	case NotFastForward:
		return "Rebase the workspace branch onto the main branch before finishing"
	default:
		return ""
	}
}

// Error is the tagged error value that crosses component boundaries.
type Error struct {
	Kind    Kind
	Message string
	Input   string
	Cause   error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Input != "" {
		msg = fmt.Sprintf("%s (input: %q)", msg, e.Input)
	}
	if r := e.Kind.Remediation(); r != "" {
		msg = fmt.Sprintf("%s — %s", msg, r)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New constructs an *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf constructs an *Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithInput attaches the offending input to an error, returning the receiver
// for chaining.
func (e *Error) WithInput(input string) *Error {
	e.Input = input
	return e
}

// WithCause attaches an underlying cause, returning the receiver for
// chaining.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// Wrap constructs an *Error of the given kind wrapping cause, with input
// carried verbatim for diagnostics.
func Wrap(kind Kind, input string, cause error) *Error {
	return &Error{Kind: kind, Message: cause.Error(), Input: input, Cause: cause}
}

// FromUnknown maps a non-error value recovered from an unhandled path (e.g. a
// panic with a string or nil) to a generic Unknown error.
func FromUnknown(v any) *Error {
	return &Error{Kind: Unknown, Message: fmt.Sprintf("unknown error: %v", v)}
}

// ExitCode maps an error kind to the CLI's stable exit-code contract:
// 0 success, 1 generic failure, 2 usage/argument error, 3 validation error.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var lerr *Error
	if !asLoomErr(err, &lerr) {
		return 1
	}
	switch lerr.Kind {
	case MissingIdentifier, OptionConflict, InvalidIdentifier:
		return 2
	case ConfigParseError, ConfigValidationError:
		return 3
	default:
		return 1
	}
}

func asLoomErr(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
