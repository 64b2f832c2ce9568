// Package job models a remote import job execution and drives it to a
// terminal outcome.
package job

import "strings"

// Execution status reported by the control plane once a job stops running.
const StatusFinished = "finished"

// ExitStatus is the classified exit status of a finished execution.
type ExitStatus string

// Exit statuses.
const (
	ExitOK    ExitStatus = "ok"
	ExitError ExitStatus = "error"
	ExitUnset ExitStatus = ""
)

// ParseExitStatus normalizes the server's exit status string.
// Unknown values are kept as-is so they can be reported.
func ParseExitStatus(s string) ExitStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ok":
		return ExitOK
	case "error":
		return ExitError
	case "":
		return ExitUnset
	default:
		return ExitStatus(strings.ToLower(strings.TrimSpace(s)))
	}
}

// State is the poller's view of an execution.
type State string

// Poller states.
const (
	StateRunning         State = "running"
	StateFinishedSuccess State = "finished-success"
	StateFinishedFailure State = "finished-failure"
)

// Handle identifies one started execution of an import job.
type Handle struct {
	JobID       string `json:"jobId"`
	ExecutionID string `json:"executionId"`
}

// StepResult is the result of one step of an execution.
type StepResult struct {
	StepID       string `json:"stepId"`
	Status       string `json:"status"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// Snapshot is the status of an execution at one point in time.
type Snapshot struct {
	ExecutionStatus string
	ExitStatus      ExitStatus
	LogFilePath     string
	Steps           []StepResult
}

// State classifies the snapshot. A finished execution with any exit status
// other than ok is a failure.
func (s *Snapshot) State() State {
	if s.ExecutionStatus != StatusFinished {
		return StateRunning
	}
	if s.ExitStatus == ExitOK {
		return StateFinishedSuccess
	}
	return StateFinishedFailure
}

// Kind enumerates the outcomes of one deploy run.
type Kind string

// Outcome kinds.
const (
	KindSuccess        Kind = "success"
	KindFailure        Kind = "failure"
	KindConfigError    Kind = "config-error"
	KindPackageError   Kind = "package-error"
	KindTransportError Kind = "transport-error"
	KindAuthError      Kind = "auth-error"
	KindLaunchError    Kind = "launch-error"
	KindPollError      Kind = "poll-error"
)

// Outcome is the single result of a deploy run.
type Outcome struct {
	Kind    Kind
	Handle  Handle
	LogURL  string
	Summary string
	Steps   []StepResult
	Err     error
}

// Succeeded reports whether the import finished with exit status ok.
func (o *Outcome) Succeeded() bool {
	return o.Kind == KindSuccess
}
