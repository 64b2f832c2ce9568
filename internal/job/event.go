package job

import (
	"impexdeploy/pkg/cloudevent"
)

// Event types for deploy outcome notifications.
const (
	EventTypeSucceeded = "impex.import.succeeded"
	EventTypeFailed    = "impex.import.failed"
	EventTypeAborted   = "impex.import.aborted"
)

// EventType returns the notification type for an outcome kind.
func EventType(kind Kind) string {
	switch kind {
	case KindSuccess:
		return EventTypeSucceeded
	case KindFailure:
		return EventTypeFailed
	default:
		return EventTypeAborted
	}
}

// EventBuilder builds CloudEvents for deploy outcomes.
type EventBuilder struct {
	source string
	runID  string
	host   string
}

// NewEventBuilder creates an EventBuilder for one run against host.
func NewEventBuilder(runID, source, host string) *EventBuilder {
	return &EventBuilder{
		source: source,
		runID:  runID,
		host:   host,
	}
}

// BuildOutcomeEvent creates the single notification for a finished run.
// The subject is the execution id when the job was started, else the run id.
func (b *EventBuilder) BuildOutcomeEvent(outcome *Outcome, artifact string) *cloudevent.CloudEvent {
	data := map[string]any{
		"runId":    b.runID,
		"host":     b.host,
		"outcome":  string(outcome.Kind),
		"artifact": artifact,
	}
	subject := b.runID
	if outcome.Handle.ExecutionID != "" {
		subject = outcome.Handle.ExecutionID
		data["jobId"] = outcome.Handle.JobID
		data["executionId"] = outcome.Handle.ExecutionID
	}
	if outcome.LogURL != "" {
		data["logUrl"] = outcome.LogURL
	}
	if outcome.Summary != "" {
		data["summary"] = outcome.Summary
	}
	if len(outcome.Steps) > 0 {
		data["steps"] = outcome.Steps
	}
	if outcome.Err != nil {
		data["error"] = outcome.Err.Error()
	}
	return cloudevent.New(EventType(outcome.Kind), b.source, subject, b.runID, data)
}
