// Package observability provides deploy metrics exported through a Prometheus registry.
package observability

import (
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Attribute keys
const (
	attrMethod   = "method"
	attrEndpoint = "endpoint"
	attrStatus   = "status"
	attrStage    = "stage"
	attrState    = "state"
	attrOutcome  = "outcome"
	attrSuccess  = "success"
)

// Stages of a deploy run.
const (
	StagePackage      = "package"
	StageUpload       = "upload"
	StageAuthenticate = "authenticate"
	StageLaunch       = "launch"
	StagePoll         = "poll"
	StageNotify       = "notify"
)

func methodAttr(method string) attribute.KeyValue {
	return attribute.String(attrMethod, method)
}

func endpointAttr(path string) attribute.KeyValue {
	return attribute.String(attrEndpoint, normalizePath(path))
}

func statusAttr(code int) attribute.KeyValue {
	// 200-299 -> 2xx, 400-499 -> 4xx, 0 -> network error
	if code == 0 {
		return attribute.String(attrStatus, "error")
	}
	return attribute.String(attrStatus, fmt.Sprintf("%dxx", code/100))
}

func stageAttr(stage string) attribute.KeyValue {
	return attribute.String(attrStage, stage)
}

func stateAttr(state string) attribute.KeyValue {
	return attribute.String(attrState, state)
}

func outcomeAttr(outcome string) attribute.KeyValue {
	return attribute.String(attrOutcome, outcome)
}

func successAttr(success bool) attribute.KeyValue {
	return attribute.Bool(attrSuccess, success)
}

// normalizePath replaces archive names, log paths and execution ids with
// placeholders to keep endpoint cardinality fixed.
func normalizePath(path string) string {
	const (
		impex = "/on/demandware.servlet/webdav/Sites/Impex/src/instance/"
		dav   = "/on/demandware.servlet/webdav/"
		data  = "/s/-/dw/data/"
	)
	switch {
	case strings.HasPrefix(path, impex):
		return impex + "{file}"
	case strings.HasPrefix(path, dav):
		return dav + "{log}"
	case strings.HasPrefix(path, data):
		segments := strings.Split(strings.TrimPrefix(path, data), "/")
		// {version}/jobs/{jobId}/executions[/{executionId}]
		if len(segments) >= 4 && segments[1] == "jobs" && segments[3] == "executions" {
			if len(segments) == 4 {
				return data + "{version}/jobs/{jobId}/executions"
			}
			return data + "{version}/jobs/{jobId}/executions/{executionId}"
		}
		return data + "{other}"
	}
	return path
}

// WithStage returns a metric option with the stage attribute.
func WithStage(stage string) metric.MeasurementOption {
	return metric.WithAttributes(stageAttr(stage))
}

// WithOutcome returns a metric option with the outcome attribute.
func WithOutcome(outcome string) metric.MeasurementOption {
	return metric.WithAttributes(outcomeAttr(outcome))
}
