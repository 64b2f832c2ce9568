package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func gatheredNames(t *testing.T, m *Metrics) []string {
	t.Helper()
	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	return names
}

func hasPrefix(names []string, prefix string) bool {
	for _, n := range names {
		if strings.HasPrefix(n, prefix) {
			return true
		}
	}
	return false
}

func TestNewMetrics(t *testing.T) {
	t.Parallel()
	metrics, err := NewMetrics()
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}
	if metrics == nil || metrics.Registry() == nil {
		t.Fatal("Expected metrics and registry to be non-nil")
	}
}

func TestRecordWorkflowMetrics(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	metrics, err := NewMetrics()
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}

	metrics.RecordStage(ctx, StagePackage, nil, 120*time.Millisecond)
	metrics.RecordStage(ctx, StageUpload, errors.New("boom"), time.Second)
	metrics.RecordArtifactSize(ctx, 4096)
	metrics.RecordStatusCheck(ctx, "running", nil)
	metrics.RecordStatusCheck(ctx, "finished-success", nil)
	metrics.RecordStatusCheck(ctx, "running", errors.New("HTTP 500"))
	metrics.RecordOutcome(ctx, "success")
	metrics.RecordNotification(ctx, true)

	names := gatheredNames(t, metrics)
	for _, prefix := range []string{
		"impex_stage_duration_seconds",
		"impex_stage_errors",
		"impex_artifact_size_bytes",
		"impex_status_checks",
		"impex_outcomes",
		"impex_notifications",
	} {
		if !hasPrefix(names, prefix) {
			t.Errorf("metric %s not exported; got %v", prefix, names)
		}
	}
}

func TestInstrumentTransport(t *testing.T) {
	t.Parallel()
	metrics, err := NewMetrics()
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := &http.Client{Transport: metrics.InstrumentTransport(nil)}
	resp, err := client.Post(server.URL+"/on/demandware.servlet/webdav/Sites/Impex/src/instance/site.zip", "application/zip", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()

	families, err := metrics.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	found := false
	for _, f := range families {
		if !strings.HasPrefix(f.GetName(), "impex_http_requests") {
			continue
		}
		for _, m := range f.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "endpoint" && l.GetValue() == "/on/demandware.servlet/webdav/Sites/Impex/src/instance/{file}" {
					found = true
				}
			}
		}
	}
	if !found {
		t.Error("expected an impex_http_requests sample for the normalized upload endpoint")
	}
}

func TestWriteTextfile(t *testing.T) {
	t.Parallel()
	metrics, err := NewMetrics()
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}
	metrics.RecordOutcome(context.Background(), "failure")

	path := filepath.Join(t.TempDir(), "impex.prom")
	if err := metrics.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	if !strings.Contains(string(data), `impex_outcomes`) || !strings.Contains(string(data), `outcome="failure"`) {
		t.Errorf("textfile missing outcome sample:\n%s", data)
	}

	if err := metrics.WriteTextfile(filepath.Join(t.TempDir(), "missing", "impex.prom")); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestShutdown(t *testing.T) {
	t.Parallel()
	metrics, err := NewMetrics()
	if err != nil {
		t.Fatalf("Failed to create metrics: %v", err)
	}
	if err := metrics.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestStatusAttr(t *testing.T) {
	t.Parallel()
	tests := map[int]string{0: "error", 200: "2xx", 204: "2xx", 401: "4xx", 503: "5xx"}
	for code, want := range tests {
		if got := statusAttr(code).Value.AsString(); got != want {
			t.Errorf("statusAttr(%d) = %q, want %q", code, got, want)
		}
	}
}

func TestNormalizePath(t *testing.T) {
	t.Parallel()
	tests := []struct {
		input    string
		expected string
	}{
		{"/dwsso/oauth2/access_token", "/dwsso/oauth2/access_token"},
		{"/on/demandware.servlet/webdav/Sites/Impex/src/instance/site.zip", "/on/demandware.servlet/webdav/Sites/Impex/src/instance/{file}"},
		{"/on/demandware.servlet/webdav/Sites/LOGS/jobs/import.log", "/on/demandware.servlet/webdav/{log}"},
		{"/s/-/dw/data/v22_6/jobs/sfcc-site-archive-import/executions", "/s/-/dw/data/{version}/jobs/{jobId}/executions"},
		{"/s/-/dw/data/v22_6/jobs/sfcc-site-archive-import/executions/42", "/s/-/dw/data/{version}/jobs/{jobId}/executions/{executionId}"},
		{"/s/-/dw/data/v22_6/sites", "/s/-/dw/data/{other}"},
		{"/other/path", "/other/path"},
	}

	for _, tt := range tests {
		result := normalizePath(tt.input)
		if result != tt.expected {
			t.Errorf("normalizePath(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}
