package ocapi

import (
	"context"
	"errors"
	"impexdeploy/internal/apperrors"
	"impexdeploy/internal/job"
	"impexdeploy/internal/testutil"
	"net/http"
	"strings"
	"testing"
)

func newTestClient(inst *testutil.FakeInstance) *Client {
	return NewClient(Config{
		Host:       inst.Host(),
		ClientID:   testutil.FakeClientID,
		APIVersion: "v22_6",
		TokenURL:   inst.TokenURL(),
		HTTPClient: inst.Client(),
	})
}

func TestNewClient_TokenURL(t *testing.T) {
	t.Parallel()
	c := NewClient(Config{AccountManager: "account.demandware.com"})
	if c.tokenURL != "https://account.demandware.com/dwsso/oauth2/access_token" {
		t.Errorf("tokenURL = %q", c.tokenURL)
	}
}

func TestAuthenticate(t *testing.T) {
	t.Parallel()
	inst := testutil.NewFakeInstance(t)
	client := newTestClient(inst)

	token, err := client.Authenticate(context.Background(), testutil.FakeClientID, testutil.FakeClientSecret)
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if token != testutil.FakeToken {
		t.Errorf("token = %q, want %q", token, testutil.FakeToken)
	}
	if inst.TokenCalls.Load() != 1 {
		t.Errorf("token calls = %d, want 1", inst.TokenCalls.Load())
	}
}

func TestAuthenticate_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		setup   func(*testutil.FakeInstance)
		secret  string
		wantMsg string
	}{
		{
			name:    "placeholder credentials",
			secret:  strings.Repeat("a", 36),
			wantMsg: "HTTP 401: invalid_client",
		},
		{
			name:    "empty token",
			secret:  testutil.FakeClientSecret,
			setup:   func(f *testutil.FakeInstance) { f.TokenBody = `{"token_type":"Bearer"}` },
			wantMsg: "HTTP 200",
		},
		{
			name:   "server error",
			secret: testutil.FakeClientSecret,
			setup: func(f *testutil.FakeInstance) {
				f.TokenStatus = http.StatusBadGateway
				f.TokenBody = "<html>bad gateway</html>"
			},
			wantMsg: "HTTP 502: Bad Gateway (invalid token response: invalid character '<'",
		},
		{
			name:    "malformed body on success",
			secret:  testutil.FakeClientSecret,
			setup:   func(f *testutil.FakeInstance) { f.TokenBody = "not json" },
			wantMsg: "HTTP 200: OK (invalid token response: invalid character 'o'",
		},
		{
			name:   "error description",
			secret: testutil.FakeClientSecret,
			setup: func(f *testutil.FakeInstance) {
				f.TokenStatus = http.StatusBadRequest
				f.TokenBody = `{"error":"invalid_request","error_description":"Client is disabled"}`
			},
			wantMsg: "HTTP 400: Client is disabled",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			inst := testutil.NewFakeInstance(t)
			if tt.setup != nil {
				tt.setup(inst)
			}
			client := newTestClient(inst)

			token, err := client.Authenticate(context.Background(), testutil.FakeClientID, tt.secret)
			if token != "" {
				t.Errorf("token = %q, want empty", token)
			}
			if !errors.Is(err, apperrors.ErrAuth) {
				t.Fatalf("error = %v, want ErrAuth", err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error = %q, want it to contain %q", err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestAuthenticate_Unreachable(t *testing.T) {
	t.Parallel()
	client := NewClient(Config{TokenURL: "https://127.0.0.1:1/token"})

	_, err := client.Authenticate(context.Background(), "id", "secret")
	if !errors.Is(err, apperrors.ErrAuth) {
		t.Fatalf("error = %v, want ErrAuth", err)
	}
}

func TestStartImport(t *testing.T) {
	t.Parallel()
	inst := testutil.NewFakeInstance(t)
	client := newTestClient(inst)

	handle, err := client.StartImport(context.Background(), testutil.FakeToken, "site.zip")
	if err != nil {
		t.Fatalf("StartImport() error = %v", err)
	}
	want := job.Handle{JobID: ImportJobID, ExecutionID: testutil.FakeExecutionID}
	if handle != want {
		t.Errorf("handle = %+v, want %+v", handle, want)
	}
	if got := inst.Imports(); len(got) != 1 || got[0] != "site.zip" {
		t.Errorf("imports = %v, want [site.zip]", got)
	}
	token, clientID := inst.LastBearer()
	if token != testutil.FakeToken || clientID != testutil.FakeClientID {
		t.Errorf("auth headers = %q, %q", token, clientID)
	}
}

func TestStartImport_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		token      string
		status     int
		body       string
		wantStatus int
		wantMsg    string
	}{
		{
			name:       "invalid token fault",
			token:      "expired",
			wantStatus: http.StatusUnauthorized,
			wantMsg:    "Could not start import job! HTTP 401: The request is unauthorized, the access token is invalid.",
		},
		{
			name:       "job already running fault",
			token:      testutil.FakeToken,
			status:     http.StatusBadRequest,
			body:       `{"fault":{"type":"JobAlreadyRunningException","message":"The job is already running."}}`,
			wantStatus: http.StatusBadRequest,
			wantMsg:    "Could not start import job! HTTP 400: The job is already running.",
		},
		{
			name:       "error without fault body",
			token:      testutil.FakeToken,
			status:     http.StatusInternalServerError,
			body:       "upstream exploded",
			wantStatus: http.StatusInternalServerError,
			wantMsg:    "Could not start import job! HTTP 500: upstream exploded",
		},
		{
			name:       "success without id",
			token:      testutil.FakeToken,
			status:     http.StatusOK,
			body:       `{"job_id":"sfcc-site-archive-import"}`,
			wantStatus: http.StatusOK,
			wantMsg:    "response did not contain an execution id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			inst := testutil.NewFakeInstance(t)
			inst.ImportStatus = tt.status
			inst.ImportBody = tt.body
			client := newTestClient(inst)

			_, err := client.StartImport(context.Background(), tt.token, "site.zip")
			if !errors.Is(err, apperrors.ErrLaunch) {
				t.Fatalf("error = %v, want ErrLaunch", err)
			}
			if apperrors.StatusCode(err) != tt.wantStatus {
				t.Errorf("status = %d, want %d", apperrors.StatusCode(err), tt.wantStatus)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error = %q, want it to contain %q", err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestExecutionStatus(t *testing.T) {
	t.Parallel()
	inst := testutil.NewFakeInstance(t)
	inst.SetExecutions(
		testutil.RunningExecution(),
		testutil.FinishedExecution("ERROR", "/Sites/LOGS/jobs/import.log",
			testutil.Step{ID: "ImportSiteArchive", Status: "ERROR", Message: "Invalid catalog"},
			testutil.Step{ID: "Cleanup", Status: "OK"},
		),
	)
	client := newTestClient(inst)
	handle := job.Handle{JobID: ImportJobID, ExecutionID: testutil.FakeExecutionID}

	first, err := client.ExecutionStatus(context.Background(), testutil.FakeToken, handle)
	if err != nil {
		t.Fatalf("ExecutionStatus() error = %v", err)
	}
	if first.State() != job.StateRunning || first.ExitStatus != job.ExitUnset {
		t.Errorf("first = %+v, want running", first)
	}

	second, err := client.ExecutionStatus(context.Background(), testutil.FakeToken, handle)
	if err != nil {
		t.Fatalf("ExecutionStatus() error = %v", err)
	}
	if second.State() != job.StateFinishedFailure || second.ExitStatus != job.ExitError {
		t.Errorf("second = %+v, want finished with error", second)
	}
	if second.LogFilePath != "/Sites/LOGS/jobs/import.log" {
		t.Errorf("LogFilePath = %q", second.LogFilePath)
	}
	wantSteps := []job.StepResult{
		{StepID: "ImportSiteArchive", Status: "ERROR", ErrorMessage: "Invalid catalog"},
		{StepID: "Cleanup", Status: "OK"},
	}
	if len(second.Steps) != len(wantSteps) {
		t.Fatalf("steps = %+v", second.Steps)
	}
	for i := range wantSteps {
		if second.Steps[i] != wantSteps[i] {
			t.Errorf("step[%d] = %+v, want %+v", i, second.Steps[i], wantSteps[i])
		}
	}
}

func TestExecutionStatus_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		token   string
		handle  job.Handle
		status  int
		body    string
		wantMsg string
	}{
		{
			name:    "unknown execution",
			token:   testutil.FakeToken,
			handle:  job.Handle{JobID: ImportJobID, ExecutionID: "nope"},
			wantMsg: "HTTP 404: No job execution with the given id was found.",
		},
		{
			name:    "bad token",
			token:   "bad",
			handle:  job.Handle{JobID: ImportJobID, ExecutionID: testutil.FakeExecutionID},
			wantMsg: "HTTP 401",
		},
		{
			name:    "malformed body",
			token:   testutil.FakeToken,
			handle:  job.Handle{JobID: ImportJobID, ExecutionID: testutil.FakeExecutionID},
			status:  http.StatusOK,
			body:    "not json",
			wantMsg: "failed to decode status response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			inst := testutil.NewFakeInstance(t)
			inst.StatusCode = tt.status
			inst.StatusBody = tt.body
			client := newTestClient(inst)

			snap, err := client.ExecutionStatus(context.Background(), tt.token, tt.handle)
			if err == nil {
				t.Fatalf("expected error, got %+v", snap)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error = %q, want it to contain %q", err.Error(), tt.wantMsg)
			}
		})
	}
}
