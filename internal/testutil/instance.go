package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// Fake instance defaults.
const (
	FakeUsername     = "admin"
	FakePassword     = "secret"
	FakeClientID     = "client-id"
	FakeClientSecret = "client-secret"
	FakeToken        = "fake-access-token"
	FakeExecutionID  = "exec-1"
	ImportJobID      = "sfcc-site-archive-import"
)

// Step describes one step execution in a scripted status response.
type Step struct {
	ID      string
	Status  string
	Message string
}

// FakeInstance is a TLS test server that answers the account manager token
// endpoint, the WebDAV Impex share and the OCAPI job endpoints.
type FakeInstance struct {
	Server *httptest.Server

	// UploadStatus forces the WebDAV upload response when non-zero.
	UploadStatus int
	// UploadFailures answers that many uploads with 503 before accepting.
	UploadFailures int64
	// TokenStatus forces the token response when non-zero.
	TokenStatus int
	// TokenBody replaces the token response body when non-empty.
	TokenBody string
	// ImportStatus and ImportBody force the job start response when ImportStatus is non-zero.
	ImportStatus int
	ImportBody   string
	// StatusCode and StatusBody force the execution status response when StatusCode is non-zero.
	StatusCode int
	StatusBody string
	// StatusDelay is applied before every execution status response.
	StatusDelay time.Duration

	TokenCalls  atomic.Int64
	UploadCalls atomic.Int64
	ImportCalls atomic.Int64
	StatusCalls atomic.Int64
	LogCalls    atomic.Int64

	mu         sync.Mutex
	uploads    map[string][]byte
	imports    []string
	executions []string
	logs       map[string]string
	lastBearer string
	lastClient string
}

// NewFakeInstance starts a fake instance that is closed when the test ends.
// Status checks report a running job until SetExecutions is called.
func NewFakeInstance(tb testing.TB) *FakeInstance {
	tb.Helper()
	f := &FakeInstance{
		uploads:    make(map[string][]byte),
		logs:       make(map[string]string),
		executions: []string{RunningExecution()},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /dwsso/oauth2/access_token", f.handleToken)
	mux.HandleFunc("POST /on/demandware.servlet/webdav/Sites/Impex/src/instance/{name}", f.handleUpload)
	mux.HandleFunc("GET /on/demandware.servlet/webdav/{path...}", f.handleLog)
	mux.HandleFunc("POST /s/-/dw/data/{version}/jobs/"+ImportJobID+"/executions", f.handleImport)
	mux.HandleFunc("GET /s/-/dw/data/{version}/jobs/{job}/executions/{id}", f.handleStatus)

	f.Server = httptest.NewTLSServer(mux)
	tb.Cleanup(f.Server.Close)
	return f
}

// Host returns the host:port of the instance.
func (f *FakeInstance) Host() string {
	return strings.TrimPrefix(f.Server.URL, "https://")
}

// Client returns an HTTP client that trusts the instance certificate.
func (f *FakeInstance) Client() *http.Client {
	return f.Server.Client()
}

// TokenURL returns the token endpoint served by the instance.
func (f *FakeInstance) TokenURL() string {
	return f.Server.URL + "/dwsso/oauth2/access_token"
}

// SetExecutions scripts the status responses. Each check consumes one entry
// and the last one repeats.
func (f *FakeInstance) SetExecutions(bodies ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executions = bodies
}

// SetLog serves content at the WebDAV path of a job log.
func (f *FakeInstance) SetLog(logFilePath, content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs[logFilePath] = content
}

// Uploaded returns the bytes received for name.
func (f *FakeInstance) Uploaded(name string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.uploads[name]
	return data, ok
}

// Imports returns the file names of every job start request, in order.
func (f *FakeInstance) Imports() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.imports...)
}

// LastBearer returns the bearer token and client id header of the last OCAPI call.
func (f *FakeInstance) LastBearer() (token, clientID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastBearer, f.lastClient
}

func (f *FakeInstance) handleToken(w http.ResponseWriter, r *http.Request) {
	f.TokenCalls.Add(1)
	if f.TokenStatus != 0 {
		writeRaw(w, f.TokenStatus, f.TokenBody)
		return
	}
	id, secret, ok := r.BasicAuth()
	if !ok || id != FakeClientID || secret != FakeClientSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid_client"})
		return
	}
	if err := r.ParseForm(); err != nil || r.PostForm.Get("grant_type") != "client_credentials" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})
		return
	}
	if f.TokenBody != "" {
		writeRaw(w, http.StatusOK, f.TokenBody)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": FakeToken,
		"token_type":   "Bearer",
		"expires_in":   1799,
	})
}

func (f *FakeInstance) handleUpload(w http.ResponseWriter, r *http.Request) {
	n := f.UploadCalls.Add(1)
	if f.UploadStatus != 0 {
		w.WriteHeader(f.UploadStatus)
		return
	}
	if n <= f.UploadFailures {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	user, pass, ok := r.BasicAuth()
	if !ok || user != FakeUsername || pass != FakePassword {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	name := r.PathValue("name")
	f.mu.Lock()
	_, exists := f.uploads[name]
	if !exists {
		f.uploads[name] = data
	}
	f.mu.Unlock()

	if exists {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (f *FakeInstance) handleLog(w http.ResponseWriter, r *http.Request) {
	f.LogCalls.Add(1)
	user, pass, ok := r.BasicAuth()
	if !ok || user != FakeUsername || pass != FakePassword {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	f.mu.Lock()
	content, found := f.logs["/"+r.PathValue("path")]
	f.mu.Unlock()
	if !found {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	io.WriteString(w, content)
}

func (f *FakeInstance) handleImport(w http.ResponseWriter, r *http.Request) {
	f.ImportCalls.Add(1)
	if !f.authorized(w, r) {
		return
	}
	var body struct {
		FileName string `json:"file_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeFault(w, http.StatusBadRequest, "MalformedDocumentException", "The request body is not valid JSON.")
		return
	}
	f.mu.Lock()
	f.imports = append(f.imports, body.FileName)
	f.mu.Unlock()

	if f.ImportStatus != 0 {
		writeRaw(w, f.ImportStatus, f.ImportBody)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"id":               FakeExecutionID,
		"job_id":           ImportJobID,
		"execution_status": "pending",
	})
}

func (f *FakeInstance) handleStatus(w http.ResponseWriter, r *http.Request) {
	f.StatusCalls.Add(1)
	if f.StatusDelay > 0 {
		select {
		case <-time.After(f.StatusDelay):
		case <-r.Context().Done():
			return
		}
	}
	if !f.authorized(w, r) {
		return
	}
	if f.StatusCode != 0 {
		writeRaw(w, f.StatusCode, f.StatusBody)
		return
	}
	if r.PathValue("job") != ImportJobID || r.PathValue("id") != FakeExecutionID {
		writeFault(w, http.StatusNotFound, "JobExecutionNotFoundException", "No job execution with the given id was found.")
		return
	}

	f.mu.Lock()
	body := f.executions[0]
	if len(f.executions) > 1 {
		f.executions = f.executions[1:]
	}
	f.mu.Unlock()
	writeRaw(w, http.StatusOK, body)
}

func (f *FakeInstance) authorized(w http.ResponseWriter, r *http.Request) bool {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	f.mu.Lock()
	f.lastBearer = token
	f.lastClient = r.Header.Get("x-dw-client-id")
	f.mu.Unlock()
	if token != FakeToken {
		writeFault(w, http.StatusUnauthorized, "InvalidAccessTokenException", "The request is unauthorized, the access token is invalid.")
		return false
	}
	return true
}

// RunningExecution returns a status body for a job still in progress.
func RunningExecution() string {
	return execution("running", "", "")
}

// FinishedExecution returns a status body for a finished job.
func FinishedExecution(exitStatus, logFilePath string, steps ...Step) string {
	return execution("finished", exitStatus, logFilePath, steps...)
}

func execution(state, exitStatus, logFilePath string, steps ...Step) string {
	doc := map[string]any{
		"id":               FakeExecutionID,
		"job_id":           ImportJobID,
		"execution_status": state,
	}
	if exitStatus != "" {
		doc["exit_status"] = map[string]string{"code": strings.ToUpper(exitStatus), "status": exitStatus}
	}
	if logFilePath != "" {
		doc["log_file_path"] = logFilePath
	}
	if len(steps) > 0 {
		list := make([]map[string]any, 0, len(steps))
		for _, s := range steps {
			step := map[string]any{"step_id": s.ID, "status": s.Status}
			if s.Message != "" {
				step["exit_status"] = map[string]string{"message": s.Message}
			}
			list = append(list, step)
		}
		doc["step_executions"] = list
	}
	data, _ := json.Marshal(doc)
	return string(data)
}

func writeFault(w http.ResponseWriter, status int, faultType, message string) {
	writeJSON(w, status, map[string]any{
		"_v":    "22.6",
		"fault": map[string]string{"type": faultType, "message": message},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeRaw(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	io.WriteString(w, body)
}
