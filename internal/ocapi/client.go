// Package ocapi talks to the control plane of a commerce instance: the account
// manager token endpoint and the OCAPI Data API job resources.
package ocapi

import (
	"context"
	"encoding/json"
	"fmt"
	"impexdeploy/internal/apperrors"
	"impexdeploy/internal/job"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// ImportJobID is the system job that imports a site archive.
const ImportJobID = "sfcc-site-archive-import"

const (
	tokenPath    = "/dwsso/oauth2/access_token"
	maxBodyBytes = 1 << 20
)

// Config holds the control-plane settings for one instance.
type Config struct {
	Host           string // instance host, e.g. dev01-eu01-acme.demandware.net
	ClientID       string // sent as x-dw-client-id on Data API calls
	APIVersion     string // e.g. v22_6
	AccountManager string // token endpoint host
	TokenURL       string // overrides the URL derived from AccountManager
	HTTPClient     *http.Client
}

// Client is a control-plane client for one instance.
type Client struct {
	host       string
	clientID   string
	apiVersion string
	tokenURL   string
	httpClient *http.Client
}

// NewClient creates a control-plane client.
func NewClient(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = "https://" + cfg.AccountManager + tokenPath
	}
	return &Client{
		host:       cfg.Host,
		clientID:   cfg.ClientID,
		apiVersion: cfg.APIVersion,
		tokenURL:   tokenURL,
		httpClient: httpClient,
	}
}

// fault is the error document returned by the Data API.
type fault struct {
	Fault *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"fault"`
}

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	TokenType        string `json:"token_type"`
	ExpiresIn        int    `json:"expires_in"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// Authenticate exchanges client credentials for a bearer token.
func (c *Client) Authenticate(ctx context.Context, clientID, clientSecret string) (string, error) {
	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", apperrors.Auth("Authorization failed: "+err.Error(), err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(clientID, clientSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", apperrors.Auth("Authorization failed: "+err.Error(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", apperrors.Auth("Authorization failed: "+err.Error(), err)
	}

	var token tokenResponse
	decodeErr := json.Unmarshal(body, &token)

	if resp.StatusCode != http.StatusOK || token.AccessToken == "" {
		detail := token.ErrorDescription
		if detail == "" {
			detail = token.Error
		}
		if detail == "" {
			detail = http.StatusText(resp.StatusCode)
		}
		if decodeErr != nil {
			detail += " (invalid token response: " + decodeErr.Error() + ")"
		}
		return "", apperrors.Auth(fmt.Sprintf("Authorization failed: HTTP %d: %s", resp.StatusCode, detail), decodeErr)
	}

	slog.Debug("Obtained access token", "expiresIn", token.ExpiresIn)
	return token.AccessToken, nil
}

func (c *Client) dataURL(path string) string {
	return "https://" + c.host + "/s/-/dw/data/" + c.apiVersion + path
}

// StartImport starts the site import job for an archive already present in
// the Impex source folder.
func (c *Client) StartImport(ctx context.Context, token, fileName string) (job.Handle, error) {
	payload, err := json.Marshal(map[string]string{"file_name": fileName})
	if err != nil {
		return job.Handle{}, apperrors.Launch(0, "Could not start import job! "+err.Error(), err)
	}

	endpoint := c.dataURL("/jobs/" + ImportJobID + "/executions")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(string(payload)))
	if err != nil {
		return job.Handle{}, apperrors.Launch(0, "Could not start import job! "+err.Error(), err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req, token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return job.Handle{}, apperrors.Launch(0, "Could not start import job! "+err.Error(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return job.Handle{}, apperrors.Launch(resp.StatusCode, "Could not start import job! "+err.Error(), err)
	}

	var result struct {
		fault
		ID    string `json:"id"`
		JobID string `json:"job_id"`
	}
	decodeErr := json.Unmarshal(body, &result)

	if resp.StatusCode >= http.StatusBadRequest || result.ID == "" {
		switch {
		case result.Fault != nil:
			return job.Handle{}, apperrors.Launch(resp.StatusCode,
				fmt.Sprintf("Could not start import job! HTTP %d: %s", resp.StatusCode, result.Fault.Message), nil)
		case decodeErr != nil:
			return job.Handle{}, apperrors.Launch(resp.StatusCode,
				fmt.Sprintf("Could not start import job! HTTP %d: %s", resp.StatusCode, rawSnippet(body, decodeErr)), decodeErr)
		default:
			return job.Handle{}, apperrors.Launch(resp.StatusCode,
				fmt.Sprintf("Could not start import job! HTTP %d: response did not contain an execution id", resp.StatusCode), nil)
		}
	}

	handle := job.Handle{JobID: result.JobID, ExecutionID: result.ID}
	if handle.JobID == "" {
		handle.JobID = ImportJobID
	}
	slog.Info("Job started", "host", c.host, "jobId", handle.JobID, "executionId", handle.ExecutionID)
	return handle, nil
}

type stepExecution struct {
	StepID     string `json:"step_id"`
	Status     string `json:"status"`
	ExitStatus *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"exit_status"`
}

type execution struct {
	fault
	ID              string `json:"id"`
	JobID           string `json:"job_id"`
	ExecutionStatus string `json:"execution_status"`
	ExitStatus      *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"exit_status"`
	LogFilePath    string          `json:"log_file_path"`
	StepExecutions []stepExecution `json:"step_executions"`
}

// ExecutionStatus fetches a fresh snapshot of a job execution.
func (c *Client) ExecutionStatus(ctx context.Context, token string, handle job.Handle) (*job.Snapshot, error) {
	endpoint := c.dataURL("/jobs/" + url.PathEscape(handle.JobID) + "/executions/" + url.PathEscape(handle.ExecutionID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.authorize(req, token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read status response: %w", err)
	}

	var exec execution
	decodeErr := json.Unmarshal(body, &exec)
	if resp.StatusCode != http.StatusOK {
		if exec.Fault != nil {
			return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, exec.Fault.Message)
		}
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, rawSnippet(body, decodeErr))
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("failed to decode status response: %w", decodeErr)
	}

	return exec.snapshot(), nil
}

func (e *execution) snapshot() *job.Snapshot {
	snap := &job.Snapshot{
		ExecutionStatus: e.ExecutionStatus,
		ExitStatus:      job.ExitUnset,
		LogFilePath:     e.LogFilePath,
	}
	if e.ExitStatus != nil {
		snap.ExitStatus = job.ParseExitStatus(e.ExitStatus.Status)
	}
	for _, s := range e.StepExecutions {
		step := job.StepResult{StepID: s.StepID, Status: s.Status}
		if s.ExitStatus != nil {
			step.ErrorMessage = s.ExitStatus.Message
		}
		snap.Steps = append(snap.Steps, step)
	}
	return snap
}

func (c *Client) authorize(req *http.Request, token string) {
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("x-dw-client-id", c.clientID)
}

func rawSnippet(body []byte, decodeErr error) string {
	text := strings.TrimSpace(string(body))
	if text == "" {
		if decodeErr != nil {
			return decodeErr.Error()
		}
		return "empty response"
	}
	if len(text) > 200 {
		text = text[:200] + "..."
	}
	return text
}
