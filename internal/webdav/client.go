// Package webdav moves archives to and logs from an instance's WebDAV share
// using the Business Manager user's basic credentials.
package webdav

import (
	"context"
	"errors"
	"fmt"
	"impexdeploy/internal/apperrors"
	"impexdeploy/pkg/backoff"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
)

// Paths on the instance.
const (
	Root       = "/on/demandware.servlet/webdav"
	ImpexSrc   = Root + "/Sites/Impex/src/instance/"
	maxLogSize = 32 << 20
)

// Config holds the connection settings for one instance.
type Config struct {
	Host       string
	Username   string
	Password   string
	HTTPClient *http.Client
	MaxRetries int             // extra attempts for network errors and 5xx responses
	Backoff    *backoff.Config // nil uses backoff defaults
}

// Client talks to one instance's WebDAV share.
type Client struct {
	host       string
	username   string
	password   string
	httpClient *http.Client
	maxRetries int
	backoff    *backoff.Config
}

// NewClient creates a WebDAV client.
func NewClient(cfg Config) *Client {
	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return &Client{
		host:       cfg.Host,
		username:   cfg.Username,
		password:   cfg.Password,
		httpClient: client,
		maxRetries: retries,
		backoff:    cfg.Backoff,
	}
}

// UploadURL returns the URL an archive named name is uploaded to.
func (c *Client) UploadURL(name string) string {
	return "https://" + c.host + ImpexSrc + url.PathEscape(name)
}

// LogURL returns the URL of a server-supplied log path, or "" when the
// server supplied none.
func (c *Client) LogURL(logFilePath string) string {
	if logFilePath == "" {
		return ""
	}
	return "https://" + c.host + Root + logFilePath
}

// Upload sends the archive at localPath to the Impex source folder and
// returns the remote file name. 204 (file already present) counts as success.
func (c *Client) Upload(ctx context.Context, localPath string) (string, error) {
	name := filepath.Base(localPath)
	logger := slog.With("host", c.host, "artifact", name)

	info, err := os.Stat(localPath)
	if err != nil {
		return "", apperrors.Transport("webdav.upload", 0, fmt.Sprintf("archive not found: %v", err), err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			logger.Debug("Retrying upload", "attempt", attempt)
			if err := backoff.Wait(ctx, attempt, c.backoff); err != nil {
				return "", apperrors.Transport("webdav.upload", 0, fmt.Sprintf("upload cancelled: %v", err), err)
			}
		}

		lastErr = c.doUpload(ctx, localPath, name, info.Size())
		if lastErr == nil {
			if attempt > 0 {
				logger.Info("Upload succeeded after retry", "attempt", attempt)
			}
			return name, nil
		}
		if !retryable(lastErr) || ctx.Err() != nil {
			return "", lastErr
		}
		logger.Warn("Upload failed", "attempt", attempt, "error", lastErr)
	}
	return "", lastErr
}

func (c *Client) doUpload(ctx context.Context, localPath, name string, size int64) error {
	file, err := os.Open(localPath)
	if err != nil {
		return apperrors.Transport("webdav.upload", 0, fmt.Sprintf("failed to open archive: %v", err), err)
	}
	defer file.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.UploadURL(name), file)
	if err != nil {
		return apperrors.Transport("webdav.upload", 0, fmt.Sprintf("failed to create request: %v", err), err)
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", "application/octet-stream")
	req.SetBasicAuth(c.username, c.password)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperrors.Transport("webdav.upload", 0, fmt.Sprintf("upload request failed: %v", err), err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	return classifyUpload(resp.StatusCode, resp.Status, name)
}

// classifyUpload maps a WebDAV response status to the upload result.
func classifyUpload(code int, status, name string) error {
	switch code {
	case http.StatusOK, http.StatusCreated:
		slog.Debug("Uploaded archive", "artifact", name, "status", code)
		return nil
	case http.StatusNoContent:
		slog.Info("Remote file already exists", "artifact", name)
		return nil
	case http.StatusUnauthorized:
		return apperrors.Transport("webdav.upload", code, "Authentication failed. Please check credentials.", nil)
	case http.StatusMethodNotAllowed:
		return apperrors.Transport("webdav.upload", code, "Remote server does not support WebDAV!", nil)
	default:
		return apperrors.Transport("webdav.upload", code, fmt.Sprintf("Unknown error occurred: %d (%s)!", code, statusText(code, status)), nil)
	}
}

// retryable reports whether an upload failure is worth another attempt:
// request errors from the HTTP client and server errors. Local failures
// and client errors are final.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if status := apperrors.StatusCode(err); status != 0 {
		return status >= http.StatusInternalServerError
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

func statusText(code int, status string) string {
	if text := http.StatusText(code); text != "" {
		return text
	}
	return status
}

// FetchLog downloads a job log using basic credentials.
func (c *Client) FetchLog(ctx context.Context, logURL string) (string, error) {
	if logURL == "" {
		return "", errors.New("no log file path reported")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, logURL, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(c.username, c.password)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download log: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("log download failed with status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxLogSize))
	if err != nil {
		return "", fmt.Errorf("failed to read log: %w", err)
	}
	slog.Debug("Downloaded log", "bytes", len(data), "url", logURL)
	return string(data), nil
}
