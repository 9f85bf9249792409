// Package client implements the HTTP/JSON contract of the remote build service.
//
// All operations are plain request/response calls; the package holds no state
// beyond the base URL and the injected token provider. Higher-level lifecycle
// concerns (polling cadence, retries, caching) belong to internal/buildjob and
// internal/workspace.
//
// Endpoints (relative to the configured server URL):
//
//	POST   build                    start a compilation, returns {build_id}
//	GET    build/status/{id}        poll build status
//	GET    workspaces               list workspaces
//	POST   workspaces               create a workspace
//	DELETE workspaces/{uuid}        delete a workspace
//	GET    {download_url}?token=    fetch a built artifact bundle
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/forgeworks/forgectl/internal/log"
)

// ErrMalformedResponse indicates a response body that does not match the
// expected shape. During polling the caller treats this as transient; for
// one-shot operations (start/create/delete) it is a hard failure.
var ErrMalformedResponse = errors.New("malformed server response")

// APIError is a non-2xx response from the build service. The body is carried
// verbatim so callers can surface the server-supplied reason.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("server returned %d", e.StatusCode)
	}
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Body)
}

// TokenProvider supplies the bearer token attached to outbound requests.
// The second return value reports whether a token is available; requests go
// out unauthenticated when it is false and the server decides what to do.
type TokenProvider interface {
	BearerToken() (string, bool)
}

// Client is an HTTP client for the remote build service.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	tokens     TokenProvider
	logger     log.Logger
}

// New creates a Client for the given server base URL.
// The timeout bounds each round trip, never a whole build.
func New(serverURL string, tokens TokenProvider, timeout time.Duration, logger log.Logger) (*Client, error) {
	if serverURL == "" {
		return nil, errors.New("client.New: server URL is required")
	}
	if tokens == nil {
		return nil, errors.New("client.New: token provider is required")
	}
	if logger == nil {
		return nil, errors.New("client.New: logger is required")
	}

	base, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("client.New: parsing server URL: %w", err)
	}

	return &Client{
		baseURL:    base,
		httpClient: &http.Client{Timeout: timeout},
		tokens:     tokens,
		logger:     logger,
	}, nil
}

// BuildStatus is one status response for a tracked build. Fields are copied
// verbatim from the wire; interpretation belongs to the orchestrator.
type BuildStatus struct {
	Status      string   `json:"status"` // "running", "completed", "failed"
	Progress    string   `json:"progress,omitempty"`
	Error       string   `json:"error,omitempty"`
	Files       []string `json:"files,omitempty"`
	DownloadURL string   `json:"download_url,omitempty"`
}

// Workspace is the server's canonical workspace representation.
// The uuid and creation date are server-assigned; the client never invents them.
type Workspace struct {
	ID        int    `json:"id"`
	UUID      string `json:"workspace_uuid"`
	Name      string `json:"workspace_name"`
	CreatedAt string `json:"creation_date"`
}

type startBuildRequest struct {
	Debug     bool   `json:"debug"`
	Workspace string `json:"workspace,omitempty"`
}

type startBuildResponse struct {
	BuildID string `json:"build_id"`
}

// StartBuild submits a compilation request and returns the assigned build ID.
// An empty workspaceUUID means the default (untagged) workspace.
// A 2xx response without a build_id is malformed: there is nothing to poll.
func (c *Client) StartBuild(ctx context.Context, debug bool, workspaceUUID string) (string, error) {
	var resp startBuildResponse
	err := c.do(ctx, http.MethodPost, c.endpoint("build"),
		startBuildRequest{Debug: debug, Workspace: workspaceUUID}, &resp)
	if err != nil {
		return "", err
	}
	if resp.BuildID == "" {
		return "", fmt.Errorf("%w: missing build_id", ErrMalformedResponse)
	}
	return resp.BuildID, nil
}

// GetBuildStatus fetches the current status of a build.
func (c *Client) GetBuildStatus(ctx context.Context, buildID string) (*BuildStatus, error) {
	if buildID == "" {
		return nil, errors.New("client.GetBuildStatus: build ID is required")
	}

	var status BuildStatus
	if err := c.do(ctx, http.MethodGet, c.endpoint("build", "status", buildID), nil, &status); err != nil {
		return nil, err
	}
	if status.Status == "" {
		return nil, fmt.Errorf("%w: missing status field", ErrMalformedResponse)
	}
	return &status, nil
}

// ListWorkspaces fetches all workspaces in server order.
func (c *Client) ListWorkspaces(ctx context.Context) ([]Workspace, error) {
	var workspaces []Workspace
	if err := c.do(ctx, http.MethodGet, c.endpoint("workspaces"), nil, &workspaces); err != nil {
		return nil, err
	}
	return workspaces, nil
}

type createWorkspaceRequest struct {
	Name string `json:"workspace_name"`
}

// CreateWorkspace creates a workspace and returns the server's canonical
// record. Name uniqueness is enforced server-side; a rejection arrives as an
// *APIError carrying the server's reason.
func (c *Client) CreateWorkspace(ctx context.Context, name string) (*Workspace, error) {
	if name == "" {
		return nil, errors.New("client.CreateWorkspace: name is required")
	}

	var ws Workspace
	if err := c.do(ctx, http.MethodPost, c.endpoint("workspaces"), createWorkspaceRequest{Name: name}, &ws); err != nil {
		return nil, err
	}
	if ws.UUID == "" {
		return nil, fmt.Errorf("%w: missing workspace_uuid", ErrMalformedResponse)
	}
	return &ws, nil
}

// DeleteWorkspace deletes a workspace by uuid. The server reassigns anything
// tagged with it to the default group; the client performs no compensating writes.
func (c *Client) DeleteWorkspace(ctx context.Context, uuid string) error {
	if uuid == "" {
		return errors.New("client.DeleteWorkspace: uuid is required")
	}
	return c.do(ctx, http.MethodDelete, c.endpoint("workspaces", uuid), nil, nil)
}

// Download streams the artifact bundle at downloadURL into w and returns the
// number of bytes written. downloadURL is the server-relative locator from a
// completed BuildStatus. The token rides in a query parameter: the original
// contract treats this as a direct navigation, not an API call.
func (c *Client) Download(ctx context.Context, downloadURL string, w io.Writer) (int64, error) {
	if downloadURL == "" {
		return 0, errors.New("client.Download: download URL is required")
	}

	ref, err := url.Parse(downloadURL)
	if err != nil {
		return 0, fmt.Errorf("client.Download: parsing download URL: %w", err)
	}

	// download_url is rooted at the host, not at the API base path
	target := c.baseURL.ResolveReference(ref)
	if token, ok := c.tokens.BearerToken(); ok {
		q := target.Query()
		q.Set("token", token)
		target.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return 0, fmt.Errorf("client.Download: creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("client.Download: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return 0, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("client.Download: copying payload: %w", err)
	}
	return n, nil
}

// DownloadToFile fetches downloadURL into dir and returns the written path.
// The file name is derived from the locator's last path segment.
func (c *Client) DownloadToFile(ctx context.Context, downloadURL, dir string) (string, int64, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", 0, fmt.Errorf("client.DownloadToFile: creating download dir: %w", err)
	}

	name := "artifacts.bin"
	if u, err := url.Parse(downloadURL); err == nil {
		if base := path.Base(u.Path); base != "" && base != "." && base != "/" {
			name = base
		}
	}

	target := filepath.Join(dir, name)
	f, err := os.Create(target)
	if err != nil {
		return "", 0, fmt.Errorf("client.DownloadToFile: creating %s: %w", target, err)
	}

	n, err := c.Download(ctx, downloadURL, f)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(target)
		return "", 0, err
	}

	c.logger.Info("artifacts downloaded", "path", target, "bytes", n)
	return target, n, nil
}

// maxErrorBodyBytes bounds how much of an error body is read into memory.
const maxErrorBodyBytes = 64 * 1024

// endpoint joins path segments onto the configured base URL.
func (c *Client) endpoint(segments ...string) string {
	return c.baseURL.JoinPath(segments...).String()
}

// do performs one JSON round trip. A nil in decodes into nothing (no request
// body); a nil out discards the response body. Non-2xx responses surface as
// *APIError with the body text; undecodable 2xx bodies as ErrMalformedResponse.
func (c *Client) do(ctx context.Context, method, target string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token, ok := c.tokens.BearerToken(); ok {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	// Correlates client logs with server-side request logs.
	requestID := uuid.NewString()
	req.Header.Set("X-Request-Id", requestID)

	c.logger.Debug("request", "method", method, "url", target, "request_id", requestID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, target, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(data))}
		c.logger.Debug("request failed", "method", method, "url", target, "status", resp.StatusCode)
		return apiErr
	}

	if out == nil {
		// Drain so the connection can be reused
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}
