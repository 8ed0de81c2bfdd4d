// Package youtrack is a thin client for the YouTrack REST API endpoints used
// by the exporter: current user, projects, issue counts, issues and
// attachment downloads.
package youtrack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"ytexport/internal/debug"
	apperrors "ytexport/internal/errors"
)

const (
	DefaultTimeout   = 60 * time.Second
	DefaultUserAgent = "ytexport"
	DefaultPageSize  = 100

	// CountNotReady is returned by the count endpoint while the server is
	// still computing the result.
	CountNotReady = -1

	userFields    = "id,login,name,email"
	projectFields = "id,name,shortName,archived,description"
)

// ClientConfig holds the connection details for one instance.
type ClientConfig struct {
	BaseURL string
	Token   string
}

// Client talks to one YouTrack instance. It is safe for concurrent use.
type Client struct {
	baseURL    *url.URL
	token      string
	userAgent  string
	httpClient *http.Client

	userMu sync.Mutex
	user   *User
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(agent string) Option {
	return func(c *Client) {
		c.userAgent = agent
	}
}

// NewClient validates cfg and builds a client. Missing credentials or an
// unparseable base URL are authentication errors.
func NewClient(cfg ClientConfig, opts ...Option) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	token := strings.TrimSpace(cfg.Token)
	if base == "" || token == "" {
		return nil, apperrors.New(apperrors.CodeAuthentication, "YouTrack URL and token are required", nil)
	}
	parsed, err := url.Parse(base)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, apperrors.New(apperrors.CodeAuthentication, fmt.Sprintf("invalid YouTrack URL %q", cfg.BaseURL), err)
	}

	c := &Client{
		baseURL:    parsed,
		token:      token,
		userAgent:  DefaultUserAgent,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the instance root the client was built with.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// CurrentUser returns the authenticated user. The first successful lookup is
// cached for the lifetime of the client; concurrent callers share one fetch.
func (c *Client) CurrentUser(ctx context.Context) (User, error) {
	c.userMu.Lock()
	defer c.userMu.Unlock()

	if c.user != nil {
		return *c.user, nil
	}

	var user User
	query := url.Values{"fields": {userFields}}
	if err := c.doJSON(ctx, http.MethodGet, "/api/users/me", query, nil, &user); err != nil {
		return User{}, apperrors.Wrap(apperrors.CodeAuthentication, "Failed to connect to YouTrack", err)
	}
	c.user = &user
	return user, nil
}

// Projects fetches one page of projects.
func (c *Client) Projects(ctx context.Context, limit, skip int) ([]Project, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if skip < 0 {
		skip = 0
	}
	query := url.Values{
		"fields": {projectFields},
		"$top":   {strconv.Itoa(limit)},
		"$skip":  {strconv.Itoa(skip)},
	}
	var projects []Project
	if err := c.doJSON(ctx, http.MethodGet, "/api/admin/projects", query, nil, &projects); err != nil {
		return nil, err
	}
	return projects, nil
}

// AllProjects pages through Projects until a short page is returned.
func (c *Client) AllProjects(ctx context.Context, pageSize int) ([]Project, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	var all []Project
	for skip := 0; ; skip += pageSize {
		page, err := c.Projects(ctx, pageSize, skip)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < pageSize {
			return all, nil
		}
	}
}

// IssueCount asks the server how many issues match the project and
// selection. The result is nil when the response has no count, and
// CountNotReady while the server is still computing.
func (c *Client) IssueCount(ctx context.Context, project Project, sel Selection) (*int, error) {
	body := map[string]string{"query": BuildQuery(project, sel)}
	query := url.Values{"fields": {"count"}}

	var resp *struct {
		Count *int `json:"count"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/issuesGetter/count", query, body, &resp); err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, nil
	}
	return resp.Count, nil
}

// Issues fetches one page of issues for the project. An empty slice means
// the end of the data.
func (c *Client) Issues(ctx context.Context, project Project, sel Selection, skip, limit int) ([]Issue, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	query := url.Values{
		"query":  {BuildQuery(project, sel)},
		"fields": {BuildFields(sel)},
		"$skip":  {strconv.Itoa(skip)},
		"$top":   {strconv.Itoa(limit)},
	}
	var issues []Issue
	if err := c.doJSON(ctx, http.MethodGet, "/api/issues", query, nil, &issues); err != nil {
		return nil, err
	}
	if issues == nil {
		issues = []Issue{}
	}
	return issues, nil
}

// ResolveURL resolves an attachment URL against the instance root.
// Absolute URLs are returned unchanged.
func (c *Client) ResolveURL(raw string) (*url.URL, error) {
	ref, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	return c.baseURL.ResolveReference(ref), nil
}

// AttachmentContent downloads the bytes of an attachment. The bearer token is
// only sent when the file lives on the instance host.
func (c *Client) AttachmentContent(ctx context.Context, att Attachment) ([]byte, error) {
	if strings.TrimSpace(att.URL) == "" {
		return nil, apperrors.New(apperrors.CodeDownload, fmt.Sprintf("attachment %s has no url", att.ID), nil)
	}
	target, err := c.ResolveURL(att.URL)
	if err != nil {
		return nil, apperrors.New(apperrors.CodeDownload, fmt.Sprintf("attachment %s: invalid url", att.ID), err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, apperrors.New(apperrors.CodeDownload, "create request", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	if strings.EqualFold(target.Host, c.baseURL.Host) {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError(ctx, req, err)
	}
	defer func() { _ = resp.Body.Close() }()

	logRequest(req, resp.StatusCode, start)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Method: req.Method, Path: target.Path, StatusCode: resp.StatusCode}
		return nil, apperrors.New(apperrors.CodeDownload, fmt.Sprintf("download %s: %v", att.Name, apiErr), apiErr)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.New(apperrors.CodeDownload, fmt.Sprintf("read %s", att.Name), err)
	}
	return data, nil
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawPath = ""
	u.RawQuery = query.Encode()
	return u.String()
}

func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return apperrors.New(apperrors.CodeAPI, "encode request body", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), reader)
	if err != nil {
		return apperrors.New(apperrors.CodeAPI, "create request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transportError(ctx, req, err)
	}
	defer func() { _ = resp.Body.Close() }()
	logRequest(req, resp.StatusCode, start)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Method: method, Path: path, StatusCode: resp.StatusCode}
		if resp.StatusCode == http.StatusBadRequest {
			var eb errorBody
			if json.NewDecoder(resp.Body).Decode(&eb) == nil {
				apiErr.Code = eb.Error
				apiErr.Description = eb.Description
			}
		}
		return apperrors.New(apperrors.CodeAPI, apiErr.Error(), apiErr)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return apperrors.New(apperrors.CodeAPI, fmt.Sprintf("%s %s: decode response: %v", method, path, err), err)
	}
	return nil
}

func transportError(ctx context.Context, req *http.Request, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return apperrors.New(apperrors.CodeCancelled, fmt.Sprintf("%s %s: %v", req.Method, req.URL.Path, ctxErr), ctxErr)
	}
	debug.With(zap.String("method", req.Method), zap.String("path", req.URL.Path), zap.Error(err)).
		Debug("youtrack request failed")
	return apperrors.New(apperrors.CodeNetwork, fmt.Sprintf("%s %s: %v", req.Method, req.URL.Path, err), err)
}

func logRequest(req *http.Request, status int, start time.Time) {
	debug.With(
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.Int("status", status),
		zap.Duration("elapsed", time.Since(start)),
	).Debug("youtrack request")
}
