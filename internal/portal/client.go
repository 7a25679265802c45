// Package portal is the contractor-facing side of the system: an HTTP client
// for the portal API and the state machines behind the scheduling and
// invoice pages.
package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"propdesk/internal/core/domain"
)

// APIError wraps a non-2xx response. It unwraps to the domain error the
// status maps to, so callers match with errors.Is.
type APIError struct {
	StatusCode int
	Message    string
	Reason     string
	kind       error
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("portal api: status=%d", e.StatusCode)
	}
	return fmt.Sprintf("portal api: status=%d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.kind
}

// ServerMessage returns the human message the API attached to err, if any.
func ServerMessage(err error) string {
	if ve, ok := domain.AsValidation(err); ok {
		return ve.Message
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return ""
}

// Client is a minimal portal API client.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration

	onUnauthorized func()
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.HTTPClient = hc }
}

// WithTimeout sets the per-request timeout of the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.Timeout = d }
}

// WithUnauthorizedHook is called on every 401 from a credentialed call.
func WithUnauthorizedHook(fn func()) Option {
	return func(c *Client) { c.onUnauthorized = fn }
}

// New creates a client for the API rooted at baseURL (e.g. http://host/api/v1).
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		BaseURL: baseURL,
		Timeout: 15 * time.Second,
	}
	for _, o := range opts {
		o(c)
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	return c
}

// OnUnauthorized sets the 401 hook after construction.
func (c *Client) OnUnauthorized(fn func()) {
	c.onUnauthorized = fn
}

// ============================================================
// Link-scoped calls
// ============================================================

// ResolveSchedule fetches the scheduling projection behind a schedule link.
func (c *Client) ResolveSchedule(ctx context.Context, token string) (*domain.ScheduleView, error) {
	var out domain.ScheduleView
	err := c.do(ctx, http.MethodGet, linkPath("schedule", token), nil, "", &out)
	return &out, err
}

// SubmitSchedulingDecision records a decision against a schedule link.
func (c *Client) SubmitSchedulingDecision(ctx context.Context, token string, req *domain.SchedulingDecisionRequest) (*domain.SchedulingAck, error) {
	var out domain.SchedulingAck
	err := c.do(ctx, http.MethodPost, linkPath("schedule", token), req, "", &out)
	return &out, err
}

// ResolveInvoice fetches the invoice projection behind an invoice link.
func (c *Client) ResolveInvoice(ctx context.Context, token string) (*domain.InvoiceView, error) {
	var out domain.InvoiceView
	err := c.do(ctx, http.MethodGet, linkPath("invoice", token), nil, "", &out)
	return &out, err
}

// InvoiceAvailability asks whether the invoice upload is open.
func (c *Client) InvoiceAvailability(ctx context.Context, token string) (*domain.Availability, error) {
	var out domain.Availability
	err := c.do(ctx, http.MethodGet, linkPath("invoice", token)+"/availability", nil, "", &out)
	return &out, err
}

// UploadInvoiceFile sends the document as multipart field "file".
func (c *Client) UploadInvoiceFile(ctx context.Context, token, filename string, data []byte) (*domain.UploadResult, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	var out domain.UploadResult
	err = c.send(ctx, http.MethodPost, linkPath("invoice", token)+"/upload", &buf, w.FormDataContentType(), "", &out)
	return &out, err
}

// SubmitInvoice records the invoice against an invoice link.
func (c *Client) SubmitInvoice(ctx context.Context, token string, req *domain.InvoiceSubmissionRequest) (*domain.InvoiceReceipt, error) {
	var out domain.InvoiceReceipt
	err := c.do(ctx, http.MethodPost, linkPath("invoice", token), req, "", &out)
	return &out, err
}

// ============================================================
// Session calls
// ============================================================

// Login exchanges email and password for a portal credential.
func (c *Client) Login(ctx context.Context, email, password string) (*domain.LoginResult, error) {
	body := map[string]string{"email": email, "password": password}
	var out domain.LoginResult
	err := c.do(ctx, http.MethodPost, "auth/login", body, "", &out)
	return &out, err
}

// Refresh rotates credential and returns its replacement.
func (c *Client) Refresh(ctx context.Context, credential string) (*domain.RefreshResult, error) {
	var out domain.RefreshResult
	err := c.do(ctx, http.MethodPost, "auth/refresh", nil, credential, &out)
	return &out, err
}

// Logout revokes credential on the server.
func (c *Client) Logout(ctx context.Context, credential string) error {
	return c.do(ctx, http.MethodPost, "auth/logout", nil, credential, nil)
}

// Me returns the account behind credential.
func (c *Client) Me(ctx context.Context, credential string) (*domain.AccountIdentity, error) {
	var out domain.AccountIdentity
	err := c.do(ctx, http.MethodGet, "auth/me", nil, credential, &out)
	return &out, err
}

// ============================================================
// Transport
// ============================================================

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Field   string          `json:"field"`
	Reason  string          `json:"reason"`
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, credential string, out any) error {
	var reader io.Reader
	contentType := ""
	if body != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
		reader = &buf
		contentType = "application/json"
	}
	return c.send(ctx, method, endpoint, reader, contentType, credential, out)
}

func (c *Client) send(ctx context.Context, method, endpoint string, body io.Reader, contentType, credential string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base()+"/"+strings.TrimLeft(endpoint, "/"), body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if credential != "" {
		req.Header.Set("Authorization", "Bearer "+credential)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %v", domain.ErrTransient, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %v", domain.ErrTransient, err)
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode >= 300 {
		if resp.StatusCode == http.StatusUnauthorized && credential != "" && c.onUnauthorized != nil {
			c.onUnauthorized()
		}
		return statusError(resp.StatusCode, env)
	}

	if decodeErr != nil {
		return fmt.Errorf("%w: malformed response: %v", domain.ErrTransient, decodeErr)
	}
	if out != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("%w: malformed response data: %v", domain.ErrTransient, err)
		}
	}
	return nil
}

// statusError maps an HTTP status onto the shared error taxonomy.
func statusError(status int, env envelope) error {
	message := env.Error
	if message == "" {
		message = env.Message
	}

	apiErr := &APIError{StatusCode: status, Message: message, Reason: env.Reason}
	switch {
	case status == http.StatusBadRequest:
		return domain.NewValidationError(env.Field, message)
	case status == http.StatusRequestEntityTooLarge:
		return domain.NewValidationError("file", "file is too large, the maximum size is 10 MB")
	case status == http.StatusUnauthorized:
		apiErr.kind = domain.ErrUnauthorized
	case status == http.StatusForbidden:
		apiErr.kind = domain.ErrForbidden
	case status == http.StatusNotFound:
		apiErr.kind = domain.ErrTokenInvalid
	case status == http.StatusConflict:
		if env.Reason == string(domain.ReasonJobNotCompleted) {
			apiErr.kind = domain.ErrNotAvailable
		} else {
			apiErr.kind = domain.ErrAlreadySubmitted
		}
	default:
		// 429, 5xx and anything unexpected may succeed on retry
		apiErr.kind = domain.ErrTransient
	}
	return apiErr
}

func linkPath(purpose, token string) string {
	return fmt.Sprintf("links/%s/%s", purpose, url.PathEscape(token))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
