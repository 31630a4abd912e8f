// Package design is the HTTP client for the remote design service.
package design

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tjfontaine/steelflow/internal/core/domain"
	"github.com/tjfontaine/steelflow/internal/core/ports"
)

const (
	defaultBaseURL   = "http://localhost:8001/api"
	defaultTimeout   = 120 // seconds
	defaultUserAgent = "steelflow/1.0"
)

// ClientOption configures the client.
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL. The URL includes the /api prefix.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithLogger sets the logger used for request diagnostics.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// Client is an HTTP client for the design service API.
type Client struct {
	token      string
	baseURL    string
	userAgent  string
	httpClient *http.Client
	logger     *slog.Logger
}

var (
	_ ports.DesignService   = (*Client)(nil)
	_ ports.RedlineRejecter = (*Client)(nil)
	_ ports.AuditReader     = (*Client)(nil)
	_ ports.RFIGenerator    = (*Client)(nil)
)

// NewClient creates a new design service client authenticated with a bearer token.
func NewClient(token string, opts ...ClientOption) *Client {
	c := &Client{
		token:     token,
		baseURL:   defaultBaseURL,
		userAgent: defaultUserAgent,
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   defaultTimeout * time.Second,
		},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetConnection retrieves a connection by id.
func (c *Client) GetConnection(ctx context.Context, id string) (*domain.Connection, error) {
	var conn domain.Connection
	if err := c.doJSON(ctx, http.MethodGet, "/connections/"+url.PathEscape(id), nil, &conn); err != nil {
		return nil, err
	}
	return &conn, nil
}

// UpdateParameters replaces the parameter set of a connection.
func (c *Client) UpdateParameters(ctx context.Context, id string, params domain.Parameters) (*domain.Connection, error) {
	if params == nil {
		params = domain.Parameters{}
	}
	var conn domain.Connection
	req := &UpdateConnectionRequest{Parameters: params}
	if err := c.doJSON(ctx, http.MethodPut, "/connections/"+url.PathEscape(id), req, &conn); err != nil {
		return nil, err
	}
	return &conn, nil
}

// ValidateConnection triggers server-side rule and geometry validation.
func (c *Client) ValidateConnection(ctx context.Context, id string) (*domain.ValidationResult, error) {
	var result domain.ValidationResult
	if err := c.doJSON(ctx, http.MethodPost, "/connections/"+url.PathEscape(id)+"/validate", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ExportConnection requests the Tekla export document.
func (c *Client) ExportConnection(ctx context.Context, id string) (*domain.ExportPayload, error) {
	var payload domain.ExportPayload
	if err := c.doJSON(ctx, http.MethodPost, "/connections/"+url.PathEscape(id)+"/export/tekla", nil, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// UploadRedline sends a markup file as multipart form data.
func (c *Client) UploadRedline(ctx context.Context, connectionID, fileName string, file []byte) (*domain.UploadReceipt, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(file); err != nil {
		return nil, fmt.Errorf("failed to write form file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	path := "/redlines/upload?connection_id=" + url.QueryEscape(connectionID)
	var receipt domain.UploadReceipt
	if err := c.do(ctx, http.MethodPost, path, &body, mw.FormDataContentType(), &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

// InterpretRedline runs AI interpretation for a redline.
func (c *Client) InterpretRedline(ctx context.Context, redlineID string) (*domain.Interpretation, error) {
	var result domain.Interpretation
	if err := c.doJSON(ctx, http.MethodPost, "/redlines/"+url.PathEscape(redlineID)+"/interpret", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ApproveRedline approves a redline, merging params into its connection.
func (c *Client) ApproveRedline(ctx context.Context, redlineID string, params domain.Parameters) (*domain.Approval, error) {
	if params == nil {
		params = domain.Parameters{}
	}
	var result domain.Approval
	if err := c.doJSON(ctx, http.MethodPost, "/redlines/"+url.PathEscape(redlineID)+"/approve", params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// RejectRedline marks a redline rejected.
func (c *Client) RejectRedline(ctx context.Context, redlineID string) error {
	return c.doJSON(ctx, http.MethodPost, "/redlines/"+url.PathEscape(redlineID)+"/reject", nil, nil)
}

// ListRedlines retrieves a connection's redlines in service order.
func (c *Client) ListRedlines(ctx context.Context, connectionID string) ([]domain.Redline, error) {
	var redlines []domain.Redline
	if err := c.doJSON(ctx, http.MethodGet, "/redlines/"+url.PathEscape(connectionID)+"/list", nil, &redlines); err != nil {
		return nil, err
	}
	return redlines, nil
}

// ConnectionAudit retrieves the audit trail of a connection.
func (c *Client) ConnectionAudit(ctx context.Context, connectionID string) ([]domain.AuditEntry, error) {
	var entries []domain.AuditEntry
	if err := c.doJSON(ctx, http.MethodGet, "/audit/connection/"+url.PathEscape(connectionID), nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// MyActivity retrieves the caller's recent audit entries.
func (c *Client) MyActivity(ctx context.Context, limit int) ([]domain.AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	var entries []domain.AuditEntry
	if err := c.doJSON(ctx, http.MethodGet, "/audit/my-activity?limit="+strconv.Itoa(limit), nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// GenerateRFI drafts an RFI about issue for the given connection snapshot.
// A draft that is the service's error report is returned as a transport error.
func (c *Client) GenerateRFI(ctx context.Context, conn *domain.Connection, issue string) (*domain.RFIDraft, error) {
	var draft domain.RFIDraft
	req := domain.RFIRequest{ConnectionData: conn, Issue: issue}
	if err := c.doJSON(ctx, http.MethodPost, "/ai/generate-rfi", req, &draft); err != nil {
		return nil, err
	}
	if draft.Failed() {
		return nil, domain.ErrTransportf("%s", strings.TrimSpace(draft.RFI)).WithOp("generate_rfi")
	}
	return &draft, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	return c.do(ctx, method, path, body, "application/json", out)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(httpReq, contentType)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return domain.ErrTransportf("request failed: %v", err).WithCause(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.ErrTransportf("failed to read response: %v", err).WithCause(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Debug("design service error",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("status", resp.StatusCode),
		)
		if apiErr, err := ParseErrorResponse(respBody); err == nil && apiErr != nil {
			return apiErr.ToWorkflowError(resp.StatusCode)
		}
		return domain.NewWorkflowError(
			domain.KindForStatus(resp.StatusCode),
			fmt.Sprintf("API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(respBody))),
		).WithStatusCode(resp.StatusCode)
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return domain.ErrTransportf("failed to unmarshal response: %v", err).WithCause(err)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request, contentType string) {
	if contentType != "" && req.Body != nil {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("User-Agent", c.userAgent)
}
