package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ravi-parthasarathy/pipecanvas/pkg/definition"
	"github.com/ravi-parthasarathy/pipecanvas/pkg/manifest"
)

const defaultHTTPTimeout = 30 * time.Second

// Client talks to a gateway Server. It satisfies canvas.Gateway.
type Client struct {
	baseURL string
	http    *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default client (30s timeout).
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// NewClient returns a client for the server rooted at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// ListManifests fetches the operator catalogue.
func (c *Client) ListManifests(ctx context.Context) ([]manifest.Manifest, error) {
	var ms []manifest.Manifest
	err := c.do(ctx, "list operators", http.MethodGet, "/api/operators", nil, &ms)
	return ms, err
}

// ListTemplates fetches every template.
func (c *Client) ListTemplates(ctx context.Context) ([]definition.Template, error) {
	var ts []definition.Template
	err := c.do(ctx, "list templates", http.MethodGet, "/api/pipelines", nil, &ts)
	return ts, err
}

// LoadTemplate fetches one template.
func (c *Client) LoadTemplate(ctx context.Context, id string) (*definition.Template, error) {
	var t definition.Template
	if err := c.do(ctx, "load template", http.MethodGet, templatePath(id), nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateTemplate stores a new editable template.
func (c *Client) CreateTemplate(ctx context.Context, name, description string, def *definition.Definition) (*definition.Template, error) {
	body := createRequest{Name: name, Description: description, Definition: def}
	var t definition.Template
	if err := c.do(ctx, "create template", http.MethodPost, "/api/pipelines", body, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// SaveDefinition replaces the definition of template id.
func (c *Client) SaveDefinition(ctx context.Context, id string, def *definition.Definition) (*definition.Template, error) {
	body := updateRequest{Definition: def}
	var t definition.Template
	if err := c.do(ctx, "save template", http.MethodPut, templatePath(id), body, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// CloneTemplate asks the server for an editable deep copy of template id.
func (c *Client) CloneTemplate(ctx context.Context, id string) (*definition.Template, error) {
	var t definition.Template
	if err := c.do(ctx, "clone template", http.MethodPost, templatePath(id)+"/clone", nil, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// DeleteTemplate removes template id.
func (c *Client) DeleteTemplate(ctx context.Context, id string) error {
	return c.do(ctx, "delete template", http.MethodDelete, templatePath(id), nil, nil)
}

func templatePath(id string) string {
	return "/api/pipelines/" + url.PathEscape(id)
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return &TransportError{Op: op, Cause: err}
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Op: op, Cause: fmt.Errorf("request failed: %w", err)}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Op: op, Code: resp.StatusCode, Cause: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		te := &TransportError{Op: op, Code: resp.StatusCode, Cause: statusCause(resp.StatusCode)}
		var er errorResponse
		if json.Unmarshal(data, &er) == nil {
			te.Message = er.Error
		}
		return te
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &TransportError{Op: op, Code: resp.StatusCode, Cause: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
