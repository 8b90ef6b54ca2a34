package openwhisk

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

	"github.com/rs/zerolog"
)

// Client is a minimal OpenWhisk-compatible actions client: enough surface to
// deploy, delete, and invoke actions.
type Client struct {
	baseURL    string
	authUser   string
	authPass   string
	httpClient *http.Client
	log        zerolog.Logger
}

type ClientOption func(*Client)

func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = h }
}

func WithLogger(log zerolog.Logger) ClientOption {
	return func(c *Client) { c.log = log }
}

// NewClient builds a client from credentials. The API host may omit its
// scheme; https is assumed.
func NewClient(creds Credentials, opts ...ClientOption) (*Client, error) {
	if creds.APIHost == "" {
		return nil, fmt.Errorf("api host is required")
	}
	base := creds.APIHost
	if !strings.Contains(base, "://") {
		base = "https://" + base
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("invalid api host %q: %w", creds.APIHost, err)
	}
	user, pass, ok := strings.Cut(creds.Auth, ":")
	if !ok {
		return nil, fmt.Errorf("auth must be of the form key:secret")
	}
	c := &Client{
		baseURL:    strings.TrimSuffix(base, "/"),
		authUser:   user,
		authPass:   pass,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// actionURL resolves a possibly qualified action name to its REST path.
// Unqualified names live in the default namespace "_".
func (c *Client) actionURL(name string) string {
	namespace := "_"
	rest := name
	if strings.HasPrefix(name, "/") {
		parts := strings.SplitN(strings.TrimPrefix(name, "/"), "/", 2)
		if len(parts) == 2 {
			namespace = parts[0]
			rest = parts[1]
		} else {
			rest = parts[0]
		}
	}
	return fmt.Sprintf("%s/api/v1/namespaces/%s/actions/%s",
		c.baseURL, url.PathEscape(namespace), escapePath(rest))
}

// escapePath escapes an action name segment-wise so package-qualified names
// keep their separator.
func escapePath(name string) string {
	segments := strings.Split(name, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}

func (c *Client) do(ctx context.Context, method, rawURL string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.SetBasicAuth(c.authUser, c.authPass)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.log.Debug().Str("method", method).Str("url", rawURL).Msg("platform request")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response: %w", err)
	}
	c.log.Debug().Int("status", resp.StatusCode).Msg("platform response")
	return resp.StatusCode, data, nil
}

// GetAction fetches an action's metadata.
func (c *Client) GetAction(ctx context.Context, name string) (map[string]any, error) {
	status, data, err := c.do(ctx, http.MethodGet, c.actionURL(name), nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("get action %s: status %d: %s", name, status, strings.TrimSpace(string(data)))
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("get action %s: invalid response: %w", name, err)
	}
	return out, nil
}

// UpdateAction creates or replaces an action.
func (c *Client) UpdateAction(ctx context.Context, name string, action map[string]any) error {
	status, data, err := c.do(ctx, http.MethodPut, c.actionURL(name)+"?overwrite=true", action)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("update action %s: status %d: %s", name, status, strings.TrimSpace(string(data)))
	}
	return nil
}

// DeleteAction removes an action. A missing action is not an error.
func (c *Client) DeleteAction(ctx context.Context, name string) error {
	status, data, err := c.do(ctx, http.MethodDelete, c.actionURL(name), nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK && status != http.StatusNotFound {
		return fmt.Errorf("delete action %s: status %d: %s", name, status, strings.TrimSpace(string(data)))
	}
	return nil
}

// InvokeAction runs an action, blocking until it produces a result. A failed
// activation still carries its result; that result (typically an error
// object) is returned as the value so callers can route it like any other.
func (c *Client) InvokeAction(ctx context.Context, name string, params any) (any, error) {
	rawURL := c.actionURL(name) + "?blocking=true&result=true"
	status, data, err := c.do(ctx, http.MethodPost, rawURL, params)
	if err != nil {
		return nil, err
	}
	switch status {
	case http.StatusOK, http.StatusBadGateway:
		var out any
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, fmt.Errorf("invoke action %s: invalid response: %w", name, err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("invoke action %s: status %d: %s", name, status, strings.TrimSpace(string(data)))
	}
}
