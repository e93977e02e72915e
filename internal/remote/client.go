package remote

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
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/existflow/duetask/internal/session"
)

// Credentials is the signed-in state persisted in auth.json
type Credentials struct {
	ServerURL string `json:"server_url"`
	Token     string `json:"token,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	Email     string `json:"email,omitempty"`
	Name      string `json:"name,omitempty"`
}

// Client is the HTTP client of duetask-server. It implements Store and
// session.Provider; the identity comes from the cached credentials so the
// CLI keeps working offline.
type Client struct {
	mu         sync.RWMutex
	creds      Credentials
	credsPath  string
	httpClient *http.Client
}

// NewClient creates a client whose credentials live at credsPath. An empty
// credsPath keeps credentials in memory only. serverURL overrides the saved
// server when set.
func NewClient(serverURL, credsPath string) (*Client, error) {
	c := &Client{
		credsPath:  credsPath,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}

	if credsPath != "" {
		data, err := os.ReadFile(credsPath)
		switch {
		case err == nil:
			if err := json.Unmarshal(data, &c.creds); err != nil {
				return nil, fmt.Errorf("failed to parse %s: %w", credsPath, err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("failed to read %s: %w", credsPath, err)
		}
	}

	if serverURL != "" {
		c.creds.ServerURL = serverURL
	}
	c.creds.ServerURL = strings.TrimRight(c.creds.ServerURL, "/")
	return c, nil
}

// SetHTTPClient replaces the underlying HTTP client
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.httpClient = hc
}

func (c *Client) saveCreds() error {
	if c.credsPath == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(c.credsPath), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(c.creds, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(c.credsPath, data, 0600)
}

// ServerURL returns the configured server
func (c *Client) ServerURL() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.creds.ServerURL
}

// IsLoggedIn returns true if a token is cached
func (c *Client) IsLoggedIn() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.creds.Token != ""
}

// Current implements session.Provider
func (c *Client) Current(ctx context.Context) (session.Identity, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.creds.Token == "" || c.creds.UserID == "" {
		return session.Identity{}, session.ErrNotAuthenticated
	}
	return session.Identity{UserID: c.creds.UserID, Email: c.creds.Email, DisplayName: c.creds.Name}, nil
}

type authResponse struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
}

// Register creates a new account and signs in
func (c *Client) Register(ctx context.Context, name, email, password string) error {
	return c.authenticate(ctx, "/api/v1/register", map[string]string{
		"name":     name,
		"email":    email,
		"password": password,
	})
}

// Login authenticates with email and password
func (c *Client) Login(ctx context.Context, email, password string) error {
	return c.authenticate(ctx, "/api/v1/login", map[string]string{
		"email":    email,
		"password": password,
	})
}

func (c *Client) authenticate(ctx context.Context, endpoint string, body map[string]string) error {
	var result authResponse
	if err := c.do(ctx, http.MethodPost, endpoint, nil, body, &result); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.creds.Token = result.Token
	c.creds.UserID = result.UserID
	c.creds.Email = result.Email
	c.creds.Name = result.Name
	return c.saveCreds()
}

// Refresh asks the server who the token belongs to and updates the cache
func (c *Client) Refresh(ctx context.Context) (session.Identity, error) {
	var me authResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/me", nil, nil, &me); err != nil {
		return session.Identity{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.creds.UserID = me.UserID
	c.creds.Email = me.Email
	c.creds.Name = me.Name
	if err := c.saveCreds(); err != nil {
		return session.Identity{}, err
	}
	return session.Identity{UserID: me.UserID, Email: me.Email, DisplayName: me.Name}, nil
}

// Logout clears the cached session
func (c *Client) Logout() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.creds = Credentials{ServerURL: c.creds.ServerURL}
	return c.saveCreds()
}

func (c *Client) Get(ctx context.Context, path string) (Document, error) {
	var doc Document
	err := c.do(ctx, http.MethodGet, "/api/v1/docs", url.Values{"path": {path}}, nil, &doc)
	return doc, err
}

type queryRequest struct {
	Collection string   `json:"collection"`
	Filters    []Filter `json:"filters,omitempty"`
}

func (c *Client) List(ctx context.Context, collection string, filters ...Filter) ([]Document, error) {
	var docs []Document
	err := c.do(ctx, http.MethodPost, "/api/v1/query", nil,
		queryRequest{Collection: collection, Filters: filters}, &docs)
	return docs, err
}

type createRequest struct {
	Collection string `json:"collection"`
	Data       Data   `json:"data"`
}

func (c *Client) Create(ctx context.Context, collection string, data Data) (string, error) {
	var result struct {
		ID string `json:"id"`
	}
	err := c.do(ctx, http.MethodPost, "/api/v1/docs", nil,
		createRequest{Collection: collection, Data: data}, &result)
	return result.ID, err
}

func (c *Client) Set(ctx context.Context, path string, data Data) error {
	return c.do(ctx, http.MethodPut, "/api/v1/docs", url.Values{"path": {path}}, data, nil)
}

func (c *Client) Update(ctx context.Context, path string, data Data) error {
	return c.do(ctx, http.MethodPatch, "/api/v1/docs", url.Values{"path": {path}}, data, nil)
}

func (c *Client) Delete(ctx context.Context, path string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/docs", url.Values{"path": {path}}, nil, nil)
}

func (c *Client) Commit(ctx context.Context, b *Batch) error {
	return c.do(ctx, http.MethodPost, "/api/v1/batch", nil, b, nil)
}

// do sends one JSON request and maps HTTP failures onto package errors
func (c *Client) do(ctx context.Context, method, endpoint string, query url.Values, in, out any) error {
	c.mu.RLock()
	base, token := c.creds.ServerURL, c.creds.Token
	c.mu.RUnlock()

	if base == "" {
		return errors.New("no server configured")
	}

	u := base + endpoint
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return statusError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func statusError(resp *http.Response) error {
	var payload struct {
		Error string `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	msg := strings.TrimSpace(string(raw))
	if json.Unmarshal(raw, &payload) == nil && payload.Error != "" {
		msg = payload.Error
	}

	switch resp.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, msg)
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", session.ErrNotAuthenticated, msg)
	case http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrPermissionDenied, msg)
	case http.StatusBadRequest:
		if strings.Contains(msg, ErrInvalidPath.Error()) {
			return fmt.Errorf("%w: %s", ErrInvalidPath, msg)
		}
	}
	return fmt.Errorf("server returned %d: %s", resp.StatusCode, msg)
}
