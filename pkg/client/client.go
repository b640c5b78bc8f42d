// Package client is a Go client for the inventory REST API.
package client

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
	"sync"
	"time"
)

// SessionProvider supplies the bearer token and is told when the server rejects it.
type SessionProvider interface {
	// Token returns the current token, or "" when signed out.
	Token() string
	// Expire is called after any 401 response.
	Expire()
}

// SessionStore is a SessionProvider that can also keep the token issued by Login.
type SessionStore interface {
	SessionProvider
	SetToken(token string)
}

// MemorySession keeps the token in memory. It is safe for concurrent use.
type MemorySession struct {
	mu       sync.RWMutex
	token    string
	onExpire func()
}

// NewMemorySession returns a session holding token. onExpire, if set, runs after Expire clears it.
func NewMemorySession(token string, onExpire func()) *MemorySession {
	return &MemorySession{token: token, onExpire: onExpire}
}

func (s *MemorySession) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *MemorySession) SetToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

func (s *MemorySession) Expire() {
	s.mu.Lock()
	s.token = ""
	onExpire := s.onExpire
	s.mu.Unlock()
	if onExpire != nil {
		onExpire()
	}
}

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("inventory api: %d %s", e.StatusCode, e.Message)
}

// IsUnauthorized reports whether err is a 401 response.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}

// Client talks to the inventory API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	session    SessionProvider
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a client for the API rooted at baseURL, for example "http://localhost:5000/api".
// session may be nil for anonymous use.
func New(baseURL string, session SessionProvider, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		session:    session,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LoginResult is the body of a successful login.
type LoginResult struct {
	Message string `json:"message"`
	Token   string `json:"token"`
	User    *User  `json:"user"`
}

// ProductList is the body of a product listing.
type ProductList struct {
	Products         []Product `json:"products"`
	LowStockCount    int       `json:"lowStockCount"`
	LowStockProducts []Product `json:"lowStockProducts"`
}

// ListParams narrows and orders a product listing. Zero values are omitted.
type ListParams struct {
	Search   string
	Category string
	SortBy   string
	Order    string
}

// ProductForm carries the fields of a create or update. Nil fields are not sent.
type ProductForm struct {
	Name              *string
	Description       *string
	Category          *string
	Price             *string
	Quantity          *string
	SKU               *string
	LowStockThreshold *string
}

// Image is an image file attached to a create or update.
type Image struct {
	Filename string
	Content  io.Reader
}

// String returns a pointer to s, for ProductForm fields.
func String(s string) *string { return &s }

// Register creates an account.
func (c *Client) Register(ctx context.Context, username, email, password string) (*User, error) {
	var out struct {
		User *User `json:"user"`
	}
	err := c.doJSON(ctx, http.MethodPost, "/auth/register", map[string]string{
		"username": username,
		"email":    email,
		"password": password,
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.User, nil
}

// Login signs in with a username or email. The token is kept when the session is a SessionStore.
func (c *Client) Login(ctx context.Context, identifier, password string) (*LoginResult, error) {
	var out LoginResult
	err := c.doJSON(ctx, http.MethodPost, "/auth/login", map[string]string{
		"username": identifier,
		"password": password,
	}, &out)
	if err != nil {
		return nil, err
	}
	if store, ok := c.session.(SessionStore); ok {
		store.SetToken(out.Token)
	}
	return &out, nil
}

// Me returns the signed-in user.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var out User
	if err := c.doJSON(ctx, http.MethodGet, "/auth/me", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListProducts lists products matching p.
func (c *Client) ListProducts(ctx context.Context, p ListParams) (*ProductList, error) {
	q := url.Values{}
	for key, value := range map[string]string{
		"search":   p.Search,
		"category": p.Category,
		"sortBy":   p.SortBy,
		"order":    p.Order,
	} {
		if value != "" {
			q.Set(key, value)
		}
	}
	path := "/products"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out ProductList
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetProduct fetches one product.
func (c *Client) GetProduct(ctx context.Context, id string) (*Product, error) {
	var out Product
	if err := c.doJSON(ctx, http.MethodGet, "/products/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Stats fetches the dashboard aggregates.
func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	var out Stats
	if err := c.doJSON(ctx, http.MethodGet, "/products/stats", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateProduct creates a product. image may be nil.
func (c *Client) CreateProduct(ctx context.Context, form ProductForm, image *Image) (*Product, error) {
	return c.sendProduct(ctx, http.MethodPost, "/products", form, image)
}

// UpdateProduct updates the fields set in form. image may be nil.
func (c *Client) UpdateProduct(ctx context.Context, id string, form ProductForm, image *Image) (*Product, error) {
	return c.sendProduct(ctx, http.MethodPut, "/products/"+url.PathEscape(id), form, image)
}

// DeleteProduct deletes a product.
func (c *Client) DeleteProduct(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/products/"+url.PathEscape(id), nil, nil)
}

func (c *Client) sendProduct(ctx context.Context, method, path string, form ProductForm, image *Image) (*Product, error) {
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for _, f := range []struct {
		key   string
		value *string
	}{
		{"name", form.Name},
		{"description", form.Description},
		{"category", form.Category},
		{"price", form.Price},
		{"quantity", form.Quantity},
		{"sku", form.SKU},
		{"lowStockThreshold", form.LowStockThreshold},
	} {
		if f.value == nil {
			continue
		}
		if err := w.WriteField(f.key, *f.value); err != nil {
			return nil, err
		}
	}
	if image != nil {
		part, err := w.CreateFormFile("image", image.Filename)
		if err != nil {
			return nil, err
		}
		if _, err := io.Copy(part, image.Content); err != nil {
			return nil, fmt.Errorf("failed to read image: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	var out struct {
		Product *Product `json:"product"`
	}
	if err := c.do(ctx, method, path, w.FormDataContentType(), body, &out); err != nil {
		return nil, err
	}
	return out.Product, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	return c.do(ctx, method, path, "application/json", body, out)
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if c.session != nil {
		if token := c.session.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s %s: read body: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		if resp.StatusCode == http.StatusUnauthorized && c.session != nil {
			c.session.Expire()
		}
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var envelope struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(raw, &envelope) == nil && envelope.Message != "" {
			apiErr.Message = envelope.Message
		}
		return apiErr
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}
