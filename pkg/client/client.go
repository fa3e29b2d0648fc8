// Package client provides a Go SDK for the repairboard HTTP API.
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
	"strconv"
	"time"

	"github.com/eduardojeem/repairboard/pkg/models"
)

// Client calls the repairboard HTTP API. It is safe for concurrent use.
type Client struct {
	BaseURL    string       // e.g. "http://127.0.0.1:8765"
	APIKey     string       // optional; sent as X-API-Key
	HTTPClient *http.Client // optional; nil uses http.DefaultClient
}

// New returns a client for the given base URL (e.g. "http://127.0.0.1:8765").
// APIKey is optional; when set, requests carry the X-API-Key header.
func New(baseURL, apiKey string) *Client {
	return &Client{BaseURL: baseURL, APIKey: apiKey}
}

// APIError is a non-2xx response.
type APIError struct {
	Method  string
	Path    string
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api %s %s: %s", e.Method, e.Path, e.Message)
	}
	return fmt.Sprintf("api %s %s: status %d", e.Method, e.Path, e.Status)
}

// IsNotFound reports whether err is an APIError with status 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// IsConflict reports whether err is an APIError with status 409.
func IsConflict(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict
}

func (c *Client) client() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.APIKey != "" {
		req.Header.Set("X-API-Key", c.APIKey)
	}
	return c.client().Do(req)
}

func decodeError(method, path string, resp *http.Response) error {
	var errBody struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&errBody)
	return &APIError{Method: method, Path: path, Status: resp.StatusCode, Message: errBody.Error}
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(method, path, resp)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Health returns the /health response (ok: true).
func (c *Client) Health(ctx context.Context) (ok bool, err error) {
	var out struct {
		OK bool `json:"ok"`
	}
	err = c.doJSON(ctx, http.MethodGet, "/health", nil, &out)
	return out.OK, err
}

// FetchOrders returns every order.
func (c *Client) FetchOrders(ctx context.Context) ([]models.RepairOrder, error) {
	var out []models.RepairOrder
	err := c.doJSON(ctx, http.MethodGet, "/orders", nil, &out)
	return out, err
}

// ListOrders returns up to limit orders (0 = server default), optionally only those in stage.
func (c *Client) ListOrders(ctx context.Context, stage models.Stage, limit int) ([]models.RepairOrder, error) {
	q := url.Values{}
	if stage != "" {
		q.Set("stage", string(stage))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/orders"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out []models.RepairOrder
	err := c.doJSON(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

// GetOrder returns one order.
func (c *Client) GetOrder(ctx context.Context, id string) (*models.RepairOrder, error) {
	var out models.RepairOrder
	err := c.doJSON(ctx, http.MethodGet, "/orders/"+url.PathEscape(id), nil, &out)
	return &out, err
}

// CreateOrder creates an order and returns it as stored.
func (c *Client) CreateOrder(ctx context.Context, in models.NewOrder) (*models.RepairOrder, error) {
	var out models.RepairOrder
	err := c.doJSON(ctx, http.MethodPost, "/orders", in, &out)
	return &out, err
}

// UpdateOrder applies a partial update and returns the result.
func (c *Client) UpdateOrder(ctx context.Context, id string, patch models.OrderPatch) (*models.RepairOrder, error) {
	var out models.RepairOrder
	err := c.doJSON(ctx, http.MethodPatch, "/orders/"+url.PathEscape(id), patch, &out)
	return &out, err
}

// DeleteOrder removes an order.
func (c *Client) DeleteOrder(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/orders/"+url.PathEscape(id), nil, nil)
}

// MoveOrder sets the order's stage and returns the stored order. Setting the current stage is a no-op on the server.
func (c *Client) MoveOrder(ctx context.Context, id string, stage models.Stage) (*models.RepairOrder, error) {
	var out models.RepairOrder
	err := c.doJSON(ctx, http.MethodPut, "/orders/"+url.PathEscape(id)+"/stage", map[string]string{"stage": string(stage)}, &out)
	return &out, err
}

// SetOrderStage is MoveOrder without the result.
func (c *Client) SetOrderStage(ctx context.Context, id string, stage models.Stage) error {
	_, err := c.MoveOrder(ctx, id, stage)
	return err
}

// BoardQuery are the GET /board query parameters. Zero fields are omitted.
type BoardQuery struct {
	Search       string
	MinUrgency   int
	MaxUrgency   int
	TechnicianID string
	DeviceType   string
	OverdueOnly  bool
	UrgentOnly   bool
	From, To     time.Time
	Ranked       bool
}

// Values encodes q as URL query parameters.
func (q BoardQuery) Values() url.Values {
	v := url.Values{}
	set := func(k, val string) {
		if val != "" {
			v.Set(k, val)
		}
	}
	set("q", q.Search)
	set("technician", q.TechnicianID)
	set("device_type", q.DeviceType)
	if q.MinUrgency != 0 {
		v.Set("min_urgency", strconv.Itoa(q.MinUrgency))
	}
	if q.MaxUrgency != 0 {
		v.Set("max_urgency", strconv.Itoa(q.MaxUrgency))
	}
	if q.OverdueOnly {
		v.Set("overdue", "true")
	}
	if q.UrgentOnly {
		v.Set("urgent", "true")
	}
	if !q.From.IsZero() {
		v.Set("from", q.From.UTC().Format(time.RFC3339))
	}
	if !q.To.IsZero() {
		v.Set("to", q.To.UTC().Format(time.RFC3339))
	}
	if q.Ranked {
		v.Set("ranked", "true")
	}
	return v
}

// Board returns the server-derived board.
func (c *Client) Board(ctx context.Context, q BoardQuery) (*models.Board, error) {
	path := "/board"
	if enc := q.Values().Encode(); enc != "" {
		path += "?" + enc
	}
	var out models.Board
	err := c.doJSON(ctx, http.MethodGet, path, nil, &out)
	return &out, err
}

// Preference is the body of GET|PUT /preferences/{key}.
type Preference struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// LoadPreference returns the stored value; ok is false when the key was never saved.
func (c *Client) LoadPreference(ctx context.Context, key string) (string, bool, error) {
	var out Preference
	err := c.doJSON(ctx, http.MethodGet, "/preferences/"+url.PathEscape(key), nil, &out)
	if IsNotFound(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return out.Value, true, nil
}

// SavePreference stores value under key.
func (c *Client) SavePreference(ctx context.Context, key, value string) error {
	return c.doJSON(ctx, http.MethodPut, "/preferences/"+url.PathEscape(key), Preference{Key: key, Value: value}, nil)
}
