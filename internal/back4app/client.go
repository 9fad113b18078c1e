// Package back4app is a small client for the Parse REST API hosted by Back4App.
package back4app

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
	"strings"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-retryablehttp"

	"shopping-lists/internal/config"
)

// UserClass is the built-in Parse class for accounts.
const UserClass = "_User"

// Parse error codes the store reacts to.
const (
	CodeObjectNotFound = 101
	CodeInvalidClass   = 103
	CodeUsernameTaken  = 202
	CodeFieldExists    = 255
)

// Error is an error body returned by the Parse server.
type Error struct {
	StatusCode int    `json:"-"`
	Code       int    `json:"code"`
	Message    string `json:"error"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("parse error %d (status %d): %s", e.Code, e.StatusCode, e.Message)
}

// IsCode reports whether err is a Parse error with the given code.
func IsCode(err error, code int) bool {
	var perr *Error
	return errors.As(err, &perr) && perr.Code == code
}

// Object is a decoded Parse object.
type Object map[string]any

// ObjectID returns the Parse-assigned objectId.
func (o Object) ObjectID() string {
	s, _ := o["objectId"].(string)
	return s
}

// String returns the string field or "".
func (o Object) String(field string) string {
	s, _ := o[field].(string)
	return s
}

// StringPtr returns nil when the field is absent or null.
func (o Object) StringPtr(field string) *string {
	s, ok := o[field].(string)
	if !ok {
		return nil
	}
	return &s
}

// Int64 returns the numeric field or 0.
func (o Object) Int64(field string) int64 {
	switch v := o[field].(type) {
	case float64:
		return int64(v)
	case json.Number:
		n, _ := v.Int64()
		return n
	}
	return 0
}

// Float64 returns the numeric field or 0.
func (o Object) Float64(field string) float64 {
	switch v := o[field].(type) {
	case float64:
		return v
	case json.Number:
		f, _ := v.Float64()
		return f
	}
	return 0
}

// Query narrows a class query. Where holds equality constraints.
type Query struct {
	Where map[string]any
	Order string
	Limit int
	Skip  int
	Keys  []string
}

func (q Query) values() (url.Values, error) {
	v := url.Values{}
	if len(q.Where) > 0 {
		where, err := json.Marshal(q.Where)
		if err != nil {
			return nil, fmt.Errorf("failed to encode where clause: %w", err)
		}
		v.Set("where", string(where))
	}
	if q.Order != "" {
		v.Set("order", q.Order)
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Skip > 0 {
		v.Set("skip", strconv.Itoa(q.Skip))
	}
	if len(q.Keys) > 0 {
		v.Set("keys", strings.Join(q.Keys, ","))
	}
	return v, nil
}

// Client talks to a Parse server with the master key.
type Client struct {
	http    *retryablehttp.Client
	baseURL string
	appID   string
	restKey string
	master  string
	logger  hclog.Logger
}

// NewClient creates a new Parse client from the Back4App settings in cfg.
// Only GET and DELETE requests are retried; writes go out once so that a lost
// response cannot create a second object.
func NewClient(cfg *config.Config, logger hclog.Logger) *Client {
	hc := cleanhttp.DefaultPooledClient()
	hc.Timeout = cfg.HTTPTimeout

	rc := retryablehttp.NewClient()
	rc.HTTPClient = hc
	rc.RetryMax = cfg.HTTPRetryMax
	rc.Logger = logger
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &Client{
		http:    rc,
		baseURL: strings.TrimRight(cfg.Back4AppServerURL, "/"),
		appID:   cfg.Back4AppAppID,
		restKey: cfg.Back4AppClientKey,
		master:  cfg.Back4AppMasterKey,
		logger:  logger,
	}
}

func classPath(class string) string {
	if class == UserClass {
		return "users"
	}
	return "classes/" + url.PathEscape(class)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	target := c.baseURL + "/" + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Parse-Application-Id", c.appID)
	req.Header.Set("X-Parse-REST-API-Key", c.restKey)
	req.Header.Set("X-Parse-Master-Key", c.master)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug("parse request", "method", method, "path", path)

	var resp *http.Response
	switch method {
	case http.MethodGet, http.MethodDelete:
		rreq, err := retryablehttp.FromRequest(req)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		resp, err = c.http.Do(rreq)
		if err != nil {
			return fmt.Errorf("failed to execute request: %w", err)
		}
	default:
		resp, err = c.http.HTTPClient.Do(req)
		if err != nil {
			return fmt.Errorf("failed to execute request: %w", err)
		}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		perr := &Error{StatusCode: resp.StatusCode}
		if jerr := json.Unmarshal(raw, perr); jerr != nil || perr.Message == "" {
			perr.Message = strings.TrimSpace(string(raw))
		}
		return perr
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Query returns the objects of class matching q.
func (c *Client) Query(ctx context.Context, class string, q Query) ([]Object, error) {
	values, err := q.values()
	if err != nil {
		return nil, err
	}
	var resp struct {
		Results []Object `json:"results"`
	}
	if err := c.do(ctx, http.MethodGet, classPath(class), values, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// pageSize is the page length QueryAll requests.
const pageSize = 500

// QueryAll pages through every object matching q. Limit and Skip in q are ignored.
func (c *Client) QueryAll(ctx context.Context, class string, q Query) ([]Object, error) {
	var all []Object
	q.Limit = pageSize
	for q.Skip = 0; ; q.Skip += pageSize {
		page, err := c.Query(ctx, class, q)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < pageSize {
			return all, nil
		}
	}
}

// First returns the first object matching q, or nil when nothing matches.
func (c *Client) First(ctx context.Context, class string, q Query) (Object, error) {
	q.Limit = 1
	results, err := c.Query(ctx, class, q)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	return results[0], nil
}

// Create stores a new object and returns its objectId.
func (c *Client) Create(ctx context.Context, class string, fields Object) (string, error) {
	var resp struct {
		ObjectID string `json:"objectId"`
	}
	if err := c.do(ctx, http.MethodPost, classPath(class), nil, fields, &resp); err != nil {
		return "", err
	}
	return resp.ObjectID, nil
}

// Update applies fields to an existing object and returns the server's reply,
// which carries the new value of any atomic operation.
func (c *Client) Update(ctx context.Context, class, objectID string, fields Object) (Object, error) {
	var resp Object
	path := classPath(class) + "/" + url.PathEscape(objectID)
	if err := c.do(ctx, http.MethodPut, path, nil, fields, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Increment atomically adds amount to a numeric field and returns the result.
func (c *Client) Increment(ctx context.Context, class, objectID, field string, amount int64) (int64, error) {
	resp, err := c.Update(ctx, class, objectID, Object{
		field: map[string]any{"__op": "Increment", "amount": amount},
	})
	if err != nil {
		return 0, err
	}
	if _, ok := resp[field]; !ok {
		return 0, fmt.Errorf("increment of %s.%s returned no value", class, field)
	}
	return resp.Int64(field), nil
}

// Delete removes an object. Deleting an object that is already gone succeeds.
func (c *Client) Delete(ctx context.Context, class, objectID string) error {
	path := classPath(class) + "/" + url.PathEscape(objectID)
	err := c.do(ctx, http.MethodDelete, path, nil, nil, nil)
	if IsCode(err, CodeObjectNotFound) {
		return nil
	}
	return err
}

// SignUp creates a Parse user. Extra fields are stored on the user object.
func (c *Client) SignUp(ctx context.Context, username, password string, fields Object) (string, error) {
	body := Object{"username": username, "password": password}
	for k, v := range fields {
		body[k] = v
	}
	return c.Create(ctx, UserClass, body)
}

// QueryUsers queries the native user class.
func (c *Client) QueryUsers(ctx context.Context, q Query) ([]Object, error) {
	return c.Query(ctx, UserClass, q)
}
