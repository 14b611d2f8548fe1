package liteserv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"
)

// requestTimeout bounds every REST call made by Client.
const requestTimeout = 5 * time.Second

// Client talks to the LiteServ REST listener. It covers the server-level
// endpoints only: liveness and database creation, listing and deletion.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a Client for the listener at baseURL, e.g.
// "http://127.0.0.1:5984/".
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http: &http.Client{
			Transport: &http.Transport{DisableKeepAlives: true},
			Timeout:   requestTimeout,
		},
	}
}

// CloseIdleConnections releases the client's idle connections.
func (c *Client) CloseIdleConnections() {
	c.http.CloseIdleConnections()
}

// Ping checks that GET / answers 200.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/", nil, http.StatusOK)
}

// AllDatabases lists the database names the server knows.
func (c *Client) AllDatabases(ctx context.Context) ([]string, error) {
	var names []string
	if err := c.do(ctx, http.MethodGet, "/_all_dbs", &names, http.StatusOK); err != nil {
		return nil, err
	}
	return names, nil
}

// CreateDatabase creates the named database. It returns ErrDatabaseExists
// when the name is taken.
func (c *Client) CreateDatabase(ctx context.Context, name string) error {
	err := c.do(ctx, http.MethodPut, "/"+url.PathEscape(name), nil, http.StatusCreated, http.StatusOK)
	if isStatus(err, http.StatusPreconditionFailed) {
		return fmt.Errorf("create %q: %w", name, ErrDatabaseExists)
	}
	return err
}

// DeleteDatabase deletes the named database. It returns ErrDatabaseNotFound
// when there is no such database.
func (c *Client) DeleteDatabase(ctx context.Context, name string) error {
	err := c.do(ctx, http.MethodDelete, "/"+url.PathEscape(name), nil, http.StatusOK)
	if isStatus(err, http.StatusNotFound) {
		return fmt.Errorf("delete %q: %w", name, ErrDatabaseNotFound)
	}
	return err
}

// do sends a bodiless request and decodes a JSON response into out when out
// is non-nil. Any status outside want yields a *StatusError.
func (c *Client) do(ctx context.Context, method, path string, out any, want ...int) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, http.NoBody)
	if err != nil {
		return fmt.Errorf("create %s %s request: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if !slices.Contains(want, resp.StatusCode) {
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

func isStatus(err error, code int) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.Code == code
}
