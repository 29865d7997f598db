// Package httpapi is the REST adapter for the transactions API:
//
//	GET    /api/{kind}       -> {"{kind}": [...]}
//	POST   /api/{kind}       body {tipo, valor, data}
//	PUT    /api/{kind}/{id}  body {tipo, valor, data}
//	DELETE /api/{kind}/{id}
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"caixa/internal/core"
	"caixa/internal/remote"
)

// DefaultTimeout bounds a single request when the caller sets none.
const DefaultTimeout = 15 * time.Second

// maxErrorBody caps how much of a failed response ends up in a StatusError.
const maxErrorBody = 512

type Client struct {
	baseURL string
	http    *http.Client
}

var _ remote.API = (*Client)(nil)

type Option func(*Client)

// WithHTTPClient replaces the pooled default client, mostly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// New creates a client for the API rooted at baseURL (e.g. http://10.0.2.2:5500).
func New(baseURL string, timeout time.Duration, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url %q: scheme must be http or https", baseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("base url %q: missing host", baseURL)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &Client{
		baseURL: strings.TrimRight(u.String(), "/"),
		http:    newHTTPClientWithPooling(timeout),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// newHTTPClientWithPooling keeps a few idle connections to the single API host.
func newHTTPClientWithPooling(timeout time.Duration) *http.Client {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

func (c *Client) List(ctx context.Context, kind core.Kind) ([]core.Transaction, error) {
	body, err := c.do(ctx, kind, http.MethodGet, c.collectionURL(kind), nil)
	if err != nil {
		return nil, err
	}
	return decodeCollection(kind, body)
}

// Create posts the draft. The response body is decoded when possible; the
// caller re-fetches the collection anyway, so an unreadable body is not an error.
func (c *Client) Create(ctx context.Context, kind core.Kind, d core.Draft) (core.Transaction, error) {
	body, err := c.do(ctx, kind, http.MethodPost, c.collectionURL(kind), d)
	if err != nil {
		return core.Transaction{}, err
	}
	return decodeEntry(body), nil
}

func (c *Client) Update(ctx context.Context, kind core.Kind, id core.ID, d core.Draft) (core.Transaction, error) {
	body, err := c.do(ctx, kind, http.MethodPut, c.entryURL(kind, id), d)
	if err != nil {
		return core.Transaction{}, err
	}
	t := decodeEntry(body)
	if t.ID.IsZero() {
		t.ID = id
	}
	return t, nil
}

func (c *Client) Delete(ctx context.Context, kind core.Kind, id core.ID) error {
	_, err := c.do(ctx, kind, http.MethodDelete, c.entryURL(kind, id), nil)
	return err
}

func (c *Client) collectionURL(kind core.Kind) string {
	return c.baseURL + "/api/" + url.PathEscape(kind.String())
}

func (c *Client) entryURL(kind core.Kind, id core.ID) string {
	return c.collectionURL(kind) + "/" + url.PathEscape(id.String())
}

func (c *Client) do(ctx context.Context, kind core.Kind, method, target string, payload any) ([]byte, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %q", core.ErrInvalidKind, kind)
	}

	var reqBody io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", remote.ErrTransport, method, kind, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s %s: %w", remote.ErrTransport, method, kind, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := truncate(strings.TrimSpace(string(body)), maxErrorBody)
		return nil, &remote.StatusError{
			Kind:       kind,
			Method:     method,
			StatusCode: resp.StatusCode,
			Body:       msg,
		}
	}
	return body, nil
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// decodeCollection reads {"gastos": [...]} (or "lucros"). A bare array is
// accepted as well.
func decodeCollection(kind core.Kind, body []byte) ([]core.Transaction, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var list []core.Transaction
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", remote.ErrMalformedResponse, kind, err)
		}
		return nonNil(list), nil
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", remote.ErrMalformedResponse, kind, err)
	}
	raw, ok := envelope[kind.String()]
	if !ok {
		return nil, fmt.Errorf("%w: %s: missing %q field", remote.ErrMalformedResponse, kind, kind)
	}
	var list []core.Transaction
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", remote.ErrMalformedResponse, kind, err)
	}
	return nonNil(list), nil
}

func decodeEntry(body []byte) core.Transaction {
	var t core.Transaction
	if err := json.Unmarshal(body, &t); err != nil {
		return core.Transaction{}
	}
	return t
}

func nonNil(list []core.Transaction) []core.Transaction {
	if list == nil {
		return []core.Transaction{}
	}
	return list
}
