// Package client provides the HTTP client for the storage gateway.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/burrowfs/burrow/pkg/protocol"
	"github.com/burrowfs/burrow/pkg/retry"
)

// Client talks to the storage gateway with retries for transient
// failures. 4xx responses are permanent and never retried.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	retryPolicy retry.Policy

	mu        sync.RWMutex
	authToken string
}

// Config holds client configuration.
type Config struct {
	BaseURL     string
	Timeout     time.Duration
	RetryPolicy retry.Policy
	AuthToken   string
}

// New creates a new client.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryPolicy.MaxAttempts == 0 {
		cfg.RetryPolicy = retry.DefaultPolicy()
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        100,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		retryPolicy: cfg.RetryPolicy,
		authToken:   cfg.AuthToken,
	}
}

// SetAuthToken sets the bearer token for requests.
func (c *Client) SetAuthToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authToken = token
}

func (c *Client) applyAuth(req *http.Request) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
}

// NotFoundError reports a missing path.
type NotFoundError struct{ Path string }

func (e *NotFoundError) Error() string { return fmt.Sprintf("not found: %s", e.Path) }

// ConflictError reports a create that collided with an existing entry.
type ConflictError struct{ Path string }

func (e *ConflictError) Error() string { return fmt.Sprintf("already exists: %s", e.Path) }

// ForbiddenError reports a tenant the caller may not address.
type ForbiddenError struct{ Path string }

func (e *ForbiddenError) Error() string { return fmt.Sprintf("forbidden: %s", e.Path) }

// storageURL builds the URL for a tenant-scoped path, escaping each
// segment.
func (c *Client) storageURL(tenant, path string) string {
	parts := []string{url.PathEscape(tenant)}
	for _, seg := range strings.Split(path, "/") {
		if seg != "" {
			parts = append(parts, url.PathEscape(seg))
		}
	}
	return c.baseURL + "/api/v1/storage/" + strings.Join(parts, "/")
}

// checkStatus converts an unexpected response into a typed error.
// Server-side failures come back marked transient so the retry loop
// takes another attempt; client mistakes do not.
func checkStatus(resp *http.Response, path string, want ...int) error {
	for _, code := range want {
		if resp.StatusCode == code {
			return nil
		}
	}
	switch resp.StatusCode {
	case http.StatusNotFound:
		return &NotFoundError{Path: path}
	case http.StatusConflict:
		return &ConflictError{Path: path}
	case http.StatusForbidden:
		return &ForbiddenError{Path: path}
	}
	if resp.StatusCode >= 500 {
		return retry.Transient(fmt.Errorf("server error: %d", resp.StatusCode))
	}
	var errResp protocol.ErrorResponse
	if json.NewDecoder(resp.Body).Decode(&errResp) == nil && errResp.Error != "" {
		return fmt.Errorf("request failed: %s", errResp.Error)
	}
	return fmt.Errorf("request failed: %d", resp.StatusCode)
}

// Ping checks if the server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}
	return nil
}

// List fetches the descriptors of a directory's immediate entries.
func (c *Client) List(ctx context.Context, tenant, path string) ([]protocol.Descriptor, error) {
	return retry.DoWithResult(ctx, c.retryPolicy, func() ([]protocol.Descriptor, error) {
		req, err := http.NewRequestWithContext(ctx, "GET", c.storageURL(tenant, path), nil)
		if err != nil {
			return nil, err
		}
		c.applyAuth(req)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, retry.Transient(err)
		}
		defer resp.Body.Close()

		if err := checkStatus(resp, path, http.StatusOK); err != nil {
			return nil, err
		}
		var listing []protocol.Descriptor
		if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
			return nil, err
		}
		return listing, nil
	})
}

// Download opens a file's content. The caller owns the reader. A
// non-zero length requests that byte range.
func (c *Client) Download(ctx context.Context, tenant, path string, offset, length int64) (io.ReadCloser, int64, error) {
	type result struct {
		body io.ReadCloser
		size int64
	}
	r, err := retry.DoWithResult(ctx, c.retryPolicy, func() (result, error) {
		req, err := http.NewRequestWithContext(ctx, "GET", c.storageURL(tenant, path), nil)
		if err != nil {
			return result{}, err
		}
		if offset > 0 || length > 0 {
			end := ""
			if length > 0 {
				end = fmt.Sprintf("%d", offset+length-1)
			}
			req.Header.Set("Range", fmt.Sprintf("bytes=%d-%s", offset, end))
		}
		c.applyAuth(req)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return result{}, retry.Transient(err)
		}
		if err := checkStatus(resp, path, http.StatusOK, http.StatusPartialContent); err != nil {
			resp.Body.Close()
			return result{}, err
		}
		return result{body: resp.Body, size: resp.ContentLength}, nil
	})
	if err != nil {
		return nil, 0, err
	}
	return r.body, r.size, nil
}

// Upload streams a file into a directory. The payload is consumed
// once, so transport failures are not retried; callers needing retry
// reopen the source themselves.
func (c *Client) Upload(ctx context.Context, tenant, dir, name string, content io.Reader, meta protocol.UploadMetadata) (protocol.Descriptor, error) {
	meta.Kind = protocol.UploadKindFile
	meta.Name = name

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		err := writeUploadBody(mw, meta, content)
		mw.Close()
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, "POST", c.storageURL(tenant, dir), pr)
	if err != nil {
		return protocol.Descriptor{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	c.applyAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return protocol.Descriptor{}, err
	}
	defer resp.Body.Close()

	target := strings.TrimPrefix(dir+"/"+name, "/")
	if err := checkStatus(resp, target, http.StatusCreated); err != nil {
		return protocol.Descriptor{}, err
	}
	var d protocol.Descriptor
	if err := json.NewDecoder(resp.Body).Decode(&d); err != nil {
		return protocol.Descriptor{}, err
	}
	return d, nil
}

// CreateFolder creates a directory under an existing parent.
func (c *Client) CreateFolder(ctx context.Context, tenant, dir, name string) (protocol.Descriptor, error) {
	return retry.DoWithResult(ctx, c.retryPolicy, func() (protocol.Descriptor, error) {
		body := &strings.Builder{}
		mw := multipart.NewWriter(body)
		if err := writeUploadBody(mw, protocol.UploadMetadata{
			Kind: protocol.UploadKindFolder,
			Name: name,
		}, nil); err != nil {
			return protocol.Descriptor{}, err
		}
		mw.Close()

		req, err := http.NewRequestWithContext(ctx, "POST", c.storageURL(tenant, dir), strings.NewReader(body.String()))
		if err != nil {
			return protocol.Descriptor{}, err
		}
		req.Header.Set("Content-Type", mw.FormDataContentType())
		c.applyAuth(req)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return protocol.Descriptor{}, retry.Transient(err)
		}
		defer resp.Body.Close()

		target := strings.TrimPrefix(dir+"/"+name, "/")
		if err := checkStatus(resp, target, http.StatusCreated); err != nil {
			return protocol.Descriptor{}, err
		}
		var d protocol.Descriptor
		if err := json.NewDecoder(resp.Body).Decode(&d); err != nil {
			return protocol.Descriptor{}, err
		}
		return d, nil
	})
}

// Delete removes an entry recursively. A 404 counts as success so a
// retried delete stays idempotent.
func (c *Client) Delete(ctx context.Context, tenant, path string) error {
	return retry.Do(ctx, c.retryPolicy, func() error {
		req, err := http.NewRequestWithContext(ctx, "DELETE", c.storageURL(tenant, path), nil)
		if err != nil {
			return err
		}
		c.applyAuth(req)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return retry.Transient(err)
		}
		defer resp.Body.Close()

		err = checkStatus(resp, path, http.StatusOK)
		var notFound *NotFoundError
		if errors.As(err, &notFound) {
			return nil // already gone
		}
		return err
	})
}

func writeUploadBody(mw *multipart.Writer, meta protocol.UploadMetadata, content io.Reader) error {
	metaPart, err := mw.CreateFormField("metadata")
	if err != nil {
		return err
	}
	if err := json.NewEncoder(metaPart).Encode(meta); err != nil {
		return err
	}
	if content == nil {
		return nil
	}
	payload, err := mw.CreateFormFile("payload", meta.Name)
	if err != nil {
		return err
	}
	_, err = io.Copy(payload, content)
	return err
}
