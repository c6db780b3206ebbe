package infra

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultUserAgent is the user agent string used for outbound requests.
const DefaultUserAgent = "cotscope/1.0 (+https://github.com/seenimoa/cotscope)"

// HTTPClient is the shared client for upstream calls. Its timeout is the
// only deadline applied unless the caller's context carries one.
var HTTPClient = &http.Client{
	Timeout: 30 * time.Second,
}

// ErrHTTP wraps an HTTP error with status code.
type ErrHTTP struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *ErrHTTP) Error() string {
	return fmt.Sprintf("HTTP %d %s: %s", e.StatusCode, e.Status, e.Body)
}

// DoGet performs a GET request with the given URL and headers, returning the
// response body. The caller is responsible for closing the returned ReadCloser.
func DoGet(ctx context.Context, client *http.Client, url string, headers map[string]string) (io.ReadCloser, int, error) {
	return do(ctx, client, http.MethodGet, url, nil, headers)
}

// DoJSON sends payload (if non-nil) as a JSON body and decodes the response into dest.
func DoJSON(ctx context.Context, client *http.Client, method, url string, payload, dest any, headers map[string]string) error {
	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	h := map[string]string{"Accept": "application/json"}
	if payload != nil {
		h["Content-Type"] = "application/json"
	}
	for k, v := range headers {
		h[k] = v
	}

	rc, _, err := do(ctx, client, method, url, body, h)
	if err != nil {
		return err
	}
	defer rc.Close()

	if dest == nil {
		_, _ = io.Copy(io.Discard, rc)
		return nil
	}
	if err := json.NewDecoder(rc).Decode(dest); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, url, err)
	}
	return nil
}

func do(ctx context.Context, client *http.Client, method, url string, body io.Reader, headers map[string]string) (io.ReadCloser, int, error) {
	if client == nil {
		client = HTTPClient
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", DefaultUserAgent)
	req.Header.Set("Accept", "application/json, text/html, */*")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("HTTP %s %s: %w", method, url, err)
	}

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, resp.StatusCode, &ErrHTTP{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(msg),
		}
	}

	return resp.Body, resp.StatusCode, nil
}
