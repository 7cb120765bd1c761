// Package textsource resolves the text half of a voice transfer request:
// literal text passes through, URLs are fetched and reduced to plain text.
package textsource

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html/charset"
)

// maxBodyBytes bounds how much of a remote document is read.
const maxBodyBytes = 50 << 20

// FetchError is returned when the document cannot be retrieved.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Fetcher downloads documents and extracts their text.
type Fetcher struct {
	httpClient *http.Client
}

// NewFetcher creates a Fetcher. A nil client gets a default with a 30s timeout.
func NewFetcher(httpClient *http.Client) *Fetcher {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Fetcher{httpClient: httpClient}
}

// FetchText performs a single GET and converts the response body to plain
// text based on its declared content type.
func (f *Fetcher) FetchText(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", &FetchError{URL: rawURL, Err: err}
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", &FetchError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &FetchError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", &FetchError{URL: rawURL, Err: err}
	}

	return Extract(resp.Header.Get("Content-Type"), body)
}

// Extract converts body to text according to contentType. Matching is a
// case-insensitive substring test, checked in the order epub, html, text.
func Extract(contentType string, body []byte) (string, error) {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "epub"):
		return EPUBText(body)
	case strings.Contains(ct, "html"):
		r, err := charset.NewReader(bytes.NewReader(body), contentType)
		if err != nil {
			return "", fmt.Errorf("decode html: %w", err)
		}
		return HTMLText(r)
	default:
		// Plain text and unknown types are both returned as decoded text.
		return decodeText(contentType, body), nil
	}
}

// decodeText honours an explicit charset parameter and otherwise returns
// the body as-is.
func decodeText(contentType string, body []byte) string {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil || params["charset"] == "" {
		return string(body)
	}
	enc, _ := charset.Lookup(params["charset"])
	if enc == nil {
		return string(body)
	}
	decoded, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return string(body)
	}
	return string(decoded)
}
