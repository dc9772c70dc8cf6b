package whitelist

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// FetchRequest carries the options handler code may pass to fetch().
type FetchRequest struct {
	Method  string
	Headers map[string]string
	Body    string
}

// FetchResponse is the surface re-exposed inside the sandbox: status,
// ok, statusText, headers.get, text() and json() derive from these
// fields and nothing else.
type FetchResponse struct {
	Status     int
	StatusText string
	Headers    http.Header
	Body       string
}

// Ok reports whether the status is in the 2xx range.
func (r *FetchResponse) Ok() bool { return r.Status >= 200 && r.Status < 300 }

// GatedFetch is the one side-effecting capability granted to handler
// code. It refuses hosts outside the whitelist before any I/O happens.
type GatedFetch func(ctx context.Context, rawURL string, req *FetchRequest) (*FetchResponse, error)

// NewGatedFetch wraps an HTTP client with the whitelist check. The error
// wording is contract: it tells the user how to unblock a domain.
func NewGatedFetch(w *Whitelist, client *http.Client) GatedFetch {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context, rawURL string, freq *FetchRequest) (*FetchResponse, error) {
		u, err := url.Parse(rawURL)
		if err != nil || u.Hostname() == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return nil, fmt.Errorf("Fetch blocked: invalid URL")
		}
		if !w.Allows(rawURL) {
			return nil, fmt.Errorf("Fetch blocked: domain %q not in whitelist. Add it to your prompt to allow access.", u.Hostname())
		}

		method := http.MethodGet
		var body io.Reader
		if freq != nil {
			if freq.Method != "" {
				method = strings.ToUpper(freq.Method)
			}
			if freq.Body != "" {
				body = strings.NewReader(freq.Body)
			}
		}
		req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
		if err != nil {
			return nil, err
		}
		if freq != nil {
			for k, v := range freq.Headers {
				req.Header.Set(k, v)
			}
		}

		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		return &FetchResponse{
			Status:     resp.StatusCode,
			StatusText: http.StatusText(resp.StatusCode),
			Headers:    resp.Header,
			Body:       string(data),
		}, nil
	}
}
