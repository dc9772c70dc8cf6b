package fetcher

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/net/html/charset"
	"golang.org/x/sync/errgroup"
)

const (
	// MaxBodyChars caps the extracted text kept per document.
	MaxBodyChars = 100_000

	userAgent      = "mcpboot/1.0 (+https://github.com/vivekhaldar/mcpboot)"
	fetchTimeout   = 15 * time.Second
	maxConcurrency = 8
)

var (
	urlPattern = regexp.MustCompile(`https?://[^\s"'<>)\]]+`)

	// A GitHub repo root, with no path beyond owner/repo.
	githubRepoPattern = regexp.MustCompile(`^https?://github\.com/([^/\s]+)/([^/\s]+)/?$`)
)

// FetchedContent is the text a URL turned into. Immutable once returned.
type FetchedContent struct {
	URL            string   `json:"url"`
	Text           string   `json:"text"`
	ContentType    string   `json:"contentType"`
	DiscoveredURLs []string `json:"discoveredUrls"`
}

// Fetcher downloads prompt URLs and extracts their text.
type Fetcher struct {
	client *http.Client
	logger *zap.Logger
}

// New creates a Fetcher. A nil client gets a default with the standard
// per-request timeout.
func New(client *http.Client, logger *zap.Logger) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: fetchTimeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{client: client, logger: logger}
}

// ExtractURLs finds every http(s) URL in the prompt, trims trailing prose
// punctuation, and deduplicates preserving first-seen order.
func ExtractURLs(prompt string) []string {
	matches := urlPattern.FindAllString(prompt, -1)
	seen := make(map[string]struct{}, len(matches))
	var urls []string
	for _, m := range matches {
		m = strings.TrimRight(m, ".,;:!?)")
		if m == "" {
			continue
		}
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		urls = append(urls, m)
	}
	return urls
}

// rewriteGitHubRepo maps a GitHub repo root to its raw README.
func rewriteGitHubRepo(rawURL string) (string, bool) {
	m := githubRepoPattern.FindStringSubmatch(rawURL)
	if m == nil {
		return "", false
	}
	return fmt.Sprintf("https://raw.githubusercontent.com/%s/%s/HEAD/README.md", m[1], m[2]), true
}

// FetchOne downloads a single URL and extracts its text. A GitHub repo
// root is rewritten to the raw README; the returned URL stays the
// original so the whitelist learns the user-visible host.
func (f *Fetcher) FetchOne(ctx context.Context, rawURL string) (*FetchedContent, error) {
	fetchURL := rawURL
	if rewritten, ok := rewriteGitHubRepo(rawURL); ok {
		fetchURL = rewritten
		f.logger.Debug("rewrote github repo URL", zap.String("url", rawURL), zap.String("raw", fetchURL))
	}

	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch %s: status %d", fetchURL, resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	reader, err := charset.NewReader(resp.Body, contentType)
	if err != nil {
		reader = resp.Body
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: reading body: %w", fetchURL, err)
	}

	mediaType := contentType
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		mediaType = mt
	}

	text := string(body)
	if mediaType == "text/html" {
		text = StripHTML(text)
	}
	if utf8.RuneCountInString(text) > MaxBodyChars {
		text = string([]rune(text)[:MaxBodyChars])
	}

	return &FetchedContent{
		URL:            rawURL,
		Text:           text,
		ContentType:    mediaType,
		DiscoveredURLs: ExtractURLs(text),
	}, nil
}

// FetchAll downloads URLs in parallel. Failed URLs are logged and
// dropped; the result preserves input order for the survivors.
func (f *Fetcher) FetchAll(ctx context.Context, urls []string) []*FetchedContent {
	results := make([]*FetchedContent, len(urls))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrency)
	for i, u := range urls {
		g.Go(func() error {
			content, err := f.FetchOne(ctx, u)
			if err != nil {
				f.logger.Warn("fetch failed, dropping URL", zap.String("url", u), zap.Error(err))
				return nil
			}
			mu.Lock()
			results[i] = content
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	var out []*FetchedContent
	for _, r := range results {
		if r != nil {
			out = append(out, r)
		}
	}
	if len(urls) > 0 && len(out) == 0 {
		f.logger.Warn("all URL fetches failed; generated tools may be degraded")
	}
	return out
}
