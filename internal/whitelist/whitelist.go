package whitelist

import (
	"net/url"
	"sort"
	"strings"

	"github.com/vivekhaldar/mcpboot/internal/fetcher"
)

// Whitelist is an immutable set of bare hostnames the sandboxed fetch may
// reach. A host is allowed if it equals a member or is a proper subdomain
// of one; whitelisting api.example.com never admits example.com.
type Whitelist struct {
	domains map[string]struct{}
}

// Build collects the hostname of every well-formed prompt URL and every
// discovered URL. Malformed URLs are silently skipped.
func Build(promptURLs []string, contents []*fetcher.FetchedContent) *Whitelist {
	w := &Whitelist{domains: make(map[string]struct{})}
	for _, u := range promptURLs {
		w.add(u)
	}
	for _, c := range contents {
		for _, u := range c.DiscoveredURLs {
			w.add(u)
		}
	}
	return w
}

// FromDomains rebuilds a whitelist from a stored domain list, as after a
// cache hit where nothing was fetched.
func FromDomains(domains []string) *Whitelist {
	w := &Whitelist{domains: make(map[string]struct{}, len(domains))}
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			w.domains[d] = struct{}{}
		}
	}
	return w
}

func (w *Whitelist) add(rawURL string) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return
	}
	w.domains[strings.ToLower(u.Hostname())] = struct{}{}
}

// Allows reports whether the URL's hostname is a member or a proper
// subdomain of a member.
func (w *Whitelist) Allows(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return false
	}
	if _, ok := w.domains[host]; ok {
		return true
	}
	for d := range w.domains {
		if strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// Domains returns the member hostnames sorted ascending.
func (w *Whitelist) Domains() []string {
	out := make([]string, 0, len(w.domains))
	for d := range w.domains {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// Size returns the number of member hostnames.
func (w *Whitelist) Size() int { return len(w.domains) }
