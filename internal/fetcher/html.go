package fetcher

import (
	"regexp"
	"strings"
)

var (
	// Elements whose contents carry no prose. Removed wholesale.
	noiseElements = []*regexp.Regexp{
		regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script>`),
		regexp.MustCompile(`(?is)<style\b[^>]*>.*?</style>`),
		regexp.MustCompile(`(?is)<nav\b[^>]*>.*?</nav>`),
		regexp.MustCompile(`(?is)<header\b[^>]*>.*?</header>`),
		regexp.MustCompile(`(?is)<footer\b[^>]*>.*?</footer>`),
	}

	tagPattern        = regexp.MustCompile(`(?s)<[^>]+>`)
	whitespacePattern = regexp.MustCompile(`\s+`)

	entities = strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
		"&nbsp;", " ",
	)
)

// StripHTML converts an HTML document to plain text without building a
// DOM. Tags are replaced by single spaces so words in adjacent elements
// stay separated.
func StripHTML(html string) string {
	for _, re := range noiseElements {
		html = re.ReplaceAllString(html, " ")
	}
	html = tagPattern.ReplaceAllString(html, " ")
	html = entities.Replace(html)
	html = whitespacePattern.ReplaceAllString(html, " ")
	return strings.TrimSpace(html)
}
