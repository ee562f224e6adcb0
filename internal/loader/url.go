package loader

import (
	"context"
	"fmt"
	"html"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kestrel-labs/docqa/internal/domain"
)

// loadURL fetches a page over HTTP(S) and strips it down to readable text.
func (l *Loader) loadURL(ctx context.Context, rawURL string) (domain.Document, error) {
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return domain.Document{}, fmt.Errorf("%w: url must use http or https: %s", domain.ErrFetch, rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return domain.Document{}, fmt.Errorf("%w: build request: %v", domain.ErrFetch, err)
	}
	req.Header.Set("User-Agent", "docqa/1.0")

	resp, err := l.client.Do(req)
	if err != nil {
		return domain.Document{}, fmt.Errorf("%w: %v", domain.ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.Document{}, fmt.Errorf("%w: unexpected status %d from %s", domain.ErrFetch, resp.StatusCode, rawURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, l.maxBytes))
	if err != nil {
		return domain.Document{}, fmt.Errorf("%w: read body: %v", domain.ErrFetch, err)
	}

	var text string
	ct := resp.Header.Get("Content-Type")
	switch {
	case strings.Contains(ct, "text/html"), strings.Contains(ct, "application/xhtml"):
		text = stripHTML(string(body))
	case strings.Contains(ct, "text/plain"), ct == "":
		text = string(body)
	default:
		return domain.Document{}, fmt.Errorf("%w: content type %q", domain.ErrUnsupportedFormat, ct)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return domain.Document{}, fmt.Errorf("%w: page %s has no readable text", domain.ErrParse, rawURL)
	}

	l.logger.Debug("URL fetched",
		zap.String("url", rawURL),
		zap.Int("bytes", len(body)),
		zap.Int("text_len", len(text)),
	)

	return domain.Document{
		ID:     uuid.New().String(),
		Source: rawURL,
		Kind:   domain.SourceURL,
		Text:   text,
	}, nil
}

// Pre-compiled regular expressions for HTML stripping.
var (
	scriptTag     = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	styleTag      = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	noscriptTag   = regexp.MustCompile(`(?is)<noscript[^>]*>.*?</noscript>`)
	headTag       = regexp.MustCompile(`(?is)<head[^>]*>.*?</head>`)
	svgTag        = regexp.MustCompile(`(?is)<svg[^>]*>.*?</svg>`)
	htmlComments  = regexp.MustCompile(`(?s)<!--.*?-->`)
	blockElements = regexp.MustCompile(`(?i)</(p|div|h[1-6]|li|tr|blockquote|pre|table|section|article)>`)
	brTags        = regexp.MustCompile(`(?i)<(br|hr)\s*/?>`)
	allTags       = regexp.MustCompile(`<[^>]+>`)
	multiSpaces   = regexp.MustCompile(`[ \t]+`)
	multiNewlines = regexp.MustCompile(`\n{3,}`)
)

// stripHTML converts an HTML page to plain text, keeping block boundaries
// as newlines so the splitter can find natural break points.
func stripHTML(content string) string {
	content = htmlComments.ReplaceAllString(content, "")
	content = headTag.ReplaceAllString(content, "")
	content = scriptTag.ReplaceAllString(content, "")
	content = styleTag.ReplaceAllString(content, "")
	content = noscriptTag.ReplaceAllString(content, "")
	content = svgTag.ReplaceAllString(content, "")

	content = blockElements.ReplaceAllString(content, "\n")
	content = brTags.ReplaceAllString(content, "\n")
	content = allTags.ReplaceAllString(content, " ")

	content = html.UnescapeString(content)

	content = multiSpaces.ReplaceAllString(content, " ")
	lines := strings.Split(content, "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	content = strings.Join(lines, "\n")
	content = multiNewlines.ReplaceAllString(content, "\n\n")

	return strings.TrimSpace(content)
}
