package extractor

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"github.com/jonesrussell/goharvest/internal/domain"
	"github.com/jonesrussell/goharvest/internal/logger"
	"github.com/jonesrussell/goharvest/internal/pool"
	"github.com/jonesrussell/goharvest/internal/session"
)

const (
	// DefaultRequestTimeout bounds a single page fetch.
	DefaultRequestTimeout = 30 * time.Second

	// DefaultUserAgent is sent when none is configured.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// antiBotMarkers are page fragments that indicate the target served a
// challenge instead of content.
var antiBotMarkers = []string{
	"captcha",
	"security verification",
	"unusual activity",
	"access to this page has been denied",
}

// Config holds configuration for the page extractor.
type Config struct {
	// UserAgent is sent with every request.
	UserAgent string
	// RequestTimeout bounds a single page fetch.
	RequestTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		UserAgent:      DefaultUserAgent,
		RequestTimeout: DefaultRequestTimeout,
	}
}

// PageExtractor fetches a page through the acquired egress resource with
// the session's credentials and extracts generic document fields.
type PageExtractor struct {
	config Config
	log    logger.Interface
}

// Ensure PageExtractor implements Extractor.
var _ Extractor = (*PageExtractor)(nil)

// NewPageExtractor creates the default page extractor.
func NewPageExtractor(cfg Config, log logger.Interface) *PageExtractor {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	return &PageExtractor{config: cfg, log: log}
}

// Extract fetches the URL and parses document fields. A nil resource means
// a direct connection. Empty pages and anti-bot challenges are reported as
// domain.ErrExtractionFailed.
func (e *PageExtractor) Extract(
	ctx context.Context,
	res *pool.Resource,
	sess *session.Session,
	url string,
) (*domain.RawResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrExtractionFailed, err)
	}

	body, err := e.fetch(ctx, res, sess, url)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrExtractionFailed, err)
	}

	fields, err := parseFields(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrExtractionFailed, err)
	}

	if blocked, marker := detectAntiBot(fields); blocked {
		e.log.Warn("anti-bot challenge detected", "url", url, "marker", marker)
		return nil, fmt.Errorf("%w: anti-bot challenge (%s)", domain.ErrExtractionFailed, marker)
	}

	result := &domain.RawResult{
		URL:         url,
		Fields:      fields,
		ExtractedAt: time.Now().UTC(),
	}
	if result.IsEmpty() {
		return nil, fmt.Errorf("%w: page yielded no fields", domain.ErrExtractionFailed)
	}

	return result, nil
}

// fetch retrieves the raw page body through colly.
func (e *PageExtractor) fetch(
	ctx context.Context,
	res *pool.Resource,
	sess *session.Session,
	url string,
) ([]byte, error) {
	c := colly.NewCollector(
		colly.UserAgent(e.config.UserAgent),
		colly.StdlibContext(ctx),
	)
	c.SetRequestTimeout(e.config.RequestTimeout)

	if res != nil {
		if err := c.SetProxy("http://" + res.ID); err != nil {
			return nil, fmt.Errorf("set proxy %s: %w", res.ID, err)
		}
	}

	if sess != nil && len(sess.Credentials) > 0 {
		c.OnRequest(func(r *colly.Request) {
			r.Headers.Set("Cookie", string(sess.Credentials))
		})
	}

	var body []byte
	var fetchErr error

	c.OnResponse(func(r *colly.Response) {
		body = r.Body
	})
	c.OnError(func(r *colly.Response, err error) {
		fetchErr = err
	})

	if err := c.Visit(url); err != nil {
		return nil, fmt.Errorf("visit %s: %w", url, err)
	}
	c.Wait()

	if fetchErr != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, fetchErr)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("empty response from %s", url)
	}

	return body, nil
}

// parseFields extracts generic document fields from an HTML body.
func parseFields(body []byte) (map[string]any, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	fields := make(map[string]any)

	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		fields["title"] = title
	} else if ogTitle, exists := doc.Find("meta[property='og:title']").Attr("content"); exists {
		fields["title"] = strings.TrimSpace(ogTitle)
	}

	if desc, exists := doc.Find("meta[name='description']").Attr("content"); exists {
		fields["description"] = strings.TrimSpace(desc)
	} else if ogDesc, exists := doc.Find("meta[property='og:description']").Attr("content"); exists {
		fields["description"] = strings.TrimSpace(ogDesc)
	}

	if body := extractBodyText(doc); body != "" {
		fields["body"] = body
	}

	return fields, nil
}

// nonContentSelectors lists elements stripped before extracting body text.
const nonContentSelectors = "script, style, nav, header, footer"

// extractBodyText extracts the main body text, preferring <article>.
func extractBodyText(doc *goquery.Document) string {
	article := doc.Find("article").First()
	if article.Length() > 0 {
		article.Find(nonContentSelectors).Remove()
		return strings.TrimSpace(article.Text())
	}

	pageBody := doc.Find("body").First()
	if pageBody.Length() > 0 {
		pageBody.Find(nonContentSelectors).Remove()
		return strings.TrimSpace(pageBody.Text())
	}

	return ""
}

// detectAntiBot scans extracted text fields for challenge markers.
func detectAntiBot(fields map[string]any) (bool, string) {
	for _, key := range []string{"title", "body"} {
		text, ok := fields[key].(string)
		if !ok {
			continue
		}
		lowered := strings.ToLower(text)
		for _, marker := range antiBotMarkers {
			if strings.Contains(lowered, marker) {
				return true, marker
			}
		}
	}
	return false, ""
}
