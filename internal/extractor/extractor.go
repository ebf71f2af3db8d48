package extractor

import (
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/topicgrab/topicgrab/internal/model"
)

// UnknownTitle is the placeholder used when no title element exists.
const UnknownTitle = "Unknown Title"

// Navigation anchor labels on this page template.
const (
	nextTopicLabel = "下一主题"
	prevTopicLabel = "上一主题"
)

// Extractor parses fetched topic pages into structured PageResults.
// One Extractor is shared across a run; it carries only immutable
// filter configuration.
type Extractor struct {
	// allowedExtensions is the image extension allow-list (lowercase,
	// dot-prefixed). A single "*" entry admits everything.
	allowedExtensions []string

	// debugDumpDir receives the raw page body when date extraction
	// fails entirely. Empty disables dumping.
	debugDumpDir string
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithAllowedExtensions sets the image extension allow-list.
func WithAllowedExtensions(exts []string) Option {
	return func(e *Extractor) {
		e.allowedExtensions = exts
	}
}

// WithDebugDumpDir enables diagnostic HTML dumps on total date
// extraction failure.
func WithDebugDumpDir(dir string) Option {
	return func(e *Extractor) {
		e.debugDumpDir = dir
	}
}

// New creates an Extractor. Without options every extension is
// admitted and diagnostic dumping is disabled.
func New(opts ...Option) *Extractor {
	e := &Extractor{allowedExtensions: []string{"*"}}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract parses a topic page into a PageResult. pageURL must be the
// final URL of the page so relative references resolve correctly.
//
// Extraction is best-effort throughout: a missing title degrades to a
// placeholder, a missing date leaves PublishedAt nil (and optionally
// dumps the page for pattern tuning), and missing navigation anchors
// simply end traversal in that direction. Only unparseable input is an
// error.
func (e *Extractor) Extract(pageURL, htmlText string) (*model.PageResult, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlText))
	if err != nil {
		return nil, fmt.Errorf("parse page %s: %w", pageURL, err)
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page URL %s: %w", pageURL, err)
	}

	result := &model.PageResult{
		URL:   pageURL,
		Title: extractTitle(doc),
	}

	if date := detectDate(doc, htmlText); date.found() {
		d := date.value
		result.PublishedAt = &d
	} else {
		e.dumpFailedPage(htmlText)
	}

	result.ImageURLs = e.extractImages(doc, base)
	result.NextLink = findNavLink(doc, base, nextTopicLabel)
	result.PrevLink = findNavLink(doc, base, prevTopicLabel)

	return result, nil
}

// extractTitle prefers the topic subject element, then the document
// title, then the placeholder.
func extractTitle(doc *goquery.Document) string {
	if subject := strings.TrimSpace(doc.Find("span#subject_tpc").First().Text()); subject != "" {
		return subject
	}
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		return title
	}
	return UnknownTitle
}

// extractImages collects candidate image URLs from the reader content
// container, falling back to every image on the page when the
// container is absent. Lazy-load sources are preferred, URLs are
// resolved against the page URL, filtered by extension, and
// deduplicated preserving first-seen order.
func (e *Extractor) extractImages(doc *goquery.Document, base *url.URL) []string {
	container := doc.Find("div#read_tpc").First()
	if container.Length() == 0 {
		container = doc.Find("div.tpc_content").First()
	}

	var images *goquery.Selection
	if container.Length() > 0 {
		images = container.Find("img")
	} else {
		images = doc.Find("img")
	}

	seen := make(map[string]struct{})
	var urls []string

	images.Each(func(_ int, sel *goquery.Selection) {
		src, ok := sel.Attr("data-src")
		if !ok || src == "" {
			src, ok = sel.Attr("src")
		}
		if !ok || strings.TrimSpace(src) == "" {
			return
		}

		ref, err := url.Parse(strings.TrimSpace(src))
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref).String()

		if !e.extensionAllowed(imageExtension(abs)) {
			return
		}
		if _, dup := seen[abs]; dup {
			return
		}
		seen[abs] = struct{}{}
		urls = append(urls, abs)
	})

	return urls
}

// imageExtension returns the lowercased path extension of an image
// URL with the query string ignored, defaulting to ".jpg" when the
// path has none.
func imageExtension(imageURL string) string {
	clean := imageURL
	if i := strings.Index(clean, "?"); i >= 0 {
		clean = clean[:i]
	}
	ext := strings.ToLower(path.Ext(clean))
	if ext == "" {
		ext = ".jpg"
	}
	return ext
}

func (e *Extractor) extensionAllowed(ext string) bool {
	for _, allowed := range e.allowedExtensions {
		if allowed == "*" || allowed == ext {
			return true
		}
	}
	return false
}

// findNavLink returns the resolved href of the first anchor whose text
// contains the given label, or empty when the page has none.
func findNavLink(doc *goquery.Document, base *url.URL, label string) string {
	link := ""
	doc.Find("a").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if !strings.Contains(sel.Text(), label) {
			return true
		}
		href, ok := sel.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return true
		}
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return true
		}
		link = base.ResolveReference(ref).String()
		return false
	})
	return link
}

// dumpFailedPage persists the raw page body to a timestamped file so
// the date pattern library can be tuned later. Best effort: dump
// failures must never fail the page.
func (e *Extractor) dumpFailedPage(htmlText string) {
	if e.debugDumpDir == "" {
		return
	}
	if err := os.MkdirAll(e.debugDumpDir, 0750); err != nil {
		return
	}
	name := fmt.Sprintf("debug_failed_date_%d.html", time.Now().Unix())
	_ = os.WriteFile(filepath.Join(e.debugDumpDir, name), []byte(htmlText), 0600)
}
