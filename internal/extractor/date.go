package extractor

import (
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// dateTextLimit bounds how far into the page text (and raw HTML) the
// fallback strategies search for a bare date. Forum pages carry reply
// timestamps far below the topic header; the first match near the top
// is the publish date.
const dateTextLimit = 30000

// publishMarker is the literal "posted at" label preceding the topic's
// publish timestamp on this page template.
const publishMarker = "发表于"

// dateLayout is the timestamp format used throughout the page template.
const dateLayout = "2006-01-02 15:04"

// bareDatePattern matches a timestamp with or without a preceding
// marker.
var bareDatePattern = regexp.MustCompile(`(\d{4}-\d{2}-\d{2}\s+\d{2}:\d{2})`)

// markerDatePattern matches a timestamp immediately following the
// publish marker, tolerating an optional ASCII or fullwidth colon.
var markerDatePattern = regexp.MustCompile(publishMarker + `[:：]?\s*(\d{4}-\d{2}-\d{2}\s+\d{2}:\d{2})`)

// dateOrigin tags which extraction strategy produced a date, keeping
// the fallback order explicit and testable.
type dateOrigin int

const (
	// dateNotFound means every strategy failed.
	dateNotFound dateOrigin = iota

	// dateFromAttr means a marker element's title attribute matched.
	// Highest confidence: the attribute carries the full timestamp
	// even when the visible text abbreviates it.
	dateFromAttr

	// dateFromText means the marker element's own text matched.
	dateFromText

	// dateFromBody means a bare timestamp was found in the page's
	// visible text.
	dateFromBody

	// dateFromRaw means a bare timestamp was found in the raw HTML,
	// covering pages whose structure defeated the parser.
	dateFromRaw
)

// dateResult is the outcome of the date extraction chain.
type dateResult struct {
	origin dateOrigin
	value  time.Time
}

// found reports whether any strategy succeeded.
func (r dateResult) found() bool { return r.origin != dateNotFound }

// detectDate runs the ordered, short-circuiting strategy chain over a
// parsed document and the raw HTML it came from.
func detectDate(doc *goquery.Document, rawHTML string) dateResult {
	if r := dateFromMarkerElements(doc); r.found() {
		return r
	}
	if r := dateFromBareText(doc.Text(), dateFromBody); r.found() {
		return r
	}
	return dateFromBareText(rawHTML, dateFromRaw)
}

// dateFromMarkerElements looks for elements carrying the publish
// marker in one of their own text nodes, preferring the title
// attribute over element text. Matching on direct text nodes keeps the
// search on the innermost enclosing element whatever tag the template
// wraps the marker in.
func dateFromMarkerElements(doc *goquery.Document) dateResult {
	result := dateResult{}
	doc.Find("*").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if !ownTextContainsMarker(sel) {
			return true
		}

		if attr, ok := sel.Attr("title"); ok {
			if m := bareDatePattern.FindStringSubmatch(attr); m != nil {
				if t, err := parseDate(m[1]); err == nil {
					result = dateResult{origin: dateFromAttr, value: t}
					return false
				}
			}
		}

		if m := markerDatePattern.FindStringSubmatch(sel.Text()); m != nil {
			if t, err := parseDate(m[1]); err == nil {
				result = dateResult{origin: dateFromText, value: t}
				return false
			}
		}
		return true
	})
	return result
}

// ownTextContainsMarker reports whether one of the selection's direct
// text nodes contains the publish marker.
func ownTextContainsMarker(sel *goquery.Selection) bool {
	for _, node := range sel.Nodes {
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			if child.Type == html.TextNode && containsMarker(child.Data) {
				return true
			}
		}
	}
	return false
}

// dateFromBareText takes the first bare timestamp within the leading
// dateTextLimit characters of the given text.
func dateFromBareText(text string, origin dateOrigin) dateResult {
	if m := bareDatePattern.FindStringSubmatch(truncateRunes(text, dateTextLimit)); m != nil {
		if t, err := parseDate(m[1]); err == nil {
			return dateResult{origin: origin, value: t}
		}
	}
	return dateResult{}
}

func containsMarker(text string) bool {
	return strings.Contains(text, publishMarker)
}

// whitespaceRun collapses the whitespace the date pattern tolerates
// between the date and time halves.
var whitespaceRun = regexp.MustCompile(`\s+`)

func parseDate(s string) (time.Time, error) {
	return time.ParseInLocation(dateLayout, whitespaceRun.ReplaceAllString(s, " "), time.Local)
}

// truncateRunes limits a string to at most n runes.
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
