package naming

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"
)

// illegalChars matches characters that are invalid in file names on
// common filesystems. They are stripped, not replaced.
var illegalChars = regexp.MustCompile(`[\\/*?:"<>|]`)

// paddedSerial matches the {no.<digits>} placeholder. The digit run is
// captured so its character width can be used as the padding width.
var paddedSerial = regexp.MustCompile(`\{no\.(\d+)\}`)

// Sanitize removes illegal filesystem characters from a path component
// and trims surrounding whitespace.
func Sanitize(name string) string {
	return strings.TrimSpace(illegalChars.ReplaceAllString(name, ""))
}

// OriginalFilename derives the original image filename from an image
// URL: the last path segment with the query string stripped, with
// ".jpg" appended when the segment has no extension.
func OriginalFilename(imageURL string) string {
	clean := imageURL
	if i := strings.Index(clean, "?"); i >= 0 {
		clean = clean[:i]
	}
	name := path.Base(clean)
	if path.Ext(name) == "" {
		name += ".jpg"
	}
	return name
}

// Render expands a naming pattern into a relative save path.
//
// The pattern is a plain substitution language; placeholders cannot
// nest, so replacement order does not matter. Supported placeholders:
//
//	{page.title}    sanitized page title
//	{page.host}     sanitized host of the page URL
//	{filename}      original image filename
//	{YYYY} {MM} {DD} {YYYY-MM-DD}
//	{HH} {mm} {ss} {HH-mm-ss}
//	{origin_serial} 1-based image index within the page
//	{no.<digits>}   1-based index zero-padded to the width of <digits>
//
// Date placeholders use the page's publish time; when date is nil the
// current wall-clock time is substituted. The result may contain path
// separators, which create subdirectories under the save root.
//
// Render is pure apart from reading the clock for a nil date.
func Render(pattern, pageURL, pageTitle string, date *time.Time, originalFilename string, index int) string {
	var t time.Time
	if date != nil {
		t = *date
	} else {
		t = time.Now()
	}

	host := ""
	if u, err := url.Parse(pageURL); err == nil {
		host = u.Host
	}

	res := pattern

	// Longest date tokens first is not required for correctness, but
	// {YYYY-MM-DD} must be handled as one token rather than three.
	res = strings.ReplaceAll(res, "{YYYY-MM-DD}", t.Format("2006-01-02"))
	res = strings.ReplaceAll(res, "{YYYY}", t.Format("2006"))
	res = strings.ReplaceAll(res, "{MM}", t.Format("01"))
	res = strings.ReplaceAll(res, "{DD}", t.Format("02"))

	res = strings.ReplaceAll(res, "{HH-mm-ss}", t.Format("15-04-05"))
	res = strings.ReplaceAll(res, "{HH}", t.Format("15"))
	res = strings.ReplaceAll(res, "{mm}", t.Format("04"))
	res = strings.ReplaceAll(res, "{ss}", t.Format("05"))

	res = strings.ReplaceAll(res, "{page.title}", Sanitize(pageTitle))
	res = strings.ReplaceAll(res, "{page.host}", Sanitize(host))

	res = strings.ReplaceAll(res, "{filename}", originalFilename)

	res = strings.ReplaceAll(res, "{origin_serial}", fmt.Sprintf("%d", index+1))

	// {no.001} pads to width 3, {no.10001} to width 5. Only the
	// character width of the digit run matters, not its value.
	res = paddedSerial.ReplaceAllStringFunc(res, func(m string) string {
		digits := paddedSerial.FindStringSubmatch(m)[1]
		return fmt.Sprintf("%0*d", len(digits), index+1)
	})

	return res
}
