package fetcher

import (
	"bytes"
	"strings"

	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/encoding/unicode"
)

// charsetScanWindow is how many leading bytes are scanned for an
// explicit charset declaration. Meta tags sit near the top of the
// document, and declarations further down are not trustworthy anyway.
const charsetScanWindow = 2000

// resolveEncoding decides how to decode a response body into text.
//
// Order: an explicit charset=gbk or charset=utf-8 declaration within
// the first 2000 bytes wins; otherwise heuristic byte-level detection;
// otherwise UTF-8. Declared charsets on this site family are sometimes
// wrong or absent, and heuristic detection alone is unreliable on
// short pages, so neither source is trusted on its own.
func resolveEncoding(body []byte) (string, encoding.Encoding) {
	window := body
	if len(window) > charsetScanWindow {
		window = window[:charsetScanWindow]
	}
	preview := bytes.ToLower(window)

	if bytes.Contains(preview, []byte("charset=gbk")) || bytes.Contains(preview, []byte(`charset="gbk"`)) {
		return "gbk", simplifiedchinese.GBK
	}
	if bytes.Contains(preview, []byte("charset=utf-8")) || bytes.Contains(preview, []byte(`charset="utf-8"`)) {
		return "utf-8", unicode.UTF8
	}

	if detected, err := chardet.NewTextDetector().DetectBest(body); err == nil {
		if name, enc := encodingByName(detected.Charset); enc != nil {
			return name, enc
		}
	}

	return "utf-8", unicode.UTF8
}

// encodingByName maps a detector charset label to a decoder. Labels
// outside the supported set return nil so the caller falls back to
// UTF-8.
func encodingByName(charset string) (string, encoding.Encoding) {
	switch strings.ToUpper(charset) {
	case "GBK", "GB2312":
		return "gbk", simplifiedchinese.GBK
	case "GB-18030", "GB18030":
		return "gb18030", simplifiedchinese.GB18030
	case "BIG5":
		return "big5", traditionalchinese.Big5
	case "UTF-8", "ISO-8859-1", "US-ASCII":
		// ISO-8859-1 detections on this site family are almost always
		// misdetected ASCII-heavy UTF-8 pages.
		return "utf-8", unicode.UTF8
	default:
		return "", nil
	}
}

// decodeText decodes the raw body using the resolved encoding and
// returns the text along with the encoding label. Decoding errors fall
// back to interpreting the body as UTF-8.
func decodeText(body []byte) (string, string) {
	name, enc := resolveEncoding(body)
	decoded, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return string(body), "utf-8"
	}
	return string(decoded), name
}
