package nihscraper

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

func readBody(resp *http.Response) ([]byte, error) {
	return io.ReadAll(resp.Body)
}

var (
	// timestampRe matches clock times (HH:MM[:SS][am/pm]), deliberately
	// narrower than a generic date pattern so YYYY-MM-DD deadlines survive
	// filtering for the deterministic extractor to read.
	timestampRe    = regexp.MustCompile(`\b\d{1,2}:\d{2}(:\d{2})?\s*(?:[AaPp][Mm])?\b`)
	whitespaceRe   = regexp.MustCompile(`\s+`)
	dynamicAttrsRe = regexp.MustCompile(`(?i)\s(data-[\w-]+|nonce|id)="[^"]*"`)
)

// filterDynamicContent strips scripts, styles, comments, dynamic attributes
// and timestamps, and normalizes whitespace, so that the content hash only
// changes when the page's substantive text changes (spec §4.2).
func filterDynamicContent(raw []byte) []byte {
	doc, err := html.Parse(strings.NewReader(string(raw)))
	if err != nil {
		// Fall back to a best-effort text-level filter if parsing fails.
		return normalizeText(raw)
	}

	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.CommentNode:
			return
		case html.ElementNode:
			switch n.Data {
			case "script", "style", "noscript":
				return
			}
		case html.TextNode:
			b.WriteString(n.Data)
			b.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return normalizeText([]byte(b.String()))
}

func normalizeText(raw []byte) []byte {
	s := timestampRe.ReplaceAllString(string(raw), "")
	s = dynamicAttrsRe.ReplaceAllString(s, "")
	s = whitespaceRe.ReplaceAllString(s, " ")
	return []byte(strings.TrimSpace(s))
}

// extractText is the filtered content itself — filterDynamicContent already
// reduces the document to plain, whitespace-normalized text.
func extractText(filtered []byte) string {
	return string(filtered)
}

// contentHash returns a hex SHA-256 digest of filtered content, used to
// gate re-extraction: only changed pages are re-sent to the LLM.
func contentHash(filtered []byte) string {
	sum := sha256.Sum256(filtered)
	return hex.EncodeToString(sum[:])
}
