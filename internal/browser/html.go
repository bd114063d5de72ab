// internal/browser/html.go
package browser

import (
	"strings"

	"golang.org/x/net/html"
)

// maxVisibleTextLen bounds the extracted page text so snapshots stay small
// enough to embed in oracle prompts.
const maxVisibleTextLen = 20000

// visibleTextFromHTML extracts readable text from raw page markup. It is the
// fallback path for pages where script evaluation is unavailable, for
// example when the document is mid-navigation.
func visibleTextFromHTML(src string) string {
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return ""
	}

	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "head", "template":
				return
			}
		}
		if n.Type == html.TextNode {
			text := strings.TrimSpace(n.Data)
			if text != "" {
				if sb.Len() > 0 {
					sb.WriteByte(' ')
				}
				sb.WriteString(text)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if sb.Len() >= maxVisibleTextLen {
				return
			}
			walk(c)
		}
	}
	walk(doc)

	text := sb.String()
	if len(text) > maxVisibleTextLen {
		text = text[:maxVisibleTextLen]
	}
	return text
}
