package devserver

import (
	"bytes"
	"html"
	"strings"
)

const clientTag = `<script type="module" src="/__kiln/client.js"></script>`

// injectHTML adds the reload client to an HTML page and, when failures is
// not empty, a banner listing them. Both go right before the closing body
// tag, or at the end of the page if there is none.
func injectHTML(page []byte, failures []Failure) []byte {
	var b strings.Builder
	if len(failures) > 0 {
		b.WriteString(renderBanner(failures))
	}
	b.WriteString(clientTag)
	b.WriteByte('\n')

	at := lastIndexFold(page, "</body>")
	if at < 0 {
		at = len(page)
	}

	out := make([]byte, 0, len(page)+b.Len())
	out = append(out, page[:at]...)
	out = append(out, b.String()...)
	out = append(out, page[at:]...)
	return out
}

func renderBanner(failures []Failure) string {
	var b strings.Builder
	b.WriteString(`<div id="__kiln_banner" style="position:fixed;top:0;left:0;right:0;z-index:2147483647;`)
	b.WriteString(`margin:0;padding:12px 16px;background:#2b0b0e;color:#ffb4b4;font:13px/1.4 monospace;`)
	b.WriteString(`white-space:pre-wrap;max-height:50vh;overflow:auto">`)
	b.WriteString("<strong>kiln: build failed, serving last good artifacts</strong>\n")

	for _, f := range failures {
		b.WriteByte('\n')
		if f.Unit != "" {
			b.WriteString(html.EscapeString(f.Unit))
			b.WriteString(": ")
		}
		b.WriteString(html.EscapeString(f.Message))
		for _, d := range f.Diagnostics {
			b.WriteString("\n  ")
			b.WriteString(html.EscapeString(d.String()))
		}
	}

	b.WriteString("</div>\n")
	return b.String()
}

func lastIndexFold(s []byte, sub string) int {
	for i := len(s) - len(sub); i >= 0; i-- {
		if bytes.EqualFold(s[i:i+len(sub)], []byte(sub)) {
			return i
		}
	}
	return -1
}
