// Package preview folds markup, style and script artifacts into one
// isolated document and rebuilds it when any of them changes.
package preview

import (
	"crypto/sha256"
	"encoding/hex"
	"html"
	"regexp"
	"strings"
)

// Policy is the Content-Security-Policy of every composed document. Inline
// script and style are allowed; every fetch, form post and base change is
// denied.
const Policy = "default-src 'none'; script-src 'unsafe-inline'; style-src 'unsafe-inline'; " +
	"img-src data: blob:; font-src data:; media-src data: blob:; connect-src 'none'; " +
	"form-action 'none'; base-uri 'none'"

// Sandbox is the iframe sandbox token list. Scripts may run, but the
// document gets an opaque origin: no host storage, cookies, forms, popups
// or top-level navigation.
const Sandbox = "allow-scripts"

// Document is a composed, self-contained HTML page.
type Document string

var (
	closeScript = regexp.MustCompile(`(?i)</script`)
	closeStyle  = regexp.MustCompile(`(?i)</style`)
)

// Compose builds the preview document. It is pure: identical inputs always
// produce a byte-identical document.
func Compose(markup, style, script string) Document {
	var b strings.Builder
	b.Grow(len(markup) + len(style) + len(script) + 512)

	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n")
	b.WriteString(`<meta charset="utf-8">` + "\n")
	b.WriteString(`<meta http-equiv="Content-Security-Policy" content="` + html.EscapeString(Policy) + `">` + "\n")
	b.WriteString(`<meta name="viewport" content="width=device-width, initial-scale=1">` + "\n")
	b.WriteString("<style>\n")
	b.WriteString(closeStyle.ReplaceAllString(style, `<\/style`))
	b.WriteString("\n</style>\n</head>\n<body>\n")
	b.WriteString(markup)
	b.WriteString("\n<script>\n")
	b.WriteString(closeScript.ReplaceAllString(script, `<\/script`))
	b.WriteString("\n</script>\n</body>\n</html>\n")

	return Document(b.String())
}

// ETag returns a strong validator for d.
func (d Document) ETag() string {
	sum := sha256.Sum256([]byte(d))
	return `"` + hex.EncodeToString(sum[:12]) + `"`
}

// Frame returns an iframe element that renders d in a sandbox.
func (d Document) Frame() string {
	return `<iframe title="preview" sandbox="` + Sandbox + `" referrerpolicy="no-referrer" srcdoc="` +
		html.EscapeString(string(d)) + `"></iframe>`
}
