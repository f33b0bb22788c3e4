package convert

import (
	"regexp"
	"strings"
)

// referencePattern matches an entity reference such as
// @JournalEntry[abc123]{Grondir} or @UUID[Actor.xyz]{Ghoul}.
const referencePattern = `@(?:JournalEntry|Actor|Item|Scene|RollTable|Macro|Compendium|UUID|Playlist|Cards)\[[^\]\n]*\]\{[^}\n]*\}`

var (
	referenceRe = regexp.MustCompile(referencePattern)
	codeRefRe   = regexp.MustCompile(`<code>(` + referencePattern + `)</code>`)
)

// Protect wraps every entity reference in text in the format's verbatim
// delimiter so the format's own link syntax does not claim it. References
// already wrapped are left as they are, so Protect is idempotent.
func (f Format) Protect(text string) string {
	if f.Verbatim == "" {
		return text
	}

	q := regexp.QuoteMeta(f.Verbatim)
	wrapped := regexp.MustCompile(q + `(` + referencePattern + `)` + q)

	text = wrapped.ReplaceAllString(text, "$1")

	return referenceRe.ReplaceAllStringFunc(text, func(ref string) string {
		return f.Verbatim + ref + f.Verbatim
	})
}

// ProtectHTML wraps every entity reference in HTML in <code> so a
// converter renders it with the target format's verbatim syntax.
func ProtectHTML(html string) string {
	html = RestoreHTML(html)

	return referenceRe.ReplaceAllStringFunc(html, func(ref string) string {
		return "<code>" + ref + "</code>"
	})
}

// RestoreHTML removes the <code> wrapper that protection puts around
// entity references, giving back the reference as the remote stores it.
func RestoreHTML(html string) string {
	if !strings.Contains(html, "<code>@") {
		return html
	}

	return codeRefRe.ReplaceAllString(html, "$1")
}
