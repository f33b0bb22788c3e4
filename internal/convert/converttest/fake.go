// Package converttest provides an in-process Converter for tests that
// need predictable conversions without a pandoc binary.
package converttest

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/alexjbarnes/journal-sync/internal/convert"
	syncerr "github.com/alexjbarnes/journal-sync/internal/errors"
)

var (
	paragraphRe = regexp.MustCompile(`<p>(.*?)</p>`)
	codeRe      = regexp.MustCompile(`<code>(.*?)</code>`)
)

// Fake converts between HTML and any built-in format using a tiny
// subset of both: <p> paragraphs become lines and <code> spans become
// the format's verbatim delimiter.
type Fake struct {
	// FailOn makes Convert fail for any input containing it.
	FailOn string

	mu    sync.Mutex
	calls int
}

// Calls returns how many conversions ran.
func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.calls
}

func (f *Fake) Convert(_ context.Context, text, from, to string) (string, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.FailOn != "" && strings.Contains(text, f.FailOn) {
		return "", fmt.Errorf("fake %s to %s: %w", from, to, syncerr.ErrFormatConversion)
	}

	switch {
	case from == to:
		return text, nil
	case from == convert.HTML:
		return fromHTML(text, verbatim(to)), nil
	case to == convert.HTML:
		return toHTML(text, verbatim(from)), nil
	}

	return "", fmt.Errorf("fake cannot convert %s to %s: %w", from, to, syncerr.ErrFormatConversion)
}

func verbatim(format string) string {
	return convert.DefaultFormats()[format].Verbatim
}

func fromHTML(html, marker string) string {
	out := codeRe.ReplaceAllString(html, marker+"$1"+marker)
	out = paragraphRe.ReplaceAllString(out, "$1\n")

	return out
}

func toHTML(text, marker string) string {
	var spanRe *regexp.Regexp
	if marker != "" {
		q := regexp.QuoteMeta(marker)
		spanRe = regexp.MustCompile(q + `(.+?)` + q)
	}

	var b strings.Builder

	for line := range strings.SplitSeq(strings.TrimRight(text, "\n"), "\n") {
		if line == "" {
			continue
		}

		if spanRe != nil {
			line = spanRe.ReplaceAllString(line, "<code>$1</code>")
		}

		b.WriteString("<p>" + line + "</p>")
	}

	return b.String()
}
