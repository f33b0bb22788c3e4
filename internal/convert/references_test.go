package convert_test

import (
	"context"
	"testing"

	"github.com/alexjbarnes/journal-sync/internal/convert"
	"github.com/alexjbarnes/journal-sync/internal/convert/converttest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProtect(t *testing.T) {
	org := convert.DefaultFormats()["org"]

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare reference", "See @JournalEntry[abc]{Grondir}.", "See =@JournalEntry[abc]{Grondir}=."},
		{"already wrapped", "See =@JournalEntry[abc]{Grondir}=.", "See =@JournalEntry[abc]{Grondir}=."},
		{"uuid reference", "@UUID[Actor.x1]{Ghoul}", "=@UUID[Actor.x1]{Ghoul}="},
		{"two references", "@Actor[a]{A} and @Item[b]{B}", "=@Actor[a]{A}= and =@Item[b]{B}="},
		{"unknown type", "@Spell[a]{Fire}", "@Spell[a]{Fire}"},
		{"no references", "plain *org* text", "plain *org* text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := org.Protect(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, org.Protect(got), "Protect must be idempotent")
		})
	}
}

func TestProtect_MarkerPerFormat(t *testing.T) {
	formats := convert.DefaultFormats()
	ref := "@Actor[a]{A}"

	assert.Equal(t, "`@Actor[a]{A}`", formats["markdown"].Protect(ref))
	assert.Equal(t, "``@Actor[a]{A}``", formats["rst"].Protect(ref))
	assert.Equal(t, ref, formats[convert.HTML].Protect(ref))
}

func TestProtectHTML_Idempotent(t *testing.T) {
	html := `<p>Ask @JournalEntry[abc]{Grondir} about <code>@Item[x]{Sword}</code></p>`
	want := `<p>Ask <code>@JournalEntry[abc]{Grondir}</code> about <code>@Item[x]{Sword}</code></p>`

	got := convert.ProtectHTML(html)
	assert.Equal(t, want, got)
	assert.Equal(t, want, convert.ProtectHTML(got))
	assert.Equal(t, `<p>Ask @JournalEntry[abc]{Grondir} about @Item[x]{Sword}</p>`, convert.RestoreHTML(got))
}

func TestRestoreHTML_LeavesOtherCode(t *testing.T) {
	html := `<p><code>go test ./...</code></p>`
	assert.Equal(t, html, convert.RestoreHTML(html))
}

func TestReferences_WriteReadRoundTrip(t *testing.T) {
	ctx := context.Background()
	fake := &converttest.Fake{}

	originals := []string{
		`<p>Met @JournalEntry[abc123]{Grondir} at the inn.</p>`,
		`<p>Loot: @Item[i1]{Sword &amp; Shield}</p><p>Foe: @UUID[Actor.a9]{Ghoul}</p>`,
	}

	for _, name := range []string{"org", "markdown", "rst"} {
		format := convert.DefaultFormats()[name]

		for _, original := range originals {
			local, err := fake.Convert(ctx, convert.ProtectHTML(original), convert.HTML, format.Name)
			require.NoError(t, err)

			// Reading applies protection again, as for a file edited by hand.
			html, err := fake.Convert(ctx, format.Protect(local), format.Name, convert.HTML)
			require.NoError(t, err)

			assert.Equal(t, original, convert.RestoreHTML(html), "format %s", name)
		}
	}
}

// Local formats carry one verbatim marker, so a reference the remote
// already showed as code comes back as a bare reference.
func TestReferences_RemoteCodeWrapperNotKept(t *testing.T) {
	ctx := context.Background()
	fake := &converttest.Fake{}
	format := convert.DefaultFormats()["org"]

	original := `<p>See <code>@UUID[Actor.x]{Ghoul}</code></p>`

	local, err := fake.Convert(ctx, convert.ProtectHTML(original), convert.HTML, format.Name)
	require.NoError(t, err)

	html, err := fake.Convert(ctx, format.Protect(local), format.Name, convert.HTML)
	require.NoError(t, err)

	assert.Equal(t, `<p>See @UUID[Actor.x]{Ghoul}</p>`, convert.RestoreHTML(html))
}
