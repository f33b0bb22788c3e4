package projector

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/alexjbarnes/journal-sync/internal/convert"
	"github.com/alexjbarnes/journal-sync/internal/convert/converttest"
	syncerr "github.com/alexjbarnes/journal-sync/internal/errors"
	"github.com/alexjbarnes/journal-sync/internal/journal"
	"github.com/alexjbarnes/journal-sync/internal/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"
)

type fixture struct {
	root  string
	store *metadata.Store
	conv  *converttest.Fake
	proj  *Projector
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	root := t.TempDir()
	store := metadata.New(filepath.Join(root, ".journal-sync.db"))
	conv := &converttest.Fake{}
	logger := slog.New(slog.DiscardHandler)
	proj := New(root, store, conv, convert.DefaultFormats()["org"], logger, opts...)

	return &fixture{root: root, store: store, conv: conv, proj: proj}
}

func (f *fixture) mkfile(t *testing.T, rel, content string) {
	t.Helper()

	path := filepath.Join(f.root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func (f *fixture) mkdir(t *testing.T, rel string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(f.root, filepath.FromSlash(rel)), 0o755))
}

func folder(t *testing.T, id, name, parent string) journal.Folder {
	t.Helper()

	f, err := journal.NewFolder(id, name, parent, nil)
	require.NoError(t, err)

	return f
}

func page(t *testing.T, id, name, content string, sort int64) journal.Page {
	t.Helper()

	p, err := journal.NewPage(id, name, content, sort, nil)
	require.NoError(t, err)

	return p
}

func entry(t *testing.T, id, name, parent string, pages ...journal.Page) journal.Entry {
	t.Helper()

	e, err := journal.NewEntry(id, name, parent, 0, pages, nil)
	require.NoError(t, err)

	return e
}

func pageNames(e journal.Entry) []string {
	var names []string
	for _, p := range e.Pages() {
		names = append(names, p.Name())
	}

	return names
}

// --- Rel / PageFile ---

func TestRel(t *testing.T) {
	f := newFixture(t)

	rel, ok := f.proj.Rel(filepath.Join(f.root, "Bestiary", "Grondir"))
	assert.True(t, ok)
	assert.Equal(t, "Bestiary/Grondir", rel)

	rel, ok = f.proj.Rel("Bestiary/Grondir/Grondir.org")
	assert.True(t, ok)
	assert.Equal(t, "Bestiary/Grondir/Grondir.org", rel)

	_, ok = f.proj.Rel(filepath.Join(f.root, "..", "elsewhere"))
	assert.False(t, ok)

	// NFD input normalizes to NFC.
	rel, ok = f.proj.Rel("Cafe\u0301")
	assert.True(t, ok)
	assert.Equal(t, "Caf\u00e9", rel)
}

func TestPageFile(t *testing.T) {
	f := newFixture(t, WithIgnorePatterns([]string{"drafts/**"}))

	dir, ok := f.proj.PageFile("Bestiary/Grondir/Grondir.org")
	assert.True(t, ok)
	assert.Equal(t, "Bestiary/Grondir", dir)

	for _, rel := range []string{
		"Grondir.org",                  // root-level file
		"Bestiary/Grondir/notes.txt",   // wrong extension
		"Bestiary/Grondir/.hidden.org", // hidden
		"drafts/Idea/Idea.org",         // ignored
	} {
		_, ok := f.proj.PageFile(rel)
		assert.False(t, ok, rel)
	}
}

func TestReport(t *testing.T) {
	var r Report
	assert.NoError(t, r.Err())

	r.Processed = 2
	r.Fail(journal.KindEntry, "Grondir", "Bestiary/Grondir", syncerr.ErrFormatConversion)

	other := Report{Processed: 1, Orphans: 1}
	other.Fail(journal.KindFolder, "Lost", "", syncerr.ErrParentNotFound)
	r.Merge(other)

	assert.Equal(t, 3, r.Processed)
	assert.Equal(t, 2, r.Failed())
	assert.Equal(t, 1, r.Orphans)
	assert.ErrorIs(t, r.Err(), syncerr.ErrFormatConversion)
	assert.ErrorIs(t, r.Err(), syncerr.ErrParentNotFound)
	assert.Contains(t, r.Err().Error(), `JournalEntry "Grondir" (Bestiary/Grondir)`)
	assert.Equal(t, "processed 3, failed 2, orphaned 1", r.String())
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Grondir.org")

	require.NoError(t, writeFileAtomic(path, []byte("one"), filePerm))
	require.NoError(t, writeFileAtomic(path, []byte("two"), filePerm))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, filePerm, info.Mode().Perm())
}

func TestContentHash(t *testing.T) {
	assert.Equal(t, ContentHash([]byte("Hi\n")), ContentHash([]byte("Hi\n")))
	assert.NotEqual(t, ContentHash([]byte("Hi\n")), ContentHash([]byte("Hi")))
	assert.Len(t, ContentHash(nil), 64)
}

var ctx = context.Background()

// corruptEntry stores a second record under the entry's key.
func corruptEntry(t *testing.T, f *fixture, name string) {
	t.Helper()

	db, err := bolt.Open(f.store.Path(), 0o600, nil)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Update(func(tx *bolt.Tx) error {
		nb := tx.Bucket([]byte(journal.KindEntry)).Bucket([]byte(name))
		return nb.Put([]byte("zzzzzzzz"), []byte(`{"kind":"JournalEntry","name":"`+name+`","data":{}}`))
	}))
}
