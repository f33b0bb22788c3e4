package projector

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/alexjbarnes/journal-sync/internal/convert"
	syncerr "github.com/alexjbarnes/journal-sync/internal/errors"
	"github.com/alexjbarnes/journal-sync/internal/journal"
)

// pageSortStep is the sort gap the remote application leaves between
// pages; new local pages are appended after existing ones with it.
const pageSortStep = 100000

// LocalFolder is a folder found on disk. Dir and ParentDir are
// root-relative slash paths; ParentDir is empty for root-level folders.
// A pending folder under another pending folder has an empty ParentID
// and is linked through ParentDir only.
type LocalFolder struct {
	journal.Folder
	Dir       string
	ParentDir string
}

// LocalEntry is an entry found on disk.
type LocalEntry struct {
	journal.Entry
	Dir       string
	FolderDir string
}

// Tree is the result of reading the local tree.
type Tree struct {
	Folders []LocalFolder
	Entries []LocalEntry
	Report
}

// Folder returns the folder read from dir.
func (t *Tree) Folder(dir string) (LocalFolder, bool) {
	for _, f := range t.Folders {
		if f.Dir == dir {
			return f, true
		}
	}

	return LocalFolder{}, false
}

// Entry returns the entry read from dir.
func (t *Tree) Entry(dir string) (LocalEntry, bool) {
	for _, e := range t.Entries {
		if e.Dir == dir {
			return e, true
		}
	}

	return LocalEntry{}, false
}

// EntryNamed returns the first entry called name.
func (t *Tree) EntryNamed(name string) (LocalEntry, bool) {
	for _, e := range t.Entries {
		if e.Name() == name {
			return e, true
		}
	}

	return LocalEntry{}, false
}

type localFile struct {
	abs string
	rel string
}

type localDir struct {
	rel   string
	files []localFile
}

// Read walks the root and rebuilds folders and entries. Entities with
// metadata records keep their remote identity; others are synthesized
// as pending creation. Per-entity problems are collected in the
// returned tree's report; the error is reserved for a walk that could
// not run at all.
func (p *Projector) Read(ctx context.Context) (*Tree, error) {
	dirs, order, err := p.scan()
	if err != nil {
		return nil, err
	}

	r := &treeReader{
		p:       p,
		tree:    &Tree{},
		folders: make(map[string]LocalFolder),
	}

	if root := dirs["."]; root != nil && len(root.files) > 0 {
		p.logger.Warn("ignoring files at the root, pages must live in an entry directory",
			slog.Int("files", len(root.files)),
		)
	}

	for _, rel := range order {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		d := dirs[rel]
		if len(d.files) == 0 {
			r.folder(d)
		} else {
			r.entry(ctx, d)
		}
	}

	p.logger.Info("read local tree",
		slog.Int("folders", len(r.tree.Folders)),
		slog.Int("entries", len(r.tree.Entries)),
		slog.Int("orphans", r.tree.Orphans),
		slog.Int("failed", r.tree.Failed()),
	)

	return r.tree, nil
}

// scan walks the root and returns every directory keyed by relative
// path, plus the directories in walk order (parents before children).
func (p *Projector) scan() (map[string]*localDir, []string, error) {
	dirs := map[string]*localDir{".": {rel: "."}}

	var order []string

	err := filepath.WalkDir(p.root, func(absPath string, d fs.DirEntry, err error) error {
		if err != nil {
			if absPath == p.root {
				return err
			}

			p.logger.Warn("skipping unreadable path", slog.String("path", absPath), slog.String("error", err.Error()))

			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}

			return nil
		}

		rel, ok := p.Rel(absPath)
		if !ok || rel == "." {
			return nil
		}

		skip := strings.HasPrefix(d.Name(), ".") ||
			d.Type()&fs.ModeSymlink != 0 ||
			p.isMetadataFile(rel) ||
			p.ignored(rel)
		if skip {
			if d.IsDir() {
				return filepath.SkipDir
			}

			return nil
		}

		if d.IsDir() {
			dirs[rel] = &localDir{rel: rel}
			order = append(order, rel)

			return nil
		}

		if !d.Type().IsRegular() {
			return nil
		}

		parent, _ := splitRel(rel)
		if parent == "" {
			parent = "."
		}

		if pd := dirs[parent]; pd != nil {
			pd.files = append(pd.files, localFile{abs: absPath, rel: rel})
		}

		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("walking %s: %w", p.root, err)
	}

	return dirs, order, nil
}

type treeReader struct {
	p       *Projector
	tree    *Tree
	folders map[string]LocalFolder
	owners  map[string]string
}

// parent resolves the remote parent of the directory at rel. A pending
// parent folder yields an empty id and its directory. ok is false when
// the entity must be skipped.
func (r *treeReader) parent(kind journal.Kind, rel string) (id, dir string, ok bool) {
	parentRel, name := splitRel(rel)
	if parentRel == "" {
		return "", "", true
	}

	if f, found := r.folders[parentRel]; found {
		return f.ID(), parentRel, true
	}

	if r.p.strictParents {
		err := fmt.Errorf("directory %s is not a known folder: %w", parentRel, syncerr.ErrParentNotFound)
		r.tree.Fail(kind, name, rel, err)

		return "", "", false
	}

	r.p.logger.Warn("parent folder unknown, treating as root-level",
		slog.String("kind", string(kind)),
		slog.String("name", name),
		slog.String("parent_dir", parentRel),
	)
	r.tree.Orphans++

	return "", "", true
}

func (r *treeReader) folder(d *localDir) {
	parentRel, name := splitRel(d.rel)

	folder, err := r.p.store.Folder(name)

	switch {
	case err == nil:
		parent, found := r.folders[parentRel]
		if !found {
			parentRel = ""
		}

		if want := parent.ID(); found && want != folder.ParentID() {
			r.p.logger.Warn("folder record parent differs from its directory, keeping the record",
				slog.String("dir", d.rel),
				slog.String("record_parent", folder.ParentID()),
				slog.String("dir_parent", want),
			)
		}
	case errors.Is(err, syncerr.ErrRecordNotFound):
		parentID, parentDir, ok := r.parent(journal.KindFolder, d.rel)
		if !ok {
			return
		}

		parentRel = parentDir

		folder, err = journal.NewFolder("", name, parentID, nil)
		if err != nil {
			r.tree.Fail(journal.KindFolder, name, d.rel, err)
			return
		}

		r.p.logger.Debug("synthesized pending folder", slog.String("dir", d.rel))
	default:
		r.tree.Fail(journal.KindFolder, name, d.rel, err)
		return
	}

	lf := LocalFolder{Folder: folder, Dir: d.rel, ParentDir: parentRel}
	r.folders[d.rel] = lf
	r.tree.Folders = append(r.tree.Folders, lf)
	r.tree.Processed++
}

func (r *treeReader) entry(ctx context.Context, d *localDir) {
	parentRel, name := splitRel(d.rel)

	base, err := r.p.store.Entry(name)

	switch {
	case err == nil:
		if _, found := r.folders[parentRel]; !found {
			parentRel = ""
		}
	case errors.Is(err, syncerr.ErrRecordNotFound):
		parentID, parentDir, ok := r.parent(journal.KindEntry, d.rel)
		if !ok {
			return
		}

		parentRel = parentDir

		base, err = journal.NewEntry("", name, parentID, 0, nil, nil)
		if err != nil {
			r.tree.Fail(journal.KindEntry, name, d.rel, err)
			return
		}
	default:
		r.tree.Fail(journal.KindEntry, name, d.rel, err)
		return
	}

	pages, err := r.pages(ctx, base, d.files)
	if err != nil {
		r.tree.Fail(journal.KindEntry, name, d.rel, err)
		return
	}

	entry, err := base.WithPages(pages)
	if err != nil {
		r.tree.Fail(journal.KindEntry, name, d.rel, err)
		return
	}

	r.tree.Entries = append(r.tree.Entries, LocalEntry{Entry: entry, Dir: d.rel, FolderDir: parentRel})
	r.tree.Processed++
}

// pages converts every page file of an entry directory back to HTML.
// Known pages keep their identity from the entry record, falling back
// to a page record the entry can own; unknown pages are appended after
// them.
func (r *treeReader) pages(ctx context.Context, base journal.Entry, files []localFile) ([]journal.Page, error) {
	format := r.p.format

	var nextSort int64
	for _, p := range base.Pages() {
		nextSort = max(nextSort, p.Sort())
	}

	slices.SortFunc(files, func(a, b localFile) int { return cmp.Compare(a.rel, b.rel) })

	var pages []journal.Page

	for _, f := range files {
		_, fileName := splitRel(f.rel)

		pageName, ok := format.PageName(fileName)
		if !ok {
			r.p.logger.Debug("skipping non-page file", slog.String("path", f.rel))
			continue
		}

		data, err := os.ReadFile(f.abs)
		if err != nil {
			return nil, fmt.Errorf("reading page %s: %w", f.rel, err)
		}

		html, err := r.p.conv.Convert(ctx, format.Protect(string(data)), format.Name, convert.HTML)
		if err != nil {
			return nil, fmt.Errorf("page %q: %w", pageName, err)
		}

		html = convert.RestoreHTML(html)

		page, found := base.Page(pageName)
		if !found {
			page, found, err = r.recordedPage(base, pageName)
			if err != nil {
				return nil, err
			}
		}

		if !found {
			nextSort += pageSortStep

			page, err = journal.NewPage("", pageName, "", nextSort, nil)
			if err != nil {
				return nil, err
			}
		}

		pages = append(pages, page.WithContent(html))
	}

	slices.SortStableFunc(pages, func(a, b journal.Page) int {
		return cmp.Or(cmp.Compare(a.Sort(), b.Sort()), cmp.Compare(a.Name(), b.Name()))
	})

	return pages, nil
}

// recordedPage looks up the page record for a page the entry record
// does not list. Page records are keyed by name only, so a pending
// entry never takes one and a known entry skips a record whose page
// another entry lists.
func (r *treeReader) recordedPage(base journal.Entry, name string) (journal.Page, bool, error) {
	if base.ID() == "" {
		return journal.Page{}, false, nil
	}

	page, err := r.p.store.Page(name)

	switch {
	case errors.Is(err, syncerr.ErrRecordNotFound):
		return journal.Page{}, false, nil
	case err != nil:
		return journal.Page{}, false, err
	}

	owner, err := r.pageOwner(page.ID())
	if err != nil {
		return journal.Page{}, false, err
	}

	if owner != "" && owner != base.Name() {
		r.p.logger.Debug("page record belongs to another entry",
			slog.String("page", name),
			slog.String("entry", base.Name()),
			slog.String("owner", owner),
		)

		return journal.Page{}, false, nil
	}

	return page, true, nil
}

// pageOwner returns the name of the entry whose record lists the page
// id, or "" when none does. Entry records are loaded on first use.
func (r *treeReader) pageOwner(id string) (string, error) {
	if r.owners == nil {
		recs, err := r.p.store.All(journal.KindEntry)
		if err != nil && !errors.Is(err, syncerr.ErrAmbiguousRecord) {
			return "", err
		}

		r.owners = make(map[string]string)

		for _, rec := range recs {
			e, err := journal.DecodeEntry(rec.Data)
			if err != nil {
				return "", fmt.Errorf("entry record %q: %w", rec.Name, err)
			}

			for _, p := range e.Pages() {
				if p.ID() != "" {
					r.owners[p.ID()] = e.Name()
				}
			}
		}
	}

	return r.owners[id], nil
}
