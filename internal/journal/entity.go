// Package journal holds the remote document model: folders, journal
// entries and their pages, and the resolution of an entity to its
// filesystem path.
package journal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"strings"

	syncerr "github.com/alexjbarnes/journal-sync/internal/errors"
)

// Kind names the remote document type of an entity. The values match
// the remote application's document names and key metadata records.
type Kind string

const (
	KindFolder Kind = "Folder"
	KindEntry  Kind = "JournalEntry"
	KindPage   Kind = "JournalEntryPage"
)

// Attributes are remote-only fields carried verbatim between download
// and upload. Numbers decode as json.Number so values round-trip exactly.
type Attributes map[string]any

// Node is anything that sits in the folder hierarchy.
type Node interface {
	ID() string
	Name() string
	ParentID() string
}

// Folder is a hierarchical grouping. An empty ID means the folder has
// not been created remotely yet.
type Folder struct {
	id     string
	name   string
	parent string
	attrs  Attributes
}

// NewFolder validates and builds a Folder.
func NewFolder(id, name, parent string, attrs Attributes) (Folder, error) {
	if err := ValidateName(name); err != nil {
		return Folder{}, fmt.Errorf("folder %q: %w", name, err)
	}

	return Folder{id: id, name: name, parent: parent, attrs: cloneAttrs(attrs)}, nil
}

func (f Folder) ID() string        { return f.id }
func (f Folder) Name() string      { return f.name }
func (f Folder) ParentID() string  { return f.parent }
func (f Folder) Kind() Kind        { return KindFolder }
func (f Folder) Attrs() Attributes { return cloneAttrs(f.attrs) }
func (f Folder) IsPending() bool   { return f.id == "" }
func (f Folder) IsRoot() bool      { return f.parent == "" }

// WithID returns a copy of f with a remote identifier.
func (f Folder) WithID(id string) Folder {
	f.id = id
	return f
}

// WithParent returns a copy of f under a different parent folder.
func (f Folder) WithParent(parent string) Folder {
	f.parent = parent
	return f
}

// Page is a unit of content inside an Entry. Content is HTML.
type Page struct {
	id      string
	name    string
	content string
	sort    int64
	attrs   Attributes
}

// NewPage validates and builds a Page.
func NewPage(id, name, content string, sort int64, attrs Attributes) (Page, error) {
	if err := ValidateName(name); err != nil {
		return Page{}, fmt.Errorf("page %q: %w", name, err)
	}

	return Page{id: id, name: name, content: content, sort: sort, attrs: cloneAttrs(attrs)}, nil
}

func (p Page) ID() string        { return p.id }
func (p Page) Name() string      { return p.name }
func (p Page) Content() string   { return p.content }
func (p Page) Sort() int64       { return p.sort }
func (p Page) Kind() Kind        { return KindPage }
func (p Page) Attrs() Attributes { return cloneAttrs(p.attrs) }

// WithContent returns a copy of p carrying new HTML content.
func (p Page) WithContent(content string) Page {
	p.content = content
	return p
}

// Entry is a journal document made of ordered pages.
type Entry struct {
	id     string
	name   string
	folder string
	sort   int64
	pages  []Page
	attrs  Attributes
}

// NewEntry validates and builds an Entry. Page names must be unique
// within the entry.
func NewEntry(id, name, folder string, sort int64, pages []Page, attrs Attributes) (Entry, error) {
	if err := ValidateName(name); err != nil {
		return Entry{}, fmt.Errorf("entry %q: %w", name, err)
	}

	seen := make(map[string]struct{}, len(pages))
	for _, p := range pages {
		if _, dup := seen[p.name]; dup {
			return Entry{}, fmt.Errorf("entry %q page %q: %w", name, p.name, syncerr.ErrDuplicateName)
		}

		seen[p.name] = struct{}{}
	}

	return Entry{
		id:     id,
		name:   name,
		folder: folder,
		sort:   sort,
		pages:  append([]Page{}, pages...),
		attrs:  cloneAttrs(attrs),
	}, nil
}

func (e Entry) ID() string        { return e.id }
func (e Entry) Name() string      { return e.name }
func (e Entry) ParentID() string  { return e.folder }
func (e Entry) Sort() int64       { return e.sort }
func (e Entry) Kind() Kind        { return KindEntry }
func (e Entry) Attrs() Attributes { return cloneAttrs(e.attrs) }
func (e Entry) IsPending() bool   { return e.id == "" }
func (e Entry) Pages() []Page     { return append([]Page{}, e.pages...) }

// Page returns the page with the given name.
func (e Entry) Page(name string) (Page, bool) {
	for _, p := range e.pages {
		if p.name == name {
			return p, true
		}
	}

	return Page{}, false
}

// WithID returns a copy of e with a remote identifier.
func (e Entry) WithID(id string) Entry {
	e.id = id
	return e
}

// WithFolder returns a copy of e under a different parent folder.
func (e Entry) WithFolder(folder string) Entry {
	e.folder = folder
	return e
}

// WithPages returns a copy of e with its pages replaced. Duplicate page
// names are rejected.
func (e Entry) WithPages(pages []Page) (Entry, error) {
	return NewEntry(e.id, e.name, e.folder, e.sort, pages, e.attrs)
}

// ValidateName checks that name can be used as a single path segment.
func ValidateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty", syncerr.ErrInvalidName)
	case name == "." || name == "..":
		return fmt.Errorf("%w: %q is reserved", syncerr.ErrInvalidName, name)
	case strings.ContainsAny(name, "/\\\x00"):
		return fmt.Errorf("%w: %q contains a path separator", syncerr.ErrInvalidName, name)
	}

	return nil
}

func cloneAttrs(a Attributes) Attributes {
	if a == nil {
		return Attributes{}
	}

	return maps.Clone(a)
}

// decodeObject decodes a JSON object preserving numbers as json.Number.
func decodeObject(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, err
	}

	if obj == nil {
		return nil, fmt.Errorf("expected a JSON object")
	}

	return obj, nil
}
