package journal

import (
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"strconv"
)

// Keys the model owns. Everything else is kept as an opaque attribute.
const (
	keyID      = "_id"
	keyName    = "name"
	keyFolder  = "folder"
	keyParent  = "parent"
	keySort    = "sort"
	keyPages   = "pages"
	keyText    = "text"
	keyContent = "content"
)

// DecodeFolder builds a Folder from the remote document JSON. The parent
// is read from "folder", falling back to the legacy "parent" key.
func DecodeFolder(data []byte) (Folder, error) {
	obj, err := decodeObject(data)
	if err != nil {
		return Folder{}, fmt.Errorf("decoding folder: %w", err)
	}

	id, name, err := identity(obj)
	if err != nil {
		return Folder{}, fmt.Errorf("decoding folder: %w", err)
	}

	parent, err := optionalString(obj, keyFolder)
	if err != nil {
		return Folder{}, fmt.Errorf("decoding folder %q: %w", name, err)
	}

	if parent == "" {
		if parent, err = optionalString(obj, keyParent); err != nil {
			return Folder{}, fmt.Errorf("decoding folder %q: %w", name, err)
		}
	}

	delete(obj, keyFolder)
	delete(obj, keyParent)

	return NewFolder(id, name, parent, obj)
}

// DecodeEntry builds an Entry, including its pages, from the remote
// document JSON.
func DecodeEntry(data []byte) (Entry, error) {
	obj, err := decodeObject(data)
	if err != nil {
		return Entry{}, fmt.Errorf("decoding entry: %w", err)
	}

	return entryFromObject(obj)
}

func entryFromObject(obj map[string]any) (Entry, error) {
	id, name, err := identity(obj)
	if err != nil {
		return Entry{}, fmt.Errorf("decoding entry: %w", err)
	}

	folder, err := optionalString(obj, keyFolder)
	if err != nil {
		return Entry{}, fmt.Errorf("decoding entry %q: %w", name, err)
	}

	sort, err := optionalInt(obj, keySort)
	if err != nil {
		return Entry{}, fmt.Errorf("decoding entry %q: %w", name, err)
	}

	var pages []Page

	if raw, ok := obj[keyPages]; ok && raw != nil {
		list, ok := raw.([]any)
		if !ok {
			return Entry{}, fmt.Errorf("decoding entry %q: pages is %T, want array", name, raw)
		}

		for i, item := range list {
			pobj, ok := item.(map[string]any)
			if !ok {
				return Entry{}, fmt.Errorf("decoding entry %q: page %d is %T, want object", name, i, item)
			}

			p, err := pageFromObject(pobj)
			if err != nil {
				return Entry{}, fmt.Errorf("decoding entry %q: %w", name, err)
			}

			pages = append(pages, p)
		}
	}

	delete(obj, keyFolder)
	delete(obj, keySort)
	delete(obj, keyPages)

	return NewEntry(id, name, folder, sort, pages, obj)
}

// DecodePage builds a Page from the remote document JSON. Content is
// taken from text.content; the other members of text stay attributes.
func DecodePage(data []byte) (Page, error) {
	obj, err := decodeObject(data)
	if err != nil {
		return Page{}, fmt.Errorf("decoding page: %w", err)
	}

	return pageFromObject(obj)
}

func pageFromObject(obj map[string]any) (Page, error) {
	id, name, err := identity(obj)
	if err != nil {
		return Page{}, fmt.Errorf("decoding page: %w", err)
	}

	sort, err := optionalInt(obj, keySort)
	if err != nil {
		return Page{}, fmt.Errorf("decoding page %q: %w", name, err)
	}

	var content string

	raw, hasText := obj[keyText]
	delete(obj, keyText)

	if hasText && raw != nil {
		text, ok := raw.(map[string]any)
		if !ok {
			return Page{}, fmt.Errorf("decoding page %q: text is %T, want object", name, raw)
		}

		if content, err = optionalString(text, keyContent); err != nil {
			return Page{}, fmt.Errorf("decoding page %q text: %w", name, err)
		}

		rest := maps.Clone(text)
		delete(rest, keyContent)

		if len(rest) > 0 {
			obj[keyText] = rest
		}
	}

	delete(obj, keySort)

	return NewPage(id, name, content, sort, obj)
}

// MarshalJSON encodes the folder as a remote document.
func (f Folder) MarshalJSON() ([]byte, error) {
	obj := maps.Clone(f.attrs)
	if obj == nil {
		obj = Attributes{}
	}

	obj[keyID] = f.id
	obj[keyName] = f.name
	obj[keyFolder] = nullable(f.parent)

	return json.Marshal(map[string]any(obj))
}

// MarshalJSON encodes the entry and its pages as a remote document.
func (e Entry) MarshalJSON() ([]byte, error) {
	obj := maps.Clone(e.attrs)
	if obj == nil {
		obj = Attributes{}
	}

	obj[keyID] = e.id
	obj[keyName] = e.name
	obj[keyFolder] = nullable(e.folder)
	obj[keySort] = e.sort

	pages := e.pages
	if pages == nil {
		pages = []Page{}
	}

	obj[keyPages] = pages

	return json.Marshal(map[string]any(obj))
}

// MarshalJSON encodes the page as a remote document.
func (p Page) MarshalJSON() ([]byte, error) {
	obj := maps.Clone(p.attrs)
	if obj == nil {
		obj = Attributes{}
	}

	text := map[string]any{}
	if existing, ok := obj[keyText].(map[string]any); ok {
		text = maps.Clone(existing)
	}

	text[keyContent] = p.content

	obj[keyID] = p.id
	obj[keyName] = p.name
	obj[keySort] = p.sort
	obj[keyText] = text

	return json.Marshal(map[string]any(obj))
}

func identity(obj map[string]any) (id, name string, err error) {
	if id, err = optionalString(obj, keyID); err != nil {
		return "", "", err
	}

	if name, err = optionalString(obj, keyName); err != nil {
		return "", "", err
	}

	delete(obj, keyID)
	delete(obj, keyName)

	return id, name, nil
}

func optionalString(obj map[string]any, key string) (string, error) {
	raw, ok := obj[key]
	if !ok || raw == nil {
		return "", nil
	}

	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%s is %T, want string", key, raw)
	}

	return s, nil
}

func optionalInt(obj map[string]any, key string) (int64, error) {
	raw, ok := obj[key]
	if !ok || raw == nil {
		return 0, nil
	}

	n, ok := raw.(json.Number)
	if !ok {
		return 0, fmt.Errorf("%s is %T, want number", key, raw)
	}

	if i, err := n.Int64(); err == nil {
		return i, nil
	}

	// The remote occasionally stores sort as a float.
	f, err := strconv.ParseFloat(n.String(), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%s: invalid number %q", key, n)
	}

	return int64(f), nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}

	return s
}
