package journal

import (
	"fmt"
	"slices"

	syncerr "github.com/alexjbarnes/journal-sync/internal/errors"
)

// Index maps folder identifiers to folders. Build it once per operation
// with NewIndex and reuse it for every resolution.
type Index map[string]Folder

// NewIndex indexes folders by identifier. Pending folders (empty ID)
// cannot be referenced as parents and are skipped.
func NewIndex(folders []Folder) Index {
	idx := make(Index, len(folders))
	for _, f := range folders {
		if f.id != "" {
			idx[f.id] = f
		}
	}

	return idx
}

// ResolvePath returns the path segments from the root folder down to
// node, inclusive. It does not append file extensions.
func ResolvePath(node Node, folders []Folder) ([]string, error) {
	return NewIndex(folders).Resolve(node)
}

// Resolve walks parent references from node up to a root folder.
// The walk fails with ErrParentNotFound when a parent is absent and
// with ErrCycle when it revisits an identifier. It never takes more
// than len(idx)+1 steps.
func (idx Index) Resolve(node Node) ([]string, error) {
	segments := []string{node.Name()}
	visited := make(map[string]struct{}, len(idx)+1)

	// Entry and folder identifiers are separate namespaces, so only a
	// folder can revisit itself.
	if f, ok := node.(Folder); ok && f.id != "" {
		visited[f.id] = struct{}{}
	}

	parent := node.ParentID()
	for steps := 0; parent != ""; steps++ {
		if steps > len(idx) {
			return nil, fmt.Errorf("resolving %q: walk exceeded %d steps: %w", node.Name(), len(idx)+1, syncerr.ErrCycle)
		}

		if _, seen := visited[parent]; seen {
			return nil, fmt.Errorf("resolving %q: folder %s revisited: %w", node.Name(), parent, syncerr.ErrCycle)
		}

		folder, ok := idx[parent]
		if !ok {
			return nil, fmt.Errorf("resolving %q: folder %s: %w", node.Name(), parent, syncerr.ErrParentNotFound)
		}

		visited[parent] = struct{}{}
		segments = append(segments, folder.name)
		parent = folder.parent
	}

	slices.Reverse(segments)

	return segments, nil
}

// Tree is a full snapshot of the remote journal hierarchy.
type Tree struct {
	Folders []Folder
	Entries []Entry
}

// EntryByName returns the first entry with the given name.
func (t Tree) EntryByName(name string) (Entry, bool) {
	for _, e := range t.Entries {
		if e.name == name {
			return e, true
		}
	}

	return Entry{}, false
}

// EntryByID returns the entry with the given identifier.
func (t Tree) EntryByID(id string) (Entry, bool) {
	if id == "" {
		return Entry{}, false
	}

	for _, e := range t.Entries {
		if e.id == id {
			return e, true
		}
	}

	return Entry{}, false
}

// Ancestors returns the folders above node ordered root-first.
func (t Tree) Ancestors(node Node) ([]Folder, error) {
	idx := NewIndex(t.Folders)
	if _, err := idx.Resolve(node); err != nil {
		return nil, err
	}

	var chain []Folder
	for parent := node.ParentID(); parent != ""; parent = idx[parent].parent {
		chain = append(chain, idx[parent])
	}

	slices.Reverse(chain)

	return chain, nil
}
