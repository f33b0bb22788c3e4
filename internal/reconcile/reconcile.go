// Package reconcile decides how a local entry reaches the remote: which
// pending folders must be created first, whether the entry is created or
// updated, and which of its pages changed.
package reconcile

import (
	"fmt"
	"slices"

	syncerr "github.com/alexjbarnes/journal-sync/internal/errors"
	"github.com/alexjbarnes/journal-sync/internal/journal"
	"github.com/alexjbarnes/journal-sync/internal/projector"
)

// Action is the remote operation an upload performs.
type Action int

const (
	// ActionCreate makes a new remote entry under Directive.FolderID.
	// The entry moves from unsynced to pending its remote identifier
	// until the follow-up download records it.
	ActionCreate Action = iota

	// ActionUpdate replaces the pages of the remote entry
	// Directive.RemoteID. Pages are matched by name on the remote side:
	// a page with the same name has its content replaced, any other page
	// is appended.
	ActionUpdate
)

func (a Action) String() string {
	switch a {
	case ActionCreate:
		return "create"
	case ActionUpdate:
		return "update"
	}

	return fmt.Sprintf("Action(%d)", int(a))
}

// Directive is the outcome of Decide. It carries everything the remote
// call needs.
type Directive struct {
	Action   Action
	RemoteID string
	Name     string
	FolderID string
	Pages    []journal.Page
}

// Decide compares candidate against the last known remote entries.
// A candidate whose identifier matches a known entry is an update of
// that entry; anything else, including a pending candidate, is a create.
// This is a pure function; the caller performs the remote call.
func Decide(candidate journal.Entry, known []journal.Entry) Directive {
	d := Directive{
		Action:   ActionCreate,
		Name:     candidate.Name(),
		FolderID: candidate.ParentID(),
		Pages:    candidate.Pages(),
	}

	if candidate.ID() == "" {
		return d
	}

	for _, remote := range known {
		if remote.ID() == candidate.ID() {
			d.Action = ActionUpdate
			d.RemoteID = remote.ID()

			return d
		}
	}

	return d
}

// PendingFolders returns the folders above entry that have no remote
// identifier yet, ordered root-first so each parent is created before
// its children. created maps folder directories to identifiers assigned
// earlier in the same operation; those folders count as existing.
func PendingFolders(tree *projector.Tree, entry projector.LocalEntry, created map[string]string) ([]projector.LocalFolder, error) {
	var chain []projector.LocalFolder

	dir := entry.FolderDir
	for steps := 0; dir != ""; steps++ {
		if steps > len(tree.Folders) {
			return nil, fmt.Errorf("folders above %q: %w", entry.Name(), syncerr.ErrCycle)
		}

		if _, done := created[dir]; done {
			break
		}

		folder, ok := tree.Folder(dir)
		if !ok {
			return nil, fmt.Errorf("folder directory %s above %q: %w", dir, entry.Name(), syncerr.ErrParentNotFound)
		}

		if !folder.IsPending() {
			break
		}

		chain = append(chain, folder)
		dir = folder.ParentDir
	}

	slices.Reverse(chain)

	return chain, nil
}

// RemoteParent returns the remote identifier of the folder an entity
// belongs in. A known parentID wins; otherwise parentDir is looked up
// among folders created in this operation and then in the tree. An
// empty result places the entity at the root.
func RemoteParent(parentID, parentDir string, tree *projector.Tree, created map[string]string) string {
	if parentID != "" || parentDir == "" {
		return parentID
	}

	if id, ok := created[parentDir]; ok {
		return id
	}

	if folder, ok := tree.Folder(parentDir); ok {
		return folder.ID()
	}

	return ""
}
