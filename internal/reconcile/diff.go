package reconcile

import (
	"github.com/alexjbarnes/journal-sync/internal/journal"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// diffCleanupThreshold is the minimum number of diffs before running the
// semantic cleanup pass.
const diffCleanupThreshold = 2

// PageStatus classifies a local page against the remote entry.
type PageStatus int

const (
	PageUnchanged PageStatus = iota
	PageChanged
	PageNew
)

func (s PageStatus) String() string {
	switch s {
	case PageChanged:
		return "changed"
	case PageNew:
		return "new"
	default:
		return "unchanged"
	}
}

// PageChange describes one page of an upload.
type PageChange struct {
	Name     string
	Status   PageStatus
	Inserted int
	Deleted  int
}

// DiffPages compares each candidate page with the remote page of the
// same name. Remote pages missing locally are not reported: uploads
// never delete.
func DiffPages(candidate, remote journal.Entry) []PageChange {
	dmp := diffmatchpatch.New()

	changes := make([]PageChange, 0, len(candidate.Pages()))

	for _, page := range candidate.Pages() {
		change := PageChange{Name: page.Name()}

		old, ok := remote.Page(page.Name())
		switch {
		case !ok:
			change.Status = PageNew
			change.Inserted = len([]rune(page.Content()))
		case old.Content() != page.Content():
			change.Status = PageChanged

			diffs := dmp.DiffMain(old.Content(), page.Content(), false)
			if len(diffs) > diffCleanupThreshold {
				diffs = dmp.DiffCleanupSemantic(diffs)
			}

			for _, d := range diffs {
				switch d.Type {
				case diffmatchpatch.DiffInsert:
					change.Inserted += len([]rune(d.Text))
				case diffmatchpatch.DiffDelete:
					change.Deleted += len([]rune(d.Text))
				case diffmatchpatch.DiffEqual:
				}
			}
		}

		changes = append(changes, change)
	}

	return changes
}

// Changed reports whether any page is new or changed.
func Changed(changes []PageChange) bool {
	for _, c := range changes {
		if c.Status != PageUnchanged {
			return true
		}
	}

	return false
}
