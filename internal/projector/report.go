package projector

import (
	"errors"
	"fmt"

	"github.com/alexjbarnes/journal-sync/internal/journal"
)

// Failure is one entity that could not be processed.
type Failure struct {
	Kind journal.Kind
	Name string
	Path string
	Err  error
}

func (f Failure) Error() string {
	if f.Path != "" {
		return fmt.Sprintf("%s %q (%s): %v", f.Kind, f.Name, f.Path, f.Err)
	}

	return fmt.Sprintf("%s %q: %v", f.Kind, f.Name, f.Err)
}

func (f Failure) Unwrap() error { return f.Err }

// Report summarizes a bulk operation. A report with failures is a
// partial success: every other entity was processed.
type Report struct {
	Processed int
	Failures  []Failure

	// Orphans counts entities whose parent folder could not be resolved
	// and that were treated as root-level.
	Orphans int
}

// Fail records a failed entity.
func (r *Report) Fail(kind journal.Kind, name, path string, err error) {
	r.Failures = append(r.Failures, Failure{Kind: kind, Name: name, Path: path, Err: err})
}

// Merge adds the counts and failures of o to r.
func (r *Report) Merge(o Report) {
	r.Processed += o.Processed
	r.Orphans += o.Orphans
	r.Failures = append(r.Failures, o.Failures...)
}

// Failed returns the number of failed entities.
func (r Report) Failed() int {
	return len(r.Failures)
}

// Err joins all failures, or returns nil when there are none.
func (r Report) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}

	errs := make([]error, len(r.Failures))
	for i, f := range r.Failures {
		errs[i] = f
	}

	return errors.Join(errs...)
}

func (r Report) String() string {
	return fmt.Sprintf("processed %d, failed %d, orphaned %d", r.Processed, r.Failed(), r.Orphans)
}
