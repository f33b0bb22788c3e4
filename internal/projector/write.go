package projector

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/alexjbarnes/journal-sync/internal/convert"
	syncerr "github.com/alexjbarnes/journal-sync/internal/errors"
	"github.com/alexjbarnes/journal-sync/internal/journal"
)

// claim tracks which entity owns a directory during one write, so two
// siblings with the same name fail instead of sharing a directory.
type claim struct {
	kind journal.Kind
	id   string
}

type writeRun struct {
	p      *Projector
	idx    journal.Index
	claims map[string]claim
	report Report
}

// Write materializes folders and entries under the root. allFolders is
// the complete folder set used to resolve paths; folders is the subset
// to create. Every page file is written before its metadata record, so
// an interrupted write leaves at worst a file without a record, which
// the read path treats as pending creation.
func (p *Projector) Write(ctx context.Context, folders []journal.Folder, entries []journal.Entry, allFolders []journal.Folder) (Report, error) {
	run := &writeRun{
		p:      p,
		idx:    journal.NewIndex(allFolders),
		claims: make(map[string]claim),
	}

	for _, f := range folders {
		if err := ctx.Err(); err != nil {
			return run.report, err
		}

		if err := run.folder(f); err != nil {
			p.logger.Warn("folder not written", slog.String("folder", f.Name()), slog.String("error", err.Error()))
			run.report.Fail(journal.KindFolder, f.Name(), "", err)

			continue
		}

		run.report.Processed++
	}

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return run.report, err
		}

		if err := run.entry(ctx, e); err != nil {
			p.logger.Warn("entry not written", slog.String("entry", e.Name()), slog.String("error", err.Error()))
			run.report.Fail(journal.KindEntry, e.Name(), "", err)

			continue
		}

		run.report.Processed++
	}

	return run.report, nil
}

func (w *writeRun) dir(node journal.Node, kind journal.Kind) (string, error) {
	segments, err := w.idx.Resolve(node)
	if err != nil {
		return "", err
	}

	dir := filepath.Join(append([]string{w.p.root}, segments...)...)

	if c, ok := w.claims[dir]; ok && (c.kind != kind || c.id != node.ID()) {
		return "", fmt.Errorf("%s already used by %s %s: %w", dir, c.kind, c.id, syncerr.ErrDuplicateName)
	}

	w.claims[dir] = claim{kind: kind, id: node.ID()}

	return dir, nil
}

func (w *writeRun) folder(f journal.Folder) error {
	dir, err := w.dir(f, journal.KindFolder)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("creating folder directory: %w", err)
	}

	if err := w.p.store.Put(f); err != nil {
		return err
	}

	w.p.logger.Debug("wrote folder", slog.String("folder", f.Name()), slog.String("dir", dir))

	return nil
}

type renderedPage struct {
	page journal.Page
	path string
	data []byte
}

func (w *writeRun) entry(ctx context.Context, e journal.Entry) error {
	dir, err := w.dir(e, journal.KindEntry)
	if err != nil {
		return err
	}

	// Convert every page before touching the disk so a failed
	// conversion leaves the entry as it was.
	pages := e.Pages()
	rendered := make([]renderedPage, 0, len(pages))

	for _, page := range pages {
		text, err := w.p.conv.Convert(ctx, convert.ProtectHTML(page.Content()), convert.HTML, w.p.format.Name)
		if err != nil {
			return fmt.Errorf("page %q: %w", page.Name(), err)
		}

		rendered = append(rendered, renderedPage{
			page: page,
			path: filepath.Join(dir, w.p.format.FileName(page.Name())),
			data: []byte(text),
		})
	}

	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("creating entry directory: %w", err)
	}

	for _, r := range rendered {
		if err := writeFileAtomic(r.path, r.data, filePerm); err != nil {
			return fmt.Errorf("page %q: %w", r.page.Name(), err)
		}

		if rel, ok := w.p.Rel(r.path); ok {
			if err := w.p.store.SetFileHash(rel, ContentHash(r.data)); err != nil {
				return err
			}
		}

		if err := w.p.store.Put(r.page); err != nil {
			return err
		}
	}

	if err := w.p.store.Put(e); err != nil {
		return err
	}

	w.p.logger.Debug("wrote entry",
		slog.String("entry", e.Name()),
		slog.String("dir", strings.TrimPrefix(dir, w.p.root)),
		slog.Int("pages", len(rendered)),
	)

	return nil
}
