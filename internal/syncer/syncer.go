// Package syncer executes sync commands: it downloads the remote journal
// into the local tree and uploads local edits back.
package syncer

//go:generate mockgen -destination=mock_remote_test.go -package=syncer . Remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	syncerr "github.com/alexjbarnes/journal-sync/internal/errors"
	"github.com/alexjbarnes/journal-sync/internal/journal"
	"github.com/alexjbarnes/journal-sync/internal/metadata"
	"github.com/alexjbarnes/journal-sync/internal/projector"
	"github.com/alexjbarnes/journal-sync/internal/queue"
	"github.com/alexjbarnes/journal-sync/internal/reconcile"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/schollz/progressbar/v3"
)

// Remote is the remote content service.
type Remote interface {
	DownloadTree(ctx context.Context) (journal.Tree, error)
	CreateFolder(ctx context.Context, name, parentID string) (string, error)
	CreateEntry(ctx context.Context, name, folderID string, pages []journal.Page) (string, error)
	UpdateEntry(ctx context.Context, id string, pages []journal.Page) error
}

// Submitter accepts follow-up commands.
type Submitter interface {
	Submit(cmd queue.Command) uuid.UUID
}

const (
	treeKey         = "tree"
	defaultCacheTTL = 5 * time.Minute
)

// Syncer runs commands against one remote and one local tree.
type Syncer struct {
	remote   Remote
	proj     *projector.Projector
	store    *metadata.Store
	submit   Submitter
	logger   *slog.Logger
	trees    *cache.Cache
	dryRun   bool
	progress io.Writer
}

// Option configures a Syncer.
type Option func(*Syncer)

// WithDryRun makes uploads decide and diff without writing remotely.
func WithDryRun(dryRun bool) Option {
	return func(s *Syncer) { s.dryRun = dryRun }
}

// WithProgress renders a progress bar for bulk uploads on w.
func WithProgress(w io.Writer) Option {
	return func(s *Syncer) { s.progress = w }
}

// WithCacheTTL sets how long a downloaded remote tree serves as the
// last-known remote state. A zero ttl disables the cache so every
// operation downloads the tree.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Syncer) {
		if ttl <= 0 {
			// go-cache reads a zero expiration as "never expire".
			s.trees = nil
			return
		}

		s.trees = cache.New(ttl, 2*ttl)
	}
}

// New returns a Syncer. Follow-up downloads after a create go to submit.
func New(remote Remote, proj *projector.Projector, store *metadata.Store, submit Submitter, logger *slog.Logger, opts ...Option) *Syncer {
	s := &Syncer{
		remote: remote,
		proj:   proj,
		store:  store,
		submit: submit,
		logger: logger,
		trees:  cache.New(defaultCacheTTL, 2*defaultCacheTTL),
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Handle executes one queued command.
func (s *Syncer) Handle(ctx context.Context, cmd queue.Command) error {
	var (
		report projector.Report
		err    error
	)

	switch cmd.Kind {
	case queue.DownloadAll:
		report, err = s.DownloadAll(ctx)
	case queue.DownloadOne:
		report, err = s.DownloadOne(ctx, cmd.Name)
	case queue.UploadAll:
		report, err = s.UploadAll(ctx)
	case queue.UploadOne:
		report, err = s.UploadOne(ctx, cmd.Path)
	default:
		return fmt.Errorf("unsupported command %s", cmd)
	}

	if err != nil {
		return err
	}

	s.logger.Info("command complete", slog.String("command", cmd.String()), slog.String("result", report.String()))

	return report.Err()
}

// fatal reports whether err should abort the rest of a batch.
func fatal(err error) bool {
	return errors.Is(err, syncerr.ErrRemoteUnavailable) || errors.Is(err, syncerr.ErrAuthentication)
}

// remoteTree returns the last downloaded tree, downloading it when none
// is cached.
func (s *Syncer) remoteTree(ctx context.Context) (journal.Tree, error) {
	if s.trees == nil {
		return s.refresh(ctx)
	}

	if cached, ok := s.trees.Get(treeKey); ok {
		if tree, ok := cached.(journal.Tree); ok {
			return tree, nil
		}
	}

	return s.refresh(ctx)
}

func (s *Syncer) refresh(ctx context.Context) (journal.Tree, error) {
	tree, err := s.remote.DownloadTree(ctx)
	if err != nil {
		return journal.Tree{}, err
	}

	if s.trees != nil {
		s.trees.Set(treeKey, tree, cache.DefaultExpiration)
	}

	return tree, nil
}

func (s *Syncer) invalidate() {
	if s.trees != nil {
		s.trees.Delete(treeKey)
	}
}

// DownloadAll downloads the whole remote journal and writes it under the
// root.
func (s *Syncer) DownloadAll(ctx context.Context) (projector.Report, error) {
	tree, err := s.refresh(ctx)
	if err != nil {
		return projector.Report{}, err
	}

	return s.proj.Write(ctx, tree.Folders, tree.Entries, tree.Folders)
}

// DownloadOne downloads the entry called name together with the folders
// above it.
func (s *Syncer) DownloadOne(ctx context.Context, name string) (projector.Report, error) {
	tree, err := s.remoteTree(ctx)
	if err != nil {
		return projector.Report{}, err
	}

	e, ok := tree.EntryByName(name)
	if !ok {
		return projector.Report{}, fmt.Errorf("entry %q: %w", name, syncerr.ErrRemoteNotFound)
	}

	ancestors, err := tree.Ancestors(e)
	if err != nil {
		return projector.Report{}, fmt.Errorf("entry %q: %w", name, err)
	}

	return s.proj.Write(ctx, ancestors, []journal.Entry{e}, tree.Folders)
}

// UploadAll uploads every entry of the local tree. Remote unavailability
// or an authentication failure stops the batch; other failures are
// reported per entry.
func (s *Syncer) UploadAll(ctx context.Context) (projector.Report, error) {
	local, err := s.proj.Read(ctx)
	if err != nil {
		return projector.Report{}, err
	}

	// Read failures carry over; Processed counts uploads only.
	report := projector.Report{Failures: local.Failures, Orphans: local.Orphans}

	known, err := s.remoteTree(ctx)
	if err != nil {
		return report, err
	}

	var bar *progressbar.ProgressBar
	if s.progress != nil && len(local.Entries) > 0 {
		bar = progressbar.NewOptions(len(local.Entries),
			progressbar.OptionSetWriter(s.progress),
			progressbar.OptionSetDescription("Uploading entries"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(40),
			progressbar.OptionClearOnFinish(),
		)
	}

	created := make(map[string]string)

	for _, e := range local.Entries {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		err := s.upload(ctx, local, e, known.Entries, created)

		if bar != nil {
			_ = bar.Add(1)
		}

		if err == nil {
			report.Processed++
			continue
		}

		if fatal(err) {
			return report, err
		}

		s.logger.Warn("entry not uploaded", slog.String("entry", e.Name()), slog.String("error", err.Error()))
		report.Fail(journal.KindEntry, e.Name(), e.Dir, err)
	}

	if bar != nil {
		_ = bar.Finish()
	}

	return report, nil
}

// UploadOne uploads the entry at path, which is an entry directory or a
// page file inside one, absolute or relative to the root.
func (s *Syncer) UploadOne(ctx context.Context, p string) (projector.Report, error) {
	rel, ok := s.proj.Rel(p)
	if !ok {
		return projector.Report{}, fmt.Errorf("%s is outside %s", p, s.proj.Root())
	}

	dir := rel
	if entryDir, ok := s.proj.PageFile(rel); ok {
		dir = entryDir
	}

	local, err := s.proj.Read(ctx)
	if err != nil {
		return projector.Report{}, err
	}

	e, ok := local.Entry(dir)
	if !ok {
		for _, f := range local.Failures {
			if f.Path == dir {
				return projector.Report{}, f
			}
		}

		return projector.Report{}, fmt.Errorf("no journal entry at %s", dir)
	}

	known, err := s.remoteTree(ctx)
	if err != nil {
		return projector.Report{}, err
	}

	if err := s.upload(ctx, local, e, known.Entries, make(map[string]string)); err != nil {
		return projector.Report{}, err
	}

	return projector.Report{Processed: 1}, nil
}

// upload creates any pending folders above e, then creates or updates e.
// created carries folders created earlier in the same batch.
func (s *Syncer) upload(ctx context.Context, local *projector.Tree, e projector.LocalEntry, known []journal.Entry, created map[string]string) error {
	chain, err := reconcile.PendingFolders(local, e, created)
	if err != nil {
		return err
	}

	for _, f := range chain {
		if err := s.createFolder(ctx, local, f, created); err != nil {
			return err
		}
	}

	folderID := reconcile.RemoteParent(e.ParentID(), e.FolderDir, local, created)
	candidate := e.WithFolder(folderID)
	d := reconcile.Decide(candidate, known)

	var remote journal.Entry
	if d.Action == reconcile.ActionUpdate {
		remote, _ = journal.Tree{Entries: known}.EntryByID(d.RemoteID)
	}

	changes := reconcile.DiffPages(candidate, remote)

	log := s.logger.With(slog.String("entry", d.Name), slog.String("action", d.Action.String()))
	for _, c := range changes {
		log.Debug("page",
			slog.String("page", c.Name),
			slog.String("status", c.Status.String()),
			slog.Int("inserted", c.Inserted),
			slog.Int("deleted", c.Deleted),
		)
	}

	if s.dryRun {
		log.Info("dry run, entry not sent", slog.Bool("changed", reconcile.Changed(changes)))
		return nil
	}

	switch d.Action {
	case reconcile.ActionCreate:
		id, err := s.remote.CreateEntry(ctx, d.Name, d.FolderID, d.Pages)
		if err != nil {
			return err
		}

		s.invalidate()
		log.Info("entry created", slog.String("id", id))

		// The local records learn the new identifiers from a download.
		s.submit.Submit(queue.Command{Kind: queue.DownloadOne, Name: d.Name})

		return nil

	case reconcile.ActionUpdate:
		if !reconcile.Changed(changes) {
			log.Debug("entry unchanged")
			return nil
		}

		if err := s.remote.UpdateEntry(ctx, d.RemoteID, d.Pages); err != nil {
			return err
		}

		s.invalidate()
		log.Info("entry updated", slog.String("id", d.RemoteID))

		return s.recordHashes(e)
	}

	return fmt.Errorf("entry %q: unknown action %s", d.Name, d.Action)
}

func (s *Syncer) createFolder(ctx context.Context, local *projector.Tree, f projector.LocalFolder, created map[string]string) error {
	parentID := reconcile.RemoteParent(f.ParentID(), f.ParentDir, local, created)

	if s.dryRun {
		s.logger.Info("dry run, folder not created", slog.String("folder", f.Dir))
		created[f.Dir] = ""

		return nil
	}

	id, err := s.remote.CreateFolder(ctx, f.Name(), parentID)
	if err != nil {
		return err
	}

	created[f.Dir] = id
	s.invalidate()

	if err := s.store.Put(f.WithID(id).WithParent(parentID)); err != nil {
		return fmt.Errorf("recording folder %q: %w", f.Name(), err)
	}

	s.logger.Info("folder created", slog.String("folder", f.Dir), slog.String("id", id))

	return nil
}

// recordHashes stores the hash of every page file of e so the watcher
// recognizes the uploaded content.
func (s *Syncer) recordHashes(e projector.LocalEntry) error {
	for _, p := range e.Pages() {
		rel := path.Join(e.Dir, s.proj.Format().FileName(p.Name()))

		data, err := os.ReadFile(filepath.Join(s.proj.Root(), filepath.FromSlash(rel)))
		if err != nil {
			return fmt.Errorf("hashing %s: %w", rel, err)
		}

		if err := s.store.SetFileHash(rel, projector.ContentHash(data)); err != nil {
			return err
		}
	}

	return nil
}
