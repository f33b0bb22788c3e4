package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/alexjbarnes/journal-sync/internal/journal"
	"github.com/alexjbarnes/journal-sync/internal/metadata"
	"github.com/alexjbarnes/journal-sync/internal/queue"
	"github.com/alexjbarnes/journal-sync/internal/watch"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func downloadCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "download",
		Short: "Download every journal entry into the local tree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd, f, appOptions{remote: true})
			if err != nil {
				return err
			}

			return a.runOnce(cmd.Context(), queue.Command{Kind: queue.DownloadAll})
		},
	}
}

func downloadNoteCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "download-note NAME",
		Short: "Download one journal entry and the folders above it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, f, appOptions{remote: true})
			if err != nil {
				return err
			}

			return a.runOnce(cmd.Context(), queue.Command{Kind: queue.DownloadOne, Name: args[0]})
		},
	}
}

func uploadCmd(f *flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Upload every local journal entry",
		Long: `Upload creates remote entries for local directories that were never
synced, creating missing folders first, and updates entries whose pages
changed. Nothing is deleted remotely.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd, f, appOptions{remote: true, dryRun: f.dryRun, progress: true})
			if err != nil {
				return err
			}

			return a.runOnce(cmd.Context(), queue.Command{Kind: queue.UploadAll})
		},
	}

	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "decide and diff without writing remotely")

	return cmd
}

func uploadNoteCmd(f *flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload-note PATH",
		Short: "Upload the entry at PATH, an entry directory or one of its page files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, f, appOptions{remote: true, dryRun: f.dryRun})
			if err != nil {
				return err
			}

			return a.runOnce(cmd.Context(), queue.Command{Kind: queue.UploadOne, Path: args[0]})
		},
	}

	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "decide and diff without writing remotely")

	return cmd
}

func watchCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Upload local page edits as they are saved",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd, f, appOptions{remote: true})
			if err != nil {
				return err
			}

			return a.watch(cmd.Context())
		},
	}
}

// watch runs the queue worker and the file watcher until ctx ends.
func (a *app) watch(ctx context.Context) error {
	w := watch.New(a.proj, a.store, a.queue, a.logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.queue.Run(gctx, a.syncer.Handle, false)
	})

	g.Go(func() error {
		return w.Watch(gctx)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		a.logger.Info("shutting down")
		return nil
	}

	return err
}

func statusCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List the metadata records of the local tree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd, f, appOptions{})
			if err != nil {
				return err
			}

			return printStatus(cmd.OutOrStdout(), a.store, a.logger)
		},
	}
}

// printStatus writes one line per record, grouped by kind.
func printStatus(out io.Writer, store *metadata.Store, logger *slog.Logger) error {
	fmt.Fprintf(out, "metadata: %s\n", store.Path())

	var errs []error

	for _, kind := range []journal.Kind{journal.KindFolder, journal.KindEntry, journal.KindPage} {
		records, err := store.All(kind)
		if err != nil {
			logger.Warn("listing records", slog.String("kind", string(kind)), slog.String("error", err.Error()))
			errs = append(errs, err)
		}

		fmt.Fprintf(out, "\n%s (%d)\n", kind, len(records))

		for _, rec := range records {
			fmt.Fprintf(out, "  %-40s %s\n", rec.Name, rec.WrittenAt.Format("2006-01-02 15:04:05"))
		}
	}

	return errors.Join(errs...)
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of journal-sync",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "journal-sync version %s\n", Version)
		},
	}
}
