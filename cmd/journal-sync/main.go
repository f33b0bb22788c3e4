package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alexjbarnes/journal-sync/internal/config"
	"github.com/alexjbarnes/journal-sync/internal/convert"
	"github.com/alexjbarnes/journal-sync/internal/foundry"
	"github.com/alexjbarnes/journal-sync/internal/logging"
	"github.com/alexjbarnes/journal-sync/internal/metadata"
	"github.com/alexjbarnes/journal-sync/internal/projector"
	"github.com/alexjbarnes/journal-sync/internal/queue"
	"github.com/alexjbarnes/journal-sync/internal/syncer"
	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// flags holds command-line overrides of the environment configuration.
type flags struct {
	foundryURL      string
	foundryUser     string
	foundryPassword string
	rootDir         string
	targetFormat    string
	dryRun          bool
}

func newRootCmd() *cobra.Command {
	f := &flags{}

	root := &cobra.Command{
		Use:   "journal-sync",
		Short: "Sync Foundry VTT journal entries with a local file tree",
		Long: `journal-sync downloads the journal of a Foundry VTT world into a tree of
plain-text files, one directory per folder and entry and one file per page,
and uploads local edits back.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&f.foundryURL, "foundry-url", "", "world URL (FOUNDRY_URL)")
	pf.StringVar(&f.foundryUser, "foundry-user", "", "user to log in as (FOUNDRY_USER)")
	pf.StringVar(&f.foundryPassword, "foundry-password", "", "password of the user (FOUNDRY_SYNC_PASSWORD)")
	pf.StringVar(&f.rootDir, "root-dir", "", "root of the local journal tree (ROOT_DIR)")
	pf.StringVar(&f.targetFormat, "target-format", "", "local page format (TARGET_FORMAT)")

	root.AddCommand(
		downloadCmd(f),
		downloadNoteCmd(f),
		uploadCmd(f),
		uploadNoteCmd(f),
		watchCmd(f),
		statusCmd(f),
		versionCmd(),
	)

	return root
}

// applyFlags copies the flags the user set over cfg.
func applyFlags(cmd *cobra.Command, f *flags, cfg *config.Config) {
	changed := cmd.Flags().Changed

	if changed("foundry-url") {
		cfg.FoundryURL = f.foundryURL
	}

	if changed("foundry-user") {
		cfg.FoundryUser = f.foundryUser
	}

	if changed("foundry-password") {
		cfg.FoundryPassword = f.foundryPassword
	}

	if changed("root-dir") {
		cfg.RootDir = f.rootDir
	}

	if changed("target-format") {
		cfg.TargetFormat = f.targetFormat
	}
}

// app is the wired set of components one command runs with.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *metadata.Store
	proj   *projector.Projector
	queue  *queue.Queue
	syncer *syncer.Syncer
}

type appOptions struct {
	remote   bool
	dryRun   bool
	progress bool
}

func newApp(cmd *cobra.Command, f *flags, opts appOptions) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	applyFlags(cmd, f, cfg)

	if err := cfg.Finalize(); err != nil {
		return nil, err
	}

	if opts.remote {
		if err := cfg.RequireRemote(); err != nil {
			return nil, err
		}
	}

	logger := logging.NewLogger(cfg.Environment, cfg.LogFile)

	formats, err := convert.LoadFormats(cfg.FormatsFile)
	if err != nil {
		return nil, err
	}

	format, err := formats.Lookup(cfg.TargetFormat)
	if err != nil {
		return nil, err
	}

	var conv convert.Converter = convert.NewPandoc(cfg.PandocPath, logger)
	if format.Name == convert.HTML {
		conv = convert.Passthrough{}
	}

	store := metadata.New(cfg.MetadataPath())
	proj := projector.New(cfg.RootDir, store, conv, format, logger,
		projector.WithIgnorePatterns(cfg.IgnorePatterns),
		projector.WithStrictParents(cfg.StrictParents),
	)

	a := &app{
		cfg:    cfg,
		logger: logger,
		store:  store,
		proj:   proj,
		queue:  queue.New(logger),
	}

	if !opts.remote {
		return a, nil
	}

	client, err := foundry.NewClient(cfg.FoundryURL, cfg.FoundryUser, cfg.FoundryPassword, logger,
		foundry.WithTimeout(cfg.RemoteTimeout),
	)
	if err != nil {
		return nil, err
	}

	syncOpts := []syncer.Option{
		syncer.WithDryRun(opts.dryRun),
		syncer.WithCacheTTL(cfg.RemoteCacheTTL),
	}

	if opts.progress {
		syncOpts = append(syncOpts, syncer.WithProgress(os.Stderr))
	}

	a.syncer = syncer.New(client, proj, store, a.queue, logger, syncOpts...)

	logger.Info("journal-sync starting",
		slog.String("version", Version),
		slog.String("remote", cfg.FoundryURL),
		slog.String("root", cfg.RootDir),
		slog.String("format", format.Name),
		slog.Bool("dry_run", opts.dryRun),
	)

	return a, nil
}

// runOnce submits cmd and drains the queue, including any follow-up
// commands, then returns every command failure.
func (a *app) runOnce(ctx context.Context, cmd queue.Command) error {
	var errs []error

	a.queue.Submit(cmd)

	err := a.queue.Run(ctx, func(ctx context.Context, c queue.Command) error {
		if err := a.syncer.Handle(ctx, c); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c, err))
			return err
		}

		return nil
	}, true)

	return errors.Join(append(errs, err)...)
}
