package main

import (
	"bytes"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/alexjbarnes/journal-sync/internal/config"
	"github.com/alexjbarnes/journal-sync/internal/journal"
	"github.com/alexjbarnes/journal-sync/internal/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyFlags_OnlyChangedFlags(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"version", "--root-dir", "/tmp/j", "--target-format", "markdown"})
	require.NoError(t, root.Execute())

	cmd, _, err := root.Find([]string{"version"})
	require.NoError(t, err)

	cfg := &config.Config{FoundryURL: "http://world:30000", FoundryUser: "Gamemaster", RootDir: "./journal", TargetFormat: "org"}

	f := &flags{rootDir: "/tmp/j", targetFormat: "markdown", foundryUser: "ignored"}
	applyFlags(cmd, f, cfg)

	assert.Equal(t, "/tmp/j", cfg.RootDir)
	assert.Equal(t, "markdown", cfg.TargetFormat)
	assert.Equal(t, "Gamemaster", cfg.FoundryUser, "unset flags keep env values")
	assert.Equal(t, "http://world:30000", cfg.FoundryURL)
}

func TestVersionCmd(t *testing.T) {
	var out bytes.Buffer

	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())

	assert.Equal(t, "journal-sync version dev\n", out.String())
}

func TestDownloadNoteCmd_RequiresName(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"download-note"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})

	require.Error(t, root.Execute())
}

func TestPrintStatus(t *testing.T) {
	store := metadata.New(filepath.Join(t.TempDir(), "meta.db"))

	f, err := journal.NewFolder("1", "Bestiary", "", nil)
	require.NoError(t, err)
	require.NoError(t, store.Put(f))

	p, err := journal.NewPage("p1", "Grondir", "<p>Hi</p>", 0, nil)
	require.NoError(t, err)
	require.NoError(t, store.Put(p))

	e, err := journal.NewEntry("10", "Grondir", "1", 0, []journal.Page{p}, nil)
	require.NoError(t, err)
	require.NoError(t, store.Put(e))

	var out bytes.Buffer
	require.NoError(t, printStatus(&out, store, slog.New(slog.DiscardHandler)))

	s := out.String()
	assert.Contains(t, s, "Folder (1)")
	assert.Contains(t, s, "JournalEntry (1)")
	assert.Contains(t, s, "JournalEntryPage (1)")
	assert.Contains(t, s, "Bestiary")
}

func TestPrintStatus_EmptyStore(t *testing.T) {
	store := metadata.New(filepath.Join(t.TempDir(), "missing.db"))

	var out bytes.Buffer
	require.NoError(t, printStatus(&out, store, slog.New(slog.DiscardHandler)))
	assert.Contains(t, out.String(), "Folder (0)")
}
