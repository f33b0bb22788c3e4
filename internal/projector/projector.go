// Package projector maps journal entities onto a directory tree and back.
//
// Layout: every folder and entry is a directory named after it, and every
// page is a file <page name>.<extension> inside its entry's directory.
// Identifiers and remote attributes live only in the metadata store.
package projector

import (
	"crypto/sha256"
	"encoding/hex"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/alexjbarnes/journal-sync/internal/convert"
	"github.com/alexjbarnes/journal-sync/internal/metadata"
	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/text/unicode/norm"
)

const (
	// dirPerm is the permission mode for folder and entry directories.
	dirPerm = fs.FileMode(0o755)

	// filePerm is the permission mode for page files.
	filePerm = fs.FileMode(0o644)

	// tempFilePrefix marks in-flight atomic writes. The read path skips
	// them because they start with a dot.
	tempFilePrefix = ".journal-sync-tmp-"
)

// Projector writes remote entities to the local tree and reads the local
// tree back into entities.
type Projector struct {
	root   string
	store  *metadata.Store
	conv   convert.Converter
	format convert.Format
	logger *slog.Logger

	ignore        []string
	strictParents bool
}

// Option configures a Projector.
type Option func(*Projector)

// WithIgnorePatterns excludes root-relative doublestar patterns from reads.
func WithIgnorePatterns(patterns []string) Option {
	return func(p *Projector) { p.ignore = patterns }
}

// WithStrictParents makes a read fail an entity whose parent folder has
// no metadata instead of treating it as root-level.
func WithStrictParents(strict bool) Option {
	return func(p *Projector) { p.strictParents = strict }
}

// New returns a Projector rooted at root. root must be absolute.
func New(root string, store *metadata.Store, conv convert.Converter, format convert.Format, logger *slog.Logger, opts ...Option) *Projector {
	p := &Projector{
		root:   root,
		store:  store,
		conv:   conv,
		format: format,
		logger: logger,
	}
	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Root returns the root directory.
func (p *Projector) Root() string {
	return p.root
}

// Format returns the local page format.
func (p *Projector) Format() convert.Format {
	return p.format
}

// Rel returns path relative to the root in slash form, or false when
// path lies outside the root.
func (p *Projector) Rel(path string) (string, bool) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(p.root, path)
	}

	rel, err := filepath.Rel(p.root, filepath.Clean(path))
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}

	return normalizePath(filepath.ToSlash(rel)), true
}

// PageFile reports whether a root-relative slash path names a page file
// and returns the relative directory of its entry.
func (p *Projector) PageFile(rel string) (entryDir string, ok bool) {
	dir, file := splitRel(rel)
	if dir == "" || strings.HasPrefix(file, ".") || p.ignored(rel) {
		return "", false
	}

	if _, ok := p.format.PageName(file); !ok {
		return "", false
	}

	return dir, true
}

func (p *Projector) ignored(rel string) bool {
	for _, pattern := range p.ignore {
		matched, err := doublestar.Match(pattern, rel)
		if err != nil {
			continue
		}

		if matched {
			return true
		}
	}

	return false
}

// isMetadataFile reports whether rel is the metadata database, which may
// live inside the root.
func (p *Projector) isMetadataFile(rel string) bool {
	dbRel, ok := p.Rel(p.store.Path())
	return ok && dbRel == rel
}

// ContentHash returns the hex SHA-256 of page file content.
func ContentHash(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// normalizePath applies Unicode NFC so names typed on systems that
// store NFD (macOS) match names downloaded from the remote.
func normalizePath(p string) string {
	return norm.NFC.String(p)
}

// splitRel splits a slash path into directory and last element,
// returning "" for the directory of a top-level name.
func splitRel(rel string) (dir, file string) {
	i := strings.LastIndex(rel, "/")
	if i < 0 {
		return "", rel
	}

	return rel[:i], rel[i+1:]
}
