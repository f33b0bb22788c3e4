// Package convert adapts an external text converter (pandoc) to the
// formats pages are stored in locally, and protects entity references
// so they survive conversion unchanged.
package convert

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"

	syncerr "github.com/alexjbarnes/journal-sync/internal/errors"
)

// HTML is the format name of remote page content.
const HTML = "html"

// Converter turns text from one markup format into another. Formats are
// converter-level names such as "html" or "org".
type Converter interface {
	Convert(ctx context.Context, text, from, to string) (string, error)
}

// maxStderrBytes bounds how much converter stderr is kept in an error.
const maxStderrBytes = 512

// Pandoc runs the pandoc binary for each conversion. The binary is
// resolved on first use.
type Pandoc struct {
	bin    string
	logger *slog.Logger

	once    sync.Once
	path    string
	pathErr error
}

// NewPandoc returns a Converter backed by the pandoc binary at bin, which
// may be a bare name looked up in PATH.
func NewPandoc(bin string, logger *slog.Logger) *Pandoc {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Pandoc{bin: bin, logger: logger}
}

func (p *Pandoc) resolve() (string, error) {
	p.once.Do(func() {
		p.path, p.pathErr = exec.LookPath(p.bin)
	})

	return p.path, p.pathErr
}

// Convert runs pandoc with text on stdin. Identical formats return the
// input unchanged without starting a process.
func (p *Pandoc) Convert(ctx context.Context, text, from, to string) (string, error) {
	if from == to {
		return text, nil
	}

	path, err := p.resolve()
	if err != nil {
		return "", fmt.Errorf("locating %s: %v: %w", p.bin, err, syncerr.ErrFormatConversion)
	}

	cmd := exec.CommandContext(ctx, path, "--from", from, "--to", to) //nolint:gosec // G204: path from exec.LookPath, args not shell-interpreted
	cmd.Stdin = strings.NewReader(text)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > maxStderrBytes {
			msg = msg[:maxStderrBytes]
		}

		p.logger.Debug("pandoc failed",
			slog.String("from", from),
			slog.String("to", to),
			slog.String("stderr", msg),
		)

		return "", fmt.Errorf("pandoc %s to %s: %v: %s: %w", from, to, err, msg, syncerr.ErrFormatConversion)
	}

	return stdout.String(), nil
}

// Passthrough is a Converter for trees stored as HTML. Any conversion
// between different formats fails.
type Passthrough struct{}

func (Passthrough) Convert(_ context.Context, text, from, to string) (string, error) {
	if from != to {
		return "", fmt.Errorf("passthrough cannot convert %s to %s: %w", from, to, syncerr.ErrFormatConversion)
	}

	return text, nil
}
