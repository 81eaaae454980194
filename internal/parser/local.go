package parser

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/dealflow/internal/blob"
	"github.com/sells-group/dealflow/internal/config"
)

// runner executes an external tool. Injectable for tests.
type runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, eris.Wrapf(err, "%s: %s", name, stderr.String())
	}
	return stdout.Bytes(), nil
}

// Local extracts text with the pdftotext CLI and renders screenshots with
// pdftoppm. Synchronous; suitable for decks with a real text layer.
type Local struct {
	pdftotext string
	pdftoppm  string
	store     blob.Store
	blobPath  string
	run       runner
}

// NewLocal creates a Local parser for the blob at blobPath.
func NewLocal(cfg config.ParserConfig, store blob.Store, blobPath string) *Local {
	pdftotext := cfg.PdfToTextPath
	if pdftotext == "" {
		pdftotext = "pdftotext"
	}
	pdftoppm := cfg.PdfToPpmPath
	if pdftoppm == "" {
		pdftoppm = "pdftoppm"
	}
	return &Local{
		pdftotext: pdftotext,
		pdftoppm:  pdftoppm,
		store:     store,
		blobPath:  blobPath,
		run:       execRunner,
	}
}

// Pages runs pdftotext -layout and splits pages on form feeds.
func (l *Local) Pages(ctx context.Context) ([]Page, error) {
	local, cleanup, err := l.store.Materialize(ctx, l.blobPath)
	if err != nil {
		return nil, eris.Wrapf(ErrParse, "materialize %s: %v", l.blobPath, err)
	}
	defer cleanup()

	out, err := l.run(ctx, l.pdftotext, "-layout", local, "-")
	if err != nil {
		return nil, eris.Wrapf(ErrParse, "pdftotext %s: %v", l.blobPath, err)
	}

	return splitFormFeeds(string(out)), nil
}

func (l *Local) Blocks(ctx context.Context) ([]Block, error) {
	pages, err := l.Pages(ctx)
	if err != nil {
		return nil, err
	}
	return blocksFromPages(pages), nil
}

func (l *Local) Text(ctx context.Context) (string, error) {
	pages, err := l.Pages(ctx)
	if err != nil {
		return "", err
	}
	return joinPages(pages), nil
}

// Screenshots renders one PNG per page into dir via pdftoppm and returns the
// generated paths in page order.
func (l *Local) Screenshots(ctx context.Context, dir string) ([]string, error) {
	local, cleanup, err := l.store.Materialize(ctx, l.blobPath)
	if err != nil {
		return nil, eris.Wrapf(ErrParse, "materialize %s: %v", l.blobPath, err)
	}
	defer cleanup()

	prefix := filepath.Join(dir, "page")
	if _, err := l.run(ctx, l.pdftoppm, "-png", "-r", "100", local, prefix); err != nil {
		return nil, eris.Wrapf(ErrParse, "pdftoppm %s: %v", l.blobPath, err)
	}

	matches, err := filepath.Glob(prefix + "-*.png")
	if err != nil || len(matches) == 0 {
		entries, globErr := os.ReadDir(dir)
		if globErr != nil {
			return nil, eris.Wrapf(ErrParse, "screenshots %s: no output", l.blobPath)
		}
		for _, e := range entries {
			if strings.HasPrefix(e.Name(), "page") && strings.HasSuffix(e.Name(), ".png") {
				matches = append(matches, filepath.Join(dir, e.Name()))
			}
		}
	}
	sort.Strings(matches)
	return matches, nil
}

// splitFormFeeds turns pdftotext output into numbered pages. pdftotext
// terminates every page with \f, including the last.
func splitFormFeeds(text string) []Page {
	parts := strings.Split(text, "\f")
	if len(parts) > 0 && strings.TrimSpace(parts[len(parts)-1]) == "" {
		parts = parts[:len(parts)-1]
	}
	pages := make([]Page, 0, len(parts))
	for i, part := range parts {
		pages = append(pages, Page{Number: i + 1, Text: strings.TrimRight(part, "\n")})
	}
	return pages
}
