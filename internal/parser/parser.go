// Package parser turns an uploaded PDF into page texts, text blocks and page
// screenshots. Two interchangeable backends exist: a local pdftotext layout
// extractor and a batch cloud OCR backend. The orchestrator never knows
// which one it holds.
package parser

import (
	"context"
	"errors"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/dealflow/internal/blob"
	"github.com/sells-group/dealflow/internal/config"
)

// ErrParse is the single error kind for every parse failure: unreachable
// source, unsupported mime type, OCR backend failure. Partial output is
// never salvaged.
var ErrParse = errors.New("parser: parse failed")

// Page is one page of extracted text.
type Page struct {
	Number int
	Text   string
}

// Block is one text block within a page, ordered by index.
type Block struct {
	Page  int
	Index int
	Text  string
}

// Parser extracts text lazily from a single document. Each call re-invokes
// the underlying parse, so iteration is restartable.
type Parser interface {
	Pages(ctx context.Context) ([]Page, error)
	Blocks(ctx context.Context) ([]Block, error)
	Text(ctx context.Context) (string, error)
	Screenshots(ctx context.Context, dir string) ([]string, error)
}

// New creates a Parser for the blob at blobPath based on config.
func New(cfg config.ParserConfig, store blob.Store, blobPath string) (Parser, error) {
	switch cfg.Backend {
	case "local", "":
		return NewLocal(cfg, store, blobPath), nil
	case "cloud":
		if cfg.OCRKey == "" {
			return nil, eris.New("parser: cloud backend requires ocr_api_key")
		}
		return NewCloudOCR(cfg, store, blobPath), nil
	default:
		return nil, eris.Errorf("parser: unknown backend %q", cfg.Backend)
	}
}

// blocksFromPages splits each page's text into blank-line-separated blocks.
func blocksFromPages(pages []Page) []Block {
	var blocks []Block
	for _, p := range pages {
		idx := 0
		for _, chunk := range strings.Split(p.Text, "\n\n") {
			chunk = strings.TrimSpace(chunk)
			if chunk == "" {
				continue
			}
			blocks = append(blocks, Block{Page: p.Number, Index: idx, Text: chunk})
			idx++
		}
	}
	return blocks
}

// joinPages concatenates page texts into a single string.
func joinPages(pages []Page) string {
	var sb strings.Builder
	for i, p := range pages {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(p.Text)
	}
	return sb.String()
}
