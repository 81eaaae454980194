package model

import (
	"time"

	"github.com/google/uuid"
)

// FileKind discriminates the file union. A deck owns ordered pages; a paper
// carries citation metadata and an embedding; a generic file has neither.
type FileKind string

const (
	KindDeck  FileKind = "deck"
	KindPaper FileKind = "paper"
	KindFile  FileKind = "file"
)

// File is an attachment on a deal: an immutable blob plus mutable derived
// text and ingestion status. Kind-specific payload lives in Paper (for
// papers) and in DeckPage rows (for decks).
type File struct {
	ID     uuid.UUID
	DealID uuid.UUID
	Kind   FileKind

	Name      string
	BlobPath  string
	SourceURL string
	MimeType  string

	ProcessingStatus ProcessingStatus

	RawText   string
	CleanText string

	Paper *PaperMeta

	CreatedAt time.Time
	UpdatedAt time.Time
}

// PaperMeta is the paper-kind payload: authorship, citations, embedding.
type PaperMeta struct {
	Title         string
	Abstract      string
	Authors       []string
	PublishedYear *int
	CitationCount *int
	DOI           string
	Embedding     []float32
}

// DeckPage is one ordered page of a deck: extracted text plus an optional
// screenshot stored in blob storage.
type DeckPage struct {
	ID             uuid.UUID
	FileID         uuid.UUID
	Number         int
	Text           string
	ScreenshotPath string
	CreatedAt      time.Time
}
