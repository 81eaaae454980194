package enrich

import (
	"context"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/dealflow/internal/model"
	"github.com/sells-group/dealflow/pkg/arxiv"
	"github.com/sells-group/dealflow/pkg/embeddings"
	"github.com/sells-group/dealflow/pkg/scholar"
)

// Citations wraps the academic-paper sources: the citation graph first, the
// preprint archive as fallback. Papers are addressed by title, which serves
// as both search key and fetch identifier.
type Citations struct {
	scholar scholar.Client
	arxiv   arxiv.Client
}

// NewCitations creates the citations connector.
func NewCitations(s scholar.Client, a arxiv.Client) *Citations {
	return &Citations{scholar: s, arxiv: a}
}

func (c *Citations) Name() string { return "scholar+arxiv" }

func (c *Citations) Search(ctx context.Context, criteria Criteria) (*Match, error) {
	if criteria.PaperTitle == "" {
		return nil, nil
	}
	attrs, err := c.Fetch(ctx, criteria.PaperTitle)
	if err != nil || attrs == nil {
		return nil, err
	}
	title, _ := attrs["title"].(string)
	id, _ := attrs["source_id"].(string)
	return &Match{ID: id, Name: title}, nil
}

// Fetch matches a paper by title. Citation-graph hits win; otherwise the
// preprint archive is tried. (nil, nil) when neither source matches.
func (c *Citations) Fetch(ctx context.Context, title string) (map[string]any, error) {
	paper, err := c.scholar.MatchPaper(ctx, title)
	if err != nil {
		return nil, eris.Wrap(err, "enrich: citations fetch")
	}
	if paper != nil {
		return map[string]any{
			"source_id":      paper.PaperID,
			"title":          paper.Title,
			"abstract":       paper.Abstract,
			"authors":        paper.AuthorNames(),
			"published_year": paper.Year,
			"citation_count": paper.CitationCount,
			"doi":            paper.ExternalIDs.DOI,
		}, nil
	}

	entry, err := c.arxiv.FindByTitle(ctx, title)
	if err != nil {
		return nil, eris.Wrap(err, "enrich: citations fetch")
	}
	if entry == nil {
		return nil, nil
	}
	attrs := map[string]any{
		"source_id": entry.ID,
		"title":     entry.Title,
		"abstract":  entry.Summary,
		"authors":   entry.Authors,
		"pdf_url":   entry.PDFURL,
	}
	if y := yearOf(entry.Published); y != nil {
		attrs["published_year"] = y
	}
	return attrs, nil
}

type paperStore interface {
	GetFile(ctx context.Context, id uuid.UUID) (*model.File, error)
	SetPaperMeta(ctx context.Context, id uuid.UUID, meta *model.PaperMeta) error
	SetPaperEmbedding(ctx context.Context, id uuid.UUID, embedding []float32) error
}

// PaperEnricher lands citation metadata and embeddings on paper files.
type PaperEnricher struct {
	conn  Connector
	emb   embeddings.Client
	store paperStore
}

// NewPaperEnricher creates the writer.
func NewPaperEnricher(conn Connector, emb embeddings.Client, store paperStore) *PaperEnricher {
	return &PaperEnricher{conn: conn, emb: emb, store: store}
}

// Enrich matches the paper against the citation sources and stores its
// metadata. A no-match leaves the file untouched.
func (e *PaperEnricher) Enrich(ctx context.Context, fileID uuid.UUID) error {
	file, err := e.store.GetFile(ctx, fileID)
	if err != nil {
		return eris.Wrapf(err, "enrich: paper %s", fileID)
	}
	if file.Kind != model.KindPaper {
		return eris.Errorf("enrich: file %s is a %s, not a paper", fileID, file.Kind)
	}
	log := zap.L().With(zap.String("file_id", fileID.String()))

	title := file.Name
	if file.Paper != nil && file.Paper.Title != "" {
		title = file.Paper.Title
	}
	if title == "" {
		log.Info("paper has no title to match")
		return nil
	}

	attrs, err := e.conn.Fetch(ctx, title)
	if err != nil {
		return eris.Wrapf(err, "enrich: paper %s", fileID)
	}
	if attrs == nil {
		log.Info("no citation match", zap.String("title", title))
		return nil
	}

	meta := &model.PaperMeta{}
	if file.Paper != nil {
		*meta = *file.Paper
	}
	if v, ok := attrs["title"].(string); ok && v != "" {
		meta.Title = v
	}
	if v, ok := attrs["abstract"].(string); ok && v != "" {
		meta.Abstract = v
	}
	if v, ok := attrs["authors"].([]string); ok && len(v) > 0 {
		meta.Authors = v
	}
	if v, ok := attrs["published_year"].(*int); ok && v != nil {
		meta.PublishedYear = v
	}
	if v, ok := attrs["citation_count"].(*int); ok && v != nil {
		meta.CitationCount = v
	}
	if v, ok := attrs["doi"].(string); ok && v != "" {
		meta.DOI = v
	}

	if err := e.store.SetPaperMeta(ctx, fileID, meta); err != nil {
		return eris.Wrapf(err, "enrich: paper %s", fileID)
	}
	log.Info("paper metadata stored", zap.String("title", meta.Title))
	return nil
}

// UpdateEmbedding embeds the paper's abstract (falling back to its cleaned
// text) and stores the vector. Papers with no text are skipped.
func (e *PaperEnricher) UpdateEmbedding(ctx context.Context, fileID uuid.UUID) error {
	file, err := e.store.GetFile(ctx, fileID)
	if err != nil {
		return eris.Wrapf(err, "enrich: embed paper %s", fileID)
	}

	var text string
	if file.Paper != nil {
		text = file.Paper.Abstract
	}
	if text == "" {
		text = file.CleanText
	}
	if text == "" {
		zap.L().Info("paper has no text to embed", zap.String("file_id", fileID.String()))
		return nil
	}

	vectors, err := e.emb.Embed(ctx, []string{text})
	if err != nil {
		return eris.Wrapf(err, "enrich: embed paper %s", fileID)
	}
	if len(vectors) == 0 {
		return eris.Errorf("enrich: embed paper %s: empty result", fileID)
	}

	if err := e.store.SetPaperEmbedding(ctx, fileID, vectors[0]); err != nil {
		return eris.Wrapf(err, "enrich: embed paper %s", fileID)
	}
	return nil
}
