package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/dealflow/internal/assistant"
	"github.com/sells-group/dealflow/internal/blob"
	"github.com/sells-group/dealflow/internal/company"
	"github.com/sells-group/dealflow/internal/config"
	"github.com/sells-group/dealflow/internal/enrich"
	"github.com/sells-group/dealflow/internal/merge"
	"github.com/sells-group/dealflow/internal/model"
	"github.com/sells-group/dealflow/internal/parser"
	"github.com/sells-group/dealflow/internal/resilience"
	"github.com/sells-group/dealflow/internal/store"
	"github.com/sells-group/dealflow/pkg/affinity"
)

// errTypeParse marks non-retryable application errors so retry policies can
// match on type.
const errTypeParse = "ParseError"

// Activities holds the side-effecting dependencies the workflows drive.
// Every activity is keyed by entity primary keys and re-reads persisted
// state, so a retried or resumed step always observes the latest writes.
type Activities struct {
	Store     store.Store
	Blob      blob.Store
	ParserCfg config.ParserConfig
	Assistant *assistant.Assistant
	Resolver  *company.Resolver

	Refresher  *enrich.CompanyRefresher
	Grants     *enrich.GrantsPuller
	Patents    *enrich.PatentsPuller
	Clinical   *enrich.ClinicalPuller
	Classifier *enrich.Classifier
	Profiler   *enrich.FounderProfiler
	Papers     *enrich.PaperEnricher

	// CRM push is optional; a nil client disables it.
	Affinity       affinity.Client
	AffinityListID int64

	// HTTP downloads source files for papers.
	HTTP *http.Client

	// NewParser builds the deck parser for a blob. Left nil it uses the
	// configured backend; tests substitute a scripted implementation.
	NewParser func(cfg config.ParserConfig, st blob.Store, blobPath string) (parser.Parser, error)
}

// newParser builds the parser for a stored blob, honoring the test seam.
func (a *Activities) newParser(blobPath string) (parser.Parser, error) {
	if a.NewParser != nil {
		return a.NewParser(a.ParserCfg, a.Blob, blobPath)
	}
	return parser.New(a.ParserCfg, a.Blob, blobPath)
}

// failed converts an error into what the retry policy should see: parse
// failures become non-retryable application errors, everything else retries.
func failed(err error) error {
	if err == nil {
		return nil
	}
	if resilience.IsParse(err) || errors.Is(err, parser.ErrParse) {
		return temporal.NewNonRetryableApplicationError(err.Error(), errTypeParse, err)
	}
	return err
}

// ParseDeck extracts a deck's pages and text, replacing any previous set.
func (a *Activities) ParseDeck(ctx context.Context, deckID uuid.UUID) error {
	file, err := a.Store.GetFile(ctx, deckID)
	if err != nil {
		return failed(err)
	}
	if err := a.Store.SetFileProcessingStatus(ctx, deckID, model.StatusStarted); err != nil {
		return failed(err)
	}

	p, err := a.newParser(file.BlobPath)
	if err != nil {
		return failed(err)
	}

	pages, err := p.Pages(ctx)
	if err != nil {
		_ = a.Store.SetFileProcessingStatus(ctx, deckID, model.StatusFailure)
		return failed(err)
	}

	deckPages := make([]model.DeckPage, 0, len(pages))
	for _, pg := range pages {
		deckPages = append(deckPages, model.DeckPage{
			ID:     uuid.New(),
			FileID: deckID,
			Number: pg.Number,
			Text:   pg.Text,
		})
	}
	if err := a.Store.ReplaceDeckPages(ctx, deckID, deckPages); err != nil {
		return failed(err)
	}

	raw := joinPageText(pages)
	if err := a.Store.SetFileText(ctx, deckID, raw, cleanText(raw)); err != nil {
		return failed(err)
	}
	if err := a.Store.SetFileProcessingStatus(ctx, deckID, model.StatusSuccess); err != nil {
		return failed(err)
	}

	zap.L().Info("deck parsed",
		zap.String("file_id", deckID.String()),
		zap.Int("pages", len(deckPages)))
	return nil
}

// ExtractBasicInfo identifies the company behind the deck, links the deal to
// it (creating one when nothing matches), and seeds founder records.
func (a *Activities) ExtractBasicInfo(ctx context.Context, dealID, deckID uuid.UUID) error {
	a.noteDealRetry(ctx, dealID)

	text, err := a.deckText(ctx, deckID)
	if err != nil {
		return failed(err)
	}

	info, err := a.Assistant.ExtractBasicInfo(ctx, text)
	if err != nil {
		return failed(err)
	}

	deal, err := a.Store.GetDeal(ctx, dealID)
	if err != nil {
		return failed(err)
	}
	changed, err := merge.Apply(deal, map[string]any{"summary": info.Summary}, false)
	if err != nil {
		return failed(err)
	}
	if len(changed) > 0 {
		fields, err := merge.Select(deal, changed)
		if err != nil {
			return failed(err)
		}
		if err := a.Store.UpdateDealFields(ctx, dealID, fields); err != nil {
			return failed(err)
		}
	}

	seed := model.Company{
		Name:        info.CompanyName,
		Website:     info.Website,
		City:        info.Location,
		Description: info.Summary,
	}
	comp, err := a.Resolver.ResolveAndLink(ctx, dealID, seed)
	if err != nil {
		return failed(err)
	}
	if comp == nil {
		// Ambiguous match: the deal stays unlinked and founders are not
		// attached to anything.
		return nil
	}

	return failed(a.seedFounders(ctx, comp.ID, info.Founders))
}

// seedFounders creates founder and founding rows for deck-named founders not
// already attached to the company. Matching is by name, which is what the
// deck gives us.
func (a *Activities) seedFounders(ctx context.Context, companyID uuid.UUID, refs []assistant.FounderRef) error {
	existing, err := a.Store.ListCompanyFounders(ctx, companyID)
	if err != nil {
		return err
	}
	known := make(map[string]bool, len(existing))
	for _, f := range existing {
		known[strings.ToLower(f.Name)] = true
	}

	for _, ref := range refs {
		if ref.Name == "" || known[strings.ToLower(ref.Name)] {
			continue
		}
		founder := &model.Founder{ID: uuid.New(), Name: ref.Name}
		if err := a.Store.CreateFounder(ctx, founder); err != nil {
			return err
		}
		founding := &model.Founding{
			ID:        uuid.New(),
			FounderID: founder.ID,
			CompanyID: companyID,
			Title:     ref.Title,
		}
		if err := a.Store.UpsertFounding(ctx, founding); err != nil {
			return err
		}
		known[strings.ToLower(ref.Name)] = true
	}
	return nil
}

// RefreshDealCompany refreshes the firmographic record of the deal's company.
// An unlinked deal is a skip, not an error.
func (a *Activities) RefreshDealCompany(ctx context.Context, dealID uuid.UUID) error {
	a.noteDealRetry(ctx, dealID)

	deal, err := a.Store.GetDeal(ctx, dealID)
	if err != nil {
		return failed(err)
	}
	if deal.CompanyID == nil {
		zap.L().Info("deal has no company to refresh", zap.String("deal_id", dealID.String()))
		return nil
	}
	return failed(a.Refresher.Refresh(ctx, *deal.CompanyID))
}

// ExtractDealAttributes captures the round terms and merges them onto the
// deal under the non-overwrite policy.
func (a *Activities) ExtractDealAttributes(ctx context.Context, dealID, deckID uuid.UUID) error {
	a.noteDealRetry(ctx, dealID)

	text, err := a.deckText(ctx, deckID)
	if err != nil {
		return failed(err)
	}

	attrs, err := a.Assistant.ExtractDealAttributes(ctx, text)
	if err != nil {
		return failed(err)
	}

	deal, err := a.Store.GetDeal(ctx, dealID)
	if err != nil {
		return failed(err)
	}

	candidates := map[string]any{
		"stage":        attrs.Stage,
		"funding_type": attrs.FundingType,
	}
	if attrs.RaiseAmountUSD != nil {
		candidates["raise_amount_usd"] = attrs.RaiseAmountUSD
	}
	changed, err := merge.Apply(deal, candidates, false)
	if err != nil {
		return failed(err)
	}
	if len(changed) > 0 {
		fields, err := merge.Select(deal, changed)
		if err != nil {
			return failed(err)
		}
		if err := a.Store.UpdateDealFields(ctx, dealID, fields); err != nil {
			return failed(err)
		}
	}

	if len(attrs.Industries) > 0 && len(deal.Industries) == 0 {
		if err := a.Store.SetDealTags(ctx, dealID, attrs.Industries, deal.DualUseSignals); err != nil {
			return failed(err)
		}
	}
	return nil
}

// ExtractDualUseSignals classifies defense-relevant signals onto the deal.
func (a *Activities) ExtractDualUseSignals(ctx context.Context, dealID, deckID uuid.UUID) error {
	a.noteDealRetry(ctx, dealID)

	text, err := a.deckText(ctx, deckID)
	if err != nil {
		return failed(err)
	}

	sig, err := a.Assistant.ClassifyDualUse(ctx, text)
	if err != nil {
		return failed(err)
	}

	deal, err := a.Store.GetDeal(ctx, dealID)
	if err != nil {
		return failed(err)
	}
	return failed(a.Store.SetDealTags(ctx, dealID, deal.Industries, sig.Signals))
}

// AssessDeal scores the deal from the deck plus whatever enrichment has
// landed on the company, and records a new assessment.
func (a *Activities) AssessDeal(ctx context.Context, dealID uuid.UUID) error {
	a.noteDealRetry(ctx, dealID)

	deal, err := a.Store.GetDeal(ctx, dealID)
	if err != nil {
		return failed(err)
	}

	text, err := a.dealDeckText(ctx, dealID)
	if err != nil {
		return failed(err)
	}
	if text == "" {
		text = deal.Summary
	}

	companyContext := ""
	if deal.CompanyID != nil {
		companyContext, err = a.companyContext(ctx, *deal.CompanyID)
		if err != nil {
			return failed(err)
		}
	}

	as, err := a.Assistant.AssessDeal(ctx, text, companyContext)
	if err != nil {
		return failed(err)
	}

	record := &model.Assessment{
		ID:                    uuid.New(),
		DealID:                dealID,
		AutoPros:              as.Pros,
		AutoCons:              as.Cons,
		AutoQualityPercentile: as.QualityPercentile,
		AutoScore:             as.Score,
		AutoConfidence:        as.Confidence,
		AutoRecommendation:    as.Recommendation,
	}
	return failed(a.Store.CreateAssessment(ctx, record))
}

// companyContext renders the enriched company state for the assessment
// prompt: firmographics plus child-record counts.
func (a *Activities) companyContext(ctx context.Context, companyID uuid.UUID) (string, error) {
	comp, err := a.Store.GetCompany(ctx, companyID)
	if err != nil {
		return "", err
	}

	var (
		grants  []model.Grant
		patents []model.PatentApplication
		studies []model.ClinicalStudy
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		grants, err = a.Store.ListGrants(gctx, companyID)
		return err
	})
	g.Go(func() (err error) {
		patents, err = a.Store.ListPatentApplications(gctx, companyID)
		return err
	})
	g.Go(func() (err error) {
		studies, err = a.Store.ListClinicalStudies(gctx, companyID)
		return err
	})
	if err := g.Wait(); err != nil {
		return "", err
	}

	summary := map[string]any{
		"name":               comp.Name,
		"description":        comp.Description,
		"founded_year":       comp.FoundedYear,
		"funding_total_usd":  comp.FundingTotalUSD,
		"last_funding_stage": comp.LastFundingStage,
		"employee_count_min": comp.EmployeeCountMin,
		"employee_count_max": comp.EmployeeCountMax,
		"industries":         comp.Industries,
		"technology_types":   comp.TechnologyTypes,
		"grant_count":        len(grants),
		"patent_count":       len(patents),
		"clinical_studies":   len(studies),
	}
	b, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return "", eris.Wrap(err, "orchestrator: render company context")
	}
	return string(b), nil
}

// MarkDealSuccess finishes the chain.
func (a *Activities) MarkDealSuccess(ctx context.Context, dealID uuid.UUID) error {
	return failed(a.Store.SetDealProcessingStatus(ctx, dealID, model.StatusSuccess))
}

// MarkDealStarted flips the deal to STARTED as the first step of a chain, so
// readiness checks see the run before its first real activity lands.
func (a *Activities) MarkDealStarted(ctx context.Context, dealID uuid.UUID) error {
	return failed(a.Store.SetDealProcessingStatus(ctx, dealID, model.StatusStarted))
}

// MarkDealFailure is the error sink: invoked once per failed chain, no
// rollback of earlier writes.
func (a *Activities) MarkDealFailure(ctx context.Context, dealID uuid.UUID) error {
	return a.Store.SetDealProcessingStatus(ctx, dealID, model.StatusFailure)
}

// MarkDealRevoked records chain cancellation. Like the failure sink it runs
// on a disconnected context and leaves earlier writes in place.
func (a *Activities) MarkDealRevoked(ctx context.Context, dealID uuid.UUID) error {
	return a.Store.SetDealProcessingStatus(ctx, dealID, model.StatusRevoked)
}

// noteDealRetry surfaces a retry in flight on the deal record. Best effort:
// a status write failure never blocks the attempt itself.
func (a *Activities) noteDealRetry(ctx context.Context, dealID uuid.UUID) {
	if !activity.IsActivity(ctx) || activity.GetInfo(ctx).Attempt <= 1 {
		return
	}
	if err := a.Store.SetDealProcessingStatus(ctx, dealID, model.StatusRetry); err != nil {
		zap.L().Warn("retry status write failed",
			zap.String("deal_id", dealID.String()), zap.Error(err))
	}
}

// --- company enrichment fan-out branches ---

func (a *Activities) RefreshCompanyData(ctx context.Context, companyID uuid.UUID) error {
	return failed(a.Refresher.Refresh(ctx, companyID))
}

func (a *Activities) PullGrants(ctx context.Context, companyID uuid.UUID) error {
	return failed(a.Grants.Pull(ctx, companyID))
}

func (a *Activities) PullPatents(ctx context.Context, companyID uuid.UUID) error {
	return failed(a.Patents.Pull(ctx, companyID))
}

func (a *Activities) PullClinicalStudies(ctx context.Context, companyID uuid.UUID) error {
	return failed(a.Clinical.Pull(ctx, companyID))
}

func (a *Activities) ClassifyCompany(ctx context.Context, companyID uuid.UUID) error {
	return failed(a.Classifier.Classify(ctx, companyID))
}

// --- founder enrichment ---

// RefreshFounderProfile pulls the founder's professional history.
func (a *Activities) RefreshFounderProfile(ctx context.Context, founderID uuid.UUID) error {
	return failed(a.Profiler.Refresh(ctx, founderID))
}

// ExtractFounderAttributes runs the founder-attribute prompt over the
// profile data the previous step persisted, then updates the founding.
func (a *Activities) ExtractFounderAttributes(ctx context.Context, founderID, companyID uuid.UUID) error {
	founder, err := a.Store.GetFounder(ctx, founderID)
	if err != nil {
		return failed(err)
	}
	if founder.ExperienceJSON == "" && founder.EducationJSON == "" {
		zap.L().Info("founder has no profile data to analyze",
			zap.String("founder_id", founderID.String()))
		return nil
	}

	profile := fmt.Sprintf(`{"experience": %s, "education": %s}`,
		orJSONArray(founder.ExperienceJSON), orJSONArray(founder.EducationJSON))

	attrs, err := a.Assistant.ExtractFounderAttributes(ctx, founder.Name, profile)
	if err != nil {
		return failed(err)
	}

	if attrs.GraduationYear != nil && founder.GraduationYear == nil {
		if err := a.Store.UpdateFounderFields(ctx, founderID, map[string]any{
			"graduation_year": attrs.GraduationYear,
		}); err != nil {
			return failed(err)
		}
		founder.GraduationYear = attrs.GraduationYear
	}

	comp, err := a.Store.GetCompany(ctx, companyID)
	if err != nil {
		return failed(err)
	}
	founding := &model.Founding{
		ID:                 uuid.New(),
		FounderID:          founderID,
		CompanyID:          companyID,
		PriorFoundingCount: attrs.PriorFoundingCount,
		EstAgeAtFounding:   model.EstimateAgeAtFounding(founder.GraduationYear, comp.FoundedYear),
	}
	return failed(a.Store.UpsertFounding(ctx, founding))
}

// --- paper pipeline ---

// PaperState reports which paper steps still have work to do. The workflow
// uses it to skip steps whose precondition already holds.
type PaperState struct {
	HasBlob      bool
	HasText      bool
	HasSourceURL bool
	HasEmbedding bool
}

func (a *Activities) InspectPaper(ctx context.Context, fileID uuid.UUID) (PaperState, error) {
	file, err := a.Store.GetFile(ctx, fileID)
	if err != nil {
		return PaperState{}, failed(err)
	}
	st := PaperState{
		HasBlob:      file.BlobPath != "",
		HasText:      file.CleanText != "",
		HasSourceURL: file.SourceURL != "",
	}
	if file.Paper != nil {
		st.HasEmbedding = len(file.Paper.Embedding) > 0
	}
	return st, nil
}

// DownloadPaperSource fetches the paper's source URL into blob storage.
func (a *Activities) DownloadPaperSource(ctx context.Context, fileID uuid.UUID) error {
	file, err := a.Store.GetFile(ctx, fileID)
	if err != nil {
		return failed(err)
	}
	if file.SourceURL == "" {
		return failed(eris.Errorf("orchestrator: file %s has no source URL", fileID))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, file.SourceURL, nil)
	if err != nil {
		return failed(eris.Wrap(err, "orchestrator: download paper"))
	}
	httpc := a.HTTP
	if httpc == nil {
		httpc = http.DefaultClient
	}
	resp, err := httpc.Do(req)
	if err != nil {
		return failed(resilience.NewTransientError(eris.Wrap(err, "orchestrator: download paper"), 0))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return failed(eris.Errorf("orchestrator: download paper: status %d", resp.StatusCode))
	}

	name := file.Name
	if name == "" {
		name = "source.pdf"
	}
	path := blob.Path("file", fileID, name)
	if err := a.Blob.Put(ctx, path, resp.Body); err != nil {
		return failed(err)
	}
	return failed(a.Store.SetFileBlobPath(ctx, fileID, path))
}

// ExtractPaperText parses the paper blob into raw and cleaned text.
func (a *Activities) ExtractPaperText(ctx context.Context, fileID uuid.UUID) error {
	file, err := a.Store.GetFile(ctx, fileID)
	if err != nil {
		return failed(err)
	}
	p, err := a.newParser(file.BlobPath)
	if err != nil {
		return failed(err)
	}
	raw, err := p.Text(ctx)
	if err != nil {
		_ = a.Store.SetFileProcessingStatus(ctx, fileID, model.StatusFailure)
		return failed(err)
	}
	if err := a.Store.SetFileText(ctx, fileID, raw, cleanText(raw)); err != nil {
		return failed(err)
	}
	return failed(a.Store.SetFileProcessingStatus(ctx, fileID, model.StatusSuccess))
}

// MatchPaperCitations runs the citation connectors over the paper.
func (a *Activities) MatchPaperCitations(ctx context.Context, fileID uuid.UUID) error {
	return failed(a.Papers.Enrich(ctx, fileID))
}

// UpdatePaperEmbedding embeds the paper text.
func (a *Activities) UpdatePaperEmbedding(ctx context.Context, fileID uuid.UUID) error {
	return failed(a.Papers.UpdateEmbedding(ctx, fileID))
}

// PaperSections is the fixed terminal join of the paper pipeline: the
// derived state loaded back for the caller.
type PaperSections struct {
	Title         string
	Abstract      string
	PageCount     int
	EmbeddingDims int
}

func (a *Activities) LoadPaperSections(ctx context.Context, fileID uuid.UUID) (PaperSections, error) {
	file, err := a.Store.GetFile(ctx, fileID)
	if err != nil {
		return PaperSections{}, failed(err)
	}
	out := PaperSections{}
	if file.Paper != nil {
		out.Title = file.Paper.Title
		out.Abstract = file.Paper.Abstract
		out.EmbeddingDims = len(file.Paper.Embedding)
	}
	out.PageCount = strings.Count(file.RawText, "\f") + 1
	return out, nil
}

// --- CRM sync ---

// SyncAffinity pushes the assessed deal into the configured CRM list. A nil
// client makes this a skip.
func (a *Activities) SyncAffinity(ctx context.Context, dealID uuid.UUID) error {
	if a.Affinity == nil {
		return nil
	}
	deal, err := a.Store.GetDeal(ctx, dealID)
	if err != nil {
		return failed(err)
	}
	if deal.CompanyID == nil {
		return nil
	}
	comp, err := a.Store.GetCompany(ctx, *deal.CompanyID)
	if err != nil {
		return failed(err)
	}

	orgs, err := a.Affinity.SearchOrganizations(ctx, comp.Name)
	if err != nil {
		return failed(err)
	}
	var org *affinity.Organization
	for i := range orgs {
		if strings.EqualFold(orgs[i].Name, comp.Name) {
			org = &orgs[i]
			break
		}
	}
	if org == nil {
		org, err = a.Affinity.CreateOrganization(ctx, comp.Name, comp.Domain)
		if err != nil {
			return failed(err)
		}
	}

	if a.AffinityListID != 0 {
		if _, err := a.Affinity.CreateListEntry(ctx, a.AffinityListID, org.ID); err != nil {
			return failed(err)
		}
	}

	as, err := a.Store.LatestAssessment(ctx, dealID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return failed(err)
	}
	note := fmt.Sprintf("Automated assessment: %s (%s)\nPros: %s\nCons: %s",
		as.AutoRecommendation, as.AutoQualityPercentile,
		strings.Join(as.AutoPros, "; "), strings.Join(as.AutoCons, "; "))
	return failed(a.Affinity.CreateNote(ctx, org.ID, note))
}

// --- helpers ---

// deckText returns the deck's cleaned text, preferring the stored derivation.
func (a *Activities) deckText(ctx context.Context, deckID uuid.UUID) (string, error) {
	file, err := a.Store.GetFile(ctx, deckID)
	if err != nil {
		return "", err
	}
	if file.CleanText != "" {
		return file.CleanText, nil
	}
	pages, err := a.Store.ListDeckPages(ctx, deckID)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for i, p := range pages {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(p.Text)
	}
	if sb.Len() == 0 {
		return "", eris.Errorf("orchestrator: deck %s has no extracted text", deckID)
	}
	return sb.String(), nil
}

// dealDeckText returns the text of the deal's most recent deck, or "".
func (a *Activities) dealDeckText(ctx context.Context, dealID uuid.UUID) (string, error) {
	files, err := a.Store.ListDealFiles(ctx, dealID)
	if err != nil {
		return "", err
	}
	for i := len(files) - 1; i >= 0; i-- {
		if files[i].Kind == model.KindDeck && files[i].CleanText != "" {
			return files[i].CleanText, nil
		}
	}
	return "", nil
}

func joinPageText(pages []parser.Page) string {
	parts := make([]string, 0, len(pages))
	for _, p := range pages {
		parts = append(parts, p.Text)
	}
	return strings.Join(parts, "\f")
}

// cleanText normalizes extracted text for prompting: form feeds become
// newlines and runs of blank lines collapse.
func cleanText(raw string) string {
	s := strings.ReplaceAll(raw, "\f", "\n\n")
	for strings.Contains(s, "\n\n\n") {
		s = strings.ReplaceAll(s, "\n\n\n", "\n\n")
	}
	return strings.TrimSpace(s)
}

func orJSONArray(s string) string {
	if strings.TrimSpace(s) == "" {
		return "[]"
	}
	return s
}
