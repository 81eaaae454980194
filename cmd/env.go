package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/dealflow/internal/assistant"
	"github.com/sells-group/dealflow/internal/blob"
	"github.com/sells-group/dealflow/internal/company"
	"github.com/sells-group/dealflow/internal/enrich"
	"github.com/sells-group/dealflow/internal/model"
	"github.com/sells-group/dealflow/internal/orchestrator"
	"github.com/sells-group/dealflow/internal/store"
	"github.com/sells-group/dealflow/pkg/affinity"
	"github.com/sells-group/dealflow/pkg/anthropic"
	"github.com/sells-group/dealflow/pkg/arxiv"
	"github.com/sells-group/dealflow/pkg/clinicaltrials"
	"github.com/sells-group/dealflow/pkg/coresignal"
	"github.com/sells-group/dealflow/pkg/crunchbase"
	"github.com/sells-group/dealflow/pkg/embeddings"
	"github.com/sells-group/dealflow/pkg/sbir"
	"github.com/sells-group/dealflow/pkg/scholar"
	"github.com/sells-group/dealflow/pkg/uspto"
)

// appEnv bundles the shared backends a command needs: persistence and blob
// storage. Commands that drive the pipeline add clients on top via
// buildActivities.
type appEnv struct {
	Store store.Store
	Blob  blob.Store
}

func (e *appEnv) Close() {
	if err := e.Store.Close(); err != nil {
		zap.L().Warn("close store", zap.Error(err))
	}
}

// initEnv opens the configured store and blob backends.
func initEnv(ctx context.Context) (*appEnv, error) {
	var st store.Store
	switch cfg.Store.Driver {
	case "postgres", "":
		ps, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
		if err != nil {
			return nil, eris.Wrap(err, "open postgres store")
		}
		st = ps
	case "sqlite":
		ss, err := store.NewSQLite(cfg.Store.DatabaseURL)
		if err != nil {
			return nil, eris.Wrap(err, "open sqlite store")
		}
		st = ss
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}

	bl, err := blob.New(ctx, cfg.Blob)
	if err != nil {
		st.Close()
		return nil, eris.Wrap(err, "open blob store")
	}

	return &appEnv{Store: st, Blob: bl}, nil
}

// buildActivities wires every external client and enrichment writer into the
// activity set the worker registers. Optional integrations stay nil when
// unconfigured and the activity skips.
func buildActivities(env *appEnv) (*orchestrator.Activities, error) {
	if cfg.Anthropic.Key == "" {
		return nil, eris.New("anthropic key is required (DEALFLOW_ANTHROPIC_KEY)")
	}

	var tax *model.Taxonomy
	if cfg.Taxonomy.Path != "" {
		t, err := model.LoadTaxonomy(cfg.Taxonomy.Path)
		if err != nil {
			return nil, eris.Wrap(err, "load taxonomy")
		}
		tax = t
	}
	llm := assistant.New(anthropic.NewClient(cfg.Anthropic.Key), tax)

	src := cfg.Sources

	cb := crunchbase.NewClient(src.Crunchbase.Key,
		crunchbase.WithBaseURL(src.Crunchbase.BaseURL),
		crunchbase.WithRateLimit(src.Crunchbase.RequestsPerSec),
	)
	grants := sbir.NewClient(sbir.WithBaseURL(src.SBIR.BaseURL))
	patents := uspto.NewClient(uspto.WithBaseURL(src.USPTO.BaseURL))
	trials := clinicaltrials.NewClient(clinicaltrials.WithBaseURL(src.ClinicalTrials.BaseURL))
	profiles := coresignal.NewClient(src.Coresignal.Key,
		coresignal.WithBaseURL(src.Coresignal.BaseURL),
		coresignal.WithRateLimit(src.Coresignal.RequestsPerSec),
	)
	papers := scholar.NewClient(src.Scholar.Key,
		scholar.WithBaseURL(src.Scholar.BaseURL),
		scholar.WithRateLimit(src.Scholar.RequestsPerSec),
	)
	preprints := arxiv.NewClient(arxiv.WithBaseURL(src.Arxiv.BaseURL))
	emb := embeddings.NewClient(src.Embeddings.Key,
		embeddings.WithBaseURL(src.Embeddings.BaseURL),
	)

	var crm affinity.Client
	if cfg.Affinity.Key != "" {
		crm = affinity.NewClient(cfg.Affinity.Key)
	}

	st := env.Store

	return &orchestrator.Activities{
		Store:     st,
		Blob:      env.Blob,
		ParserCfg: cfg.Parser,
		Assistant: llm,
		Resolver:  company.NewResolver(st),

		Refresher:  enrich.NewCompanyRefresher(enrich.NewFirmographic(cb), st),
		Grants:     enrich.NewGrantsPuller(enrich.NewGrants(grants), st),
		Patents:    enrich.NewPatentsPuller(enrich.NewPatents(patents), st),
		Clinical:   enrich.NewClinicalPuller(enrich.NewClinical(trials), st),
		Classifier: enrich.NewClassifier(llm, st),
		Profiler:   enrich.NewFounderProfiler(enrich.NewProfile(profiles), st),
		Papers:     enrich.NewPaperEnricher(enrich.NewCitations(papers, preprints), emb, st),

		Affinity:       crm,
		AffinityListID: cfg.Affinity.ListID,

		HTTP: &http.Client{Timeout: 60 * time.Second},
	}, nil
}
