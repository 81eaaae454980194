package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/dealflow/internal/blob"
	"github.com/sells-group/dealflow/internal/model"
	"github.com/sells-group/dealflow/internal/orchestrator"
	"github.com/sells-group/dealflow/internal/store"
)

var servePort int

// serveStore is the slice of the store the HTTP surface needs.
type serveStore interface {
	CreateDeal(ctx context.Context, d *model.Deal) error
	CreateFile(ctx context.Context, f *model.File) error
	GetDeal(ctx context.Context, id uuid.UUID) (*model.Deal, error)
	ListDealFiles(ctx context.Context, dealID uuid.UUID) ([]model.File, error)
}

// deckStarter kicks off ingestion for a newly stored deck.
type deckStarter interface {
	StartDeckIngest(ctx context.Context, dealID, deckID uuid.UUID) (string, error)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the deck intake and deal status HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		tc, err := orchestrator.NewTemporalClient(cfg.Temporal)
		if err != nil {
			return eris.Wrap(err, "temporal dial")
		}
		defer tc.Close()

		starter := orchestrator.NewStarter(tc, cfg.Temporal)
		router := newRouter(env.Store, env.Blob, starter, cfg.Server.AllowedOrigins)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: router,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func newRouter(st serveStore, bl blob.Store, starter deckStarter, origins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if len(origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
		}))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/decks", func(w http.ResponseWriter, req *http.Request) {
		handleDeckIntake(w, req, st, bl, starter)
	})

	r.Get("/deals/{id}/status", func(w http.ResponseWriter, req *http.Request) {
		handleDealStatus(w, req, st)
	})

	return r
}

// handleDeckIntake stores the uploaded deck, creates the PENDING deal and
// file records, and starts the ingestion workflow.
func handleDeckIntake(w http.ResponseWriter, req *http.Request, st serveStore, bl blob.Store, starter deckStarter) {
	ctx := req.Context()

	if err := req.ParseMultipartForm(64 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "multipart form required")
		return
	}
	part, header, err := req.FormFile("deck")
	if err != nil {
		writeError(w, http.StatusBadRequest, "deck file is required")
		return
	}
	defer part.Close()

	name := req.FormValue("name")
	if name == "" {
		name = header.Filename
	}

	deal := model.Deal{
		Name:             name,
		Draft:            true,
		Status:           model.DealNew,
		ProcessingStatus: model.StatusPending,
	}
	if err := st.CreateDeal(ctx, &deal); err != nil {
		zap.L().Error("intake: create deal", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "create deal")
		return
	}

	file := model.File{
		ID:               uuid.New(),
		DealID:           deal.ID,
		Kind:             model.KindDeck,
		Name:             filepath.Base(header.Filename),
		MimeType:         header.Header.Get("Content-Type"),
		ProcessingStatus: model.StatusPending,
	}
	file.BlobPath = blob.Path("file", file.ID, file.Name)

	if err := bl.Put(ctx, file.BlobPath, part); err != nil {
		zap.L().Error("intake: store blob", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "store deck")
		return
	}
	if err := st.CreateFile(ctx, &file); err != nil {
		zap.L().Error("intake: create file", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "create file")
		return
	}

	runID, err := starter.StartDeckIngest(ctx, deal.ID, file.ID)
	if err != nil {
		zap.L().Error("intake: start workflow", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "start ingestion")
		return
	}

	zap.L().Info("deck accepted",
		zap.String("deal_id", deal.ID.String()),
		zap.String("deck_id", file.ID.String()),
		zap.String("run_id", runID),
	)
	writeJSON(w, http.StatusAccepted, map[string]string{
		"deal_id": deal.ID.String(),
		"deck_id": file.ID.String(),
		"run_id":  runID,
	})
}

// handleDealStatus reports the deal's processing status and the derived
// readiness flag.
func handleDealStatus(w http.ResponseWriter, req *http.Request, st serveStore) {
	id, err := uuid.Parse(chi.URLParam(req, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid deal id")
		return
	}

	deal, err := st.GetDeal(req.Context(), id)
	if err != nil {
		if eris.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "deal not found")
			return
		}
		zap.L().Error("status: get deal", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "get deal")
		return
	}
	files, err := st.ListDealFiles(req.Context(), id)
	if err != nil {
		zap.L().Error("status: list files", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list files")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"deal_id":           deal.ID.String(),
		"status":            deal.Status,
		"processing_status": deal.ProcessingStatus,
		"ready":             model.DealReady(deal, files),
		"files":             len(files),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
