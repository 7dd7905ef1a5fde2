package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/legislation-cli/internal/model"
	"github.com/sells-group/legislation-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve document state over HTTP",
	Long:  "Starts a read-mostly JSON API over the session's state store: document records, run history and marking stages dirty.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if servePort != 0 {
			cfg.Server.Port = servePort
		}
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:           newRouter(st),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server",
			zap.Int("port", cfg.Server.Port),
			zap.String("session", currentSession().Key()),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// newRouter builds the API routes over st.
func newRouter(st store.Store) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/documents", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, req *http.Request) {
			docs, err := st.List(req.Context())
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			if req.URL.Query().Get("pending") == "true" {
				docs = pendingDocuments(docs)
			}
			if docs == nil {
				docs = []model.Document{}
			}
			writeJSON(w, http.StatusOK, docs)
		})

		r.Get("/{id}", func(w http.ResponseWriter, req *http.Request) {
			docs, err := st.List(req.Context())
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			doc, ok := findDocument(docs, chi.URLParam(req, "id"))
			if !ok {
				writeError(w, http.StatusNotFound, eris.New("document not found"))
				return
			}
			writeJSON(w, http.StatusOK, doc)
		})

		r.Post("/{id}/dirty", func(w http.ResponseWriter, req *http.Request) {
			stage, err := model.ParseStage(req.URL.Query().Get("stage"))
			if err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			id := chi.URLParam(req, "id")
			docs, err := st.List(req.Context())
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			if _, ok := findDocument(docs, id); !ok {
				writeError(w, http.StatusNotFound, eris.New("document not found"))
				return
			}
			doc, err := markDocument(req.Context(), st, stage, id)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, doc)
		})
	})

	r.Get("/runs", func(w http.ResponseWriter, req *http.Request) {
		limit := 50
		if v := req.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				writeError(w, http.StatusBadRequest, eris.Errorf("invalid limit %q", v))
				return
			}
			limit = n
		}
		runs, err := st.ListRuns(req.Context(), store.RunFilter{Limit: limit})
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if runs == nil {
			runs = []model.RunReport{}
		}
		writeJSON(w, http.StatusOK, runs)
	})

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		zap.L().Error("http handler failed", zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
