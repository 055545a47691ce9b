package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/brasserie-group/cost-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve cost history over HTTP for dashboards",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newRouter(st),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			_ = srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

// newRouter builds the read-only cost query surface.
func newRouter(st store.Store) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/products", func(w http.ResponseWriter, req *http.Request) {
		products, err := st.ListProducts(req.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, products)
	})

	r.Get("/products/{id}/cost", func(w http.ResponseWriter, req *http.Request) {
		id := chi.URLParam(req, "id")
		asOf := time.Now().UTC()
		if s := req.URL.Query().Get("as_of"); s != "" {
			parsed, err := time.ParseInLocation("2006-01-02", s, time.UTC)
			if err != nil {
				http.Error(w, `{"error":"as_of must be YYYY-MM-DD"}`, http.StatusBadRequest)
				return
			}
			asOf = parsed
		}

		entry, err := st.GetCostAsOf(req.Context(), id, asOf)
		if err != nil {
			writeError(w, err)
			return
		}
		if entry == nil {
			http.Error(w, `{"error":"no cost entry"}`, http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, entry)
	})

	r.Get("/products/{id}/history", func(w http.ResponseWriter, req *http.Request) {
		id := chi.URLParam(req, "id")
		to := time.Now().UTC()
		from := to.AddDate(-1, 0, 0)
		if s := req.URL.Query().Get("from"); s != "" {
			parsed, err := time.ParseInLocation("2006-01-02", s, time.UTC)
			if err != nil {
				http.Error(w, `{"error":"from must be YYYY-MM-DD"}`, http.StatusBadRequest)
				return
			}
			from = parsed
		}
		if s := req.URL.Query().Get("to"); s != "" {
			parsed, err := time.ParseInLocation("2006-01-02", s, time.UTC)
			if err != nil {
				http.Error(w, `{"error":"to must be YYYY-MM-DD"}`, http.StatusBadRequest)
				return
			}
			to = parsed
		}

		entries, err := st.ListCostHistory(req.Context(), id, from, to)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, entries)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	zap.L().Error("serve: request failed", zap.Error(err))
	http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
