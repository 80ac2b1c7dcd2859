// Package server exposes the catalog, relevance, analysis and export
// operations as a JSON HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/btp-research/internal/analysis"
	"github.com/sells-group/btp-research/internal/catalog"
	"github.com/sells-group/btp-research/internal/config"
	"github.com/sells-group/btp-research/internal/guest"
	"github.com/sells-group/btp-research/internal/metrics"
	"github.com/sells-group/btp-research/internal/model"
	"github.com/sells-group/btp-research/internal/prefs"
)

// Catalog lists services and fetches their detail documents.
type Catalog interface {
	ListServices(ctx context.Context) ([]model.ServiceSummary, error)
	GetServiceDetail(ctx context.Context, fileName string) (*model.ServiceDetail, error)
}

// CatalogCache is implemented by catalogs that keep fetched documents in
// memory.
type CatalogCache interface {
	Invalidate()
	CacheStats() catalog.CacheStats
}

// Classifier classifies one service.
type Classifier interface {
	Classify(ctx context.Context, svc model.ServiceSummary, force bool) (*model.RelevanceRecord, error)
}

// Filler classifies many services, best-effort.
type Filler interface {
	ClassifyAll(ctx context.Context, services []model.ServiceSummary) map[string]model.RelevanceRecord
}

// RelevanceCache reads stored classifications without calling the model.
type RelevanceCache interface {
	GetRelevanceBatch(ctx context.Context, ids []string) (map[string]model.RelevanceRecord, error)
}

// Analyzer runs the research pass for one service.
type Analyzer interface {
	Analyze(ctx context.Context, req analysis.Request) (*model.AnalysisResult, error)
}

// Deps are the collaborators behind the routes. Nil collaborators make
// their routes answer 503.
type Deps struct {
	Catalog    Catalog
	Classifier Classifier
	Filler     Filler
	Cache      RelevanceCache
	Analyzer   Analyzer
	Guest      *guest.Limiter
	Prefs      *prefs.Preferences
	Metrics    *metrics.Metrics

	// SourceRef resolves a file name to the URL of its metadata document.
	SourceRef func(fileName string) string

	// APITokens authenticate callers. Authenticated callers bypass the
	// guest limit.
	APITokens      []string
	AllowedOrigins []string

	Now func() time.Time
}

// Server wraps the HTTP server.
type Server struct {
	http *http.Server
}

// New builds the HTTP server for cfg.
func New(cfg config.ServerConfig, d Deps) *Server {
	d.APITokens = cfg.APITokens
	d.AllowedOrigins = cfg.AllowedOrigins

	return &Server{
		http: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           NewRouter(d),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       time.Duration(cfg.ReadTimeoutSecs) * time.Second,
			WriteTimeout:      time.Duration(cfg.WriteTimeoutSecs) * time.Second,
			IdleTimeout:       60 * time.Second,
			MaxHeaderBytes:    1 << 20,
		},
	}
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.http.Addr
}

// Start serves until Stop is called or listening fails.
func (s *Server) Start() error {
	zap.L().Info("server: listening", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts down gracefully within ctx's deadline.
func (s *Server) Stop(ctx context.Context) error {
	zap.L().Info("server: shutting down")
	return s.http.Shutdown(ctx)
}

// NewRouter wires middleware and routes.
func NewRouter(d Deps) http.Handler {
	if d.Now == nil {
		d.Now = time.Now
	}
	h := &handlers{deps: d}

	origins := d.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLog)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.health)
	r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/services", h.listServices)
		r.Get("/services/{id}", h.getService)
		r.Get("/categories", h.categories)
		r.Post("/catalog/refresh", h.refreshCatalog)

		r.Post("/relevance", h.classifyAll)
		r.Post("/relevance/{id}", h.classifyOne)

		r.Post("/analyze", h.analyze)
		r.Get("/guest", h.guestStatus)

		r.Post("/export", h.exportMarkdown)
		r.Get("/export/catalog.xlsx", h.exportCatalog)

		r.Get("/preferences", h.getPreferences)
		r.Put("/preferences", h.putPreferences)
	})

	return r
}
