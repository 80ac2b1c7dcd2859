package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/btp-research/internal/analysis"
	"github.com/sells-group/btp-research/internal/catalog"
	"github.com/sells-group/btp-research/internal/export"
	"github.com/sells-group/btp-research/internal/guest"
	"github.com/sells-group/btp-research/internal/model"
	"github.com/sells-group/btp-research/internal/prefs"
)

const maxBodyBytes = 1 << 20

type handlers struct {
	deps Deps
}

// serviceView is a catalog entry with its classification, when known.
type serviceView struct {
	model.ServiceSummary
	Relevance *model.RelevanceRecord `json:"relevance,omitempty"`
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return badRequest("invalid request body")
	}
	return nil
}

func (h *handlers) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) services(r *http.Request) ([]model.ServiceSummary, error) {
	if h.deps.Catalog == nil {
		return nil, unavailable("catalog")
	}
	return h.deps.Catalog.ListServices(r.Context())
}

func (h *handlers) lookup(r *http.Request, id string) (model.ServiceSummary, error) {
	services, err := h.services(r)
	if err != nil {
		return model.ServiceSummary{}, err
	}
	svc, ok := catalog.FindByID(services, id)
	if !ok {
		return model.ServiceSummary{}, notFound("service " + id + " not found")
	}
	return svc, nil
}

func (h *handlers) listServices(w http.ResponseWriter, r *http.Request) {
	services, err := h.services(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	q := r.URL.Query()
	filtered := catalog.Filter(services, catalog.Query{Text: q.Get("q"), Category: q.Get("category")})

	want := strings.ToLower(strings.TrimSpace(q.Get("relevance")))
	if want != "" && !model.Relevance(want).Valid() {
		writeError(w, r, badRequest("relevance must be one of high, medium, low"))
		return
	}
	annotate, _ := strconv.ParseBool(q.Get("annotate"))

	// Listing only reads stored classifications; filling is POST /api/relevance.
	var records map[string]model.RelevanceRecord
	if annotate || want != "" {
		records, err = h.storedRelevance(r, filtered)
		if err != nil {
			writeError(w, r, err)
			return
		}
	}

	views := make([]serviceView, 0, len(filtered))
	for _, svc := range filtered {
		v := serviceView{ServiceSummary: svc}
		if rec, ok := records[svc.TechnicalID]; ok {
			v.Relevance = &rec
		}
		if want != "" && (v.Relevance == nil || string(v.Relevance.Relevance) != want) {
			continue
		}
		views = append(views, v)
	}

	writeJSON(w, http.StatusOK, map[string]any{"services": views, "total": len(views)})
}

// storedRelevance returns the cached classifications of services, marked
// as cached. Nothing is classified.
func (h *handlers) storedRelevance(r *http.Request, services []model.ServiceSummary) (map[string]model.RelevanceRecord, error) {
	if h.deps.Cache == nil {
		return nil, unavailable("relevance cache")
	}
	ids := make([]string, 0, len(services))
	for _, s := range services {
		ids = append(ids, s.TechnicalID)
	}
	records, err := h.deps.Cache.GetRelevanceBatch(r.Context(), ids)
	if err != nil {
		return nil, err
	}
	for id, rec := range records {
		rec.Cached = true
		records[id] = rec
	}
	return records, nil
}

func (h *handlers) refreshCatalog(w http.ResponseWriter, r *http.Request) {
	if !authenticated(r, h.deps.APITokens) {
		writeError(w, r, unauthorized("an API token is required"))
		return
	}
	cc, ok := h.deps.Catalog.(CatalogCache)
	if !ok {
		writeError(w, r, unavailable("catalog cache"))
		return
	}
	stats := cc.CacheStats()
	cc.Invalidate()
	zap.L().Info("server: catalog cache invalidated", zap.Int("entries", stats.Entries))
	writeJSON(w, http.StatusOK, map[string]any{"invalidated": true, "cache": stats})
}

func (h *handlers) getService(w http.ResponseWriter, r *http.Request) {
	svc, err := h.lookup(r, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	detail, err := h.deps.Catalog.GetServiceDetail(r.Context(), svc.FileName)
	if err != nil && !errors.Is(err, catalog.ErrNotFound) {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"service": svc, "detail": detail})
}

func (h *handlers) categories(w http.ResponseWriter, r *http.Request) {
	services, err := h.services(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": catalog.Categories(services)})
}

func (h *handlers) classifyAll(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []string `json:"ids"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if h.deps.Filler == nil {
		writeError(w, r, unavailable("relevance classification"))
		return
	}

	services, err := h.services(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if len(req.IDs) > 0 {
		selected := make([]model.ServiceSummary, 0, len(req.IDs))
		for _, id := range req.IDs {
			if svc, ok := catalog.FindByID(services, id); ok {
				selected = append(selected, svc)
			}
		}
		services = selected
	}

	records := h.deps.Filler.ClassifyAll(r.Context(), services)
	writeJSON(w, http.StatusOK, map[string]any{
		"relevance":  records,
		"requested":  len(services),
		"classified": len(records),
	})
}

func (h *handlers) classifyOne(w http.ResponseWriter, r *http.Request) {
	if h.deps.Classifier == nil {
		writeError(w, r, unavailable("relevance classification"))
		return
	}
	svc, err := h.lookup(r, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))

	rec, err := h.deps.Classifier.Classify(r.Context(), svc, force)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type analyzeResponse struct {
	*model.AnalysisResult
	ServiceID string `json:"service_id"`
	Remaining *int   `json:"remaining,omitempty"`
}

func (h *handlers) analyze(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID           string `json:"id"`
		Mode         string `json:"mode"`
		SystemPrompt string `json:"system_prompt"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.ID) == "" {
		writeError(w, r, badRequest("id is required"))
		return
	}
	if h.deps.Analyzer == nil {
		writeError(w, r, unavailable("analysis"))
		return
	}

	var limiter *guest.Limiter
	var slot *guest.Reservation
	if !authenticated(r, h.deps.APITokens) && h.deps.Guest != nil {
		limiter = h.deps.Guest.ForSession(guestSession(w, r))
		res, err := limiter.Reserve(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		slot = res
		defer slot.Release()
	}

	svc, err := h.lookup(r, req.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	detail, err := h.deps.Catalog.GetServiceDetail(r.Context(), svc.FileName)
	if err != nil && !errors.Is(err, catalog.ErrNotFound) {
		writeError(w, r, err)
		return
	}

	var sourceRef string
	if h.deps.SourceRef != nil {
		sourceRef = h.deps.SourceRef(svc.FileName)
	}
	areq := analysis.NewRequest(svc, detail, model.ParseAnalysisCategory(req.Mode), sourceRef)
	areq.SystemPrompt = req.SystemPrompt

	result, err := h.deps.Analyzer.Analyze(r.Context(), areq)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := analyzeResponse{AnalysisResult: result, ServiceID: svc.TechnicalID}
	if slot != nil {
		if err := slot.Commit(r.Context()); err != nil {
			zap.L().Warn("server: record guest usage", zap.Error(err))
		}
		remaining, err := limiter.Remaining(r.Context())
		if err == nil {
			resp.Remaining = &remaining
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) guestStatus(w http.ResponseWriter, r *http.Request) {
	if h.deps.Guest == nil {
		writeError(w, r, unavailable("guest limiter"))
		return
	}
	limit := h.deps.Guest.Limit()
	if authenticated(r, h.deps.APITokens) {
		writeJSON(w, http.StatusOK, map[string]any{"remaining": limit, "limit": limit, "authenticated": true})
		return
	}

	remaining, err := h.deps.Guest.ForSession(guestSession(w, r)).Remaining(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"remaining": remaining, "limit": limit, "authenticated": false})
}

func (h *handlers) exportMarkdown(w http.ResponseWriter, r *http.Request) {
	var doc export.Document
	if err := decodeBody(w, r, &doc); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(doc.ServiceName) == "" {
		writeError(w, r, badRequest("service_name is required"))
		return
	}
	doc.Date = h.deps.Now()

	name, body := export.Markdown(doc)
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (h *handlers) exportCatalog(w http.ResponseWriter, r *http.Request) {
	services, err := h.services(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var records map[string]model.RelevanceRecord
	if h.deps.Cache != nil {
		records, err = h.storedRelevance(r, services)
		if err != nil {
			zap.L().Warn("server: relevance lookup for export failed", zap.Error(err))
			records = nil
		}
	}

	book, err := export.CatalogWorkbook(services, records)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="btp_services.xlsx"`)
	w.WriteHeader(http.StatusOK)
	if err := book.Write(w); err != nil {
		zap.L().Warn("server: write workbook", zap.Error(err))
	}
}

// sessionPrefs loads the preferences of the caller's guest session.
func (h *handlers) sessionPrefs(w http.ResponseWriter, r *http.Request) (*prefs.Preferences, error) {
	if h.deps.Prefs == nil {
		return nil, unavailable("preferences")
	}
	return h.deps.Prefs.ForSession(r.Context(), guestSession(w, r))
}

func (h *handlers) getPreferences(w http.ResponseWriter, r *http.Request) {
	p, err := h.sessionPrefs(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p.Snapshot())
}

func (h *handlers) putPreferences(w http.ResponseWriter, r *http.Request) {
	p, err := h.sessionPrefs(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req struct {
		Theme    *string `json:"theme"`
		Language *string `json:"language"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Theme != nil {
		if err := p.SetTheme(r.Context(), *req.Theme); err != nil {
			writeError(w, r, err)
			return
		}
	}
	if req.Language != nil {
		if err := p.SetLanguage(r.Context(), *req.Language); err != nil {
			writeError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, p.Snapshot())
}
