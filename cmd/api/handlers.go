package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/fleetdesk/fleetrag/engine/criteria"
	"github.com/fleetdesk/fleetrag/engine/domain"
	"github.com/fleetdesk/fleetrag/engine/kb"
	"github.com/fleetdesk/fleetrag/engine/rag"
	"github.com/fleetdesk/fleetrag/engine/vecindex"
	"github.com/fleetdesk/fleetrag/pkg/resilience"
)

// maxBodyBytes caps request bodies; queries are at most domain.MaxQueryLength runes.
const maxBodyBytes = 64 << 10

type api struct {
	domains   map[string]domainService
	refresher *refresher
	gen       rag.Generator
	breaker   func() resilience.State
	log       *slog.Logger
}

func (a *api) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", a.handleHealth)
	mux.HandleFunc("POST /api/chat/{domain}", a.handleChat)
	mux.HandleFunc("POST /api/criteria/{domain}", a.handleCriteria)
	mux.HandleFunc("POST /api/search/{domain}", a.handleSearch)
	mux.HandleFunc("POST /api/refresh/{domain}", a.handleRefresh)
	mux.HandleFunc("POST /api/refresh", a.handleRefresh)
	mux.HandleFunc("POST /api/title", a.handleTitle)
}

// ChatRequest is the JSON body for POST /api/chat/{domain}.
type ChatRequest struct {
	Query string `json:"query"`
}

// ChatResponse is the JSON response for POST /api/chat/{domain}.
type ChatResponse struct {
	ID       uuid.UUID  `json:"id"`
	Domain   string     `json:"domain"`
	Branch   rag.Branch `json:"branch"`
	Response []string   `json:"response"`
	Matches  int        `json:"matches"`
	Failed   bool       `json:"failed,omitempty"`
}

// CriteriaResponse shows how a query would be interpreted.
type CriteriaResponse struct {
	Domain   string       `json:"domain"`
	Key      string       `json:"key,omitempty"`
	Criteria criteria.Set `json:"criteria"`
}

// SearchRequest is the JSON body for POST /api/search/{domain}. Chunks and
// Ordinals optionally restrict the candidates; at most one may be set.
type SearchRequest struct {
	Query    string   `json:"query"`
	K        int      `json:"k,omitempty"`
	Chunks   []string `json:"chunks,omitempty"`
	Ordinals []int    `json:"ordinals,omitempty"`
}

// SearchResponse lists the nearest chunks. NoCandidates is set when the
// requested scope matched no stored chunk.
type SearchResponse struct {
	Domain       string      `json:"domain"`
	Hits         []SearchHit `json:"hits"`
	NoCandidates bool        `json:"no_candidates,omitempty"`
}

// maxSearchK caps the hits one search may ask for.
const maxSearchK = 50

// TitleRequest is the JSON body for POST /api/title.
type TitleRequest struct {
	Message string `json:"message"`
}

// TitleResponse carries a generated chat title.
type TitleResponse struct {
	Title string `json:"title"`
}

// HealthResponse reports service readiness.
type HealthResponse struct {
	Status  string                  `json:"status"`
	Ollama  string                  `json:"ollama"`
	Domains map[string]domainStatus `json:"domains"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Error: msg})
}

// decode reads a JSON body into v, answering 400/413 itself on failure.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (a *api) domain(w http.ResponseWriter, r *http.Request) (domainService, bool) {
	name := strings.ToLower(r.PathValue("domain"))
	d, ok := a.domains[name]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown domain: "+name)
		return nil, false
	}
	return d, true
}

func (a *api) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := HealthResponse{Status: "ok", Ollama: "unknown", Domains: make(map[string]domainStatus, len(a.domains))}
	if a.breaker != nil {
		st := a.breaker()
		resp.Ollama = st.String()
		if st == resilience.StateOpen {
			resp.Status = "degraded"
		}
	}
	for name, d := range a.domains {
		resp.Domains[name] = d.Status()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *api) handleChat(w http.ResponseWriter, r *http.Request) {
	d, ok := a.domain(w, r)
	if !ok {
		return
	}
	var req ChatRequest
	if !decode(w, r, &req) {
		return
	}
	if err := domain.ValidateQuery(req.Query); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, a.answer(r.Context(), d, req.Query))
}

func (a *api) answer(ctx context.Context, d domainService, query string) ChatResponse {
	ans := d.Query(ctx, strings.TrimSpace(query))
	return ChatResponse{
		ID:       ans.ID,
		Domain:   ans.Domain,
		Branch:   ans.Branch,
		Response: ans.Response(),
		Matches:  ans.Matches,
		Failed:   ans.Failed,
	}
}

func (a *api) handleCriteria(w http.ResponseWriter, r *http.Request) {
	d, ok := a.domain(w, r)
	if !ok {
		return
	}
	var req ChatRequest
	if !decode(w, r, &req) {
		return
	}
	if err := domain.ValidateQuery(req.Query); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	set, key := d.Criteria(req.Query)
	writeJSON(w, http.StatusOK, CriteriaResponse{Domain: d.Name(), Key: key, Criteria: set})
}

func (a *api) handleSearch(w http.ResponseWriter, r *http.Request) {
	d, ok := a.domain(w, r)
	if !ok {
		return
	}
	var req SearchRequest
	if !decode(w, r, &req) {
		return
	}
	if err := domain.ValidateQuery(req.Query); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.K < 0 || req.K > maxSearchK {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("k must be between 0 and %d", maxSearchK))
		return
	}

	hits, err := d.Search(r.Context(), strings.TrimSpace(req.Query), rag.SearchOptions{K: req.K, Chunks: req.Chunks, Ordinals: req.Ordinals})
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, SearchResponse{Domain: d.Name(), Hits: hits})
	case errors.Is(err, vecindex.ErrNoCandidates):
		writeJSON(w, http.StatusOK, SearchResponse{Domain: d.Name(), Hits: []SearchHit{}, NoCandidates: true})
	case errors.Is(err, rag.ErrAmbiguousScope):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, kb.ErrNotLoaded), errors.Is(err, rag.ErrNoEmbedder):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		a.log.Warn("search failed", "domain", d.Name(), "err", err)
		writeError(w, http.StatusBadGateway, err.Error())
	}
}

func (a *api) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ds, err := a.refresher.targets(strings.ToLower(r.PathValue("domain")))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	events := make([]kb.RefreshedEvent, 0, len(ds))
	code := http.StatusOK
	for _, d := range ds {
		ev := a.refresher.refresh(r.Context(), d, "")
		if ev.Error != "" {
			code = http.StatusBadGateway
		}
		events = append(events, ev)
	}
	writeJSON(w, code, events)
}

func (a *api) handleTitle(w http.ResponseWriter, r *http.Request) {
	var req TitleRequest
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, TitleResponse{Title: rag.Title(r.Context(), a.gen, req.Message)})
}
