package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/kensho/internal/models"
	"github.com/hyperjump/kensho/internal/search"
	"github.com/hyperjump/kensho/internal/storage"
)

// defaultMinFactScore drops weak semantic-only matches from fact search.
const defaultMinFactScore = 0.1

// factView is a fact without its embedding.
type factView struct {
	ID              string                 `json:"id"`
	Claim           string                 `json:"claim"`
	Category        string                 `json:"category"`
	Source          string                 `json:"source"`
	PublicationDate string                 `json:"publication_date"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
	Score           *float64               `json:"score,omitempty"`
}

func viewOf(f *models.Fact) factView {
	return factView{
		ID:              f.ID,
		Claim:           f.Claim,
		Category:        f.Category,
		Source:          f.Source,
		PublicationDate: f.PublicationDate,
		Metadata:        f.Metadata,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	if !s.components.Index.Ready() {
		status = "degraded"
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":       status,
		"corpusLoaded": s.components.Index.Ready(),
		"factBaseSize": s.components.Index.Size(),
	})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req models.VerifyRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	resp, id, err := s.components.Verify(r.Context(), req.Claim)
	if errors.Is(err, models.ErrEmptyClaim) || errors.Is(err, models.ErrClaimTooLong) {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	if id != "" {
		w.Header().Set("X-Verification-ID", id)
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	c := s.components
	resp := map[string]interface{}{
		"retrieval": c.Index.Stats(),
	}
	if c.Pipeline != nil {
		resp["pipeline"] = c.Pipeline.Info()
	}
	if b, ok := c.Generator.(interface{ State() string }); ok {
		resp["llmCircuit"] = b.State()
	}
	if stats, err := c.Store.Stats(); err == nil {
		resp["corpus"] = stats
	} else {
		resp["corpus"] = map[string]string{"error": err.Error()}
	}
	if c.History != nil {
		if counts, err := c.History.CountVerifications(r.Context()); err == nil {
			resp["verifications"] = counts
		} else {
			s.logger.Warn("Status: counting verifications failed", zap.Error(err))
		}
	}
	if usage, err := storage.DiskUsage(map[string]string{
		"corpus":  c.Config.Corpus.Path,
		"history": c.Config.Storage.DatabasePath,
	}); err == nil {
		resp["diskUsageBytes"] = usage
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListFacts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	category := strings.ToLower(strings.TrimSpace(q.Get("category")))
	limit := intParam(q.Get("limit"), 0)

	var views []factView
	if text := strings.TrimSpace(q.Get("q")); text != "" {
		query := search.Query{
			Text:     text,
			Category: category,
			Limit:    limit,
			Fuzzy:    q.Get("fuzzy") == "true",
			MinScore: floatParam(q.Get("min_score"), defaultMinFactScore),
		}
		switch q.Get("mode") {
		case "keyword":
			query.KeywordWeight = 1
		case "semantic":
			query.SemanticWeight = 1
		case "", "hybrid":
		default:
			s.respondError(w, http.StatusBadRequest, "mode must be keyword, semantic or hybrid")
			return
		}
		results, err := s.components.Search.Search(r.Context(), query)
		if err != nil {
			s.logger.Error("Fact search failed", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, "fact search failed")
			return
		}
		for _, res := range results {
			v := viewOf(res.Fact)
			score := res.Score
			v.Score = &score
			views = append(views, v)
		}
	} else {
		facts := s.components.Store.Facts()
		if category != "" {
			facts = s.components.Store.ByCategory(category)
		}
		for _, f := range facts {
			views = append(views, viewOf(f))
		}
		if limit > 0 && len(views) > limit {
			views = views[:limit]
		}
	}
	if views == nil {
		views = []factView{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"facts": views, "total": len(views)})
}

func (s *Server) handleGetFact(w http.ResponseWriter, r *http.Request) {
	f, ok := s.components.Store.ByID(chi.URLParam(r, "id"))
	if !ok {
		s.respondError(w, http.StatusNotFound, "fact not found")
		return
	}
	s.respondJSON(w, http.StatusOK, viewOf(f))
}

func (s *Server) handleListVerifications(w http.ResponseWriter, r *http.Request) {
	if s.components.History == nil {
		s.respondError(w, http.StatusNotImplemented, "verification history disabled")
		return
	}
	q := r.URL.Query()
	filter := storage.ListFilter{
		Offset: intParam(q.Get("offset"), 0),
		Limit:  intParam(q.Get("limit"), 50),
	}
	if v := q.Get("verdict"); v != "" {
		verdict, ok := models.ParseVerdict(v)
		if !ok {
			s.respondError(w, http.StatusBadRequest, "verdict must be true, false or unverifiable")
			return
		}
		filter.Verdict = verdict
	}
	recs, err := s.components.History.ListVerifications(r.Context(), filter)
	if err != nil {
		s.logger.Error("Listing verifications failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "listing verifications failed")
		return
	}
	if recs == nil {
		recs = []*models.VerificationRecord{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"verifications": recs})
}

func (s *Server) handleGetVerification(w http.ResponseWriter, r *http.Request) {
	if s.components.History == nil {
		s.respondError(w, http.StatusNotImplemented, "verification history disabled")
		return
	}
	rec, err := s.components.History.GetVerification(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, storage.ErrNotFound) {
		s.respondError(w, http.StatusNotFound, "verification not found")
		return
	}
	if err != nil {
		s.logger.Error("Loading verification failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "loading verification failed")
		return
	}
	s.respondJSON(w, http.StatusOK, rec)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	changed, err := s.components.Reload(r.Context())
	if err != nil {
		s.logger.Warn("Corpus reload failed", zap.Error(err))
		s.respondJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"error":        err.Error(),
			"category":     models.CategoryOf(err),
			"factBaseSize": s.components.Index.Size(),
		})
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"reloaded":     changed,
		"factBaseSize": s.components.Index.Size(),
	})
}

func floatParam(v string, def float64) float64 {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		return def
	}
	return f
}

func intParam(v string, def int) int {
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

// statusFor maps an error category onto its HTTP status.
func statusFor(category models.ErrorCategory) int {
	switch category {
	case models.CategoryTimeout:
		return http.StatusGatewayTimeout
	case models.CategoryServiceUnavailable:
		return http.StatusServiceUnavailable
	case models.CategoryInvalidEvidence:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// respondFailure reports a failed verification with its category and a caller-safe message.
func (s *Server) respondFailure(w http.ResponseWriter, err error) {
	category := models.CategoryOf(err)
	s.logger.Error("Verification request failed", zap.String("category", string(category)), zap.Error(err))
	s.respondJSON(w, statusFor(category), map[string]string{
		"error":    category.PublicMessage(),
		"category": string(category),
	})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
