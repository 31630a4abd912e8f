// Package designserver is an in-memory implementation of the design service
// HTTP API for tests.
package designserver

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/tjfontaine/steelflow/internal/core/domain"
)

// Server serves the design service API from memory.
type Server struct {
	Token string

	mu          sync.Mutex
	connections map[string]*domain.Connection
	redlines    map[string][]*domain.Redline
	suggestions map[string]domain.Parameters
	failures    map[string]failure
	calls       map[string]int
	rfiRequests []domain.RFIRequest
	rfiError    string

	router *chi.Mux
	srv    *httptest.Server
}

type failure struct {
	status int
	detail string
}

// New starts a server and registers its shutdown with t.
func New(t testing.TB, token string) *Server {
	t.Helper()
	s := &Server{
		Token:       token,
		connections: make(map[string]*domain.Connection),
		redlines:    make(map[string][]*domain.Redline),
		suggestions: make(map[string]domain.Parameters),
		failures:    make(map[string]failure),
		calls:       make(map[string]int),
	}
	s.router = s.routes()
	s.srv = httptest.NewServer(s.router)
	t.Cleanup(s.srv.Close)
	return s
}

// URL returns the base URL including the /api prefix.
func (s *Server) URL() string {
	return s.srv.URL + "/api"
}

// AddConnection seeds a connection. Missing id, status and parameters are filled in.
func (s *Server) AddConnection(conn domain.Connection) *domain.Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	if conn.ID == "" {
		conn.ID = uuid.NewString()
	}
	if conn.Status == "" {
		conn.Status = domain.ConnectionDraft
	}
	if conn.Parameters == nil {
		conn.Parameters = domain.Parameters{}
	}
	now := time.Now().UTC()
	conn.CreatedAt, conn.UpdatedAt = domain.NewServiceTime(now), domain.NewServiceTime(now)
	s.connections[conn.ID] = &conn
	return conn.Clone()
}

// Connection returns the server-side copy of a connection.
func (s *Server) Connection(id string) *domain.Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connections[id].Clone()
}

// AddRedline seeds a redline for a connection.
func (s *Server) AddRedline(r domain.Redline) domain.Redline {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Status == "" {
		r.Status = domain.RedlineUploaded
	}
	r.CreatedAt = domain.NewServiceTime(time.Now().UTC())
	r.UpdatedAt = r.CreatedAt
	s.redlines[r.ConnectionID] = append(s.redlines[r.ConnectionID], &r)
	return r.Clone()
}

// SuggestParameters sets the parameters interpretation of fileName will suggest.
func (s *Server) SuggestParameters(fileName string, params domain.Parameters) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suggestions[fileName] = params
}

// FailNext makes the next request to the named route fail with status and detail.
// Route names are the handler names, e.g. "interpret" or "validate".
func (s *Server) FailNext(route string, status int, detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[route] = failure{status: status, detail: detail}
}

// FailRFIDraft makes the next RFI request answer 200 with the service's
// in-band error text instead of a draft.
func (s *Server) FailRFIDraft(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rfiError = reason
}

// RFIRequests returns the RFI requests received so far.
func (s *Server) RFIRequests() []domain.RFIRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.RFIRequest(nil), s.rfiRequests...)
}

// Calls returns how many requests reached the named route.
func (s *Server) Calls(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[route]
}

func (s *Server) routes() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Route("/api", func(r chi.Router) {
		r.Use(s.authenticate)
		r.Get("/connections/{id}", s.route("get_connection", s.getConnection))
		r.Put("/connections/{id}", s.route("update_connection", s.updateConnection))
		r.Post("/connections/{id}/validate", s.route("validate", s.validate))
		r.Post("/connections/{id}/export/tekla", s.route("export", s.export))
		r.Post("/redlines/upload", s.route("upload", s.upload))
		r.Post("/redlines/{id}/interpret", s.route("interpret", s.interpret))
		r.Post("/redlines/{id}/approve", s.route("approve", s.approve))
		r.Post("/redlines/{id}/reject", s.route("reject", s.reject))
		r.Get("/redlines/{id}/list", s.route("list_redlines", s.listRedlines))
		r.Get("/audit/connection/{id}", s.route("audit", s.audit))
		r.Get("/audit/my-activity", s.route("my_activity", s.myActivity))
		r.Post("/ai/generate-rfi", s.route("generate_rfi", s.generateRFI))
	})
	return r
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Token != "" && r.Header.Get("Authorization") != "Bearer "+s.Token {
			writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) route(name string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls[name]++
		f, fail := s.failures[name]
		delete(s.failures, name)
		s.mu.Unlock()
		if fail {
			writeDetail(w, f.status, f.detail)
			return
		}
		h(w, r)
	}
}

func (s *Server) getConnection(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn, ok := s.connections[chi.URLParam(r, "id")]
	if !ok {
		writeDetail(w, http.StatusNotFound, "Connection not found")
		return
	}
	writeJSON(w, http.StatusOK, conn)
}

func (s *Server) updateConnection(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Parameters domain.Parameters `json:"parameters"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	conn, ok := s.connections[chi.URLParam(r, "id")]
	if !ok {
		writeDetail(w, http.StatusNotFound, "Connection not found")
		return
	}
	if req.Parameters != nil {
		conn.Parameters = req.Parameters.Clone()
	}
	conn.UpdatedAt = domain.NewServiceTime(time.Now().UTC())
	writeJSON(w, http.StatusOK, conn)
}

func (s *Server) validate(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn, ok := s.connections[chi.URLParam(r, "id")]
	if !ok {
		writeDetail(w, http.StatusNotFound, "Connection not found")
		return
	}

	missing := domain.MissingRequired(conn.ConnectionType, conn.Parameters)
	summary := "1 of 1 checks passed"
	if len(missing) > 0 {
		summary = "0 of 1 checks passed"
	}
	checks := []domain.RuleCheck{{
		RuleID:        "J3.2",
		RuleName:      "Required Parameters",
		Status:        domain.RulePass,
		Message:       "All required parameters present",
		CodeReference: "AISC 360-16",
	}}
	if len(missing) > 0 {
		checks[0].Status = domain.RuleFail
		checks[0].Message = "Missing: " + strings.Join(missing, ", ")
	}

	result := domain.ValidationResult{
		RuleValidation: domain.RuleValidation{
			Summary: summary,
			IsValid: len(missing) == 0,
			Checks:  checks,
		},
		GeometryValidation: &domain.GeometryValidation{IsValid: true, Issues: []string{}, Warnings: []string{}},
	}
	if len(missing) == 0 {
		result.Status = domain.ConnectionValidated
		result.RuleValidation.OverallStatus = domain.RulePass
		result.Geometry = json.RawMessage(`{"plate":{"thickness":0.5},"bolts":[]}`)
		conn.Geometry = result.Geometry
	} else {
		result.Status = domain.ConnectionFailed
		result.RuleValidation.OverallStatus = domain.RuleFail
	}
	conn.Status = result.Status
	stored := result.RuleValidation
	conn.ValidationResults = &domain.ValidationResult{RuleValidation: stored}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) export(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn, ok := s.connections[chi.URLParam(r, "id")]
	if !ok {
		writeDetail(w, http.StatusNotFound, "Connection not found")
		return
	}
	if !conn.HasGeometry() {
		writeDetail(w, http.StatusBadRequest, "Connection must be validated before export")
		return
	}
	conn.Status = domain.ConnectionExported
	writeJSON(w, http.StatusOK, map[string]any{
		"tekla_export": map[string]any{"connection_name": conn.Name, "geometry": conn.Geometry},
		"format":       "tekla_parametric_json",
		"editable":     true,
		"disclaimer":   "Engineering review and approval required before fabrication",
	})
}

func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	connectionID := r.URL.Query().Get("connection_id")
	file, header, err := r.FormFile("file")
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "file: field required")
		return
	}
	defer file.Close()
	if _, err := io.Copy(io.Discard, file); err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.connections[connectionID]; !ok {
		writeDetail(w, http.StatusNotFound, "Connection not found")
		return
	}
	now := time.Now().UTC()
	rl := &domain.Redline{
		ID:           uuid.NewString(),
		ConnectionID: connectionID,
		FileName:     header.Filename,
		Status:       domain.RedlineUploaded,
		CreatedAt:    domain.NewServiceTime(now),
		UpdatedAt:    domain.NewServiceTime(now),
	}
	s.redlines[connectionID] = append(s.redlines[connectionID], rl)
	writeJSON(w, http.StatusOK, domain.UploadReceipt{
		RedlineID: rl.ID,
		Status:    rl.Status,
		Message:   "Redline uploaded successfully. Ready for AI interpretation.",
	})
}

func (s *Server) findRedline(id string) *domain.Redline {
	for _, list := range s.redlines {
		for _, rl := range list {
			if rl.ID == id {
				return rl
			}
		}
	}
	return nil
}

func (s *Server) interpret(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rl := s.findRedline(chi.URLParam(r, "id"))
	if rl == nil {
		writeDetail(w, http.StatusNotFound, "Redline not found")
		return
	}
	params := s.suggestions[rl.FileName]
	if params == nil {
		params = domain.Parameters{}
	}
	rl.Status = domain.RedlineExtracted
	rl.AIExtraction = &domain.AIExtraction{
		Confidence: 0.85,
		Intent:     "adjust connection parameters",
		Reasoning:  "markup annotations reference plate and bolt sizes",
		Parameters: params.Clone(),
	}
	rl.UpdatedAt = domain.NewServiceTime(time.Now().UTC())
	writeJSON(w, http.StatusOK, domain.Interpretation{
		RedlineID:    rl.ID,
		Status:       rl.Status,
		AIExtraction: rl.AIExtraction,
		Disclaimer:   "AI interpretation is ADVISORY ONLY. Human approval required before applying changes.",
	})
}

func (s *Server) approve(w http.ResponseWriter, r *http.Request) {
	var params domain.Parameters
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rl := s.findRedline(chi.URLParam(r, "id"))
	if rl == nil {
		writeDetail(w, http.StatusNotFound, "Redline not found")
		return
	}
	conn, ok := s.connections[rl.ConnectionID]
	if !ok {
		writeDetail(w, http.StatusNotFound, "Connection not found")
		return
	}
	for k, v := range params {
		conn.Parameters[k] = v
	}
	conn.Status = domain.ConnectionDraft
	conn.UpdatedAt = domain.NewServiceTime(time.Now().UTC())
	rl.Status = domain.RedlineApproved
	rl.ApprovedChanges = params.Clone()
	writeJSON(w, http.StatusOK, domain.Approval{
		Message:           "Changes approved and applied to connection",
		ConnectionID:      conn.ID,
		UpdatedParameters: conn.Parameters.Clone(),
		Note:              "Connection status reset to draft. Re-validate before export.",
	})
}

func (s *Server) reject(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rl := s.findRedline(chi.URLParam(r, "id"))
	if rl == nil {
		writeDetail(w, http.StatusNotFound, "Redline not found")
		return
	}
	rl.Status = domain.RedlineRejected
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listRedlines(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.redlines[chi.URLParam(r, "id")]
	out := make([]domain.Redline, 0, len(list))
	for _, rl := range list {
		out = append(out, rl.Clone())
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) audit(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, []domain.AuditEntry{{
		ID:           uuid.NewString(),
		Action:       "validate_connection",
		UserID:       "user-1",
		ConnectionID: chi.URLParam(r, "id"),
		Timestamp:    domain.NewServiceTime(time.Now().UTC()),
	}})
}

func (s *Server) myActivity(w http.ResponseWriter, r *http.Request) {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		limit = 50
	}
	entries := []domain.AuditEntry{}
	for i := 0; i < limit && i < 2; i++ {
		entries = append(entries, domain.AuditEntry{
			ID:        uuid.NewString(),
			Action:    "view_connection",
			UserID:    "user-1",
			Timestamp: domain.NewServiceTime(time.Now().UTC()),
		})
	}
	writeJSON(w, http.StatusOK, entries)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func (s *Server) generateRFI(w http.ResponseWriter, r *http.Request) {
	var req domain.RFIRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if strings.TrimSpace(req.Issue) == "" || req.ConnectionData == nil {
		writeDetail(w, http.StatusUnprocessableEntity, "connection_data and issue are required")
		return
	}
	s.mu.Lock()
	s.rfiRequests = append(s.rfiRequests, req)
	reason := s.rfiError
	s.rfiError = ""
	s.mu.Unlock()

	draft := domain.RFIDraft{Disclaimer: "AI-generated RFI draft. Review and edit before sending."}
	if reason != "" {
		draft.RFI = "RFI Generation Error: " + reason
	} else {
		draft.RFI = "RFI: " + req.ConnectionData.Name + " (" + string(req.ConnectionData.ConnectionType) + ")\n" +
			"Issue: " + req.Issue + "\n" +
			"Question: please confirm the intended resolution."
	}
	writeJSON(w, http.StatusOK, draft)
}
