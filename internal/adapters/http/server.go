package httpadapter

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/oapi-codegen/runtime"

	"sitewarden/internal/domain"
	"sitewarden/internal/logger"
	"sitewarden/internal/ports"
	"sitewarden/internal/services/reports"
	"sitewarden/internal/services/scanner"
	"sitewarden/internal/services/websites"
)

// Server exposes the scanner, websites and reports services over REST.
type Server struct {
	scanner  ports.Scanner
	websites ports.Websites
	reports  ports.Reports
	log      *logger.Logger
}

func New(scanner ports.Scanner, websites ports.Websites, reports ports.Reports, log *logger.Logger) *Server {
	return &Server{scanner: scanner, websites: websites, reports: reports, log: log.WithComponent("http")}
}

func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.getHealthz)
	r.Post("/websites", s.postWebsite)
	r.Get("/websites/{id}/scans", s.listWebsiteScans)
	r.Get("/websites/{id}/report", s.getWebsiteReport)
	r.Post("/scans", s.postScan)
	r.Get("/scans/{id}", s.getScan)
	return r
}

type websiteRequest struct {
	URL    string  `json:"url"`
	UserID string  `json:"userId"`
	APIKey *string `json:"apiKey,omitempty"`
}

type scanAccepted struct {
	ScanID string `json:"scanId"`
}

func (s *Server) getHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) postWebsite(w http.ResponseWriter, r *http.Request) {
	var body websiteRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, &requestError{code: http.StatusBadRequest, msg: "invalid request body"})
		return
	}
	site, err := s.websites.Register(r.Context(), body.URL, body.UserID, body.APIKey)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, site)
}

// postScan runs the scan inline when wait=true, otherwise queues it for the
// background workers.
func (s *Server) postScan(w http.ResponseWriter, r *http.Request) {
	var wait *bool
	if err := runtime.BindQueryParameter("form", true, false, "wait", r.URL.Query(), &wait); err != nil {
		writeError(w, &requestError{code: http.StatusBadRequest, msg: "invalid wait parameter: " + err.Error()})
		return
	}
	var req domain.ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, &requestError{code: http.StatusBadRequest, msg: "invalid request body"})
		return
	}

	if wait != nil && *wait {
		rec, err := s.scanner.Scan(r.Context(), req)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
		return
	}
	id, err := s.scanner.Enqueue(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, scanAccepted{ScanID: id})
}

func (s *Server) getScan(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	rec, err := s.scanner.Get(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) listWebsiteScans(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var limit *int
	if err := runtime.BindQueryParameter("form", true, false, "limit", r.URL.Query(), &limit); err != nil {
		writeError(w, &requestError{code: http.StatusBadRequest, msg: "invalid limit parameter: " + err.Error()})
		return
	}
	n := 0
	if limit != nil {
		n = *limit
	}
	recs, err := s.scanner.List(r.Context(), id, n)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) getWebsiteReport(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	rep, err := s.reports.Latest(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func pathID(w http.ResponseWriter, r *http.Request) (string, bool) {
	var id string
	err := runtime.BindStyledParameterWithOptions("simple", "id", chi.URLParam(r, "id"), &id,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		writeError(w, &requestError{code: http.StatusBadRequest, msg: "invalid id parameter: " + err.Error()})
		return "", false
	}
	return id, true
}

// fail maps service errors onto status codes. Anything unrecognised is a 500
// and gets logged.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.log.LogError(r.Context(), err, "http."+r.Method+" "+r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()))
	}
	writeError(w, &requestError{code: code, msg: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, scanner.ErrInvalidURL),
		errors.Is(err, websites.ErrNoOwner):
		return http.StatusBadRequest
	case errors.Is(err, scanner.ErrWebsiteNotFound),
		errors.Is(err, websites.ErrNotFound),
		errors.Is(err, reports.ErrNotFound),
		errors.Is(err, ports.ErrNotFound):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debugw("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

type requestError struct {
	code int
	msg  string
}

func (e *requestError) Error() string { return e.msg }

func writeError(w http.ResponseWriter, err *requestError) {
	writeJSON(w, err.code, map[string]string{"error": err.msg})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
