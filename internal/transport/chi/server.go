// Package chi exposes the document question-answering pipeline over
// HTTP: a server-rendered form plus JSON endpoints for ingesting a
// source and asking questions against it.
package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kestrel-labs/docqa/internal/domain"
	"github.com/kestrel-labs/docqa/internal/loader"
	"github.com/kestrel-labs/docqa/internal/session"
	askuc "github.com/kestrel-labs/docqa/internal/usecase/ask"
	healthuc "github.com/kestrel-labs/docqa/internal/usecase/health"
	ingestuc "github.com/kestrel-labs/docqa/internal/usecase/ingest"
)

// sessionCookie names the cookie carrying the session ID.
const sessionCookie = "docqa_session"

// errorCode is a stable machine-readable error identifier.
type errorCode string

const (
	codeBadRequest         errorCode = "bad_request"
	codeUnsupportedFormat  errorCode = "unsupported_format"
	codeParseFailed        errorCode = "parse_failed"
	codeFetchFailed        errorCode = "fetch_failed"
	codeEmbeddingProvider  errorCode = "embedding_provider_error"
	codeGenerationError    errorCode = "generation_error"
	codeIndexNotReady      errorCode = "index_not_ready"
	codeSessionNotFound    errorCode = "session_not_found"
	codeIngestSuperseded   errorCode = "ingest_superseded"
	codeRequestTooLarge    errorCode = "request_too_large"
	codeInternalError      errorCode = "internal_error"
)

// errorResponse is the JSON error body.
type errorResponse struct {
	Code    errorCode `json:"code"`
	Message string    `json:"message"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server wires the pipeline usecases to HTTP handlers.
type Server struct {
	ingest         *ingestuc.Service
	ask            *askuc.Service
	health         *healthuc.Service
	sessions       *session.Manager
	maxUploadBytes int64
	logger         *zap.Logger
	errorHandlers  []errorHandler
}

// NewServer creates the HTTP server over the pipeline services.
func NewServer(
	ingest *ingestuc.Service,
	ask *askuc.Service,
	health *healthuc.Service,
	sessions *session.Manager,
	maxUploadBytes int64,
	logger *zap.Logger,
) *Server {
	s := &Server{
		ingest:         ingest,
		ask:            ask,
		health:         health,
		sessions:       sessions,
		maxUploadBytes: maxUploadBytes,
		logger:         logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrUnsupportedFormat, http.StatusBadRequest, codeUnsupportedFormat),
		sentinelHandler(domain.ErrEmptyQuestion, http.StatusBadRequest, codeBadRequest),
		sentinelHandler(domain.ErrParse, http.StatusUnprocessableEntity, codeParseFailed),
		sentinelHandler(domain.ErrEmptyDocument, http.StatusUnprocessableEntity, codeParseFailed),
		sentinelHandler(domain.ErrFetch, http.StatusBadGateway, codeFetchFailed),
		sentinelHandler(domain.ErrEmbeddingProvider, http.StatusBadGateway, codeEmbeddingProvider),
		sentinelHandler(domain.ErrGeneration, http.StatusBadGateway, codeGenerationError),
		sentinelHandler(domain.ErrIndexNotReady, http.StatusConflict, codeIndexNotReady),
		sentinelHandler(domain.ErrIngestSuperseded, http.StatusConflict, codeIngestSuperseded),
		sentinelHandler(domain.ErrSessionNotFound, http.StatusNotFound, codeSessionNotFound),
	}
	return s
}

// Routes registers all handlers on the router.
func (s *Server) Routes(r chi.Router) {
	r.Get("/", s.Index)
	r.Post("/ingest", s.Ingest)
	r.Post("/ask", s.Ask)
	r.Get("/healthz", s.Health)
	r.Get("/metrics", s.Metrics)
}

// Index handles GET /: the upload-and-ask form with session status.
func (s *Server) Index(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)
	source, kind, chunks, ready := sess.Status()

	renderPage(w, http.StatusOK, pageData{
		Ready:  ready,
		Source: source,
		Kind:   string(kind),
		Chunks: chunks,
	})
}

// Ingest handles POST /ingest: multipart file upload or url form field.
func (s *Server) Ingest(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)

	src, ok := s.parseSource(w, r)
	if !ok {
		return
	}

	res, err := s.ingest.Ingest(r.Context(), sess, src)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	if wantsHTML(r) {
		renderPage(w, http.StatusOK, pageData{
			Ready:  true,
			Source: res.Source,
			Kind:   string(res.Kind),
			Chunks: res.Chunks,
			Notice: "Source ingested. Ask away.",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"source": res.Source,
		"kind":   res.Kind,
		"chunks": res.Chunks,
		"tokens": res.Tokens,
	})
}

// Ask handles POST /ask: answers the question form field from the
// session's ingested source.
func (s *Server) Ask(w http.ResponseWriter, r *http.Request) {
	sess := s.session(w, r)

	if err := r.ParseForm(); err != nil {
		s.writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid form body: "+err.Error())
		return
	}
	question := r.PostFormValue("question")

	res, err := s.ask.Ask(r.Context(), sess, question)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	if wantsHTML(r) {
		source, kind, chunks, ready := sess.Status()
		renderPage(w, http.StatusOK, pageData{
			Ready:     ready,
			Source:    source,
			Kind:      string(kind),
			Chunks:    chunks,
			Question:  question,
			Answer:    res.Answer.Text,
			Grounded:  res.Answer.Grounded,
			Citations: citationLabels(res.Answer.Citations),
		})
		return
	}

	type citationJSON struct {
		Source string `json:"source"`
		Index  int    `json:"index"`
		Offset int    `json:"offset"`
	}
	citations := make([]citationJSON, len(res.Answer.Citations))
	for i, c := range res.Answer.Citations {
		citations[i] = citationJSON{Source: c.Source, Index: c.Index, Offset: c.Offset}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"answer":    res.Answer.Text,
		"grounded":  res.Answer.Grounded,
		"citations": citations,
		"source":    res.Source,
		"retrieved": res.Retrieved,
	})
}

// Health handles GET /healthz.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, map[string]any{
		"status": report.Status,
		"checks": report.Checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// session resolves the request's session from the cookie, creating one
// (and setting the cookie) when absent or expired.
func (s *Server) session(w http.ResponseWriter, r *http.Request) *session.Session {
	var id string
	if c, err := r.Cookie(sessionCookie); err == nil {
		id = c.Value
	}

	sess := s.sessions.GetOrCreate(id)
	if sess.ID != id {
		http.SetCookie(w, &http.Cookie{
			Name:     sessionCookie,
			Value:    sess.ID,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return sess
}

// parseSource extracts the ingestion source from a multipart upload or
// a url form field. Writes the error response itself on failure.
func (s *Server) parseSource(w http.ResponseWriter, r *http.Request) (loader.Source, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)

	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "multipart/form-data") {
		if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				s.writeError(w, http.StatusRequestEntityTooLarge, codeRequestTooLarge, "Upload too large")
				return loader.Source{}, false
			}
			s.writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid multipart body: "+err.Error())
			return loader.Source{}, false
		}

		if file, header, err := r.FormFile("file"); err == nil {
			defer func() { _ = file.Close() }()
			data, err := io.ReadAll(file)
			if err != nil {
				s.writeError(w, http.StatusBadRequest, codeBadRequest, "Failed to read upload: "+err.Error())
				return loader.Source{}, false
			}
			return loader.Source{Name: header.Filename, Data: data}, true
		}
		if url := r.FormValue("url"); url != "" {
			return loader.Source{URL: url}, true
		}
	} else {
		if err := r.ParseForm(); err != nil {
			s.writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid form body: "+err.Error())
			return loader.Source{}, false
		}
		if url := r.PostFormValue("url"); url != "" {
			return loader.Source{URL: url}, true
		}
	}

	s.writeError(w, http.StatusBadRequest, codeBadRequest, "Provide a file upload or a url field")
	return loader.Source{}, false
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	if wantsHTML(r) {
		s.renderError(w, r, err)
		return
	}
	s.handleDomainError(w, err)
}

// renderError re-renders the form with the error message for browser
// requests; the status code still follows the sentinel mapping.
func (s *Server) renderError(w http.ResponseWriter, r *http.Request, err error) {
	rec := statusRecorder{header: make(http.Header)}
	s.handleDomainError(&rec, err)

	var sess *session.Session
	if c, cerr := r.Cookie(sessionCookie); cerr == nil {
		sess, _ = s.sessions.Get(c.Value)
	}

	data := pageData{Error: safeDomainMessage(err)}
	if sess != nil {
		source, kind, chunks, ready := sess.Status()
		data.Ready = ready
		data.Source = source
		data.Kind = string(kind)
		data.Chunks = chunks
	}
	renderPage(w, rec.status, data)
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	s.writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}

func (s *Server) writeError(w http.ResponseWriter, status int, code errorCode, message string) {
	writeError(w, status, code, message)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code errorCode, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrUnsupportedFormat,
		domain.ErrFetch,
		domain.ErrParse,
		domain.ErrEmptyDocument,
		domain.ErrEmptyQuestion,
		domain.ErrEmbeddingProvider,
		domain.ErrGeneration,
		domain.ErrIndexNotReady,
		domain.ErrIngestSuperseded,
		domain.ErrSessionNotFound,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code errorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// wantsHTML reports whether the client is a browser form submission
// rather than an API caller.
func wantsHTML(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "text/html")
}

func citationLabels(cs []domain.Citation) []string {
	labels := make([]string, len(cs))
	for i, c := range cs {
		labels[i] = fmt.Sprintf("%s (chunk %d)", c.Source, c.Index+1)
	}
	return labels
}

// statusRecorder captures the status code the sentinel mapping would
// have written, so HTML error pages reuse the same codes.
type statusRecorder struct {
	header http.Header
	status int
}

func (r *statusRecorder) Header() http.Header         { return r.header }
func (r *statusRecorder) Write(b []byte) (int, error) { return len(b), nil }
func (r *statusRecorder) WriteHeader(status int)      { r.status = status }
