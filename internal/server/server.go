package server

import (
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/goliatone/go-churnform/pkg/inference"
	"github.com/goliatone/go-churnform/pkg/openapi"
	"github.com/goliatone/go-churnform/pkg/orchestrator"
	"github.com/goliatone/go-churnform/pkg/resources"
	"github.com/goliatone/go-churnform/pkg/verdict"
)

const maxBodyBytes = 1 << 20

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the request and prediction logger.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// WithRenderer names the renderer used for HTML pages.
func WithRenderer(name string) Option {
	return func(s *Server) {
		s.renderer = name
	}
}

// WithCookie configures the session cookie.
func WithCookie(name string, secure bool) Option {
	return func(s *Server) {
		if name != "" {
			s.cookieName = name
		}
		s.cookieSecure = secure
	}
}

// WithAssets serves files under /assets/.
func WithAssets(files fs.FS) Option {
	return func(s *Server) {
		s.assets = files
	}
}

// WithOpenAPIOptions forwards options to the generated OpenAPI document.
func WithOpenAPIOptions(opts ...openapi.Option) Option {
	return func(s *Server) {
		s.apiOpts = append(s.apiOpts, opts...)
	}
}

// Server exposes the orchestrator over HTTP.
type Server struct {
	orch     *orchestrator.Orchestrator
	sessions *SessionStore
	log      *zap.SugaredLogger

	renderer     string
	cookieName   string
	cookieSecure bool
	assets       fs.FS
	apiOpts      []openapi.Option

	docOnce sync.Once
	doc     *openapi.Document
	docErr  error
}

// New wires the handlers around orch and sessions.
func New(orch *orchestrator.Orchestrator, sessions *SessionStore, opts ...Option) *Server {
	s := &Server{
		orch:       orch,
		sessions:   sessions,
		log:        zap.NewNop().Sugar(),
		cookieName: "churnform_session",
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Handler returns the routed, logged HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleForm)
	mux.HandleFunc("POST /predict", s.handlePredict)
	mux.HandleFunc("POST "+openapi.PredictPath, s.handleAPIPredict)
	mux.HandleFunc("GET "+openapi.SchemaPath, s.handleAPISchema)
	mux.HandleFunc("GET /openapi.json", s.handleOpenAPI)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if s.assets != nil {
		mux.Handle("GET /assets/", http.StripPrefix("/assets/", http.FileServer(http.FS(s.assets))))
	}
	return s.logRequests(mux)
}

func (s *Server) handleForm(w http.ResponseWriter, r *http.Request) {
	session, err := s.session(w, r)
	if err != nil {
		s.internalError(w, err)
		return
	}
	session.Lock()
	defer session.Unlock()

	req := s.pageRequest(r)
	if state, err := session.State(s.orch.NewState); err == nil {
		req.State = state
	}
	resp, err := s.orch.RenderForm(r.Context(), req)
	if err != nil {
		s.internalError(w, err)
		return
	}
	s.writePage(w, resp)
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form payload", http.StatusBadRequest)
		return
	}
	session, err := s.session(w, r)
	if err != nil {
		s.internalError(w, err)
		return
	}
	session.Lock()
	defer session.Unlock()

	values := make(map[string]string, len(r.PostForm))
	for name := range r.PostForm {
		values[name] = r.PostForm.Get(name)
	}
	req := s.pageRequest(r)
	req.Values = values
	if state, err := session.State(s.orch.NewState); err == nil {
		req.State = state
	}

	resp, err := s.orch.Submit(r.Context(), req)
	if err != nil {
		s.internalError(w, err)
		return
	}
	if resp.Result != nil {
		s.logPrediction(*resp.Result)
	}
	var predErr *inference.PredictionError
	if errors.As(resp.Err, &predErr) {
		s.log.Warnw("prediction failed", "stage", predErr.Stage, "error", predErr.Err)
	}
	s.writePage(w, resp)
}

type apiError struct {
	Error string `json:"error"`
}

type apiVerdict struct {
	Label int `json:"label"`
	verdict.Verdict
}

func (s *Server) handleAPIPredict(w http.ResponseWriter, r *http.Request) {
	doc, err := s.document()
	if err != nil {
		s.writeJSON(w, statusFor(err), apiError{Error: err.Error()})
		return
	}
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, apiError{Error: "read body: " + err.Error()})
		return
	}
	record, err := doc.DecodePredictRequest(payload)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, apiError{Error: err.Error()})
		return
	}

	result, v, err := s.orch.Predict(r.Context(), record)
	if err != nil {
		var predErr *inference.PredictionError
		if errors.As(err, &predErr) {
			s.log.Warnw("prediction failed", "stage", predErr.Stage, "error", predErr.Err)
		}
		s.writeJSON(w, statusFor(err), apiError{Error: err.Error()})
		return
	}
	s.logPrediction(result)
	s.writeJSON(w, http.StatusOK, apiVerdict{Label: int(result.Label), Verdict: v})
}

func (s *Server) handleAPISchema(w http.ResponseWriter, _ *http.Request) {
	res, err := s.orch.Resources()
	if err != nil {
		s.writeJSON(w, statusFor(err), apiError{Error: err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, res.Schema.Fields())
}

func (s *Server) handleOpenAPI(w http.ResponseWriter, _ *http.Request) {
	doc, err := s.document()
	if err != nil {
		s.writeJSON(w, statusFor(err), apiError{Error: err.Error()})
		return
	}
	body, err := doc.MarshalJSON()
	if err != nil {
		s.internalError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}

func (s *Server) document() (*openapi.Document, error) {
	res, err := s.orch.Resources()
	if err != nil {
		return nil, err
	}
	s.docOnce.Do(func() {
		s.doc, s.docErr = openapi.NewDocument(res.Schema, s.apiOpts...)
	})
	return s.doc, s.docErr
}

func (s *Server) pageRequest(r *http.Request) orchestrator.Request {
	return orchestrator.Request{
		Renderer:     s.renderer,
		ThemeVariant: r.URL.Query().Get("theme"),
	}
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*Session, error) {
	var id string
	if cookie, err := r.Cookie(s.cookieName); err == nil {
		id = cookie.Value
	}
	session, created, err := s.sessions.Get(id)
	if err != nil {
		return nil, err
	}
	if created {
		http.SetCookie(w, &http.Cookie{
			Name:     s.cookieName,
			Value:    session.ID,
			Path:     "/",
			HttpOnly: true,
			Secure:   s.cookieSecure,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return session, nil
}

func (s *Server) writePage(w http.ResponseWriter, resp *orchestrator.Response) {
	status := http.StatusOK
	if resp.Err != nil {
		status = statusFor(resp.Err)
		var loadErr *resources.ResourceLoadError
		if errors.As(resp.Err, &loadErr) {
			status = http.StatusInternalServerError
		}
	}
	w.Header().Set("Content-Type", resp.ContentType)
	w.WriteHeader(status)
	_, _ = w.Write(resp.Body)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Errorw("encode response", "error", err)
	}
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	s.log.Errorw("request failed", "error", err)
	http.Error(w, "internal server error", http.StatusInternalServerError)
}

func (s *Server) logPrediction(result inference.Result) {
	s.log.Infow("prediction", "label", result.Label.String(), "probability", result.Probability)
}

// statusFor maps the error kinds to HTTP statuses: resource failures are
// 503, prediction failures 422 and anything else is an input error.
func statusFor(err error) int {
	var (
		loadErr *resources.ResourceLoadError
		predErr *inference.PredictionError
	)
	switch {
	case errors.As(err, &loadErr):
		return http.StatusServiceUnavailable
	case errors.As(err, &predErr):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadRequest
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Infow("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}
