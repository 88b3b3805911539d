// Package gateway serves pipeline templates and the operator catalogue over
// HTTP and provides the matching client used by the canvas.
package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"github.com/ravi-parthasarathy/pipecanvas/pkg/definition"
	"github.com/ravi-parthasarathy/pipecanvas/pkg/manifest"
	"github.com/ravi-parthasarathy/pipecanvas/pkg/store"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 4 << 20

// Server exposes a template store and a manifest source.
type Server struct {
	store     store.Store
	manifests manifest.Source
	validate  *validator.Validate
	router    *mux.Router
}

// NewServer wires the routes.
func NewServer(s store.Store, manifests manifest.Source) *Server {
	srv := &Server{
		store:     s,
		manifests: manifests,
		validate:  newValidator(),
		router:    mux.NewRouter(),
	}
	srv.routes()
	return srv
}

func (s *Server) routes() {
	s.router.Use(loggingMiddleware)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/operators", s.handleListOperators).Methods("GET")
	api.HandleFunc("/lint", s.handleLint).Methods("POST")

	api.HandleFunc("/pipelines", s.handleListTemplates).Methods("GET")
	api.HandleFunc("/pipelines", s.handleCreateTemplate).Methods("POST")
	api.HandleFunc("/pipelines/{id}", s.handleGetTemplate).Methods("GET")
	api.HandleFunc("/pipelines/{id}", s.handleUpdateTemplate).Methods("PUT")
	api.HandleFunc("/pipelines/{id}", s.handleDeleteTemplate).Methods("DELETE")
	api.HandleFunc("/pipelines/{id}/clone", s.handleCloneTemplate).Methods("POST")
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ─── Request bodies ──────────────────────────────────────────────────────────

type createRequest struct {
	Name        string                 `json:"name" validate:"required,max=255"`
	Description string                 `json:"description" validate:"max=2000"`
	Definition  *definition.Definition `json:"definition" validate:"required"`
}

type updateRequest struct {
	Name        *string                `json:"name" validate:"omitempty,min=1,max=255"`
	Description *string                `json:"description" validate:"omitempty,max=2000"`
	Definition  *definition.Definition `json:"definition"`
}

type lintRequest struct {
	Definition *definition.Definition `json:"definition" validate:"required"`
}

type lintResponse struct {
	Issues []definition.Issue `json:"issues"`
}

type errorResponse struct {
	Error  string             `json:"error"`
	Issues []definition.Issue `json:"issues,omitempty"`
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ─── Handlers ────────────────────────────────────────────────────────────────

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListOperators(w http.ResponseWriter, r *http.Request) {
	ms, err := s.manifests.Manifests(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("failed to list operators: %w", err))
		return
	}
	if ms == nil {
		ms = []manifest.Manifest{}
	}
	writeJSON(w, http.StatusOK, ms)
}

func (s *Server) handleLint(w http.ResponseWriter, r *http.Request) {
	var req lintRequest
	if !s.decode(w, r, &req) {
		return
	}
	ms, err := s.manifests.Manifests(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("failed to list operators: %w", err))
		return
	}
	issues := definition.Lint(req.Definition, manifest.NewRegistry(ms...))
	if issues == nil {
		issues = []definition.Issue{}
	}
	writeJSON(w, http.StatusOK, lintResponse{Issues: issues})
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	ts, err := s.store.List(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if ts == nil {
		ts = []definition.Template{}
	}
	writeJSON(w, http.StatusOK, ts)
}

func (s *Server) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if !s.decode(w, r, &req) {
		return
	}
	if !checkStructure(w, req.Definition) {
		return
	}
	t, err := s.store.Create(r.Context(), req.Name, req.Description, req.Definition)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := s.store.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleUpdateTemplate(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Definition != nil && !checkStructure(w, req.Definition) {
		return
	}
	t, err := s.store.Update(r.Context(), mux.Vars(r)["id"], store.Update{
		Name:        req.Name,
		Description: req.Description,
		Definition:  req.Definition,
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCloneTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := s.store.Clone(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// decode reads and validates a JSON body, writing a 400 on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, len(verrs))
			for i, fe := range verrs {
				msgs[i] = fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
			}
			err = errors.New(strings.Join(msgs, "; "))
		}
		writeError(w, http.StatusBadRequest, fmt.Errorf("validation failed: %w", err))
		return false
	}
	return true
}

// checkStructure rejects definitions that would corrupt the stored document.
func checkStructure(w http.ResponseWriter, d *definition.Definition) bool {
	issues := definition.Validate(d)
	if len(issues) == 0 {
		return true
	}
	writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
		Error:  "pipeline definition invalid",
		Issues: issues,
	})
	return false
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, store.ErrReadOnly):
		writeError(w, http.StatusForbidden, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
