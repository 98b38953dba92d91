package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jjudge-oj/problemgen/internal/services"
	"github.com/jjudge-oj/problemgen/internal/store"
	"go.uber.org/zap"
)

// TestcaseHandler serves the per-problem testcase set.
type TestcaseHandler struct {
	testcaseService *services.TestcaseService
	logger          *zap.Logger
}

func NewTestcaseHandler(testcaseService *services.TestcaseService, logger *zap.Logger) *TestcaseHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TestcaseHandler{testcaseService: testcaseService, logger: logger}
}

// TestcaseRouter registers testcase routes. Every route requires
// authentication.
func TestcaseRouter(r chi.Router, handler *TestcaseHandler, authMiddleware func(http.Handler) http.Handler) {
	r.Use(authMiddleware)

	r.Route("/{problemID}", func(r chi.Router) {
		r.Post("/", handler.Generate)
		r.Get("/", handler.Get)
		r.Delete("/", handler.Delete)
		r.Put("/regenerate", handler.Regenerate)
		r.Get("/archive", handler.Archive)
	})
}

func (h *TestcaseHandler) Generate(w http.ResponseWriter, r *http.Request) {
	owner, problemID, ok := h.ownerAndProblem(w, r)
	if !ok {
		return
	}

	set, created, err := h.testcaseService.Generate(r.Context(), owner, problemID)
	if err != nil {
		h.writeError(w, err, "problem not found", "failed to generate test cases")
		return
	}
	if !created {
		writeData(w, http.StatusOK, "Test cases already exist", set)
		return
	}
	writeData(w, http.StatusCreated, "Test cases generated", set)
}

func (h *TestcaseHandler) Regenerate(w http.ResponseWriter, r *http.Request) {
	owner, problemID, ok := h.ownerAndProblem(w, r)
	if !ok {
		return
	}

	set, err := h.testcaseService.Regenerate(r.Context(), owner, problemID)
	if err != nil {
		h.writeError(w, err, "problem not found", "failed to regenerate test cases")
		return
	}
	writeData(w, http.StatusOK, "Test cases regenerated", set)
}

func (h *TestcaseHandler) Get(w http.ResponseWriter, r *http.Request) {
	owner, problemID, ok := h.ownerAndProblem(w, r)
	if !ok {
		return
	}

	set, err := h.testcaseService.Get(r.Context(), owner, problemID)
	if err != nil {
		h.writeError(w, err, "test cases not found", "failed to fetch test cases")
		return
	}
	writeData(w, http.StatusOK, "", set)
}

func (h *TestcaseHandler) Delete(w http.ResponseWriter, r *http.Request) {
	owner, problemID, ok := h.ownerAndProblem(w, r)
	if !ok {
		return
	}

	if err := h.testcaseService.Delete(r.Context(), owner, problemID); err != nil {
		h.writeError(w, err, "test cases not found", "failed to delete test cases")
		return
	}
	writeData(w, http.StatusOK, "Test cases deleted", nil)
}

// Archive streams the stored tar.gz of the set.
func (h *TestcaseHandler) Archive(w http.ResponseWriter, r *http.Request) {
	owner, problemID, ok := h.ownerAndProblem(w, r)
	if !ok {
		return
	}

	rc, set, err := h.testcaseService.Archive(r.Context(), owner, problemID)
	if err != nil {
		if errors.Is(err, services.ErrArchiveUnavailable) {
			writeError(w, http.StatusNotFound, "archive not found")
			return
		}
		h.writeError(w, err, "test cases not found", "failed to fetch archive")
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/gzip")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.tar.gz"`, problemID))
	if set.ArchiveSHA256 != "" {
		w.Header().Set("X-Archive-SHA256", set.ArchiveSHA256)
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn("archive stream interrupted", zap.String("problem_id", problemID), zap.Error(err))
	}
}

func (h *TestcaseHandler) ownerAndProblem(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	owner, err := ownerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return "", "", false
	}
	problemID, err := parseIDParam(r, "problemID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", "", false
	}
	return owner, problemID, true
}

func (h *TestcaseHandler) writeError(w http.ResponseWriter, err error, notFound, message string) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, notFound)
		return
	}
	h.logger.Error(message, zap.Error(err))
	writeError(w, http.StatusInternalServerError, message)
}
