package handlers

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/jjudge-oj/problemgen/internal/generator"
	"github.com/jjudge-oj/problemgen/internal/pipeline"
	"github.com/jjudge-oj/problemgen/internal/ratelimit"
	"github.com/jjudge-oj/problemgen/internal/services"
	"github.com/jjudge-oj/problemgen/internal/store"
	"github.com/jjudge-oj/problemgen/types"
	"go.uber.org/zap"
)

// RateLimiter limits problem creation per owner.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (ratelimit.Result, error)
}

// ProblemHandler provides HTTP handlers for problems.
type ProblemHandler struct {
	problemService  *services.ProblemService
	solutionService *services.SolutionService
	limiter         RateLimiter
	logger          *zap.Logger
}

// NewProblemHandler constructs a handler. limiter may be nil.
func NewProblemHandler(problemService *services.ProblemService, solutionService *services.SolutionService, limiter RateLimiter, logger *zap.Logger) *ProblemHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProblemHandler{
		problemService:  problemService,
		solutionService: solutionService,
		limiter:         limiter,
		logger:          logger,
	}
}

// ProblemRouter registers problem routes on the given router. Every route
// requires authentication.
func ProblemRouter(r chi.Router, handler *ProblemHandler, authMiddleware func(http.Handler) http.Handler) {
	r.Use(authMiddleware)

	r.With(handler.limitGeneration("create")).Post("/", handler.CreateProblem)
	r.Get("/history", handler.ListHistory)
	r.Get("/favorites", handler.ListFavorites)
	r.Route("/{problemID}", func(r chi.Router) {
		r.Get("/", handler.GetProblem)
		r.Delete("/", handler.DeleteProblem)
		r.Get("/status", handler.GetStatus)
		r.Put("/favorite", handler.ToggleFavorite)
		r.With(handler.limitGeneration("solution")).Post("/solution", handler.GenerateSolution)
	})
}

// CreateProblemRequest is the body of POST /problems.
type CreateProblemRequest struct {
	Topics     []string     `json:"topics" validate:"required,min=1,max=10,dive,required,max=100"`
	Rating     types.Rating `json:"rating" validate:"required"`
	Suggestion string       `json:"suggestion" validate:"max=2000"`
}

func (h *ProblemHandler) CreateProblem(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req CreateProblemRequest
	if err := decodeAndValidate(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	topics := make([]string, 0, len(req.Topics))
	for _, topic := range req.Topics {
		if topic = strings.TrimSpace(topic); topic != "" {
			topics = append(topics, topic)
		}
	}
	if len(topics) == 0 {
		writeError(w, http.StatusBadRequest, "topics is required")
		return
	}

	problem, err := h.problemService.Create(r.Context(), owner, pipeline.CreateRequest{
		Topics:     topics,
		Rating:     req.Rating.String(),
		Suggestion: strings.TrimSpace(req.Suggestion),
	})
	if err != nil {
		h.logger.Error("failed to create problem",
			zap.String("owner", owner),
			zap.String("error_class", generator.ClassName(err)),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, creationFailureMessage(err))
		return
	}

	writeData(w, http.StatusCreated, "Problem generated, validation in progress", problem)
}

func (h *ProblemHandler) GetProblem(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := h.ownerAndID(w, r)
	if !ok {
		return
	}

	problem, err := h.problemService.Get(r.Context(), owner, id)
	if err != nil {
		h.writeLookupError(w, err, "failed to fetch problem")
		return
	}
	writeData(w, http.StatusOK, "", problem)
}

func (h *ProblemHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := h.ownerAndID(w, r)
	if !ok {
		return
	}

	status, err := h.problemService.Status(r.Context(), owner, id)
	if err != nil {
		h.writeLookupError(w, err, "failed to fetch problem status")
		return
	}
	writeData(w, http.StatusOK, "", status)
}

func (h *ProblemHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	filter := types.ProblemFilter{}
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status := types.ValidationStatus(strings.ToLower(raw))
		if !status.IsValid() {
			writeError(w, http.StatusBadRequest, "invalid status")
			return
		}
		filter.Status = status
	}
	h.list(w, r, filter)
}

func (h *ProblemHandler) ListFavorites(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, types.ProblemFilter{FavoritesOnly: true})
}

func (h *ProblemHandler) list(w http.ResponseWriter, r *http.Request, filter types.ProblemFilter) {
	owner, err := ownerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	page, limit, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.problemService.List(r.Context(), owner, filter, page, limit)
	if err != nil {
		h.logger.Error("failed to list problems", zap.String("owner", owner), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list problems")
		return
	}
	writeData(w, http.StatusOK, "", result)
}

func (h *ProblemHandler) ToggleFavorite(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := h.ownerAndID(w, r)
	if !ok {
		return
	}

	problem, err := h.problemService.ToggleFavorite(r.Context(), owner, id)
	if err != nil {
		h.writeLookupError(w, err, "failed to update favorite")
		return
	}
	message := "Removed from favorites"
	if problem.IsFavorited {
		message = "Added to favorites"
	}
	writeData(w, http.StatusOK, message, problem)
}

func (h *ProblemHandler) DeleteProblem(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := h.ownerAndID(w, r)
	if !ok {
		return
	}

	if err := h.problemService.Delete(r.Context(), owner, id); err != nil {
		h.writeLookupError(w, err, "failed to delete problem")
		return
	}
	writeData(w, http.StatusOK, "Problem deleted", nil)
}

func (h *ProblemHandler) GenerateSolution(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := h.ownerAndID(w, r)
	if !ok {
		return
	}

	solution, err := h.solutionService.Generate(r.Context(), owner, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "problem not found")
			return
		}
		h.logger.Error("failed to generate solution",
			zap.String("owner", owner),
			zap.String("problem_id", id),
			zap.String("error_class", generator.ClassName(err)),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, generationFailureMessage("solution", err))
		return
	}
	writeData(w, http.StatusOK, "Solution generated", solution)
}

// limitGeneration applies the per-owner limit for one kind of AI call.
// Limiter errors fail open.
func (h *ProblemHandler) limitGeneration(action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if h.limiter == nil {
				next.ServeHTTP(w, r)
				return
			}
			owner, err := ownerFromContext(r.Context())
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			res, err := h.limiter.Allow(r.Context(), action+":"+owner)
			if err != nil {
				h.logger.Warn("rate limiter unavailable", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			if !res.Allowed {
				seconds := int(math.Ceil(res.RetryAfter.Seconds()))
				w.Header().Set("Retry-After", strconv.Itoa(seconds))
				writeError(w, http.StatusTooManyRequests, fmt.Sprintf("too many generation requests, retry in %ds", seconds))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (h *ProblemHandler) ownerAndID(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	owner, err := ownerFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return "", "", false
	}
	id, err := parseIDParam(r, "problemID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", "", false
	}
	return owner, id, true
}

func (h *ProblemHandler) writeLookupError(w http.ResponseWriter, err error, message string) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "problem not found")
		return
	}
	h.logger.Error(message, zap.Error(err))
	writeError(w, http.StatusInternalServerError, message)
}

func creationFailureMessage(err error) string {
	return generationFailureMessage("problem", err)
}

func generationFailureMessage(what string, err error) string {
	switch {
	case errors.Is(err, generator.ErrParse):
		return "failed to generate " + what + ": the AI produced unusable output"
	case errors.Is(err, generator.ErrProviderBlocked):
		return "failed to generate " + what + ": the AI provider blocked the request"
	case errors.Is(err, generator.ErrProvider):
		return "failed to generate " + what + ": the AI provider call failed"
	default:
		return "failed to generate " + what
	}
}
