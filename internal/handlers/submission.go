package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/intprep/apiserver/internal/services"
	"github.com/intprep/apiserver/types"
	"go.uber.org/zap"
)

// SubmissionHandler serves a user's submission history.
type SubmissionHandler struct {
	submissionService *services.SubmissionService
	logger            *zap.Logger
}

func NewSubmissionHandler(submissionService *services.SubmissionService, logger *zap.Logger) *SubmissionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubmissionHandler{submissionService: submissionService, logger: logger}
}

// SubmissionRouter registers /submissions routes. Every route requires auth.
func SubmissionRouter(r chi.Router, handler *SubmissionHandler, authMiddleware func(http.Handler) http.Handler) {
	r.Use(authMiddleware)
	r.Get("/", handler.ListMine)
	r.Get("/counts-by-date", handler.CountsByDate)
	r.Get("/{submissionID}", handler.Get)
}

// ProblemSubmissionRouter registers the per-problem submission routes on the
// /problems router.
func ProblemSubmissionRouter(r chi.Router, handler *SubmissionHandler, authMiddleware func(http.Handler) http.Handler) {
	r.With(authMiddleware).Get("/{problemID}/submissions", handler.ListMineForProblem)
	r.With(authMiddleware).Get("/{problemID}/submissions/count", handler.CountForProblem)
}

func (h *SubmissionHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	submissions, err := h.submissionService.ListMine(r.Context(), user.ID)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "submission not found", "failed to fetch submissions")
		return
	}
	writeSubmissions(w, submissions)
}

func (h *SubmissionHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "submissionID"), 10, 64)
	if err != nil || id < 1 {
		writeError(w, http.StatusBadRequest, "invalid submission id")
		return
	}

	submission, err := h.submissionService.Get(r.Context(), user.ID, id)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "submission not found", "failed to fetch submission")
		return
	}
	writeJSON(w, http.StatusOK, SubmitResponse{Submission: submission})
}

func (h *SubmissionHandler) CountsByDate(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	values, err := h.submissionService.CountsByDate(r.Context(), user.ID)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "submission not found", "failed to count submissions")
		return
	}
	if values == nil {
		values = []types.DailyCount{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"values": values})
}

func (h *SubmissionHandler) ListMineForProblem(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	problemID, err := parseIDParam(r, "problemID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	submissions, err := h.submissionService.ListMineForProblem(r.Context(), user.ID, problemID)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "submission not found", "failed to fetch submissions")
		return
	}
	writeSubmissions(w, submissions)
}

func (h *SubmissionHandler) CountForProblem(w http.ResponseWriter, r *http.Request) {
	problemID, err := parseIDParam(r, "problemID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	count, err := h.submissionService.CountForProblem(r.Context(), problemID)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "problem not found", "failed to count submissions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": count})
}

func writeSubmissions(w http.ResponseWriter, submissions []types.Submission) {
	if submissions == nil {
		submissions = []types.Submission{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"submissions": submissions})
}
