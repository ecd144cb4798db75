package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/intprep/apiserver/internal/services"
	"github.com/intprep/apiserver/types"
	"go.uber.org/zap"
)

// ExecuteHandler runs and submits user code.
type ExecuteHandler struct {
	executionService *services.ExecutionService
	validator        *validator.Validate
	logger           *zap.Logger
}

func NewExecuteHandler(executionService *services.ExecutionService, logger *zap.Logger) *ExecuteHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExecuteHandler{
		executionService: executionService,
		validator:        validator.New(),
		logger:           logger,
	}
}

// ExecuteRouter registers the run and submit routes. Both require auth.
func ExecuteRouter(r chi.Router, handler *ExecuteHandler, authMiddleware func(http.Handler) http.Handler) {
	r.With(authMiddleware).Post("/run", handler.Run)
	r.With(authMiddleware).Post("/submit", handler.Submit)
}

// Run judges code against the supplied testcases without persisting anything.
func (h *ExecuteHandler) Run(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := decodeJSON(r, h.validator, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.executionService.Run(r.Context(), req.input())
	if err != nil {
		writeServiceError(w, r, h.logger, err, "not found", "failed to execute code")
		return
	}

	writeJSON(w, http.StatusOK, RunResponse{
		Status:      result.Status,
		TestsPassed: result.TestsPassed,
		TestsTotal:  result.TestsTotal,
		Results:     result.Results,
	})
}

// Submit judges code for a problem and stores the submission.
func (h *ExecuteHandler) Submit(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req SubmitRequest
	if err := decodeJSON(r, h.validator, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	submission, err := h.executionService.Submit(r.Context(), services.SubmitInput{
		RunInput:  req.input(),
		UserID:    user.ID,
		ProblemID: req.ProblemID,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err, "problem not found", "failed to save submission")
		return
	}

	writeJSON(w, http.StatusOK, SubmitResponse{Submission: submission})
}

type RunRequest struct {
	SourceCode      string   `json:"source_code" validate:"required"`
	LanguageID      int      `json:"language_id" validate:"required,gt=0"`
	Stdin           []string `json:"stdin" validate:"required,min=1"`
	ExpectedOutputs []string `json:"expected_outputs" validate:"required,min=1"`
}

func (req RunRequest) input() services.RunInput {
	return services.RunInput{
		SourceCode:      req.SourceCode,
		LanguageID:      req.LanguageID,
		Stdin:           req.Stdin,
		ExpectedOutputs: req.ExpectedOutputs,
	}
}

type SubmitRequest struct {
	RunRequest
	ProblemID int `json:"problem_id" validate:"required,gt=0"`
}

type RunResponse struct {
	Status      types.Verdict          `json:"status"`
	TestsPassed int                    `json:"tests_passed"`
	TestsTotal  int                    `json:"tests_total"`
	Results     []types.TestcaseResult `json:"results"`
}

type SubmitResponse struct {
	Submission types.Submission `json:"submission"`
}
