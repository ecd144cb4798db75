package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/intprep/apiserver/internal/services"
	"github.com/intprep/apiserver/types"
	"go.uber.org/zap"
)

const (
	maxMultipartMemory = 32 << 20
	maxBundleBytes     = 64 << 20
	formFieldBundle    = "bundle"
)

// BundleFile represents an uploaded testcase bundle.
type BundleFile struct {
	Filename string
	Data     []byte
}

// ProblemHandler provides HTTP handlers for problems.
type ProblemHandler struct {
	problemService *services.ProblemService
	validator      *validator.Validate
	logger         *zap.Logger
}

// NewProblemHandler constructs a handler with the provided service.
func NewProblemHandler(problemService *services.ProblemService, logger *zap.Logger) *ProblemHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProblemHandler{
		problemService: problemService,
		validator:      validator.New(),
		logger:         logger,
	}
}

// ProblemRouter registers problem routes on the given router. Routes under
// /{problemID} are registered by pattern so other handlers can add siblings.
func ProblemRouter(r chi.Router, handler *ProblemHandler, authMiddleware func(http.Handler) http.Handler) {
	r.Get("/", handler.ListProblems)
	r.With(authMiddleware, RequireAdmin).Post("/", handler.CreateProblem)
	r.With(authMiddleware).Get("/solved", handler.ListSolved)

	r.Get("/{problemID}", handler.GetProblem)
	r.With(authMiddleware).Put("/{problemID}", handler.UpdateProblem)
	r.With(authMiddleware).Delete("/{problemID}", handler.DeleteProblem)
	r.With(authMiddleware, RequireAdmin).Post("/{problemID}/testcases/bundle", handler.ImportBundle)
}

func (h *ProblemHandler) ListProblems(w http.ResponseWriter, r *http.Request) {
	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	items, total, err := h.problemService.List(r.Context(), offset, limit)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "problem not found", "failed to list problems")
		return
	}

	writeJSON(w, http.StatusOK, ProblemListResponse{
		Items: items,
		Page:  page,
		Limit: limit,
		Total: total,
	})
}

func (h *ProblemHandler) GetProblem(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "problemID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	problem, err := h.problemService.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "problem not found", "failed to fetch problem")
		return
	}

	writeJSON(w, http.StatusOK, problem)
}

func (h *ProblemHandler) ListSolved(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	problems, err := h.problemService.ListSolved(r.Context(), user.ID)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "problem not found", "failed to fetch solved problems")
		return
	}
	if problems == nil {
		problems = []types.Problem{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"problems": problems})
}

func (h *ProblemHandler) CreateProblem(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req ProblemRequest
	if err := decodeJSON(r, h.validator, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := h.problemService.Create(r.Context(), user, req.toProblem())
	if err != nil {
		writeServiceError(w, r, h.logger, err, "problem not found", "failed to create problem")
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

func (h *ProblemHandler) UpdateProblem(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := parseIDParam(r, "problemID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req ProblemRequest
	if err := decodeJSON(r, h.validator, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	problem := req.toProblem()
	problem.ID = id
	updated, err := h.problemService.Update(r.Context(), user, problem)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "problem not found", "failed to update problem")
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

func (h *ProblemHandler) DeleteProblem(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := parseIDParam(r, "problemID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.problemService.Delete(r.Context(), user, id); err != nil {
		writeServiceError(w, r, h.logger, err, "problem not found", "failed to delete problem")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ImportBundle replaces the problem's testcases with an uploaded tar.gz.
func (h *ProblemHandler) ImportBundle(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	id, err := parseIDParam(r, "problemID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBundleBytes+maxMultipartMemory)
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	bundle, err := parseBundleFile(r.MultipartForm)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := h.problemService.ImportTestcaseBundle(r.Context(), user, id, bundle.Filename, bundle.Data)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "problem not found", "failed to import testcase bundle")
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

// ProblemRequest is the JSON payload for creating or replacing a problem.
type ProblemRequest struct {
	Title              string                   `json:"title" validate:"required,min=3"`
	Description        string                   `json:"description" validate:"required,min=10"`
	Difficulty         types.Difficulty         `json:"difficulty" validate:"required,oneof=EASY MEDIUM HARD"`
	Tags               []string                 `json:"tags" validate:"required,min=1,dive,required"`
	CompanyTags        []string                 `json:"company_tags"`
	Constraints        string                   `json:"constraints"`
	Hints              string                   `json:"hints"`
	Editorial          string                   `json:"editorial"`
	Examples           map[string]types.Example `json:"examples"`
	Testcases          []types.Testcase         `json:"testcases" validate:"required,min=1"`
	CodeSnippets       map[string]string        `json:"code_snippets"`
	ReferenceSolutions map[string]string        `json:"reference_solutions" validate:"required,min=1"`
}

func (req ProblemRequest) toProblem() types.Problem {
	return types.Problem{
		Title:              strings.TrimSpace(req.Title),
		Description:        req.Description,
		Difficulty:         req.Difficulty,
		Tags:               req.Tags,
		CompanyTags:        req.CompanyTags,
		Constraints:        req.Constraints,
		Hints:              req.Hints,
		Editorial:          req.Editorial,
		Examples:           req.Examples,
		Testcases:          req.Testcases,
		CodeSnippets:       req.CodeSnippets,
		ReferenceSolutions: req.ReferenceSolutions,
	}
}

// ProblemListResponse is the paginated list response payload.
type ProblemListResponse struct {
	Items []types.Problem `json:"items"`
	Page  int             `json:"page"`
	Limit int             `json:"limit"`
	Total int             `json:"total"`
}

func parseBundleFile(form *multipart.Form) (BundleFile, error) {
	if form == nil {
		return BundleFile{}, errors.New("missing form data")
	}

	files := form.File[formFieldBundle]
	if len(files) == 0 {
		return BundleFile{}, errors.New("bundle file is required")
	}
	if len(files) > 1 {
		return BundleFile{}, errors.New("only one bundle file is allowed")
	}

	fileHeader := files[0]
	file, err := fileHeader.Open()
	if err != nil {
		return BundleFile{}, fmt.Errorf("failed to read bundle file: %w", err)
	}

	data, err := readFileLimited(file, maxBundleBytes)
	_ = file.Close()
	if err != nil {
		return BundleFile{}, err
	}

	return BundleFile{
		Filename: fileHeader.Filename,
		Data:     data,
	}, nil
}

func readFileLimited(reader io.Reader, limit int64) ([]byte, error) {
	limited := io.LimitReader(reader, limit+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, errors.New("failed to read upload")
	}
	if int64(len(data)) > limit {
		return nil, errors.New("uploaded file too large")
	}
	return data, nil
}
