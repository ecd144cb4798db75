package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/intprep/apiserver/internal/judge"
	"github.com/intprep/apiserver/internal/services"
	"github.com/intprep/apiserver/internal/store"
	"github.com/intprep/apiserver/types"
	"go.uber.org/zap"
)

const (
	defaultPage     = 1
	defaultLimit    = 10
	maxLimit        = 100
	maxRequestBytes = 1 << 20
)

type contextKey string

const contextUserKey contextKey = "user"

// ErrorResponse is a simple error payload.
type ErrorResponse struct {
	Error string `json:"error"`
}

func withUser(ctx context.Context, user types.User) context.Context {
	return context.WithValue(ctx, contextUserKey, user)
}

func userFromContext(ctx context.Context) (types.User, bool) {
	user, ok := ctx.Value(contextUserKey).(types.User)
	if !ok || user.ID < 1 {
		return types.User{}, false
	}
	return user, true
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// decodeJSON reads a bounded JSON body into dst and runs struct validation.
func decodeJSON(r *http.Request, v *validator.Validate, dst any) error {
	body := io.LimitReader(r.Body, maxRequestBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		return errors.New("invalid request")
	}
	if err := v.Struct(dst); err != nil {
		return validationError(err)
	}
	return nil
}

func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return errors.New("invalid request")
	}
	fe := fieldErrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%s is required", fe.Field())
	case "min":
		return fmt.Errorf("%s must have at least %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Errorf("%s must have at most %s", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Errorf("%s must be one of %s", fe.Field(), fe.Param())
	default:
		return fmt.Errorf("%s is invalid", fe.Field())
	}
}

// writeServiceError maps a service error to a status code. notFound is the
// message used for store.ErrNotFound and fallback for unexpected failures.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error, notFound, fallback string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, notFound)
	case errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, "already exists")
	case errors.Is(err, services.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, services.ErrInvalidTestcases),
		errors.Is(err, services.ErrUnsupportedLanguage),
		errors.Is(err, services.ErrReferenceSolutionFailed),
		errors.Is(err, services.ErrInvalidBundle),
		errors.Is(err, services.ErrInvalidPlaylist):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, judge.ErrJudgeUnavailable),
		errors.Is(err, judge.ErrPollExhausted),
		errors.Is(err, context.DeadlineExceeded):
		logger.Error("judge request failed",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
		writeError(w, http.StatusBadGateway, "failed to execute code")
	default:
		logger.Error(fallback,
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

func parsePagination(r *http.Request) (page, limit, offset int, err error) {
	page = defaultPage
	limit = defaultLimit

	if raw := strings.TrimSpace(r.URL.Query().Get("page")); raw != "" {
		page, err = strconv.Atoi(raw)
		if err != nil || page < 1 {
			return 0, 0, 0, errors.New("invalid page")
		}
	}

	rawLimit := strings.TrimSpace(r.URL.Query().Get("limit"))
	if rawLimit == "" {
		rawLimit = strings.TrimSpace(r.URL.Query().Get("per_page"))
	}
	if rawLimit != "" {
		limit, err = strconv.Atoi(rawLimit)
		if err != nil || limit < 1 {
			return 0, 0, 0, errors.New("invalid limit")
		}
	}

	if limit > maxLimit {
		limit = maxLimit
	}

	offset = (page - 1) * limit
	return page, limit, offset, nil
}

func parseIDParam(r *http.Request, name string) (int, error) {
	id, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid %s", strings.TrimSuffix(name, "ID")+" id")
	}
	return id, nil
}
