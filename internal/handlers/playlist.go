package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/intprep/apiserver/internal/services"
	"github.com/intprep/apiserver/types"
	"go.uber.org/zap"
)

type PlaylistHandler struct {
	playlistService *services.PlaylistService
	validator       *validator.Validate
	logger          *zap.Logger
}

func NewPlaylistHandler(playlistService *services.PlaylistService, logger *zap.Logger) *PlaylistHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PlaylistHandler{
		playlistService: playlistService,
		validator:       validator.New(),
		logger:          logger,
	}
}

// PlaylistRouter registers /playlists routes. Every route requires auth.
func PlaylistRouter(r chi.Router, handler *PlaylistHandler, authMiddleware func(http.Handler) http.Handler) {
	r.Use(authMiddleware)
	r.Get("/", handler.List)
	r.Post("/", handler.Create)
	r.Route("/{playlistID}", func(r chi.Router) {
		r.Get("/", handler.Get)
		r.Delete("/", handler.Delete)
		r.Post("/problems", handler.AddProblems)
		r.Delete("/problems", handler.RemoveProblems)
	})
}

func (h *PlaylistHandler) List(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	playlists, err := h.playlistService.List(r.Context(), user.ID)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "playlist not found", "failed to fetch playlists")
		return
	}
	if playlists == nil {
		playlists = []types.Playlist{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"playlists": playlists})
}

func (h *PlaylistHandler) Create(w http.ResponseWriter, r *http.Request) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req PlaylistRequest
	if err := decodeJSON(r, h.validator, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	playlist, err := h.playlistService.Create(r.Context(), user.ID, req.Name, req.Description)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "playlist not found", "failed to create playlist")
		return
	}
	writeJSON(w, http.StatusCreated, playlist)
}

func (h *PlaylistHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, id, ok := h.playlistTarget(w, r)
	if !ok {
		return
	}

	playlist, err := h.playlistService.Get(r.Context(), user.ID, id)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "playlist not found", "failed to fetch playlist")
		return
	}
	writeJSON(w, http.StatusOK, playlist)
}

func (h *PlaylistHandler) Delete(w http.ResponseWriter, r *http.Request) {
	user, id, ok := h.playlistTarget(w, r)
	if !ok {
		return
	}

	if err := h.playlistService.Delete(r.Context(), user.ID, id); err != nil {
		writeServiceError(w, r, h.logger, err, "playlist not found", "failed to delete playlist")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *PlaylistHandler) AddProblems(w http.ResponseWriter, r *http.Request) {
	user, id, ok := h.playlistTarget(w, r)
	if !ok {
		return
	}

	var req PlaylistProblemsRequest
	if err := decodeJSON(r, h.validator, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	playlist, err := h.playlistService.AddProblems(r.Context(), user.ID, id, req.ProblemIDs)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "playlist or problem not found", "failed to add problems")
		return
	}
	writeJSON(w, http.StatusOK, playlist)
}

func (h *PlaylistHandler) RemoveProblems(w http.ResponseWriter, r *http.Request) {
	user, id, ok := h.playlistTarget(w, r)
	if !ok {
		return
	}

	var req PlaylistProblemsRequest
	if err := decodeJSON(r, h.validator, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	playlist, err := h.playlistService.RemoveProblems(r.Context(), user.ID, id, req.ProblemIDs)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "playlist not found", "failed to remove problems")
		return
	}
	writeJSON(w, http.StatusOK, playlist)
}

func (h *PlaylistHandler) playlistTarget(w http.ResponseWriter, r *http.Request) (types.User, int, bool) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return types.User{}, 0, false
	}
	id, err := parseIDParam(r, "playlistID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return types.User{}, 0, false
	}
	return user, id, true
}

type PlaylistRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"max=500"`
}

type PlaylistProblemsRequest struct {
	ProblemIDs []int `json:"problem_ids" validate:"required,min=1,dive,gt=0"`
}
