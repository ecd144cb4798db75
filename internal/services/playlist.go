package services

import (
	"context"
	"errors"
	"strings"

	"github.com/intprep/apiserver/types"
)

// ErrInvalidPlaylist is returned for playlist input that fails validation.
var ErrInvalidPlaylist = errors.New("invalid playlist")

// PlaylistRepository defines persistence operations for playlists.
type PlaylistRepository interface {
	Create(ctx context.Context, playlist types.Playlist) (types.Playlist, error)
	ListByUser(ctx context.Context, userID int) ([]types.Playlist, error)
	GetForUser(ctx context.Context, id, userID int) (types.Playlist, error)
	DeleteForUser(ctx context.Context, id, userID int) error
	AddProblems(ctx context.Context, playlistID int, problemIDs []int) (int, error)
	RemoveProblems(ctx context.Context, playlistID int, problemIDs []int) (int, error)
}

// PlaylistService manages per-user problem playlists.
type PlaylistService struct {
	repo PlaylistRepository
}

func NewPlaylistService(repo PlaylistRepository) *PlaylistService {
	return &PlaylistService{repo: repo}
}

func (s *PlaylistService) Create(ctx context.Context, userID int, name, description string) (types.Playlist, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return types.Playlist{}, ErrInvalidPlaylist
	}
	return s.repo.Create(ctx, types.Playlist{
		UserID:      userID,
		Name:        name,
		Description: strings.TrimSpace(description),
	})
}

func (s *PlaylistService) List(ctx context.Context, userID int) ([]types.Playlist, error) {
	return s.repo.ListByUser(ctx, userID)
}

func (s *PlaylistService) Get(ctx context.Context, userID, id int) (types.Playlist, error) {
	return s.repo.GetForUser(ctx, id, userID)
}

func (s *PlaylistService) Delete(ctx context.Context, userID, id int) error {
	return s.repo.DeleteForUser(ctx, id, userID)
}

// AddProblems links problems to one of the user's playlists and returns the
// playlist. Problems already present are skipped.
func (s *PlaylistService) AddProblems(ctx context.Context, userID, id int, problemIDs []int) (types.Playlist, error) {
	if len(problemIDs) == 0 {
		return types.Playlist{}, ErrInvalidPlaylist
	}
	if _, err := s.repo.GetForUser(ctx, id, userID); err != nil {
		return types.Playlist{}, err
	}
	if _, err := s.repo.AddProblems(ctx, id, problemIDs); err != nil {
		return types.Playlist{}, err
	}
	return s.repo.GetForUser(ctx, id, userID)
}

// RemoveProblems unlinks problems from one of the user's playlists.
func (s *PlaylistService) RemoveProblems(ctx context.Context, userID, id int, problemIDs []int) (types.Playlist, error) {
	if len(problemIDs) == 0 {
		return types.Playlist{}, ErrInvalidPlaylist
	}
	if _, err := s.repo.GetForUser(ctx, id, userID); err != nil {
		return types.Playlist{}, err
	}
	if _, err := s.repo.RemoveProblems(ctx, id, problemIDs); err != nil {
		return types.Playlist{}, err
	}
	return s.repo.GetForUser(ctx, id, userID)
}
