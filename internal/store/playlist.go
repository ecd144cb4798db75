package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/intprep/apiserver/types"
	"github.com/lib/pq"
)

// PlaylistRepository handles persistence for playlists and their problems.
type PlaylistRepository struct {
	db *sql.DB
}

func NewPlaylistRepository(db *sql.DB) *PlaylistRepository {
	return &PlaylistRepository{db: db}
}

// Create inserts a playlist. A second playlist with the same name for the
// same user returns ErrConflict.
func (r *PlaylistRepository) Create(ctx context.Context, playlist types.Playlist) (types.Playlist, error) {
	now := time.Now()
	playlist.CreatedAt = now
	playlist.UpdatedAt = now

	const query = `
		INSERT INTO playlists (user_id, name, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		playlist.UserID,
		playlist.Name,
		playlist.Description,
		playlist.CreatedAt,
		playlist.UpdatedAt,
	).Scan(&playlist.ID); err != nil {
		if isUniqueViolation(err) {
			return types.Playlist{}, ErrConflict
		}
		return types.Playlist{}, err
	}
	playlist.Problems = []types.Problem{}
	return playlist, nil
}

// ListByUser returns every playlist owned by userID with its problems.
func (r *PlaylistRepository) ListByUser(ctx context.Context, userID int) ([]types.Playlist, error) {
	const query = `
		SELECT id, user_id, name, description, created_at, updated_at
		FROM playlists
		WHERE user_id = $1
		ORDER BY created_at, id`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	playlists := make([]types.Playlist, 0)
	for rows.Next() {
		playlist, err := scanPlaylist(rows)
		if err != nil {
			return nil, err
		}
		playlists = append(playlists, playlist)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range playlists {
		problems, err := r.listProblems(ctx, playlists[i].ID)
		if err != nil {
			return nil, err
		}
		playlists[i].Problems = problems
	}
	return playlists, nil
}

// GetForUser returns a playlist owned by userID with its problems.
func (r *PlaylistRepository) GetForUser(ctx context.Context, id, userID int) (types.Playlist, error) {
	const query = `
		SELECT id, user_id, name, description, created_at, updated_at
		FROM playlists
		WHERE id = $1 AND user_id = $2`
	playlist, err := scanPlaylist(r.db.QueryRowContext(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Playlist{}, ErrNotFound
		}
		return types.Playlist{}, err
	}

	problems, err := r.listProblems(ctx, playlist.ID)
	if err != nil {
		return types.Playlist{}, err
	}
	playlist.Problems = problems
	return playlist, nil
}

func (r *PlaylistRepository) DeleteForUser(ctx context.Context, id, userID int) error {
	const query = `DELETE FROM playlists WHERE id = $1 AND user_id = $2`
	result, err := r.db.ExecContext(ctx, query, id, userID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// AddProblems links problems to a playlist. Problems already in the
// playlist are skipped; unknown problem ids return ErrNotFound.
func (r *PlaylistRepository) AddProblems(ctx context.Context, playlistID int, problemIDs []int) (int, error) {
	const query = `
		INSERT INTO problems_in_playlist (playlist_id, problem_id, created_at)
		SELECT $1, p.id, $3
		FROM problems p
		WHERE p.id = ANY($2)
		ON CONFLICT (playlist_id, problem_id) DO NOTHING`

	ids := pq.Array(problemIDs)
	var known int
	const countQuery = `SELECT COUNT(1) FROM problems WHERE id = ANY($1)`
	if err := r.db.QueryRowContext(ctx, countQuery, ids).Scan(&known); err != nil {
		return 0, err
	}
	if known != countDistinct(problemIDs) {
		return 0, ErrNotFound
	}

	result, err := r.db.ExecContext(ctx, query, playlistID, ids, time.Now())
	if err != nil {
		return 0, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

// RemoveProblems unlinks problems from a playlist and returns how many were removed.
func (r *PlaylistRepository) RemoveProblems(ctx context.Context, playlistID int, problemIDs []int) (int, error) {
	const query = `DELETE FROM problems_in_playlist WHERE playlist_id = $1 AND problem_id = ANY($2)`
	result, err := r.db.ExecContext(ctx, query, playlistID, pq.Array(problemIDs))
	if err != nil {
		return 0, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func (r *PlaylistRepository) listProblems(ctx context.Context, playlistID int) ([]types.Problem, error) {
	query := `
		SELECT ` + problemColumns + `
		FROM problems p
		JOIN problems_in_playlist pp ON pp.problem_id = p.id
		WHERE pp.playlist_id = $1
		ORDER BY pp.created_at, p.id`
	rows, err := r.db.QueryContext(ctx, query, playlistID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	problems := make([]types.Problem, 0)
	for rows.Next() {
		problem, err := scanProblem(rows)
		if err != nil {
			return nil, err
		}
		problems = append(problems, problem)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return problems, nil
}

func scanPlaylist(row rowScanner) (types.Playlist, error) {
	var playlist types.Playlist
	err := row.Scan(
		&playlist.ID,
		&playlist.UserID,
		&playlist.Name,
		&playlist.Description,
		&playlist.CreatedAt,
		&playlist.UpdatedAt,
	)
	return playlist, err
}

func countDistinct(ids []int) int {
	seen := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		seen[id] = struct{}{}
	}
	return len(seen)
}
