package services

import (
	"context"

	"github.com/intprep/apiserver/types"
)

// SubmissionRepository defines read operations over stored submissions.
type SubmissionRepository interface {
	GetForUser(ctx context.Context, id int64, userID int) (types.Submission, error)
	ListByUser(ctx context.Context, userID int) ([]types.Submission, error)
	ListByUserAndProblem(ctx context.Context, userID, problemID int) ([]types.Submission, error)
	CountByProblem(ctx context.Context, problemID int) (int, error)
	CountsByDate(ctx context.Context, userID int) ([]types.DailyCount, error)
}

// SubmissionService exposes a user's submission history.
type SubmissionService struct {
	repo SubmissionRepository
}

func NewSubmissionService(repo SubmissionRepository) *SubmissionService {
	return &SubmissionService{repo: repo}
}

// Get returns one of the user's submissions with its testcase results.
func (s *SubmissionService) Get(ctx context.Context, userID int, id int64) (types.Submission, error) {
	return s.repo.GetForUser(ctx, id, userID)
}

func (s *SubmissionService) ListMine(ctx context.Context, userID int) ([]types.Submission, error) {
	return s.repo.ListByUser(ctx, userID)
}

func (s *SubmissionService) ListMineForProblem(ctx context.Context, userID, problemID int) ([]types.Submission, error) {
	return s.repo.ListByUserAndProblem(ctx, userID, problemID)
}

// CountForProblem counts submissions to a problem across all users.
func (s *SubmissionService) CountForProblem(ctx context.Context, problemID int) (int, error) {
	return s.repo.CountByProblem(ctx, problemID)
}

func (s *SubmissionService) CountsByDate(ctx context.Context, userID int) ([]types.DailyCount, error) {
	return s.repo.CountsByDate(ctx, userID)
}
