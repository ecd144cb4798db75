package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/intprep/apiserver/internal/judge"
	"github.com/intprep/apiserver/internal/storage"
	"github.com/intprep/apiserver/types"
	"go.uber.org/zap"
)

var (
	// ErrForbidden is returned when the caller neither authored the resource nor is an admin.
	ErrForbidden = errors.New("forbidden")

	// ErrUnsupportedLanguage is returned for a language key the judge cannot run.
	ErrUnsupportedLanguage = errors.New("unsupported language")

	// ErrReferenceSolutionFailed is returned when a reference solution does
	// not pass one of the problem's testcases.
	ErrReferenceSolutionFailed = errors.New("reference solution failed")
)

const bundleContentType = "application/gzip"

// ProblemRepository defines persistence operations for problems.
type ProblemRepository interface {
	List(ctx context.Context, offset, limit int) ([]types.Problem, int, error)
	Get(ctx context.Context, id int) (types.Problem, error)
	Exists(ctx context.Context, id int) (bool, error)
	Create(ctx context.Context, problem types.Problem) (types.Problem, error)
	Update(ctx context.Context, problem types.Problem) (types.Problem, error)
	Delete(ctx context.Context, id int) error
	MarkSolved(ctx context.Context, userID, problemID int) (bool, error)
	ListSolved(ctx context.Context, userID int) ([]types.Problem, error)
}

// ProblemService encapsulates problem use-cases.
type ProblemService struct {
	repo    ProblemRepository
	judge   Judge
	storage *storage.Storage
	logger  *zap.Logger
}

// NewProblemService builds a ProblemService. objects may be nil, in which
// case imported bundles are not archived.
func NewProblemService(repo ProblemRepository, j Judge, objects *storage.Storage, logger *zap.Logger) *ProblemService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProblemService{repo: repo, judge: j, storage: objects, logger: logger}
}

func (s *ProblemService) List(ctx context.Context, offset, limit int) ([]types.Problem, int, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	return s.repo.List(ctx, offset, limit)
}

func (s *ProblemService) Get(ctx context.Context, id int) (types.Problem, error) {
	return s.repo.Get(ctx, id)
}

func (s *ProblemService) ListSolved(ctx context.Context, userID int) ([]types.Problem, error) {
	return s.repo.ListSolved(ctx, userID)
}

// Create validates every reference solution against every testcase and
// stores the problem authored by author.
func (s *ProblemService) Create(ctx context.Context, author types.User, problem types.Problem) (types.Problem, error) {
	if err := s.ValidateReferenceSolutions(ctx, problem); err != nil {
		return types.Problem{}, err
	}
	problem.UserID = author.ID
	problem.TestcaseBundle = types.TestcaseBundle{}
	return s.repo.Create(ctx, problem)
}

// Update replaces the editable fields of an existing problem.
func (s *ProblemService) Update(ctx context.Context, actor types.User, problem types.Problem) (types.Problem, error) {
	current, err := s.repo.Get(ctx, problem.ID)
	if err != nil {
		return types.Problem{}, err
	}
	if !canModify(actor, current) {
		return types.Problem{}, ErrForbidden
	}
	if err := s.ValidateReferenceSolutions(ctx, problem); err != nil {
		return types.Problem{}, err
	}

	problem.UserID = current.UserID
	problem.CreatedAt = current.CreatedAt
	problem.TestcaseBundle = current.TestcaseBundle
	return s.repo.Update(ctx, problem)
}

func (s *ProblemService) Delete(ctx context.Context, actor types.User, id int) error {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if !canModify(actor, current) {
		return ErrForbidden
	}
	return s.repo.Delete(ctx, id)
}

// ImportTestcaseBundle replaces the problem's testcases with the contents of
// a tar.gz bundle. The bundle is archived to object storage when configured.
func (s *ProblemService) ImportTestcaseBundle(ctx context.Context, actor types.User, problemID int, filename string, data []byte) (types.Problem, error) {
	problem, err := s.repo.Get(ctx, problemID)
	if err != nil {
		return types.Problem{}, err
	}
	if !canModify(actor, problem) {
		return types.Problem{}, ErrForbidden
	}

	bundle, testcases, err := ParseTestcaseBundle(filename, data)
	if err != nil {
		return types.Problem{}, err
	}

	problem.Testcases = testcases
	if err := s.ValidateReferenceSolutions(ctx, problem); err != nil {
		return types.Problem{}, err
	}

	current := problem.TestcaseBundle
	bundle.Version = current.Version + 1
	if current.SHA256 == bundle.SHA256 && current.Version > 0 {
		bundle.Version = current.Version
	}

	if s.storage != nil {
		key := fmt.Sprintf("problems/%d/testcases/%s.tar.gz", problemID, bundle.SHA256)
		if err := s.storage.Put(ctx, key, bytes.NewReader(data), int64(len(data)), bundleContentType); err != nil {
			return types.Problem{}, fmt.Errorf("archive bundle: %w", err)
		}
		bundle.ObjectKey = key
	}

	problem.TestcaseBundle = bundle
	updated, err := s.repo.Update(ctx, problem)
	if err != nil {
		return types.Problem{}, err
	}

	s.logger.Info("testcase bundle imported",
		zap.Int("problem_id", problemID),
		zap.Int("testcases", len(testcases)),
		zap.Int("version", bundle.Version),
		zap.String("object_key", bundle.ObjectKey),
	)
	return updated, nil
}

// ValidateReferenceSolutions runs each reference solution against every
// testcase and fails on the first result the judge does not accept.
func (s *ProblemService) ValidateReferenceSolutions(ctx context.Context, problem types.Problem) error {
	if len(problem.Testcases) == 0 {
		return ErrInvalidTestcases
	}

	languages := make([]string, 0, len(problem.ReferenceSolutions))
	for language := range problem.ReferenceSolutions {
		languages = append(languages, language)
	}
	sort.Strings(languages)

	for _, language := range languages {
		languageID, ok := judge.LanguageID(language)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnsupportedLanguage, language)
		}

		reqs := make([]judge.Request, len(problem.Testcases))
		for i, testcase := range problem.Testcases {
			reqs[i] = judge.Request{
				SourceCode:     problem.ReferenceSolutions[language],
				LanguageID:     languageID,
				Stdin:          testcase.Input,
				ExpectedOutput: testcase.Output,
			}
		}

		results, err := s.judge.Execute(ctx, reqs)
		if err != nil {
			return err
		}
		for i, result := range results {
			if !result.Status.Accepted() {
				return fmt.Errorf("%w: testcase %d failed for language %s", ErrReferenceSolutionFailed, i+1, language)
			}
		}
	}
	return nil
}

func canModify(actor types.User, problem types.Problem) bool {
	return actor.Role == types.RoleAdmin || actor.ID == problem.UserID
}
