package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/intprep/apiserver/internal/judge"
	"github.com/intprep/apiserver/internal/store"
	"github.com/intprep/apiserver/types"
	"go.uber.org/zap"
)

// ErrInvalidTestcases is returned when inputs and expected outputs are
// empty or differ in length.
var ErrInvalidTestcases = errors.New("stdin and expected outputs must be non-empty and of equal length")

// Judge submits programs to the external judge and waits for their results.
type Judge interface {
	Execute(ctx context.Context, reqs []judge.Request) ([]judge.Result, error)
}

// SubmissionWriter persists a judged submission with its testcase results.
type SubmissionWriter interface {
	Create(ctx context.Context, submission types.Submission) (types.Submission, error)
}

// SolvedRecorder tracks which problems exist and which each user has solved.
type SolvedRecorder interface {
	Exists(ctx context.Context, id int) (bool, error)
	MarkSolved(ctx context.Context, userID, problemID int) (bool, error)
}

// EventPublisher announces persisted submissions.
type EventPublisher interface {
	PublishSubmission(ctx context.Context, event types.SubmissionEvent) error
}

// RunInput is a program plus the testcases it should be run against.
type RunInput struct {
	SourceCode      string
	LanguageID      int
	Stdin           []string
	ExpectedOutputs []string
}

// SubmitInput is a RunInput attributed to a user and a problem.
type SubmitInput struct {
	RunInput
	UserID    int
	ProblemID int
}

// RunResult is the evaluated outcome of a run that is not persisted.
type RunResult struct {
	Status      types.Verdict
	TestsPassed int
	TestsTotal  int
	Results     []types.TestcaseResult
}

// ExecutionService runs user code through the judge and evaluates it.
type ExecutionService struct {
	judge       Judge
	problems    SolvedRecorder
	submissions SubmissionWriter
	events      EventPublisher
	logger      *zap.Logger
}

// NewExecutionService wires the execution flow. events may be nil.
func NewExecutionService(j Judge, problems SolvedRecorder, submissions SubmissionWriter, events EventPublisher, logger *zap.Logger) *ExecutionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExecutionService{
		judge:       j,
		problems:    problems,
		submissions: submissions,
		events:      events,
		logger:      logger,
	}
}

// BuildJudgeRequests pairs the source program with each input, in order.
func BuildJudgeRequests(sourceCode string, languageID int, stdin, expected []string) ([]judge.Request, error) {
	if len(stdin) == 0 || len(stdin) != len(expected) {
		return nil, ErrInvalidTestcases
	}

	reqs := make([]judge.Request, len(stdin))
	for i, input := range stdin {
		reqs[i] = judge.Request{
			SourceCode: sourceCode,
			LanguageID: languageID,
			Stdin:      input,
		}
	}
	return reqs, nil
}

// EvaluateResults compares every judge result with its expected output and
// derives the aggregate verdict. results and expected must be index-aligned.
func EvaluateResults(results []judge.Result, expected []string) ([]types.TestcaseResult, types.Verdict, int) {
	evaluated := make([]types.TestcaseResult, len(results))
	passed := 0
	verdict := types.VerdictAccepted
	echoed := false

	for i, result := range results {
		want := strings.TrimSpace(expected[i])
		ok := result.Stdout != nil && strings.TrimSpace(*result.Stdout) == want

		var stdout string
		if result.Stdout != nil {
			stdout = strings.TrimSpace(*result.Stdout)
		}
		evaluated[i] = types.TestcaseResult{
			TestCase:      i + 1,
			Passed:        ok,
			Stdout:        stdout,
			Expected:      want,
			Stderr:        result.Stderr,
			CompileOutput: result.CompileOutput,
			Status:        result.Status.Description,
			Memory:        formatMemory(result.Memory),
			Time:          formatTime(result.Time),
		}

		if ok {
			passed++
			continue
		}
		if !echoed {
			verdict = types.VerdictWrongAnswer
		}
		if !echoed && !result.Status.Accepted() && result.Status.Description != "" {
			verdict = types.Verdict(result.Status.Description)
			echoed = true
		}
	}

	return evaluated, verdict, passed
}

func formatMemory(kb *int) string {
	if kb == nil {
		return ""
	}
	return strconv.Itoa(*kb) + " KB"
}

func formatTime(seconds *judge.Seconds) string {
	if seconds == nil {
		return ""
	}
	return strconv.FormatFloat(float64(*seconds), 'f', -1, 64) + " s"
}

// Run judges the program against every testcase without persisting anything.
func (s *ExecutionService) Run(ctx context.Context, in RunInput) (RunResult, error) {
	reqs, err := BuildJudgeRequests(in.SourceCode, in.LanguageID, in.Stdin, in.ExpectedOutputs)
	if err != nil {
		return RunResult{}, err
	}

	results, err := s.judge.Execute(ctx, reqs)
	if err != nil {
		return RunResult{}, err
	}

	evaluated, verdict, passed := EvaluateResults(results, in.ExpectedOutputs)
	return RunResult{
		Status:      verdict,
		TestsPassed: passed,
		TestsTotal:  len(evaluated),
		Results:     evaluated,
	}, nil
}

// Submit judges the program, persists the submission with its testcase
// results and records the problem as solved when every testcase passed.
func (s *ExecutionService) Submit(ctx context.Context, in SubmitInput) (types.Submission, error) {
	reqs, err := BuildJudgeRequests(in.SourceCode, in.LanguageID, in.Stdin, in.ExpectedOutputs)
	if err != nil {
		return types.Submission{}, err
	}

	exists, err := s.problems.Exists(ctx, in.ProblemID)
	if err != nil {
		return types.Submission{}, fmt.Errorf("check problem: %w", err)
	}
	if !exists {
		return types.Submission{}, store.ErrNotFound
	}

	results, err := s.judge.Execute(ctx, reqs)
	if err != nil {
		return types.Submission{}, err
	}

	evaluated, verdict, passed := EvaluateResults(results, in.ExpectedOutputs)
	submission, err := s.submissions.Create(ctx, types.Submission{
		UserID:          in.UserID,
		ProblemID:       in.ProblemID,
		SourceCode:      in.SourceCode,
		Language:        judge.LanguageName(in.LanguageID),
		LanguageID:      in.LanguageID,
		Stdin:           strings.Join(in.Stdin, "\n"),
		Status:          verdict,
		TestsPassed:     passed,
		TestsTotal:      len(evaluated),
		TestcaseResults: evaluated,
	})
	if err != nil {
		return types.Submission{}, fmt.Errorf("save submission: %w", err)
	}

	if verdict == types.VerdictAccepted {
		if _, err := s.problems.MarkSolved(ctx, in.UserID, in.ProblemID); err != nil {
			return types.Submission{}, fmt.Errorf("mark solved: %w", err)
		}
	}

	s.publish(ctx, submission)
	return submission, nil
}

func (s *ExecutionService) publish(ctx context.Context, submission types.Submission) {
	if s.events == nil {
		return
	}

	event := types.SubmissionEvent{
		ID:           uuid.NewString(),
		SubmissionID: submission.ID,
		UserID:       submission.UserID,
		ProblemID:    submission.ProblemID,
		Status:       submission.Status,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.events.PublishSubmission(ctx, event); err != nil {
		s.logger.Warn("publish submission event failed",
			zap.Int64("submission_id", submission.ID),
			zap.Error(err),
		)
	}
}
