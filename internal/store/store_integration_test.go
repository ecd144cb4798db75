//go:build integration

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/intprep/apiserver/internal/db"
	"github.com/intprep/apiserver/types"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

var testDB *sql.DB

func TestMain(m *testing.M) {
	ctx := context.Background()
	container, err := postgres.Run(
		ctx,
		"postgres:17-alpine",
		postgres.WithDatabase("intprep_test"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		panic(err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		panic(err)
	}
	if err := db.Migrate(dsn, db.Up); err != nil {
		_ = container.Terminate(ctx)
		panic(err)
	}
	testDB, err = db.OpenDSN(ctx, dsn)
	if err != nil {
		_ = container.Terminate(ctx)
		panic(err)
	}

	code := m.Run()

	_ = testDB.Close()
	_ = container.Terminate(ctx)
	os.Exit(code)
}

var userSeq int

func createUser(t *testing.T) types.User {
	t.Helper()
	userSeq++
	user, err := NewUserRepository(testDB).Create(t.Context(), types.User{
		Username:     fmt.Sprintf("user%d", userSeq),
		Email:        fmt.Sprintf("user%d@example.com", userSeq),
		Name:         "Test User",
		Role:         types.RoleUser,
		PasswordHash: "hash",
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

func createProblem(t *testing.T, authorID int) types.Problem {
	t.Helper()
	problem, err := NewProblemRepository(testDB).Create(t.Context(), types.Problem{
		UserID:             authorID,
		Title:              "Echo",
		Description:        "Print the input back.",
		Difficulty:         types.DifficultyEasy,
		Tags:               []string{"io"},
		Testcases:          []types.Testcase{{Input: "2", Output: "2"}},
		ReferenceSolutions: map[string]string{"PYTHON": "print(input())"},
	})
	if err != nil {
		t.Fatalf("create problem: %v", err)
	}
	return problem
}

func TestUserRepositoryConflict(t *testing.T) {
	user := createUser(t)
	_, err := NewUserRepository(testDB).Create(t.Context(), types.User{
		Username:     user.Username,
		Email:        "other@example.com",
		Name:         "Other",
		Role:         types.RoleUser,
		PasswordHash: "hash",
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	got, err := NewUserRepository(testDB).GetByUsername(t.Context(), user.Username)
	if err != nil || got.ID != user.ID {
		t.Fatalf("get by username: %+v, %v", got, err)
	}
	if _, err := NewUserRepository(testDB).GetByID(t.Context(), -1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestProblemRepositoryRoundTrip(t *testing.T) {
	author := createUser(t)
	problem := createProblem(t, author.ID)
	repo := NewProblemRepository(testDB)

	got, err := repo.Get(t.Context(), problem.ID)
	if err != nil {
		t.Fatalf("get problem: %v", err)
	}
	if got.UserID != author.ID || len(got.Testcases) != 1 || got.ReferenceSolutions["PYTHON"] == "" {
		t.Fatalf("unexpected problem: %+v", got)
	}

	got.Title = "Echo II"
	if _, err := repo.Update(t.Context(), got); err != nil {
		t.Fatalf("update problem: %v", err)
	}
	exists, err := repo.Exists(t.Context(), problem.ID)
	if err != nil || !exists {
		t.Fatalf("exists: %v, %v", exists, err)
	}

	if err := repo.Delete(t.Context(), problem.ID); err != nil {
		t.Fatalf("delete problem: %v", err)
	}
	if _, err := repo.Get(t.Context(), problem.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMarkSolvedIsIdempotent(t *testing.T) {
	user := createUser(t)
	problem := createProblem(t, user.ID)
	repo := NewProblemRepository(testDB)

	inserted, err := repo.MarkSolved(t.Context(), user.ID, problem.ID)
	if err != nil || !inserted {
		t.Fatalf("first mark: %v, %v", inserted, err)
	}
	inserted, err = repo.MarkSolved(t.Context(), user.ID, problem.ID)
	if err != nil || inserted {
		t.Fatalf("second mark: %v, %v", inserted, err)
	}

	solved, err := repo.ListSolved(t.Context(), user.ID)
	if err != nil {
		t.Fatalf("list solved: %v", err)
	}
	if len(solved) != 1 || solved[0].ID != problem.ID {
		t.Fatalf("unexpected solved list: %+v", solved)
	}
}

func TestSubmissionRepositoryCreateAndQuery(t *testing.T) {
	user := createUser(t)
	problem := createProblem(t, user.ID)
	repo := NewSubmissionRepository(testDB)

	stderr := "warning"
	created, err := repo.Create(t.Context(), types.Submission{
		UserID:      user.ID,
		ProblemID:   problem.ID,
		SourceCode:  "print(input())",
		Language:    "Python",
		LanguageID:  71,
		Stdin:       "2\n3",
		Status:      types.VerdictWrongAnswer,
		TestsPassed: 1,
		TestsTotal:  2,
		TestcaseResults: []types.TestcaseResult{
			{TestCase: 1, Passed: true, Stdout: "2", Expected: "2", Status: "Accepted", Memory: "100 KB", Time: "0.01 s"},
			{TestCase: 2, Passed: false, Stdout: "4", Expected: "3", Stderr: &stderr, Status: "Accepted"},
		},
	})
	if err != nil {
		t.Fatalf("create submission: %v", err)
	}

	got, err := repo.GetForUser(t.Context(), created.ID, user.ID)
	if err != nil {
		t.Fatalf("get submission: %v", err)
	}
	if len(got.TestcaseResults) != 2 || got.TestcaseResults[1].Stderr == nil || *got.TestcaseResults[1].Stderr != stderr {
		t.Fatalf("unexpected results: %+v", got.TestcaseResults)
	}
	if got.TestcaseResults[0].CompileOutput != nil {
		t.Fatalf("expected nil compile output")
	}

	other := createUser(t)
	if _, err := repo.GetForUser(t.Context(), created.ID, other.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for another user, got %v", err)
	}

	count, err := repo.CountByProblem(t.Context(), problem.ID)
	if err != nil || count != 1 {
		t.Fatalf("count by problem: %d, %v", count, err)
	}
	daily, err := repo.CountsByDate(t.Context(), user.ID)
	if err != nil || len(daily) != 1 || daily[0].Count != 1 {
		t.Fatalf("counts by date: %+v, %v", daily, err)
	}
	mine, err := repo.ListByUserAndProblem(t.Context(), user.ID, problem.ID)
	if err != nil || len(mine) != 1 {
		t.Fatalf("list by user and problem: %+v, %v", mine, err)
	}
}

func TestSubmissionRepositoryRollsBack(t *testing.T) {
	user := createUser(t)
	problem := createProblem(t, user.ID)
	repo := NewSubmissionRepository(testDB)

	_, err := repo.Create(t.Context(), types.Submission{
		UserID:     user.ID,
		ProblemID:  problem.ID,
		SourceCode: "x",
		Language:   "Python",
		LanguageID: 71,
		Status:     types.VerdictAccepted,
		TestcaseResults: []types.TestcaseResult{
			{TestCase: 1, Passed: true, Status: "Accepted"},
			{TestCase: 1, Passed: true, Status: "Accepted"},
		},
	})
	if err == nil {
		t.Fatalf("expected duplicate testcase index to fail")
	}

	list, err := repo.ListByUser(t.Context(), user.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected no submission after rollback, got %d", len(list))
	}
}

func TestPlaylistRepository(t *testing.T) {
	user := createUser(t)
	problem := createProblem(t, user.ID)
	repo := NewPlaylistRepository(testDB)

	playlist, err := repo.Create(t.Context(), types.Playlist{UserID: user.ID, Name: "Warmup"})
	if err != nil {
		t.Fatalf("create playlist: %v", err)
	}
	if _, err := repo.Create(t.Context(), types.Playlist{UserID: user.ID, Name: "Warmup"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	added, err := repo.AddProblems(t.Context(), playlist.ID, []int{problem.ID})
	if err != nil || added != 1 {
		t.Fatalf("add problems: %d, %v", added, err)
	}
	added, err = repo.AddProblems(t.Context(), playlist.ID, []int{problem.ID})
	if err != nil || added != 0 {
		t.Fatalf("re-add problems: %d, %v", added, err)
	}
	if _, err := repo.AddProblems(t.Context(), playlist.ID, []int{-5}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown problem, got %v", err)
	}

	got, err := repo.GetForUser(t.Context(), playlist.ID, user.ID)
	if err != nil || len(got.Problems) != 1 {
		t.Fatalf("get playlist: %+v, %v", got, err)
	}

	removed, err := repo.RemoveProblems(t.Context(), playlist.ID, []int{problem.ID})
	if err != nil || removed != 1 {
		t.Fatalf("remove problems: %d, %v", removed, err)
	}
	if err := repo.DeleteForUser(t.Context(), playlist.ID, user.ID); err != nil {
		t.Fatalf("delete playlist: %v", err)
	}
	if err := repo.DeleteForUser(t.Context(), playlist.ID, user.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
