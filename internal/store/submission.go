package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/intprep/apiserver/types"
)

const submissionColumns = `id, user_id, problem_id, source_code, language, language_id, stdin,
	status, tests_passed, tests_total, created_at, updated_at`

// SubmissionRepository handles persistence for submissions and their testcase results.
type SubmissionRepository struct {
	db *sql.DB
}

func NewSubmissionRepository(db *sql.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

// Create inserts the submission and every testcase result in one transaction.
// Either all rows are written or none are.
func (r *SubmissionRepository) Create(ctx context.Context, submission types.Submission) (types.Submission, error) {
	now := time.Now()
	submission.CreatedAt = now
	submission.UpdatedAt = now

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return types.Submission{}, err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	const query = `
		INSERT INTO submissions (
			user_id, problem_id, source_code, language, language_id, stdin,
			status, tests_passed, tests_total, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`
	if err := tx.QueryRowContext(
		ctx,
		query,
		submission.UserID,
		submission.ProblemID,
		submission.SourceCode,
		submission.Language,
		submission.LanguageID,
		submission.Stdin,
		submission.Status,
		submission.TestsPassed,
		submission.TestsTotal,
		submission.CreatedAt,
		submission.UpdatedAt,
	).Scan(&submission.ID); err != nil {
		return types.Submission{}, fmt.Errorf("insert submission: %w", err)
	}

	const resultQuery = `
		INSERT INTO testcase_results (
			submission_id, test_case, passed, stdout, expected, stderr,
			compile_output, status, memory, time, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`
	stmt, err := tx.PrepareContext(ctx, resultQuery)
	if err != nil {
		return types.Submission{}, err
	}
	defer stmt.Close()

	for i := range submission.TestcaseResults {
		result := &submission.TestcaseResults[i]
		result.SubmissionID = submission.ID
		result.CreatedAt = now
		if err := stmt.QueryRowContext(
			ctx,
			result.SubmissionID,
			result.TestCase,
			result.Passed,
			result.Stdout,
			result.Expected,
			result.Stderr,
			result.CompileOutput,
			result.Status,
			result.Memory,
			result.Time,
			result.CreatedAt,
		).Scan(&result.ID); err != nil {
			return types.Submission{}, fmt.Errorf("insert testcase %d: %w", result.TestCase, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return types.Submission{}, err
	}
	return submission, nil
}

// GetForUser returns a submission owned by userID together with its testcase results.
func (r *SubmissionRepository) GetForUser(ctx context.Context, id int64, userID int) (types.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE id = $1 AND user_id = $2`
	submission, err := scanSubmission(r.db.QueryRowContext(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Submission{}, ErrNotFound
		}
		return types.Submission{}, err
	}

	results, err := r.listResults(ctx, submission.ID)
	if err != nil {
		return types.Submission{}, err
	}
	submission.TestcaseResults = results
	return submission, nil
}

// ListByUser returns the user's submissions, newest first, without testcase results.
func (r *SubmissionRepository) ListByUser(ctx context.Context, userID int) ([]types.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE user_id = $1 ORDER BY created_at DESC, id DESC`
	return r.query(ctx, query, userID)
}

// ListByUserAndProblem returns the user's submissions for one problem, newest first.
func (r *SubmissionRepository) ListByUserAndProblem(ctx context.Context, userID, problemID int) ([]types.Submission, error) {
	query := `SELECT ` + submissionColumns + `
		FROM submissions
		WHERE user_id = $1 AND problem_id = $2
		ORDER BY created_at DESC, id DESC`
	return r.query(ctx, query, userID, problemID)
}

// CountByProblem returns how many submissions exist for a problem across all users.
func (r *SubmissionRepository) CountByProblem(ctx context.Context, problemID int) (int, error) {
	const query = `SELECT COUNT(1) FROM submissions WHERE problem_id = $1`
	var count int
	if err := r.db.QueryRowContext(ctx, query, problemID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// CountsByDate groups the user's submissions by UTC calendar day, oldest first.
func (r *SubmissionRepository) CountsByDate(ctx context.Context, userID int) ([]types.DailyCount, error) {
	const query = `
		SELECT TO_CHAR(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day, COUNT(1)
		FROM submissions
		WHERE user_id = $1
		GROUP BY day
		ORDER BY day`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make([]types.DailyCount, 0)
	for rows.Next() {
		var count types.DailyCount
		if err := rows.Scan(&count.Date, &count.Count); err != nil {
			return nil, err
		}
		counts = append(counts, count)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return counts, nil
}

func (r *SubmissionRepository) query(ctx context.Context, query string, args ...any) ([]types.Submission, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	submissions := make([]types.Submission, 0)
	for rows.Next() {
		submission, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		submissions = append(submissions, submission)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return submissions, nil
}

func (r *SubmissionRepository) listResults(ctx context.Context, submissionID int64) ([]types.TestcaseResult, error) {
	const query = `
		SELECT id, submission_id, test_case, passed, stdout, expected, stderr,
		       compile_output, status, memory, time, created_at
		FROM testcase_results
		WHERE submission_id = $1
		ORDER BY test_case`
	rows, err := r.db.QueryContext(ctx, query, submissionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]types.TestcaseResult, 0)
	for rows.Next() {
		var result types.TestcaseResult
		var stderr, compileOutput sql.NullString
		if err := rows.Scan(
			&result.ID,
			&result.SubmissionID,
			&result.TestCase,
			&result.Passed,
			&result.Stdout,
			&result.Expected,
			&stderr,
			&compileOutput,
			&result.Status,
			&result.Memory,
			&result.Time,
			&result.CreatedAt,
		); err != nil {
			return nil, err
		}
		if stderr.Valid {
			result.Stderr = &stderr.String
		}
		if compileOutput.Valid {
			result.CompileOutput = &compileOutput.String
		}
		results = append(results, result)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func scanSubmission(row rowScanner) (types.Submission, error) {
	var submission types.Submission
	err := row.Scan(
		&submission.ID,
		&submission.UserID,
		&submission.ProblemID,
		&submission.SourceCode,
		&submission.Language,
		&submission.LanguageID,
		&submission.Stdin,
		&submission.Status,
		&submission.TestsPassed,
		&submission.TestsTotal,
		&submission.CreatedAt,
		&submission.UpdatedAt,
	)
	return submission, err
}
