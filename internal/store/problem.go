package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/intprep/apiserver/types"
)

const problemColumns = `p.id, p.user_id, p.title, p.description, p.difficulty, p.tags, p.company_tags,
	p.constraints, p.hints, p.editorial, p.examples, p.testcases, p.code_snippets,
	p.reference_solutions, p.testcase_bundle, p.created_at, p.updated_at`

// ProblemRepository handles persistence for problems and solved records.
type ProblemRepository struct {
	db *sql.DB
}

func NewProblemRepository(db *sql.DB) *ProblemRepository {
	return &ProblemRepository{db: db}
}

func (r *ProblemRepository) List(ctx context.Context, offset, limit int) ([]types.Problem, int, error) {
	if offset < 0 {
		offset = 0
	}
	if limit < 1 {
		limit = 20
	}

	const countQuery = `SELECT COUNT(1) FROM problems`
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery).Scan(&total); err != nil {
		return nil, 0, err
	}

	listQuery := `SELECT ` + problemColumns + ` FROM problems p ORDER BY p.id OFFSET $1 LIMIT $2`
	problems, err := r.query(ctx, listQuery, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	return problems, total, nil
}

func (r *ProblemRepository) Get(ctx context.Context, id int) (types.Problem, error) {
	query := `SELECT ` + problemColumns + ` FROM problems p WHERE p.id = $1`
	problem, err := scanProblem(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Problem{}, ErrNotFound
		}
		return types.Problem{}, err
	}
	return problem, nil
}

// Exists reports whether a problem with the given id is stored.
func (r *ProblemRepository) Exists(ctx context.Context, id int) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM problems WHERE id = $1)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *ProblemRepository) Create(ctx context.Context, problem types.Problem) (types.Problem, error) {
	now := time.Now()
	problem.CreatedAt = now
	problem.UpdatedAt = now

	payload, err := marshalProblem(problem)
	if err != nil {
		return types.Problem{}, err
	}

	const query = `
		INSERT INTO problems (
			user_id, title, description, difficulty, tags, company_tags,
			constraints, hints, editorial, examples, testcases, code_snippets,
			reference_solutions, testcase_bundle, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		problem.UserID,
		problem.Title,
		problem.Description,
		problem.Difficulty,
		payload.tags,
		payload.companyTags,
		problem.Constraints,
		problem.Hints,
		problem.Editorial,
		payload.examples,
		payload.testcases,
		payload.codeSnippets,
		payload.referenceSolutions,
		payload.bundle,
		problem.CreatedAt,
		problem.UpdatedAt,
	).Scan(&problem.ID); err != nil {
		return types.Problem{}, err
	}

	return problem, nil
}

func (r *ProblemRepository) Update(ctx context.Context, problem types.Problem) (types.Problem, error) {
	problem.UpdatedAt = time.Now()

	payload, err := marshalProblem(problem)
	if err != nil {
		return types.Problem{}, err
	}

	const query = `
		UPDATE problems
		SET title = $1,
			description = $2,
			difficulty = $3,
			tags = $4,
			company_tags = $5,
			constraints = $6,
			hints = $7,
			editorial = $8,
			examples = $9,
			testcases = $10,
			code_snippets = $11,
			reference_solutions = $12,
			testcase_bundle = $13,
			updated_at = $14
		WHERE id = $15`
	result, err := r.db.ExecContext(
		ctx,
		query,
		problem.Title,
		problem.Description,
		problem.Difficulty,
		payload.tags,
		payload.companyTags,
		problem.Constraints,
		problem.Hints,
		problem.Editorial,
		payload.examples,
		payload.testcases,
		payload.codeSnippets,
		payload.referenceSolutions,
		payload.bundle,
		problem.UpdatedAt,
		problem.ID,
	)
	if err != nil {
		return types.Problem{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Problem{}, err
	}
	if affected == 0 {
		return types.Problem{}, ErrNotFound
	}
	return problem, nil
}

func (r *ProblemRepository) Delete(ctx context.Context, id int) error {
	const query = `DELETE FROM problems WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
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

// MarkSolved records that userID solved problemID. Recording the same pair
// twice leaves a single row; inserted reports whether a new row was written.
func (r *ProblemRepository) MarkSolved(ctx context.Context, userID, problemID int) (bool, error) {
	const query = `
		INSERT INTO problems_solved (user_id, problem_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, problem_id) DO NOTHING`
	result, err := r.db.ExecContext(ctx, query, userID, problemID, time.Now())
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// ListSolved returns the problems userID has solved, most recent first.
func (r *ProblemRepository) ListSolved(ctx context.Context, userID int) ([]types.Problem, error) {
	query := `
		SELECT ` + problemColumns + `
		FROM problems p
		JOIN problems_solved s ON s.problem_id = p.id
		WHERE s.user_id = $1
		ORDER BY s.created_at DESC, p.id`
	return r.query(ctx, query, userID)
}

func (r *ProblemRepository) query(ctx context.Context, query string, args ...any) ([]types.Problem, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProblem(row rowScanner) (types.Problem, error) {
	var problem types.Problem
	var tagsJSON, companyJSON, examplesJSON, testcasesJSON, snippetsJSON, solutionsJSON, bundleJSON []byte
	if err := row.Scan(
		&problem.ID,
		&problem.UserID,
		&problem.Title,
		&problem.Description,
		&problem.Difficulty,
		&tagsJSON,
		&companyJSON,
		&problem.Constraints,
		&problem.Hints,
		&problem.Editorial,
		&examplesJSON,
		&testcasesJSON,
		&snippetsJSON,
		&solutionsJSON,
		&bundleJSON,
		&problem.CreatedAt,
		&problem.UpdatedAt,
	); err != nil {
		return types.Problem{}, err
	}

	_ = json.Unmarshal(tagsJSON, &problem.Tags)
	_ = json.Unmarshal(companyJSON, &problem.CompanyTags)
	_ = json.Unmarshal(examplesJSON, &problem.Examples)
	_ = json.Unmarshal(testcasesJSON, &problem.Testcases)
	_ = json.Unmarshal(snippetsJSON, &problem.CodeSnippets)
	_ = json.Unmarshal(solutionsJSON, &problem.ReferenceSolutions)
	_ = json.Unmarshal(bundleJSON, &problem.TestcaseBundle)
	return problem, nil
}

type problemPayload struct {
	tags               []byte
	companyTags        []byte
	examples           []byte
	testcases          []byte
	codeSnippets       []byte
	referenceSolutions []byte
	bundle             []byte
}

func marshalProblem(problem types.Problem) (problemPayload, error) {
	var payload problemPayload
	fields := []struct {
		dst   *[]byte
		value any
		empty string
	}{
		{&payload.tags, problem.Tags, "[]"},
		{&payload.companyTags, problem.CompanyTags, "[]"},
		{&payload.examples, problem.Examples, "{}"},
		{&payload.testcases, problem.Testcases, "[]"},
		{&payload.codeSnippets, problem.CodeSnippets, "{}"},
		{&payload.referenceSolutions, problem.ReferenceSolutions, "{}"},
		{&payload.bundle, problem.TestcaseBundle, "{}"},
	}
	for _, field := range fields {
		data, err := json.Marshal(field.value)
		if err != nil {
			return problemPayload{}, err
		}
		if string(data) == "null" {
			data = []byte(field.empty)
		}
		*field.dst = data
	}
	return payload, nil
}
