package types

import "time"

// Difficulty is the coarse difficulty bucket of a problem.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "EASY"
	DifficultyMedium Difficulty = "MEDIUM"
	DifficultyHard   Difficulty = "HARD"
)

// Problem represents a coding problem on the platform.
// It contains the statement, per-language starter code and reference
// solutions, and the testcases used to evaluate submissions.
type Problem struct {
	// ID is the unique identifier of the problem.
	ID int `json:"id" db:"id"`

	// UserID identifies the author of the problem.
	UserID int `json:"user_id" db:"user_id"`

	// Title is the human-readable name of the problem.
	Title string `json:"title" db:"title"`

	// Description contains the full problem statement.
	Description string `json:"description" db:"description"`

	// Difficulty is one of EASY, MEDIUM or HARD.
	Difficulty Difficulty `json:"difficulty" db:"difficulty"`

	// Tags are free-form topic labels used for filtering.
	Tags []string `json:"tags" db:"tags"`

	// CompanyTags lists companies known to ask this problem.
	CompanyTags []string `json:"company_tags" db:"company_tags"`

	// Constraints describes input bounds.
	Constraints string `json:"constraints" db:"constraints"`

	Hints     string `json:"hints,omitempty" db:"hints"`
	Editorial string `json:"editorial,omitempty" db:"editorial"`

	// Examples holds a worked example per language key (e.g. "PYTHON").
	Examples map[string]Example `json:"examples" db:"examples"`

	// Testcases is the ordered list of input/output pairs used for judging.
	Testcases []Testcase `json:"testcases" db:"testcases"`

	// CodeSnippets holds the starter code shown to users per language key.
	CodeSnippets map[string]string `json:"code_snippets" db:"code_snippets"`

	// ReferenceSolutions holds a known-correct solution per language key.
	// Every reference solution must pass every testcase before the problem
	// is saved.
	ReferenceSolutions map[string]string `json:"reference_solutions" db:"reference_solutions"`

	// TestcaseBundle describes the archived bundle the testcases were last
	// imported from, if any.
	TestcaseBundle TestcaseBundle `json:"testcase_bundle" db:"testcase_bundle"`

	// CreatedAt is the timestamp at which the problem was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the problem.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Example is a worked example displayed with the problem statement.
type Example struct {
	Input       string `json:"input"`
	Output      string `json:"output"`
	Explanation string `json:"explanation,omitempty"`
}

// Testcase represents a single input/output pair used to evaluate a submission.
type Testcase struct {
	// Input is the standard input provided to the program.
	Input string `json:"input"`

	// Output is the expected standard output of a correct solution.
	Output string `json:"output"`
}

// TestcaseBundle references an uploaded testcase archive.
//
// The archive is kept in object storage (MinIO or GCS) under ObjectKey.
// SHA256 identifies the archive contents; Version is bumped whenever a
// bundle with a different hash replaces the previous one.
type TestcaseBundle struct {
	// ObjectKey is the key of the archive in object storage.
	// It is empty when object storage is not configured.
	ObjectKey string `json:"object_key,omitempty"`

	// SHA256 is the hex-encoded SHA-256 hash of the archive bytes.
	SHA256 string `json:"sha256,omitempty"`

	// Version indicates the version number of this testcase bundle.
	Version int `json:"version,omitempty"`
}

// ProblemSolved records that a user has an accepted submission for a problem.
type ProblemSolved struct {
	UserID    int       `json:"user_id" db:"user_id"`
	ProblemID int       `json:"problem_id" db:"problem_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
