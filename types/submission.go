package types

import "time"

// Submission represents a user's judged attempt at a problem.
// It is written once, after the judge has finished every testcase, and
// never mutated afterwards.
type Submission struct {
	// ID is the unique identifier of the submission.
	ID int64 `json:"id" db:"id"`

	// UserID identifies the user who made the submission.
	UserID int `json:"user_id" db:"user_id"`

	// ProblemID identifies the problem this submission is for.
	ProblemID int `json:"problem_id" db:"problem_id"`

	// SourceCode is the source code submitted by the user.
	SourceCode string `json:"source_code" db:"source_code"`

	// Language is the human-readable language name (e.g. "Python").
	Language string `json:"language" db:"language"`

	// LanguageID is the judge's numeric language identifier.
	LanguageID int `json:"language_id" db:"language_id"`

	// Stdin is every testcase input joined with newlines.
	Stdin string `json:"stdin" db:"stdin"`

	// Status is the aggregate verdict of the submission.
	Status Verdict `json:"status" db:"status"`

	// TestsPassed is the number of testcases that passed.
	TestsPassed int `json:"tests_passed" db:"tests_passed"`

	// TestsTotal is the number of testcases executed.
	TestsTotal int `json:"tests_total" db:"tests_total"`

	// CreatedAt is the timestamp when the submission was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt mirrors CreatedAt; submissions are immutable.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`

	// TestcaseResults holds per-testcase results.
	// This field is omitted for list views.
	TestcaseResults []TestcaseResult `json:"testcase_results,omitempty" db:"-"`
}

// TestcaseResult is the evaluated outcome of running a submission against
// a single testcase.
type TestcaseResult struct {
	// ID is the row identifier; zero for results that were never persisted.
	ID int64 `json:"id,omitempty" db:"id"`

	// SubmissionID identifies the submission this result belongs to.
	SubmissionID int64 `json:"submission_id,omitempty" db:"submission_id"`

	// TestCase is the 1-based position of the testcase in the request.
	TestCase int `json:"test_case" db:"test_case"`

	// Passed reports whether trimmed stdout matched the trimmed expectation.
	Passed bool `json:"passed" db:"passed"`

	// Stdout is the trimmed output produced by the program.
	Stdout string `json:"stdout" db:"stdout"`

	// Expected is the trimmed expected output.
	Expected string `json:"expected" db:"expected"`

	// Stderr is the program's standard error, if any.
	Stderr *string `json:"stderr" db:"stderr"`

	// CompileOutput holds compiler diagnostics, if any.
	CompileOutput *string `json:"compile_output" db:"compile_output"`

	// Status is the judge's status description (e.g. "Accepted").
	Status string `json:"status" db:"status"`

	// Memory is the peak memory for display, e.g. "3320 KB".
	Memory string `json:"memory,omitempty" db:"memory"`

	// Time is the execution time for display, e.g. "0.012 s".
	Time string `json:"time,omitempty" db:"time"`

	CreatedAt time.Time `json:"created_at,omitempty" db:"created_at"`
}

// Verdict is the aggregate outcome of a submission.
type Verdict string

const (
	// VerdictAccepted indicates every testcase passed.
	VerdictAccepted Verdict = "Accepted"

	// VerdictWrongAnswer indicates at least one testcase produced the
	// wrong output while running to completion.
	VerdictWrongAnswer Verdict = "Wrong Answer"
)

// SubmissionEvent is published after a submission has been persisted.
type SubmissionEvent struct {
	ID           string    `json:"id"`
	SubmissionID int64     `json:"submission_id"`
	UserID       int       `json:"user_id"`
	ProblemID    int       `json:"problem_id"`
	Status       Verdict   `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

// DailyCount is the number of submissions made on a calendar day.
type DailyCount struct {
	// Date is formatted as YYYY-MM-DD.
	Date  string `json:"date"`
	Count int    `json:"count"`
}
