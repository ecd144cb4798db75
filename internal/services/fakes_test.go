package services

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/intprep/apiserver/internal/judge"
	"github.com/intprep/apiserver/internal/store"
	"github.com/intprep/apiserver/types"
)

func strPtr(s string) *string { return &s }

// echoJudge runs every request as a program that prints its stdin.
type echoJudge struct {
	mu        sync.Mutex
	submitted [][]judge.Request
	pending   map[string]judge.Request

	submitErr error
	pollErr   error
	status    func(req judge.Request) judge.Status
}

func newEchoJudge() *echoJudge {
	return &echoJudge{pending: make(map[string]judge.Request)}
}

func (j *echoJudge) Execute(ctx context.Context, reqs []judge.Request) ([]judge.Result, error) {
	tokens, err := j.submit(reqs)
	if err != nil {
		return nil, err
	}
	return j.poll(tokens)
}

func (j *echoJudge) submit(reqs []judge.Request) ([]string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.submitted = append(j.submitted, reqs)
	if j.submitErr != nil {
		return nil, j.submitErr
	}
	tokens := make([]string, len(reqs))
	for i, req := range reqs {
		token := string(rune('a'+len(j.pending))) + req.Stdin
		j.pending[token] = req
		tokens[i] = token
	}
	return tokens, nil
}

func (j *echoJudge) poll(tokens []string) ([]judge.Result, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.pollErr != nil {
		return nil, j.pollErr
	}
	results := make([]judge.Result, len(tokens))
	for i, token := range tokens {
		req := j.pending[token]
		status := judge.Status{ID: judge.StatusAccepted, Description: "Accepted"}
		if j.status != nil {
			status = j.status(req)
		}
		memory := 1024
		elapsed := judge.Seconds(0.01)
		results[i] = judge.Result{
			Token:  token,
			Status: status,
			Stdout: strPtr(req.Stdin + "\n"),
			Memory: &memory,
			Time:   &elapsed,
		}
	}
	return results, nil
}

func (j *echoJudge) calls() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.submitted)
}

type fakeProblemRepo struct {
	problems map[int]types.Problem
	solved   map[[2]int]bool
	nextID   int

	existsErr error
	solvedErr error
}

func newFakeProblemRepo(problems ...types.Problem) *fakeProblemRepo {
	repo := &fakeProblemRepo{
		problems: make(map[int]types.Problem),
		solved:   make(map[[2]int]bool),
		nextID:   1,
	}
	for _, p := range problems {
		repo.problems[p.ID] = p
		if p.ID >= repo.nextID {
			repo.nextID = p.ID + 1
		}
	}
	return repo
}

func (r *fakeProblemRepo) List(ctx context.Context, offset, limit int) ([]types.Problem, int, error) {
	out := make([]types.Problem, 0, len(r.problems))
	for _, p := range r.problems {
		out = append(out, p)
	}
	return out, len(out), nil
}

func (r *fakeProblemRepo) Get(ctx context.Context, id int) (types.Problem, error) {
	p, ok := r.problems[id]
	if !ok {
		return types.Problem{}, store.ErrNotFound
	}
	return p, nil
}

func (r *fakeProblemRepo) Exists(ctx context.Context, id int) (bool, error) {
	if r.existsErr != nil {
		return false, r.existsErr
	}
	_, ok := r.problems[id]
	return ok, nil
}

func (r *fakeProblemRepo) Create(ctx context.Context, p types.Problem) (types.Problem, error) {
	p.ID = r.nextID
	r.nextID++
	r.problems[p.ID] = p
	return p, nil
}

func (r *fakeProblemRepo) Update(ctx context.Context, p types.Problem) (types.Problem, error) {
	if _, ok := r.problems[p.ID]; !ok {
		return types.Problem{}, store.ErrNotFound
	}
	r.problems[p.ID] = p
	return p, nil
}

func (r *fakeProblemRepo) Delete(ctx context.Context, id int) error {
	if _, ok := r.problems[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.problems, id)
	return nil
}

func (r *fakeProblemRepo) MarkSolved(ctx context.Context, userID, problemID int) (bool, error) {
	if r.solvedErr != nil {
		return false, r.solvedErr
	}
	key := [2]int{userID, problemID}
	if r.solved[key] {
		return false, nil
	}
	r.solved[key] = true
	return true, nil
}

func (r *fakeProblemRepo) ListSolved(ctx context.Context, userID int) ([]types.Problem, error) {
	var out []types.Problem
	for key := range r.solved {
		if key[0] == userID {
			out = append(out, r.problems[key[1]])
		}
	}
	return out, nil
}

type fakeSubmissionWriter struct {
	created []types.Submission
	err     error
}

func (w *fakeSubmissionWriter) Create(ctx context.Context, s types.Submission) (types.Submission, error) {
	if w.err != nil {
		return types.Submission{}, w.err
	}
	s.ID = int64(len(w.created) + 1)
	w.created = append(w.created, s)
	return s, nil
}

type fakePublisher struct {
	events []types.SubmissionEvent
	err    error
}

func (p *fakePublisher) PublishSubmission(ctx context.Context, event types.SubmissionEvent) error {
	p.events = append(p.events, event)
	return p.err
}

type memoryObjects struct {
	objects map[string][]byte
}

func (m *memoryObjects) EnsureBucket(ctx context.Context) error { return nil }

func (m *memoryObjects) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.objects[key] = data
	return nil
}

func (m *memoryObjects) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memoryObjects) Delete(ctx context.Context, key string) error {
	delete(m.objects, key)
	return nil
}

func (m *memoryObjects) Bucket() string { return "test" }

func (m *memoryObjects) Close() error { return nil }
