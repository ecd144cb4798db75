package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/intprep/apiserver/internal/judge"
	"github.com/intprep/apiserver/internal/services"
	"github.com/intprep/apiserver/internal/store"
	"github.com/intprep/apiserver/types"
)

const testSecret = "test-secret"

type memUsers struct {
	mu     sync.Mutex
	users  map[int]types.User
	nextID int
}

func (m *memUsers) GetByID(ctx context.Context, id int) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (m *memUsers) GetByUsername(ctx context.Context, username string) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if user.Username == username {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (m *memUsers) Create(ctx context.Context, user types.User) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	user.ID = m.nextID
	user.CreatedAt = time.Now().UTC()
	m.users[user.ID] = user
	return user, nil
}

func (m *memUsers) Update(ctx context.Context, user types.User) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[user.ID]; !ok {
		return types.User{}, store.ErrNotFound
	}
	m.users[user.ID] = user
	return user, nil
}

func (m *memUsers) Delete(ctx context.Context, id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.users, id)
	return nil
}

type memProblems struct {
	mu       sync.Mutex
	problems map[int]types.Problem
	solved   map[[2]int]bool
	nextID   int
}

func (m *memProblems) List(ctx context.Context, offset, limit int) ([]types.Problem, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.Problem, 0, len(m.problems))
	for _, p := range m.problems {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	total := len(out)
	if offset >= total {
		return []types.Problem{}, total, nil
	}
	end := min(offset+limit, total)
	return out[offset:end], total, nil
}

func (m *memProblems) Get(ctx context.Context, id int) (types.Problem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.problems[id]
	if !ok {
		return types.Problem{}, store.ErrNotFound
	}
	return p, nil
}

func (m *memProblems) Exists(ctx context.Context, id int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.problems[id]
	return ok, nil
}

func (m *memProblems) Create(ctx context.Context, p types.Problem) (types.Problem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	p.ID = m.nextID
	m.problems[p.ID] = p
	return p, nil
}

func (m *memProblems) Update(ctx context.Context, p types.Problem) (types.Problem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.problems[p.ID]; !ok {
		return types.Problem{}, store.ErrNotFound
	}
	m.problems[p.ID] = p
	return p, nil
}

func (m *memProblems) Delete(ctx context.Context, id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.problems[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.problems, id)
	return nil
}

func (m *memProblems) MarkSolved(ctx context.Context, userID, problemID int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := [2]int{userID, problemID}
	if m.solved[key] {
		return false, nil
	}
	m.solved[key] = true
	return true, nil
}

func (m *memProblems) ListSolved(ctx context.Context, userID int) ([]types.Problem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.Problem
	for key := range m.solved {
		if key[0] == userID {
			out = append(out, m.problems[key[1]])
		}
	}
	return out, nil
}

type memSubmissions struct {
	mu          sync.Mutex
	submissions []types.Submission
}

func (m *memSubmissions) Create(ctx context.Context, s types.Submission) (types.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.ID = int64(len(m.submissions) + 1)
	s.CreatedAt = time.Now().UTC()
	m.submissions = append(m.submissions, s)
	return s, nil
}

func (m *memSubmissions) GetForUser(ctx context.Context, id int64, userID int) (types.Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.submissions {
		if s.ID == id && s.UserID == userID {
			return s, nil
		}
	}
	return types.Submission{}, store.ErrNotFound
}

func (m *memSubmissions) ListByUser(ctx context.Context, userID int) ([]types.Submission, error) {
	return m.filter(func(s types.Submission) bool { return s.UserID == userID }), nil
}

func (m *memSubmissions) ListByUserAndProblem(ctx context.Context, userID, problemID int) ([]types.Submission, error) {
	return m.filter(func(s types.Submission) bool {
		return s.UserID == userID && s.ProblemID == problemID
	}), nil
}

func (m *memSubmissions) CountByProblem(ctx context.Context, problemID int) (int, error) {
	return len(m.filter(func(s types.Submission) bool { return s.ProblemID == problemID })), nil
}

func (m *memSubmissions) CountsByDate(ctx context.Context, userID int) ([]types.DailyCount, error) {
	counts := map[string]int{}
	for _, s := range m.filter(func(s types.Submission) bool { return s.UserID == userID }) {
		counts[s.CreatedAt.Format("2006-01-02")]++
	}
	out := make([]types.DailyCount, 0, len(counts))
	for date, count := range counts {
		out = append(out, types.DailyCount{Date: date, Count: count})
	}
	return out, nil
}

func (m *memSubmissions) filter(keep func(types.Submission) bool) []types.Submission {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.Submission
	for _, s := range m.submissions {
		if keep(s) {
			out = append(out, s)
		}
	}
	return out
}

type memPlaylists struct {
	mu        sync.Mutex
	playlists map[int]types.Playlist
	problems  *memProblems
	nextID    int
}

func (m *memPlaylists) Create(ctx context.Context, p types.Playlist) (types.Playlist, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.playlists {
		if existing.UserID == p.UserID && existing.Name == p.Name {
			return types.Playlist{}, store.ErrConflict
		}
	}
	m.nextID++
	p.ID = m.nextID
	p.Problems = []types.Problem{}
	m.playlists[p.ID] = p
	return p, nil
}

func (m *memPlaylists) ListByUser(ctx context.Context, userID int) ([]types.Playlist, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.Playlist
	for _, p := range m.playlists {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memPlaylists) GetForUser(ctx context.Context, id, userID int) (types.Playlist, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.playlists[id]
	if !ok || p.UserID != userID {
		return types.Playlist{}, store.ErrNotFound
	}
	return p, nil
}

func (m *memPlaylists) DeleteForUser(ctx context.Context, id, userID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.playlists[id]
	if !ok || p.UserID != userID {
		return store.ErrNotFound
	}
	delete(m.playlists, id)
	return nil
}

func (m *memPlaylists) AddProblems(ctx context.Context, playlistID int, problemIDs []int) (int, error) {
	var toAdd []types.Problem
	for _, id := range problemIDs {
		problem, err := m.problems.Get(ctx, id)
		if err != nil {
			return 0, err
		}
		toAdd = append(toAdd, problem)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.playlists[playlistID]
	added := 0
	for _, problem := range toAdd {
		if !containsProblem(p.Problems, problem.ID) {
			p.Problems = append(p.Problems, problem)
			added++
		}
	}
	m.playlists[playlistID] = p
	return added, nil
}

func (m *memPlaylists) RemoveProblems(ctx context.Context, playlistID int, problemIDs []int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.playlists[playlistID]
	kept := p.Problems[:0]
	for _, problem := range p.Problems {
		remove := false
		for _, id := range problemIDs {
			remove = remove || problem.ID == id
		}
		if !remove {
			kept = append(kept, problem)
		}
	}
	removed := len(p.Problems) - len(kept)
	p.Problems = kept
	m.playlists[playlistID] = p
	return removed, nil
}

func containsProblem(problems []types.Problem, id int) bool {
	for _, p := range problems {
		if p.ID == id {
			return true
		}
	}
	return false
}

// echoJudge runs every program as one that prints its stdin back. When a
// request carries an expected output the verdict is computed like the judge.
type echoJudge struct {
	mu      sync.Mutex
	pending map[string]judge.Request
	failed  bool
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
	if j.failed {
		return nil, judge.ErrJudgeUnavailable
	}
	tokens := make([]string, len(reqs))
	for i, req := range reqs {
		token := fmt.Sprintf("token-%d", len(j.pending))
		j.pending[token] = req
		tokens[i] = token
	}
	return tokens, nil
}

func (j *echoJudge) poll(tokens []string) ([]judge.Result, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	results := make([]judge.Result, len(tokens))
	for i, token := range tokens {
		req := j.pending[token]
		stdout := req.Stdin + "\n"
		status := judge.Status{ID: judge.StatusAccepted, Description: "Accepted"}
		if req.ExpectedOutput != "" && strings.TrimSpace(stdout) != strings.TrimSpace(req.ExpectedOutput) {
			status = judge.Status{ID: judge.StatusWrongAnswer, Description: "Wrong Answer"}
		}
		results[i] = judge.Result{
			Token:  token,
			Status: status,
			Stdout: &stdout,
		}
	}
	return results, nil
}

type testAPI struct {
	router      chi.Router
	users       *memUsers
	problems    *memProblems
	submissions *memSubmissions
	judge       *echoJudge
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	api := &testAPI{
		users:       &memUsers{users: make(map[int]types.User)},
		problems:    &memProblems{problems: make(map[int]types.Problem), solved: make(map[[2]int]bool)},
		submissions: &memSubmissions{},
		judge:       &echoJudge{pending: make(map[string]judge.Request)},
	}
	playlists := &memPlaylists{playlists: make(map[int]types.Playlist), problems: api.problems}

	userService := services.NewUserService(api.users, nil, nil)
	problemService := services.NewProblemService(api.problems, api.judge, nil, nil)
	executionService := services.NewExecutionService(api.judge, api.problems, api.submissions, nil, nil)
	submissionService := services.NewSubmissionService(api.submissions)
	playlistService := services.NewPlaylistService(playlists)

	auth := NewAuthHandler(userService, testSecret, false, nil)
	submissionHandler := NewSubmissionHandler(submissionService, nil)

	r := chi.NewRouter()
	r.Get("/healthz", Healthz)
	DocsRouter(r)
	r.Route("/auth", func(r chi.Router) { AuthRouter(r, auth) })
	r.Route("/problems", func(r chi.Router) {
		ProblemRouter(r, NewProblemHandler(problemService, nil), auth.RequireAuth)
		ProblemSubmissionRouter(r, submissionHandler, auth.RequireAuth)
	})
	r.Route("/execute", func(r chi.Router) {
		ExecuteRouter(r, NewExecuteHandler(executionService, nil), auth.RequireAuth)
	})
	r.Route("/submissions", func(r chi.Router) { SubmissionRouter(r, submissionHandler, auth.RequireAuth) })
	r.Route("/playlists", func(r chi.Router) {
		PlaylistRouter(r, NewPlaylistHandler(playlistService, nil), auth.RequireAuth)
	})
	api.router = r
	return api
}

// userToken stores a user directly and returns a signed token for it.
func (api *testAPI) userToken(t *testing.T, username, role string) (types.User, string) {
	t.Helper()
	user, err := api.users.Create(context.Background(), types.User{
		Username: username,
		Email:    username + "@example.com",
		Name:     username,
		Role:     role,
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	token, err := issueToken(user.ID, []byte(testSecret), time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return user, token
}

func (api *testAPI) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		data, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	api.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(strings.NewReader(rec.Body.String())).Decode(&out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("expected status %d, got %d: %s", want, rec.Code, rec.Body.String())
	}
}
