package services

import (
	"context"
	"errors"
	"testing"

	"github.com/intprep/apiserver/internal/store"
	"github.com/intprep/apiserver/types"
)

type fakeUserRepo struct {
	users  map[int]types.User
	loads  int
	nextID int
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[int]types.User), nextID: 1}
}

func (r *fakeUserRepo) GetByID(ctx context.Context, id int) (types.User, error) {
	r.loads++
	user, ok := r.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (r *fakeUserRepo) GetByUsername(ctx context.Context, username string) (types.User, error) {
	for _, user := range r.users {
		if user.Username == username {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *fakeUserRepo) Create(ctx context.Context, user types.User) (types.User, error) {
	user.ID = r.nextID
	r.nextID++
	r.users[user.ID] = user
	return user, nil
}

func (r *fakeUserRepo) Update(ctx context.Context, user types.User) (types.User, error) {
	if _, ok := r.users[user.ID]; !ok {
		return types.User{}, store.ErrNotFound
	}
	r.users[user.ID] = user
	return user, nil
}

func (r *fakeUserRepo) Delete(ctx context.Context, id int) error {
	delete(r.users, id)
	return nil
}

type mapUserCache struct {
	users  map[int]types.User
	getErr error
}

func (c *mapUserCache) Get(ctx context.Context, id int) (types.User, bool, error) {
	if c.getErr != nil {
		return types.User{}, false, c.getErr
	}
	user, ok := c.users[id]
	return user, ok, nil
}

func (c *mapUserCache) Set(ctx context.Context, user types.User) error {
	user.PasswordHash = ""
	c.users[user.ID] = user
	return nil
}

func (c *mapUserCache) Delete(ctx context.Context, id int) error {
	delete(c.users, id)
	return nil
}

func TestRegisterAndAuthenticate(t *testing.T) {
	svc := NewUserService(newFakeUserRepo(), nil, nil)

	user, err := svc.Register(t.Context(), types.User{Username: "ada", Email: "ada@example.com", Name: "Ada"}, "hunter22")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.Role != types.RoleUser || user.PasswordHash == "" || user.PasswordHash == "hunter22" {
		t.Fatalf("unexpected registered user %+v", user)
	}

	if _, err := svc.Register(t.Context(), types.User{Username: "ada"}, "x"); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	if _, err := svc.Authenticate(t.Context(), " ada ", "hunter22"); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if _, err := svc.Authenticate(t.Context(), "ada", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Authenticate(t.Context(), "nobody", "x"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestGetByIDUsesCache(t *testing.T) {
	repo := newFakeUserRepo()
	repo.users[1] = types.User{ID: 1, Username: "ada", PasswordHash: "hash"}
	cache := &mapUserCache{users: make(map[int]types.User)}
	svc := NewUserService(repo, cache, nil)

	for range 3 {
		user, err := svc.GetByID(t.Context(), 1)
		if err != nil || user.Username != "ada" {
			t.Fatalf("get: %+v %v", user, err)
		}
	}
	if repo.loads != 1 {
		t.Fatalf("expected one repository load, got %d", repo.loads)
	}

	if _, err := svc.Update(t.Context(), types.User{ID: 1, Username: "ada2"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	user, _ := svc.GetByID(t.Context(), 1)
	if user.Username != "ada2" || repo.loads != 2 {
		t.Fatalf("update must evict cache: %+v loads=%d", user, repo.loads)
	}
}

func TestGetByIDFallsBackOnCacheError(t *testing.T) {
	repo := newFakeUserRepo()
	repo.users[1] = types.User{ID: 1, Username: "ada"}
	svc := NewUserService(repo, &mapUserCache{users: map[int]types.User{}, getErr: errors.New("redis down")}, nil)

	user, err := svc.GetByID(t.Context(), 1)
	if err != nil || user.Username != "ada" {
		t.Fatalf("expected repository fallback, got %+v %v", user, err)
	}
}
