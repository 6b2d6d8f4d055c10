package bus

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
)

type command interface{ isCommand() }

type event interface{ isEvent() }

type createUser struct{ Name string }

func (*createUser) isCommand() {}

type deleteUser struct{ ID string }

func (*deleteUser) isCommand() {}

type userCreated struct{ ID string }

func (*userCreated) isEvent() {}

type getUser struct{ ID string }

type user struct {
	ID   string
	Name string
}

type listUsers struct{ Limit int }

type renameUser struct {
	ID   string
	Name string
}

func (m *renameUser) Validate() error {
	if m.Name == "" {
		return errors.New("name is required")
	}
	return nil
}

type orderEvent struct{ OrderID string }

type orderShipped struct {
	orderEvent
	Carrier string
}

type orderDelivered struct {
	orderShipped
	SignedBy string
}

var errBoom = errors.New("boom")

// trail records the steps of a pipeline in the order they ran.
type trail struct {
	mu    sync.Mutex
	steps []string
}

func (t *trail) add(step string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.steps = append(t.steps, step)
}

func (t *trail) all() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.steps...)
}

func (t *trail) has(step string) bool {
	for _, s := range t.all() {
		if s == step {
			return true
		}
	}
	return false
}

func (t *trail) proc(name string, err error) ProcFunc[*createUser] {
	return func(context.Context, *createUser) error {
		t.add(name)
		return err
	}
}

func recordPre[M any](t *trail, name string, err error) Declaration {
	return AsPreHook[M](PreHookFunc[M](func(context.Context, M) error {
		t.add(name)
		return err
	}))
}

func recordPost[M any](t *trail, name string, err error) Declaration {
	return AsPostHook[M](PostHookFunc[M](func(_ context.Context, _ M, result any) error {
		t.add(name)
		return err
	}))
}

func recordErr[M any](t *trail, name string, ret error) Declaration {
	return AsErrorHook[M](ErrorHookFunc[M](func(_ context.Context, _ M, _ any, err error) error {
		t.add(fmt.Sprintf("%s(%v)", name, err))
		return ret
	}))
}

func recordEvent(t *trail, name string, err error) Declaration {
	return AsProc[*userCreated](ProcFunc[*userCreated](func(context.Context, *userCreated) error {
		t.add(name)
		return err
	}))
}

func userStream(t *trail, users ...user) Declaration {
	return AsStream[*listUsers, user](StreamFunc[*listUsers, user](func(_ context.Context, q *listUsers) iter.Seq2[user, error] {
		return func(yield func(user, error) bool) {
			for _, u := range users {
				t.add("yield " + u.ID)
				if !yield(u, nil) {
					return
				}
			}
		}
	}))
}

// createUserHandler is a struct handler, deduplicated by type.
type createUserHandler struct{ calls int }

func (h *createUserHandler) Run(context.Context, *createUser) error {
	h.calls++
	return nil
}

// userService handles queries and hooks itself around them.
type userService struct {
	trail *trail
}

func (s *userService) Call(_ context.Context, q *getUser) (*user, error) {
	s.trail.add("call")
	return &user{ID: q.ID, Name: "ada"}, nil
}

func (s *userService) PreHandle(context.Context, *getUser) error {
	s.trail.add("pre")
	return nil
}

func (s *userService) PostHandle(_ context.Context, _ *getUser, result any) error {
	s.trail.add(fmt.Sprintf("post %s", result.(*user).Name))
	return nil
}

func (s *userService) Declarations() []Declaration {
	return []Declaration{
		AsFunc[*getUser, *user](s),
		AsPreHook[*getUser](s),
		AsPostHook[*getUser](s),
	}
}

func newMediator(decls ...any) *Mediator {
	reg := NewRegistry()
	if err := reg.Register(decls...); err != nil {
		panic(err)
	}
	return New(reg)
}
