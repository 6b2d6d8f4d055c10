package bus

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/stretchr/testify/suite"
)

type PipelineSuite struct {
	suite.Suite
	ctx   context.Context
	trail *trail
}

func TestPipelineSuite(t *testing.T) {
	suite.Run(t, new(PipelineSuite))
}

func (s *PipelineSuite) SetupTest() {
	s.ctx = context.Background()
	s.trail = &trail{}
}

func (s *PipelineSuite) TestHooksRunInRegistrationOrderAroundHandler() {
	t := s.trail
	m := newMediator(
		recordPre[any](t, "global-pre", nil),
		recordPre[*createUser](t, "pre", nil),
		AsProc[*createUser](t.proc("handler", nil)),
		recordPost[*createUser](t, "post-1", nil),
		recordPost[*createUser](t, "post-2", nil),
		recordPost[any](t, "global-post", nil),
	)

	s.Require().NoError(Send(s.ctx, m, &createUser{Name: "ada"}))
	s.Assert().Equal([]string{"global-pre", "pre", "handler", "post-1", "post-2", "global-post"}, t.all())
}

func (s *PipelineSuite) TestPreHookFailureRoutesToAllErrorHooks() {
	t := s.trail
	m := newMediator(
		recordPre[*createUser](t, "pre", errBoom),
		AsProc[*createUser](t.proc("handler", nil)),
		recordPost[*createUser](t, "post", nil),
		recordErr[any](t, "global-err", nil),
		recordErr[*createUser](t, "err", nil),
	)

	err := Send(s.ctx, m, &createUser{})

	s.Require().NoError(err, "error hooks absorbed the failure")
	s.Assert().Equal([]string{"pre", "global-err(boom)", "err(boom)"}, t.all())
}

func (s *PipelineSuite) TestFailureWithoutErrorHooksIsReturnedUnchanged() {
	m := newMediator(AsProc[*createUser](s.trail.proc("handler", errBoom)))

	err := Send(s.ctx, m, &createUser{})

	s.Assert().Same(errBoom, err)
}

func (s *PipelineSuite) TestPostHookFailureIsRouted() {
	t := s.trail
	m := newMediator(
		AsProc[*createUser](t.proc("handler", nil)),
		recordPost[*createUser](t, "post-1", errBoom),
		recordPost[*createUser](t, "post-2", nil),
		recordErr[*createUser](t, "err", nil),
	)

	s.Require().NoError(Send(s.ctx, m, &createUser{}))
	s.Assert().Equal([]string{"handler", "post-1", "err(boom)"}, t.all())
}

func (s *PipelineSuite) TestFailingErrorHookStopsChain() {
	t := s.trail
	hookErr := errors.New("reporter down")
	m := newMediator(
		AsProc[*createUser](t.proc("handler", errBoom)),
		recordErr[*createUser](t, "first", hookErr),
		recordErr[*createUser](t, "second", nil),
	)

	err := Send(s.ctx, m, &createUser{})

	s.Assert().ErrorIs(err, hookErr)
	s.Assert().ErrorIs(err, errBoom)
	var herr *ErrorHookError
	s.Require().ErrorAs(err, &herr)
	s.Assert().Equal(reflect.TypeFor[ErrorHookFunc[*createUser]](), herr.Hook)
	s.Assert().Equal([]string{"handler", "first(boom)"}, t.all())
}

func (s *PipelineSuite) TestErrorHookSeesFailureInHandleContext() {
	var seen error
	m := newMediator(
		AsProc[*createUser](s.trail.proc("handler", errBoom)),
		AsErrorHook[*createUser](ErrorHookFunc[*createUser](func(ctx context.Context, _ *createUser, _ any, _ error) error {
			hc, ok := FromContext(ctx)
			s.Require().True(ok)
			seen = hc.Err()
			return nil
		})),
	)

	s.Require().NoError(Send(s.ctx, m, &createUser{}))
	s.Assert().Same(errBoom, seen)
}

func (s *PipelineSuite) TestMultipleHandlersFailBeforeAnyHook() {
	t := s.trail
	m := newMediator(
		recordPre[any](t, "pre", nil),
		AsProc[*createUser](t.proc("first", nil)),
		AsProc[*createUser](t.proc("second", nil)),
		recordErr[any](t, "err", nil),
	)

	err := Send(s.ctx, m, &createUser{})

	s.Assert().ErrorIs(err, ErrMultipleHandlerFound)
	s.Assert().True(IsConfigurationError(err))
	var merr *MultipleHandlerFoundError
	s.Require().ErrorAs(err, &merr)
	s.Assert().Equal(2, merr.Count)
	s.Assert().Empty(t.all(), "neither hooks nor handlers ran")
}

func (s *PipelineSuite) TestNestedConfigurationErrorIsRouted() {
	downstream := newMediator()
	var seen error
	m := newMediator(
		AsProc[*createUser](ProcFunc[*createUser](func(ctx context.Context, _ *createUser) error {
			if err := Send(ctx, downstream, &deleteUser{ID: "u-1"}); err != nil {
				return fmt.Errorf("downstream: %w", err)
			}
			return nil
		})),
		AsErrorHook[any](ErrorHookFunc[any](func(_ context.Context, _ any, _ any, err error) error {
			seen = err
			return nil
		})),
	)

	s.Require().NoError(Send(s.ctx, m, &createUser{}), "error hook absorbed the nested failure")
	s.Require().Error(seen)
	s.Assert().ErrorIs(seen, ErrNoHandlerFound)
	s.Assert().Contains(seen.Error(), "downstream: ")
}

func (s *PipelineSuite) TestStrategySelectsHandlersByMode() {
	t := s.trail
	m := newMediator(
		AsSyncProc[*createUser](SyncProcFunc[*createUser](func(*createUser) error {
			t.add("sync")
			return nil
		})),
		recordErr[any](t, "err", nil),
	)

	err := Send(s.ctx, m, &createUser{})
	s.Assert().ErrorIs(err, ErrNoHandlerFound)
	var nerr *NoHandlerFoundError
	s.Require().ErrorAs(err, &nerr)
	s.Assert().Equal(Asynchronous, nerr.Mode)
	s.Assert().Empty(t.all())

	s.Require().NoError(SendSync(s.ctx, m, &createUser{}))
	s.Assert().Equal([]string{"sync"}, t.all())
}

func (s *PipelineSuite) TestQueryReturnsTypedResult() {
	svc := &userService{trail: s.trail}
	m := newMediator(svc)

	u, err := Query[*user](s.ctx, m, &getUser{ID: "u-1"})

	s.Require().NoError(err)
	s.Assert().Equal(&user{ID: "u-1", Name: "ada"}, u)
	s.Assert().Equal([]string{"pre", "call", "post ada"}, s.trail.all())
}

func (s *PipelineSuite) TestQuerySync() {
	m := newMediator(AsSyncFunc[*getUser, user](SyncFuncFunc[*getUser, user](func(q *getUser) (user, error) {
		return user{ID: q.ID}, nil
	})))

	u, err := QuerySync[user](s.ctx, m, &getUser{ID: "u-2"})

	s.Require().NoError(err)
	s.Assert().Equal("u-2", u.ID)
}

func (s *PipelineSuite) TestQueryResultTypeMismatch() {
	m := newMediator(&userService{trail: s.trail})

	_, err := Query[string](s.ctx, m, &getUser{ID: "u-1"})

	s.Assert().ErrorIs(err, ErrResultType)
}

func (s *PipelineSuite) TestAbsorbedQueryReturnsRecordedResult() {
	fallback := &user{ID: "cached"}
	m := newMediator(
		AsFunc[*getUser, *user](FuncFunc[*getUser, *user](func(context.Context, *getUser) (*user, error) {
			return nil, errBoom
		})),
		AsErrorHook[*getUser](ErrorHookFunc[*getUser](func(ctx context.Context, _ *getUser, _ any, _ error) error {
			hc, _ := FromContext(ctx)
			hc.SetResult(fallback)
			return nil
		})),
	)

	u, err := Query[*user](s.ctx, m, &getUser{})

	s.Require().NoError(err)
	s.Assert().Same(fallback, u)
}

func (s *PipelineSuite) TestValidationRunsBeforePreHooks() {
	t := s.trail
	var routed error
	m := newMediator(
		AsPreHook[*renameUser](PreHookFunc[*renameUser](func(context.Context, *renameUser) error {
			t.add("pre")
			return nil
		})),
		AsProc[*renameUser](ProcFunc[*renameUser](func(context.Context, *renameUser) error {
			t.add("handler")
			return nil
		})),
		AsErrorHook[any](ErrorHookFunc[any](func(_ context.Context, _ any, _ any, err error) error {
			routed = err
			return nil
		})),
	)

	s.Require().NoError(Send(s.ctx, m, &renameUser{ID: "u-1"}))

	var verr *ValidationError
	s.Assert().ErrorAs(routed, &verr)
	s.Assert().EqualError(errors.Unwrap(routed), "name is required")
	s.Assert().Empty(t.all())

	s.Require().NoError(Send(s.ctx, m, &renameUser{ID: "u-1", Name: "grace"}))
	s.Assert().Equal([]string{"pre", "handler"}, t.all())
}

func (s *PipelineSuite) TestCancellationIsNeverRouted() {
	t := s.trail
	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	m := newMediator(
		AsPreHook[*createUser](PreHookFunc[*createUser](func(context.Context, *createUser) error {
			t.add("pre")
			cancel()
			return nil
		})),
		recordPre[*createUser](t, "pre-2", nil),
		AsProc[*createUser](t.proc("handler", nil)),
		recordErr[any](t, "err", nil),
	)

	err := Send(ctx, m, &createUser{})

	s.Assert().ErrorIs(err, context.Canceled)
	s.Assert().Equal([]string{"pre"}, t.all())
}

func (s *PipelineSuite) TestHandlerReturningCancellationIsNotRouted() {
	t := s.trail
	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	m := newMediator(
		AsProc[*createUser](ProcFunc[*createUser](func(ctx context.Context, _ *createUser) error {
			cancel()
			return ctx.Err()
		})),
		recordErr[any](t, "err", nil),
	)

	s.Assert().ErrorIs(Send(ctx, m, &createUser{}), context.Canceled)
	s.Assert().Empty(t.all())
}

func (s *PipelineSuite) TestCanceledBeforeDispatch() {
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()

	m := newMediator(AsProc[*createUser](s.trail.proc("handler", nil)))

	s.Assert().ErrorIs(Send(ctx, m, &createUser{}), context.Canceled)
	s.Assert().Empty(s.trail.all())
}

func (s *PipelineSuite) TestHooksReceiveConvertedMessage() {
	var got *orderEvent
	reg := NewRegistry()
	s.Require().NoError(Extend(reg, func(e *orderShipped) *orderEvent { return &e.orderEvent }))
	s.Require().NoError(reg.Register(
		AsProc[*orderShipped](ProcFunc[*orderShipped](func(context.Context, *orderShipped) error { return nil })),
		AsPreHook[*orderEvent](PreHookFunc[*orderEvent](func(_ context.Context, e *orderEvent) error {
			got = e
			return nil
		})),
	))
	m := New(reg)

	msg := &orderShipped{orderEvent: orderEvent{OrderID: "o-7"}}
	s.Require().NoError(Send(s.ctx, m, msg))
	s.Assert().Same(&msg.orderEvent, got)
}

func (s *PipelineSuite) TestNilMessage() {
	m := newMediator()
	s.Assert().ErrorIs(Send(s.ctx, m, nil), ErrNilMessage)
}
