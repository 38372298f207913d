package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tnqbao/gau-site-director/entity"
)

// memStore records every write the pipeline makes.
type memStore struct {
	nextID   uint
	created  []*entity.Action
	saves    []entity.Action
	started  int
	saveErr  error
	startErr error
}

func (s *memStore) CreateAction(_ context.Context, a *entity.Action) error {
	s.nextID++
	a.ID = s.nextID
	s.created = append(s.created, a)
	return nil
}

func (s *memStore) SaveAction(_ context.Context, a *entity.Action) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves = append(s.saves, *a)
	return nil
}

func (s *memStore) MarkOperationStarted(_ context.Context, op *entity.Operation) error {
	if s.startErr != nil {
		return s.startErr
	}
	s.started++
	return nil
}

func (s *memStore) savesOf(slug string) []entity.Action {
	var out []entity.Action
	for _, a := range s.saves {
		if a.Slug == slug {
			out = append(out, a)
		}
	}
	return out
}

func step(slug string, cb Callback) Step {
	return Step{Spec: ActionSpec{Slug: slug, Name: slug}, Callback: cb}
}

func succeed(items ...Item) Callback {
	return func(context.Context, *entity.Site, Scope) Sequence { return Items(items...) }
}

func fixedClock() func() time.Time {
	t := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return t }
}

func TestRegisterPersistsInOrder(t *testing.T) {
	store := &memStore{}
	op := &entity.Operation{ID: 7, Type: entity.OperationRenameSite}
	p := New(op, store)

	require.NoError(t, p.Register(context.Background(),
		step("first", succeed()),
		Step{Spec: ActionSpec{Slug: "second", Name: "Second", EquivalentCommand: "true", UserRecoverable: true}, Callback: succeed()},
	))

	require.Len(t, store.created, 2)
	assert.Equal(t, "first", store.created[0].Slug)
	assert.Equal(t, "second", store.created[1].Slug)
	assert.Equal(t, uint(7), store.created[1].OperationID)
	assert.True(t, store.created[1].UserRecoverable)
	assert.Equal(t, "true", store.created[1].EquivalentCommand)
	assert.Less(t, store.created[0].ID, store.created[1].ID)
	assert.Nil(t, store.created[0].StartedTime)

	err := p.Register(context.Background(), Step{Spec: ActionSpec{Slug: "broken"}})
	assert.ErrorIs(t, err, ErrNilCallback)
}

func TestRunHaltsOnFirstFailure(t *testing.T) {
	store := &memStore{}
	op := &entity.Operation{ID: 1, SiteID: 3, Type: entity.OperationRenameSite}
	var observed []string
	p := New(op, store, WithClock(fixedClock()), WithActionObserver(func(_ context.Context, a *entity.Action) {
		observed = append(observed, a.Slug)
	}))

	boom := errors.New("appserver exploded")
	laterRan := false
	require.NoError(t, p.Register(context.Background(),
		step("a1", succeed(Message("one"))),
		step("a2", succeed(Message("two"))),
		step("a3", func(context.Context, *entity.Site, Scope) Sequence {
			return func(yield func(Item, error) bool) {
				if !yield(Message("trying"), nil) {
					return
				}
				yield(Item{}, boom)
			}
		}),
		step("a4", func(context.Context, *entity.Site, Scope) Sequence {
			laterRan = true
			return Items()
		}),
	))

	err := p.Run(context.Background(), &entity.Site{ID: 3}, Scope{"pingable_appservers": []int{0}})

	var actionErr *ActionError
	require.ErrorAs(t, err, &actionErr)
	assert.Equal(t, "a3", actionErr.Slug)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, StateFailed, p.State())
	assert.False(t, laterRan)
	assert.Equal(t, []string{"a1", "a2", "a3"}, observed)

	actions := p.Actions()
	assert.True(t, actions[0].Succeeded())
	assert.True(t, actions[1].Succeeded())
	assert.True(t, actions[2].Failed())
	assert.Nil(t, actions[3].StartedTime)
	assert.Nil(t, actions[3].Result)
	assert.Empty(t, store.savesOf("a4"))

	msg := actions[2].Message
	assert.True(t, strings.HasPrefix(msg, "trying\n"), msg)
	assert.Contains(t, msg, "*errors.errorString: appserver exploded")
	assert.Contains(t, msg, "Scope: {pingable_appservers=[0]}")

	require.NotNil(t, op.StartedTime)
	assert.Equal(t, 1, store.started)
}

func TestRunPersistsEveryItem(t *testing.T) {
	store := &memStore{}
	op := &entity.Operation{ID: 2, Type: entity.OperationRenameSite}
	p := New(op, store)

	require.NoError(t, p.Register(context.Background(),
		step("change_site_name", succeed(BeforeState("old"), Message("renaming"), AfterState("new"))),
	))
	require.NoError(t, p.Run(context.Background(), &entity.Site{}, nil))

	saves := store.savesOf("change_site_name")
	// start, three items, result
	require.Len(t, saves, 5)
	assert.NotNil(t, saves[0].StartedTime)
	assert.Equal(t, "old", saves[1].BeforeState)
	assert.Empty(t, saves[1].AfterState)
	assert.Equal(t, "renaming", saves[2].Message)
	assert.Equal(t, "new", saves[3].AfterState)
	assert.Nil(t, saves[3].Result)
	assert.True(t, saves[4].Succeeded())
	assert.Equal(t, StateSucceeded, p.State())
}

func TestRunRejectsMalformedOutput(t *testing.T) {
	store := &memStore{}
	p := New(&entity.Operation{ID: 3}, store)
	require.NoError(t, p.Register(context.Background(),
		step("bad", succeed(Message("fine"), Item{Kind: 99, Text: "??"})),
		step("after", succeed()),
	))

	err := p.Run(context.Background(), &entity.Site{}, Scope{})

	var malformed *MalformedOutputError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, "bad", malformed.Slug)
	assert.Contains(t, p.Actions()[0].Message, "*pipeline.MalformedOutputError")
	assert.Nil(t, p.Actions()[1].StartedTime)
}

func TestRunOnlyOnce(t *testing.T) {
	p := New(&entity.Operation{ID: 4}, &memStore{})
	require.NoError(t, p.Run(context.Background(), &entity.Site{}, nil))
	assert.ErrorIs(t, p.Run(context.Background(), &entity.Site{}, nil), ErrAlreadyRun)
	assert.ErrorIs(t, p.Register(context.Background(), step("late", succeed())), ErrAlreadyRun)
}

func TestRunStaysPendingWhenStartCannotBePersisted(t *testing.T) {
	store := &memStore{startErr: errors.New("db down")}
	op := &entity.Operation{ID: 5}
	p := New(op, store)
	require.NoError(t, p.Register(context.Background(), step("a", succeed())))

	err := p.Run(context.Background(), &entity.Site{}, nil)
	require.Error(t, err)
	assert.Nil(t, op.StartedTime)
	assert.Equal(t, StatePending, p.State())
	assert.Nil(t, p.Actions()[0].StartedTime)
}

func TestScopeFlowsBetweenActions(t *testing.T) {
	store := &memStore{}
	p := New(&entity.Operation{ID: 6}, store)

	var seen []int
	require.NoError(t, p.Register(context.Background(),
		step("publish", func(ctx context.Context, _ *entity.Site, scope Scope) Sequence {
			return Stream(ctx, func(ctx context.Context, out *Emitter) error {
				scope["pingable_appservers"] = []int{2, 5}
				out.Message("published")
				return nil
			})
		}),
		step("consume", func(ctx context.Context, _ *entity.Site, scope Scope) Sequence {
			seen = scope.GetInts("pingable_appservers")
			return nil
		}),
	))

	require.NoError(t, p.Run(context.Background(), &entity.Site{}, Scope{}))
	assert.Equal(t, []int{2, 5}, seen)
}

func TestErrorKindSkipsWrappers(t *testing.T) {
	inner := &MalformedOutputError{Slug: "x"}
	assert.Equal(t, "*pipeline.MalformedOutputError", ErrorKind(inner))
	wrapped := errors.Join(errors.New("context"), inner)
	assert.Equal(t, "*errors.joinError", ErrorKind(wrapped))
	assert.Equal(t, "*pipeline.MalformedOutputError", ErrorKind(fmt.Errorf("update nginx: %w", inner)))
}
