package workspace

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeworks/forgectl/internal/client"
	"github.com/forgeworks/forgectl/internal/log"
)

// stubClient scripts the workspace endpoints for registry tests.
type stubClient struct {
	listFn   func(ctx context.Context) ([]client.Workspace, error)
	createFn func(ctx context.Context, name string) (*client.Workspace, error)
	deleteFn func(ctx context.Context, uuid string) error
}

func (s *stubClient) ListWorkspaces(ctx context.Context) ([]client.Workspace, error) {
	return s.listFn(ctx)
}

func (s *stubClient) CreateWorkspace(ctx context.Context, name string) (*client.Workspace, error) {
	return s.createFn(ctx, name)
}

func (s *stubClient) DeleteWorkspace(ctx context.Context, uuid string) error {
	return s.deleteFn(ctx, uuid)
}

func newLoadedRegistry(t *testing.T, stub *stubClient, remote ...client.Workspace) *Registry {
	t.Helper()
	if stub.listFn == nil {
		stub.listFn = func(context.Context) ([]client.Workspace, error) {
			return remote, nil
		}
	}
	r, err := NewRegistry(stub, log.NewNop())
	require.NoError(t, err)
	require.NoError(t, r.Load(context.Background()))
	return r
}

func names(workspaces []Workspace) []string {
	out := make([]string, len(workspaces))
	for i, ws := range workspaces {
		out[i] = ws.Name
	}
	return out
}

func TestList_DefaultIsAlwaysFirst(t *testing.T) {
	r := newLoadedRegistry(t, &stubClient{},
		client.Workspace{ID: 1, UUID: "abc", Name: "Ops", CreatedAt: "2024-01-01"},
		client.Workspace{ID: 2, UUID: "def", Name: "Dev", CreatedAt: "2024-01-02"},
	)

	assert.Equal(t, []string{DefaultName, "Ops", "Dev"}, names(r.List()))
	assert.True(t, r.List()[0].IsDefault())
}

func TestLoad_SkipsReservedDefaultName(t *testing.T) {
	r := newLoadedRegistry(t, &stubClient{},
		client.Workspace{ID: 1, UUID: "abc", Name: "Default"},
		client.Workspace{ID: 2, UUID: "def", Name: "Ops"},
	)

	assert.Equal(t, []string{DefaultName, "Ops"}, names(r.List()))
}

func TestResolve_CaseInsensitiveMatch(t *testing.T) {
	r := newLoadedRegistry(t, &stubClient{},
		client.Workspace{ID: 1, UUID: "abc", Name: "alpha"},
	)

	res := r.Resolve("Alpha")
	require.NotNil(t, res.Match)
	assert.Equal(t, "alpha", res.Match.Name)
	assert.False(t, res.CanOfferCreate, "never offer creating a case-insensitive duplicate")
}

func TestResolve_WhitespaceOnlyNeverOffersCreate(t *testing.T) {
	r := newLoadedRegistry(t, &stubClient{})

	res := r.Resolve("   ")
	assert.Nil(t, res.Match)
	assert.False(t, res.CanOfferCreate)
}

func TestResolve_UnknownNameOffersCreate(t *testing.T) {
	r := newLoadedRegistry(t, &stubClient{},
		client.Workspace{ID: 1, UUID: "abc", Name: "Ops"},
	)

	res := r.Resolve("  Staging ")
	assert.Nil(t, res.Match)
	assert.True(t, res.CanOfferCreate)
}

func TestResolve_MatchesDefault(t *testing.T) {
	r := newLoadedRegistry(t, &stubClient{})

	res := r.Resolve("default")
	require.NotNil(t, res.Match)
	assert.True(t, res.Match.IsDefault())
	assert.False(t, res.CanOfferCreate)
}

func TestCreate_AppendsCanonicalWorkspace(t *testing.T) {
	stub := &stubClient{
		createFn: func(ctx context.Context, name string) (*client.Workspace, error) {
			assert.Equal(t, "Ops", name, "name should be trimmed before submission")
			return &client.Workspace{ID: 1, UUID: "abc", Name: "Ops", CreatedAt: "2024-01-01"}, nil
		},
	}
	r := newLoadedRegistry(t, stub)

	ws, err := r.Create(context.Background(), "  Ops ")
	require.NoError(t, err)

	assert.Equal(t, Workspace{ID: 1, UUID: "abc", Name: "Ops", CreatedAt: "2024-01-01"}, ws)
	assert.Equal(t, []string{DefaultName, "Ops"}, names(r.List()))
}

func TestCreate_EmptyNameRejected(t *testing.T) {
	r := newLoadedRegistry(t, &stubClient{})

	_, err := r.Create(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrCreateFailed)
}

func TestCreate_ServerRejectionCarriesReason(t *testing.T) {
	stub := &stubClient{
		createFn: func(ctx context.Context, name string) (*client.Workspace, error) {
			return nil, &client.APIError{StatusCode: http.StatusConflict, Body: "workspace name already exists"}
		},
	}
	r := newLoadedRegistry(t, stub)

	_, err := r.Create(context.Background(), "Ops")
	require.ErrorIs(t, err, ErrCreateFailed)
	assert.Contains(t, err.Error(), "workspace name already exists")
	assert.Equal(t, []string{DefaultName}, names(r.List()), "failed creation must not touch the cache")
}

func TestCreate_SingleFlight(t *testing.T) {
	release := make(chan struct{})
	stub := &stubClient{
		createFn: func(ctx context.Context, name string) (*client.Workspace, error) {
			<-release
			return &client.Workspace{ID: 1, UUID: "abc", Name: name}, nil
		},
	}
	r := newLoadedRegistry(t, stub)

	var wg sync.WaitGroup
	wg.Add(1)
	firstDone := make(chan error, 1)
	go func() {
		defer wg.Done()
		_, err := r.Create(context.Background(), "Ops")
		firstDone <- err
	}()

	// Wait until the first creation is actually in flight.
	require.Eventually(t, func() bool {
		_, err := r.Create(context.Background(), "Other")
		return errors.Is(err, ErrCreateInFlight)
	}, time.Second, 5*time.Millisecond)

	close(release)
	wg.Wait()
	require.NoError(t, <-firstDone)

	// The flight is over; creation is allowed again.
	stub.createFn = func(ctx context.Context, name string) (*client.Workspace, error) {
		return &client.Workspace{ID: 2, UUID: "def", Name: name}, nil
	}
	_, err := r.Create(context.Background(), "Other")
	assert.NoError(t, err)
}

func TestDeletion_TwoPhase(t *testing.T) {
	var deleted []string
	stub := &stubClient{
		deleteFn: func(ctx context.Context, uuid string) error {
			deleted = append(deleted, uuid)
			return nil
		},
	}
	r := newLoadedRegistry(t, stub,
		client.Workspace{ID: 1, UUID: "abc", Name: "Ops"},
	)

	staged, err := r.RequestDeletion("abc")
	require.NoError(t, err)
	assert.Equal(t, "Ops", staged.Name)
	assert.Empty(t, deleted, "staging must not call the remote service")

	result, err := r.ConfirmDeletion(context.Background())
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "abc", result.UUID, "caller uses the result to clear its own selection")
	assert.Equal(t, []string{"abc"}, deleted)
	assert.Equal(t, []string{DefaultName}, names(r.List()))
}

func TestConfirmDeletion_SecondCallIsNoOp(t *testing.T) {
	calls := 0
	stub := &stubClient{
		deleteFn: func(ctx context.Context, uuid string) error {
			calls++
			return nil
		},
	}
	r := newLoadedRegistry(t, stub,
		client.Workspace{ID: 1, UUID: "abc", Name: "Ops"},
	)

	_, err := r.RequestDeletion("abc")
	require.NoError(t, err)

	first, err := r.ConfirmDeletion(context.Background())
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := r.ConfirmDeletion(context.Background())
	require.NoError(t, err)
	assert.Nil(t, second)
	assert.Equal(t, 1, calls, "second confirm without a new request must not hit the server")
}

func TestConfirmDeletion_FailureClearsStage(t *testing.T) {
	stub := &stubClient{
		deleteFn: func(ctx context.Context, uuid string) error {
			return &client.APIError{StatusCode: http.StatusInternalServerError, Body: "boom"}
		},
	}
	r := newLoadedRegistry(t, stub,
		client.Workspace{ID: 1, UUID: "abc", Name: "Ops"},
	)

	_, err := r.RequestDeletion("abc")
	require.NoError(t, err)

	_, err = r.ConfirmDeletion(context.Background())
	require.ErrorIs(t, err, ErrDeleteFailed)
	assert.Contains(t, err.Error(), "boom")

	// No silent retry: the stage is gone and the cache untouched.
	_, staged := r.StagedDeletion()
	assert.False(t, staged)
	assert.Equal(t, []string{DefaultName, "Ops"}, names(r.List()))
}

func TestCancelDeletion(t *testing.T) {
	calls := 0
	stub := &stubClient{
		deleteFn: func(ctx context.Context, uuid string) error {
			calls++
			return nil
		},
	}
	r := newLoadedRegistry(t, stub,
		client.Workspace{ID: 1, UUID: "abc", Name: "Ops"},
	)

	_, err := r.RequestDeletion("abc")
	require.NoError(t, err)
	r.CancelDeletion()

	result, err := r.ConfirmDeletion(context.Background())
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.Zero(t, calls)
}

func TestRequestDeletion_DefaultAndUnknownRejected(t *testing.T) {
	r := newLoadedRegistry(t, &stubClient{},
		client.Workspace{ID: 1, UUID: "abc", Name: "Ops"},
	)

	_, err := r.RequestDeletion("")
	assert.ErrorIs(t, err, ErrUnknownWorkspace)

	_, err = r.RequestDeletion("no-such-uuid")
	assert.ErrorIs(t, err, ErrUnknownWorkspace)
}

func TestCreateThenDelete_FullLifecycle(t *testing.T) {
	// create("Ops") → list [Default, Ops]; delete "abc" → list [Default].
	stub := &stubClient{
		createFn: func(ctx context.Context, name string) (*client.Workspace, error) {
			return &client.Workspace{ID: 1, UUID: "abc", Name: "Ops", CreatedAt: "2024-01-01"}, nil
		},
		deleteFn: func(ctx context.Context, uuid string) error { return nil },
	}
	r := newLoadedRegistry(t, stub)

	_, err := r.Create(context.Background(), "Ops")
	require.NoError(t, err)
	require.Equal(t, []string{DefaultName, "Ops"}, names(r.List()))

	_, err = r.RequestDeletion("abc")
	require.NoError(t, err)
	result, err := r.ConfirmDeletion(context.Background())
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, []string{DefaultName}, names(r.List()))
}
