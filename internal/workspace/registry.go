// Package workspace manages the set of known workspaces: a named grouping tag
// attachable to build output.
//
// The Registry holds a local cache of the server's workspace list, resolves
// free-text input to an existing workspace or a create offer, and drives the
// two-phase deletion protocol (stage, then confirm). The implicit Default
// workspace (empty uuid, meaning "unassigned") always exists, is never stored
// and can never be deleted.
//
// The registry does not know which workspace the caller currently has
// selected; confirmation results return the deleted workspace so the caller
// can clear its own selection.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/forgeworks/forgectl/internal/client"
	"github.com/forgeworks/forgectl/internal/log"
)

var (
	// ErrCreateInFlight indicates a creation request is already in flight.
	// Creation is single-flight per registry to avoid duplicate submissions
	// from rapid repeated input.
	ErrCreateInFlight = errors.New("a workspace creation is already in flight")

	// ErrCreateFailed indicates the remote service rejected the creation.
	ErrCreateFailed = errors.New("failed to create workspace")

	// ErrDeleteFailed indicates the remote service rejected the deletion.
	ErrDeleteFailed = errors.New("failed to delete workspace")

	// ErrUnknownWorkspace indicates the uuid is not in the local cache.
	ErrUnknownWorkspace = errors.New("unknown workspace")
)

// DefaultName is the display name of the implicit default workspace.
const DefaultName = "Default"

// Workspace is a named grouping tag for build output.
type Workspace struct {
	ID        int
	UUID      string // empty for the implicit default workspace
	Name      string
	CreatedAt string // server-assigned, opaque to the client
}

// IsDefault reports whether this is the implicit default workspace.
func (w Workspace) IsDefault() bool {
	return w.UUID == ""
}

// Default returns the implicit default workspace sentinel.
func Default() Workspace {
	return Workspace{Name: DefaultName}
}

// Resolution is the outcome of resolving free-text input against the registry.
type Resolution struct {
	// Match is the workspace whose name equals the query case-insensitively,
	// nil when there is none. The default workspace participates in matching.
	Match *Workspace

	// CanOfferCreate is true exactly when the trimmed query is non-empty and
	// no exact match exists; it governs whether a "create new" affordance is
	// shown. Creating a case-insensitive duplicate is never offered.
	CanOfferCreate bool
}

// Client is the subset of the API client the registry needs.
type Client interface {
	ListWorkspaces(ctx context.Context) ([]client.Workspace, error)
	CreateWorkspace(ctx context.Context, name string) (*client.Workspace, error)
	DeleteWorkspace(ctx context.Context, uuid string) error
}

// Registry owns the local workspace cache.
type Registry struct {
	client Client
	logger log.Logger

	mu       sync.Mutex
	items    []Workspace
	creating bool
	staged   *Workspace
}

// NewRegistry creates an empty Registry; call Load to populate it.
func NewRegistry(apiClient Client, logger log.Logger) (*Registry, error) {
	if apiClient == nil {
		return nil, errors.New("workspace.NewRegistry: client is required")
	}
	if logger == nil {
		return nil, errors.New("workspace.NewRegistry: logger is required")
	}
	return &Registry{client: apiClient, logger: logger}, nil
}

// Load replaces the cache with the server's workspace list, preserving server
// order. Entries the server reports under the reserved default name are
// skipped: the default is implicit and never stored.
func (r *Registry) Load(ctx context.Context) error {
	remote, err := r.client.ListWorkspaces(ctx)
	if err != nil {
		return fmt.Errorf("loading workspaces: %w", err)
	}

	items := make([]Workspace, 0, len(remote))
	for _, ws := range remote {
		if ws.Name == DefaultName {
			continue
		}
		items = append(items, fromWire(ws))
	}

	r.mu.Lock()
	r.items = items
	r.mu.Unlock()

	r.logger.Debug("workspaces loaded", "count", len(items))
	return nil
}

// List returns all workspaces for presentation: the implicit default first,
// then the cached entries in insertion order. The result is a copy.
func (r *Registry) List() []Workspace {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Workspace, 0, len(r.items)+1)
	out = append(out, Default())
	out = append(out, r.items...)
	return out
}

// Resolve matches free-text input against existing workspace names,
// case-insensitively, including the default's display name.
func (r *Registry) Resolve(query string) Resolution {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return Resolution{}
	}

	for _, ws := range r.List() {
		if strings.EqualFold(ws.Name, trimmed) {
			match := ws
			return Resolution{Match: &match}
		}
	}
	return Resolution{CanOfferCreate: true}
}

// Create asks the server to create a workspace with the trimmed name and
// appends the server's canonical record (uuid and creation date are
// server-assigned) to the cache.
//
// Single-flight: while one creation is in flight, further Create calls —
// for any name — fail with ErrCreateInFlight. Name uniqueness itself is
// enforced server-side; the registry only prevents duplicate submission
// attempts against its own cache.
func (r *Registry) Create(ctx context.Context, name string) (Workspace, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return Workspace{}, fmt.Errorf("%w: name is empty", ErrCreateFailed)
	}

	r.mu.Lock()
	if r.creating {
		r.mu.Unlock()
		return Workspace{}, ErrCreateInFlight
	}
	r.creating = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.creating = false
		r.mu.Unlock()
	}()

	created, err := r.client.CreateWorkspace(ctx, trimmed)
	if err != nil {
		r.logger.Warn("workspace creation rejected", "name", trimmed, "error", err)
		return Workspace{}, fmt.Errorf("%w: %s", ErrCreateFailed, reason(err))
	}

	ws := fromWire(*created)
	r.mu.Lock()
	r.items = append(r.items, ws)
	r.mu.Unlock()

	r.logger.Info("workspace created", "name", ws.Name, "uuid", ws.UUID)
	return ws, nil
}

// RequestDeletion stages a workspace for deletion and returns it for display
// in a confirmation prompt. No network call happens until ConfirmDeletion.
// The default workspace and uuids not present in the cache cannot be staged.
func (r *Registry) RequestDeletion(uuid string) (Workspace, error) {
	if uuid == "" {
		return Workspace{}, fmt.Errorf("%w: the default workspace cannot be deleted", ErrUnknownWorkspace)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, ws := range r.items {
		if ws.UUID == uuid {
			staged := ws
			r.staged = &staged
			return ws, nil
		}
	}
	return Workspace{}, fmt.Errorf("%w: %s", ErrUnknownWorkspace, uuid)
}

// ConfirmDeletion issues the remote delete for the staged workspace.
//
// On success the workspace is removed from the cache and returned so the
// caller can clear its own selection if it pointed at the deleted workspace.
// Objects previously tagged with it are reassigned to the default group
// server-side. On failure the stage is cleared regardless — no silent retry —
// and ErrDeleteFailed is returned. Without a staged target this is a no-op
// returning (nil, nil).
func (r *Registry) ConfirmDeletion(ctx context.Context) (*Workspace, error) {
	r.mu.Lock()
	staged := r.staged
	r.staged = nil
	r.mu.Unlock()

	if staged == nil {
		return nil, nil
	}

	if err := r.client.DeleteWorkspace(ctx, staged.UUID); err != nil {
		r.logger.Warn("workspace deletion rejected", "name", staged.Name, "error", err)
		return nil, fmt.Errorf("%w: %s", ErrDeleteFailed, reason(err))
	}

	r.mu.Lock()
	for i, ws := range r.items {
		if ws.UUID == staged.UUID {
			r.items = append(r.items[:i], r.items[i+1:]...)
			break
		}
	}
	r.mu.Unlock()

	r.logger.Info("workspace deleted", "name", staged.Name, "uuid", staged.UUID)
	return staged, nil
}

// CancelDeletion clears the staged target without any remote call.
func (r *Registry) CancelDeletion() {
	r.mu.Lock()
	r.staged = nil
	r.mu.Unlock()
}

// StagedDeletion returns the workspace currently staged for deletion, if any.
func (r *Registry) StagedDeletion() (Workspace, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.staged == nil {
		return Workspace{}, false
	}
	return *r.staged, true
}

// reason extracts a human-readable reason from an error, preferring the
// server-supplied body of an API error over Go error chains.
func reason(err error) string {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.Body != "" {
		return apiErr.Body
	}
	return err.Error()
}

func fromWire(ws client.Workspace) Workspace {
	return Workspace{
		ID:        ws.ID,
		UUID:      ws.UUID,
		Name:      ws.Name,
		CreatedAt: ws.CreatedAt,
	}
}
