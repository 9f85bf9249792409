package tui

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	tea "charm.land/bubbletea/v2"
	"go.uber.org/goleak"

	"github.com/forgeworks/forgectl/internal/buildjob"
	"github.com/forgeworks/forgectl/internal/client"
	"github.com/forgeworks/forgectl/internal/log"
	"github.com/forgeworks/forgectl/internal/workspace"
)

// goleakOptions returns standard goleak options for all TUI tests.
func goleakOptions() []goleak.Option {
	return []goleak.Option{
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
	}
}

// newTestTUI builds a TUI against a stub server that knows one workspace
// ("Ops") and accepts deletions. The registry cache is pre-loaded.
func newTestTUI(t *testing.T) *TUI {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /workspaces", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"id": 1, "workspace_uuid": "abc", "workspace_name": "Ops", "creation_date": "2024-01-01"},
		})
	})
	mux.HandleFunc("DELETE /workspaces/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	api, err := client.New(srv.URL, noTokens{}, 0, log.NewNop())
	if err != nil {
		t.Fatalf("client.New: %v", err)
	}
	registry, err := workspace.NewRegistry(api, log.NewNop())
	if err != nil {
		t.Fatalf("workspace.NewRegistry: %v", err)
	}
	if err := registry.Load(context.Background()); err != nil {
		t.Fatalf("registry.Load: %v", err)
	}

	tui, err := New(context.Background(), Deps{
		API:         api,
		Registry:    registry,
		DownloadDir: t.TempDir(),
		Logger:      log.NewNop(),
	})
	if err != nil {
		t.Fatalf("tui.New: %v", err)
	}
	t.Cleanup(func() { _ = tui.cleanup() })
	return tui
}

type noTokens struct{}

func (noTokens) BearerToken() (string, bool) { return "", false }

func keyPress(code rune) tea.KeyPressMsg {
	return tea.KeyPressMsg(tea.Key{Code: code})
}

func ctrlKey(code rune) tea.KeyPressMsg {
	return tea.KeyPressMsg(tea.Key{Code: code, Mod: tea.ModCtrl})
}

func TestNew_RequiredDependencies(t *testing.T) {
	_, err := New(context.Background(), Deps{})
	if err == nil {
		t.Error("expected error for missing dependencies")
	}

	//nolint:staticcheck // intentionally testing nil context handling
	_, err = New(nil, Deps{})
	if err == nil {
		t.Error("expected error for nil context")
	}
}

func TestTUI_Init(t *testing.T) {
	defer goleak.VerifyNone(t, goleakOptions()...)

	tui := newTestTUI(t)
	if cmd := tui.Init(); cmd == nil {
		t.Error("Init should return a command")
	}
}

func TestPickerRows_CreateAffordance(t *testing.T) {
	defer goleak.VerifyNone(t, goleakOptions()...)

	tui := newTestTUI(t)

	// Empty query: default first, then cached entries, no create row.
	rows := tui.pickerRows()
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if !rows[0].ws.IsDefault() {
		t.Error("first row should be the default workspace")
	}
	if rows[1].name != "Ops" {
		t.Errorf("second row should be Ops, got %q", rows[1].name)
	}

	// Unmatched query adds the create affordance with the trimmed name.
	tui.input.SetValue("  Staging  ")
	rows = tui.pickerRows()
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if !rows[2].create || rows[2].name != "Staging" {
		t.Errorf("expected create row for Staging, got %+v", rows[2])
	}

	// Case-insensitive match suppresses the create offer.
	tui.input.SetValue("ops")
	if rows := tui.pickerRows(); len(rows) != 2 {
		t.Errorf("matching query must not offer creation, got %d rows", len(rows))
	}
}

func TestHandleKey_Navigation(t *testing.T) {
	defer goleak.VerifyNone(t, goleakOptions()...)

	tui := newTestTUI(t)

	tui.handleKey(keyPress(tea.KeyDown))
	if tui.cursor != 1 {
		t.Errorf("cursor should move down, got %d", tui.cursor)
	}
	tui.handleKey(keyPress(tea.KeyDown)) // at last row, must clamp
	if tui.cursor != 1 {
		t.Errorf("cursor must not move past last row, got %d", tui.cursor)
	}
	tui.handleKey(keyPress(tea.KeyUp))
	tui.handleKey(keyPress(tea.KeyUp))
	if tui.cursor != 0 {
		t.Errorf("cursor must not move above first row, got %d", tui.cursor)
	}
}

func TestHandleKey_ToggleDebug(t *testing.T) {
	defer goleak.VerifyNone(t, goleakOptions()...)

	tui := newTestTUI(t)
	tui.handleKey(keyPress(tea.KeyTab))
	if !tui.debug {
		t.Error("tab should enable debug")
	}
	tui.handleKey(keyPress(tea.KeyTab))
	if tui.debug {
		t.Error("tab should toggle debug off again")
	}
}

func TestActivateRow_SelectsWorkspace(t *testing.T) {
	defer goleak.VerifyNone(t, goleakOptions()...)

	tui := newTestTUI(t)
	tui.cursor = 1
	tui.handleKey(keyPress(tea.KeyEnter))

	if tui.selected.Name != "Ops" {
		t.Errorf("expected Ops selected, got %q", tui.selected.Name)
	}
}

func TestDeletionFlow_StageAndCancel(t *testing.T) {
	defer goleak.VerifyNone(t, goleakOptions()...)

	tui := newTestTUI(t)
	tui.cursor = 1 // Ops

	tui.handleKey(ctrlKey('x'))
	if tui.state != stateConfirmDelete {
		t.Fatalf("expected confirm-delete view, got %v", tui.state)
	}
	if tui.staged.Name != "Ops" {
		t.Errorf("expected Ops staged, got %q", tui.staged.Name)
	}
	if _, ok := tui.registry.StagedDeletion(); !ok {
		t.Error("registry should hold the staged deletion")
	}

	tui.handleKey(keyPress('n'))
	if tui.state != statePicker {
		t.Error("cancel should return to the picker")
	}
	if _, ok := tui.registry.StagedDeletion(); ok {
		t.Error("cancel should clear the staged deletion")
	}
}

func TestDeletionFlow_DefaultNotStageable(t *testing.T) {
	defer goleak.VerifyNone(t, goleakOptions()...)

	tui := newTestTUI(t)
	tui.cursor = 0 // default workspace

	tui.handleKey(ctrlKey('x'))
	if tui.state != statePicker {
		t.Error("the default workspace must not be stageable for deletion")
	}
}

func TestUpdate_DeleteDoneClearsSelection(t *testing.T) {
	defer goleak.VerifyNone(t, goleakOptions()...)

	tui := newTestTUI(t)
	tui.selected = workspace.Workspace{UUID: "abc", Name: "Ops"}
	tui.state = stateConfirmDelete

	tui.Update(deleteDoneMsg{deleted: &workspace.Workspace{UUID: "abc", Name: "Ops"}})

	if !tui.selected.IsDefault() {
		t.Error("deleting the selected workspace should fall back to the default")
	}
	if tui.state != statePicker {
		t.Error("deletion result should return to the picker")
	}
}

func TestUpdate_DeleteDoneKeepsUnrelatedSelection(t *testing.T) {
	defer goleak.VerifyNone(t, goleakOptions()...)

	tui := newTestTUI(t)
	tui.selected = workspace.Workspace{UUID: "other", Name: "Dev"}
	tui.state = stateConfirmDelete

	tui.Update(deleteDoneMsg{deleted: &workspace.Workspace{UUID: "abc", Name: "Ops"}})

	if tui.selected.UUID != "other" {
		t.Error("deleting an unrelated workspace must not touch the selection")
	}
}

func TestUpdate_BuildSnapshotRearmsSubscription(t *testing.T) {
	defer goleak.VerifyNone(t, goleakOptions()...)

	tui := newTestTUI(t)
	snap := buildjob.Snapshot{State: buildjob.StateRunning, BuildID: "b1"}

	_, cmd := tui.Update(buildSnapshotMsg{snap: snap})

	if tui.snap.State != buildjob.StateRunning {
		t.Errorf("snapshot not applied: %v", tui.snap.State)
	}
	if cmd == nil {
		t.Error("snapshot handling must re-arm the subscription")
	}
}

func TestUpdate_CreateDoneSelectsNewWorkspace(t *testing.T) {
	defer goleak.VerifyNone(t, goleakOptions()...)

	tui := newTestTUI(t)
	tui.creating = true
	tui.input.SetValue("Staging")

	tui.Update(createDoneMsg{created: workspace.Workspace{UUID: "def", Name: "Staging"}})

	if tui.creating {
		t.Error("creation flag should clear")
	}
	if tui.selected.Name != "Staging" {
		t.Errorf("new workspace should be selected, got %q", tui.selected.Name)
	}
	if tui.input.Value() != "" {
		t.Error("input should reset after creation")
	}
}

func TestView_ContainsHeader(t *testing.T) {
	defer goleak.VerifyNone(t, goleakOptions()...)

	tui := newTestTUI(t)
	v := tui.View()

	if v.Content == nil {
		t.Fatal("view content should not be nil")
	}
	if !strings.Contains(tui.viewBuf.String(), "forgectl") {
		t.Error("view should contain the header")
	}
}

func TestView_BuildStates(t *testing.T) {
	defer goleak.VerifyNone(t, goleakOptions()...)

	tests := []struct {
		name string
		snap buildjob.Snapshot
		want string
	}{
		{"running shows progress", buildjob.Snapshot{State: buildjob.StateRunning, BuildID: "b1", Progress: "Linking"}, "Linking"},
		{"running falls back", buildjob.Snapshot{State: buildjob.StateRunning, BuildID: "b1"}, "Compiling"},
		{"completed lists files", buildjob.Snapshot{State: buildjob.StateCompleted, Files: []string{"agent.exe"}}, "agent.exe"},
		{"failed shows reason", buildjob.Snapshot{State: buildjob.StateFailed, Error: "linker exploded"}, "linker exploded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tui := newTestTUI(t)
			tui.state = stateBuild
			tui.snap = tt.snap

			tui.View()
			if !strings.Contains(tui.viewBuf.String(), tt.want) {
				t.Errorf("view should contain %q", tt.want)
			}
		})
	}
}
