package tui

import (
	"strings"

	"charm.land/bubbles/v2/key"
	tea "charm.land/bubbletea/v2"

	"github.com/forgeworks/forgectl/internal/buildjob"
)

// keyMap holds key bindings for help bar display.
type keyMap struct {
	Up       key.Binding
	Down     key.Binding
	Select   key.Binding
	Debug    key.Binding
	Delete   key.Binding
	Build    key.Binding
	Download key.Binding
	Reset    key.Binding
	Confirm  key.Binding
	Cancel   key.Binding
	Quit     key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		Up:       key.NewBinding(key.WithKeys("up"), key.WithHelp("↑/↓", "navigate")),
		Down:     key.NewBinding(key.WithKeys("down"), key.WithHelp("", "")),
		Select:   key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "select/create")),
		Debug:    key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "debug on/off")),
		Delete:   key.NewBinding(key.WithKeys("ctrl+x"), key.WithHelp("ctrl+x", "delete workspace")),
		Build:    key.NewBinding(key.WithKeys("ctrl+b"), key.WithHelp("ctrl+b", "build")),
		Download: key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "download")),
		Reset:    key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "new build")),
		Confirm:  key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "confirm")),
		Cancel:   key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel")),
		Quit:     key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "quit")),
	}
}

//nolint:gocyclo // Keyboard handler requires branching for all key combinations
func (t *TUI) handleKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	k := msg.Key()

	// Quit from anywhere
	if k.Mod&tea.ModCtrl != 0 && (k.Code == 'c' || k.Code == 'd') {
		return t, t.cleanup()
	}

	switch t.state {
	case statePicker:
		return t.handlePickerKey(msg)
	case stateConfirmDelete:
		return t.handleConfirmDeleteKey(msg)
	case stateBuild:
		return t.handleBuildKey(msg)
	}
	return t, nil
}

func (t *TUI) handlePickerKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	k := msg.Key()

	if k.Mod&tea.ModCtrl != 0 {
		switch k.Code {
		case 'b':
			return t.startBuild()
		case 'x':
			return t.requestDeletion()
		}
	}

	switch k.Code {
	case tea.KeyUp:
		if t.cursor > 0 {
			t.cursor--
		}
		return t, nil

	case tea.KeyDown:
		if t.cursor < len(t.pickerRows())-1 {
			t.cursor++
		}
		return t, nil

	case tea.KeyTab:
		t.debug = !t.debug
		return t, nil

	case tea.KeyEnter:
		return t.activateRow()
	}

	// Everything else types into the search/create field.
	var cmd tea.Cmd
	t.input, cmd = t.input.Update(msg)
	t.clampCursor()
	return t, cmd
}

func (t *TUI) handleConfirmDeleteKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	k := msg.Key()

	switch k.Code {
	case 'y', tea.KeyEnter:
		return t, t.confirmDeletion()
	case 'n', tea.KeyEscape:
		t.registry.CancelDeletion()
		t.state = statePicker
		return t, nil
	}
	return t, nil
}

func (t *TUI) handleBuildKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	k := msg.Key()

	switch k.Code {
	case 'd':
		if t.snap.State == buildjob.StateCompleted && t.snap.DownloadURL != "" && !t.downloading {
			t.downloading = true
			return t, t.downloadArtifacts(t.snap.DownloadURL)
		}
		return t, nil

	case 'r':
		if t.snap.State.Terminal() {
			return t.leaveBuildView()
		}
		return t, nil

	case tea.KeyEscape:
		// Abandon tracking; the remote build keeps running but any pending
		// poll is cancelled and its late response discarded.
		return t.leaveBuildView()
	}
	return t, nil
}

// activateRow selects the highlighted workspace, or submits a creation for
// the typed name when the cursor is on the create affordance.
func (t *TUI) activateRow() (tea.Model, tea.Cmd) {
	rows := t.pickerRows()
	if len(rows) == 0 || t.cursor >= len(rows) {
		return t, nil
	}

	row := rows[t.cursor]
	if row.create {
		if t.creating {
			return t, nil // a creation is already in flight
		}
		t.creating = true
		t.errMsg = ""
		return t, t.createWorkspace(strings.TrimSpace(t.input.Value()))
	}

	t.selected = row.ws
	t.errMsg = ""
	return t, nil
}

// requestDeletion stages the highlighted workspace for deletion.
func (t *TUI) requestDeletion() (tea.Model, tea.Cmd) {
	rows := t.pickerRows()
	if len(rows) == 0 || t.cursor >= len(rows) {
		return t, nil
	}
	row := rows[t.cursor]
	if row.create || row.ws.IsDefault() {
		return t, nil
	}

	staged, err := t.registry.RequestDeletion(row.ws.UUID)
	if err != nil {
		t.errMsg = err.Error()
		return t, nil
	}
	t.staged = staged
	t.state = stateConfirmDelete
	return t, nil
}

// startBuild hands the selected workspace and debug flag to the orchestrator.
func (t *TUI) startBuild() (tea.Model, tea.Cmd) {
	err := t.orch.Start(t.ctx, buildjob.Options{
		Debug:         t.debug,
		WorkspaceUUID: t.selected.UUID,
	})
	if err != nil {
		t.errMsg = err.Error()
		return t, nil
	}
	t.errMsg = ""
	t.state = stateBuild
	return t, t.spinner.Tick
}

// leaveBuildView resets the orchestrator and returns to the picker.
func (t *TUI) leaveBuildView() (tea.Model, tea.Cmd) {
	t.orch.Reset()
	t.state = statePicker
	t.errMsg = ""
	t.downloadPath = ""
	t.downloading = false
	return t, nil
}

// cleanup closes the orchestrator so no further network activity originates
// from the discarded session, then quits.
func (t *TUI) cleanup() tea.Cmd {
	t.orch.Close()
	if t.ctxCancel != nil {
		t.ctxCancel()
		t.ctxCancel = nil
	}
	return tea.Quit
}
