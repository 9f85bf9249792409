// Package tui provides the Bubble Tea terminal interface for forgectl.
//
// The interface is a three-view state machine: the workspace picker (search,
// select, create, delete), a deletion confirmation prompt, and the build view
// that tracks a compilation from submission to its terminal outcome.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"charm.land/bubbles/v2/help"
	"charm.land/bubbles/v2/key"
	"charm.land/bubbles/v2/spinner"
	"charm.land/bubbles/v2/textarea"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/forgeworks/forgectl/internal/buildjob"
	"github.com/forgeworks/forgectl/internal/client"
	"github.com/forgeworks/forgectl/internal/log"
	"github.com/forgeworks/forgectl/internal/workspace"
)

// viewState represents the TUI state machine.
type viewState int

// TUI state machine states.
const (
	statePicker        viewState = iota // workspace selection and management
	stateConfirmDelete                  // staged deletion awaiting confirmation
	stateBuild                          // build tracked from submission to terminal outcome
)

// pickerRow is one selectable line in the workspace picker: either an existing
// workspace or the create affordance for the typed query.
type pickerRow struct {
	ws     workspace.Workspace
	create bool
	name   string
}

// TUI is the Bubble Tea model for the forgectl terminal interface.
type TUI struct {
	// Input (single-line search/create field)
	input textarea.Model

	// State
	state    viewState
	cursor   int
	selected workspace.Workspace
	debug    bool
	creating bool
	errMsg   string

	// Deletion
	staged workspace.Workspace

	// Build tracking
	snap   buildjob.Snapshot
	snapCh chan buildjob.Snapshot

	// Download
	downloading  bool
	downloadPath string

	// Help bar for keyboard shortcuts
	help help.Model
	keys keyMap

	spinner spinner.Model
	viewBuf strings.Builder

	// Dependencies
	api         *client.Client
	registry    *workspace.Registry
	orch        *buildjob.Orchestrator
	downloadDir string
	ctx         context.Context
	ctxCancel   context.CancelFunc

	// Dimensions
	width  int
	height int

	// Styles
	styles Styles
}

// Deps carries the dependencies for New.
type Deps struct {
	API         *client.Client
	Registry    *workspace.Registry
	DownloadDir string
	Logger      log.Logger
}

// New creates a TUI model.
// Returns error if required dependencies are nil.
//
// IMPORTANT: ctx MUST be the same context passed to tea.WithContext()
// to ensure consistent cancellation behavior.
func New(ctx context.Context, deps Deps) (*TUI, error) {
	if ctx == nil {
		return nil, errors.New("tui.New: ctx is required")
	}
	if deps.API == nil {
		return nil, errors.New("tui.New: API client is required")
	}
	if deps.Registry == nil {
		return nil, errors.New("tui.New: registry is required")
	}
	if deps.Logger == nil {
		return nil, errors.New("tui.New: logger is required")
	}

	// Cancellable context for cleanup on exit
	ctx, cancel := context.WithCancel(ctx)

	snapCh := make(chan buildjob.Snapshot, snapshotBufferSize)
	orch, err := buildjob.NewOrchestrator(deps.API, buildjob.Config{
		Notify: func(snap buildjob.Snapshot) {
			snapCh <- snap
		},
	}, deps.Logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("tui.New: %w", err)
	}

	ta := textarea.New()
	ta.Placeholder = "Search or create a workspace..."
	ta.SetHeight(1)
	ta.SetWidth(60)
	ta.MaxWidth = 0
	ta.ShowLineNumbers = false

	cleanStyle := textarea.StyleState{
		Base:        lipgloss.NewStyle(),
		Text:        lipgloss.NewStyle(),
		Placeholder: lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		Prompt:      lipgloss.NewStyle(),
	}
	ta.SetStyles(textarea.Styles{
		Focused: cleanStyle,
		Blurred: cleanStyle,
	})
	ta.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return &TUI{
		input:       ta,
		selected:    workspace.Default(),
		snapCh:      snapCh,
		help:        help.New(),
		keys:        newKeyMap(),
		spinner:     sp,
		api:         deps.API,
		registry:    deps.Registry,
		orch:        orch,
		downloadDir: deps.DownloadDir,
		ctx:         ctx,
		ctxCancel:   cancel,
		styles:      DefaultStyles(),
		width:       80, // Default width until WindowSizeMsg arrives
	}, nil
}

// Init implements tea.Model.
func (t *TUI) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		t.spinner.Tick,
		t.input.Focus(),
		t.loadWorkspaces(),
		listenForBuild(t.snapCh),
	)
}

// Update implements tea.Model.
func (t *TUI) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		return t.handleKey(msg)

	case tea.WindowSizeMsg:
		t.width = msg.Width
		t.height = msg.Height
		t.input.SetWidth(msg.Width - 4) // Room for "> " prompt
		t.help.SetWidth(msg.Width)
		return t, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		t.spinner, cmd = t.spinner.Update(msg)
		return t, cmd

	case workspacesLoadedMsg:
		if msg.err != nil {
			t.errMsg = msg.err.Error()
		}
		t.clampCursor()
		return t, nil

	case buildSnapshotMsg:
		t.snap = msg.snap
		// Re-arm the subscription for the next snapshot.
		return t, listenForBuild(t.snapCh)

	case createDoneMsg:
		t.creating = false
		if msg.err != nil {
			t.errMsg = msg.err.Error()
			return t, nil
		}
		t.selected = msg.created
		t.errMsg = ""
		t.input.Reset()
		t.clampCursor()
		return t, nil

	case deleteDoneMsg:
		t.state = statePicker
		if msg.err != nil {
			t.errMsg = msg.err.Error()
			return t, nil
		}
		// Selection pointing at the deleted workspace falls back to default.
		if msg.deleted != nil && t.selected.UUID == msg.deleted.UUID {
			t.selected = workspace.Default()
		}
		t.errMsg = ""
		t.clampCursor()
		return t, nil

	case downloadDoneMsg:
		t.downloading = false
		if msg.err != nil {
			t.errMsg = msg.err.Error()
			return t, nil
		}
		t.downloadPath = msg.path
		return t, nil
	}

	var cmd tea.Cmd
	t.input, cmd = t.input.Update(msg)
	return t, cmd
}

// pickerRows materializes the picker: all known workspaces, plus the create
// affordance exactly when the typed query matches nothing.
func (t *TUI) pickerRows() []pickerRow {
	items := t.registry.List()
	rows := make([]pickerRow, 0, len(items)+1)
	for _, ws := range items {
		rows = append(rows, pickerRow{ws: ws, name: ws.Name})
	}
	if res := t.registry.Resolve(t.input.Value()); res.CanOfferCreate {
		rows = append(rows, pickerRow{create: true, name: strings.TrimSpace(t.input.Value())})
	}
	return rows
}

// clampCursor keeps the cursor valid as rows appear and disappear.
func (t *TUI) clampCursor() {
	if n := len(t.pickerRows()); t.cursor >= n && n > 0 {
		t.cursor = n - 1
	}
}

// View implements tea.Model.
func (t *TUI) View() tea.View {
	t.viewBuf.Reset()

	t.writeHeader()
	switch t.state {
	case statePicker:
		t.writePicker()
	case stateConfirmDelete:
		t.writeConfirmDelete()
	case stateBuild:
		t.writeBuild()
	}

	if t.errMsg != "" {
		_, _ = t.viewBuf.WriteString("\n")
		_, _ = t.viewBuf.WriteString(t.styles.Error.Render("✗ " + t.errMsg))
		_, _ = t.viewBuf.WriteString("\n")
	}

	_, _ = t.viewBuf.WriteString("\n")
	_, _ = t.viewBuf.WriteString(t.renderHelpBar())

	v := tea.NewView(t.viewBuf.String())
	v.AltScreen = true
	return v
}

func (t *TUI) writeHeader() {
	_, _ = t.viewBuf.WriteString(t.styles.Title.Render("forgectl"))
	_, _ = t.viewBuf.WriteString("  ")
	if t.debug {
		_, _ = t.viewBuf.WriteString(t.styles.Debug.Render("[debug]"))
	} else {
		_, _ = t.viewBuf.WriteString(t.styles.Subtle.Render("[release]"))
	}
	_, _ = t.viewBuf.WriteString("\n")
	_, _ = t.viewBuf.WriteString(t.renderSeparator())
	_, _ = t.viewBuf.WriteString("\n")
}

func (t *TUI) writePicker() {
	_, _ = t.viewBuf.WriteString(t.styles.Subtle.Render("Workspace tags build output; the default keeps it untagged."))
	_, _ = t.viewBuf.WriteString("\n\n")

	for i, row := range t.pickerRows() {
		prefix := "  "
		if i == t.cursor {
			prefix = t.styles.Cursor.Render("> ")
		}
		_, _ = t.viewBuf.WriteString(prefix)

		switch {
		case row.create:
			_, _ = t.viewBuf.WriteString(t.styles.Badge.Render("+ create \"" + row.name + "\""))
		case row.ws.UUID == t.selected.UUID:
			_, _ = t.viewBuf.WriteString(t.styles.Selected.Render(row.name + " ●"))
		default:
			_, _ = t.viewBuf.WriteString(row.name)
		}
		if row.ws.IsDefault() && !row.create {
			_, _ = t.viewBuf.WriteString(t.styles.Subtle.Render("  (untagged)"))
		}
		_, _ = t.viewBuf.WriteString("\n")
	}

	if t.creating {
		_, _ = t.viewBuf.WriteString("\n")
		_, _ = t.viewBuf.WriteString(t.spinner.View())
		_, _ = t.viewBuf.WriteString(t.styles.Subtle.Render(" creating workspace..."))
		_, _ = t.viewBuf.WriteString("\n")
	}

	_, _ = t.viewBuf.WriteString("\n")
	_, _ = t.viewBuf.WriteString(t.styles.Subtle.Render("> "))
	_, _ = t.viewBuf.WriteString(t.input.View())
	_, _ = t.viewBuf.WriteString("\n")
}

func (t *TUI) writeConfirmDelete() {
	_, _ = t.viewBuf.WriteString(t.styles.Error.Render("Delete workspace \"" + t.staged.Name + "\"?"))
	_, _ = t.viewBuf.WriteString("\n\n")
	_, _ = t.viewBuf.WriteString(t.styles.Subtle.Render("Builds tagged with it return to the default group. This cannot be undone."))
	_, _ = t.viewBuf.WriteString("\n")
}

func (t *TUI) writeBuild() {
	switch t.snap.State {
	case buildjob.StateStarting:
		_, _ = t.viewBuf.WriteString(t.spinner.View())
		_, _ = t.viewBuf.WriteString(" Submitting build...")
		_, _ = t.viewBuf.WriteString("\n")

	case buildjob.StateRunning:
		_, _ = t.viewBuf.WriteString(t.spinner.View())
		progress := t.snap.Progress
		if progress == "" {
			progress = "Compiling..."
		}
		_, _ = t.viewBuf.WriteString(" " + progress)
		_, _ = t.viewBuf.WriteString("\n\n")
		_, _ = t.viewBuf.WriteString(t.styles.Subtle.Render("build " + t.snap.BuildID))
		_, _ = t.viewBuf.WriteString("\n")

	case buildjob.StateCompleted:
		_, _ = t.viewBuf.WriteString(t.styles.Success.Render("✓ Build completed"))
		_, _ = t.viewBuf.WriteString("\n\n")
		for _, f := range t.snap.Files {
			_, _ = t.viewBuf.WriteString("  ")
			_, _ = t.viewBuf.WriteString(t.styles.File.Render(f))
			_, _ = t.viewBuf.WriteString("\n")
		}
		switch {
		case t.downloading:
			_, _ = t.viewBuf.WriteString("\n")
			_, _ = t.viewBuf.WriteString(t.spinner.View())
			_, _ = t.viewBuf.WriteString(t.styles.Subtle.Render(" downloading..."))
			_, _ = t.viewBuf.WriteString("\n")
		case t.downloadPath != "":
			_, _ = t.viewBuf.WriteString("\n")
			_, _ = t.viewBuf.WriteString(t.styles.Success.Render("saved to " + t.downloadPath))
			_, _ = t.viewBuf.WriteString("\n")
		}

	case buildjob.StateFailed:
		_, _ = t.viewBuf.WriteString(t.styles.Error.Render("✗ Build failed"))
		_, _ = t.viewBuf.WriteString("\n\n")
		_, _ = t.viewBuf.WriteString(t.snap.Error)
		_, _ = t.viewBuf.WriteString("\n")

	case buildjob.StateIdle:
		_, _ = t.viewBuf.WriteString(t.styles.Subtle.Render("No build tracked."))
		_, _ = t.viewBuf.WriteString("\n")
	}
}

func (t *TUI) renderSeparator() string {
	w := min(t.width, 80)
	return t.styles.Separator.Render(strings.Repeat("─", max(w, 10)))
}

// renderHelpBar shows the bindings relevant to the current view.
func (t *TUI) renderHelpBar() string {
	var bindings []key.Binding
	switch t.state {
	case statePicker:
		bindings = []key.Binding{t.keys.Up, t.keys.Select, t.keys.Debug, t.keys.Build, t.keys.Delete, t.keys.Quit}
	case stateConfirmDelete:
		bindings = []key.Binding{t.keys.Confirm, t.keys.Cancel}
	case stateBuild:
		if t.snap.State.Terminal() {
			bindings = []key.Binding{t.keys.Download, t.keys.Reset, t.keys.Quit}
		} else {
			bindings = []key.Binding{t.keys.Cancel, t.keys.Quit}
		}
	}
	return t.styles.StatusBar.Render(t.help.ShortHelpView(bindings))
}
