package tui

import (
	"context"

	tea "charm.land/bubbletea/v2"

	"github.com/forgeworks/forgectl/internal/buildjob"
	"github.com/forgeworks/forgectl/internal/workspace"
)

// snapshotBufferSize bounds the build notification channel. Transitions are
// rare (a handful per build) so a small buffer never blocks the orchestrator.
const snapshotBufferSize = 16

// Messages produced by asynchronous commands.
type workspacesLoadedMsg struct {
	err error
}

type buildSnapshotMsg struct {
	snap buildjob.Snapshot
}

type createDoneMsg struct {
	created workspace.Workspace
	err     error
}

type deleteDoneMsg struct {
	deleted *workspace.Workspace
	err     error
}

type downloadDoneMsg struct {
	path string
	err  error
}

// loadWorkspaces fetches the workspace list into the registry cache.
func (t *TUI) loadWorkspaces() tea.Cmd {
	return func() tea.Msg {
		return workspacesLoadedMsg{err: t.registry.Load(t.ctx)}
	}
}

// listenForBuild waits for the next orchestrator snapshot. The orchestrator's
// NotifyFunc feeds the channel; re-issued after every received message, the
// Bubble Tea analog of a subscription.
func listenForBuild(ch <-chan buildjob.Snapshot) tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-ch
		if !ok {
			return nil
		}
		return buildSnapshotMsg{snap: snap}
	}
}

// createWorkspace submits a creation request for the given name.
// The registry's single-flight rule handles rapid repeated submissions.
func (t *TUI) createWorkspace(name string) tea.Cmd {
	return func() tea.Msg {
		created, err := t.registry.Create(t.ctx, name)
		return createDoneMsg{created: created, err: err}
	}
}

// confirmDeletion performs the staged deletion.
func (t *TUI) confirmDeletion() tea.Cmd {
	return func() tea.Msg {
		deleted, err := t.registry.ConfirmDeletion(t.ctx)
		return deleteDoneMsg{deleted: deleted, err: err}
	}
}

// downloadArtifacts fetches the completed build's artifact bundle.
func (t *TUI) downloadArtifacts(downloadURL string) tea.Cmd {
	return func() tea.Msg {
		// Download is bounded by its own context so quitting the TUI
		// cannot leave a half-written file behind.
		ctx, cancel := context.WithCancel(t.ctx)
		defer cancel()
		path, _, err := t.api.DownloadToFile(ctx, downloadURL, t.downloadDir)
		return downloadDoneMsg{path: path, err: err}
	}
}
