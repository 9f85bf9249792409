package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	tea "charm.land/bubbletea/v2"
	"github.com/spf13/cobra"

	"github.com/forgeworks/forgectl/internal/buildjob"
	"github.com/forgeworks/forgectl/internal/tui"
	"github.com/forgeworks/forgectl/internal/workspace"
)

var (
	buildDebug     bool
	buildWorkspace string
	buildNoTUI     bool
	buildDownload  bool
	buildOutput    string
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Submit a build and track it to completion",
	Long: `Submit a compilation request to the build service and track it until it
completes or fails.

By default this opens the interactive build view. With --no-tui the build is
tracked headlessly: progress goes to the log and the exit code reflects the
build outcome.`,
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().BoolVar(&buildDebug, "debug", false, "request a debug build")
	buildCmd.Flags().StringVarP(&buildWorkspace, "workspace", "w", "", "workspace name to tag the build output with")
	buildCmd.Flags().BoolVar(&buildNoTUI, "no-tui", false, "track the build without the interactive interface")
	buildCmd.Flags().BoolVar(&buildDownload, "download", false, "download the artifact bundle on completion (headless only)")
	buildCmd.Flags().StringVarP(&buildOutput, "output", "o", "", "download directory (default: configured download_dir)")
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	d, err := newDeps()
	if err != nil {
		return err
	}

	if buildNoTUI {
		return runHeadlessBuild(ctx, d)
	}
	return runTUI(ctx, d)
}

// runTUI starts the interactive build view.
func runTUI(ctx context.Context, d *deps) error {
	model, err := tui.New(ctx, tui.Deps{
		API:         d.api,
		Registry:    d.registry,
		DownloadDir: downloadDir(d),
		Logger:      d.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create TUI: %w", err)
	}

	program := tea.NewProgram(model, tea.WithContext(ctx))
	if _, err = program.Run(); err != nil {
		return fmt.Errorf("TUI exited: %w", err)
	}
	return nil
}

// runHeadlessBuild submits one build and blocks until its terminal outcome.
// The exit code reflects the build result, which makes this usable from CI.
func runHeadlessBuild(ctx context.Context, d *deps) error {
	workspaceUUID, err := resolveWorkspaceUUID(ctx, d.registry, buildWorkspace)
	if err != nil {
		return err
	}

	snapCh := make(chan buildjob.Snapshot, 16)
	orch, err := buildjob.NewOrchestrator(d.api, buildjob.Config{
		Notify: func(snap buildjob.Snapshot) {
			snapCh <- snap
		},
	}, d.logger.With("component", "buildjob"))
	if err != nil {
		return err
	}
	defer orch.Close()

	if err := orch.Start(ctx, buildjob.Options{
		Debug:         buildDebug,
		WorkspaceUUID: workspaceUUID,
	}); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case snap := <-snapCh:
			switch snap.State {
			case buildjob.StateCompleted:
				return finishHeadlessBuild(ctx, d, snap)
			case buildjob.StateFailed:
				return buildjob.RemoteFailure(snap.Error)
			default:
				// Non-terminal transitions are already logged by the orchestrator.
			}
		}
	}
}

// finishHeadlessBuild reports the artifacts and optionally downloads them.
func finishHeadlessBuild(ctx context.Context, d *deps, snap buildjob.Snapshot) error {
	for _, f := range snap.Files {
		fmt.Println(f)
	}

	if !buildDownload || snap.DownloadURL == "" {
		return nil
	}

	path, n, err := d.api.DownloadToFile(ctx, snap.DownloadURL, downloadDir(d))
	if err != nil {
		return fmt.Errorf("downloading artifacts: %w", err)
	}
	d.logger.Info("artifacts saved", "path", path, "bytes", n)
	fmt.Println(path)
	return nil
}

// resolveWorkspaceUUID maps a workspace name to its uuid. An empty name means
// the default (untagged) group and needs no lookup.
func resolveWorkspaceUUID(ctx context.Context, registry *workspace.Registry, name string) (string, error) {
	if name == "" {
		return "", nil
	}

	if err := registry.Load(ctx); err != nil {
		return "", err
	}

	res := registry.Resolve(name)
	if res.Match == nil {
		return "", fmt.Errorf("unknown workspace %q, run 'forgectl workspaces list'", name)
	}
	return res.Match.UUID, nil
}

// downloadDir resolves the effective download directory.
func downloadDir(d *deps) string {
	if buildOutput != "" {
		return buildOutput
	}
	return d.cfg.DownloadDir
}
