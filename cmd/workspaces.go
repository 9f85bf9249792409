package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/forgeworks/forgectl/internal/workspace"
)

var deleteYes bool

var workspacesCmd = &cobra.Command{
	Use:   "workspaces",
	Short: "Manage build output workspaces",
	Long: `Manage the workspaces that group build output.

A workspace is a named tag attached to builds. The default workspace always
exists, holds untagged output and cannot be deleted.`,
}

var workspacesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all workspaces",
	RunE:  runWorkspacesList,
}

var workspacesCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a workspace",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkspacesCreate,
}

var workspacesDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a workspace",
	Long: `Delete a workspace by name. Builds tagged with it return to the default
group. Asks for confirmation unless --yes is given.`,
	Args: cobra.ExactArgs(1),
	RunE: runWorkspacesDelete,
}

func init() {
	workspacesDeleteCmd.Flags().BoolVarP(&deleteYes, "yes", "y", false, "skip the confirmation prompt")
	workspacesCmd.AddCommand(workspacesListCmd)
	workspacesCmd.AddCommand(workspacesCreateCmd)
	workspacesCmd.AddCommand(workspacesDeleteCmd)
	rootCmd.AddCommand(workspacesCmd)
}

// workspacesContext loads deps and the remote workspace list.
func workspacesContext() (context.Context, context.CancelFunc, *deps, error) {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	d, err := newDeps()
	if err != nil {
		cancel()
		return nil, nil, nil, err
	}
	if err := d.registry.Load(ctx); err != nil {
		cancel()
		return nil, nil, nil, err
	}
	return ctx, cancel, d, nil
}

func runWorkspacesList(cmd *cobra.Command, args []string) error {
	_, cancel, d, err := workspacesContext()
	if err != nil {
		return err
	}
	defer cancel()

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tUUID\tCREATED")
	for _, ws := range d.registry.List() {
		uuid := ws.UUID
		if ws.IsDefault() {
			uuid = "-"
		}
		created := ws.CreatedAt
		if created == "" {
			created = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", ws.Name, uuid, created)
	}
	return w.Flush()
}

func runWorkspacesCreate(cmd *cobra.Command, args []string) error {
	ctx, cancel, d, err := workspacesContext()
	if err != nil {
		return err
	}
	defer cancel()

	ws, err := d.registry.Create(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Printf("created workspace %q (%s)\n", ws.Name, ws.UUID)
	return nil
}

func runWorkspacesDelete(cmd *cobra.Command, args []string) error {
	ctx, cancel, d, err := workspacesContext()
	if err != nil {
		return err
	}
	defer cancel()

	res := d.registry.Resolve(args[0])
	if res.Match == nil {
		return fmt.Errorf("unknown workspace %q", args[0])
	}
	if res.Match.IsDefault() {
		return fmt.Errorf("the default workspace cannot be deleted")
	}

	staged, err := d.registry.RequestDeletion(res.Match.UUID)
	if err != nil {
		return err
	}

	if !deleteYes && !confirmDeletePrompt(staged) {
		d.registry.CancelDeletion()
		fmt.Println("aborted")
		return nil
	}

	deleted, err := d.registry.ConfirmDeletion(ctx)
	if err != nil {
		return err
	}
	if deleted != nil {
		fmt.Printf("deleted workspace %q, its builds return to the default group\n", deleted.Name)
	}
	return nil
}

// confirmDeletePrompt asks for interactive confirmation on stdin.
func confirmDeletePrompt(ws workspace.Workspace) bool {
	fmt.Printf("Delete workspace %q? Builds tagged with it return to the default group. [y/N] ", ws.Name)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
