// Command panelctl runs imports, transitions and exports against the
// configured record store without going through the HTTP API.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"panelflow/internal/adapters/panels"
	"panelflow/internal/app"
	"panelflow/internal/config"
	"panelflow/internal/core"
	"panelflow/internal/logging"
	"panelflow/internal/reconcile"
	"panelflow/pkg/domain"
)

var exitFunc = os.Exit

func main() {
	if err := newRootCmd(os.Stdout).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "panelctl:", err)
		exitFunc(1)
	}
}

type rootOptions struct {
	configPath string
	out        io.Writer
}

// open builds the runtime for one command. Logs go to stderr so stdout
// stays machine readable.
func (o *rootOptions) open(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Log.Level, "console", "panelctl")
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return app.New(ctx, cfg, logger)
}

func (o *rootOptions) printJSON(v any) error {
	enc := json.NewEncoder(o.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &rootOptions{out: out}
	root := &cobra.Command{
		Use:           "panelctl",
		Short:         "Operate on precast panels, imports and exports",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "optional config file (yaml, toml or json)")
	root.AddCommand(
		newImportCmd(opts),
		newTransitionCmd(opts),
		newNextStatesCmd(opts),
		newExportCmd(opts),
		newProjectCmd(opts),
		newStatusesCmd(opts),
	)
	return root
}

func newImportCmd(opts *rootOptions) *cobra.Command {
	var project, building string
	cmd := &cobra.Command{
		Use:   "import panels|items FILE",
		Short: "Reconcile a spreadsheet, CSV or JSON file into the record store",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := reconcile.Kind(args[0])
			if kind != reconcile.KindPanels && kind != reconcile.KindItems {
				return fmt.Errorf("unknown import kind %q", args[0])
			}
			payload, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[1], err)
			}
			a, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			req := reconcile.Request{
				Filename:   filepath.Base(args[1]),
				Payload:    payload,
				ProjectID:  project,
				BuildingID: building,
			}
			var report reconcile.Report
			if kind == reconcile.KindItems {
				report, err = a.Reconciler.ImportItems(cmd.Context(), req)
			} else {
				report, err = a.Reconciler.ImportPanels(cmd.Context(), req)
			}
			if printErr := opts.printJSON(report); printErr != nil {
				return printErr
			}
			return err
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "default project id or code for new records")
	cmd.Flags().StringVar(&building, "building", "", "default building id or name for new panels")
	return cmd
}

// findPanel accepts a panel id or serial number.
func findPanel(a *app.App, ref string) (core.Panel, error) {
	if p, ok := a.Store.GetPanel(ref); ok {
		return p, nil
	}
	if p, ok := a.Store.FindPanelBySerial(ref); ok {
		return p, nil
	}
	return core.Panel{}, core.ErrNotFound{Entity: core.EntityPanel, ID: ref}
}

func newTransitionCmd(opts *rootOptions) *cobra.Command {
	var role, actor, notes string
	cmd := &cobra.Command{
		Use:   "transition PANEL STATUS",
		Short: "Move a panel (id or serial number) to a new status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, ok := domain.ParseStatus(args[1])
			if !ok {
				return fmt.Errorf("unknown status %q", args[1])
			}
			a, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			panel, err := findPanel(a, args[0])
			if err != nil {
				return err
			}
			if actor == "" {
				actor = role
			}
			updated, _, err := a.Service.TransitionPanel(cmd.Context(), domain.TransitionRequest{
				PanelID: panel.ID,
				Status:  status,
				Role:    domain.Role(role),
				Actor:   actor,
				Notes:   notes,
			})
			if err != nil {
				return err
			}
			return opts.printJSON(updated)
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "acting role")
	cmd.Flags().StringVar(&actor, "actor", "", "user recorded in the history (defaults to the role)")
	cmd.Flags().StringVar(&notes, "notes", "", "history notes")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func newNextStatesCmd(opts *rootOptions) *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "next-states PANEL",
		Short: "List the statuses a role may move a panel to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			panel, err := findPanel(a, args[0])
			if err != nil {
				return err
			}
			states, err := a.Service.AllowedNextStates(cmd.Context(), panel.ID, domain.Role(role))
			if err != nil {
				return err
			}
			return opts.printJSON(map[string]any{"panel": panel.SerialNumber, "status": panel.Status, "next_states": states})
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "acting role")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func newExportCmd(opts *rootOptions) *cobra.Command {
	var out, project, building, status string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write matching panels to an xlsx workbook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter := core.PanelFilter{ProjectID: project, BuildingID: building}
			if status != "" {
				s, ok := domain.ParseStatus(status)
				if !ok {
					return fmt.Errorf("unknown status %q", status)
				}
				filter.Status = s
			}
			a, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			data, rows, err := panels.PanelWorkbook(cmd.Context(), a.Service, filter)
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", out, err)
			}
			_, err = fmt.Fprintf(opts.out, "wrote %d panels to %s\n", rows, out)
			return err
		},
	}
	cmd.Flags().StringVar(&out, "out", "panels.xlsx", "output workbook")
	cmd.Flags().StringVar(&project, "project", "", "project id filter")
	cmd.Flags().StringVar(&building, "building", "", "building id filter")
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	return cmd
}

func newProjectCmd(opts *rootOptions) *cobra.Command {
	project := &cobra.Command{Use: "project", Short: "Manage projects and buildings"}
	project.AddCommand(&cobra.Command{
		Use:   "create CODE NAME",
		Short: "Create a project",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			created, _, err := a.Service.CreateProject(cmd.Context(), core.Project{Code: args[0], Name: args[1]})
			if err != nil {
				return err
			}
			return opts.printJSON(created)
		},
	}, &cobra.Command{
		Use:   "add-building PROJECT NAME",
		Short: "Add a building to a project (id or code)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			projectID := args[0]
			for _, p := range a.Service.ListProjects(cmd.Context()) {
				if p.Code == args[0] {
					projectID = p.ID
				}
			}
			created, _, err := a.Service.CreateBuilding(cmd.Context(), core.Building{ProjectID: projectID, Name: args[1]})
			if err != nil {
				return err
			}
			return opts.printJSON(created)
		},
	}, &cobra.Command{
		Use:   "list",
		Short: "List projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			return opts.printJSON(a.Service.ListProjects(cmd.Context()))
		},
	})
	return project
}

func newStatusesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "statuses",
		Short: "Print the status catalog and what each role may set",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			roles := make(map[domain.Role][]domain.Status)
			for _, r := range domain.Roles() {
				roles[r] = domain.SettableStatuses(r)
			}
			return opts.printJSON(map[string]any{"statuses": domain.StatusCatalog(), "roles": roles})
		},
	}
}
