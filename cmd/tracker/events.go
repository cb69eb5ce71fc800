package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/yourorg/patch-tracker/internal/model"
	"github.com/yourorg/patch-tracker/internal/promotion"
)

func newServicesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "services",
		Short: "List services, seeding the defaults into an empty catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			services, err := a.svc.SeedServices(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME")
			for _, svc := range services {
				fmt.Fprintf(w, "%d\t%s\n", svc.ID, svc.Name)
			}
			return w.Flush()
		},
	}
}

func newCreateCmd(a *app) *cobra.Command {
	var (
		serviceID int64
		env       string
		ami       string
		date      string
		notes     string
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a patch event",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var patchDate time.Time
			if date != "" {
				d, err := time.Parse(time.DateOnly, date)
				if err != nil {
					return fmt.Errorf("invalid --date %q: want YYYY-MM-DD", date)
				}
				patchDate = d
			}
			ev, err := a.svc.CreatePatchEvent(cmd.Context(), promotion.NewPatchEvent{
				ServiceID:   serviceID,
				Environment: model.Environment(env),
				AMIID:       ami,
				PatchDate:   patchDate,
				Notes:       notes,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created patch event %d (%s, %s, %s).\n",
				ev.ID, ev.ServiceName, ev.Environment, ev.CurrentStateCode)
			return nil
		},
	}
	cmd.Flags().Int64Var(&serviceID, "service", 0, "service id (see: tracker services)")
	cmd.Flags().StringVar(&env, "env", string(model.EnvironmentDev), "environment: DEV, STAGE or PROD")
	cmd.Flags().StringVar(&ami, "ami", "", "AMI id being patched")
	cmd.Flags().StringVar(&date, "date", time.Now().Format(time.DateOnly), "patch date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&notes, "notes", "", "free-form notes")
	return cmd
}

func newListCmd(a *app) *cobra.Command {
	var filter promotion.DashboardFilter
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show the patch event dashboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dash, err := a.svc.Dashboard(cmd.Context(), filter)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSERVICE\tENV\tAMI\tPATCH DATE\tSTATE\tEVIDENCE")
			for _, ev := range dash.Events {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%t\n",
					ev.ID, ev.ServiceName, ev.Environment, ev.AMIID,
					ev.PatchDate.Format(time.DateOnly), ev.CurrentStateCode, ev.DevEvidenceAvailable)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			st := dash.Stats
			fmt.Fprintf(cmd.OutOrStdout(),
				"\nTotal: %d | DEV: %d STAGE: %d PROD: %d | DEV phase: %d STAGE phase: %d PROD phase: %d | Closed: %d\n",
				st.Total,
				st.ByEnvironment[model.EnvironmentDev], st.ByEnvironment[model.EnvironmentStage], st.ByEnvironment[model.EnvironmentProd],
				st.ByPhase["DEV"], st.ByPhase["STAGE"], st.ByPhase["PROD"],
				st.Closed)
			return nil
		},
	}
	cmd.Flags().StringVar(&filter.ServiceID, "service", "", "filter by service id")
	cmd.Flags().StringVar(&filter.Environment, "env", "", "filter by environment")
	cmd.Flags().StringVar(&filter.State, "state", "", "filter by lifecycle state code")
	return cmd
}

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <event-id>",
		Short: "Print a patch event with its evidence and CR summaries as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			detail, err := a.svc.Detail(cmd.Context(), id)
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(detail); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <event-id>",
		Short: "Delete a patch event with its snapshots and history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			out, err := a.svc.DeletePatchEvent(cmd.Context(), id)
			if err != nil {
				return err
			}
			printOutcome(cmd, out)
			return nil
		},
	}
}
