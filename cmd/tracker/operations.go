package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yourorg/patch-tracker/internal/model"
	"github.com/yourorg/patch-tracker/internal/promotion"
)

var errNoBeforeSnapshot = &promotion.PreconditionError{
	Reason:  promotion.ReasonMissingSnapshots,
	Message: "Generate BEFORE snapshot first for this event.",
}

// eventOp builds a subcommand running one promotion operation on an event.
func eventOp(use, short string, op func(ctx context.Context, id int64) (promotion.Outcome, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <event-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			out, err := op(cmd.Context(), id)
			if err != nil {
				return err
			}
			printOutcome(cmd, out)
			return nil
		},
	}
}

func newGenerateBeforeCmd(a *app) *cobra.Command {
	return eventOp("generate-before", "Replace the BEFORE snapshot with synthetic findings",
		func(ctx context.Context, id int64) (promotion.Outcome, error) {
			return a.svc.GenerateBeforeSnapshot(ctx, id)
		})
}

func newGenerateAfterCmd(a *app) *cobra.Command {
	var allowFallback bool
	cmd := eventOp("generate-after", "Replace the AFTER snapshot with a subset of the BEFORE findings",
		func(ctx context.Context, id int64) (promotion.Outcome, error) {
			if !allowFallback {
				ok, err := a.svc.HasBeforeSnapshot(ctx, id)
				if err != nil {
					return promotion.Outcome{}, err
				}
				if !ok {
					return promotion.Outcome{}, errNoBeforeSnapshot
				}
			}
			return a.svc.GenerateAfterSnapshot(ctx, id)
		})
	cmd.Flags().BoolVar(&allowFallback, "allow-fallback", false, "generate unrelated AFTER findings when no BEFORE snapshot exists")
	return cmd
}

func newComputeEvidenceCmd(a *app) *cobra.Command {
	return eventOp("compute-evidence", "Derive fixed vulnerabilities and mark DEV evidence available",
		func(ctx context.Context, id int64) (promotion.Outcome, error) {
			return a.svc.ComputeEvidence(ctx, id)
		})
}

func newStageCRCmd(a *app) *cobra.Command {
	return eventOp("stage-cr", "Draft the DEV -> STAGE change-request summary",
		func(ctx context.Context, id int64) (promotion.Outcome, error) {
			return a.svc.GenerateStageCR(ctx, id)
		})
}

func newProdCRCmd(a *app) *cobra.Command {
	return eventOp("prod-cr", "Draft the STAGE -> PROD change-request summary",
		func(ctx context.Context, id int64) (promotion.Outcome, error) {
			return a.svc.GenerateProdCR(ctx, id)
		})
}

func newTransitionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "transition <event-id> <state-code>",
		Short: "Move a patch event to its next lifecycle state",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			out, err := a.svc.TransitionState(cmd.Context(), id, model.StateCode(args[1]))
			if err != nil {
				return err
			}
			printOutcome(cmd, out)
			return nil
		},
	}
}

func newArchiveCmd(a *app) *cobra.Command {
	var batchSize, maxEvents int
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Upload every stored CR summary to the reports bucket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.svc.ArchiveAll(cmd.Context(), batchSize, maxEvents)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "archive complete: events=%d uploaded=%d failed=%d\n",
				st.Events, st.Uploaded, st.Failed)
			if st.Failed > 0 {
				return fmt.Errorf("%d uploads failed", st.Failed)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&batchSize, "batch-size", 25, "number of events to read per batch")
	cmd.Flags().IntVar(&maxEvents, "max-events", 0, "maximum events to archive (0 = unlimited)")
	return cmd
}
