package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yourorg/patch-tracker/internal/promotion"
)

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "tracker [command]",
		SilenceUsage:  true,
		SilenceErrors: true,
		Short:         "Track AMI patch promotions from DEV through PROD.",
		Long: `tracker records AMI patch events, generates synthetic BEFORE/AFTER scan
snapshots, derives the fixed vulnerabilities and drafts the STAGE and PROD
change-request summaries needed to promote a patch.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			return a.setup(cmd.Context())
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true

	root.AddCommand(
		newServicesCmd(a),
		newCreateCmd(a),
		newListCmd(a),
		newShowCmd(a),
		newDeleteCmd(a),
		newGenerateBeforeCmd(a),
		newGenerateAfterCmd(a),
		newComputeEvidenceCmd(a),
		newStageCRCmd(a),
		newProdCRCmd(a),
		newTransitionCmd(a),
		newArchiveCmd(a),
	)
	return root
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid patch event id %q", arg)
	}
	return id, nil
}

func printOutcome(cmd *cobra.Command, out promotion.Outcome) {
	fmt.Fprintln(cmd.OutOrStdout(), out.Message)
}
