package entitlements

import (
	"fmt"

	"github.com/cosmiq-app/cosmiq/adapter/cli"
	"github.com/cosmiq-app/cosmiq/internal/billing/domain"
	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check <feature>",
	Short: "Check whether a feature may be used",
	Long: `Check a feature without spending anything.

Features: ask, detail, synastry, cbt_analysis, daily_detail, report

Examples:
  cosmiq entitlements check ask --device 4f9c2e
  cosmiq entitlements check report --user 7d1e --report-type natal`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.RequireEntitlements()
		if err != nil {
			return err
		}

		decision, err := app.Entitlements.CanUseFeature(cmd.Context(), featureRequest(domain.Feature(args[0])))
		if err != nil {
			return err
		}

		if decision.Allowed {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: allowed\n", args[0])
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: denied (%s)\n", args[0], decision.Reason)
		return nil
	},
}

func init() {
	checkCmd.Flags().StringVar(&reportType, "report-type", "", "report type for the report feature")
}
