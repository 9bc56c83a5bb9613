package entitlements

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cosmiq-app/cosmiq/adapter/cli"
	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the entitlement snapshot",
	Long: `Show the entitlement snapshot of a user or device. Nothing is written.

Examples:
  cosmiq entitlements show --device 4f9c2e
  cosmiq entitlements show --user 7d1e --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.RequireEntitlements()
		if err != nil {
			return err
		}

		snapshot, err := app.Entitlements.GetEntitlements(cmd.Context(), userID, fingerprint)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(snapshot)
		}

		fmt.Fprintf(out, "Logged in:  %s\n", yesNo(snapshot.IsLoggedIn))
		fmt.Fprintf(out, "Subscriber: %s\n", yesNo(snapshot.IsSubscriber))
		if sub := snapshot.Subscription; sub != nil {
			fmt.Fprintf(out, "  Plan: %s (%s)\n", sub.Plan, sub.Status)
			fmt.Fprintf(out, "  Synastry reads left: %d\n", snapshot.SynastryReadsLeft())
			fmt.Fprintf(out, "  Monthly report claimed: %s\n", yesNo(sub.MonthlyReportClaimed))
		}
		fmt.Fprintln(out, "Free tier:")
		fmt.Fprintf(out, "  ask:      %s\n", snapshot.FreeAskLeft)
		fmt.Fprintf(out, "  detail:   %s\n", snapshot.FreeDetailLeft)
		fmt.Fprintf(out, "  synastry: %s\n", snapshot.FreeSynastryLeft)
		fmt.Fprintln(out, "Purchased:")
		fmt.Fprintf(out, "  ask:          %d\n", snapshot.PurchasedAsk)
		fmt.Fprintf(out, "  detail_pack:  %d\n", snapshot.PurchasedDetailPack)
		fmt.Fprintf(out, "  synastry:     %d\n", snapshot.PurchasedSynastry)
		fmt.Fprintf(out, "  cbt_analysis: %d\n", snapshot.PurchasedCBTAnalysis)
		if len(snapshot.PurchasedReports) > 0 {
			fmt.Fprintf(out, "  reports:      %s\n", strings.Join(snapshot.PurchasedReports, ", "))
		}
		return nil
	},
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func init() {
	showCmd.Flags().BoolVar(&jsonOutput, "json", false, "print the snapshot as JSON")
}
