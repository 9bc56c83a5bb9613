package entitlements

import (
	"errors"
	"fmt"

	"github.com/cosmiq-app/cosmiq/adapter/cli"
	"github.com/cosmiq-app/cosmiq/internal/billing/domain"
	"github.com/spf13/cobra"
)

// ErrNotConsumed is returned when nothing could be debited.
var ErrNotConsumed = errors.New("feature not consumed")

var consumeCmd = &cobra.Command{
	Use:   "consume <feature>",
	Short: "Debit one use of a feature",
	Long: `Debit one use of a feature from the highest-precedence balance:
subscription, then purchased credit, then the device free tier.
Exits non-zero when nothing could be debited.

Examples:
  cosmiq entitlements consume ask --device 4f9c2e --ip 203.0.113.7
  cosmiq entitlements consume synastry --user 7d1e`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.RequireEntitlements()
		if err != nil {
			return err
		}

		req := featureRequest(domain.Feature(args[0]))
		consumed, err := app.Entitlements.ConsumeFeature(cmd.Context(), req)
		if err != nil {
			return err
		}
		if consumed {
			fmt.Fprintf(cmd.OutOrStdout(), "%s: consumed\n", args[0])
			return nil
		}

		decision, err := app.Entitlements.CanUseFeature(cmd.Context(), req)
		if err != nil {
			return err
		}
		decision, raced := domain.ExplainFailedConsume(req, decision)
		if raced {
			return fmt.Errorf("%w: %s: balance changed concurrently, retry", ErrNotConsumed, args[0])
		}
		return fmt.Errorf("%w: %s: %s", ErrNotConsumed, args[0], decision.Reason)
	},
}

func init() {
	consumeCmd.Flags().StringVar(&reportType, "report-type", "", "report type for the report feature")
	consumeCmd.Flags().StringVar(&clientIP, "ip", "", "client IP recorded on first free-tier use")
}
