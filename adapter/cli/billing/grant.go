package billing

import (
	"fmt"

	"github.com/cosmiq-app/cosmiq/adapter/cli"
	"github.com/cosmiq-app/cosmiq/internal/billing/application/commands"
	"github.com/spf13/cobra"
)

var (
	grantProduct    string
	grantReportType string
	grantQuantity   int
	grantPaymentID  string
)

var grantCmd = &cobra.Command{
	Use:   "grant",
	Short: "Grant purchased credits",
	Long: `Record a completed purchase for a user.

Products: ask, detail_pack, synastry, cbt_analysis, report

Examples:
  cosmiq billing grant --user 7d1e --product ask --quantity 10
  cosmiq billing grant --user 7d1e --product report --report-type natal`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.RequireAdmin()
		if err != nil {
			return err
		}
		user, err := cli.SubjectUser(app, userFlag)
		if err != nil {
			return err
		}

		result, err := app.GrantCreditsHandler.Handle(cmd.Context(), commands.GrantCreditsCommand{
			UserID:      user,
			ProductType: grantProduct,
			ReportType:  grantReportType,
			Quantity:    grantQuantity,
			PaymentID:   grantPaymentID,
		})
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Granted %d x %s to %s (purchase %s)\n", grantQuantity, grantProduct, user, result.PurchaseID)
		return nil
	},
}

func init() {
	grantCmd.Flags().StringVar(&grantProduct, "product", "", "product type")
	grantCmd.Flags().StringVar(&grantReportType, "report-type", "", "report type (report product only)")
	grantCmd.Flags().IntVar(&grantQuantity, "quantity", 1, "units to grant")
	grantCmd.Flags().StringVar(&grantPaymentID, "payment-id", "", "payment provider reference")
	_ = grantCmd.MarkFlagRequired("product")
}
