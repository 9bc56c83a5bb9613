package billing

import (
	"fmt"

	"github.com/cosmiq-app/cosmiq/adapter/cli"
	"github.com/cosmiq-app/cosmiq/internal/billing/application/commands"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var refundCmd = &cobra.Command{
	Use:   "refund <purchase-id>",
	Short: "Refund a purchase",
	Long: `Mark a purchase refunded. Its remaining units stop counting.
Refunding an already refunded purchase does nothing.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.RequireAdmin()
		if err != nil {
			return err
		}
		user, err := cli.SubjectUser(app, userFlag)
		if err != nil {
			return err
		}
		purchaseID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid purchase id: %w", err)
		}

		if err := app.RefundPurchaseHandler.Handle(cmd.Context(), commands.RefundPurchaseCommand{
			UserID:     user,
			PurchaseID: purchaseID,
		}); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Purchase %s refunded\n", purchaseID)
		return nil
	},
}
