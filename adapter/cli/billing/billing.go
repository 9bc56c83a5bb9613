// Package billing holds the operator commands that feed subscriptions and purchases.
package billing

import "github.com/spf13/cobra"

// Cmd is the billing command group.
var Cmd = &cobra.Command{
	Use:   "billing",
	Short: "Administer subscriptions and credits",
	Long: `Record subscriptions, grant purchased credits, refund purchases and
inspect a user's billing ledger. Requires DATABASE_URL.`,
}

var userFlag string

func init() {
	Cmd.PersistentFlags().StringVarP(&userFlag, "user", "u", "", "subject user id (defaults to COSMIQ_USER_ID)")

	Cmd.AddCommand(subscribeCmd)
	Cmd.AddCommand(grantCmd)
	Cmd.AddCommand(refundCmd)
	Cmd.AddCommand(statusCmd)
}
