package billing

import (
	"fmt"
	"time"

	"github.com/cosmiq-app/cosmiq/adapter/cli"
	"github.com/cosmiq-app/cosmiq/internal/billing/application/queries"
	"github.com/cosmiq-app/cosmiq/internal/billing/domain"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show a user's subscription, purchases and credit balances",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.RequireAdmin()
		if err != nil {
			return err
		}
		user, err := cli.SubjectUser(app, userFlag)
		if err != nil {
			return err
		}

		status, err := app.BillingStatusHandler.Handle(cmd.Context(), queries.GetBillingStatusQuery{UserID: user})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "User: %s\n", status.UserID)

		if sub := status.Subscription; sub != nil {
			fmt.Fprintf(out, "Subscription: %s (%s)\n", sub.Plan, sub.Status)
			if sub.PeriodEnd != nil {
				fmt.Fprintf(out, "  Renews: %s\n", sub.PeriodEnd.Local().Format(time.RFC1123))
			}
			if sub.CancelAtPeriodEnd {
				fmt.Fprintln(out, "  Cancels at period end")
			}
			fmt.Fprintf(out, "  Synastry reads this period: %d\n", sub.SynastryReads)
			fmt.Fprintf(out, "  Monthly report claimed: %t\n", sub.MonthlyReportClaimed)
		} else {
			fmt.Fprintln(out, "No subscription found.")
		}

		fmt.Fprintln(out, "Credits:")
		for _, product := range domain.CreditProducts {
			fmt.Fprintf(out, "  %-13s %d\n", product, status.Credits[product])
		}

		if len(status.Purchases) == 0 {
			fmt.Fprintln(out, "No purchases.")
			return nil
		}
		fmt.Fprintf(out, "Purchases (%d):\n", len(status.Purchases))
		for _, p := range status.Purchases {
			product := p.ProductType
			if p.ReportType != "" {
				product += ":" + p.ReportType
			}
			fmt.Fprintf(out, "  %s  %-20s %d/%d used  %s\n", p.ID, product, p.Consumed, p.Quantity, p.Status)
		}
		return nil
	},
}
