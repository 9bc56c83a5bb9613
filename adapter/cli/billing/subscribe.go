package billing

import (
	"fmt"
	"time"

	"github.com/cosmiq-app/cosmiq/adapter/cli"
	"github.com/cosmiq-app/cosmiq/internal/billing/application/commands"
	"github.com/cosmiq-app/cosmiq/internal/billing/domain"
	"github.com/spf13/cobra"
)

var (
	subscribePlan        string
	subscribeStatus      string
	subscribeStart       string
	subscribeEnd         string
	subscribeCancelAtEnd bool
	subscribeCustomer    string
	subscribeStripeSubID string
)

var subscribeCmd = &cobra.Command{
	Use:   "subscribe",
	Short: "Record or update a user's subscription",
	Long: `Record the subscription state reported by the payment provider.

The period defaults to the current UTC month (or year for the yearly plan).
Synastry reads and the monthly report reset when the period start changes.

Examples:
  cosmiq billing subscribe --user 7d1e --plan monthly
  cosmiq billing subscribe --user 7d1e --status past_due
  cosmiq billing subscribe --user 7d1e --plan yearly --period-start 2026-01-01`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := cli.RequireAdmin()
		if err != nil {
			return err
		}
		user, err := cli.SubjectUser(app, userFlag)
		if err != nil {
			return err
		}

		start, end, err := subscriptionPeriod(domain.Plan(subscribePlan), subscribeStart, subscribeEnd, time.Now())
		if err != nil {
			return err
		}

		result, err := app.SetSubscriptionHandler.Handle(cmd.Context(), commands.SetSubscriptionCommand{
			UserID:             user,
			Plan:               subscribePlan,
			Status:             subscribeStatus,
			PeriodStart:        start,
			PeriodEnd:          end,
			CancelAtPeriodEnd:  subscribeCancelAtEnd,
			StripeCustomerID:   subscribeCustomer,
			StripeSubscription: subscribeStripeSubID,
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Subscription %s: %s (%s) for %s\n", result.SubscriptionID, subscribePlan, subscribeStatus, user)
		fmt.Fprintf(out, "Period: %s to %s\n", start.Format(time.DateOnly), end.Format(time.DateOnly))
		if result.UsageReset {
			fmt.Fprintln(out, "New period: monthly usage reset")
		}
		return nil
	},
}

// subscriptionPeriod resolves the period flags. Empty flags select the
// calendar month or year containing now.
func subscriptionPeriod(plan domain.Plan, startFlag, endFlag string, now time.Time) (time.Time, time.Time, error) {
	if startFlag == "" && endFlag == "" {
		start, end := plan.CalendarPeriod(now)
		return start, end, nil
	}

	start, _ := plan.CalendarPeriod(now)
	if startFlag != "" {
		t, err := parseTime(startFlag)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --period-start: %w", err)
		}
		start = t
	}
	if endFlag == "" {
		return start, plan.PeriodFrom(start), nil
	}
	end, err := parseTime(endFlag)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid --period-end: %w", err)
	}
	return start, end, nil
}

func parseTime(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	return time.Parse(time.DateOnly, value)
}

func init() {
	subscribeCmd.Flags().StringVar(&subscribePlan, "plan", string(domain.PlanMonthly), "plan (monthly, yearly)")
	subscribeCmd.Flags().StringVar(&subscribeStatus, "status", string(domain.SubscriptionActive), "status (active, trialing, past_due, canceled, expired)")
	subscribeCmd.Flags().StringVar(&subscribeStart, "period-start", "", "period start (YYYY-MM-DD or RFC3339)")
	subscribeCmd.Flags().StringVar(&subscribeEnd, "period-end", "", "period end (YYYY-MM-DD or RFC3339)")
	subscribeCmd.Flags().BoolVar(&subscribeCancelAtEnd, "cancel-at-period-end", false, "cancel when the period ends")
	subscribeCmd.Flags().StringVar(&subscribeCustomer, "stripe-customer", "", "Stripe customer id")
	subscribeCmd.Flags().StringVar(&subscribeStripeSubID, "stripe-subscription", "", "Stripe subscription id")
}
