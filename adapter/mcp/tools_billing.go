package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/cosmiq-app/cosmiq/adapter/cli"
	"github.com/cosmiq-app/cosmiq/internal/billing/application/commands"
	"github.com/cosmiq-app/cosmiq/internal/billing/application/queries"
	"github.com/cosmiq-app/cosmiq/internal/billing/domain"
	"github.com/felixgeelhaar/mcp-go"
	"github.com/google/uuid"
)

type billingUserInput struct {
	UserID string `json:"user_id,omitempty" jsonschema:"description=Subject user id; defaults to the configured operator subject"`
}

type billingSubscribeInput struct {
	UserID             string `json:"user_id,omitempty"`
	Plan               string `json:"plan,omitempty" jsonschema:"description=monthly or yearly"`
	Status             string `json:"status,omitempty" jsonschema:"description=active, trialing, past_due, canceled or expired"`
	PeriodStart        string `json:"period_start,omitempty" jsonschema:"description=RFC3339 or YYYY-MM-DD; defaults to the current calendar period"`
	PeriodEnd          string `json:"period_end,omitempty"`
	CancelAtPeriodEnd  bool   `json:"cancel_at_period_end,omitempty"`
	StripeCustomerID   string `json:"stripe_customer_id,omitempty"`
	StripeSubscription string `json:"stripe_subscription_id,omitempty"`
}

type billingSubscribeOutput struct {
	SubscriptionID uuid.UUID `json:"subscription_id"`
	PeriodStart    time.Time `json:"period_start"`
	PeriodEnd      time.Time `json:"period_end"`
	UsageReset     bool      `json:"usage_reset"`
}

type billingGrantInput struct {
	UserID      string `json:"user_id,omitempty"`
	ProductType string `json:"product_type" jsonschema:"required,description=ask, detail_pack, synastry, cbt_analysis or report"`
	ReportType  string `json:"report_type,omitempty"`
	Quantity    int    `json:"quantity,omitempty" jsonschema:"description=Units to grant; defaults to 1"`
	PaymentID   string `json:"payment_id,omitempty"`
}

type billingGrantOutput struct {
	PurchaseID uuid.UUID `json:"purchase_id"`
}

type billingRefundInput struct {
	UserID     string `json:"user_id,omitempty"`
	PurchaseID string `json:"purchase_id" jsonschema:"required"`
}

func registerBillingTools(srv *mcp.Server, deps ToolDependencies) {
	app := deps.App

	srv.Tool("billing.status").
		Description("Get a user's subscription, purchases and credit balances").
		Handler(func(ctx context.Context, input billingUserInput) (*queries.BillingStatusDTO, error) {
			return billingStatus(ctx, app, input)
		})

	srv.Tool("billing.subscribe").
		Description("Record or update a user's subscription").
		Handler(func(ctx context.Context, input billingSubscribeInput) (billingSubscribeOutput, error) {
			return billingSubscribe(ctx, app, input, time.Now())
		})

	srv.Tool("billing.grant").
		Description("Grant purchased credits or a report").
		Handler(func(ctx context.Context, input billingGrantInput) (billingGrantOutput, error) {
			return billingGrant(ctx, app, input)
		})

	srv.Tool("billing.refund").
		Description("Refund a purchase so its remaining units stop counting").
		Handler(func(ctx context.Context, input billingRefundInput) (map[string]string, error) {
			if err := billingRefund(ctx, app, input); err != nil {
				return nil, err
			}
			return map[string]string{"purchase_id": input.PurchaseID, "status": string(domain.PurchaseRefunded)}, nil
		})
}

func billingStatus(ctx context.Context, app *cli.App, input billingUserInput) (*queries.BillingStatusDTO, error) {
	user, err := adminSubject(app, input.UserID)
	if err != nil {
		return nil, err
	}
	return app.BillingStatusHandler.Handle(ctx, queries.GetBillingStatusQuery{UserID: user})
}

func billingSubscribe(ctx context.Context, app *cli.App, input billingSubscribeInput, now time.Time) (billingSubscribeOutput, error) {
	user, err := adminSubject(app, input.UserID)
	if err != nil {
		return billingSubscribeOutput{}, err
	}
	if input.Plan == "" {
		input.Plan = string(domain.PlanMonthly)
	}
	if input.Status == "" {
		input.Status = string(domain.SubscriptionActive)
	}

	plan := domain.Plan(input.Plan)
	start, end := plan.CalendarPeriod(now)
	if input.PeriodStart != "" {
		if start, err = parseTimestamp(input.PeriodStart); err != nil {
			return billingSubscribeOutput{}, fmt.Errorf("invalid period_start: %w", err)
		}
		end = plan.PeriodFrom(start)
	}
	if input.PeriodEnd != "" {
		if end, err = parseTimestamp(input.PeriodEnd); err != nil {
			return billingSubscribeOutput{}, fmt.Errorf("invalid period_end: %w", err)
		}
	}

	result, err := app.SetSubscriptionHandler.Handle(ctx, commands.SetSubscriptionCommand{
		UserID:             user,
		Plan:               input.Plan,
		Status:             input.Status,
		PeriodStart:        start,
		PeriodEnd:          end,
		CancelAtPeriodEnd:  input.CancelAtPeriodEnd,
		StripeCustomerID:   input.StripeCustomerID,
		StripeSubscription: input.StripeSubscription,
	})
	if err != nil {
		return billingSubscribeOutput{}, err
	}
	return billingSubscribeOutput{
		SubscriptionID: result.SubscriptionID,
		PeriodStart:    start,
		PeriodEnd:      end,
		UsageReset:     result.UsageReset,
	}, nil
}

func billingGrant(ctx context.Context, app *cli.App, input billingGrantInput) (billingGrantOutput, error) {
	user, err := adminSubject(app, input.UserID)
	if err != nil {
		return billingGrantOutput{}, err
	}
	if input.Quantity == 0 {
		input.Quantity = 1
	}
	result, err := app.GrantCreditsHandler.Handle(ctx, commands.GrantCreditsCommand{
		UserID:      user,
		ProductType: input.ProductType,
		ReportType:  input.ReportType,
		Quantity:    input.Quantity,
		PaymentID:   input.PaymentID,
	})
	if err != nil {
		return billingGrantOutput{}, err
	}
	return billingGrantOutput{PurchaseID: result.PurchaseID}, nil
}

func billingRefund(ctx context.Context, app *cli.App, input billingRefundInput) error {
	user, err := adminSubject(app, input.UserID)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(input.PurchaseID)
	if err != nil {
		return fmt.Errorf("invalid purchase_id: %w", err)
	}
	return app.RefundPurchaseHandler.Handle(ctx, commands.RefundPurchaseCommand{UserID: user, PurchaseID: id})
}

func adminSubject(app *cli.App, userID string) (string, error) {
	if app == nil {
		return "", cli.ErrAppNotInitialized
	}
	if !app.HasAdmin() {
		return "", cli.ErrAdminUnavailable
	}
	return cli.SubjectUser(app, userID)
}

func parseTimestamp(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC(), nil
	}
	return time.Parse(time.DateOnly, value)
}
