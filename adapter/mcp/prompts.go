package mcp

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/mcp-go"
)

// RegisterPrompts registers MCP prompts for common support workflows.
func RegisterPrompts(srv *mcp.Server, deps ToolDependencies) error {
	if srv == nil {
		return fmt.Errorf("server is required")
	}

	srv.Prompt("missing_credits").
		Description("Investigate a user who paid but cannot use a feature.").
		Argument("user_id", "User who reported the problem", true).
		Argument("feature", "Feature they could not use", false).
		Handler(func(ctx context.Context, args map[string]string) (*mcp.PromptResult, error) {
			return missingCreditsPrompt(args["user_id"], args["feature"]), nil
		})

	srv.Prompt("subscription_sync").
		Description("Bring a user's subscription in line with the payment provider.").
		Argument("user_id", "User whose subscription is out of date", true).
		Handler(func(ctx context.Context, args map[string]string) (*mcp.PromptResult, error) {
			user := args["user_id"]
			if user == "" {
				user = "[user id]"
			}
			return userPrompt("Subscription Sync", fmt.Sprintf(`Bring the subscription of user %s in line with Stripe.

1. Read their current state with billing.status.
2. Ask me for the plan, status and current period from the Stripe dashboard.
3. Record it with billing.subscribe. Keep the period start unchanged unless
   Stripe shows a new period; a new start resets synastry reads and the
   monthly report claim.
4. Confirm with entitlements.get that is_subscriber matches the Stripe status.`, user)), nil
		})

	return nil
}

func missingCreditsPrompt(user, feature string) *mcp.PromptResult {
	if user == "" {
		user = "[user id]"
	}
	if feature == "" {
		feature = "the feature they reported"
	}
	return userPrompt("Missing Credits", fmt.Sprintf(`User %s says they paid but cannot use %s.

1. Call billing.status for the user and list their purchases and credit balances.
2. Call entitlements.check for the feature to see the denial reason.
3. If a completed payment has no matching purchase, ask me for the payment id
   and grant it with billing.grant.
4. If a purchase exists but is refunded, explain that refunded units no longer count.
5. Summarize what you found and what you changed.`, user, feature))
}

func userPrompt(description, text string) *mcp.PromptResult {
	return &mcp.PromptResult{
		Description: description,
		Messages: []mcp.PromptMessage{
			{
				Role: string(mcp.RoleUser),
				Content: mcp.TextContent{
					Type: "text",
					Text: text,
				},
			},
		},
	}
}
