// Package cli holds the cosmiq root command and the state its subcommands share.
package cli

import (
	"github.com/cosmiq-app/cosmiq/internal/app"
	"github.com/cosmiq-app/cosmiq/internal/billing/application/commands"
	"github.com/cosmiq-app/cosmiq/internal/billing/application/queries"
	"github.com/cosmiq-app/cosmiq/internal/billing/domain"
)

// App is what entitlement and billing subcommands run against.
// The billing handlers are nil when no database is configured.
type App struct {
	Entitlements domain.EntitlementService

	SetSubscriptionHandler *commands.SetSubscriptionHandler
	GrantCreditsHandler    *commands.GrantCreditsHandler
	RefundPurchaseHandler  *commands.RefundPurchaseHandler
	BillingStatusHandler   *queries.GetBillingStatusHandler

	// CurrentUserID is the subject of billing commands run without --user.
	CurrentUserID string
}

// NewApp assembles an App from individual handlers.
func NewApp(
	entitlements domain.EntitlementService,
	setSubscription *commands.SetSubscriptionHandler,
	grantCredits *commands.GrantCreditsHandler,
	refundPurchase *commands.RefundPurchaseHandler,
	billingStatus *queries.GetBillingStatusHandler,
) *App {
	return &App{
		Entitlements:           entitlements,
		SetSubscriptionHandler: setSubscription,
		GrantCreditsHandler:    grantCredits,
		RefundPurchaseHandler:  refundPurchase,
		BillingStatusHandler:   billingStatus,
	}
}

// FromContainer takes the services wired by c, acting for userID by default.
func FromContainer(c *app.Container, userID string) *App {
	a := NewApp(c.Entitlements, c.SetSubscriptionHandler, c.GrantCreditsHandler, c.RefundPurchaseHandler, c.BillingStatusHandler)
	a.CurrentUserID = userID
	return a
}

// SetCurrentUserID sets the default billing subject.
func (a *App) SetCurrentUserID(id string) {
	a.CurrentUserID = id
}

// HasAdmin reports whether billing administration is wired.
func (a *App) HasAdmin() bool {
	return a.SetSubscriptionHandler != nil &&
		a.GrantCreditsHandler != nil &&
		a.RefundPurchaseHandler != nil &&
		a.BillingStatusHandler != nil
}

var current *App

// SetApp installs the App used by subcommands. nil leaves only the commands that build their own container usable.
func SetApp(a *App) {
	current = a
}

// GetApp returns the installed App, or nil.
func GetApp() *App {
	return current
}
