package cli

import (
	"errors"
	"strings"
)

var (
	// ErrAppNotInitialized is returned when a command runs before the app is wired.
	ErrAppNotInitialized = errors.New("app not initialized")

	// ErrAdminUnavailable is returned by billing commands when no database is configured.
	ErrAdminUnavailable = errors.New("billing administration requires a database connection (set DATABASE_URL)")
)

// RequireEntitlements returns the app when the entitlement service is wired.
func RequireEntitlements() (*App, error) {
	a := GetApp()
	if a == nil || a.Entitlements == nil {
		return nil, ErrAppNotInitialized
	}
	return a, nil
}

// RequireAdmin returns the app when billing administration is wired.
func RequireAdmin() (*App, error) {
	a := GetApp()
	if a == nil {
		return nil, ErrAppNotInitialized
	}
	if !a.HasAdmin() {
		return nil, ErrAdminUnavailable
	}
	return a, nil
}

// SubjectUser picks the billing subject: the flag value, else the configured user.
func SubjectUser(a *App, flagValue string) (string, error) {
	if user := strings.TrimSpace(flagValue); user != "" {
		return user, nil
	}
	if a != nil && a.CurrentUserID != "" {
		return a.CurrentUserID, nil
	}
	return "", errors.New("user is required (--user or COSMIQ_USER_ID)")
}
