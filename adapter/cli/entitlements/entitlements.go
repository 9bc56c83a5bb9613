// Package entitlements holds the commands that read and spend entitlements.
package entitlements

import (
	"github.com/cosmiq-app/cosmiq/internal/billing/domain"
	"github.com/spf13/cobra"
)

// Cmd is the entitlements command group.
var Cmd = &cobra.Command{
	Use:   "entitlements",
	Short: "Inspect and consume feature entitlements",
	Long: `Show what a user or device may use, check a single feature, or
debit one use of it.

Omit --user to act as an anonymous device; anonymous callers need
--device to reach the free tier.`,
}

var (
	userID      string
	fingerprint string
	reportType  string
	clientIP    string
	jsonOutput  bool
)

func init() {
	Cmd.PersistentFlags().StringVarP(&userID, "user", "u", "", "user id (empty for anonymous)")
	Cmd.PersistentFlags().StringVarP(&fingerprint, "device", "d", "", "device fingerprint")

	Cmd.AddCommand(showCmd)
	Cmd.AddCommand(checkCmd)
	Cmd.AddCommand(consumeCmd)
}

func featureRequest(feature domain.Feature) domain.FeatureRequest {
	return domain.FeatureRequest{
		UserID:            userID,
		Feature:           feature,
		DeviceFingerprint: fingerprint,
		ReportType:        reportType,
		ClientIP:          clientIP,
	}
}
