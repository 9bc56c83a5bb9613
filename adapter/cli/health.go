package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var healthJSON bool

// healthReport describes how the CLI is wired, not the state of remote dependencies.
type healthReport struct {
	Status       string `json:"status"`
	Entitlements string `json:"entitlements"`
	Admin        bool   `json:"admin"`
	DefaultUser  string `json:"default_user,omitempty"`
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Report how entitlements are backed",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := RequireEntitlements()
		if err != nil {
			return err
		}

		report := healthReport{
			Status:       "ok",
			Entitlements: "fail-open (no storage configured)",
			Admin:        a.HasAdmin(),
			DefaultUser:  a.CurrentUserID,
		}
		if report.Admin {
			report.Entitlements = "store-backed"
		}

		out := cmd.OutOrStdout()
		if healthJSON {
			return json.NewEncoder(out).Encode(report)
		}
		fmt.Fprintln(out, report.Status)
		fmt.Fprintf(out, "entitlements: %s\n", report.Entitlements)
		if report.DefaultUser != "" {
			fmt.Fprintf(out, "default user: %s\n", report.DefaultUser)
		}
		return nil
	},
}

func init() {
	healthCmd.Flags().BoolVar(&healthJSON, "json", false, "print the report as JSON")
	rootCmd.AddCommand(healthCmd)
}
