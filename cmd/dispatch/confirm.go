package main

import (
	"github.com/aretw0/dispatch/pkg/domain"
	"github.com/spf13/cobra"
)

var confirmCmd = &cobra.Command{
	Use:   "confirm <session-id>",
	Short: "Approve (or decline) a pending confirmation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		decline, _ := cmd.Flags().GetBool("decline")
		userID, _ := cmd.Flags().GetString("user")
		asJSON, _ := cmd.Flags().GetBool("json")

		a, err := newApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		resp := a.engine.Confirm(cmd.Context(), domain.ConfirmRequest{
			SessionID: args[0],
			Confirmed: !decline,
			UserID:    userID,
		})
		return printResponse(cmd.OutOrStdout(), resp, asJSON)
	},
}

func init() {
	rootCmd.AddCommand(confirmCmd)

	confirmCmd.Flags().Bool("decline", false, "Decline instead of approving")
	confirmCmd.Flags().String("user", "", "Operator id recorded on the session")
	confirmCmd.Flags().Bool("json", false, "Print the raw JSON response")
}
