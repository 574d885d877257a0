package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/aretw0/dispatch/internal/presentation/tui"
	"github.com/aretw0/dispatch/pkg/domain"
	"github.com/spf13/cobra"
)

var turnCmd = &cobra.Command{
	Use:   "turn [text...]",
	Short: "Process a single request and print the response",
	Long: `Processes one request. Pending flows outlive the process only with a persistent
session store (store.driver file, redis, mysql or sqlite); answer them with
dispatch turn --session or dispatch confirm.`,
	Example: `  dispatch turn cancel the 8am Airport Express
  dispatch turn --session s-1 option 2
  dispatch turn list trips --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID, _ := cmd.Flags().GetString("session")
		userID, _ := cmd.Flags().GetString("user")
		asJSON, _ := cmd.Flags().GetBool("json")

		a, err := newApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		resp := a.engine.Process(cmd.Context(), domain.TurnRequest{
			Text:      strings.Join(args, " "),
			SessionID: sessionID,
			UserID:    userID,
		})
		return printResponse(cmd.OutOrStdout(), resp, asJSON)
	},
}

func printResponse(w io.Writer, resp *domain.TurnResponse, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	out, err := tui.Plain(tui.Markdown(resp))
	if err != nil {
		return err
	}
	fmt.Fprint(w, out)
	if resp.SessionID != "" && !resp.Success {
		fmt.Fprintf(w, "session: %s\n", resp.SessionID)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(turnCmd)

	turnCmd.Flags().String("session", "", "Session id to continue (a new one is generated when empty)")
	turnCmd.Flags().String("user", "", "Operator id recorded on the session")
	turnCmd.Flags().Bool("json", false, "Print the raw JSON response")
}
