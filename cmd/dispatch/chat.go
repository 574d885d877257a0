package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aretw0/dispatch"
	"github.com/aretw0/dispatch/internal/presentation/tui"
	"github.com/aretw0/dispatch/internal/wizard"
	"github.com/aretw0/dispatch/pkg/domain"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const chatWidth = 100

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the engine interactively",
	Long: `Starts a read-eval-print loop on one session. Pending confirmations are answered
with yes or no; type exit or quit to leave.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")

		a, err := newApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		render := tui.Plain
		if term.IsTerminal(int(os.Stdout.Fd())) {
			if r, err := tui.NewRenderer(chatWidth); err == nil {
				render = r
			} else {
				logger.Warn("falling back to plain output", "err", err)
			}
		}
		out := cmd.OutOrStdout()
		tui.PrintBanner(out, strings.TrimSpace(dispatch.Version))
		return chat(cmd.Context(), a.engine, cmd.InOrStdin(), out, render, userID)
	},
}

// chat runs the loop until exit, quit or end of input.
func chat(ctx context.Context, eng *dispatch.Engine, in io.Reader, out io.Writer, render tui.Renderer, userID string) error {
	sessionID := uuid.NewString()
	var pending bool
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		text := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(text) {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		var resp *domain.TurnResponse
		if confirmed, ok := confirmation(text); pending && ok {
			resp = eng.Confirm(ctx, domain.ConfirmRequest{SessionID: sessionID, Confirmed: confirmed, UserID: userID})
		} else {
			resp = eng.Process(ctx, domain.TurnRequest{Text: text, SessionID: sessionID, UserID: userID})
		}
		if resp.SessionID != "" {
			sessionID = resp.SessionID
		}
		pending = resp.NeedsConfirmation

		rendered, err := render(tui.Markdown(resp))
		if err != nil {
			return err
		}
		fmt.Fprintln(out, rendered)
	}
}

// confirmation maps a reply to a pending confirmation onto approve or decline.
func confirmation(text string) (confirmed, ok bool) {
	switch {
	case wizard.IsConfirm(text):
		return true, true
	case wizard.IsCancel(text), strings.EqualFold(strings.TrimSpace(text), "no"), strings.EqualFold(strings.TrimSpace(text), "n"):
		return false, true
	}
	return false, false
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().String("user", "", "Operator id recorded on the session")
}
