// Package tui renders engine responses for the interactive chat.
package tui

import (
	"fmt"
	"strings"

	"github.com/aretw0/dispatch/pkg/domain"
)

// Markdown formats a response: the message, warnings as a quote, and a
// footer naming the status and what the operator can reply.
func Markdown(resp *domain.TurnResponse) string {
	var sb strings.Builder
	sb.WriteString(resp.Message)
	sb.WriteString("\n")

	if len(resp.Warnings) > 0 {
		sb.WriteString("\n")
		for _, w := range resp.Warnings {
			fmt.Fprintf(&sb, "> **Warning:** %s\n", w)
		}
	}

	if w := resp.Wizard; w != nil && w.Total > 0 {
		fmt.Fprintf(&sb, "\n_%s: step %d of %d_\n", w.Type, min(w.Step+1, w.Total), w.Total)
	}

	fmt.Fprintf(&sb, "\n`%s`", resp.Status)
	if resp.ErrorCode != "" {
		fmt.Fprintf(&sb, " `%s`", resp.ErrorCode)
	}
	if hint := replyHint(resp); hint != "" {
		sb.WriteString(" ")
		sb.WriteString(hint)
	}
	sb.WriteString("\n")
	return sb.String()
}

func replyHint(resp *domain.TurnResponse) string {
	switch {
	case resp.NeedsConfirmation:
		return "reply **yes** to proceed or **no** to stop"
	case resp.Status == domain.StatusAwaitingSelection || resp.Status == domain.StatusAmbiguous:
		return "reply with a number or a name"
	case resp.WizardActive:
		return "reply **cancel** to discard"
	}
	return ""
}
