package dispatch_test

import (
	"context"
	"fmt"
	"log"

	"github.com/aretw0/dispatch"
	"github.com/aretw0/dispatch/pkg/domain"
)

// ExampleNew runs a risky cancellation through the confirmation gate against
// the built-in demo fleet.
func ExampleNew() {
	engine, err := dispatch.New()
	if err != nil {
		log.Fatal(err)
	}
	ctx := context.Background()

	resp := engine.Process(ctx, domain.TurnRequest{Text: "Cancel the Harbor Loop trip", SessionID: "ops-session"})
	fmt.Println(resp.Status)
	for _, w := range resp.Warnings {
		fmt.Println("warning:", w)
	}

	// The pending flow is resumed by session id.
	resp = engine.Confirm(ctx, domain.ConfirmRequest{SessionID: resp.SessionID, Confirmed: true})
	fmt.Println(resp.Status, resp.Success)

	// Output:
	// confirmation_required
	// warning: 8 confirmed bookings (20% of seat capacity) will be affected.
	// executed true
}

// ExampleEngine_Mermaid prints the first line of the turn workflow chart.
func ExampleEngine_Mermaid() {
	engine, err := dispatch.New()
	if err != nil {
		log.Fatal(err)
	}
	chart := engine.Mermaid()
	fmt.Println(chart[:len("graph TD")])
	// Output: graph TD
}
