/*
Package dispatch is a command orchestration engine for transport operations.

It turns one natural-language or structured operator request into a safe action
on trips, vehicles, drivers, stops, paths and routes. Each turn walks a fixed
workflow graph: classify the intent, resolve the target, classify the risk,
and then either execute, ask for confirmation, run a creation wizard, or offer
options to pick from. Flows that span turns are persisted as sessions so that
any replica can continue them.

# Concept

The engine owns the decision logic and nothing else. Intent classification,
the entity directory, action handlers and session storage are ports, with
reference adapters under pkg/adapters (memory, Redis, MySQL/SQLite, AMQP,
HTTP and MCP).

# Usage

	eng, err := dispatch.New() // in-memory store, demo fleet, keyword classifier
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	resp := eng.Process(ctx, domain.TurnRequest{Text: "cancel the harbor loop trip"})
	fmt.Println(resp.Message) // asks for confirmation, 8 bookings affected

	if resp.NeedsConfirmation {
		resp = eng.Confirm(ctx, domain.ConfirmRequest{SessionID: resp.SessionID, Confirmed: true})
		fmt.Println(resp.Status) // executed
	}
*/
package dispatch
