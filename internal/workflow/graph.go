// Package workflow wires the turn-processing components into the node graph
// walked by the runtime.
package workflow

import (
	"errors"
	"log/slog"

	"github.com/aretw0/dispatch/internal/confirm"
	"github.com/aretw0/dispatch/internal/executor"
	"github.com/aretw0/dispatch/internal/logging"
	"github.com/aretw0/dispatch/internal/report"
	"github.com/aretw0/dispatch/internal/resolver"
	"github.com/aretw0/dispatch/internal/risk"
	"github.com/aretw0/dispatch/internal/router"
	"github.com/aretw0/dispatch/internal/wizard"
	"github.com/aretw0/dispatch/pkg/domain"
	"github.com/aretw0/dispatch/pkg/graph"
	"github.com/aretw0/dispatch/pkg/ports"
	"github.com/aretw0/dispatch/pkg/session"
)

// Node identifiers.
const (
	Intake              graph.NodeID = "intake"
	ClassifyIntent      graph.NodeID = "classify_intent"
	ResolveTarget       graph.NodeID = "resolve_target"
	Decide              graph.NodeID = "decide"
	CollectSelection    graph.NodeID = "collect_selection"
	PresentOptions      graph.NodeID = "present_options"
	Wizard              graph.NodeID = "wizard"
	ClassifyRisk        graph.NodeID = "classify_risk"
	RequestConfirmation graph.NodeID = "request_confirmation"
	ResumeConfirmation  graph.NodeID = "resume_confirmation"
	Execute             graph.NodeID = "execute"
	Report              graph.NodeID = "report"
	Fallback            graph.NodeID = "fallback"
)

// Components are the collaborators the nodes delegate to.
type Components struct {
	Sessions   *session.Manager
	Directory  ports.Directory
	Classifier ports.IntentClassifier
	Resolver   *resolver.Resolver
	Risk       *risk.Classifier
	Gate       *confirm.Gate
	Wizards    *wizard.Engine
	Router     *router.Router
	Executor   *executor.Executor
	Reporter   *report.Reporter
	Fallback   *report.Fallback
	Logger     *slog.Logger
}

// Build assembles the graph. Edges are listed in priority order; the
// unconditional edge of each node is its default.
func Build(c Components) (*graph.Graph, error) {
	if c.Sessions == nil || c.Directory == nil || c.Classifier == nil || c.Resolver == nil ||
		c.Risk == nil || c.Gate == nil || c.Wizards == nil || c.Router == nil ||
		c.Executor == nil || c.Reporter == nil || c.Fallback == nil {
		return nil, errors.New("workflow: every component is required")
	}
	if c.Logger == nil {
		c.Logger = logging.NewNop()
	}
	n := &nodes{Components: c}

	b := graph.NewBuilder(Intake)

	b.Add(Intake).Do(n.intake).
		Reads(domain.FieldSession).
		Writes(domain.FieldSession, domain.FieldFailure, domain.FieldStatus, domain.FieldMessage).
		Branch("halted", halted, Report).
		Branch("resume", resuming, ResumeConfirmation).
		Branch("wizard_session", sessionOf(domain.SessionWizard), Wizard).
		Branch("selection_session", sessionOf(domain.SessionSelection), CollectSelection).
		Go(ClassifyIntent)

	b.Add(ClassifyIntent).Do(n.classifyIntent).
		Writes(domain.FieldIntent).
		Go(ResolveTarget)

	b.Add(ResolveTarget).Do(n.resolveTarget).
		Reads(domain.FieldIntent, domain.FieldResolution).
		Writes(domain.FieldResolution, domain.FieldOptions, domain.FieldFailure, domain.FieldStatus, domain.FieldMessage).
		Branch("ambiguous", offering, PresentOptions).
		Go(Decide)

	b.Add(Decide).Do(c.Router.Decide).
		Reads(domain.FieldIntent, domain.FieldResolution, domain.FieldParams, domain.FieldFailure).
		Writes(domain.FieldRoute, domain.FieldOptions, domain.FieldParams, domain.FieldSnapshot,
			domain.FieldFailure, domain.FieldStatus, domain.FieldMessage).
		Branch("risk", routed(domain.RouteRisk), ClassifyRisk).
		Branch("select_entity", routed(domain.RouteSelectEntity), PresentOptions).
		Branch("suggest", routed(domain.RouteSuggest), PresentOptions).
		Branch("wizard", routed(domain.RouteWizard), Wizard).
		Go(Report)

	b.Add(CollectSelection).Do(c.Router.Collect).
		Reads(domain.FieldSession).
		Writes(domain.FieldSession, domain.FieldIntent, domain.FieldResolution, domain.FieldParams, domain.FieldRoute,
			domain.FieldOptions, domain.FieldFailure, domain.FieldStatus, domain.FieldMessage).
		Branch("halted", halted, Report).
		Branch("sub_resource_picked", routed(domain.RouteRisk), ClassifyRisk).
		Branch("suggestion_picked", routed(domain.RouteSuggest), ResolveTarget).
		Go(Decide)

	b.Add(PresentOptions).Do(c.Router.Present).
		Reads(domain.FieldOptions).
		Writes(domain.FieldSession, domain.FieldOptions, domain.FieldFailure, domain.FieldStatus, domain.FieldMessage).
		Go(Report)

	b.Add(Wizard).Do(n.wizard).
		Reads(domain.FieldSession, domain.FieldIntent).
		Writes(domain.FieldSession, domain.FieldWizard, domain.FieldParams, domain.FieldFailure, domain.FieldStatus, domain.FieldMessage).
		Branch("halted", halted, Report).
		Go(ClassifyRisk)

	b.Add(ClassifyRisk).Do(n.classifyRisk).
		Reads(domain.FieldResolution, domain.FieldSnapshot).
		Writes(domain.FieldSnapshot, domain.FieldRisk, domain.FieldFailure, domain.FieldStatus, domain.FieldMessage).
		Branch("halted", halted, Report).
		Branch("needs_confirmation", needsConfirmation, RequestConfirmation).
		Go(Execute)

	b.Add(RequestConfirmation).Do(c.Gate.Propose).
		Reads(domain.FieldResolution, domain.FieldParams, domain.FieldRisk).
		Writes(domain.FieldSession, domain.FieldPending, domain.FieldFailure, domain.FieldStatus, domain.FieldMessage).
		Go(Report)

	b.Add(ResumeConfirmation).Do(c.Gate.Resume).
		Writes(domain.FieldSession, domain.FieldPending, domain.FieldResolution, domain.FieldParams,
			domain.FieldFailure, domain.FieldStatus, domain.FieldMessage).
		Branch("halted", halted, Report).
		Go(Execute)

	b.Add(Execute).Do(n.execute).
		Reads(domain.FieldResolution, domain.FieldParams, domain.FieldSession).
		Writes(domain.FieldSession, domain.FieldResult, domain.FieldFailure, domain.FieldStatus, domain.FieldMessage).
		Go(Report)

	b.Add(Report).Do(c.Reporter.Report).
		Writes(domain.FieldResponse, domain.FieldStatus, domain.FieldMessage).
		Terminal()

	b.Add(Fallback).Do(c.Fallback.Handle).
		Reads(domain.FieldError).
		Writes(domain.FieldResponse, domain.FieldStatus, domain.FieldMessage).
		Terminal()

	return b.Build()
}

func halted(t *domain.Turn) bool { return t.Halted() }

func resuming(t *domain.Turn) bool { return t.Request.Resume != nil }

func offering(t *domain.Turn) bool { return t.Options != nil }

func needsConfirmation(t *domain.Turn) bool {
	return t.Risk != nil && t.Risk.NeedsConfirmation
}

func sessionOf(kind domain.SessionKind) func(*domain.Turn) bool {
	return func(t *domain.Turn) bool {
		return t.Request.Resume == nil && t.Session.Open() && t.Session.Kind == kind
	}
}

func routed(r domain.Route) func(*domain.Turn) bool {
	return func(t *domain.Turn) bool { return t.Route == r }
}
