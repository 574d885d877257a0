package domain

// TurnStatus is the outcome label reported for a turn.
type TurnStatus string

const (
	StatusExecuted             TurnStatus = "executed"              // Action ran and returned ok
	StatusCompleted            TurnStatus = "completed"             // Wizard finished and its action ran
	StatusCancelled            TurnStatus = "cancelled"             // User declined or aborted a flow
	StatusConfirmationRequired TurnStatus = "confirmation_required" // Waiting for a confirm/decline call
	StatusWizardInProgress     TurnStatus = "wizard_in_progress"    // Waiting for the next wizard answer
	StatusAwaitingSelection    TurnStatus = "awaiting_selection"    // Waiting for a pick from an option list
	StatusAwaitingInput        TurnStatus = "awaiting_input"        // Waiting for more free-form detail
	StatusNotFound             TurnStatus = "not_found"
	StatusNeedsClarification   TurnStatus = "needs_clarification"
	StatusAmbiguous            TurnStatus = "ambiguous"
	StatusBlocked              TurnStatus = "blocked"          // Business rule violation
	StatusActionFailed         TurnStatus = "action_failed"    // Handler returned ok=false
	StatusAlreadyResolved      TurnStatus = "already_resolved" // Session already DONE/CANCELLED
	StatusExpired              TurnStatus = "expired"
	StatusError                TurnStatus = "error"
)

// SuccessStatuses is the allow-list of statuses reported as successful.
var SuccessStatuses = map[TurnStatus]bool{
	StatusExecuted:  true,
	StatusCompleted: true,
	StatusCancelled: true,
}

// Route is the single branch chosen by the decision router.
type Route string

const (
	RouteNone         Route = ""
	RouteRisk         Route = "risk"
	RouteSelectEntity Route = "select_entity"
	RouteSuggest      Route = "suggest"
	RouteWizard       Route = "wizard"
	RouteAskInput     Route = "ask_input"
	RouteHalt         Route = "halt"
)

// Resume carries the second half of a confirmation flow.
type Resume struct {
	SessionID string `json:"session_id"`
	Confirmed bool   `json:"confirmed"`
}

// TurnRequest is the caller input for one turn.
type TurnRequest struct {
	Text      string         `json:"text"`
	EntityID  *int64         `json:"entity_id,omitempty"`
	Page      string         `json:"page,omitempty"`
	Context   map[string]any `json:"context,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	UserID    string         `json:"user_id,omitempty"`

	// Echo is the snapshot a stateless client sent back. The session store stays
	// authoritative; the echo is only used to detect flows that no longer exist.
	Echo *WizardView `json:"echo,omitempty"`

	// Resume is set for confirmation calls; Text is ignored then.
	Resume *Resume `json:"-"`
}

// ConfirmRequest resumes a pending confirmation.
type ConfirmRequest struct {
	SessionID string `json:"session_id"`
	Confirmed bool   `json:"confirmed"`
	UserID    string `json:"user_id,omitempty"`
}

// Turn is the per-call context threaded through every node.
// Nodes extend it; the runtime checks they never erase fields they do not own.
type Turn struct {
	Request   TurnRequest
	SessionID string

	// Session is the open flow rehydrated from the store, if any.
	Session *Session

	Intent     *Intent
	Resolution *Resolution
	Params     map[string]any
	Route      Route
	Options    *OptionList
	Snapshot   *Snapshot
	Risk       *RiskAssessment
	Pending    *PendingAction
	Wizard     *WizardProgress
	Result     *ActionResult
	Failure    *Failure
	Err        *EngineError

	Status   TurnStatus
	Message  string
	Response *TurnResponse

	// Visited records the nodes walked, in order.
	Visited []string
}

// NewTurn creates a turn for a request.
func NewTurn(req TurnRequest) *Turn {
	sessionID := req.SessionID
	if req.Resume != nil {
		sessionID = req.Resume.SessionID
	}
	return &Turn{
		Request:   req,
		SessionID: sessionID,
		Params:    make(map[string]any),
	}
}

// Action returns the action the turn is working on, whichever field carries it.
func (t *Turn) Action() string {
	switch {
	case t.Pending != nil && t.Pending.Action != "":
		return t.Pending.Action
	case t.Wizard != nil && t.Wizard.Type != "":
		return t.Wizard.Type
	case t.Intent != nil:
		return t.Intent.Action
	case t.Options != nil:
		return t.Options.Action
	}
	return ""
}

// Halted reports whether a node already settled the outcome of the turn.
func (t *Turn) Halted() bool {
	return t.Err != nil || t.Failure != nil || t.Status != ""
}

// Fail records an expected (non-engine) failure and its status.
func (t *Turn) Fail(status TurnStatus, f *Failure) {
	t.Failure = f
	t.Status = status
	t.Message = f.Message
}

// Present computes which fields are currently populated.
func (t *Turn) Present() FieldSet {
	var s FieldSet
	set := func(f Field, ok bool) {
		if ok {
			s = s.With(f)
		}
	}
	set(FieldSession, t.Session != nil)
	set(FieldIntent, t.Intent != nil)
	set(FieldResolution, t.Resolution != nil)
	set(FieldParams, len(t.Params) > 0)
	set(FieldRoute, t.Route != RouteNone)
	set(FieldOptions, t.Options != nil)
	set(FieldSnapshot, t.Snapshot != nil)
	set(FieldRisk, t.Risk != nil)
	set(FieldPending, t.Pending != nil)
	set(FieldWizard, t.Wizard != nil)
	set(FieldResult, t.Result != nil)
	set(FieldFailure, t.Failure != nil)
	set(FieldError, t.Err != nil)
	set(FieldStatus, t.Status != "")
	set(FieldMessage, t.Message != "")
	set(FieldResponse, t.Response != nil)
	return s
}
