package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// SessionKind names the flow a session backs.
type SessionKind string

const (
	SessionConfirmation SessionKind = "confirmation"
	SessionWizard       SessionKind = "wizard"
	SessionSelection    SessionKind = "selection"
)

// SessionStatus is the lifecycle of a session row.
type SessionStatus string

const (
	SessionPending   SessionStatus = "PENDING"
	SessionDone      SessionStatus = "DONE"
	SessionCancelled SessionStatus = "CANCELLED"
)

// Reasons recorded when a session is cancelled by the engine rather than the user.
const (
	ReasonDeclined   = "declined"
	ReasonAborted    = "aborted"
	ReasonExpired    = "expired"
	ReasonSuperseded = "superseded"
	ReasonConsumed   = "consumed"
)

// Session is the durable record behind a confirmation, wizard or selection flow.
type Session struct {
	ID       string          `json:"session_id"`
	UserID   string          `json:"user_id,omitempty"`
	Kind     SessionKind     `json:"kind"`
	Status   SessionStatus   `json:"status"`
	Revision int64           `json:"revision"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	Result   json.RawMessage `json:"result,omitempty"`
	Reason   string          `json:"reason,omitempty"`

	// Fingerprint identifies the proposal; reopening with the same one is a refresh.
	Fingerprint string `json:"fingerprint,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
}

// Open reports whether the session still holds a live flow.
func (s *Session) Open() bool {
	return s != nil && s.Status == SessionPending
}

// Expired reports whether a pending session outlived its TTL.
func (s *Session) Expired(now time.Time) bool {
	return s.Open() && !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// Clone returns a deep copy safe to mutate.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Payload = append(json.RawMessage(nil), s.Payload...)
	c.Result = append(json.RawMessage(nil), s.Result...)
	return &c
}

// Decode unmarshals the payload into v.
func (s *Session) Decode(v any) error {
	if len(s.Payload) == 0 {
		return fmt.Errorf("session %s has no payload", s.ID)
	}
	if err := json.Unmarshal(s.Payload, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", s.Kind, err)
	}
	return nil
}

// Encode stores v as the payload.
func (s *Session) Encode(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s payload: %w", s.Kind, err)
	}
	s.Payload = data
	return nil
}

// PendingAction is the proposal serialized by the confirmation gate.
type PendingAction struct {
	Action      string         `json:"action"`
	TargetKind  EntityKind     `json:"target_kind,omitempty"`
	TargetID    int64          `json:"target_id,omitempty"`
	TargetLabel string         `json:"target_label,omitempty"`
	Params      map[string]any `json:"params,omitempty"`
	Warnings    []string       `json:"warnings,omitempty"`
	UserID      string         `json:"user_id,omitempty"`
}

// Fingerprint identifies the proposal for idempotent reopen.
func (p *PendingAction) Fingerprint() string {
	return fmt.Sprintf("%s|%s:%d", p.Action, p.TargetKind, p.TargetID)
}

// WizardProgress is the only cross-turn wizard state.
type WizardProgress struct {
	Type   string            `json:"type"`
	Step   int               `json:"step"`
	Total  int               `json:"total"`
	Values map[string]string `json:"values"`
}

// Fingerprint identifies wizard sessions of one type.
func (w *WizardProgress) Fingerprint() string {
	return "wizard|" + w.Type
}

// OptionPurpose says what a picked option fills in.
type OptionPurpose string

const (
	PurposeTarget      OptionPurpose = "target"
	PurposeSubResource OptionPurpose = "sub_resource"
	PurposeSuggestion  OptionPurpose = "suggestion"
)

// Option is one disambiguation candidate.
type Option struct {
	Index  int    `json:"index"`
	ID     int64  `json:"id,omitempty"`
	Label  string `json:"label"`
	Detail string `json:"detail,omitempty"`
	Action string `json:"action,omitempty"`
}

// OptionList is offered for a follow-up selection, with what is needed to continue.
type OptionList struct {
	Purpose OptionPurpose  `json:"purpose"`
	Kind    EntityKind     `json:"kind,omitempty"`
	Action  string         `json:"action,omitempty"`
	Prompt  string         `json:"prompt"`
	Items   []Option       `json:"items"`
	Target  *Resolution    `json:"target,omitempty"`
	Params  map[string]any `json:"params,omitempty"`
	// Intent is the classifier output a picked suggestion resumes from.
	Intent *Intent `json:"intent,omitempty"`
}

// Fingerprint identifies the list for idempotent reopen.
func (o *OptionList) Fingerprint() string {
	return fmt.Sprintf("select|%s|%s|%s|%d", o.Purpose, o.Action, o.Kind, len(o.Items))
}

// Lines renders one numbered line per item, e.g. "1. Airport Express (departs 08:00 on 2026-03-02)".
func (o *OptionList) Lines() string {
	lines := make([]string, len(o.Items))
	for i, it := range o.Items {
		if it.Detail == "" {
			lines[i] = fmt.Sprintf("%d. %s", it.Index, it.Label)
			continue
		}
		lines[i] = fmt.Sprintf("%d. %s (%s)", it.Index, it.Label, it.Detail)
	}
	return strings.Join(lines, "\n")
}

// OptionsFrom numbers entities from 1.
func OptionsFrom(entities []Entity) []Option {
	items := make([]Option, len(entities))
	for i, e := range entities {
		items[i] = Option{Index: i + 1, ID: e.ID, Label: e.Label, Detail: e.Detail}
	}
	return items
}

// PrepareOpen computes the row stored when incoming is opened over existing,
// which may be nil. incoming.UpdatedAt is the write time.
// A live PENDING row only accepts the same proposal again, as a refresh.
func PrepareOpen(existing, incoming *Session) (*Session, error) {
	now := incoming.UpdatedAt
	out := incoming.Clone()
	out.Status = SessionPending
	out.Result = nil
	out.Reason = ""

	switch {
	case existing == nil:
		out.Revision = 1
		out.CreatedAt = now
	case existing.Open() && !existing.Expired(now):
		if existing.Kind != incoming.Kind || existing.Fingerprint != incoming.Fingerprint {
			return nil, fmt.Errorf("%w: session %s holds a pending %s", ErrFlowInProgress, existing.ID, existing.Kind)
		}
		out.Revision = existing.Revision + 1
		out.CreatedAt = existing.CreatedAt
		if out.UserID == "" {
			out.UserID = existing.UserID
		}
	default:
		out.Revision = existing.Revision + 1
		out.CreatedAt = now
	}
	return out, nil
}

// PrepareSwap computes the row stored by a compare-and-set against existing.
func PrepareSwap(existing, next *Session, expect int64) (*Session, error) {
	if existing.Revision != expect {
		return nil, fmt.Errorf("%w: session %s is at revision %d, expected %d",
			ErrStatusConflict, existing.ID, existing.Revision, expect)
	}
	out := next.Clone()
	out.ID = existing.ID
	out.Revision = expect + 1
	out.CreatedAt = existing.CreatedAt
	return out, nil
}

// SweepVerdict says what a sweep does with one row.
type SweepVerdict int

const (
	SweepKeep SweepVerdict = iota
	SweepExpire
	SweepRemove
)

// Sweep classifies the row: stale PENDING rows expire, terminal rows older than
// retention are removed.
func (s *Session) Sweep(now time.Time, retention time.Duration) SweepVerdict {
	switch {
	case s.Expired(now):
		return SweepExpire
	case !s.Open() && now.Sub(s.UpdatedAt) > retention:
		return SweepRemove
	}
	return SweepKeep
}

// ExpireAt returns the CANCELLED copy written when a PENDING row times out.
func (s *Session) ExpireAt(now time.Time) *Session {
	c := s.Clone()
	c.Status = SessionCancelled
	c.Reason = ReasonExpired
	c.Revision++
	c.UpdatedAt = now
	return c
}
