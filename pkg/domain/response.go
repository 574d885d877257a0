package domain

// WizardView is the wizard state surfaced in every mid-flow response.
type WizardView struct {
	Type      string            `json:"type"`
	Step      int               `json:"step"`
	Total     int               `json:"total"`
	Field     string            `json:"field,omitempty"`
	Collected map[string]string `json:"collected,omitempty"`
}

// TurnResponse is the uniform payload returned for every turn.
type TurnResponse struct {
	Action            string         `json:"action,omitempty"`
	TargetID          *int64         `json:"target_id,omitempty"`
	TargetLabel       string         `json:"target_label,omitempty"`
	Status            TurnStatus     `json:"status"`
	Message           string         `json:"message"`
	NeedsConfirmation bool           `json:"needs_confirmation"`
	WizardActive      bool           `json:"wizard_active"`
	Wizard            *WizardView    `json:"wizard,omitempty"`
	SessionID         string         `json:"session_id,omitempty"`
	Options           []Option       `json:"options,omitempty"`
	Warnings          []string       `json:"warnings,omitempty"`
	Data              map[string]any `json:"data,omitempty"`
	Success           bool           `json:"success"`
	ErrorCode         string         `json:"error_code,omitempty"`
}
