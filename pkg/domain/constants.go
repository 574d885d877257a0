package domain

import "strings"

// Field names one group of Turn state, used to declare node reads/writes.
type Field uint32

const (
	FieldSession Field = 1 << iota
	FieldIntent
	FieldResolution
	FieldParams
	FieldRoute
	FieldOptions
	FieldSnapshot
	FieldRisk
	FieldPending
	FieldWizard
	FieldResult
	FieldFailure
	FieldError
	FieldStatus
	FieldMessage
	FieldResponse
)

var fieldNames = []struct {
	f    Field
	name string
}{
	{FieldSession, "session"},
	{FieldIntent, "intent"},
	{FieldResolution, "resolution"},
	{FieldParams, "params"},
	{FieldRoute, "route"},
	{FieldOptions, "options"},
	{FieldSnapshot, "snapshot"},
	{FieldRisk, "risk"},
	{FieldPending, "pending"},
	{FieldWizard, "wizard"},
	{FieldResult, "result"},
	{FieldFailure, "failure"},
	{FieldError, "error"},
	{FieldStatus, "status"},
	{FieldMessage, "message"},
	{FieldResponse, "response"},
}

// FieldSet is a bitmask of fields.
type FieldSet uint32

// Fields builds a set.
func Fields(fs ...Field) FieldSet {
	var s FieldSet
	for _, f := range fs {
		s = s.With(f)
	}
	return s
}

// With returns the set plus f.
func (s FieldSet) With(f Field) FieldSet { return s | FieldSet(f) }

// Has reports whether f is in the set.
func (s FieldSet) Has(f Field) bool { return s&FieldSet(f) != 0 }

// Without returns the fields of s not in o.
func (s FieldSet) Without(o FieldSet) FieldSet { return s &^ o }

// Empty reports whether no field is set.
func (s FieldSet) Empty() bool { return s == 0 }

func (s FieldSet) String() string {
	var names []string
	for _, fn := range fieldNames {
		if s.Has(fn.f) {
			names = append(names, fn.name)
		}
	}
	return strings.Join(names, ",")
}

// Outcome fields every terminal node may write.
var OutcomeFields = Fields(FieldStatus, FieldMessage, FieldFailure)
