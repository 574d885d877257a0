// Package risk decides whether a requested mutation runs now, needs an explicit
// confirmation, or is blocked by a business rule.
package risk

import (
	"fmt"
	"strings"

	"github.com/aretw0/dispatch/pkg/domain"
)

// DefaultCapacity is the seat capacity used to express dependents as a percentage.
const DefaultCapacity = 40

// Classifier applies the risk table to an action and an entity snapshot.
type Classifier struct {
	capacity int
}

// Option configures the Classifier.
type Option func(*Classifier)

// WithCapacity overrides the seat capacity.
func WithCapacity(n int) Option {
	return func(c *Classifier) {
		if n > 0 {
			c.capacity = n
		}
	}
}

// New creates a classifier.
func New(opts ...Option) *Classifier {
	c := &Classifier{capacity: DefaultCapacity}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify evaluates spec against snap. snap may be nil for actions without a target.
func (c *Classifier) Classify(spec domain.ActionSpec, snap *domain.Snapshot) domain.RiskAssessment {
	switch spec.Category {
	case domain.CategoryRead, domain.CategoryCreate:
		return domain.RiskAssessment{}
	}
	if snap == nil {
		return domain.RiskAssessment{}
	}

	if snap.Entity.Status == domain.EntityCancelled {
		return block(domain.CodeInvalidState, "%s %q is already cancelled.", capitalize(string(snap.Entity.Kind)), snap.Entity.Label)
	}

	current := assigned(spec.Requires, snap)
	switch spec.Category {
	case domain.CategoryAssign:
		if current != nil {
			return block(domain.CodeAlreadyAssigned, "%s %q already has %s %q assigned. Remove it first.",
				capitalize(string(snap.Entity.Kind)), snap.Entity.Label, spec.Requires, current.Label)
		}
		return domain.RiskAssessment{}
	case domain.CategoryRemove:
		if current == nil {
			return block(domain.CodeNothingToRemove, "%s %q has no %s assigned.",
				capitalize(string(snap.Entity.Kind)), snap.Entity.Label, spec.Requires)
		}
	}

	if !spec.Category.Destructive() || snap.Dependents == 0 {
		return domain.RiskAssessment{}
	}
	return domain.RiskAssessment{
		NeedsConfirmation: true,
		Warnings:          []string{c.dependentsWarning(snap.Dependents)},
	}
}

// Percent expresses n dependents against the seat capacity, capped at 100.
func (c *Classifier) Percent(n int) int {
	p := n * 100 / c.capacity
	if p > 100 {
		return 100
	}
	return p
}

func (c *Classifier) dependentsWarning(n int) string {
	noun := "bookings"
	if n == 1 {
		noun = "booking"
	}
	return fmt.Sprintf("%d confirmed %s (%d%% of seat capacity) will be affected.", n, noun, c.Percent(n))
}

func assigned(kind domain.EntityKind, snap *domain.Snapshot) *domain.Entity {
	switch kind {
	case domain.KindVehicle:
		return snap.Vehicle
	case domain.KindDriver:
		return snap.Driver
	}
	return nil
}

func block(code, format string, args ...any) domain.RiskAssessment {
	return domain.RiskAssessment{Blocking: &domain.Failure{
		Kind:    domain.FailurePolicy,
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
