package wizard

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aretw0/dispatch/internal/resolver"
	"github.com/aretw0/dispatch/pkg/domain"
)

// Namer resolves a sub-resource reference given as a name or an id.
type Namer interface {
	ResolveNamed(ctx context.Context, kind domain.EntityKind, ref string) (*domain.Entity, []domain.Entity, error)
}

// InvalidAnswerError explains why an answer was rejected; the step is asked again.
type InvalidAnswerError struct {
	Field  string
	Reason string
}

func (e *InvalidAnswerError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(step Step, format string, args ...any) error {
	return &InvalidAnswerError{Field: step.Field, Reason: fmt.Sprintf(format, args...)}
}

var cancelWords = map[string]bool{
	"cancel": true, "abort": true, "stop": true, "quit": true,
	"exit": true, "nevermind": true, "never mind": true,
}

// explicitCancelWords are the only aborts accepted on a free-text step, where
// words like "Stop" or "Exit" are plausible answers.
var explicitCancelWords = map[string]bool{"cancel": true, "abort": true}

var confirmWords = map[string]bool{
	"confirm": true, "yes": true, "y": true, "ok": true, "okay": true,
	"proceed": true, "create": true, "save": true, "done": true,
}

var directions = map[string]string{
	"up": "UP", "u": "UP", "outbound": "UP", "forward": "UP",
	"down": "DOWN", "d": "DOWN", "inbound": "DOWN", "return": "DOWN", "back": "DOWN",
}

func normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.Trim(strings.TrimSpace(text), ".!"))), " ")
}

// IsCancel reports whether text aborts a pending flow.
func IsCancel(text string) bool {
	return cancelWords[normalize(text)]
}

// aborts reports whether text aborts the wizard while step is being asked.
func aborts(text string, step *Step) bool {
	if step != nil && step.Type == FieldText {
		return explicitCancelWords[normalize(text)]
	}
	return IsCancel(text)
}

// IsConfirm reports whether text accepts the collected values.
func IsConfirm(text string) bool {
	return confirmWords[normalize(text)]
}

// validator canonicalizes answers; ids are checked against the directory.
type validator struct {
	namer Namer
	now   func() time.Time
}

// canonical validates input for step and returns the stored string form.
// Directory failures are returned as is; rejections are *InvalidAnswerError.
func (v validator) canonical(ctx context.Context, step Step, input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", invalid(step, "an answer is required")
	}
	switch step.Type {
	case FieldText:
		if len(input) > 100 {
			return "", invalid(step, "keep it under 100 characters")
		}
		return input, nil

	case FieldTime:
		hhmm, ok := resolver.NormalizeTime(input)
		if !ok {
			return "", invalid(step, "%q is not a time of day, use HH:MM", input)
		}
		return hhmm, nil

	case FieldDate:
		switch normalize(input) {
		case "today":
			return v.now().Format(time.DateOnly), nil
		case "tomorrow":
			return v.now().AddDate(0, 0, 1).Format(time.DateOnly), nil
		}
		d, err := time.Parse(time.DateOnly, input)
		if err != nil {
			return "", invalid(step, "%q is not a date, use YYYY-MM-DD", input)
		}
		return d.Format(time.DateOnly), nil

	case FieldDirection:
		dir, ok := directions[normalize(input)]
		if !ok {
			return "", invalid(step, "answer UP or DOWN")
		}
		return dir, nil

	case FieldCoordinate:
		if normalize(input) == Skip {
			return Skip, nil
		}
		f, err := strconv.ParseFloat(input, 64)
		if err != nil {
			return "", invalid(step, "%q is not a number", input)
		}
		if f < step.Min || f > step.Max {
			return "", invalid(step, "must be between %g and %g", step.Min, step.Max)
		}
		return strconv.FormatFloat(f, 'f', -1, 64), nil

	case FieldID:
		id, err := v.entity(ctx, step, input)
		if err != nil {
			return "", err
		}
		return strconv.FormatInt(id, 10), nil

	case FieldList:
		var ids []string
		for _, part := range strings.Split(input, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := v.entity(ctx, step, part)
			if err != nil {
				return "", err
			}
			ids = append(ids, strconv.FormatInt(id, 10))
		}
		if len(ids) < 2 {
			return "", invalid(step, "list at least two %ss", step.Kind)
		}
		return strings.Join(ids, ","), nil
	}
	return "", fmt.Errorf("unsupported field type %d", step.Type)
}

func (v validator) entity(ctx context.Context, step Step, ref string) (int64, error) {
	e, candidates, err := v.namer.ResolveNamed(ctx, step.Kind, ref)
	if err != nil {
		return 0, err
	}
	if e != nil {
		return e.ID, nil
	}
	if len(candidates) > 1 {
		return 0, invalid(step, "several %ss match %q, reply with the id:\n%s", step.Kind, ref, ids(candidates))
	}
	return 0, invalid(step, "no %s matches %q", step.Kind, ref)
}

func ids(candidates []domain.Entity) string {
	lines := make([]string, len(candidates))
	for i, c := range candidates {
		lines[i] = fmt.Sprintf("#%d %s", c.ID, c.Label)
	}
	return strings.Join(lines, "\n")
}

// typed converts stored strings to the values handlers decode.
func typed(def Definition, values map[string]string) map[string]any {
	params := make(map[string]any, len(values))
	for _, step := range def.Steps {
		raw, ok := values[step.Field]
		if !ok {
			continue
		}
		switch step.Type {
		case FieldCoordinate:
			if raw == Skip {
				continue
			}
			f, _ := strconv.ParseFloat(raw, 64)
			params[step.Field] = f
		case FieldID:
			id, _ := strconv.ParseInt(raw, 10, 64)
			params[step.Field] = id
		case FieldList:
			var list []int64
			for _, part := range strings.Split(raw, ",") {
				id, _ := strconv.ParseInt(part, 10, 64)
				list = append(list, id)
			}
			params[step.Field] = list
		default:
			params[step.Field] = raw
		}
	}
	return params
}

// asInvalid extracts the rejection from err.
func asInvalid(err error) (*InvalidAnswerError, bool) {
	var ie *InvalidAnswerError
	ok := errors.As(err, &ie)
	return ie, ok
}
