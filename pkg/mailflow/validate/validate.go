// Package validate checks node outputs against validator tags (the node's
// Rule) before they re-enter a branch context.
package validate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	mferrors "github.com/randalmurphal/mailflow/pkg/mailflow/errors"
)

// Validator checks values against validator/v10 tag rules such as
// "required,min=3" or "oneof=yes no".
type Validator struct {
	v *validator.Validate
}

// New creates a Validator with the stock validator/v10 tags.
func New() *Validator {
	return &Validator{v: validator.New(validator.WithRequiredStructEnabled())}
}

// RegisterRule adds a custom tag.
func (v *Validator) RegisterRule(tag string, fn func(value any, param string) bool) error {
	return v.v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
		return fn(fl.Field().Interface(), fl.Param())
	})
}

// Validate returns value unchanged when it satisfies rule. An empty rule
// accepts everything. Failures are *errors.ValidationError; a malformed
// rule is a plain error.
func (v *Validator) Validate(value any, rule string) (out any, err error) {
	rule = strings.TrimSpace(rule)
	if rule == "" {
		return value, nil
	}

	// validator panics on undefined tags
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("invalid rule %q: %v", rule, r)
		}
	}()

	if verr := v.v.Var(value, rule); verr != nil {
		return nil, convert(rule, verr)
	}
	return value, nil
}

func convert(rule string, err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate %q: %w", rule, err)
	}
	out := &mferrors.ValidationError{Rule: rule}
	for _, fe := range verrs {
		out.Violations = append(out.Violations, mferrors.FieldViolation{
			Field: fe.Field(),
			Tag:   fe.Tag(),
			Param: fe.Param(),
		})
	}
	return out
}
