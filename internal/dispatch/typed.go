package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

var ErrInvalidPayload = errors.New("invalid payload")

// ValidationError lists the payload fields that failed validation, keyed by
// their JSON names.
type ValidationError struct {
	JobType string
	Fields  map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		names = append(names, k)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = n + " " + e.Fields[n]
	}
	return fmt.Sprintf("invalid %s payload: %s", e.JobType, strings.Join(parts, ", "))
}

func (e *ValidationError) Unwrap() error { return ErrInvalidPayload }

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// Typed builds a Handler that decodes the payload into P and validates it
// before fn runs, so a bad payload fails without any external call.
func Typed[P any](fn func(ctx context.Context, in Input, p P) (any, error)) Handler {
	return HandlerFunc(func(ctx context.Context, in Input) (any, error) {
		p, err := Decode[P](in.JobType, in.Payload)
		if err != nil {
			return nil, err
		}
		return fn(ctx, in, p)
	})
}

// Decode unmarshals raw into P and runs struct validation on it.
func Decode[P any](jobType string, raw json.RawMessage) (P, error) {
	var p P
	if len(raw) == 0 {
		raw = json.RawMessage(`{}`)
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, &ValidationError{JobType: jobType, Fields: map[string]string{"payload": "is not valid JSON"}}
	}
	if err := validate.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return p, fmt.Errorf("validate %s payload: %w", jobType, err)
		}
		return p, &ValidationError{JobType: jobType, Fields: formatValidationErrors(verrs)}
	}
	return p, nil
}

func formatValidationErrors(verrs validator.ValidationErrors) map[string]string {
	out := make(map[string]string, len(verrs))
	for _, e := range verrs {
		out[e.Field()] = "failed " + e.Tag()
	}
	return out
}
