package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/kiranshivaraju/questforge/internal/api/response"
)

const maxBodyBytes = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// Bind decodes the JSON body into dest and validates it. On failure it writes
// a 400 and returns false.
func Bind[T any](w http.ResponseWriter, r *http.Request, dest *T) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
		return false
	}
	if err := validate.Struct(dest); err != nil {
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "Validation failed",
			FormatValidationErrors(err))
		return false
	}
	return true
}

// FormatValidationErrors maps each failing field to the tag it failed.
func FormatValidationErrors(err error) map[string]string {
	out := map[string]string{}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		out["body"] = err.Error()
		return out
	}
	for _, e := range verrs {
		out[e.Field()] = "failed " + e.Tag()
	}
	return out
}
