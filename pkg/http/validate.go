package http

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidationError describes one rejected request field.
type ValidationError struct {
	Code    string                 `json:"code,omitempty"`
	Field   string                 `json:"field,omitempty"`
	Message string                 `json:"message,omitempty"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

// ValidateStruct fills defaults and runs the validate tags on v. Used for
// payloads that do not arrive through echo, such as queued jobs.
func ValidateStruct(ctx context.Context, v interface{}) error {
	if err := defaults.Set(v); err != nil {
		return err
	}
	return validate.StructCtx(ctx, v)
}

// ReadAndValidateRequest binds path, query and body into req, fills defaults
// and validates. It returns nil or a []ValidationError ready to be sent.
func ReadAndValidateRequest(c echo.Context, req interface{}) interface{} {
	err := c.Bind(req)
	if err == nil {
		err = defaults.Set(req)
	}
	if err == nil {
		err = validate.StructCtx(c.Request().Context(), req)
	}
	if err == nil {
		return nil
	}
	return toValidationErrors(err)
}

func toValidationErrors(err error) []ValidationError {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		out := make([]ValidationError, len(fieldErrs))
		for i, fe := range fieldErrs {
			out[i] = ValidationError{
				Code:    "ERR_" + strings.ToUpper(fe.Tag()),
				Field:   fe.Field(),
				Message: describe(fe),
				Params:  params(fe),
			}
		}
		return out
	}

	msg := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg = fmt.Sprint(he.Message)
	}
	return []ValidationError{{Code: "ERR_UNKNOWN", Message: msg}}
}

// bound words a min/max limit by what is being limited.
func bound(fe validator.FieldError, word string) string {
	switch fe.Type().Kind() {
	case reflect.Slice:
		return fmt.Sprintf("%s must contain %s %s items", fe.Field(), word, fe.Param())
	case reflect.String:
		return fmt.Sprintf("%s must be %s %s characters", fe.Field(), word, fe.Param())
	}
	return fmt.Sprintf("%s must be %s %s", fe.Field(), word, fe.Param())
}

func describe(fe validator.FieldError) string {
	f, p := fe.Field(), fe.Param()
	switch fe.Tag() {
	case "required":
		return f + " is required"
	case "min", "gte":
		return bound(fe, "at least")
	case "max", "lte":
		return bound(fe, "at most")
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", f, p)
	case "lt":
		return fmt.Sprintf("%s must be less than %s", f, p)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", f, strings.Join(strings.Fields(p), ", "))
	}
	return fmt.Sprintf("%s failed validation: %s", f, fe.Tag())
}

func params(fe validator.FieldError) map[string]interface{} {
	switch fe.Tag() {
	case "min", "gte":
		return map[string]interface{}{"min": fe.Param()}
	case "max", "lte":
		return map[string]interface{}{"max": fe.Param()}
	case "gt", "lt":
		return map[string]interface{}{"value": fe.Param()}
	case "oneof":
		return map[string]interface{}{"options": strings.Fields(fe.Param())}
	}
	return nil
}
