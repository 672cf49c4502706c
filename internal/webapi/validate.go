package webapi

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate is a singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their JSON names so errors match the request body.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
}

// validateStruct checks s against its validate tags and flattens any
// failures by top-level field. It returns nil when s is valid.
func validateStruct(s any) *FlattenedErrors {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	flat := &FlattenedErrors{
		FormErrors:  []string{},
		FieldErrors: map[string][]string{},
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		flat.FormErrors = append(flat.FormErrors, err.Error())
		return flat
	}

	for _, fe := range verrs {
		key := topLevelField(fe.Namespace())
		flat.FieldErrors[key] = append(flat.FieldErrors[key], formatValidationError(fe))
	}
	return flat
}

// topLevelField turns "EvaluateRequest.inputs[1].input_id" into "inputs".
func topLevelField(namespace string) string {
	_, rest, ok := strings.Cut(namespace, ".")
	if !ok {
		return namespace
	}
	if i := strings.IndexAny(rest, ".["); i >= 0 {
		return rest[:i]
	}
	return rest
}

// formatValidationError creates a human-readable error message
func formatValidationError(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", err.Field())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", err.Field(), err.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", err.Field(), err.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", err.Field(), err.Param())
	default:
		return fmt.Sprintf("%s failed validation: %s", err.Field(), err.Tag())
	}
}
