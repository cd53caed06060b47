package services

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report fields by their JSON names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateStruct runs the struct tags on req and converts failures into a ValidationError.
func validateStruct(req interface{}) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}

	fields := make(map[string]string, len(validationErrs))
	for _, e := range validationErrs {
		field := e.Field()
		switch e.Tag() {
		case "required":
			fields[field] = fmt.Sprintf("%s is required", field)
		case "min":
			if e.Kind() == reflect.Slice {
				fields[field] = fmt.Sprintf("%s must contain at least %s item(s)", field, e.Param())
			} else {
				fields[field] = fmt.Sprintf("%s must be at least %s characters", field, e.Param())
			}
		case "max":
			fields[field] = fmt.Sprintf("%s must be at most %s characters", field, e.Param())
		case "oneof":
			fields[field] = fmt.Sprintf("%s must be one of: %s", field, e.Param())
		default:
			fields[field] = fmt.Sprintf("%s is invalid", field)
		}
	}
	return &ValidationError{Fields: fields}
}
