package models

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// NewValidator returns a validator that also understands the "category" tag.
func NewValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("category", func(fl validator.FieldLevel) bool {
		return IsValidCategory(fl.Field().String())
	})
	return v
}

// DescribeValidation flattens validator errors into a single readable message.
func DescribeValidation(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		switch e.Tag() {
		case "category":
			msgs = append(msgs, fmt.Sprintf("Field '%s' must be one of %s", e.Field(), strings.Join(Categories, ", ")))
		case "max", "min":
			msgs = append(msgs, fmt.Sprintf("Field '%s' failed on the '%s=%s' tag", e.Field(), e.Tag(), e.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("Field '%s' failed on the '%s' tag", e.Field(), e.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}
