package api

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"urbanharvest/internal/domain"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

// requestValidator plugs validator/v10 into echo's c.Validate and reports
// failures as domain validation errors keyed by JSON field name.
type requestValidator struct {
	v *validator.Validate
}

func newRequestValidator() *requestValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &requestValidator{v: v}
}

func (rv *requestValidator) Validate(i interface{}) error {
	err := rv.v.Struct(i)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return domain.NewValidationError("body", err.Error())
	}

	out := &domain.ValidationError{}
	for _, fe := range verrs {
		out.Add(fe.Field(), describe(fe))
	}
	return out
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	}
	return fmt.Sprintf("failed %q check", fe.Tag())
}

// bindAndValidate decodes the body into req and runs its validate tags.
func bindAndValidate(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return domain.NewValidationError("body", "invalid JSON body")
	}
	return c.Validate(req)
}
