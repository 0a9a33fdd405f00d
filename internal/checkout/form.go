package checkout

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"urbanharvest/internal/domain"

	"github.com/go-playground/validator/v10"
)

var emailPattern = regexp.MustCompile(`^[\w-]+(\.[\w-]+)*@([\w-]+\.)+[a-zA-Z]{2,7}$`)

// ContactForm is the booking detail form filled in per reservable item.
type ContactForm struct {
	FullName string `json:"fullName" validate:"required"`
	Email    string `json:"email" validate:"required,contact_email"`
	Phone    string `json:"phone" validate:"required"`
	Agreed   bool   `json:"agreed" validate:"required"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("contact_email", func(fl validator.FieldLevel) bool {
		return emailPattern.MatchString(fl.Field().String())
	})
	return v
}

var fieldMessages = map[string]string{
	"fullName": "Please enter your full name",
	"email":    "Please enter a valid email address",
	"phone":    "Please enter a phone number",
	"agreed":   "You must agree to the terms",
}

// Validate trims the text fields and reports every invalid field at once.
func (f *ContactForm) Validate() error {
	f.FullName = strings.TrimSpace(f.FullName)
	f.Email = strings.TrimSpace(f.Email)
	f.Phone = strings.TrimSpace(f.Phone)

	err := validate.Struct(f)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &domain.ValidationError{}
	for _, fe := range verrs {
		msg, ok := fieldMessages[fe.Field()]
		if !ok {
			msg = "invalid value"
		}
		out.Add(fe.Field(), msg)
	}
	return out
}
