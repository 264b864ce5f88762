package authflow

import (
	"errors"
	"regexp"

	"github.com/go-playground/validator/v10"
)

// Form field names of the reset screen.
const (
	FieldEmail       = "email"
	FieldPhoneNumber = "phoneNumber"
)

var phoneDigitsPattern = regexp.MustCompile(`^[0-9]{10}$`)

type resetRequest struct {
	Email       string `validate:"required,email"`
	PhoneNumber string `validate:"required,phone10"`
}

var resetMessages = map[string]map[string]string{
	"Email": {
		"required": "Email is required",
		"email":    "Invalid email",
	},
	"PhoneNumber": {
		"required": "Phone number is required",
		"phone10":  "Phone number must be 10 digits",
	},
}

var resetStructFields = map[ResetMethod]string{
	ResetMethodEmail: "Email",
	ResetMethodPhone: "PhoneNumber",
}

var resetFormFields = map[string]string{
	"Email":       FieldEmail,
	"PhoneNumber": FieldPhoneNumber,
}

var resetValidate = newResetValidator()

func newResetValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("phone10", func(fl validator.FieldLevel) bool {
		return phoneDigitsPattern.MatchString(fl.Field().String())
	})
	return v
}

// validateReset checks only the field selected by method and returns form
// field name to message.
func validateReset(method ResetMethod, email, phone string) map[string]string {
	field, ok := resetStructFields[method]
	if !ok {
		return nil
	}

	err := resetValidate.StructPartial(resetRequest{Email: email, PhoneNumber: phone}, field)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string]string{resetFormFields[field]: err.Error()}
	}
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		name := resetFormFields[fe.StructField()]
		if _, seen := out[name]; seen {
			continue
		}
		msg, ok := resetMessages[fe.StructField()][fe.Tag()]
		if !ok {
			msg = fe.Error()
		}
		out[name] = msg
	}
	return out
}
