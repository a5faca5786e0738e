package model

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"
)

// MemberIDPattern is the accepted shape of a member id.
var MemberIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// NewValidator returns a validator with the member-specific rules registered.
// It panics if a rule cannot be registered, like regexp.MustCompile.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := registerRules(v); err != nil {
		panic("model: " + err.Error())
	}
	return v
}

func registerRules(v *validator.Validate) error {
	err := v.RegisterValidation("memberid", func(fl validator.FieldLevel) bool {
		return MemberIDPattern.MatchString(fl.Field().String())
	})
	if err != nil {
		return fmt.Errorf("register memberid rule: %w", err)
	}
	return nil
}

var fieldLabels = map[string]string{
	"ID":             "Member ID",
	"Name":           "Name",
	"DateOfBirth":    "Date of birth",
	"Address":        "Address",
	"BloodGroup":     "Blood group",
	"Phone":          "Phone",
	"ImagePath":      "Image path",
	"MembershipType": "Membership type",
	"JoiningDate":    "Joining date",
	"RenewalDate":    "Renewal date",
	"Password":       "Password",
}

// ValidationMessages turns a validator error into user-facing sentences.
func ValidationMessages(err error) []string {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return []string{err.Error()}
	}
	msgs := make([]string, 0, len(ve))
	for _, fe := range ve {
		label, ok := fieldLabels[fe.Field()]
		if !ok {
			label = fe.Field()
		}
		msgs = append(msgs, fieldMessage(label, fe))
	}
	return msgs
}

func fieldMessage(label string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return label + " is required"
	case "memberid":
		return label + " may only contain letters, digits, dots, dashes and underscores (max 64)"
	case "datetime":
		return label + " must be a date (YYYY-MM-DD)"
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", label, fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", label, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", label, fe.Param())
	case "url":
		return label + " must be a valid URL"
	default:
		return label + " is invalid"
	}
}
