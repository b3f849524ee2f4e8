package checkout

import (
	"reflect"
	"regexp"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-playground/validator/v10"
)

// FieldError describes one invalid field of a step payload.
type FieldError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

// Result is the outcome of validating one step.
type Result struct {
	OK     bool         `json:"ok"`
	Errors []FieldError `json:"errors,omitempty"`
}

// ValidationError wraps a failed Result for callers that want an error.
type ValidationError struct {
	Step   Step
	Result Result
}

func (e *ValidationError) Error() string {
	fields := make([]string, len(e.Result.Errors))
	for i, fe := range e.Result.Errors {
		fields[i] = fe.Field
	}
	return "step " + e.Step.Title() + " is invalid: " + strings.Join(fields, ", ")
}

var phMobile = regexp.MustCompile(`^(\+63|0)?9\d{9}$`)

// IsPhilippineMobile reports whether phone is a Philippine mobile number.
// Spaces and dashes are ignored.
func IsPhilippineMobile(phone string) bool {
	return phMobile.MatchString(strings.NewReplacer(" ", "", "-", "").Replace(phone))
}

// Validator checks step payloads.
type Validator struct {
	v *validator.Validate
}

// NewValidator configures a Validator that reports fields by their JSON names.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.RegisterValidation("ph_mobile", func(fl validator.FieldLevel) bool {
		return IsPhilippineMobile(fl.Field().String())
	}); err != nil {
		panic(err)
	}
	return &Validator{v: v}
}

// Validate checks the payload belonging to step.
func (v *Validator) Validate(step Step, st State) Result {
	var payload any
	switch step {
	case StepCustomer:
		payload = st.Customer
	case StepPayment:
		payload = st.Payment
	case StepContract:
		payload = st.Contract
	default:
		return Result{Errors: []FieldError{{Field: "step", Tag: "oneof", Message: "Unknown checkout step"}}}
	}
	return v.check(payload)
}

func (v *Validator) check(payload any) Result {
	err := v.v.Struct(payload)
	if err == nil {
		return Result{OK: true}
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return Result{Errors: []FieldError{{Field: "", Tag: "invalid", Message: err.Error()}}}
	}

	out := make([]FieldError, len(verrs))
	for i, fe := range verrs {
		out[i] = FieldError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Message: message(fe),
		}
	}
	return Result{Errors: out}
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		if fe.Kind() == reflect.Bool {
			return "You must accept the terms to continue"
		}
		return "This field is required"
	case "email":
		return "Invalid email format"
	case "ph_mobile":
		return "Enter a valid Philippine mobile number"
	case "oneof":
		return "Must be one of: " + fe.Param()
	case "url":
		return "Invalid URL format"
	case "min":
		return "Must be at least " + fe.Param() + " characters"
	case "gte":
		return "Must be greater than or equal to " + fe.Param()
	case "lte":
		return "Must be less than or equal to " + fe.Param()
	default:
		return "Invalid value"
	}
}
