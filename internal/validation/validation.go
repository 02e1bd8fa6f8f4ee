// Package validation holds the shared validator instance and the
// Brazilian-document rules used by request DTOs.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"medvision-server/internal/apperrors"
)

var (
	cpfRegex   = regexp.MustCompile(`^\d{3}\.?\d{3}\.?\d{3}-?\d{2}$`)
	crmRegex   = regexp.MustCompile(`^\d{4,6}/[A-Z]{2}$`)
	phoneRegex = regexp.MustCompile(`^(\+?55\s?)?(\(?\d{2}\)?\s?)?(?:9\d{4}-?\d{4}|\d{4}-?\d{4})$`)
	codeRegex  = regexp.MustCompile(`^\d{6}$`)
)

var (
	once     sync.Once
	validate *validator.Validate
)

// Validator returns the process-wide validator with custom rules registered.
func Validator() *validator.Validate {
	once.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
		mustRegister(v, "cpf", matches(cpfRegex))
		mustRegister(v, "crm", matches(crmRegex))
		mustRegister(v, "phone", matches(phoneRegex))
		mustRegister(v, "otp", matches(codeRegex))
		mustRegister(v, "strongpassword", strongPassword)
		validate = v
	})
	return validate
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register validation %s: %v", tag, err))
	}
}

func matches(re *regexp.Regexp) validator.Func {
	return func(fl validator.FieldLevel) bool {
		return re.MatchString(fl.Field().String())
	}
}

// strongPassword requires 8..100 chars with an upper, a lower and a digit.
func strongPassword(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if len(s) < 8 || len(s) > 100 {
		return false
	}
	var upper, lower, digit bool
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= '0' && r <= '9':
			digit = true
		}
	}
	return upper && lower && digit
}

// Struct validates s and converts failures into a ValidationFailed error
// keyed by JSON field name.
func Struct(s interface{}) error {
	err := Validator().Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperrors.Wrap(apperrors.KindValidation, "invalid data", err)
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fieldPath(fe)] = describe(fe)
	}
	return apperrors.Validation("invalid data", fields)
}

// Var validates a single value against tag, reporting failures under field.
func Var(value interface{}, tag, field string) error {
	err := Validator().Var(value, tag)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperrors.Wrap(apperrors.KindValidation, "invalid data", err)
	}
	return apperrors.Validation("invalid data", map[string]string{field: describe(verrs[0])})
}

func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "len":
		return "must have length " + fe.Param()
	case "email":
		return "must be a valid email"
	case "uuid", "uuid4":
		return "must be a valid UUID"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "cpf":
		return "must be a valid CPF (11 digits)"
	case "crm":
		return "must be a valid CRM (e.g. 12345/SP)"
	case "phone":
		return "must be a valid phone number"
	case "otp":
		return "must be a 6 digit code"
	case "strongpassword":
		return "must have 8+ characters with upper case, lower case and a number"
	}
	return "failed on " + fe.Tag()
}

// NormalizeCPF strips punctuation so 123.456.789-01 and 12345678901 are the same key.
func NormalizeCPF(cpf string) string {
	var b strings.Builder
	for _, r := range cpf {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
