// Package validation runs go-playground/validator struct tags and reports
// failures as AppErrors carrying per-field details.
package validation

import (
	stdErrors "errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	errors "github.com/frahmantamala/leave-portal/internal"
	"github.com/frahmantamala/leave-portal/internal/core/user"
	"github.com/frahmantamala/leave-portal/internal/quota"
)

var (
	once     sync.Once
	instance *validator.Validate
)

// Validator returns the shared validator with the portal's custom tags
// registered: leave_category, staff_role, department and approver_role.
func Validator() *validator.Validate {
	once.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			for _, tag := range []string{"json", "mapstructure"} {
				name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]
				if name == "-" {
					return ""
				}
				if name != "" {
					return name
				}
			}
			return f.Name
		})
		mustRegister(v, "leave_category", func(fl validator.FieldLevel) bool {
			_, err := quota.CategoryKeyOf(fl.Field().String())
			return err == nil
		})
		mustRegister(v, "staff_role", func(fl validator.FieldLevel) bool {
			return user.Role(fl.Field().String()).Valid()
		})
		mustRegister(v, "department", func(fl validator.FieldLevel) bool {
			return user.Department(fl.Field().String()).Valid()
		})
		mustRegister(v, "approver_role", func(fl validator.FieldLevel) bool {
			return user.ApproverRole(fl.Field().String()).Valid()
		})
		instance = v
	})
	return instance
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register %s validation: %v", tag, err))
	}
}

// Struct validates s and returns nil or a VALIDATION_FAILED AppError.
func Struct(s interface{}) *errors.AppError {
	err := Validator().Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !stdErrors.As(err, &fieldErrs) {
		return errors.NewValidationError(err.Error(), errors.ErrCodeValidationFailed)
	}

	details := errors.ValidationErrors{Errors: make([]errors.ValidationError, 0, len(fieldErrs))}
	for _, fe := range fieldErrs {
		details.Errors = append(details.Errors, errors.ValidationError{
			Field:   fe.Field(),
			Message: message(fe),
			Code:    codeFor(fe),
		})
	}
	return errors.NewValidationError("Validation failed", errors.ErrCodeValidationFailed).WithDetails(details)
}

func message(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "email":
		return fmt.Sprintf("%s must be a valid email address", field)
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must not exceed %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must not exceed %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must not be negative", field)
	case "ne":
		return fmt.Sprintf("%s must not be %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "datetime":
		return fmt.Sprintf("%s must be a date formatted as %s", field, fe.Param())
	case "leave_category":
		return fmt.Sprintf("%s must be one of: %s", field, strings.Join(quota.Labels(), ", "))
	case "staff_role":
		return fmt.Sprintf("%s is not a known role", field)
	case "department":
		return fmt.Sprintf("%s is not a known department", field)
	case "approver_role":
		return fmt.Sprintf("%s must be HOD, Principal or Admin", field)
	}
	return fmt.Sprintf("%s is invalid", field)
}

func codeFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "leave_category":
		return string(errors.ErrCodeUnknownCategory)
	case "staff_role":
		return string(errors.ErrCodeInvalidRole)
	case "department":
		return string(errors.ErrCodeInvalidDepartment)
	case "datetime":
		return string(errors.ErrCodeInvalidDateRange)
	}
	return string(errors.ErrCodeValidationFailed)
}
