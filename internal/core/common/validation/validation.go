package validation

import (
	"fmt"
	"strconv"
	"unicode/utf8"

	errors "github.com/frahmantamala/payfast-itn/internal"
	"github.com/shopspring/decimal"
)

type ValidatorFunc func(interface{}) *errors.AppError

type FieldValidator struct {
	FieldName  string
	Value      interface{}
	Validators []ValidatorFunc
}

type ValidationBuilder struct {
	fields []FieldValidator
}

func NewValidator() *ValidationBuilder {
	return &ValidationBuilder{
		fields: make([]FieldValidator, 0),
	}
}

func (v *ValidationBuilder) Field(name string, value interface{}) *FieldValidator {
	fv := FieldValidator{
		FieldName:  name,
		Value:      value,
		Validators: make([]ValidatorFunc, 0),
	}
	v.fields = append(v.fields, fv)
	return &v.fields[len(v.fields)-1]
}

func (fv *FieldValidator) Required() *FieldValidator {
	fv.Validators = append(fv.Validators, func(value interface{}) *errors.AppError {
		if v, ok := value.(string); ok && v == "" {
			return errors.NewValidationFieldError(fv.FieldName, fmt.Sprintf("%s is required", fv.FieldName), errors.ErrCodeValidationFailed)
		}
		return nil
	})
	return fv
}

// MaxLength counts characters, not bytes, to match the column definitions.
func (fv *FieldValidator) MaxLength(max int) *FieldValidator {
	fv.Validators = append(fv.Validators, func(value interface{}) *errors.AppError {
		if v, ok := value.(string); ok {
			if utf8.RuneCountInString(v) > max {
				message := fmt.Sprintf("%s must not exceed %d characters", fv.FieldName, max)
				return errors.NewValidationFieldError(fv.FieldName, message, errors.ErrCodeInvalidField)
			}
		}
		return nil
	})
	return fv
}

// Amount accepts blank or a decimal with at most two fraction digits and an
// absolute value below 10^13.
func (fv *FieldValidator) Amount() *FieldValidator {
	limit := decimal.New(1, 13)
	fv.Validators = append(fv.Validators, func(value interface{}) *errors.AppError {
		v, ok := value.(string)
		if !ok || v == "" {
			return nil
		}
		d, err := decimal.NewFromString(v)
		if err != nil {
			return errors.NewValidationFieldError(fv.FieldName, fmt.Sprintf("%s is not a decimal amount", fv.FieldName), errors.ErrCodeInvalidAmount)
		}
		if d.Exponent() < -2 && !d.Equal(d.Round(2)) {
			return errors.NewValidationFieldError(fv.FieldName, fmt.Sprintf("%s has more than 2 decimal places", fv.FieldName), errors.ErrCodeInvalidAmount)
		}
		if d.Abs().GreaterThanOrEqual(limit) {
			return errors.NewValidationFieldError(fv.FieldName, fmt.Sprintf("%s is out of range", fv.FieldName), errors.ErrCodeInvalidAmount)
		}
		return nil
	})
	return fv
}

// Integer accepts blank or a base-10 signed 64-bit integer.
func (fv *FieldValidator) Integer() *FieldValidator {
	fv.Validators = append(fv.Validators, func(value interface{}) *errors.AppError {
		v, ok := value.(string)
		if !ok || v == "" {
			return nil
		}
		if _, err := strconv.ParseInt(v, 10, 64); err != nil {
			return errors.NewValidationFieldError(fv.FieldName, fmt.Sprintf("%s is not an integer", fv.FieldName), errors.ErrCodeInvalidField)
		}
		return nil
	})
	return fv
}

func (fv *FieldValidator) Custom(validator func(interface{}) *errors.AppError) *FieldValidator {
	fv.Validators = append(fv.Validators, validator)
	return fv
}

func (v *ValidationBuilder) Validate() *errors.AppError {
	var validationErrors []errors.ValidationError

	for _, field := range v.fields {
		for _, validator := range field.Validators {
			appErr := validator(field.Value)
			if appErr == nil {
				continue
			}
			if details, ok := appErr.Details.(errors.ValidationErrors); ok {
				validationErrors = append(validationErrors, details.Errors...)
				continue
			}
			validationErrors = append(validationErrors, errors.ValidationError{
				Field:   field.FieldName,
				Message: appErr.Message,
				Code:    string(appErr.Code),
			})
		}
	}

	if len(validationErrors) > 0 {
		return errors.NewValidationError("Validation failed", errors.ErrCodeValidationFailed).
			WithDetails(errors.ValidationErrors{Errors: validationErrors})
	}

	return nil
}
