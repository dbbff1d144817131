// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator adapts go-playground/validator to echo.Validator.
type Validator struct {
	v *validator.Validate
}

// NewValidator returns a Validator reporting fields by their form names.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("form"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return &Validator{v: v}
}

// Validate implements echo.Validator.
func (cv *Validator) Validate(i any) error {
	return cv.v.Struct(i)
}

// fieldMessages turns validation failures into user-facing sentences.
func fieldMessages(err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}

	messages := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		label := fieldLabel(fe.Field())
		switch fe.Tag() {
		case "required":
			messages = append(messages, fmt.Sprintf("%s is required.", label))
		case "email":
			messages = append(messages, "Enter a valid email address.")
		case "max":
			messages = append(messages, fmt.Sprintf("%s must be at most %s characters.", label, fe.Param()))
		case "len":
			messages = append(messages, fmt.Sprintf("%s must be exactly %s characters.", label, fe.Param()))
		case "numeric":
			messages = append(messages, fmt.Sprintf("%s must contain digits only.", label))
		case "eqfield":
			messages = append(messages, "The passwords do not match.")
		default:
			messages = append(messages, fmt.Sprintf("%s is invalid.", label))
		}
	}
	return messages
}

func fieldLabel(field string) string {
	label := strings.ReplaceAll(field, "_", " ")
	if label == "" {
		return label
	}
	return strings.ToUpper(label[:1]) + label[1:]
}
