// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package auth

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// SpecialCharacters lists the characters accepted by the special character rule.
const SpecialCharacters = "!@#$%^&*()_+=-{};:'<>,./?"

// PasswordPolicy validates passwords against strength rules
type PasswordPolicy struct {
	MinLength        int
	RequireUppercase bool
	RequireLowercase bool
	RequireDigit     bool
	RequireSpecial   bool
}

// DefaultPasswordPolicy returns the policy applied to every password mutation:
// at least 8 characters with a digit, an uppercase letter, a lowercase letter
// and one of SpecialCharacters.
func DefaultPasswordPolicy() *PasswordPolicy {
	return &PasswordPolicy{
		MinLength:        8,
		RequireUppercase: true,
		RequireLowercase: true,
		RequireDigit:     true,
		RequireSpecial:   true,
	}
}

// ValidationError represents a single password validation error
type ValidationError struct {
	Code    string
	Message string
}

func (e ValidationError) Error() string {
	return e.Message
}

// PasswordValidationError wraps multiple validation errors
type PasswordValidationError struct {
	Errors []ValidationError
}

func (e *PasswordValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "password validation failed"
	}
	return e.Errors[0].Message
}

// Messages returns all error messages
func (e *PasswordValidationError) Messages() []string {
	messages := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		messages[i] = err.Message
	}
	return messages
}

// ValidationResult holds all validation errors
type ValidationResult struct {
	Valid  bool
	Errors []ValidationError
}

// Err returns the result as an error, or nil if the password is valid.
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	return &PasswordValidationError{Errors: r.Errors}
}

// Validate checks a password against every rule and collects all violations.
func (p *PasswordPolicy) Validate(password string) ValidationResult {
	var errors []ValidationError

	if utf8.RuneCountInString(password) < p.MinLength {
		errors = append(errors, ValidationError{
			Code:    "min_length",
			Message: fmt.Sprintf("Password must be at least %d characters long.", p.MinLength),
		})
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case 'A' <= r && r <= 'Z':
			hasUpper = true
		case 'a' <= r && r <= 'z':
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case strings.ContainsRune(SpecialCharacters, r):
			hasSpecial = true
		}
	}

	if p.RequireDigit && !hasDigit {
		errors = append(errors, ValidationError{
			Code:    "no_digit",
			Message: "Password must contain at least one digit.",
		})
	}

	if p.RequireUppercase && !hasUpper {
		errors = append(errors, ValidationError{
			Code:    "no_uppercase",
			Message: "Password must contain at least one uppercase letter.",
		})
	}

	if p.RequireLowercase && !hasLower {
		errors = append(errors, ValidationError{
			Code:    "no_lowercase",
			Message: "Password must contain at least one lowercase letter.",
		})
	}

	if p.RequireSpecial && !hasSpecial {
		errors = append(errors, ValidationError{
			Code:    "no_special",
			Message: "Password must contain at least one special character (" + SpecialCharacters + ").",
		})
	}

	return ValidationResult{
		Valid:  len(errors) == 0,
		Errors: errors,
	}
}

// HelpTexts returns help texts for password requirements
func (p *PasswordPolicy) HelpTexts() []string {
	texts := []string{fmt.Sprintf("At least %d characters", p.MinLength)}

	if p.RequireDigit {
		texts = append(texts, "At least one digit")
	}
	if p.RequireUppercase {
		texts = append(texts, "At least one uppercase letter")
	}
	if p.RequireLowercase {
		texts = append(texts, "At least one lowercase letter")
	}
	if p.RequireSpecial {
		texts = append(texts, "At least one special character ("+SpecialCharacters+")")
	}

	return texts
}
