// Package form evaluates an explicit ordered list of field rules against
// submitted values, collecting every failure before the response is built.
package form

import (
	"net/mail"
	"strings"
	"unicode/utf8"
)

type Rule struct {
	Field   string
	Valid   func() bool
	Message string
}

type FieldError struct {
	Field   string
	Message string
}

type Errors []FieldError

func (e Errors) Has(field string) bool {
	for _, fe := range e {
		if fe.Field == field {
			return true
		}
	}
	return false
}

// Validate runs every rule eagerly, in order, and collects all failures.
func Validate(rules ...Rule) Errors {
	var errs Errors
	for _, rule := range rules {
		if !rule.Valid() {
			errs = append(errs, FieldError{Field: rule.Field, Message: rule.Message})
		}
	}
	return errs
}

func NotEmpty(value string) func() bool {
	return func() bool {
		return strings.TrimSpace(value) != ""
	}
}

// MinLen counts characters, not bytes, so multibyte input is measured the
// way the user typed it.
func MinLen(value string, min int) func() bool {
	return func() bool {
		return utf8.RuneCountInString(value) >= min
	}
}

func Equals(value, other string) func() bool {
	return func() bool {
		return value == other
	}
}

func ValidEmail(value string) func() bool {
	return func() bool {
		addr, err := mail.ParseAddress(strings.TrimSpace(value))
		// Reject the "Name <addr>" form; only a bare address is a valid input.
		return err == nil && addr.Address == strings.TrimSpace(value)
	}
}
