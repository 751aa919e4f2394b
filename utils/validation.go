package utils

import "fmt"

// ValidationOptions defines the validation rules for a string
type ValidationOptions struct {
	FieldName              string // Name of the field for error messages
	MaxLength              int    // Maximum allowed length
	MinLength              int    // Minimum allowed length (0 means no minimum)
	EmptyAllowed           bool   // Whether empty strings are allowed
	AdditionalAllowedChars string // Additional characters beyond the default set
}

// defaultAllowedChars is the ASCII lookup table for the default character set,
// built once at init.
var defaultAllowedChars [128]bool

func init() {
	for _, c := range "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789_-:.@+" {
		defaultAllowedChars[c] = true
	}
}

// ValidateString validates a string against the given options
func ValidateString(value string, opts ValidationOptions) error {
	if !opts.EmptyAllowed && len(value) == 0 {
		return fmt.Errorf("%s cannot be empty", opts.FieldName)
	}

	if opts.EmptyAllowed && len(value) == 0 {
		return nil
	}

	if opts.MinLength > 0 && len(value) < opts.MinLength {
		return fmt.Errorf("%s must be at least %d characters, got %d", opts.FieldName, opts.MinLength, len(value))
	}

	if opts.MaxLength > 0 && len(value) > opts.MaxLength {
		return fmt.Errorf("%s cannot exceed %d bytes, got %d bytes", opts.FieldName, opts.MaxLength, len(value))
	}

	const hint = "Only alphanumeric ASCII, underscore (_), hyphen (-), colon (:), period (.), at (@), and plus (+) are allowed"

	allowedChars := defaultAllowedChars
	for _, c := range opts.AdditionalAllowedChars {
		if c < 128 {
			allowedChars[c] = true
		}
	}

	for i, r := range value {
		if r >= 128 || !allowedChars[r] {
			return fmt.Errorf("%s contains invalid character '%c' at position %d. %s", opts.FieldName, r, i, hint)
		}
	}

	return nil
}

// ValidateRuleSetID validates a rule set identifier with standard rules
func ValidateRuleSetID(id string) error {
	opts := ValidationOptions{
		FieldName:    "rule set id",
		MaxLength:    64,
		MinLength:    1,
		EmptyAllowed: false,
	}
	return ValidateString(id, opts)
}

// ValidateSubject validates a resolved bucket subject with standard rules
func ValidateSubject(subject string) error {
	opts := ValidationOptions{
		FieldName:    "subject",
		MaxLength:    128,
		MinLength:    1,
		EmptyAllowed: false,
	}
	return ValidateString(subject, opts)
}
