package application

import (
	"fmt"
	"strings"
)

// ValidateRequired checks if a string field is non-empty (after trimming whitespace).
// Returns a ValidationError if the field is empty.
func ValidateRequired(fieldName, value string) error {
	if strings.TrimSpace(value) == "" {
		return &ValidationError{
			Field:   fieldName,
			Message: fmt.Sprintf("%s is required", formatFieldName(fieldName)),
		}
	}
	return nil
}

// ValidateIntRange checks that value lies in [lo, hi]
func ValidateIntRange(fieldName string, value, lo, hi int) error {
	if value < lo || value > hi {
		return &ValidationError{
			Field:   fieldName,
			Message: fmt.Sprintf("%s must be between %d and %d, got %d", formatFieldName(fieldName), lo, hi, value),
		}
	}
	return nil
}

// ValidateFloatRange checks that value lies in [lo, hi]
func ValidateFloatRange(fieldName string, value, lo, hi float64) error {
	if value < lo || value > hi {
		return &ValidationError{
			Field:   fieldName,
			Message: fmt.Sprintf("%s must be between %g and %g, got %g", formatFieldName(fieldName), lo, hi, value),
		}
	}
	return nil
}

// formatFieldName converts camelCase field names to space-separated words
// for more readable error messages (e.g., "clientID" -> "client ID")
func formatFieldName(fieldName string) string {
	replacements := map[string]string{
		"clientID":        "client ID",
		"confidenceFloor": "confidence floor",
		"query":           "query",
		"limit":           "limit",
		"mode":            "sync mode",
	}

	if formatted, ok := replacements[fieldName]; ok {
		return formatted
	}
	return fieldName
}
