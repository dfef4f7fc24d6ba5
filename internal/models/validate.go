package models

import (
	"fmt"
	"strings"
)

// FieldError is a single schema violation, addressed to the form field that
// caused it (e.g. "spareParts[1].name").
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors collects every field-level violation found in one pass.
// A non-empty value blocks submission before the store is contacted.
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	msgs := make([]string, len(v))
	for i, fe := range v {
		msgs[i] = fmt.Sprintf("%s: %s", fe.Field, fe.Message)
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}
