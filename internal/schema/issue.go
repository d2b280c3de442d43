// Package schema validates UI-JSON text into an application definition.
package schema

import (
	"fmt"
	"strconv"

	"github.com/and161185/uiruntime/internal/errs"
)

// Severity separates fatal structural errors from reference warnings.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is a single validation finding.
type Issue struct {
	Path     string   `json:"path"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s", i.Path, i.Message)
}

// Err folds structural issues into a single error wrapping errs.ErrInvalidDefinition (nil if none).
func Err(issues []Issue) error {
	n := 0
	var first Issue
	for _, is := range issues {
		if is.Severity == SeverityWarning {
			continue
		}
		if n == 0 {
			first = is
		}
		n++
	}
	switch n {
	case 0:
		return nil
	case 1:
		return fmt.Errorf("%w: %s", errs.ErrInvalidDefinition, first)
	default:
		return fmt.Errorf("%w: %s (and %d more)", errs.ErrInvalidDefinition, first, n-1)
	}
}

func child(path, key string) string {
	if path == "" || path == "$" {
		return key
	}
	return path + "." + key
}

func index(path string, i int) string {
	return path + "[" + strconv.Itoa(i) + "]"
}
