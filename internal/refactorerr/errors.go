// Package refactorerr defines the structured error values returned by
// refactoring operations. Every error carries a machine-readable kind and
// at least one actionable suggestion; operations convert these into the
// boundary result shapes instead of letting faults propagate.
package refactorerr

import (
	"fmt"
	"strings"
)

// Kind identifies an error category in the operation taxonomy.
type Kind string

const (
	KindSymbolNotFound  Kind = "symbol_not_found"
	KindAmbiguousSymbol Kind = "ambiguous_symbol"
	KindNamingConflict  Kind = "naming_conflict"
	KindIdentifierStale Kind = "identifier_stale"
	KindExtractionShape Kind = "extraction_shape"
	KindParse           Kind = "parse_error"
	KindApply           Kind = "apply_error"
	KindBackupNotFound  Kind = "backup_not_found"
	KindUnsupported     Kind = "unsupported_operation"
	KindValidation      Kind = "validation_failed"
)

// Error is a structured refactoring error. Suggestions is never empty:
// constructors supply a default next step when the caller has none.
type Error struct {
	Kind        Kind
	Message     string
	Suggestions []string
	Candidates  []string // qualified names, for ambiguity and conflicts
	RolledBack  bool     // apply errors only: whether rollback succeeded
	Underlying  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Underlying)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Underlying
}

// KindOf extracts the kind from err, or empty if err is not an *Error.
func KindOf(err error) Kind {
	if re, ok := err.(*Error); ok {
		return re.Kind
	}
	return ""
}

// As narrows err to *Error.
func As(err error) (*Error, bool) {
	re, ok := err.(*Error)
	return re, ok
}

func withDefault(suggestions []string, fallback string) []string {
	if len(suggestions) == 0 {
		return []string{fallback}
	}
	return suggestions
}

// NewSymbolNotFound reports a name that resolved to nothing. The
// suggestions are near-miss candidate names when available.
func NewSymbolNotFound(name string, suggestions []string) *Error {
	return &Error{
		Kind:        KindSymbolNotFound,
		Message:     fmt.Sprintf("symbol %q not found", name),
		Suggestions: withDefault(suggestions, "run find_symbols to discover available symbols"),
	}
}

// NewAmbiguousSymbol reports a bare name shared by several qualified
// symbols. Candidates are ordered by ascending path length.
func NewAmbiguousSymbol(name string, candidates []string) *Error {
	return &Error{
		Kind:        KindAmbiguousSymbol,
		Message:     fmt.Sprintf("multiple symbols named %q", name),
		Candidates:  candidates,
		Suggestions: []string{"use a qualified name: " + strings.Join(candidates, ", ")},
	}
}

// NewNamingConflict reports that a proposed new name collides with a
// visible symbol or reserved identifier.
func NewNamingConflict(newName string, conflicts []string) *Error {
	return &Error{
		Kind:        KindNamingConflict,
		Message:     fmt.Sprintf("renaming to %q would create conflicts", newName),
		Candidates:  conflicts,
		Suggestions: []string{"choose a name not visible in the affected scopes"},
	}
}

// NewIdentifierStale reports an anonymous element id whose source file
// changed after discovery.
func NewIdentifierStale(id string) *Error {
	return &Error{
		Kind:        KindIdentifierStale,
		Message:     fmt.Sprintf("element id %q refers to source that has changed", id),
		Suggestions: []string{"re-run show_function to obtain fresh element ids"},
	}
}

// NewExtractionShape reports a range that cannot be extracted as an
// independent unit.
func NewExtractionShape(detail string) *Error {
	return &Error{
		Kind:        KindExtractionShape,
		Message:     detail,
		Suggestions: []string{"run show_function to list independently extractable elements"},
	}
}

// NewParse reports a per-file syntax failure. Parse errors are non-fatal
// to project-wide operations: the file is excluded and a warning recorded.
func NewParse(path string, line, column int, err error) *Error {
	return &Error{
		Kind:        KindParse,
		Message:     fmt.Sprintf("syntax error in %s at %d:%d", path, line, column),
		Suggestions: []string{"fix the syntax error or exclude the file from the project"},
		Underlying:  err,
	}
}

// NewApply reports a failure while writing edits. rolledBack records
// whether the automatic restore from backup succeeded.
func NewApply(op string, err error, rolledBack bool) *Error {
	outcome := "rollback failed; restore the backup manually"
	if rolledBack {
		outcome = "all files restored from backup"
	}
	return &Error{
		Kind:        KindApply,
		Message:     fmt.Sprintf("%s failed while applying edits (%s)", op, outcome),
		Suggestions: []string{"check file permissions and disk space, then retry"},
		RolledBack:  rolledBack,
		Underlying:  err,
	}
}

// NewBackupNotFound reports an unknown backup id.
func NewBackupNotFound(id string) *Error {
	return &Error{
		Kind:        KindBackupNotFound,
		Message:     fmt.Sprintf("no backup with id %q", id),
		Suggestions: []string{"list available backups to find a valid id"},
	}
}

// NewUnsupported reports an operation outside a provider's capability set.
func NewUnsupported(language string, capability string) *Error {
	return &Error{
		Kind:        KindUnsupported,
		Message:     fmt.Sprintf("the %s provider does not support %s", language, capability),
		Suggestions: []string{"check provider capabilities before invoking the operation"},
	}
}

// NewValidation reports an invalid operation parameter.
func NewValidation(field, reason string) *Error {
	return &Error{
		Kind:        KindValidation,
		Message:     fmt.Sprintf("invalid %s: %s", field, reason),
		Suggestions: []string{"check parameter format and constraints"},
	}
}
