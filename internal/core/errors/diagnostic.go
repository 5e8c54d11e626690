package errors

import (
	"fmt"
	"sort"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Diagnostic is a collected, non-fatal finding about one source location.
type Diagnostic struct {
	Kind     ErrorCode `json:"kind"`
	Severity Severity  `json:"severity"`
	Path     string    `json:"path"`
	Line     int       `json:"line"`
	Column   int       `json:"column"`
	Message  string    `json:"message"`
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s:%d:%d: %s: %s", d.Path, d.Line, d.Column, d.Kind, d.Message)
}

func SyntaxError(path string, line, column int, msg string) Diagnostic {
	return Diagnostic{Kind: CodeSyntax, Severity: SeverityError, Path: path, Line: line, Column: column, Message: msg}
}

func UnresolvedImport(path string, line, column int, msg string) Diagnostic {
	return Diagnostic{Kind: CodeUnresolvedImport, Severity: SeverityWarning, Path: path, Line: line, Column: column, Message: msg}
}

func UnresolvedCall(path string, line, column int, msg string) Diagnostic {
	return Diagnostic{Kind: CodeUnresolvedCall, Severity: SeverityWarning, Path: path, Line: line, Column: column, Message: msg}
}

func ArityMismatch(path string, line, column int, msg string) Diagnostic {
	return Diagnostic{Kind: CodeArityMismatch, Severity: SeverityInfo, Path: path, Line: line, Column: column, Message: msg}
}

// SortDiagnostics orders diagnostics by path, position, kind and message.
func SortDiagnostics(diags []Diagnostic) {
	sort.SliceStable(diags, func(i, j int) bool {
		a, b := diags[i], diags[j]
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		if a.Column != b.Column {
			return a.Column < b.Column
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return a.Message < b.Message
	})
}

// CountByKind tallies diagnostics per kind.
func CountByKind(diags []Diagnostic) map[ErrorCode]int {
	out := make(map[ErrorCode]int)
	for _, d := range diags {
		out[d.Kind]++
	}
	return out
}
