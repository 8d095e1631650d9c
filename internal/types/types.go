package types

import (
	"fmt"
	"strings"
)

// Common system-wide constants
const (
	// File size limits
	DefaultMaxFileSize = 10 * 1024 * 1024 // 10MB per file - standard limit for tracked sources
	// Rationale: prevents memory exhaustion from generated
	// files; real Erlang modules are far smaller.

	// Memory limits
	DefaultMaxMemoryMB = 100 // typical memory limit for the query database

	// Performance limits
	DefaultMaxFileCount = 10000 // maximum files tracked in a single workspace

	// Binary detection threshold
	BinaryPreCheckBytes = 512 // bytes read for binary content detection
)

// FileID uniquely identifies a tracked file. IDs are assigned once per path
// and never reused within a store's lifetime.
type FileID uint32

// InvalidFileID is the zero value, never assigned to a real file.
const InvalidFileID FileID = 0

// Revision identifies a source store generation. It increases monotonically
// with every edit; two reads at the same revision observe identical text.
type Revision uint64

// Range is a half-open byte range [Start, End) within a file's text.
type Range struct {
	Start uint32 `json:"start"`
	End   uint32 `json:"end"`
}

// Len returns the number of bytes covered by the range.
func (r Range) Len() uint32 {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start
}

// Contains reports whether the byte offset lies within the range.
func (r Range) Contains(offset uint32) bool {
	return offset >= r.Start && offset < r.End
}

// Empty reports whether the range covers no bytes.
func (r Range) Empty() bool {
	return r.End <= r.Start
}

// Cover returns the smallest range containing both r and other.
func (r Range) Cover(other Range) Range {
	out := r
	if other.Start < out.Start {
		out.Start = other.Start
	}
	if other.End > out.End {
		out.End = other.End
	}
	return out
}

// Location is a byte range within a specific file.
type Location struct {
	FileID FileID `json:"file_id"`
	Range  Range  `json:"range"`
}

// LineCol is a 1-based line and column position, derived from a Range via a
// line index. Used only at the protocol boundary.
type LineCol struct {
	Line   uint32 `json:"line"`
	Column uint32 `json:"column"`
}

// NameArity identifies an Erlang function within a module, e.g. foo/2.
// Arity is -1 for entities without an arity (records, modules).
type NameArity struct {
	Name  string `json:"name"`
	Arity int    `json:"arity"`
}

// String renders the conventional name/arity form.
func (na NameArity) String() string {
	if na.Arity < 0 {
		return na.Name
	}
	return fmt.Sprintf("%s/%d", na.Name, na.Arity)
}

// ParseNameArity parses "name/arity" text. Arity defaults to -1 when the
// slash is absent or the suffix is not a number.
func ParseNameArity(s string) NameArity {
	idx := strings.LastIndexByte(s, '/')
	if idx <= 0 {
		return NameArity{Name: s, Arity: -1}
	}
	arity := 0
	for _, c := range s[idx+1:] {
		if c < '0' || c > '9' {
			return NameArity{Name: s, Arity: -1}
		}
		arity = arity*10 + int(c-'0')
	}
	if idx+1 == len(s) {
		return NameArity{Name: s, Arity: -1}
	}
	return NameArity{Name: s[:idx], Arity: arity}
}

// SymbolKind classifies a definition.
type SymbolKind uint8

const (
	SymbolUnknown SymbolKind = iota
	SymbolModule
	SymbolFunction
	SymbolRecord
	SymbolMacro
	SymbolType
	SymbolVariable
)

// String returns the lowercase kind name used in output and storage.
func (k SymbolKind) String() string {
	switch k {
	case SymbolModule:
		return "module"
	case SymbolFunction:
		return "function"
	case SymbolRecord:
		return "record"
	case SymbolMacro:
		return "macro"
	case SymbolType:
		return "type"
	case SymbolVariable:
		return "variable"
	default:
		return "unknown"
	}
}

// DefinitionID is the stable, position-independent identity of a definition.
// It deliberately excludes byte ranges: renaming whitespace or editing a
// function body elsewhere in the file must not change the identity of
// untouched definitions. Locations are resolved separately.
type DefinitionID struct {
	Module string     `json:"module"`
	Entity NameArity  `json:"entity"`
	Kind   SymbolKind `json:"kind"`
}

// String renders module:name/arity (or module alone for module symbols).
func (d DefinitionID) String() string {
	if d.Kind == SymbolModule {
		return d.Module
	}
	return d.Module + ":" + d.Entity.String()
}

// Severity grades a diagnostic finding.
type Severity uint8

const (
	SeverityError Severity = iota
	SeverityWarning
	SeverityInfo
	SeverityHint
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityInfo:
		return "info"
	default:
		return "hint"
	}
}

// Diagnostic is a single structured finding from an analysis pass.
// Diagnostics are regenerated per request and never persisted across edits.
type Diagnostic struct {
	Pass     string   `json:"pass"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Location Location `json:"location"`
	Related  string   `json:"related,omitempty"`
}
