package types

import (
	"fmt"
	"sort"
	"time"
)

// SymbolKind classifies what a symbol's definition declares.
type SymbolKind string

const (
	KindFunction SymbolKind = "function"
	KindMethod   SymbolKind = "method"
	KindClass    SymbolKind = "class"
	KindType     SymbolKind = "type"
	KindVariable SymbolKind = "variable"
	KindConstant SymbolKind = "constant"
)

// ByteRange is a half-open [Start, End) span into a file's byte content.
type ByteRange struct {
	Start int
	End   int
}

// Len returns the number of bytes covered by the range.
func (r ByteRange) Len() int { return r.End - r.Start }

// Overlaps reports whether two ranges share at least one byte.
func (r ByteRange) Overlaps(o ByteRange) bool {
	return r.Start < o.End && o.Start < r.End
}

// Symbol is a resolved definition within a project snapshot. Symbols are
// derived per query and never mutated in place; a qualified name maps to
// exactly one Symbol per snapshot.
type Symbol struct {
	Name          string
	QualifiedName string
	Kind          SymbolKind
	File          string // absolute path into the snapshot
	NameRange     ByteRange
	DefRange      ByteRange
	Line          int // 1-based
	ScopeChain    []string
	Docstring     string
}

// Location renders the conventional file:line form of the definition site.
func (s *Symbol) Location() string {
	return fmt.Sprintf("%s:%d", s.File, s.Line)
}

// Scope returns the innermost enclosing scope name, or "global" for
// module-level definitions.
func (s *Symbol) Scope() string {
	if len(s.ScopeChain) <= 1 {
		return "global"
	}
	return s.ScopeChain[len(s.ScopeChain)-1]
}

// Reference is one occurrence of a symbol, including its definition site.
type Reference struct {
	QualifiedName string
	File          string
	Range         ByteRange
	Line          int
	IsDefinition  bool
}

// ElementKind classifies anonymous syntactic elements.
type ElementKind string

const (
	ElementLambda     ElementKind = "lambda"
	ElementExpression ElementKind = "expression"
	ElementBlock      ElementKind = "block"
)

// AnonymousElement is an unnamed construct addressed by a synthetic id of
// the form {enclosing_qualified_name}.{kind}_{ordinal}. Ids are valid only
// for the snapshot they were computed from.
type AnonymousElement struct {
	ID    string
	Kind  ElementKind
	File  string
	Range ByteRange
	Line  int
	Code  string
}

// Edit replaces a byte range within one file.
type Edit struct {
	File        string // absolute path
	Range       ByteRange
	Replacement string
}

// ChangeSet is the atomic unit of mutation: an ordered collection of
// edits that never overlap within a file.
type ChangeSet struct {
	Edits []Edit
}

// Add appends an edit to the set. Overlap is checked by Validate, not here.
func (cs *ChangeSet) Add(e Edit) {
	cs.Edits = append(cs.Edits, e)
}

// Files returns the distinct affected file paths in sorted order.
func (cs *ChangeSet) Files() []string {
	seen := make(map[string]bool, len(cs.Edits))
	var files []string
	for _, e := range cs.Edits {
		if !seen[e.File] {
			seen[e.File] = true
			files = append(files, e.File)
		}
	}
	sort.Strings(files)
	return files
}

// Validate checks the non-overlap invariant for every file in the set.
func (cs *ChangeSet) Validate() error {
	perFile := make(map[string][]ByteRange)
	for _, e := range cs.Edits {
		if e.Range.Start < 0 || e.Range.End < e.Range.Start {
			return fmt.Errorf("invalid edit range %d..%d in %s", e.Range.Start, e.Range.End, e.File)
		}
		perFile[e.File] = append(perFile[e.File], e.Range)
	}
	for file, ranges := range perFile {
		sort.Slice(ranges, func(i, j int) bool { return ranges[i].Start < ranges[j].Start })
		for i := 1; i < len(ranges); i++ {
			if ranges[i-1].Overlaps(ranges[i]) {
				return fmt.Errorf("overlapping edits at %d..%d and %d..%d in %s",
					ranges[i-1].Start, ranges[i-1].End, ranges[i].Start, ranges[i].End, file)
			}
		}
	}
	return nil
}

// Backup records a snapshot of file contents taken before a ChangeSet is
// applied. The snapshot is restorable independently of the operation that
// created it.
type Backup struct {
	ID        string
	Files     []string
	CreatedAt time.Time
}

// Capability names one operation a language provider supports.
type Capability string

const (
	CapAnalyzeSymbol  Capability = "analyze_symbol"
	CapFindSymbols    Capability = "find_symbols"
	CapShowFunction   Capability = "show_function"
	CapRenameSymbol   Capability = "rename_symbol"
	CapExtractElement Capability = "extract_element"
)

// HasCapability reports whether cap is present in caps.
func HasCapability(caps []Capability, capability Capability) bool {
	for _, c := range caps {
		if c == capability {
			return true
		}
	}
	return false
}
