// Package backend defines the per-language parsing and code-shape contract.
// Each backend wraps a tree-sitter grammar and exposes the structural facts
// the resolver, element indexer, and planners need, plus code rendering for
// extraction. Backends advertise capability sets; operations outside a
// backend's set fail with a structured unsupported error.
package backend

import (
	"sync"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/standardbeagle/refract/internal/types"
)

// Tree pairs a parsed syntax tree with the exact content bytes it was
// parsed from. Content must not be mutated while the tree is alive.
type Tree struct {
	TS      *tree_sitter.Tree
	Content []byte
	Path    string
}

// Root returns the root node.
func (t *Tree) Root() *tree_sitter.Node {
	return t.TS.RootNode()
}

// Text returns the source text covered by n.
func (t *Tree) Text(n *tree_sitter.Node) string {
	return string(t.Content[n.StartByte():n.EndByte()])
}

// Close releases the underlying tree-sitter tree.
func (t *Tree) Close() {
	if t.TS != nil {
		t.TS.Close()
		t.TS = nil
	}
}

// Definition is a named declaration found in a file.
type Definition struct {
	Name      string
	Kind      types.SymbolKind
	NameRange types.ByteRange // the identifier token
	DefRange  types.ByteRange // the whole declaration
	Line      int             // 1-based
	Scope     []string        // enclosing named scopes, outermost first
	Docstring string
}

// Ident is one identifier occurrence.
type Ident struct {
	Name  string
	Range types.ByteRange
	Line  int
	Scope []string
	Bind  bool   // binding occurrence: def/class name, parameter, assignment or loop target
	Attr  bool   // attribute access position, as in obj.name
	Obj   string // for Attr, the object expression when it is a bare identifier
	From  string // for from-import member tokens, the source module path
}

// Import records one import clause.
type Import struct {
	Module string            // dotted module path
	Names  map[string]string // local name -> imported member ("" for whole-module imports)
	Alias  string            // local alias for the module itself, if any
}

// Backend is the per-language contract.
type Backend interface {
	// Language returns the identifier used in config and capability listings.
	Language() string
	// Extensions lists source file extensions including the dot.
	Extensions() []string
	// Capabilities returns the operations this backend supports.
	Capabilities() []types.Capability

	// Parse builds a tree from content. content is copied internally.
	Parse(path string, content []byte) (*Tree, error)

	// Definitions lists every named declaration in the file.
	Definitions(t *Tree) []Definition
	// Identifiers lists every identifier occurrence in the file.
	Identifiers(t *Tree) []Ident
	// Imports lists the file's import clauses.
	Imports(t *Tree) []Import

	// IsLambda reports whether n is an anonymous function literal.
	IsLambda(n *tree_sitter.Node) bool
	// IsBlock reports whether n is a statement block eligible for discovery.
	IsBlock(n *tree_sitter.Node) bool
	// IsExtractableExpression reports whether n is a complete expression
	// that can stand alone as an extracted function body.
	IsExtractableExpression(t *Tree, n *tree_sitter.Node) bool
	// LambdaParams returns the parameter names of a lambda node.
	LambdaParams(t *Tree, n *tree_sitter.Node) []string

	// IsReserved reports whether name is a keyword or builtin that must
	// not be introduced by a rename or extraction.
	IsReserved(name string) bool
	// ValidIdentifier reports whether name is a legal identifier.
	ValidIdentifier(name string) bool

	// RenderFunction renders a new function definition at the given
	// indentation. body lines are unindented.
	RenderFunction(name string, params []string, body []string, indent string) string
	// RenderCall renders an invocation of name with the given arguments.
	RenderCall(name string, args []string) string
}

// Walk visits n and its subtree in pre-order. visit returning false
// prunes the node's children.
func Walk(n *tree_sitter.Node, visit func(*tree_sitter.Node) bool) {
	if n == nil {
		return
	}
	if !visit(n) {
		return
	}
	for i := uint(0); i < n.ChildCount(); i++ {
		Walk(n.Child(i), visit)
	}
}

// Registry maps languages and file extensions to backends.
type Registry struct {
	mu    sync.RWMutex
	byLng map[string]Backend
	byExt map[string]Backend
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byLng: make(map[string]Backend),
		byExt: make(map[string]Backend),
	}
}

// Register adds a backend, replacing any prior registration for the same
// language or extensions.
func (r *Registry) Register(b Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byLng[b.Language()] = b
	for _, ext := range b.Extensions() {
		r.byExt[ext] = b
	}
}

// ForLanguage returns the backend registered for lang.
func (r *Registry) ForLanguage(lang string) (Backend, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.byLng[lang]
	return b, ok
}

// ForExtension returns the backend handling files with ext (including dot).
func (r *Registry) ForExtension(ext string) (Backend, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.byExt[ext]
	return b, ok
}

// Languages lists registered language names.
func (r *Registry) Languages() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byLng))
	for lang := range r.byLng {
		out = append(out, lang)
	}
	return out
}
