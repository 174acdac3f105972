// Package resolver builds the project symbol table and answers name
// resolution queries: exact and suffix lookup, wildcard search, and
// reference enumeration with scope-aware shadowing.
package resolver

import (
	"context"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"github.com/standardbeagle/refract/internal/backend"
	"github.com/standardbeagle/refract/internal/refactorerr"
	"github.com/standardbeagle/refract/internal/source"
	"github.com/standardbeagle/refract/internal/types"
)

// fileIndex caches the per-file facts resolution needs.
type fileIndex struct {
	file     *source.File
	idents   []backend.Ident
	bindings map[string]bool   // scopeKey + "\x00" + name
	imports  map[string]string // local name -> qualified target
}

// Resolver is an immutable index over one snapshot. Build a new one
// after the snapshot changes.
type Resolver struct {
	snap    *source.Snapshot
	symbols []types.Symbol
	byQName map[string]*types.Symbol
	files   map[string]*fileIndex
	log     *zap.Logger
}

// New indexes every definition and identifier in the snapshot.
func New(snap *source.Snapshot, log *zap.Logger) *Resolver {
	r := &Resolver{
		snap:    snap,
		byQName: make(map[string]*types.Symbol),
		files:   make(map[string]*fileIndex),
		log:     log,
	}
	for _, path := range snap.SortedPaths() {
		f := snap.Files[path]
		for _, d := range f.Backend.Definitions(f.Tree) {
			qname := qualify(f.Module, d.Scope, d.Name)
			r.symbols = append(r.symbols, types.Symbol{
				Name:          d.Name,
				QualifiedName: qname,
				Kind:          d.Kind,
				File:          f.Path,
				NameRange:     d.NameRange,
				DefRange:      d.DefRange,
				Line:          d.Line,
				ScopeChain:    d.Scope,
				Docstring:     d.Docstring,
			})
		}
		fi := &fileIndex{
			file:     f,
			idents:   f.Backend.Identifiers(f.Tree),
			bindings: make(map[string]bool),
			imports:  make(map[string]string),
		}
		for _, id := range fi.idents {
			if id.Bind {
				fi.bindings[bindKey(id.Scope, id.Name)] = true
			}
		}
		for _, imp := range f.Backend.Imports(f.Tree) {
			if len(imp.Names) > 0 {
				for local, member := range imp.Names {
					fi.imports[local] = imp.Module + "." + member
				}
				continue
			}
			local := imp.Alias
			if local == "" {
				// import a.b binds the top-level package name
				local = strings.SplitN(imp.Module, ".", 2)[0]
			}
			fi.imports[local] = imp.Module
		}
		r.files[path] = fi
	}
	for i := range r.symbols {
		sym := &r.symbols[i]
		if _, exists := r.byQName[sym.QualifiedName]; !exists {
			r.byQName[sym.QualifiedName] = sym
		}
	}
	log.Debug("symbol table built",
		zap.Int("symbols", len(r.symbols)),
		zap.Int("files", len(r.files)))
	return r
}

func qualify(module string, scope []string, name string) string {
	parts := make([]string, 0, len(scope)+2)
	parts = append(parts, module)
	parts = append(parts, scope...)
	parts = append(parts, name)
	return strings.Join(parts, ".")
}

func bindKey(scope []string, name string) string {
	return strings.Join(scope, ".") + "\x00" + name
}

// Symbols returns every indexed symbol.
func (r *Resolver) Symbols() []types.Symbol {
	return r.symbols
}

// Lookup returns the symbol with exactly the given qualified name.
func (r *Resolver) Lookup(qname string) (*types.Symbol, bool) {
	s, ok := r.byQName[qname]
	return s, ok
}

// Resolve maps a name to exactly one symbol. The name may be fully
// qualified or any dotted suffix of a qualified name. A suffix that
// matches several symbols is ambiguous; an unmatched name yields a
// not-found error carrying near-miss suggestions.
func (r *Resolver) Resolve(name string) (*types.Symbol, error) {
	if s, ok := r.byQName[name]; ok {
		return s, nil
	}
	suffix := "." + name
	var matches []*types.Symbol
	for i := range r.symbols {
		if strings.HasSuffix(r.symbols[i].QualifiedName, suffix) {
			matches = append(matches, &r.symbols[i])
		}
	}
	switch len(matches) {
	case 0:
		return nil, refactorerr.NewSymbolNotFound(name, r.Suggest(name))
	case 1:
		return matches[0], nil
	default:
		candidates := make([]string, len(matches))
		for i, m := range matches {
			candidates[i] = m.QualifiedName
		}
		sort.Slice(candidates, func(i, j int) bool {
			if len(candidates[i]) != len(candidates[j]) {
				return len(candidates[i]) < len(candidates[j])
			}
			return candidates[i] < candidates[j]
		})
		return nil, refactorerr.NewAmbiguousSymbol(name, candidates)
	}
}

// Find returns symbols matching pattern, case-insensitively. Patterns
// with glob metacharacters match against bare and qualified names;
// plain patterns match as substrings. total counts all matches even
// when the result is truncated to limit.
func (r *Resolver) Find(ctx context.Context, pattern string, limit int) (matches []types.Symbol, total int, partial bool) {
	p := strings.ToLower(pattern)
	hasGlob := strings.ContainsAny(p, "*?[")

	var all []types.Symbol
	for i := range r.symbols {
		if i%256 == 0 && ctx.Err() != nil {
			partial = true
			break
		}
		sym := r.symbols[i]
		name := strings.ToLower(sym.Name)
		qname := strings.ToLower(sym.QualifiedName)
		var ok bool
		if hasGlob {
			m1, _ := doublestar.Match(p, name)
			m2, _ := doublestar.Match(p, qname)
			ok = m1 || m2
		} else {
			ok = strings.Contains(name, p) || strings.Contains(qname, p)
		}
		if ok {
			all = append(all, sym)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].QualifiedName < all[j].QualifiedName
	})
	total = len(all)
	if limit > 0 && len(all) > limit {
		all = all[:limit]
		partial = true
	}
	return all, total, partial
}

// References returns every occurrence resolving to sym, definition
// site first, then by file and offset.
func (r *Resolver) References(sym *types.Symbol) []types.Reference {
	var refs []types.Reference
	for _, path := range r.snap.SortedPaths() {
		fi := r.files[path]
		for _, id := range fi.idents {
			if id.Name != sym.Name {
				continue
			}
			if r.resolveIdent(fi, id) != sym.QualifiedName {
				continue
			}
			refs = append(refs, types.Reference{
				QualifiedName: sym.QualifiedName,
				File:          fi.file.Path,
				Range:         id.Range,
				Line:          id.Line,
				IsDefinition:  fi.file.Path == sym.File && id.Range == sym.NameRange,
			})
		}
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].IsDefinition != refs[j].IsDefinition {
			return refs[i].IsDefinition
		}
		if refs[i].File != refs[j].File {
			return refs[i].File < refs[j].File
		}
		return refs[i].Range.Start < refs[j].Range.Start
	})
	return refs
}

// resolveIdent maps one identifier occurrence to the qualified name it
// denotes, or "" when it cannot be resolved to a project symbol.
func (r *Resolver) resolveIdent(fi *fileIndex, id backend.Ident) string {
	module := fi.file.Module

	// from-import member tokens name the symbol in its home module.
	if id.From != "" {
		qname := id.From + "." + id.Name
		if _, exists := r.byQName[qname]; exists {
			return qname
		}
		return ""
	}

	if id.Attr {
		// obj.name resolves through a whole-module import of obj, or
		// through the enclosing class for self and cls receivers.
		if id.Obj != "" && id.Obj != "self" && id.Obj != "cls" {
			if target, ok := fi.imports[id.Obj]; ok {
				qname := target + "." + id.Name
				if _, exists := r.byQName[qname]; exists {
					return qname
				}
			}
			return ""
		}
		for i := len(id.Scope); i > 0; i-- {
			qname := qualify(module, id.Scope[:i], id.Name)
			if _, exists := r.byQName[qname]; exists {
				return qname
			}
		}
		return ""
	}

	// Innermost scope wins: a local binding shadows any outer symbol.
	for i := len(id.Scope); i >= 0; i-- {
		scope := id.Scope[:i]
		qname := qualify(module, scope, id.Name)
		if fi.bindings[bindKey(scope, id.Name)] {
			return qname
		}
		if _, exists := r.byQName[qname]; exists {
			return qname
		}
	}
	if target, ok := fi.imports[id.Name]; ok {
		if _, exists := r.byQName[target]; exists {
			return target
		}
	}
	return ""
}

// BoundAt reports whether name has a binding or symbol visible at the
// given scope chain within file. Used for conflict detection.
func (r *Resolver) BoundAt(file string, scope []string, name string) bool {
	fi, ok := r.files[file]
	if !ok {
		return false
	}
	for i := len(scope); i >= 0; i-- {
		if fi.bindings[bindKey(scope[:i], name)] {
			return true
		}
		if _, exists := r.byQName[qualify(fi.file.Module, scope[:i], name)]; exists {
			return true
		}
	}
	if _, ok := fi.imports[name]; ok {
		return true
	}
	return false
}

// BoundAnywhereIn reports whether name is bound at any scope within
// file, by a local binding, an import, or a symbol defined in the
// file's module. Deliberately coarse: rename conflict checks prefer a
// false positive over a silent capture.
func (r *Resolver) BoundAnywhereIn(file string, name string) bool {
	fi, ok := r.files[file]
	if !ok {
		return false
	}
	suffix := "\x00" + name
	for key := range fi.bindings {
		if strings.HasSuffix(key, suffix) {
			return true
		}
	}
	if _, ok := fi.imports[name]; ok {
		return true
	}
	for i := range r.symbols {
		if r.symbols[i].File == file && r.symbols[i].Name == name {
			return true
		}
	}
	return false
}

// FileIndex returns the identifier occurrences recorded for file.
func (r *Resolver) FileIndex(file string) ([]backend.Ident, bool) {
	fi, ok := r.files[file]
	if !ok {
		return nil, false
	}
	return fi.idents, true
}
