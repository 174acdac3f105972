// Package anonelem discovers unnamed code elements inside named
// functions and assigns them stable synthetic ids of the form
// {enclosing_qualified_name}.{kind}_{ordinal}. Ordinals follow source
// order per kind, starting at 1, counted over a pre-order walk.
package anonelem

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/standardbeagle/refract/internal/backend"
	"github.com/standardbeagle/refract/internal/source"
	"github.com/standardbeagle/refract/internal/types"
)

var idRe = regexp.MustCompile(`^(.+)\.(lambda|expression|block)_([1-9][0-9]*)$`)

// ParseID splits a synthetic element id into the enclosing function's
// qualified name, element kind, and ordinal.
func ParseID(id string) (scope string, kind types.ElementKind, ordinal int, ok bool) {
	m := idRe.FindStringSubmatch(id)
	if m == nil {
		return "", "", 0, false
	}
	n, err := strconv.Atoi(m[3])
	if err != nil {
		return "", "", 0, false
	}
	return m[1], types.ElementKind(m[2]), n, true
}

// IsElementID reports whether s has the synthetic id shape.
func IsElementID(s string) bool {
	return idRe.MatchString(s)
}

// Discover lists the anonymous elements inside fn, in discovery order.
// Lambdas and expressions are maximal: elements nested inside an
// already counted lambda or expression are not listed separately.
// Blocks do not suppress their contents.
func Discover(f *source.File, fn *types.Symbol) ([]types.AnonymousElement, error) {
	fnNode := FunctionNode(f, fn)
	if fnNode == nil {
		return nil, fmt.Errorf("definition node for %s not found in %s", fn.QualifiedName, f.Rel)
	}
	body := fnNode.ChildByFieldName("body")
	if body == nil {
		return nil, nil
	}

	var elements []types.AnonymousElement
	counts := map[types.ElementKind]int{}
	record := func(kind types.ElementKind, n *tree_sitter.Node) {
		counts[kind]++
		elements = append(elements, types.AnonymousElement{
			ID:   fmt.Sprintf("%s.%s_%d", fn.QualifiedName, kind, counts[kind]),
			Kind: kind,
			File: f.Path,
			Range: types.ByteRange{
				Start: int(n.StartByte()),
				End:   int(n.EndByte()),
			},
			Line: int(n.StartPosition().Row) + 1,
			Code: condense(f.Text(n)),
		})
	}

	b := f.Backend
	backend.Walk(body, func(n *tree_sitter.Node) bool {
		// Nested named definitions are their own discovery scopes.
		// The walk root is a body block, never a definition node, so
		// this cannot prune the function being discovered.
		if isNamedDefinition(n) {
			return false
		}
		if b.IsLambda(n) {
			record(types.ElementLambda, n)
			return false
		}
		if b.IsExtractableExpression(f.Tree, n) {
			record(types.ElementExpression, n)
			return false
		}
		if b.IsBlock(n) {
			record(types.ElementBlock, n)
		}
		return true
	})
	return elements, nil
}

// Locate finds the element with the given id inside fn, or nil when the
// ordinal does not exist.
func Locate(f *source.File, fn *types.Symbol, id string) (*types.AnonymousElement, error) {
	elements, err := Discover(f, fn)
	if err != nil {
		return nil, err
	}
	for i := range elements {
		if elements[i].ID == id {
			return &elements[i], nil
		}
	}
	return nil, nil
}

func isNamedDefinition(n *tree_sitter.Node) bool {
	switch n.Kind() {
	case "function_definition", "class_definition", "function_declaration", "method_declaration":
		return true
	}
	return false
}

// FunctionNode returns the definition node whose span is exactly the
// symbol's definition range.
func FunctionNode(f *source.File, fn *types.Symbol) *tree_sitter.Node {
	var found *tree_sitter.Node
	backend.Walk(f.Tree.Root(), func(n *tree_sitter.Node) bool {
		if found != nil {
			return false
		}
		if int(n.StartByte()) == fn.DefRange.Start && int(n.EndByte()) == fn.DefRange.End && isNamedDefinition(n) {
			found = n
			return false
		}
		return int(n.StartByte()) <= fn.DefRange.Start && int(n.EndByte()) >= fn.DefRange.End
	})
	return found
}

// condense flattens an element's source text to a single display line.
func condense(code string) string {
	lines := strings.Split(code, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	return strings.Join(lines, " ")
}
