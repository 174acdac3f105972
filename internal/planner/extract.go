package planner

import (
	"fmt"
	"sort"
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/standardbeagle/refract/internal/anonelem"
	"github.com/standardbeagle/refract/internal/backend"
	"github.com/standardbeagle/refract/internal/refactorerr"
	"github.com/standardbeagle/refract/internal/resolver"
	"github.com/standardbeagle/refract/internal/source"
	"github.com/standardbeagle/refract/internal/types"
)

// Extraction is a planned extract operation: the change set plus the
// rendered definition for reporting.
type Extraction struct {
	ChangeSet *types.ChangeSet
	Code      string
	Params    []string
}

// Names that resolve without being project symbols. Reads of these are
// never captured as parameters.
var pythonBuiltins = map[string]bool{
	"abs": true, "all": true, "any": true, "bool": true, "bytes": true,
	"callable": true, "dict": true, "dir": true, "enumerate": true,
	"filter": true, "float": true, "format": true, "frozenset": true,
	"getattr": true, "hasattr": true, "hash": true, "id": true,
	"int": true, "isinstance": true, "issubclass": true, "iter": true,
	"len": true, "list": true, "map": true, "max": true, "min": true,
	"next": true, "object": true, "open": true, "print": true,
	"property": true, "range": true, "repr": true, "reversed": true,
	"round": true, "set": true, "setattr": true, "slice": true,
	"sorted": true, "staticmethod": true, "classmethod": true,
	"str": true, "sum": true, "super": true, "tuple": true,
	"type": true, "vars": true, "zip": true,
	"Exception": true, "ValueError": true, "TypeError": true,
	"KeyError": true, "IndexError": true, "AttributeError": true,
	"RuntimeError": true, "StopIteration": true, "NotImplementedError": true,
}

// PlanExtractElement extracts the anonymous element el out of fn into a
// new module-level function named newName.
func PlanExtractElement(f *source.File, res *resolver.Resolver, fn *types.Symbol, el *types.AnonymousElement, newName string) (*Extraction, error) {
	switch el.Kind {
	case types.ElementLambda:
		return planExtractLambda(f, res, fn, el, newName)
	case types.ElementExpression:
		return planExtractExpression(f, res, fn, el, newName)
	case types.ElementBlock:
		return planExtractBlock(f, res, fn, el, newName)
	default:
		return nil, refactorerr.NewValidation("source", fmt.Sprintf("unknown element kind %q", el.Kind))
	}
}

func planExtractLambda(f *source.File, res *resolver.Resolver, fn *types.Symbol, el *types.AnonymousElement, newName string) (*Extraction, error) {
	node := f.NodeAt(el.Range)
	if node == nil || !f.Backend.IsLambda(node) {
		return nil, refactorerr.NewExtractionShape("element range no longer covers a lambda")
	}
	params := f.Backend.LambdaParams(f.Tree, node)
	body := node.ChildByFieldName("body")
	if body == nil {
		return nil, refactorerr.NewExtractionShape("lambda has no body")
	}

	bound := map[string]bool{}
	for _, p := range params {
		bound = setAdd(bound, p)
	}
	frees := freeVariables(f, res, fn, rangeOfNode(body), bound)

	allParams := append(append([]string{}, params...), frees...)
	code := f.Backend.RenderFunction(newName, allParams, []string{"return " + f.Text(body)}, "")

	// Without captures the function is a drop-in value for the lambda.
	// With captures the replacement is a closure applying them.
	replacement := newName
	if len(frees) > 0 {
		args := append(append([]string{}, params...), frees...)
		replacement = "lambda " + strings.Join(params, ", ") + ": " + f.Backend.RenderCall(newName, args)
	}

	cs, err := buildChangeSet(f, fn, code, el.Range, replacement)
	if err != nil {
		return nil, err
	}
	return &Extraction{ChangeSet: cs, Code: code, Params: allParams}, nil
}

func planExtractExpression(f *source.File, res *resolver.Resolver, fn *types.Symbol, el *types.AnonymousElement, newName string) (*Extraction, error) {
	frees := freeVariables(f, res, fn, el.Range, nil)
	exprText := string(f.Content[el.Range.Start:el.Range.End])
	code := f.Backend.RenderFunction(newName, frees, []string{"return " + exprText}, "")
	replacement := f.Backend.RenderCall(newName, frees)

	cs, err := buildChangeSet(f, fn, code, el.Range, replacement)
	if err != nil {
		return nil, err
	}
	return &Extraction{ChangeSet: cs, Code: code, Params: frees}, nil
}

func planExtractBlock(f *source.File, res *resolver.Resolver, fn *types.Symbol, el *types.AnonymousElement, newName string) (*Extraction, error) {
	node := f.NodeAt(el.Range)
	if node == nil {
		return nil, refactorerr.NewExtractionShape("element range no longer covers a block")
	}
	if containsReturn(node) {
		return nil, refactorerr.NewExtractionShape("block contains a return statement and cannot be extracted")
	}

	frees := freeVariables(f, res, fn, el.Range, nil)
	escaped := escapedBindings(f, res, fn, el.Range)

	bodyLines := dedent(string(f.Content[el.Range.Start:el.Range.End]), indentAt(f.Content, el.Range.Start))
	if len(escaped) > 0 {
		bodyLines = append(bodyLines, "return "+strings.Join(escaped, ", "))
	}
	code := f.Backend.RenderFunction(newName, frees, bodyLines, "")

	call := f.Backend.RenderCall(newName, frees)
	replacement := call
	if len(escaped) > 0 {
		replacement = strings.Join(escaped, ", ") + " = " + call
	}

	cs, err := buildChangeSet(f, fn, code, el.Range, replacement)
	if err != nil {
		return nil, err
	}
	return &Extraction{ChangeSet: cs, Code: code, Params: frees}, nil
}

// PlanExtractFunction extracts the entire body of fn into newName and
// leaves fn delegating to it.
func PlanExtractFunction(f *source.File, res *resolver.Resolver, fn *types.Symbol, newName string) (*Extraction, error) {
	fnNode := anonelem.FunctionNode(f, fn)
	if fnNode == nil {
		return nil, refactorerr.NewExtractionShape("definition node not found")
	}
	body := fnNode.ChildByFieldName("body")
	if body == nil {
		return nil, refactorerr.NewExtractionShape("definition has no body")
	}
	params := functionParams(f, fnNode)

	bodyRange := rangeOfNode(body)
	bodyLines := dedent(string(f.Content[bodyRange.Start:bodyRange.End]), indentAt(f.Content, bodyRange.Start))
	code := f.Backend.RenderFunction(newName, params, bodyLines, "")
	replacement := "return " + f.Backend.RenderCall(newName, params)

	cs, err := buildChangeSet(f, fn, code, bodyRange, replacement)
	if err != nil {
		return nil, err
	}
	return &Extraction{ChangeSet: cs, Code: code, Params: params}, nil
}

// buildChangeSet assembles the two-edit plan: insert the new definition
// before the enclosing top-level statement, replace the element range.
func buildChangeSet(f *source.File, fn *types.Symbol, code string, target types.ByteRange, replacement string) (*types.ChangeSet, error) {
	insertAt := topLevelStart(f, fn)
	cs := &types.ChangeSet{}
	cs.Add(types.Edit{
		File:        f.Path,
		Range:       types.ByteRange{Start: insertAt, End: insertAt},
		Replacement: code + "\n",
	})
	cs.Add(types.Edit{
		File:        f.Path,
		Range:       target,
		Replacement: replacement,
	})
	if err := cs.Validate(); err != nil {
		return nil, err
	}
	return cs, nil
}

// topLevelStart returns the byte offset of the module-level statement
// enclosing fn, where the new definition is inserted.
func topLevelStart(f *source.File, fn *types.Symbol) int {
	root := f.Tree.Root()
	for i := uint(0); i < root.ChildCount(); i++ {
		c := root.Child(i)
		if c == nil {
			continue
		}
		if int(c.StartByte()) <= fn.DefRange.Start && int(c.EndByte()) >= fn.DefRange.End {
			return int(c.StartByte())
		}
	}
	return fn.DefRange.Start
}

// freeVariables returns names read inside r that are neither bound
// within it nor visible at module scope, ordered by first read.
func freeVariables(f *source.File, res *resolver.Resolver, fn *types.Symbol, r types.ByteRange, extraBound map[string]bool) []string {
	idents, ok := res.FileIndex(f.Path)
	if !ok {
		return nil
	}
	bound := map[string]bool{}
	for name := range extraBound {
		bound[name] = true
	}
	for _, id := range idents {
		if id.Bind && within(id.Range, r) {
			bound[id.Name] = true
		}
	}

	var frees []string
	seen := map[string]bool{}
	sorted := make([]backend.Ident, 0)
	for _, id := range idents {
		if within(id.Range, r) {
			sorted = append(sorted, id)
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Range.Start < sorted[j].Range.Start })
	for _, id := range sorted {
		if id.Attr || id.Bind || seen[id.Name] {
			continue
		}
		seen[id.Name] = true
		if bound[id.Name] || pythonBuiltins[id.Name] {
			continue
		}
		if res.BoundAt(f.Path, nil, id.Name) {
			continue
		}
		frees = append(frees, id.Name)
	}
	return frees
}

// escapedBindings returns names assigned inside r and read after it
// within the same function, in assignment order.
func escapedBindings(f *source.File, res *resolver.Resolver, fn *types.Symbol, r types.ByteRange) []string {
	idents, ok := res.FileIndex(f.Path)
	if !ok {
		return nil
	}
	type binding struct {
		name  string
		start int
	}
	var bound []binding
	seen := map[string]bool{}
	for _, id := range idents {
		if id.Bind && within(id.Range, r) && !seen[id.Name] {
			seen[id.Name] = true
			bound = append(bound, binding{id.Name, id.Range.Start})
		}
	}
	sort.Slice(bound, func(i, j int) bool { return bound[i].start < bound[j].start })

	var escaped []string
	for _, b := range bound {
		for _, id := range idents {
			if id.Name != b.name || id.Attr || id.Bind {
				continue
			}
			if id.Range.Start >= r.End && id.Range.End <= fn.DefRange.End {
				escaped = append(escaped, b.name)
				break
			}
		}
	}
	return escaped
}

func functionParams(f *source.File, fnNode *tree_sitter.Node) []string {
	params := fnNode.ChildByFieldName("parameters")
	if params == nil {
		return nil
	}
	var names []string
	for i := uint(0); i < params.ChildCount(); i++ {
		c := params.Child(i)
		if c == nil {
			continue
		}
		switch c.Kind() {
		case "identifier":
			names = append(names, f.Text(c))
		case "default_parameter", "typed_parameter", "typed_default_parameter":
			if nn := c.ChildByFieldName("name"); nn != nil {
				names = append(names, f.Text(nn))
			} else if c.ChildCount() > 0 && c.Child(0).Kind() == "identifier" {
				names = append(names, f.Text(c.Child(0)))
			}
		}
	}
	return names
}

func containsReturn(n *tree_sitter.Node) bool {
	found := false
	backend.Walk(n, func(c *tree_sitter.Node) bool {
		switch c.Kind() {
		case "return_statement":
			found = true
			return false
		case "function_definition", "lambda", "func_literal":
			// Returns inside nested callables stay local to them.
			return false
		}
		return !found
	})
	return found
}

func within(r, outer types.ByteRange) bool {
	return r.Start >= outer.Start && r.End <= outer.End
}

func rangeOfNode(n *tree_sitter.Node) types.ByteRange {
	return types.ByteRange{Start: int(n.StartByte()), End: int(n.EndByte())}
}

// indentAt returns the whitespace prefix of the line containing pos.
func indentAt(content []byte, pos int) string {
	start := pos
	for start > 0 && content[start-1] != '\n' {
		start--
	}
	end := start
	for end < len(content) && (content[end] == ' ' || content[end] == '\t') {
		end++
	}
	return string(content[start:end])
}

// dedent strips base indentation from every line after the first.
func dedent(code, base string) []string {
	lines := strings.Split(code, "\n")
	out := make([]string, 0, len(lines))
	for i, line := range lines {
		if i == 0 {
			out = append(out, line)
			continue
		}
		if strings.TrimSpace(line) == "" {
			out = append(out, "")
			continue
		}
		out = append(out, strings.TrimPrefix(line, base))
	}
	// Trailing blank lines add nothing to the new body.
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return out
}

func setAdd(m map[string]bool, k string) map[string]bool {
	if m == nil {
		m = map[string]bool{}
	}
	m[k] = true
	return m
}
