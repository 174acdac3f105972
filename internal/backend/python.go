package backend

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"

	"github.com/standardbeagle/refract/internal/types"
)

// Python is the tree-sitter backed Python backend. It supports the full
// capability set including element extraction.
type Python struct {
	mu     sync.Mutex
	parser *tree_sitter.Parser
}

// NewPython builds a Python backend with its own parser instance.
func NewPython() (*Python, error) {
	parser := tree_sitter.NewParser()
	if err := parser.SetLanguage(tree_sitter.NewLanguage(tree_sitter_python.Language())); err != nil {
		return nil, fmt.Errorf("setting python grammar: %w", err)
	}
	return &Python{parser: parser}, nil
}

func (p *Python) Language() string { return "python" }

func (p *Python) Extensions() []string { return []string{".py"} }

func (p *Python) Capabilities() []types.Capability {
	return []types.Capability{
		types.CapAnalyzeSymbol,
		types.CapFindSymbols,
		types.CapShowFunction,
		types.CapRenameSymbol,
		types.CapExtractElement,
	}
}

// Parse parses content into a tree. The content is copied because the
// tree-sitter C layer retains the buffer for node text access.
func (p *Python) Parse(path string, content []byte) (*Tree, error) {
	contentCopy := make([]byte, len(content))
	copy(contentCopy, content)

	p.mu.Lock()
	tree := p.parser.Parse(contentCopy, nil)
	p.mu.Unlock()
	if tree == nil {
		return nil, fmt.Errorf("parser returned no tree for %s", path)
	}
	return &Tree{TS: tree, Content: contentCopy, Path: path}, nil
}

// scopeFrame tracks one enclosing named scope during traversal.
type scopeFrame struct {
	name    string
	isClass bool
}

func frameNames(frames []scopeFrame) []string {
	if len(frames) == 0 {
		return nil
	}
	out := make([]string, len(frames))
	for i, f := range frames {
		out[i] = f.name
	}
	return out
}

func (p *Python) Definitions(t *Tree) []Definition {
	var defs []Definition
	p.collectDefs(t, t.Root(), nil, &defs)
	return defs
}

func (p *Python) collectDefs(t *Tree, n *tree_sitter.Node, frames []scopeFrame, out *[]Definition) {
	for i := uint(0); i < n.ChildCount(); i++ {
		child := n.Child(i)
		if child == nil {
			continue
		}
		switch child.Kind() {
		case "function_definition":
			nameNode := child.ChildByFieldName("name")
			if nameNode == nil {
				continue
			}
			name := t.Text(nameNode)
			kind := types.KindFunction
			if len(frames) > 0 && frames[len(frames)-1].isClass {
				kind = types.KindMethod
			}
			*out = append(*out, Definition{
				Name:      name,
				Kind:      kind,
				NameRange: nodeRange(nameNode),
				DefRange:  nodeRange(child),
				Line:      int(child.StartPosition().Row) + 1,
				Scope:     frameNames(frames),
				Docstring: p.docstring(t, child),
			})
			if body := child.ChildByFieldName("body"); body != nil {
				p.collectDefs(t, body, append(frames, scopeFrame{name: name}), out)
			}
		case "class_definition":
			nameNode := child.ChildByFieldName("name")
			if nameNode == nil {
				continue
			}
			name := t.Text(nameNode)
			*out = append(*out, Definition{
				Name:      name,
				Kind:      types.KindClass,
				NameRange: nodeRange(nameNode),
				DefRange:  nodeRange(child),
				Line:      int(child.StartPosition().Row) + 1,
				Scope:     frameNames(frames),
				Docstring: p.docstring(t, child),
			})
			if body := child.ChildByFieldName("body"); body != nil {
				p.collectDefs(t, body, append(frames, scopeFrame{name: name, isClass: true}), out)
			}
		case "expression_statement":
			// Module and class level assignments declare variables.
			if len(frames) > 0 && !frames[len(frames)-1].isClass {
				continue
			}
			for j := uint(0); j < child.ChildCount(); j++ {
				assign := child.Child(j)
				if assign == nil || assign.Kind() != "assignment" {
					continue
				}
				left := assign.ChildByFieldName("left")
				if left == nil {
					continue
				}
				for _, target := range assignmentTargets(left) {
					name := t.Text(target)
					kind := types.KindVariable
					if name == strings.ToUpper(name) && name != strings.ToLower(name) {
						kind = types.KindConstant
					}
					*out = append(*out, Definition{
						Name:      name,
						Kind:      kind,
						NameRange: nodeRange(target),
						DefRange:  nodeRange(assign),
						Line:      int(target.StartPosition().Row) + 1,
						Scope:     frameNames(frames),
					})
				}
			}
		case "decorated_definition", "if_statement", "try_statement", "while_statement", "for_statement", "with_statement", "block", "else_clause", "elif_clause", "except_clause", "finally_clause":
			p.collectDefs(t, child, frames, out)
		}
	}
}

// assignmentTargets returns the bare identifier targets of an assignment
// left side, descending into tuple patterns.
func assignmentTargets(left *tree_sitter.Node) []*tree_sitter.Node {
	switch left.Kind() {
	case "identifier":
		return []*tree_sitter.Node{left}
	case "pattern_list", "tuple_pattern":
		var out []*tree_sitter.Node
		for i := uint(0); i < left.ChildCount(); i++ {
			c := left.Child(i)
			if c != nil && c.Kind() == "identifier" {
				out = append(out, c)
			}
		}
		return out
	default:
		return nil
	}
}

// docstring extracts the leading string literal of a def or class body.
func (p *Python) docstring(t *Tree, def *tree_sitter.Node) string {
	body := def.ChildByFieldName("body")
	if body == nil {
		return ""
	}
	for i := uint(0); i < body.ChildCount(); i++ {
		c := body.Child(i)
		if c == nil || !c.IsNamed() {
			continue
		}
		if c.Kind() != "expression_statement" || c.ChildCount() == 0 {
			return ""
		}
		s := c.Child(0)
		if s == nil || s.Kind() != "string" {
			return ""
		}
		return stripStringQuotes(t.Text(s))
	}
	return ""
}

func stripStringQuotes(s string) string {
	for _, q := range []string{`"""`, `'''`, `"`, `'`} {
		if strings.HasPrefix(s, q) && strings.HasSuffix(s, q) && len(s) >= 2*len(q) {
			return s[len(q) : len(s)-len(q)]
		}
	}
	return s
}

func (p *Python) Identifiers(t *Tree) []Ident {
	var idents []Ident
	p.collectIdents(t, t.Root(), nil, &idents)
	return idents
}

func (p *Python) collectIdents(t *Tree, n *tree_sitter.Node, frames []scopeFrame, out *[]Ident) {
	kind := n.Kind()

	// Import clauses bind names but are modeled through Imports. The
	// member tokens of from-imports are kept as occurrences so renames
	// can rewrite the clause itself.
	if kind == "import_statement" || kind == "future_import_statement" {
		return
	}
	if kind == "import_from_statement" {
		module := ""
		if mod := n.ChildByFieldName("module_name"); mod != nil {
			module = t.Text(mod)
		}
		for i := uint(0); i < n.ChildCount(); i++ {
			c := n.Child(i)
			if c == nil {
				continue
			}
			if mod := n.ChildByFieldName("module_name"); mod != nil && c.StartByte() == mod.StartByte() {
				continue
			}
			var member *tree_sitter.Node
			switch c.Kind() {
			case "dotted_name":
				member = c
			case "aliased_import":
				member = c.ChildByFieldName("name")
			}
			if member == nil || member.ChildCount() > 1 {
				continue
			}
			*out = append(*out, Ident{
				Name:  t.Text(member),
				Range: nodeRange(member),
				Line:  int(member.StartPosition().Row) + 1,
				From:  module,
			})
		}
		return
	}

	if kind == "identifier" {
		*out = append(*out, p.identAt(t, n, frames))
		return
	}

	nextFrames := frames
	switch kind {
	case "function_definition", "class_definition":
		if nameNode := n.ChildByFieldName("name"); nameNode != nil {
			nextFrames = append(frames, scopeFrame{
				name:    t.Text(nameNode),
				isClass: kind == "class_definition",
			})
		}
	}

	for i := uint(0); i < n.ChildCount(); i++ {
		child := n.Child(i)
		if child == nil {
			continue
		}
		// The def or class name stays in the outer scope.
		if (kind == "function_definition" || kind == "class_definition") && child.Kind() == "identifier" {
			p.collectIdents(t, child, frames, out)
			continue
		}
		p.collectIdents(t, child, nextFrames, out)
	}
}

func (p *Python) identAt(t *Tree, n *tree_sitter.Node, frames []scopeFrame) Ident {
	id := Ident{
		Name:  t.Text(n),
		Range: nodeRange(n),
		Line:  int(n.StartPosition().Row) + 1,
		Scope: frameNames(frames),
	}
	parent := n.Parent()
	if parent == nil {
		return id
	}
	switch parent.Kind() {
	case "attribute":
		if attr := parent.ChildByFieldName("attribute"); attr != nil && attr.StartByte() == n.StartByte() {
			id.Attr = true
			if obj := parent.ChildByFieldName("object"); obj != nil && obj.Kind() == "identifier" {
				id.Obj = t.Text(obj)
			}
		}
	case "function_definition", "class_definition":
		if nameNode := parent.ChildByFieldName("name"); nameNode != nil && nameNode.StartByte() == n.StartByte() {
			id.Bind = true
		}
	case "parameters", "lambda_parameters":
		id.Bind = true
	case "default_parameter", "typed_parameter", "typed_default_parameter":
		if nameNode := parent.ChildByFieldName("name"); nameNode != nil && nameNode.StartByte() == n.StartByte() {
			id.Bind = true
		} else if parent.Kind() == "typed_parameter" && parent.Child(0) != nil && parent.Child(0).StartByte() == n.StartByte() {
			id.Bind = true
		}
	case "assignment", "augmented_assignment":
		if left := parent.ChildByFieldName("left"); left != nil && left.StartByte() == n.StartByte() {
			id.Bind = true
		}
	case "pattern_list", "tuple_pattern":
		gp := parent.Parent()
		if gp != nil && (gp.Kind() == "assignment" || gp.Kind() == "for_statement") {
			id.Bind = true
		}
	case "for_statement":
		if left := parent.ChildByFieldName("left"); left != nil && left.StartByte() == n.StartByte() {
			id.Bind = true
		}
	case "as_pattern_target", "named_expression":
		id.Bind = true
	case "global_statement", "nonlocal_statement":
		id.Bind = true
	}
	return id
}

func (p *Python) Imports(t *Tree) []Import {
	var imports []Import
	Walk(t.Root(), func(n *tree_sitter.Node) bool {
		switch n.Kind() {
		case "import_statement":
			for i := uint(0); i < n.ChildCount(); i++ {
				c := n.Child(i)
				if c == nil {
					continue
				}
				switch c.Kind() {
				case "dotted_name":
					imports = append(imports, Import{Module: t.Text(c)})
				case "aliased_import":
					imp := Import{}
					if mod := c.ChildByFieldName("name"); mod != nil {
						imp.Module = t.Text(mod)
					}
					if alias := c.ChildByFieldName("alias"); alias != nil {
						imp.Alias = t.Text(alias)
					}
					imports = append(imports, imp)
				}
			}
			return false
		case "import_from_statement":
			imp := Import{Names: map[string]string{}}
			if mod := n.ChildByFieldName("module_name"); mod != nil {
				imp.Module = t.Text(mod)
			}
			for i := uint(0); i < n.ChildCount(); i++ {
				c := n.Child(i)
				if c == nil {
					continue
				}
				// Skip the module_name itself; remaining dotted_names are members.
				if mod := n.ChildByFieldName("module_name"); mod != nil && c.StartByte() == mod.StartByte() {
					continue
				}
				switch c.Kind() {
				case "dotted_name":
					name := t.Text(c)
					imp.Names[name] = name
				case "aliased_import":
					var member, alias string
					if nn := c.ChildByFieldName("name"); nn != nil {
						member = t.Text(nn)
					}
					if an := c.ChildByFieldName("alias"); an != nil {
						alias = t.Text(an)
					}
					if alias != "" && member != "" {
						imp.Names[alias] = member
					}
				}
			}
			imports = append(imports, imp)
			return false
		}
		return true
	})
	return imports
}

// IsLambda matches the lambda expression node, not the anonymous
// "lambda" keyword token that shares its kind string.
func (p *Python) IsLambda(n *tree_sitter.Node) bool {
	return n.IsNamed() && n.Kind() == "lambda"
}

// Block clauses eligible for discovery. Function bodies are excluded:
// extracting a whole body is the named-function case, not a block.
var pythonBlockParents = map[string]bool{
	"if_statement":    true,
	"elif_clause":     true,
	"else_clause":     true,
	"for_statement":   true,
	"while_statement": true,
	"with_statement":  true,
	"try_statement":   true,
	"except_clause":   true,
	"finally_clause":  true,
}

func (p *Python) IsBlock(n *tree_sitter.Node) bool {
	if n.Kind() != "block" {
		return false
	}
	parent := n.Parent()
	return parent != nil && pythonBlockParents[parent.Kind()]
}

// Expression kinds with enough structure to stand alone as a function
// body. Bare identifiers, literals, and attribute reads are excluded.
var pythonExtractableKinds = map[string]bool{
	"call":                   true,
	"comparison_operator":    true,
	"boolean_operator":       true,
	"binary_operator":        true,
	"not_operator":           true,
	"conditional_expression": true,
}

func (p *Python) IsExtractableExpression(t *Tree, n *tree_sitter.Node) bool {
	return pythonExtractableKinds[n.Kind()]
}

func (p *Python) LambdaParams(t *Tree, n *tree_sitter.Node) []string {
	params := n.ChildByFieldName("parameters")
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
			names = append(names, t.Text(c))
		case "default_parameter":
			if nn := c.ChildByFieldName("name"); nn != nil {
				names = append(names, t.Text(nn))
			}
		}
	}
	return names
}

var pythonKeywords = map[string]bool{
	"False": true, "None": true, "True": true, "and": true, "as": true,
	"assert": true, "async": true, "await": true, "break": true,
	"class": true, "continue": true, "def": true, "del": true,
	"elif": true, "else": true, "except": true, "finally": true,
	"for": true, "from": true, "global": true, "if": true,
	"import": true, "in": true, "is": true, "lambda": true,
	"nonlocal": true, "not": true, "or": true, "pass": true,
	"raise": true, "return": true, "try": true, "while": true,
	"with": true, "yield": true, "match": true, "case": true,
}

func (p *Python) IsReserved(name string) bool {
	return pythonKeywords[name]
}

var pythonIdentRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func (p *Python) ValidIdentifier(name string) bool {
	return pythonIdentRe.MatchString(name) && !p.IsReserved(name)
}

func (p *Python) RenderFunction(name string, params []string, body []string, indent string) string {
	var sb strings.Builder
	sb.WriteString(indent)
	sb.WriteString("def ")
	sb.WriteString(name)
	sb.WriteString("(")
	sb.WriteString(strings.Join(params, ", "))
	sb.WriteString("):\n")
	if len(body) == 0 {
		body = []string{"pass"}
	}
	for _, line := range body {
		if strings.TrimSpace(line) == "" {
			sb.WriteString("\n")
			continue
		}
		sb.WriteString(indent)
		sb.WriteString("    ")
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	return sb.String()
}

func (p *Python) RenderCall(name string, args []string) string {
	return name + "(" + strings.Join(args, ", ") + ")"
}

func nodeRange(n *tree_sitter.Node) types.ByteRange {
	return types.ByteRange{Start: int(n.StartByte()), End: int(n.EndByte())}
}
