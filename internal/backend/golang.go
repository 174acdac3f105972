package backend

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_go "github.com/tree-sitter/tree-sitter-go/bindings/go"

	"github.com/standardbeagle/refract/internal/types"
)

// Golang is the tree-sitter backed Go backend. Element extraction is not
// in its capability set; consumers must check before invoking it.
type Golang struct {
	mu     sync.Mutex
	parser *tree_sitter.Parser
}

// NewGolang builds a Go backend with its own parser instance.
func NewGolang() (*Golang, error) {
	parser := tree_sitter.NewParser()
	if err := parser.SetLanguage(tree_sitter.NewLanguage(tree_sitter_go.Language())); err != nil {
		return nil, fmt.Errorf("setting go grammar: %w", err)
	}
	return &Golang{parser: parser}, nil
}

func (g *Golang) Language() string { return "go" }

func (g *Golang) Extensions() []string { return []string{".go"} }

func (g *Golang) Capabilities() []types.Capability {
	return []types.Capability{
		types.CapAnalyzeSymbol,
		types.CapFindSymbols,
		types.CapShowFunction,
		types.CapRenameSymbol,
	}
}

func (g *Golang) Parse(path string, content []byte) (*Tree, error) {
	contentCopy := make([]byte, len(content))
	copy(contentCopy, content)

	g.mu.Lock()
	tree := g.parser.Parse(contentCopy, nil)
	g.mu.Unlock()
	if tree == nil {
		return nil, fmt.Errorf("parser returned no tree for %s", path)
	}
	return &Tree{TS: tree, Content: contentCopy, Path: path}, nil
}

func (g *Golang) Definitions(t *Tree) []Definition {
	var defs []Definition
	root := t.Root()
	for i := uint(0); i < root.ChildCount(); i++ {
		n := root.Child(i)
		if n == nil {
			continue
		}
		switch n.Kind() {
		case "function_declaration":
			if nameNode := n.ChildByFieldName("name"); nameNode != nil {
				defs = append(defs, Definition{
					Name:      t.Text(nameNode),
					Kind:      types.KindFunction,
					NameRange: nodeRange(nameNode),
					DefRange:  nodeRange(n),
					Line:      int(n.StartPosition().Row) + 1,
				})
			}
		case "method_declaration":
			if nameNode := n.ChildByFieldName("name"); nameNode != nil {
				defs = append(defs, Definition{
					Name:      t.Text(nameNode),
					Kind:      types.KindMethod,
					NameRange: nodeRange(nameNode),
					DefRange:  nodeRange(n),
					Line:      int(n.StartPosition().Row) + 1,
					Scope:     []string{g.receiverType(t, n)},
				})
			}
		case "type_declaration":
			for j := uint(0); j < n.ChildCount(); j++ {
				spec := n.Child(j)
				if spec == nil || spec.Kind() != "type_spec" {
					continue
				}
				if nameNode := spec.ChildByFieldName("name"); nameNode != nil {
					defs = append(defs, Definition{
						Name:      t.Text(nameNode),
						Kind:      types.KindType,
						NameRange: nodeRange(nameNode),
						DefRange:  nodeRange(n),
						Line:      int(spec.StartPosition().Row) + 1,
					})
				}
			}
		case "const_declaration", "var_declaration":
			kind := types.KindVariable
			if n.Kind() == "const_declaration" {
				kind = types.KindConstant
			}
			Walk(n, func(spec *tree_sitter.Node) bool {
				if spec.Kind() != "const_spec" && spec.Kind() != "var_spec" {
					return true
				}
				for k := uint(0); k < spec.ChildCount(); k++ {
					c := spec.Child(k)
					if c != nil && c.Kind() == "identifier" {
						defs = append(defs, Definition{
							Name:      t.Text(c),
							Kind:      kind,
							NameRange: nodeRange(c),
							DefRange:  nodeRange(spec),
							Line:      int(c.StartPosition().Row) + 1,
						})
					}
				}
				return false
			})
		}
	}
	return defs
}

// receiverType extracts the bare receiver type name of a method.
func (g *Golang) receiverType(t *Tree, method *tree_sitter.Node) string {
	recv := method.ChildByFieldName("receiver")
	if recv == nil {
		return ""
	}
	var name string
	Walk(recv, func(n *tree_sitter.Node) bool {
		if n.Kind() == "type_identifier" {
			name = t.Text(n)
			return false
		}
		return true
	})
	return name
}

func (g *Golang) Identifiers(t *Tree) []Ident {
	var idents []Ident
	g.collectIdents(t, t.Root(), nil, &idents)
	return idents
}

func (g *Golang) collectIdents(t *Tree, n *tree_sitter.Node, scope []string, out *[]Ident) {
	kind := n.Kind()
	if kind == "import_declaration" || kind == "package_clause" {
		return
	}

	if kind == "identifier" || kind == "type_identifier" || kind == "field_identifier" {
		id := Ident{
			Name:  t.Text(n),
			Range: nodeRange(n),
			Line:  int(n.StartPosition().Row) + 1,
			Scope: append([]string(nil), scope...),
		}
		if parent := n.Parent(); parent != nil {
			switch parent.Kind() {
			case "selector_expression":
				if field := parent.ChildByFieldName("field"); field != nil && field.StartByte() == n.StartByte() {
					id.Attr = true
					if op := parent.ChildByFieldName("operand"); op != nil && op.Kind() == "identifier" {
						id.Obj = t.Text(op)
					}
				}
			case "function_declaration", "method_declaration", "type_spec", "const_spec", "var_spec", "parameter_declaration", "short_var_declaration":
				id.Bind = true
			}
		}
		*out = append(*out, id)
		return
	}

	next := scope
	switch kind {
	case "function_declaration", "method_declaration":
		if nameNode := n.ChildByFieldName("name"); nameNode != nil {
			next = append(scope, t.Text(nameNode))
		}
	}
	for i := uint(0); i < n.ChildCount(); i++ {
		child := n.Child(i)
		if child == nil {
			continue
		}
		if (kind == "function_declaration" || kind == "method_declaration") &&
			(child.Kind() == "identifier" || child.Kind() == "field_identifier") {
			g.collectIdents(t, child, scope, out)
			continue
		}
		g.collectIdents(t, child, next, out)
	}
}

func (g *Golang) Imports(t *Tree) []Import {
	var imports []Import
	Walk(t.Root(), func(n *tree_sitter.Node) bool {
		if n.Kind() != "import_spec" {
			return true
		}
		imp := Import{}
		if pathNode := n.ChildByFieldName("path"); pathNode != nil {
			imp.Module = strings.Trim(t.Text(pathNode), `"`)
		}
		if nameNode := n.ChildByFieldName("name"); nameNode != nil {
			imp.Alias = t.Text(nameNode)
		}
		imports = append(imports, imp)
		return false
	})
	return imports
}

func (g *Golang) IsLambda(n *tree_sitter.Node) bool {
	return n.Kind() == "func_literal"
}

var goBlockParents = map[string]bool{
	"if_statement":                true,
	"for_statement":               true,
	"expression_switch_statement": true,
	"select_statement":            true,
}

func (g *Golang) IsBlock(n *tree_sitter.Node) bool {
	if n.Kind() != "block" {
		return false
	}
	parent := n.Parent()
	return parent != nil && goBlockParents[parent.Kind()]
}

// Extraction is outside this backend's capability set.
func (g *Golang) IsExtractableExpression(t *Tree, n *tree_sitter.Node) bool {
	return false
}

func (g *Golang) LambdaParams(t *Tree, n *tree_sitter.Node) []string {
	params := n.ChildByFieldName("parameters")
	if params == nil {
		return nil
	}
	var names []string
	Walk(params, func(c *tree_sitter.Node) bool {
		if c.Kind() == "parameter_declaration" {
			for i := uint(0); i < c.ChildCount(); i++ {
				id := c.Child(i)
				if id != nil && id.Kind() == "identifier" {
					names = append(names, t.Text(id))
				}
			}
			return false
		}
		return true
	})
	return names
}

var goKeywords = map[string]bool{
	"break": true, "case": true, "chan": true, "const": true,
	"continue": true, "default": true, "defer": true, "else": true,
	"fallthrough": true, "for": true, "func": true, "go": true,
	"goto": true, "if": true, "import": true, "interface": true,
	"map": true, "package": true, "range": true, "return": true,
	"select": true, "struct": true, "switch": true, "type": true,
	"var": true,
}

func (g *Golang) IsReserved(name string) bool {
	return goKeywords[name]
}

var goIdentRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func (g *Golang) ValidIdentifier(name string) bool {
	return goIdentRe.MatchString(name) && !g.IsReserved(name)
}

func (g *Golang) RenderFunction(name string, params []string, body []string, indent string) string {
	var sb strings.Builder
	sb.WriteString(indent)
	sb.WriteString("func ")
	sb.WriteString(name)
	sb.WriteString("(")
	sb.WriteString(strings.Join(params, ", "))
	sb.WriteString(") {\n")
	for _, line := range body {
		sb.WriteString(indent)
		sb.WriteString("\t")
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	sb.WriteString(indent)
	sb.WriteString("}\n")
	return sb.String()
}

func (g *Golang) RenderCall(name string, args []string) string {
	return name + "(" + strings.Join(args, ", ") + ")"
}
