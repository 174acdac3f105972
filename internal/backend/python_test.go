package backend

import (
	"strings"
	"testing"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"

	"github.com/standardbeagle/refract/internal/types"
)

const authSource = `import re
from util import helper as h

MAX_AGE = 120

def login(user):
    """Authenticate a user."""
    check = lambda u: u.age >= 18
    if check(user):
        result = h(user.name)
        return result
    return None

class Session:
    def close(self):
        pass
`

func parsePython(t *testing.T, source string) (*Python, *Tree) {
	t.Helper()
	py, err := NewPython()
	if err != nil {
		t.Fatalf("NewPython: %v", err)
	}
	tree, err := py.Parse("auth.py", []byte(source))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	t.Cleanup(tree.Close)
	return py, tree
}

func findDef(defs []Definition, name string) *Definition {
	for i := range defs {
		if defs[i].Name == name {
			return &defs[i]
		}
	}
	return nil
}

func TestPythonDefinitions(t *testing.T) {
	py, tree := parsePython(t, authSource)
	defs := py.Definitions(tree)

	login := findDef(defs, "login")
	if login == nil {
		t.Fatal("login not found")
	}
	if login.Kind != types.KindFunction {
		t.Errorf("login kind = %v", login.Kind)
	}
	if login.Docstring != "Authenticate a user." {
		t.Errorf("docstring = %q", login.Docstring)
	}
	if len(login.Scope) != 0 {
		t.Errorf("login scope = %v, want module level", login.Scope)
	}

	sess := findDef(defs, "Session")
	if sess == nil || sess.Kind != types.KindClass {
		t.Fatalf("Session = %+v", sess)
	}

	closeDef := findDef(defs, "close")
	if closeDef == nil {
		t.Fatal("close not found")
	}
	if closeDef.Kind != types.KindMethod {
		t.Errorf("close kind = %v, want method", closeDef.Kind)
	}
	if len(closeDef.Scope) != 1 || closeDef.Scope[0] != "Session" {
		t.Errorf("close scope = %v", closeDef.Scope)
	}

	maxAge := findDef(defs, "MAX_AGE")
	if maxAge == nil {
		t.Fatal("MAX_AGE not found")
	}
	if maxAge.Kind != types.KindConstant {
		t.Errorf("MAX_AGE kind = %v, want constant", maxAge.Kind)
	}
}

func TestPythonNestedFunctionScope(t *testing.T) {
	py, tree := parsePython(t, `def outer():
    def inner():
        pass
`)
	defs := py.Definitions(tree)
	inner := findDef(defs, "inner")
	if inner == nil {
		t.Fatal("inner not found")
	}
	if len(inner.Scope) != 1 || inner.Scope[0] != "outer" {
		t.Errorf("inner scope = %v", inner.Scope)
	}
}

func TestPythonIdentifiers(t *testing.T) {
	py, tree := parsePython(t, authSource)
	idents := py.Identifiers(tree)

	var checkUses, attrAccess, boundParams int
	for _, id := range idents {
		if id.Name == "check" && !id.Bind {
			checkUses++
		}
		if id.Name == "age" && id.Attr {
			attrAccess++
			if id.Obj != "u" {
				t.Errorf("age Obj = %q, want u", id.Obj)
			}
		}
		if id.Name == "user" && id.Bind && len(id.Scope) == 0 {
			t.Error("parameter user should carry the login scope")
		}
		if id.Name == "user" && id.Bind {
			boundParams++
		}
	}
	if checkUses != 1 {
		t.Errorf("check use occurrences = %d, want 1", checkUses)
	}
	if attrAccess != 1 {
		t.Errorf("age attribute occurrences = %d, want 1", attrAccess)
	}
	if boundParams != 1 {
		t.Errorf("user binding occurrences = %d, want 1", boundParams)
	}

	// Import clause names must not appear as identifiers.
	for _, id := range idents {
		if id.Name == "re" && id.Line == 1 {
			t.Error("import clause identifier leaked into occurrences")
		}
	}
}

func TestPythonImports(t *testing.T) {
	py, tree := parsePython(t, authSource)
	imports := py.Imports(tree)
	if len(imports) != 2 {
		t.Fatalf("imports = %+v", imports)
	}
	if imports[0].Module != "re" {
		t.Errorf("first import = %q", imports[0].Module)
	}
	if imports[1].Module != "util" {
		t.Errorf("from module = %q", imports[1].Module)
	}
	if imports[1].Names["h"] != "helper" {
		t.Errorf("aliased from-import names = %v", imports[1].Names)
	}
}

func TestPythonLambdaAndExpressions(t *testing.T) {
	py, tree := parsePython(t, authSource)

	var lambdas []*tree_sitter.Node
	var comparisons int
	Walk(tree.Root(), func(n *tree_sitter.Node) bool {
		if py.IsLambda(n) {
			lambdas = append(lambdas, n)
		}
		if py.IsExtractableExpression(tree, n) && n.Kind() == "comparison_operator" {
			comparisons++
		}
		return true
	})
	if len(lambdas) != 1 {
		t.Fatalf("lambda count = %d", len(lambdas))
	}
	params := py.LambdaParams(tree, lambdas[0])
	if len(params) != 1 || params[0] != "u" {
		t.Errorf("lambda params = %v", params)
	}
	if comparisons != 1 {
		t.Errorf("extractable comparisons = %d", comparisons)
	}

	// Bare identifiers and literals are never extractable.
	Walk(tree.Root(), func(n *tree_sitter.Node) bool {
		if n.Kind() == "identifier" && py.IsExtractableExpression(tree, n) {
			t.Errorf("identifier %q marked extractable", tree.Text(n))
		}
		return true
	})
}

func TestPythonBlocks(t *testing.T) {
	py, tree := parsePython(t, authSource)
	var ifBlocks, bodyBlocks int
	Walk(tree.Root(), func(n *tree_sitter.Node) bool {
		if n.Kind() != "block" {
			return true
		}
		if py.IsBlock(n) {
			ifBlocks++
		} else {
			bodyBlocks++
		}
		return true
	})
	if ifBlocks != 1 {
		t.Errorf("discoverable blocks = %d, want 1 (the if body)", ifBlocks)
	}
	if bodyBlocks == 0 {
		t.Error("function bodies should be excluded from discovery")
	}
}

func TestPythonIdentifierValidation(t *testing.T) {
	py, err := NewPython()
	if err != nil {
		t.Fatal(err)
	}
	valid := []string{"is_adult", "_private", "x2", "CamelCase"}
	for _, name := range valid {
		if !py.ValidIdentifier(name) {
			t.Errorf("%q should be valid", name)
		}
	}
	invalid := []string{"2x", "with-dash", "", "lambda", "class", "has space"}
	for _, name := range invalid {
		if py.ValidIdentifier(name) {
			t.Errorf("%q should be invalid", name)
		}
	}
}

func TestPythonRenderFunction(t *testing.T) {
	py, err := NewPython()
	if err != nil {
		t.Fatal(err)
	}
	got := py.RenderFunction("is_adult", []string{"u"}, []string{"return u.age >= 18"}, "")
	want := "def is_adult(u):\n    return u.age >= 18\n"
	if got != want {
		t.Errorf("RenderFunction = %q, want %q", got, want)
	}
	if call := py.RenderCall("is_adult", []string{"user"}); call != "is_adult(user)" {
		t.Errorf("RenderCall = %q", call)
	}
}

func TestPythonParseErrorTolerance(t *testing.T) {
	py, err := NewPython()
	if err != nil {
		t.Fatal(err)
	}
	tree, err := py.Parse("bad.py", []byte("def broken(:\n    pass\n"))
	if err != nil {
		t.Fatalf("Parse should still produce a tree: %v", err)
	}
	defer tree.Close()
	if !tree.Root().HasError() {
		t.Error("expected syntax error flag on the tree")
	}
}

func TestPythonDocstringOnlyLeadingString(t *testing.T) {
	py, tree := parsePython(t, `def f():
    x = 1
    "not a docstring"
`)
	defs := py.Definitions(tree)
	f := findDef(defs, "f")
	if f == nil {
		t.Fatal("f not found")
	}
	if f.Docstring != "" {
		t.Errorf("docstring = %q, want empty", f.Docstring)
	}
}

func TestStripStringQuotes(t *testing.T) {
	cases := map[string]string{
		`"""Triple."""`: "Triple.",
		`'single'`:      "single",
		`"double"`:      "double",
	}
	for in, want := range cases {
		if got := stripStringQuotes(in); got != want {
			t.Errorf("stripStringQuotes(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPythonCapabilities(t *testing.T) {
	py, err := NewPython()
	if err != nil {
		t.Fatal(err)
	}
	if !types.HasCapability(py.Capabilities(), types.CapExtractElement) {
		t.Error("python backend should support extraction")
	}
	if !strings.Contains(strings.Join(py.Extensions(), ","), ".py") {
		t.Errorf("extensions = %v", py.Extensions())
	}
}
